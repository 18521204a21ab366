// Package paths centralizes the data directory layout, identifier generation,
// version normalization, and architecture mapping described in spec.md §4.1.
// It mirrors the teacher's convention of a single small leaf package that
// everything else in the module depends on (applecontainer/options played
// the same role in the teacher repo).
package paths

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/octaviocubillos/proobox/errkind"
)

// Layout resolves every path under a single data directory root ($BASE).
type Layout struct {
	Base string
}

// DefaultBase returns ~/.proobox, creating nothing.
func DefaultBase() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".proobox"), nil
}

// NewLayout builds a Layout rooted at base, defaulting to DefaultBase() if empty.
func NewLayout(base string) (*Layout, error) {
	if base == "" {
		var err error
		base, err = DefaultBase()
		if err != nil {
			return nil, err
		}
	}
	return &Layout{Base: base}, nil
}

func (l *Layout) ImagesDir() string        { return filepath.Join(l.Base, "images") }
func (l *Layout) ContainersDir() string     { return filepath.Join(l.Base, "containers") }
func (l *Layout) CachedLayersDir() string   { return filepath.Join(l.Base, "cached_layers") }
func (l *Layout) ConfigPath() string        { return filepath.Join(l.Base, "config.json") }
func (l *Layout) ContainerDir(name string) string {
	return filepath.Join(l.ContainersDir(), name)
}
func (l *Layout) ContainerRootfs(name string) string {
	return filepath.Join(l.ContainerDir(name), "rootfs")
}
func (l *Layout) ContainerMetadataPath(name string) string {
	return filepath.Join(l.ContainerDir(name), "metadata.json")
}
func (l *Layout) ContainerLogPath(name string) string {
	return filepath.Join(l.ContainerDir(name), "container.log")
}
func (l *Layout) ContainerStepLog(name string, step int) string {
	return filepath.Join(l.ContainerDir(name), fmt.Sprintf("step_%d.log", step))
}
func (l *Layout) LayerDir(key string) string {
	return filepath.Join(l.CachedLayersDir(), "layer-"+key)
}

// imageFileBase is the canonical `<repo>-<normalized_version>` filename stem.
func imageFileBase(repo, version string) string {
	return fmt.Sprintf("%s-%s", repo, NormalizeVersion(version))
}

func (l *Layout) ImageArtifactPath(repo, version string) string {
	return filepath.Join(l.ImagesDir(), imageFileBase(repo, version)+".tar.gz")
}

func (l *Layout) ImageMetadataPath(repo, version string) string {
	return filepath.Join(l.ImagesDir(), imageFileBase(repo, version)+".json")
}

// EnsureDirs creates the top-level layout directories.
func (l *Layout) EnsureDirs() error {
	for _, d := range []string{l.ImagesDir(), l.ContainersDir(), l.CachedLayersDir()} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return fmt.Errorf("ensure data dir %s: %w", d, err)
		}
	}
	return nil
}

var majorMinorOnly = regexp.MustCompile(`^\d+$`)
var majorDotMinorOnly = regexp.MustCompile(`^\d+\.\d+$`)

// NormalizeVersion implements the tag normalization rule of spec.md §3: an
// empty version defaults to "latest"; "N" becomes "N.0.0"; "N.M" becomes
// "N.M.0"; anything else passes through unchanged.
func NormalizeVersion(version string) string {
	if version == "" {
		return "latest"
	}
	if majorMinorOnly.MatchString(version) {
		return version + ".0.0"
	}
	if majorDotMinorOnly.MatchString(version) {
		return version + ".0"
	}
	return version
}

// SplitTag parses a "repository:version" reference, defaulting version to
// "latest" when absent, per the Tag entity in spec.md §3. It does not
// normalize the version — callers that need the normalized form should call
// NormalizeVersion explicitly, since resolve() needs to compare against
// on-disk filenames built from the normalized form while callers that only
// want to display the tag want the version the user actually typed.
func SplitTag(ref string) (repo, version string) {
	if i := strings.LastIndex(ref, ":"); i >= 0 && !strings.Contains(ref[i:], "/") {
		return ref[:i], ref[i+1:]
	}
	return ref, "latest"
}

var archMap = map[string]string{
	"arm64": "arm64",
	"aarch64": "arm64",
	"arm":   "armhf",
	"armv7l": "armhf",
	"amd64": "amd64",
	"x86_64": "amd64",
}

// MapArchitecture maps GOARCH-style or uname-style host architecture strings
// onto the three architectures proobox supports, per spec.md §4.1.
func MapArchitecture(host string) (string, error) {
	if host == "" {
		host = runtime.GOARCH
	}
	if mapped, ok := archMap[strings.ToLower(host)]; ok {
		return mapped, nil
	}
	return "", errkind.New("MapArchitecture", errkind.ArchUnsupported, fmt.Sprintf("unsupported host architecture %q", host))
}

// NewContainerID returns a 64-hex-character cryptographically random container
// identifier, per spec.md §3's "Generated identifiers" invariant.
func NewContainerID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate container id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ShortID returns the first n hex characters of id, clamped to len(id).
func ShortID(id string, n int) string {
	if n > len(id) {
		n = len(id)
	}
	return id[:n]
}

// GeneratedName returns a "<distro>-<8 random hex>" name, per the Container
// entity's lifecycle rule in spec.md §3.
func GeneratedName(distro string) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate container name: %w", err)
	}
	return fmt.Sprintf("%s-%s", distro, hex.EncodeToString(b)), nil
}

// ISOTimestamp returns the current UTC time formatted as ISO-8601 with
// millisecond precision, per spec.md §4.1.
func ISOTimestamp() string {
	return FormatISOTimestamp(time.Now().UTC())
}

// FormatISOTimestamp formats t as ISO-8601 UTC with millisecond precision.
func FormatISOTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ShortSHA256Prefix truncates a hex digest to n characters, used by the
// layer cache (§4.3) to build its 12-hex directory names.
func ShortSHA256Prefix(digestHex string, n int) string {
	if n > len(digestHex) {
		n = len(digestHex)
	}
	return digestHex[:n]
}

// ParseSemverPair extracts (major, minor) from a "vMAJOR.MINOR" style string,
// used by the registry client's Alpine version resolution (§4.5). Any
// component after the minor one (e.g. the ".0" of "3.19.0") is ignored.
// Returns ok=false if the string doesn't parse.
func ParseSemverPair(s string) (major, minor int, ok bool) {
	s = strings.TrimPrefix(s, "v")
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	maj, err1 := strconv.Atoi(parts[0])
	min, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return maj, min, true
}
