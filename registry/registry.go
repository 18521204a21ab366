// Package registry implements the three-tier pull fallback and
// token-authenticated push of spec.md §4.5: local presence, user registry,
// upstream distribution mirror, with metadata synthesis when a tier yields
// an artifact but no manifest. HTTP plumbing follows the plain net/http
// idiom used throughout the example pack (no example repo reaches for a
// third-party HTTP client for simple GET/POST/multipart work, so this
// doesn't displace an ecosystem choice — see DESIGN.md).
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/octaviocubillos/proobox/errkind"
	"github.com/octaviocubillos/proobox/imagestore"
	"github.com/octaviocubillos/proobox/metadata"
	"github.com/octaviocubillos/proobox/paths"
	"github.com/octaviocubillos/proobox/tracer/argv"
)

// Client pulls and pushes images against the local store and a configured
// backend.
type Client struct {
	Layout *paths.Layout
	Store  *imagestore.Store
	Config *Config
	HTTP   *http.Client
}

func New(layout *paths.Layout, store *imagestore.Store, cfg *Config) *Client {
	return &Client{Layout: layout, Store: store, Config: cfg, HTTP: &http.Client{Timeout: 5 * time.Minute}}
}

// DetectDistro maps a repository name onto the distro family used for the
// tracer shim and upstream mirror URL construction, per spec.md §4.5/§4.7.
func DetectDistro(repo string) argv.Distro {
	switch strings.ToLower(repo) {
	case "alpine":
		return argv.Alpine
	case "ubuntu":
		return argv.Ubuntu
	default:
		return argv.Unknown
	}
}

// ResolveVersion implements spec.md §4.5's version resolution: an empty
// version for Alpine scrapes the releases index for the greatest
// semver-sorted release; for any other distro (notably Ubuntu) an empty
// version is VersionRequired.
func (c *Client) ResolveVersion(ctx context.Context, repo, version string) (string, error) {
	if version != "" {
		return version, nil
	}
	if DetectDistro(repo) != argv.Alpine {
		return "", errkind.New("registry.ResolveVersion", errkind.VersionRequired, fmt.Sprintf("version required for %s", repo))
	}
	return c.latestAlpineRelease(ctx)
}

var alpineReleaseDirRE = regexp.MustCompile(`href="v(\d+)\.(\d+)/"`)

// latestAlpineRelease scrapes the Alpine releases index for the
// greatest-sorted "vMAJOR.MINOR" directory and returns "MAJOR.MINOR"; it does
// not look up point releases, so NormalizeVersion later turns it into
// "MAJOR.MINOR.0".
func (c *Client) latestAlpineRelease(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://dl-cdn.alpinelinux.org/alpine/", nil)
	if err != nil {
		return "", errkind.Wrap("registry.latestAlpineRelease", errkind.NetworkFailed, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", errkind.Wrap("registry.latestAlpineRelease", errkind.NetworkFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errkind.Wrap("registry.latestAlpineRelease", errkind.NetworkFailed, err)
	}
	matches := alpineReleaseDirRE.FindAllStringSubmatch(string(body), -1)
	if len(matches) == 0 {
		return "", errkind.New("registry.latestAlpineRelease", errkind.NetworkFailed, "no Alpine release directories found")
	}
	type pair struct{ major, minor int }
	var pairs []pair
	for _, m := range matches {
		var p pair
		fmt.Sscanf(m[1], "%d", &p.major)
		fmt.Sscanf(m[2], "%d", &p.minor)
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].major != pairs[j].major {
			return pairs[i].major > pairs[j].major
		}
		return pairs[i].minor > pairs[j].minor
	})
	best := pairs[0]
	return fmt.Sprintf("%d.%d", best.major, best.minor), nil
}

// Pull implements the three-tier fallback of spec.md §4.5.
func (c *Client) Pull(ctx context.Context, user, repo, version, arch string) (*metadata.Image, error) {
	version, err := c.ResolveVersion(ctx, repo, version)
	if err != nil {
		return nil, err
	}
	normalized := paths.NormalizeVersion(version)

	// Tier 1: local presence.
	if img, err := c.Store.Get(repo, normalized); err == nil {
		return img, nil
	}

	// Tier 2: user registry.
	if c.Config.Configured() {
		img, err := c.pullFromUserRegistry(ctx, user, repo, normalized)
		if err == nil {
			return img, nil
		}
	}

	// Tier 3: upstream distribution mirror.
	img, err := c.pullFromUpstream(ctx, repo, normalized, arch)
	if err != nil {
		return nil, errkind.Wrap("registry.Pull", errkind.NotFound, fmt.Errorf("all pull tiers failed for %s:%s: %w", repo, normalized, err))
	}
	return img, nil
}

func (c *Client) downloadURLPath(user, repo, version, ext string) string {
	return fmt.Sprintf("%s/api/download/proobox/%s/%s/%s/%s-%s.%s",
		c.Config.Backend.URL, user, repo, version, repo, version, ext)
}

func (c *Client) pullFromUserRegistry(ctx context.Context, user, repo, version string) (*metadata.Image, error) {
	tarBytes, err := c.httpGetBytes(ctx, c.downloadURLPath(user, repo, version, "tar.gz"))
	if err != nil {
		return nil, errkind.Wrap("registry.pullFromUserRegistry", errkind.NetworkFailed, err)
	}

	artifactPath := c.Layout.ImageArtifactPath(repo, version)
	if err := writeFile(artifactPath, tarBytes); err != nil {
		return nil, errkind.Wrap("registry.pullFromUserRegistry", errkind.ExtractFailed, err)
	}

	jsonBytes, jsonErr := c.httpGetBytes(ctx, c.downloadURLPath(user, repo, version, "json"))
	var img metadata.Image
	if jsonErr != nil {
		img, err = SynthesizeMetadata(repo, version, artifactPath)
		if err != nil {
			return nil, err
		}
	} else {
		img, err = parseImageJSON(jsonBytes)
		if err != nil {
			return nil, err
		}
	}
	if err := metadata.WriteImage(c.Layout.ImageMetadataPath(repo, version), &img); err != nil {
		return nil, err
	}
	return &img, nil
}

func (c *Client) pullFromUpstream(ctx context.Context, repo, version, arch string) (*metadata.Image, error) {
	url, err := upstreamURL(repo, version, arch)
	if err != nil {
		return nil, err
	}
	tarBytes, err := c.httpGetBytes(ctx, url)
	if err != nil {
		return nil, errkind.Wrap("registry.pullFromUpstream", errkind.NetworkFailed, err)
	}
	artifactPath := c.Layout.ImageArtifactPath(repo, version)
	if err := writeFile(artifactPath, tarBytes); err != nil {
		return nil, errkind.Wrap("registry.pullFromUpstream", errkind.ExtractFailed, err)
	}
	img, err := SynthesizeMetadata(repo, version, artifactPath)
	if err != nil {
		return nil, err
	}
	if err := metadata.WriteImage(c.Layout.ImageMetadataPath(repo, version), &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// upstreamURL constructs the vendor-specific mirror URL for a known distro,
// per spec.md §4.5.
func upstreamURL(repo, version, arch string) (string, error) {
	switch strings.ToLower(repo) {
	case "alpine":
		major, minor, ok := paths.ParseSemverPair(version)
		if !ok {
			return "", errkind.New("registry.upstreamURL", errkind.Invalid, fmt.Sprintf("cannot parse alpine version %q", version))
		}
		return fmt.Sprintf("https://dl-cdn.alpinelinux.org/alpine/v%d.%d/releases/%s/alpine-minirootfs-%s-%s.tar.gz",
			major, minor, arch, version, arch), nil
	case "ubuntu":
		return fmt.Sprintf("http://cdimage.ubuntu.com/ubuntu-base/releases/%s/release/ubuntu-base-%s-base-%s.tar.gz",
			version, version, arch), nil
	default:
		return "", errkind.New("registry.upstreamURL", errkind.NotFound, fmt.Sprintf("no upstream mirror known for distro %q", repo))
	}
}

// SynthesizeMetadata builds an Image metadata record for an artifact with no
// companion manifest, per spec.md §4.5's "Metadata synthesis" rule.
func SynthesizeMetadata(repo, version, artifactPath string) (metadata.Image, error) {
	id, err := imagestore.HashArtifactFile(artifactPath)
	if err != nil {
		return metadata.Image{}, fmt.Errorf("synthesize metadata: %w", err)
	}
	img := metadata.NewImage()
	img.ID = id
	img.RepoTags = []string{fmt.Sprintf("%s:%s", repo, version)}
	img.VirtualSize = "unknown"
	img.Created = paths.ISOTimestamp()
	img.Os = "linux"
	return img, nil
}

func parseImageJSON(b []byte) (metadata.Image, error) {
	img := metadata.NewImage()
	if err := json.Unmarshal(b, &img); err != nil {
		return metadata.Image{}, errkind.Wrap("registry.parseImageJSON", errkind.MetadataMalformed, err)
	}
	return img, nil
}

// Push uploads a local image to the configured backend via a single
// multipart POST carrying the tar.gz and json files plus a bearer token,
// per spec.md §4.5.
func (c *Client) Push(ctx context.Context, user, repo, version string) error {
	if !c.Config.Configured() {
		return errkind.New("registry.Push", errkind.Invalid, "no backend configured")
	}
	normalized := paths.NormalizeVersion(version)
	artifactPath := c.Layout.ImageArtifactPath(repo, normalized)
	metaPath := c.Layout.ImageMetadataPath(repo, normalized)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := addMultipartFile(w, "files", artifactPath); err != nil {
		return errkind.Wrap("registry.Push", errkind.NetworkFailed, err)
	}
	if err := addMultipartFile(w, "files", metaPath); err != nil {
		return errkind.Wrap("registry.Push", errkind.NetworkFailed, err)
	}
	if err := w.Close(); err != nil {
		return errkind.Wrap("registry.Push", errkind.NetworkFailed, err)
	}

	url := fmt.Sprintf("%s/api/upload/proobox/%s/%s/%s", c.Config.Backend.URL, user, repo, normalized)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return errkind.Wrap("registry.Push", errkind.NetworkFailed, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.Config.Backend.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errkind.Wrap("registry.Push", errkind.NetworkFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errkind.New("registry.Push", errkind.NetworkFailed, fmt.Sprintf("upload failed with status %d", resp.StatusCode))
	}
	return nil
}

func addMultipartFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func (c *Client) httpGetBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
