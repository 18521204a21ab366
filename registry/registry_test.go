package registry

import (
	"strings"
	"testing"

	"github.com/octaviocubillos/proobox/errkind"
	"github.com/octaviocubillos/proobox/imagestore"
	"github.com/octaviocubillos/proobox/paths"
	"github.com/octaviocubillos/proobox/tracer/argv"
)

func TestDetectDistro(t *testing.T) {
	tests := []struct {
		repo string
		want argv.Distro
	}{
		{"alpine", argv.Alpine},
		{"Alpine", argv.Alpine},
		{"ubuntu", argv.Ubuntu},
		{"debian", argv.Unknown},
	}
	for _, tt := range tests {
		if got := DetectDistro(tt.repo); got != tt.want {
			t.Errorf("DetectDistro(%q) = %q, want %q", tt.repo, got, tt.want)
		}
	}
}

func TestUpstreamURLAlpine(t *testing.T) {
	url, err := upstreamURL("alpine", "3.19.0", "amd64")
	if err != nil {
		t.Fatalf("upstreamURL: %v", err)
	}
	want := "https://dl-cdn.alpinelinux.org/alpine/v3.19/releases/amd64/alpine-minirootfs-3.19.0-amd64.tar.gz"
	if url != want {
		t.Errorf("upstreamURL = %q, want %q", url, want)
	}
}

func TestUpstreamURLUbuntu(t *testing.T) {
	url, err := upstreamURL("ubuntu", "22.04", "arm64")
	if err != nil {
		t.Fatalf("upstreamURL: %v", err)
	}
	want := "http://cdimage.ubuntu.com/ubuntu-base/releases/22.04/release/ubuntu-base-22.04-base-arm64.tar.gz"
	if url != want {
		t.Errorf("upstreamURL = %q, want %q", url, want)
	}
}

func TestUpstreamURLAlpineBadVersion(t *testing.T) {
	if _, err := upstreamURL("alpine", "not-a-version", "amd64"); !errkind.Is(err, errkind.Invalid) {
		t.Errorf("expected Invalid for unparseable alpine version, got %v", err)
	}
}

func TestUpstreamURLUnknownDistro(t *testing.T) {
	if _, err := upstreamURL("debian", "12", "amd64"); !errkind.Is(err, errkind.NotFound) {
		t.Errorf("expected NotFound for unknown distro mirror, got %v", err)
	}
}

func TestResolveVersionPassesThroughExplicitVersion(t *testing.T) {
	c := &Client{Config: &Config{}}
	got, err := c.ResolveVersion(nil, "ubuntu", "22.04")
	if err != nil {
		t.Fatalf("ResolveVersion: %v", err)
	}
	if got != "22.04" {
		t.Errorf("ResolveVersion = %q, want 22.04", got)
	}
}

func TestResolveVersionRequiresVersionForNonAlpine(t *testing.T) {
	c := &Client{Config: &Config{}}
	_, err := c.ResolveVersion(nil, "ubuntu", "")
	if !errkind.Is(err, errkind.VersionRequired) {
		t.Errorf("expected VersionRequired for empty ubuntu version, got %v", err)
	}
}

func TestSynthesizeMetadata(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/artifact.tar.gz"
	if err := writeFile(path, []byte("fake artifact bytes")); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	img, err := SynthesizeMetadata("alpine", "3.19.0", path)
	if err != nil {
		t.Fatalf("SynthesizeMetadata: %v", err)
	}
	want, err := imagestore.HashArtifactFile(path)
	if err != nil {
		t.Fatalf("HashArtifactFile: %v", err)
	}
	if img.ID != want {
		t.Errorf("ID = %q, want %q", img.ID, want)
	}
	if len(img.RepoTags) != 1 || img.RepoTags[0] != "alpine:3.19.0" {
		t.Errorf("RepoTags = %v, want [alpine:3.19.0]", img.RepoTags)
	}
	if img.Os != "linux" {
		t.Errorf("Os = %q, want linux", img.Os)
	}
	if img.VirtualSize != "unknown" {
		t.Errorf("VirtualSize = %q, want unknown", img.VirtualSize)
	}
}

func TestParseImageJSON(t *testing.T) {
	img, err := parseImageJSON([]byte(`{"Id":"abc123","RepoTags":["alpine:latest"]}`))
	if err != nil {
		t.Fatalf("parseImageJSON: %v", err)
	}
	if img.ID != "abc123" {
		t.Errorf("ID = %q, want abc123", img.ID)
	}
}

func TestParseImageJSONMalformed(t *testing.T) {
	_, err := parseImageJSON([]byte(`not json`))
	if !errkind.Is(err, errkind.MetadataMalformed) {
		t.Errorf("expected MetadataMalformed, got %v", err)
	}
}

func TestDownloadURLPath(t *testing.T) {
	c := &Client{Config: &Config{Backend: Backend{URL: "https://registry.example.com"}}}
	got := c.downloadURLPath("alice", "alpine", "3.19.0", "tar.gz")
	want := "https://registry.example.com/api/download/proobox/alice/alpine/3.19.0/alpine-3.19.0.tar.gz"
	if got != want {
		t.Errorf("downloadURLPath = %q, want %q", got, want)
	}
}

func TestAlpineReleaseDirRegexpMatchesVersionDirs(t *testing.T) {
	html := `<a href="v3.17/">v3.17/</a><a href="v3.9/">v3.9/</a><a href="v3.19/">v3.19/</a><a href="edge/">edge/</a>`
	matches := alpineReleaseDirRE.FindAllStringSubmatch(html, -1)
	if len(matches) != 3 {
		t.Fatalf("expected 3 version directory matches, got %d: %v", len(matches), matches)
	}
	var found []string
	for _, m := range matches {
		found = append(found, m[1]+"."+m[2])
	}
	if !strings.Contains(strings.Join(found, ","), "3.19") {
		t.Errorf("expected 3.19 among matches, got %v", found)
	}
}

func TestNormalizeVersionUsedByImageFileNaming(t *testing.T) {
	// registry.Pull relies on paths.NormalizeVersion before touching the
	// store; pin its behavior here since pullFromUpstream/pullFromUserRegistry
	// both key off the normalized form.
	if got := paths.NormalizeVersion("3.19"); got != "3.19.0" {
		t.Errorf("NormalizeVersion(3.19) = %q, want 3.19.0", got)
	}
}
