package imagestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/octaviocubillos/proobox/errkind"
	"github.com/octaviocubillos/proobox/metadata"
	"github.com/octaviocubillos/proobox/paths"
)

func newTestStore(t *testing.T) (*Store, *paths.Layout) {
	t.Helper()
	layout, err := paths.NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	if err := layout.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return New(layout, nil), layout
}

func putTestImage(t *testing.T, s *Store, repo, version, content string) *metadata.Image {
	t.Helper()
	img := metadata.NewImage()
	if err := s.Put(repo, version, strings.NewReader(content), &img); err != nil {
		t.Fatalf("Put(%s, %s): %v", repo, version, err)
	}
	return &img
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	putTestImage(t, s, "alpine", "3.19.0", "fake tar bytes")

	img, err := s.Get("alpine", "3.19.0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if img.Size != int64(len("fake tar bytes")) {
		t.Errorf("Size = %d, want %d", img.Size, len("fake tar bytes"))
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get("alpine", "3.19.0")
	if !errkind.Is(err, errkind.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestListSortsNewestFirst(t *testing.T) {
	s, layout := newTestStore(t)
	putTestImage(t, s, "alpine", "3.18.0", "old")
	img := putTestImage(t, s, "alpine", "3.19.0", "new")
	img.Created = "2030-01-01T00:00:00.000Z"
	if err := metadata.WriteImage(layout.ImageMetadataPath("alpine", "3.19.0"), img); err != nil {
		t.Fatalf("rewrite metadata: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}
	if entries[0].Version != "3.19.0" {
		t.Errorf("newest entry = %q, want 3.19.0", entries[0].Version)
	}
}

func TestResolveByShortID(t *testing.T) {
	s, _ := newTestStore(t)
	img := putTestImage(t, s, "alpine", "3.19.0", "content-a")

	repo, version, err := s.Resolve(img.ID[:6])
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if repo != "alpine" || version != "3.19.0" {
		t.Errorf("Resolve = (%s, %s), want (alpine, 3.19.0)", repo, version)
	}
}

func TestResolveAmbiguousShortID(t *testing.T) {
	s, layout := newTestStore(t)
	img1 := putTestImage(t, s, "alpine", "3.18.0", "one")
	img2 := putTestImage(t, s, "alpine", "3.19.0", "two")

	// force a shared prefix so the short-id lookup is genuinely ambiguous
	shared := img1.ID[:6]
	img2.ID = shared + img2.ID[6:]
	if err := metadata.WriteImage(layout.ImageMetadataPath("alpine", "3.19.0"), img2); err != nil {
		t.Fatalf("rewrite metadata: %v", err)
	}

	_, _, err := s.Resolve(shared)
	if !errkind.Is(err, errkind.Ambiguous) {
		t.Errorf("expected Ambiguous, got %v", err)
	}
}

func TestTagIsRepositoryLocked(t *testing.T) {
	s, _ := newTestStore(t)
	putTestImage(t, s, "alpine", "3.19.0", "content")

	if err := s.Tag("alpine", "3.19.0", "stable"); err != nil {
		t.Fatalf("Tag: %v", err)
	}
	img, err := s.Get("alpine", "stable")
	if err != nil {
		t.Fatalf("Get tagged image: %v", err)
	}
	found := false
	for _, rt := range img.RepoTags {
		if rt == "alpine:stable" {
			found = true
		}
	}
	if !found {
		t.Errorf("RepoTags %v does not include alpine:stable", img.RepoTags)
	}
}

func TestRemoveDeletesArtifactAndMetadata(t *testing.T) {
	s, layout := newTestStore(t)
	putTestImage(t, s, "alpine", "3.19.0", "content")

	if err := s.Remove("alpine", "3.19.0"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(layout.ImageArtifactPath("alpine", "3.19.0")); !os.IsNotExist(err) {
		t.Errorf("artifact still exists after Remove")
	}
	if _, err := os.Stat(layout.ImageMetadataPath("alpine", "3.19.0")); !os.IsNotExist(err) {
		t.Errorf("metadata still exists after Remove")
	}
}

func TestHashArtifactFileMatchesHashArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.tar.gz")
	if err := os.WriteFile(path, []byte("some bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := HashArtifactFile(path)
	if err != nil {
		t.Fatalf("HashArtifactFile: %v", err)
	}
	want, err := HashArtifact(strings.NewReader("some bytes"))
	if err != nil {
		t.Fatalf("HashArtifact: %v", err)
	}
	if got != want {
		t.Errorf("HashArtifactFile = %q, want %q", got, want)
	}
}
