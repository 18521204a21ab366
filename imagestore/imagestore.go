// Package imagestore implements the tagged, content-addressed image store of
// spec.md §4.4: list (newest first), tag (repository-locked), remove (best
// effort layer cleanup), and resolve (tag or short-id). Grounded on the
// teacher's ImagesSvc.List/Inspect (applecontainer/images.go) for the service
// shape and box.go's error-wrapping idiom.
package imagestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/octaviocubillos/proobox/errkind"
	"github.com/octaviocubillos/proobox/layercache"
	"github.com/octaviocubillos/proobox/metadata"
	"github.com/octaviocubillos/proobox/paths"
)

// Store is the image store rooted at a Layout's images/ directory.
type Store struct {
	layout *paths.Layout
	cache  *layercache.Cache
}

func New(layout *paths.Layout, cache *layercache.Cache) *Store {
	return &Store{layout: layout, cache: cache}
}

// Entry pairs an Image record with the file stem it was loaded from.
type Entry struct {
	Image metadata.Image
	Repo  string
	Version string
}

// HashArtifact computes the image's content-derived Id from the artifact
// byte stream, per spec.md §3's Image entity.
func HashArtifact(r io.Reader) (string, error) {
	d, err := digest.Canonical.FromReader(r)
	if err != nil {
		return "", fmt.Errorf("hash artifact: %w", err)
	}
	return d.Encoded(), nil
}

// HashArtifactFile is HashArtifact over a file path.
func HashArtifactFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashArtifact(f)
}

// List scans images/*.json and returns entries sorted by Created descending,
// per spec.md §4.4.
func (s *Store) List() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.layout.ImagesDir(), "*.json"))
	if err != nil {
		return nil, errkind.Wrap("imagestore.List", errkind.MetadataMalformed, err)
	}
	var entries []Entry
	for _, m := range matches {
		img, err := metadata.ReadImage(m)
		if err != nil {
			continue // a malformed or partially-written sibling is skipped, not fatal to the listing
		}
		artifact := strings.TrimSuffix(m, ".json") + ".tar.gz"
		if _, err := os.Stat(artifact); err != nil {
			continue // artifact and metadata must exist together, per §3
		}
		repo, version := repoVersionFromStem(strings.TrimSuffix(filepath.Base(m), ".json"))
		entries = append(entries, Entry{Image: *img, Repo: repo, Version: version})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Image.Created > entries[j].Image.Created
	})
	return entries, nil
}

func repoVersionFromStem(stem string) (repo, version string) {
	i := strings.LastIndex(stem, "-")
	if i < 0 {
		return stem, ""
	}
	return stem[:i], stem[i+1:]
}

// Get loads the image metadata for repo:version, or NotFound if either the
// artifact or metadata file is missing.
func (s *Store) Get(repo, version string) (*metadata.Image, error) {
	metaPath := s.layout.ImageMetadataPath(repo, version)
	artifactPath := s.layout.ImageArtifactPath(repo, version)
	if _, err := os.Stat(artifactPath); err != nil {
		return nil, errkind.New("imagestore.Get", errkind.NotFound, fmt.Sprintf("image %s:%s not found", repo, version))
	}
	return metadata.ReadImage(metaPath)
}

// Put writes the artifact bytes and metadata for repo:version atomically,
// setting the image's Id to the artifact's content hash and Size to its
// byte count.
func (s *Store) Put(repo, version string, artifact io.Reader, img *metadata.Image) error {
	if err := os.MkdirAll(s.layout.ImagesDir(), 0o750); err != nil {
		return errkind.Wrap("imagestore.Put", errkind.MetadataWriteFailed, err)
	}
	artifactPath := s.layout.ImageArtifactPath(repo, version)
	tmp := artifactPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errkind.Wrap("imagestore.Put", errkind.MetadataWriteFailed, err)
	}
	size, err := io.Copy(f, artifact)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errkind.Wrap("imagestore.Put", errkind.MetadataWriteFailed, err)
	}
	if err := os.Rename(tmp, artifactPath); err != nil {
		return errkind.Wrap("imagestore.Put", errkind.MetadataWriteFailed, err)
	}
	id, err := HashArtifactFile(artifactPath)
	if err != nil {
		return errkind.Wrap("imagestore.Put", errkind.MetadataWriteFailed, err)
	}
	img.ID = id
	img.Size = size
	img.Paths.ImagePath = artifactPath
	if !contains(img.RepoTags, repo+":"+version) {
		img.RepoTags = append(img.RepoTags, repo+":"+version)
	}
	return metadata.WriteImage(s.layout.ImageMetadataPath(repo, version), img)
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Tag copies the artifact under a new version within the same repository and
// extends RepoTags, refreshing the timestamp. The repository part is
// immutable — only the version may change, per spec.md §4.4's restriction
// (carried from the source's rejection of cross-repository renames, §9).
func (s *Store) Tag(repo, fromVersion, toVersion string) error {
	if toVersion == fromVersion {
		return nil
	}
	img, err := s.Get(repo, fromVersion)
	if err != nil {
		return err
	}
	srcArtifact := s.layout.ImageArtifactPath(repo, fromVersion)
	dstArtifact := s.layout.ImageArtifactPath(repo, toVersion)

	in, err := os.Open(srcArtifact)
	if err != nil {
		return errkind.Wrap("imagestore.Tag", errkind.NotFound, err)
	}
	defer in.Close()
	out, err := os.Create(dstArtifact)
	if err != nil {
		return errkind.Wrap("imagestore.Tag", errkind.MetadataWriteFailed, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errkind.Wrap("imagestore.Tag", errkind.MetadataWriteFailed, err)
	}
	if err := out.Close(); err != nil {
		return errkind.Wrap("imagestore.Tag", errkind.MetadataWriteFailed, err)
	}

	newTag := repo + ":" + paths.NormalizeVersion(toVersion)
	if !contains(img.RepoTags, newTag) {
		img.RepoTags = append(img.RepoTags, newTag)
	}
	img.Created = paths.ISOTimestamp()
	img.Paths.ImagePath = dstArtifact
	return metadata.WriteImage(s.layout.ImageMetadataPath(repo, toVersion), img)
}

// Remove deletes an image's artifact, metadata, and the FROM-layer cache
// entry referenced by its VirtualSize, per spec.md §4.4. Layer removal is
// best-effort; artifact/metadata removal errors are returned.
func (s *Store) Remove(repo, version string) error {
	img, err := s.Get(repo, version)
	if err != nil {
		return err
	}
	artifactPath := s.layout.ImageArtifactPath(repo, version)
	metaPath := s.layout.ImageMetadataPath(repo, version)
	if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
		return errkind.Wrap("imagestore.Remove", errkind.MetadataWriteFailed, err)
	}
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return errkind.Wrap("imagestore.Remove", errkind.MetadataWriteFailed, err)
	}
	if s.cache != nil {
		_ = s.cache.RemoveFromLayer(img.VirtualSize) // best-effort, not fatal per §4.9
	}
	return nil
}

// Resolve accepts either a "repo:version" reference or a 4-12 hex short-id
// prefix and returns the matching (repo, version), per spec.md §4.4.
func (s *Store) Resolve(spec string) (repo, version string, err error) {
	if isShortID(spec) {
		return s.resolveShortID(spec)
	}
	repo, version = paths.SplitTag(spec)
	if _, err := s.Get(repo, version); err != nil {
		return "", "", err
	}
	return repo, version, nil
}

func isShortID(s string) bool {
	if len(s) < 4 || len(s) > 12 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

func (s *Store) resolveShortID(prefix string) (repo, version string, err error) {
	entries, err := s.List()
	if err != nil {
		return "", "", err
	}
	var matches []Entry
	for _, e := range entries {
		if strings.HasPrefix(e.Image.ID, prefix) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return "", "", errkind.New("imagestore.Resolve", errkind.NotFound, fmt.Sprintf("no image matches short id %q", prefix))
	case 1:
		return matches[0].Repo, matches[0].Version, nil
	default:
		return "", "", errkind.New("imagestore.Resolve", errkind.Ambiguous, fmt.Sprintf("short id %q matches %d images", prefix, len(matches)))
	}
}
