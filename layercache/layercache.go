// Package layercache implements the content-addressed, directory-per-layer
// cache from spec.md §4.3: lookup/fill keyed by a composed hash chain, with
// best-effort, non-fatal fill failures. The recursive copy is grounded on the
// teacher's FileOps.Copy (file_ops.go), which shells out to `cp` to preserve
// permissions and symlinks rather than reimplementing a tree-walking copy.
package layercache

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/octaviocubillos/proobox/paths"
)

// Cache is a content-addressed layer store rooted at a Layout's
// cached_layers/ directory.
type Cache struct {
	layout *paths.Layout
}

func New(layout *paths.Layout) *Cache {
	return &Cache{layout: layout}
}

// ShortHash computes the 12-hex-char prefix of the SHA-256 digest of s, the
// "short_sha256" primitive used throughout spec.md §4.3.
func ShortHash(s string) string {
	d := digest.FromString(s)
	return paths.ShortSHA256Prefix(d.Encoded(), 12)
}

// ShortHashBytes is ShortHash over raw bytes, used for COPY source content.
func ShortHashBytes(b []byte) string {
	d := digest.FromBytes(b)
	return paths.ShortSHA256Prefix(d.Encoded(), 12)
}

// HashDir computes a deterministic content hash over root's tree (relative
// path, mode, and regular-file bytes or symlink target, in Walk's lexical
// order), used as an image's VirtualSize per spec.md §3: identical directory
// content always yields the same hash, which is what lets a rebuild of an
// unchanged recipe reproduce the same value (spec.md §8).
func HashDir(root string) (string, error) {
	h := digest.Canonical.Hash()
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		fmt.Fprintf(h, "%s\x00%o\x00", filepath.ToSlash(rel), info.Mode())
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "%s\x00", link)
			return nil
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(h, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hash dir %s: %w", root, err)
	}
	return paths.ShortSHA256Prefix(hex.EncodeToString(h.Sum(nil)), 12), nil
}

// FromLayerKey returns the cache key for a base image's FROM-layer: the
// short SHA-256 of the base image tag string.
func FromLayerKey(baseImageTag string) string {
	return ShortHash(baseImageTag)
}

// StepKey composes the previous layer key with this step's key, per the
// "previous ‖ '-' ‖ step" rule of spec.md §4.3.
func StepKey(previous, step string) string {
	return previous + "-" + step
}

// RunStepKey is the step-layer key for a non-COPY directive: short_sha256(line).
func RunStepKey(line string) string {
	return ShortHash(line)
}

// CopyStepKey is the step-layer key for a COPY directive:
// short_sha256(line) ‖ short_sha256(source_bytes).
func CopyStepKey(line string, sourceBytes []byte) string {
	return ShortHash(line) + ShortHashBytes(sourceBytes)
}

// Lookup reports a cache hit iff the layer directory exists and is non-empty.
func (c *Cache) Lookup(key string) (dir string, ok bool) {
	dir = c.layout.LayerDir(key)
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return "", false
	}
	return dir, true
}

// Fill snapshots srcDir into the cache directory for key via a recursive,
// permission- and symlink-preserving copy. Failures are logged and returned
// as plain errors — callers (the builder) are expected to downgrade them to
// warnings rather than abort, per spec.md §4.3 and §7.
func (c *Cache) Fill(ctx context.Context, key, srcDir string) error {
	dir := c.layout.LayerDir(key)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		slog.ErrorContext(ctx, "layercache.Fill mkdir", "key", key, "error", err)
		return fmt.Errorf("layercache fill %s: mkdir: %w", key, err)
	}
	// cp -a preserves mode bits, ownership-where-possible, and symlinks;
	// trailing "/." copies contents rather than nesting srcDir itself.
	cmd := exec.CommandContext(ctx, "cp", "-a", strings.TrimSuffix(srcDir, "/")+"/.", dir)
	slog.InfoContext(ctx, "layercache.Fill", "cmd", strings.Join(cmd.Args, " "))
	if out, err := cmd.CombinedOutput(); err != nil {
		slog.ErrorContext(ctx, "layercache.Fill copy", "key", key, "error", err, "output", string(out))
		return fmt.Errorf("layercache fill %s: copy: %w (output: %s)", key, err, out)
	}
	return nil
}

// CopyInto copies a cached layer's contents into dstDir, used on a cache hit
// to materialize the build rootfs from the cached snapshot.
func (c *Cache) CopyInto(ctx context.Context, key, dstDir string) error {
	srcDir, ok := c.Lookup(key)
	if !ok {
		return fmt.Errorf("layercache CopyInto: no cache entry for key %s", key)
	}
	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return fmt.Errorf("layercache CopyInto %s: mkdir: %w", key, err)
	}
	cmd := exec.CommandContext(ctx, "cp", "-a", strings.TrimSuffix(srcDir, "/")+"/.", dstDir)
	slog.InfoContext(ctx, "layercache.CopyInto", "cmd", strings.Join(cmd.Args, " "))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("layercache CopyInto %s: %w (output: %s)", key, err, out)
	}
	return nil
}

// RemoveFromLayer best-effort deletes the FROM-layer cache entry identified
// by virtualSizeHash, the conservative removal rule of spec.md §3/§4.4:
// image removal deletes only the owning image's FROM-layer, never step
// layers, and never reference-counts.
func (c *Cache) RemoveFromLayer(virtualSizeHash string) error {
	if virtualSizeHash == "" || virtualSizeHash == "unknown" {
		return nil
	}
	return os.RemoveAll(c.layout.LayerDir(virtualSizeHash))
}
