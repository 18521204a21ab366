// Package rootfs materializes a container's root filesystem from a base
// image artifact or a cached FROM-layer snapshot, per spec.md §4.6. Tar
// extraction uses klauspost/compress/gzip instead of the stdlib gzip reader
// for throughput on the larger rootfs artifacts this tool routinely unpacks,
// the same choice the pack's yeet and claircore repos make for archive work.
package rootfs

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/octaviocubillos/proobox/layercache"
)

// specialDirs are the directories every rootfs must have, with their modes,
// per spec.md §4.6.
var specialDirs = []struct {
	path string
	mode os.FileMode
}{
	{"dev", 0o755},
	{"proc", 0o755},
	{"sys", 0o755},
	{"tmp", 0o777 | os.ModeSticky},
	{"run", 0o755},
	{"etc", 0o755},
}

var excludedPrefixes = []string{"dev/", "proc/", "sys/"}

func isExcluded(name string) bool {
	name = strings.TrimPrefix(name, "./")
	for _, p := range excludedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Assemble materializes target from either the FROM-layer cache (if
// populated for baseImageTag) or by extracting artifactPath, then always
// ensures the special directories and resolv.conf exist, per spec.md §4.6.
func Assemble(ctx context.Context, artifactPath, baseImageTag, target string, cache *layercache.Cache) error {
	key := layercache.FromLayerKey(baseImageTag)
	if _, ok := cache.Lookup(key); ok {
		slog.InfoContext(ctx, "rootfs.Assemble cache hit", "baseImageTag", baseImageTag)
		if err := cache.CopyInto(ctx, key, target); err != nil {
			return fmt.Errorf("rootfs.Assemble: copy from cache: %w", err)
		}
	} else {
		slog.InfoContext(ctx, "rootfs.Assemble cache miss, extracting", "artifactPath", artifactPath)
		if err := Extract(ctx, artifactPath, target); err != nil {
			return fmt.Errorf("rootfs.Assemble: extract: %w", err)
		}
		if err := cache.Fill(ctx, key, target); err != nil {
			slog.WarnContext(ctx, "rootfs.Assemble: cache fill failed (non-fatal)", "error", err)
		}
	}
	if err := EnsureSpecialDirs(target); err != nil {
		return err
	}
	return WriteResolvConf(target)
}

// Extract unpacks a gzipped tar artifact into target, excluding dev/*,
// proc/*, sys/*, and never preserving uid/gid, per spec.md §4.6.
func Extract(ctx context.Context, artifactPath, target string) error {
	f, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("mkdir target: %w", err)
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		if isExcluded(hdr.Name) {
			continue
		}
		dst := filepath.Join(target, filepath.Clean("/"+hdr.Name))
		if !strings.HasPrefix(dst, filepath.Clean(target)+string(os.PathSeparator)) && dst != filepath.Clean(target) {
			continue // guard against path traversal via a malicious tar entry
		}
		if err := extractEntry(tr, hdr, dst); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, dst string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dst, os.FileMode(hdr.Mode&0o7777))
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode&0o7777))
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		os.Remove(dst)
		return os.Symlink(hdr.Linkname, dst)
	case tar.TypeLink:
		// hard links inside the same archive; best effort, not fatal
		return nil
	default:
		return nil
	}
}

// EnsureSpecialDirs creates dev/ proc/ sys/ tmp/ run/ etc/ with their
// required modes, per spec.md §4.6.
func EnsureSpecialDirs(rootfsPath string) error {
	for _, d := range specialDirs {
		p := filepath.Join(rootfsPath, d.path)
		if err := os.MkdirAll(p, d.mode); err != nil {
			return fmt.Errorf("ensure %s: %w", d.path, err)
		}
		if err := os.Chmod(p, d.mode); err != nil {
			return fmt.Errorf("chmod %s: %w", d.path, err)
		}
	}
	return nil
}

// WriteResolvConf writes etc/resolv.conf with the two fallback nameservers
// from spec.md §4.6.
func WriteResolvConf(rootfsPath string) error {
	content := "nameserver 8.8.8.8\nnameserver 8.8.4.4\n"
	path := filepath.Join(rootfsPath, "etc", "resolv.conf")
	return os.WriteFile(path, []byte(content), 0o644)
}

// CreateArchive tars+gzips srcDir into dstPath, excluding dev/* proc/* sys/*
// tmp/* run/*, per spec.md §4.8's image emission step.
func CreateArchive(ctx context.Context, srcDir, dstPath string) error {
	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		relSlash := filepath.ToSlash(rel)
		if isEmissionExcluded(relSlash) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = relSlash
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		tw.Close()
		gz.Close()
		return fmt.Errorf("walk rootfs: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	return gz.Close()
}

var emissionExcludedPrefixes = []string{"dev/", "proc/", "sys/", "tmp/", "run/"}

func isEmissionExcluded(rel string) bool {
	for _, p := range emissionExcludedPrefixes {
		if strings.HasPrefix(rel, p) {
			return true
		}
	}
	return false
}
