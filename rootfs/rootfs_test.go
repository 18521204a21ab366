package rootfs

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestIsExcluded(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"dev/null", true},
		{"./proc/1/stat", true},
		{"sys/kernel", true},
		{"etc/passwd", false},
		{"devtools/readme", false},
	}
	for _, tt := range tests {
		if got := isExcluded(tt.name); got != tt.want {
			t.Errorf("isExcluded(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsEmissionExcluded(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"dev/null", true},
		{"tmp/x", true},
		{"run/lock", true},
		{"etc/hosts", false},
		{"runner/data", false},
	}
	for _, tt := range tests {
		if got := isEmissionExcluded(tt.name); got != tt.want {
			t.Errorf("isEmissionExcluded(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEnsureSpecialDirs(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureSpecialDirs(dir); err != nil {
		t.Fatalf("EnsureSpecialDirs: %v", err)
	}
	for _, name := range []string{"dev", "proc", "sys", "tmp", "run", "etc"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", name)
		}
	}
	tmpInfo, err := os.Stat(filepath.Join(dir, "tmp"))
	if err != nil {
		t.Fatalf("stat tmp: %v", err)
	}
	if tmpInfo.Mode()&os.ModeSticky == 0 {
		t.Errorf("tmp/ is missing the sticky bit: %v", tmpInfo.Mode())
	}
}

func TestWriteResolvConf(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "etc"), 0o755); err != nil {
		t.Fatalf("mkdir etc: %v", err)
	}
	if err := WriteResolvConf(dir); err != nil {
		t.Fatalf("WriteResolvConf: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "etc", "resolv.conf"))
	if err != nil {
		t.Fatalf("read resolv.conf: %v", err)
	}
	want := "nameserver 8.8.8.8\nnameserver 8.8.4.4\n"
	if string(data) != want {
		t.Errorf("resolv.conf = %q, want %q", data, want)
	}
}

func writeTestArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write body %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return path
}

func TestExtractSkipsExcludedPrefixesAndPathTraversal(t *testing.T) {
	path := writeTestArchive(t, map[string]string{
		"etc/hostname":          "box\n",
		"dev/null":               "should not be extracted",
		"../../escape.txt":       "should not escape target",
		"./sys/kernel/notes.txt": "should not be extracted",
	})

	target := t.TempDir()
	if err := Extract(context.Background(), path, target); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, "etc", "hostname")); err != nil {
		t.Errorf("expected etc/hostname to be extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "dev", "null")); !os.IsNotExist(err) {
		t.Errorf("dev/null should have been excluded from extraction")
	}
	if _, err := os.Stat(filepath.Join(target, "sys")); !os.IsNotExist(err) {
		t.Errorf("sys/ should have been excluded from extraction")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(target), "escape.txt")); !os.IsNotExist(err) {
		t.Errorf("path traversal entry must not escape the extraction target")
	}
}

func TestCreateArchiveAndExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "etc"), 0o755); err != nil {
		t.Fatalf("mkdir etc: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "etc", "hostname"), []byte("box\n"), 0o644); err != nil {
		t.Fatalf("write hostname: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(src, "tmp"), 0o1777); err != nil {
		t.Fatalf("mkdir tmp: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "tmp", "scratch"), []byte("ephemeral"), 0o644); err != nil {
		t.Fatalf("write tmp file: %v", err)
	}

	archive := filepath.Join(t.TempDir(), "out.tar.gz")
	if err := CreateArchive(context.Background(), src, archive); err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	dst := t.TempDir()
	if err := Extract(context.Background(), archive, dst); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "etc", "hostname"))
	if err != nil {
		t.Fatalf("read round-tripped hostname: %v", err)
	}
	if string(data) != "box\n" {
		t.Errorf("hostname = %q, want %q", data, "box\n")
	}
	if _, err := os.Stat(filepath.Join(dst, "tmp", "scratch")); !os.IsNotExist(err) {
		t.Errorf("tmp/ contents must be excluded from emitted archives")
	}
}

func TestExtractRejectsTruncatedGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.gz")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x1f, 0x8b}, 2), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Extract(context.Background(), path, t.TempDir()); err == nil {
		t.Error("expected an error extracting a truncated gzip stream")
	}
}
