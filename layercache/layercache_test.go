package layercache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/octaviocubillos/proobox/paths"
)

func TestShortHashIsDeterministicAndTwelveChars(t *testing.T) {
	h1 := ShortHash("RUN apk add curl")
	h2 := ShortHash("RUN apk add curl")
	if h1 != h2 {
		t.Errorf("ShortHash is not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 12 {
		t.Errorf("ShortHash length = %d, want 12", len(h1))
	}
	if ShortHash("RUN apk add git") == h1 {
		t.Errorf("different inputs hashed to the same value")
	}
}

func TestStepKeyComposition(t *testing.T) {
	got := StepKey("prevkey", "stepkey")
	want := "prevkey-stepkey"
	if got != want {
		t.Errorf("StepKey = %q, want %q", got, want)
	}
}

func TestCopyStepKeyDependsOnSourceBytes(t *testing.T) {
	line := "COPY app.sh /app.sh"
	k1 := CopyStepKey(line, []byte("echo one"))
	k2 := CopyStepKey(line, []byte("echo two"))
	if k1 == k2 {
		t.Errorf("CopyStepKey should differ when source bytes differ")
	}
}

func TestLookupMissAndHit(t *testing.T) {
	base := t.TempDir()
	layout, err := paths.NewLayout(base)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	cache := New(layout)

	if _, ok := cache.Lookup("nope"); ok {
		t.Errorf("Lookup on empty cache reported a hit")
	}

	key := "somekey"
	dir := layout.LayerDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	got, ok := cache.Lookup(key)
	if !ok {
		t.Fatalf("expected cache hit for populated layer dir")
	}
	if got != dir {
		t.Errorf("Lookup dir = %q, want %q", got, dir)
	}
}

func TestFillAndCopyIntoRoundTrip(t *testing.T) {
	base := t.TempDir()
	layout, err := paths.NewLayout(base)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	cache := New(layout)
	ctx := context.Background()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	key := "fillkey"
	if err := cache.Fill(ctx, key, src); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "materialized")
	if err := cache.CopyInto(ctx, key, dst); err != nil {
		t.Fatalf("CopyInto: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "file.txt"))
	if err != nil {
		t.Fatalf("read materialized file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("materialized content = %q, want %q", data, "hello")
	}
}

func TestHashDirDeterministicAndContentSensitive(t *testing.T) {
	mkTree := func(content string) string {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "sub", "file.txt"), []byte(content), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		return dir
	}

	dirA := mkTree("hello")
	dirB := mkTree("hello")
	dirC := mkTree("world")

	hA1, err := HashDir(dirA)
	if err != nil {
		t.Fatalf("HashDir: %v", err)
	}
	hA2, err := HashDir(dirA)
	if err != nil {
		t.Fatalf("HashDir: %v", err)
	}
	if hA1 != hA2 {
		t.Errorf("HashDir not deterministic across repeated calls: %q != %q", hA1, hA2)
	}

	hB, err := HashDir(dirB)
	if err != nil {
		t.Fatalf("HashDir: %v", err)
	}
	if hA1 != hB {
		t.Errorf("HashDir of identical content differs: %q != %q", hA1, hB)
	}

	hC, err := HashDir(dirC)
	if err != nil {
		t.Fatalf("HashDir: %v", err)
	}
	if hA1 == hC {
		t.Errorf("HashDir of differing content should differ, both = %q", hA1)
	}

	if len(hA1) != 12 {
		t.Errorf("HashDir length = %d, want 12", len(hA1))
	}
}

func TestRemoveFromLayerIgnoresUnknown(t *testing.T) {
	base := t.TempDir()
	layout, err := paths.NewLayout(base)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	cache := New(layout)
	if err := cache.RemoveFromLayer("unknown"); err != nil {
		t.Errorf("RemoveFromLayer(unknown) should be a no-op, got %v", err)
	}
	if err := cache.RemoveFromLayer(""); err != nil {
		t.Errorf("RemoveFromLayer(\"\") should be a no-op, got %v", err)
	}
}
