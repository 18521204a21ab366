package metadata

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/octaviocubillos/proobox/errkind"
)

func TestWriteAndReadImageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alpine-3.19.0.json")

	img := NewImage()
	img.ID = "deadbeef"
	img.RepoTags = []string{"alpine:3.19.0"}
	img.Created = "2026-01-01T00:00:00.000Z"
	img.ContainerConfig.Cmd = []string{"/bin/sh"}

	if err := WriteImage(path, &img); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	got, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if diff := cmp.Diff(img, *got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadImageAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bare.json")
	if err := WriteAtomic(path, map[string]string{"Id": "abc"}); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	got, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if got.ContainerConfig.WorkingDir != "/root" {
		t.Errorf("WorkingDir default = %q, want /root", got.ContainerConfig.WorkingDir)
	}
	if got.ContainerConfig.Env == nil {
		t.Errorf("Env default should not be nil")
	}
}

func TestReadImageMissingIsNotFound(t *testing.T) {
	_, err := ReadImage(filepath.Join(t.TempDir(), "missing.json"))
	if !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("expected a NotFound error for missing file, got %v", err)
	}
}

func TestUpdateContainerStatePreservesOtherFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")

	c := NewContainer()
	c.ID = "abc123"
	c.Name = "alpine-deadbeef"
	c.Config.Cmd = []string{"/bin/sh"}
	c.State.Status = "created"
	if err := WriteContainer(path, &c); err != nil {
		t.Fatalf("WriteContainer: %v", err)
	}

	updated, err := UpdateContainerState(path, func(st *State) {
		st.Status = "running"
		st.Running = true
		st.StartedAt = "2026-01-01T00:00:00.000Z"
	})
	if err != nil {
		t.Fatalf("UpdateContainerState: %v", err)
	}

	if updated.State.Status != "running" || !updated.State.Running {
		t.Errorf("state not updated: %+v", updated.State)
	}
	if updated.Name != "alpine-deadbeef" || updated.ID != "abc123" {
		t.Errorf("unrelated fields were not preserved: %+v", updated)
	}
	if len(updated.Config.Cmd) != 1 || updated.Config.Cmd[0] != "/bin/sh" {
		t.Errorf("Config.Cmd was not preserved: %+v", updated.Config)
	}
}

func TestWriteAtomicLeavesNoTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")
	if err := WriteAtomic(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if _, err := ReadImage(path); err != nil {
		// not an Image shape, but the file must at least exist and parse as JSON
		t.Errorf("ReadImage after WriteAtomic: %v", err)
	}
	entries := mustReadDir(t, dir)
	for _, e := range entries {
		if filepath.Ext(e) == ".tmp" {
			t.Errorf("found leftover tmp file %q after successful write", e)
		}
	}
}

func mustReadDir(t *testing.T, dir string) []string {
	t.Helper()
	f, err := filepathGlob(dir)
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return f
}

func filepathGlob(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	return names, nil
}
