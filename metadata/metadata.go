// Package metadata implements the image and container metadata JSON schemas
// from spec.md §4.2, plus the atomic write protocol: serialize to a sibling
// *.tmp file, rename into place, falling back to copy+unlink if rename fails
// across devices. This generalizes the teacher's SaveSandbox/UpdateContainerID
// pattern (boxer.go) — which persisted to sqlite via sqlc — into a strongly
// typed record written directly as the source-of-truth JSON file the spec
// requires, since the spec treats the JSON file itself as canonical rather
// than a database index over it.
package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/octaviocubillos/proobox/errkind"
)

// ImageConfig is the Image entity's container-default fields (§3).
type ImageConfig struct {
	Cmd        []string `json:"Cmd,omitempty"`
	WorkingDir string   `json:"WorkingDir"`
	Entrypoint []string `json:"Entrypoint"`
	Env        []string `json:"Env"`
}

// ImagePaths is the Image entity's on-disk location.
type ImagePaths struct {
	ImagePath string `json:"ImagePath"`
}

// Image is the bit-exact image metadata schema from spec.md §4.2.
type Image struct {
	ID               string      `json:"Id"`
	RepoTags         []string    `json:"RepoTags"`
	Created          string      `json:"Created"`
	Size             int64       `json:"Size"`
	VirtualSize      string      `json:"VirtualSize"`
	ContainerConfig  ImageConfig `json:"ContainerConfig"`
	Os               string      `json:"Os"`
	Architecture     string      `json:"Architecture"`
	Paths            ImagePaths  `json:"Paths"`
}

// State is the Container entity's runtime state block.
type State struct {
	Status              string `json:"Status"`
	Running             bool   `json:"Running"`
	DetachedOriginal    bool   `json:"DetachedOriginal"`
	InteractiveOriginal bool   `json:"InteractiveOriginal"`
	StartedAt           string `json:"StartedAt"`
	FinishedAt          string `json:"FinishedAt"`
	ExitCode            int    `json:"ExitCode"`
}

// ImageRef is the Container entity's reference to its source image.
type ImageRef struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

// Healthcheck is always absent (null) in this design; kept as a typed nil-able
// placeholder so the JSON shape matches spec.md exactly.
type Healthcheck struct{}

// Config is the Container entity's launch configuration.
type Config struct {
	Hostname     string       `json:"Hostname"`
	Domainname   string       `json:"Domainname"`
	User         string       `json:"User"`
	Env          []string     `json:"Env"`
	Cmd          []string     `json:"Cmd"`
	Image        string       `json:"Image"`
	WorkingDir   string       `json:"WorkingDir"`
	Entrypoint   []string     `json:"Entrypoint"`
	Healthcheck  *Healthcheck `json:"Healthcheck"`
}

// HostConfig is the Container entity's host configuration.
type HostConfig struct {
	Binds      []string `json:"Binds"`
	AutoRemove bool     `json:"AutoRemove"`
}

// NetworkSettings is always empty in this design, per spec.md §3.
type NetworkSettings struct {
	IPAddress string            `json:"IPAddress"`
	Ports     map[string]string `json:"Ports"`
}

// ContainerPaths is the Container entity's filesystem locations.
type ContainerPaths struct {
	RootfsPath string  `json:"RootfsPath"`
	LogFile    *string `json:"LogFile"`
	ImagePath  string  `json:"ImagePath"`
}

// Container is the bit-exact container metadata schema from spec.md §4.2.
type Container struct {
	ID              string          `json:"Id"`
	Name            string          `json:"Name"`
	Image           ImageRef        `json:"Image"`
	State           State           `json:"State"`
	Config          Config          `json:"Config"`
	HostConfig      HostConfig      `json:"HostConfig"`
	Mounts          []string        `json:"Mounts"`
	NetworkSettings NetworkSettings `json:"NetworkSettings"`
	Paths           ContainerPaths  `json:"Paths"`
}

// NewImage fills in the defaults spec.md §4.2 requires parsers to apply:
// absent/null Cmd, WorkingDir defaulting to /root, Env defaulting to empty.
func NewImage() Image {
	return Image{
		ContainerConfig: ImageConfig{
			WorkingDir: "/root",
			Env:        []string{},
		},
	}
}

// NewContainer fills in the Container entity's fixed defaults from spec.md §3.
func NewContainer() Container {
	return Container{
		Config: Config{
			Domainname: "",
			User:       "root",
			Env:        []string{},
		},
		NetworkSettings: NetworkSettings{
			IPAddress: "",
			Ports:     map[string]string{},
		},
	}
}

// WriteAtomic serializes v as indented JSON to path via a sibling *.tmp file
// and an atomic rename, falling back to copy+unlink if the rename fails
// (e.g. across devices), per spec.md §4.2 and §4.9's MetadataWriteFailed row.
func WriteAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errkind.Wrap("metadata.WriteAtomic", errkind.MetadataWriteFailed, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errkind.Wrap("metadata.WriteAtomic", errkind.MetadataWriteFailed, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return errkind.Wrap("metadata.WriteAtomic", errkind.MetadataWriteFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if copyErr := copyAndUnlink(tmp, path); copyErr != nil {
			return errkind.Wrap("metadata.WriteAtomic", errkind.MetadataWriteFailed,
				fmt.Errorf("rename failed (%v) and copy+unlink fallback failed (%v), leaving %s", err, copyErr, tmp))
		}
	}
	return nil
}

func copyAndUnlink(tmp, dst string) error {
	src, err := os.Open(tmp)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(tmp)
}

// ReadImage reads and parses an Image metadata file.
func ReadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.Wrap("metadata.ReadImage", errkind.NotFound, err)
		}
		return nil, errkind.Wrap("metadata.ReadImage", errkind.MetadataMalformed, err)
	}
	img := NewImage()
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, errkind.Wrap("metadata.ReadImage", errkind.MetadataMalformed, err)
	}
	if img.ContainerConfig.WorkingDir == "" {
		img.ContainerConfig.WorkingDir = "/root"
	}
	if img.ContainerConfig.Env == nil {
		img.ContainerConfig.Env = []string{}
	}
	return &img, nil
}

// WriteImage atomically writes an Image metadata file.
func WriteImage(path string, img *Image) error {
	return WriteAtomic(path, img)
}

// ReadContainer reads and parses a Container metadata file.
func ReadContainer(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.Wrap("metadata.ReadContainer", errkind.NotFound, err)
		}
		return nil, errkind.Wrap("metadata.ReadContainer", errkind.MetadataMalformed, err)
	}
	c := NewContainer()
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errkind.Wrap("metadata.ReadContainer", errkind.MetadataMalformed, err)
	}
	return &c, nil
}

// WriteContainer atomically writes a Container metadata file.
func WriteContainer(path string, c *Container) error {
	return WriteAtomic(path, c)
}

// UpdateContainerState reads, applies fn to the State block, and atomically
// rewrites the container metadata, preserving every other field — the
// "modify only the named fields" rule of spec.md §4.2.
func UpdateContainerState(path string, fn func(*State)) (*Container, error) {
	c, err := ReadContainer(path)
	if err != nil {
		return nil, err
	}
	fn(&c.State)
	if err := WriteContainer(path, c); err != nil {
		return nil, err
	}
	return c, nil
}
