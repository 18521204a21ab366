package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/octaviocubillos/proobox/paths"
)

// ImageCmd groups the image store operations of spec.md §4.4.
type ImageCmd struct {
	Ls  ImageLsCmd  `cmd:"" help:"list local images"`
	Rm  ImageRmCmd  `cmd:"" help:"remove a local image"`
	Tag ImageTagCmd `cmd:"" help:"tag a local image with a new version"`
}

type ImageLsCmd struct {
	Quiet bool `short:"q" help:"only display image ids"`
}

func (c *ImageLsCmd) Run(cctx *Context) error {
	entries, err := cctx.Images.List()
	if err != nil {
		return err
	}

	if c.Quiet {
		for _, e := range entries {
			fmt.Println(paths.ShortID(e.Image.ID, 12))
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tVERSION\tIMAGE ID\tCREATED\tVIRTUAL SIZE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Repo, e.Version, paths.ShortID(e.Image.ID, 12), e.Image.Created, e.Image.VirtualSize)
	}
	return w.Flush()
}

type ImageRmCmd struct {
	Ref   string `arg:"" help:"image reference or short id"`
	Force bool   `short:"f" help:"no-op; image removal is always immediate (no running-image concept to force past)"`
}

func (c *ImageRmCmd) Run(cctx *Context) error {
	repo, version, err := cctx.Images.Resolve(c.Ref)
	if err != nil {
		return err
	}
	if err := cctx.Images.Remove(repo, version); err != nil {
		return err
	}
	fmt.Printf("removed %s:%s\n", repo, version)
	return nil
}

type ImageTagCmd struct {
	Ref        string `arg:"" help:"source image reference or short id"`
	NewVersion string `arg:"" help:"new version to tag with"`
}

func (c *ImageTagCmd) Run(cctx *Context) error {
	repo, version, err := cctx.Images.Resolve(c.Ref)
	if err != nil {
		return err
	}
	if err := cctx.Images.Tag(repo, version, c.NewVersion); err != nil {
		return err
	}
	fmt.Printf("tagged %s:%s as %s:%s\n", repo, version, repo, c.NewVersion)
	return nil
}
