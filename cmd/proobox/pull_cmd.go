package main

import (
	"context"
	"fmt"

	"github.com/octaviocubillos/proobox/paths"
)

// PullCmd implements `proobox pull`, per spec.md §4.5's three-tier fallback.
type PullCmd struct {
	Ref  string `arg:"" help:"image reference, e.g. alpine or alpine:3.19"`
	Arch string `default:"" placeholder:"<arch>" help:"target architecture (default: host)"`
}

func (c *PullCmd) Run(cctx *Context) error {
	ctx := context.Background()
	repo, version := paths.SplitTag(c.Ref)
	arch := c.Arch
	if arch == "" {
		a, err := paths.MapArchitecture("")
		if err != nil {
			return err
		}
		arch = a
	}

	img, err := cctx.Registry.Pull(ctx, cctx.User, repo, version, arch)
	if err != nil {
		return err
	}
	fmt.Printf("pulled %s:%s (%s)\n", repo, version, paths.ShortID(img.ID, 12))
	return nil
}
