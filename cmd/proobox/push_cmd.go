package main

import (
	"context"
	"fmt"

	"github.com/octaviocubillos/proobox/paths"
)

// PushCmd implements `proobox push`, per spec.md §4.5.
type PushCmd struct {
	Ref string `arg:"" help:"image reference to push, e.g. myrepo:1.0"`
}

func (c *PushCmd) Run(cctx *Context) error {
	repo, version := paths.SplitTag(c.Ref)
	if err := cctx.Registry.Push(context.Background(), cctx.User, repo, version); err != nil {
		return err
	}
	fmt.Printf("pushed %s:%s\n", repo, version)
	return nil
}
