package main

import (
	"context"
	"fmt"
	"os"

	"github.com/octaviocubillos/proobox/builder"
	"github.com/octaviocubillos/proobox/paths"
)

// BuildCmd implements `proobox build`, per spec.md §4.8.
type BuildCmd struct {
	Recipe  string `default:"Recipefile" help:"path to the recipe file"`
	Context string `default:"." help:"build context directory"`
	Tag     string `arg:"" help:"repository:version to tag the built image as"`
}

func (c *BuildCmd) Run(cctx *Context) error {
	repo, version := paths.SplitTag(c.Tag)
	b := builder.New(cctx.Layout, cctx.Images, cctx.Cache, cctx.Tracer)
	img, err := b.Build(context.Background(), builder.Options{
		RecipePath: c.Recipe,
		ContextDir: c.Context,
		Repo:       repo,
		Version:    version,
	}, os.Stdout)
	if err != nil {
		return err
	}
	fmt.Printf("built %s:%s (%s)\n", repo, version, paths.ShortID(img.ID, 12))
	return nil
}
