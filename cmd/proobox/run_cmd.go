package main

import (
	"context"
	"fmt"

	"github.com/octaviocubillos/proobox/container"
)

// RunCmd implements `proobox run`, per spec.md §4.7's run operation.
type RunCmd struct {
	Image       string   `arg:"" help:"image reference to run"`
	Name        string   `default:"" help:"container name (default: generated)"`
	Detach      bool     `short:"d" help:"run detached, logging to container.log"`
	Interactive bool     `short:"i" help:"keep stdin open"`
	TTY         bool     `short:"t" help:"allocate a pseudo-terminal"`
	AutoRemove  bool     `help:"remove the container automatically when it exits"`
	Env         []string `short:"e" help:"environment variable KEY=VALUE (repeatable)"`
	Volume      []string `short:"v" help:"bind mount host:container[:ro] (repeatable)"`
	Workdir     string   `default:"" help:"working directory override"`
	Command     []string `arg:"" optional:"" help:"command to run instead of the image default"`
}

func (c *RunCmd) Run(cctx *Context) error {
	ctx := context.Background()
	res, err := cctx.Supervisor.Run(ctx, c.Image, container.RunOpts{
		Name:        c.Name,
		Detach:      c.Detach,
		Interactive: c.Interactive,
		TTY:         c.TTY,
		AutoRemove:  c.AutoRemove,
		Env:         c.Env,
		Volumes:     c.Volume,
		Command:     c.Command,
		WorkDir:     c.Workdir,
	})
	if err != nil {
		return err
	}
	if c.Detach {
		fmt.Println(res.Name)
	}
	return nil
}
