package main

import (
	"context"
	"os"

	"github.com/octaviocubillos/proobox/container"
)

// ExecCmd implements `proobox exec`, per spec.md §4.7.
type ExecCmd struct {
	Name        string   `arg:"" help:"container name"`
	Command     []string `arg:"" help:"command to execute"`
	Interactive bool     `short:"i" help:"keep stdin open"`
	TTY         bool     `short:"t" help:"allocate a pseudo-terminal"`
	Detach      bool     `short:"d" help:"run detached, logging to exec-<timestamp>.log"`
	User        string   `default:"" help:"advisory identity; only root is directly supported"`
	Workdir     string   `default:"" help:"working directory override"`
	Env         []string `short:"e" help:"environment variable KEY=VALUE (repeatable)"`
}

func (c *ExecCmd) Run(cctx *Context) error {
	ctx := context.Background()
	exitCode, err := cctx.Supervisor.Exec(ctx, c.Name, c.Command, container.ExecOpts{
		Interactive: c.Interactive,
		TTY:         c.TTY,
		Detach:      c.Detach,
		User:        c.User,
		WorkDir:     c.Workdir,
		Env:         c.Env,
	})
	if err != nil {
		return err
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}
