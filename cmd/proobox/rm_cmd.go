package main

import (
	"context"
	"fmt"
)

// RmCmd implements `proobox rm`, per spec.md §4.7.
type RmCmd struct {
	Names  []string `arg:"" help:"container names to remove"`
	Force  bool     `short:"f" help:"stop the container first if running"`
	Volume bool     `short:"v" help:"also remove named volumes (reserved, no-op in this design)"`
}

func (c *RmCmd) Run(cctx *Context) error {
	if err := cctx.Supervisor.Rm(context.Background(), c.Names, c.Force, c.Volume); err != nil {
		return err
	}
	for _, n := range c.Names {
		fmt.Println(n)
	}
	return nil
}
