package main

import (
	"context"
	"fmt"
	"syscall"
	"time"
)

// StartCmd implements `proobox start`, per spec.md §4.7.
type StartCmd struct {
	Name string `arg:"" help:"container name"`
}

func (c *StartCmd) Run(cctx *Context) error {
	_, err := cctx.Supervisor.Start(context.Background(), c.Name)
	return err
}

// StopCmd implements `proobox stop`, per spec.md §4.7. The --all path uses
// container.Supervisor.StopAll, which fans out via errgroup.Group.
type StopCmd struct {
	Name    string        `arg:"" optional:"" help:"container name"`
	All     bool          `short:"a" help:"stop all running containers"`
	Timeout time.Duration `default:"10s" help:"grace period before escalating to KILL"`
}

func (c *StopCmd) Run(cctx *Context) error {
	ctx := context.Background()
	if c.All {
		stopped, err := cctx.Supervisor.StopAll(ctx, c.Timeout, syscall.SIGTERM)
		for _, name := range stopped {
			fmt.Println(name)
		}
		return err
	}
	if err := cctx.Supervisor.Stop(ctx, c.Name, c.Timeout, syscall.SIGTERM); err != nil {
		return err
	}
	fmt.Println(c.Name)
	return nil
}

// RestartCmd implements `proobox restart`, per spec.md §4.7.
type RestartCmd struct {
	Name    string        `arg:"" help:"container name"`
	Timeout time.Duration `default:"10s" help:"grace period before escalating to KILL"`
}

func (c *RestartCmd) Run(cctx *Context) error {
	_, err := cctx.Supervisor.Restart(context.Background(), c.Name, c.Timeout)
	return err
}
