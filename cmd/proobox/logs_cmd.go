package main

import (
	"context"
	"os"

	"github.com/octaviocubillos/proobox/container"
)

// LogsCmd implements `proobox logs`, per spec.md §4.7.
type LogsCmd struct {
	Name       string `arg:"" help:"container name"`
	Follow     bool   `short:"f" help:"stream new log output"`
	Since      string `default:"" help:"only show lines at or after this ISO-8601 prefix"`
	Until      string `default:"" help:"only show lines at or before this ISO-8601 prefix"`
	Tail       int    `default:"0" help:"only show the last N lines (0 = all)"`
	Timestamps bool   `help:"accepted but has no effect; lines are printed as stored, with no timestamp added"`
	Details    bool   `help:"print the full metadata record instead of log lines"`
}

func (c *LogsCmd) Run(cctx *Context) error {
	return cctx.Supervisor.Logs(context.Background(), c.Name, container.LogsOpts{
		Follow:     c.Follow,
		Since:      c.Since,
		Until:      c.Until,
		Tail:       c.Tail,
		Timestamps: c.Timestamps,
		Details:    c.Details,
	}, os.Stdout)
}
