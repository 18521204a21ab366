package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/octaviocubillos/proobox/container"
	"github.com/octaviocubillos/proobox/paths"
)

// PsCmd implements `proobox ps`, per spec.md §4.7.
type PsCmd struct {
	All    bool `short:"a" help:"include stopped containers"`
	Quiet  bool `short:"q" help:"only display container ids"`
	Latest bool `short:"l" help:"show only the most recently started container"`
	Last   int  `default:"0" help:"show the last N containers (0 = no limit)"`
	Size   bool `short:"s" help:"display rootfs size"`
}

func (c *PsCmd) Run(cctx *Context) error {
	rows, err := cctx.Supervisor.Ps(context.Background(), container.PsOpts{
		All:    c.All,
		Quiet:  c.Quiet,
		Latest: c.Latest,
		Last:   c.Last,
		Size:   c.Size,
	})
	if err != nil {
		return err
	}

	if c.Quiet {
		for _, r := range rows {
			fmt.Println(paths.ShortID(r.ID, 12))
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := "CONTAINER ID\tNAME\tIMAGE\tCOMMAND\tSTATUS"
	if c.Size {
		header += "\tSIZE"
	}
	fmt.Fprintln(w, header)
	for _, r := range rows {
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s", paths.ShortID(r.ID, 12), r.Name, r.Image, truncate(r.Command, 20), r.Status)
		if c.Size {
			line += fmt.Sprintf("\t%d", r.Size)
		}
		fmt.Fprintln(w, line)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
