package main

import "fmt"

// ConfigCmd groups the config helpers added in the expanded design: showing
// the resolved backend configuration and locating the data directory, since
// a real deployment needs a quick way to confirm what config.json is
// actually being read without needing to hand-cat it.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" help:"print the resolved backend configuration"`
	Path ConfigPathCmd `cmd:"" help:"print the data directory and config file paths"`
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(cctx *Context) error {
	if !cctx.Registry.Config.Configured() {
		fmt.Println("no backend configured")
		return nil
	}
	fmt.Printf("backend.url:      %s\n", cctx.Registry.Config.Backend.URL)
	fmt.Printf("backend.username: %s\n", cctx.Registry.Config.Backend.Username)
	if cctx.Registry.Config.Backend.Token != "" {
		fmt.Println("backend.token:    (set)")
	} else {
		fmt.Println("backend.token:    (unset)")
	}
	return nil
}

type ConfigPathCmd struct{}

func (c *ConfigPathCmd) Run(cctx *Context) error {
	fmt.Println(cctx.Layout.Base)
	fmt.Println(cctx.Layout.ConfigPath())
	return nil
}
