// Command proobox is the CLI entrypoint wiring pull/image/run/ps/rm/start/
// stop/restart/build/push/exec/logs/config onto the supervisor, builder, and
// registry packages. File-per-subcommand and kong.Configuration layering
// follow the teacher's cmd/sand/main.go.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/octaviocubillos/proobox/container"
	"github.com/octaviocubillos/proobox/errkind"
	"github.com/octaviocubillos/proobox/imagestore"
	"github.com/octaviocubillos/proobox/layercache"
	"github.com/octaviocubillos/proobox/paths"
	"github.com/octaviocubillos/proobox/registry"
	"github.com/octaviocubillos/proobox/tracer"
)

// Context carries the wired services every subcommand's Run receives.
type Context struct {
	Layout     *paths.Layout
	Cache      *layercache.Cache
	Images     *imagestore.Store
	Supervisor *container.Supervisor
	Registry   *registry.Client
	Tracer     *tracer.Invoker
	User       string
}

// CLI is the top-level kong command tree.
type CLI struct {
	DataDir  string `default:"" placeholder:"<dir>" help:"data directory root (default ~/.proobox)"`
	LogLevel string `default:"info" placeholder:"<debug|info|warn|error>" help:"the logging level"`
	Tracer   string `default:"" placeholder:"<binary>" help:"tracer binary name or path (default prootracer)"`
	User     string `default:"" placeholder:"<user>" help:"registry username for pull/push"`

	Pull    PullCmd    `cmd:"" help:"pull an image from the local store, user registry, or upstream mirror"`
	Image   ImageCmd   `cmd:"" help:"manage local images"`
	Run     RunCmd     `cmd:"" help:"create and start a container from an image"`
	Start   StartCmd   `cmd:"" help:"start a stopped container"`
	Stop    StopCmd    `cmd:"" help:"stop a running container"`
	Restart RestartCmd `cmd:"" help:"restart a container"`
	Exec    ExecCmd    `cmd:"" help:"execute a command in a running container"`
	Logs    LogsCmd    `cmd:"" help:"show container logs"`
	Ps      PsCmd      `cmd:"" help:"list containers"`
	Rm      RmCmd      `cmd:"" help:"remove one or more containers"`
	Build   BuildCmd   `cmd:"" help:"build an image from a recipe"`
	Push    PushCmd    `cmd:"" help:"push an image to the user registry"`
	Config  ConfigCmd  `cmd:"" help:"show or locate the registry configuration"`
	Version VersionCmd `cmd:"" help:"print version information"`
}

func initSlog(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Configuration(kong.JSON, filepath.Join(os.Getenv("HOME"), ".proobox.json")),
		kong.Description("Manage rootless linux container sandboxes via a user-mode path-translating tracer."))

	initSlog(cli.LogLevel)

	layout, err := paths.NewLayout(cli.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error resolving data directory: %v\n", err)
		os.Exit(1)
	}
	if err := layout.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "error preparing data directory: %v\n", err)
		os.Exit(1)
	}

	cache := layercache.New(layout)
	images := imagestore.New(layout, cache)
	inv := tracer.NewInvoker(cli.Tracer)
	sup := container.New(layout, images, inv, cache)

	cfg, err := registry.LoadConfig(layout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading registry config: %v\n", err)
		os.Exit(1)
	}
	reg := registry.New(layout, images, cfg)

	appCtx := &Context{
		Layout:     layout,
		Cache:      cache,
		Images:     images,
		Supervisor: sup,
		Registry:   reg,
		Tracer:     inv,
		User:       cli.User,
	}

	runErr := kctx.Run(appCtx)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(errkind.ExitCode(runErr))
	}
}
