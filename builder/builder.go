package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/octaviocubillos/proobox/errkind"
	"github.com/octaviocubillos/proobox/imagestore"
	"github.com/octaviocubillos/proobox/layercache"
	"github.com/octaviocubillos/proobox/metadata"
	"github.com/octaviocubillos/proobox/paths"
	"github.com/octaviocubillos/proobox/rootfs"
	"github.com/octaviocubillos/proobox/tracer"
	"github.com/octaviocubillos/proobox/tracer/argv"
)

// Builder runs recipe builds against a tracer, a layer cache, and an image store.
type Builder struct {
	Layout  *paths.Layout
	Images  *imagestore.Store
	Cache   *layercache.Cache
	Tracer  *tracer.Invoker
	HostTmp string
}

func New(layout *paths.Layout, images *imagestore.Store, cache *layercache.Cache, inv *tracer.Invoker) *Builder {
	return &Builder{Layout: layout, Images: images, Cache: cache, Tracer: inv, HostTmp: os.TempDir()}
}

// Options captures a Build invocation's inputs.
type Options struct {
	RecipePath string
	ContextDir string
	Repo       string
	Version    string
}

type buildState struct {
	workdir string
	env     []string
	cmd     []string
	distro  argv.Distro
}

// Build implements the recipe build of spec.md §4.8: cache-keyed step
// execution, step log capture, and final image emission.
func (b *Builder) Build(ctx context.Context, opts Options, progress io.Writer) (*metadata.Image, error) {
	directives, err := ParseRecipe(opts.RecipePath)
	if err != nil {
		return nil, errkind.Wrap("builder.Build", errkind.BuildFailed, err)
	}
	fromDirective := directives[0]
	steps := directives[1:]
	total := len(steps)

	baseRepo, baseVersion := paths.SplitTag(fromDirective.Args)
	baseImg, err := b.Images.Get(baseRepo, paths.NormalizeVersion(baseVersion))
	if err != nil {
		return nil, err
	}

	buildName := "build-" + must(paths.GeneratedName(opts.Repo))
	buildDir := b.Layout.ContainerDir(buildName)
	rootfsDir := b.Layout.ContainerRootfs(buildName)
	defer os.RemoveAll(buildDir)

	if err := rootfs.Assemble(ctx, b.Layout.ImageArtifactPath(baseRepo, paths.NormalizeVersion(baseVersion)),
		baseRepo+":"+paths.NormalizeVersion(baseVersion), rootfsDir, b.Cache); err != nil {
		return nil, errkind.Wrap("builder.Build", errkind.BuildFailed, err)
	}

	st := &buildState{
		workdir: baseImg.ContainerConfig.WorkingDir,
		env:     append([]string{}, baseImg.ContainerConfig.Env...),
		cmd:     append([]string{}, baseImg.ContainerConfig.Cmd...),
		distro:  detectDistro(baseRepo),
	}

	layerKey := layercache.FromLayerKey(baseRepo + ":" + paths.NormalizeVersion(baseVersion))

	for i, d := range steps {
		n := i + 1
		start := time.Now()
		cached, err := b.runStep(ctx, buildName, rootfsDir, opts.ContextDir, d, st, &layerKey)
		elapsed := time.Since(start).Seconds()
		marker := ""
		if cached {
			marker = " CACHED"
		}
		fmt.Fprintf(progress, "[%d/%d] %s %s%s (%.1fs)\n", n, total, d.Kind, d.Args, marker, elapsed)
		if err != nil {
			if d.Kind == Run {
				logPath := b.Layout.ContainerStepLog(buildName, stepCounterFromLog(b.Layout, buildName)-1)
				if data, rerr := os.ReadFile(logPath); rerr == nil {
					fmt.Fprintf(progress, "--- step %d log ---\n%s\n", n, data)
				}
			}
			return nil, errkind.Wrap("builder.Build", errkind.BuildFailed, fmt.Errorf("step %d (%s %s): %w", n, d.Kind, d.Args, err))
		}
	}

	return b.emit(ctx, opts, rootfsDir, st)
}

// runStep executes a single directive, handling cache lookup/fill for RUN and
// COPY steps (which change the rootfs) and direct state updates for
// WORKDIR/ENV/CMD (which don't), per spec.md §4.3/§4.8.
func (b *Builder) runStep(ctx context.Context, buildName, rootfsDir, contextDir string, d Directive, st *buildState, layerKey *string) (cached bool, err error) {
	switch d.Kind {
	case Workdir:
		st.workdir = d.Args
		return false, nil
	case Env:
		kv, err := ParseEnv(d.Args)
		if err != nil {
			return false, err
		}
		st.env = append(st.env, kv)
		return false, nil
	case Cmd:
		cmd, err := ParseCmdJSON(d.Args)
		if err != nil {
			return false, err
		}
		st.cmd = cmd
		return false, nil
	case Run:
		key := layercache.RunStepKey(d.Raw)
		combined := layercache.StepKey(*layerKey, key)
		hit, err := b.materializeOrExecute(ctx, combined, rootfsDir, func() error {
			return b.execRun(ctx, buildName, rootfsDir, d.Args, st)
		})
		*layerKey = combined
		return hit, err
	case Copy:
		src, dst, err := ParseCopy(d.Args)
		if err != nil {
			return false, err
		}
		srcPath := contextDir + "/" + src
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return false, fmt.Errorf("COPY source %q not found in context: %w", src, err)
		}
		key := layercache.CopyStepKey(d.Raw, data)
		combined := layercache.StepKey(*layerKey, key)
		hit, err := b.materializeOrExecute(ctx, combined, rootfsDir, func() error {
			return b.execCopy(ctx, rootfsDir, contextDir, src, dst)
		})
		*layerKey = combined
		return hit, err
	default:
		return false, nil
	}
}

// materializeOrExecute checks the cache for key; on hit it copies the cached
// snapshot into rootfsDir and skips execution, on miss it runs fn and fills
// the cache with the resulting rootfsDir, per spec.md §4.3.
func (b *Builder) materializeOrExecute(ctx context.Context, key, rootfsDir string, fn func() error) (cached bool, err error) {
	if _, ok := b.Cache.Lookup(key); ok {
		if err := os.RemoveAll(rootfsDir); err != nil {
			return false, err
		}
		if err := b.Cache.CopyInto(ctx, key, rootfsDir); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := fn(); err != nil {
		return false, err
	}
	if err := b.Cache.Fill(ctx, key, rootfsDir); err != nil {
		slog.WarnContext(ctx, "builder: cache fill failed (non-fatal)", "key", key, "error", err)
	}
	return false, nil
}

func (b *Builder) execRun(ctx context.Context, buildName, rootfsDir, shellCmd string, st *buildState) error {
	n := stepCounterFromLog(b.Layout, buildName)
	logPath := b.Layout.ContainerStepLog(buildName, n)
	f, err := os.Create(logPath)
	if err != nil {
		return err
	}
	defer f.Close()

	opt := argv.Options{
		Rootfs:   rootfsDir,
		Distro:   st.distro,
		HostTmp:  b.HostTmp,
		WorkDir:  st.workdir,
		ImageEnv: st.env,
		Command:  append(argv.ShellCmd(st.distro), shellCmd),
	}
	env := argv.BuildEnv(opt, os.Getenv("TERM"))
	exitCode, err := b.Tracer.Run(ctx, tracer.Spec{Options: opt, Env: env, Stdout: f, Stderr: f})
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("RUN exited with status %d", exitCode)
	}
	return nil
}

func (b *Builder) execCopy(ctx context.Context, rootfsDir, contextDir, src, dst string) error {
	opt := argv.Options{
		Rootfs:  rootfsDir,
		HostTmp: b.HostTmp,
		UserBinds: []argv.Bind{
			{Source: contextDir, Target: "/host_build_context", ReadOnly: true},
		},
		WorkDir: "/root",
		Command: []string{"cp", "-a", "/host_build_context/" + src, dst},
	}
	env := argv.BuildEnv(opt, os.Getenv("TERM"))
	exitCode, err := b.Tracer.Run(ctx, tracer.Spec{Options: opt, Env: env, Stdout: os.Stdout, Stderr: os.Stderr})
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("COPY %s -> %s exited with status %d", src, dst, exitCode)
	}
	return nil
}

// emit tars+gzips the build rootfs and writes image metadata, per spec.md §4.8.
func (b *Builder) emit(ctx context.Context, opts Options, rootfsDir string, st *buildState) (*metadata.Image, error) {
	version := paths.NormalizeVersion(opts.Version)
	artifactPath := b.Layout.ImageArtifactPath(opts.Repo, version)
	if err := os.MkdirAll(b.Layout.ImagesDir(), 0o750); err != nil {
		return nil, errkind.Wrap("builder.emit", errkind.MetadataWriteFailed, err)
	}
	if err := rootfs.CreateArchive(ctx, rootfsDir, artifactPath); err != nil {
		return nil, errkind.Wrap("builder.emit", errkind.BuildFailed, err)
	}

	id, err := imagestore.HashArtifactFile(artifactPath)
	if err != nil {
		return nil, errkind.Wrap("builder.emit", errkind.BuildFailed, err)
	}

	virtualSize, err := layercache.HashDir(rootfsDir)
	if err != nil {
		return nil, errkind.Wrap("builder.emit", errkind.BuildFailed, err)
	}

	img := metadata.NewImage()
	img.ID = id
	img.RepoTags = []string{opts.Repo + ":" + version}
	img.Created = paths.ISOTimestamp()
	img.VirtualSize = virtualSize
	img.ContainerConfig.Cmd = st.cmd
	img.ContainerConfig.WorkingDir = workdirOrDefault(st.workdir)
	img.ContainerConfig.Env = st.env
	img.Paths.ImagePath = artifactPath
	if info, err := os.Stat(artifactPath); err == nil {
		img.Size = info.Size()
	}

	if err := metadata.WriteImage(b.Layout.ImageMetadataPath(opts.Repo, version), &img); err != nil {
		return nil, err
	}
	return &img, nil
}

func workdirOrDefault(w string) string {
	if w == "" {
		return "/root"
	}
	return w
}

func detectDistro(repo string) argv.Distro {
	switch strings.ToLower(repo) {
	case "alpine":
		return argv.Alpine
	case "ubuntu":
		return argv.Ubuntu
	default:
		return argv.Unknown
	}
}

func must(s string, err error) string {
	if err != nil {
		return "build"
	}
	return s
}

// stepCounterFromLog picks the next unused step_<N>.log index for buildName.
// Each RUN step that executes writes its output to the next such index, so
// N counts executed RUN steps; COPY and cached steps write no log.
func stepCounterFromLog(layout *paths.Layout, buildName string) int {
	n := 1
	for {
		if _, err := os.Stat(layout.ContainerStepLog(buildName, n)); os.IsNotExist(err) {
			return n
		}
		n++
	}
}
