// Package container implements the supervisor of spec.md §4.7: the
// created/running/exited state machine, run/start/stop/restart/exec/logs/ps/rm
// operations, and the process-table liveness rule. Grounded on the teacher's
// ContainerSvc (containers.go), which exposes the same List/Inspect/Run/Exec/
// Stop/Delete surface over a single external binary; here the binary is the
// tracer rather than Apple's `container` CLI, and the state is a metadata.json
// file this package owns outright instead of server-side container state.
package container

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/octaviocubillos/proobox/errkind"
	"github.com/octaviocubillos/proobox/imagestore"
	"github.com/octaviocubillos/proobox/layercache"
	"github.com/octaviocubillos/proobox/metadata"
	"github.com/octaviocubillos/proobox/paths"
	"github.com/octaviocubillos/proobox/rootfs"
	"github.com/octaviocubillos/proobox/tracer"
	"github.com/octaviocubillos/proobox/tracer/argv"
)

// Supervisor owns the containers/ directory and the tracer invoker.
type Supervisor struct {
	Layout  *paths.Layout
	Images  *imagestore.Store
	Tracer  *tracer.Invoker
	Cache   *layercache.Cache
	HostTmp string // directory bound to every container's /tmp
}

func New(layout *paths.Layout, images *imagestore.Store, inv *tracer.Invoker, cache *layercache.Cache) *Supervisor {
	return &Supervisor{Layout: layout, Images: images, Tracer: inv, Cache: cache, HostTmp: os.TempDir()}
}

// RunOpts captures run's inputs, per spec.md §4.7.
type RunOpts struct {
	Name        string
	Detach      bool
	Interactive bool
	TTY         bool
	AutoRemove  bool
	Env         []string
	Volumes     []string
	Command     []string
	WorkDir     string
}

// Run implements run(image, opts) → container_id, per spec.md §4.7.
func (s *Supervisor) Run(ctx context.Context, imageRef string, opts RunOpts) (*metadata.Container, error) {
	if opts.Detach && (opts.Interactive || opts.TTY) {
		return nil, errkind.New("container.Run", errkind.Invalid, "detach and interactive/tty are mutually exclusive")
	}

	repo, version := paths.SplitTag(imageRef)
	img, err := s.Images.Get(repo, paths.NormalizeVersion(version))
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name, err = paths.GeneratedName(repo)
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(s.Layout.ContainerDir(name)); err == nil {
		return nil, errkind.New("container.Run", errkind.AlreadyExists, fmt.Sprintf("container %q already exists", name))
	}

	id, err := paths.NewContainerID()
	if err != nil {
		return nil, err
	}

	distro := detectDistro(repo)
	rootfsDir := s.Layout.ContainerRootfs(name)
	if err := rootfs.Assemble(ctx, s.Layout.ImageArtifactPath(repo, paths.NormalizeVersion(version)), imgCacheTag(repo, version), rootfsDir, s.Cache); err != nil {
		return nil, errkind.Wrap("container.Run", errkind.ExtractFailed, err)
	}

	binds, err := parseBinds(opts.Volumes)
	if err != nil {
		return nil, errkind.Wrap("container.Run", errkind.Invalid, err)
	}

	cmd := opts.Command
	if len(cmd) == 0 {
		cmd = img.ContainerConfig.Cmd
	}
	workdir := opts.WorkDir
	if workdir == "" {
		workdir = img.ContainerConfig.WorkingDir
	}

	c := metadata.NewContainer()
	c.ID = id
	c.Name = name
	c.Image = metadata.ImageRef{Name: repo + ":" + version, ID: img.ID}
	c.Config.Hostname = name
	c.Config.Env = append(append([]string{}, img.ContainerConfig.Env...), opts.Env...)
	c.Config.Cmd = cmd
	c.Config.Image = repo + ":" + version
	c.Config.WorkingDir = workdir
	c.HostConfig.Binds = bindStrings(binds)
	c.HostConfig.AutoRemove = opts.AutoRemove
	c.State.DetachedOriginal = opts.Detach
	c.State.InteractiveOriginal = opts.Interactive
	c.State.Status = "created"
	c.Paths.RootfsPath = rootfsDir
	c.Paths.ImagePath = s.Layout.ImageArtifactPath(repo, paths.NormalizeVersion(version))

	if err := metadata.WriteContainer(s.Layout.ContainerMetadataPath(name), &c); err != nil {
		return nil, err
	}

	opt := argv.Options{
		Rootfs:      rootfsDir,
		Distro:      distro,
		HostTmp:     s.HostTmp,
		UserBinds:   binds,
		WorkDir:     workdir,
		KillOnExit:  true,
		ImageEnv:    img.ContainerConfig.Env,
		ExtraEnv:    extraEnvMap(opts.Env),
		Command:     cmd,
		Interactive: opts.Interactive,
		TTY:         opts.TTY,
	}
	env := argv.BuildEnv(opt, os.Getenv("TERM"))

	if opts.Detach {
		return s.runDetached(ctx, &c, opt, env)
	}
	return s.runForeground(ctx, &c, opt, env)
}

func (s *Supervisor) runForeground(ctx context.Context, c *metadata.Container, opt argv.Options, env []string) (*metadata.Container, error) {
	spec := tracer.Spec{Options: opt, Env: env, Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
	c.State.Status = "running"
	c.State.Running = true
	c.State.StartedAt = paths.ISOTimestamp()
	if err := metadata.WriteContainer(s.Layout.ContainerMetadataPath(c.Name), c); err != nil {
		return nil, err
	}

	var exitCode int
	var runErr error
	if opt.TTY || opt.Interactive {
		wait, err := s.Tracer.StartPTY(ctx, spec)
		if err != nil {
			return nil, errkind.Wrap("container.Run", errkind.SpawnFailed, err)
		}
		runErr = wait()
		exitCode = tracer.ExitCodeOf(runErr)
	} else {
		exitCode, runErr = s.Tracer.Run(ctx, spec)
		if exitCode == -1 && runErr != nil {
			return nil, errkind.Wrap("container.Run", errkind.SpawnFailed, runErr)
		}
	}

	return s.finishRun(c, exitCode)
}

func (s *Supervisor) runDetached(ctx context.Context, c *metadata.Container, opt argv.Options, env []string) (*metadata.Container, error) {
	logPath := s.Layout.ContainerLogPath(c.Name)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errkind.Wrap("container.Run", errkind.SpawnFailed, err)
	}
	spec := tracer.Spec{Options: opt, Env: env, Stdout: logFile, Stderr: logFile}
	cmd, err := s.Tracer.Start(ctx, spec)
	logFile.Close()
	if err != nil {
		return nil, errkind.Wrap("container.Run", errkind.SpawnFailed, err)
	}

	c.State.Status = "running"
	c.State.Running = true
	c.State.StartedAt = paths.ISOTimestamp()
	c.Paths.LogFile = &logPath
	if err := metadata.WriteContainer(s.Layout.ContainerMetadataPath(c.Name), c); err != nil {
		return nil, err
	}

	go func() {
		exitCode := tracer.ExitCodeOf(cmd.Wait())
		if _, err := s.finishRun(c, exitCode); err != nil {
			slog.Error("container.Run: detached finish failed", "name", c.Name, "error", err)
		}
	}()
	return c, nil
}

func (s *Supervisor) finishRun(c *metadata.Container, exitCode int) (*metadata.Container, error) {
	updated, err := metadata.UpdateContainerState(s.Layout.ContainerMetadataPath(c.Name), func(st *metadata.State) {
		st.Status = "exited"
		st.Running = false
		st.FinishedAt = paths.ISOTimestamp()
		st.ExitCode = exitCode
	})
	if err != nil {
		return nil, err
	}
	if updated.HostConfig.AutoRemove {
		if err := s.Rm(context.Background(), []string{updated.Name}, true, false); err != nil {
			slog.Error("container.Run: auto-remove failed", "name", updated.Name, "error", err)
		}
	}
	return updated, nil
}

// Start implements start(name), per spec.md §4.7: only from exited, rebuilds
// the argument vector from stored metadata and re-invokes the tracer.
func (s *Supervisor) Start(ctx context.Context, name string) (*metadata.Container, error) {
	c, err := metadata.ReadContainer(s.Layout.ContainerMetadataPath(name))
	if err != nil {
		return nil, err
	}
	if c.State.Status != "exited" {
		return nil, errkind.New("container.Start", errkind.Invalid, fmt.Sprintf("container %q is %s, not exited", name, c.State.Status))
	}

	binds, err := parseBindStrings(c.HostConfig.Binds)
	if err != nil {
		return nil, errkind.Wrap("container.Start", errkind.Invalid, err)
	}
	opt := argv.Options{
		Rootfs:      c.Paths.RootfsPath,
		Distro:      detectDistro(strings.SplitN(c.Image.Name, ":", 2)[0]),
		HostTmp:     s.HostTmp,
		UserBinds:   binds,
		WorkDir:     c.Config.WorkingDir,
		KillOnExit:  true,
		ImageEnv:    c.Config.Env,
		Command:     c.Config.Cmd,
		Interactive: c.State.InteractiveOriginal,
		TTY:         c.State.InteractiveOriginal,
	}
	env := argv.BuildEnv(opt, os.Getenv("TERM"))

	if c.State.DetachedOriginal {
		return s.runDetached(ctx, c, opt, env)
	}
	return s.runForeground(ctx, c, opt, env)
}

// Stop implements stop(name, timeout, signal), per spec.md §4.7: sends sig,
// waits up to timeout, then always escalates to SIGKILL and waits one more
// second before reporting StopFailed. There is no separate force mode.
func (s *Supervisor) Stop(ctx context.Context, name string, timeout time.Duration, sig syscall.Signal) error {
	c, err := metadata.ReadContainer(s.Layout.ContainerMetadataPath(name))
	if err != nil {
		return err
	}
	if err := s.Tracer.Signal(ctx, c.Paths.RootfsPath, sig); err != nil {
		return errkind.Wrap("container.Stop", errkind.StopFailed, err)
	}

	if waitUntilStopped(ctx, s.Tracer, c.Paths.RootfsPath, timeout) {
		return s.markStopped(name)
	}

	if err := s.Tracer.Signal(ctx, c.Paths.RootfsPath, syscall.SIGKILL); err != nil {
		return errkind.Wrap("container.Stop", errkind.StopFailed, err)
	}
	if waitUntilStopped(ctx, s.Tracer, c.Paths.RootfsPath, time.Second) {
		return s.markStopped(name)
	}
	return errkind.New("container.Stop", errkind.StopFailed, fmt.Sprintf("container %q did not stop", name))
}

func (s *Supervisor) markStopped(name string) error {
	_, err := metadata.UpdateContainerState(s.Layout.ContainerMetadataPath(name), func(st *metadata.State) {
		st.Status = "exited"
		st.Running = false
		st.FinishedAt = paths.ISOTimestamp()
	})
	return err
}

func waitUntilStopped(ctx context.Context, inv *tracer.Invoker, rootfsDir string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, err := inv.IsRunning(ctx, rootfsDir)
		if err == nil && !running {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	running, err := inv.IsRunning(ctx, rootfsDir)
	return err == nil && !running
}

// StopAll stops every currently running container, fanning the per-container
// stop out across an errgroup.Group rather than the teacher's hand-rolled
// sync.WaitGroup+error-channel pattern, and returns the names stopped
// successfully alongside the first error encountered, if any.
func (s *Supervisor) StopAll(ctx context.Context, timeout time.Duration, sig syscall.Signal) ([]string, error) {
	rows, err := s.Ps(ctx, PsOpts{All: true})
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var stopped []string
	g, gctx := errgroup.WithContext(ctx)
	for _, row := range rows {
		row := row
		if !row.Running {
			continue
		}
		g.Go(func() error {
			if err := s.Stop(gctx, row.Name, timeout, sig); err != nil {
				return err
			}
			mu.Lock()
			stopped = append(stopped, row.Name)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	sort.Strings(stopped)
	return stopped, err
}

// Restart implements restart(name, timeout), per spec.md §4.7: Stop with
// SIGTERM (escalating to SIGKILL after timeout), ignoring a StopFailed
// result, then Start.
func (s *Supervisor) Restart(ctx context.Context, name string, timeout time.Duration) (*metadata.Container, error) {
	if err := s.Stop(ctx, name, timeout, syscall.SIGTERM); err != nil && errkind.KindOf(err) != errkind.StopFailed {
		return nil, err
	}
	return s.Start(ctx, name)
}

// ExecOpts mirrors RunOpts for exec(name, cmd, opts), per spec.md §4.7.
type ExecOpts struct {
	Interactive bool
	TTY         bool
	Detach      bool
	User        string
	WorkDir     string
	Env         []string
}

// Exec implements exec(name, cmd, opts), per spec.md §4.7. Requires running;
// --user other than root is advisory only.
func (s *Supervisor) Exec(ctx context.Context, name string, cmd []string, opts ExecOpts) (int, error) {
	c, err := metadata.ReadContainer(s.Layout.ContainerMetadataPath(name))
	if err != nil {
		return -1, err
	}
	if c.State.Status != "running" {
		return -1, errkind.New("container.Exec", errkind.Invalid, fmt.Sprintf("container %q is not running", name))
	}
	if opts.User != "" && opts.User != "root" {
		slog.WarnContext(ctx, "container.Exec: --user is advisory, only root is directly supported", "user", opts.User)
	}

	binds, err := parseBindStrings(c.HostConfig.Binds)
	if err != nil {
		return -1, errkind.Wrap("container.Exec", errkind.Invalid, err)
	}
	workdir := opts.WorkDir
	if workdir == "" {
		workdir = c.Config.WorkingDir
	}
	opt := argv.Options{
		Rootfs:      c.Paths.RootfsPath,
		Distro:      detectDistro(strings.SplitN(c.Image.Name, ":", 2)[0]),
		HostTmp:     s.HostTmp,
		UserBinds:   binds,
		WorkDir:     workdir,
		ImageEnv:    c.Config.Env,
		ExtraEnv:    extraEnvMap(opts.Env),
		Command:     cmd,
		Interactive: opts.Interactive,
		TTY:         opts.TTY,
	}
	env := argv.BuildEnv(opt, os.Getenv("TERM"))

	if opts.Detach {
		logPath := filepath.Join(s.Layout.ContainerDir(name), fmt.Sprintf("exec-%s.log", strings.ReplaceAll(paths.ISOTimestamp(), ":", "")))
		f, err := os.Create(logPath)
		if err != nil {
			return -1, errkind.Wrap("container.Exec", errkind.SpawnFailed, err)
		}
		defer f.Close()
		cmdHandle, err := s.Tracer.Start(ctx, tracer.Spec{Options: opt, Env: env, Stdout: f, Stderr: f})
		if err != nil {
			return -1, errkind.Wrap("container.Exec", errkind.SpawnFailed, err)
		}
		go cmdHandle.Wait()
		return 0, nil
	}

	spec := tracer.Spec{Options: opt, Env: env, Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
	if opts.TTY || opts.Interactive {
		wait, err := s.Tracer.StartPTY(ctx, spec)
		if err != nil {
			return -1, errkind.Wrap("container.Exec", errkind.SpawnFailed, err)
		}
		return tracer.ExitCodeOf(wait()), nil
	}
	return s.Tracer.Run(ctx, spec)
}

// LogsOpts captures logs(name, ...), per spec.md §4.7.
type LogsOpts struct {
	Follow     bool
	Since      string
	Until      string
	Tail       int
	Timestamps bool
	Details    bool
}

// Logs implements logs(name, opts), per spec.md §4.7. since/until apply a
// lexicographic prefix filter over ISO-8601 log lines, a documented
// limitation rather than a timestamp parse.
func (s *Supervisor) Logs(ctx context.Context, name string, opts LogsOpts, w io.Writer) error {
	if opts.Details {
		c, err := metadata.ReadContainer(s.Layout.ContainerMetadataPath(name))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%+v\n", c)
		return nil
	}

	c, err := metadata.ReadContainer(s.Layout.ContainerMetadataPath(name))
	if err != nil {
		return err
	}
	if c.Paths.LogFile == nil {
		return errkind.New("container.Logs", errkind.NotFound, fmt.Sprintf("container %q has no log file (was it run in the foreground?)", name))
	}

	lines, err := readFilteredLines(*c.Paths.LogFile, opts)
	if err != nil {
		return errkind.Wrap("container.Logs", errkind.NotFound, err)
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}

	if opts.Follow {
		return followFile(ctx, *c.Paths.LogFile, w)
	}
	return nil
}

func readFilteredLines(path string, opts LogsOpts) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if opts.Since != "" && line < opts.Since {
			continue
		}
		if opts.Until != "" && line > opts.Until && !strings.HasPrefix(line, opts.Until) {
			continue
		}
		all = append(all, line)
	}
	if opts.Tail > 0 && len(all) > opts.Tail {
		all = all[len(all)-opts.Tail:]
	}
	return all, nil
}

func followFile(ctx context.Context, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	reader := bufio.NewReader(f)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			fmt.Fprint(w, line)
		}
		if err == io.EOF {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
	}
}

// PsOpts captures ps(...), per spec.md §4.7.
type PsOpts struct {
	All    bool
	Quiet  bool
	Latest bool
	Last   int
	Size   bool
}

// PsRow is one reconciled row of ps output.
type PsRow struct {
	ID        string
	Name      string
	Image     string
	Command   string
	Status    string
	Running   bool
	StartedAt string
	Size      int64
}

// Ps implements ps(opts), per spec.md §4.7: enumerates containers, joins
// stored metadata with process-table liveness, sorts by StartedAt descending.
func (s *Supervisor) Ps(ctx context.Context, opts PsOpts) ([]PsRow, error) {
	entries, err := os.ReadDir(s.Layout.ContainersDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.Wrap("container.Ps", errkind.MetadataMalformed, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}

	var rows []PsRow
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			row, ok, err := s.reconcileRow(gctx, name, opts)
			if err != nil {
				slog.WarnContext(gctx, "container.Ps: skipping unreadable container", "name", name, "error", err)
				return nil
			}
			if !ok {
				return nil
			}
			mu.Lock()
			rows = append(rows, row)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].StartedAt > rows[j].StartedAt })

	if !opts.All {
		var filtered []PsRow
		for _, r := range rows {
			if r.Running {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if opts.Latest && len(rows) > 1 {
		rows = rows[:1]
	}
	if opts.Last > 0 && len(rows) > opts.Last {
		rows = rows[:opts.Last]
	}
	return rows, nil
}

func (s *Supervisor) reconcileRow(ctx context.Context, name string, opts PsOpts) (PsRow, bool, error) {
	c, err := metadata.ReadContainer(s.Layout.ContainerMetadataPath(name))
	if err != nil {
		return PsRow{}, false, err
	}
	running, err := s.Tracer.IsRunning(ctx, c.Paths.RootfsPath)
	if err != nil {
		running = c.State.Running
	}
	if running != c.State.Running {
		c, err = metadata.UpdateContainerState(s.Layout.ContainerMetadataPath(name), func(st *metadata.State) {
			st.Running = running
			if running {
				st.Status = "running"
			} else if st.Status == "running" {
				st.Status = "exited"
				st.FinishedAt = paths.ISOTimestamp()
			}
		})
		if err != nil {
			return PsRow{}, false, err
		}
	}

	row := PsRow{
		ID:        c.ID,
		Name:      c.Name,
		Image:     c.Image.Name,
		Command:   strings.Join(c.Config.Cmd, " "),
		Status:    c.State.Status,
		Running:   c.State.Running,
		StartedAt: c.State.StartedAt,
	}
	if opts.Size {
		row.Size = dirSize(c.Paths.RootfsPath)
	}
	return row, true, nil
}

func dirSize(root string) int64 {
	var total int64
	filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Rm implements rm(names..., force, volume), per spec.md §4.7.
func (s *Supervisor) Rm(ctx context.Context, names []string, force, _ bool) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return s.rmOne(gctx, name, force)
		})
	}
	return g.Wait()
}

func (s *Supervisor) rmOne(ctx context.Context, name string, force bool) error {
	metaPath := s.Layout.ContainerMetadataPath(name)
	c, err := metadata.ReadContainer(metaPath)
	if err != nil {
		return err
	}
	running, _ := s.Tracer.IsRunning(ctx, c.Paths.RootfsPath)
	if running {
		if !force {
			return errkind.New("container.Rm", errkind.InUse, fmt.Sprintf("container %q is running", name))
		}
		if err := s.Stop(ctx, name, 10*time.Second, syscall.SIGTERM); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(s.Layout.ContainerDir(name)); err != nil {
		return errkind.Wrap("container.Rm", errkind.MetadataWriteFailed, err)
	}
	return nil
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

func imgCacheTag(repo, version string) string {
	return repo + ":" + paths.NormalizeVersion(version)
}

func parseBinds(specs []string) ([]argv.Bind, error) {
	var binds []argv.Bind
	for _, spec := range specs {
		b, err := argv.ParseBind(spec)
		if err != nil {
			return nil, err
		}
		binds = append(binds, b)
	}
	return binds, nil
}

func parseBindStrings(specs []string) ([]argv.Bind, error) {
	var binds []argv.Bind
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) < 2 {
			continue
		}
		b := argv.Bind{Source: parts[0], Target: parts[1]}
		if len(parts) == 3 && parts[2] == "ro" {
			b.ReadOnly = true
		}
		binds = append(binds, b)
	}
	return binds, nil
}

func bindStrings(binds []argv.Bind) []string {
	out := make([]string, 0, len(binds))
	for _, b := range binds {
		out = append(out, b.String())
	}
	return out
}

func extraEnvMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		i := strings.Index(kv, "=")
		if i < 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	return m
}
