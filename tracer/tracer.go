// Package tracer invokes the path-translating tracer binary with the
// deterministic argument vector from package argv, and implements the
// process-table liveness scan from spec.md §4.7. The exec plumbing (pty
// allocation, Setpgid, stdio wiring) is grounded directly on the teacher's
// ContainerSvc.Run/Exec (containers.go) and ImagesSvc.Pull
// (applecontainer/images.go), which shell out to an external `container`
// binary the same way this shells out to the tracer binary.
package tracer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/octaviocubillos/proobox/tracer/argv"
)

// DefaultBinary is the tracer binary name used when none is configured.
// Per spec.md §9, any equivalent user-mode path-translating tracer satisfies
// the contract; this is just the default PATH lookup name.
const DefaultBinary = "prootracer"

// Invoker shells out to the tracer binary.
type Invoker struct {
	Binary string
}

func NewInvoker(binary string) *Invoker {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Invoker{Binary: binary}
}

// Spec is everything needed to start one tracer invocation.
type Spec struct {
	Options argv.Options
	Env     []string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// Start launches the tracer process and returns immediately with the
// *exec.Cmd so the caller can Wait() (foreground) or discard it (detached).
// This mirrors the teacher's ContainerSvc.Run, which starts the `container
// run` child and returns cmd.Wait for the caller to block on.
func (in *Invoker) Start(ctx context.Context, s Spec) (*exec.Cmd, error) {
	args := argv.BuildArgv(s.Options)
	cmd := exec.CommandContext(ctx, in.Binary, args...)
	slog.InfoContext(ctx, "tracer.Start", "cmd", strings.Join(cmd.Args, " "))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = s.Env
	cmd.Stdin = s.Stdin
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn tracer: %w", err)
	}
	return cmd, nil
}

// StartPTY launches the tracer process attached to a pseudo-terminal when
// stdin is not itself a real terminal, mirroring the teacher's
// ContainerSvc.Exec pty fallback (containers.go). Returns a wait function.
func (in *Invoker) StartPTY(ctx context.Context, s Spec) (wait func() error, err error) {
	args := argv.BuildArgv(s.Options)
	cmd := exec.CommandContext(ctx, in.Binary, args...)
	slog.InfoContext(ctx, "tracer.StartPTY", "cmd", strings.Join(cmd.Args, " "))
	cmd.Env = s.Env

	if f, ok := s.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Stdin = s.Stdin
		cmd.Stdout = s.Stdout
		cmd.Stderr = s.Stderr
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("spawn tracer: %w", err)
		}
		return cmd.Wait, nil
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("spawn tracer under pty: %w", err)
	}
	go io.Copy(ptmx, s.Stdin)
	go io.Copy(s.Stdout, ptmx)
	go io.Copy(s.Stderr, ptmx)

	return func() error {
		err := cmd.Wait()
		ptmx.Close()
		return err
	}, nil
}

// Run starts the tracer in the foreground and blocks until it exits,
// returning the observed exit code.
func (in *Invoker) Run(ctx context.Context, s Spec) (exitCode int, err error) {
	cmd, err := in.Start(ctx, s)
	if err != nil {
		return -1, err
	}
	err = cmd.Wait()
	return ExitCodeOf(err), nil
}

// ExitCodeOf extracts a process exit code from the error cmd.Wait() returns,
// treating a clean (nil) wait as exit code 0.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	for err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			*target = ee
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Process is one matched row from the host process table.
type Process struct {
	PID int
	Cmd string
}

// ListMatching enumerates host processes and returns those whose command
// line names the tracer binary and carries a "--root <rootfs>" argument,
// implementing the "enumerate_processes, match_by_rootfs_argument" Liveness
// capability of spec.md §9/§4.7. It never trusts a stored PID.
func (in *Invoker) ListMatching(ctx context.Context, rootfs string) ([]Process, error) {
	cmd := exec.CommandContext(ctx, "ps", "-eo", "pid=,args=")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("scan process table: %w", err)
	}
	var procs []Process
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		args := fields[1]
		if !strings.Contains(args, in.Binary) {
			continue
		}
		if !strings.Contains(args, "--root "+rootfs) && !strings.Contains(args, "--root \""+rootfs+"\"") {
			continue
		}
		var pid int
		if _, err := fmt.Sscanf(fields[0], "%d", &pid); err != nil {
			continue
		}
		procs = append(procs, Process{PID: pid, Cmd: args})
	}
	return procs, nil
}

// IsRunning reports whether any tracer process is rooted at rootfs.
func (in *Invoker) IsRunning(ctx context.Context, rootfs string) (bool, error) {
	procs, err := in.ListMatching(ctx, rootfs)
	if err != nil {
		return false, err
	}
	return len(procs) > 0, nil
}

// Signal sends sig to every tracer process rooted at rootfs.
func (in *Invoker) Signal(ctx context.Context, rootfs string, sig syscall.Signal) error {
	procs, err := in.ListMatching(ctx, rootfs)
	if err != nil {
		return err
	}
	for _, p := range procs {
		if err := syscall.Kill(p.PID, sig); err != nil && err != syscall.ESRCH {
			slog.ErrorContext(ctx, "tracer.Signal", "pid", p.PID, "signal", sig, "error", err)
		}
	}
	return nil
}
