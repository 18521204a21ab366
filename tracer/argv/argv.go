// Package argv builds the tracer argument vector and sanitized environment
// described in spec.md §4.7. It is the direct analogue of the teacher's
// options package (options/options.go): there the struct-tag-driven
// reflection turned Go structs into `container` CLI flags; here the same
// "declare the shape, derive the argv" idea builds the argument vector for
// *any* path-translating tracer binary, since spec.md §9 is explicit that the
// contract targets a class of tool, not one specific binary.
package argv

import (
	"fmt"
	"sort"
	"strings"
)

// Bind is a single host:container bind mount entry.
type Bind struct {
	Source   string
	Target   string
	ReadOnly bool
}

func (b Bind) String() string {
	if b.ReadOnly {
		return fmt.Sprintf("%s:%s:ro", b.Source, b.Target)
	}
	return fmt.Sprintf("%s:%s", b.Source, b.Target)
}

// ParseBind parses a CLI "-v host:container[:ro]" spec, per spec.md §4.7's
// "user-requested binds" rule.
func ParseBind(spec string) (Bind, error) {
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 2:
		return Bind{Source: parts[0], Target: parts[1]}, nil
	case 3:
		if parts[2] != "ro" {
			return Bind{}, fmt.Errorf("invalid bind spec %q: unknown option %q", spec, parts[2])
		}
		return Bind{Source: parts[0], Target: parts[1], ReadOnly: true}, nil
	default:
		return Bind{}, fmt.Errorf("invalid bind spec %q: want host:container[:ro]", spec)
	}
}

// Distro is the base image's distribution family, used to pick shims and
// default shells per spec.md §4.7.
type Distro string

const (
	Alpine  Distro = "alpine"
	Ubuntu  Distro = "ubuntu"
	Unknown Distro = ""
)

// DefaultShell returns the distro's default interactive shell command.
func DefaultShell(d Distro) []string {
	switch d {
	case Alpine:
		return []string{"/bin/sh"}
	case Ubuntu:
		return []string{"/bin/bash", "--login"}
	default:
		return nil
	}
}

// ShellCmd returns the distro's shell invocation used to run RUN directives.
func ShellCmd(d Distro) []string {
	switch d {
	case Alpine:
		return []string{"/bin/sh", "-c"}
	default:
		return []string{"/bin/bash", "-c"}
	}
}

// Options captures every input to the tracer argument vector from spec.md
// §4.7's "Tracer invocation contract".
type Options struct {
	Rootfs       string
	Distro       Distro
	HostTmp      string
	HostAppData  string
	HostRoot     string
	StorageRoots []string // /sdcard /storage /mnt, per §4.7
	UserBinds    []Bind
	WorkDir      string   // resolved: CLI --workdir, else image WorkingDir, else /root
	KillOnExit   bool
	ImageEnv     []string          // KEY=VALUE, applied after the base set
	ExtraEnv     map[string]string // CLI -e additions, applied last (later wins)
	Command      []string          // resolved: CLI command, image Cmd, or distro default shell
	Interactive  bool
	TTY          bool
}

// fixedBinds returns the always-present bind list from spec.md §4.7, in a
// deterministic order so the resulting argv is reproducible.
func (o Options) fixedBinds() []Bind {
	binds := []Bind{
		{Source: "/dev", Target: "/dev"},
		{Source: "/proc", Target: "/proc"},
		{Source: "/sys", Target: "/sys"},
	}
	if o.HostTmp != "" {
		binds = append(binds, Bind{Source: o.HostTmp, Target: "/tmp"})
	}
	if o.HostAppData != "" {
		binds = append(binds, Bind{Source: o.HostAppData, Target: o.HostAppData})
	}
	if o.HostRoot != "" {
		binds = append(binds, Bind{Source: o.HostRoot, Target: "/host-rootfs"})
	}
	roots := o.StorageRoots
	if roots == nil {
		roots = []string{"/sdcard", "/storage", "/mnt"}
	}
	for _, r := range roots {
		binds = append(binds, Bind{Source: r, Target: r})
	}
	return binds
}

// distroShimBinds returns the musl-libc shim binds for Alpine bases, per
// spec.md §4.7: `<rootfs>/bin/busybox` shimmed onto /bin/sh and /usr/bin/env.
func (o Options) distroShimBinds() []Bind {
	if o.Distro != Alpine {
		return nil
	}
	busybox := o.Rootfs + "/bin/busybox"
	return []Bind{
		{Source: busybox, Target: "/bin/sh"},
		{Source: busybox, Target: "/usr/bin/env"},
	}
}

// effectiveWorkDir applies the CLI > image > default precedence.
func (o Options) effectiveWorkDir() string {
	if o.WorkDir != "" {
		return o.WorkDir
	}
	return "/root"
}

// effectiveCommand applies the CLI > image > distro-default-shell precedence;
// the default shell only applies when Interactive is set, per spec.md §4.7.
func (o Options) effectiveCommand() []string {
	if len(o.Command) > 0 {
		return o.Command
	}
	if o.Interactive {
		return DefaultShell(o.Distro)
	}
	return nil
}

// BuildArgv constructs the deterministic tracer argument vector described in
// spec.md §4.7: mode flag, uid override, root redirection, bind list (fixed,
// then distro shim, then user binds), workdir, kill-on-exit, then "--" and the
// resolved command.
func BuildArgv(o Options) []string {
	args := []string{
		"--symlink-fidelity",
		"--uid", "0",
		"--root", o.Rootfs,
	}

	for _, b := range o.fixedBinds() {
		args = append(args, "--bind", b.String())
	}
	for _, b := range o.distroShimBinds() {
		args = append(args, "--bind", b.String())
	}
	for _, b := range o.UserBinds {
		args = append(args, "--bind", b.String())
	}

	args = append(args, "--workdir", o.effectiveWorkDir())

	if o.KillOnExit {
		args = append(args, "--kill-on-exit")
	}

	cmd := o.effectiveCommand()
	if len(cmd) > 0 {
		args = append(args, "--")
		args = append(args, cmd...)
	}
	return args
}

// baseEnv is the fixed base set from spec.md §4.7, before image/CLI env is
// layered on.
func baseEnv(term string) map[string]string {
	return map[string]string{
		"HOME": "/root",
		"PATH": "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		"TERM": term,
		"LANG": "C.UTF-8",
	}
}

// BuildEnv builds the sanitized environment passed to `env -i ...`: the fixed
// base set, then image Env, then CLI -e additions, later wins, per spec.md
// §4.7. Only TERM is inherited from the host; every other host variable,
// including any LD_PRELOAD-style loader-preload variable, is dropped before
// assembly, preventing host library injection into the guest.
func BuildEnv(o Options, hostTerm string) []string {
	env := baseEnv(hostTerm)
	for _, kv := range o.ImageEnv {
		k, v, ok := splitKV(kv)
		if ok {
			env[k] = v
		}
	}
	for k, v := range o.ExtraEnv {
		env[k] = v
	}
	delete(env, "LD_PRELOAD")
	delete(env, "DYLD_INSERT_LIBRARIES")

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func splitKV(s string) (k, v string, ok bool) {
	i := strings.Index(s, "=")
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}
