// Package builder implements the recipe-driven image build of spec.md §4.8:
// a small FROM/RUN/COPY/WORKDIR/ENV/CMD directive language, cache-keyed step
// execution against the tracer, and final image emission. The step-by-step
// progress rendering and per-step log capture follow the teacher's
// ImagesSvc.Pull streaming-progress idiom (applecontainer/images.go).
package builder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DirectiveKind is one recognized recipe directive.
type DirectiveKind string

const (
	From    DirectiveKind = "FROM"
	Run     DirectiveKind = "RUN"
	Copy    DirectiveKind = "COPY"
	Workdir DirectiveKind = "WORKDIR"
	Env     DirectiveKind = "ENV"
	Cmd     DirectiveKind = "CMD"
	unknown DirectiveKind = ""
)

// Directive is one parsed recipe line, with continuations already joined.
type Directive struct {
	Kind DirectiveKind
	Args string
	Raw  string // the full "KIND args" line, used as the step hash input
	Line int
}

// ParseRecipe reads a recipe file, joining trailing-backslash continuations
// and dropping blank/comment lines, per spec.md §4.8. The first non-comment
// non-empty line must be FROM.
func ParseRecipe(path string) ([]Directive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipe: %w", err)
	}
	defer f.Close()

	var directives []Directive
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending string
	lineNo := 0
	startLine := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)

		if pending == "" {
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			startLine = lineNo
		}

		if strings.HasSuffix(trimmed, "\\") {
			pending += strings.TrimSuffix(trimmed, "\\") + " "
			continue
		}
		full := strings.TrimSpace(pending + trimmed)
		pending = ""

		d, err := parseLine(full, startLine)
		if err != nil {
			return nil, err
		}
		if d.Kind == unknown {
			fmt.Fprintf(os.Stderr, "warning: recipe line %d: unrecognized directive %q, ignoring\n", startLine, full)
			continue
		}
		directives = append(directives, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	if len(directives) == 0 || directives[0].Kind != From {
		return nil, fmt.Errorf("recipe must begin with FROM")
	}
	return directives, nil
}

func parseLine(line string, lineNo int) (Directive, error) {
	parts := strings.SplitN(line, " ", 2)
	kindWord := strings.ToUpper(parts[0])
	args := ""
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	switch DirectiveKind(kindWord) {
	case From, Run, Copy, Workdir, Env, Cmd:
		return Directive{Kind: DirectiveKind(kindWord), Args: args, Raw: line, Line: lineNo}, nil
	default:
		return Directive{Kind: unknown, Args: args, Raw: line, Line: lineNo}, nil
	}
}

// ParseCmdJSON parses a CMD directive's JSON array argument, per spec.md §4.8.
func ParseCmdJSON(args string) ([]string, error) {
	var cmd []string
	if err := json.Unmarshal([]byte(args), &cmd); err != nil {
		return nil, fmt.Errorf("CMD must be a JSON array: %w", err)
	}
	return cmd, nil
}

// ParseEnv parses an ENV directive's "KEY=VALUE" or "KEY VALUE" form, per
// spec.md §4.8.
func ParseEnv(args string) (string, error) {
	if i := strings.Index(args, "="); i > 0 {
		return args, nil
	}
	parts := strings.SplitN(args, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("ENV requires KEY=VALUE or KEY VALUE, got %q", args)
	}
	return parts[0] + "=" + strings.TrimSpace(parts[1]), nil
}

// ParseCopy splits a COPY directive's "<src> <dst>" argument.
func ParseCopy(args string) (src, dst string, err error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("COPY requires exactly <src> <dst>, got %q", args)
	}
	return parts[0], parts[1], nil
}
