// Package errkind defines the closed error taxonomy every proobox operation
// reports through. Callers compare with Is/KindOf against the Kinds;
// Wrap attaches a Kind to an underlying error without losing it (%w chains).
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy entries from the design's failure semantics table.
type Kind string

const (
	Invalid             Kind = "invalid"
	VersionRequired     Kind = "version_required"
	ArchUnsupported     Kind = "arch_unsupported"
	NotFound            Kind = "not_found"
	Ambiguous           Kind = "ambiguous"
	AlreadyExists       Kind = "already_exists"
	InUse               Kind = "in_use"
	NetworkFailed       Kind = "network_failed"
	ExtractFailed       Kind = "extract_failed"
	MetadataWriteFailed Kind = "metadata_write_failed"
	MetadataMalformed   Kind = "metadata_malformed"
	SpawnFailed         Kind = "spawn_failed"
	BuildFailed         Kind = "build_failed"
	StopFailed          Kind = "stop_failed"
)

// Error pairs a Kind with the underlying cause so the CLI layer can pick a
// distinct non-zero exit code while the rest of the code keeps using %w.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches kind to err under operation op. Wrap(op, kind, nil) returns nil.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New creates a Kind error whose cause is a plain error carrying msg.
func New(op string, kind Kind, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ExitCode maps a Kind to a CLI process exit code. Unknown/no kind is 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case Invalid, VersionRequired, ArchUnsupported:
		return 2
	case NotFound, Ambiguous, AlreadyExists, InUse:
		return 3
	case NetworkFailed, ExtractFailed, MetadataWriteFailed, MetadataMalformed:
		return 4
	case SpawnFailed, BuildFailed, StopFailed:
		return 5
	default:
		return 1
	}
}
