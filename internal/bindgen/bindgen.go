// Package bindgen turns the daemon's varlink interface definition into Go
// client and server bindings. Each backend (the builtin varlink renderer,
// an external generator binary) implements the Generator interface so the
// pipeline does not care which one produced the file.
//
// Bindings land in the source tree, not in the build output directory:
//
//	<source_dir>/<pkg>/<pkg>.go
//
// where <pkg> is the interface name with the dots removed, so
// com.target.lorri becomes internal/comtargetlorri/comtargetlorri.go. They are
// derived files and every run overwrites them.
package bindgen

import (
	"context"
	"strings"
)

// DefaultIDLPath is the interface definition describing the daemon's IPC
// surface.
const DefaultIDLPath = "idl/com.target.lorri.varlink"

// Backend names accepted by configuration.
const (
	BackendBuiltin = "builtin"
	BackendExec    = "exec"
)

// Request describes one generation.
type Request struct {
	// IDLPath is the varlink interface definition file.
	IDLPath string
	// SourceDir is the root below which the generator places its output.
	SourceDir string
	// Formatted asks for gofmt-formatted output.
	Formatted bool
}

// Result reports what a generator wrote.
type Result struct {
	// Interface is the fully qualified varlink interface name, when known.
	Interface string
	// Path is the file written, when the backend reports it.
	Path string
}

// Generator is the contract every binding backend satisfies.
//
// Generate writes its output as a side effect. Any failure (unreadable or
// malformed IDL, unwritable output) is returned and aborts the build; a
// backend never leaves a partially written file behind on purpose, but it
// also does not restore a previous one.
type Generator interface {
	// Name identifies the backend in logs and errors.
	Name() string

	Generate(ctx context.Context, req Request) (*Result, error)
}

// PackageName derives the Go package name from a varlink interface name.
func PackageName(iface string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(iface) {
		if r == '.' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
