// Package buildmeta renders build provenance into a Go source file that the
// daemon compiles in as constants.
package buildmeta

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	"github.com/terrpan/lorrigen/internal/builderr"
)

// DefaultFileName is the name of the generated constants file.
const DefaultFileName = "build_rev.go"

// DefaultPackage is used when the host does not designate a package name.
const DefaultPackage = "buildrev"

// Metadata is the validated input of one build. It is computed fresh on
// every build and never persisted.
type Metadata struct {
	VersionMajor  uint64
	VersionMinor  uint64
	RevisionCount uint64
	// RuntimeClosure is opaque and embedded as-is.
	RuntimeClosure string
}

// Version returns the MAJOR.MINOR version string.
func (m Metadata) Version() string {
	return strconv.FormatUint(m.VersionMajor, 10) + "." + strconv.FormatUint(m.VersionMinor, 10)
}

var constantsTmpl = template.Must(template.New("constants").Parse(`// Code generated by lorrigen. DO NOT EDIT.

package {{.Package}}

// LORRI_VERSION is the lorri version in MAJOR.MINOR format.
const LORRI_VERSION = {{.Version}}

// VERSION_BUILD_REV is the number of revisions in the Git tree.
const VERSION_BUILD_REV uint = {{.Revision}}

// RUN_TIME_CLOSURE points to the run-time closure parameters. It is a file
// generated by ./nix/runtime.nix in lorri's source.
const RUN_TIME_CLOSURE = {{.Closure}}
`))

// Render produces the constants file for m in package pkg. It performs no
// I/O; equal inputs give byte-identical output.
func Render(pkg string, m Metadata) ([]byte, error) {
	if pkg == "" {
		pkg = DefaultPackage
	}

	var buf bytes.Buffer
	err := constantsTmpl.Execute(&buf, struct {
		Package  string
		Version  string
		Revision string
		Closure  string
	}{
		Package:  pkg,
		Version:  strconv.Quote(m.Version()),
		Revision: strconv.FormatUint(m.RevisionCount, 10),
		Closure:  strconv.Quote(m.RuntimeClosure),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering constants: %w", err)
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting constants for package %q: %w", pkg, err)
	}
	return src, nil
}

// Write replaces dir/name with src and returns the path written. The build
// system owns dir, so a missing or read-only directory is reported as is.
func Write(dir, name string, src []byte) (string, error) {
	if name == "" {
		name = DefaultFileName
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return "", builderr.IO(path, err)
	}
	return path, nil
}
