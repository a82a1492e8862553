// Package buildenv reads and validates the build-time variables that end up
// in the generated constants file.
package buildenv

import (
	"errors"
	"strconv"

	"github.com/terrpan/lorrigen/internal/builderr"
	"github.com/terrpan/lorrigen/internal/buildmeta"
	"github.com/terrpan/lorrigen/internal/manifest"
)

// Variables read by Read. BUILD_REV_COUNT and RUN_TIME_CLOSURE are exported
// by the nix-shell; the version components come from the project manifest.
const (
	RevCount       = "BUILD_REV_COUNT"
	RuntimeClosure = "RUN_TIME_CLOSURE"
	VersionMajor   = manifest.EnvVersionMajor
	VersionMinor   = manifest.EnvVersionMinor
)

// ShellHint is the remediation for variables exported by the nix-shell.
const ShellHint = "please reload nix-shell"

// Triggers lists the variables whose change must force regeneration.
var Triggers = []string{RevCount, RuntimeClosure}

// Lookup has the signature of os.LookupEnv.
type Lookup func(key string) (string, bool)

// Chain returns a Lookup that consults each lookup in order and returns the
// first hit.
func Chain(lookups ...Lookup) Lookup {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v, ok := l(key); ok {
				return v, true
			}
		}
		return "", false
	}
}

// Reader validates build variables from an environment.
type Reader struct {
	lookup Lookup
	// manifestHint is the remediation for missing version components.
	manifestHint string
}

// NewReader creates a Reader. manifestPath is only used in messages.
func NewReader(lookup Lookup, manifestPath string) *Reader {
	if manifestPath == "" {
		manifestPath = manifest.DefaultPath
	}
	return &Reader{
		lookup:       lookup,
		manifestHint: "set [package].version in " + manifestPath,
	}
}

// Read returns validated metadata. Variables are checked in a fixed order
// and the first failure is returned.
func (r *Reader) Read() (buildmeta.Metadata, error) {
	var m buildmeta.Metadata
	var err error

	if m.RevisionCount, err = r.unsigned(RevCount, ShellHint); err != nil {
		return buildmeta.Metadata{}, err
	}
	if m.RuntimeClosure, err = r.closure(); err != nil {
		return buildmeta.Metadata{}, err
	}
	if m.VersionMajor, err = r.unsigned(VersionMajor, r.manifestHint); err != nil {
		return buildmeta.Metadata{}, err
	}
	if m.VersionMinor, err = r.unsigned(VersionMinor, r.manifestHint); err != nil {
		return buildmeta.Metadata{}, err
	}
	return m, nil
}

func (r *Reader) unsigned(name, hint string) (uint64, error) {
	raw, ok := r.lookup(name)
	if !ok {
		return 0, builderr.Missing(name, hint)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, builderr.Malformed(name, raw, unwrapNumError(err))
	}
	return n, nil
}

// closure is accepted as any non-empty string. Whether it points at an
// existing store path is the daemon's concern at run time.
func (r *Reader) closure() (string, error) {
	raw, ok := r.lookup(RuntimeClosure)
	if !ok {
		return "", builderr.Missing(RuntimeClosure, ShellHint)
	}
	if raw == "" {
		return "", builderr.Malformed(RuntimeClosure, raw, errors.New("empty path"))
	}
	return raw, nil
}

// unwrapNumError drops strconv's repetition of the function name and input.
func unwrapNumError(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return ne.Err
	}
	return err
}
