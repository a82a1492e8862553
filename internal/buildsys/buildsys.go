// Package buildsys declares to the host build system which inputs force a
// regeneration, and records those inputs so a driver (Makefile, CI step)
// can ask whether a rerun is needed.
//
// Directives are printed one per line:
//
//	lorrigen:rerun-if-env-changed=BUILD_REV_COUNT
//	lorrigen:rerun-if-changed=generate.go
package buildsys

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Prefix starts every directive line.
const Prefix = "lorrigen:"

// DirectiveKind selects what a directive watches.
type DirectiveKind string

const (
	RerunIfEnvChanged DirectiveKind = "rerun-if-env-changed"
	RerunIfChanged    DirectiveKind = "rerun-if-changed"
)

// Directive is one rebuild trigger.
type Directive struct {
	Kind DirectiveKind
	// Target is an environment variable name or a file path.
	Target string
}

func (d Directive) String() string {
	return Prefix + string(d.Kind) + "=" + d.Target
}

// EnvChanged returns a trigger on the named variable.
func EnvChanged(name string) Directive {
	return Directive{Kind: RerunIfEnvChanged, Target: name}
}

// FileChanged returns a trigger on the file at path.
func FileChanged(path string) Directive {
	return Directive{Kind: RerunIfChanged, Target: path}
}

// Triggers builds the directive set for a run: one per variable, then the
// generator script.
func Triggers(envVars []string, script string) []Directive {
	ds := make([]Directive, 0, len(envVars)+1)
	for _, name := range envVars {
		ds = append(ds, EnvChanged(name))
	}
	if script != "" {
		ds = append(ds, FileChanged(script))
	}
	return ds
}

// Emit writes ds to w, one per line.
func Emit(w io.Writer, ds []Directive) error {
	for _, d := range ds {
		if _, err := fmt.Fprintln(w, d.String()); err != nil {
			return fmt.Errorf("emitting %s: %w", d, err)
		}
	}
	return nil
}

// MissingFiles returns the targets of file triggers that do not exist. A
// trigger on a missing file never fires, so callers should warn about them.
func MissingFiles(ds []Directive) []string {
	var missing []string
	for _, d := range ds {
		if d.Kind != RerunIfChanged {
			continue
		}
		if _, err := os.Stat(d.Target); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, d.Target)
		}
	}
	return missing
}

// ScriptPath returns the path of the file that invoked the generator.
// Under go generate that is $GOFILE in the package directory; otherwise
// fallback is used.
func ScriptPath(lookup func(string) (string, bool), fallback string) string {
	if gofile, ok := lookup("GOFILE"); ok && gofile != "" {
		if wd, err := os.Getwd(); err == nil {
			return filepath.Join(wd, gofile)
		}
		return gofile
	}
	return fallback
}
