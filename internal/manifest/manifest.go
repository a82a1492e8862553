// Package manifest reads the project manifest and exposes its package
// fields the way a host build system hands them to build steps: as
// PKG_* environment variables.
package manifest

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/semver"

	"github.com/terrpan/lorrigen/internal/builderr"
)

// DefaultPath is the manifest location relative to the project root.
const DefaultPath = "project.toml"

// Variables projected by Lookup.
const (
	EnvName         = "PKG_NAME"
	EnvVersion      = "PKG_VERSION"
	EnvVersionMajor = "PKG_VERSION_MAJOR"
	EnvVersionMinor = "PKG_VERSION_MINOR"
	EnvVersionPatch = "PKG_VERSION_PATCH"
)

// Package is the [package] table of the manifest.
type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Manifest is the parsed project manifest.
type Manifest struct {
	Package Package `toml:"package"`

	path string
	vars map[string]string
}

// Load reads the manifest at path. A missing file is not an error: the
// returned Manifest projects nothing, so consumers report the version
// variables as missing.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Manifest{path: path, vars: map[string]string{}}, nil
		}
		return nil, builderr.IO(path, err)
	}
	return Parse(path, data)
}

// Parse decodes manifest data read from path.
func Parse(path string, data []byte) (*Manifest, error) {
	m := &Manifest{path: path}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, &builderr.Error{Kind: builderr.MalformedConfiguration, Subject: path, Err: err}
	}

	vars, err := m.project()
	if err != nil {
		return nil, err
	}
	m.vars = vars
	return m, nil
}

// Path returns the file the manifest was loaded from.
func (m *Manifest) Path() string { return m.path }

// Lookup returns the host-supplied value of key. It has the signature of
// os.LookupEnv so it can be chained behind the process environment.
func (m *Manifest) Lookup(key string) (string, bool) {
	v, ok := m.vars[key]
	return v, ok
}

func (m *Manifest) project() (map[string]string, error) {
	vars := map[string]string{}
	if name := strings.TrimSpace(m.Package.Name); name != "" {
		vars[EnvName] = name
	}

	raw := strings.TrimSpace(m.Package.Version)
	if raw == "" {
		return vars, nil
	}

	major, minor, patch, err := splitVersion(raw)
	if err != nil {
		return nil, builderr.Malformed(m.path+": package.version", raw, err)
	}
	vars[EnvVersion] = strings.TrimPrefix(raw, "v")
	vars[EnvVersionMajor] = major
	vars[EnvVersionMinor] = minor
	vars[EnvVersionPatch] = patch
	return vars, nil
}

// splitVersion validates a semantic version (leading "v" optional) and
// returns its numeric components.
func splitVersion(raw string) (major, minor, patch string, err error) {
	v := raw
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", "", "", errors.New("not a semantic version")
	}

	// Canonical fills in shorthand ("v1.5" -> "v1.5.0") and drops build
	// metadata.
	core := semver.Canonical(v)
	core = strings.TrimSuffix(core, semver.Prerelease(core))
	parts := strings.SplitN(strings.TrimPrefix(core, "v"), ".", 3)
	return parts[0], parts[1], parts[2], nil
}
