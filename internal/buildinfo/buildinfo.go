// Package buildinfo holds the generator's own build information. It is not
// the metadata lorrigen writes for the daemon; see buildmeta for that.
// These variables are injected at build time via -ldflags.
package buildinfo

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
)

var (
	// Version is the lorrigen release (e.g. "v0.3.0" or "dev").
	// Set via: -ldflags "-X github.com/terrpan/lorrigen/internal/buildinfo.Version=<value>"
	Version = "dev"

	// Commit is the git commit hash.
	// Set via: -ldflags "-X github.com/terrpan/lorrigen/internal/buildinfo.Commit=<value>"
	Commit = "unknown"

	// BuildTime is the build timestamp (RFC 3339).
	// Set via: -ldflags "-X github.com/terrpan/lorrigen/internal/buildinfo.BuildTime=<value>"
	BuildTime = "unknown"
)

// Info is the report printed by `lorrigen version`.
type Info struct {
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	BuildTime    string `json:"build_time"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
}

// Current returns the build information of the running binary.
func Current() Info {
	return Info{
		Version:      Version,
		Commit:       Commit,
		BuildTime:    BuildTime,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("lorrigen %s (commit %s, built %s, %s %s/%s)",
		i.Version, i.Commit, i.BuildTime, i.GoVersion, i.OS, i.Architecture)
}

// Write prints i to w, as JSON when asJSON is set.
func (i Info) Write(w io.Writer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(i)
	}
	_, err := fmt.Fprintln(w, i.String())
	return err
}
