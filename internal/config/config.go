// Package config handles loading, validating, and applying
// configuration for lorrigen.  Configuration is read from an optional
// YAML file and can be overridden by CLI flags.  Inputs that the host
// build system provides (GOPACKAGE, GOFILE, OUT_DIR) are resolved here
// too, so the pipeline only sees final values.
package config

import (
	"fmt"
	"go/token"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/terrpan/lorrigen/internal/bindgen"
	"github.com/terrpan/lorrigen/internal/buildmeta"
	"github.com/terrpan/lorrigen/internal/buildsys"
	"github.com/terrpan/lorrigen/internal/manifest"
	"github.com/terrpan/lorrigen/internal/telemetry"
)

// Environment variables set by the host build system.
const (
	EnvOutDir    = "OUT_DIR"
	EnvGoPackage = "GOPACKAGE"
	EnvGoFile    = "GOFILE"
)

// ---------------------------------------------------------------------------
// Top-level config
// ---------------------------------------------------------------------------

// Config is the root configuration structure.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Bindings BindingsConfig `yaml:"bindings"`
	Logging  LoggingConfig  `yaml:"logging"`
	OTel     OTelConfig     `yaml:"otel"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// PathsConfig locates every input and output of a run.  Relative paths are
// relative to the working directory, which is the package directory under
// go generate.
type PathsConfig struct {
	// Manifest is the project manifest holding [package].version.
	// Default: "project.toml".
	Manifest string `yaml:"manifest"`

	// OutDir receives the constants file.  When empty, OUT_DIR is used,
	// then the working directory under go generate.
	OutDir string `yaml:"out_dir"`

	// ConstantsFile is the generated file name.  Default: "build_rev.go".
	ConstantsFile string `yaml:"constants_file"`

	// ConstantsPackage names the package of the constants file when
	// GOPACKAGE is not set.  Default: "buildrev".
	ConstantsPackage string `yaml:"constants_package"`

	// IDL is the varlink interface definition.
	// Default: "idl/com.target.lorri.varlink".
	IDL string `yaml:"idl"`

	// SourceDir is where bindings are written.  Default: "internal".
	SourceDir string `yaml:"source_dir"`

	// Script is the rerun trigger file when GOFILE is not set.
	// Default: "generate.go".
	Script string `yaml:"script"`

	// Stamp overrides the stamp location.  Default: "<out_dir>/.lorrigen.stamp".
	Stamp string `yaml:"stamp"`
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

// BindingsConfig selects and configures the binding generator.
type BindingsConfig struct {
	// Generator selects the backend: "builtin" or "exec".  Default: "builtin".
	Generator string `yaml:"generator"`

	// Command is the generator executable.  Only read when Generator == "exec".
	Command string `yaml:"command"`

	// Args are passed before the format flag and the IDL path.
	Args []string `yaml:"args"`

	// FormatFlag asks the exec generator for formatted output.
	// Default: "--format".
	FormatFlag string `yaml:"format_flag"`

	// Formatted requests gofmt-formatted bindings.  Default: true.  Use a
	// *bool so "not set" can be told apart from an explicit false.
	Formatted *bool `yaml:"formatted"`
}

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

// LoggingConfig controls structured logging output.  Logs always go to
// stderr; stdout carries rebuild directives.
type LoggingConfig struct {
	// Level: debug, info, warn, error.  Default: info.
	Level string `yaml:"level"`
	// Format: auto, text, json.  Default: auto (text on a terminal, json
	// otherwise).
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// OpenTelemetry
// ---------------------------------------------------------------------------

// OTelConfig controls OpenTelemetry tracing and metrics.
type OTelConfig struct {
	// Enabled controls whether OTLP export is active.  Default: false.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP HTTP endpoint (e.g. "localhost:4318").
	// If empty, falls back to OTEL_EXPORTER_OTLP_ENDPOINT env var.
	Endpoint string `yaml:"endpoint"`

	// Insecure enables plain HTTP (no TLS) for OTLP export.
	Insecure bool `yaml:"insecure"`

	// StdOut also prints traces and metrics to stderr (for debugging).
	StdOut bool `yaml:"stdout"`
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	// Textfile is the output path, typically inside the node exporter's
	// textfile collector directory.  Empty disables it.
	Textfile string `yaml:"textfile"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads a YAML config file from path and returns the parsed Config.
// If the file does not exist the returned Config will contain zero values;
// every field has a default.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file is optional -- defaults and flags cover a plain run.
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// ---------------------------------------------------------------------------
// Defaults & validation
// ---------------------------------------------------------------------------

// ApplyDefaults fills in sensible defaults for any unset fields.
func (c *Config) ApplyDefaults() {
	if c.Paths.Manifest == "" {
		c.Paths.Manifest = manifest.DefaultPath
	}
	if c.Paths.ConstantsFile == "" {
		c.Paths.ConstantsFile = buildmeta.DefaultFileName
	}
	if c.Paths.ConstantsPackage == "" {
		c.Paths.ConstantsPackage = buildmeta.DefaultPackage
	}
	if c.Paths.IDL == "" {
		c.Paths.IDL = bindgen.DefaultIDLPath
	}
	if c.Paths.SourceDir == "" {
		c.Paths.SourceDir = "internal"
	}
	if c.Paths.Script == "" {
		c.Paths.Script = "generate.go"
	}
	if c.Bindings.Generator == "" {
		c.Bindings.Generator = bindgen.BackendBuiltin
	}
	if c.Bindings.FormatFlag == "" {
		c.Bindings.FormatFlag = "--format"
	}
	if c.Bindings.Formatted == nil {
		t := true
		c.Bindings.Formatted = &t
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
}

// Validate checks that all fields are present and consistent.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	if !token.IsIdentifier(c.Paths.ConstantsPackage) {
		return fmt.Errorf("paths.constants_package: %q is not a valid Go package name", c.Paths.ConstantsPackage)
	}
	if strings.ContainsRune(c.Paths.ConstantsFile, filepath.Separator) {
		return fmt.Errorf("paths.constants_file: %q must be a file name, not a path", c.Paths.ConstantsFile)
	}
	if !strings.HasSuffix(c.Paths.ConstantsFile, ".go") {
		return fmt.Errorf("paths.constants_file: %q must end in .go", c.Paths.ConstantsFile)
	}

	switch c.Bindings.Generator {
	case bindgen.BackendBuiltin:
		// OK
	case bindgen.BackendExec:
		if strings.TrimSpace(c.Bindings.Command) == "" {
			return fmt.Errorf("bindings.command is required when bindings.generator is %q", bindgen.BackendExec)
		}
	default:
		return fmt.Errorf("bindings.generator %q is not supported (supported: %s, %s)",
			c.Bindings.Generator, bindgen.BackendBuiltin, bindgen.BackendExec)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported (supported: debug, info, warn, error)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (supported: auto, text, json)", c.Logging.Format)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Host inputs
// ---------------------------------------------------------------------------

// OutDir resolves the output directory: paths.out_dir, then OUT_DIR, then
// the working directory when run by go generate.  It returns "" when none
// applies; the caller reports OUT_DIR as missing.
func (c *Config) OutDir(lookup func(string) (string, bool)) string {
	if c.Paths.OutDir != "" {
		return c.Paths.OutDir
	}
	if dir, ok := lookup(EnvOutDir); ok && dir != "" {
		return dir
	}
	if pkg, ok := lookup(EnvGoPackage); ok && pkg != "" {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
	}
	return ""
}

// Package returns the package name of the constants file.  The host's
// GOPACKAGE wins over configuration; a _test package suffix is dropped.
func (c *Config) Package(lookup func(string) (string, bool)) string {
	if pkg, ok := lookup(EnvGoPackage); ok && pkg != "" {
		return strings.TrimSuffix(pkg, "_test")
	}
	return c.Paths.ConstantsPackage
}

// Script returns the file whose change must trigger a rerun.
func (c *Config) Script(lookup func(string) (string, bool)) string {
	return buildsys.ScriptPath(lookup, c.Paths.Script)
}

// StampPath returns the stamp location for outDir, or "" when neither is
// known.
func (c *Config) StampPath(outDir string) string {
	if c.Paths.Stamp != "" {
		return c.Paths.Stamp
	}
	if outDir == "" {
		return ""
	}
	return filepath.Join(outDir, buildsys.StampFileName)
}

// ---------------------------------------------------------------------------
// Factories
// ---------------------------------------------------------------------------

// NewLogger creates a *slog.Logger on stderr from the Logging configuration.
func (c *Config) NewLogger() *slog.Logger {
	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return c.newLogger(os.Stderr, tty)
}

func (c *Config) newLogger(w io.Writer, tty bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: c.slogLevel() == slog.LevelDebug,
		Level:     c.slogLevel(),
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "text":
		return slog.New(slog.NewTextHandler(w, opts))
	default:
		if tty {
			return slog.New(slog.NewTextHandler(w, opts))
		}
		return slog.New(slog.NewJSONHandler(w, opts))
	}
}

func (c *Config) slogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewGenerator creates the binding generator selected by bindings.generator.
func (c *Config) NewGenerator(logger *slog.Logger) (bindgen.Generator, error) {
	switch c.Bindings.Generator {
	case bindgen.BackendBuiltin:
		return bindgen.NewVarlink(logger.WithGroup("bindgen.builtin")), nil
	case bindgen.BackendExec:
		return bindgen.NewExec(bindgen.ExecConfig{
			Command:    c.Bindings.Command,
			Args:       c.Bindings.Args,
			FormatFlag: c.Bindings.FormatFlag,
		}, logger.WithGroup("bindgen.exec"))
	default:
		return nil, fmt.Errorf("unsupported binding generator: %s", c.Bindings.Generator)
	}
}

// Formatted reports whether formatted bindings are requested.
func (c *Config) Formatted() bool {
	return c.Bindings.Formatted == nil || *c.Bindings.Formatted
}

// Telemetry returns the telemetry settings.  Debug output goes to stderr so
// it never mixes with directives.
func (c *Config) Telemetry() telemetry.Config {
	return telemetry.Config{
		Enabled:      c.OTel.Enabled,
		Endpoint:     c.OTel.Endpoint,
		Insecure:     c.OTel.Insecure,
		StdOut:       c.OTel.StdOut,
		StdOutWriter: os.Stderr,
		Textfile:     c.Metrics.Textfile,
	}
}
