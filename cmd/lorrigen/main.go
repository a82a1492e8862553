package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/terrpan/lorrigen/internal/config"
	"github.com/terrpan/lorrigen/internal/pipeline"
	"github.com/terrpan/lorrigen/internal/telemetry"
)

const serviceName = "lorrigen"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lorrigen: %v\n", err)
		os.Exit(1)
	}
}

// options holds the values of the persistent flags.
type options struct {
	cfgPath       string
	flagOverrides config.Config
	noFormat      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "lorrigen",
		Short: "Build-time code generation for the lorri daemon",
		Long: `lorrigen captures build provenance (revision count, runtime closure,
version) into a generated Go constants file and generates Go bindings for
the daemon's varlink interface.

It is meant to run from a //go:generate directive or a Makefile.  Rebuild
triggers are printed to stdout, logs go to stderr.  Without a subcommand it
runs the whole pipeline, like "lorrigen generate".`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	f := root.PersistentFlags()

	// Config file
	f.StringVar(&opts.cfgPath, "config", "lorrigen.yaml", "Path to YAML configuration file")

	// Path overrides
	f.StringVar(&opts.flagOverrides.Paths.Manifest, "manifest", "", "Project manifest supplying the version")
	f.StringVar(&opts.flagOverrides.Paths.OutDir, "out-dir", "", "Directory receiving the constants file (default: $OUT_DIR, or the package directory under go generate)")
	f.StringVar(&opts.flagOverrides.Paths.ConstantsPackage, "package", "", "Package name of the constants file when $GOPACKAGE is not set")
	f.StringVar(&opts.flagOverrides.Paths.IDL, "idl", "", "Varlink interface definition")
	f.StringVar(&opts.flagOverrides.Paths.SourceDir, "source-dir", "", "Directory receiving the bindings")

	// Bindings overrides
	f.StringVar(&opts.flagOverrides.Bindings.Generator, "generator", "", "Binding generator (builtin, exec)")
	f.StringVar(&opts.flagOverrides.Bindings.Command, "generator-command", "", "Generator executable when --generator=exec")
	f.BoolVar(&opts.noFormat, "no-format", false, "Do not format generated bindings")

	// Logging overrides
	f.StringVar(&opts.flagOverrides.Logging.Level, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&opts.flagOverrides.Logging.Format, "log-format", "", "Log format (auto, text, json)")

	root.AddCommand(
		newGenerateCmd(opts),
		newConstantsCmd(opts),
		newBindingsCmd(opts),
		newCheckCmd(opts),
		newRevcountCmd(),
		newVersionCmd(),
	)
	return root
}

// applyFlagOverrides merges non-zero CLI flag values into the loaded config.
func applyFlagOverrides(cfg *config.Config, opts *options) {
	o := opts.flagOverrides
	if o.Paths.Manifest != "" {
		cfg.Paths.Manifest = o.Paths.Manifest
	}
	if o.Paths.OutDir != "" {
		cfg.Paths.OutDir = o.Paths.OutDir
	}
	if o.Paths.ConstantsPackage != "" {
		cfg.Paths.ConstantsPackage = o.Paths.ConstantsPackage
	}
	if o.Paths.IDL != "" {
		cfg.Paths.IDL = o.Paths.IDL
	}
	if o.Paths.SourceDir != "" {
		cfg.Paths.SourceDir = o.Paths.SourceDir
	}
	if o.Bindings.Generator != "" {
		cfg.Bindings.Generator = o.Bindings.Generator
	}
	if o.Bindings.Command != "" {
		cfg.Bindings.Command = o.Bindings.Command
	}
	if opts.noFormat {
		f := false
		cfg.Bindings.Formatted = &f
	}
	if o.Logging.Level != "" {
		cfg.Logging.Level = o.Logging.Level
	}
	if o.Logging.Format != "" {
		cfg.Logging.Format = o.Logging.Format
	}
}

// session is the state shared by the pipeline subcommands.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
	shutdown func(context.Context) error
}

// close flushes telemetry. Export failures never fail the build.
func (s *session) close(ctx context.Context) {
	if err := s.shutdown(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("flushing telemetry", slog.String("error", err.Error()))
	}
}

func newSession(ctx context.Context, cmd *cobra.Command, opts *options) (*session, error) {
	// ---------------------------------------------------------------
	// 1. Load configuration
	// ---------------------------------------------------------------
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	applyFlagOverrides(cfg, opts)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger := cfg.NewLogger().With(slog.String("run", uuid.NewString()))

	// ---------------------------------------------------------------
	// 3. Resolve host inputs
	// ---------------------------------------------------------------
	outDir := cfg.OutDir(os.LookupEnv)
	pcfg := pipeline.Config{
		ManifestPath:  cfg.Paths.Manifest,
		OutDir:        outDir,
		ConstantsFile: cfg.Paths.ConstantsFile,
		Package:       cfg.Package(os.LookupEnv),
		IDLPath:       cfg.Paths.IDL,
		SourceDir:     cfg.Paths.SourceDir,
		Formatted:     cfg.Formatted(),
		Script:        cfg.Script(os.LookupEnv),
		StampPath:     cfg.StampPath(outDir),
		Lookup:        os.LookupEnv,
		Directives:    cmd.OutOrStdout(),
		Logger:        logger.WithGroup("pipeline"),
	}
	logger.Debug("configuration loaded",
		slog.String("configFile", opts.cfgPath),
		slog.String("outDir", pcfg.OutDir),
		slog.String("package", pcfg.Package),
		slog.String("idl", pcfg.IDLPath),
		slog.String("generator", cfg.Bindings.Generator),
	)

	// ---------------------------------------------------------------
	// 4. Initialize telemetry
	// ---------------------------------------------------------------
	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry())
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}
	s := &session{cfg: cfg, logger: logger, shutdown: shutdown}

	// ---------------------------------------------------------------
	// 5. Create generator + pipeline
	// ---------------------------------------------------------------
	pcfg.Generator, err = cfg.NewGenerator(logger)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("initializing binding generator: %w", err)
	}

	s.pipeline, err = pipeline.New(pcfg)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	return s, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}
