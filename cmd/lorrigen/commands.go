package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/terrpan/lorrigen/internal/buildinfo"
	"github.com/terrpan/lorrigen/internal/revcount"
)

func newGenerateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Print rebuild triggers, write the constants file and generate bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}
}

func runGenerate(cmd *cobra.Command, opts *options) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	s, err := newSession(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	_, err = s.pipeline.Run(ctx)
	return err
}

func newConstantsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "constants",
		Short: "Write only the constants file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			s, err := newSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			path, err := s.pipeline.Constants(ctx)
			if err != nil {
				return err
			}
			s.logger.Info("constants written", slog.String("path", path))
			return nil
		},
	}
}

func newBindingsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bindings",
		Short: "Generate only the interface bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			s, err := newSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			res, err := s.pipeline.Bindings(ctx)
			if err != nil {
				return err
			}
			s.logger.Info("bindings generated",
				slog.String("interface", res.Interface),
				slog.String("path", res.Path),
			)
			return nil
		},
	}
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Exit non-zero when the rebuild triggers changed since the last run",
		Long: `check compares the current rebuild triggers with the stamp recorded by
the last successful run and prints the reasons a rerun is needed, one per
line.  It exits 1 when a rerun is needed, so a Makefile can gate on it:

	lorrigen check || lorrigen generate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			s, err := newSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			reasons, err := s.pipeline.Check()
			if err != nil {
				return err
			}
			if len(reasons) == 0 {
				s.logger.Debug("outputs up to date")
				return nil
			}
			for _, r := range reasons {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return fmt.Errorf("rerun needed: %s", strings.Join(reasons, "; "))
		},
	}
}

func newRevcountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revcount [dir]",
		Short: "Print the number of commits reachable from HEAD",
		Long: `revcount prints the revision count of the Git repository containing dir
(default: the working directory).  A provisioning shell can export it:

	export BUILD_REV_COUNT=$(lorrigen revcount)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			n, err := revcount.Count(dir)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print lorrigen's own build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return buildinfo.Current().Write(cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
