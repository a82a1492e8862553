package bindgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/terrpan/lorrigen/internal/builderr"
)

// ExecConfig configures an external generator binary.
type ExecConfig struct {
	// Command is the generator executable, looked up in PATH.
	Command string
	// Args precede the format flag and the IDL path.
	Args []string
	// FormatFlag is appended when formatted output is requested.
	FormatFlag string
}

// Exec runs an external generator. The generator decides where its output
// goes; it is started in the request's source directory.
type Exec struct {
	cfg    ExecConfig
	logger *slog.Logger
}

// Compile-time check.
var _ Generator = (*Exec)(nil)

// NewExec creates the exec backend.
func NewExec(cfg ExecConfig, logger *slog.Logger) (*Exec, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, builderr.Missing("bindings.command", "required when bindings.generator is \"exec\"")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exec{cfg: cfg, logger: logger}, nil
}

// Name implements Generator.
func (e *Exec) Name() string { return filepath.Base(e.cfg.Command) }

// Args returns the argument list for req.
func (e *Exec) Args(req Request) ([]string, error) {
	idlPath, err := filepath.Abs(req.IDLPath)
	if err != nil {
		return nil, builderr.IO(req.IDLPath, err)
	}
	args := append([]string{}, e.cfg.Args...)
	if req.Formatted && e.cfg.FormatFlag != "" {
		args = append(args, e.cfg.FormatFlag)
	}
	return append(args, idlPath), nil
}

// Generate implements Generator. The generator's output streams are
// captured; on failure they are part of the returned error.
func (e *Exec) Generate(ctx context.Context, req Request) (*Result, error) {
	args, err := e.Args(req)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	cmd.Dir = req.SourceDir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	e.logger.Debug("running binding generator",
		slog.String("command", e.cfg.Command),
		slog.Any("args", args),
		slog.String("dir", req.SourceDir),
	)

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(output.String())
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr) && msg != "":
			err = fmt.Errorf("%w: %s", err, msg)
		case errors.Is(err, exec.ErrNotFound):
			err = fmt.Errorf("%s not found in PATH: %w", e.cfg.Command, err)
		}
		return nil, builderr.Generator(e.Name(), err)
	}

	if out := strings.TrimSpace(output.String()); out != "" {
		e.logger.Debug("binding generator output", slog.String("output", out))
	}
	return &Result{}, nil
}
