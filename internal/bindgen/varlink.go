package bindgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/varlink/go/varlink/idl"
	"golang.org/x/tools/imports"

	"github.com/terrpan/lorrigen/internal/builderr"
)

// Varlink renders bindings in-process from a varlink IDL file.
type Varlink struct {
	logger *slog.Logger
}

// Compile-time check.
var _ Generator = (*Varlink)(nil)

// NewVarlink creates the builtin backend.
func NewVarlink(logger *slog.Logger) *Varlink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Varlink{logger: logger}
}

// Name implements Generator.
func (v *Varlink) Name() string { return BackendBuiltin }

// Generate implements Generator.
func (v *Varlink) Generate(_ context.Context, req Request) (*Result, error) {
	data, err := os.ReadFile(req.IDLPath)
	if err != nil {
		return nil, builderr.IO(req.IDLPath, err)
	}

	src, iface, err := Render(filepath.Base(req.IDLPath), string(data), req.Formatted)
	if err != nil {
		return nil, builderr.Generator(v.Name(), fmt.Errorf("%s: %w", req.IDLPath, err))
	}

	pkg := PackageName(iface)
	dir := filepath.Join(req.SourceDir, pkg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, builderr.IO(dir, err)
	}
	path := filepath.Join(dir, pkg+".go")
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return nil, builderr.IO(path, err)
	}

	v.logger.Debug("bindings written",
		slog.String("interface", iface),
		slog.String("path", path),
		slog.Int("bytes", len(src)),
	)
	return &Result{Interface: iface, Path: path}, nil
}

// Render parses the IDL text and returns the generated Go source and the
// interface name. name is the IDL file name quoted in the header. Output is
// deterministic: declarations are emitted sorted by name.
func Render(name, description string, formatted bool) ([]byte, string, error) {
	def, err := idl.New(description)
	if err != nil {
		return nil, "", fmt.Errorf("parsing interface definition: %w", err)
	}

	pkg := PackageName(def.Name)
	src, err := newRenderer(name, description, def).render(pkg)
	if err != nil {
		return nil, def.Name, err
	}
	if !formatted {
		return src, def.Name, nil
	}

	out, err := imports.Process(pkg+".go", src, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, def.Name, fmt.Errorf("formatting bindings: %w", err)
	}
	return out, def.Name, nil
}
