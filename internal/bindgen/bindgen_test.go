package bindgen

import (
	"context"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/tools/go/packages"

	"github.com/terrpan/lorrigen/internal/builderr"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

// typeCheck writes src into a throwaway package inside this module and
// type-checks it against the varlink runtime the module depends on.
func typeCheck(t *testing.T, pkg string, src []byte) {
	t.Helper()
	if testing.Short() {
		t.Skip("loads the varlink runtime with the go command")
	}

	dir, err := os.MkdirTemp(".", "typecheck-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, pkg+".go"), src, 0o644))

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	pkgs, err := packages.Load(&packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax | packages.NeedTypesInfo,
		Dir:  abs,
	}, ".")
	require.NoError(t, err)
	require.Len(t, pkgs, 1)

	var problems []string
	for _, e := range pkgs[0].Errors {
		problems = append(problems, e.Error())
	}
	assert.Empty(t, problems)
	assert.Equal(t, pkg, pkgs[0].Name)
}

// ---------------------------------------------------------------------------
// Render
// ---------------------------------------------------------------------------

type RenderSuite struct {
	suite.Suite
	lorri string
}

func TestRenderSuite(t *testing.T) {
	suite.Run(t, new(RenderSuite))
}

func (s *RenderSuite) SetupSuite() {
	s.lorri = readFixture(s.T(), "com.target.lorri.varlink")
}

func (s *RenderSuite) TestRender_InterfaceName() {
	_, iface, err := Render("com.target.lorri.varlink", s.lorri, true)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "com.target.lorri", iface)
}

func (s *RenderSuite) TestRender_ParsesAsGo() {
	src, _, err := Render("com.target.lorri.varlink", s.lorri, true)
	require.NoError(s.T(), err)

	f, err := parser.ParseFile(token.NewFileSet(), "comtargetlorri.go", src, parser.ParseComments)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "comtargetlorri", f.Name.Name)
}

func (s *RenderSuite) TestRender_FormattedIsGofmtClean() {
	src, _, err := Render("com.target.lorri.varlink", s.lorri, true)
	require.NoError(s.T(), err)

	formatted, err := format.Source(src)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), string(formatted), string(src))
}

func (s *RenderSuite) TestRender_UnformattedStillParses() {
	src, _, err := Render("com.target.lorri.varlink", s.lorri, false)
	require.NoError(s.T(), err)

	_, err = parser.ParseFile(token.NewFileSet(), "comtargetlorri.go", src, 0)
	assert.NoError(s.T(), err)
}

func (s *RenderSuite) TestRender_Declarations() {
	src, _, err := Render("com.target.lorri.varlink", s.lorri, true)
	require.NoError(s.T(), err)
	out := string(src)

	for _, want := range []string{
		"// Code generated by lorrigen from com.target.lorri.varlink. DO NOT EDIT.",
		`const InterfaceName = "com.target.lorri"`,
		"type ShellNix struct",
		"type WatchShellIn struct",
		"type MonitorOut struct",
		"func (c *Client) WatchShell(ctx context.Context, in WatchShellIn) (*WatchShellOut, error)",
		`c.conn.Call(ctx, "com.target.lorri.Monitor", &in, &out)`,
		"WatchShell(ctx context.Context, in *WatchShellIn) (*WatchShellOut, error)",
		`case "WatchShell":`,
		"type ProjectNotFound struct",
		`return "com.target.lorri.ProjectNotFound"`,
		"case *ProjectNotFound:",
		"if call.In.Parameters != nil {",
		"json.Unmarshal(*call.In.Parameters, &in)",
	} {
		assert.Contains(s.T(), out, want)
	}
}

func (s *RenderSuite) TestRender_DocCommentsCarriedOver() {
	src, _, err := Render("com.target.lorri.varlink", s.lorri, true)
	require.NoError(s.T(), err)
	assert.Contains(s.T(), string(src), "// WatchShell instructs the daemon to evaluate a Nix expression")
}

func (s *RenderSuite) TestRender_Deterministic() {
	first, _, err := Render("com.target.lorri.varlink", s.lorri, true)
	require.NoError(s.T(), err)
	second, _, err := Render("com.target.lorri.varlink", s.lorri, true)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), first, second)
}

func (s *RenderSuite) TestRender_TypeMapping() {
	src, _, err := Render("scalars.varlink", readFixture(s.T(), "scalars.varlink"), true)
	require.NoError(s.T(), err)

	f, err := parser.ParseFile(token.NewFileSet(), "orgexamplescalars.go", src, 0)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "orgexamplescalars", f.Name.Name)

	out := string(src)
	for _, want := range []string{
		"type Mode string",
		`ModeFast Mode = "fast"`,
		`ModeSlow Mode = "slow"`,
		"bool",
		"int64",
		"float64",
		"json.RawMessage",
		"[]string",
		"map[string]int64",
		"*string",
		`json:"note,omitempty"`,
	} {
		assert.Contains(s.T(), out, want)
	}
}

func (s *RenderSuite) TestRender_CompilesAgainstVarlink() {
	for _, fixture := range []string{"com.target.lorri.varlink", "scalars.varlink"} {
		s.Run(fixture, func() {
			src, iface, err := Render(fixture, readFixture(s.T(), fixture), true)
			require.NoError(s.T(), err)
			typeCheck(s.T(), PackageName(iface), src)
		})
	}
}

func (s *RenderSuite) TestRender_NameCollisions() {
	tests := map[string]string{
		"fields": `interface org.example.clash
type Pair (foo_bar: string, fooBar: string)
method Get() -> (pair: Pair)
`,
		"generated type": `interface org.example.clash
type Client (name: string)
method Get() -> (client: Client)
`,
		"method parameters": `interface org.example.clash
type GetIn (name: string)
method Get(in: GetIn) -> ()
`,
		"enum value": `interface org.example.clash
type Mode (fast, slow)
type ModeFast (enabled: bool)
method Get() -> (mode: Mode, fast: ModeFast)
`,
		"error method": `interface org.example.clash
method Get() -> ()
error Failed (error: string)
`,
	}
	for name, def := range tests {
		s.Run(name, func() {
			_, _, err := Render("clash.varlink", def, true)
			require.Error(s.T(), err)
			assert.Contains(s.T(), err.Error(), "collides")
		})
	}
}

// The checked-in bindings must match what go generate would write today.
func (s *RenderSuite) TestRender_CheckedInBindingsAreCurrent() {
	root := filepath.Join("..", "..")
	def, err := os.ReadFile(filepath.Join(root, DefaultIDLPath))
	s.Require().NoError(err)
	committed, err := os.ReadFile(filepath.Join(root, "internal", "comtargetlorri", "comtargetlorri.go"))
	s.Require().NoError(err)

	src, iface, err := Render(filepath.Base(DefaultIDLPath), string(def), true)
	s.Require().NoError(err)
	s.Equal("comtargetlorri", PackageName(iface))

	want, err := format.Source(src)
	s.Require().NoError(err)
	got, err := format.Source(committed)
	s.Require().NoError(err)
	s.Equal(string(want), string(got), "rerun go generate ./internal/buildrev")
}

func (s *RenderSuite) TestRender_SyntaxError() {
	_, _, err := Render("broken.varlink", readFixture(s.T(), "broken.varlink"), true)
	assert.Error(s.T(), err)
}

// ---------------------------------------------------------------------------
// Varlink backend
// ---------------------------------------------------------------------------

func TestVarlinkGenerate_WritesUnderNamespaceDir(t *testing.T) {
	srcDir := t.TempDir()

	res, err := NewVarlink(nil).Generate(context.Background(), Request{
		IDLPath:   filepath.Join("testdata", "com.target.lorri.varlink"),
		SourceDir: srcDir,
		Formatted: true,
	})
	require.NoError(t, err)

	want := filepath.Join(srcDir, "comtargetlorri", "comtargetlorri.go")
	assert.Equal(t, want, res.Path)
	assert.Equal(t, "com.target.lorri", res.Interface)
	assert.FileExists(t, want)
}

func TestVarlinkGenerate_Overwrites(t *testing.T) {
	srcDir := t.TempDir()
	target := filepath.Join(srcDir, "comtargetlorri", "comtargetlorri.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("hand edits"), 0o644))

	req := Request{
		IDLPath:   filepath.Join("testdata", "com.target.lorri.varlink"),
		SourceDir: srcDir,
		Formatted: true,
	}
	_, err := NewVarlink(nil).Generate(context.Background(), req)
	require.NoError(t, err)
	first, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.NotContains(t, string(first), "hand edits")

	_, err = NewVarlink(nil).Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestVarlinkGenerate_MissingIDL(t *testing.T) {
	_, err := NewVarlink(nil).Generate(context.Background(), Request{
		IDLPath:   filepath.Join(t.TempDir(), "absent.varlink"),
		SourceDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Equal(t, builderr.IOFailure, builderr.KindOf(err))
}

func TestVarlinkGenerate_MalformedIDL(t *testing.T) {
	srcDir := t.TempDir()

	_, err := NewVarlink(nil).Generate(context.Background(), Request{
		IDLPath:   filepath.Join("testdata", "broken.varlink"),
		SourceDir: srcDir,
	})
	require.Error(t, err)
	assert.Equal(t, builderr.GeneratorFailure, builderr.KindOf(err))
	assert.Contains(t, err.Error(), "broken.varlink")

	entries, err := os.ReadDir(srcDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVarlinkGenerate_CollisionIsGeneratorFailure(t *testing.T) {
	idlPath := filepath.Join(t.TempDir(), "clash.varlink")
	def := "interface org.example.clash\ntype Server (name: string)\nmethod Get() -> (server: Server)\n"
	require.NoError(t, os.WriteFile(idlPath, []byte(def), 0o644))
	srcDir := t.TempDir()

	_, err := NewVarlink(nil).Generate(context.Background(), Request{IDLPath: idlPath, SourceDir: srcDir, Formatted: true})
	require.Error(t, err)
	assert.Equal(t, builderr.GeneratorFailure, builderr.KindOf(err))
	assert.Contains(t, err.Error(), "type Server collides with generated Server")

	entries, err := os.ReadDir(srcDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// ---------------------------------------------------------------------------
// Exec backend
// ---------------------------------------------------------------------------

func TestNewExec_RequiresCommand(t *testing.T) {
	_, err := NewExec(ExecConfig{}, nil)
	require.Error(t, err)
	assert.Equal(t, builderr.MissingConfiguration, builderr.KindOf(err))
}

func TestExecArgs(t *testing.T) {
	e, err := NewExec(ExecConfig{Command: "varlink-go-interface-generator", Args: []string{"-v"}, FormatFlag: "--format"}, nil)
	require.NoError(t, err)
	abs, err := filepath.Abs("api.varlink")
	require.NoError(t, err)

	args, err := e.Args(Request{IDLPath: "api.varlink", Formatted: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"-v", "--format", abs}, args)

	args, err = e.Args(Request{IDLPath: "api.varlink"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-v", abs}, args)
	assert.Equal(t, "varlink-go-interface-generator", e.Name())
}

func TestExecGenerate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	srcDir := t.TempDir()
	stub := filepath.Join(t.TempDir(), "gen")
	script := "#!/bin/sh\nlast=\"\"\nfor a in \"$@\"; do last=\"$a\"; done\necho \"$last\" > generated.txt\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0o755))

	e, err := NewExec(ExecConfig{Command: stub}, nil)
	require.NoError(t, err)

	_, err = e.Generate(context.Background(), Request{IDLPath: "api.varlink", SourceDir: srcDir})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(srcDir, "generated.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "api.varlink")
}

func TestExecGenerate_FailureSurfacesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	stub := filepath.Join(t.TempDir(), "gen")
	require.NoError(t, os.WriteFile(stub, []byte("#!/bin/sh\necho 'syntax error at line 3' >&2\nexit 2\n"), 0o755))

	e, err := NewExec(ExecConfig{Command: stub}, nil)
	require.NoError(t, err)

	_, err = e.Generate(context.Background(), Request{IDLPath: "api.varlink", SourceDir: t.TempDir()})
	require.Error(t, err)
	assert.Equal(t, builderr.GeneratorFailure, builderr.KindOf(err))
	assert.Contains(t, err.Error(), "syntax error at line 3")
}

func TestExecGenerate_CommandNotFound(t *testing.T) {
	e, err := NewExec(ExecConfig{Command: "clearly-not-present-generator"}, nil)
	require.NoError(t, err)

	_, err = e.Generate(context.Background(), Request{IDLPath: "api.varlink", SourceDir: t.TempDir()})
	require.Error(t, err)
	assert.Equal(t, builderr.GeneratorFailure, builderr.KindOf(err))
}

// ---------------------------------------------------------------------------
// Naming
// ---------------------------------------------------------------------------

func TestPackageName(t *testing.T) {
	assert.Equal(t, "comtargetlorri", PackageName("com.target.lorri"))
	assert.Equal(t, "orgexamplemyservice", PackageName("org.example.my-service"))
}

func TestExported(t *testing.T) {
	tests := map[string]string{
		"shell_nix":    "ShellNix",
		"ShellNix":     "ShellNix",
		"project_root": "ProjectRoot",
		"exit_code":    "ExitCode",
		"path":         "Path",
	}
	for in, want := range tests {
		assert.Equal(t, want, exported(in), in)
	}
}
