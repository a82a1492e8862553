package bindgen

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/varlink/go/varlink/idl"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var title = cases.Title(language.Und, cases.NoLower)

// renderer writes one bindings file. Output is unformatted but valid Go.
type renderer struct {
	buf         bytes.Buffer
	file        string
	description string
	def         *idl.IDL
	usesJSON    bool

	// names maps every top-level Go identifier to the varlink declaration
	// it came from.
	names map[string]string
	err   error
}

// generatedNames are declared by the bindings themselves.
var generatedNames = []string{
	"InterfaceName", "InterfaceDescription",
	"Client", "NewClient",
	"Server", "Dispatcher", "NewDispatcher",
}

func newRenderer(file, description string, def *idl.IDL) *renderer {
	return &renderer{file: file, description: description, def: def}
}

func (r *renderer) p(format string, args ...any) {
	fmt.Fprintf(&r.buf, format, args...)
	r.buf.WriteByte('\n')
}

func (r *renderer) render(pkg string) ([]byte, error) {
	var body renderer
	body.def = r.def
	for _, name := range generatedNames {
		body.declare(name, "generated "+name)
	}

	body.renderTypes()
	body.renderErrors()
	body.renderMethodTypes()
	body.renderClient()
	body.renderServer()
	if body.err != nil {
		return nil, body.err
	}

	r.p("// Code generated by lorrigen from %s. DO NOT EDIT.", r.file)
	r.p("")
	if doc := docLines(r.def.Doc); len(doc) > 0 {
		for _, line := range doc {
			r.p("// %s", line)
		}
		r.p("//")
	}
	r.p("// Package %s holds the bindings for the varlink interface %s.", pkg, r.def.Name)
	r.p("package %s", pkg)
	r.p("")
	r.p("import (")
	r.p("\t\"context\"")
	r.p("\t\"encoding/json\"")
	r.p("")
	r.p("\t\"github.com/varlink/go/varlink\"")
	r.p(")")
	r.p("")
	r.p("// InterfaceName is the fully qualified varlink interface name.")
	r.p("const InterfaceName = %s", strconv.Quote(r.def.Name))
	r.p("")
	r.p("// InterfaceDescription is the interface definition the bindings were generated from.")
	r.p("const InterfaceDescription = %s", stringLiteral(r.description))
	r.p("")
	if !body.usesJSON {
		r.p("var _ json.RawMessage")
		r.p("")
	}
	r.buf.Write(body.buf.Bytes())
	return r.buf.Bytes(), nil
}

// declare records a top-level identifier. Two varlink names that map to
// the same Go identifier would not compile, so the first collision is kept
// as the render error.
func (r *renderer) declare(goName, origin string) {
	if r.names == nil {
		r.names = map[string]string{}
	}
	if prev, ok := r.names[goName]; ok {
		r.fail(fmt.Errorf("%s collides with %s: both map to Go identifier %s", origin, prev, goName))
		return
	}
	r.names[goName] = origin
}

func (r *renderer) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

func (r *renderer) renderTypes() {
	for _, a := range sortedByName(r.def.Aliases, func(a *idl.Alias) string { return a.Name }) {
		goName := exported(a.Name)
		r.declare(goName, "type "+a.Name)
		r.doc(a.Doc, fmt.Sprintf("%s is the varlink type %s.%s.", goName, r.def.Name, a.Name))

		if a.Type.Kind == idl.TypeEnum {
			r.p("type %s string", goName)
			r.p("")
			r.p("// Values of %s.", goName)
			r.p("const (")
			for _, f := range a.Type.Fields {
				r.declare(goName+exported(f.Name), "enum value "+a.Name+"."+f.Name)
				r.p("\t%s%s %s = %s", goName, exported(f.Name), goName, strconv.Quote(f.Name))
			}
			r.p(")")
			r.p("")
			continue
		}

		if a.Type.Kind == idl.TypeStruct {
			r.p("type %s %s", goName, r.structType(a.Type, "type "+a.Name))
		} else {
			r.p("type %s %s", goName, r.goType(a.Type, "type "+a.Name))
		}
		r.p("")
	}
}

func (r *renderer) renderErrors() {
	for _, e := range sortedByName(r.def.Errors, func(e *idl.Error) string { return e.Name }) {
		goName := exported(e.Name)
		qualified := r.def.Name + "." + e.Name
		r.declare(goName, "error "+e.Name)
		if e.Type != nil {
			for _, f := range e.Type.Fields {
				if exported(f.Name) == "Error" {
					r.fail(fmt.Errorf("field %s of error %s collides with its Error method", f.Name, e.Name))
				}
			}
		}
		r.p("// %s is the varlink error %s.", goName, qualified)
		r.p("type %s %s", goName, r.structType(e.Type, "error "+e.Name))
		r.p("")
		r.p("func (e *%s) Error() string { return %s }", goName, strconv.Quote(qualified))
		r.p("")
	}
}

func (r *renderer) renderMethodTypes() {
	for _, m := range r.methods() {
		goName := exported(m.Name)
		r.declare(goName+"In", "parameters of method "+m.Name)
		r.declare(goName+"Out", "reply of method "+m.Name)
		r.p("// %sIn holds the parameters of %s.", goName, goName)
		r.p("type %sIn %s", goName, r.structType(m.In, "parameters of method "+m.Name))
		r.p("")
		r.p("// %sOut holds the reply of %s.", goName, goName)
		r.p("type %sOut %s", goName, r.structType(m.Out, "reply of method "+m.Name))
		r.p("")
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func (r *renderer) renderClient() {
	r.p("// Client calls %s over a varlink connection.", r.def.Name)
	r.p("type Client struct {")
	r.p("\tconn *varlink.Connection")
	r.p("}")
	r.p("")
	r.p("// NewClient wraps an open connection.")
	r.p("func NewClient(conn *varlink.Connection) *Client {")
	r.p("\treturn &Client{conn: conn}")
	r.p("}")
	r.p("")

	seen := map[string]string{}
	for _, m := range r.methods() {
		goName := exported(m.Name)
		if prev, ok := seen[goName]; ok {
			r.fail(fmt.Errorf("method %s collides with method %s: both map to Go method %s", m.Name, prev, goName))
		}
		seen[goName] = m.Name
		r.doc(m.Doc, fmt.Sprintf("%s calls %s.%s.", goName, r.def.Name, m.Name))
		r.p("func (c *Client) %s(ctx context.Context, in %sIn) (*%sOut, error) {", goName, goName, goName)
		r.p("\tvar out %sOut", goName)
		r.p("\tif err := c.conn.Call(ctx, %s, &in, &out); err != nil {", strconv.Quote(r.def.Name+"."+m.Name))
		r.p("\t\treturn nil, err")
		r.p("\t}")
		r.p("\treturn &out, nil")
		r.p("}")
		r.p("")
	}
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

func (r *renderer) renderServer() {
	methods := r.methods()
	r.usesJSON = r.usesJSON || len(methods) > 0

	r.p("// Server is implemented by the service behind %s. Returning one of", r.def.Name)
	r.p("// the interface's error types replies with that varlink error.")
	r.p("type Server interface {")
	for _, m := range methods {
		goName := exported(m.Name)
		r.p("\t%s(ctx context.Context, in *%sIn) (*%sOut, error)", goName, goName, goName)
	}
	r.p("}")
	r.p("")
	r.p("// Dispatcher adapts a Server to the varlink service runtime.")
	r.p("type Dispatcher struct {")
	r.p("\timpl Server")
	r.p("}")
	r.p("")
	r.p("// NewDispatcher returns a dispatcher for registration with varlink.Service.")
	r.p("func NewDispatcher(impl Server) *Dispatcher {")
	r.p("\treturn &Dispatcher{impl: impl}")
	r.p("}")
	r.p("")
	r.p("// VarlinkGetName implements the varlink dispatcher.")
	r.p("func (d *Dispatcher) VarlinkGetName() string { return InterfaceName }")
	r.p("")
	r.p("// VarlinkGetDescription implements the varlink dispatcher.")
	r.p("func (d *Dispatcher) VarlinkGetDescription() string { return InterfaceDescription }")
	r.p("")
	r.p("// VarlinkDispatch implements the varlink dispatcher.")
	r.p("func (d *Dispatcher) VarlinkDispatch(ctx context.Context, call varlink.Call, methodname string) error {")
	r.p("\tswitch methodname {")
	for _, m := range methods {
		goName := exported(m.Name)
		r.p("\tcase %s:", strconv.Quote(m.Name))
		r.p("\t\tvar in %sIn", goName)
		r.p("\t\tif call.In.Parameters != nil {")
		r.p("\t\t\tif err := json.Unmarshal(*call.In.Parameters, &in); err != nil {")
		r.p("\t\t\t\treturn call.ReplyInvalidParameter(ctx, \"parameters\")")
		r.p("\t\t\t}")
		r.p("\t\t}")
		r.p("\t\tout, err := d.impl.%s(ctx, &in)", goName)
		r.p("\t\tif err != nil {")
		r.p("\t\t\treturn replyError(ctx, call, err)")
		r.p("\t\t}")
		r.p("\t\treturn call.Reply(ctx, out)")
	}
	r.p("\tdefault:")
	r.p("\t\treturn call.ReplyMethodNotFound(ctx, methodname)")
	r.p("\t}")
	r.p("}")
	r.p("")

	errs := sortedByName(r.def.Errors, func(e *idl.Error) string { return e.Name })
	r.p("func replyError(ctx context.Context, call varlink.Call, err error) error {")
	if len(errs) > 0 {
		r.p("\tswitch e := err.(type) {")
		for _, e := range errs {
			r.p("\tcase *%s:", exported(e.Name))
			r.p("\t\treturn call.ReplyError(ctx, e.Error(), e)")
		}
		r.p("\t}")
	}
	r.p("\treturn err")
	r.p("}")
}

// ---------------------------------------------------------------------------
// Type mapping
// ---------------------------------------------------------------------------

func (r *renderer) goType(t *idl.Type, owner string) string {
	if t == nil {
		return "struct{}"
	}
	switch t.Kind {
	case idl.TypeBool:
		return "bool"
	case idl.TypeInt:
		return "int64"
	case idl.TypeFloat:
		return "float64"
	case idl.TypeString, idl.TypeEnum:
		return "string"
	case idl.TypeObject:
		r.usesJSON = true
		return "json.RawMessage"
	case idl.TypeArray:
		return "[]" + r.goType(t.ElementType, owner)
	case idl.TypeMap:
		return "map[string]" + r.goType(t.ElementType, owner)
	case idl.TypeMaybe:
		return "*" + r.goType(t.ElementType, owner)
	case idl.TypeAlias:
		return exported(t.Alias)
	case idl.TypeStruct:
		return r.structType(t, owner)
	default:
		return "json.RawMessage"
	}
}

// structType renders t as a struct literal type. owner names the
// declaration in collision errors.
func (r *renderer) structType(t *idl.Type, owner string) string {
	if t == nil || len(t.Fields) == 0 {
		return "struct{}"
	}
	fields := map[string]string{}
	var b strings.Builder
	b.WriteString("struct {\n")
	for _, f := range t.Fields {
		goName := exported(f.Name)
		if prev, ok := fields[goName]; ok {
			r.fail(fmt.Errorf("field %s of %s collides with field %s: both map to Go field %s", f.Name, owner, prev, goName))
		}
		fields[goName] = f.Name
		tag := f.Name
		if f.Type != nil && f.Type.Kind == idl.TypeMaybe {
			tag += ",omitempty"
		}
		fmt.Fprintf(&b, "\t%s %s `json:%q`\n", goName, r.goType(f.Type, owner), tag)
	}
	b.WriteString("}")
	return b.String()
}

func (r *renderer) doc(text, fallback string) {
	lines := docLines(text)
	if len(lines) == 0 {
		r.p("// %s", fallback)
		return
	}
	for _, line := range lines {
		r.p("// %s", line)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// exported converts a varlink identifier (snake_case or CamelCase) to an
// exported Go identifier.
func exported(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(title.String(p))
	}
	if b.Len() == 0 {
		return "X"
	}
	return b.String()
}

func docLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "#"))
		if line == "" && len(lines) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func stringLiteral(s string) string {
	if strings.ContainsAny(s, "`\r") {
		return strconv.Quote(s)
	}
	return "`" + s + "`"
}

func (r *renderer) methods() []*idl.Method {
	return sortedByName(r.def.Methods, func(m *idl.Method) string { return m.Name })
}

// sortedByName returns a copy of items ordered by name, so output does not
// depend on declaration order in the IDL.
func sortedByName[T any](items []T, name func(T) string) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool { return name(out[i]) < name(out[j]) })
	return out
}
