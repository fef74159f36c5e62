package handlebars

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aymerick/raymond/ast"
	"github.com/aymerick/raymond/parser"

	"github.com/conneroisu/hbsbundle/internal/jsmodule"
	"github.com/conneroisu/hbsbundle/internal/sourcemap"
)

// compilerRevision matches the revision checked by the Handlebars 4.x
// runtime in Handlebars.template.
const compilerRevision = `[8,">= 4.3.0"]`

const programSignature = "function(container,depth0,helpers,partials,data,blockParams,depths) {"

const programPrologue = `  var stack1, helper, options, buffer = "", alias1 = depth0 != null ? depth0 : (container.nullContext || {}), ` +
	`lookupProperty = container.lookupProperty || function(parent, propertyName) { ` +
	`if (Object.prototype.hasOwnProperty.call(parent, propertyName)) { return parent[propertyName]; } return undefined; };`

// statementIndent is the column at which every statement inside a compiled
// program starts. Source map segments point at it.
const statementIndent = "  "

// CompileOptions control precompilation.
type CompileOptions struct {
	SourceMap bool
	SrcName   string
}

// Compiled is a precompiled template spec: a JavaScript object literal that
// can be passed to Handlebars.template.
type Compiled struct {
	Code string
	// Map positions are relative to Code. Nil when SourceMap is false.
	Map *sourcemap.Map
}

// UnsupportedError reports a construct the precompiler does not handle.
type UnsupportedError struct {
	Construct string
	Line      int
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported construct on line %d: %s", e.Line, e.Construct)
}

var parseErrorLine = regexp.MustCompile(`line (\d+)`)

// Parse parses source into a Handlebars syntax tree.
func Parse(source string) (*ast.Program, error) {
	return parser.Parse(source)
}

// ErrorLine extracts the template line reported by a parse or compile
// error, or 0 when the error carries none.
func ErrorLine(err error) int {
	if u, ok := err.(*UnsupportedError); ok {
		return u.Line
	}

	m := parseErrorLine.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])

	return n
}

// Precompile turns a parsed template into a runtime template spec.
func Precompile(program *ast.Program, source string, opts CompileOptions) (*Compiled, error) {
	c := &compiler{
		source:     source,
		lineStarts: lineStarts(source),
	}

	main, err := c.compileProgram(program)
	if err != nil {
		return nil, err
	}

	var (
		b        jsmodule.Builder
		mappings []sourcemap.Mapping
	)

	embed := func(f *fragment) {
		line, col := b.Position()
		for _, m := range f.mappings {
			if m.GenLine == 0 {
				m.GenCol += col
			}
			m.GenLine += line
			mappings = append(mappings, m)
		}
		b.Write(f.b.String())
	}

	b.Write("{")
	for i, child := range c.children {
		b.Write(jsmodule.QuoteKey(strconv.Itoa(i+1)) + ":")
		embed(child)
		b.Write(",")
	}
	b.Write(`"compiler":` + compilerRevision + `,"main":`)
	embed(main)
	b.Write(`,"useData":true`)
	if c.useDepths {
		b.Write(`,"useDepths":true`)
	}
	if c.usePartial {
		b.Write(`,"usePartial":true`)
	}
	b.Write("}")

	out := &Compiled{Code: b.String()}
	if opts.SourceMap {
		m := sourcemap.New(opts.SrcName, source)
		m.Mappings = mappings
		out.Map = m
	}

	return out, nil
}

type compiler struct {
	source     string
	lineStarts []int
	children   []*fragment
	useDepths  bool
	usePartial bool
}

// fragment is one compiled program function and the mappings of its
// statements, relative to the start of the function text.
type fragment struct {
	b        jsmodule.Builder
	mappings []sourcemap.Mapping
}

func (f *fragment) emit(srcLine, srcCol int, code string) {
	line, _ := f.b.Position()
	f.mappings = append(f.mappings, sourcemap.Mapping{
		GenLine: line,
		GenCol:  len(statementIndent),
		SrcLine: srcLine,
		SrcCol:  srcCol,
	})
	f.b.Line(statementIndent + code)
}

func (c *compiler) compileProgram(prog *ast.Program) (*fragment, error) {
	if len(prog.BlockParams) > 0 {
		return nil, c.unsupported(prog, "block parameters")
	}

	f := &fragment{}
	f.b.Line(programSignature)
	f.b.Line(programPrologue)

	for _, node := range prog.Body {
		if err := c.statement(f, node); err != nil {
			return nil, err
		}
	}

	f.b.Line(statementIndent + "return buffer;")
	f.b.Write("}")

	return f, nil
}

// child compiles a nested program and returns its spec index.
func (c *compiler) child(prog *ast.Program) (int, error) {
	f, err := c.compileProgram(prog)
	if err != nil {
		return 0, err
	}
	c.children = append(c.children, f)

	return len(c.children), nil
}

func (c *compiler) statement(f *fragment, node ast.Node) error {
	line, col := c.position(node)

	switch n := node.(type) {
	case *ast.ContentStatement:
		if n.Value == "" {
			return nil
		}
		f.emit(line, col, "buffer += "+jsmodule.QuoteKey(n.Value)+";")

	case *ast.CommentStatement:
		return nil

	case *ast.MustacheStatement:
		value, err := c.mustache(n)
		if err != nil {
			return err
		}
		f.emit(line, col, "buffer += "+value+";")

	case *ast.BlockStatement:
		return c.block(f, n, line, col)

	case *ast.PartialStatement:
		return c.partial(f, n, line, col)

	default:
		return c.unsupported(node, fmt.Sprintf("statement %T", node))
	}

	return nil
}

func (c *compiler) mustache(n *ast.MustacheStatement) (string, error) {
	expr := n.Expression
	path, isPath := expr.Path.(*ast.PathExpression)

	var (
		value string
		err   error
	)

	switch {
	case hasArguments(expr):
		value, err = c.helperCall(expr, "", "")
	case isPath && isSimple(path):
		value = ambiguousLookup(path.Parts[0])
	default:
		var v string
		v, err = c.param(expr.Path)
		value = fmt.Sprintf("container.lambda(%s, depth0)", v)
	}
	if err != nil {
		return "", err
	}

	if n.Unescaped {
		return fmt.Sprintf(`((stack1 = %s) != null ? stack1 : "")`, value), nil
	}

	return fmt.Sprintf("container.escapeExpression(%s)", value), nil
}

func (c *compiler) block(f *fragment, n *ast.BlockStatement, line, col int) error {
	fn, inverse := "container.noop", "container.noop"

	if n.Program != nil {
		id, err := c.child(n.Program)
		if err != nil {
			return err
		}
		fn = programRef(id)
	}
	if n.Inverse != nil {
		id, err := c.child(n.Inverse)
		if err != nil {
			return err
		}
		inverse = programRef(id)
	}

	expr := n.Expression
	path, isPath := expr.Path.(*ast.PathExpression)

	switch {
	case hasArguments(expr):
		call, err := c.helperCall(expr, fn, inverse)
		if err != nil {
			return err
		}
		f.emit(line, col, "stack1 = "+call+";")

	case isPath && isSimple(path):
		name := jsmodule.QuoteKey(path.Parts[0])
		opts := c.options(expr, "{}", fn, inverse)
		f.emit(line, col, fmt.Sprintf(
			`stack1 = ((helper = (helper = lookupProperty(helpers,%[1]s) || (depth0 != null ? lookupProperty(depth0,%[1]s) : depth0)) != null ? helper : container.hooks.helperMissing),(options=%[2]s),(typeof helper === "function" ? helper.call(alias1,options) : helper));`,
			name, opts))
		f.b.Line(statementIndent + fmt.Sprintf(
			"if (!lookupProperty(helpers,%s)) { stack1 = container.hooks.blockHelperMissing.call(depth0,stack1,options); }", name))

	default:
		value, err := c.param(expr.Path)
		if err != nil {
			return err
		}
		opts := c.options(expr, "{}", fn, inverse)
		f.emit(line, col, fmt.Sprintf(
			"stack1 = container.hooks.blockHelperMissing.call(depth0,container.lambda(%s, depth0),%s);", value, opts))
	}

	f.b.Line(statementIndent + "if (stack1 != null) { buffer += stack1; }")

	return nil
}

func (c *compiler) partial(f *fragment, n *ast.PartialStatement, line, col int) error {
	var name string
	switch p := n.Name.(type) {
	case *ast.PathExpression:
		name = p.Original
	case *ast.StringLiteral:
		name = p.Value
	default:
		return c.unsupported(n, "dynamic partial name")
	}

	context := "depth0"
	switch len(n.Params) {
	case 0:
	case 1:
		v, err := c.param(n.Params[0])
		if err != nil {
			return err
		}
		context = v
	default:
		return c.unsupported(n, "partial with more than one context parameter")
	}

	hash, err := c.hash(n.Hash)
	if err != nil {
		return err
	}

	c.usePartial = true
	quoted := jsmodule.QuoteKey(name)

	f.emit(line, col, fmt.Sprintf(
		`stack1 = container.invokePartial(lookupProperty(partials,%s),%s,{"name":%s,"hash":%s,"data":data,"indent":%s,"helpers":helpers,"partials":partials,"decorators":container.decorators});`,
		quoted, context, quoted, hash, jsmodule.QuoteKey(n.Indent)))
	f.b.Line(statementIndent + "if (stack1 != null) { buffer += stack1; }")

	return nil
}

// helperCall invokes expr as a helper. fn and inverse are program
// references for block helpers and empty otherwise.
func (c *compiler) helperCall(expr *ast.Expression, fn, inverse string) (string, error) {
	var callee string

	switch p := expr.Path.(type) {
	case *ast.PathExpression:
		if isSimple(p) {
			name := jsmodule.QuoteKey(p.Parts[0])
			callee = fmt.Sprintf("(lookupProperty(helpers,%[1]s) || (depth0 && lookupProperty(depth0,%[1]s)) || container.hooks.helperMissing)", name)
		} else {
			callee = fmt.Sprintf("(%s || container.hooks.helperMissing)", c.pathValue(p))
		}
	default:
		return "", c.unsupported(expr, "helper call on a literal")
	}

	args := make([]string, 0, len(expr.Params)+2)
	args = append(args, "alias1")
	for _, param := range expr.Params {
		v, err := c.param(param)
		if err != nil {
			return "", err
		}
		args = append(args, v)
	}

	hash, err := c.hash(expr.Hash)
	if err != nil {
		return "", err
	}
	args = append(args, c.options(expr, hash, fn, inverse))

	return callee + ".call(" + strings.Join(args, ",") + ")", nil
}

func (c *compiler) options(expr *ast.Expression, hash, fn, inverse string) string {
	var sb strings.Builder
	sb.WriteString(`{"name":`)
	sb.WriteString(jsmodule.QuoteKey(helperName(expr)))
	sb.WriteString(`,"hash":`)
	sb.WriteString(hash)
	if fn != "" {
		sb.WriteString(`,"fn":`)
		sb.WriteString(fn)
		sb.WriteString(`,"inverse":`)
		sb.WriteString(inverse)
	}
	sb.WriteString(`,"data":data}`)

	return sb.String()
}

func (c *compiler) hash(h *ast.Hash) (string, error) {
	if h == nil || len(h.Pairs) == 0 {
		return "{}", nil
	}

	parts := make([]string, 0, len(h.Pairs))
	for _, pair := range h.Pairs {
		v, err := c.param(pair.Val)
		if err != nil {
			return "", err
		}
		parts = append(parts, jsmodule.QuoteKey(pair.Key)+":"+v)
	}

	return "{" + strings.Join(parts, ",") + "}", nil
}

func (c *compiler) param(node ast.Node) (string, error) {
	switch n := node.(type) {
	case *ast.PathExpression:
		return c.pathValue(n), nil
	case *ast.StringLiteral:
		return jsmodule.QuoteKey(n.Value), nil
	case *ast.NumberLiteral:
		return strconv.FormatFloat(n.Value, 'g', -1, 64), nil
	case *ast.BooleanLiteral:
		return strconv.FormatBool(n.Value), nil
	case *ast.SubExpression:
		return c.helperCall(n.Expression, "", "")
	default:
		return "", c.unsupported(node, fmt.Sprintf("expression %T", node))
	}
}

// pathValue resolves a path against the current context, an ancestor
// context or the data frame, guarding every step against null parents.
func (c *compiler) pathValue(p *ast.PathExpression) string {
	base := "depth0"

	switch {
	case p.Data:
		base = "data"
		if p.Depth > 0 {
			base = fmt.Sprintf("container.data(data, %d)", p.Depth)
		}
	case p.Depth > 0:
		c.useDepths = true
		base = fmt.Sprintf("depths[%d]", p.Depth)
	}

	return lookupChain(base, p.Parts)
}

func lookupChain(base string, parts []string) string {
	if len(parts) == 0 {
		return base
	}

	next := fmt.Sprintf("lookupProperty(stack1,%s)", jsmodule.QuoteKey(parts[0]))
	if len(parts) > 1 {
		next = lookupChain(next, parts[1:])
	}

	return fmt.Sprintf("((stack1 = %s) != null ? %s : stack1)", base, next)
}

// ambiguousLookup resolves a bare identifier that may name either a helper
// or a context property.
func ambiguousLookup(name string) string {
	q := jsmodule.QuoteKey(name)

	return fmt.Sprintf(
		`((helper = (helper = lookupProperty(helpers,%[1]s) || (depth0 != null ? lookupProperty(depth0,%[1]s) : depth0)) != null ? helper : container.hooks.helperMissing),(typeof helper === "function" ? helper.call(alias1,{"name":%[1]s,"hash":{},"data":data}) : helper))`,
		q)
}

func programRef(id int) string {
	return fmt.Sprintf("container.program(%d, data, 0, blockParams, depths)", id)
}

func hasArguments(expr *ast.Expression) bool {
	return len(expr.Params) > 0 || (expr.Hash != nil && len(expr.Hash.Pairs) > 0)
}

func isSimple(p *ast.PathExpression) bool {
	return !p.Data && p.Depth == 0 && !p.Scoped && len(p.Parts) == 1
}

func helperName(expr *ast.Expression) string {
	switch p := expr.Path.(type) {
	case *ast.PathExpression:
		return p.Original
	case *ast.StringLiteral:
		return p.Value
	default:
		return ""
	}
}

func (c *compiler) unsupported(node ast.Node, construct string) error {
	line, _ := c.position(node)

	return &UnsupportedError{Construct: construct, Line: line + 1}
}

// position converts a node's byte offset into a zero-based line and a column
// in UTF-16 code units.
func (c *compiler) position(node ast.Node) (line, col int) {
	pos := node.Location().Pos
	if pos < 0 {
		pos = 0
	}
	if pos > len(c.source) {
		pos = len(c.source)
	}

	idx := sort.Search(len(c.lineStarts), func(i int) bool { return c.lineStarts[i] > pos }) - 1
	if idx < 0 {
		idx = 0
	}

	return idx, jsmodule.UTF16Len(c.source[c.lineStarts[idx]:pos])
}

func lineStarts(source string) []int {
	starts := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}

	return starts
}
