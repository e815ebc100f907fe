package bytecode

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// Module: the unit produced by the assembler
// ---------------------------------------------------------------------------

// Global is a module-level binding declared with `global name = const`.
type Global struct {
	Name  string
	Value any
}

// Module is an assembled program: its top-level functions in source order
// and its global constant bindings.
type Module struct {
	Name      string
	Functions []*Code
	Globals   []Global
}

// Function returns the top-level function with the given name.
func (m *Module) Function(name string) (*Code, bool) {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

// AssembleError reports a syntax error in assembly source.
type AssembleError struct {
	Line int
	Msg  string
}

func (e *AssembleError) Error() string {
	return fmt.Sprintf("bytecode: line %d: %s", e.Line, e.Msg)
}

// codeRef is a placeholder for an @name constant until all functions are known.
type codeRef struct{ name string }

type assembler struct {
	module  *Module
	codes   map[string]*Code // every function, nested ones included
	current *Builder
	lineNo  int
}

// Assemble parses line-oriented assembly source into a module.
//
// The format is:
//
//	global scale = 2.0
//	func f(x, y=1) cellvars(a) freevars(b)
//	    LOAD_FAST x
//	  loop:
//	    POP_JUMP_IF_FALSE done
//	    LOAD_CONST @inner
//	  done:
//	    RETURN_VALUE
//	end
//
// Lines starting with '#' or ';' are comments. Every func is reachable
// through @name; functions whose name starts with '_' or that are only
// referenced through @name are still listed in Module.Functions.
func Assemble(src string) (*Module, error) {
	a := &assembler{
		module: &Module{},
		codes:  make(map[string]*Code),
	}
	for i, raw := range strings.Split(src, "\n") {
		a.lineNo = i + 1
		line := stripComment(raw)
		if line == "" {
			continue
		}
		if err := a.line(line); err != nil {
			return nil, err
		}
	}
	if a.current != nil {
		return nil, a.errorf("func %s missing end", a.current.code.Name)
	}
	if err := a.resolveRefs(); err != nil {
		return nil, err
	}
	return a.module, nil
}

// MustAssemble is Assemble for tests and static tables.
func MustAssemble(src string) *Module {
	m, err := Assemble(src)
	if err != nil {
		panic(err)
	}
	return m
}

func (a *assembler) errorf(format string, args ...any) error {
	return &AssembleError{Line: a.lineNo, Msg: fmt.Sprintf(format, args...)}
}

func stripComment(line string) string {
	inString := false
	for i, r := range line {
		switch {
		case r == '"' && (i == 0 || line[i-1] != '\\'):
			inString = !inString
		case (r == '#' || r == ';') && !inString:
			return strings.TrimSpace(line[:i])
		}
	}
	return strings.TrimSpace(line)
}

func (a *assembler) line(line string) error {
	switch {
	case strings.HasPrefix(line, "global "):
		if a.current != nil {
			return a.errorf("global inside func")
		}
		return a.global(strings.TrimPrefix(line, "global "))
	case strings.HasPrefix(line, "func "):
		if a.current != nil {
			return a.errorf("nested func %q; declare it at top level and reference it with @", line)
		}
		return a.funcHeader(strings.TrimPrefix(line, "func "))
	case line == "end":
		if a.current == nil {
			return a.errorf("end outside func")
		}
		code, err := a.current.Build()
		if err != nil {
			return a.errorf("%v", err)
		}
		a.module.Functions = append(a.module.Functions, code)
		a.current = nil
		return nil
	}
	if a.current == nil {
		return a.errorf("instruction outside func: %q", line)
	}
	if strings.HasSuffix(line, ":") && isIdent(strings.TrimSuffix(line, ":")) {
		a.current.Label(strings.TrimSuffix(line, ":"))
		return nil
	}
	return a.instruction(line)
}

func (a *assembler) global(rest string) error {
	name, value, ok := strings.Cut(rest, "=")
	name = strings.TrimSpace(name)
	if !ok || !isIdent(name) {
		return a.errorf("malformed global %q", rest)
	}
	v, err := a.parseConst(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	a.module.Globals = append(a.module.Globals, Global{Name: name, Value: v})
	return nil
}

func (a *assembler) funcHeader(rest string) error {
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open < 0 || closeIdx < open {
		return a.errorf("malformed func header %q", rest)
	}
	name := strings.TrimSpace(rest[:open])
	if !isIdent(name) {
		return a.errorf("bad function name %q", name)
	}
	if _, dup := a.codes[name]; dup {
		return a.errorf("duplicate func %s", name)
	}

	var args []string
	var defaults []any
	params := strings.TrimSpace(rest[open+1 : closeIdx])
	if params != "" {
		for _, p := range splitTopLevel(params) {
			pname, pdefault, hasDefault := strings.Cut(p, "=")
			pname = strings.TrimSpace(pname)
			if !isIdent(pname) {
				return a.errorf("bad parameter %q", p)
			}
			if hasDefault {
				v, err := a.parseConst(strings.TrimSpace(pdefault))
				if err != nil {
					return err
				}
				defaults = append(defaults, v)
			} else if len(defaults) > 0 {
				return a.errorf("parameter %s without default follows a default", pname)
			}
			args = append(args, pname)
		}
	}

	b := NewBuilder(name, args...).Defaults(defaults...)
	b.Code().Filename = a.module.Name

	tail := strings.TrimSpace(rest[closeIdx+1:])
	for tail != "" {
		var kw string
		switch {
		case strings.HasPrefix(tail, "cellvars("):
			kw = "cellvars("
		case strings.HasPrefix(tail, "freevars("):
			kw = "freevars("
		default:
			return a.errorf("unexpected %q after parameters", tail)
		}
		end := strings.Index(tail, ")")
		if end < 0 {
			return a.errorf("unterminated %s", kw)
		}
		var names []string
		for _, n := range strings.Split(tail[len(kw):end], ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		if kw == "cellvars(" {
			b.CellVars(names...)
		} else {
			b.FreeVars(names...)
		}
		tail = strings.TrimSpace(tail[end+1:])
	}

	a.codes[name] = b.Code()
	a.current = b
	return nil
}

func (a *assembler) instruction(line string) error {
	mnemonic, operand, _ := strings.Cut(line, " ")
	operand = strings.TrimSpace(operand)
	op, ok := LookupOpcode(strings.ToUpper(mnemonic))
	if !ok {
		return a.errorf("unknown instruction %q", mnemonic)
	}
	a.current.SetLine(a.lineNo)

	switch GetOpcodeInfo(op).Operand {
	case OperandNone:
		if operand != "" {
			return a.errorf("%s takes no operand", op)
		}
		a.current.Op(op)
	case OperandCount:
		n := 0
		if operand != "" {
			v, err := strconv.Atoi(operand)
			if err != nil {
				return a.errorf("%s: bad count %q", op, operand)
			}
			n = v
		}
		a.current.Op(op, n)
	case OperandConst:
		v, err := a.parseConst(operand)
		if err != nil {
			return err
		}
		a.current.Op(op, v)
	case OperandName:
		if !isIdent(operand) {
			return a.errorf("%s: bad name %q", op, operand)
		}
		a.current.Op(op, operand)
	case OperandCompare:
		switch operand {
		case "<", "<=", "==", "!=", ">", ">=":
		default:
			return a.errorf("%s: bad comparison %q", op, operand)
		}
		a.current.Op(op, operand)
	case OperandJump:
		if !isIdent(operand) {
			return a.errorf("%s: bad label %q", op, operand)
		}
		a.current.Jump(op, operand)
	}
	return nil
}

// parseConst reads one constant literal.
func (a *assembler) parseConst(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, a.errorf("missing constant")
	case s == "None":
		return nil, nil
	case s == "True":
		return true, nil
	case s == "False":
		return false, nil
	case strings.HasPrefix(s, "@"):
		name := s[1:]
		if !isIdent(name) {
			return nil, a.errorf("bad code reference %q", s)
		}
		return codeRef{name: name}, nil
	case strings.HasPrefix(s, "\""):
		v, err := strconv.Unquote(s)
		if err != nil {
			return nil, a.errorf("bad string %s", s)
		}
		return v, nil
	case strings.HasPrefix(s, "("):
		if !strings.HasSuffix(s, ")") {
			return nil, a.errorf("unterminated tuple %s", s)
		}
		inner := strings.TrimSpace(s[1 : len(s)-1])
		tuple := ConstTuple{}
		if inner == "" {
			return tuple, nil
		}
		for _, part := range splitTopLevel(inner) {
			if strings.TrimSpace(part) == "" {
				continue // trailing comma of a 1-tuple
			}
			v, err := a.parseConst(part)
			if err != nil {
				return nil, err
			}
			tuple = append(tuple, v)
		}
		return tuple, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return nil, a.errorf("bad constant %q", s)
}

// resolveRefs replaces @name placeholders with the named code objects.
func (a *assembler) resolveRefs() error {
	var resolve func(v any) (any, error)
	resolve = func(v any) (any, error) {
		switch c := v.(type) {
		case codeRef:
			code, ok := a.codes[c.name]
			if !ok {
				return nil, &AssembleError{Msg: fmt.Sprintf("undefined code reference @%s", c.name)}
			}
			return code, nil
		case ConstTuple:
			out := make(ConstTuple, len(c))
			for i, item := range c {
				r, err := resolve(item)
				if err != nil {
					return nil, err
				}
				out[i] = r
			}
			return out, nil
		}
		return v, nil
	}

	for _, code := range a.module.Functions {
		for i, k := range code.Consts {
			r, err := resolve(k)
			if err != nil {
				return err
			}
			code.Consts[i] = r
		}
		for i := range code.Instructions {
			in := &code.Instructions[i]
			if GetOpcodeInfo(in.Op).Operand == OperandConst {
				in.ArgVal = code.Consts[in.Arg]
			}
		}
		for i, d := range code.Defaults {
			r, err := resolve(d)
			if err != nil {
				return err
			}
			code.Defaults[i] = r
		}
	}
	for i, g := range a.module.Globals {
		r, err := resolve(g.Value)
		if err != nil {
			return err
		}
		a.module.Globals[i].Value = r
	}
	return nil
}

// splitTopLevel splits on commas that are not nested in parentheses or strings.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	inString := false
	for i, r := range s {
		switch {
		case r == '"' && (i == 0 || s[i-1] != '\\'):
			inString = !inString
		case inString:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
