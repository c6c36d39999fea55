package ast

import (
	"encoding/json"
	"fmt"
)

// The front end hands this package a JSON encoding of the checked
// tree (§6.3): one flat struct per statement/expression kind, tagged
// by a "kind" discriminator field, mirroring the shape most JSON-fed
// ASTs in this ecosystem use rather than a typed sum encoded through
// custom (Un)marshalJSON methods per node.

type wireType struct {
	Void    bool       `json:"void,omitempty"`
	Basic   string     `json:"basic,omitempty"`
	IsArray bool       `json:"is_array,omitempty"`
	Dims    []int      `json:"dims,omitempty"`
	IsPtr   bool       `json:"is_ptr,omitempty"`
	Elem    *wireType  `json:"elem,omitempty"`
	Const   bool       `json:"const,omitempty"`
}

func (w *wireType) decode() *Type {
	if w == nil {
		return nil
	}
	t := &Type{
		Void:    w.Void,
		Basic:   decodeBasicKind(w.Basic),
		IsArray: w.IsArray,
		Dims:    w.Dims,
		IsPtr:   w.IsPtr,
		Const:   w.Const,
	}
	if w.Elem != nil {
		t.Elem = w.Elem.decode()
	}
	return t
}

func decodeBasicKind(s string) BasicKind {
	switch s {
	case "i1":
		return KindI1
	case "i8":
		return KindI8
	case "i64":
		return KindI64
	case "f32":
		return KindF32
	case "f64":
		return KindF64
	default:
		return KindI32
	}
}

type wireSymbol struct {
	Name       string          `json:"name"`
	Type       *wireType       `json:"sym_type"`
	IsGlobal   bool            `json:"is_global,omitempty"`
	IsConst    bool            `json:"is_const,omitempty"`
	ConstValue *wireConstValue `json:"const_value,omitempty"`
}

func (w *wireSymbol) decode() *Symbol {
	if w == nil {
		return nil
	}
	return &Symbol{
		Name:       w.Name,
		Type:       w.Type.decode(),
		IsGlobal:   w.IsGlobal,
		IsConst:    w.IsConst,
		ConstValue: w.ConstValue.decode(),
	}
}

type wireConstValue struct {
	Type     *wireType         `json:"const_type"`
	Int      int64             `json:"int,omitempty"`
	Float    float64           `json:"float,omitempty"`
	IsFloat  bool              `json:"is_float,omitempty"`
	Elements []*wireConstValue `json:"elements,omitempty"`
}

func (w *wireConstValue) decode() *ConstValue {
	if w == nil {
		return nil
	}
	cv := &ConstValue{Type: w.Type.decode(), Int: w.Int, Float: w.Float, IsFloat: w.IsFloat}
	if w.Elements != nil {
		cv.Elements = make([]*ConstValue, len(w.Elements))
		for i, e := range w.Elements {
			cv.Elements[i] = e.decode()
		}
	}
	return cv
}

// wireExpr is the flat union of every Expr kind's fields (§6.3's JSON
// interface). Kind selects which fields apply.
type wireExpr struct {
	Kind string `json:"kind"`

	EvalType *wireType `json:"eval_type"`

	IntValue   int64   `json:"int_value,omitempty"`
	FloatValue float64 `json:"float_value,omitempty"`

	Sym *wireSymbol `json:"sym,omitempty"`

	Op    string    `json:"op,omitempty"`
	Left  *wireExpr `json:"left,omitempty"`
	Right *wireExpr `json:"right,omitempty"`
	X     *wireExpr `json:"x,omitempty"`

	Callee string      `json:"callee,omitempty"`
	Args   []*wireExpr `json:"args,omitempty"`

	Array *wireExpr `json:"array,omitempty"`
	Index *wireExpr `json:"index,omitempty"`

	Elements []*wireExpr `json:"elements,omitempty"`

	From *wireExpr `json:"from,omitempty"`
}

func (w *wireExpr) decode() (Expr, error) {
	if w == nil {
		return nil, nil
	}
	b := base{Eval: w.EvalType.decode()}
	switch w.Kind {
	case "int_lit":
		return &IntLit{base: b, Value: w.IntValue}, nil
	case "float_lit":
		return &FloatLit{base: b, Value: w.FloatValue}, nil
	case "ident":
		return &Ident{base: b, Sym: w.Sym.decode()}, nil
	case "binary":
		l, err := w.Left.decode()
		if err != nil {
			return nil, err
		}
		r, err := w.Right.decode()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{base: b, Op: w.Op, Left: l, Right: r}, nil
	case "unary":
		x, err := w.X.decode()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{base: b, Op: w.Op, X: x}, nil
	case "call":
		args := make([]Expr, len(w.Args))
		for i, a := range w.Args {
			v, err := a.decode()
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return &CallExpr{base: b, Callee: w.Callee, Args: args}, nil
	case "index":
		arr, err := w.Array.decode()
		if err != nil {
			return nil, err
		}
		idx, err := w.Index.decode()
		if err != nil {
			return nil, err
		}
		return &IndexExpr{base: b, Array: arr, Index: idx}, nil
	case "array_lit":
		elems := make([]Expr, len(w.Elements))
		for i, e := range w.Elements {
			v, err := e.decode()
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return &ArrayLit{base: b, Elements: elems}, nil
	case "convert":
		from, err := w.From.decode()
		if err != nil {
			return nil, err
		}
		return &Convert{base: b, From: from}, nil
	}
	return nil, fmt.Errorf("ast: unknown expression kind %q", w.Kind)
}

// wireStmt is the flat union of every Stmt kind's fields.
type wireStmt struct {
	Kind string `json:"kind"`

	Sym  *wireSymbol `json:"sym,omitempty"`
	Init *wireExpr   `json:"init,omitempty"`

	Target *wireExpr `json:"target,omitempty"`
	Value  *wireExpr `json:"value,omitempty"`

	X *wireExpr `json:"x,omitempty"`

	Stmts []*wireStmt `json:"stmts,omitempty"`

	Cond *wireExpr  `json:"cond,omitempty"`
	Then *wireStmt  `json:"then,omitempty"`
	Else *wireStmt  `json:"else,omitempty"`
	Body *wireStmt  `json:"body,omitempty"`

	Ret *wireExpr `json:"ret,omitempty"`
}

func (w *wireStmt) decode() (Stmt, error) {
	if w == nil {
		return nil, nil
	}
	switch w.Kind {
	case "decl":
		init, err := w.Init.decode()
		if err != nil {
			return nil, err
		}
		return &DeclStmt{Sym: w.Sym.decode(), Init: init}, nil
	case "assign":
		t, err := w.Target.decode()
		if err != nil {
			return nil, err
		}
		v, err := w.Value.decode()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Target: t, Value: v}, nil
	case "expr":
		x, err := w.X.decode()
		if err != nil {
			return nil, err
		}
		return &ExprStmt{X: x}, nil
	case "block":
		stmts := make([]Stmt, len(w.Stmts))
		for i, s := range w.Stmts {
			v, err := s.decode()
			if err != nil {
				return nil, err
			}
			stmts[i] = v
		}
		return &BlockStmt{Stmts: stmts}, nil
	case "if":
		cond, err := w.Cond.decode()
		if err != nil {
			return nil, err
		}
		then, err := w.Then.decode()
		if err != nil {
			return nil, err
		}
		els, err := w.Else.decode()
		if err != nil {
			return nil, err
		}
		return &IfStmt{Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := w.Cond.decode()
		if err != nil {
			return nil, err
		}
		body, err := w.Body.decode()
		if err != nil {
			return nil, err
		}
		return &WhileStmt{Cond: cond, Body: body}, nil
	case "break":
		return &BreakStmt{}, nil
	case "continue":
		return &ContinueStmt{}, nil
	case "return":
		v, err := w.Ret.decode()
		if err != nil {
			return nil, err
		}
		return &ReturnStmt{Value: v}, nil
	}
	return nil, fmt.Errorf("ast: unknown statement kind %q", w.Kind)
}

type wireParam struct {
	Sym *wireSymbol `json:"sym"`
}

type wireFuncDecl struct {
	Name       string        `json:"name"`
	Params     []*wireParam  `json:"params"`
	ReturnType *wireType     `json:"return_type"`
	Variadic   bool          `json:"variadic,omitempty"`
	Body       []*wireStmt   `json:"body,omitempty"`
}

type wireGlobalDecl struct {
	Sym  *wireSymbol `json:"sym"`
	Init *wireExpr   `json:"init,omitempty"`
}

type wireModule struct {
	SourceFile string            `json:"source_file"`
	Globals    []*wireGlobalDecl `json:"globals,omitempty"`
	Functions  []*wireFuncDecl   `json:"functions"`
}

// Decode parses the front end's checked-tree JSON encoding into a
// Module (§6.3). This is the seam a real lexer/parser/type-checker
// would instead feed directly as an in-memory tree; cmd/ entry points
// use this path to accept test fixtures and example programs as JSON.
func Decode(data []byte) (*Module, error) {
	var w wireModule
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("ast: invalid module JSON: %w", err)
	}

	mod := &Module{SourceFile: w.SourceFile}

	for _, g := range w.Globals {
		init, err := g.Init.decode()
		if err != nil {
			return nil, fmt.Errorf("ast: global %s: %w", g.Sym.Name, err)
		}
		mod.Globals = append(mod.Globals, &GlobalDecl{Sym: g.Sym.decode(), Init: init})
	}

	for _, f := range w.Functions {
		params := make([]*Param, len(f.Params))
		for i, p := range f.Params {
			params[i] = &Param{Sym: p.Sym.decode()}
		}
		var body []Stmt
		for _, s := range f.Body {
			v, err := s.decode()
			if err != nil {
				return nil, fmt.Errorf("ast: function %s: %w", f.Name, err)
			}
			body = append(body, v)
		}
		mod.Functions = append(mod.Functions, &FuncDecl{
			Name:       f.Name,
			Params:     params,
			ReturnType: f.ReturnType.decode(),
			Variadic:   f.Variadic,
			Body:       body,
		})
	}

	return mod, nil
}
