package ir

// Module owns the arena, the function and global lists, and the
// source filename (§3.5, §3.6). A Module and its Arena share a
// lifetime: nothing outside this package frees IR objects
// individually.
type Module struct {
	Arena      *Arena
	SourceFile string
	Functions  []*Function
	Globals    []*GlobalVariable

	byName map[string]*Function
}

// NewModule creates an empty module backed by a fresh arena.
func NewModule(sourceFile string) *Module {
	return &Module{
		Arena:      NewArena(),
		SourceFile: sourceFile,
		byName:     make(map[string]*Function),
	}
}

// NewFunction declares a function and adds it to the module.
func (m *Module) NewFunction(name string, ret *Type, paramNames []string, paramTypes []*Type, variadic bool, extern bool) *Function {
	f := m.Arena.allocFunction(name, ret)
	f.Arena = m.Arena
	f.Variadic = variadic
	f.Extern = extern
	f.Params = make([]*Param, len(paramNames))
	for i := range paramNames {
		p := &Param{Name: paramNames[i]}
		p.T = paramTypes[i]
		f.Params[i] = p
	}
	m.Functions = append(m.Functions, f)
	m.byName[name] = f
	return f
}

// FuncByName looks up a declared or defined function by name.
func (m *Module) FuncByName(name string) (*Function, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// FindGlobal looks up a module-level global variable by name.
func (m *Module) FindGlobal(name string) (*GlobalVariable, bool) {
	for _, g := range m.Globals {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// NewGlobal declares a global variable or constant.
func (m *Module) NewGlobal(name string, elemType *Type, init Value, isConst bool) *GlobalVariable {
	g := m.Arena.allocGlobal(name, elemType)
	g.Init = init
	g.IsConstant = isConst
	m.Globals = append(m.Globals, g)
	return g
}
