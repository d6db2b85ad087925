// Two scope stacks, variable/typedef/enum-constant and struct/union/
// enum tags, each tracked as a slice tagged with the scope depth it
// was pushed at (spec §3 "Scopes"). enterScope/leaveScope bracket
// blocks, loop bodies, and function bodies; leaveScope pops both
// stacks back to the enclosing depth.
package main

// VarScope binds one name, at one scope depth, to exactly one of: a
// Var, a typedef Type, or an enum constant (Type + value).
type VarScope struct {
	Name  string
	Depth int

	Var       *Var
	Typedef   *Type
	EnumTy    *Type
	EnumVal   int64
	IsEnumVal bool
}

// TagScope binds a struct/union/enum tag name to its Type.
type TagScope struct {
	Name  string
	Depth int
	Ty    *Type
}

func (p *Parser) enterScope() {
	p.scopeDepth++
}

func (p *Parser) leaveScope() {
	for len(p.varScopes) > 0 && p.varScopes[len(p.varScopes)-1].Depth == p.scopeDepth {
		p.varScopes = p.varScopes[:len(p.varScopes)-1]
	}
	for len(p.tagScopes) > 0 && p.tagScopes[len(p.tagScopes)-1].Depth == p.scopeDepth {
		p.tagScopes = p.tagScopes[:len(p.tagScopes)-1]
	}
	p.scopeDepth--
}

func (p *Parser) pushVarScope(name string) *VarScope {
	vs := &VarScope{Name: name, Depth: p.scopeDepth}
	p.varScopes = append(p.varScopes, vs)
	return vs
}

func (p *Parser) pushTagScope(name string, ty *Type) {
	p.tagScopes = append(p.tagScopes, &TagScope{Name: name, Depth: p.scopeDepth, Ty: ty})
}

// findVar looks up name in the variable/typedef/enum scope, innermost
// (end of slice) first.
func (p *Parser) findVar(name string) *VarScope {
	for i := len(p.varScopes) - 1; i >= 0; i-- {
		if p.varScopes[i].Name == name {
			return p.varScopes[i]
		}
	}
	return nil
}

// findTag looks up a struct/union/enum tag, innermost first.
func (p *Parser) findTag(name string) *Type {
	for i := len(p.tagScopes) - 1; i >= 0; i-- {
		if p.tagScopes[i].Name == name {
			return p.tagScopes[i].Ty
		}
	}
	return nil
}

// isTypedefName reports whether name is bound as a typedef in the
// current scope, the check the type-specifier parser uses to decide
// whether an identifier starts a declaration.
func (p *Parser) isTypedefName(name string) bool {
	vs := p.findVar(name)
	return vs != nil && vs.Typedef != nil
}
