// Recursive-descent parser producing a typed AST (spec §4.5). Every
// production takes the current token and returns the node plus the
// token following what it consumed — there is no mutable cursor, so
// lookahead of arbitrary depth is free (spec §9).
package main

import "strconv"

// globalDiag is the one piece of file-scope mutable state in the
// parser: add_type (addtype.go) needs a Diagnostics to report
// "dereferencing a void pointer" etc. from deep inside a recursive
// walk where threading a Parser through every call would otherwise be
// pure ceremony. Everything else lives on the Parser/Compiler context
// struct, per spec §9's "wrap them in a Compiler context" guidance;
// this variable is the one exception.
var globalDiag *Diagnostics

// VarAttr captures storage-class/qualifier keywords and an explicit
// _Alignas(...), threaded alongside the base Type through declaration
// parsing (spec §4.5 "Type specifiers").
type VarAttr struct {
	IsTypedef bool
	IsStatic  bool
	IsExtern  bool
	IsInline  bool
	Align     int // 0 = unspecified
}

// Parser holds both scope stacks, the globals/functions accumulated
// so far, and per-function parsing state (spec §3 "Scopes", §5
// "Module-level mutable state... wrap in a Compiler context").
type Parser struct {
	diag *Diagnostics

	varScopes  []*VarScope
	tagScopes  []*TagScope
	scopeDepth int

	globals []*Var
	funcs   []*Function

	currentFn     *Function
	currentSwitch *Node

	labelCount int
	tmpCount   int

	gotos  []*Node
	labels []*Node

	breakLabel string
	contLabel  string

	// typeSuffixRest is how far typeSuffix advanced; declarator reads
	// it right after calling typeSuffix since typeSuffix's recursion
	// through array dimensions makes returning a third value awkward
	// to thread through arrayDimensions' own recursive call.
	typeSuffixRest *Token
}

// Parse runs the parser over a fully preprocessed token chain and
// returns the completed Program.
func Parse(diag *Diagnostics, tok *Token) *Program {
	globalDiag = diag
	p := &Parser{diag: diag}
	p.installBuiltinTypedefs()

	for tok.Kind != TkEOF {
		ty, attr, rest := p.declspec(tok)
		tok = rest

		if attr.IsTypedef {
			for {
				name, declTy, r := p.declarator(tok, ty)
				tok = r
				vs := p.pushVarScope(name.Text())
				vs.Typedef = declTy
				if !tok.Is(",") {
					break
				}
				tok = tok.Next
			}
			tok = p.expectSemi(tok)
			continue
		}

		if p.isFuncDef(tok, ty) {
			tok = p.funcDef(tok, ty, attr)
			continue
		}

		tok = p.globalDecl(tok, ty, attr)
	}
	return &Program{Globals: p.globals, Funcs: p.funcs}
}

func (p *Parser) installBuiltinTypedefs() {
	vs := p.pushVarScope("__builtin_va_list")
	vs.Typedef = PointerTo(TyVoidType)
}

func (p *Parser) expectSemi(tok *Token) *Token {
	if !tok.Is(";") {
		p.diag.ErrorTok(tok, "expected ';'")
	}
	return tok.Next
}

func (p *Parser) expect(tok *Token, s string) *Token {
	if !tok.Is(s) {
		p.diag.ErrorTok(tok, "expected '%s'", s)
	}
	return tok.Next
}

func (p *Parser) consume(tok *Token, s string) (bool, *Token) {
	if tok.Is(s) {
		return true, tok.Next
	}
	return false, tok
}

// isFuncDef peeks past a declarator to see whether it is followed by
// a compound statement (a function definition) rather than ';'/'='/','
// (a global declaration).
func (p *Parser) isFuncDef(tok *Token, baseTy *Type) bool {
	if tok.Is(";") {
		return false
	}
	_, ty, rest := p.declarator(tok, baseTy)
	return ty.Kind == TyFunc && rest.Is("{")
}

// --- Type specifiers (spec §4.5 "Type specifiers") ---

const (
	specVoid   = 1 << 0
	specBool   = 1 << 2
	specChar   = 1 << 4
	specShort  = 1 << 6
	specInt    = 1 << 8
	specLong   = 1 << 10
	specFloat  = 1 << 12
	specDouble = 1 << 14
	specOther  = 1 << 16
	specSigned = 1 << 17
	specUnsign = 1 << 18
)

// declspec parses the combination of storage-class keywords,
// qualifiers, and builtin-type/struct/union/enum/typedef-name/
// _Alignas specifiers that the grammar summary groups as `typespec`,
// counting builtin-type keywords in a bitfield so permutations like
// "long int signed" match the same equivalence class (spec §4.5).
func (p *Parser) declspec(tok *Token) (*Type, *VarAttr, *Token) {
	attr := &VarAttr{}
	ty := TyIntType
	counter := 0
	sawType := false

	for isTypenameStart(p, tok) {
		switch {
		case tok.Is("typedef"):
			attr.IsTypedef = true
			tok = tok.Next
			continue
		case tok.Is("static"):
			attr.IsStatic = true
			tok = tok.Next
			continue
		case tok.Is("extern"):
			attr.IsExtern = true
			tok = tok.Next
			continue
		case tok.Is("inline"):
			attr.IsInline = true
			tok = tok.Next
			continue
		case tok.Is("const"), tok.Is("volatile"), tok.Is("restrict"), tok.Is("auto"), tok.Is("register"), tok.Is("noreturn"), tok.Is("_Noreturn"):
			tok = tok.Next
			continue
		case tok.Is("_Alignas"):
			tok = tok.Next
			tok = p.expect(tok, "(")
			if isTypenameStart(p, tok) {
				aty, _, r := p.typename(tok)
				attr.Align = aty.Align
				tok = r
			} else {
				n, r := p.constExpr(tok)
				attr.Align = int(EvalConstExpr(p.diag, n))
				tok = r
			}
			tok = p.expect(tok, ")")
			continue
		}

		if vs := p.findVar(tok.Text()); vs != nil && vs.Typedef != nil && !sawType {
			ty = vs.Typedef
			sawType = true
			counter += specOther
			tok = tok.Next
			continue
		}

		switch {
		case tok.Is("struct"):
			ty = p.structUnionDecl(tok.Next, true, &tok)
			sawType = true
			counter += specOther
			continue
		case tok.Is("union"):
			ty = p.structUnionDecl(tok.Next, false, &tok)
			sawType = true
			counter += specOther
			continue
		case tok.Is("enum"):
			ty = p.enumSpecifier(tok.Next, &tok)
			sawType = true
			counter += specOther
			continue
		}

		switch tok.Text() {
		case "void":
			counter += specVoid
		case "_Bool":
			counter += specBool
		case "char":
			counter += specChar
		case "short":
			counter += specShort
		case "int":
			counter += specInt
		case "long":
			counter += specLong
		case "float":
			counter += specFloat
		case "double":
			counter += specDouble
		case "signed":
			counter += specSigned
		case "unsigned":
			counter += specUnsign
		default:
			p.diag.ErrorTok(tok, "internal error classifying type keyword")
		}
		tok = tok.Next

		switch counter {
		case specVoid:
			ty = TyVoidType
		case specBool:
			ty = TyBoolType
		case specChar, specSigned + specChar:
			ty = TyCharType
		case specUnsign + specChar:
			ty = TyUcharType
		case specShort, specShort + specInt, specSigned + specShort, specSigned + specShort + specInt:
			ty = TyShortType
		case specUnsign + specShort, specUnsign + specShort + specInt:
			ty = TyUshortType
		case specInt, specSigned, specSigned + specInt:
			ty = TyIntType
		case specUnsign, specUnsign + specInt:
			ty = TyUintType
		case specLong, specLong + specInt, specLong + specLong, specLong + specLong + specInt,
			specSigned + specLong, specSigned + specLong + specInt, specSigned + specLong + specLong, specSigned + specLong + specLong + specInt:
			ty = TyLongType
		case specUnsign + specLong, specUnsign + specLong + specInt, specUnsign + specLong + specLong, specUnsign + specLong + specLong + specInt:
			ty = TyUlongType
		case specFloat:
			ty = TyFloatType
		case specDouble, specLong + specDouble:
			ty = TyDoubleType
		}
	}

	if counter == 0 && !sawType {
		// No type specifier at all: implicit-int is a warning, not an
		// error, matching historical C (and chibicc's leniency).
		p.diag.WarnTok(tok, "type defaults to 'int'")
	}
	return ty, attr, tok
}

// isTypenameStart reports whether tok can begin a typespec: a builtin
// keyword, a storage/qualifier keyword, struct/union/enum, _Alignas,
// or a name bound as a typedef in scope.
func isTypenameStart(p *Parser, tok *Token) bool {
	if tok.Kind != TkIdent && tok.Kind != TkKeyword {
		return false
	}
	switch tok.Text() {
	case "void", "_Bool", "char", "short", "int", "long", "float", "double",
		"signed", "unsigned", "struct", "union", "enum", "typedef", "static",
		"extern", "inline", "const", "volatile", "restrict", "auto", "register",
		"noreturn", "_Noreturn", "_Alignas":
		return true
	}
	return p.isTypedefName(tok.Text())
}

// --- Declarators (spec §4.5 "Declarators") ---

// declarator parses `pointers ("(" declarator ")" | ident) type-suffix`.
// Nested "(...)" declarators are resolved by first skipping the inner
// declarator with a placeholder type, computing the suffix type that
// follows the ")", and then re-parsing the inner declarator against
// that now-known base type (spec §4.5's fixed-point resolution).
func (p *Parser) declarator(tok *Token, ty *Type) (*Token, *Type, *Token) {
	for {
		ok, r := p.consume(tok, "*")
		if !ok {
			break
		}
		tok = r
		ty = PointerTo(ty)
		for tok.Is("const") || tok.Is("volatile") || tok.Is("restrict") {
			tok = tok.Next
		}
	}

	if tok.Is("(") {
		start := tok
		placeholder := &Type{}
		_, _, afterInner := p.declarator(start.Next, placeholder)
		afterParen := p.expect(afterInner, ")")
		suffixTy := p.typeSuffix(afterParen, ty)
		rest := p.typeSuffixRest
		name, realTy, _ := p.declarator(start.Next, suffixTy)
		return name, realTy, rest
	}

	var name *Token
	if tok.Kind == TkIdent {
		name = tok
		tok = tok.Next
	}
	finalTy := p.typeSuffix(tok, ty)
	return name, finalTy, p.typeSuffixRest
}

// typeSuffix dispatches "(" func-params | "[" array-dimensions | ε
// and records how far it advanced in p.typeSuffixRest (declarator's
// placeholder-fixup recursion needs both the Type and the cursor).
func (p *Parser) typeSuffix(tok *Token, ty *Type) *Type {
	switch {
	case tok.Is("("):
		return p.funcParams(tok.Next, ty)
	case tok.Is("["):
		return p.arrayDimensions(tok, ty)
	default:
		p.typeSuffixRest = tok
		return ty
	}
}

func (p *Parser) funcParams(tok *Token, retTy *Type) *Type {
	var head Type
	cur := &head
	variadic := false

	if tok.Is("void") && tok.Next.Is(")") {
		tok = tok.Next
	} else {
		for !tok.Is(")") {
			if cur != &head {
				tok = p.expect(tok, ",")
			}
			if tok.Is("...") {
				variadic = true
				tok = tok.Next
				break
			}
			bty, _, r0 := p.declspec(tok)
			pname, pty, r := p.declarator(r0, bty)
			tok = r
			if pty.Kind == TyArray {
				pty = PointerTo(pty.Base)
			}
			if pty.Kind == TyFunc {
				pty = PointerTo(pty)
			}
			cur.Next = CopyType(pty)
			cur.Next.Name = pname
			cur = cur.Next
		}
	}
	tok = p.expect(tok, ")")

	fty := FuncType(retTy)
	fty.Params = head.Next
	fty.IsVariadic = variadic
	p.typeSuffixRest = tok
	return fty
}

func (p *Parser) arrayDimensions(tok *Token, base *Type) *Type {
	tok = tok.Next // consume "["
	length := -1
	if !tok.Is("]") {
		n, r := p.constExpr(tok)
		length = int(EvalConstExpr(p.diag, n))
		tok = r
	}
	tok = p.expect(tok, "]")
	elem := p.typeSuffix(tok, base)
	rest := p.typeSuffixRest
	var arr *Type
	if length < 0 {
		arr = &Type{Kind: TyArray, Base: elem, Align: elem.Align, Incomplete: true, ArrayLen: 0}
	} else {
		arr = ArrayOf(elem, length)
	}
	p.typeSuffixRest = rest
	return arr
}

// typename parses an abstract declarator: a typespec with no name,
// used by casts, sizeof(type), and function parameter types.
func (p *Parser) typename(tok *Token) (*Type, *VarAttr, *Token) {
	ty, attr, rest := p.declspec(tok)
	_, ty2, rest2 := p.declarator(rest, ty)
	return ty2, attr, rest2
}

// --- struct / union / enum (spec §4.5 "struct/union layout") ---

func (p *Parser) structUnionDecl(tok *Token, isUnion bool, outRest **Token) *Type {
	var tag *Token
	if tok.Kind == TkIdent {
		tag = tok
		tok = tok.Next
	}

	if tag != nil && !tok.Is("{") {
		ty := p.findTag(tag.Text())
		if ty == nil {
			ty = StructType()
			p.pushTagScope(tag.Text(), ty)
		}
		*outRest = tok
		return ty
	}

	tok = p.expect(tok, "{")
	ty := StructType()
	if isUnion {
		ty.Kind = TyUnion
	}
	tok = p.structMembers(tok, ty)

	if isUnion {
		p.unionLayout(ty)
	} else {
		p.structLayout(ty)
	}
	ty.Incomplete = false

	if tag != nil {
		p.pushTagScope(tag.Text(), ty)
	}
	*outRest = tok
	return ty
}

func (p *Parser) structMembers(tok *Token, ty *Type) *Token {
	var head Member
	cur := &head
	idx := 0

	for !tok.Is("}") {
		baseTy, _, r := p.declspec(tok)
		tok = r
		first := true

		for {
			if !first {
				tok = p.expect(tok, ",")
			}
			first = false

			name, mty, r2 := p.declarator(tok, baseTy)
			tok = r2

			m := &Member{Ty: mty, Tok: name, Name: name, Idx: idx, Align: mty.Align}
			idx++

			if tok.Is(":") {
				n, r3 := p.constExpr(tok.Next)
				m.IsBitfield = true
				m.BitWidth = int(EvalConstExpr(p.diag, n))
				tok = r3
			}

			cur.Next = m
			cur = m

			if tok.Is(",") {
				continue
			}
			break
		}
		tok = p.expectSemi(tok)
	}
	return p.expect(tok, "}")
}

// structLayout assigns byte offsets in declaration order, packing
// consecutive bitfields into shared storage units the way chibicc's
// struct_decl does, and stretches the struct's own alignment to the
// widest member's.
func (p *Parser) structLayout(ty *Type) {
	offset := 0
	align := 1
	var bits int // bits consumed in the current storage unit
	unit := 0    // byte size of the open storage unit at offset, 0 if none

	for m := ty.Members; m != nil; m = m.Next {
		if m.IsBitfield {
			if m.BitWidth == 0 {
				offset = AlignTo(offset+unit, m.Ty.Align)
				bits, unit = 0, 0
				continue
			}
			unitBits := m.Ty.Size * 8
			if bits+m.BitWidth > unitBits {
				offset = AlignTo(offset+unit, m.Ty.Align)
				bits = 0
			}
			unit = m.Ty.Size
			m.Offset = offset
			m.BitOffset = bits
			bits += m.BitWidth
			if align < m.Align {
				align = m.Align
			}
			continue
		}
		offset += unit
		bits, unit = 0, 0
		offset = AlignTo(offset, m.Align)
		m.Offset = offset
		if !(m.Ty.Kind == TyArray && m.Ty.Incomplete) {
			offset += m.Ty.Size
		}
		if align < m.Align {
			align = m.Align
		}
	}
	offset += unit
	ty.Size = AlignTo(offset, align)
	ty.Align = align
}

func (p *Parser) unionLayout(ty *Type) {
	align := 1
	size := 0
	for m := ty.Members; m != nil; m = m.Next {
		m.Offset = 0
		if align < m.Align {
			align = m.Align
		}
		w := m.Ty.Size
		if m.IsBitfield {
			w = AlignTo(m.BitWidth, 8) / 8
		}
		if size < w {
			size = w
		}
	}
	ty.Size = AlignTo(size, align)
	ty.Align = align
}

func (p *Parser) getStructMember(ty *Type, tok *Token) *Member {
	for m := ty.Members; m != nil; m = m.Next {
		if m.Name != nil && m.Name.Text() == tok.Text() {
			return m
		}
	}
	p.diag.ErrorTok(tok, "no such member: %s", tok.Text())
	return nil
}

func (p *Parser) enumSpecifier(tok *Token, outRest **Token) *Type {
	var tag *Token
	if tok.Kind == TkIdent {
		tag = tok
		tok = tok.Next
	}

	if tag != nil && !tok.Is("{") {
		ty := p.findTag(tag.Text())
		if ty == nil || ty.Kind != TyEnum {
			p.diag.ErrorTok(tag, "unknown enum type")
		}
		*outRest = tok
		return ty
	}

	tok = p.expect(tok, "{")
	ty := EnumType()
	var val int64

	first := true
	for !tok.Is("}") {
		if !first {
			tok = p.expect(tok, ",")
		}
		first = false
		if tok.Is("}") {
			break
		}

		name := tok
		tok = tok.Next
		if tok.Is("=") {
			n, r := p.constExpr(tok.Next)
			val = EvalConstExpr(p.diag, n)
			tok = r
		}

		vs := p.pushVarScope(name.Text())
		vs.EnumTy = ty
		vs.EnumVal = val
		vs.IsEnumVal = true
		val++
	}
	tok = p.expect(tok, "}")
	if tag != nil {
		p.pushTagScope(tag.Text(), ty)
	}
	*outRest = tok
	return ty
}

// --- Local declarations ---

func (p *Parser) newLVar(name string, ty *Type) *Var {
	v := &Var{Name: name, Ty: ty, IsLocal: true, Align: ty.Align}
	if p.currentFn != nil {
		p.currentFn.Locals = append(p.currentFn.Locals, v)
	}
	p.pushVarScope(name).Var = v
	return v
}

func (p *Parser) newGVar(name string, ty *Type, isStatic bool) *Var {
	v := &Var{Name: name, Ty: ty, IsStatic: isStatic, IsDefinition: true, Align: ty.Align}
	p.globals = append(p.globals, v)
	p.pushVarScope(name).Var = v
	return v
}

func (p *Parser) newAnonName() string {
	p.tmpCount++
	return ".L.anon." + strconv.Itoa(p.tmpCount)
}

func (p *Parser) newStringLiteral(tok *Token) *Var {
	v := p.newGVar(p.newAnonName(), tok.Ty, true)
	v.InitData = append([]byte(nil), tok.Str...)
	v.IsTentative = false
	return v
}

// declaration parses one `typespec init-declarator-list ";"` at block
// scope, lowering each initializer via initializer.go into a chain of
// assignment expressions, and returns the equivalent block of
// expression statements.
func (p *Parser) declaration(tok *Token) (*Node, *Token) {
	baseTy, attr, r := p.declspec(tok)
	tok = r

	var head Node
	cur := &head
	first := true

	for !tok.Is(";") {
		if !first {
			tok = p.expect(tok, ",")
		}
		first = false

		name, ty, r2 := p.declarator(tok, baseTy)
		tok = r2
		if ty.Kind == TyVoid {
			p.diag.ErrorTok(name, "variable declared void")
		}
		if name == nil {
			p.diag.ErrorTok(tok, "expected a variable name")
		}

		if attr.IsStatic {
			v := p.newGVar(p.newAnonName(), ty, true)
			p.varScopes[len(p.varScopes)-1].Var = v
			if tok.Is("=") {
				tok = p.gvarInitializer(tok.Next, v)
			}
			continue
		}

		v := p.newLVar(name.Text(), ty)
		if attr.Align != 0 {
			v.Align = attr.Align
		}

		if tok.Is("=") {
			var expr *Node
			expr, tok = p.lvarInitializer(tok.Next, v)
			cur.Next = newUnary(NdExprStmt, expr, tok)
			cur = cur.Next
		}

		if ty.Incomplete && ty.Kind == TyArray {
			p.diag.ErrorTok(name, "variable has incomplete type")
		}
	}

	node := newNode(NdBlock, tok)
	node.Body = head.Next
	return node, tok.Next
}

// --- Functions and globals ---

func (p *Parser) funcDef(tok *Token, ty *Type, attr *VarAttr) *Token {
	name, fty, rest := p.declarator(tok, ty)
	if name == nil {
		p.diag.ErrorTok(tok, "expected a function name")
	}

	fn := &Function{Name: name.Text(), Ty: fty, IsStatic: attr.IsStatic, IsVariadic: fty.IsVariadic, IsDefined: true}
	p.pushVarScope(name.Text())
	p.funcs = append(p.funcs, fn)
	p.currentFn = fn

	p.enterScope()
	for param := fty.Params; param != nil; param = param.Next {
		if param.Name == nil {
			p.diag.ErrorTok(name, "parameter name omitted")
		}
		v := p.newLVar(param.Name.Text(), param)
		fn.Params = append(fn.Params, v)
	}

	tok = p.expect(rest, "{")
	body, after := p.compoundStmt(tok)
	fn.Body = body
	p.leaveScope()
	p.resolveGotos(fn)
	p.currentFn = nil
	return after
}

// globalDecl parses a top-level declaration that is not a function
// definition: one or more `declarator ["=" initializer]` separated by
// commas.
func (p *Parser) globalDecl(tok *Token, baseTy *Type, attr *VarAttr) *Token {
	first := true
	for !tok.Is(";") {
		if !first {
			tok = p.expect(tok, ",")
		}
		first = false

		name, ty, r := p.declarator(tok, baseTy)
		tok = r
		if name == nil {
			p.diag.ErrorTok(tok, "expected a variable name")
		}

		v := p.newGVar(name.Text(), ty, attr.IsStatic || attr.IsExtern)
		if attr.Align != 0 {
			v.Align = attr.Align
		}
		v.IsDefinition = !attr.IsExtern
		if attr.IsExtern {
			v.IsTentative = false
		} else if tok.Is("=") {
			tok = p.gvarInitializer(tok.Next, v)
		} else {
			v.IsTentative = true
		}
	}
	return tok.Next
}

// resolveGotos binds every goto's GotoLabel after the whole function
// body is parsed, since a label may appear lexically after its use.
func (p *Parser) resolveGotos(fn *Function) {
	for _, g := range p.gotos {
		target := g.Label
		found := false
		for _, l := range p.labels {
			if l.Label == target {
				g.UniqueLabel = l.UniqueLabel
				found = true
				break
			}
		}
		if !found {
			p.diag.ErrorTok(g.Tok, "use of undeclared label '%s'", target)
		}
	}
	p.gotos = nil
	p.labels = nil
}

func (p *Parser) newUniqueLabel() string {
	p.labelCount++
	return ".L.label." + strconv.Itoa(p.labelCount)
}

// --- Statements (spec §4.5 "Statements") ---

func (p *Parser) compoundStmt(tok *Token) (*Node, *Token) {
	node := newNode(NdBlock, tok)
	var head Node
	cur := &head

	p.enterScope()
	for !tok.Is("}") {
		var n *Node
		if isTypenameStart(p, tok) {
			n, tok = p.declaration(tok)
			addType(n)
		} else {
			n, tok = p.statement(tok)
			addType(n)
		}
		cur.Next = n
		cur = n
	}
	p.leaveScope()

	node.Body = head.Next
	return node, tok.Next
}

func (p *Parser) statement(tok *Token) (*Node, *Token) {
	switch {
	case tok.Is("return"):
		n := newNode(NdReturn, tok)
		if tok.Next.Is(";") {
			return n, tok.Next.Next
		}
		var expr *Node
		expr, tok = p.expr(tok.Next)
		addType(expr)
		if p.currentFn != nil {
			expr = NewCast(expr, p.currentFn.Ty.ReturnTy)
		}
		n.Lhs = expr
		return n, p.expectSemi(tok)

	case tok.Is("if"):
		n := newNode(NdIf, tok)
		tok = p.expect(tok.Next, "(")
		n.Cond, tok = p.expr(tok)
		tok = p.expect(tok, ")")
		n.Then, tok = p.statement(tok)
		if tok.Is("else") {
			n.Els, tok = p.statement(tok.Next)
		}
		return n, tok

	case tok.Is("switch"):
		n := newNode(NdSwitch, tok)
		tok = p.expect(tok.Next, "(")
		n.Cond, tok = p.expr(tok)
		tok = p.expect(tok, ")")

		outerSwitch := p.currentSwitch
		outerBrk := p.pushBreak(n)
		p.currentSwitch = n
		n.Then, tok = p.statement(tok)
		p.currentSwitch = outerSwitch
		p.popBreak(outerBrk)
		return n, tok

	case tok.Is("case"):
		if p.currentSwitch == nil {
			p.diag.ErrorTok(tok, "'case' not within a switch")
		}
		n := newNode(NdCase, tok)
		lo, r := p.constExpr(tok.Next)
		n.CaseBegin = EvalConstExpr(p.diag, lo)
		n.CaseEnd = n.CaseBegin
		tok = r
		if tok.Is("...") {
			hi, r2 := p.constExpr(tok.Next)
			n.CaseEnd = EvalConstExpr(p.diag, hi)
			tok = r2
		}
		tok = p.expect(tok, ":")
		n.CaseLabel = p.newUniqueLabel()
		n.Lhs, tok = p.statement(tok)
		n.CaseNext = p.currentSwitch.CaseNext
		p.currentSwitch.CaseNext = n
		return n, tok

	case tok.Is("default"):
		if p.currentSwitch == nil {
			p.diag.ErrorTok(tok, "'default' not within a switch")
		}
		n := newNode(NdCase, tok)
		tok = p.expect(tok.Next, ":")
		n.CaseLabel = p.newUniqueLabel()
		n.Lhs, tok = p.statement(tok)
		p.currentSwitch.DefaultCase = n
		return n, tok

	case tok.Is("for"):
		n := newNode(NdFor, tok)
		tok = p.expect(tok.Next, "(")
		p.enterScope()

		brk, cont := p.pushLoop(n)
		if isTypenameStart(p, tok) {
			n.Init, tok = p.declaration(tok)
		} else if !tok.Is(";") {
			var e *Node
			e, tok = p.expr(tok)
			n.Init = newUnary(NdExprStmt, e, tok)
			tok = p.expectSemi(tok)
		} else {
			tok = tok.Next
		}
		if !tok.Is(";") {
			n.Cond, tok = p.expr(tok)
		}
		tok = p.expectSemi(tok)
		if !tok.Is(")") {
			var e *Node
			e, tok = p.expr(tok)
			n.Inc = newUnary(NdExprStmt, e, tok)
		}
		tok = p.expect(tok, ")")
		n.Then, tok = p.statement(tok)
		p.popLoop(brk, cont)
		p.leaveScope()
		return n, tok

	case tok.Is("while"):
		n := newNode(NdFor, tok)
		tok = p.expect(tok.Next, "(")
		n.Cond, tok = p.expr(tok)
		tok = p.expect(tok, ")")
		brk, cont := p.pushLoop(n)
		n.Then, tok = p.statement(tok)
		p.popLoop(brk, cont)
		return n, tok

	case tok.Is("do"):
		n := newNode(NdDo, tok)
		brk, cont := p.pushLoop(n)
		n.Then, tok = p.statement(tok.Next)
		p.popLoop(brk, cont)
		tok = p.expect(tok, "while")
		tok = p.expect(tok, "(")
		n.Cond, tok = p.expr(tok)
		tok = p.expect(tok, ")")
		return n, p.expectSemi(tok)

	case tok.Is("break"):
		if p.breakLabel == "" {
			p.diag.ErrorTok(tok, "'break' not within a loop or switch")
		}
		n := newNode(NdGotoStmt, tok)
		n.UniqueLabel = p.breakLabel
		return n, p.expectSemi(tok.Next)

	case tok.Is("continue"):
		if p.contLabel == "" {
			p.diag.ErrorTok(tok, "'continue' not within a loop")
		}
		n := newNode(NdGotoStmt, tok)
		n.UniqueLabel = p.contLabel
		return n, p.expectSemi(tok.Next)

	case tok.Is("goto"):
		n := newNode(NdGotoStmt, tok)
		n.Label = tok.Next.Text()
		p.gotos = append(p.gotos, n)
		return n, p.expectSemi(tok.Next.Next)

	case tok.Kind == TkIdent && tok.Next.Is(":"):
		n := newNode(NdLabel, tok)
		n.Label = tok.Text()
		n.UniqueLabel = p.newUniqueLabel()
		p.labels = append(p.labels, n)
		n.Lhs, tok = p.statement(tok.Next.Next)
		return n, tok

	case tok.Is("{"):
		return p.compoundStmt(tok.Next)

	case tok.Is(";"):
		return newNode(NdBlock, tok), tok.Next
	}

	n := newNode(NdExprStmt, tok)
	n.Lhs, tok = p.expr(tok)
	return n, p.expectSemi(tok)
}

// break/continue labels are stacked rather than carried per-Node,
// since nested loops/switches need to shadow the enclosing one's
// labels exactly the way a block scope shadows a name.
func (p *Parser) pushLoop(n *Node) (prevBrk, prevCont string) {
	prevBrk, prevCont = p.breakLabel, p.contLabel
	n.BrkLabel = p.newUniqueLabel()
	n.ContLabel = p.newUniqueLabel()
	p.breakLabel = n.BrkLabel
	p.contLabel = n.ContLabel
	return
}

func (p *Parser) popLoop(prevBrk, prevCont string) {
	p.breakLabel = prevBrk
	p.contLabel = prevCont
}

func (p *Parser) pushBreak(n *Node) (prevBrk string) {
	prevBrk = p.breakLabel
	n.BrkLabel = p.newUniqueLabel()
	p.breakLabel = n.BrkLabel
	return
}

func (p *Parser) popBreak(prevBrk string) {
	p.breakLabel = prevBrk
}

// --- Expressions (spec §4.5 precedence chain) ---

func (p *Parser) constExpr(tok *Token) (*Node, *Token) {
	n, rest := p.conditional(tok)
	addType(n)
	return n, rest
}

func (p *Parser) expr(tok *Token) (*Node, *Token) {
	n, tok := p.assign(tok)
	for tok.Is(",") {
		var rhs *Node
		rhs, tok = p.assign(tok.Next)
		n = newBinary(NdComma, n, rhs, tok)
	}
	return n, tok
}

// compoundAssignOps maps "+=" etc. to the binary op it expands into:
// `a OP= b` becomes `a = a OP b` (spec §4.5); toAssign builds += and -=
// through newAdd/newSub, so a pointer operand gets its offset scaled.
var compoundAssignOps = map[string]NodeKind{
	"+=": NdAdd, "-=": NdSub, "*=": NdMul, "/=": NdDiv, "%=": NdMod,
	"&=": NdBitAnd, "|=": NdBitOr, "^=": NdBitXor, "<<=": NdShl, ">>=": NdShr,
}

func (p *Parser) assign(tok *Token) (*Node, *Token) {
	n, tok := p.conditional(tok)
	if tok.Is("=") {
		var rhs *Node
		rhs, tok = p.assign(tok.Next)
		return newBinary(NdAssign, n, rhs, tok), tok
	}
	if op, ok := compoundAssignOps[tok.Text()]; ok && tok.Kind == TkPunct {
		var rhs *Node
		rhs, tok = p.assign(tok.Next)
		return p.toAssign(n, op, rhs, tok), tok
	}
	return n, tok
}

// toAssign lowers `lhs OP= rhs` to a comma expression that evaluates
// lhs's address once, matching chibicc's to_assign (needed so
// `a[f()] += 1` calls f() exactly once).
func (p *Parser) toAssign(lhs *Node, op NodeKind, rhs *Node, tok *Token) *Node {
	addType(lhs)
	addType(rhs)

	binop := func(l *Node) *Node {
		switch op {
		case NdAdd:
			return p.newAdd(l, rhs, tok)
		case NdSub:
			return p.newSub(l, rhs, tok)
		}
		return newBinary(op, l, rhs, tok)
	}

	if lhs.Kind != NdVar {
		addrTmp := p.newLVar(p.newAnonName(), PointerTo(lhs.Ty))
		addrExpr := newUnary(NdAddr, lhs, tok)
		assignAddr := newBinary(NdAssign, newVarNode(addrTmp, tok), addrExpr, tok)
		deref := newUnary(NdDeref, newVarNode(addrTmp, tok), tok)
		bin := binop(deref)
		deref2 := newUnary(NdDeref, newVarNode(addrTmp, tok), tok)
		assignBack := newBinary(NdAssign, deref2, bin, tok)
		return newBinary(NdComma, assignAddr, assignBack, tok)
	}
	bin := binop(lhs)
	return newBinary(NdAssign, lhs, bin, tok)
}

func (p *Parser) conditional(tok *Token) (*Node, *Token) {
	cond, tok := p.logOr(tok)
	if !tok.Is("?") {
		return cond, tok
	}
	n := newNode(NdCond, tok)
	n.Cond = cond
	var then, els *Node
	then, tok = p.expr(tok.Next)
	tok = p.expect(tok, ":")
	els, tok = p.conditional(tok)
	n.Then, n.Els = then, els
	return n, tok
}

func (p *Parser) binaryChain(tok *Token, next func(*Token) (*Node, *Token), ops map[string]NodeKind) (*Node, *Token) {
	n, tok := next(tok)
	for {
		op, ok := ops[tok.Text()]
		if !ok || tok.Kind != TkPunct {
			return n, tok
		}
		start := tok
		var rhs *Node
		rhs, tok = next(tok.Next)
		n = newBinary(op, n, rhs, start)
	}
}

func (p *Parser) logOr(tok *Token) (*Node, *Token) {
	return p.binaryChain(tok, p.logAnd, map[string]NodeKind{"||": NdLogOr})
}
func (p *Parser) logAnd(tok *Token) (*Node, *Token) {
	return p.binaryChain(tok, p.bitOr, map[string]NodeKind{"&&": NdLogAnd})
}
func (p *Parser) bitOr(tok *Token) (*Node, *Token) {
	return p.binaryChain(tok, p.bitXor, map[string]NodeKind{"|": NdBitOr})
}
func (p *Parser) bitXor(tok *Token) (*Node, *Token) {
	return p.binaryChain(tok, p.bitAnd, map[string]NodeKind{"^": NdBitXor})
}
func (p *Parser) bitAnd(tok *Token) (*Node, *Token) {
	return p.binaryChain(tok, p.equality, map[string]NodeKind{"&": NdBitAnd})
}
func (p *Parser) equality(tok *Token) (*Node, *Token) {
	return p.binaryChain(tok, p.relational, map[string]NodeKind{"==": NdEq, "!=": NdNe})
}

func (p *Parser) relational(tok *Token) (*Node, *Token) {
	n, tok := p.shift(tok)
	for {
		start := tok
		switch {
		case tok.Is("<"):
			var rhs *Node
			rhs, tok = p.shift(tok.Next)
			n = newBinary(NdLt, n, rhs, start)
		case tok.Is("<="):
			var rhs *Node
			rhs, tok = p.shift(tok.Next)
			n = newBinary(NdLe, n, rhs, start)
		case tok.Is(">"):
			var rhs *Node
			rhs, tok = p.shift(tok.Next)
			n = newBinary(NdLt, rhs, n, start)
		case tok.Is(">="):
			var rhs *Node
			rhs, tok = p.shift(tok.Next)
			n = newBinary(NdLe, rhs, n, start)
		default:
			return n, tok
		}
	}
}

func (p *Parser) shift(tok *Token) (*Node, *Token) {
	return p.binaryChain(tok, p.add, map[string]NodeKind{"<<": NdShl, ">>": NdShr})
}

// add/sub implement pointer arithmetic scaling: `ptr + n` advances by
// n*sizeof(base), and `ptr - ptr` yields an element count (spec §4.2).
func (p *Parser) newAdd(lhs, rhs *Node, tok *Token) *Node {
	addType(lhs)
	addType(rhs)
	if lhs.Ty.IsNumeric() && rhs.Ty.IsNumeric() {
		l, r := usualArithConv(lhs, rhs)
		return newBinary(NdAdd, l, r, tok)
	}
	if lhs.Ty.IsPointerLike() && rhs.Ty.IsPointerLike() {
		p.diag.ErrorTok(tok, "invalid operands for '+'")
	}
	if !lhs.Ty.IsPointerLike() && rhs.Ty.IsPointerLike() {
		lhs, rhs = rhs, lhs
	}
	scaled := newBinary(NdMul, rhs, newLong(int64(lhs.Ty.Base.Size), tok), tok)
	return newBinary(NdAdd, lhs, scaled, tok)
}

func (p *Parser) newSub(lhs, rhs *Node, tok *Token) *Node {
	addType(lhs)
	addType(rhs)
	if lhs.Ty.IsNumeric() && rhs.Ty.IsNumeric() {
		l, r := usualArithConv(lhs, rhs)
		return newBinary(NdSub, l, r, tok)
	}
	if lhs.Ty.IsPointerLike() && rhs.Ty.IsNumeric() {
		scaled := newBinary(NdMul, rhs, newLong(int64(lhs.Ty.Base.Size), tok), tok)
		addType(scaled)
		n := newBinary(NdSub, lhs, scaled, tok)
		n.Ty = lhs.Ty
		return n
	}
	if lhs.Ty.IsPointerLike() && rhs.Ty.IsPointerLike() {
		n := newBinary(NdSub, lhs, rhs, tok)
		n.Ty = TyLongType
		addType(lhs)
		addType(rhs)
		div := newBinary(NdDiv, n, newNum(int64(lhs.Ty.Base.Size), tok), tok)
		return div
	}
	p.diag.ErrorTok(tok, "invalid operands for '-'")
	return nil
}

func (p *Parser) add(tok *Token) (*Node, *Token) {
	n, tok := p.mul(tok)
	for {
		start := tok
		switch {
		case tok.Is("+"):
			var rhs *Node
			rhs, tok = p.mul(tok.Next)
			n = p.newAdd(n, rhs, start)
		case tok.Is("-"):
			var rhs *Node
			rhs, tok = p.mul(tok.Next)
			n = p.newSub(n, rhs, start)
		default:
			return n, tok
		}
	}
}

func (p *Parser) mul(tok *Token) (*Node, *Token) {
	return p.binaryChain(tok, p.cast, map[string]NodeKind{"*": NdMul, "/": NdDiv, "%": NdMod})
}

func (p *Parser) cast(tok *Token) (*Node, *Token) {
	if tok.Is("(") && isTypenameStart(p, tok.Next) {
		start := tok
		ty, _, rest := p.typename(tok.Next)
		rest = p.expect(rest, ")")
		if rest.Is("{") {
			return p.unaryFromCompoundLiteral(start, ty, rest)
		}
		expr, final := p.cast(rest)
		return NewCast(expr, ty), final
	}
	return p.unary(tok)
}

func (p *Parser) unaryFromCompoundLiteral(start *Token, ty *Type, tok *Token) (*Node, *Token) {
	if p.currentFn == nil {
		v := p.newGVar(p.newAnonName(), ty, true)
		rest := p.gvarInitializer(tok, v)
		return newVarNode(v, start), rest
	}
	v := p.newLVar(p.newAnonName(), ty)
	expr, rest := p.lvarInitializer(tok, v)
	return newBinary(NdComma, expr, newVarNode(v, start), start), rest
}

func (p *Parser) unary(tok *Token) (*Node, *Token) {
	switch {
	case tok.Is("+"):
		return p.cast(tok.Next)
	case tok.Is("-"):
		n, r := p.cast(tok.Next)
		return newUnary(NdNeg, n, tok), r
	case tok.Is("&"):
		n, r := p.cast(tok.Next)
		return newUnary(NdAddr, n, tok), r
	case tok.Is("*"):
		n, r := p.cast(tok.Next)
		return newUnary(NdDeref, n, tok), r
	case tok.Is("!"):
		n, r := p.cast(tok.Next)
		return newUnary(NdNot, n, tok), r
	case tok.Is("~"):
		n, r := p.cast(tok.Next)
		return newUnary(NdBitNot, n, tok), r
	case tok.Is("++"):
		n, r := p.unary(tok.Next)
		return p.toAssign(n, NdAdd, newNum(1, tok), tok), r
	case tok.Is("--"):
		n, r := p.unary(tok.Next)
		return p.toAssign(n, NdSub, newNum(1, tok), tok), r
	}
	return p.postfix(tok)
}

func (p *Parser) postfix(tok *Token) (*Node, *Token) {
	n, tok := p.primary(tok)
	for {
		start := tok
		switch {
		case tok.Is("["):
			var idx *Node
			idx, tok = p.expr(tok.Next)
			tok = p.expect(tok, "]")
			n = newUnary(NdDeref, p.newAdd(n, idx, start), start)
		case tok.Is("."):
			addType(n)
			if n.Ty.Kind != TyStruct && n.Ty.Kind != TyUnion {
				p.diag.ErrorTok(start, "not a struct or union")
			}
			m := p.getStructMember(n.Ty, tok.Next)
			mn := newUnary(NdMember, n, start)
			mn.Mem = m
			n = mn
			tok = tok.Next.Next
		case tok.Is("->"):
			n = newUnary(NdDeref, n, start)
			addType(n)
			if n.Ty.Kind != TyStruct && n.Ty.Kind != TyUnion {
				p.diag.ErrorTok(start, "not a struct or union")
			}
			m := p.getStructMember(n.Ty, tok.Next)
			mn := newUnary(NdMember, n, start)
			mn.Mem = m
			n = mn
			tok = tok.Next.Next
		case tok.Is("++"):
			n = p.toAssign(n, NdAdd, newNum(1, tok), tok)
			addType(n)
			n = p.newSub(n, newNum(1, tok), tok)
			tok = tok.Next
		case tok.Is("--"):
			n = p.toAssign(n, NdSub, newNum(1, tok), tok)
			addType(n)
			n = p.newAdd(n, newNum(1, tok), tok)
			tok = tok.Next
		default:
			return n, tok
		}
	}
}

// primary handles literals, identifiers, parenthesized expressions,
// the GNU statement-expression extension `({ ... })`, and sizeof /
// _Alignof (spec §4.5).
func (p *Parser) primary(tok *Token) (*Node, *Token) {
	switch {
	case tok.Is("(") && tok.Next.Is("{"):
		n := newNode(NdStmtExpr, tok)
		body, rest := p.compoundStmt(tok.Next.Next)
		n.Body = body.Body
		return n, p.expect(rest, ")")

	case tok.Is("("):
		n, rest := p.expr(tok.Next)
		return n, p.expect(rest, ")")

	case tok.Is("sizeof") && tok.Next.Is("(") && isTypenameStart(p, tok.Next.Next):
		ty, _, rest := p.typename(tok.Next.Next)
		rest = p.expect(rest, ")")
		return newLong(int64(SizeOf(ty)), tok), rest

	case tok.Is("sizeof"):
		n, rest := p.unary(tok.Next)
		addType(n)
		return newLong(int64(SizeOf(n.Ty)), tok), rest

	case tok.Is("_Alignof") && tok.Next.Is("(") && isTypenameStart(p, tok.Next.Next):
		ty, _, rest := p.typename(tok.Next.Next)
		rest = p.expect(rest, ")")
		return newLong(int64(ty.Align), tok), rest

	case tok.Is("_Alignof"):
		n, rest := p.unary(tok.Next)
		addType(n)
		return newLong(int64(n.Ty.Align), tok), rest

	case tok.Kind == TkNum:
		var n *Node
		if tok.Ty != nil && tok.Ty.IsFlonum() {
			n = newFPNum(tok.FloatVal, tok.Ty, tok)
		} else {
			n = newNum(tok.IntVal, tok)
			if tok.Ty != nil {
				n.Ty = tok.Ty
			}
		}
		return n, tok.Next

	case tok.Kind == TkStr:
		v := p.newStringLiteral(tok)
		return newVarNode(v, tok), tok.Next

	case tok.Kind == TkIdent:
		if tok.Next.Is("(") {
			return p.funcall(tok)
		}
		if vs := p.findVar(tok.Text()); vs != nil {
			if vs.IsEnumVal {
				n := newNum(vs.EnumVal, tok)
				n.Ty = vs.EnumTy
				return n, tok.Next
			}
			if vs.Var != nil {
				return newVarNode(vs.Var, tok), tok.Next
			}
		}
		p.diag.ErrorTok(tok, "undefined variable: %s", tok.Text())
	}

	p.diag.ErrorTok(tok, "expected an expression")
	return nil, tok
}

// funcall lowers `f(a, b, c)` into a left-to-right comma chain of
// fresh-temp assignments ending in an NdFuncall node whose Args are
// the temps, pinning argument evaluation order independent of the
// backend's eventual register assignment (spec §4.5 "Function
// calls").
func (p *Parser) funcall(tok *Token) (*Node, *Token) {
	nameTok := tok
	tok = tok.Next.Next // skip ident, "("

	fnTy := TyIntType
	var declaredParams *Type
	variadic := true
	if vs := p.findVar(nameTok.Text()); vs != nil && vs.Var != nil && vs.Var.Ty.Kind == TyFunc {
		fnTy = vs.Var.Ty.ReturnTy
		declaredParams = vs.Var.Ty.Params
		variadic = vs.Var.Ty.IsVariadic
	}

	var rawArgs []*Node
	param := declaredParams
	for !tok.Is(")") {
		if len(rawArgs) > 0 {
			tok = p.expect(tok, ",")
		}
		arg, r := p.assign(tok)
		tok = r
		addType(arg)
		if param != nil {
			arg = NewCast(arg, param)
			param = param.Next
		} else if arg.Ty.Kind == TyFloat {
			arg = NewCast(arg, TyDoubleType)
		}
		rawArgs = append(rawArgs, arg)
	}
	tok = p.expect(tok, ")")

	call := newNode(NdFuncall, nameTok)
	call.FuncName = nameTok.Text()
	call.FuncTy = FuncType(fnTy)
	call.FuncTy.Params = declaredParams
	call.FuncTy.IsVariadic = variadic
	call.Ty = fnTy

	if len(rawArgs) == 0 {
		return call, tok
	}

	var chain *Node
	for _, arg := range rawArgs {
		tmp := p.newLVar(p.newAnonName(), arg.Ty)
		assign := newBinary(NdAssign, newVarNode(tmp, nameTok), arg, nameTok)
		call.Args = append(call.Args, newVarNode(tmp, nameTok))
		if chain == nil {
			chain = assign
		} else {
			chain = newBinary(NdComma, chain, assign, nameTok)
		}
	}
	return newBinary(NdComma, chain, call, nameTok), tok
}
