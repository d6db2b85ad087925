// Initializer parsing and lowering (spec §4.5 "Initializers"). An
// Initializer mirrors the shape of the type being initialized: a
// scalar leaf holds one expression, an array/struct/union holds one
// child Initializer per element/member. Locals lower to a chain of
// assignment expressions preceded by a whole-object zero-fill;
// globals lower directly to a byte buffer plus a relocation list,
// since a global initializer must be a compile-time constant.
package main

import "math"

// Initializer is the parsed (but not yet lowered) shape of one
// initializer. Exactly one of Expr, StrData, or Children is
// meaningful, decided by Ty.Kind.
type Initializer struct {
	Ty  *Type
	Tok *Token

	Expr     *Node
	StrData  []byte // char array initialized directly from a string literal
	Children []*Initializer
}

// newInitializerSkeleton builds an Initializer whose Children slice
// already has the right length/shape for ty, with every leaf Expr nil
// (meaning: zero-fill, no explicit initializer given).
func newInitializerSkeleton(ty *Type) *Initializer {
	switch ty.Kind {
	case TyArray:
		if ty.Incomplete {
			return &Initializer{Ty: ty}
		}
		children := make([]*Initializer, ty.ArrayLen)
		for i := range children {
			children[i] = newInitializerSkeleton(ty.Base)
		}
		return &Initializer{Ty: ty, Children: children}
	case TyStruct, TyUnion:
		var children []*Initializer
		for m := ty.Members; m != nil; m = m.Next {
			children = append(children, newInitializerSkeleton(m.Ty))
		}
		return &Initializer{Ty: ty, Children: children}
	default:
		return &Initializer{Ty: ty}
	}
}

// parseInitializer parses one initializer against ty and returns the
// tree plus the type as it ends up after resolving any `[]` whose
// length was left for the initializer to determine.
func (p *Parser) parseInitializer(tok *Token, ty *Type) (*Initializer, *Type, *Token) {
	if ty.Kind == TyArray && ty.Base.Kind == TyChar && tok.Kind == TkStr {
		return p.stringInitializer(tok, ty)
	}

	if ty.Kind == TyArray {
		return p.arrayInitializer(tok, ty)
	}
	if ty.Kind == TyStruct {
		return p.structInitializer(tok, ty)
	}
	if ty.Kind == TyUnion {
		return p.unionInitializer(tok, ty)
	}

	// Scalar: a braced scalar initializer `{ 3 }` is legal C and
	// common in machine-generated code, so unwrap one optional brace
	// pair before falling back to a plain assignment-expression.
	if tok.Is("{") {
		init, r := p.parseInitializer2(tok.Next, ty)
		r = p.expect(r, "}")
		return init, ty, r
	}
	expr, rest := p.assign(tok)
	addType(expr)
	return &Initializer{Ty: ty, Expr: expr, Tok: tok}, ty, rest
}

// parseInitializer2 is parseInitializer without the outer-type fixup
// return value, used once we're already inside braces and the type is
// final.
func (p *Parser) parseInitializer2(tok *Token, ty *Type) (*Initializer, *Token) {
	init, _, rest := p.parseInitializer(tok, ty)
	return init, rest
}

func (p *Parser) stringInitializer(tok *Token, ty *Type) (*Initializer, *Type, *Token) {
	data := append([]byte(nil), tok.Str...)
	finalTy := ty
	if ty.Incomplete {
		finalTy = ArrayOf(ty.Base, len(data))
	}
	return &Initializer{Ty: finalTy, StrData: data, Tok: tok}, finalTy, tok.Next
}

func (p *Parser) arrayInitializer(tok *Token, ty *Type) (*Initializer, *Type, *Token) {
	tok = p.expect(tok, "{")
	var children []*Initializer
	first := true
	for !tok.Is("}") {
		if !first {
			tok = p.expect(tok, ",")
			if tok.Is("}") {
				break
			}
		}
		first = false
		elemTy := ty.Base
		if !ty.Incomplete && len(children) >= ty.ArrayLen {
			// Extra initializers beyond a fixed length are parsed (so
			// the token stream stays in sync) and then discarded.
			_, r := p.parseInitializer2(tok, elemTy)
			tok = r
			continue
		}
		child, r := p.parseInitializer2(tok, elemTy)
		tok = r
		children = append(children, child)
	}
	tok = p.expect(tok, "}")

	finalTy := ty
	if ty.Incomplete {
		finalTy = ArrayOf(ty.Base, len(children))
	} else {
		for len(children) < ty.ArrayLen {
			children = append(children, newInitializerSkeleton(ty.Base))
		}
	}
	return &Initializer{Ty: finalTy, Children: children}, finalTy, tok
}

func (p *Parser) structInitializer(tok *Token, ty *Type) (*Initializer, *Type, *Token) {
	tok = p.expect(tok, "{")
	var children []*Initializer
	m := ty.Members
	first := true
	for !tok.Is("}") {
		if !first {
			tok = p.expect(tok, ",")
			if tok.Is("}") {
				break
			}
		}
		first = false
		if m == nil {
			_, r := p.assign(tok)
			tok = r
			continue
		}
		child, r := p.parseInitializer2(tok, m.Ty)
		tok = r
		children = append(children, child)
		m = m.Next
	}
	tok = p.expect(tok, "}")
	for m != nil {
		children = append(children, newInitializerSkeleton(m.Ty))
		m = m.Next
	}
	return &Initializer{Ty: ty, Children: children}, ty, tok
}

func (p *Parser) unionInitializer(tok *Token, ty *Type) (*Initializer, *Type, *Token) {
	// Only the first member of a union can be initialized directly
	// (spec §4.5); the rest are implicitly zero.
	tok = p.expect(tok, "{")
	var children []*Initializer
	if ty.Members != nil {
		child, r := p.parseInitializer2(tok, ty.Members.Ty)
		tok = r
		children = append(children, child)
		for m := ty.Members.Next; m != nil; m = m.Next {
			children = append(children, newInitializerSkeleton(m.Ty))
		}
	}
	if !tok.Is("}") {
		tok = tok.Next
	}
	tok = p.expect(tok, "}")
	return &Initializer{Ty: ty, Children: children}, ty, tok
}

// --- Local lowering: a comma chain of assignments over a zeroed object ---

// designator is a reversed linked path from the root Var out to one
// leaf: Next points toward the root. initDesgExpr walks it root-first
// by recursing on Next before wrapping the current step, composing
// nested NdMember/NdDeref(NdAdd) lvalue expressions exactly the way
// chibicc's init_desg_expr does.
type designator struct {
	Next   *designator
	Var    *Var
	Idx    int
	Member *Member
}

func (p *Parser) initDesgExpr(d *designator, tok *Token) *Node {
	if d.Var != nil {
		return newVarNode(d.Var, tok)
	}
	parent := p.initDesgExpr(d.Next, tok)
	if d.Member != nil {
		n := newUnary(NdMember, parent, tok)
		n.Mem = d.Member
		return n
	}
	addr := p.newAdd(parent, newNum(int64(d.Idx), tok), tok)
	return newUnary(NdDeref, addr, tok)
}

func chainComma(a, b *Node, tok *Token) *Node {
	if isNullExpr(a) {
		return b
	}
	return newBinary(NdComma, a, b, tok)
}

func (p *Parser) initDesgLocal(init *Initializer, d *designator, tok *Token) *Node {
	if init.Ty.Kind == TyArray && init.StrData == nil {
		result := newNullExpr(tok)
		for i, child := range init.Children {
			next := &designator{Next: d, Idx: i}
			result = chainComma(result, p.initDesgLocal(child, next, tok), tok)
		}
		return result
	}
	if init.Ty.Kind == TyStruct || init.Ty.Kind == TyUnion {
		result := newNullExpr(tok)
		m := init.Ty.Members
		for i, child := range init.Children {
			if m == nil {
				break
			}
			next := &designator{Next: d, Member: m}
			result = chainComma(result, p.initDesgLocal(child, next, tok), tok)
			if init.Ty.Kind == TyUnion {
				break
			}
			_ = i
			m = m.Next
		}
		return result
	}
	if init.StrData != nil {
		// A char array initialized from a string literal lowers to one
		// assignment per byte, on top of the whole-object zero-fill that
		// lvarInitializer emits first; bytes past the array's length
		// are dropped.
		result := newNullExpr(tok)
		for i, b := range init.StrData {
			if i >= init.Ty.ArrayLen {
				break
			}
			next := &designator{Next: d, Idx: i}
			lhs := p.initDesgExpr(next, tok)
			rhs := newNum(int64(b), tok)
			result = chainComma(result, newBinary(NdAssign, lhs, rhs, tok), tok)
		}
		return result
	}
	if init.Expr == nil {
		return newNullExpr(tok)
	}
	lhs := p.initDesgExpr(d, tok)
	return newBinary(NdAssign, lhs, init.Expr, tok)
}

// lvarInitializer parses tok against v's declared type (updating v.Ty
// if an array dimension was left for the initializer to fill in) and
// returns the zero-then-assign expression chain.
func (p *Parser) lvarInitializer(tok *Token, v *Var) (*Node, *Token) {
	init, newTy, rest := p.parseInitializer(tok, v.Ty)
	v.Ty = newTy
	zero := newUnary(NdMemZero, newVarNode(v, tok), tok)
	expr := p.initDesgLocal(init, &designator{Var: v}, tok)
	return newBinary(NdComma, zero, expr, tok), rest
}

// --- Global lowering: write constant bytes + relocations directly ---

// constAddrOf recognizes the handful of expression shapes the
// language allows in a global initializer's address position
// (`&g`, `&g.field`, plain array decay, `&g + N`) and reports the
// target label and byte addend. Anything else is not a valid
// address constant.
func constAddrOf(n *Node) (label string, addend int64, ok bool) {
	switch n.Kind {
	case NdCast:
		return constAddrOf(n.Lhs)
	case NdAddr:
		return addrOfLvalue(n.Lhs, 0)
	case NdVar:
		if n.Var.Ty.Kind == TyArray || n.Var.Ty.Kind == TyFunc {
			return n.Var.Name, 0, true
		}
		return "", 0, false
	case NdAdd:
		// The parser has already scaled Rhs to a byte count.
		if l, a, ok := constAddrOf(n.Lhs); ok {
			return l, a + EvalConstExpr(globalDiag, n.Rhs), true
		}
		return "", 0, false
	case NdSub:
		if l, a, ok := constAddrOf(n.Lhs); ok {
			return l, a - EvalConstExpr(globalDiag, n.Rhs), true
		}
		return "", 0, false
	}
	return "", 0, false
}

// addrOfLvalue walks down an lvalue expression accumulating a byte
// offset, for `&s.field` / `&arr[3]` style address constants.
func addrOfLvalue(n *Node, off int64) (string, int64, bool) {
	switch n.Kind {
	case NdVar:
		return n.Var.Name, off, true
	case NdMember:
		return addrOfLvalue(n.Lhs, off+int64(n.Mem.Offset))
	case NdDeref:
		if n.Lhs.Kind == NdAdd {
			base, baseOff, ok := addrOfLvalue(n.Lhs.Lhs, off)
			if !ok {
				return "", 0, false
			}
			// The parser has already scaled the index to a byte count.
			return base, baseOff + EvalConstExpr(globalDiag, n.Lhs.Rhs), true
		}
	}
	return "", 0, false
}

// writeGvarData recursively lowers init into v's InitData/Relocs at
// byte offset base.
func (p *Parser) writeGvarData(v *Var, init *Initializer, ty *Type, base int) {
	if ty.Kind == TyArray {
		for i, child := range init.Children {
			p.writeGvarData(v, child, ty.Base, base+i*ty.Base.Size)
		}
		return
	}
	if ty.Kind == TyStruct {
		m := ty.Members
		for _, child := range init.Children {
			if m == nil {
				break
			}
			p.writeGvarData(v, child, m.Ty, base+m.Offset)
			m = m.Next
		}
		return
	}
	if ty.Kind == TyUnion {
		if len(init.Children) > 0 && ty.Members != nil {
			p.writeGvarData(v, init.Children[0], ty.Members.Ty, base)
		}
		return
	}
	if init.StrData != nil {
		copy(v.InitData[base:], init.StrData)
		return
	}
	if init.Expr == nil {
		return
	}
	addType(init.Expr)
	if label, addend, ok := constAddrOf(init.Expr); ok {
		v.Relocs = append(v.Relocs, &Relocation{Offset: base, Label: label, Addend: addend})
		return
	}
	if init.Expr.Ty != nil && init.Expr.Ty.IsFlonum() {
		writeFloatBytes(v.InitData, base, init.Expr, ty)
		return
	}
	val := EvalConstExpr(p.diag, init.Expr)
	writeIntBytes(v.InitData, base, val, ty.Size)
}

func writeIntBytes(buf []byte, off int, val int64, size int) {
	u := uint64(val)
	for i := 0; i < size; i++ {
		buf[off+i] = byte(u >> (8 * uint(i)))
	}
}

func writeFloatBytes(buf []byte, off int, n *Node, ty *Type) {
	var f float64
	if n.Kind == NdNum {
		if n.Ty != nil && n.Ty.IsFlonum() {
			f = n.FVal
		} else {
			f = float64(n.Val)
		}
	}
	if ty.Kind == TyFloat {
		writeIntBytes(buf, off, int64(math.Float32bits(float32(f))), 4)
	} else {
		writeIntBytes(buf, off, int64(math.Float64bits(f)), 8)
	}
}

// gvarInitializer parses tok against v's declared type and lowers it
// directly into v.InitData/v.Relocs; unlike a local, a global
// initializer's expressions must already be compile-time constants.
func (p *Parser) gvarInitializer(tok *Token, v *Var) *Token {
	init, newTy, rest := p.parseInitializer(tok, v.Ty)
	v.Ty = newTy
	v.InitData = make([]byte, SizeOf(newTy))
	p.writeGvarData(v, init, newTy, 0)
	return rest
}
