// Constant-expression evaluation shared by two kinds of caller: array
// dimensions, bitfield widths, enum values, case labels and _Alignas in
// the parser (over the typed AST), and #if/#elif lines in the preprocessor (over
// a standalone token chain that never reaches the parser at all,
// spec §9). Both reduce to plain int64 arithmetic; chibicc's eval()
// keeps the same split for the same reason — the preprocessor runs
// before any Type exists.
package main

// EvalConstExpr reduces a constant-folded Node to its int64 value.
// The node must already have gone through addType; EvalConstExpr
// itself never type-checks, it only arithmetically reduces.
func EvalConstExpr(diag *Diagnostics, n *Node) int64 {
	if n == nil {
		Bug("nil node in constant expression")
	}
	switch n.Kind {
	case NdAdd:
		return EvalConstExpr(diag, n.Lhs) + EvalConstExpr(diag, n.Rhs)
	case NdSub:
		return EvalConstExpr(diag, n.Lhs) - EvalConstExpr(diag, n.Rhs)
	case NdMul:
		return EvalConstExpr(diag, n.Lhs) * EvalConstExpr(diag, n.Rhs)
	case NdDiv:
		rhs := EvalConstExpr(diag, n.Rhs)
		if rhs == 0 {
			diag.ErrorTok(n.Tok, "division by zero in constant expression")
		}
		if n.Ty != nil && n.Ty.Unsigned {
			return int64(uint64(EvalConstExpr(diag, n.Lhs)) / uint64(rhs))
		}
		return EvalConstExpr(diag, n.Lhs) / rhs
	case NdMod:
		rhs := EvalConstExpr(diag, n.Rhs)
		if rhs == 0 {
			diag.ErrorTok(n.Tok, "division by zero in constant expression")
		}
		return EvalConstExpr(diag, n.Lhs) % rhs
	case NdNeg:
		return -EvalConstExpr(diag, n.Lhs)
	case NdBitAnd:
		return EvalConstExpr(diag, n.Lhs) & EvalConstExpr(diag, n.Rhs)
	case NdBitOr:
		return EvalConstExpr(diag, n.Lhs) | EvalConstExpr(diag, n.Rhs)
	case NdBitXor:
		return EvalConstExpr(diag, n.Lhs) ^ EvalConstExpr(diag, n.Rhs)
	case NdBitNot:
		return ^EvalConstExpr(diag, n.Lhs)
	case NdShl:
		return EvalConstExpr(diag, n.Lhs) << uint(EvalConstExpr(diag, n.Rhs))
	case NdShr:
		return EvalConstExpr(diag, n.Lhs) >> uint(EvalConstExpr(diag, n.Rhs))
	case NdEq:
		return boolToInt64(EvalConstExpr(diag, n.Lhs) == EvalConstExpr(diag, n.Rhs))
	case NdNe:
		return boolToInt64(EvalConstExpr(diag, n.Lhs) != EvalConstExpr(diag, n.Rhs))
	case NdLt:
		return boolToInt64(EvalConstExpr(diag, n.Lhs) < EvalConstExpr(diag, n.Rhs))
	case NdLe:
		return boolToInt64(EvalConstExpr(diag, n.Lhs) <= EvalConstExpr(diag, n.Rhs))
	case NdNot:
		return boolToInt64(EvalConstExpr(diag, n.Lhs) == 0)
	case NdLogAnd:
		return boolToInt64(EvalConstExpr(diag, n.Lhs) != 0 && EvalConstExpr(diag, n.Rhs) != 0)
	case NdLogOr:
		return boolToInt64(EvalConstExpr(diag, n.Lhs) != 0 || EvalConstExpr(diag, n.Rhs) != 0)
	case NdCond:
		if EvalConstExpr(diag, n.Cond) != 0 {
			return EvalConstExpr(diag, n.Then)
		}
		return EvalConstExpr(diag, n.Els)
	case NdComma:
		EvalConstExpr(diag, n.Lhs)
		return EvalConstExpr(diag, n.Rhs)
	case NdCast:
		v := EvalConstExpr(diag, n.Lhs)
		if n.Ty != nil {
			return truncToType(v, n.Ty)
		}
		return v
	case NdNum:
		if n.Ty != nil && n.Ty.IsFlonum() {
			return int64(n.FVal)
		}
		return n.Val
	}
	diag.ErrorTok(n.Tok, "not a compile-time constant expression")
	return 0
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// truncToType narrows v to ty's width/signedness, mirroring the
// truncation a real cast performs (spec §4.2).
func truncToType(v int64, ty *Type) int64 {
	switch ty.Size {
	case 1:
		if ty.Unsigned {
			return int64(uint8(v))
		}
		return int64(int8(v))
	case 2:
		if ty.Unsigned {
			return int64(uint16(v))
		}
		return int64(int16(v))
	case 4:
		if ty.Unsigned {
			return int64(uint32(v))
		}
		return int64(int32(v))
	default:
		return v
	}
}

// EvalConstIntTokens evaluates a #if/#elif line's constant expression
// directly over tokens, without ever constructing a Parser or a Type:
// the preprocessor runs before any declaration exists to look typedefs
// or enum constants up in, so identifiers here can only be `defined`
// forms already reduced to 0/1, or (by C's rules) 0 (spec §9,
// "replace remaining identifiers with 0").
func EvalConstIntTokens(diag *Diagnostics, tok *Token) int64 {
	e := &ppExprEval{diag: diag}
	v, rest := e.conditional(tok)
	if rest.Kind != TkEOF {
		diag.ErrorTok(rest, "extra tokens in #if expression")
	}
	return v
}

type ppExprEval struct {
	diag *Diagnostics
}

func (e *ppExprEval) conditional(tok *Token) (int64, *Token) {
	cond, tok := e.logOr(tok)
	if !tok.Is("?") {
		return cond, tok
	}
	then, tok := e.conditional(tok.Next)
	if !tok.Is(":") {
		e.diag.ErrorTok(tok, "expected ':'")
	}
	els, tok := e.conditional(tok.Next)
	if cond != 0 {
		return then, tok
	}
	return els, tok
}

func (e *ppExprEval) logOr(tok *Token) (int64, *Token) {
	v, tok := e.logAnd(tok)
	for tok.Is("||") {
		var rhs int64
		rhs, tok = e.logAnd(tok.Next)
		v = boolToInt64(v != 0 || rhs != 0)
	}
	return v, tok
}

func (e *ppExprEval) logAnd(tok *Token) (int64, *Token) {
	v, tok := e.bitOr(tok)
	for tok.Is("&&") {
		var rhs int64
		rhs, tok = e.bitOr(tok.Next)
		v = boolToInt64(v != 0 && rhs != 0)
	}
	return v, tok
}

func (e *ppExprEval) bitOr(tok *Token) (int64, *Token) {
	v, tok := e.bitXor(tok)
	for tok.Is("|") {
		var rhs int64
		rhs, tok = e.bitXor(tok.Next)
		v |= rhs
	}
	return v, tok
}

func (e *ppExprEval) bitXor(tok *Token) (int64, *Token) {
	v, tok := e.bitAnd(tok)
	for tok.Is("^") {
		var rhs int64
		rhs, tok = e.bitAnd(tok.Next)
		v ^= rhs
	}
	return v, tok
}

func (e *ppExprEval) bitAnd(tok *Token) (int64, *Token) {
	v, tok := e.equality(tok)
	for tok.Is("&") {
		var rhs int64
		rhs, tok = e.equality(tok.Next)
		v &= rhs
	}
	return v, tok
}

func (e *ppExprEval) equality(tok *Token) (int64, *Token) {
	v, tok := e.relational(tok)
	for {
		switch {
		case tok.Is("=="):
			var rhs int64
			rhs, tok = e.relational(tok.Next)
			v = boolToInt64(v == rhs)
		case tok.Is("!="):
			var rhs int64
			rhs, tok = e.relational(tok.Next)
			v = boolToInt64(v != rhs)
		default:
			return v, tok
		}
	}
}

func (e *ppExprEval) relational(tok *Token) (int64, *Token) {
	v, tok := e.shift(tok)
	for {
		switch {
		case tok.Is("<"):
			var rhs int64
			rhs, tok = e.shift(tok.Next)
			v = boolToInt64(v < rhs)
		case tok.Is("<="):
			var rhs int64
			rhs, tok = e.shift(tok.Next)
			v = boolToInt64(v <= rhs)
		case tok.Is(">"):
			var rhs int64
			rhs, tok = e.shift(tok.Next)
			v = boolToInt64(v > rhs)
		case tok.Is(">="):
			var rhs int64
			rhs, tok = e.shift(tok.Next)
			v = boolToInt64(v >= rhs)
		default:
			return v, tok
		}
	}
}

func (e *ppExprEval) shift(tok *Token) (int64, *Token) {
	v, tok := e.add(tok)
	for {
		switch {
		case tok.Is("<<"):
			var rhs int64
			rhs, tok = e.add(tok.Next)
			v <<= uint(rhs)
		case tok.Is(">>"):
			var rhs int64
			rhs, tok = e.add(tok.Next)
			v >>= uint(rhs)
		default:
			return v, tok
		}
	}
}

func (e *ppExprEval) add(tok *Token) (int64, *Token) {
	v, tok := e.mul(tok)
	for {
		switch {
		case tok.Is("+"):
			var rhs int64
			rhs, tok = e.mul(tok.Next)
			v += rhs
		case tok.Is("-"):
			var rhs int64
			rhs, tok = e.mul(tok.Next)
			v -= rhs
		default:
			return v, tok
		}
	}
}

func (e *ppExprEval) mul(tok *Token) (int64, *Token) {
	v, tok := e.unary(tok)
	for {
		switch {
		case tok.Is("*"):
			var rhs int64
			rhs, tok = e.unary(tok.Next)
			v *= rhs
		case tok.Is("/"):
			var rhs int64
			rhs, tok = e.unary(tok.Next)
			if rhs == 0 {
				e.diag.ErrorTok(tok, "division by zero in #if expression")
			}
			v /= rhs
		case tok.Is("%"):
			var rhs int64
			rhs, tok = e.unary(tok.Next)
			if rhs == 0 {
				e.diag.ErrorTok(tok, "division by zero in #if expression")
			}
			v %= rhs
		default:
			return v, tok
		}
	}
}

func (e *ppExprEval) unary(tok *Token) (int64, *Token) {
	switch {
	case tok.Is("+"):
		return e.unary(tok.Next)
	case tok.Is("-"):
		v, r := e.unary(tok.Next)
		return -v, r
	case tok.Is("!"):
		v, r := e.unary(tok.Next)
		return boolToInt64(v == 0), r
	case tok.Is("~"):
		v, r := e.unary(tok.Next)
		return ^v, r
	}
	return e.primary(tok)
}

func (e *ppExprEval) primary(tok *Token) (int64, *Token) {
	if tok.Is("(") {
		v, rest := e.conditional(tok.Next)
		if !rest.Is(")") {
			e.diag.ErrorTok(rest, "expected ')'")
		}
		return v, rest.Next
	}
	if tok.Kind == TkNum || tok.Kind == TkPPNum {
		return tok.IntVal, tok.Next
	}
	// Any identifier that survives to here (not "defined", already
	// handled by reduceDefined) is replaced by 0 per C's rule for
	// #if expressions.
	if tok.Kind == TkIdent || tok.Kind == TkKeyword {
		return 0, tok.Next
	}
	e.diag.ErrorTok(tok, "expected a value in #if expression")
	return 0, tok
}
