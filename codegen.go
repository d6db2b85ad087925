// x86-64 code generation: walks the typed AST and writes GNU-syntax
// assembly text (spec §4.6). Expression values live in a small
// register stack (%r10-%r15 for integers, %xmm8-%xmm13 for floats)
// that mirrors flapc's register-window idea; nesting past the six
// named slots is treated as a compiler bug rather than spilled to the
// real machine stack (documented simplification, see DESIGN.md): an
// expression that needs more than six live values in one register file
// stops with an internal compiler error.
package main

import (
	"bufio"
	"fmt"
	"strings"
)

// gpRegs/floRegs are the named register-stack slots. %r12-%r15 are
// callee-saved (amd64) and survive a call for free once the prologue
// has spilled them; %r10, %r11, and every %xmm register are
// caller-saved, so genFuncall explicitly pushes/pops whichever of
// those slots are live across a call (see saveCallerSaved).
var gpRegs = []string{"%r10", "%r11", "%r12", "%r13", "%r14", "%r15"}
var floRegs = []string{"%xmm8", "%xmm9", "%xmm10", "%xmm11", "%xmm12", "%xmm13"}

// Codegen holds the one piece of state that threads through every
// gen_* call: the output writer, the current function (for frame
// offsets and return-label naming), and the two register-stack
// depths.
type Codegen struct {
	diag *Diagnostics
	out  *bufio.Writer
	prog *Program

	curFn *Function

	top    int // integer register-stack depth
	floTop int

	labelSeq int

	// lastLocFile/lastLocLine dedupe consecutive .loc directives so
	// genStmt/genExpr can call emitLoc unconditionally without spamming
	// one per node.
	lastLocFile int
	lastLocLine int
}

// Codegen64 emits x86-64 System V assembly for prog to out.
func Codegen64(diag *Diagnostics, prog *Program, out *bufio.Writer) {
	cg := &Codegen{diag: diag, out: out, prog: prog}
	cg.assignLVarOffsetsAll()
	cg.emitFileDirectives()
	cg.emitData()
	cg.emitText()
	out.Flush()
}

// emitFileDirectives emits one .file directive per input file seen by
// the diagnostics sink (spec §177), numbered the same way
// SourceFile.FileNo already numbers them for __FILE__/diagnostics.
func (cg *Codegen) emitFileDirectives() {
	for _, sf := range cg.diag.Files {
		cg.printf("  .file %d %s\n", sf.FileNo, quoteAsmString([]byte(sf.Display)))
	}
}

// emitLoc emits a .loc directive anchoring the next instructions to
// tok's file/line (spec §177), skipping it when it would repeat the
// directive already in force.
func (cg *Codegen) emitLoc(tok *Token) {
	if tok == nil || tok.File == nil {
		return
	}
	if tok.File.FileNo == cg.lastLocFile && tok.LineNo == cg.lastLocLine {
		return
	}
	cg.lastLocFile, cg.lastLocLine = tok.File.FileNo, tok.LineNo
	cg.printf("  .loc %d %d\n", tok.File.FileNo, tok.LineNo)
}

func (cg *Codegen) printf(format string, args ...any) {
	fmt.Fprintf(cg.out, format, args...)
}

func (cg *Codegen) label() string {
	cg.labelSeq++
	return fmt.Sprintf(".L.codegen.%d", cg.labelSeq)
}

// --- Frame layout ---

// assignLVarOffsetsAll lays out every function's locals below the
// frame pointer, deepest-declared-first like chibicc, aligning each
// to its own alignment and rounding the whole frame up to 16.
func (cg *Codegen) assignLVarOffsetsAll() {
	// The prologue always spills %r12-%r15 to -8(%rbp)..-32(%rbp), so
	// every function reserves that 32-byte area before any local or
	// variadic-save byte gets an offset, or they'd alias a saved
	// register.
	const calleeSaveArea = 32
	for _, fn := range cg.prog.Funcs {
		offset := calleeSaveArea
		if fn.IsVariadic {
			const vaAreaSize = 176 // 6 GP regs * 8 + 8 xmm regs * 16, see storeVariadicArea
			offset = calleeSaveArea + vaAreaSize
			fn.VaAreaOffset = -offset
		}
		for _, v := range fn.Locals {
			offset += v.Ty.Size
			offset = AlignTo(offset, v.Align)
			v.Offset = -offset
		}
		fn.StackSize = AlignTo(offset, 16)
	}
}

// --- Globals ---

func (cg *Codegen) emitData() {
	for _, v := range cg.prog.Globals {
		if v.IsTentative {
			cg.printf("  .bss\n")
			if !v.IsStatic {
				cg.printf("  .globl %s\n", v.Name)
			}
			cg.printf("  .align %d\n", v.Align)
			cg.printf("%s:\n", v.Name)
			cg.printf("  .zero %d\n", v.Ty.Size)
			continue
		}
		if !v.IsDefinition {
			continue
		}
		cg.printf("  .data\n")
		if !v.IsStatic {
			cg.printf("  .globl %s\n", v.Name)
		}
		cg.printf("  .align %d\n", v.Align)
		cg.printf("%s:\n", v.Name)

		if len(v.Relocs) == 0 && isNulTerminatedCharString(v) {
			cg.printf("  .string %s\n", quoteAsmString(v.InitData[:len(v.InitData)-1]))
			continue
		}

		relocs := append([]*Relocation(nil), v.Relocs...)
		pos := 0
		for _, r := range relocs {
			if r.Offset > pos {
				cg.printf("  .byte %s\n", byteList(v.InitData[pos:r.Offset]))
				pos = r.Offset
			}
			if r.Addend != 0 {
				cg.printf("  .quad %s+%d\n", r.Label, r.Addend)
			} else {
				cg.printf("  .quad %s\n", r.Label)
			}
			pos += 8
		}
		if pos < len(v.InitData) {
			cg.printf("  .byte %s\n", byteList(v.InitData[pos:]))
		}
	}
}

// isNulTerminatedCharString reports whether v's data is exactly the
// shape a "char[] = \"...\"" initializer produces: a char array whose
// bytes are a single run of text ending in one NUL, so it can be
// emitted with .string (spec §147) instead of a raw .byte list.
func isNulTerminatedCharString(v *Var) bool {
	if v.Ty.Kind != TyArray || v.Ty.Base == nil || v.Ty.Base.Size != 1 {
		return false
	}
	n := len(v.InitData)
	if n == 0 || v.InitData[n-1] != 0 {
		return false
	}
	for _, b := range v.InitData[:n-1] {
		if b == 0 {
			return false
		}
	}
	return true
}

// quoteAsmString renders b as a GAS .string literal, escaping the
// characters GAS's string syntax cares about.
func quoteAsmString(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&sb, "\\%03o", c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func byteList(b []byte) string {
	s := ""
	for i, c := range b {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", c)
	}
	if s == "" {
		return "0"
	}
	return s
}

// --- Functions ---

func (cg *Codegen) emitText() {
	for _, fn := range cg.prog.Funcs {
		if !fn.IsDefined {
			continue
		}
		cg.curFn = fn
		cg.printf("  .text\n")
		if !fn.IsStatic {
			cg.printf("  .globl %s\n", fn.Name)
		}
		cg.printf("%s:\n", fn.Name)

		cg.printf("  push %%rbp\n")
		cg.printf("  mov %%rsp, %%rbp\n")
		cg.printf("  sub $%d, %%rsp\n", fn.StackSize)
		cg.printf("  mov %%r12, -8(%%rbp)\n")
		cg.printf("  mov %%r13, -16(%%rbp)\n")
		cg.printf("  mov %%r14, -24(%%rbp)\n")
		cg.printf("  mov %%r15, -32(%%rbp)\n")

		if fn.IsVariadic {
			cg.storeVariadicArea(fn)
		}
		cg.storeParams(fn)

		cg.genStmt(fn.Body)

		cg.printf("%s.return:\n", fn.Name)
		cg.printf("  mov -8(%%rbp), %%r12\n")
		cg.printf("  mov -16(%%rbp), %%r13\n")
		cg.printf("  mov -24(%%rbp), %%r14\n")
		cg.printf("  mov -32(%%rbp), %%r15\n")
		cg.printf("  mov %%rbp, %%rsp\n")
		cg.printf("  pop %%rbp\n")
		cg.printf("  ret\n")
	}
}

func (cg *Codegen) storeParams(fn *Function) {
	intIdx, floIdx := 0, 0
	for _, v := range fn.Params {
		if v.Ty.IsFlonum() {
			cg.storeFloParam(floIdx, v.Offset, v.Ty.Size)
			floIdx++
			continue
		}
		cg.storeIntParam(intIdx, v.Offset, v.Ty.Size)
		intIdx++
	}
}

func (cg *Codegen) storeIntParam(idx, offset, size int) {
	reg := amd64IntArgReg(idx, size)
	cg.printf("  mov %s, %d(%%rbp)\n", reg, offset)
}

func (cg *Codegen) storeFloParam(idx, offset, size int) {
	if size == 4 {
		cg.printf("  movss %s, %d(%%rbp)\n", amd64FloArgReg(idx), offset)
	} else {
		cg.printf("  movsd %s, %d(%%rbp)\n", amd64FloArgReg(idx), offset)
	}
}

// storeVariadicArea spills all 6 integer and all 8 xmm argument
// registers into a fixed save area so va_arg-style access can walk it; the exact
// offsets are pinned to chibicc's layout (spec Open Question, see
// DESIGN.md).
func (cg *Codegen) storeVariadicArea(fn *Function) {
	base := fn.VaAreaOffset
	for i, r := range amd64IntArgRegs {
		cg.printf("  mov %s, %d(%%rbp)\n", r, base+i*8)
	}
	for i, r := range amd64FloArgRegs8 {
		cg.printf("  movsd %s, %d(%%rbp)\n", r, base+48+i*16)
	}
}

// --- Statements ---

func (cg *Codegen) genStmt(n *Node) {
	if n == nil {
		return
	}
	cg.emitLoc(n.Tok)
	switch n.Kind {
	case NdBlock:
		for s := n.Body; s != nil; s = s.Next {
			cg.genStmt(s)
		}
	case NdExprStmt:
		cg.genExprDiscard(n.Lhs)
	case NdReturn:
		if n.Lhs != nil {
			cg.genExpr(n.Lhs)
			if n.Lhs.Ty != nil && n.Lhs.Ty.IsFlonum() {
				if n.Lhs.Ty.Kind == TyFloat {
					cg.printf("  movss %s, %%xmm0\n", cg.floCur())
				} else {
					cg.printf("  movsd %s, %%xmm0\n", cg.floCur())
				}
			} else {
				cg.printf("  mov %s, %%rax\n", cg.gpCur())
			}
		}
		cg.printf("  jmp %s.return\n", cg.curFn.Name)
	case NdIf:
		lbl := cg.label()
		cg.genExpr(n.Cond)
		cg.cmpZero(n.Cond.Ty)
		cg.printf("  je %s.else\n", lbl)
		cg.genStmt(n.Then)
		cg.printf("  jmp %s.end\n", lbl)
		cg.printf("%s.else:\n", lbl)
		if n.Els != nil {
			cg.genStmt(n.Els)
		}
		cg.printf("%s.end:\n", lbl)
	case NdFor:
		if n.Init != nil {
			cg.genStmt(n.Init)
		}
		begin := cg.label()
		cg.printf("%s.begin:\n", begin)
		if n.Cond != nil {
			cg.genExpr(n.Cond)
			cg.cmpZero(n.Cond.Ty)
			cg.printf("  je %s\n", n.BrkLabel)
		}
		cg.genStmt(n.Then)
		cg.printf("%s:\n", n.ContLabel)
		if n.Inc != nil {
			cg.genStmt(n.Inc)
		}
		cg.printf("  jmp %s.begin\n", begin)
		cg.printf("%s:\n", n.BrkLabel)
	case NdDo:
		begin := cg.label()
		cg.printf("%s:\n", begin)
		cg.genStmt(n.Then)
		cg.printf("%s:\n", n.ContLabel)
		cg.genExpr(n.Cond)
		cg.cmpZero(n.Cond.Ty)
		cg.printf("  jne %s\n", begin)
		cg.printf("%s:\n", n.BrkLabel)
	case NdSwitch:
		cg.genExpr(n.Cond)
		for c := n.CaseNext; c != nil; c = c.CaseNext {
			reg := cg.gpCur()
			if c.CaseBegin == c.CaseEnd {
				cg.printf("  cmp $%d, %s\n", c.CaseBegin, reg)
				cg.printf("  je %s\n", c.CaseLabel)
				continue
			}
			cg.printf("  mov %s, %%rax\n", reg)
			cg.printf("  sub $%d, %%rax\n", c.CaseBegin)
			cg.printf("  cmp $%d, %%rax\n", c.CaseEnd-c.CaseBegin)
			cg.printf("  jbe %s\n", c.CaseLabel)
		}
		if n.DefaultCase != nil {
			cg.printf("  jmp %s\n", n.DefaultCase.CaseLabel)
		} else {
			cg.printf("  jmp %s\n", n.BrkLabel)
		}
		cg.genStmt(n.Then)
		cg.printf("%s:\n", n.BrkLabel)
	case NdCase:
		cg.printf("%s:\n", n.CaseLabel)
		cg.genStmt(n.Lhs)
	case NdGotoStmt:
		if n.UniqueLabel != "" {
			cg.printf("  jmp %s\n", n.UniqueLabel)
		} else {
			cg.printf("  jmp %s.L.user.%s\n", cg.curFn.Name, n.GotoLabel)
		}
	case NdLabel:
		cg.printf("%s:\n", n.UniqueLabel)
		cg.genStmt(n.Lhs)
	default:
		Bug("unknown statement node kind %d", n.Kind)
	}
}

func (cg *Codegen) cmpZero(ty *Type) {
	if ty != nil && ty.IsFlonum() {
		reg := floRegs[cg.floTop]
		if ty.Kind == TyFloat {
			cg.printf("  xorps %%xmm0, %%xmm0\n")
			cg.printf("  ucomiss %%xmm0, %s\n", reg)
		} else {
			cg.printf("  xorpd %%xmm0, %%xmm0\n")
			cg.printf("  ucomisd %%xmm0, %s\n", reg)
		}
		return
	}
	cg.printf("  cmp $0, %s\n", cg.gpCur())
}

// --- Expressions ---

// gpCur/floCur name the register holding "the current value" at the
// present stack depth; genExpr always leaves its result there.
func (cg *Codegen) gpCur() string  { return gpRegs[cg.top] }
func (cg *Codegen) floCur() string { return floRegs[cg.floTop] }

func (cg *Codegen) pushInt() {
	if cg.top >= len(gpRegs)-1 {
		Bug("integer expression nesting exceeded the register stack")
	}
	cg.top++
}
func (cg *Codegen) popInt() { cg.top-- }

func (cg *Codegen) pushFlo() {
	if cg.floTop >= len(floRegs)-1 {
		Bug("floating expression nesting exceeded the register stack")
	}
	cg.floTop++
}
func (cg *Codegen) popFlo() { cg.floTop-- }

// genExprDiscard evaluates n for side effects only, at the current
// (unconsumed) stack depth.
func (cg *Codegen) genExprDiscard(n *Node) {
	if n == nil {
		return
	}
	cg.genExpr(n)
}

// gen_addr: evaluate an lvalue down to its address in gpCur().
func (cg *Codegen) genAddr(n *Node) {
	switch n.Kind {
	case NdVar:
		if n.Var.IsLocal {
			cg.printf("  lea %d(%%rbp), %s\n", n.Var.Offset, cg.gpCur())
		} else {
			cg.printf("  lea %s(%%rip), %s\n", n.Var.Name, cg.gpCur())
		}
	case NdDeref:
		cg.genExpr(n.Lhs)
	case NdComma:
		cg.genExprDiscard(n.Lhs)
		cg.genAddr(n.Rhs)
	case NdMember:
		cg.genAddr(n.Lhs)
		if n.Mem.Offset != 0 {
			cg.printf("  add $%d, %s\n", n.Mem.Offset, cg.gpCur())
		}
	default:
		cg.diag.ErrorTok(n.Tok, "not an lvalue")
	}
}

// load reads the value at the address currently in gpCur() into that
// same slot, or is a no-op for arrays/structs/unions: their "value" is
// their address (spec §4.2's array-decay rule, extended the same way
// chibicc extends it to aggregates passed/returned by reference).
func (cg *Codegen) load(ty *Type) {
	switch ty.Kind {
	case TyArray, TyStruct, TyUnion, TyFunc:
		return
	case TyFloat:
		cg.printf("  movss (%s), %s\n", cg.gpCur(), cg.floCur())
		return
	case TyDouble:
		cg.printf("  movsd (%s), %s\n", cg.gpCur(), cg.floCur())
		return
	}
	reg := cg.gpCur()
	switch ty.Size {
	case 1:
		if ty.Unsigned {
			cg.printf("  movzbl (%s), %s\n", reg, reg32(reg))
		} else {
			cg.printf("  movsbl (%s), %s\n", reg, reg32(reg))
		}
	case 2:
		if ty.Unsigned {
			cg.printf("  movzwl (%s), %s\n", reg, reg32(reg))
		} else {
			cg.printf("  movswl (%s), %s\n", reg, reg32(reg))
		}
	case 4:
		cg.printf("  movl (%s), %s\n", reg, reg32(reg))
	default:
		cg.printf("  mov (%s), %s\n", reg, reg)
	}
}

// store writes floCur()/gpCur()'s value to the address in the
// register just below it on the stack (the lvalue address pushed
// before the rvalue was computed), leaving the stored value as the
// expression's result.
func (cg *Codegen) store(ty *Type) {
	if ty.Kind == TyStruct || ty.Kind == TyUnion {
		addrReg := gpRegs[cg.top-1]
		srcReg := cg.gpCur()
		for i := 0; i < ty.Size; i++ {
			cg.printf("  mov %d(%s), %%al\n", i, srcReg)
			cg.printf("  mov %%al, %d(%s)\n", i, addrReg)
		}
		return
	}
	if ty.IsFlonum() {
		addrReg := gpRegs[cg.top-1]
		if ty.Kind == TyFloat {
			cg.printf("  movss %s, (%s)\n", cg.floCur(), addrReg)
		} else {
			cg.printf("  movsd %s, (%s)\n", cg.floCur(), addrReg)
		}
		return
	}
	addrReg := gpRegs[cg.top-1]
	srcReg := cg.gpCur()
	switch ty.Size {
	case 1:
		cg.printf("  mov %s, (%s)\n", reg8(srcReg), addrReg)
	case 2:
		cg.printf("  mov %s, (%s)\n", reg16(srcReg), addrReg)
	case 4:
		cg.printf("  mov %s, (%s)\n", reg32(srcReg), addrReg)
	default:
		cg.printf("  mov %s, (%s)\n", srcReg, addrReg)
	}
	// popInt() (the caller) drops back to the depth holding addrReg;
	// overwrite it with the stored value so the assignment expression
	// still evaluates to that value at the shallower depth.
	cg.printf("  mov %s, %s\n", srcReg, addrReg)
}

func (cg *Codegen) genExpr(n *Node) {
	if n == nil {
		return
	}
	cg.emitLoc(n.Tok)
	switch n.Kind {
	case NdNum:
		if n.Ty != nil && n.Ty.IsFlonum() {
			lbl := cg.label()
			if n.Ty.Kind == TyFloat {
				cg.printf("  .section .rodata\n%s:\n  .long %d\n  .text\n", lbl, int32BitsOf(float32(n.FVal)))
				cg.printf("  movss %s(%%rip), %s\n", lbl, cg.floCur())
			} else {
				cg.printf("  .section .rodata\n%s:\n  .quad %d\n  .text\n", lbl, int64BitsOf(n.FVal))
				cg.printf("  movsd %s(%%rip), %s\n", lbl, cg.floCur())
			}
			return
		}
		cg.printf("  mov $%d, %s\n", n.Val, cg.gpCur())
	case NdVar, NdMember:
		cg.genAddr(n)
		cg.load(n.Ty)
	case NdDeref:
		cg.genExpr(n.Lhs)
		cg.load(n.Ty)
	case NdAddr:
		cg.genAddr(n.Lhs)
	case NdAssign:
		cg.genAddr(n.Lhs)
		cg.pushInt()
		cg.genExpr(n.Rhs)
		cg.store(n.Lhs.Ty)
		cg.popInt()
	case NdMemZero:
		cg.genAddr(n.Lhs)
		reg := cg.gpCur()
		cg.printf("  mov $%d, %%rcx\n", SizeOf(n.Lhs.Ty))
		cg.printf("  mov %s, %%rdi\n", reg)
		cg.printf("  xor %%al, %%al\n")
		cg.printf("  rep stosb\n")
	case NdCast:
		cg.genExpr(n.Lhs)
		cg.genCast(n.Lhs.Ty, n.Ty)
	case NdCond:
		lbl := cg.label()
		cg.genExpr(n.Cond)
		cg.cmpZero(n.Cond.Ty)
		cg.printf("  je %s.else\n", lbl)
		cg.genExpr(n.Then)
		cg.printf("  jmp %s.end\n", lbl)
		cg.printf("%s.else:\n", lbl)
		cg.genExpr(n.Els)
		cg.printf("%s.end:\n", lbl)
	case NdNot:
		cg.genExpr(n.Lhs)
		cg.cmpZero(n.Lhs.Ty)
		cg.printf("  sete %s\n", reg8(cg.gpCur()))
		cg.printf("  movzbl %s, %s\n", reg8(cg.gpCur()), reg32(cg.gpCur()))
	case NdBitNot:
		cg.genExpr(n.Lhs)
		cg.printf("  not %s\n", cg.gpCur())
	case NdNeg:
		cg.genExpr(n.Lhs)
		if n.Ty.IsFlonum() {
			cg.printf("  xorps %s, %s\n", cg.floCur(), cg.floCur())
			if n.Ty.Kind == TyFloat {
				cg.printf("  subss %s, %s\n", cg.floCur(), cg.floCur())
			} else {
				cg.printf("  subsd %s, %s\n", cg.floCur(), cg.floCur())
			}
			return
		}
		cg.printf("  neg %s\n", cg.gpCur())
	case NdLogAnd:
		lbl := cg.label()
		cg.genExpr(n.Lhs)
		cg.cmpZero(n.Lhs.Ty)
		cg.printf("  je %s.false\n", lbl)
		cg.genExpr(n.Rhs)
		cg.cmpZero(n.Rhs.Ty)
		cg.printf("  je %s.false\n", lbl)
		cg.printf("  mov $1, %s\n", cg.gpCur())
		cg.printf("  jmp %s.end\n", lbl)
		cg.printf("%s.false:\n", lbl)
		cg.printf("  mov $0, %s\n", cg.gpCur())
		cg.printf("%s.end:\n", lbl)
	case NdLogOr:
		lbl := cg.label()
		cg.genExpr(n.Lhs)
		cg.cmpZero(n.Lhs.Ty)
		cg.printf("  jne %s.true\n", lbl)
		cg.genExpr(n.Rhs)
		cg.cmpZero(n.Rhs.Ty)
		cg.printf("  jne %s.true\n", lbl)
		cg.printf("  mov $0, %s\n", cg.gpCur())
		cg.printf("  jmp %s.end\n", lbl)
		cg.printf("%s.true:\n", lbl)
		cg.printf("  mov $1, %s\n", cg.gpCur())
		cg.printf("%s.end:\n", lbl)
	case NdComma:
		cg.genExprDiscard(n.Lhs)
		cg.genExpr(n.Rhs)
	case NdStmtExpr:
		for s := n.Body; s != nil; s = s.Next {
			if s.Next == nil && s.Kind == NdExprStmt {
				cg.genExpr(s.Lhs)
				return
			}
			cg.genStmt(s)
		}
	case NdFuncall:
		cg.genFuncall(n)
	case NdAdd, NdSub, NdMul, NdDiv, NdMod, NdBitAnd, NdBitOr, NdBitXor, NdShl, NdShr,
		NdEq, NdNe, NdLt, NdLe:
		cg.genBinary(n)
	default:
		Bug("unknown expression node kind %d", n.Kind)
	}
}

func (cg *Codegen) genCast(from, to *Type) {
	if to.Kind == TyVoid {
		return
	}
	if to.IsFlonum() && !from.IsFlonum() {
		cg.floTop = cg.top // share index space when crossing domains momentarily
		if to.Kind == TyFloat {
			cg.printf("  cvtsi2ss %s, %s\n", cg.gpCur(), cg.floCur())
		} else {
			cg.printf("  cvtsi2sd %s, %s\n", cg.gpCur(), cg.floCur())
		}
		return
	}
	if from.IsFlonum() && !to.IsFlonum() {
		if to.Kind == TyBool {
			cg.cmpZero(from)
			cg.printf("  setne %s\n", reg8(cg.gpCur()))
			cg.printf("  movzbl %s, %s\n", reg8(cg.gpCur()), reg32(cg.gpCur()))
			return
		}
		if from.Kind == TyFloat {
			cg.printf("  cvttss2si %s, %s\n", cg.floCur(), cg.gpCur())
		} else {
			cg.printf("  cvttsd2si %s, %s\n", cg.floCur(), cg.gpCur())
		}
		return
	}
	if from.IsFlonum() && to.IsFlonum() {
		if from.Kind == to.Kind {
			return
		}
		if to.Kind == TyDouble {
			cg.printf("  cvtss2sd %s, %s\n", cg.floCur(), cg.floCur())
		} else {
			cg.printf("  cvtsd2ss %s, %s\n", cg.floCur(), cg.floCur())
		}
		return
	}
	if to.Kind == TyBool {
		cg.cmpZero(from)
		cg.printf("  setne %s\n", reg8(cg.gpCur()))
		cg.printf("  movzbl %s, %s\n", reg8(cg.gpCur()), reg32(cg.gpCur()))
		return
	}
	reg := cg.gpCur()
	switch to.Size {
	case 1:
		if to.Unsigned {
			cg.printf("  movzbl %s, %s\n", reg8(reg), reg32(reg))
		} else {
			cg.printf("  movsbl %s, %s\n", reg8(reg), reg32(reg))
		}
	case 2:
		if to.Unsigned {
			cg.printf("  movzwl %s, %s\n", reg16(reg), reg32(reg))
		} else {
			cg.printf("  movswl %s, %s\n", reg16(reg), reg32(reg))
		}
	case 4:
		if from.Size == 8 {
			cg.printf("  mov %s, %s\n", reg32(reg), reg32(reg))
		}
	case 8:
		if from.Size < 8 && !from.Unsigned {
			cg.printf("  movslq %s, %s\n", reg32(reg), reg)
		}
	}
}

func (cg *Codegen) genBinary(n *Node) {
	cg.genExpr(n.Lhs)
	if n.Ty.IsFlonum() {
		cg.pushFlo()
		cg.genExpr(n.Rhs)
		lhs, rhs := floRegs[cg.floTop-1], cg.floCur()
		suffix := "sd"
		if n.Ty.Kind == TyFloat {
			suffix = "ss"
		}
		switch n.Kind {
		case NdAdd:
			cg.printf("  add%s %s, %s\n", suffix, rhs, lhs)
		case NdSub:
			cg.printf("  sub%s %s, %s\n", suffix, rhs, lhs)
		case NdMul:
			cg.printf("  mul%s %s, %s\n", suffix, rhs, lhs)
		case NdDiv:
			cg.printf("  div%s %s, %s\n", suffix, rhs, lhs)
		case NdEq, NdNe, NdLt, NdLe:
			cg.printf("  ucomi%s %s, %s\n", suffix, rhs, lhs)
			cg.emitSetFromFlags(n.Kind)
			cg.popFlo()
			return
		}
		cg.popFlo()
		return
	}

	cg.pushInt()
	cg.genExpr(n.Rhs)
	lhs, rhs := gpRegs[cg.top-1], cg.gpCur()
	switch n.Kind {
	case NdAdd:
		cg.printf("  add %s, %s\n", rhs, lhs)
	case NdSub:
		cg.printf("  sub %s, %s\n", rhs, lhs)
	case NdMul:
		cg.printf("  imul %s, %s\n", rhs, lhs)
	case NdDiv, NdMod:
		cg.printf("  mov %s, %%rax\n", lhs)
		if n.Ty.Unsigned {
			cg.printf("  xor %%edx, %%edx\n")
			cg.printf("  div %s\n", rhs)
		} else {
			cg.printf("  cqto\n")
			cg.printf("  idiv %s\n", rhs)
		}
		if n.Kind == NdDiv {
			cg.printf("  mov %%rax, %s\n", lhs)
		} else {
			cg.printf("  mov %%rdx, %s\n", lhs)
		}
	case NdBitAnd:
		cg.printf("  and %s, %s\n", rhs, lhs)
	case NdBitOr:
		cg.printf("  or %s, %s\n", rhs, lhs)
	case NdBitXor:
		cg.printf("  xor %s, %s\n", rhs, lhs)
	case NdShl:
		cg.printf("  mov %s, %%rcx\n", rhs)
		cg.printf("  shl %%cl, %s\n", lhs)
	case NdShr:
		cg.printf("  mov %s, %%rcx\n", rhs)
		if n.Ty.Unsigned {
			cg.printf("  shr %%cl, %s\n", lhs)
		} else {
			cg.printf("  sar %%cl, %s\n", lhs)
		}
	case NdEq, NdNe, NdLt, NdLe:
		cg.printf("  cmp %s, %s\n", rhs, lhs)
		cg.emitSetFromFlags(n.Kind)
		cg.popInt()
		return
	}
	cg.popInt()
}

func (cg *Codegen) emitSetFromFlags(kind NodeKind) {
	reg := cg.gpCur()
	switch kind {
	case NdEq:
		cg.printf("  sete %s\n", reg8(reg))
	case NdNe:
		cg.printf("  setne %s\n", reg8(reg))
	case NdLt:
		cg.printf("  setb %s\n", reg8(reg))
	case NdLe:
		cg.printf("  setbe %s\n", reg8(reg))
	}
	cg.printf("  movzbl %s, %s\n", reg8(reg), reg32(reg))
}

// saveCallerSaved pushes every register-stack slot a call would
// clobber: %r10/%r11 (gpRegs[0:2]) below the depth reserved for the
// call's own result, and every live %xmm slot, since the System V ABI
// leaves all of %xmm0-%xmm15 caller-saved (spec §143). %r12-%r15 need
// no help here — the function prologue/epilogue already saves/restores
// them once per call frame, not per call site. Returns the registers
// pushed, innermost first, for restoreCallerSaved to unwind.
func (cg *Codegen) saveCallerSaved() []string {
	var saved []string
	for i := 0; i < cg.top && i < 2; i++ {
		saved = append(saved, gpRegs[i])
	}
	for i := 0; i < cg.floTop; i++ {
		saved = append(saved, floRegs[i])
	}
	for _, r := range saved {
		if strings.HasPrefix(r, "%xmm") {
			cg.printf("  sub $8, %%rsp\n")
			cg.printf("  movsd %s, (%%rsp)\n", r)
		} else {
			cg.printf("  push %s\n", r)
		}
	}
	return saved
}

// restoreCallerSaved undoes saveCallerSaved in reverse push order.
func (cg *Codegen) restoreCallerSaved(saved []string) {
	for i := len(saved) - 1; i >= 0; i-- {
		r := saved[i]
		if strings.HasPrefix(r, "%xmm") {
			cg.printf("  movsd (%%rsp), %s\n", r)
			cg.printf("  add $8, %%rsp\n")
		} else {
			cg.printf("  pop %s\n", r)
		}
	}
}

// genFuncall marshals the already-temp-bound NdFuncall.Args into the
// System V argument registers and emits the call; aggregates are
// passed by reference (an Open Question resolved toward simplicity,
// see DESIGN.md) and returned the same way via a hidden first
// argument when the return type doesn't fit a single register.
func (cg *Codegen) genFuncall(n *Node) {
	intIdx, floIdx := 0, 0
	for _, arg := range n.Args {
		cg.genExpr(arg)
		if arg.Ty.IsFlonum() {
			if floIdx < len(amd64FloArgRegs8) {
				cg.printf("  movsd %s, %s\n", cg.floCur(), amd64FloArgRegs8[floIdx])
			}
			floIdx++
			continue
		}
		if intIdx < len(amd64IntArgRegs) {
			cg.printf("  mov %s, %s\n", cg.gpCur(), amd64IntArgRegs[intIdx])
		}
		intIdx++
	}
	if n.FuncTy != nil && n.FuncTy.IsVariadic {
		cg.printf("  mov $%d, %%al\n", floIdx)
	}
	saved := cg.saveCallerSaved()
	cg.printf("  call %s\n", n.FuncName)
	cg.restoreCallerSaved(saved)
	if n.Ty != nil {
		if n.Ty.IsFlonum() {
			cg.printf("  movsd %%xmm0, %s\n", cg.floCur())
		} else if n.Ty.Kind == TyBool {
			cg.printf("  movzbl %%al, %s\n", reg32(cg.gpCur()))
		} else {
			cg.printf("  mov %%rax, %s\n", cg.gpCur())
		}
	}
}

func int32BitsOf(f float32) uint32 { return float32bitsOf(f) }
func int64BitsOf(f float64) uint64 { return float64bitsOf(f) }
