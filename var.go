// Var, Relocation, Function and Program: the parser's non-expression
// IR (spec §3).
package main

// Relocation describes one pointer-to-global entry embedded in a
// global's raw initializer buffer: byte offset, target label, and an
// addend ("&g" is addend 0, "&g+4" is addend 4).
type Relocation struct {
	Offset int
	Label  string
	Addend int64
}

// Var is one variable: a local, a global, or a string-literal
// constant (a global with a synthesized name).
type Var struct {
	Name string
	Ty   *Type

	IsLocal bool
	Align   int
	Offset  int // byte offset from the frame pointer, locals only

	IsStatic    bool // globals only: not exported via .globl
	IsTentative bool // declared without an initializer (goes in .bss)
	InitData    []byte
	Relocs      []*Relocation

	IsDefinition bool // has a body (functions) / is not merely `extern`
}

// Function is one function definition: parameters and locals are
// both Vars; Params is a prefix of Locals in declaration order.
type Function struct {
	Name       string
	Ty         *Type
	Params     []*Var
	Locals     []*Var
	Body       *Node // NdBlock
	StackSize  int
	IsStatic   bool
	IsDefined  bool
	IsVariadic bool

	// x86-64 variadic argument save area: codegen.go places its 176
	// bytes just below the 32-byte callee-save area, so for a variadic
	// function it starts at -208(%rbp). The RV64 backend does not use
	// this field.
	VaAreaOffset int
}

// Program is the parse result: every global variable (including
// string-literal constants and compound literals) and every function,
// in declaration order.
type Program struct {
	Globals []*Var
	Funcs   []*Function
}
