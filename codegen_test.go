package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodegenEmitsFunctionLabel(t *testing.T) {
	asm := compileSource(t, "int main(){ return 1+2*3; }")
	require.Contains(t, asm, "main:")
	require.Contains(t, asm, "  ret\n")
}

func TestCodegenArithmeticUsesRegisterStack(t *testing.T) {
	asm := compileSource(t, "int main(){ return 1+2*3; }")
	require.Contains(t, asm, "%r10")
	require.Contains(t, asm, "imul")
}

func TestCodegenPointerArithmeticScalesBySize(t *testing.T) {
	asm := compileSource(t, "int main(){ int a[3]={1,2,3}; int *p=a; return *(p+2); }")
	// Scaling by sizeof(int)==4 shows up as an imul or shl by 2 against
	// the pointer offset; either form is acceptable codegen, so just
	// confirm a multiply/shift touches the offset computation at all.
	require.True(t, strings.Contains(asm, "imul") || strings.Contains(asm, "sal") || strings.Contains(asm, "shl"))
}

func TestCodegenGlobalsEmitDataSection(t *testing.T) {
	asm := compileSource(t, "int g = 42; int main(){ return g; }")
	require.Contains(t, asm, ".data")
	require.Contains(t, asm, "g:")
}

func TestCodegenTentativeGlobalEmitsBss(t *testing.T) {
	asm := compileSource(t, "int g; int main(){ return 0; }")
	require.Contains(t, asm, ".bss")
	require.Contains(t, asm, ".zero 4")
}

func TestCodegenVariadicCallSetsVectorCount(t *testing.T) {
	asm := compileSource(t, `
		extern int add_all1(int, ...);
		int main(){ return add_all1(1,2,3,0); }
	`)
	require.Contains(t, asm, "call add_all1")
	require.Contains(t, asm, "%al")
}

func TestCodegenNonVariadicCallOmitsVectorCountSetup(t *testing.T) {
	asm := compileSource(t, `
		int add(int a, int b);
		int main(){ return add(1, 2); }
	`)
	require.Contains(t, asm, "call add")
	require.NotContains(t, asm, "%al")
}

func TestCodegenFunctionPrologueSavesCalleeSavedRegisters(t *testing.T) {
	asm := compileSource(t, "int main(){ int a=1,b=2,c=3,d=4,e=5,f=6,g=7; return a+b+c+d+e+f+g; }")
	require.Contains(t, asm, "push %rbp")
	require.Contains(t, asm, "mov %rsp, %rbp")
	require.Contains(t, asm, "mov %r12, -8(%rbp)")
	require.Contains(t, asm, "mov %r15, -32(%rbp)")
}

func TestCodegenStringConcatenationSizeof(t *testing.T) {
	asm := compileSource(t, `int main(){ return sizeof("a" "bc"); }`)
	require.Contains(t, asm, "mov $4,")
}

func TestCodegenGlobalCharArrayUsesStringDirective(t *testing.T) {
	asm := compileSource(t, `char msg[] = "hi"; int main(){ return 0; }`)
	require.Contains(t, asm, `.string "hi"`)
	require.NotContains(t, asm, ".byte")
}

func TestCodegenEmitsFileAndLocDirectives(t *testing.T) {
	asm := compileSource(t, "int main(){ return 1; }")
	require.Contains(t, asm, "  .file 1 ")
	require.Contains(t, asm, "  .loc 1 ")
}

func TestCodegenPreservesCallerSavedAcrossNestedCall(t *testing.T) {
	// The outer "1 +" operand lives in a caller-saved slot (%r10) while
	// f() is called to produce the other operand, so the call must save
	// and restore it or the addition reads a clobbered value.
	asm := compileSource(t, `
		int f(void);
		int main(){ return 1 + f(); }
	`)
	require.Contains(t, asm, "push %r10")
	require.Contains(t, asm, "pop %r10")
}

func TestCodegenNoCallerSaveNeededForLeafCall(t *testing.T) {
	// A single call with nothing live in an outer register-stack slot
	// needs no save/restore at all.
	asm := compileSource(t, `
		int f(void);
		int main(){ return f(); }
	`)
	require.NotContains(t, asm, "push %r10")
	require.NotContains(t, asm, "push %r11")
}
