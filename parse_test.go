package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleFunctionDefinition(t *testing.T) {
	prog := parseSource(t, "int main() { return 1+2*3; }")
	fn := findFunc(prog, "main")
	require.NotNil(t, fn)
	require.True(t, fn.IsDefined)
	require.Equal(t, NdBlock, fn.Body.Kind)
}

func TestParsePointerArithmeticScalesByBaseSize(t *testing.T) {
	prog := parseSource(t, "int main(){ int a[3]; int *p=a; return *(p+2); }")
	fn := findFunc(prog, "main")
	require.NotNil(t, fn)
	require.True(t, len(fn.Locals) >= 2)
	// *(p+2) lowers to Deref(Add(p, Mul(2, sizeof(int)))): an 8-byte offset.
	ret := fn.Body.Body.Next.Next
	require.Equal(t, NdReturn, ret.Kind)
	add := ret.Lhs.Lhs.Lhs
	require.Equal(t, NdAdd, add.Kind)
	require.Equal(t, NdMul, add.Rhs.Kind)
	require.EqualValues(t, 8, EvalConstExpr(NewDiagnostics(os.Stderr), add.Rhs))
}

func TestParseNestedParenthesizedDeclarator(t *testing.T) {
	// int (*p)[3]: p is a pointer to an array of 3 ints.
	prog := parseSource(t, "int (*p)[3]; int main(){ return 0; }")
	require.Len(t, prog.Globals, 1)
	g := prog.Globals[0]
	require.Equal(t, "p", g.Name)
	require.Equal(t, TyPtr, g.Ty.Kind)
	require.Equal(t, TyArray, g.Ty.Base.Kind)
	require.Equal(t, 3, g.Ty.Base.ArrayLen)
}

func TestParseFunctionPointerDeclarator(t *testing.T) {
	// int (*fp)(int, int): fp is a pointer to a function taking two ints.
	prog := parseSource(t, "int (*fp)(int, int); int main(){ return 0; }")
	g := prog.Globals[0]
	require.Equal(t, "fp", g.Name)
	require.Equal(t, TyPtr, g.Ty.Kind)
	require.Equal(t, TyFunc, g.Ty.Base.Kind)
}

func TestParseStructBitfieldLayout(t *testing.T) {
	// a:3 + b:5 + c:24 == 32 bits, packed into one 4-byte storage unit.
	prog := parseSource(t, `
		struct S { int a:3; int b:5; int c:24; };
		int main(){ return sizeof(struct S); }
	`)
	fn := findFunc(prog, "main")
	ret := fn.Body.Body
	require.Equal(t, NdCast, ret.Lhs.Kind)
	require.EqualValues(t, 4, ret.Lhs.Lhs.Val)
}

func TestParseVariadicFunctionDeclaration(t *testing.T) {
	prog := parseSource(t, `
		extern int add_all1(int, ...);
		int main(){ return add_all1(1,2,3,0); }
	`)
	fn := findFunc(prog, "main")
	require.NotNil(t, fn)
}

func TestParseFunctionCallArgumentsLowerToTempChain(t *testing.T) {
	prog := parseSource(t, `
		int add(int a, int b);
		int main(){ return add(1+1, 2+2); }
	`)
	fn := findFunc(prog, "main")
	require.NotNil(t, fn)
	// Each call argument becomes a fresh local temp assigned in order,
	// chained via NdComma ending in the NdFuncall.
	retStmt := fn.Body.Body
	require.Equal(t, NdReturn, retStmt.Kind)
	require.Equal(t, NdCast, retStmt.Lhs.Kind)
	require.Equal(t, NdComma, retStmt.Lhs.Lhs.Kind)
}

func TestParseStringConcatenationSizeof(t *testing.T) {
	prog := parseSource(t, `int main(){ return sizeof("a" "bc"); }`)
	fn := findFunc(prog, "main")
	require.NotNil(t, fn)
	ret := fn.Body.Body
	require.Equal(t, NdReturn, ret.Kind)
	require.Equal(t, NdCast, ret.Lhs.Kind)
	require.EqualValues(t, 4, ret.Lhs.Lhs.Val)
}

func TestParseAlignasConstantExpression(t *testing.T) {
	prog := parseSource(t, `_Alignas(16) int x; int main(){ return 0; }`)
	g := prog.Globals[0]
	require.Equal(t, 16, g.Align)
}
