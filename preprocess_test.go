package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func preprocessString(t *testing.T, src string) (*Diagnostics, *Token) {
	t.Helper()
	diag := NewDiagnostics(os.Stderr)
	sf := diag.AddFile("<test>", append([]byte(src), '\n', 0))
	arena := NewArena[Token](64)
	tz := NewTokenizer(diag, arena)
	toks := tz.Tokenize(sf)
	pp := NewPreprocessor(diag, tz, arena, nil)
	return diag, pp.Preprocess(toks)
}

func TestObjectLikeMacroExpansion(t *testing.T) {
	_, tok := preprocessString(t, "#define FOO 42\nFOO")
	require.Equal(t, TkNum, tok.Kind)
	require.EqualValues(t, 42, tok.IntVal)
}

func TestFunctionLikeMacroExpansion(t *testing.T) {
	_, tok := preprocessString(t, "#define ADD(a, b) a + b\nADD(1, 2)")
	require.Equal(t, "1", tok.Text())
	require.Equal(t, "+", tok.Next.Text())
	require.Equal(t, "2", tok.Next.Next.Text())
}

func TestMacroSelfReferenceDoesNotRecurse(t *testing.T) {
	_, tok := preprocessString(t, "#define FOO FOO + 1\nFOO")
	require.Equal(t, "FOO", tok.Text())
	require.Equal(t, "+", tok.Next.Text())
}

func TestIfdefBranchSelection(t *testing.T) {
	_, tok := preprocessString(t, "#define FOO\n#ifdef FOO\n1\n#else\n2\n#endif\n")
	require.EqualValues(t, 1, tok.IntVal)
}

func TestIfExpressionArithmetic(t *testing.T) {
	_, tok := preprocessString(t, "#if 1 + 2 == 3\nyes\n#else\nno\n#endif\n")
	require.Equal(t, "yes", tok.Text())
}

func TestStringizeOperator(t *testing.T) {
	_, tok := preprocessString(t, "#define STR(x) #x\nSTR(hello)")
	require.Equal(t, TkStr, tok.Kind)
	require.Equal(t, []byte("hello\x00"), tok.Str)
}

func TestTokenPasteOperator(t *testing.T) {
	_, tok := preprocessString(t, "#define CAT(a, b) a ## b\nCAT(foo, bar)")
	require.Equal(t, "foobar", tok.Text())
}

func TestAdjacentStringLiteralConcatenation(t *testing.T) {
	_, tok := preprocessString(t, `"a" "bc"`)
	require.Equal(t, TkStr, tok.Kind)
	require.Equal(t, []byte("abc\x00"), tok.Str)
}
