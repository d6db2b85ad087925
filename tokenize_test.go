package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenizeString(t *testing.T, src string) (*Diagnostics, *Token) {
	t.Helper()
	diag := NewDiagnostics(os.Stderr)
	sf := diag.AddFile("<test>", append([]byte(src), '\n', 0))
	tz := NewTokenizer(diag, NewArena[Token](64))
	return diag, tz.Tokenize(sf)
}

func collectTexts(tok *Token) []string {
	var out []string
	for ; tok != nil && tok.Kind != TkEOF; tok = tok.Next {
		out = append(out, tok.Text())
	}
	return out
}

func TestTokenizeArithmeticExpression(t *testing.T) {
	_, tok := tokenizeString(t, "1+2*3")
	require.Equal(t, []string{"1", "+", "2", "*", "3"}, collectTexts(tok))
}

func TestTokenizePunctuatorsGreedyMatch(t *testing.T) {
	_, tok := tokenizeString(t, "a <<= b >>= c")
	texts := collectTexts(tok)
	require.Equal(t, []string{"a", "<<=", "b", ">>=", "c"}, texts)
}

func TestTokenizeIdentifiersAndKeywords(t *testing.T) {
	_, tok := tokenizeString(t, "int return_value = 0;")
	require.Equal(t, TkKeyword, tok.Kind)
	require.Equal(t, "int", tok.Text())
	ident := tok.Next
	require.Equal(t, TkIdent, ident.Kind)
	require.Equal(t, "return_value", ident.Text())
}

func TestTokenizeStringLiteralEscapes(t *testing.T) {
	_, tok := tokenizeString(t, `"a\nb"`)
	require.Equal(t, TkStr, tok.Kind)
	require.Equal(t, []byte("a\nb\x00"), tok.Str)
}

func TestTokenizeIntegerSuffixWidensType(t *testing.T) {
	_, tok := tokenizeString(t, "1UL")
	require.Equal(t, TkNum, tok.Kind)
	require.True(t, tok.Ty.Unsigned)
	require.Equal(t, 8, tok.Ty.Size)
}

func TestTokenizeHasSpaceAndAtBOL(t *testing.T) {
	_, tok := tokenizeString(t, "a\nb c")
	require.True(t, tok.IsFirst)
	b := tok.Next
	require.True(t, b.AtBOL)
	c := b.Next
	require.False(t, c.AtBOL)
	require.True(t, c.HasSpace)
}
