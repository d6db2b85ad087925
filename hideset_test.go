package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHidesetAddAndContains(t *testing.T) {
	var hs Hideset
	require.False(t, hs.Contains("FOO"))
	hs = hs.add("FOO")
	require.True(t, hs.Contains("FOO"))
	hs2 := hs.add("FOO")
	require.Equal(t, hs, hs2)
}

func TestHidesetUnion(t *testing.T) {
	a := Hideset{"A", "C"}
	b := Hideset{"B", "C"}
	u := hidesetUnion(a, b)
	require.True(t, u.Contains("A"))
	require.True(t, u.Contains("B"))
	require.True(t, u.Contains("C"))
	require.Len(t, u, 3)
}

func TestHidesetIntersectionIsProsserCore(t *testing.T) {
	a := Hideset{"A", "B", "C"}
	b := Hideset{"B", "C", "D"}
	i := hidesetIntersection(a, b)
	require.Equal(t, Hideset{"B", "C"}, i)
}

func TestHidesetIntersectionEmpty(t *testing.T) {
	a := Hideset{"A"}
	b := Hideset{"B"}
	require.Empty(t, hidesetIntersection(a, b))
}

func TestAddHidesetStampsEveryTokenInChain(t *testing.T) {
	tok1 := &Token{Kind: TkIdent}
	tok2 := &Token{Kind: TkIdent, Hideset: Hideset{"X"}}
	tok1.Next = tok2

	out := addHideset(tok1, Hideset{"MACRO"})
	require.True(t, out.Hideset.Contains("MACRO"))
	require.True(t, out.Next.Hideset.Contains("MACRO"))
	require.True(t, out.Next.Hideset.Contains("X"))
}
