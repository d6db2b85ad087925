package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGlobalArrayInitializerWritesBytes(t *testing.T) {
	prog := parseSource(t, "int a[3] = {1, 2, 3}; int main(){ return 0; }")
	g := prog.Globals[0]
	require.Equal(t, "a", g.Name)
	require.Len(t, g.InitData, 12)
	require.EqualValues(t, 1, g.InitData[0])
	require.EqualValues(t, 2, g.InitData[4])
	require.EqualValues(t, 3, g.InitData[8])
}

func TestGlobalStringInitializer(t *testing.T) {
	prog := parseSource(t, `char msg[] = "hi"; int main(){ return 0; }`)
	g := prog.Globals[0]
	require.Equal(t, []byte("hi\x00"), g.InitData)
}

func TestGlobalPointerToGlobalProducesRelocation(t *testing.T) {
	prog := parseSource(t, `
		int g;
		int *p = &g;
		int main(){ return 0; }
	`)
	var pVar *Var
	for _, v := range prog.Globals {
		if v.Name == "p" {
			pVar = v
		}
	}
	require.NotNil(t, pVar)
	require.Len(t, pVar.Relocs, 1)
	require.Equal(t, "g", pVar.Relocs[0].Label)
	require.EqualValues(t, 0, pVar.Relocs[0].Addend)
}

func TestGlobalPointerWithAddendRelocation(t *testing.T) {
	prog := parseSource(t, `
		int g[4];
		int *p = &g[2];
		int main(){ return 0; }
	`)
	var pVar *Var
	for _, v := range prog.Globals {
		if v.Name == "p" {
			pVar = v
		}
	}
	require.NotNil(t, pVar)
	require.Len(t, pVar.Relocs, 1)
	require.Equal(t, "g", pVar.Relocs[0].Label)
	require.EqualValues(t, 8, pVar.Relocs[0].Addend)
}

func TestLocalArrayInitializerLowersToMemZeroPlusAssigns(t *testing.T) {
	prog := parseSource(t, "int main(){ int a[3] = {1,2,3}; return a[0]; }")
	fn := findFunc(prog, "main")
	require.NotNil(t, fn)
	// The declaration lowers to a block holding its expression statement.
	decl := fn.Body.Body
	require.Equal(t, NdBlock, decl.Kind)
	first := decl.Body
	require.Equal(t, NdExprStmt, first.Kind)
	require.Equal(t, NdComma, first.Lhs.Kind)
	require.Equal(t, NdMemZero, first.Lhs.Lhs.Kind)
}

func TestTentativeGlobalDefinitionHasNoInitData(t *testing.T) {
	prog := parseSource(t, "int g; int main(){ return 0; }")
	g := prog.Globals[0]
	require.True(t, g.IsTentative)
	require.Empty(t, g.InitData)
}
