package main

import (
	"bufio"
	"bytes"
	"os"
	"testing"
)

// parseSource runs tokenize -> preprocess -> parse and returns the
// resulting Program, for parser/initializer tests that need a typed
// AST without caring about assembly output.
func parseSource(t *testing.T, src string) *Program {
	t.Helper()
	diag := NewDiagnostics(os.Stderr)
	sf := diag.AddFile("<test>", append([]byte(src), '\n', 0))
	arena := NewArena[Token](256)
	tz := NewTokenizer(diag, arena)
	toks := tz.Tokenize(sf)
	pp := NewPreprocessor(diag, tz, arena, nil)
	toks = pp.Preprocess(toks)
	return Parse(diag, toks)
}

// compileSource runs the full pipeline through x86-64 codegen and
// returns the emitted assembly text, for codegen tests that assert on
// instruction structure rather than executing anything.
func compileSource(t *testing.T, src string) string {
	t.Helper()
	prog := parseSource(t, src)
	// Parse leaves its Diagnostics in globalDiag; codegen reuses it, as
	// the driver does, so .file directives list the parsed files.
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	Codegen64(globalDiag, prog, w)
	return buf.String()
}

func findFunc(prog *Program, name string) *Function {
	for _, fn := range prog.Funcs {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}
