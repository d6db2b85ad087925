// Source-anchored diagnostics: fatal errors with a caret under the
// offending column, and non-fatal warnings that share the same
// formatter. There is no error recovery — the first fatal diagnostic
// terminates compilation (spec: the tokenizer/parser never produce
// partial trees).
package main

import (
	"fmt"
	"os"
	"strings"
)

// SourceFile is one physical input file, fully read into memory and
// kept alive for the rest of the compilation so diagnostics can still
// quote its text.
type SourceFile struct {
	Name     string // path as given on the command line / #include
	FileNo   int    // index into Diagnostics.Files, 1-based like chibicc's .file directives
	Contents []byte // NUL-terminated source buffer
	Display  string // name to show in .file / diagnostics (may differ from Name for synthesized buffers)
}

// Diagnostics owns every SourceFile seen during a compilation and
// renders fatal/warning messages against them.
type Diagnostics struct {
	Files  []*SourceFile
	Out    *os.File // where fatal/warning text goes; stderr in the driver
	bugRef bool     // not set or read anywhere; compiler bugs go through Bug() instead
	Color  bool      // caret/kind coloring; the driver sets this from NO_COLOR detection
}

// NewDiagnostics creates a diagnostics sink writing to w.
func NewDiagnostics(w *os.File) *Diagnostics {
	if w == nil {
		w = os.Stderr
	}
	return &Diagnostics{Out: w}
}

// AddFile registers contents under name and returns the new SourceFile.
func (d *Diagnostics) AddFile(name string, contents []byte) *SourceFile {
	sf := &SourceFile{Name: name, Display: name, FileNo: len(d.Files) + 1, Contents: contents}
	d.Files = append(d.Files, sf)
	return sf
}

// lineAt returns the 1-based-line text containing byte offset off, and
// the column (1-based) of off within that line.
func lineAt(src []byte, off int) (line []byte, col int) {
	start := off
	for start > 0 && src[start-1] != '\n' {
		start--
	}
	end := off
	for end < len(src) && src[end] != '\n' {
		end++
	}
	return src[start:end], off - start + 1
}

// colorKind wraps kind ("error"/"warning") in red/yellow bold when
// coloring is enabled; NO_COLOR detection happens once, in the driver.
func (d *Diagnostics) colorKind(kind string) string {
	if !d.Color {
		return kind
	}
	code := "31" // red, error
	if kind == "warning" {
		code = "33" // yellow
	}
	return fmt.Sprintf("\x1b[1;%sm%s\x1b[0m", code, kind)
}

func (d *Diagnostics) render(kind string, sf *SourceFile, lineNo, offset int, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	shown := d.colorKind(kind)
	var b strings.Builder
	if sf != nil {
		line, col := lineAt(sf.Contents, offset)
		fmt.Fprintf(&b, "%s:%d: %s: %s\n", sf.Display, lineNo, shown, msg)
		b.Write(line)
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(" ", col-1))
		if d.Color {
			b.WriteString("\x1b[1;32m^\x1b[0m ")
		} else {
			b.WriteString("^ ")
		}
		b.WriteString(msg)
	} else {
		fmt.Fprintf(&b, "%s: %s", shown, msg)
	}
	return b.String()
}

// ErrorAt is a fatal diagnostic anchored at a byte offset in sf.
func (d *Diagnostics) ErrorAt(sf *SourceFile, lineNo, offset int, format string, args ...any) {
	fmt.Fprintln(d.Out, d.render("error", sf, lineNo, offset, format, args...))
	os.Exit(1)
}

// WarnAt is a non-fatal diagnostic; compilation continues.
func (d *Diagnostics) WarnAt(sf *SourceFile, lineNo, offset int, format string, args ...any) {
	fmt.Fprintln(d.Out, d.render("warning", sf, lineNo, offset, format, args...))
}

// ErrorTok anchors a fatal diagnostic at a Token.
func (d *Diagnostics) ErrorTok(tok *Token, format string, args ...any) {
	d.ErrorAt(tok.File, tok.LineNo, tok.Offset, format, args...)
}

// WarnTok anchors a warning at a Token.
func (d *Diagnostics) WarnTok(tok *Token, format string, args ...any) {
	d.WarnAt(tok.File, tok.LineNo, tok.Offset, format, args...)
}

// ErrorPlain is a fatal diagnostic with no source anchor (e.g. a CLI
// usage error before any file was read).
func (d *Diagnostics) ErrorPlain(format string, args ...any) {
	fmt.Fprintln(d.Out, d.render("error", nil, 0, 0, format, args...))
	os.Exit(1)
}

// CompilerBugError marks an internal invariant violation (register
// stack exhaustion, unknown node kind) as distinct from a user error:
// it is recovered once at the top of main and reported with its own
// exit status instead of being mistaken for bad input.
type CompilerBugError struct {
	Msg string
}

func (e *CompilerBugError) Error() string { return "internal compiler error: " + e.Msg }

// Bug panics with a CompilerBugError; callers in codegen/parser use
// this for conditions that indicate a bug in the compiler itself, not
// in the user's source.
func Bug(format string, args ...any) {
	panic(&CompilerBugError{Msg: fmt.Sprintf(format, args...)})
}
