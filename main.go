// Command c67 is the driver: gcc-style single-dash CLI parsing, pipeline
// wiring (tokenize -> preprocess -> parse -> codegen), and the top-level
// CompilerBugError recovery that separates an internal bug (exit 2) from
// a user diagnostic (exit 1, already reported and os.Exit'd by diag.go).
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/xyproto/env/v2"
)

const usage = `usage: c67 [options] file.c
  -o <path>        write output to <path> ("-" for stdout)
  -I<dir>          add a directory to the include search path
  -D name[=value]  define a preprocessor macro
  -E               preprocess only; print tokens and exit
  -fpic, -fPIC     accepted; globals are always addressed %rip-relative
  -fno-pic         accepted; no absolute-addressing form is emitted
  --riscv64        emit RV64GC assembly instead of x86-64
  -v               enable developer tracing (same as C67_TRACE=1)
  --help           print this message
`

type options struct {
	input          string
	output         string
	includeDirs    []string
	defines        []string // "name" or "name=value", in command-line order
	preprocessOnly bool
	pic            bool
	riscv64        bool
	verbose        bool
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if opts == nil {
		// --help already printed.
		os.Exit(0)
	}

	envCfg, err := LoadEnvConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "c67:", err)
		os.Exit(1)
	}
	includeDirs := append(defaultIncludePaths(), opts.includeDirs...)
	includeDirs = append(includeDirs, envCfg.IncludePath...)
	verbose := opts.verbose || envCfg.Trace

	tracer := NewPipelineTracer(NewTracer(verbose))

	os.Exit(run(opts, includeDirs, tracer))
}

// run wires the pipeline and recovers CompilerBugError so an internal
// invariant violation is reported distinctly from a user error.
func run(opts *options, includeDirs []string, tracer *Tracer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			if be, ok := r.(*CompilerBugError); ok {
				fmt.Fprintln(os.Stderr, "c67: internal compiler error:", be.Msg)
				code = 2
				return
			}
			panic(r)
		}
	}()

	diag := NewDiagnostics(os.Stderr)
	diag.Color = !env.Bool("NO_COLOR") && isTerminal(os.Stderr)

	src, err := os.ReadFile(opts.input)
	if err != nil {
		diag.ErrorPlain("%s: %v", opts.input, err)
	}
	src = removeBackslashNewline(append(src, '\n', 0))
	sf := diag.AddFile(opts.input, src)

	tokArena := NewArena[Token](1024)
	tz := NewTokenizer(diag, tokArena)
	tracer.Stage("tokenize")
	toks := tz.Tokenize(sf)

	pp := NewPreprocessor(diag, tz, tokArena, includeDirs)
	pp.SetTracer(tracer)
	for _, d := range opts.defines {
		name, value, _ := strings.Cut(d, "=")
		pp.defineMacro(name, value)
	}
	tracer.Stage("preprocess")
	toks = pp.Preprocess(toks)

	out, closeOut := openOutput(diag, opts.output)
	defer closeOut()
	w := bufio.NewWriter(out)

	if opts.preprocessOnly {
		printPreprocessedTokens(w, toks)
		w.Flush()
		return 0
	}

	tracer.Stage("parse")
	prog := Parse(diag, toks)

	tracer.Stage("codegen")
	if opts.riscv64 {
		CodegenRISCV64(diag, prog, w)
	} else {
		Codegen64(diag, prog, w)
	}
	return 0
}

func parseArgs(args []string) (*options, error) {
	opts := &options{pic: true}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--help":
			fmt.Fprint(os.Stderr, usage)
			return nil, nil
		case a == "-E":
			opts.preprocessOnly = true
		case a == "-v":
			opts.verbose = true
		case a == "-fpic" || a == "-fPIC":
			opts.pic = true
		case a == "-fno-pic" || a == "-fno-PIC":
			opts.pic = false
		case a == "--riscv64":
			opts.riscv64 = true
		case a == "-o":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("c67: -o requires an argument")
			}
			i++
			opts.output = args[i]
		case strings.HasPrefix(a, "-o"):
			opts.output = a[2:]
		case a == "-I":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("c67: -I requires an argument")
			}
			i++
			opts.includeDirs = append(opts.includeDirs, args[i])
		case strings.HasPrefix(a, "-I"):
			opts.includeDirs = append(opts.includeDirs, a[2:])
		case a == "-D":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("c67: -D requires an argument")
			}
			i++
			opts.defines = append(opts.defines, args[i])
		case strings.HasPrefix(a, "-D"):
			opts.defines = append(opts.defines, a[2:])
		case strings.HasPrefix(a, "-"):
			return nil, fmt.Errorf("c67: unknown option %q", a)
		default:
			if opts.input != "" {
				return nil, fmt.Errorf("c67: multiple input files given (%q and %q)", opts.input, a)
			}
			opts.input = a
		}
	}
	if opts.input == "" {
		return nil, fmt.Errorf("c67: no input file")
	}
	if opts.output == "" {
		opts.output = "-"
	}
	return opts, nil
}

func defaultIncludePaths() []string {
	return []string{"/usr/local/include", "/usr/include"}
}

func openOutput(diag *Diagnostics, path string) (*os.File, func()) {
	if path == "-" {
		return os.Stdout, func() {}
	}
	f, err := os.Create(path)
	if err != nil {
		diag.ErrorPlain("%s: %v", path, err)
	}
	return f, func() { f.Close() }
}

// isTerminal reports whether f looks like an interactive terminal,
// approximated without a cgo ioctl dependency: a pipe/file redirect
// never matches, which is the common case CI/test harnesses rely on.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// printPreprocessedTokens reproduces chibicc's -E rendering: one space
// between adjacent tokens on a line, a newline at each original at_bol
// boundary (spec §6).
func printPreprocessedTokens(w *bufio.Writer, tok *Token) {
	line := 1
	for ; tok != nil && tok.Kind != TkEOF; tok = tok.Next {
		if line > 1 && tok.AtBOL {
			w.WriteByte('\n')
		}
		if tok.HasSpace && !tok.IsFirst {
			w.WriteByte(' ')
		}
		w.WriteString(tok.Text())
		line++
	}
	w.WriteByte('\n')
}
