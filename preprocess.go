// The preprocessor: directive handling, hideset-disciplined macro
// expansion, and the final string-concatenation pass (spec §4.4).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dolthub/swiss"
)

// Macro is one #define entry. Object-like macros have IsObjLike set
// and no Params; function-like macros carry their formal parameter
// names and, if Variadic, bind the remainder to __VA_ARGS__.
type Macro struct {
	Name      string
	IsObjLike bool
	Params    []string
	Variadic  bool
	Body      *Token
	Deleted   bool
	Handler   func(pp *Preprocessor, tmpl *Token) *Token // built-in, e.g. __LINE__
}

// condState is the state of one #if/#ifdef nesting level.
type condState int

const (
	condInThen condState = iota
	condInElif
	condInElse
)

type condIncl struct {
	state     condState
	tok       *Token // the controlling directive, for diagnostics
	included  bool   // whether any branch so far has been taken
}

// Preprocessor owns the macro table, conditional-inclusion stack, and
// include search path for one compilation.
type Preprocessor struct {
	diag        *Diagnostics
	tz          *Tokenizer
	tokArena    *Arena[Token]
	macros      *swiss.Map[string, *Macro] // grounded on mna/nenuphar's dolthub/swiss usage
	condStack   []*condIncl
	includePath []string
	// Files already #pragma once'd, keyed by the path they were opened under.
	pragmaOnce map[string]bool
	startTime  time.Time
	tracer       *Tracer
	includeDepth int
	expansions   int
}

// NewPreprocessor creates a preprocessor with the builtin and
// predefined macro set installed (spec §4.4 "Built-in macros").
func NewPreprocessor(diag *Diagnostics, tz *Tokenizer, arena *Arena[Token], includePath []string) *Preprocessor {
	pp := &Preprocessor{
		diag:        diag,
		tz:          tz,
		tokArena:    arena,
		macros:      swiss.NewMap[string, *Macro](64),
		includePath: includePath,
		pragmaOnce:  map[string]bool{},
		startTime:   time.Now(),
	}
	pp.installBuiltins()
	return pp
}

// SetTracer attaches a developer tracer; nil disables tracing (the
// Tracer methods are nil-safe so this is also the default state).
func (pp *Preprocessor) SetTracer(t *Tracer) { pp.tracer = t }

func (pp *Preprocessor) newToken(like *Token) *Token {
	t := pp.tokArena.New()
	if like != nil {
		*t = *like
	}
	return t
}

func (pp *Preprocessor) defineMacro(name string, body string) {
	head := &Token{}
	cur := head
	if body != "" {
		toks := pp.tz.Tokenize(pp.diag.AddFile("<built-in>", append([]byte(body), '\n', 0)))
		for t := toks; t != nil && t.Kind != TkEOF; t = t.Next {
			n := pp.newToken(t)
			n.Next = nil
			cur.Next = n
			cur = n
		}
	}
	pp.macros.Put(name, &Macro{Name: name, IsObjLike: true, Body: head.Next, Deleted: false})
}

func (pp *Preprocessor) defineBuiltin(name string, handler func(pp *Preprocessor, tmpl *Token) *Token) {
	pp.macros.Put(name, &Macro{Name: name, IsObjLike: true, Handler: handler})
}

func (pp *Preprocessor) installBuiltins() {
	pp.defineMacro("__STDC__", "1")
	pp.defineMacro("__STDC_HOSTED__", "1")
	pp.defineMacro("__STDC_VERSION__", "201112L")
	pp.defineMacro("__x86_64__", "1")
	pp.defineMacro("__linux__", "1")
	pp.defineMacro("__LP64__", "1")
	pp.defineMacro("__SIZEOF_INT__", "4")
	pp.defineMacro("__SIZEOF_LONG__", "8")
	pp.defineMacro("__SIZEOF_POINTER__", "8")

	pp.defineBuiltin("__FILE__", func(pp *Preprocessor, tmpl *Token) *Token {
		t := pp.newToken(tmpl)
		t.Kind = TkStr
		name := tmpl.File.Display
		t.Str = append([]byte(name), 0)
		t.Ty = ArrayOf(TyCharType, len(name)+1)
		t.Next = nil
		return t
	})
	pp.defineBuiltin("__LINE__", func(pp *Preprocessor, tmpl *Token) *Token {
		t := pp.newToken(tmpl)
		t.Kind = TkNum
		t.IntVal = int64(tmpl.LineNo)
		t.Ty = TyIntType
		t.Next = nil
		return t
	})
	pp.defineMacro("__DATE__", fmt.Sprintf("%q", pp.startTime.Format("Jan _2 2006")))
	pp.defineMacro("__TIME__", fmt.Sprintf("%q", pp.startTime.Format("15:04:05")))
}

// Preprocess runs the full preprocessor pipeline over a tokenized file
// and returns the resulting PP-token chain, ready for the parser.
func (pp *Preprocessor) Preprocess(tok *Token) *Token {
	tok = pp.preprocess(tok)
	if len(pp.condStack) > 0 {
		pp.diag.ErrorTok(pp.condStack[len(pp.condStack)-1].tok, "unterminated #if")
	}
	tok = pp.joinAdjacentStrings(tok)
	pp.tracer.MacroTable(pp.macros.Count(), pp.expansions)
	pp.tracer.PragmaOnceFiles(pp.pragmaOnce)
	return tok
}

func skipLine(tok *Token) *Token {
	for !tok.AtBOL {
		tok = tok.Next
	}
	return tok
}

func copyLine(tok *Token) (line *Token, rest *Token) {
	head := &Token{}
	cur := head
	for ; !tok.AtBOL || tok.IsFirst; tok = tok.Next {
		if tok.Kind == TkEOF {
			break
		}
		n := new(Token)
		*n = *tok
		n.Next = nil
		cur.Next = n
		cur = n
		if tok.Next == nil || tok.Next.AtBOL {
			tok = tok.Next
			break
		}
	}
	eof := new(Token)
	eof.Kind = TkEOF
	eof.File = cur.File
	eof.LineNo = cur.LineNo
	cur.Next = eof
	return head.Next, tok
}

// preprocess is the directive/expansion loop over one token chain.
func (pp *Preprocessor) preprocess(tok *Token) *Token {
	var head Token
	cur := &head

	for tok.Kind != TkEOF {
		if exp, rest, ok := pp.tryExpandMacro(tok); ok {
			// Rescan the expansion ahead of the rest of the input; the
			// hidesets keep a macro from re-expanding inside itself.
			tok = appendChain(exp, rest)
			continue
		}

		if !(tok.AtBOL && tok.Is("#")) {
			n := new(Token)
			*n = *tok
			n.Next = nil
			cur.Next = n
			cur = n
			tok = tok.Next
			continue
		}

		tok = pp.directive(tok, &cur)
	}
	cur.Next = tok // EOF
	return head.Next
}

// directive dispatches one "# ..." line. cur is updated in place
// because some directives (conditional skip) append nothing.
func (pp *Preprocessor) directive(hash *Token, cur **Token) *Token {
	tok := hash.Next

	if tok.AtBOL {
		// Null directive: bare '#'.
		return tok
	}

	if tok.Kind != TkIdent && tok.Kind != TkKeyword {
		pp.diag.ErrorTok(tok, "expected a preprocessing directive name")
	}
	name := tok.Text()

	switch name {
	case "include":
		return pp.directiveInclude(tok.Next)
	case "define":
		return pp.directiveDefine(tok.Next)
	case "undef":
		return pp.directiveUndef(tok.Next)
	case "if":
		return pp.directiveIf(tok, pp.evalConstExprLine(tok.Next) != 0)
	case "ifdef":
		name := pp.expectIdent(tok.Next)
		return pp.directiveIf(tok, pp.findMacro(name) != nil)
	case "ifndef":
		name := pp.expectIdent(tok.Next)
		return pp.directiveIf(tok, pp.findMacro(name) == nil)
	case "elif":
		return pp.directiveElif(tok)
	case "else":
		return pp.directiveElse(tok)
	case "endif":
		return pp.directiveEndif(tok)
	case "error":
		pp.diag.ErrorTok(tok, "#error %s", textOfLine(tok.Next))
	case "pragma":
		rest := tok.Next
		if rest.Is("once") {
			pp.pragmaOnce[hash.File.Name] = true
		}
		return skipLine(rest)
	case "line":
		return skipLine(tok.Next)
	default:
		pp.diag.ErrorTok(tok, "invalid preprocessing directive: #%s", name)
	}
	return tok
}

func textOfLine(tok *Token) string {
	var b strings.Builder
	for ; !tok.AtBOL && tok.Kind != TkEOF; tok = tok.Next {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok.Text())
	}
	return b.String()
}

func (pp *Preprocessor) expectIdent(tok *Token) string {
	if tok.Kind != TkIdent {
		pp.diag.ErrorTok(tok, "macro name must be an identifier")
	}
	return tok.Text()
}

func (pp *Preprocessor) findMacro(name string) *Macro {
	m, ok := pp.macros.Get(name)
	if !ok || m.Deleted {
		return nil
	}
	return m
}

// directiveDefine parses "#define NAME ..." (object-like) or
// "#define NAME(params...) ..." (function-like, spec §4.4).
func (pp *Preprocessor) directiveDefine(tok *Token) *Token {
	name := pp.expectIdent(tok)
	tok = tok.Next

	if !tok.HasSpace && tok.Is("(") {
		// Function-like macro.
		params, variadic, rest := pp.readMacroParams(tok.Next)
		body, after := copyLine(rest)
		pp.macros.Put(name, &Macro{Name: name, IsObjLike: false, Params: params, Variadic: variadic, Body: body})
		return after
	}

	body, after := copyLine(tok)
	pp.macros.Put(name, &Macro{Name: name, IsObjLike: true, Body: body})
	return after
}

func (pp *Preprocessor) readMacroParams(tok *Token) (params []string, variadic bool, rest *Token) {
	for !tok.Is(")") {
		if len(params) > 0 {
			if !tok.Is(",") {
				pp.diag.ErrorTok(tok, "expected ','")
			}
			tok = tok.Next
		}
		if tok.Is("...") {
			variadic = true
			tok = tok.Next
			if !tok.Is(")") {
				pp.diag.ErrorTok(tok, "expected ')' after '...'")
			}
			break
		}
		if tok.Kind != TkIdent {
			pp.diag.ErrorTok(tok, "expected an identifier")
		}
		params = append(params, tok.Text())
		tok = tok.Next
	}
	return params, variadic, tok.Next
}

func (pp *Preprocessor) directiveUndef(tok *Token) *Token {
	name := pp.expectIdent(tok)
	tok = tok.Next
	if m, ok := pp.macros.Get(name); ok {
		m.Deleted = true
	}
	return skipLine(tok)
}

func (pp *Preprocessor) pushCond(state condState, tok *Token, included bool) {
	pp.condStack = append(pp.condStack, &condIncl{state: state, tok: tok, included: included})
}

func (pp *Preprocessor) topCond() *condIncl {
	if len(pp.condStack) == 0 {
		return nil
	}
	return pp.condStack[len(pp.condStack)-1]
}

func (pp *Preprocessor) directiveIf(tok *Token, cond bool) *Token {
	tok = skipLine(tok)
	pp.pushCond(condInThen, tok, cond)
	if !cond {
		tok = pp.skipToNextCondBranch(tok)
	}
	return tok
}

func (pp *Preprocessor) directiveElif(tok *Token) *Token {
	ci := pp.topCond()
	if ci == nil || ci.state == condInElse {
		pp.diag.ErrorTok(tok, "stray #elif")
	}
	ci.state = condInElif
	cond := !ci.included && pp.evalConstExprLine(tok.Next) != 0
	rest := skipLine(tok.Next)
	if cond {
		ci.included = true
		return rest
	}
	return pp.skipToNextCondBranch(rest)
}

func (pp *Preprocessor) directiveElse(tok *Token) *Token {
	ci := pp.topCond()
	if ci == nil || ci.state == condInElse {
		pp.diag.ErrorTok(tok, "stray #else")
	}
	ci.state = condInElse
	rest := skipLine(tok.Next)
	if ci.included {
		return pp.skipToNextCondBranch(rest)
	}
	ci.included = true
	return rest
}

func (pp *Preprocessor) directiveEndif(tok *Token) *Token {
	if pp.topCond() == nil {
		pp.diag.ErrorTok(tok, "stray #endif")
	}
	pp.condStack = pp.condStack[:len(pp.condStack)-1]
	return skipLine(tok.Next)
}

// skipToNextCondBranch scans forward, tracking nested #if/#endif
// depth, until it reaches a directive this level's state machine must
// see (#elif/#else/#endif at depth 0).
func (pp *Preprocessor) skipToNextCondBranch(tok *Token) *Token {
	depth := 0
	for tok.Kind != TkEOF {
		if tok.AtBOL && tok.Is("#") {
			d := tok.Next
			if d.Kind == TkIdent || d.Kind == TkKeyword {
				switch d.Text() {
				case "if", "ifdef", "ifndef":
					depth++
				case "endif":
					if depth == 0 {
						return tok
					}
					depth--
				case "elif", "else":
					if depth == 0 {
						return tok
					}
				}
			}
		}
		tok = tok.Next
	}
	return tok
}

// evalConstExprLine expands macros across one logical line and
// evaluates it as a constant expression, per spec §4.4's "Expression
// in #if/#elif": `defined X` / `defined(X)` reduce first, remaining
// identifiers reduce to 0, pp-numbers convert to numeric tokens.
func (pp *Preprocessor) evalConstExprLine(tok *Token) int64 {
	line, _ := copyLine(tok)
	line = pp.reduceDefined(line)
	line = pp.expandAll(line)
	line = pp.replaceRemainingIdentsWithZero(line)
	return EvalConstIntTokens(pp.diag, line)
}

func (pp *Preprocessor) reduceDefined(tok *Token) *Token {
	var head Token
	cur := &head
	for tok.Kind != TkEOF {
		if tok.Kind == TkIdent && tok.Text() == "defined" {
			tok = tok.Next
			paren := false
			if tok.Is("(") {
				paren = true
				tok = tok.Next
			}
			if tok.Kind != TkIdent {
				pp.diag.ErrorTok(tok, "macro name must be an identifier")
			}
			found := pp.findMacro(tok.Text()) != nil
			tok = tok.Next
			if paren {
				if !tok.Is(")") {
					pp.diag.ErrorTok(tok, "expected ')'")
				}
				tok = tok.Next
			}
			n := new(Token)
			n.Kind = TkNum
			n.Ty = TyIntType
			if found {
				n.IntVal = 1
			}
			cur.Next = n
			cur = n
			continue
		}
		n := new(Token)
		*n = *tok
		n.Next = nil
		cur.Next = n
		cur = n
		tok = tok.Next
	}
	eof := new(Token)
	eof.Kind = TkEOF
	cur.Next = eof
	return head.Next
}

func (pp *Preprocessor) replaceRemainingIdentsWithZero(tok *Token) *Token {
	for t := tok; t != nil && t.Kind != TkEOF; t = t.Next {
		if t.Kind == TkIdent {
			t.Kind = TkNum
			t.Ty = TyIntType
			t.IntVal = 0
		}
	}
	return tok
}

// expandAll runs macro expansion to a fixed point over a standalone
// (non-file) token chain, used by #if lines.
func (pp *Preprocessor) expandAll(tok *Token) *Token {
	var head Token
	cur := &head
	for tok.Kind != TkEOF {
		if exp, rest, ok := pp.tryExpandMacro(tok); ok {
			tok = appendChain(exp, rest)
			continue
		}
		n := new(Token)
		*n = *tok
		n.Next = nil
		cur.Next = n
		cur = n
		tok = tok.Next
	}
	cur.Next = tok
	return head.Next
}

// tryExpandMacro attempts macro expansion at tok. It returns the
// expansion chain (already terminated, caller splices) and the token
// following the consumed invocation, or ok=false if tok is not a
// (currently expandable) macro invocation.
func (pp *Preprocessor) tryExpandMacro(tok *Token) (exp *Token, rest *Token, ok bool) {
	if tok.Kind != TkIdent {
		return nil, nil, false
	}
	name := tok.Text()
	if tok.Hideset.Contains(name) {
		return nil, nil, false
	}
	m := pp.findMacro(name)
	if m == nil {
		return nil, nil, false
	}
	pp.expansions++
	if m.Handler != nil {
		result := m.Handler(pp, tok)
		return result, tok.Next, true
	}
	if m.IsObjLike {
		hs := tok.Hideset.add(name)
		body := addHideset(m.Body, hs)
		return terminate(body), tok.Next, true
	}
	// Function-like: only expands when immediately followed by '('.
	if !tok.Next.Is("(") {
		return nil, nil, false
	}
	args, closeParen, after := pp.readMacroArgs(tok.Next.Next, m)
	hs := hidesetIntersection(tok.Hideset, closeParen.Hideset)
	hs = hs.add(name)
	body := pp.substituteMacro(m, args)
	body = addHideset(body, hs)
	return terminate(body), after, true
}

// terminate drops the TkEOF sentinels a macro body carries from
// copyLine and nil-terminates what is left.
func terminate(tok *Token) *Token {
	var head Token
	cur := &head
	for t := tok; t != nil; t = t.Next {
		if t.Kind != TkEOF {
			cur.Next = t
			cur = t
		}
	}
	cur.Next = nil
	return head.Next
}

type macroArg struct {
	name  string
	toks  *Token // fully expanded
	raw   *Token // unexpanded, for '#' stringize
}

// readMacroArgs reads the parenthesized argument list of a
// function-like invocation, balancing parens and splitting on
// top-level commas (spec §4.4).
func (pp *Preprocessor) readMacroArgs(tok *Token, m *Macro) (args []macroArg, closeParen *Token, rest *Token) {
	var rawArgs [][]*Token
	var cur []*Token
	depth := 0
	for {
		if depth == 0 && tok.Is(")") {
			rawArgs = append(rawArgs, cur)
			closeParen = tok
			rest = tok.Next
			break
		}
		if tok.Kind == TkEOF {
			pp.diag.ErrorTok(tok, "unterminated macro argument list")
		}
		if depth == 0 && tok.Is(",") && len(rawArgs) < len(m.Params) {
			rawArgs = append(rawArgs, cur)
			cur = nil
			tok = tok.Next
			continue
		}
		if tok.Is("(") {
			depth++
		} else if tok.Is(")") {
			depth--
		}
		cur = append(cur, tok)
		tok = tok.Next
	}

	if !m.Variadic && len(rawArgs) > len(m.Params) && !(len(m.Params) == 0 && len(rawArgs) == 1 && len(rawArgs[0]) == 0) {
		pp.diag.ErrorTok(closeParen, "too many arguments for macro %q", m.Name)
	}
	if len(m.Params) == 0 && len(rawArgs) == 1 && len(rawArgs[0]) == 0 {
		rawArgs = nil // name() with no params
	}

	for i := 0; i < len(m.Params); i++ {
		var raw []*Token
		if i < len(rawArgs) {
			raw = rawArgs[i]
		}
		args = append(args, macroArg{name: m.Params[i], raw: chainOf(raw), toks: pp.expandAll(chainOf(raw))})
	}
	if m.Variadic {
		var rest []*Token
		if len(rawArgs) > len(m.Params) {
			for i := len(m.Params); i < len(rawArgs); i++ {
				if i > len(m.Params) {
					comma := &Token{Kind: TkPunct}
					comma.File, comma.Offset, comma.Length = tok.File, tok.Offset, 0
					rest = append(rest, comma)
				}
				rest = append(rest, rawArgs[i]...)
			}
		}
		args = append(args, macroArg{name: "__VA_ARGS__", raw: chainOf(rest), toks: pp.expandAll(chainOf(rest))})
	}
	return args, closeParen, rest
}

func chainOf(toks []*Token) *Token {
	var head Token
	cur := &head
	for _, t := range toks {
		n := new(Token)
		*n = *t
		n.Next = nil
		cur.Next = n
		cur = n
	}
	eof := &Token{Kind: TkEOF}
	cur.Next = eof
	return head.Next
}

func findArg(args []macroArg, name string) (macroArg, bool) {
	for _, a := range args {
		if a.name == name {
			return a, true
		}
	}
	return macroArg{}, false
}

// substituteMacro performs the three special substitution operations
// over a function-like macro's body: '#' stringize, '##' paste, and
// plain argument substitution (spec §4.4).
func (pp *Preprocessor) substituteMacro(m *Macro, args []macroArg) *Token {
	var head Token
	cur := &head

	for tok := m.Body; tok != nil; tok = tok.Next {
		if tok.Is("#") {
			arg, ok := findArg(args, tok.Next.Text())
			if !ok {
				pp.diag.ErrorTok(tok.Next, "'#' is not followed by a macro parameter")
			}
			n := pp.stringize(tok, arg.raw)
			cur.Next = n
			cur = n
			tok = tok.Next
			continue
		}
		if tok.Is("##") {
			pp.diag.ErrorTok(tok, "'##' cannot appear at the start of a macro body")
		}
		if tok.Next != nil && tok.Next.Is("##") {
			pasteTok := tok.Next
			rhs := pasteTok.Next
			lhsToks := pp.tokensForPaste(tok, args)
			for rhs != nil && rhs.Is("##") {
				rhs = rhs.Next
			}
			rhsToks := pp.tokensForPaste(rhs, args)
			cur = pp.pasteOnto(cur, lhsToks, rhsToks, pasteTok)
			tok = rhs
			continue
		}
		if tok.Kind == TkIdent {
			if arg, ok := findArg(args, tok.Text()); ok {
				for t := arg.toks; t != nil && t.Kind != TkEOF; t = t.Next {
					n := new(Token)
					*n = *t
					n.Next = nil
					cur.Next = n
					cur = n
				}
				continue
			}
		}
		n := new(Token)
		*n = *tok
		n.Next = nil
		cur.Next = n
		cur = n
	}
	eof := new(Token)
	eof.Kind = TkEOF
	cur.Next = eof
	return head.Next
}

// tokensForPaste resolves one '##' operand: the raw (unexpanded)
// argument tokens if it names a parameter, else the literal token.
func (pp *Preprocessor) tokensForPaste(tok *Token, args []macroArg) []*Token {
	if tok == nil {
		return nil
	}
	if tok.Kind == TkIdent {
		if arg, ok := findArg(args, tok.Text()); ok {
			var out []*Token
			for t := arg.raw; t != nil && t.Kind != TkEOF; t = t.Next {
				out = append(out, t)
			}
			return out
		}
	}
	return []*Token{tok}
}

// pasteOnto implements "lhs ## rhs": if either side is an empty
// variadic list the other side passes through unchanged; otherwise
// the literal source slices are concatenated and re-tokenized into
// exactly one token.
func (pp *Preprocessor) pasteOnto(cur *Token, lhs, rhs []*Token, at *Token) *Token {
	switch {
	case len(lhs) == 0 && len(rhs) == 0:
		return cur
	case len(lhs) == 0:
		for _, t := range rhs {
			n := new(Token)
			*n = *t
			n.Next = nil
			cur.Next = n
			cur = n
		}
		return cur
	case len(rhs) == 0:
		for _, t := range lhs {
			n := new(Token)
			*n = *t
			n.Next = nil
			cur.Next = n
			cur = n
		}
		return cur
	}
	for _, t := range lhs[:len(lhs)-1] {
		n := new(Token)
		*n = *t
		n.Next = nil
		cur.Next = n
		cur = n
	}
	pasted := lhs[len(lhs)-1].Text() + rhs[0].Text()
	toks := pp.tz.Tokenize(pp.diag.AddFile("<paste>", append([]byte(pasted), '\n', 0)))
	var count int
	var only *Token
	for t := toks; t != nil && t.Kind != TkEOF; t = t.Next {
		count++
		only = t
	}
	if count != 1 {
		pp.diag.ErrorTok(at, "pasting %q and %q does not give a valid preprocessing token", lhs[len(lhs)-1].Text(), rhs[0].Text())
	}
	n := new(Token)
	*n = *only
	n.Next = nil
	cur.Next = n
	cur = n
	for _, t := range rhs[1:] {
		n := new(Token)
		*n = *t
		n.Next = nil
		cur.Next = n
		cur = n
	}
	return cur
}

// stringize concatenates arg's tokens with single spaces where
// HasSpace was set, double-quotes and backslash-escapes the result,
// and emits one string-literal token (spec §4.4).
func (pp *Preprocessor) stringize(at *Token, arg *Token) *Token {
	var b strings.Builder
	for t := arg; t != nil && t.Kind != TkEOF; t = t.Next {
		if b.Len() > 0 && t.HasSpace {
			b.WriteByte(' ')
		}
		text := t.Text()
		if t.Kind == TkStr {
			b.WriteByte('"')
			for _, c := range []byte(text) {
				if c == '"' || c == '\\' {
					b.WriteByte('\\')
				}
				b.WriteByte(c)
			}
			b.WriteByte('"')
		} else {
			b.WriteString(text)
		}
	}
	escaped := strings.ReplaceAll(b.String(), `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	n := new(Token)
	n.Kind = TkStr
	n.File = at.File
	n.LineNo = at.LineNo
	n.Str = append([]byte(escaped), 0)
	n.CharWidth = 1
	n.Ty = ArrayOf(TyCharType, len(escaped)+1)
	return n
}

// directiveInclude handles the three #include forms (spec §4.4).
func (pp *Preprocessor) directiveInclude(tok *Token) *Token {
	if tok.Kind == TkStr {
		name := string(tok.Str[:len(tok.Str)-1])
		rest := skipLine(tok.Next)
		return pp.includeFile(name, true, rest)
	}
	if tok.Is("<") {
		name, rest := pp.readAngleIncludeName(tok.Next)
		return pp.includeFile(name, false, rest)
	}
	// Macro-expanded form.
	line, _ := copyLine(tok)
	expanded := pp.expandAll(line)
	if expanded.Kind == TkStr {
		name := string(expanded.Str[:len(expanded.Str)-1])
		return pp.includeFile(name, true, skipLine(tok.Next))
	}
	if expanded.Is("<") {
		name, _ := pp.readAngleIncludeName(expanded.Next)
		return pp.includeFile(name, false, skipLine(tok.Next))
	}
	pp.diag.ErrorTok(tok, "expected a filename after #include")
	return nil
}

func (pp *Preprocessor) readAngleIncludeName(tok *Token) (string, *Token) {
	var b strings.Builder
	for !tok.Is(">") {
		if tok.Kind == TkEOF || tok.AtBOL {
			pp.diag.ErrorTok(tok, "expected '>'")
		}
		if b.Len() > 0 && tok.HasSpace {
			b.WriteByte(' ')
		}
		b.WriteString(tok.Text())
		tok = tok.Next
	}
	return b.String(), skipLine(tok.Next)
}

func (pp *Preprocessor) includeFile(name string, quoted bool, rest *Token) *Token {
	path := pp.searchInclude(name, quoted)
	if path == "" {
		pp.diag.ErrorPlain("%s: file not found", name)
	}
	if pp.pragmaOnce[path] {
		return rest
	}
	pp.includeDepth++
	pp.tracer.Include(path, pp.includeDepth)
	defer func() { pp.includeDepth-- }()
	contents, err := os.ReadFile(path)
	if err != nil {
		pp.diag.ErrorPlain("%s: %v", path, err)
	}
	contents = removeBackslashNewline(append(contents, '\n', 0))
	sf := pp.diag.AddFile(path, contents)
	included := pp.tz.Tokenize(sf)
	included = terminateBefore(included)
	return appendChain(included, rest)
}

// terminateBefore drops the EOF sentinel so the included chain can be
// spliced before the rest of the including file's tokens.
func terminateBefore(tok *Token) *Token {
	if tok == nil || tok.Kind == TkEOF {
		return nil
	}
	head := tok
	for tok.Next.Kind != TkEOF {
		tok = tok.Next
	}
	tok.Next = nil
	return head
}

func appendChain(a, b *Token) *Token {
	if a == nil {
		return b
	}
	head := a
	for a.Next != nil {
		a = a.Next
	}
	a.Next = b
	return head
}

func (pp *Preprocessor) searchInclude(name string, quoted bool) string {
	if filepath.IsAbs(name) {
		if fileExists(name) {
			return name
		}
		return ""
	}
	if quoted {
		if fileExists(name) {
			return name
		}
	}
	for _, dir := range pp.includePath {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// joinAdjacentStrings is the final pass: adjacent string-literal
// tokens are merged by splicing their inner content and re-tokenizing
// as one string token (spec §4.4).
func (pp *Preprocessor) joinAdjacentStrings(tok *Token) *Token {
	var head Token
	cur := &head
	for tok != nil && tok.Kind != TkEOF {
		if tok.Kind == TkStr && tok.Next != nil && tok.Next.Kind == TkStr {
			width := tok.CharWidth
			var merged []byte
			t := tok
			for t.Kind == TkStr {
				if t.CharWidth > width {
					width = t.CharWidth
				}
				merged = append(merged, t.Str[:len(t.Str)-t.CharWidth]...)
				tok = t
				t = t.Next
			}
			n := new(Token)
			*n = *tok
			n.CharWidth = width
			switch width {
			case 1:
				n.Str = append(merged, 0)
				n.Ty = ArrayOf(TyCharType, len(n.Str))
			case 2:
				// Re-pack as UTF-16 units; merged is already raw bytes
				// at each literal's own width, which is rare enough
				// (mixing wide prefixes) to just re-decode as runes.
				n.Str = append(merged, 0, 0)
				n.Ty = ArrayOf(TyUshortType, len(n.Str)/2)
			case 4:
				n.Str = append(merged, 0, 0, 0, 0)
				n.Ty = ArrayOf(TyIntType, len(n.Str)/4)
			}
			n.Next = nil
			cur.Next = n
			cur = n
			tok = t
			continue
		}
		n := new(Token)
		*n = *tok
		n.Next = nil
		cur.Next = n
		cur = n
		tok = tok.Next
	}
	cur.Next = tok
	return head.Next
}
