// The tokenizer: turns one source file's bytes into a linked sequence
// of Tokens, splicing backslash-newlines first so logical lines match
// physical ones everywhere downstream (spec §4.3).
package main

import (
	"strconv"
	"strings"
)

// TokenKind tags a Token's lexical category.
type TokenKind int

const (
	TkIdent   TokenKind = iota // identifiers and keywords (keywords retagged by convertKeywords)
	TkPunct                    // punctuators; "sizeof" and other reserved words are TkKeyword
	TkKeyword                  // reserved words, retagged from TkIdent
	TkStr                      // string literals
	TkNum                      // numeric literals
	TkEOF                      // end-of-file sentinel
	TkPPNum                    // pp-number, only transiently inside the preprocessor
)

// Token is one lexical unit. Tokens form a singly linked sequence
// ending in a TkEOF sentinel; the sequence is immutable by convention
// except for preprocessor rewrites that prepend/splice new heads.
type Token struct {
	Kind TokenKind
	Next *Token

	// Decoded literal value (TkNum) or source text (everything else).
	IntVal   int64
	FloatVal float64
	Ty       *Type // type of a TkNum literal, or the type a string literal decays to

	// String literal payload (TkStr): decoded bytes plus the trailing
	// NUL, already sized per CharWidth.
	Str        []byte
	CharWidth  int // 1, 2, or 4 — narrow, UTF-16, or UTF-32 string/char literal

	// Source anchor.
	File    *SourceFile
	Offset  int // byte offset into File.Contents
	Length  int // length of the spelled token
	LineNo  int
	AtBOL   bool // first token after a (logical) newline
	HasSpace bool // preceded by whitespace
	IsFirst bool // first token of the file, before preprocessing sees it

	// Hideset: macro names already expanded to produce this token
	// (Prosser's algorithm, spec §4.4).
	Hideset Hideset

	// Set by the preprocessor when a macro-expanded token originated
	// from a different physical token, so __LINE__/__FILE__ and
	// diagnostics can still point at the use site.
	Origin *Token
}

// Text returns the token's spelling.
func (t *Token) Text() string {
	if t.Kind == TkEOF {
		return ""
	}
	return string(t.File.Contents[t.Offset : t.Offset+t.Length])
}

// Is reports whether the token spells exactly s (used for punctuators
// and keywords, where Text() comparison is the simplest correct check).
func (t *Token) Is(s string) bool {
	return t.Kind != TkEOF && t.Text() == s
}

// IsIdentLike reports whether the token can be used where an
// identifier is grammatically expected: plain identifiers, or
// keywords used as e.g. struct member / label names is not allowed in
// C, so this is simply Kind == TkIdent.
func (t *Token) IsIdentLike() bool {
	return t.Kind == TkIdent
}

// keywords is the reserved-word set consulted by convertKeywords.
var keywords = map[string]bool{
	"return": true, "if": true, "else": true, "for": true, "while": true,
	"int": true, "sizeof": true, "char": true, "struct": true, "union": true,
	"short": true, "long": true, "void": true, "typedef": true, "_Bool": true,
	"enum": true, "static": true, "goto": true, "break": true, "continue": true,
	"switch": true, "case": true, "default": true, "extern": true,
	"_Alignof": true, "_Alignas": true, "do": true, "signed": true,
	"unsigned": true, "const": true, "volatile": true, "auto": true,
	"register": true, "restrict": true, "float": true, "double": true,
	"inline": true, "noreturn": true, "_Noreturn": true,
}

// punctuators in longest-match order (spec §4.3: 3 → 2 → 1 length).
var punctuators3 = []string{"<<=", ">>=", "..."}
var punctuators2 = []string{
	"==", "!=", "<=", ">=", "->", "+=", "-=", "*=", "/=",
	"++", "--", "%=", "&=", "|=", "^=", "&&", "||", "<<", ">>", "##",
}

// Tokenizer converts one SourceFile into a Token chain.
type Tokenizer struct {
	diag  *Diagnostics
	sf    *SourceFile
	nodes *Arena[Token]
}

// NewTokenizer creates a tokenizer reporting through diag.
func NewTokenizer(diag *Diagnostics, arena *Arena[Token]) *Tokenizer {
	return &Tokenizer{diag: diag, nodes: arena}
}

// removeBackslashNewline implements the preliminary splice pass (spec
// §4.3): each removed "\\\n" contributes its newline back immediately
// after the next real newline, so physical line numbers stay accurate
// even though the logical text no longer contains the splice.
func removeBackslashNewline(src []byte) []byte {
	out := make([]byte, 0, len(src))
	n := 0 // pending newlines owed back to the count
	for i := 0; i < len(src); i++ {
		if src[i] == '\\' && i+1 < len(src) && src[i+1] == '\n' {
			i++
			n++
			continue
		}
		out = append(out, src[i])
		if src[i] == '\n' {
			for ; n > 0; n-- {
				out = append(out, '\n')
			}
		}
	}
	for ; n > 0; n-- {
		out = append(out, '\n')
	}
	return out
}

func isIdent1(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdent2(c byte) bool {
	return isIdent1(c) || (c >= '0' && c <= '9')
}

func fromHex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}

// Tokenize lexes sf's contents (already NUL-terminated by the caller)
// into a Token chain ending in TkEOF.
func (tz *Tokenizer) Tokenize(sf *SourceFile) *Token {
	src := sf.Contents
	var head Token
	cur := &head
	line := 1
	atBOL := true
	hasSpace := false

	newTok := func(kind TokenKind, start, length int) *Token {
		t := tz.nodes.New()
		t.Kind = kind
		t.File = sf
		t.Offset = start
		t.Length = length
		t.LineNo = line
		t.AtBOL = atBOL
		t.HasSpace = hasSpace
		atBOL = false
		hasSpace = false
		cur.Next = t
		cur = t
		return t
	}

	i := 0
	for i < len(src) && src[i] != 0 {
		c := src[i]

		if c == '\n' {
			line++
			i++
			atBOL = true
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f' {
			i++
			hasSpace = true
			continue
		}
		// Line comment.
		if c == '/' && i+1 < len(src) && src[i+1] == '/' {
			i += 2
			for i < len(src) && src[i] != '\n' {
				i++
			}
			hasSpace = true
			continue
		}
		// Block comment.
		if c == '/' && i+1 < len(src) && src[i+1] == '*' {
			j := i + 2
			closed := false
			for j+1 < len(src) {
				if src[j] == '\n' {
					line++
				}
				if src[j] == '*' && src[j+1] == '/' {
					closed = true
					j += 2
					break
				}
				j++
			}
			if !closed {
				tz.diag.ErrorAt(sf, line, i, "unterminated block comment")
			}
			i = j
			hasSpace = true
			continue
		}

		// String literal, char literal, or wide variants (L"...", u"...", U"...", L'x').
		if c == '"' {
			i = tz.readStringLiteral(newTok, sf, i, line, 1)
			continue
		}
		if c == '\'' {
			i = tz.readCharLiteral(newTok, sf, i, line, TyIntType)
			continue
		}
		if isIdent1(c) {
			start := i
			for i < len(src) && isIdent2(src[i]) {
				i++
			}
			word := string(src[start:i])
			switch {
			case word == "u" && i < len(src) && src[i] == '"':
				i = tz.readStringLiteral(newTok, sf, i, line, 2)
				continue
			case word == "U" && i < len(src) && src[i] == '"':
				i = tz.readStringLiteral(newTok, sf, i, line, 4)
				continue
			case word == "L" && i < len(src) && src[i] == '"':
				i = tz.readStringLiteral(newTok, sf, i, line, 4)
				continue
			case word == "L" && i < len(src) && src[i] == '\'':
				i = tz.readCharLiteral(newTok, sf, i, line, TyIntType)
				continue
			}
			newTok(TkIdent, start, i-start)
			continue
		}
		if c >= '0' && c <= '9' || (c == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9') {
			start := i
			i = tz.skipNumber(src, i)
			t := newTok(TkNum, start, i-start)
			tz.convertPPNumber(t)
			continue
		}

		// Punctuators, longest match first.
		if matched, length := matchPunct(src[i:]); matched {
			newTok(TkPunct, i, length)
			i += length
			continue
		}

		tz.diag.ErrorAt(sf, line, i, "invalid token")
	}

	eof := tz.nodes.New()
	eof.Kind = TkEOF
	eof.File = sf
	eof.Offset = i
	eof.LineNo = line
	eof.AtBOL = atBOL
	eof.HasSpace = hasSpace
	cur.Next = eof

	if head.Next != nil {
		head.Next.IsFirst = true
	}
	convertKeywords(head.Next)
	return head.Next
}

func matchPunct(s string) (bool, int) {
	for _, p := range punctuators3 {
		if strings.HasPrefix(s, p) {
			return true, len(p)
		}
	}
	for _, p := range punctuators2 {
		if strings.HasPrefix(s, p) {
			return true, len(p)
		}
	}
	if len(s) > 0 && isPunctByte(s[0]) {
		return true, 1
	}
	return false, 0
}

func isPunctByte(c byte) bool {
	switch {
	case c >= '!' && c <= '/':
		return true
	case c >= ':' && c <= '@':
		return true
	case c >= '[' && c <= '`':
		return true
	case c >= '{' && c <= '~':
		return true
	}
	return false
}

// skipNumber scans a pp-number: digits, then any run of
// [0-9a-zA-Z.] plus an exponent sign immediately after e/E/p/P.
func (tz *Tokenizer) skipNumber(src []byte, i int) int {
	// Hex prefix.
	if src[i] == '0' && i+1 < len(src) && (src[i+1] == 'x' || src[i+1] == 'X') {
		i += 2
		for i < len(src) && (isHexDigit(src[i]) || src[i] == '.') {
			i++
		}
		// Hex float exponent 'p'/'P'.
		if i < len(src) && (src[i] == 'p' || src[i] == 'P') {
			i++
			if i < len(src) && (src[i] == '+' || src[i] == '-') {
				i++
			}
			for i < len(src) && isDigit(src[i]) {
				i++
			}
		}
		for i < len(src) && isIdent2(src[i]) {
			i++
		}
		return i
	}
	for i < len(src) {
		if isIdent2(src[i]) || src[i] == '.' {
			if (src[i] == 'e' || src[i] == 'E' || src[i] == 'p' || src[i] == 'P') &&
				i+1 < len(src) && (src[i+1] == '+' || src[i+1] == '-') {
				i += 2
				continue
			}
			i++
			continue
		}
		break
	}
	return i
}

func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }

// convertPPNumber decides the literal's Type and IntVal/FloatVal
// following the integer-literal inference table (spec §6) and the
// "numeric scan followed by .eEfF" rule for floats (spec §4.3).
func (tz *Tokenizer) convertPPNumber(t *Token) {
	text := t.Text()
	if looksLikeFloat(text) {
		f, err := strconv.ParseFloat(strings.TrimRight(text, "fFlL"), 64)
		if err != nil {
			tz.diag.ErrorTok(t, "invalid numeric constant")
		}
		t.FloatVal = f
		if strings.HasSuffix(text, "f") || strings.HasSuffix(text, "F") {
			t.Ty = TyFloatType
		} else {
			t.Ty = TyDoubleType
		}
		return
	}

	base := 10
	digits := text
	switch {
	case strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X"):
		base, digits = 16, text[2:]
	case strings.HasPrefix(text, "0b") || strings.HasPrefix(text, "0B"):
		base, digits = 2, text[2:]
	case strings.HasPrefix(text, "0") && len(text) > 1:
		base, digits = 8, text[1:]
	}

	// Split off the integer suffix (U/L/LL in any order/case).
	end := len(digits)
	for end > 0 {
		c := digits[end-1] | 0x20
		if c == 'u' || c == 'l' {
			end--
			continue
		}
		break
	}
	suffix := strings.ToUpper(digits[end:])
	digits = digits[:end]
	if digits == "" {
		digits = "0"
	}

	val, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		tz.diag.ErrorTok(t, "invalid numeric constant")
	}
	t.IntVal = int64(val)
	t.Ty = integerLiteralType(base, val, suffix)
}

func looksLikeFloat(text string) bool {
	hasDot := strings.ContainsRune(text, '.')
	hasExp := false
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "0x") {
		hasExp = strings.Contains(lower, "p")
	} else {
		hasExp = strings.Contains(lower, "e")
	}
	endsF := strings.HasSuffix(text, "f") || strings.HasSuffix(text, "F")
	// "123L" is an integer suffix, not a float: only .eEpP or a
	// trailing f/F (without L before it) makes this a float literal.
	return hasDot || hasExp || (endsF && !strings.ContainsAny(text, "xX"))
}

// integerLiteralType implements the table in spec §6.
func integerLiteralType(base int, val uint64, suffix string) *Type {
	unsignedSuffix := strings.Contains(suffix, "U")
	longSuffix := strings.Contains(suffix, "L")

	if base == 10 {
		switch {
		case unsignedSuffix && longSuffix, suffix == "LU", suffix == "UL":
			return TyUlongType
		case unsignedSuffix:
			if val < 1<<32 {
				return TyUintType
			}
			return TyUlongType
		case longSuffix:
			return TyLongType
		case val < 1<<31:
			return TyIntType
		default:
			return TyLongType
		}
	}
	// Non-decimal bases consult range only when no suffix narrows it.
	switch {
	case unsignedSuffix && longSuffix:
		return TyUlongType
	case unsignedSuffix:
		if val < 1<<32 {
			return TyUintType
		}
		return TyUlongType
	case longSuffix:
		return TyLongType
	case val < 1<<31:
		return TyIntType
	case val < 1<<32:
		return TyUintType
	case val < 1<<63:
		return TyLongType
	default:
		return TyUlongType
	}
}

// readEscape decodes one \-escape starting at src[i] (where
// src[i-1]=='\\') and returns the decoded rune plus the index past it.
func readEscape(src []byte, i int) (rune, int) {
	c := src[i]
	switch c {
	case 'a':
		return 7, i + 1
	case 'b':
		return 8, i + 1
	case 't':
		return 9, i + 1
	case 'n':
		return 10, i + 1
	case 'v':
		return 11, i + 1
	case 'f':
		return 12, i + 1
	case 'r':
		return 13, i + 1
	case 'e':
		return 27, i + 1
	case '0', '1', '2', '3', '4', '5', '6', '7':
		v := 0
		j := i
		for k := 0; k < 3 && j < len(src) && src[j] >= '0' && src[j] <= '7'; k++ {
			v = v*8 + int(src[j]-'0')
			j++
		}
		return rune(v), j
	case 'x':
		j := i + 1
		v := 0
		for j < len(src) && isHexDigit(src[j]) {
			v = v*16 + fromHex(src[j])
			j++
		}
		return rune(v), j
	default:
		return rune(c), i + 1
	}
}

// readStringLiteral lexes a "..." literal (width in bytes: 1 narrow, 2
// UTF-16, 4 UTF-32/wide) and emits a TkStr token.
func (tz *Tokenizer) readStringLiteral(newTok func(TokenKind, int, int) *Token, sf *SourceFile, i, line, width int) int {
	src := sf.Contents
	start := i
	i++ // opening quote
	var runes []rune
	for i < len(src) && src[i] != '"' {
		if src[i] == '\n' {
			tz.diag.ErrorAt(sf, line, start, "unterminated string literal")
		}
		if src[i] == '\\' {
			r, ni := readEscape(src, i+1)
			runes = append(runes, r)
			i = ni
			continue
		}
		r, size := decodeUTF8(src[i:])
		runes = append(runes, r)
		i += size
	}
	if i >= len(src) {
		tz.diag.ErrorAt(sf, line, start, "unterminated string literal")
	}
	i++ // closing quote

	t := newTok(TkStr, start, i-start)
	t.CharWidth = width
	switch width {
	case 1:
		t.Str = append(encodeUTF8Bytes(runes), 0)
		t.Ty = ArrayOf(TyCharType, len(t.Str))
	case 2:
		units := encodeUTF16(runes)
		buf := make([]byte, 0, 2*(len(units)+1))
		for _, u := range units {
			buf = append(buf, byte(u), byte(u>>8))
		}
		t.Str = append(buf, 0, 0)
		t.Ty = ArrayOf(TyUshortType, len(units)+1)
	case 4:
		buf := make([]byte, 0, 4*(len(runes)+1))
		for _, r := range runes {
			buf = append(buf, byte(r), byte(r>>8), byte(r>>16), byte(r>>24))
		}
		t.Str = append(buf, 0, 0, 0, 0)
		t.Ty = ArrayOf(TyIntType, len(runes)+1)
	}
	return i
}

func (tz *Tokenizer) readCharLiteral(newTok func(TokenKind, int, int) *Token, sf *SourceFile, i, line int, ty *Type) int {
	src := sf.Contents
	start := i
	i++ // opening quote
	if i >= len(src) || src[i] == '\'' {
		tz.diag.ErrorAt(sf, line, start, "empty character constant")
	}
	var r rune
	if src[i] == '\\' {
		r, i = readEscape(src, i+1)
	} else {
		var size int
		r, size = decodeUTF8(src[i:])
		i += size
	}
	for i < len(src) && src[i] != '\'' {
		// Multi-char constants: chibicc keeps only the first char's
		// value, matching GNU's (implementation-defined) behavior.
		i++
	}
	if i >= len(src) {
		tz.diag.ErrorAt(sf, line, start, "unterminated character literal")
	}
	i++ // closing quote
	t := newTok(TkNum, start, i-start)
	t.IntVal = int64(r)
	t.Ty = TyIntType
	return i
}

// convertKeywords retargets identifier tokens whose spelling is a
// keyword to TkKeyword (spec §4.3 "convert_keywords" post-pass).
func convertKeywords(tok *Token) {
	for t := tok; t != nil && t.Kind != TkEOF; t = t.Next {
		if t.Kind == TkIdent && keywords[t.Text()] {
			t.Kind = TkKeyword
		}
	}
}
