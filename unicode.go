// UTF-8/UTF-16 helpers used by the tokenizer for wide string and
// char-literal conversion (spec §4.3, §1 in-scope: "UTF-16/32 string
// literals").
package main

import "unicode/utf8"

// decodeUTF8 decodes the rune at the start of b, falling back to a
// single raw byte (as Latin-1) for invalid sequences so malformed
// input never aborts tokenizing outright; the C source is trusted
// to be valid UTF-8 in the supported subset.
func decodeUTF8(b []byte) (rune, int) {
	if len(b) == 0 {
		return 0, 0
	}
	r, size := utf8.DecodeRune(b)
	if r == utf8.RuneError && size <= 1 {
		return rune(b[0]), 1
	}
	return r, size
}

// encodeUTF8Bytes re-encodes runes back to UTF-8, used for narrow
// string literals where escapes were decoded to runes and now need
// their raw byte form for the Str payload.
func encodeUTF8Bytes(runes []rune) []byte {
	buf := make([]byte, 0, len(runes)*2)
	var tmp [4]byte
	for _, r := range runes {
		n := utf8.EncodeRune(tmp[:], r)
		buf = append(buf, tmp[:n]...)
	}
	return buf
}

// encodeUTF16 converts runes to UTF-16 code units, surrogate-pairing
// anything above the BMP.
func encodeUTF16(runes []rune) []uint16 {
	var out []uint16
	for _, r := range runes {
		switch {
		case r < 0x10000:
			out = append(out, uint16(r))
		default:
			r -= 0x10000
			hi := uint16(0xD800 + (r >> 10))
			lo := uint16(0xDC00 + (r & 0x3FF))
			out = append(out, hi, lo)
		}
	}
	return out
}
