// Package label compares JSON object member names without unescaping them
// into a separate buffer first.
//
// Labels are walked one decoded character at a time on both sides, so
// `"\u0041"` and `"A"` are the same label, as are a surrogate pair escape and
// the UTF-8 encoding of the supplementary character it names. JSON5 style
// line continuations decode to nothing. Malformed input never fails: bad
// escapes become InvalidChar and broken UTF-8 decodes to a best-effort value.
package label

import (
	"bytes"
	"unicode/utf8"
)

// Label is a borrowed view of a member name as it appears between the quotes.
// Raw reports that Bytes contains no backslash; it is trusted, not checked.
type Label struct {
	Bytes []byte
	Raw   bool
}

// New returns a Label for b, scanning it once to set Raw.
func New(b []byte) Label {
	return Label{Bytes: b, Raw: bytes.IndexByte(b, '\\') < 0}
}

// Raw wraps b, which the caller knows to be escape free.
func Raw(b []byte) Label {
	return Label{Bytes: b, Raw: true}
}

// Escaped wraps b, which may contain escapes.
func Escaped(b []byte) Label {
	return Label{Bytes: b}
}

// Len returns the length of the label in bytes.
func (l Label) Len() int {
	return len(l.Bytes)
}

// String returns the decoded label, with U+FFFD for undecodable scalars.
func (l Label) String() string {
	return string(AppendDecoded(nil, l))
}

// Compare reports whether left and right decode to the same sequence of
// characters. When both sides are raw this is a plain byte comparison.
func Compare(left, right Label) bool {
	if left.Raw && right.Raw {
		return bytes.Equal(left.Bytes, right.Bytes)
	}
	return compareEscaped(cursor(left), cursor(right))
}

// Equal is Compare for callers that keep bytes and raw flags separately.
func Equal(left []byte, leftRaw bool, right []byte, rightRaw bool) bool {
	return Compare(Label{Bytes: left, Raw: leftRaw}, Label{Bytes: right, Raw: rightRaw})
}

// cursor is the undecoded remainder of one side of a comparison.
type cursor Label

// next decodes one character and advances past it. An exhausted cursor
// yields 0 and stays put.
func (c *cursor) next() uint32 {
	if len(c.Bytes) == 0 {
		return 0
	}
	var ch uint32
	var n int
	if c.Raw || c.Bytes[0] != '\\' {
		ch, n = decodeUTF8(c.Bytes)
	} else {
		ch, n = decodeEscape(c.Bytes)
	}
	c.Bytes = c.Bytes[n:]
	return ch
}

func compareEscaped(left, right cursor) bool {
	for {
		l := left.next()
		r := right.next()
		if l != r {
			return false
		}
		if l == 0 {
			return true
		}
	}
}

// AppendDecoded appends the characters of l to dst as UTF-8. Values that are
// not valid runes, InvalidChar and lone surrogates among them, are written as
// utf8.RuneError. Unlike Compare it runs to the end of the label, so a
// decoded NUL is written rather than treated as the end.
func AppendDecoded(dst []byte, l Label) []byte {
	c := cursor(l)
	for len(c.Bytes) > 0 {
		escape := !c.Raw && c.Bytes[0] == '\\'
		ch := c.next()
		if escape && ch == 0 && len(c.Bytes) == 0 {
			// Only trailing line continuations were left.
			break
		}
		dst = utf8.AppendRune(dst, toRune(ch))
	}
	return dst
}

func toRune(ch uint32) rune {
	if ch > utf8.MaxRune {
		return utf8.RuneError
	}
	r := rune(ch)
	if !utf8.ValidRune(r) {
		return utf8.RuneError
	}
	return r
}
