package json

import "fmt"

var isStructural = [256]bool{
	'{': true,
	'}': true,
	'[': true,
	']': true,
	',': true,
	':': true,
}

var isWhitespace = [256]bool{
	' ':  true,
	'\t': true,
	'\n': true,
	'\r': true,
}

func findStructuralChar(buf []byte) (offset int, char byte) {
	for i, c := range buf {
		if isStructural[c] {
			return i, c
		}
	}
	return -1, 0
}

func skipWhitespace(buf []byte) int {
	for i, c := range buf {
		if !isWhitespace[c] {
			return i
		}
	}
	return len(buf)
}

// scanString scans the body of a string whose opening quote has already been
// consumed. It returns the offset just past the closing quote, or -1 if buf
// ends first, and whether a backslash was seen on the way. maxLen limits the
// body length; zero or less means no limit.
func scanString(buf []byte, maxLen int) (endOffset int, escaped bool, err error) {
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		if c == '"' {
			return i + 1, escaped, nil
		}
		if maxLen > 0 && i >= maxLen {
			return 0, false, fmt.Errorf("%w of %d", ErrStringTooLong, maxLen)
		}
		if c == '\\' {
			escaped = true
			i++
		}
	}
	return -1, escaped, nil
}

// skipValue returns the offset just past the value starting at buf[start].
func skipValue(buf []byte, start int) (int, error) {
	if start >= len(buf) {
		return 0, syntaxError(start, "expected value")
	}

	switch buf[start] {
	case '"':
		end, _, _ := scanString(buf[start+1:], 0)
		if end < 0 {
			return 0, syntaxError(start, "unterminated string")
		}
		return start + 1 + end, nil
	case '{', '[':
		depth := 0
		for i := start; i < len(buf); i++ {
			switch buf[i] {
			case '"':
				end, _, _ := scanString(buf[i+1:], 0)
				if end < 0 {
					return 0, syntaxError(i, "unterminated string")
				}
				i += end
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					return i + 1, nil
				}
			}
		}
		return 0, syntaxError(start, "unterminated value")
	}

	// Literal: number, true, false or null.
	end := len(buf)
	if off, _ := findStructuralChar(buf[start:]); off >= 0 {
		end = start + off
	}
	for i := start; i < end; i++ {
		if isWhitespace[buf[i]] || buf[i] == '"' {
			end = i
			break
		}
	}
	if end == start {
		return 0, syntaxError(start, fmt.Sprintf("unexpected character '%c'", buf[start]))
	}
	return end, nil
}
