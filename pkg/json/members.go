package json

import (
	"errors"

	"github.com/BLAZED-sh/labelmatch/pkg/label"
)

// Members calls fn for every top-level member of the object in obj, in order,
// until fn returns false. The key is the member name as written between the
// quotes, with Raw set when it contains no backslash. value is the member's
// raw JSON text.
func Members(obj []byte, fn func(key label.Label, value []byte) bool) error {
	i := skipWhitespace(obj)
	if i >= len(obj) || obj[i] != '{' {
		return ErrNotObject
	}
	i++

	for {
		i += skipWhitespace(obj[i:])
		if i >= len(obj) {
			return syntaxError(i, "unexpected end of object")
		}
		if obj[i] == '}' {
			return nil
		}
		if obj[i] != '"' {
			return syntaxError(i, "expected member name")
		}

		end, escaped, _ := scanString(obj[i+1:], 0)
		if end < 0 {
			return syntaxError(i, "unterminated member name")
		}
		key := label.Label{Bytes: obj[i+1 : i+end], Raw: !escaped}
		i += end + 1

		i += skipWhitespace(obj[i:])
		if i >= len(obj) || obj[i] != ':' {
			return syntaxError(i, "expected ':' after member name")
		}
		i++
		i += skipWhitespace(obj[i:])

		valueEnd, err := skipValue(obj, i)
		if err != nil {
			return err
		}
		if !fn(key, obj[i:valueEnd]) {
			return nil
		}
		i = valueEnd

		i += skipWhitespace(obj[i:])
		if i >= len(obj) {
			return syntaxError(i, "unexpected end of object")
		}
		switch obj[i] {
		case ',':
			i++
		case '}':
			return nil
		default:
			return syntaxError(i, "expected ',' or '}'")
		}
	}
}

// Lookup returns the value of the first member of obj whose name matches key.
func Lookup(obj []byte, key label.Label) (value []byte, found bool, err error) {
	err = Members(obj, func(k label.Label, v []byte) bool {
		if label.Compare(k, key) {
			value, found = v, true
			return false
		}
		return true
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// LookupPath follows path through nested objects starting at v. An empty
// path matches v itself. Running into a value that is not an object is a
// miss, not an error.
func LookupPath(v []byte, path []label.Label) ([]byte, bool, error) {
	for _, key := range path {
		value, found, err := Lookup(v, key)
		if errors.Is(err, ErrNotObject) {
			return nil, false, nil
		}
		if err != nil || !found {
			return nil, false, err
		}
		v = value
	}
	return v, true, nil
}
