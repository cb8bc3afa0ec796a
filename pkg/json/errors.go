package json

import (
	"errors"
	"fmt"
)

var (
	ErrUnmatchedClose = errors.New("invalid JSON: unmatched closing bracket")
	ErrUnexpectedChar = errors.New("invalid JSON: unexpected character")
	ErrMaxDepth       = errors.New("exceeds maximum depth")
	ErrMaxLength      = errors.New("exceeds maximum")
	ErrStringTooLong  = errors.New("string exceeds maximum length")
	ErrNotObject      = errors.New("value is not an object")
	ErrSyntax         = errors.New("invalid JSON")
)

func syntaxError(pos int, msg string) error {
	return fmt.Errorf("%w: %s at position %d", ErrSyntax, msg, pos)
}
