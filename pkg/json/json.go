package json

import (
	"context"
	"fmt"
	"io"
)

const bufferPreviewSize = 256

// JsonStreamLexer splits a continuous stream of JSON values, like a JSONL file
// or a JSON RPC connection, into top-level objects and arrays.
// It only tracks strings and bracket depth; the pieces it hands out are meant
// to be inspected with Members/Lookup or passed on to a real decoder.
type JsonStreamLexer struct {
	reader  io.Reader
	context context.Context
	maxRead int

	buffer []byte
	cursor int // Points to beginning of next json object
	length int // Number of bytes used in buffer

	// Parsing policy
	maxDepth        int
	maxStringLength int
	maxArrayLength  int
	maxObjectLength int
}

// Create a new JsonStreamLexer with the given reader and buffer size.
func NewJsonStreamLexer(
	context context.Context,
	reader io.Reader,
	bufferSize int,
	maxRead int,
) *JsonStreamLexer {
	if maxRead <= 0 {
		maxRead = 4096
	}
	if bufferSize < maxRead {
		bufferSize = maxRead
	}

	return &JsonStreamLexer{
		reader:  reader,
		context: context,
		buffer:  make([]byte, bufferSize),
		maxRead: maxRead,

		maxDepth:        20,
		maxStringLength: 9999,
		maxArrayLength:  9999,
		maxObjectLength: 9999,
	}
}

// Read reads at most maxRead bytes from the underlying reader, growing the
// buffer if there is not enough room left.
func (l *JsonStreamLexer) Read() (int, error) {
	if free := len(l.buffer) - l.length; free < l.maxRead {
		newCap := len(l.buffer) * 2
		if newCap < l.length+l.maxRead {
			newCap = l.length + l.maxRead
		}
		newBuffer := make([]byte, newCap)
		copy(newBuffer, l.buffer[:l.length])
		l.buffer = newBuffer
	}

	n, err := l.reader.Read(l.buffer[l.length : l.length+l.maxRead])
	l.length += n
	return n, err
}

// DecodeAll reads until EOF, an error or cancellation of the lexer's context,
// calling cb with every complete top-level value. The slice passed to cb is
// only valid until cb returns.
// If the reader is an io.Closer it is closed when the context is cancelled,
// so a pending Read returns instead of blocking DecodeAll.
func (l *JsonStreamLexer) DecodeAll(cb func([]byte), errCb func(error)) {
	if closer, ok := l.reader.(io.Closer); ok {
		stop := context.AfterFunc(l.context, func() {
			closer.Close()
		})
		defer stop()
	}

	for {
		select {
		case <-l.context.Done():
			return
		default:
		}

		n, err := l.Read()

		// Errors caused by closing the reader on cancellation are not reported
		if err != nil && l.context.Err() != nil {
			return
		}

		if err == io.EOF {
			if complete := l.processBuffer(cb, errCb); complete {
				return
			}
			if l.length > 0 {
				errCb(fmt.Errorf("%w: %d bytes of incomplete value", io.ErrUnexpectedEOF, l.length))
			}
			return
		}

		// Exit on real errors
		if err != nil && err != io.ErrUnexpectedEOF {
			errCb(err)
			return
		}

		if n == 0 {
			continue // Try reading again if we need more data
		}

		if complete := l.processBuffer(cb, errCb); complete {
			return
		}
	}
}

// NextObject finds the next top-level object or array after the cursor.
// end is -1 if the value is not complete yet.
func (l *JsonStreamLexer) NextObject() (start, end int, err error) {
	objectDepth := 0
	arrayDepth := 0
	arrayLength := 0
	objectLength := 0

	// Find start of object/array
	for start = l.cursor; start < l.length; start++ {
		c := l.buffer[start]
		if c == '{' || c == '[' {
			break
		}
		if c == '}' || c == ']' {
			return 0, 0, fmt.Errorf("%w at position %d", ErrUnmatchedClose, start)
		}
		if !isWhitespace[c] {
			return 0, 0, fmt.Errorf("%w '%c' at position %d", ErrUnexpectedChar, c, start)
		}
	}

	for i := start; i < l.length; i++ {
		switch l.buffer[i] {
		case '"':
			n, _, err := scanString(l.buffer[i+1:l.length], l.maxStringLength)
			if err != nil {
				return 0, 0, fmt.Errorf("%w at position %d", err, i)
			}
			if n < 0 {
				return start, -1, nil
			}
			i += n
		case '{':
			objectDepth++
			if objectDepth > l.maxDepth {
				return 0, 0, fmt.Errorf("object %w of %d", ErrMaxDepth, l.maxDepth)
			}
			// Only count root-level objects
			if objectDepth == 1 && arrayDepth == 0 {
				objectLength++
				if objectLength > l.maxObjectLength {
					return 0, 0, fmt.Errorf("object count %w of %d", ErrMaxLength, l.maxObjectLength)
				}
			}
		case '[':
			arrayDepth++
			if arrayDepth > l.maxDepth {
				return 0, 0, fmt.Errorf("array %w of %d", ErrMaxDepth, l.maxDepth)
			}
			arrayLength++
			if arrayLength > l.maxArrayLength {
				return 0, 0, fmt.Errorf("array length %w of %d", ErrMaxLength, l.maxArrayLength)
			}
		case '}':
			objectDepth--
			if objectDepth < 0 {
				return 0, 0, fmt.Errorf("%w at position %d", ErrUnmatchedClose, i)
			}
			if objectDepth == 0 && arrayDepth == 0 {
				return start, i, nil
			}
		case ']':
			arrayDepth--
			if arrayDepth < 0 {
				return 0, 0, fmt.Errorf("%w at position %d", ErrUnmatchedClose, i)
			}
			if objectDepth == 0 && arrayDepth == 0 {
				return start, i, nil
			}
		}
	}

	// Object is not complete
	return start, -1, nil
}

// processBuffer hands every complete value in the buffer to cb and compacts
// the buffer. It returns true when decoding should stop.
func (l *JsonStreamLexer) processBuffer(cb func([]byte), errCb func(err error)) (complete bool) {
	for l.length > 0 {
		start, end, err := l.NextObject()
		if err != nil {
			errCb(err)
			return true // Exit on parsing errors
		}
		if end == -1 {
			// Drop leading whitespace and wait for more data
			l.cursor = start
			l.compact()
			return false
		}

		cb(l.buffer[start : end+1])
		l.cursor = end + 1
		l.compact()
	}
	return false
}

func (l *JsonStreamLexer) compact() {
	if l.cursor == 0 {
		return
	}
	copy(l.buffer, l.buffer[l.cursor:l.length])
	l.length -= l.cursor
	l.cursor = 0
}

func (l *JsonStreamLexer) Buffer() []byte {
	return l.buffer
}

func (l *JsonStreamLexer) BufferLength() int {
	return l.length
}

func (l *JsonStreamLexer) Cursor() int {
	return l.cursor
}

// BufferContent returns the start of the unprocessed data for debug output.
func (l *JsonStreamLexer) BufferContent() string {
	end := l.length
	if end-l.cursor > bufferPreviewSize {
		end = l.cursor + bufferPreviewSize
	}
	return string(l.buffer[l.cursor:end])
}
