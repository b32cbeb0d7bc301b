// Package stream decodes incrementally delivered response bodies: newline-delimited
// JSON records and plain UTF-8 text.
package stream

import (
	"bytes"
	"errors"
	"io"
)

// LineSplitter splits a byte stream into lines. An incomplete trailing line is kept and
// prefixed onto the next chunk.
type LineSplitter struct {
	buf []byte
}

// Feed appends chunk and returns every complete line it closes. Returned slices are
// owned by the caller. Blank lines are dropped and a trailing '\r' is trimmed.
func (s *LineSplitter) Feed(chunk []byte) [][]byte {
	s.buf = append(s.buf, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		if line := trimLine(s.buf[:i]); len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
		s.buf = s.buf[i+1:]
	}

	// Release the consumed prefix so a long stream does not pin its whole history.
	if len(s.buf) == 0 {
		s.buf = nil
	} else if cap(s.buf) > 4*len(s.buf) && cap(s.buf) > 4096 {
		s.buf = append([]byte(nil), s.buf...)
	}
	return lines
}

// Flush returns the buffered remainder, if any, and clears it.
func (s *LineSplitter) Flush() []byte {
	line := trimLine(s.buf)
	s.buf = nil
	if len(line) == 0 {
		return nil
	}
	return append([]byte(nil), line...)
}

// Pending returns the number of buffered bytes without a terminating newline.
func (s *LineSplitter) Pending() int {
	return len(s.buf)
}

func trimLine(b []byte) []byte {
	return bytes.TrimSpace(b)
}

const readSize = 32 * 1024

// ReadLines reads r until EOF and calls fn for every non-blank line in order. A final
// line without a newline is delivered too. It stops at the first error returned by fn.
func ReadLines(r io.Reader, fn func(line []byte) error) error {
	var s LineSplitter
	buf := make([]byte, readSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range s.Feed(buf[:n]) {
				if ferr := fn(line); ferr != nil {
					return ferr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	if line := s.Flush(); line != nil {
		return fn(line)
	}
	return nil
}
