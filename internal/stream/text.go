package stream

import (
	"unicode/utf8"
)

// TextDecoder turns raw chunks into text without splitting multi-byte runes across
// chunk boundaries.
type TextDecoder struct {
	carry []byte
}

// Decode returns the longest valid UTF-8 text available after appending chunk. An
// incomplete trailing rune is carried into the next call. Invalid bytes that cannot
// start a rune are passed through as utf8.RuneError.
func (d *TextDecoder) Decode(chunk []byte) string {
	data := chunk
	if len(d.carry) > 0 {
		data = append(d.carry, chunk...)
		d.carry = nil
	}
	cut := incompleteSuffix(data)
	if cut > 0 {
		d.carry = append([]byte(nil), data[len(data)-cut:]...)
		data = data[:len(data)-cut]
	}
	return toValidString(data)
}

// Flush returns any carried bytes. At end of stream they can only be a truncated rune.
func (d *TextDecoder) Flush() string {
	if len(d.carry) == 0 {
		return ""
	}
	s := toValidString(d.carry)
	d.carry = nil
	return s
}

// incompleteSuffix returns how many trailing bytes form the start of a rune that needs
// more input.
func incompleteSuffix(b []byte) int {
	// A rune is at most 4 bytes, so only the last 3 can be an unfinished prefix.
	for i := 1; i <= 3 && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if !utf8.RuneStart(c) {
			continue
		}
		if need := runeLen(c); need > i {
			return i
		}
		return 0
	}
	return 0
}

func runeLen(lead byte) int {
	switch {
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}

func toValidString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	// string([]rune(...)) maps invalid bytes to U+FFFD.
	return string([]rune(string(b)))
}
