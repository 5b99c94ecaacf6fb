package server

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// positionAt converts a byte offset in text to an LSP position.
// Characters are counted in UTF-16 code units, the protocol default.
func positionAt(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}

	before := text[:offset]
	line := strings.Count(before, "\n")
	lineStart := strings.LastIndexByte(before, '\n') + 1

	character := 0
	for _, r := range before[lineStart:] {
		if n := utf16.RuneLen(r); n > 0 {
			character += n
		} else {
			character++ // invalid UTF-8 decodes as RuneError, one unit
		}
	}

	return protocol.Position{
		Line:      protocol.UInteger(line),
		Character: protocol.UInteger(character),
	}
}

// offsetAt converts an LSP position to a byte offset, clamping to the end of
// the addressed line. It is the inverse of positionAt.
func offsetAt(text string, pos protocol.Position) int {
	lineStart := 0
	for i := protocol.UInteger(0); i < pos.Line; i++ {
		next := strings.IndexByte(text[lineStart:], '\n')
		if next < 0 {
			return len(text)
		}
		lineStart += next + 1
	}

	lineEnd := len(text)
	if next := strings.IndexByte(text[lineStart:], '\n'); next >= 0 {
		lineEnd = lineStart + next
	}

	offset := lineStart
	units := int(pos.Character)
	for offset < lineEnd && units > 0 {
		r, size := utf8.DecodeRuneInString(text[offset:lineEnd])
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		units -= n
		offset += size
	}
	return offset
}
