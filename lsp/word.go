package lsp

import (
	"regexp"
	"strings"
)

// techniqueIDPattern matches technique ids: T1059, T1059.001 and the URL form T1059/001.
// The id must start a word, so XT1059 is not an id.
var techniqueIDPattern = regexp.MustCompile(`\bT\d+(?:[./]\d+)?`)

// wordRange returns the word containing or touching offset.
// ok is false when there is no word there (whitespace, punctuation, empty text).
func wordRange(text string, offset int) (r Range, ok bool) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}

	start := offset
	for start > 0 && isWordByte(text[start-1]) {
		start--
	}
	end := offset
	for end < len(text) && isWordByte(text[end]) {
		end++
	}

	if start == end {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

// isWordByte reports whether b can be part of a completion term.
// Bytes of multi-byte UTF-8 sequences count as word characters.
func isWordByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_', b == '-', b == '.':
		return true
	case b >= 0x80:
		return true
	}
	return false
}

// techniqueIDAt finds the technique id under offset, normalised to dotted form.
func techniqueIDAt(text string, offset int) (id string, r Range, ok bool) {
	if offset < 0 || offset > len(text) {
		return "", Range{}, false
	}

	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	lineEnd := len(text)
	if i := strings.IndexByte(text[offset:], '\n'); i >= 0 {
		lineEnd = offset + i
	}
	line := text[lineStart:lineEnd]
	cursor := offset - lineStart

	for _, m := range techniqueIDPattern.FindAllStringIndex(line, -1) {
		if cursor >= m[0] && cursor <= m[1] {
			id = strings.Replace(line[m[0]:m[1]], "/", ".", 1)
			return id, Range{Start: lineStart + m[0], End: lineStart + m[1]}, true
		}
	}
	return "", Range{}, false
}
