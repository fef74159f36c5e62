// Package jsmodule assembles JavaScript module source text. All dynamic
// values enter generated code through Quote, so the escaping rules live in
// one place.
package jsmodule

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Builder accumulates module source while tracking the current line and
// column, so callers can record where embedded fragments start.
type Builder struct {
	sb   strings.Builder
	line int
	col  int
}

// Position returns the zero-based line and column at which the next write
// lands. Columns count UTF-16 code units, as source maps do.
func (b *Builder) Position() (line, col int) {
	return b.line, b.col
}

// Write appends raw code.
func (b *Builder) Write(code string) {
	b.sb.WriteString(code)

	if i := strings.LastIndexByte(code, '\n'); i >= 0 {
		b.line += strings.Count(code, "\n")
		b.col = UTF16Len(code[i+1:])
		return
	}
	b.col += UTF16Len(code)
}

// UTF16Len returns the length of s in UTF-16 code units. Invalid bytes
// count as one unit each, matching their U+FFFD replacement.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
			continue
		}
		n++
	}

	return n
}

// Line appends code followed by a newline.
func (b *Builder) Line(code string) {
	b.Write(code)
	b.Write("\n")
}

// Linef appends a formatted line. Dynamic strings must already be quoted.
func (b *Builder) Linef(format string, args ...interface{}) {
	b.Line(fmt.Sprintf(format, args...))
}

// ImportDefault appends `import <name> from '<specifier>';`.
func (b *Builder) ImportDefault(name, specifier string) {
	b.Linef("import %s from %s;", name, Quote(specifier, '\''))
}

// String returns the assembled source.
func (b *Builder) String() string {
	return b.sb.String()
}

// Quote renders s as a JavaScript string literal delimited by q, which must
// be '\'' or '"'. Backslashes, the delimiter, line terminators (including
// U+2028 and U+2029) and other control characters are escaped.
func Quote(s string, q byte) string {
	if q != '\'' && q != '"' {
		q = '"'
	}

	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte(q)

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size

		switch {
		case r == '\\':
			sb.WriteString(`\\`)
		case r == rune(q):
			sb.WriteByte('\\')
			sb.WriteByte(q)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\u2028':
			sb.WriteString(`\u2028`)
		case r == '\u2029':
			sb.WriteString(`\u2029`)
		case r == utf8.RuneError && size == 1:
			sb.WriteString(`\ufffd`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, r)
		default:
			sb.WriteRune(r)
		}
	}

	sb.WriteByte(q)

	return sb.String()
}

// QuoteKey renders an object literal key. It is a double-quoted string.
func QuoteKey(s string) string {
	return Quote(s, '"')
}
