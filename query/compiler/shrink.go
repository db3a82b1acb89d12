package compiler

import "strings"

// Shrink collapses every run of whitespace outside quoted literals into a
// single space and trims both ends. Quoted literals ('...', "..." and
// `...`) are copied unchanged, so placeholders are never reordered or lost.
func Shrink(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	var quote byte
	pending := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if quote != 0 {
			b.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		if isSpace(ch) {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		if ch == '\'' || ch == '"' || ch == '`' {
			quote = ch
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func isSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
