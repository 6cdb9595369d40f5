package sqlfrag

import (
	"regexp"
	"strings"
)

// stripComments removes line (--) and block (/* */) comments, mirroring
// pgtofu's internal/parser/util.go helper of the same name.
func stripComments(sql string) string {
	var b strings.Builder

	inLine, inBlock := false, false

	for i := 0; i < len(sql); i++ {
		switch {
		case inLine:
			if sql[i] == '\n' {
				inLine = false
				b.WriteByte(sql[i])
			}
		case inBlock:
			if sql[i] == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				inBlock = false
				i++
			}
		case sql[i] == '-' && i+1 < len(sql) && sql[i+1] == '-':
			inLine = true
			i++
		case sql[i] == '/' && i+1 < len(sql) && sql[i+1] == '*':
			inBlock = true
			i++
		default:
			b.WriteByte(sql[i])
		}
	}

	return b.String()
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses runs of whitespace to a single space and
// trims the result, the way pgtofu's parser normalizes statement text
// before hashing/comparison.
func normalizeWhitespace(sql string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(sql, " "))
}

// splitByComma splits s on top-level commas, respecting paren nesting and
// quoted strings/identifiers so that "f(a,b), c" splits into two parts, not
// three. Grounded on pgtofu's util.splitByComma.
func splitByComma(s string) []string {
	var parts []string

	depth := 0
	start := 0
	inSingle, inDouble := false, false

	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}

	parts = append(parts, s[start:])

	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return parts
}

// splitTopLevel splits s on a keyword (e.g. "AND", "OR") at paren depth 0,
// case-insensitively, on word boundaries.
func splitTopLevel(s, keyword string) []string {
	var parts []string

	depth := 0
	start := 0
	inSingle, inDouble := false, false
	upper := strings.ToUpper(s)
	kw := strings.ToUpper(keyword)

	i := 0
	for i < len(s) {
		c := s[i]

		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
			i++
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && matchesWord(upper, kw, i):
			parts = append(parts, s[start:i])
			i += len(kw)
			start = i

			continue
		}

		i++
	}

	parts = append(parts, s[start:])

	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return parts
}

func matchesWord(upper, kw string, pos int) bool {
	if !strings.HasPrefix(upper[pos:], kw) {
		return false
	}

	if pos > 0 && isIdentPartByte(upper[pos-1]) {
		return false
	}

	end := pos + len(kw)
	if end < len(upper) && isIdentPartByte(upper[end]) {
		return false
	}

	return true
}

func isIdentPartByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// extractParens returns the contents of the first balanced parenthesis
// group in s, starting at or after idx, and the index just past the
// closing paren. ok is false if no balanced group is found.
func extractParens(s string, idx int) (content string, end int, ok bool) {
	start := strings.IndexByte(s[idx:], '(')
	if start == -1 {
		return "", idx, false
	}

	start += idx
	depth := 0

	for i := start; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[start+1 : i], i + 1, true
			}
		}
	}

	return "", idx, false
}

// hasKeyword reports whether word appears in s as a standalone keyword
// (case-insensitive, word-boundary matched).
func hasKeyword(s, word string) bool {
	upper := strings.ToUpper(s)
	kw := strings.ToUpper(word)

	idx := 0
	for {
		i := strings.Index(upper[idx:], kw)
		if i == -1 {
			return false
		}

		pos := idx + i
		if matchesWord(upper, kw, pos) {
			return true
		}

		idx = pos + 1
	}
}
