package query

import (
	"math"
	"strconv"
	"strings"
)

// ParseScalar applies the literal rule shared by IN lists and VALUES lists:
// matching quotes yield a string, null (any case) yields nil, a finite number
// yields a float64 and anything else is returned unchanged.
func ParseScalar(text string) any {
	if text == "" {
		return text
	}
	if unquoted, ok := unquote(text); ok {
		return unquoted
	}
	if strings.EqualFold(text, "null") {
		return nil
	}
	if f, ok := parseNumber(text); ok {
		return f
	}
	return text
}

// parseAssignmentValue extends the scalar rule with boolean literals, which
// SET clauses accept.
func parseAssignmentValue(text string) any {
	if _, ok := unquote(text); !ok {
		switch strings.ToLower(text) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return ParseScalar(text)
}

func parseNumber(text string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func unquote(text string) (string, bool) {
	if len(text) < 2 {
		return "", false
	}
	first, last := text[0], text[len(text)-1]
	if (first == '\'' || first == '"') && first == last {
		return text[1 : len(text)-1], true
	}
	return "", false
}

// Unquote strips one pair of matching single or double quotes.
func Unquote(text string) string {
	if s, ok := unquote(text); ok {
		return s
	}
	return text
}

// splitList splits on commas that are not inside quotes or parentheses and
// trims every item.
func splitList(s string) []string {
	var (
		items []string
		quote byte
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			items = append(items, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(items, strings.TrimSpace(s[start:]))
}

// quotedMask marks the byte offsets of s that sit inside a quoted literal.
func quotedMask(s string) []bool {
	mask := make([]bool, len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			mask[i] = true
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			mask[i] = true
		}
	}
	return mask
}
