package jsonutil

import (
	"fmt"
	"regexp"
	"strings"
)

var reFence = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

// Sanitize turns near-JSON text emitted by a language model into text a JSON
// decoder can accept. It never decodes and never fails: input it cannot
// improve comes back trimmed but otherwise unchanged.
//
// Steps, in order:
//  1. keep only the interior of the first fenced code block
//  2. when the text does not open with '{', cut from the first '{' to the last '}'
//  3. escape raw newlines, carriage returns, tabs and other control bytes inside string literals
//  4. drop commas that sit right before a closing '}' or ']'
//
// Sanitize(Sanitize(x)) == Sanitize(x) for every x.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	s = stripFence(s)
	s = sliceObject(s)
	s = escapeControlInStrings(s)
	s = dropTrailingCommas(s)
	return strings.TrimSpace(s)
}

func stripFence(s string) string {
	m := reFence.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return strings.TrimSpace(m[1])
}

func sliceObject(s string) string {
	if strings.HasPrefix(s, "{") {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func escapeControlInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			switch c {
			case '\n', '\r':
				// backslash followed by a raw line break: finish it as \n
				b.WriteByte('n')
				if c == '\r' && i+1 < len(s) && s[i+1] == '\n' {
					i++
				}
			case '\t':
				b.WriteByte('t')
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// dropTrailingCommas removes every comma in the whitespace/comma run that
// precedes a closing bracket outside string literals, so ",,]" collapses in one
// pass.
func dropTrailingCommas(s string) string {
	out := make([]byte, 0, len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		switch c {
		case '"':
			inString = true
		case '}', ']':
			out = trimCommaRun(out)
		}
		out = append(out, c)
	}
	return string(out)
}

func trimCommaRun(out []byte) []byte {
	j := len(out)
	sawComma := false
	for j > 0 && isCommaRun(out[j-1]) {
		if out[j-1] == ',' {
			sawComma = true
		}
		j--
	}
	if !sawComma {
		return out
	}
	tail := append([]byte(nil), out[j:]...)
	out = out[:j]
	for _, c := range tail {
		if c != ',' {
			out = append(out, c)
		}
	}
	return out
}

func isCommaRun(c byte) bool {
	switch c {
	case ',', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
