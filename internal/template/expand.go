// Package template substitutes ${key} placeholders in task command strings
// (spec.md §4.2).
package template

import "strings"

// Layers holds the three precedence tiers consulted, in order, when
// resolving a placeholder: well-known input fields first, then the
// caller-supplied config map, then the accumulated process context.
type Layers struct {
	InputFields map[string]string
	Config      map[string]string
	Context     map[string]string
}

func (l Layers) lookup(key string) (string, bool) {
	if v, ok := l.InputFields[key]; ok {
		return v, true
	}
	if v, ok := l.Config[key]; ok {
		return v, true
	}
	if v, ok := l.Context[key]; ok {
		return v, true
	}
	return "", false
}

// Expand substitutes every ${key} occurrence in s using a single
// left-to-right pass. A key with no match in any layer is left literal,
// including its ${...} delimiters, so the underlying command can surface
// its own clear error instead of silently running with an empty value.
// The result of a substitution is never itself rescanned for placeholders.
func Expand(s string, layers Layers) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			b.WriteString(s[i:])
			break
		}
		start += i
		b.WriteString(s[i:start])

		end := strings.IndexByte(s[start+2:], '}')
		if end < 0 {
			// unterminated placeholder: emit the rest literally
			b.WriteString(s[start:])
			break
		}
		end += start + 2

		key := s[start+2 : end]
		if val, ok := layers.lookup(key); ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[start : end+1])
		}
		i = end + 1
	}

	return b.String()
}
