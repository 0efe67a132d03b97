// Package expression parses and merges comma-separated selector candidate lists.
//
// A list such as "$.success,$.code=0" is tried left to right by the classifier.
// A per-call list starting with "+" extends the global list instead of
// replacing it.
package expression

import (
	"strings"
)

// AppendMarker prefixes a per-call list that extends the global defaults.
const AppendMarker = "+"

// Spec is an ordered, immutable list of selector candidates.
type Spec struct {
	candidates []string

	// Append reports whether the list was declared with the "+" marker.
	Append bool
}

// Parse splits s into normalized candidates. Blank elements are dropped and
// commas inside brackets or quotes do not split.
func Parse(s string) Spec {
	s = strings.TrimSpace(s)
	var spec Spec
	if strings.HasPrefix(s, AppendMarker) {
		spec.Append = true
		s = strings.TrimSpace(strings.TrimPrefix(s, AppendMarker))
	}
	for _, part := range split(s) {
		if c := Normalize(part); c != "" {
			spec.candidates = append(spec.candidates, c)
		}
	}
	return spec
}

// Of builds a Spec from already separated candidates.
func Of(candidates ...string) Spec {
	var spec Spec
	for _, c := range candidates {
		if c = Normalize(c); c != "" {
			spec.candidates = append(spec.candidates, c)
		}
	}
	return spec
}

// Candidates returns a copy of the candidate list.
func (s Spec) Candidates() []string {
	if len(s.candidates) == 0 {
		return nil
	}
	out := make([]string, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Len returns the number of candidates.
func (s Spec) Len() int { return len(s.candidates) }

// IsZero reports whether the spec has no candidates.
func (s Spec) IsZero() bool { return len(s.candidates) == 0 }

// String renders the spec back into its comma-separated form.
func (s Spec) String() string {
	joined := strings.Join(s.candidates, ",")
	if s.Append {
		return AppendMarker + joined
	}
	return joined
}

// Normalize brings a single candidate into comparator form: surrounding space
// trimmed, "==" rewritten to "=" and spaces around "=" removed.
func Normalize(candidate string) string {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return ""
	}
	op, width := indexComparator(c)
	if op < 0 {
		return c
	}
	lhs := strings.TrimSpace(c[:op])
	rhs := strings.TrimSpace(c[op+width:])
	return lhs + "=" + rhs
}

// Merge resolves a per-call list against the global default list.
//
// A blank perCall returns global. A perCall starting with "+" yields the
// union of both lists, per-call candidates first, duplicates removed, with
// Append set. Any other perCall replaces global entirely.
func Merge(global, perCall string) Spec {
	return MergeSpecs(Parse(global), Parse(perCall), strings.TrimSpace(perCall) == "")
}

// MergeSpecs is Merge on parsed specs. blank reports whether the per-call list
// was absent, which is distinct from a bare "+" marker.
func MergeSpecs(global, perCall Spec, blank bool) Spec {
	global.Append = false
	if blank {
		return global
	}
	if !perCall.Append {
		return perCall
	}

	seen := make(map[string]struct{}, len(perCall.candidates)+len(global.candidates))
	out := Spec{Append: true}
	for _, list := range [][]string{perCall.candidates, global.candidates} {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out.candidates = append(out.candidates, c)
		}
	}
	return out
}

// indexComparator locates the first "==" or "=" outside brackets and quotes.
func indexComparator(s string) (int, int) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			if depth > 0 {
				depth--
			}
		case ch == '=' && depth == 0:
			if i+1 < len(s) && s[i+1] == '=' {
				return i, 2
			}
			return i, 1
		}
	}
	return -1, 0
}

func split(s string) []string {
	if s == "" {
		return nil
	}
	var (
		parts []string
		start int
		depth int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			if depth > 0 {
				depth--
			}
		case ch == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
