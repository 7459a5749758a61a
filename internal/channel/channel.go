package channel

import (
	"github.com/gobwas/glob"
)

// Matcher reports whether a channel name is selected by a pattern.
type Matcher interface {
	Match(name string) bool
}

type literal string

func (l literal) Match(name string) bool { return string(l) == name }

// Compile turns a removal pattern into a Matcher. Patterns that are not
// valid globs match only the identical channel name.
func Compile(pattern string) Matcher {
	g, err := glob.Compile(pattern)
	if err != nil {
		return literal(pattern)
	}

	return g
}

// FilterOut returns the names in all that no pattern matches, in their
// original order. all is never modified.
func FilterOut(all, patterns []string) []string {
	remove := make(map[string]bool)

	for _, p := range patterns {
		for _, name := range Matches(all, p) {
			remove[name] = true
		}
	}

	kept := make([]string, 0, len(all))

	for _, name := range all {
		if !remove[name] {
			kept = append(kept, name)
		}
	}

	return kept
}

// Matches returns the names in all selected by pattern, in original order.
func Matches(all []string, pattern string) []string {
	m := Compile(pattern)

	var out []string

	for _, name := range all {
		if m.Match(name) {
			out = append(out, name)
		}
	}

	return out
}

// Unmatched returns the patterns that select no name in all, deduplicated
// and in first-seen order.
func Unmatched(all, patterns []string) []string {
	seen := make(map[string]bool, len(patterns))

	var out []string

	for _, p := range patterns {
		if seen[p] {
			continue
		}

		seen[p] = true

		if len(Matches(all, p)) == 0 {
			out = append(out, p)
		}
	}

	return out
}
