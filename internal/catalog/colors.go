package catalog

import (
	"sort"
	"strings"
)

// SplitColors turns a comma separated color list into trimmed, lower-cased tokens.
func SplitColors(colors string) []string {
	var out []string
	for _, c := range strings.Split(colors, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// ColorKey is the canonical form of a color set: sorted, de-duplicated tokens.
// Two prices with the same key compete for the same active slot.
func ColorKey(colors string) string {
	tokens := SplitColors(colors)
	sort.Strings(tokens)

	uniq := tokens[:0]
	for i, t := range tokens {
		if i > 0 && tokens[i-1] == t {
			continue
		}
		uniq = append(uniq, t)
	}
	return strings.Join(uniq, ",")
}

// MatchesColor reports whether color appears in the comma separated list.
func MatchesColor(colors, color string) bool {
	want := strings.ToLower(strings.TrimSpace(color))
	if want == "" {
		return false
	}
	for _, c := range SplitColors(colors) {
		if c == want {
			return true
		}
	}
	return false
}
