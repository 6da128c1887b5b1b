package protein

// Package protein holds the amino-acid alphabet and sequence validation used
// before a protein is digested.

import (
	"sort"
	"strings"
)

// Alphabet lists the 20 standard amino acids accepted by the pipeline.
const Alphabet = "ACDEFGHIKLMNPQRSTVWY"

// Normalize upper-cases s and drops whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Validate reports whether sequence uses only the standard amino acids.
// When it does not, msg lists the offending characters sorted and comma-joined.
// Invalid characters are reported before emptiness.
func Validate(sequence string) (ok bool, msg string) {
	seen := map[rune]bool{}
	var invalid []string
	for _, r := range strings.ToUpper(sequence) {
		if strings.ContainsRune(Alphabet, r) || seen[r] {
			continue
		}
		seen[r] = true
		invalid = append(invalid, string(r))
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return false, "Invalid characters found: " + strings.Join(invalid, ", ")
	}
	if len(sequence) == 0 {
		return false, "Sequence is empty"
	}
	return true, ""
}
