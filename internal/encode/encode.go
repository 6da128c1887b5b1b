// Package encode maps peptides to the fixed-width integer vectors the
// detectability classifier consumes.
//
// The residue order below is part of the contract with the trained model and
// must not change unless the model is retrained with it.
package encode

import (
	"fmt"
	"strings"
)

const (
	// DefaultMaxLen is the classifier's fixed input width.
	DefaultMaxLen = 40
	// Padding fills the tail of short peptides. Unknown residues share it.
	Padding int32 = 0
)

var aaToInt = map[rune]int32{
	'0': 0, 'A': 1, 'C': 2, 'D': 3, 'E': 4, 'F': 5,
	'G': 6, 'H': 7, 'I': 8, 'K': 9, 'L': 10, 'M': 11,
	'N': 12, 'P': 13, 'Q': 14, 'R': 15, 'S': 16,
	'T': 17, 'V': 18, 'W': 19, 'Y': 20,
}

var intToAA = func() map[int32]rune {
	m := make(map[int32]rune, len(aaToInt))
	for r, v := range aaToInt {
		if v != Padding {
			m[v] = r
		}
	}
	return m
}()

// Code returns the integer for residue r, or Padding when r is not one of the
// 20 amino acids.
func Code(r rune) int32 {
	return aaToInt[r]
}

// Encode upper-cases peptide and returns exactly maxLen codes: right-padded
// with Padding when shorter, right-truncated when longer. Unrecognised
// residues encode to Padding. maxLen <= 0 means DefaultMaxLen.
func Encode(peptide string, maxLen int) []int32 {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	out := make([]int32, maxLen)
	i := 0
	for _, r := range strings.ToUpper(peptide) {
		if i == maxLen {
			break
		}
		out[i] = aaToInt[r]
		i++
	}
	return out
}

// EncodeStrict is Encode but rejects residues outside the table instead of
// mapping them to Padding.
func EncodeStrict(peptide string, maxLen int) ([]int32, error) {
	for i, r := range strings.ToUpper(peptide) {
		if v, ok := aaToInt[r]; !ok || v == Padding {
			return nil, fmt.Errorf("unrecognised residue %q at position %d", r, i)
		}
	}
	return Encode(peptide, maxLen), nil
}

// Decode maps codes back to residues, stopping at the first Padding.
func Decode(codes []int32) string {
	var b strings.Builder
	for _, c := range codes {
		r, ok := intToAA[c]
		if !ok {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
