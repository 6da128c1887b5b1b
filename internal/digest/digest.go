// Package digest performs in-silico enzymatic digestion of protein sequences.
// It does not validate the alphabet; callers run protein.Validate first.
package digest

import (
	"fmt"
	"sort"
	"strings"
)

// Peptide is a contiguous fragment of a protein. Start is inclusive and End
// exclusive, both offsets into the parent sequence.
type Peptide struct {
	Sequence string `json:"sequence"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Length   int    `json:"length"`
}

// Rule is a cleavage specificity: the enzyme cuts after any residue in Cleave
// unless the next residue is Block. A zero Block never suppresses a cut.
type Rule struct {
	Name   string
	Cleave string
	Block  byte
}

// Trypsin cleaves after K or R, except before P.
var Trypsin = Rule{Name: "trypsin", Cleave: "KR", Block: 'P'}

// Rules are the enzymes known by name. The detectability model was trained on
// tryptic peptides only.
var Rules = map[string]Rule{
	"trypsin": Trypsin,
	"lys-c":   {Name: "lys-c", Cleave: "K", Block: 'P'},
	"arg-c":   {Name: "arg-c", Cleave: "R", Block: 'P'},
}

// Lookup returns the rule registered under name (case-insensitive).
func Lookup(name string) (Rule, error) {
	r, ok := Rules[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Rule{}, fmt.Errorf("unknown enzyme %q", name)
	}
	return r, nil
}

// Names returns the registered rule names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Rules))
	for n := range Rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// String renders the rule as "<residues>|not before <block>".
func (r Rule) String() string {
	if r.Block == 0 {
		return r.Cleave + "|"
	}
	return fmt.Sprintf("%s|not before %c", r.Cleave, r.Block)
}

// Sites returns the cut offsets of sequence in ascending order, including 0
// and len(sequence), without duplicates. An offset is the position right after
// a cleaved residue.
func (r Rule) Sites(sequence string) []int {
	sites := []int{0}
	for i := 0; i < len(sequence); i++ {
		if strings.IndexByte(r.Cleave, sequence[i]) < 0 {
			continue
		}
		if r.Block != 0 && i+1 < len(sequence) && sequence[i+1] == r.Block {
			continue
		}
		if off := i + 1; off != sites[len(sites)-1] {
			sites = append(sites, off)
		}
	}
	if len(sequence) != sites[len(sites)-1] {
		sites = append(sites, len(sequence))
	}
	return sites
}

// Digest partitions sequence at the rule's sites and keeps the fragments whose
// length lies in [minLength, maxLength], in ascending position order.
func (r Rule) Digest(sequence string, minLength, maxLength int) []Peptide {
	if sequence == "" {
		return nil
	}
	sites := r.Sites(sequence)
	var peptides []Peptide
	for i := 0; i+1 < len(sites); i++ {
		start, end := sites[i], sites[i+1]
		n := end - start
		if n < minLength || n > maxLength {
			continue
		}
		peptides = append(peptides, Peptide{
			Sequence: sequence[start:end],
			Start:    start,
			End:      end,
			Length:   n,
		})
	}
	return peptides
}

// Digest runs a trypsin digestion of sequence.
func Digest(sequence string, minLength, maxLength int) []Peptide {
	return Trypsin.Digest(sequence, minLength, maxLength)
}
