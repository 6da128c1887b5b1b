// Package coverage rolls per-peptide predictions up into protein-level numbers.
package coverage

import "flyapp/internal/predict"

// Stats summarises an annotated digestion of one protein. Percentages are in
// [0, 100].
type Stats struct {
	TotalPeptides    int            `json:"total_peptides"`
	FlyerPeptides    int            `json:"flyer_peptides"`
	NonFlyerPeptides int            `json:"non_flyer_peptides"`
	FlyerPercentage  float64        `json:"flyer_percentage"`
	SequenceCoverage float64        `json:"sequence_coverage"`
	FlyerCoverage    float64        `json:"flyer_coverage"`
	NonFlyerCoverage float64        `json:"non_flyer_coverage"`
	ProteinLength    int            `json:"protein_length"`
	ClassCounts      map[string]int `json:"class_counts"`
}

// Aggregate computes Stats for protein from its annotated peptides. Residues
// covered by several peptides count once. Flyer and non-flyer coverage are
// computed independently and may overlap.
func Aggregate(protein string, peptides []predict.Annotated) Stats {
	n := len(protein)
	covered := make([]bool, n)
	flyer := make([]bool, n)
	nonFlyer := make([]bool, n)

	st := Stats{
		TotalPeptides: len(peptides),
		ProteinLength: n,
		ClassCounts:   make(map[string]int, len(predict.Classes)),
	}
	for _, label := range predict.Classes {
		st.ClassCounts[label] = 0
	}

	for _, p := range peptides {
		if p.IsFlyer {
			st.FlyerPeptides++
		}
		st.ClassCounts[p.Class]++
		for pos := max(p.Start, 0); pos < p.End && pos < n; pos++ {
			covered[pos] = true
			if p.IsFlyer {
				flyer[pos] = true
			} else {
				nonFlyer[pos] = true
			}
		}
	}
	st.NonFlyerPeptides = st.TotalPeptides - st.FlyerPeptides
	if st.TotalPeptides > 0 {
		st.FlyerPercentage = float64(st.FlyerPeptides) / float64(st.TotalPeptides) * 100
	}
	st.SequenceCoverage = percent(covered)
	st.FlyerCoverage = percent(flyer)
	st.NonFlyerCoverage = percent(nonFlyer)
	return st
}

func percent(mask []bool) float64 {
	if len(mask) == 0 {
		return 0
	}
	c := 0
	for _, b := range mask {
		if b {
			c++
		}
	}
	return float64(c) / float64(len(mask)) * 100
}
