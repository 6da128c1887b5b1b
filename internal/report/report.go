// Package report renders analyses for people: the peptide summary table as
// CSV and the per-residue detectability map as HTML. It reads the annotated
// peptides as they are and adds no classification logic of its own.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"flyapp/internal/predict"
)

// Columns is the header of the summary table.
var Columns = []string{
	"Peptide", "Position", "Length", "Predicted Class",
	"Non-Flyer", "Weak Flyer", "Intermediate Flyer", "Strong Flyer", "Is Flyer",
}

// Row formats one peptide as a summary table row.
func Row(p predict.Annotated) []string {
	row := []string{
		p.Sequence,
		fmt.Sprintf("%d-%d", p.Start, p.End),
		strconv.Itoa(p.Length),
		p.Class,
	}
	for _, label := range predict.Classes {
		row = append(row, fmt.Sprintf("%.3f", p.Probabilities[label]))
	}
	flyer := "False"
	if p.IsFlyer {
		flyer = "True"
	}
	return append(row, flyer)
}

// WriteCSV writes the summary table for peptides. An empty list writes
// nothing.
func WriteCSV(w io.Writer, peptides []predict.Annotated) error {
	if len(peptides) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, p := range peptides {
		if err := cw.Write(Row(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FlyerFilter selects peptides by their flyer flag.
type FlyerFilter string

const (
	All          FlyerFilter = "all"
	FlyersOnly   FlyerFilter = "flyers"
	NonFlyerOnly FlyerFilter = "non-flyers"
)

// ParseFlyerFilter accepts the filter names used by the UI; anything else is All.
func ParseFlyerFilter(s string) FlyerFilter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flyers", "flyers only":
		return FlyersOnly
	case "non-flyers", "non-flyers only":
		return NonFlyerOnly
	default:
		return All
	}
}

// Filter keeps the peptides whose class is in classes (all classes when empty)
// and whose flyer flag matches f.
func Filter(peptides []predict.Annotated, classes []string, f FlyerFilter) []predict.Annotated {
	want := map[string]bool{}
	for _, c := range classes {
		want[c] = true
	}
	out := make([]predict.Annotated, 0, len(peptides))
	for _, p := range peptides {
		if len(want) > 0 && !want[p.Class] {
			continue
		}
		if f == FlyersOnly && !p.IsFlyer || f == NonFlyerOnly && p.IsFlyer {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Filename turns a protein id into a download file name with ext.
func Filename(proteinID, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', '|', ':', '"', '\'':
			return '_'
		}
		return r
	}, proteinID)
	if name == "" {
		name = "protein"
	}
	return name + "_detectability." + ext
}
