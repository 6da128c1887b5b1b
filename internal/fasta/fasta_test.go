package fasta

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFastaSimple(t *testing.T) {
	input := ">Protein1\nMVLSPADK\n>Protein2 desc\nacdef\ngh\n"
	recs := ParseFasta(strings.NewReader(input))
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Header != "Protein1" || recs[0].Sequence != "MVLSPADK" {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}
	if recs[1].Header != "Protein2 desc" || recs[1].Sequence != "ACDEFGH" {
		t.Fatalf("unexpected second record: %+v", recs[1])
	}
	if recs[1].ID() != "Protein2" {
		t.Fatalf("ID() = %q", recs[1].ID())
	}
}

func TestParseFastaStripsSpaces(t *testing.T) {
	recs := ParseFasta(strings.NewReader(">p\r\nMV LS \r\nPA DK\r\n"))
	if len(recs) != 1 || recs[0].Sequence != "MVLSPADK" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestParseProtein(t *testing.T) {
	tests := []struct {
		name, in, id, seq string
	}{
		{"header", ">sp|P69905|HBA_HUMAN Hemoglobin\nMVLSPADK\nTNVK", "sp|P69905|HBA_HUMAN Hemoglobin", "MVLSPADKTNVK"},
		{"no header", "mvlspadk\ntnvk\n", UnknownID, "MVLSPADKTNVK"},
		{"padded", "\n  >x \n M V L \n", "x", "MVL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, seq := ParseProtein(tt.in)
			if id != tt.id || seq != tt.seq {
				t.Fatalf("ParseProtein = (%q, %q), want (%q, %q)", id, seq, tt.id, tt.seq)
			}
		})
	}
}

func TestFormatWraps(t *testing.T) {
	var buf bytes.Buffer
	if err := Format(&buf, "p1", "ACDEFGHIK", 4); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got := buf.String(); got != ">p1\nACDE\nFGHI\nK\n" {
		t.Fatalf("Format = %q", got)
	}
}
