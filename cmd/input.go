package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"flyapp/internal/fasta"
	"flyapp/internal/ncbi"
	"flyapp/internal/protein"
)

// source names where the proteins for one invocation come from. Any
// combination may be set; records keep the order sequence, file, accessions.
type source struct {
	path       string
	sequence   string
	id         string
	accessions []string
}

func (s source) empty() bool {
	return s.path == "" && s.sequence == "" && len(s.accessions) == 0
}

// readRecords parses FASTA text. Input without any header is treated as a
// single unnamed protein.
func readRecords(r io.Reader) ([]fasta.FastaRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := string(data)
	if recs := fasta.ParseFasta(strings.NewReader(text)); len(recs) > 0 {
		return recs, nil
	}
	id, seq := fasta.ParseProtein(text)
	if seq == "" {
		return nil, nil
	}
	return []fasta.FastaRecord{{Header: id, Sequence: seq}}, nil
}

func (a *app) loadRecords(ctx context.Context, stdin io.Reader, src source) ([]fasta.FastaRecord, error) {
	if src.empty() {
		return nil, fmt.Errorf("no input: pass a FASTA file, --sequence or --accession")
	}
	var records []fasta.FastaRecord
	if src.sequence != "" {
		id := src.id
		if id == "" {
			id = fasta.UnknownID
		}
		records = append(records, fasta.FastaRecord{Header: id, Sequence: protein.Normalize(src.sequence)})
	}
	if src.path != "" {
		var r io.Reader = stdin
		if src.path != "-" {
			f, err := os.Open(src.path)
			if err != nil {
				return nil, fmt.Errorf("failed to read input fasta: %w", err)
			}
			defer f.Close()
			r = f
		}
		recs, err := readRecords(r)
		if err != nil {
			return nil, err
		}
		a.logger.Info("parsed fasta", "path", src.path, "records", len(recs))
		records = append(records, recs...)
	}
	if len(src.accessions) > 0 {
		a.logger.Info("fetching proteins from ncbi", "accessions", len(src.accessions))
		got, err := ncbi.FetchProteins(ctx, src.accessions)
		if err != nil {
			return nil, fmt.Errorf("ncbi lookup: %w", err)
		}
		for _, acc := range src.accessions {
			rec, ok := got[acc]
			if !ok {
				a.logger.Warn("accession not found", "accession", acc)
				continue
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// validRecords drops records whose sequence fails validation, logging why.
func (a *app) validRecords(records []fasta.FastaRecord) []fasta.FastaRecord {
	out := records[:0:0]
	for _, rec := range records {
		if ok, msg := protein.Validate(protein.Normalize(rec.Sequence)); !ok {
			a.logger.Warn("skipping protein", "id", rec.ID(), "reason", msg)
			continue
		}
		out = append(out, rec)
	}
	return out
}
