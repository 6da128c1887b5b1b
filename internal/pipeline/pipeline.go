// Package pipeline chains validation, digestion, prediction and coverage for
// one or many proteins. Proteins are independent; the only shared resource is
// the classifier, which is passed in by the caller and only read.
package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"flyapp/internal/coverage"
	"flyapp/internal/digest"
	"flyapp/internal/encode"
	"flyapp/internal/fasta"
	"flyapp/internal/predict"
	"flyapp/internal/protein"
)

// Options controls one analysis.
type Options struct {
	MinLength int    `json:"min_length"`
	MaxLength int    `json:"max_length"`
	MaxLen    int    `json:"max_len"`
	BatchSize int    `json:"batch_size"`
	Enzyme    string `json:"enzyme"` // digest.Rules key; empty means trypsin
}

// DefaultOptions mirrors the web form defaults.
func DefaultOptions() Options {
	return Options{
		MinLength: 6,
		MaxLength: 40,
		MaxLen:    encode.DefaultMaxLen,
		BatchSize: predict.DefaultBatchSize,
		Enzyme:    digest.Trypsin.Name,
	}
}

// Analysis is the result of running one protein through the pipeline.
type Analysis struct {
	ID        string              `json:"id"`
	ProteinID string              `json:"protein_id"`
	Sequence  string              `json:"sequence"`
	Options   Options             `json:"options"`
	Peptides  []predict.Annotated `json:"peptides"`
	Stats     coverage.Stats      `json:"stats"`
	CreatedAt time.Time           `json:"created_at"`
}

// ValidationError reports a protein sequence rejected before digestion.
type ValidationError struct {
	ProteinID string
	Msg       string
}

func (e *ValidationError) Error() string {
	if e.ProteinID == "" {
		return "invalid sequence: " + e.Msg
	}
	return "invalid sequence " + e.ProteinID + ": " + e.Msg
}

// Digest validates sequence and returns its peptides without predicting.
func Digest(sequence string, opts Options) ([]digest.Peptide, error) {
	if ok, msg := protein.Validate(sequence); !ok {
		return nil, &ValidationError{Msg: msg}
	}
	rule := digest.Trypsin
	if opts.Enzyme != "" {
		r, err := digest.Lookup(opts.Enzyme)
		if err != nil {
			return nil, err
		}
		rule = r
	}
	return rule.Digest(sequence, opts.MinLength, opts.MaxLength), nil
}

// Analyze validates, digests, predicts and aggregates one protein. A protein
// with no peptides in range yields an Analysis with empty Peptides and zero
// counts. Classifier errors are returned unchanged.
func Analyze(ctx context.Context, clf predict.Classifier, proteinID, sequence string, opts Options) (*Analysis, error) {
	sequence = protein.Normalize(sequence)
	peptides, err := Digest(sequence, opts)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.ProteinID = proteinID
		}
		return nil, err
	}
	annotated, err := predict.Batch(ctx, peptides, clf, opts.MaxLen, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	if annotated == nil {
		annotated = []predict.Annotated{}
	}
	if opts.Enzyme == "" {
		opts.Enzyme = digest.Trypsin.Name
	}
	return &Analysis{
		ProteinID: proteinID,
		Sequence:  sequence,
		Options:   opts,
		Peptides:  annotated,
		Stats:     coverage.Aggregate(sequence, annotated),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// AnalyzeAll runs Analyze over records with up to concurrency proteins in
// flight. Results keep the order of records. The first error stops the
// remaining work and is returned.
func AnalyzeAll(ctx context.Context, clf predict.Classifier, records []fasta.FastaRecord, opts Options, concurrency int) ([]*Analysis, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	out := make([]*Analysis, len(records))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, rec := range records {
		g.Go(func() error {
			a, err := Analyze(ctx, clf, rec.Header, rec.Sequence, opts)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
