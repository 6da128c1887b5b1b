// Package predict runs the detectability classifier over digested peptides
// and attaches a class to each of them.
package predict

import (
	"context"
	"errors"
	"fmt"

	"flyapp/internal/digest"
	"flyapp/internal/encode"
)

// Classes are the detectability labels in classifier output order. Index 0
// is the only non-flyer class.
var Classes = [4]string{"Non-Flyer", "Weak Flyer", "Intermediate Flyer", "Strong Flyer"}

// DefaultBatchSize is the batch size handed to the classifier.
const DefaultBatchSize = 32

// ErrShape reports a classifier response that does not line up with its input.
var ErrShape = errors.New("classifier output shape mismatch")

// Classifier maps encoded peptides (one row of width maxLen each) to one
// probability row per input, in Classes order. Implementations must be safe
// for concurrent use.
type Classifier interface {
	Predict(ctx context.Context, inputs [][]int32, batchSize int) ([][]float64, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, inputs [][]int32, batchSize int) ([][]float64, error)

func (f ClassifierFunc) Predict(ctx context.Context, inputs [][]int32, batchSize int) ([][]float64, error) {
	return f(ctx, inputs, batchSize)
}

// Prediction is the classifier verdict for one peptide.
type Prediction struct {
	Class         string             `json:"predicted_class"`
	ClassIndex    int                `json:"predicted_class_index"`
	Probabilities map[string]float64 `json:"probabilities"`
	IsFlyer       bool               `json:"is_flyer"`
}

// Annotated is a peptide together with its prediction.
type Annotated struct {
	digest.Peptide
	Prediction
}

// Probability returns the probability recorded for class index i.
func (a Annotated) Probability(i int) float64 {
	return a.Probabilities[Classes[i]]
}

// Argmax returns the index of the largest value; ties go to the lowest index.
func Argmax(row []float64) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// NewPrediction builds a Prediction from one probability row.
func NewPrediction(row []float64) (Prediction, error) {
	if len(row) != len(Classes) {
		return Prediction{}, fmt.Errorf("%w: got %d probabilities, want %d", ErrShape, len(row), len(Classes))
	}
	idx := Argmax(row)
	probs := make(map[string]float64, len(Classes))
	for i, label := range Classes {
		probs[label] = row[i]
	}
	return Prediction{
		Class:         Classes[idx],
		ClassIndex:    idx,
		Probabilities: probs,
		IsFlyer:       idx > 0,
	}, nil
}

// Batch encodes every peptide, calls clf once for the whole set and returns
// the annotated peptides in input order. An empty input returns nil without
// calling clf. Errors from clf are returned as is.
func Batch(ctx context.Context, peptides []digest.Peptide, clf Classifier, maxLen, batchSize int) ([]Annotated, error) {
	if len(peptides) == 0 {
		return nil, nil
	}
	if maxLen <= 0 {
		maxLen = encode.DefaultMaxLen
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	inputs := make([][]int32, len(peptides))
	for i, p := range peptides {
		inputs[i] = encode.Encode(p.Sequence, maxLen)
	}

	rows, err := clf.Predict(ctx, inputs, batchSize)
	if err != nil {
		return nil, err
	}
	if len(rows) != len(peptides) {
		return nil, fmt.Errorf("%w: got %d rows for %d peptides", ErrShape, len(rows), len(peptides))
	}

	out := make([]Annotated, len(peptides))
	for i, p := range peptides {
		pred, err := NewPrediction(rows[i])
		if err != nil {
			return nil, fmt.Errorf("peptide %d (%s): %w", i, p.Sequence, err)
		}
		out[i] = Annotated{Peptide: p, Prediction: pred}
	}
	return out, nil
}

// Single predicts one peptide sequence.
func Single(ctx context.Context, sequence string, clf Classifier, maxLen int) (Annotated, error) {
	p := digest.Peptide{Sequence: sequence, End: len(sequence), Length: len(sequence)}
	res, err := Batch(ctx, []digest.Peptide{p}, clf, maxLen, 1)
	if err != nil {
		return Annotated{}, err
	}
	return res[0], nil
}
