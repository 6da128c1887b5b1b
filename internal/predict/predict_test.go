package predict

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"flyapp/internal/digest"
	"flyapp/internal/encode"
)

// tableClassifier answers from a fixed row per peptide and counts calls.
type tableClassifier struct {
	rows  map[string][]float64
	calls int
	seen  [][]int32
}

func (c *tableClassifier) Predict(_ context.Context, inputs [][]int32, _ int) ([][]float64, error) {
	c.calls++
	c.seen = inputs
	out := make([][]float64, len(inputs))
	for i, in := range inputs {
		out[i] = c.rows[encode.Decode(in)]
	}
	return out, nil
}

func TestBatchEmptyDoesNotCallClassifier(t *testing.T) {
	clf := &tableClassifier{}
	got, err := Batch(context.Background(), nil, clf, 40, 32)
	if err != nil || len(got) != 0 {
		t.Fatalf("Batch(nil) = %v, %v", got, err)
	}
	if clf.calls != 0 {
		t.Fatalf("classifier called %d times", clf.calls)
	}
}

func TestBatchAnnotates(t *testing.T) {
	peptides := digest.Digest("MVLSPADKTNVNAAWGK", 6, 40)
	clf := &tableClassifier{rows: map[string][]float64{
		"MVLSPADK":  {0.7, 0.1, 0.1, 0.1},
		"TNVNAAWGK": {0.1, 0.2, 0.3, 0.4},
	}}
	got, err := Batch(context.Background(), peptides, clf, 40, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clf.calls != 1 {
		t.Fatalf("expected one classifier call, got %d", clf.calls)
	}
	if len(clf.seen) != 2 || len(clf.seen[0]) != 40 {
		t.Fatalf("unexpected input shape: %d rows", len(clf.seen))
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Class != "Non-Flyer" || got[0].IsFlyer || got[0].ClassIndex != 0 {
		t.Fatalf("unexpected first prediction: %+v", got[0])
	}
	if got[1].Class != "Strong Flyer" || !got[1].IsFlyer || got[1].ClassIndex != 3 {
		t.Fatalf("unexpected second prediction: %+v", got[1])
	}
	if got[1].Start != 8 || got[1].End != 17 || got[1].Sequence != "TNVNAAWGK" {
		t.Fatalf("positional fields lost: %+v", got[1].Peptide)
	}
	for _, a := range got {
		if len(a.Probabilities) != 4 {
			t.Fatalf("expected 4 labels, got %v", a.Probabilities)
		}
		sum := 0.0
		for _, p := range a.Probabilities {
			sum += p
		}
		if math.Abs(sum-1) > 1e-3 {
			t.Fatalf("probabilities sum to %f", sum)
		}
	}
	if got[1].Probability(2) != 0.3 {
		t.Fatalf("Probability(2) = %f", got[1].Probability(2))
	}
}

func TestBatchMatchesSingleCalls(t *testing.T) {
	peptides := digest.Digest("MVLSPADKTNVKAAWGKVGAHAGEYGAEALERMFLSFPTTK", 1, 40)
	rows := map[string][]float64{}
	for i, p := range peptides {
		r := []float64{0.25, 0.25, 0.25, 0.25}
		r[i%4] += 0.1
		r[(i+1)%4] -= 0.1
		rows[p.Sequence] = r
	}
	clf := &tableClassifier{rows: rows}
	batch, err := Batch(context.Background(), peptides, clf, 40, 4)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	for i, p := range peptides {
		one, err := Single(context.Background(), p.Sequence, clf, 40)
		if err != nil {
			t.Fatalf("Single: %v", err)
		}
		if !reflect.DeepEqual(one.Prediction, batch[i].Prediction) {
			t.Fatalf("peptide %s: batch %+v, single %+v", p.Sequence, batch[i].Prediction, one.Prediction)
		}
	}
}

func TestArgmaxTiesGoLow(t *testing.T) {
	tests := []struct {
		row  []float64
		want int
	}{
		{[]float64{0.25, 0.25, 0.25, 0.25}, 0},
		{[]float64{0.1, 0.4, 0.4, 0.1}, 1},
		{[]float64{0, 0, 0.5, 0.5}, 2},
	}
	for _, tt := range tests {
		if got := Argmax(tt.row); got != tt.want {
			t.Errorf("Argmax(%v) = %d, want %d", tt.row, got, tt.want)
		}
	}
	p, err := NewPrediction([]float64{0.25, 0.25, 0.25, 0.25})
	if err != nil || p.IsFlyer {
		t.Fatalf("tied row must be a non-flyer: %+v, %v", p, err)
	}
}

func TestBatchPropagatesClassifierError(t *testing.T) {
	boom := errors.New("backend down")
	clf := ClassifierFunc(func(context.Context, [][]int32, int) ([][]float64, error) {
		return nil, boom
	})
	_, err := Batch(context.Background(), []digest.Peptide{{Sequence: "AAK", End: 3, Length: 3}}, clf, 40, 32)
	if err != boom {
		t.Fatalf("expected classifier error unmodified, got %v", err)
	}
}

func TestBatchShapeMismatch(t *testing.T) {
	peptides := []digest.Peptide{{Sequence: "AAK", End: 3, Length: 3}}
	short := ClassifierFunc(func(context.Context, [][]int32, int) ([][]float64, error) {
		return nil, nil
	})
	if _, err := Batch(context.Background(), peptides, short, 40, 32); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for missing rows, got %v", err)
	}
	narrow := ClassifierFunc(func(context.Context, [][]int32, int) ([][]float64, error) {
		return [][]float64{{1, 0}}, nil
	})
	if _, err := Batch(context.Background(), peptides, narrow, 40, 32); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for narrow row, got %v", err)
	}
}
