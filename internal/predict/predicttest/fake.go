// Package predicttest provides a deterministic stand-in for the served model.
package predicttest

import (
	"context"
	"sync/atomic"
)

// Classifier puts 0.7 on class (first code of the row mod 4) and 0.1 on the
// others, so any peptide starting with a residue whose code is a multiple of
// four is a non-flyer. Err, when set, is returned from every call.
type Classifier struct {
	Err   error
	calls atomic.Int64
	rows  atomic.Int64
}

func (c *Classifier) Predict(ctx context.Context, inputs [][]int32, _ int) ([][]float64, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.rows.Add(int64(len(inputs)))
	out := make([][]float64, len(inputs))
	for i, in := range inputs {
		row := []float64{0.1, 0.1, 0.1, 0.1}
		k := 0
		if len(in) > 0 {
			k = int(in[0]) % 4
		}
		row[k] = 0.7
		out[i] = row
	}
	return out, nil
}

// Calls reports how many times Predict was invoked.
func (c *Classifier) Calls() int { return int(c.calls.Load()) }

// Rows reports how many input rows were classified.
func (c *Classifier) Rows() int { return int(c.rows.Load()) }
