// Package classifier talks to the served detectability model over the
// TensorFlow Serving REST API. The model itself is opaque: rows of encoded
// residues go in, four class probabilities per row come out.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flyapp/internal/encode"
	"flyapp/internal/predict"
)

// Client is a predict.Classifier backed by a model server. It holds no
// mutable state after construction and is safe for concurrent use.
type Client struct {
	BaseURL string // e.g. http://localhost:8501
	Model   string // served model name
	HTTP    *http.Client
	// MaxAttempts bounds retries on 429/503 responses.
	MaxAttempts int
	// Backoff is the wait before a retry when the server sends no Retry-After.
	Backoff time.Duration
}

var _ predict.Classifier = (*Client)(nil)

// New returns a Client for model at baseURL with the given request timeout.
func New(baseURL, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Model:       model,
		HTTP:        &http.Client{Timeout: timeout},
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
	}
}

type predictRequest struct {
	Instances [][]int32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

// Predict posts inputs in chunks of batchSize rows and concatenates the
// returned probability rows in input order.
func (c *Client) Predict(ctx context.Context, inputs [][]int32, batchSize int) ([][]float64, error) {
	if batchSize <= 0 {
		batchSize = predict.DefaultBatchSize
	}
	out := make([][]float64, 0, len(inputs))
	for i := 0; i < len(inputs); i += batchSize {
		end := min(i+batchSize, len(inputs))
		rows, err := c.predictChunk(ctx, inputs[i:end])
		if err != nil {
			return nil, err
		}
		if len(rows) != end-i {
			return nil, fmt.Errorf("%w: model returned %d rows for %d inputs", predict.ErrShape, len(rows), end-i)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (c *Client) predictChunk(ctx context.Context, chunk [][]int32) ([][]float64, error) {
	body, err := json.Marshal(predictRequest{Instances: chunk})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1/models/%s:predict", c.BaseURL, c.Model)
	data, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	var resp predictResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("model error: %s", resp.Error)
	}
	return resp.Predictions, nil
}

// do sends the request, retrying on 429 and 503 and honoring Retry-After.
func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
			return nil, fmt.Errorf("model server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
		}
		lastErr = fmt.Errorf("model server returned %s", resp.Status)
		if attempt == attempts {
			break
		}
		wait := time.Duration(attempt) * c.Backoff
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// ModelStatus mirrors the model status endpoint response.
type ModelStatus struct {
	Versions []struct {
		Version string `json:"version"`
		State   string `json:"state"`
		Status  struct {
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	} `json:"model_version_status"`
}

// Available reports whether any served version is AVAILABLE.
func (s ModelStatus) Available() bool {
	for _, v := range s.Versions {
		if v.State == "AVAILABLE" {
			return true
		}
	}
	return false
}

// Status queries the model status endpoint.
func (c *Client) Status(ctx context.Context) (ModelStatus, error) {
	var st ModelStatus
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/v1/models/%s", c.BaseURL, c.Model), nil)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to parse status response: %w", err)
	}
	return st, nil
}

// Info describes the served model.
type Info struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Classes      []string `json:"classes"`
	InputLength  int      `json:"input_length"`
	Architecture string   `json:"architecture"`
	Endpoint     string   `json:"endpoint"`
}

// Info returns static metadata for the model behind c.
func (c *Client) Info() Info {
	return Info{
		Name:         "Peptide Detectability Predictor",
		Version:      "1.0",
		Description:  "Predicts whether peptides are detectable by mass spectrometry",
		Classes:      predict.Classes[:],
		InputLength:  encode.DefaultMaxLen,
		Architecture: "Bidirectional GRU with Attention",
		Endpoint:     fmt.Sprintf("%s/v1/models/%s", c.BaseURL, c.Model),
	}
}
