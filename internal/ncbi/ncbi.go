package ncbi

// Package ncbi fetches protein sequences from NCBI E-utilities by accession
// and keeps a JSON file cache of the results.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"flyapp/internal/fasta"
)

var (
	ErrEmptyAccession = errors.New("empty accession")
	ErrNotFound       = errors.New("not found")
)

// StatusError is a non-retried efetch response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ncbi efetch returned status %d: %s", e.StatusCode, e.Body)
}

// IsClientError reports whether err was caused by the accession itself
// rather than by the network or NCBI.
func IsClientError(err error) bool {
	if errors.Is(err, ErrEmptyAccession) || errors.Is(err, ErrNotFound) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// httpClient performs requests; tests may replace it with a mock transport.
var httpClient = &http.Client{Timeout: 20 * time.Second}

// efetchBase is the E-utilities efetch endpoint; tests may point it elsewhere.
var efetchBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"

// Cache structures
type cachedEntry struct {
	Header      string `json:"header"`
	Sequence    string `json:"sequence"`
	RetrievedAt int64  `json:"retrieved_at"`
}

var (
	cacheMu       sync.RWMutex
	cache         map[string]cachedEntry
	cacheLoaded   bool
	cacheFilePath string
	cacheTTLSecs  int64 = 7 * 24 * 3600
	apiKey        string
)

// SetCacheFilePath sets where the cache is persisted. It must be called before
// the first fetch to take effect.
func SetCacheFilePath(p string) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cacheFilePath = p
}

// SetCacheTTLSeconds sets the maximum age of cached entries; 0 disables expiry.
func SetCacheTTLSeconds(secs int64) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cacheTTLSecs = secs
}

// SetAPIKey sets the E-utilities API key sent with every request.
func SetAPIKey(k string) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	apiKey = k
}

func defaultCachePath() string {
	if cacheFilePath != "" {
		return cacheFilePath
	}
	if dir, err := os.UserCacheDir(); err == nil {
		p := filepath.Join(dir, "flyapp")
		_ = os.MkdirAll(p, 0o755)
		return filepath.Join(p, "ncbi_cache.json")
	}
	return filepath.Join(os.TempDir(), "flyapp_ncbi_cache.json")
}

func loadCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cacheLoaded {
		return
	}
	cache = make(map[string]cachedEntry)
	data, err := os.ReadFile(defaultCachePath())
	if err == nil {
		_ = json.Unmarshal(data, &cache)
	}
	cacheLoaded = true
}

// FlushCache writes the in-memory cache to disk.
func FlushCache() error {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if !cacheLoaded {
		return nil
	}
	b, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(defaultCachePath(), b, 0o644)
}

func getCached(acc string) (fasta.FastaRecord, bool) {
	loadCache()
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	e, ok := cache[acc]
	if !ok {
		return fasta.FastaRecord{}, false
	}
	if cacheTTLSecs > 0 && time.Now().Unix()-e.RetrievedAt > cacheTTLSecs {
		return fasta.FastaRecord{}, false
	}
	return fasta.FastaRecord{Header: e.Header, Sequence: e.Sequence}, true
}

func setCached(acc string, rec fasta.FastaRecord) {
	if acc == "" || rec.Sequence == "" {
		return
	}
	loadCache()
	cacheMu.Lock()
	cache[acc] = cachedEntry{Header: rec.Header, Sequence: rec.Sequence, RetrievedAt: time.Now().Unix()}
	cacheMu.Unlock()
}

// FetchProtein returns the protein record for accession, from cache when fresh.
func FetchProtein(ctx context.Context, accession string) (fasta.FastaRecord, error) {
	accession = strings.TrimSpace(accession)
	if accession == "" {
		return fasta.FastaRecord{}, ErrEmptyAccession
	}
	m, err := FetchProteins(ctx, []string{accession})
	if err != nil {
		return fasta.FastaRecord{}, err
	}
	rec, ok := m[accession]
	if !ok {
		return fasta.FastaRecord{}, fmt.Errorf("accession %s %w", accession, ErrNotFound)
	}
	return rec, nil
}

// batchSize bounds the ids sent per efetch request.
const batchSize = 20

// FetchProteins resolves many accessions, sending the cache misses in
// batches of up to batchSize ids, at most three requests in flight. Accessions
// absent from the response are missing from the returned map.
func FetchProteins(ctx context.Context, accessions []string) (map[string]fasta.FastaRecord, error) {
	out := make(map[string]fasta.FastaRecord, len(accessions))
	var missing []string
	for _, acc := range accessions {
		if rec, ok := getCached(acc); ok {
			out[acc] = rec
			continue
		}
		missing = append(missing, acc)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(3) // NCBI allows 3 requests/s without a key
	for i := 0; i < len(missing); i += batchSize {
		batch := missing[i:min(i+batchSize, len(missing))]
		g.Go(func() error {
			recs, err := efetch(ctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, acc := range batch {
				for _, rec := range recs {
					if matchAccession(rec.Header, acc) {
						out[acc] = rec
						setCached(acc, rec)
						break
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// matchAccession reports whether a FASTA header belongs to acc. Headers are
// either "ACC.v description" or UniProt-style "sp|ACC|NAME description".
func matchAccession(header, acc string) bool {
	tok := header
	if f := strings.Fields(header); len(f) > 0 {
		tok = f[0]
	}
	if tok == acc || strings.HasPrefix(tok, acc+".") {
		return true
	}
	for _, part := range strings.Split(tok, "|") {
		if part == acc || strings.HasPrefix(part, acc+".") {
			return true
		}
	}
	return false
}

func efetch(ctx context.Context, ids []string) ([]fasta.FastaRecord, error) {
	q := url.Values{}
	q.Set("db", "protein")
	q.Set("id", strings.Join(ids, ","))
	q.Set("rettype", "fasta")
	q.Set("retmode", "text")
	cacheMu.RLock()
	if apiKey != "" {
		q.Set("api_key", apiKey)
	}
	cacheMu.RUnlock()
	reqURL := efetchBase + "?" + q.Encode()

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "flyapp-fetcher/1.0")
		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			if !sleep(ctx, time.Duration(attempt*300)*time.Millisecond) {
				return nil, ctx.Err()
			}
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			return fasta.ParseFasta(strings.NewReader(string(data))), nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("ncbi efetch returned 429")
			wait := time.Duration(attempt*500) * time.Millisecond
			if s := resp.Header.Get("Retry-After"); s != "" {
				if secs, err := strconv.Atoi(s); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			if !sleep(ctx, wait) {
				return nil, ctx.Err()
			}
		default:
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
	}
	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
