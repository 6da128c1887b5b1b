package ncbi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"flyapp/internal/fasta"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func reply(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: make(http.Header)}
}

// resetCache points the cache at a temp file so tests are hermetic.
func resetCache(t *testing.T) {
	t.Helper()
	cacheFilePath = filepath.Join(t.TempDir(), "ncbi_cache.json")
	cache = nil
	cacheLoaded = false
	cacheTTLSecs = 7 * 24 * 3600
}

const hbaFasta = `>sp|P69905|HBA_HUMAN Hemoglobin subunit alpha OS=Homo sapiens
MVLSPADKTNVKAAWGKVGAHAGEYGAEALERMFLSFPTTKTYFPHFDLSHGSAQVKGH
GKKVADALTNAVAHVDDMPNALSALSDLHAHKLRVDPVNFKLLSHCLLVTLAAHLPAEF
TPAVHASLDKFLASVSTVLTSKYR
`

func TestFetchProteinUsesCache(t *testing.T) {
	resetCache(t)
	var calls int32
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("db") != "protein" || r.URL.Query().Get("rettype") != "fasta" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		return reply(200, hbaFasta), nil
	})}

	rec, err := FetchProtein(context.Background(), "P69905")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(rec.Sequence, "MVLSPADK") || len(rec.Sequence) != 142 {
		t.Fatalf("unexpected sequence %q (%d)", rec.Sequence, len(rec.Sequence))
	}

	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatalf("HTTP should not be called on cached fetch")
		return nil, nil
	})}
	rec2, err := FetchProtein(context.Background(), "P69905")
	if err != nil || rec2.Sequence != rec.Sequence {
		t.Fatalf("cached fetch = %+v, %v", rec2, err)
	}
	if calls != 1 {
		t.Fatalf("expected one request, got %d", calls)
	}

	if err := FlushCache(); err != nil {
		t.Fatalf("FlushCache: %v", err)
	}
	if _, err := os.Stat(cacheFilePath); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
}

func TestFetchProteinsBatchMapping(t *testing.T) {
	resetCache(t)
	body := ">NP_000788.2 dopamine receptor\nMGNRSTADADGLLAGRGPAAGASAGASAGLAGQGAAALVGGVLLIGAVLAGNSLVCVSVATERALQTPTNSFIVSLAAADLLLALLVLPLFVYSEVQGGAWLLSPRLCDALMAMDVMLCTASIFNLCAISVDRFVAVAVPLRYNRQGGSRRQLLLIGATWLLSAAVAAPVLCGLNDVRGRDPAVCRLEDRDYVVYSSVCSFFLPCPLMLLLYWATFRGLQRWEVARRAKLHGRAPRRPSGPGPPSPTPPAPRLPQDPCGPDCAPPAPGLPRGPCGPDCAPAAPSLPQDPCGPDCAPPAPGLPPDPCGSNCAPPDAVRAAALPPQTPPQTRRRRRAKITGRERKAMRVLPVVVGAFLLCWTPFFVVHITQALCPACSVPPRLVSAVTWLGYVNSALNPVIYTVFNAEFRNVFRKALRACC\n>XP_1 other\nACDEFGHIK\n"
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if got := r.URL.Query().Get("id"); got != "NP_000788,XP_1,MISSING" {
			t.Errorf("unexpected id list %q", got)
		}
		return reply(200, body), nil
	})}

	got, err := FetchProteins(context.Background(), []string{"NP_000788", "XP_1", "MISSING"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["XP_1"].Sequence != "ACDEFGHIK" {
		t.Fatalf("XP_1 = %+v", got["XP_1"])
	}
	if !strings.HasPrefix(got["NP_000788"].Sequence, "MGNRSTAD") {
		t.Fatalf("NP_000788 = %+v", got["NP_000788"])
	}
	if _, ok := got["MISSING"]; ok {
		t.Fatalf("MISSING should not resolve")
	}
}

// FetchProteins retries on 429 and honors the Retry-After header.
func TestFetchProteinsRetryAndRetryAfter(t *testing.T) {
	resetCache(t)
	calls := 0
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			resp := reply(429, "")
			resp.Header.Set("Retry-After", "1")
			return resp, nil
		}
		return reply(200, ">RACC.1\nRRR\n"), nil
	})}

	start := time.Now()
	got, err := FetchProteins(context.Background(), []string{"RACC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["RACC"].Sequence != "RRR" {
		t.Fatalf("expected RACC->RRR, got %v", got)
	}
	if time.Since(start) < time.Second {
		t.Fatalf("expected at least 1s wait due to Retry-After, elapsed %v", time.Since(start))
	}
}

func TestFetchProteinErrorStatus(t *testing.T) {
	resetCache(t)
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return reply(400, "bad id"), nil
	})}
	if _, err := FetchProtein(context.Background(), "???"); err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
	if _, err := FetchProtein(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty accession")
	}
}

// Expired entries should not be returned.
func TestCacheTTLExpiry(t *testing.T) {
	resetCache(t)
	cache = map[string]cachedEntry{"OLDACC": {Sequence: "OLD", RetrievedAt: time.Now().Unix() - 100000}}
	cacheLoaded = true
	SetCacheTTLSeconds(1)

	if rec, ok := getCached("OLDACC"); ok || rec != (fasta.FastaRecord{}) {
		t.Fatalf("expected OLDACC to be expired, got %v (ok=%v)", rec, ok)
	}
	SetCacheTTLSeconds(0)
	if _, ok := getCached("OLDACC"); !ok {
		t.Fatalf("TTL 0 should disable expiry")
	}
}

func TestMatchAccession(t *testing.T) {
	tests := []struct {
		header, acc string
		want        bool
	}{
		{"NP_000788.2 dopamine receptor", "NP_000788", true},
		{"NP_000788.2 dopamine receptor", "NP_000788.2", true},
		{"sp|P69905|HBA_HUMAN Hemoglobin", "P69905", true},
		{"NP_0007881.1 other", "NP_000788", false},
		{"XP_1 x", "XP_2", false},
	}
	for _, tt := range tests {
		if got := matchAccession(tt.header, tt.acc); got != tt.want {
			t.Errorf("matchAccession(%q, %q) = %v", tt.header, tt.acc, got)
		}
	}
}

func TestIsClientError(t *testing.T) {
	resetCache(t)
	status := 400
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return reply(status, "boom"), nil
	})}
	_, err := FetchProtein(context.Background(), "BADACC")
	if !IsClientError(err) {
		t.Fatalf("400 should be a client error: %v", err)
	}
	status = 500
	_, err = FetchProtein(context.Background(), "BADACC")
	if err == nil || IsClientError(err) {
		t.Fatalf("500 should not be a client error: %v", err)
	}

	status = 200
	_, err = FetchProtein(context.Background(), "NOPE")
	if !errors.Is(err, ErrNotFound) || !IsClientError(err) || err.Error() != "accession NOPE not found" {
		t.Fatalf("unexpected missing accession error: %v", err)
	}
	if _, err := FetchProtein(context.Background(), " "); !errors.Is(err, ErrEmptyAccession) {
		t.Fatalf("expected ErrEmptyAccession, got %v", err)
	}
	if IsClientError(errors.New("dial tcp: connection refused")) {
		t.Fatalf("transport errors are not client errors")
	}
}
