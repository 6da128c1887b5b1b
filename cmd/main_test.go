package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flyapp/internal/logging"
	"flyapp/internal/pipeline"
	"flyapp/internal/predict/predicttest"

	"github.com/charmbracelet/log"
)

// modelServer answers predict requests with the deterministic fake model.
func modelServer(t *testing.T) *httptest.Server {
	t.Helper()
	fake := &predicttest.Classifier{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"model_version_status":[{"version":"1","state":"AVAILABLE"}]}`))
			return
		}
		var req struct {
			Instances [][]int32 `json:"instances"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out, _ := fake.Predict(context.Background(), req.Instances, len(req.Instances))
		json.NewEncoder(w).Encode(map[string]any{"predictions": out})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runApp(t, newApp(), args...)
}

func runApp(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a.root.SetOut(&out)
	a.root.SetErr(&out)
	a.root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.json")}, args...))
	err := a.execute()
	return out.String(), err
}

func TestDigestCommand(t *testing.T) {
	out, err := run(t, "digest", "--sequence", "MVLSPADKTNVKAAWGKVGAHAGEYGAEALER", "--id", "hba")
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	for _, want := range []string{"hba", "MVLSPADK", "VGAHAGEYGAEALER", "17-32"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output:\n%s", want, out)
		}
	}
	// TNVK and AAWGK are shorter than the default minimum
	if strings.Contains(out, "AAWGK") || strings.Contains(out, "TNVK") {
		t.Fatalf("short peptides not filtered:\n%s", out)
	}
}

func TestDigestFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "in.fasta")
	os.WriteFile(p, []byte(">p1 first\nMVLSPADK\nTNVNAAWGK\n>p2\nAAAAAAK\n"), 0o644)
	out, err := run(t, "digest", p, "--min-length", "9")
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	if !strings.Contains(out, "TNVNAAWGK") {
		t.Fatalf("expected TNVNAAWGK:\n%s", out)
	}
	if strings.Contains(out, "MVLSPADK") || strings.Contains(out, "p2") {
		t.Fatalf("--min-length ignored:\n%s", out)
	}
}

func TestPredictWritesReports(t *testing.T) {
	srv := modelServer(t)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out.json")
	out, err := run(t, "predict",
		"--classifier-url", srv.URL,
		"--sequence", "MVLSPADKTNVNAAWGKVGAHAGEYGAEALER", "--id", "hba",
		"--out", jsonPath,
		"--csv-dir", filepath.Join(dir, "csv"),
		"--html-dir", filepath.Join(dir, "html"))
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	if !strings.Contains(out, "hba") || !strings.Contains(out, "COVERAGE") {
		t.Fatalf("summary missing:\n%s", out)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("json not written: %v", err)
	}
	var analyses []pipeline.Analysis
	if err := json.Unmarshal(data, &analyses); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(analyses) != 1 || analyses[0].Stats.TotalPeptides != 3 || analyses[0].Stats.SequenceCoverage != 100 {
		t.Fatalf("unexpected analysis: %+v", analyses)
	}
	for _, p := range []string{"csv/hba_detectability.csv", "html/hba_detectability.html"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}
}

func TestPredictSkipsInvalidProteins(t *testing.T) {
	srv := modelServer(t)
	p := filepath.Join(t.TempDir(), "in.fasta")
	os.WriteFile(p, []byte(">bad\nMVLSPADKXZ\n>good\nMVLSPADKTNVNAAWGK\n"), 0o644)
	out, err := run(t, "predict", p, "--classifier-url", srv.URL)
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	if strings.Contains(out, "bad") || !strings.Contains(out, "good") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestPredictNoInput(t *testing.T) {
	if _, err := run(t, "predict"); err == nil {
		t.Fatalf("expected error without input")
	}
}

func TestEnzymesCommand(t *testing.T) {
	out, err := run(t, "enzymes")
	if err != nil {
		t.Fatalf("enzymes failed: %v", err)
	}
	if !strings.Contains(out, "trypsin: ") || !strings.Contains(out, "lys-c: ") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestModelStatus(t *testing.T) {
	srv := modelServer(t)
	out, err := run(t, "model", "status", "--classifier-url", srv.URL)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "version 1: AVAILABLE") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestReadRecordsBareSequence(t *testing.T) {
	recs, err := readRecords(strings.NewReader("mvlspadk\ntnvk\n"))
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected one record, got %v, %v", recs, err)
	}
	if recs[0].Header != "Unknown" || recs[0].Sequence != "MVLSPADKTNVK" {
		t.Fatalf("unexpected record %+v", recs[0])
	}
}

func TestLogClosedWhenCommandFails(t *testing.T) {
	a := newApp()
	closed := 0
	a.openLog = func(opts logging.Options) (*log.Logger, func(), []string) {
		logger, closeFn, warnings := logging.New(opts)
		return logger, func() { closed++; closeFn() }, warnings
	}
	logFile := filepath.Join(t.TempDir(), "flyapp.log")
	if _, err := runApp(t, a, "predict", "--log-file", logFile); err == nil {
		t.Fatalf("expected predict without input to fail")
	}
	if closed != 1 {
		t.Fatalf("log closed %d times, want 1", closed)
	}
}

func TestPredictRepeatedIDsKeepAllReports(t *testing.T) {
	srv := modelServer(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "in.fasta")
	os.WriteFile(p, []byte(">dup\nMVLSPADKTNVNAAWGK\n>dup\nVGAHAGEYGAEALER\n"), 0o644)
	if _, err := run(t, "predict", p, "--classifier-url", srv.URL, "--csv-dir", filepath.Join(dir, "csv")); err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "csv", "dup_detectability.csv"))
	if err != nil || !strings.Contains(string(first), "MVLSPADK") {
		t.Fatalf("first report: %q, %v", first, err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "csv", "dup_2_detectability.csv"))
	if err != nil || !strings.Contains(string(second), "VGAHAGEYGAEALER") {
		t.Fatalf("second report: %q, %v", second, err)
	}
}
