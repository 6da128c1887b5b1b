package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flyapp/internal/classifier"
	"flyapp/internal/digest"
	"flyapp/internal/fasta"
	"flyapp/internal/ncbi"
	"flyapp/internal/pipeline"
	"flyapp/internal/predict"
	"flyapp/internal/report"
	"flyapp/internal/store"

	"github.com/charmbracelet/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// loadTemplates extends the report templates (page, map) with the UI pages.
func loadTemplates() (*template.Template, error) {
	return report.Templates().ParseFS(templateFS, "templates/*.html")
}

// Example is a protein offered on the index page.
type Example struct {
	Name  string
	FASTA string
}

var examples = []Example{
	{"Human Hemoglobin Alpha", `>sp|P69905|HBA_HUMAN Hemoglobin subunit alpha OS=Homo sapiens
MVLSPADKTNVKAAWGKVGAHAGEYGAEALERMFLSFPTTKTYFPHFDLSHGSAQVKGH
GKKVADALTNAVAHVDDMPNALSALSDLHAHKLRVDPVNFKLLSHCLLVTLAAHLPAEF
TPAVHASLDKFLASVSTVLTSKYR`},
	{"Human Insulin", `>sp|P01308|INS_HUMAN Insulin OS=Homo sapiens
MALWMRLLPLLALLALWGPDPAAAFVNQHLCGSHLVEALYLVCGERGFFYTPKTRREAED
LQVGQVELGGGPGAGSLQPLALEGSLQKRGIVEQCCTSICSLYQLENYCN`},
}

type server struct {
	clf    predict.Classifier
	model  *classifier.Info
	store  store.Store
	opts   pipeline.Options
	logger *log.Logger
	tmpl   *template.Template
	// fetch resolves an accession typed into the form
	fetch   func(ctx context.Context, accession string) (fasta.FastaRecord, error)
	timeout time.Duration
}

// IndexPage is the data behind the input form.
type IndexPage struct {
	Examples  []Example
	Selected  string
	Input     string
	Accession string
	Options   pipeline.Options
	Enzymes   []string
	Recent    []store.Summary
	Model     *classifier.Info
	Error     string
}

// AnalysisPage is the data behind a result page.
type AnalysisPage struct {
	report.Page
	Peptides []predict.Annotated
	Classes  []string
	Selected map[string]bool
	Filter   report.FlyerFilter
	// CSVURL downloads the peptides as currently filtered
	CSVURL template.URL
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexHandler)
	mux.HandleFunc("/analyze", s.analyzeHandler)
	mux.HandleFunc("/analysis/", s.analysisHandler)
	mux.HandleFunc("/api/analysis/", s.apiAnalysisHandler)
	mux.HandleFunc("/api/analyses", s.apiAnalysesHandler)
	mux.HandleFunc("/api/analyze", s.apiAnalyzeHandler)
	mux.HandleFunc("/api/model", s.apiModelHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func (s *server) indexPage(r *http.Request) IndexPage {
	recent, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Warn("failed to list analyses for index", "err", err)
	}
	if len(recent) > 20 {
		recent = recent[:20]
	}
	return IndexPage{
		Examples: examples,
		Selected: examples[0].Name,
		Input:    examples[0].FASTA,
		Options:  s.opts,
		Enzymes:  digest.Names(),
		Recent:   recent,
		Model:    s.model,
	}
}

func (s *server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template failed", "template", name, "err", err)
	}
}

func (s *server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page := s.indexPage(r)
	if name := r.URL.Query().Get("example"); name != "" {
		for _, ex := range examples {
			if ex.Name == name {
				page.Selected, page.Input = ex.Name, ex.FASTA
			}
		}
	}
	s.render(w, http.StatusOK, "index.html", page)
}

// formOptions reads the length bounds and enzyme from the form, falling back
// to the server defaults.
func (s *server) formOptions(get func(string) string) (pipeline.Options, error) {
	opts := s.opts
	for _, f := range []struct {
		name string
		dst  *int
	}{{"min_length", &opts.MinLength}, {"max_length", &opts.MaxLength}} {
		v := strings.TrimSpace(get(f.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return opts, fmt.Errorf("%s must be a number between 1 and 100", f.name)
		}
		*f.dst = n
	}
	if opts.MinLength > opts.MaxLength {
		return opts, fmt.Errorf("min_length %d is larger than max_length %d", opts.MinLength, opts.MaxLength)
	}
	if e := strings.TrimSpace(get("enzyme")); e != "" {
		if _, err := digest.Lookup(e); err != nil {
			return opts, err
		}
		opts.Enzyme = e
	}
	return opts, nil
}

// input resolves the protein to analyse: an accession wins over pasted text.
func (s *server) input(ctx context.Context, accession, text string) (id, seq string, status int, err error) {
	if accession = strings.TrimSpace(accession); accession != "" {
		if s.fetch == nil {
			return "", "", http.StatusBadRequest, errors.New("accession lookup is not available")
		}
		rec, err := s.fetch(ctx, accession)
		if err != nil {
			if ncbi.IsClientError(err) {
				return "", "", http.StatusBadRequest, err
			}
			s.logger.Error("accession lookup failed", "accession", accession, "err", err)
			return "", "", http.StatusBadGateway, fmt.Errorf("accession lookup failed: %w", err)
		}
		return rec.Header, rec.Sequence, http.StatusOK, nil
	}
	if strings.TrimSpace(text) == "" {
		return "", "", http.StatusBadRequest, errors.New("please enter a protein sequence")
	}
	id, seq = fasta.ParseProtein(text)
	return id, seq, http.StatusOK, nil
}

// run analyses one protein and stores the result. The returned status is the
// HTTP status to report when err is not nil.
func (s *server) run(ctx context.Context, id, seq string, opts pipeline.Options) (*pipeline.Analysis, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	a, err := pipeline.Analyze(ctx, s.clf, id, seq, opts)
	if err != nil {
		var ve *pipeline.ValidationError
		if errors.As(err, &ve) {
			return nil, http.StatusBadRequest, err
		}
		s.logger.Error("prediction failed", "protein", id, "err", err)
		return nil, http.StatusBadGateway, fmt.Errorf("prediction failed: %w", err)
	}
	s.logger.Info("analysed protein", "protein", id, "length", a.Stats.ProteinLength, "peptides", a.Stats.TotalPeptides, "duration_ms", time.Since(start).Milliseconds())
	if err := s.store.Save(ctx, a); err != nil {
		s.logger.Error("failed to save analysis", "err", err)
		return nil, http.StatusInternalServerError, errors.New("failed to save analysis")
	}
	return a, http.StatusOK, nil
}

func (s *server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	page := s.indexPage(r)
	page.Input = r.PostFormValue("sequence")
	page.Accession = r.PostFormValue("accession")
	page.Selected = r.PostFormValue("example")

	fail := func(status int, err error) {
		page.Error = err.Error()
		s.render(w, status, "index.html", page)
	}
	opts, err := s.formOptions(r.PostFormValue)
	page.Options = opts
	if err != nil {
		fail(http.StatusBadRequest, err)
		return
	}
	id, seq, status, err := s.input(r.Context(), page.Accession, page.Input)
	if err != nil {
		fail(status, err)
		return
	}
	if name := strings.TrimSpace(r.PostFormValue("protein_id")); name != "" {
		id = name
	}
	a, status, err := s.run(r.Context(), id, seq, opts)
	if err != nil {
		fail(status, err)
		return
	}
	http.Redirect(w, r, "/analysis/"+a.ID, http.StatusSeeOther)
}

// analysisTarget splits /analysis/{id}[.csv|.html] into id and format.
func analysisTarget(path, prefix string) (id, format string) {
	id = strings.Trim(strings.TrimPrefix(path, prefix), "/")
	for _, ext := range []string{".csv", ".html", ".json"} {
		if rest, ok := strings.CutSuffix(id, ext); ok {
			return rest, ext[1:]
		}
	}
	return id, ""
}

func (s *server) load(w http.ResponseWriter, r *http.Request, id string) (*pipeline.Analysis, bool) {
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing analysis", http.StatusBadRequest)
		return nil, false
	}
	a, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "analysis not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load analysis", "id", id, "err", err)
		http.Error(w, "failed to read analyses", http.StatusInternalServerError)
		return nil, false
	}
	return a, true
}

// filtered applies the class and flyer filters from the query string.
func filtered(a *pipeline.Analysis, r *http.Request) ([]predict.Annotated, []string, report.FlyerFilter) {
	q := r.URL.Query()
	classes := q["class"]
	f := report.ParseFlyerFilter(q.Get("show"))
	return report.Filter(a.Peptides, classes, f), classes, f
}

func (s *server) analysisHandler(w http.ResponseWriter, r *http.Request) {
	id, format := analysisTarget(r.URL.Path, "/analysis/")
	a, ok := s.load(w, r, id)
	if !ok {
		return
	}
	peptides, classes, f := filtered(a, r)
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(a.ProteinID, "csv")))
		if err := report.WriteCSV(w, peptides); err != nil {
			s.logger.Error("csv export failed", "id", id, "err", err)
		}
		return
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(a.ProteinID, "html")))
		if err := report.WriteHTML(w, a); err != nil {
			s.logger.Error("html export failed", "id", id, "err", err)
		}
		return
	case "json":
		writeJSON(w, http.StatusOK, a)
		return
	}

	selected := map[string]bool{}
	for _, c := range classes {
		selected[c] = true
	}
	page := AnalysisPage{
		Page:     report.NewPage(a),
		Peptides: peptides,
		Classes:  predict.Classes[:],
		Selected: selected,
		Filter:   f,
		CSVURL:   template.URL("/analysis/" + url.PathEscape(a.ID) + ".csv"),
	}
	if r.URL.RawQuery != "" {
		page.CSVURL += template.URL("?" + r.URL.Query().Encode())
	}
	// htmx filter requests only need the table
	if r.Header.Get("HX-Request") == "true" {
		s.render(w, http.StatusOK, "peptides", page)
		return
	}
	s.render(w, http.StatusOK, "analysis.html", page)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// apiAnalysisHandler returns (GET) or removes (DELETE) one analysis.
func (s *server) apiAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := analysisTarget(r.URL.Path, "/api/analysis/")
	switch r.Method {
	case http.MethodGet:
		a, err := s.store.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "analysis not found")
			return
		}
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to read analyses")
			return
		}
		writeJSON(w, http.StatusOK, a)
	case http.MethodDelete:
		err := s.store.Delete(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "analysis not found")
			return
		}
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to delete analysis")
			return
		}
		s.logger.Info("deleted analysis", "id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *server) apiAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to read analyses")
		return
	}
	if list == nil {
		list = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// analyzeRequest is the body of POST /api/analyze.
type analyzeRequest struct {
	ProteinID string `json:"protein_id"`
	Sequence  string `json:"sequence"`
	Accession string `json:"accession"`
	MinLength int    `json:"min_length"`
	MaxLength int    `json:"max_length"`
	Enzyme    string `json:"enzyme"`
}

func (s *server) apiAnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	form := map[string]string{"enzyme": req.Enzyme}
	if req.MinLength != 0 {
		form["min_length"] = strconv.Itoa(req.MinLength)
	}
	if req.MaxLength != 0 {
		form["max_length"] = strconv.Itoa(req.MaxLength)
	}
	opts, err := s.formOptions(func(k string) string { return form[k] })
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, seq, status, err := s.input(r.Context(), req.Accession, req.Sequence)
	if err != nil {
		jsonError(w, status, err.Error())
		return
	}
	if req.ProteinID != "" {
		id = req.ProteinID
	}
	a, status, err := s.run(r.Context(), id, seq, opts)
	if err != nil {
		jsonError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *server) apiModelHandler(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		jsonError(w, http.StatusNotFound, "no model information")
		return
	}
	writeJSON(w, http.StatusOK, s.model)
}
