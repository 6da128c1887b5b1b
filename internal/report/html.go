package report

import (
	"fmt"
	"html/template"
	"io"

	"flyapp/internal/pipeline"
	"flyapp/internal/predict"
)

// ResiduesPerLine is the width of one row of the protein map.
const ResiduesPerLine = 60

// Coverage classes of a residue in the map.
const (
	Flyer     = "flyer"
	NonFlyer  = "non-flyer"
	Uncovered = "uncovered"
)

// Residue is one cell of the protein map.
type Residue struct {
	AA      string
	Kind    string
	Tooltip string
}

// Line is a row of the protein map with its 1-based position range.
type Line struct {
	Residues []Residue
	Pad      int
	From, To int
}

// Map lays out sequence as lines of ResiduesPerLine residues coloured by the
// peptide that covers them. When peptides overlap the later one wins.
func Map(sequence string, peptides []predict.Annotated) []Line {
	cells := make([]Residue, len(sequence))
	for i := range sequence {
		cells[i] = Residue{AA: sequence[i : i+1], Kind: Uncovered}
	}
	for _, p := range peptides {
		kind := NonFlyer
		if p.IsFlyer {
			kind = Flyer
		}
		tip := fmt.Sprintf("Peptide: %s\nClass: %s\nPosition: %d-%d", p.Sequence, p.Class, p.Start+1, p.End)
		for pos := max(p.Start, 0); pos < p.End && pos < len(cells); pos++ {
			cells[pos].Kind = kind
			cells[pos].Tooltip = tip
		}
	}
	var lines []Line
	for start := 0; start < len(cells); start += ResiduesPerLine {
		end := min(start+ResiduesPerLine, len(cells))
		lines = append(lines, Line{
			Residues: cells[start:end],
			Pad:      ResiduesPerLine - (end - start),
			From:     start + 1,
			To:       end,
		})
	}
	return lines
}

var funcs = template.FuncMap{
	"pct":   func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	"prob":  func(f float64) string { return fmt.Sprintf("%.3f", f) },
	"pad":   func(n int) []struct{} { return make([]struct{}, n) },
	"class": func() [4]string { return predict.Classes },
}

// MapTemplate renders the protein map block; the web UI embeds it too.
const MapTemplate = `{{define "map"}}<div class="protein-map">
<div class="legend">
<span class="swatch flyer"></span> Flyer Peptides
<span class="swatch non-flyer"></span> Non-Flyer Peptides
<span class="swatch uncovered"></span> Not Covered
</div>
<div class="lines">{{range .Lines}}
<div class="line"><div class="residues">{{range .Residues}}<span class="aa {{.Kind}}"{{if .Tooltip}} data-tooltip="{{.Tooltip}}"{{end}}>{{.AA}}</span>{{end}}{{range pad .Pad}}<span class="aa blank"></span>{{end}}</div><div class="range">{{.From}}-{{.To}}</div></div>{{end}}
</div>
</div>{{end}}`

// Styles is the CSS for the protein map.
const Styles = `
.protein-map{font-family:Arial,sans-serif;max-width:1200px;margin:20px auto;padding:20px;background:#f9f9f9;border-radius:10px}
.legend{display:flex;gap:16px;align-items:center;margin-bottom:16px;font-size:14px}
.swatch{display:inline-block;width:30px;height:20px;border:1px solid #ccc;border-radius:3px}
.line{display:flex;align-items:center;margin-bottom:8px;min-height:30px}
.residues{display:flex}
.aa{display:inline-block;width:16px;height:24px;line-height:24px;text-align:center;font-family:'Courier New',monospace;font-size:14px;font-weight:bold;border-right:1px solid #fff;position:relative}
.aa.blank{background:transparent}
.flyer{background:#90EE90}
.non-flyer{background:#DDA0DD}
.uncovered{background:#E8E8E8}
.aa[data-tooltip]:hover::after{content:attr(data-tooltip);position:absolute;bottom:110%;left:50%;transform:translateX(-50%);background:rgba(0,0,0,.85);color:#fff;padding:6px 8px;border-radius:4px;font-size:12px;white-space:pre-line;min-width:170px;z-index:10}
.range{padding-left:15px;font-family:'Courier New',monospace;font-size:12px;color:#666;white-space:nowrap}
table{border-collapse:collapse;margin:20px auto}td,th{padding:4px 8px;border-bottom:1px solid #ddd;font-size:13px}
`

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Protein Detectability Map - {{.Analysis.ProteinID}}</title>
<style>{{.Styles}}</style>
</head>
<body>
<h2 style="text-align:center">Tryptic Peptide Detectability Map: {{.Analysis.ProteinID}}</h2>
<p style="text-align:center">{{.Analysis.Stats.TotalPeptides}} peptides, {{.Analysis.Stats.FlyerPeptides}} flyers ({{pct .Analysis.Stats.FlyerPercentage}}), coverage {{pct .Analysis.Stats.SequenceCoverage}}</p>
{{template "map" .}}
<table>
<tr><th>Peptide</th><th>Position</th><th>Length</th><th>Predicted Class</th>{{range class}}<th>{{.}}</th>{{end}}</tr>
{{range .Analysis.Peptides}}<tr><td>{{.Sequence}}</td><td>{{.Start}}-{{.End}}</td><td>{{.Length}}</td><td>{{.Class}}</td>{{$p := .}}{{range class}}<td>{{prob (index $p.Probabilities .)}}</td>{{end}}</tr>
{{end}}</table>
</body>
</html>`

// Page is the data behind the standalone HTML report.
type Page struct {
	Analysis *pipeline.Analysis
	Lines    []Line
	Styles   template.CSS
}

// NewPage prepares a for rendering.
func NewPage(a *pipeline.Analysis) Page {
	return Page{Analysis: a, Lines: Map(a.Sequence, a.Peptides), Styles: template.CSS(Styles)}
}

// Templates returns a template set holding "map" and "page", with the
// report helper functions registered. Callers may parse more templates into it.
func Templates() *template.Template {
	t := template.Must(template.New("page").Funcs(funcs).Parse(pageTemplate))
	return template.Must(t.Parse(MapTemplate))
}

var page = Templates()

// WriteHTML renders a as a self-contained HTML page.
func WriteHTML(w io.Writer, a *pipeline.Analysis) error {
	return page.ExecuteTemplate(w, "page", NewPage(a))
}
