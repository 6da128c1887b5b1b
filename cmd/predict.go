package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"flyapp/internal/pipeline"
	"flyapp/internal/predict"
	"flyapp/internal/report"

	"github.com/spf13/cobra"
)

func (a *app) predictCmd() *cobra.Command {
	var (
		src    source
		filter string
	)
	cmd := &cobra.Command{
		Use:   "predict [fasta]",
		Short: "Digest proteins and predict the detectability of every peptide",
		Long: `Digests each protein, scores the peptides with the model server and
prints a coverage summary per protein. Results are written as JSON (--out),
and per protein as CSV (--csv-dir) and an HTML coverage map (--html-dir).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				src.path = args[0]
			} else if src.empty() {
				src.path = a.cfg.InputFasta
			}
			records, err := a.loadRecords(cmd.Context(), cmd.InOrStdin(), src)
			if err != nil {
				return err
			}
			records = a.validRecords(records)
			if len(records) == 0 {
				return fmt.Errorf("no valid proteins to analyse")
			}

			start := time.Now()
			analyses, err := pipeline.AnalyzeAll(cmd.Context(), a.classifier(), records, a.options(), a.cfg.Workers)
			if err != nil {
				return err
			}
			a.logger.Info("analysis finished", "proteins", len(analyses), "duration_ms", time.Since(start).Milliseconds())

			if err := a.writeOutputs(analyses, report.ParseFlyerFilter(filter)); err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), analyses)
		},
	}
	f := cmd.Flags()
	f.StringVar(&src.sequence, "sequence", "", "protein sequence given inline")
	f.StringVar(&src.id, "id", "", "id for --sequence")
	f.StringSliceVar(&src.accessions, "accession", nil, "NCBI protein accession(s) to fetch")
	f.String("out", "", "write all analyses to this JSON file")
	f.String("csv-dir", "", "write one peptide CSV per protein into this directory")
	f.String("html-dir", "", "write one HTML coverage map per protein into this directory")
	f.StringVar(&filter, "filter", "all", "peptides kept in CSV output: all, flyers, non-flyers")
	_ = a.v.BindPFlag("output_json", f.Lookup("out"))
	_ = a.v.BindPFlag("output_csv", f.Lookup("csv-dir"))
	_ = a.v.BindPFlag("output_html", f.Lookup("html-dir"))
	return cmd
}

func (a *app) writeOutputs(analyses []*pipeline.Analysis, filter report.FlyerFilter) error {
	if p := a.cfg.OutputJSON; p != "" {
		data, err := json.MarshalIndent(analyses, "", "  ")
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return fmt.Errorf("failed to write output JSON: %w", err)
		}
		a.logger.Info("wrote output JSON", "path", p, "proteins", len(analyses))
	}
	if dir := a.cfg.OutputCSV; dir != "" {
		err := writeEach(dir, "csv", analyses, func(w io.Writer, an *pipeline.Analysis) error {
			return report.WriteCSV(w, report.Filter(an.Peptides, nil, filter))
		})
		if err != nil {
			return err
		}
		a.logger.Info("wrote csv reports", "dir", dir, "filter", filter)
	}
	if dir := a.cfg.OutputHTML; dir != "" {
		if err := writeEach(dir, "html", analyses, report.WriteHTML); err != nil {
			return err
		}
		a.logger.Info("wrote html reports", "dir", dir)
	}
	return nil
}

func writeEach(dir, ext string, analyses []*pipeline.Analysis, write func(io.Writer, *pipeline.Analysis) error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	used := make(map[string]bool, len(analyses))
	for i, an := range analyses {
		name := report.Filename(an.ProteinID, ext)
		// repeated ids get the record number so nothing is overwritten
		for n := i + 1; used[name]; n++ {
			name = report.Filename(fmt.Sprintf("%s_%d", an.ProteinID, n), ext)
		}
		used[name] = true
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := write(f, an); err != nil {
			f.Close()
			return fmt.Errorf("write %s report for %s: %w", ext, an.ProteinID, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(w io.Writer, analyses []*pipeline.Analysis) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "PROTEIN\tLENGTH\tPEPTIDES\tFLYERS\tFLYER %\tCOVERAGE %\tFLYER COVERAGE %")
	for _, c := range predict.Classes {
		fmt.Fprintf(tw, "\t%s", c)
	}
	fmt.Fprintln(tw)
	for _, an := range analyses {
		s := an.Stats
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t%.1f\t%.1f", an.ProteinID, s.ProteinLength, s.TotalPeptides, s.FlyerPeptides,
			s.FlyerPercentage, s.SequenceCoverage, s.FlyerCoverage)
		for _, c := range predict.Classes {
			fmt.Fprintf(tw, "\t%d", s.ClassCounts[c])
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
