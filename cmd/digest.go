package main

import (
	"fmt"
	"text/tabwriter"

	"flyapp/internal/pipeline"

	"github.com/spf13/cobra"
)

func (a *app) digestCmd() *cobra.Command {
	var src source
	cmd := &cobra.Command{
		Use:   "digest [fasta]",
		Short: "List the peptides of an in-silico digest without scoring them",
		Long: `Digests each protein with the configured enzyme and prints the peptides
that pass the length filter. The model server is not contacted.

	<Protein>  <Peptide>  <Start-End>  <Length>`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				src.path = args[0]
			}
			records, err := a.loadRecords(cmd.Context(), cmd.InOrStdin(), src)
			if err != nil {
				return err
			}
			opts := a.options()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, rec := range records {
				peptides, err := pipeline.Digest(rec.Sequence, opts)
				if err != nil {
					a.logger.Warn("skipping protein", "id", rec.ID(), "err", err)
					continue
				}
				a.logger.Debug("digested", "id", rec.ID(), "peptides", len(peptides))
				for _, p := range peptides {
					fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%d\n", rec.ID(), p.Sequence, p.Start, p.End, p.Length)
				}
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&src.sequence, "sequence", "", "protein sequence given inline")
	f.StringVar(&src.id, "id", "", "id for --sequence")
	f.StringSliceVar(&src.accessions, "accession", nil, "NCBI protein accession(s) to fetch")
	return cmd
}
