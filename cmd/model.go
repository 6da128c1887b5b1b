package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) modelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect the detectability model",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Print model metadata as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.classifier().Info())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Ask the model server whether the model is loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clf := a.classifier()
			st, err := clf.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("model status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "endpoint: %s\n", clf.Info().Endpoint)
			for _, v := range st.Versions {
				fmt.Fprintf(out, "version %s: %s", v.Version, v.State)
				if v.Status.ErrorMessage != "" {
					fmt.Fprintf(out, " (%s)", v.Status.ErrorMessage)
				}
				fmt.Fprintln(out)
			}
			if !st.Available() {
				return fmt.Errorf("model %s has no available version", clf.Model)
			}
			return nil
		},
	})
	return cmd
}
