package main

import (
	"fmt"

	"flyapp/internal/digest"

	"github.com/spf13/cobra"
)

// enzymesCmd lists the digestion rules so a user who mistypes --enzyme can
// see what is available.
func enzymesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enzymes",
		Short: "List the enzymes available for digestion",
		Long: `Lists the digestion enzymes by name along with their cleavage rule.

	<Name>: <Rule>`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range digest.Names() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, digest.Rules[name])
			}
		},
	}
}
