package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rocklandcensus/internal/geo"
)

func newKeysCmd(_ *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the supported ZIP codes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range geo.Rockland().Places() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Key, p.Name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
