package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"rocklandcensus/internal/core"
	"rocklandcensus/internal/geo"
	"rocklandcensus/internal/narrative"
)

func newReportCmd(c *cli) *cobra.Command {
	var (
		zips        string
		prompt      string
		temperature float64
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a narrative summary for the merged dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			httpClient := &http.Client{}
			narrator, err := newNarrator(cmd.Context(), c.cfg, httpClient, c.logger, nil, nil)
			if err != nil {
				return err
			}
			if narrator == nil {
				return fmt.Errorf("%w: set %s", narrative.ErrNotConfigured, c.cfg.NarrativeKeyName())
			}
			if err := narrative.ValidateTemperature(temperature); err != nil {
				return err
			}
			keys, err := core.ParseKeys(geo.Rockland(), zips)
			if err != nil {
				return err
			}

			dataset, err := newBuilder(c.cfg, httpClient, c.logger, nil, nil).Build(cmd.Context(), keys)
			if err != nil {
				return err
			}
			summary, err := narrative.Summarize(cmd.Context(), narrator, dataset, prompt, temperature)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)
			return err
		},
	}
	cmd.Flags().StringVar(&zips, "zips", "", "comma-separated ZIP codes (default: all)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "extra instruction for the model")
	cmd.Flags().Float64Var(&temperature, "temperature", narrative.DefaultTemperature, "sampling temperature, 0 to 2")
	return cmd
}
