package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"rocklandcensus/internal/core"
	"rocklandcensus/internal/geo"
)

func newDatasetCmd(c *cli) *cobra.Command {
	var (
		zips   string
		format string
		trace  bool
	)
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build and print the merged dataset",
		Example: `  censusd dataset --zips 10952,10977
  censusd dataset --format csv > rockland.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(format)
			if format != "json" && format != "csv" {
				return fmt.Errorf("unsupported format %q", format)
			}
			keys, err := core.ParseKeys(geo.Rockland(), zips)
			if err != nil {
				return err
			}

			var tracer core.Tracer
			if trace {
				tracer = core.NewJSONTracer(cmd.ErrOrStderr())
			}
			builder := newBuilder(c.cfg, &http.Client{}, c.logger, nil, tracer)
			dataset, err := builder.Build(cmd.Context(), keys)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "csv" {
				return core.WriteCSV(out, dataset, dataset.Columns())
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"zips": keys, "data": dataset})
		},
	}
	cmd.Flags().StringVar(&zips, "zips", "", "comma-separated ZIP codes (default: all)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	cmd.Flags().BoolVar(&trace, "trace", false, "write JSON trace spans to stderr")
	return cmd
}
