package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stardustai/dataset-viewer/internal/config"
	"github.com/stardustai/dataset-viewer/internal/viewer"
)

func newSearchCmd(cfg *config.Config, flags *connFlags, stdout io.Writer) *cobra.Command {
	var (
		full   bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "search <path> <query>",
		Short: "Search a file for a literal text query",
		Long: `Search a file for a literal, case-insensitive query.

By default only the initially loaded window is searched with exact line
numbers. With --full the whole file is scanned by sampling windows, and
line numbers are estimates.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd.Context(), cfg, flags, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			var result *viewer.SearchResult
			if full {
				result, err = viewer.SearchFull(cmd.Context(), client, args[0], args[1], viewer.SearchConfig{
					SampleSize: cfg.SearchSampleSize,
					MaxSamples: cfg.SearchMaxSamples,
					MaxMatches: cfg.SearchMaxMatches,
				})
				if err != nil {
					return err
				}
			} else {
				l, err := viewer.Open(cmd.Context(), client, args[0], viewer.LoaderConfig{
					ChunkSize:            cfg.ChunkSize,
					InitialLoadThreshold: cfg.InitialLoadThreshold,
				})
				if err != nil {
					return err
				}
				result = l.SearchLoaded(args[1])
			}

			if output == "json" {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			for _, m := range result.Matches {
				marker := ""
				if m.Estimated {
					marker = "~"
				}
				fmt.Fprintf(stdout, "%s%d:%d: %s\n", marker, m.Line, m.Column, m.Text)
			}
			if result.Limited {
				fmt.Fprintf(cmd.ErrOrStderr(), "match cap reached, results are incomplete\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "scan the whole file by sampling")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text|json)")
	return cmd
}
