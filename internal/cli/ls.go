package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stardustai/dataset-viewer/internal/config"
	"github.com/stardustai/dataset-viewer/internal/storage"
)

func newLsCmd(cfg *config.Config, flags *connFlags, stdout io.Writer) *cobra.Command {
	var (
		output   string
		sortBy   string
		sortDesc bool
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory on the connected backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			client, cleanup, err := openClient(cmd.Context(), cfg, flags, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := storage.ListOptions{SortBy: sortBy}
			if sortDesc {
				opts.SortOrder = storage.SortDesc
			}

			var entries []storage.FileEntry
			for {
				result, err := client.ListDirectory(cmd.Context(), path, opts)
				if err != nil {
					return err
				}
				entries = append(entries, result.Entries...)
				if !all || result.NextMarker == "" {
					if result.NextMarker != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "more entries available, rerun with --all\n")
					}
					break
				}
				opts.Marker = result.NextMarker
			}

			switch output {
			case "json":
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			case "table", "":
				return renderEntries(stdout, entries)
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table|json)")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort hint (name|size|modified)")
	cmd.Flags().BoolVar(&sortDesc, "desc", false, "sort descending")
	cmd.Flags().BoolVar(&all, "all", false, "follow pagination to the end")
	return cmd
}

func renderEntries(w io.Writer, entries []storage.FileEntry) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
	for _, e := range entries {
		name := e.Name
		size := fmt.Sprintf("%d", e.Size)
		if e.IsDir {
			name += "/"
			size = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, size, e.ModTime.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func newProtocolsCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "protocols",
		Short: "List supported storage protocols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(stdout, strings.Join(storage.Protocols(), "\n"))
			return nil
		},
	}
}
