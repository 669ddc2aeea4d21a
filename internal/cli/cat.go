package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stardustai/dataset-viewer/internal/config"
	"github.com/stardustai/dataset-viewer/internal/viewer"
)

func newCatCmd(cfg *config.Config, flags *connFlags, stdout io.Writer) *cobra.Command {
	var (
		offset  int64
		length  int64
		percent float64
		follow  bool
	)
	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Print file content decoded to text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd.Context(), cfg, flags, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			if offset != 0 || length >= 0 {
				content, err := client.GetFileContent(cmd.Context(), args[0], offset, length)
				if err != nil {
					return err
				}
				_, err = io.WriteString(stdout, content.Text)
				return err
			}

			l, err := viewer.Open(cmd.Context(), client, args[0], viewer.LoaderConfig{
				ChunkSize:            cfg.ChunkSize,
				InitialLoadThreshold: cfg.InitialLoadThreshold,
			})
			if err != nil {
				return err
			}

			if percent > 0 {
				if err := l.JumpToPercent(cmd.Context(), percent); err != nil {
					return err
				}
				line, estimated := l.StartLine()
				marker := ""
				if estimated {
					marker = "~"
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "starting around line %s%d\n", marker, line)
			}

			if _, err := io.WriteString(stdout, l.Content()); err != nil {
				return err
			}
			for follow && !l.AtEnd() {
				before := len(l.Content())
				more, err := l.LoadMore(cmd.Context())
				if err != nil {
					return err
				}
				if !more {
					break
				}
				if _, err := io.WriteString(stdout, l.Content()[before:]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "byte offset to start from")
	cmd.Flags().Int64Var(&length, "length", -1, "bytes to read, -1 for default windowing")
	cmd.Flags().Float64Var(&percent, "percent", 0, "jump to a percentage of the file")
	cmd.Flags().BoolVar(&follow, "follow", false, "keep loading chunks until the end of file")
	return cmd
}

func newSizeCmd(cfg *config.Config, flags *connFlags, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "size <path>",
		Short: "Print a file's size in bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd.Context(), cfg, flags, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := client.GetFileSize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, n)
			return nil
		},
	}
}
