package cli

import (
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/spf13/cobra"

	"github.com/stardustai/dataset-viewer/internal/config"
	"github.com/stardustai/dataset-viewer/internal/events"
)

func newGetCmd(cfg *config.Config, flags *connFlags, stdout, stderr io.Writer) *cobra.Command {
	var (
		outDir string
		as     string
		quiet  bool
	)
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Download a file with progress reporting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			broadcaster := events.NewBroadcaster()

			var wg sync.WaitGroup
			var ch chan events.ProgressEvent
			if !quiet {
				ch = broadcaster.Subscribe()
				wg.Add(1)
				go func() {
					defer wg.Done()
					reportProgress(stderr, ch)
				}()
			}

			client, cleanup, err := openClient(cmd.Context(), cfg, flags, broadcaster)
			if err != nil {
				return err
			}
			defer cleanup()

			filename := as
			if filename == "" {
				filename = path.Base(args[0])
			}
			dir := outDir
			if dir == "" {
				dir = cfg.DownloadDir
			}

			n, err := client.DownloadFileWithProgress(cmd.Context(), args[0], filename, dir)
			if ch != nil {
				broadcaster.Unsubscribe(ch)
			}
			wg.Wait()
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s (%d bytes)\n", path.Join(dir, filename), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "destination directory (default from DSV_DOWNLOAD_DIR)")
	cmd.Flags().StringVar(&as, "as", "", "save under a different filename")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}

func reportProgress(w io.Writer, ch <-chan events.ProgressEvent) {
	for ev := range ch {
		switch ev.Type {
		case events.ProgressUpdate:
			if ev.Total > 0 {
				fmt.Fprintf(w, "\r%s: %d/%d bytes (%.0f%%)", ev.Filename, ev.Received, ev.Total,
					float64(ev.Received)/float64(ev.Total)*100)
			} else {
				fmt.Fprintf(w, "\r%s: %d bytes", ev.Filename, ev.Received)
			}
		case events.ProgressCompleted:
			fmt.Fprintf(w, "\r%s: done (%d bytes)\n", ev.Filename, ev.Received)
		case events.ProgressCancelled:
			fmt.Fprintf(w, "\r%s: cancelled\n", ev.Filename)
		case events.ProgressError:
			fmt.Fprintf(w, "\r%s: failed: %s\n", ev.Filename, ev.Error)
		}
	}
}
