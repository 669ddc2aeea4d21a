package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stardustai/dataset-viewer/internal/config"
	"github.com/stardustai/dataset-viewer/internal/connstore"
)

func newConnectionsCmd(cfg *config.Config, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage saved connection profiles",
	}
	cmd.AddCommand(
		newConnectionsListCmd(cfg, stdout),
		newConnectionsSaveCmd(cfg, stdout),
		newConnectionsDeleteCmd(cfg, stdout),
	)
	return cmd
}

func openStore(cfg *config.Config) (*connstore.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("saved connections require DATABASE_URL")
	}
	return connstore.New(cfg.DatabaseURL)
}

func newConnectionsListCmd(cfg *config.Config, stdout io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved connections, most recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			conns, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			if output == "json" {
				for _, sc := range conns {
					sc.Secret = "" // never print secrets
				}
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(conns)
			}

			tw := tabwriter.NewWriter(stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPROTOCOL\tURL\tLAST USED")
			for _, sc := range conns {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					sc.Name, sc.Protocol, sc.URL, sc.LastUsed.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table|json)")
	return cmd
}

func newConnectionsSaveCmd(cfg *config.Config, stdout io.Writer) *cobra.Command {
	var (
		protocol string
		url      string
		username string
		password string
		token    string
		extra    map[string]string
	)
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save or replace a connection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if protocol == "" {
				return errors.New("--protocol is required")
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			secret := password
			if token != "" {
				secret = token
			}
			sc := &connstore.SavedConnection{
				Name:     args[0],
				Protocol: protocol,
				URL:      url,
				Username: username,
				Secret:   secret,
				Extra:    extra,
			}
			if err := store.Save(cmd.Context(), sc); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "saved %s (%s)\n", sc.Name, sc.Protocol)
			return nil
		},
	}
	cmd.Flags().StringVar(&protocol, "protocol", "", "storage protocol")
	cmd.Flags().StringVar(&url, "url", "", "storage endpoint URL")
	cmd.Flags().StringVar(&username, "user", "", "username or access key")
	cmd.Flags().StringVar(&password, "password", "", "password or secret key")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (huggingface)")
	cmd.Flags().StringToStringVar(&extra, "extra", nil, "protocol-specific options (key=value)")
	return cmd
}

func newConnectionsDeleteCmd(cfg *config.Config, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved connection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "deleted %s\n", args[0])
			return nil
		},
	}
}
