// Package cli implements the dsv command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stardustai/dataset-viewer/internal/config"
	"github.com/stardustai/dataset-viewer/internal/connstore"
	"github.com/stardustai/dataset-viewer/internal/events"
	"github.com/stardustai/dataset-viewer/internal/retry"
	"github.com/stardustai/dataset-viewer/internal/storage"
)

// connFlags are the connection parameters shared by all data commands.
type connFlags struct {
	conn     string // saved connection name
	protocol string
	url      string
	username string
	password string
	token    string
	extra    map[string]string
}

// NewRootCmd returns the root cobra command.
func NewRootCmd(cfg *config.Config, stdout, stderr io.Writer) *cobra.Command {
	flags := &connFlags{}

	cmd := &cobra.Command{
		Use:           "dsv",
		Short:         "Browse, stream, and search files on remote storage backends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.conn, "conn", "", "saved connection name (requires DATABASE_URL)")
	pf.StringVar(&flags.protocol, "protocol", "", "storage protocol (webdav, s3, ssh, smb, local, huggingface)")
	pf.StringVar(&flags.url, "url", "", "storage endpoint URL")
	pf.StringVar(&flags.username, "user", "", "username or access key")
	pf.StringVar(&flags.password, "password", "", "password or secret key")
	pf.StringVar(&flags.token, "token", "", "bearer token (huggingface)")
	pf.StringToStringVar(&flags.extra, "extra", nil, "protocol-specific options (key=value)")

	cmd.AddCommand(
		newLsCmd(cfg, flags, stdout),
		newCatCmd(cfg, flags, stdout),
		newSizeCmd(cfg, flags, stdout),
		newGetCmd(cfg, flags, stdout, stderr),
		newSearchCmd(cfg, flags, stdout),
		newConnectionsCmd(cfg, stdout),
		newProtocolsCmd(stdout),
	)
	return cmd
}

// connectionConfig resolves the connection parameters, loading a saved
// profile when --conn is set and letting explicit flags override it.
func connectionConfig(ctx context.Context, cfg *config.Config, flags *connFlags) (*storage.ConnectionConfig, error) {
	cc := &storage.ConnectionConfig{
		Protocol: flags.protocol,
		URL:      flags.url,
		Username: flags.username,
		Password: flags.password,
		Token:    flags.token,
		Extra:    flags.extra,
	}

	if flags.conn != "" {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("--conn requires DATABASE_URL")
		}
		store, err := connstore.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		saved, err := store.Find(ctx, flags.conn)
		if err != nil {
			return nil, err
		}
		base := saved.Config()
		mergeConfig(base, cc)
		if err := store.Touch(ctx, flags.conn); err != nil {
			return nil, err
		}
		cc = base
	}

	if cc.Protocol == "" {
		return nil, errors.New("--protocol is required (or use --conn)")
	}
	return cc, nil
}

// mergeConfig overlays non-empty override fields onto base.
func mergeConfig(base, override *storage.ConnectionConfig) {
	if override.Protocol != "" {
		base.Protocol = override.Protocol
	}
	if override.URL != "" {
		base.URL = override.URL
	}
	if override.Username != "" {
		base.Username = override.Username
	}
	if override.Password != "" {
		base.Password = override.Password
	}
	if override.Token != "" {
		base.Token = override.Token
	}
	for k, v := range override.Extra {
		if base.Extra == nil {
			base.Extra = make(map[string]string)
		}
		base.Extra[k] = v
	}
}

// openClient connects a client for the resolved connection. The
// returned cleanup disconnects.
func openClient(ctx context.Context, cfg *config.Config, flags *connFlags, broadcaster *events.Broadcaster) (*storage.Client, func(), error) {
	cc, err := connectionConfig(ctx, cfg, flags)
	if err != nil {
		return nil, nil, err
	}

	deps := storage.Deps{
		HTTPTimeout: cfg.HTTPTimeout,
		Retry:       retryConfig(cfg),
	}
	opts := storage.Options{
		Cache:  storage.NewDirCache(cfg.DirCacheTTL, cfg.DirCacheMaxEntries),
		Events: broadcaster,
	}

	client, err := storage.NewClient(cc, deps, opts)
	if err != nil {
		return nil, nil, err
	}

	ok, err := client.Connect(ctx, cc)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("connection to %s failed, check credentials and endpoint", cc.Protocol)
	}
	return client, func() { client.Disconnect() }, nil
}

func retryConfig(cfg *config.Config) retry.Config {
	rc := retry.DefaultConfig()
	if cfg.RetryAttempts > 0 {
		rc.MaxAttempts = cfg.RetryAttempts
	}
	return rc
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, cfg *config.Config) int {
	root := NewRootCmd(cfg, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
