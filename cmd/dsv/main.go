// dsv browses, streams, and searches files across storage backends:
// WebDAV, S3, SSH/SFTP, SMB, local directories, and Hugging Face
// dataset repositories.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/stardustai/dataset-viewer/internal/cli"
	"github.com/stardustai/dataset-viewer/internal/config"
	"github.com/stardustai/dataset-viewer/internal/logging"

	// Protocol adapters register themselves at import time.
	_ "github.com/stardustai/dataset-viewer/internal/storage/huggingface"
	_ "github.com/stardustai/dataset-viewer/internal/storage/localfs"
	_ "github.com/stardustai/dataset-viewer/internal/storage/s3"
	_ "github.com/stardustai/dataset-viewer/internal/storage/sftp"
	_ "github.com/stardustai/dataset-viewer/internal/storage/smb"
	_ "github.com/stardustai/dataset-viewer/internal/storage/webdav"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := cli.Execute(ctx, cfg)

	// os.Exit skips defers, so tear down explicitly.
	stop()
	logging.Sync()
	os.Exit(code)
}
