package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/stardustai/dataset-viewer/internal/events"
	"github.com/stardustai/dataset-viewer/internal/logging"
	"github.com/stardustai/dataset-viewer/internal/metrics"
	"github.com/stardustai/dataset-viewer/internal/textenc"
)

// progressPublishStep is how many bytes may accumulate between progress
// events during a download.
const progressPublishStep = 256 * 1024

// downloadCopyBuf is the copy buffer size for progress-tracked downloads.
const downloadCopyBuf = 64 * 1024

// ListingModer is implemented by adapters whose listing strategy varies
// at runtime (the WebDAV capability detector). Used for metric labels.
type ListingModer interface {
	ListingMode() string
}

// Options carries optional Client collaborators.
type Options struct {
	Cache  *DirCache           // directory listing cache; nil disables caching
	Events *events.Broadcaster // download progress sink; nil disables events
}

// Client is the facade used by all viewer code. It wraps one adapter
// instance plus at most one live connection, and behaves identically
// regardless of backend.
//
// A Client is not safe for concurrent use of the same open file; callers
// serialize per-file operations.
type Client struct {
	adapter Adapter
	conn    *Connection
	cache   *DirCache
	events  *events.Broadcaster
}

// NewClient builds a client for the protocol named in cfg. Unknown
// protocols fail with a config-kind error before any network access.
func NewClient(cfg *ConnectionConfig, deps Deps, opts Options) (*Client, error) {
	adapter, err := NewAdapter(cfg.Protocol, deps)
	if err != nil {
		return nil, err
	}
	return &Client{
		adapter: adapter,
		cache:   opts.Cache,
		events:  opts.Events,
	}, nil
}

// Adapter exposes the underlying adapter (capability flags, naming).
func (c *Client) Adapter() Adapter { return c.adapter }

// Capabilities reports the adapter's declared capabilities.
func (c *Client) Capabilities() Capabilities { return c.adapter.Capabilities() }

// IsConnected reports whether a live connection is held.
func (c *Client) IsConnected() bool { return c.conn != nil && c.conn.Connected }

// Connect builds the backend connection and performs the handshake.
// Ordinary connection failures (bad credentials, unreachable host) are
// reported as false with no error so callers can present retry UI;
// malformed configuration returns a config-kind error.
func (c *Client) Connect(ctx context.Context, cfg *ConnectionConfig) (bool, error) {
	if prep, ok := c.adapter.(ConnectionPreparer); ok {
		if err := prep.PrepareConnection(cfg); err != nil {
			return false, err
		}
	}

	// At most one live connection per client; replacing means tearing
	// down the previous session first.
	if c.conn != nil {
		if err := c.Disconnect(); err != nil {
			logging.Warn("disconnect before reconnect failed",
				zap.String("protocol", cfg.Protocol),
				zap.Error(err))
		}
	}

	conn, err := c.adapter.Connect(ctx, cfg)
	if err != nil {
		if KindOf(err) == KindConfig {
			return false, err
		}
		logging.Warn("connect failed",
			zap.String("protocol", cfg.Protocol),
			zap.Error(err))
		return false, nil
	}

	if post, ok := c.adapter.(PostConnector); ok {
		if err := post.PostConnect(ctx, conn); err != nil {
			c.adapter.Disconnect(conn)
			logging.Warn("post-connect failed",
				zap.String("protocol", cfg.Protocol),
				zap.Error(err))
			return false, nil
		}
	}

	// Fresh connection: all per-connection derived state restarts.
	c.conn = conn
	if c.cache != nil {
		c.cache.Clear()
	}

	logging.Info("connected",
		zap.String("protocol", conn.Protocol),
		zap.String("name", c.adapter.ConnectionName(cfg)))
	return true, nil
}

// Disconnect tears down the live connection and clears derived state.
// Idempotent.
func (c *Client) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.adapter.Disconnect(c.conn)
	c.conn = nil
	if c.cache != nil {
		c.cache.Clear()
	}
	return err
}

// ListDirectory returns the normalized entries of a directory plus any
// pagination marker the backend provides. Sort and page hints are passed
// through; backends that ignore them return unsorted, unpaged results.
func (c *Client) ListDirectory(ctx context.Context, path string, opts ListOptions) (*ListResult, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	path = c.adapter.PreparePath(path, c.conn)

	// Only unpaged first requests are cacheable by path.
	cacheable := c.cache != nil && opts.Marker == ""
	if cacheable {
		if cached := c.cache.Get(path); cached != nil {
			return cached, nil
		}
	}

	start := time.Now()
	result, err := c.adapter.List(ctx, c.conn, path, opts)
	metrics.RecordListing(c.adapter.Protocol(), c.listingMode(), time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}

	if cacheable {
		c.cache.Put(path, result)
	}
	return result, nil
}

func (c *Client) listingMode() string {
	if lm, ok := c.adapter.(ListingModer); ok {
		return lm.ListingMode()
	}
	return "native"
}

// ReadRange returns raw bytes from offset. length < 0 reads to EOF.
// Backends that reject the ranged read get one best-effort unranged
// retry with the window carved out client-side.
func (c *Client) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	path = c.adapter.PreparePath(path, c.conn)

	start := time.Now()
	rc, _, err := c.adapter.Read(ctx, c.conn, path, offset, length)
	if err != nil {
		if offset == 0 && length < 0 {
			return nil, err
		}
		logging.Debug("ranged read failed, retrying unranged",
			zap.String("path", path), zap.Error(err))
		return c.readUnrangedWindow(ctx, path, offset, length, start)
	}
	defer rc.Close()

	data, err := readAll(rc, length)
	if err != nil {
		return nil, E(KindRead, "read", err)
	}
	metrics.RecordRead(c.adapter.Protocol(), int64(len(data)), time.Since(start))
	return data, nil
}

// readUnrangedWindow fetches the whole file and slices out the window.
// Fallback path for backends without range support.
func (c *Client) readUnrangedWindow(ctx context.Context, path string, offset, length int64, start time.Time) ([]byte, error) {
	rc, _, err := c.adapter.Read(ctx, c.conn, path, 0, -1)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	if offset > 0 {
		if _, err := io.CopyN(io.Discard, rc, offset); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, E(KindRead, "read", err)
		}
	}
	data, err := readAll(rc, length)
	if err != nil {
		return nil, E(KindRead, "read", err)
	}
	metrics.RecordRead(c.adapter.Protocol(), int64(len(data)), time.Since(start))
	return data, nil
}

func readAll(r io.Reader, length int64) ([]byte, error) {
	if length >= 0 {
		r = io.LimitReader(r, length)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// GetFileContent reads a full or ranged window of a file and decodes it
// to text using a detected encoding.
func (c *Client) GetFileContent(ctx context.Context, path string, offset, length int64) (*FileContent, error) {
	raw, err := c.ReadRange(ctx, path, offset, length)
	if err != nil {
		return nil, err
	}

	enc := textenc.Detect(raw[:min64(int64(len(raw)), textenc.SampleSize(int64(len(raw))))])
	text, err := textenc.Decode(raw, enc)
	if err != nil {
		return nil, E(KindRead, "decode", err)
	}
	return &FileContent{Text: text, Size: int64(len(raw)), Encoding: enc}, nil
}

// GetFileSize returns the file's byte size from backend metadata without
// fetching the body.
func (c *Client) GetFileSize(ctx context.Context, path string) (int64, error) {
	if !c.IsConnected() {
		return 0, ErrNotConnected
	}
	path = c.adapter.PreparePath(path, c.conn)
	return c.adapter.Stat(ctx, c.conn, path)
}

// GetFileAsBlob returns the complete raw body of a file.
func (c *Client) GetFileAsBlob(ctx context.Context, path string) ([]byte, error) {
	return c.ReadRange(ctx, path, 0, -1)
}

// DownloadFileWithProgress streams a file to savePath/filename, writing
// atomically (temp + rename) and publishing progress events keyed by
// filename. Cancelling ctx stops the transfer, removes the partial
// artifact, and surfaces a distinct cancelled completion.
func (c *Client) DownloadFileWithProgress(ctx context.Context, path, filename, savePath string) (int64, error) {
	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	prepared := c.adapter.PreparePath(path, c.conn)

	total, err := c.adapter.Stat(ctx, c.conn, prepared)
	if err != nil {
		total = 0 // progress without a known total
	}

	rc, _, err := c.adapter.Read(ctx, c.conn, prepared, 0, -1)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	if savePath == "" {
		savePath = "."
	}
	if err := os.MkdirAll(savePath, 0o755); err != nil {
		return 0, E(KindRead, "download", err)
	}
	dest := filepath.Join(savePath, filename)

	tmp, err := os.CreateTemp(savePath, ".dsv-*.part")
	if err != nil {
		return 0, E(KindRead, "download", err)
	}
	tmpName := tmp.Name()

	metrics.DownloadStarted()
	c.publish(events.ProgressEvent{Type: events.ProgressStarted, Filename: filename, Total: total})

	received, copyErr := c.copyWithProgress(ctx, tmp, rc, filename, total)
	closeErr := tmp.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if copyErr == nil {
			copyErr = closeErr
		}
		if errors.Is(copyErr, context.Canceled) || ctx.Err() != nil {
			metrics.DownloadFinished("cancelled")
			c.publish(events.ProgressEvent{Type: events.ProgressCancelled, Filename: filename, Received: received, Total: total})
			return received, fmt.Errorf("download cancelled: %w", context.Canceled)
		}
		metrics.DownloadFinished("error")
		c.publish(events.ProgressEvent{Type: events.ProgressError, Filename: filename, Received: received, Total: total, Error: copyErr.Error()})
		return received, E(KindRead, "download", copyErr)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		metrics.DownloadFinished("error")
		c.publish(events.ProgressEvent{Type: events.ProgressError, Filename: filename, Received: received, Total: total, Error: err.Error()})
		return received, E(KindRead, "download", err)
	}

	metrics.DownloadFinished("completed")
	c.publish(events.ProgressEvent{Type: events.ProgressCompleted, Filename: filename, Received: received, Total: total})
	logging.Info("download completed",
		zap.String("file", dest),
		zap.Int64("bytes", received))
	return received, nil
}

func (c *Client) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, filename string, total int64) (int64, error) {
	buf := make([]byte, downloadCopyBuf)
	var received, lastPublished int64

	for {
		if err := ctx.Err(); err != nil {
			return received, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return received, werr
			}
			received += int64(n)
			if received-lastPublished >= progressPublishStep {
				lastPublished = received
				c.publish(events.ProgressEvent{Type: events.ProgressUpdate, Filename: filename, Received: received, Total: total})
			}
		}
		if err == io.EOF {
			return received, nil
		}
		if err != nil {
			return received, err
		}
	}
}

func (c *Client) publish(ev events.ProgressEvent) {
	if c.events != nil {
		c.events.Publish(ev)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
