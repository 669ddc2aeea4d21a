// Package localfs provides the local filesystem protocol adapter.
package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stardustai/dataset-viewer/internal/storage"
)

// Protocol is the adapter's type tag.
const Protocol = "local"

func init() {
	storage.Register(Protocol, func(_ storage.Deps) storage.Adapter {
		return &Adapter{}
	})
}

// Adapter serves files under a configured root directory.
type Adapter struct {
	root string
}

// Protocol returns "local".
func (a *Adapter) Protocol() string { return Protocol }

// Capabilities: local files are seekable, so search and sorting are
// fully supported.
func (a *Adapter) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		SupportsSearch:            true,
		SupportsCustomRootDisplay: true,
		DefaultSortBy:             storage.SortByName,
		DefaultSortOrder:          storage.SortAsc,
	}
}

// ConnectionName shows the root directory's base name.
func (a *Adapter) ConnectionName(cfg *storage.ConnectionConfig) string {
	root := cfg.ExtraOr("root", cfg.URL)
	if root == "" {
		return Protocol
	}
	return filepath.Base(filepath.Clean(root))
}

// PreparePath strips the configured root prefix from incoming absolute
// paths, so callers may pass either rooted or relative paths.
func (a *Adapter) PreparePath(path string, _ *storage.Connection) string {
	path = filepath.ToSlash(path)
	root := filepath.ToSlash(a.root)
	if root != "" && strings.HasPrefix(path, root) {
		path = strings.TrimPrefix(path, root)
	}
	return strings.Trim(path, "/")
}

// BuildURL maps a prepared path onto the filesystem.
func (a *Adapter) BuildURL(path string, _ *storage.Connection) string {
	return filepath.Join(a.root, filepath.FromSlash(path))
}

// Connect validates the root directory.
func (a *Adapter) Connect(_ context.Context, cfg *storage.ConnectionConfig) (*storage.Connection, error) {
	root := cfg.ExtraOr("root", cfg.URL)
	if root == "" {
		return nil, storage.Ef(storage.KindConfig, "connect", "local: root path is required")
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, storage.E(storage.KindConnection, "connect", err)
	}
	if !info.IsDir() {
		return nil, storage.Ef(storage.KindConnection, "connect", "local: %s is not a directory", root)
	}

	a.root = filepath.Clean(root)
	return &storage.Connection{
		Protocol:  Protocol,
		URL:       a.root,
		Extra:     cfg.Extra,
		Connected: true,
	}, nil
}

// Disconnect is a no-op for local roots.
func (a *Adapter) Disconnect(conn *storage.Connection) error {
	if conn != nil {
		conn.Connected = false
	}
	return nil
}

// List reads the directory and honors sort hints client-side.
func (a *Adapter) List(_ context.Context, conn *storage.Connection, path string, opts storage.ListOptions) (*storage.ListResult, error) {
	dir := a.BuildURL(path, conn)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, storage.E(storage.KindListing, "list", err)
	}

	entries := make([]storage.FileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		var size int64
		if !de.IsDir() {
			size = info.Size()
		}
		entries = append(entries, storage.FileEntry{
			Path:    joinPath(path, de.Name()),
			Name:    de.Name(),
			Size:    size,
			ModTime: info.ModTime(),
			IsDir:   de.IsDir(),
		})
	}

	sortEntries(entries, opts)
	return &storage.ListResult{Entries: entries}, nil
}

// Read opens the file and seeks to offset; length < 0 reads to EOF.
func (a *Adapter) Read(_ context.Context, conn *storage.Connection, path string, offset, length int64) (io.ReadCloser, int64, error) {
	f, err := os.Open(a.BuildURL(path, conn))
	if err != nil {
		return nil, 0, storage.E(storage.KindRead, "read", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, storage.E(storage.KindRead, "read", err)
	}
	total := info.Size()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, storage.E(storage.KindRead, "read", err)
		}
	}

	if length >= 0 {
		return &limitedReadCloser{Reader: io.LimitReader(f, length), Closer: f}, length, nil
	}

	remaining := total - offset
	if remaining < 0 {
		remaining = 0
	}
	return f, remaining, nil
}

// Stat returns the file size.
func (a *Adapter) Stat(_ context.Context, conn *storage.Connection, path string) (int64, error) {
	info, err := os.Stat(a.BuildURL(path, conn))
	if err != nil {
		return 0, storage.E(storage.KindRead, "stat", err)
	}
	return info.Size(), nil
}

func joinPath(dir, name string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func sortEntries(entries []storage.FileEntry, opts storage.ListOptions) {
	desc := opts.SortOrder == storage.SortDesc
	less := func(i, j int) bool { return entries[i].Name < entries[j].Name }
	switch opts.SortBy {
	case storage.SortBySize:
		less = func(i, j int) bool { return entries[i].Size < entries[j].Size }
	case storage.SortByModified:
		less = func(i, j int) bool { return entries[i].ModTime.Before(entries[j].ModTime) }
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if desc {
			return less(j, i)
		}
		return less(i, j)
	})
}

// limitedReadCloser wraps a LimitReader with a separate Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
