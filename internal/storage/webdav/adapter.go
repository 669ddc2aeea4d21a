// Package webdav implements the hierarchical-file protocol adapter.
//
// Many servers exposing this protocol only partially implement it: some
// accept PROPFIND but answer with an HTML error page, others reject the
// verb outright. The adapter therefore runs a one-time capability
// detection on the first listing of each connection and remembers the
// outcome for the connection's lifetime.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/stardustai/dataset-viewer/internal/logging"
	"github.com/stardustai/dataset-viewer/internal/metrics"
	"github.com/stardustai/dataset-viewer/internal/storage"
	"github.com/stardustai/dataset-viewer/internal/transport"
)

// Protocol is the adapter's type tag.
const Protocol = "webdav"

func init() {
	storage.Register(Protocol, func(deps storage.Deps) storage.Adapter {
		return &Adapter{deps: deps}
	})
}

// listState is the per-connection capability record: which listing
// method the server actually supports. Mutated only by detection inside
// List; reset only by a fresh Connect.
type listState int

const (
	stateUndetermined listState = iota
	stateStructuredConfirmed
	statePlainConfirmed
)

func (s listState) String() string {
	switch s {
	case stateStructuredConfirmed:
		return "structured"
	case statePlainConfirmed:
		return "plain"
	default:
		return "undetermined"
	}
}

// Adapter talks WebDAV over the shared HTTP transport. One instance
// serves one connection.
type Adapter struct {
	deps  storage.Deps
	tr    *transport.Client
	state listState
}

// Protocol returns "webdav".
func (a *Adapter) Protocol() string { return Protocol }

// ListingMode exposes the capability state for metric labels.
func (a *Adapter) ListingMode() string { return a.state.String() }

// Capabilities: ranged reads make full-file search viable; the server
// controls ordering and offers no paging.
func (a *Adapter) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		SupportsSearch:   true,
		DefaultSortBy:    storage.SortByName,
		DefaultSortOrder: storage.SortAsc,
	}
}

// ConnectionName derives "host" or "user@host" from the base URL.
func (a *Adapter) ConnectionName(cfg *storage.ConnectionConfig) string {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return cfg.URL
	}
	if cfg.Username != "" {
		return cfg.Username + "@" + u.Host
	}
	return u.Host
}

// PreparePath trims the leading slash so paths join cleanly onto the
// base URL.
func (a *Adapter) PreparePath(path string, _ *storage.Connection) string {
	return strings.TrimPrefix(path, "/")
}

// BuildURL joins a prepared path onto the connection's base address,
// escaping each segment.
func (a *Adapter) BuildURL(path string, conn *storage.Connection) string {
	base := strings.TrimSuffix(conn.URL, "/")
	if path == "" {
		return base + "/"
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return base + "/" + strings.Join(segs, "/")
}

// Connect verifies the server is reachable and credentials are accepted.
// A server rejecting PROPFIND outright is still accepted here; listing
// detection handles that case later.
func (a *Adapter) Connect(ctx context.Context, cfg *storage.ConnectionConfig) (*storage.Connection, error) {
	if cfg.URL == "" {
		return nil, storage.Ef(storage.KindConfig, "connect", "webdav: url is required")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, storage.Ef(storage.KindConfig, "connect", "webdav: url must be http(s), got %q", cfg.URL)
	}

	a.tr = transport.New(transport.Config{
		Timeout:     a.deps.HTTPTimeout,
		RetryConfig: a.deps.Retry,
		Auth: transport.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
			Token:    cfg.Token,
		},
	})
	a.state = stateUndetermined

	resp, err := a.tr.Do(ctx, "PROPFIND", strings.TrimSuffix(cfg.URL, "/")+"/",
		map[string]string{"Depth": "0", "Content-Type": "application/xml"},
		[]byte(propfindBody))
	if err != nil {
		return nil, storage.E(storage.KindConnection, "connect", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, storage.Ef(storage.KindConnection, "connect", "webdav: authentication rejected (%d)", resp.StatusCode)
	}

	return &storage.Connection{
		Protocol:  Protocol,
		URL:       cfg.URL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Token:     cfg.Token,
		Extra:     cfg.Extra,
		Connected: true,
	}, nil
}

// Disconnect drops the session. Idempotent.
func (a *Adapter) Disconnect(conn *storage.Connection) error {
	if conn != nil {
		conn.Connected = false
	}
	a.state = stateUndetermined
	return nil
}

// List enumerates a directory. In Undetermined state it probes the
// structured method first and falls back to a plain GET; a confirmed
// method is reused for every later call on this connection, trading one
// extra round trip on the first listing for deterministic behavior on
// all subsequent ones.
func (a *Adapter) List(ctx context.Context, conn *storage.Connection, path string, _ storage.ListOptions) (*storage.ListResult, error) {
	switch a.state {
	case stateStructuredConfirmed:
		result, err := a.listStructured(ctx, conn, path)
		return result, asListingErr(err)
	case statePlainConfirmed:
		result, err := a.listPlain(ctx, conn, path)
		return result, asListingErr(err)
	}

	result, structuredErr := a.listStructured(ctx, conn, path)
	if structuredErr == nil {
		a.state = stateStructuredConfirmed
		metrics.RecordDetection("structured")
		logging.Info("listing capability detected",
			zap.String("mode", "structured"),
			zap.String("url", conn.URL))
		return result, nil
	}

	result, plainErr := a.listPlain(ctx, conn, path)
	if plainErr == nil {
		a.state = statePlainConfirmed
		metrics.RecordDetection("plain")
		logging.Info("listing capability detected",
			zap.String("mode", "plain"),
			zap.String("url", conn.URL),
			zap.NamedError("structured_error", structuredErr))
		return result, nil
	}

	// Both attempts failed: stay Undetermined so the next call retries
	// detection from scratch, and surface the second failure. A parse
	// failure keeps its kind; the server answered, we could not read it.
	metrics.RecordDetection("failed")
	if storage.KindOf(plainErr) == storage.KindParse {
		return nil, plainErr
	}
	return nil, storage.E(storage.KindListing, "list",
		fmt.Errorf("structured and plain listing failed: %w", plainErr))
}

// listStructured issues the PROPFIND Depth:1 probe and parses the
// multistatus response.
func (a *Adapter) listStructured(ctx context.Context, conn *storage.Connection, path string) (*storage.ListResult, error) {
	dirURL := a.dirURL(conn, path)

	resp, err := a.tr.Do(ctx, "PROPFIND", dirURL,
		map[string]string{"Depth": "1", "Content-Type": "application/xml"},
		[]byte(propfindBody))
	if err != nil {
		return nil, fmt.Errorf("propfind %s: %w", dirURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("propfind %s: read body: %w", dirURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("propfind %s: status %d", dirURL, resp.StatusCode)
	}
	if !looksStructured(resp.Header.Get("Content-Type"), body) {
		return nil, fmt.Errorf("propfind %s: response not recognizably structured (content-type %q)",
			dirURL, resp.Header.Get("Content-Type"))
	}

	davEntries, err := parseMultistatus(body)
	if err != nil {
		return nil, fmt.Errorf("propfind %s: %w", dirURL, err)
	}

	return &storage.ListResult{Entries: filterEntries(davEntries, path, basePath(conn.URL))}, nil
}

// listPlain fetches the directory with an unrestricted GET and parses
// the body as an HTML index or, failing that, a JSON array.
func (a *Adapter) listPlain(ctx context.Context, conn *storage.Connection, path string) (*storage.ListResult, error) {
	dirURL := a.dirURL(conn, path)

	resp, err := a.tr.Do(ctx, http.MethodGet, dirURL, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", dirURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: status %d", dirURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: read body: %w", dirURL, err)
	}

	plain := parseHTMLIndex(body)
	if plain == nil {
		plain = parseJSONIndex(body)
	}
	if plain == nil {
		return nil, storage.Ef(storage.KindParse, "list",
			"directory body at %s is neither an HTML index nor a JSON array", dirURL)
	}

	entries := make([]storage.FileEntry, 0, len(plain))
	for _, p := range plain {
		entries = append(entries, storage.FileEntry{
			Path:    joinPath(path, p.name),
			Name:    p.name,
			Size:    p.size,
			ModTime: p.modTime,
			IsDir:   p.isDir,
		})
	}
	return &storage.ListResult{Entries: entries}, nil
}

// filterEntries maps multistatus entries to FileEntries. Filtering order
// matters: parent-directory indicators first, then the queried directory
// itself (matched in both server-absolute and base-relative spellings,
// normalized to a single trailing slash), then, for a root request,
// the root entry.
func filterEntries(davEntries []davEntry, requested, basePath string) []storage.FileEntry {
	requestedNorm := normalizeDirPath(requested)
	selfAbs := normalizeDirPath(joinPath(basePath, strings.Trim(requested, "/")))
	isRoot := requestedNorm == "/"

	entries := make([]storage.FileEntry, 0, len(davEntries))
	for _, d := range davEntries {
		ref := d.href
		if ref == ".." || strings.HasSuffix(strings.TrimSuffix(ref, "/"), "/..") {
			continue
		}
		refNorm := normalizeDirPath(ref)
		if refNorm == requestedNorm || refNorm == selfAbs {
			continue
		}
		if isRoot && (ref == "" || refNorm == "/" || refNorm == normalizeDirPath(basePath)) {
			continue
		}

		// Strip the server mount prefix so paths stay protocol-relative.
		p := strings.TrimSuffix(ref, "/")
		if basePath != "" && basePath != "/" && strings.HasPrefix(p, basePath) {
			p = strings.TrimPrefix(p, basePath)
		}
		p = strings.TrimPrefix(p, "/")
		name := storage.BaseName(p)
		if name == "" || name == "/" {
			continue
		}
		size := d.size
		if d.isDir {
			size = 0
		}
		entries = append(entries, storage.FileEntry{
			Path:    p,
			Name:    name,
			Size:    size,
			ModTime: d.modTime,
			IsDir:   d.isDir,
		})
	}
	return entries
}

// basePath returns the path portion of the connection's base URL,
// without a trailing slash.
func basePath(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Path, "/")
}

// asListingErr tags a confirmed-mode listing failure with the listing
// kind, preserving any kind the inner layers already assigned.
func asListingErr(err error) error {
	if err == nil || storage.KindOf(err) != storage.KindUnknown {
		return err
	}
	return storage.E(storage.KindListing, "list", err)
}

// normalizeDirPath reduces a path to leading-slash, single-trailing-slash
// form for self-comparison: "docs" -> "/docs/".
func normalizeDirPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return "/" + p + "/"
}

func joinPath(dir, name string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// dirURL builds the collection URL for a listing request, always with a
// trailing slash.
func (a *Adapter) dirURL(conn *storage.Connection, path string) string {
	u := a.BuildURL(path, conn)
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// Read fetches content from offset. Servers that ignore the Range
// header and answer 200 get the window carved out client-side.
func (a *Adapter) Read(ctx context.Context, conn *storage.Connection, path string, offset, length int64) (io.ReadCloser, int64, error) {
	fileURL := a.BuildURL(path, conn)

	resp, err := a.tr.GetRange(ctx, fileURL, offset, length)
	if err != nil {
		return nil, 0, storage.E(storage.KindRead, "read", err)
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		return resp.Body, resp.ContentLength, nil
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		// Full body; honor the requested window ourselves.
		if offset > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil && err != io.EOF {
				resp.Body.Close()
				return nil, 0, storage.E(storage.KindRead, "read", err)
			}
		}
		if length >= 0 {
			return newLimitedBody(resp.Body, length), length, nil
		}
		return resp.Body, resp.ContentLength, nil
	default:
		resp.Body.Close()
		return nil, 0, storage.Ef(storage.KindRead, "read", "get %s: status %d", fileURL, resp.StatusCode)
	}
}

// Stat returns the file size from response metadata without a body.
func (a *Adapter) Stat(ctx context.Context, conn *storage.Connection, path string) (int64, error) {
	size, err := a.tr.SizeOf(ctx, a.BuildURL(path, conn))
	if err != nil {
		return 0, storage.E(storage.KindRead, "stat", errors.Join(storage.ErrSizeUnknown, err))
	}
	return size, nil
}

// limitedBody caps a response body at n bytes while keeping Close.
type limitedBody struct {
	io.Reader
	closer io.Closer
}

func newLimitedBody(rc io.ReadCloser, n int64) io.ReadCloser {
	return &limitedBody{Reader: io.LimitReader(rc, n), closer: rc}
}

func (l *limitedBody) Close() error { return l.closer.Close() }
