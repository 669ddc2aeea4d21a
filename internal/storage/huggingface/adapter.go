// Package huggingface provides the adapter for dataset repositories
// hosted behind the Hugging Face Hub HTTP API.
package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stardustai/dataset-viewer/internal/storage"
	"github.com/stardustai/dataset-viewer/internal/transport"
)

// Protocol is the adapter's type tag.
const Protocol = "huggingface"

// defaultEndpoint is the public hub.
const defaultEndpoint = "https://huggingface.co"

// defaultPageSize matches the hub's tree API page size.
const defaultPageSize = 1000

func init() {
	storage.Register(Protocol, func(deps storage.Deps) storage.Adapter {
		return &Adapter{deps: deps}
	})
}

// Adapter browses one dataset repository at a pinned revision.
type Adapter struct {
	deps     storage.Deps
	tr       *transport.Client
	endpoint string
	repo     string
	revision string
}

// Protocol returns "huggingface".
func (a *Adapter) Protocol() string { return Protocol }

// Capabilities: the hub serves ranged reads, pages natively, and the
// root shows the organization rather than a path.
func (a *Adapter) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		SupportsSearch:            true,
		SupportsCustomRootDisplay: true,
		DefaultPageSize:           defaultPageSize,
	}
}

// ConnectionName shows hf://{org} of the configured repository.
func (a *Adapter) ConnectionName(cfg *storage.ConnectionConfig) string {
	repo := cfg.ExtraOr("repo", "")
	if repo == "" {
		repo = repoFromURL(cfg.URL)
	}
	org := strings.SplitN(repo, "/", 2)[0]
	if org == "" {
		return Protocol
	}
	return "hf://" + org
}

// PrepareConnection derives the repo from an hf:// URL and pins the
// revision default.
func (a *Adapter) PrepareConnection(cfg *storage.ConnectionConfig) error {
	if cfg.Extra == nil {
		cfg.Extra = make(map[string]string)
	}
	if cfg.Extra["repo"] == "" {
		cfg.Extra["repo"] = repoFromURL(cfg.URL)
	}
	if cfg.Extra["repo"] == "" || !strings.Contains(cfg.Extra["repo"], "/") {
		return storage.Ef(storage.KindConfig, "connect", "huggingface: repo must be org/name, got %q", cfg.Extra["repo"])
	}
	if cfg.Extra["revision"] == "" {
		cfg.Extra["revision"] = "main"
	}
	if cfg.Extra["endpoint"] == "" {
		cfg.Extra["endpoint"] = defaultEndpoint
	}
	return nil
}

func repoFromURL(raw string) string {
	if strings.HasPrefix(raw, "hf://") {
		return strings.Trim(strings.TrimPrefix(raw, "hf://"), "/")
	}
	return ""
}

// PreparePath trims to a repo-relative path.
func (a *Adapter) PreparePath(path string, _ *storage.Connection) string {
	path = strings.TrimPrefix(path, "hf://"+a.repo)
	return strings.Trim(path, "/")
}

// BuildURL returns the resolve URL used for content reads.
func (a *Adapter) BuildURL(path string, _ *storage.Connection) string {
	return fmt.Sprintf("%s/datasets/%s/resolve/%s/%s",
		a.endpoint, a.repo, a.revision, escapePath(strings.Trim(path, "/")))
}

// Connect probes the dataset's metadata endpoint to validate the repo
// and any access token.
func (a *Adapter) Connect(ctx context.Context, cfg *storage.ConnectionConfig) (*storage.Connection, error) {
	a.endpoint = strings.TrimSuffix(cfg.ExtraOr("endpoint", defaultEndpoint), "/")
	a.repo = cfg.Extra["repo"]
	a.revision = cfg.ExtraOr("revision", "main")
	a.tr = transport.New(transport.Config{
		Timeout:     a.deps.HTTPTimeout,
		RetryConfig: a.deps.Retry,
		Auth:        transport.Auth{Token: cfg.Token},
	})

	probeURL := fmt.Sprintf("%s/api/datasets/%s", a.endpoint, a.repo)
	resp, err := a.tr.Do(ctx, http.MethodGet, probeURL, nil, nil)
	if err != nil {
		return nil, storage.E(storage.KindConnection, "connect", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, storage.Ef(storage.KindConnection, "connect", "huggingface: access denied for %s (status %d)", a.repo, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, storage.Ef(storage.KindConnection, "connect", "huggingface: dataset %s not found", a.repo)
	case resp.StatusCode >= 300:
		return nil, storage.Ef(storage.KindConnection, "connect", "huggingface: probe failed with status %d", resp.StatusCode)
	}

	return &storage.Connection{
		Protocol:  Protocol,
		URL:       cfg.URL,
		Token:     cfg.Token,
		Extra:     cfg.Extra,
		Connected: true,
	}, nil
}

// Disconnect drops the HTTP client.
func (a *Adapter) Disconnect(conn *storage.Connection) error {
	a.tr = nil
	if conn != nil {
		conn.Connected = false
	}
	return nil
}

// treeEntry is one item of the hub's tree API response.
type treeEntry struct {
	Type       string `json:"type"` // "file" or "directory"
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	LastCommit *struct {
		Date time.Time `json:"date"`
	} `json:"lastCommit"`
}

// List calls the tree API. The hub paginates with an RFC 5988 Link
// header; the next page URL rides in ListResult.NextMarker verbatim.
func (a *Adapter) List(ctx context.Context, _ *storage.Connection, path string, opts storage.ListOptions) (*storage.ListResult, error) {
	if a.tr == nil {
		return nil, storage.ErrNotConnected
	}

	listURL := opts.Marker
	if listURL == "" {
		listURL = fmt.Sprintf("%s/api/datasets/%s/tree/%s", a.endpoint, a.repo, a.revision)
		if p := strings.Trim(path, "/"); p != "" {
			listURL += "/" + escapePath(p)
		}
	}

	resp, err := a.tr.Do(ctx, http.MethodGet, listURL, nil, nil)
	if err != nil {
		return nil, storage.E(storage.KindListing, "list", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, storage.Ef(storage.KindListing, "list", "huggingface: tree request failed with status %d", resp.StatusCode)
	}

	var raw []treeEntry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, storage.E(storage.KindParse, "list", err)
	}

	entries := make([]storage.FileEntry, 0, len(raw))
	for _, r := range raw {
		isDir := r.Type == "directory"
		var size int64
		if !isDir {
			size = r.Size
		}
		modTime := time.Now()
		if r.LastCommit != nil && !r.LastCommit.Date.IsZero() {
			modTime = r.LastCommit.Date
		}
		entries = append(entries, storage.FileEntry{
			Path:    r.Path,
			Name:    storage.BaseName(r.Path),
			Size:    size,
			ModTime: modTime,
			IsDir:   isDir,
		})
	}

	return &storage.ListResult{
		Entries:    entries,
		NextMarker: nextPageURL(resp.Header.Get("Link")),
	}, nil
}

// nextPageURL extracts the rel="next" target from a Link header.
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.IndexByte(part, '<')
		end := strings.IndexByte(part, '>')
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

// Read fetches a window of a file via a ranged GET on the resolve URL.
func (a *Adapter) Read(ctx context.Context, conn *storage.Connection, path string, offset, length int64) (io.ReadCloser, int64, error) {
	if a.tr == nil {
		return nil, 0, storage.ErrNotConnected
	}

	resp, err := a.tr.GetRange(ctx, a.BuildURL(path, conn), offset, length)
	if err != nil {
		return nil, 0, storage.E(storage.KindRead, "read", err)
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		return resp.Body, resp.ContentLength, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Server ignored the range; discard up to offset client-side.
		if offset > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
				resp.Body.Close()
				return nil, 0, storage.E(storage.KindRead, "read", err)
			}
		}
		if length >= 0 {
			return &limitedReadCloser{Reader: io.LimitReader(resp.Body, length), Closer: resp.Body}, length, nil
		}
		return resp.Body, resp.ContentLength, nil
	default:
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, 0, storage.Ef(storage.KindRead, "read", "huggingface: read %s failed with status %d", path, resp.StatusCode)
	}
}

// Stat sizes a file via the transport's HEAD-then-range probe.
func (a *Adapter) Stat(ctx context.Context, conn *storage.Connection, path string) (int64, error) {
	if a.tr == nil {
		return 0, storage.ErrNotConnected
	}
	n, err := a.tr.SizeOf(ctx, a.BuildURL(path, conn))
	if err != nil {
		return 0, storage.E(storage.KindRead, "stat", err)
	}
	return n, nil
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}
