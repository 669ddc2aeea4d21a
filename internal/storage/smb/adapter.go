// Package smb provides the SMB/CIFS network share adapter using a
// native SMB2 client, no OS mount required.
package smb

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	smb2 "github.com/hirochachacha/go-smb2"

	"github.com/stardustai/dataset-viewer/internal/storage"
)

// Protocol is the adapter's type tag.
const Protocol = "smb"

func init() {
	storage.Register(Protocol, func(deps storage.Deps) storage.Adapter {
		return &Adapter{deps: deps}
	})
}

// Adapter holds the SMB session and mounted share.
type Adapter struct {
	deps    storage.Deps
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
}

// Protocol returns "smb".
func (a *Adapter) Protocol() string { return Protocol }

// Capabilities: SMB file handles seek, so search works.
func (a *Adapter) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		SupportsSearch:   true,
		DefaultSortBy:    storage.SortByName,
		DefaultSortOrder: storage.SortAsc,
	}
}

// ConnectionName shows host/share.
func (a *Adapter) ConnectionName(cfg *storage.ConnectionConfig) string {
	host, share, err := splitShareURL(cfg.URL)
	if err != nil {
		return Protocol
	}
	return host + "/" + share
}

// PreparePath converts to the backslash-free relative form go-smb2
// accepts, using forward slashes which the library normalizes.
func (a *Adapter) PreparePath(path string, _ *storage.Connection) string {
	path = strings.ReplaceAll(path, `\`, "/")
	return strings.Trim(path, "/")
}

// BuildURL returns the prepared path itself; shares have no URL form
// beyond the connection's.
func (a *Adapter) BuildURL(path string, _ *storage.Connection) string {
	if path == "" {
		return "."
	}
	return path
}

// Connect dials the server, authenticates with NTLM, and mounts the
// share named in the URL (smb://host/share).
func (a *Adapter) Connect(ctx context.Context, cfg *storage.ConnectionConfig) (*storage.Connection, error) {
	host, share, err := splitShareURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Username == "" {
		return nil, storage.Ef(storage.KindConfig, "connect", "smb: username is required")
	}

	// A repeated Connect replaces the session; close the old one rather
	// than leaking it.
	if a.share != nil || a.session != nil || a.conn != nil {
		a.Disconnect(nil)
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "445")
	}

	dialer := net.Dialer{Timeout: a.deps.HTTPTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, storage.E(storage.KindConnection, "connect", err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.Username,
			Password: cfg.Password,
			Domain:   cfg.ExtraOr("domain", ""),
		},
	}
	session, err := d.DialContext(ctx, netConn)
	if err != nil {
		netConn.Close()
		return nil, storage.E(storage.KindConnection, "connect", fmt.Errorf("smb session %s: %w", addr, err))
	}

	mounted, err := session.Mount(share)
	if err != nil {
		session.Logoff()
		netConn.Close()
		return nil, storage.E(storage.KindConnection, "connect", fmt.Errorf("mount share %s: %w", share, err))
	}

	a.conn = netConn
	a.session = session
	a.share = mounted
	return &storage.Connection{
		Protocol:  Protocol,
		URL:       cfg.URL,
		Username:  cfg.Username,
		Extra:     cfg.Extra,
		Connected: true,
	}, nil
}

// splitShareURL extracts host and share from smb://host/share[/...].
func splitShareURL(raw string) (host, share string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", storage.Ef(storage.KindConfig, "connect", "smb: invalid url %q", raw)
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return "", "", storage.Ef(storage.KindConfig, "connect", "smb: url %q names no share", raw)
	}
	return u.Host, parts[0], nil
}

// Disconnect unmounts and logs off.
func (a *Adapter) Disconnect(conn *storage.Connection) error {
	var err error
	if a.share != nil {
		err = a.share.Umount()
		a.share = nil
	}
	if a.session != nil {
		if lerr := a.session.Logoff(); err == nil {
			err = lerr
		}
		a.session = nil
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	if conn != nil {
		conn.Connected = false
	}
	return err
}

// List reads the share directory.
func (a *Adapter) List(_ context.Context, conn *storage.Connection, path string, _ storage.ListOptions) (*storage.ListResult, error) {
	if a.share == nil {
		return nil, storage.ErrNotConnected
	}

	infos, err := a.share.ReadDir(a.BuildURL(path, conn))
	if err != nil {
		return nil, storage.E(storage.KindListing, "list", err)
	}

	entries := make([]storage.FileEntry, 0, len(infos))
	for _, info := range infos {
		var size int64
		if !info.IsDir() {
			size = info.Size()
		}
		modTime := info.ModTime()
		if modTime.IsZero() {
			modTime = time.Now()
		}
		entryPath := info.Name()
		if path != "" {
			entryPath = strings.Trim(path, "/") + "/" + info.Name()
		}
		entries = append(entries, storage.FileEntry{
			Path:    entryPath,
			Name:    info.Name(),
			Size:    size,
			ModTime: modTime,
			IsDir:   info.IsDir(),
		})
	}
	return &storage.ListResult{Entries: entries}, nil
}

// Read opens the share file and seeks to offset; length < 0 reads to
// EOF.
func (a *Adapter) Read(_ context.Context, conn *storage.Connection, path string, offset, length int64) (io.ReadCloser, int64, error) {
	if a.share == nil {
		return nil, 0, storage.ErrNotConnected
	}

	f, err := a.share.Open(a.BuildURL(path, conn))
	if err != nil {
		return nil, 0, storage.E(storage.KindRead, "read", err)
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, storage.E(storage.KindRead, "read", err)
		}
	}

	if length >= 0 {
		return &limitedReadCloser{Reader: io.LimitReader(f, length), Closer: f}, length, nil
	}

	var remaining int64
	if info, err := f.Stat(); err == nil {
		remaining = info.Size() - offset
		if remaining < 0 {
			remaining = 0
		}
	}
	return f, remaining, nil
}

// Stat returns the share file size.
func (a *Adapter) Stat(_ context.Context, conn *storage.Connection, path string) (int64, error) {
	if a.share == nil {
		return 0, storage.ErrNotConnected
	}
	info, err := a.share.Stat(a.BuildURL(path, conn))
	if err != nil {
		return 0, storage.E(storage.KindRead, "stat", err)
	}
	return info.Size(), nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}
