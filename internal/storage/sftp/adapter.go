// Package sftp provides the SSH/SFTP protocol adapter.
package sftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/stardustai/dataset-viewer/internal/storage"
)

// Protocol is the adapter's type tag.
const Protocol = "ssh"

func init() {
	storage.Register(Protocol, func(deps storage.Deps) storage.Adapter {
		return &Adapter{deps: deps}
	})
}

// Adapter holds the SSH transport and the SFTP subsystem client.
type Adapter struct {
	deps   storage.Deps
	ssh    *ssh.Client
	client *sftp.Client
	root   string
}

// Protocol returns "ssh".
func (a *Adapter) Protocol() string { return Protocol }

// Capabilities: SFTP file handles seek, so search works.
func (a *Adapter) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		SupportsSearch:   true,
		DefaultSortBy:    storage.SortByName,
		DefaultSortOrder: storage.SortAsc,
	}
}

// ConnectionName shows user@host.
func (a *Adapter) ConnectionName(cfg *storage.ConnectionConfig) string {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return Protocol
	}
	if cfg.Username != "" {
		return cfg.Username + "@" + u.Hostname()
	}
	return u.Hostname()
}

// PreparePath strips the remote root prefix.
func (a *Adapter) PreparePath(path string, _ *storage.Connection) string {
	if a.root != "" && strings.HasPrefix(path, a.root) {
		path = strings.TrimPrefix(path, a.root)
	}
	return strings.Trim(path, "/")
}

// BuildURL maps a prepared path below the remote root.
func (a *Adapter) BuildURL(path string, _ *storage.Connection) string {
	root := a.root
	if root == "" {
		root = "."
	}
	if path == "" {
		return root
	}
	return strings.TrimSuffix(root, "/") + "/" + path
}

// Connect dials SSH with password or key-file auth, then opens the SFTP
// subsystem. The remote root comes from the URL path or extra "root".
func (a *Adapter) Connect(ctx context.Context, cfg *storage.ConnectionConfig) (*storage.Connection, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, storage.Ef(storage.KindConfig, "connect", "ssh: invalid url %q", cfg.URL)
	}
	if cfg.Username == "" {
		return nil, storage.Ef(storage.KindConfig, "connect", "ssh: username is required")
	}

	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	// A repeated Connect replaces the session; close the old one rather
	// than leaking it.
	if a.client != nil || a.ssh != nil {
		a.Disconnect(nil)
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "22")
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         a.deps.HTTPTimeout,
	}

	dialer := net.Dialer{Timeout: a.deps.HTTPTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, storage.E(storage.KindConnection, "connect", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		netConn.Close()
		return nil, storage.E(storage.KindConnection, "connect", fmt.Errorf("ssh handshake %s: %w", addr, err))
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, storage.E(storage.KindConnection, "connect", fmt.Errorf("open sftp subsystem: %w", err))
	}

	root := strings.TrimSuffix(u.Path, "/")
	if r := cfg.ExtraOr("root", ""); r != "" {
		root = strings.TrimSuffix(r, "/")
	}
	if root != "" {
		if _, err := client.Stat(root); err != nil {
			client.Close()
			sshClient.Close()
			return nil, storage.E(storage.KindConnection, "connect", fmt.Errorf("stat root %s: %w", root, err))
		}
	}

	a.ssh = sshClient
	a.client = client
	a.root = root
	return &storage.Connection{
		Protocol:  Protocol,
		URL:       cfg.URL,
		Username:  cfg.Username,
		Extra:     cfg.Extra,
		Connected: true,
	}, nil
}

func authMethods(cfg *storage.ConnectionConfig) ([]ssh.AuthMethod, error) {
	if keyPath := cfg.ExtraOr("privateKeyPath", ""); keyPath != "" {
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, storage.E(storage.KindConfig, "connect", fmt.Errorf("read private key: %w", err))
		}
		var signer ssh.Signer
		if passphrase := cfg.ExtraOr("passphrase", ""); passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, storage.E(storage.KindConfig, "connect", fmt.Errorf("parse private key: %w", err))
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if cfg.Password != "" {
		return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
	}
	return nil, storage.Ef(storage.KindConfig, "connect", "ssh: password or privateKeyPath is required")
}

// Disconnect closes the SFTP subsystem then the SSH transport.
func (a *Adapter) Disconnect(conn *storage.Connection) error {
	var err error
	if a.client != nil {
		err = a.client.Close()
		a.client = nil
	}
	if a.ssh != nil {
		if cerr := a.ssh.Close(); err == nil {
			err = cerr
		}
		a.ssh = nil
	}
	if conn != nil {
		conn.Connected = false
	}
	return err
}

// List reads the remote directory.
func (a *Adapter) List(_ context.Context, conn *storage.Connection, path string, _ storage.ListOptions) (*storage.ListResult, error) {
	if a.client == nil {
		return nil, storage.ErrNotConnected
	}

	dir := a.BuildURL(path, conn)
	infos, err := a.client.ReadDir(dir)
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

// Read opens the remote file and seeks to offset; length < 0 reads to
// EOF.
func (a *Adapter) Read(_ context.Context, conn *storage.Connection, path string, offset, length int64) (io.ReadCloser, int64, error) {
	if a.client == nil {
		return nil, 0, storage.ErrNotConnected
	}

	f, err := a.client.Open(a.BuildURL(path, conn))
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

// Stat returns the remote file size.
func (a *Adapter) Stat(_ context.Context, conn *storage.Connection, path string) (int64, error) {
	if a.client == nil {
		return 0, storage.ErrNotConnected
	}
	info, err := a.client.Stat(a.BuildURL(path, conn))
	if err != nil {
		return 0, storage.E(storage.KindRead, "stat", err)
	}
	return info.Size(), nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}
