package storage

import (
	"context"
	"io"
	"time"

	"github.com/stardustai/dataset-viewer/internal/retry"
)

// ConnectionConfig is the user-supplied description of a backend
// connection. Extra carries backend-specific fields (bucket, region,
// share name, private-key path, organization, root path).
type ConnectionConfig struct {
	Name     string            `json:"name,omitempty"`
	Protocol string            `json:"protocol"`
	URL      string            `json:"url"`
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	Token    string            `json:"token,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// ExtraOr returns a backend-specific config field, or fallback.
func (c *ConnectionConfig) ExtraOr(key, fallback string) string {
	if v, ok := c.Extra[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Connection is a live session to one backend. Created by Adapter.Connect
// on a successful handshake, owned by exactly one Client, destroyed on
// Disconnect.
type Connection struct {
	Protocol  string
	URL       string
	Username  string
	Password  string
	Token     string
	Extra     map[string]string
	Connected bool
}

// Capabilities declares what a protocol adapter supports. Consumed by
// UI-level listing components through the Client.
type Capabilities struct {
	SupportsSearch            bool
	SupportsCustomRootDisplay bool
	DefaultPageSize           int
	DefaultSortBy             string
	DefaultSortOrder          string
}

// Adapter supplies the protocol-specific behavior behind the Client
// facade. Adapters carry no state shared between instances; one adapter
// instance serves one connection.
type Adapter interface {
	// Protocol returns the type tag ("webdav", "s3", "sftp", "smb",
	// "local", "huggingface").
	Protocol() string

	// ConnectionName derives a display name for a config ("user@host",
	// "bucket@endpoint").
	ConnectionName(cfg *ConnectionConfig) string

	// PreparePath normalizes an incoming path for this backend, e.g.
	// stripping a local root prefix. Applied exactly once, by the facade.
	PreparePath(path string, conn *Connection) string

	// BuildURL maps a prepared path to an absolute address.
	BuildURL(path string, conn *Connection) string

	// Capabilities reports the adapter's declared capability flags.
	Capabilities() Capabilities

	// Connect performs the handshake and returns the live connection.
	Connect(ctx context.Context, cfg *ConnectionConfig) (*Connection, error)

	// Disconnect tears down the session. Idempotent.
	Disconnect(conn *Connection) error

	// List enumerates the children of a directory.
	List(ctx context.Context, conn *Connection, path string, opts ListOptions) (*ListResult, error)

	// Read returns content from offset. length < 0 reads to EOF. The
	// returned size is the byte count of this read, not the file total.
	Read(ctx context.Context, conn *Connection, path string, offset, length int64) (io.ReadCloser, int64, error)

	// Stat returns the total byte size of a file.
	Stat(ctx context.Context, conn *Connection, path string) (int64, error)
}

// ConnectionPreparer is an optional adapter hook invoked before Connect
// to fill backend-specific defaults (e.g. S3 region).
type ConnectionPreparer interface {
	PrepareConnection(cfg *ConnectionConfig) error
}

// PostConnector is an optional adapter hook invoked after a successful
// handshake (e.g. verifying a bucket exists).
type PostConnector interface {
	PostConnect(ctx context.Context, conn *Connection) error
}

// Deps carries shared construction dependencies handed to adapter
// factories.
type Deps struct {
	HTTPTimeout time.Duration
	Retry       retry.Config
}
