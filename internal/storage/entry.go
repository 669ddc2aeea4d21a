// Package storage defines the protocol Adapter contract and the Client
// facade that gives callers one view of directory listings and content
// reads across WebDAV, S3, SFTP, SMB, local, and HuggingFace backends.
package storage

import (
	"path"
	"strings"
	"time"
)

// FileEntry represents one item in a directory listing.
type FileEntry struct {
	Path        string    `json:"path"`     // protocol-relative full path
	Name        string    `json:"name"`     // last path segment, never empty
	Size        int64     `json:"size"`     // bytes; 0 for directories
	ModTime     time.Time `json:"mod_time"`
	IsDir       bool      `json:"is_dir"`
	ContentType string    `json:"content_type,omitempty"`
	ETag        string    `json:"etag,omitempty"` // opaque revision tag
}

// Sort field and order hints for ListOptions. Backends that cannot honor
// them return results in backend order.
const (
	SortByName     = "name"
	SortBySize     = "size"
	SortByModified = "modified"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListOptions carries optional pagination and sorting hints.
type ListOptions struct {
	SortBy    string
	SortOrder string
	PageSize  int
	Marker    string // continuation marker from a previous ListResult
}

// ListResult is a normalized directory listing.
type ListResult struct {
	Entries    []FileEntry
	NextMarker string // non-empty when the backend has more entries
}

// FileContent is decoded text content returned by Client.GetFileContent.
type FileContent struct {
	Text     string
	Size     int64  // byte length of the raw content
	Encoding string // detected encoding name (e.g. "utf-8", "gbk")
}

// BaseName returns the last segment of a slash path, or "/" for the root.
func BaseName(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return path.Base(p)
}
