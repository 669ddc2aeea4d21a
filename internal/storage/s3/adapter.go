// Package s3 provides the S3-compatible object storage adapter. It
// treats "/"-delimited key prefixes as directories.
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stardustai/dataset-viewer/internal/storage"
)

// Protocol is the adapter's type tag.
const Protocol = "s3"

// defaultPageSize is the listing page size when the caller gives none.
const defaultPageSize = 1000

func init() {
	storage.Register(Protocol, func(deps storage.Deps) storage.Adapter {
		return &Adapter{deps: deps}
	})
}

// Adapter lists and reads objects in one bucket.
type Adapter struct {
	deps   storage.Deps
	client *awss3.Client
	bucket string
}

// Protocol returns "s3".
func (a *Adapter) Protocol() string { return Protocol }

// Capabilities: S3 pages natively but cannot sort server-side.
func (a *Adapter) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		SupportsSearch:  true,
		DefaultPageSize: defaultPageSize,
	}
}

// ConnectionName shows the bucket.
func (a *Adapter) ConnectionName(cfg *storage.ConnectionConfig) string {
	bucket := cfg.ExtraOr("bucket", "")
	if bucket == "" {
		return Protocol
	}
	return Protocol + "://" + bucket
}

// PrepareConnection derives bucket and endpoint from an s3:// URL when
// the explicit extras are absent, and defaults the region.
func (a *Adapter) PrepareConnection(cfg *storage.ConnectionConfig) error {
	if cfg.Extra == nil {
		cfg.Extra = make(map[string]string)
	}
	if cfg.Extra["bucket"] == "" && strings.HasPrefix(cfg.URL, "s3://") {
		rest := strings.TrimPrefix(cfg.URL, "s3://")
		cfg.Extra["bucket"] = strings.SplitN(rest, "/", 2)[0]
	}
	if cfg.Extra["region"] == "" {
		cfg.Extra["region"] = "us-east-1"
	}
	if cfg.Extra["bucket"] == "" {
		return storage.Ef(storage.KindConfig, "connect", "s3: bucket is required")
	}
	if ep := cfg.Extra["endpoint"]; ep != "" {
		if u, err := url.Parse(ep); err != nil || u.Scheme == "" || u.Host == "" {
			return storage.Ef(storage.KindConfig, "connect", "s3: invalid endpoint %q", ep)
		}
	}
	return nil
}

// Connect builds the SDK client and verifies bucket access with a
// HeadBucket probe.
func (a *Adapter) Connect(ctx context.Context, cfg *storage.ConnectionConfig) (*storage.Connection, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ExtraOr("region", "us-east-1")),
	}
	if cfg.Username != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Username, cfg.Password, ""),
		))
	}
	if endpoint := cfg.ExtraOr("endpoint", ""); endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               endpoint,
					HostnameImmutable: true,
				}, nil
			},
		)
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, storage.E(storage.KindConfig, "connect", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		// Custom endpoints (MinIO and friends) want path-style addressing.
		o.UsePathStyle = cfg.ExtraOr("endpoint", "") != ""
	})

	bucket := cfg.ExtraOr("bucket", "")
	headCtx, cancel := context.WithTimeout(ctx, a.deps.HTTPTimeout)
	defer cancel()
	if _, err := client.HeadBucket(headCtx, &awss3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, storage.E(storage.KindConnection, "connect", fmt.Errorf("head bucket %s: %w", bucket, err))
	}

	a.client = client
	a.bucket = bucket
	return &storage.Connection{
		Protocol:  Protocol,
		URL:       cfg.URL,
		Username:  cfg.Username,
		Extra:     cfg.Extra,
		Connected: true,
	}, nil
}

// Disconnect drops the SDK client.
func (a *Adapter) Disconnect(conn *storage.Connection) error {
	a.client = nil
	if conn != nil {
		conn.Connected = false
	}
	return nil
}

// PreparePath normalizes to a key prefix without surrounding slashes.
func (a *Adapter) PreparePath(path string, _ *storage.Connection) string {
	path = strings.TrimPrefix(path, "s3://"+a.bucket)
	return strings.Trim(path, "/")
}

// BuildURL returns an s3:// locator for display purposes.
func (a *Adapter) BuildURL(path string, _ *storage.Connection) string {
	return "s3://" + a.bucket + "/" + strings.Trim(path, "/")
}

// List issues ListObjectsV2 with "/" as delimiter: common prefixes
// become directories and contents become files. The continuation token
// rides in ListResult.NextMarker.
func (a *Adapter) List(ctx context.Context, _ *storage.Connection, path string, opts storage.ListOptions) (*storage.ListResult, error) {
	if a.client == nil {
		return nil, storage.ErrNotConnected
	}

	prefix := path
	if prefix != "" {
		prefix += "/"
	}

	pageSize := int32(defaultPageSize)
	if opts.PageSize > 0 {
		pageSize = int32(opts.PageSize)
	}

	input := &awss3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(pageSize),
	}
	if opts.Marker != "" {
		input.ContinuationToken = aws.String(opts.Marker)
	}

	out, err := a.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, storage.E(storage.KindListing, "list", err)
	}

	entries := make([]storage.FileEntry, 0, len(out.CommonPrefixes)+len(out.Contents))
	for _, cp := range out.CommonPrefixes {
		if cp.Prefix == nil {
			continue
		}
		key := strings.TrimSuffix(*cp.Prefix, "/")
		entries = append(entries, storage.FileEntry{
			Path:    key,
			Name:    storage.BaseName(key),
			IsDir:   true,
			ModTime: time.Now(),
		})
	}
	for _, obj := range out.Contents {
		if obj.Key == nil || *obj.Key == prefix {
			continue // the directory placeholder object, if any
		}
		e := storage.FileEntry{
			Path:    *obj.Key,
			Name:    storage.BaseName(*obj.Key),
			ModTime: time.Now(),
		}
		if obj.Size != nil {
			e.Size = *obj.Size
		}
		if obj.LastModified != nil {
			e.ModTime = *obj.LastModified
		}
		if obj.ETag != nil {
			e.ETag = strings.Trim(*obj.ETag, `"`)
		}
		entries = append(entries, e)
	}

	result := &storage.ListResult{Entries: entries}
	if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
		result.NextMarker = *out.NextContinuationToken
	}
	return result, nil
}

// Read fetches an object window via a ranged GetObject.
func (a *Adapter) Read(ctx context.Context, _ *storage.Connection, path string, offset, length int64) (io.ReadCloser, int64, error) {
	if a.client == nil {
		return nil, 0, storage.ErrNotConnected
	}

	input := &awss3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(path),
	}
	if offset > 0 || length > 0 {
		var rangeStr string
		if length > 0 {
			rangeStr = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
		} else {
			rangeStr = fmt.Sprintf("bytes=%d-", offset)
		}
		input.Range = aws.String(rangeStr)
	}

	out, err := a.client.GetObject(ctx, input)
	if err != nil {
		return nil, 0, storage.E(storage.KindRead, "read", fmt.Errorf("get object %s: %w", path, err))
	}

	var n int64
	if out.ContentLength != nil {
		n = *out.ContentLength
	}
	return out.Body, n, nil
}

// Stat returns the object size from a HeadObject call.
func (a *Adapter) Stat(ctx context.Context, _ *storage.Connection, path string) (int64, error) {
	if a.client == nil {
		return 0, storage.ErrNotConnected
	}

	out, err := a.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return 0, storage.E(storage.KindRead, "stat", fmt.Errorf("head object %s: %w", path, err))
	}
	if out.ContentLength == nil {
		return 0, storage.ErrSizeUnknown
	}
	return *out.ContentLength, nil
}
