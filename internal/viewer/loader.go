// Package viewer implements windowed text loading and search over
// files reachable through a storage client. Files larger than a
// threshold are streamed chunk by chunk; smaller files load whole.
package viewer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/stardustai/dataset-viewer/internal/logging"
	"github.com/stardustai/dataset-viewer/internal/storage"
	"github.com/stardustai/dataset-viewer/internal/textenc"
)

// baselineBytesPerLine seeds line estimation before any content has
// been observed.
const baselineBytesPerLine = 50

// LoaderConfig sizes the loading behavior. Zero fields take defaults.
type LoaderConfig struct {
	ChunkSize            int64 // bytes per LoadMore request
	InitialLoadThreshold int64 // files at or below this load whole
}

func (c LoaderConfig) withDefaults() LoaderConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1 << 20
	}
	if c.InitialLoadThreshold <= 0 {
		c.InitialLoadThreshold = 1 << 20
	}
	return c
}

// Loader holds the loaded window of one remote file. Line numbers are
// exact while the window starts at offset zero and estimated after a
// percentage jump.
type Loader struct {
	client *storage.Client
	cfg    LoaderConfig
	path   string

	size     int64
	encoding string

	content     strings.Builder
	startOffset int64 // file offset of the window start
	nextOffset  int64 // file offset of the next unread byte
	startLine   int64 // line number at window start, 1-based
	estimated   bool  // startLine is an estimate
}

// Open stats the file and loads either the whole body or the first
// chunk, detecting the text encoding from a size-scaled sample.
func Open(ctx context.Context, client *storage.Client, path string, cfg LoaderConfig) (*Loader, error) {
	cfg = cfg.withDefaults()

	size, err := client.GetFileSize(ctx, path)
	if err != nil {
		return nil, err
	}

	l := &Loader{
		client:    client,
		cfg:       cfg,
		path:      path,
		size:      size,
		startLine: 1,
	}

	initial := size
	if size > cfg.InitialLoadThreshold {
		initial = cfg.ChunkSize
	}
	if err := l.loadWindow(ctx, 0, initial); err != nil {
		return nil, err
	}

	logging.Debug("opened file",
		zap.String("path", path),
		zap.Int64("size", size),
		zap.String("encoding", l.encoding),
		zap.Bool("partial", !l.AtEnd()))
	return l, nil
}

// loadWindow replaces the window with [offset, offset+length) decoded
// with the file's encoding. Detection runs once, on the first window.
func (l *Loader) loadWindow(ctx context.Context, offset, length int64) error {
	raw, err := l.client.ReadRange(ctx, l.path, offset, length)
	if err != nil {
		return err
	}

	if l.encoding == "" {
		sample := int64(len(raw))
		if want := textenc.SampleSize(l.size); want < sample {
			sample = want
		}
		l.encoding = textenc.Detect(raw[:sample])
	}

	text, err := textenc.Decode(raw, l.encoding)
	if err != nil {
		return storage.E(storage.KindRead, "decode", err)
	}

	l.content.Reset()
	l.content.WriteString(text)
	l.startOffset = offset
	l.nextOffset = offset + int64(len(raw))
	return nil
}

// LoadMore appends the next chunk to the window. Returns false when the
// end of the file was already reached.
func (l *Loader) LoadMore(ctx context.Context) (bool, error) {
	if l.AtEnd() {
		return false, nil
	}

	length := l.cfg.ChunkSize
	if remaining := l.size - l.nextOffset; remaining < length {
		length = remaining
	}

	raw, err := l.client.ReadRange(ctx, l.path, l.nextOffset, length)
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		l.nextOffset = l.size
		return false, nil
	}

	text, err := textenc.Decode(raw, l.encoding)
	if err != nil {
		return false, storage.E(storage.KindRead, "decode", err)
	}
	l.content.WriteString(text)
	l.nextOffset += int64(len(raw))
	return true, nil
}

// JumpToPercent repositions the window at roughly percent% of the file
// and loads one chunk there. The reported start line becomes an
// estimate derived from the average line length observed so far.
func (l *Loader) JumpToPercent(ctx context.Context, percent float64) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	offset := int64(float64(l.size) * percent / 100)
	if offset >= l.size {
		offset = l.size - l.cfg.ChunkSize
		if offset < 0 {
			offset = 0
		}
	}

	bpl := l.bytesPerLine()
	if err := l.loadWindow(ctx, offset, l.cfg.ChunkSize); err != nil {
		return err
	}

	if offset == 0 {
		l.startLine = 1
		l.estimated = false
		return nil
	}
	l.startLine = offset/bpl + 1
	l.estimated = true
	return nil
}

// bytesPerLine reports the observed average line length of the current
// window, or the baseline when nothing usable is loaded.
func (l *Loader) bytesPerLine() int64 {
	text := l.content.String()
	lines := int64(strings.Count(text, "\n"))
	if lines == 0 || l.nextOffset == l.startOffset {
		return baselineBytesPerLine
	}
	return (l.nextOffset - l.startOffset) / lines
}

// Content returns the decoded text of the current window.
func (l *Loader) Content() string { return l.content.String() }

// Size returns the file's total byte size.
func (l *Loader) Size() int64 { return l.size }

// Encoding returns the detected encoding name.
func (l *Loader) Encoding() string { return l.encoding }

// Path returns the file path this loader serves.
func (l *Loader) Path() string { return l.path }

// StartOffset returns the file offset of the window start.
func (l *Loader) StartOffset() int64 { return l.startOffset }

// LoadedBytes returns how many raw bytes the window covers.
func (l *Loader) LoadedBytes() int64 { return l.nextOffset - l.startOffset }

// StartLine returns the line number at the window start and whether it
// is an estimate.
func (l *Loader) StartLine() (line int64, estimated bool) {
	return l.startLine, l.estimated
}

// AtEnd reports whether the window reaches the end of the file.
func (l *Loader) AtEnd() bool { return l.nextOffset >= l.size }

// Progress reports the loaded fraction in percent.
func (l *Loader) Progress() float64 {
	if l.size == 0 {
		return 100
	}
	return float64(l.nextOffset) / float64(l.size) * 100
}
