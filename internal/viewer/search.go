package viewer

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/stardustai/dataset-viewer/internal/logging"
	"github.com/stardustai/dataset-viewer/internal/metrics"
	"github.com/stardustai/dataset-viewer/internal/storage"
	"github.com/stardustai/dataset-viewer/internal/textenc"
)

// Match is one search hit. Line and Column are 1-based. Offset is the
// match position in file bytes; for sampled search it is the window
// base plus the decoded-text position, close enough for seeking.
type Match struct {
	Line      int64  `json:"line"`
	Column    int64  `json:"column"`
	Offset    int64  `json:"offset"`
	Text      string `json:"text"` // the matched line, truncated
	Estimated bool   `json:"estimated"`
}

// SearchResult carries the hits plus whether the match cap cut the
// scan short.
type SearchResult struct {
	Matches []Match `json:"matches"`
	Limited bool    `json:"limited"`
}

// SearchConfig sizes full-file sampling. Zero fields take defaults.
type SearchConfig struct {
	SampleSize int64 // bytes per sampled window
	MaxSamples int   // windows scanned per file
	MaxMatches int   // hard cap on reported matches
}

func (c SearchConfig) withDefaults() SearchConfig {
	if c.SampleSize <= 0 {
		c.SampleSize = 512 * 1024
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = 50
	}
	if c.MaxMatches <= 0 {
		c.MaxMatches = 500
	}
	return c
}

// matchLineMax truncates reported line text.
const matchLineMax = 200

// SearchLoaded finds every literal, case-insensitive occurrence of
// query in the loader's current window. Results carry exact positions
// when the window starts at the top of the file and estimates after a
// jump.
func (l *Loader) SearchLoaded(query string) *SearchResult {
	result := &SearchResult{}
	if query == "" {
		return result
	}

	re := literalPattern(query)
	base, estimated := l.StartLine()

	line := base
	var consumed int64
	for _, text := range strings.SplitAfter(l.Content(), "\n") {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			result.Matches = append(result.Matches, Match{
				Line:   line,
				Column: int64(loc[0]) + 1,
				// Decoded positions track raw offsets exactly for
				// single-byte encodings and closely enough otherwise.
				Offset:    l.startOffset + consumed + int64(loc[0]),
				Text:      clipLine(text),
				Estimated: estimated,
			})
		}
		consumed += int64(len(text))
		line++
	}

	metrics.RecordSearch("loaded", false)
	return result
}

// SearchFull scans the whole file by sampling evenly spaced windows,
// without loading it. Line numbers are estimated from the average line
// length observed in the windows already scanned. Scanning stops at the
// match cap and the result is flagged limited when that happens before
// the last window.
func SearchFull(ctx context.Context, client *storage.Client, path, query string, cfg SearchConfig) (*SearchResult, error) {
	cfg = cfg.withDefaults()
	result := &SearchResult{}
	if query == "" {
		return result, nil
	}

	size, err := client.GetFileSize(ctx, path)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		metrics.RecordSearch("full", false)
		return result, nil
	}

	re := literalPattern(query)

	// Contiguous windows when the budget covers the file, evenly spaced
	// samples otherwise.
	stride := cfg.SampleSize
	sampled := size > cfg.SampleSize*int64(cfg.MaxSamples)
	if sampled {
		stride = size / int64(cfg.MaxSamples)
	}

	var (
		encoding     string
		scannedBytes int64
		scannedLines int64
	)

	for i := 0; i < cfg.MaxSamples; i++ {
		offset := int64(i) * stride
		if offset >= size {
			break
		}
		length := cfg.SampleSize
		if offset+length > size {
			length = size - offset
		}

		raw, err := client.ReadRange(ctx, path, offset, length)
		if err != nil {
			return nil, err
		}
		metrics.RecordSearchWindow()

		if encoding == "" {
			sample := int64(len(raw))
			if want := textenc.SampleSize(size); want < sample {
				sample = want
			}
			encoding = textenc.Detect(raw[:sample])
		}
		text, err := textenc.Decode(raw, encoding)
		if err != nil {
			return nil, storage.E(storage.KindRead, "decode", err)
		}

		bpl := int64(baselineBytesPerLine)
		if scannedLines > 0 {
			bpl = scannedBytes / scannedLines
		}

		hitCap := scanWindow(re, text, offset, bpl, cfg.MaxMatches, result)

		scannedBytes += int64(len(raw))
		scannedLines += int64(strings.Count(text, "\n"))

		if hitCap {
			// Limited only when windows remained unscanned.
			result.Limited = i < cfg.MaxSamples-1 && offset+length < size
			break
		}
	}

	metrics.RecordSearch("full", result.Limited)
	logging.Debug("full search done",
		zap.String("path", path),
		zap.Int("matches", len(result.Matches)),
		zap.Bool("limited", result.Limited),
		zap.Bool("sampled", sampled))
	return result, nil
}

// scanWindow appends this window's matches with estimated line numbers.
// Reports whether the match cap was reached.
func scanWindow(re *regexp.Regexp, text string, base, bytesPerLine int64, maxMatches int, result *SearchResult) bool {
	var consumed int64
	for _, lineText := range strings.SplitAfter(text, "\n") {
		for _, loc := range re.FindAllStringIndex(lineText, -1) {
			if len(result.Matches) >= maxMatches {
				return true
			}
			offset := base + consumed + int64(loc[0])
			result.Matches = append(result.Matches, Match{
				Line:      offset/bytesPerLine + 1,
				Column:    int64(loc[0]) + 1,
				Offset:    offset,
				Text:      clipLine(lineText),
				Estimated: true,
			})
		}
		consumed += int64(len(lineText))
	}
	return len(result.Matches) >= maxMatches
}

// SeekToMatch recenters the loader's window around a full-search hit so
// the surrounding context is loaded.
func (l *Loader) SeekToMatch(ctx context.Context, m Match) error {
	offset := m.Offset - l.cfg.ChunkSize/2
	if offset < 0 {
		offset = 0
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

// literalPattern builds a case-insensitive matcher for the query text
// taken literally.
func literalPattern(query string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(query))
}

func clipLine(text string) string {
	text = strings.TrimRight(text, "\r\n")
	if len(text) > matchLineMax {
		return text[:matchLineMax]
	}
	return text
}
