// Package textenc detects and decodes text encodings for file content.
package textenc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SampleSize returns how many leading bytes to sample for detection,
// scaled to the file size: whole file under 1 KiB, 4 KiB under 100 KiB,
// 8 KiB otherwise.
func SampleSize(fileSize int64) int64 {
	switch {
	case fileSize < 1024:
		return fileSize
	case fileSize < 100*1024:
		return 4 * 1024
	default:
		return 8 * 1024
	}
}

// Detect guesses the charset of sample. UTF-8 BOMs short-circuit; an
// undetectable sample falls back to utf-8.
func Detect(sample []byte) string {
	if len(sample) == 0 {
		return "utf-8"
	}
	if bytes.HasPrefix(sample, []byte{0xEF, 0xBB, 0xBF}) {
		return "utf-8"
	}
	if bytes.HasPrefix(sample, []byte{0xFF, 0xFE}) {
		return "utf-16le"
	}
	if bytes.HasPrefix(sample, []byte{0xFE, 0xFF}) {
		return "utf-16be"
	}

	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || result == nil || result.Charset == "" {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// Decode converts raw bytes to a string using the named encoding.
// Unknown encodings are decoded as UTF-8 rather than failing, since
// detection is a heuristic.
func Decode(raw []byte, name string) (string, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "ascii":
		return string(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})), nil
	case "utf-16le":
		return decodeWith(raw, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder())
	case "utf-16be":
		return decodeWith(raw, unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder())
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return string(raw), nil
	}
	return decodeWith(raw, enc.NewDecoder())
}

func decodeWith(raw []byte, dec transform.Transformer) (string, error) {
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return string(out), nil
}
