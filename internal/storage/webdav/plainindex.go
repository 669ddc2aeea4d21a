package webdav

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// plainEntry is one entry recovered from an HTML or JSON directory index.
type plainEntry struct {
	name    string
	isDir   bool
	size    int64
	modTime time.Time
}

// parentLinkTexts are anchor texts that mark a parent-directory link in
// common index pages, compared case-insensitively.
var parentLinkTexts = []string{
	"parent directory",
	"parent dir",
	"上级目录",
	"..",
	"../",
}

// parseHTMLIndex extracts entries from an anchor-based directory index.
// A page whose anchors all filter out is still an index; an empty
// directory renders with just its parent link, and that must list as
// empty, not as unparseable. Returns nil only when the body has no
// anchors at all, so the caller can fall through to the JSON form.
func parseHTMLIndex(body []byte) []plainEntry {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	entries := []plainEntry{}
	anchors := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			anchors++
			if e, ok := anchorEntry(n); ok {
				entries = append(entries, e)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if anchors == 0 {
		return nil
	}
	return entries
}

func anchorEntry(a *html.Node) (plainEntry, bool) {
	var href string
	for _, attr := range a.Attr {
		if attr.Key == "href" {
			href = attr.Val
			break
		}
	}
	if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
		return plainEntry{}, false
	}
	if strings.Contains(href, "://") || strings.HasPrefix(href, "mailto:") {
		return plainEntry{}, false
	}
	if isParentLink(href, nodeText(a)) {
		return plainEntry{}, false
	}

	isDir := strings.HasSuffix(href, "/")
	decoded, err := url.PathUnescape(strings.TrimSuffix(href, "/"))
	if err != nil {
		decoded = strings.TrimSuffix(href, "/")
	}
	// Derive the name from the final segment so "sub/dir/" still yields
	// a sane display name.
	name := decoded
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		return plainEntry{}, false
	}

	e := plainEntry{name: name, isDir: isDir, size: 0, modTime: time.Now()}
	fillFromSiblingCells(a, &e)
	return e, true
}

func isParentLink(href, text string) bool {
	if href == "../" || href == ".." {
		return true
	}
	text = strings.ToLower(strings.TrimSpace(text))
	for _, t := range parentLinkTexts {
		if text == t {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// indexTimeLayouts cover Apache ("02-Jan-2006 15:04") and simple ISO
// style listings.
var indexTimeLayouts = []string{
	"02-Jan-2006 15:04",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC1123,
}

// fillFromSiblingCells recovers size and modified time from the table
// cells that follow the anchor's cell in tabular index layouts.
func fillFromSiblingCells(a *html.Node, e *plainEntry) {
	cell := a.Parent
	if cell == nil || cell.Data != "td" {
		return
	}
	for sib := cell.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode || sib.Data != "td" {
			continue
		}
		text := strings.TrimSpace(nodeText(sib))
		if text == "" || text == "-" {
			continue
		}
		if ts, ok := parseIndexTime(text); ok {
			e.modTime = ts
			continue
		}
		if n, ok := parseIndexSize(text); ok && !e.isDir {
			e.size = n
		}
	}
}

func parseIndexTime(text string) (time.Time, bool) {
	for _, layout := range indexTimeLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// parseIndexSize accepts plain byte counts and the humanized "1.5K",
// "3M", "2G" forms Apache emits.
func parseIndexSize(text string) (int64, bool) {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, true
	}

	mult := int64(1)
	switch {
	case strings.HasSuffix(text, "K"):
		mult = 1024
	case strings.HasSuffix(text, "M"):
		mult = 1024 * 1024
	case strings.HasSuffix(text, "G"):
		mult = 1024 * 1024 * 1024
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimRight(text, "KMG"), 64)
	if err != nil {
		return 0, false
	}
	return int64(f * float64(mult)), true
}

// jsonIndexEntry tolerates both field spellings seen in JSON directory
// listings.
type jsonIndexEntry struct {
	Name         string `json:"name"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	IsDirectory  *bool  `json:"isDirectory"`
	LastModified string `json:"lastModified"`
	Mtime        string `json:"mtime"`
}

// parseJSONIndex parses the body as a bare JSON array of entry objects.
// Returns nil when the body is not such an array.
func parseJSONIndex(body []byte) []plainEntry {
	var raw []jsonIndexEntry
	if err := json.Unmarshal(bytes.TrimSpace(body), &raw); err != nil {
		return nil
	}

	entries := make([]plainEntry, 0, len(raw))
	for _, r := range raw {
		name := r.Name
		if name == "" {
			name = r.Filename
		}
		if name == "" {
			continue
		}

		isDir := strings.EqualFold(r.Type, "directory") || strings.EqualFold(r.Type, "dir")
		if r.IsDirectory != nil {
			isDir = *r.IsDirectory
		}

		modTime := time.Now()
		for _, v := range []string{r.LastModified, r.Mtime} {
			if v == "" {
				continue
			}
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				modTime = ts
				break
			}
			if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
				modTime = time.Unix(secs, 0)
				break
			}
		}

		entries = append(entries, plainEntry{
			name:    strings.TrimSuffix(name, "/"),
			isDir:   isDir || strings.HasSuffix(name, "/"),
			size:    r.Size,
			modTime: modTime,
		})
	}
	return entries
}
