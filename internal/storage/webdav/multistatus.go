package webdav

import (
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// propfindBody is the minimal property request sent with the structured
// listing probe: resource type, content length, last-modified.
const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
  <D:prop>
    <D:resourcetype/>
    <D:getcontentlength/>
    <D:getlastmodified/>
  </D:prop>
</D:propfind>`

// davEntry is one response element of a multistatus body, pre-filtering.
type davEntry struct {
	href    string // percent-decoded path portion of the href
	isDir   bool
	size    int64
	modTime time.Time
}

// lastModifiedLayouts are the formats servers emit for getlastmodified.
var lastModifiedLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	time.RFC3339,
}

// parseMultistatus extracts directory entries from a multistatus body.
// Servers disagree on namespace declaration style: elements arrive
// unprefixed (<response>), DAV-prefixed (<D:response>), or with ad hoc
// prefixes (<lp1:response>), so matching is by XML local name only.
func parseMultistatus(body []byte) ([]davEntry, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	// Tolerate servers that declare a charset the stdlib doesn't ship.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var (
		entries []davEntry
		cur     *davEntry
		inType  bool
		field   string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch strings.ToLower(t.Name.Local) {
			case "response":
				cur = &davEntry{size: 0, modTime: time.Now()}
			case "href", "getcontentlength", "getlastmodified":
				field = strings.ToLower(t.Name.Local)
			case "resourcetype":
				inType = true
			case "collection":
				if cur != nil && inType {
					cur.isDir = true
				}
			}
		case xml.EndElement:
			switch strings.ToLower(t.Name.Local) {
			case "response":
				if cur != nil && cur.href != "" {
					entries = append(entries, *cur)
				}
				cur = nil
			case "resourcetype":
				inType = false
			case "href", "getcontentlength", "getlastmodified":
				field = ""
			}
		case xml.CharData:
			if cur == nil || field == "" {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch field {
			case "href":
				cur.href = decodeHref(text)
			case "getcontentlength":
				if n, err := strconv.ParseInt(text, 10, 64); err == nil {
					cur.size = n
				}
			case "getlastmodified":
				if ts, ok := parseLastModified(text); ok {
					cur.modTime = ts
				}
			}
		}
	}

	return entries, nil
}

// decodeHref reduces an href to its percent-decoded path portion.
// Servers emit either absolute URLs or server-absolute paths.
func decodeHref(href string) string {
	if u, err := url.Parse(href); err == nil && u.Path != "" {
		if decoded, derr := url.PathUnescape(u.EscapedPath()); derr == nil {
			return decoded
		}
		return u.Path
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		return decoded
	}
	return href
}

func parseLastModified(text string) (time.Time, bool) {
	for _, layout := range lastModifiedLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// looksStructured reports whether a listing response is recognizably a
// multistatus document. Content-type and body prefix are OR-combined
// evidence: either alone admits the response.
func looksStructured(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "xml") {
		return true
	}
	head := bytes.TrimLeft(body, " \t\r\n")
	if bytes.HasPrefix(head, []byte("<?xml")) {
		return true
	}
	lower := bytes.ToLower(head)
	return bytes.HasPrefix(lower, []byte("<multistatus")) ||
		bytes.HasPrefix(lower, []byte("<d:multistatus"))
}
