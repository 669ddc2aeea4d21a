package webdav

import (
	"fmt"
	"testing"
	"time"
)

const multistatusTemplate = `<?xml version="1.0" encoding="utf-8"?>
<%[1]smultistatus %[2]s>
  <%[1]sresponse>
    <%[1]shref>/docs/</%[1]shref>
    <%[1]spropstat>
      <%[1]sprop>
        <%[1]sresourcetype><%[1]scollection/></%[1]sresourcetype>
      </%[1]sprop>
    </%[1]spropstat>
  </%[1]sresponse>
  <%[1]sresponse>
    <%[1]shref>/docs/a.txt</%[1]shref>
    <%[1]spropstat>
      <%[1]sprop>
        <%[1]sresourcetype/>
        <%[1]sgetcontentlength>42</%[1]sgetcontentlength>
        <%[1]sgetlastmodified>Mon, 02 Jan 2006 15:04:05 GMT</%[1]sgetlastmodified>
      </%[1]sprop>
    </%[1]spropstat>
  </%[1]sresponse>
  <%[1]sresponse>
    <%[1]shref>/docs/b/</%[1]shref>
    <%[1]spropstat>
      <%[1]sprop>
        <%[1]sresourcetype><%[1]scollection/></%[1]sresourcetype>
      </%[1]sprop>
    </%[1]spropstat>
  </%[1]sresponse>
</%[1]smultistatus>`

func TestParseMultistatus_NamespaceSpellings(t *testing.T) {
	cases := []struct {
		name   string
		prefix string
		nsAttr string
	}{
		{"unprefixed", "", `xmlns="DAV:"`},
		{"dav-prefixed", "D:", `xmlns:D="DAV:"`},
		{"adhoc-prefixed", "lp1:", `xmlns:lp1="DAV:"`},
	}

	var baseline []davEntry
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := fmt.Sprintf(multistatusTemplate, tc.prefix, tc.nsAttr)
			entries, err := parseMultistatus([]byte(body))
			if err != nil {
				t.Fatalf("parseMultistatus: %v", err)
			}
			if len(entries) != 3 {
				t.Fatalf("got %d entries, want 3", len(entries))
			}

			if entries[0].href != "/docs/" || !entries[0].isDir {
				t.Errorf("entry 0: got %+v, want /docs/ dir", entries[0])
			}
			if entries[1].href != "/docs/a.txt" || entries[1].isDir {
				t.Errorf("entry 1: got %+v, want /docs/a.txt file", entries[1])
			}
			if entries[1].size != 42 {
				t.Errorf("entry 1 size: got %d, want 42", entries[1].size)
			}
			want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
			if !entries[1].modTime.Equal(want) {
				t.Errorf("entry 1 modTime: got %v, want %v", entries[1].modTime, want)
			}
			if entries[2].href != "/docs/b/" || !entries[2].isDir {
				t.Errorf("entry 2: got %+v, want /docs/b/ dir", entries[2])
			}

			if baseline == nil {
				baseline = entries
				return
			}
			for i := range baseline {
				if baseline[i].href != entries[i].href ||
					baseline[i].isDir != entries[i].isDir ||
					baseline[i].size != entries[i].size {
					t.Errorf("entry %d differs from baseline: %+v vs %+v", i, entries[i], baseline[i])
				}
			}
		})
	}
}

func TestParseMultistatus_MissingProperties(t *testing.T) {
	body := `<?xml version="1.0"?>
<multistatus xmlns="DAV:">
  <response>
    <href>/file.bin</href>
    <propstat><prop><resourcetype/></prop></propstat>
  </response>
</multistatus>`

	before := time.Now()
	entries, err := parseMultistatus([]byte(body))
	if err != nil {
		t.Fatalf("parseMultistatus: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].size != 0 {
		t.Errorf("size: got %d, want 0", entries[0].size)
	}
	if entries[0].modTime.Before(before) {
		t.Errorf("modTime should default to now, got %v", entries[0].modTime)
	}
}

func TestParseMultistatus_EscapedHref(t *testing.T) {
	body := `<?xml version="1.0"?>
<multistatus xmlns="DAV:">
  <response>
    <href>http://example.com/dav/my%20file.txt</href>
    <propstat><prop><resourcetype/></prop></propstat>
  </response>
</multistatus>`

	entries, err := parseMultistatus([]byte(body))
	if err != nil {
		t.Fatalf("parseMultistatus: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].href != "/dav/my file.txt" {
		t.Errorf("href: got %q, want %q", entries[0].href, "/dav/my file.txt")
	}
}

func TestLooksStructured(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"xml content-type alone", "application/xml; charset=utf-8", "whatever", true},
		{"text/xml content-type", "text/xml", "", true},
		{"xml declaration alone", "text/plain", `<?xml version="1.0"?><multistatus/>`, true},
		{"bare multistatus", "", `<multistatus xmlns="DAV:"/>`, true},
		{"prefixed multistatus", "", `<D:multistatus xmlns:D="DAV:"/>`, true},
		{"leading whitespace", "", "\n\t <?xml version=\"1.0\"?>", true},
		{"html index", "text/html", "<html><body></body></html>", false},
		{"json body", "application/json", `[{"name":"a"}]`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := looksStructured(tc.contentType, []byte(tc.body)); got != tc.want {
				t.Errorf("looksStructured(%q, %q) = %v, want %v", tc.contentType, tc.body, got, tc.want)
			}
		})
	}
}
