package viewer

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestSearchLoaded_ExactPositions(t *testing.T) {
	data := []byte("alpha one\nbeta two\nALPHA three\ngamma alpha\n")
	client := newTestClient(t, map[string][]byte{"f.txt": data})

	l, err := Open(context.Background(), client, "f.txt", LoaderConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	result := l.SearchLoaded("alpha")
	if len(result.Matches) != 3 {
		t.Fatalf("got %d matches, want 3 (case-insensitive): %+v", len(result.Matches), result.Matches)
	}

	wantLines := []int64{1, 3, 4}
	wantCols := []int64{1, 1, 7}
	for i, m := range result.Matches {
		if m.Line != wantLines[i] || m.Column != wantCols[i] {
			t.Errorf("match %d: got line %d col %d, want line %d col %d",
				i, m.Line, m.Column, wantLines[i], wantCols[i])
		}
		if m.Estimated {
			t.Errorf("match %d: positions in a from-top window are exact", i)
		}
	}
	if result.Limited {
		t.Error("loaded search is never limited")
	}
}

func TestSearchLoaded_SpecialCharactersLiteral(t *testing.T) {
	data := []byte("a.b\naxb\n")
	client := newTestClient(t, map[string][]byte{"f.txt": data})

	l, err := Open(context.Background(), client, "f.txt", LoaderConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	result := l.SearchLoaded("a.b")
	if len(result.Matches) != 1 {
		t.Fatalf("got %d matches, want 1 (dot must not be a wildcard)", len(result.Matches))
	}
	if result.Matches[0].Line != 1 {
		t.Errorf("line: got %d, want 1", result.Matches[0].Line)
	}
}

func TestSearchLoaded_EmptyQuery(t *testing.T) {
	client := newTestClient(t, map[string][]byte{"f.txt": []byte("text\n")})

	l, err := Open(context.Background(), client, "f.txt", LoaderConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if result := l.SearchLoaded(""); len(result.Matches) != 0 {
		t.Errorf("empty query: got %d matches, want 0", len(result.Matches))
	}
}

func TestSearchFull_FindsAllWhenBudgetCoversFile(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		if i%10 == 0 {
			sb.WriteString("needle here\n")
		} else {
			sb.WriteString("hay hay hay\n")
		}
	}
	client := newTestClient(t, map[string][]byte{"f.txt": []byte(sb.String())})

	result, err := SearchFull(context.Background(), client, "f.txt", "needle", SearchConfig{
		SampleSize: 512,
		MaxSamples: 10,
		MaxMatches: 500,
	})
	if err != nil {
		t.Fatalf("SearchFull: %v", err)
	}
	if len(result.Matches) != 10 {
		t.Errorf("got %d matches, want 10", len(result.Matches))
	}
	if result.Limited {
		t.Error("scan that visits the whole file must not be limited")
	}
	for _, m := range result.Matches {
		if !m.Estimated {
			t.Error("full-search positions are estimates")
			break
		}
	}
}

func TestSearchFull_MatchCapSetsLimited(t *testing.T) {
	data := bytes.Repeat([]byte("needle needle needle\n"), 200)
	client := newTestClient(t, map[string][]byte{"f.txt": data})

	result, err := SearchFull(context.Background(), client, "f.txt", "needle", SearchConfig{
		SampleSize: 256,
		MaxSamples: 20,
		MaxMatches: 5,
	})
	if err != nil {
		t.Fatalf("SearchFull: %v", err)
	}
	if len(result.Matches) != 5 {
		t.Errorf("got %d matches, want cap of 5", len(result.Matches))
	}
	if !result.Limited {
		t.Error("hitting the cap with file left unscanned must set Limited")
	}
}

func TestSearchFull_CapOnLastWindowNotLimited(t *testing.T) {
	// One window covers the whole file; the cap equals the match count,
	// so nothing was left unscanned.
	data := []byte("needle one\nneedle two\n")
	client := newTestClient(t, map[string][]byte{"f.txt": data})

	result, err := SearchFull(context.Background(), client, "f.txt", "needle", SearchConfig{
		SampleSize: 1024,
		MaxSamples: 4,
		MaxMatches: 2,
	})
	if err != nil {
		t.Fatalf("SearchFull: %v", err)
	}
	if len(result.Matches) != 2 {
		t.Errorf("got %d matches, want 2", len(result.Matches))
	}
	if result.Limited {
		t.Error("cap reached on the final window is not a truncated scan")
	}
}

func TestSearchFull_EmptyFile(t *testing.T) {
	client := newTestClient(t, map[string][]byte{"empty.txt": {}})

	result, err := SearchFull(context.Background(), client, "empty.txt", "x", SearchConfig{})
	if err != nil {
		t.Fatalf("SearchFull: %v", err)
	}
	if len(result.Matches) != 0 || result.Limited {
		t.Errorf("empty file: got %+v", result)
	}
}

func TestSeekToMatch_LoadsSurroundingWindow(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 2000; i++ {
		if i == 1500 {
			sb.WriteString("the needle line\n")
		} else {
			sb.WriteString("plain filler txt\n")
		}
	}
	data := []byte(sb.String())
	client := newTestClient(t, map[string][]byte{"f.txt": data})

	result, err := SearchFull(context.Background(), client, "f.txt", "needle", SearchConfig{
		SampleSize: 4096,
		MaxSamples: 10,
		MaxMatches: 10,
	})
	if err != nil {
		t.Fatalf("SearchFull: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(result.Matches))
	}

	l, err := Open(context.Background(), client, "f.txt", LoaderConfig{
		ChunkSize:            2048,
		InitialLoadThreshold: 2048,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.SeekToMatch(context.Background(), result.Matches[0]); err != nil {
		t.Fatalf("SeekToMatch: %v", err)
	}

	if !strings.Contains(l.Content(), "the needle line") {
		t.Error("window after seek should contain the match")
	}
	if _, estimated := l.StartLine(); !estimated {
		t.Error("line numbers after a seek are estimates")
	}
}
