package viewer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stardustai/dataset-viewer/internal/storage"

	_ "github.com/stardustai/dataset-viewer/internal/storage/localfs"
)

// writeTestFile creates a file of n lines shaped "line-00001\n" (11
// bytes each) and returns a connected client rooted at its directory.
func newTestClient(t *testing.T, files map[string][]byte) *storage.Client {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	cfg := &storage.ConnectionConfig{Protocol: "local", URL: dir}
	client, err := storage.NewClient(cfg, storage.Deps{}, storage.Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ok, err := client.Connect(context.Background(), cfg)
	if err != nil || !ok {
		t.Fatalf("Connect: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { client.Disconnect() })
	return client
}

func numberedLines(n int) []byte {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line-%05d\n", i)
	}
	return []byte(sb.String())
}

func TestOpen_SmallFileLoadsWhole(t *testing.T) {
	data := numberedLines(10)
	client := newTestClient(t, map[string][]byte{"small.txt": data})

	l, err := Open(context.Background(), client, "small.txt", LoaderConfig{
		ChunkSize:            1024,
		InitialLoadThreshold: 1 << 20,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !l.AtEnd() {
		t.Error("small file should be fully loaded")
	}
	if l.Content() != string(data) {
		t.Error("content mismatch")
	}
	if line, estimated := l.StartLine(); line != 1 || estimated {
		t.Errorf("StartLine: got (%d, %v), want (1, false)", line, estimated)
	}
	if l.Progress() != 100 {
		t.Errorf("Progress: got %v, want 100", l.Progress())
	}
}

func TestOpen_LargeFileLoadsFirstChunk(t *testing.T) {
	// 2000 lines of 11 bytes = 22000 bytes, threshold 8 KiB, chunk 8 KiB.
	data := numberedLines(2000)
	client := newTestClient(t, map[string][]byte{"big.txt": data})

	l, err := Open(context.Background(), client, "big.txt", LoaderConfig{
		ChunkSize:            8 * 1024,
		InitialLoadThreshold: 8 * 1024,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if l.AtEnd() {
		t.Fatal("large file should load progressively")
	}
	if l.LoadedBytes() != 8*1024 {
		t.Errorf("LoadedBytes: got %d, want %d", l.LoadedBytes(), 8*1024)
	}
	if !strings.HasPrefix(l.Content(), "line-00001\n") {
		t.Error("window should start at the top of the file")
	}

	// Walk to the end chunk by chunk.
	chunks := 0
	for !l.AtEnd() {
		more, err := l.LoadMore(context.Background())
		if err != nil {
			t.Fatalf("LoadMore: %v", err)
		}
		if !more {
			break
		}
		chunks++
	}
	if l.Content() != string(data) {
		t.Error("content after full walk differs from the file")
	}
	if chunks != 2 {
		t.Errorf("chunks loaded: got %d, want 2", chunks)
	}

	// A further LoadMore is a no-op.
	more, err := l.LoadMore(context.Background())
	if err != nil {
		t.Fatalf("LoadMore at end: %v", err)
	}
	if more {
		t.Error("LoadMore at end should report false")
	}
}

func TestJumpToPercent_EstimatesLines(t *testing.T) {
	data := numberedLines(1000) // 11000 bytes, 11 bytes per line
	client := newTestClient(t, map[string][]byte{"f.txt": data})

	l, err := Open(context.Background(), client, "f.txt", LoaderConfig{
		ChunkSize:            1024,
		InitialLoadThreshold: 1 << 20, // loads whole, so bytes/line is observed exactly
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := l.JumpToPercent(context.Background(), 50); err != nil {
		t.Fatalf("JumpToPercent: %v", err)
	}

	line, estimated := l.StartLine()
	if !estimated {
		t.Error("line numbers after a jump must be flagged estimated")
	}
	if line != 501 {
		t.Errorf("StartLine: got %d, want 501 (5500/11 + 1)", line)
	}
	if l.StartOffset() != 5500 {
		t.Errorf("StartOffset: got %d, want 5500", l.StartOffset())
	}

	// Jumping back to the top restores exact numbering.
	if err := l.JumpToPercent(context.Background(), 0); err != nil {
		t.Fatalf("JumpToPercent(0): %v", err)
	}
	if line, estimated := l.StartLine(); line != 1 || estimated {
		t.Errorf("StartLine at top: got (%d, %v), want (1, false)", line, estimated)
	}
}

func TestJumpToPercent_Clamped(t *testing.T) {
	data := numberedLines(100)
	client := newTestClient(t, map[string][]byte{"f.txt": data})

	l, err := Open(context.Background(), client, "f.txt", LoaderConfig{
		ChunkSize:            256,
		InitialLoadThreshold: 256,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := l.JumpToPercent(context.Background(), 150); err != nil {
		t.Fatalf("JumpToPercent(150): %v", err)
	}
	if l.StartOffset() != l.Size()-256 {
		t.Errorf("StartOffset: got %d, want %d", l.StartOffset(), l.Size()-256)
	}

	if err := l.JumpToPercent(context.Background(), -5); err != nil {
		t.Fatalf("JumpToPercent(-5): %v", err)
	}
	if l.StartOffset() != 0 {
		t.Errorf("StartOffset: got %d, want 0", l.StartOffset())
	}
}

func TestOpen_EmptyFile(t *testing.T) {
	client := newTestClient(t, map[string][]byte{"empty.txt": {}})

	l, err := Open(context.Background(), client, "empty.txt", LoaderConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !l.AtEnd() || l.Content() != "" {
		t.Errorf("empty file: AtEnd=%v content=%q", l.AtEnd(), l.Content())
	}
	if l.Progress() != 100 {
		t.Errorf("Progress: got %v, want 100", l.Progress())
	}
}
