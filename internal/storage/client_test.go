package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stardustai/dataset-viewer/internal/events"
)

// fakeAdapter is an in-memory adapter for exercising the client facade.
type fakeAdapter struct {
	files       map[string][]byte
	listResult  *ListResult
	listCalls   int
	connectErr  error
	rangedReads bool // false rejects ranged reads, forcing the fallback
	readCalls   int
	disconnects int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		files:       map[string][]byte{},
		listResult:  &ListResult{},
		rangedReads: true,
	}
}

func (f *fakeAdapter) Protocol() string                            { return "fake" }
func (f *fakeAdapter) ConnectionName(cfg *ConnectionConfig) string { return "fake" }
func (f *fakeAdapter) PreparePath(p string, _ *Connection) string  { return p }
func (f *fakeAdapter) BuildURL(p string, _ *Connection) string     { return p }
func (f *fakeAdapter) Capabilities() Capabilities                  { return Capabilities{} }

func (f *fakeAdapter) Connect(_ context.Context, cfg *ConnectionConfig) (*Connection, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &Connection{Protocol: "fake", URL: cfg.URL, Connected: true}, nil
}

func (f *fakeAdapter) Disconnect(conn *Connection) error {
	f.disconnects++
	conn.Connected = false
	return nil
}

func (f *fakeAdapter) List(_ context.Context, _ *Connection, path string, _ ListOptions) (*ListResult, error) {
	f.listCalls++
	return f.listResult, nil
}

func (f *fakeAdapter) Read(_ context.Context, _ *Connection, path string, offset, length int64) (io.ReadCloser, int64, error) {
	f.readCalls++
	data, ok := f.files[path]
	if !ok {
		return nil, 0, E(KindRead, "read", errors.New("no such file"))
	}
	if !f.rangedReads && (offset != 0 || length >= 0) {
		return nil, 0, E(KindRead, "read", errors.New("ranges not supported"))
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	window := data[offset:]
	if length >= 0 && length < int64(len(window)) {
		window = window[:length]
	}
	return io.NopCloser(bytes.NewReader(window)), int64(len(window)), nil
}

func (f *fakeAdapter) Stat(_ context.Context, _ *Connection, path string) (int64, error) {
	data, ok := f.files[path]
	if !ok {
		return 0, E(KindRead, "stat", errors.New("no such file"))
	}
	return int64(len(data)), nil
}

func newFakeClient(fake *fakeAdapter, opts Options) *Client {
	return &Client{adapter: fake, cache: opts.Cache, events: opts.Events}
}

func connectFake(t *testing.T, c *Client) {
	t.Helper()
	ok, err := c.Connect(context.Background(), &ConnectionConfig{Protocol: "fake", URL: "fake://x"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !ok {
		t.Fatal("Connect returned false")
	}
}

func TestClient_ConnectFailureIsNotAnError(t *testing.T) {
	fake := newFakeAdapter()
	fake.connectErr = E(KindConnection, "connect", errors.New("host unreachable"))
	c := newFakeClient(fake, Options{})

	ok, err := c.Connect(context.Background(), &ConnectionConfig{Protocol: "fake"})
	if err != nil {
		t.Fatalf("ordinary connect failure should not error: %v", err)
	}
	if ok {
		t.Fatal("Connect should report false")
	}
	if c.IsConnected() {
		t.Fatal("client should not be connected")
	}
}

func TestClient_ConnectConfigErrorSurfaces(t *testing.T) {
	fake := newFakeAdapter()
	fake.connectErr = Ef(KindConfig, "connect", "bad url")
	c := newFakeClient(fake, Options{})

	_, err := c.Connect(context.Background(), &ConnectionConfig{Protocol: "fake"})
	if err == nil {
		t.Fatal("config errors must surface")
	}
	if KindOf(err) != KindConfig {
		t.Errorf("kind: got %v, want config", KindOf(err))
	}
}

func TestClient_OperationsRequireConnection(t *testing.T) {
	c := newFakeClient(newFakeAdapter(), Options{})

	if _, err := c.ListDirectory(context.Background(), "", ListOptions{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ListDirectory: got %v, want ErrNotConnected", err)
	}
	if _, err := c.ReadRange(context.Background(), "f", 0, -1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReadRange: got %v, want ErrNotConnected", err)
	}
	if _, err := c.GetFileSize(context.Background(), "f"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("GetFileSize: got %v, want ErrNotConnected", err)
	}
	if _, err := c.DownloadFileWithProgress(context.Background(), "f", "f", t.TempDir()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Download: got %v, want ErrNotConnected", err)
	}
}

func TestClient_ListUsesCache(t *testing.T) {
	fake := newFakeAdapter()
	fake.listResult = &ListResult{Entries: []FileEntry{{Name: "a"}}}
	cache := NewDirCache(time.Minute, 16)
	c := newFakeClient(fake, Options{Cache: cache})
	connectFake(t, c)

	for i := 0; i < 3; i++ {
		result, err := c.ListDirectory(context.Background(), "dir", ListOptions{})
		if err != nil {
			t.Fatalf("ListDirectory: %v", err)
		}
		if len(result.Entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(result.Entries))
		}
	}
	if fake.listCalls != 1 {
		t.Errorf("backend list calls: got %d, want 1", fake.listCalls)
	}

	// Paged requests bypass the cache.
	if _, err := c.ListDirectory(context.Background(), "dir", ListOptions{Marker: "next"}); err != nil {
		t.Fatalf("paged ListDirectory: %v", err)
	}
	if fake.listCalls != 2 {
		t.Errorf("backend list calls after paged request: got %d, want 2", fake.listCalls)
	}
}

func TestClient_ReconnectClearsCache(t *testing.T) {
	fake := newFakeAdapter()
	cache := NewDirCache(time.Minute, 16)
	c := newFakeClient(fake, Options{Cache: cache})
	connectFake(t, c)

	if _, err := c.ListDirectory(context.Background(), "dir", ListOptions{}); err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("cache len: got %d, want 1", cache.Len())
	}

	connectFake(t, c)
	if cache.Len() != 0 {
		t.Errorf("cache len after reconnect: got %d, want 0", cache.Len())
	}
}

func TestClient_ReconnectClosesPreviousSession(t *testing.T) {
	fake := newFakeAdapter()
	c := newFakeClient(fake, Options{})
	connectFake(t, c)

	first := c.conn
	connectFake(t, c)

	if fake.disconnects != 1 {
		t.Errorf("adapter disconnects: got %d, want 1 (old session torn down)", fake.disconnects)
	}
	if first.Connected {
		t.Error("first connection should be closed")
	}
	if !c.IsConnected() {
		t.Error("client should hold the new connection")
	}
}

func TestClient_ReadRangeFallsBackToUnranged(t *testing.T) {
	fake := newFakeAdapter()
	fake.files["f.txt"] = []byte("0123456789")
	fake.rangedReads = false
	c := newFakeClient(fake, Options{})
	connectFake(t, c)

	data, err := c.ReadRange(context.Background(), "f.txt", 3, 4)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if string(data) != "3456" {
		t.Errorf("window: got %q, want 3456", data)
	}
}

func TestClient_GetFileContentDecodes(t *testing.T) {
	fake := newFakeAdapter()
	fake.files["u16.txt"] = append([]byte{0xFF, 0xFE}, []byte{'h', 0, 'i', 0}...)
	c := newFakeClient(fake, Options{})
	connectFake(t, c)

	content, err := c.GetFileContent(context.Background(), "u16.txt", 0, -1)
	if err != nil {
		t.Fatalf("GetFileContent: %v", err)
	}
	if content.Text != "hi" {
		t.Errorf("text: got %q, want hi", content.Text)
	}
	if content.Encoding != "utf-16le" {
		t.Errorf("encoding: got %q, want utf-16le", content.Encoding)
	}
}

func TestClient_DownloadWithProgress(t *testing.T) {
	fake := newFakeAdapter()
	payload := bytes.Repeat([]byte("x"), 600*1024)
	fake.files["big.bin"] = payload

	broadcaster := events.NewBroadcaster()
	ch := broadcaster.Subscribe()
	c := newFakeClient(fake, Options{Events: broadcaster})
	connectFake(t, c)

	dir := t.TempDir()
	n, err := c.DownloadFileWithProgress(context.Background(), "big.bin", "big.bin", dir)
	if err != nil {
		t.Fatalf("DownloadFileWithProgress: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("bytes: got %d, want %d", n, len(payload))
	}

	data, err := os.ReadFile(filepath.Join(dir, "big.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("downloaded content differs")
	}

	broadcaster.Unsubscribe(ch)
	var sawStart, sawUpdate, sawDone bool
	for ev := range ch {
		switch ev.Type {
		case events.ProgressStarted:
			sawStart = true
		case events.ProgressUpdate:
			sawUpdate = true
		case events.ProgressCompleted:
			sawDone = true
			if ev.Received != int64(len(payload)) {
				t.Errorf("completed received: got %d, want %d", ev.Received, len(payload))
			}
		}
	}
	if !sawStart || !sawUpdate || !sawDone {
		t.Errorf("events: start=%v update=%v done=%v, want all", sawStart, sawUpdate, sawDone)
	}

	// No partial artifacts left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("files in dir: got %d, want 1", len(entries))
	}
}

func TestClient_DownloadCancelled(t *testing.T) {
	fake := newFakeAdapter()
	fake.files["big.bin"] = bytes.Repeat([]byte("x"), 1024)
	c := newFakeClient(fake, Options{})
	connectFake(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	_, err := c.DownloadFileWithProgress(ctx, "big.bin", "big.bin", dir)
	if err == nil {
		t.Fatal("download with cancelled context should fail")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial artifacts left: %v", entries)
	}
}

func TestClient_DisconnectIdempotent(t *testing.T) {
	c := newFakeClient(newFakeAdapter(), Options{})
	connectFake(t, c)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.IsConnected() {
		t.Fatal("still connected after Disconnect")
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
}

func TestNewClient_UnknownProtocol(t *testing.T) {
	_, err := NewClient(&ConnectionConfig{Protocol: "nope"}, Deps{}, Options{})
	if err == nil {
		t.Fatal("unknown protocol should fail")
	}
	if KindOf(err) != KindConfig {
		t.Errorf("kind: got %v, want config", KindOf(err))
	}
}
