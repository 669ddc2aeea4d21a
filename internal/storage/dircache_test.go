package storage

import (
	"fmt"
	"testing"
	"time"
)

func TestDirCache_PutAndGet(t *testing.T) {
	c := NewDirCache(time.Minute, 16)

	if got := c.Get("dir"); got != nil {
		t.Fatalf("Get on empty cache: got %+v, want nil", got)
	}

	want := &ListResult{Entries: []FileEntry{{Name: "a"}}}
	c.Put("dir", want)
	if got := c.Get("dir"); got != want {
		t.Errorf("Get: got %+v, want the stored result", got)
	}
}

func TestDirCache_TTLExpiry(t *testing.T) {
	c := NewDirCache(10*time.Millisecond, 16)
	c.Put("dir", &ListResult{})

	if c.Get("dir") == nil {
		t.Fatal("entry should be fresh")
	}
	time.Sleep(20 * time.Millisecond)
	if c.Get("dir") != nil {
		t.Error("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("Len after expiry read: got %d, want 0", c.Len())
	}
}

func TestDirCache_EvictsOldestAccess(t *testing.T) {
	c := NewDirCache(time.Minute, 3)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("dir%d", i), &ListResult{})
	}

	// Touch dir0 so dir1 becomes the eviction candidate.
	c.Get("dir0")
	c.Put("dir3", &ListResult{})

	if c.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", c.Len())
	}
	if c.Get("dir1") != nil {
		t.Error("dir1 should have been evicted")
	}
	if c.Get("dir0") == nil || c.Get("dir3") == nil {
		t.Error("recently used entries should survive")
	}
}

func TestDirCache_InvalidateAndClear(t *testing.T) {
	c := NewDirCache(time.Minute, 16)
	c.Put("a", &ListResult{})
	c.Put("b", &ListResult{})

	c.Invalidate("a")
	if c.Get("a") != nil {
		t.Error("a should be invalidated")
	}
	if c.Get("b") == nil {
		t.Error("b should remain")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear: got %d, want 0", c.Len())
	}
}
