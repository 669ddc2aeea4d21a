// Package events provides a progress-event broadcaster for downloads.
package events

import (
	"sync"
	"time"
)

const (
	ProgressStarted   = "started"
	ProgressUpdate    = "progress"
	ProgressCompleted = "completed"
	ProgressCancelled = "cancelled"
	ProgressError     = "error"
)

// ProgressEvent represents one download progress notification, keyed by
// the destination filename.
type ProgressEvent struct {
	Type      string `json:"type"`
	Filename  string `json:"filename"`
	Received  int64  `json:"received"`
	Total     int64  `json:"total,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcaster manages subscribers and publishes progress events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan ProgressEvent]struct{}
}

// NewBroadcaster creates a new progress broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan ProgressEvent]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan ProgressEvent {
	ch := make(chan ProgressEvent, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan ProgressEvent) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event ProgressEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
