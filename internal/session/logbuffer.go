package session

import (
	"fmt"
	"sync"
	"time"
)

// DefaultLogCapacity is the LogBuffer size used when none is configured.
const DefaultLogCapacity = 200

// Entry is one buffered diagnostic line.
type Entry struct {
	Time   time.Time
	Source string // "console", "pageerror" or "mock"
	Level  string // console type for console entries
	Text   string
}

func (e Entry) String() string {
	if e.Level != "" {
		return fmt.Sprintf("[%s.%s] %s", e.Source, e.Level, e.Text)
	}
	return fmt.Sprintf("[%s] %s", e.Source, e.Text)
}

// LogBuffer keeps the most recent entries of a run, dropping the oldest once
// full.
type LogBuffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	dropped int
}

// NewLogBuffer returns a buffer holding up to capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{entries: make([]Entry, capacity)}
}

// Add appends an entry.
func (b *LogBuffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if b.full {
		b.dropped++
	}
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns the buffered entries, oldest first.
func (b *LogBuffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		return append([]Entry(nil), b.entries[:b.next]...)
	}
	out := make([]Entry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

// Dropped returns how many entries were evicted.
func (b *LogBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
