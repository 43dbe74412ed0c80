package crawler

import (
	"strings"
	"sync"
	"time"
)

const defaultLogCapacity = 1000

// LogEntry is one line of crawler output or a supervisor notice.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogBuffer keeps the most recent entries in a fixed-size ring.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	start   int
	count   int
	nextID  int64
	now     func() time.Time
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &LogBuffer{entries: make([]LogEntry, capacity), now: time.Now}
}

func (b *LogBuffer) Append(level, message string) LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	e := LogEntry{ID: b.nextID, Timestamp: b.now().UTC(), Level: level, Message: message}
	capacity := len(b.entries)
	if b.count < capacity {
		b.entries[(b.start+b.count)%capacity] = e
		b.count++
	} else {
		b.entries[b.start] = e
		b.start = (b.start + 1) % capacity
	}
	return e
}

// Tail returns the last limit entries in insertion order; limit <= 0
// returns everything held.
func (b *LogBuffer) Tail(limit int) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]LogEntry, n)
	capacity := len(b.entries)
	first := b.start + b.count - n
	for i := 0; i < n; i++ {
		out[i] = b.entries[(first+i)%capacity]
	}
	return out
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Reset drops all entries. IDs keep increasing.
func (b *LogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start, b.count = 0, 0
}

// InferLevel guesses a level from a line of crawler output.
func InferLevel(line string) string {
	u := strings.ToUpper(line)
	switch {
	case strings.Contains(u, "ERROR"), strings.Contains(u, "TRACEBACK"), strings.Contains(u, "EXCEPTION"):
		return "error"
	case strings.Contains(u, "WARNING"), strings.Contains(u, "WARN"):
		return "warning"
	case strings.Contains(u, "DEBUG"):
		return "debug"
	case strings.Contains(u, "SUCCESS"), strings.Contains(u, "完成"), strings.Contains(u, "成功"):
		return "success"
	}
	return "info"
}

// appendLine stores one line of crawler output at its inferred level.
func (b *LogBuffer) appendLine(line string) {
	b.Append(InferLevel(line), line)
}
