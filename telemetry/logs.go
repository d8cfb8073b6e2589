package telemetry

import (
	"io"
	"sync"
	"time"
)

type LogEntry struct {
	Timestamp time.Time
	Message   string
}

// LogCapture is an io.Writer keeping the most recent log lines in a ring
// buffer so the interactive UI can display them. Writes are forwarded to any
// additional writers.
type LogCapture struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
	writers []io.Writer
	onLog   func(LogEntry)
}

func NewLogCapture(maxSize int) *LogCapture {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LogCapture{
		entries: make([]LogEntry, maxSize),
	}
}

func (lc *LogCapture) Write(p []byte) (int, error) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Message:   string(p),
	}

	lc.mu.Lock()
	lc.entries[lc.next] = entry
	lc.next = (lc.next + 1) % len(lc.entries)
	if lc.next == 0 {
		lc.full = true
	}
	onLog := lc.onLog
	writers := lc.writers
	lc.mu.Unlock()

	if onLog != nil {
		onLog(entry)
	}

	for _, w := range writers {
		w.Write(p)
	}

	return len(p), nil
}

func (lc *LogCapture) AddWriter(w io.Writer) {
	lc.mu.Lock()
	lc.writers = append(lc.writers, w)
	lc.mu.Unlock()
}

// SetLogCallback registers a function invoked after every write. Passing nil
// removes it.
func (lc *LogCapture) SetLogCallback(callback func(LogEntry)) {
	lc.mu.Lock()
	lc.onLog = callback
	lc.mu.Unlock()
}

// GetRecentLogs returns up to limit entries, oldest first.
func (lc *LogCapture) GetRecentLogs(limit int) []LogEntry {
	all := lc.GetAllLogs()
	if limit >= 0 && len(all) > limit {
		return all[len(all)-limit:]
	}
	return all
}

func (lc *LogCapture) GetAllLogs() []LogEntry {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	if !lc.full {
		result := make([]LogEntry, lc.next)
		copy(result, lc.entries[:lc.next])
		return result
	}

	result := make([]LogEntry, 0, len(lc.entries))
	result = append(result, lc.entries[lc.next:]...)
	result = append(result, lc.entries[:lc.next]...)
	return result
}
