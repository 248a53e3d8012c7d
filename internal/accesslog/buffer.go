// Package accesslog implements the per-site access-log buffer of
// spec.md §4.T: requests append Common-Log-Format lines to an in-memory
// per-site buffer guarded by a short-lived lock; a background tick
// flushes non-empty (or stale) buffers to their configured file every
// 500ms, and shutdown flushes everything once before exit.
//
// Grounded on the teacher's `internal/scheduler/logrotate.go` ticker
// shape (fixed-interval background maintenance against a set of
// per-target files) and `pkg/cache/redis.go`'s short-critical-section
// mutex idiom, generalized from log-rotation bookkeeping to line
// buffering.
package accesslog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gruxi/internal/gruxlog"
)

var log = gruxlog.New("AccessLog")

const flushInterval = 500 * time.Millisecond

// Entry is one Common-Log-Format access-log record (spec.md §4.Q step
// 11, §8: user identity and streamed byte count are both observationally
// "-"/best-effort per DESIGN.md's Open Question decision).
type Entry struct {
	RemoteAddr string
	Timestamp  time.Time
	Method     string
	URI        string
	Protocol   string
	Status     int
	BytesSent  int64
}

// Line formats the entry as a Common Log Format line.
func (e Entry) Line() string {
	return fmt.Sprintf(`%s - - [%s] "%s %s %s" %d %d`,
		e.RemoteAddr,
		e.Timestamp.Format("02/Jan/2006:15:04:05 -0700"),
		e.Method, e.URI, e.Protocol,
		e.Status, e.BytesSent,
	)
}

type siteBuffer struct {
	mu         sync.Mutex
	path       string
	lines      []string
	lastFlush  time.Time
}

// Buffer manages the per-site access-log buffers for one running-state
// generation.
type Buffer struct {
	mu    sync.Mutex
	sites map[string]*siteBuffer

	stop chan struct{}
	done chan struct{}
}

// New creates an empty access-log buffer set.
func New() *Buffer {
	return &Buffer{sites: make(map[string]*siteBuffer)}
}

// Register associates a site id with its configured log file path. Safe
// to call repeatedly; re-registering the same site id updates its path.
func (b *Buffer) Register(siteID, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sb, ok := b.sites[siteID]; ok {
		sb.mu.Lock()
		sb.path = path
		sb.mu.Unlock()
		return
	}
	b.sites[siteID] = &siteBuffer{path: path, lastFlush: time.Now()}
}

// Write appends a formatted line to siteID's buffer. A siteID with no
// registered path is dropped silently (access logging disabled for that
// site, or a stale id from a superseded snapshot).
func (b *Buffer) Write(siteID string, e Entry) {
	b.mu.Lock()
	sb, ok := b.sites[siteID]
	b.mu.Unlock()
	if !ok {
		return
	}
	sb.mu.Lock()
	sb.lines = append(sb.lines, e.Line())
	sb.mu.Unlock()
}

// Run starts the 500ms flush loop; it returns once stopCh closes, after
// performing one final flush.
func (b *Buffer) Run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			b.FlushAll()
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *Buffer) tick() {
	b.mu.Lock()
	bufs := make([]*siteBuffer, 0, len(b.sites))
	for _, sb := range b.sites {
		bufs = append(bufs, sb)
	}
	b.mu.Unlock()

	now := time.Now()
	for _, sb := range bufs {
		sb.mu.Lock()
		var lines []string
		if len(sb.lines) > 0 {
			lines = sb.lines
			sb.lines = nil
			sb.lastFlush = now
		}
		path := sb.path
		sb.mu.Unlock()

		if len(lines) > 0 {
			flushLines(path, lines)
		}
	}
}

// FlushAll writes every non-empty buffer to disk once, used on shutdown.
func (b *Buffer) FlushAll() {
	b.mu.Lock()
	bufs := make([]*siteBuffer, 0, len(b.sites))
	for _, sb := range b.sites {
		bufs = append(bufs, sb)
	}
	b.mu.Unlock()

	for _, sb := range bufs {
		sb.mu.Lock()
		lines := sb.lines
		sb.lines = nil
		path := sb.path
		sb.mu.Unlock()
		if len(lines) > 0 {
			flushLines(path, lines)
		}
	}
}

func flushLines(path string, lines []string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Errorf("opening access log %s: %v", path, err)
		return
	}
	defer f.Close()

	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			log.Errorf("writing access log %s: %v", path, err)
			return
		}
	}
}
