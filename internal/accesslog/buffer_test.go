package accesslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEntryLineIsCommonLogFormat(t *testing.T) {
	e := Entry{
		RemoteAddr: "10.0.0.1",
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Method:     "GET",
		URI:        "/index.html",
		Protocol:   "HTTP/1.1",
		Status:     200,
		BytesSent:  512,
	}
	line := e.Line()
	if !strings.HasPrefix(line, "10.0.0.1 - - [") {
		t.Fatalf("unexpected line prefix: %q", line)
	}
	if !strings.Contains(line, `"GET /index.html HTTP/1.1" 200 512`) {
		t.Fatalf("unexpected line body: %q", line)
	}
}

func TestFlushAllWritesRegisteredBuffers(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "site.log")

	b := New()
	b.Register("site-1", logPath)
	b.Write("site-1", Entry{RemoteAddr: "1.2.3.4", Method: "GET", URI: "/", Protocol: "HTTP/1.1", Status: 200})
	b.Write("site-1", Entry{RemoteAddr: "1.2.3.4", Method: "GET", URI: "/a", Protocol: "HTTP/1.1", Status: 404})

	b.FlushAll()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 flushed lines, got %d: %v", len(lines), lines)
	}
}

func TestWriteToUnregisteredSiteIsDropped(t *testing.T) {
	b := New()
	b.Write("unknown-site", Entry{Method: "GET", URI: "/"})
	b.FlushAll()
}

func TestRunFlushesOnStop(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "site.log")

	b := New()
	b.Register("site-1", logPath)
	b.Write("site-1", Entry{RemoteAddr: "1.2.3.4", Method: "GET", URI: "/", Protocol: "HTTP/1.1", Status: 200})

	stop := make(chan struct{})
	runDone := make(chan struct{})
	go func() {
		b.Run(stop)
		close(runDone)
	}()
	close(stop)

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stop signalled")
	}

	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("expected log file to exist after shutdown flush: %v", err)
	}
}
