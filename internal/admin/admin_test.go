package admin

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

func TestLoginLimiterAllowsUpToBurstThenBlocks(t *testing.T) {
	l := newLoginLimiter(rate.Limit(0.001), 3)
	for i := 0; i < 3; i++ {
		if !l.allow("127.0.0.1") {
			t.Fatalf("expected attempt %d to be allowed", i)
		}
	}
	if l.allow("127.0.0.1") {
		t.Fatal("expected attempt past burst to be denied")
	}
}

func TestLoginLimiterTracksIPsIndependently(t *testing.T) {
	l := newLoginLimiter(rate.Limit(0.001), 1)
	if !l.allow("10.0.0.1") {
		t.Fatal("expected first attempt from 10.0.0.1 to be allowed")
	}
	if !l.allow("10.0.0.2") {
		t.Fatal("expected a different IP to have its own budget")
	}
	if l.allow("10.0.0.1") {
		t.Fatal("expected second attempt from 10.0.0.1 to be denied")
	}
}

func TestNewSessionTokenIsHexAndUnique(t *testing.T) {
	a, err := newSessionToken()
	if err != nil {
		t.Fatal(err)
	}
	b, err := newSessionToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Fatal("expected distinct tokens across calls")
	}
}

func TestIsSafeLogFilenameRejectsTraversal(t *testing.T) {
	cases := map[string]bool{
		"access.log":    true,
		"../access.log": false,
		"a/b.log":       false,
		"a\\b.log":      false,
		"noext":         false,
		"":              false,
		"..":            false,
	}
	for name, want := range cases {
		if got := isSafeLogFilename(name); got != want {
			t.Errorf("isSafeLogFilename(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestGetLogFileTruncatesToLastMebibyteOnLineBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.log")

	line := "x"
	for len(line) < 100 {
		line += "x"
	}
	line += "\n"

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for total < maxLogResponseBytes+10*len(line) {
		if _, err := f.WriteString(line); err != nil {
			t.Fatal(err)
		}
		total += len(line)
	}
	f.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() <= maxLogResponseBytes {
		t.Fatal("test fixture did not exceed the truncation threshold")
	}

	h := &Handler{deps: Deps{LogsDir: dir}}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/logs/big.log", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("filename")
	c.SetParamValues("big.log")

	if err := h.getLogFile(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() > maxLogResponseBytes {
		t.Fatalf("expected response truncated to at most %d bytes, got %d", maxLogResponseBytes, rec.Body.Len())
	}
	if b := rec.Body.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' {
		t.Fatal("expected truncated body to end on a full line")
	}
}

func TestListLogsReturnsOnlyDotLogFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.log", "b.log", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	h := &Handler{deps: Deps{LogsDir: dir}}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.listLogs(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "a.log") || !strings.Contains(body, "b.log") || strings.Contains(body, "notes.txt") {
		t.Fatalf("expected only .log files listed, got %s", body)
	}
}

func TestHealthcheckReturnsPlainTextOK(t *testing.T) {
	h := &Handler{}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.healthcheck(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "The server is healthy" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
