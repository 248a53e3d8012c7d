package processor

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gruxi/internal/filecache"
	"gruxi/internal/httpmsg"
	"gruxi/internal/model"
)

func newTestStatic(t *testing.T, webRoot string) *StaticProcessor {
	t.Helper()
	cache := filecache.New(
		model.FileCacheSettings{MaxItems: 1000, MaxSizePerFile: 10 << 20},
		model.GzipSettings{IsEnabled: true, CompressibleContentTypes: []string{"text/"}},
	)
	cfg := model.StaticFileProcessor{ID: "s1", WebRoot: webRoot, WebRootIndexFiles: []string{"index.html"}}
	return NewStatic(cfg, cache, model.ServerSettings{})
}

func TestStaticProcessorServesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi there"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestStatic(t, dir)
	r := httptest.NewRequest(http.MethodGet, "/hello.txt", nil)
	resp, err := p.HandleRequest(httpmsg.NewRequest(r), &model.Site{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(resp.Buffered) != "hi there" {
		t.Fatalf("body = %q", resp.Buffered)
	}
}

func TestStaticProcessorMissingFileIsNotFound(t *testing.T) {
	dir := t.TempDir()
	p := newTestStatic(t, dir)
	r := httptest.NewRequest(http.MethodGet, "/nope.txt", nil)
	_, err := p.HandleRequest(httpmsg.NewRequest(r), &model.Site{})
	if err == nil {
		t.Fatal("expected error")
	}
	sfe, ok := err.(*model.StaticFileError)
	if !ok || sfe.Kind != model.StaticKindNotFound {
		t.Fatalf("got %v, want StaticKindNotFound", err)
	}
}

func TestStaticProcessorDirectoryServesIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>home</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := newTestStatic(t, dir)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := p.HandleRequest(httpmsg.NewRequest(r), &model.Site{})
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Buffered) != "<h1>home</h1>" {
		t.Fatalf("body = %q", resp.Buffered)
	}
}

func TestMatchWildcard(t *testing.T) {
	cases := []struct {
		pattern, value string
		want           bool
	}{
		{"*", "anything", true},
		{"*.php", "index.php", true},
		{"*.php", "index.html", false},
		{"admin*", "admin.html", true},
		{"admin*", "public.html", false},
		{"secret.txt", "secret.txt", true},
		{"secret.txt", "other.txt", false},
	}
	for _, c := range cases {
		if got := matchWildcard(c.pattern, c.value); got != c.want {
			t.Errorf("matchWildcard(%q, %q) = %v, want %v", c.pattern, c.value, got, c.want)
		}
	}
}
