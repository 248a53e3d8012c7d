package reqentry

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gruxi/internal/model"
	"gruxi/internal/monitoring"
	"gruxi/internal/portalloc"
	"gruxi/internal/runstate"
	"gruxi/internal/trigger"
)

func testState(t *testing.T) *runstate.State {
	t.Helper()
	webRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(webRoot, "index.html"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &model.CachedConfiguration{
		Bindings: []model.Binding{{ID: "b1", IP: "127.0.0.1", Port: 8080, SiteIDs: []string{"site1"}}},
		Sites: []model.Site{
			{ID: "site1", Hostnames: []string{"example.test"}, IsEnabled: true, RequestHandlerIDs: []string{"h1"},
				ExtraHeaders: map[string]string{"X-Test": "1"}},
		},
		Handlers: []model.RequestHandler{
			{ID: "h1", IsEnabled: true, Priority: 1, ProcessorType: model.ProcessorStatic, ProcessorID: "sp1", URLPatterns: []string{"*"}},
		},
		StaticFile: []model.StaticFileProcessor{{ID: "sp1", WebRoot: webRoot, WebRootIndexFiles: []string{"index.html"}}},
	}
	return runstate.Build(cfg, portalloc.New())
}

func newEntry(t *testing.T) *Entry {
	state := testState(t)
	return &Entry{
		Binding: &model.Binding{ID: "b1", IP: "127.0.0.1", Port: 8080},
		Current: func() *runstate.State { return state },
		Monitor: monitoring.New(),
		Bus:     trigger.New(),
	}
}

func TestServeHTTPUnknownHostReturns404(t *testing.T) {
	e := newEntry(t)
	req := httptest.NewRequest(http.MethodGet, "http://nope.test/", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestServeHTTPServesMatchedSiteWithExtraHeaders(t *testing.T) {
	e := newEntry(t)
	req := httptest.NewRequest(http.MethodGet, "http://example.test/index.html", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Test") != "1" {
		t.Fatal("expected site extra header to be set")
	}
	if w.Header().Get("Server") != "Gruxi" {
		t.Fatal("expected Server: Gruxi header")
	}
}

func TestServeHTTPDuplicateHostHeaderIsBadRequest(t *testing.T) {
	e := newEntry(t)
	req := httptest.NewRequest(http.MethodGet, "http://example.test/index.html", nil)
	req.ProtoMajor = 1
	req.Header["Host"] = []string{"example.test", "other.test"}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestServeHTTPDisallowedMethodReturns501(t *testing.T) {
	e := newEntry(t)
	req := httptest.NewRequest("PROPFIND", "http://example.test/", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", w.Code)
	}
}

func TestServeHTTPOptionsStarReturnsAllow(t *testing.T) {
	e := newEntry(t)
	req := httptest.NewRequest(http.MethodOptions, "http://example.test/", nil)
	req.URL.Path = "*"
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Allow") == "" {
		t.Fatal("expected Allow header to be set")
	}
}

func TestServeHTTPConnectionCloseOnShutdown(t *testing.T) {
	e := newEntry(t)
	e.Bus.Fire(trigger.Shutdown)
	req := httptest.NewRequest(http.MethodGet, "http://example.test/index.html", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Header().Get("Connection") != "close" {
		t.Fatal("expected Connection: close once shutdown has fired")
	}
}
