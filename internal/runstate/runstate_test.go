package runstate

import (
	"os"
	"path/filepath"
	"testing"

	"gruxi/internal/model"
	"gruxi/internal/portalloc"
)

func testConfig(t *testing.T) *model.CachedConfiguration {
	t.Helper()
	webRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(webRoot, "index.html"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	return &model.CachedConfiguration{
		SchemaVersion: 1,
		Bindings: []model.Binding{
			{ID: "b1", IP: "127.0.0.1", Port: 8080, SiteIDs: []string{"site1"}},
		},
		Sites: []model.Site{
			{ID: "site1", Hostnames: []string{"example.test"}, IsEnabled: true, RequestHandlerIDs: []string{"h1"}},
		},
		Handlers: []model.RequestHandler{
			{ID: "h1", IsEnabled: true, Name: "static", Priority: 1, ProcessorType: model.ProcessorStatic, ProcessorID: "sp1", URLPatterns: []string{"*"}},
		},
		StaticFile: []model.StaticFileProcessor{
			{ID: "sp1", WebRoot: webRoot, WebRootIndexFiles: []string{"index.html"}},
		},
		Core: model.CoreSettings{
			FileCache: model.FileCacheSettings{IsEnabled: true, MaxItems: 100, MaxSizePerFile: 1 << 20},
		},
	}
}

func TestBuildWiresStaticProcessorToHandler(t *testing.T) {
	cfg := testConfig(t)
	state := Build(cfg, portalloc.New())

	if state.Processors.GetStaticFileProcessorByID("sp1") == nil {
		t.Fatal("expected static processor sp1 to be registered")
	}
	h := cfg.Handlers[0]
	if state.Processors.ForHandler(&h) == nil {
		t.Fatal("expected ForHandler to resolve the static processor")
	}
}

func TestBuildPopulatesBindingSiteCache(t *testing.T) {
	cfg := testConfig(t)
	state := Build(cfg, portalloc.New())

	sites := state.SitesForBinding("b1")
	if len(sites) != 1 || sites[0].ID != "site1" {
		t.Fatalf("expected binding b1 to resolve to site1, got %v", sites)
	}
}

func TestManagerCurrentIsNilBeforeFirstReload(t *testing.T) {
	m := &Manager{}
	if m.Current() != nil {
		t.Fatal("expected nil state before any reload")
	}
}
