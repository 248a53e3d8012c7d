package processor

import (
	"os"
	"path/filepath"
	"testing"

	"gruxi/internal/pathnorm"
)

func TestRewriteWebRootPrefix(t *testing.T) {
	got := rewriteWebRootPrefix("/srv/local/app/index.php", "/srv/local/app", "/var/www/app")
	want := "/var/www/app/index.php"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRewriteWebRootPrefixNoOpWhenRootsEqual(t *testing.T) {
	got := rewriteWebRootPrefix("/srv/app/index.php", "/srv/app", "/srv/app")
	if got != "/srv/app/index.php" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveScriptAndPathInfoSplitsExtraPath(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.php"), []byte("<?php"), 0o644); err != nil {
		t.Fatal(err)
	}

	np, err := pathnorm.New(root, "/index.php/extra/path")
	if err != nil {
		t.Fatalf("pathnorm.New: %v", err)
	}

	scriptFile, isDirWithIndex, pathInfo, err := resolveScriptAndPathInfo(root, np)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isDirWithIndex {
		t.Fatal("did not expect directory-index resolution")
	}
	if want := filepath.Join(root, "index.php"); scriptFile != want {
		t.Fatalf("scriptFile: got %q, want %q", scriptFile, want)
	}
	if pathInfo != "/extra/path" {
		t.Fatalf("pathInfo: got %q, want %q", pathInfo, "/extra/path")
	}
}

func TestResolveScriptAndPathInfoDirectoryIndex(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "blog"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "blog", "index.php"), []byte("<?php"), 0o644); err != nil {
		t.Fatal(err)
	}

	np, err := pathnorm.New(root, "/blog")
	if err != nil {
		t.Fatalf("pathnorm.New: %v", err)
	}

	scriptFile, isDirWithIndex, pathInfo, err := resolveScriptAndPathInfo(root, np)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isDirWithIndex {
		t.Fatal("expected directory-index resolution")
	}
	if pathInfo != "" {
		t.Fatalf("expected empty pathInfo, got %q", pathInfo)
	}
	if want := filepath.Join(root, "blog", "index.php"); scriptFile != want {
		t.Fatalf("scriptFile: got %q, want %q", scriptFile, want)
	}
}

func TestResolveScriptAndPathInfoNotFound(t *testing.T) {
	root := t.TempDir()

	np, err := pathnorm.New(root, "/missing.php")
	if err != nil {
		t.Fatalf("pathnorm.New: %v", err)
	}

	if _, _, _, err := resolveScriptAndPathInfo(root, np); err == nil {
		t.Fatal("expected not-found error")
	}
}

type fakeBackend struct {
	addr string
	err  error
}

func (f fakeBackend) Addr() (string, error) { return f.addr, f.err }
func (f fakeBackend) Permit() chan struct{} { return nil }
