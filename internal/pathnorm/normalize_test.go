package pathnorm

import "testing"

func TestRejectsTraversal(t *testing.T) {
	cases := []string{
		"/../etc/passwd",
		"/..%2f..%2fetc/passwd",
		"/%2e%2e/%2e%2e/etc/passwd",
		"/%252e%252e/etc/passwd", // double-encoded ..
		"/a/../../b",
		"/./a",
	}
	for _, c := range cases {
		if _, err := New("/var/www", c); err == nil {
			t.Errorf("expected rejection for %q", c)
		}
	}
}

func TestRejectsReservedNames(t *testing.T) {
	cases := []string{"/CON", "/con/x", "/LPT1", "/lpt1", "/COM9/foo", "/Aux"}
	for _, c := range cases {
		if _, err := New("/var/www", c); err == nil {
			t.Errorf("expected rejection for %q", c)
		}
	}
}

func TestRejectsTildeAtSegmentBoundary(t *testing.T) {
	cases := []string{"/~root", "/etc/~", "/backup~", "/~/foo"}
	for _, c := range cases {
		if _, err := New("/var/www", c); err == nil {
			t.Errorf("expected rejection for %q", c)
		}
	}
}

func TestAllowsTildeInMiddleOfSegment(t *testing.T) {
	cases := []string{"/file~backup.txt", "/my~file.css"}
	for _, c := range cases {
		np, err := New("/var/www", c)
		if err != nil {
			t.Errorf("unexpected rejection for %q: %v", c, err)
			continue
		}
		if np.Path != c {
			t.Errorf("%q: unexpected path: %q", c, np.Path)
		}
	}
}

func TestAllowsWellKnown(t *testing.T) {
	np, err := New("/var/www", "/.well-known/acme-challenge/token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if np.Path != "/.well-known/acme-challenge/token" {
		t.Fatalf("unexpected path: %q", np.Path)
	}
}

func TestRejectsDotfileSegments(t *testing.T) {
	if _, err := New("/var/www", "/.git/config"); err == nil {
		t.Error("expected rejection of dotfile segment")
	}
	if _, err := New("/var/www", "/.#lock"); err == nil {
		t.Error("expected rejection of .# segment")
	}
}

func TestRejectsColon(t *testing.T) {
	if _, err := New("/var/www", "/foo:bar"); err == nil {
		t.Error("expected rejection of colon in path")
	}
}

func TestDecodeIdempotence(t *testing.T) {
	np1, err1 := New("/var/www", "/hello%20world.txt")
	if err1 != nil {
		t.Fatal(err1)
	}
	np2, err2 := New("/var/www", "/hello world.txt")
	if err2 != nil {
		t.Fatal(err2)
	}
	if np1.Path != np2.Path {
		t.Fatalf("decode mismatch: %q vs %q", np1.Path, np2.Path)
	}
}

func TestSimplePathResolves(t *testing.T) {
	np, err := New("/var/www", "/index.html")
	if err != nil {
		t.Fatal(err)
	}
	if np.FullPath != "/var/www/index.html" {
		t.Fatalf("unexpected full path: %q", np.FullPath)
	}
}

func TestEmptyResultIsRoot(t *testing.T) {
	np, err := New("/var/www", "/")
	if err != nil {
		t.Fatal(err)
	}
	if np.Path != "/" {
		t.Fatalf("expected root path, got %q", np.Path)
	}
}

func TestRelativeWebRootUsesCwd(t *testing.T) {
	np, err := New("./site", "/index.html")
	if err != nil {
		t.Fatal(err)
	}
	if np.WebRoot == "" || np.WebRoot[0] != '/' {
		t.Fatalf("expected absolute web root, got %q", np.WebRoot)
	}
}
