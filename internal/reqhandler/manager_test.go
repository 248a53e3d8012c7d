package reqhandler

import "testing"

func TestMatchOnePatternGrammar(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"*", "/anything", true},
		{"*.php", "/index.php", true},
		{"*.php", "/index.html", false},
		{"/admin*", "/admin/panel", true},
		{"/admin*", "/public", false},
		{"/exact", "/exact", true},
		{"/exact", "/exactly", false},
	}
	for _, c := range cases {
		if got := matchOne(c.pattern, c.path); got != c.want {
			t.Errorf("matchOne(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestMatchesAnyRequiresAtLeastOneHit(t *testing.T) {
	if !matchesAny([]string{"/a*", "*.css"}, "/style.css") {
		t.Fatal("expected match on second pattern")
	}
	if matchesAny([]string{"/a*", "*.css"}, "/other.js") {
		t.Fatal("expected no match")
	}
}
