package main

import "testing"

// TestRandomPasswordIsHexAndNonEmpty exercises the one piece of main's
// logic that doesn't require a database connection; the rest of run()
// needs one and has no test in this repository, matching this repo's
// convention of keeping process-wiring code thin and leaving it
// untested in isolation.
func TestRandomPasswordIsHexAndNonEmpty(t *testing.T) {
	pw, err := randomPassword()
	if err != nil {
		t.Fatal(err)
	}
	if len(pw) != 32 {
		t.Fatalf("expected 32 hex characters, got %d (%q)", len(pw), pw)
	}
	pw2, err := randomPassword()
	if err != nil {
		t.Fatal(err)
	}
	if pw == pw2 {
		t.Fatal("expected two distinct random passwords")
	}
}
