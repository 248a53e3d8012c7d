package acme

import "testing"

// fakeEnroller verifies that Enroller is satisfied by a trivial
// implementation; this package's tests do not call a real Obtain, which
// requires a reachable ACME directory and a live HTTP-01 challenge
// responder.
type fakeEnroller struct {
	certPEM, keyPEM []byte
	err             error
}

func (f *fakeEnroller) Obtain(domains []string) ([]byte, []byte, error) {
	return f.certPEM, f.keyPEM, f.err
}

func TestLegoEnrollerObtainRejectsEmptyDomainList(t *testing.T) {
	e := NewLegoEnroller("https://acme-staging-v02.api.letsencrypt.org/directory", "admin@example.test", "", "80")
	if _, _, err := e.Obtain(nil); err == nil {
		t.Fatal("expected an error when no domains are given")
	}
}

func TestFakeEnrollerSatisfiesEnrollerInterface(t *testing.T) {
	var _ Enroller = (&fakeEnroller{})
}
