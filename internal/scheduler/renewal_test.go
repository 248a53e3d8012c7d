package scheduler

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func selfSignedPEM(t *testing.T, notAfter time.Time) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "example.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestCertExpiryParsesNotAfter(t *testing.T) {
	want := time.Now().Add(90 * 24 * time.Hour).Truncate(time.Second)
	got, err := certExpiry(selfSignedPEM(t, want))
	if err != nil {
		t.Fatal(err)
	}
	if got.Sub(want).Abs() > time.Second {
		t.Fatalf("expected expiry near %s, got %s", want, got)
	}
}

func TestCertExpiryRejectsGarbage(t *testing.T) {
	if _, err := certExpiry("not a pem block"); err == nil {
		t.Fatal("expected an error for non-PEM input")
	}
}
