package tlsacceptor

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"gruxi/internal/model"
)

func TestBuildGeneratesSelfSignedWhenNoCertConfigured(t *testing.T) {
	CertDir = filepath.Join(t.TempDir(), "certs")

	site := &model.Site{ID: "s1", Hostnames: []string{"example.test"}, IsEnabled: true}

	var persistedSite *model.Site
	var persistedCert, persistedKey string
	cfg, err := Build([]*model.Site{site}, func(s *model.Site, certPath, keyPath string) {
		persistedSite, persistedCert, persistedKey = s, certPath, keyPath
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GetCertificate == nil {
		t.Fatal("expected GetCertificate resolver to be set")
	}
	if persistedSite != site || persistedCert == "" || persistedKey == "" {
		t.Fatal("expected self-signed cert to be persisted back to the site")
	}
	if len(cfg.NextProtos) != 2 || cfg.NextProtos[0] != "h2" || cfg.NextProtos[1] != "http/1.1" {
		t.Fatalf("unexpected ALPN list: %v", cfg.NextProtos)
	}
}

func TestSANsExcludeWildcard(t *testing.T) {
	site := &model.Site{Hostnames: []string{"*", "a.test", "b.test"}}
	sans := sansForSite(site)
	for _, s := range sans {
		if s == "*" {
			t.Fatal("wildcard must be excluded from SANs")
		}
	}
	if len(sans) != 2 {
		t.Fatalf("expected 2 SANs, got %v", sans)
	}
}

func TestSANsFallBackToLocalhostWhenWildcardOnly(t *testing.T) {
	site := &model.Site{Hostnames: []string{"*"}}
	sans := sansForSite(site)
	if len(sans) == 0 || sans[0] != "localhost" {
		t.Fatalf("expected localhost fallback, got %v", sans)
	}
}

func TestBuildFallsBackWhenAllSitesDisabled(t *testing.T) {
	CertDir = filepath.Join(t.TempDir(), "certs")
	site := &model.Site{ID: "s1", Hostnames: []string{"example.test"}, IsEnabled: false}

	cfg, err := Build([]*model.Site{site}, nil)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil || cert == nil {
		t.Fatalf("expected a localhost fallback certificate, got err=%v cert=%v", err, cert)
	}
}
