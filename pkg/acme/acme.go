// Package acme holds small, dependency-free certificate utilities shared
// by internal/acme's enrollment flow and internal/scheduler's renewal
// job: building a deduplicated full certificate chain from whatever a
// CA handed back, and sanity-checking a freshly issued or renewed
// certificate before it's trusted to replace the one currently serving
// traffic.
package acme

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"
)

// BuildFullchain concatenates certPEM's PEM blocks with issuerPEM's,
// de-duplicating any block already present (lego's Bundle:true option
// already includes the intermediate in many cases, so appending the
// issuer cert again would otherwise double it up).
func BuildFullchain(certPEM, issuerPEM string) string {
	seen := make(map[string]bool)
	var out bytes.Buffer

	appendBlocks := func(data string) {
		rest := []byte(data)
		for {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				return
			}
			key := string(block.Bytes)
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Write(pem.EncodeToMemory(block))
		}
	}

	appendBlocks(certPEM)
	appendBlocks(issuerPEM)
	return out.String()
}

// ValidateRenewedCertificate checks that certPEM/keyPEM form a valid,
// currently-valid key pair covering every domain in expectedDomains.
// Called before a renewed or newly issued certificate replaces the one
// already serving a site.
func ValidateRenewedCertificate(certPEM, keyPEM string, expectedDomains []string) error {
	tlsCert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return fmt.Errorf("acme: certificate/key do not match: %w", err)
	}

	cert, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return fmt.Errorf("acme: parsing certificate: %w", err)
	}

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		_ = pub
	default:
		return fmt.Errorf("acme: unsupported public key type %T", cert.PublicKey)
	}

	now := time.Now()
	if now.After(cert.NotAfter) {
		return fmt.Errorf("acme: certificate expired at %s", cert.NotAfter.Format(time.RFC3339))
	}
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("acme: certificate not yet valid (starts %s)", cert.NotBefore.Format(time.RFC3339))
	}

	for _, domain := range expectedDomains {
		if !certCoversDomain(cert, domain) {
			return fmt.Errorf("acme: certificate does not cover domain %q", domain)
		}
	}
	return nil
}

func certCoversDomain(cert *x509.Certificate, domain string) bool {
	for _, name := range cert.DNSNames {
		if name == domain {
			return true
		}
		if strings.HasPrefix(name, "*.") {
			wildcardSuffix := name[1:] // ".example.com"
			rest := strings.TrimSuffix(domain, wildcardSuffix)
			if rest != domain && rest != "" && !strings.Contains(rest, ".") {
				return true
			}
		}
	}
	return false
}
