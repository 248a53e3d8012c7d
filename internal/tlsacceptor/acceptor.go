// Package tlsacceptor builds a *tls.Config per binding from a set of
// enabled sites, sourcing certificates from configured files, inline
// PEM, ACME enrollment (internal/acme, for auto_tls sites), or a
// freshly generated self-signed fallback, and dispatches by SNI
// (spec.md §4.O).
//
// Self-signed certificate generation is grounded on the teacher's
// `pkg/acme/acme_test.go` generateTestCert helper (RSA-2048, a
// self-signed x509.Certificate template with DNSNames/KeyUsage/
// ExtKeyUsage for TLS server auth), promoted from a test fixture into a
// real fallback-issuance path since spec.md requires one when no
// configured certificate exists.
package tlsacceptor

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gruxi/internal/gruxlog"
	"gruxi/internal/model"
)

var log = gruxlog.New("TLSAcceptor")

const selfSignedValidity = 825 * 24 * time.Hour // under the 825-day CA/B Forum ceiling

// CertDir is the directory self-signed fallback certificates are
// persisted under, relative to the process working directory.
var CertDir = "certs"

// Enroll, when non-nil, requests an ACME-issued certificate for a site
// flagged auto_tls before falling back to a self-signed one. Wired by
// cmd/gruxi from internal/acme.Enroller.Obtain; left nil (the default)
// when no ACME directory is configured, in which case auto_tls sites
// fall straight through to the self-signed path.
var Enroll func(sans []string) (certPEM, keyPEM []byte, err error)

// Build assembles a *tls.Config for a binding's enabled sites, per
// spec.md §4.O steps 1-5. persistSelfSigned, when non-nil, is called
// after a fresh self-signed or ACME-issued cert/key pair is written to
// disk, so the caller can write the paths back to the site record; it
// may be nil in tests.
func Build(sites []*model.Site, persistSelfSigned func(site *model.Site, certPath, keyPath string)) (*tls.Config, error) {
	certsBySAN := make(map[string]*tls.Certificate)
	var fallback *tls.Certificate

	for _, site := range sites {
		if !site.IsEnabled {
			continue
		}
		sans := sansForSite(site)

		cert, err := certForSite(site, sans)
		if err != nil {
			log.Warnf("site %s: %v", site.ID, err)
			continue
		}
		if cert == nil {
			continue
		}
		if cert.persist && persistSelfSigned != nil {
			persistSelfSigned(site, cert.certPath, cert.keyPath)
		}

		for _, san := range sans {
			certsBySAN[strings.ToLower(san)] = cert.tlsCert
		}
		if fallback == nil {
			fallback = cert.tlsCert
		}
	}

	if fallback == nil {
		log.Warnf("no certificate could be registered for any site, generating localhost fallback")
		lc, err := generateSelfSigned([]string{"localhost"})
		if err != nil {
			return nil, fmt.Errorf("tlsacceptor: localhost fallback: %w", err)
		}
		fallback = lc.tlsCert
		certsBySAN["localhost"] = lc.tlsCert
	}

	cfg := &tls.Config{
		NextProtos: []string{"h2", "http/1.1"},
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			if hello.ServerName != "" {
				if c, ok := certsBySAN[strings.ToLower(hello.ServerName)]; ok {
					return c, nil
				}
			}
			return fallback, nil
		},
	}
	return cfg, nil
}

// sansForSite computes a site's SAN list, excluding the wildcard entry
// (§4.O step 1), falling back to localhost + the machine hostname when
// the site has no concrete hostnames.
func sansForSite(site *model.Site) []string {
	var sans []string
	for _, h := range site.Hostnames {
		if h != "*" {
			sans = append(sans, h)
		}
	}
	if len(sans) > 0 {
		return sans
	}
	sans = []string{"localhost"}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		sans = append(sans, hostname)
	}
	return sans
}

type resolvedCert struct {
	tlsCert  *tls.Certificate
	persist  bool
	certPath string
	keyPath  string
}

// certForSite sources a certificate in priority order: configured files,
// inline PEM, ACME enrollment (when auto_tls is set and Enroll is
// wired), freshly generated self-signed (§4.O step 2).
func certForSite(site *model.Site, sans []string) (*resolvedCert, error) {
	if site.CertPath != "" && site.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(site.CertPath, site.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading configured cert/key files: %w", err)
		}
		return &resolvedCert{tlsCert: &cert}, nil
	}

	if site.CertPEM != "" && site.KeyPEM != "" {
		cert, err := tls.X509KeyPair([]byte(site.CertPEM), []byte(site.KeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parsing inline cert/key PEM: %w", err)
		}
		return &resolvedCert{tlsCert: &cert}, nil
	}

	if site.AutoTLS && Enroll != nil {
		if certPEM, keyPEM, err := Enroll(sans); err != nil {
			log.Warnf("site %s: ACME enrollment failed, falling back to self-signed: %v", site.ID, err)
		} else {
			tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
			if err != nil {
				log.Warnf("site %s: ACME-issued cert/key did not parse, falling back to self-signed: %v", site.ID, err)
			} else {
				certPath, keyPath, err := persistToDisk(string(certPEM), string(keyPEM))
				if err != nil {
					return nil, fmt.Errorf("persisting ACME-issued certificate: %w", err)
				}
				return &resolvedCert{tlsCert: &tlsCert, persist: true, certPath: certPath, keyPath: keyPath}, nil
			}
		}
	}

	generated, err := generateSelfSigned(sans)
	if err != nil {
		return nil, fmt.Errorf("generating self-signed fallback: %w", err)
	}
	certPath, keyPath, err := persistToDisk(generated.certPEM, generated.keyPEM)
	if err != nil {
		return nil, fmt.Errorf("persisting self-signed fallback: %w", err)
	}
	generated.persist = true
	generated.certPath = certPath
	generated.keyPath = keyPath
	return generated.resolvedCert, nil
}

type generatedCert struct {
	*resolvedCert
	certPEM string
	keyPEM  string
}

func generateSelfSigned(sans []string) (*generatedCert, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: sans[0]},
		DNSNames:     sans,
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(selfSignedValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &generatedCert{
		resolvedCert: &resolvedCert{tlsCert: &tlsCert},
		certPEM:      string(certPEM),
		keyPEM:       string(keyPEM),
	}, nil
}

// PersistPEM writes a cert/key PEM pair under CertDir using an atomic
// write-to-.tmp-then-rename, named with a random hex suffix (§4.O step
// 2c). Exported so internal/scheduler's renewal job can reuse the same
// on-disk layout for certificates it re-enrolls outside of Build.
func PersistPEM(certPEM, keyPEM string) (certPath, keyPath string, err error) {
	return persistToDisk(certPEM, keyPEM)
}

// persistToDisk writes a generated cert/key pair under CertDir using an
// atomic write-to-.tmp-then-rename, named with a random hex suffix
// (§4.O step 2c).
func persistToDisk(certPEM, keyPEM string) (certPath, keyPath string, err error) {
	if err := os.MkdirAll(CertDir, 0755); err != nil {
		return "", "", err
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", "", err
	}
	name := hex.EncodeToString(suffix)

	certPath = filepath.Join(CertDir, name+".crt.pem")
	keyPath = filepath.Join(CertDir, name+".key.pem")

	if err := atomicWrite(certPath, []byte(certPEM)); err != nil {
		return "", "", err
	}
	if err := atomicWrite(keyPath, []byte(keyPEM)); err != nil {
		return "", "", err
	}
	return certPath, keyPath, nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
