// Package acme is the ACME enrollment collaborator behind
// internal/tlsacceptor's auto_tls path: requesting a domain-validated
// certificate via HTTP-01 challenge against a configured ACME directory
// (Let's Encrypt or a compatible CA), using a fresh ephemeral account per
// enrollment since Gruxi persists issued certificates, not ACME account
// keys. Full ACME account/order lifecycle management (renewal scheduling,
// account key reuse, DNS-01 providers) is explicitly out of scope per
// spec.md §1 — this package is the narrow interface the core needs plus
// one real implementation, not a general-purpose ACME client.
package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"gruxi/internal/gruxlog"
	pkgacme "gruxi/pkg/acme"
)

var log = gruxlog.New("ACME")

// Enroller requests a certificate for a set of domain names.
type Enroller interface {
	Obtain(domains []string) (certPEM, keyPEM []byte, err error)
}

// accountUser implements lego's registration.User for a single
// enrollment; Gruxi never reuses an ACME account across calls, so
// GetRegistration only ever needs to return the one registered in the
// same Obtain call.
type accountUser struct {
	email string
	key   crypto.PrivateKey
	reg   *registration.Resource
}

func (u *accountUser) GetEmail() string                        { return u.email }
func (u *accountUser) GetRegistration() *registration.Resource { return u.reg }
func (u *accountUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// LegoEnroller is the production Enroller, backed by go-acme/lego/v4
// against a single ACME directory.
type LegoEnroller struct {
	caDirURL string
	email    string
	iface    string
	port     string
}

// NewLegoEnroller builds a LegoEnroller. caDirURL is the ACME directory
// endpoint (e.g. Let's Encrypt's production or staging URL); iface/port
// select the local address http01.ProviderServer binds to answer
// challenge requests — typically "" and "80" so the CA can reach it on
// the standard port before internal/server's own bindings take over.
func NewLegoEnroller(caDirURL, email, iface, port string) *LegoEnroller {
	return &LegoEnroller{caDirURL: caDirURL, email: email, iface: iface, port: port}
}

// Obtain runs one full ACME HTTP-01 flow: mint an ephemeral account,
// register it, answer the challenge, and request a certificate covering
// domains. domains[0] becomes the certificate's subject CommonName.
func (e *LegoEnroller) Obtain(domains []string) (certPEM, keyPEM []byte, err error) {
	if len(domains) == 0 {
		return nil, nil, fmt.Errorf("acme: no domain names to enroll")
	}

	accountKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("acme: generating account key: %w", err)
	}
	user := &accountUser{email: e.email, key: accountKey}

	cfg := lego.NewConfig(user)
	cfg.CADirURL = e.caDirURL

	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("acme: creating client: %w", err)
	}

	provider := http01.NewProviderServer(e.iface, e.port)
	if err := client.Challenge.SetHTTP01Provider(provider); err != nil {
		return nil, nil, fmt.Errorf("acme: registering http-01 provider: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, nil, fmt.Errorf("acme: registering account: %w", err)
	}
	user.reg = reg

	cert, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: domains,
		Bundle:  true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("acme: obtaining certificate for %v: %w", domains, err)
	}

	fullchain := pkgacme.BuildFullchain(string(cert.Certificate), string(cert.IssuerCertificate))
	if err := pkgacme.ValidateRenewedCertificate(fullchain, string(cert.PrivateKey), domains); err != nil {
		return nil, nil, fmt.Errorf("acme: validating issued certificate for %v: %w", domains, err)
	}

	log.Infof("issued ACME certificate for %v", domains)
	return []byte(fullchain), cert.PrivateKey, nil
}
