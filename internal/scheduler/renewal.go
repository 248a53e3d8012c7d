// Package scheduler runs the one calendar-shaped background job Gruxi
// needs outside its hot request-serving loops: a daily scan for
// auto_tls sites whose certificate is close to expiring, re-enrolled
// through internal/acme ahead of time.
//
// Grounded on the teacher's internal/scheduler.RenewalScheduler (daily
// ticker, "get expiring soon" then "renew each", logged per-certificate)
// generalized from the teacher's certificate-table-with-status model to
// Gruxi's simpler model.Site.CertPEM/AutoTLS fields, and from a plain
// time.Ticker to github.com/robfig/cron/v3 since the job is genuinely
// calendar-shaped (run once a day) rather than a fixed short interval.
package scheduler

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/robfig/cron/v3"

	"gruxi/internal/acme"
	"gruxi/internal/configstore"
	"gruxi/internal/gruxlog"
	"gruxi/internal/tlsacceptor"
)

var log = gruxlog.New("Scheduler")

// renewalWindow is how far ahead of expiry a certificate is eligible for
// renewal.
const renewalWindow = 30 * 24 * time.Hour

// RenewalScheduler periodically re-enrolls auto_tls sites whose
// certificate is close to expiring.
type RenewalScheduler struct {
	store    *configstore.Store
	enroller acme.Enroller
	cron     *cron.Cron
}

// NewRenewalScheduler builds a scheduler; it does nothing until Start is
// called.
func NewRenewalScheduler(store *configstore.Store, enroller acme.Enroller) *RenewalScheduler {
	return &RenewalScheduler{store: store, enroller: enroller, cron: cron.New()}
}

// Start schedules the daily renewal scan and begins running it.
func (s *RenewalScheduler) Start() {
	if _, err := s.cron.AddFunc("@daily", s.checkAndRenew); err != nil {
		log.Errorf("scheduling renewal job: %v", err)
		return
	}
	s.cron.Start()
	log.Infof("certificate renewal scheduler started (daily, %s window)", renewalWindow)
}

// Stop cancels the scheduled job, waiting for any in-flight run to finish.
func (s *RenewalScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Infof("certificate renewal scheduler stopped")
}

// CheckNow triggers an immediate renewal scan, for the admin API or
// manual operator use.
func (s *RenewalScheduler) CheckNow() {
	go s.checkAndRenew()
}

func (s *RenewalScheduler) checkAndRenew() {
	ctx := context.Background()
	log.Debugf("checking for sites needing certificate renewal")

	cfg, err := s.store.LoadConfiguration(ctx)
	if err != nil {
		log.Errorf("loading configuration: %v", err)
		return
	}

	renewed := 0
	for i := range cfg.Sites {
		site := &cfg.Sites[i]
		if !site.AutoTLS || site.CertPEM == "" {
			continue
		}
		expiresAt, err := certExpiry(site.CertPEM)
		if err != nil {
			log.Warnf("site %s: parsing certificate: %v", site.ID, err)
			continue
		}
		if time.Until(expiresAt) > renewalWindow {
			continue
		}

		log.Infof("renewing certificate for site %s (expires %s)", site.ID, expiresAt.Format(time.RFC3339))
		certPEM, keyPEM, err := s.enroller.Obtain(site.Hostnames)
		if err != nil {
			log.Errorf("site %s: renewal enrollment failed: %v", site.ID, err)
			continue
		}
		certPath, keyPath, err := tlsacceptor.PersistPEM(string(certPEM), string(keyPEM))
		if err != nil {
			log.Errorf("site %s: persisting renewed certificate: %v", site.ID, err)
			continue
		}
		if err := s.store.PersistSiteCertPaths(ctx, site.ID, certPath, keyPath); err != nil {
			log.Errorf("site %s: recording renewed certificate: %v", site.ID, err)
			continue
		}
		renewed++
	}

	if renewed > 0 {
		log.Infof("renewed %d certificate(s)", renewed)
	}
}

func certExpiry(certPEM string) (time.Time, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return time.Time{}, errNoPEMBlock
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}

var errNoPEMBlock = errPEM("scheduler: no PEM block found in certificate")

type errPEM string

func (e errPEM) Error() string { return string(e) }
