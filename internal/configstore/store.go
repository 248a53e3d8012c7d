// Package configstore is the persisted-state collaborator of spec.md §6:
// a Postgres-backed store for the CachedConfiguration snapshot, user
// accounts, and admin sessions.
//
// Grounded on the teacher's internal/repository package (query style,
// `lib/pq`, `$n` placeholders, `pq.Array` for array columns) — most
// directly internal/repository/auth.go's session/user query shape,
// generalized from the teacher's role/TOTP-heavy user model to spec.md's
// simpler `users`/`sessions` tables.
package configstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"gruxi/internal/database"
	"gruxi/internal/model"
)

// Store is the persisted-configuration collaborator.
type Store struct {
	db *database.DB
}

// New wraps an open database connection.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// SchemaVersion reads the kv row `schema_version`; 0 means first run
// (spec.md §6).
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, err
	}
	return v, nil
}

// OperationMode reads the kv row `operation_mode`.
func (s *Store) OperationMode(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = 'operation_mode'`).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// SetOperationMode persists the kv row `operation_mode`.
func (s *Store) SetOperationMode(ctx context.Context, mode string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES ('operation_mode', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, mode)
	return err
}

// LoadConfiguration assembles a full CachedConfiguration snapshot from the
// persisted schema (spec.md §4.S, §6).
func (s *Store) LoadConfiguration(ctx context.Context) (*model.CachedConfiguration, error) {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("configstore: schema version: %w", err)
	}

	cfg := &model.CachedConfiguration{SchemaVersion: version}

	if cfg.Bindings, err = s.loadBindings(ctx); err != nil {
		return nil, fmt.Errorf("configstore: bindings: %w", err)
	}
	if cfg.Sites, err = s.loadSites(ctx); err != nil {
		return nil, fmt.Errorf("configstore: sites: %w", err)
	}
	if cfg.Handlers, err = s.loadHandlers(ctx); err != nil {
		return nil, fmt.Errorf("configstore: handlers: %w", err)
	}
	if cfg.StaticFile, err = s.loadStaticProcessors(ctx); err != nil {
		return nil, fmt.Errorf("configstore: static processors: %w", err)
	}
	if cfg.PHP, err = s.loadPHPProcessors(ctx); err != nil {
		return nil, fmt.Errorf("configstore: php processors: %w", err)
	}
	if cfg.Proxy, err = s.loadProxyProcessors(ctx); err != nil {
		return nil, fmt.Errorf("configstore: proxy processors: %w", err)
	}
	if cfg.PhpCgiHandlers, err = s.loadPhpCgiHandlers(ctx); err != nil {
		return nil, fmt.Errorf("configstore: php-cgi handlers: %w", err)
	}
	if cfg.Core, err = s.loadCoreSettings(ctx); err != nil {
		return nil, fmt.Errorf("configstore: core settings: %w", err)
	}

	return cfg, nil
}

func (s *Store) loadBindings(ctx context.Context) ([]model.Binding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, ip, port, is_admin, is_tls FROM bindings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Binding
	for rows.Next() {
		var b model.Binding
		if err := rows.Scan(&b.ID, &b.IP, &b.Port, &b.IsAdmin, &b.IsTLS); err != nil {
			return nil, err
		}
		siteIDs, err := s.siteIDsForBinding(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b.SiteIDs = siteIDs
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) siteIDsForBinding(ctx context.Context, bindingID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT site_id FROM binding_sites WHERE binding_id = $1`, bindingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) loadSites(ctx context.Context) ([]model.Site, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hostnames, is_default, is_enabled, COALESCE(cert_path,''), COALESCE(key_path,''),
		       COALESCE(cert_pem,''), COALESCE(key_pem,''), auto_tls, rewrite_functions,
		       extra_headers, access_log_enabled, COALESCE(access_log_path,'')
		FROM sites
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Site
	for rows.Next() {
		var site model.Site
		var hostnames, rewriteFns pq.StringArray
		var extraHeadersJSON []byte
		if err := rows.Scan(
			&site.ID, &hostnames, &site.IsDefault, &site.IsEnabled,
			&site.CertPath, &site.KeyPath, &site.CertPEM, &site.KeyPEM, &site.AutoTLS,
			&rewriteFns, &extraHeadersJSON, &site.AccessLogEnabled, &site.AccessLogPath,
		); err != nil {
			return nil, err
		}
		site.Hostnames = []string(hostnames)
		site.RewriteFunctions = []string(rewriteFns)
		if len(extraHeadersJSON) > 0 {
			_ = json.Unmarshal(extraHeadersJSON, &site.ExtraHeaders)
		}

		handlerIDs, err := s.handlerIDsForSite(ctx, site.ID)
		if err != nil {
			return nil, err
		}
		site.RequestHandlerIDs = handlerIDs

		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) handlerIDsForSite(ctx context.Context, siteID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT request_handler_id FROM site_request_handlers WHERE site_id = $1`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) loadHandlers(ctx context.Context) ([]model.RequestHandler, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, is_enabled, name, priority, processor_type, processor_id, url_patterns
		FROM request_handlers ORDER BY priority ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RequestHandler
	for rows.Next() {
		var h model.RequestHandler
		var patterns pq.StringArray
		var processorType string
		if err := rows.Scan(&h.ID, &h.IsEnabled, &h.Name, &h.Priority, &processorType, &h.ProcessorID, &patterns); err != nil {
			return nil, err
		}
		h.ProcessorType = model.ProcessorType(processorType)
		h.URLPatterns = []string(patterns)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) loadStaticProcessors(ctx context.Context) ([]model.StaticFileProcessor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, web_root, web_root_index_files FROM static_file_processors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StaticFileProcessor
	for rows.Next() {
		var p model.StaticFileProcessor
		var indexFiles pq.StringArray
		if err := rows.Scan(&p.ID, &p.WebRoot, &indexFiles); err != nil {
			return nil, err
		}
		p.WebRootIndexFiles = []string(indexFiles)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) loadPHPProcessors(ctx context.Context) ([]model.PHPProcessor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, served_by_type, COALESCE(php_cgi_handler_id::text, ''), COALESCE(fastcgi_ip_and_port,''),
		       COALESCE(fastcgi_web_root,''), local_web_root, request_timeout_s, COALESCE(server_software_spoof,'')
		FROM php_processors
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PHPProcessor
	for rows.Next() {
		var p model.PHPProcessor
		var servedBy string
		if err := rows.Scan(&p.ID, &servedBy, &p.PHPCgiHandlerID, &p.FastCGIIPAndPort,
			&p.FastCGIWebRoot, &p.LocalWebRoot, &p.RequestTimeoutS, &p.ServerSoftwareSpoof); err != nil {
			return nil, err
		}
		p.ServedByType = model.PHPServedByType(servedBy)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) loadProxyProcessors(ctx context.Context) ([]model.ProxyProcessor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proxy_type, upstream_servers, load_balancing_strategy, timeout_s,
		       COALESCE(health_check_path,''), url_rewrites
		FROM proxy_processors
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProxyProcessor
	for rows.Next() {
		var p model.ProxyProcessor
		var proxyType, lbStrategy string
		var upstreams pq.StringArray
		var rewritesJSON []byte
		if err := rows.Scan(&p.ID, &proxyType, &upstreams, &lbStrategy, &p.TimeoutS,
			&p.HealthCheckPath, &rewritesJSON); err != nil {
			return nil, err
		}
		p.ProxyType = model.ProxyType(proxyType)
		p.LoadBalancingStrategy = model.LoadBalancingStrategy(lbStrategy)
		p.UpstreamServers = []string(upstreams)
		if len(rewritesJSON) > 0 {
			_ = json.Unmarshal(rewritesJSON, &p.URLRewrites)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) loadPhpCgiHandlers(ctx context.Context) ([]model.PhpCgiHandler, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, executable_path, concurrent_threads, request_timeout_s FROM php_cgi_handlers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PhpCgiHandler
	for rows.Next() {
		var h model.PhpCgiHandler
		if err := rows.Scan(&h.ID, &h.ExecutablePath, &h.ConcurrentThreads, &h.RequestTimeoutS); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) loadCoreSettings(ctx context.Context) (model.CoreSettings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT setting_key, setting_value FROM server_settings`)
	if err != nil {
		return model.CoreSettings{}, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return model.CoreSettings{}, err
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return model.CoreSettings{}, err
	}

	return buildCoreSettings(settings), nil
}

// User/session operations, grounded on the teacher's AuthRepository
// query shape (internal/repository/auth.go).

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at, last_login, is_active
		FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &lastLogin, &u.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

func (s *Store) RecordLogin(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, userID)
	return err
}

func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, username, token, expires_at) VALUES ($1, $2, $3, $4)
	`, sess.UserID, sess.Username, sess.Token, sess.ExpiresAt)
	return err
}

func (s *Store) GetSessionByToken(ctx context.Context, token string) (*model.Session, error) {
	var sess model.Session
	sess.Token = token
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, expires_at FROM sessions WHERE token = $1
	`, token).Scan(&sess.UserID, &sess.Username, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (s *Store) CleanExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	return err
}

// PersistSiteCertPaths records where a generated (self-signed or
// ACME-issued) certificate and key were written to disk for siteID, so
// the next reload can reuse them instead of regenerating. Grounded on
// internal/tlsacceptor.Build's persistSelfSigned callback contract.
func (s *Store) PersistSiteCertPaths(ctx context.Context, siteID, certPath, keyPath string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sites SET cert_path = $2, key_path = $3 WHERE id = $1
	`, siteID, certPath, keyPath)
	return err
}

// ResetAdminPassword upserts the given username with passwordHash
// (already bcrypt-hashed), creating the account if it doesn't exist yet.
// Backs cmd/gruxi's --reset-admin-password flag.
func (s *Store) ResetAdminPassword(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_active)
		VALUES ($1, $2, true)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash, is_active = true
	`, username, passwordHash)
	return err
}
