package configstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"gruxi/internal/model"
)

// ImportConfiguration replaces the entire persisted configuration with
// cfg in a single transaction: every table LoadConfiguration reads from
// is cleared and repopulated, then server_settings is flattened back
// from cfg.Core. Used by cmd/gruxi's --import-conf/--import-conf-exit
// flags (spec.md §6 CLI surface).
func (s *Store) ImportConfiguration(ctx context.Context, cfg *model.CachedConfiguration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("configstore: import: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"site_request_handlers", "binding_sites", "request_handlers",
		"static_file_processors", "php_processors", "proxy_processors",
		"php_cgi_handlers", "sites", "bindings", "server_settings",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("configstore: import: clearing %s: %w", table, err)
		}
	}

	for _, h := range cfg.PhpCgiHandlers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO php_cgi_handlers (id, executable_path, concurrent_threads, request_timeout_s)
			VALUES ($1, $2, $3, $4)
		`, h.ID, h.ExecutablePath, h.ConcurrentThreads, h.RequestTimeoutS); err != nil {
			return fmt.Errorf("configstore: import: php_cgi_handlers: %w", err)
		}
	}

	for _, p := range cfg.StaticFile {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO static_file_processors (id, web_root, web_root_index_files)
			VALUES ($1, $2, $3)
		`, p.ID, p.WebRoot, pq.Array(p.WebRootIndexFiles)); err != nil {
			return fmt.Errorf("configstore: import: static_file_processors: %w", err)
		}
	}

	for _, p := range cfg.PHP {
		var cgiHandlerID sql.NullString
		if p.PHPCgiHandlerID != "" {
			cgiHandlerID = sql.NullString{String: p.PHPCgiHandlerID, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO php_processors (id, served_by_type, php_cgi_handler_id, fastcgi_ip_and_port,
			                             fastcgi_web_root, local_web_root, request_timeout_s, server_software_spoof)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.ID, string(p.ServedByType), cgiHandlerID, p.FastCGIIPAndPort,
			p.FastCGIWebRoot, p.LocalWebRoot, p.RequestTimeoutS, p.ServerSoftwareSpoof); err != nil {
			return fmt.Errorf("configstore: import: php_processors: %w", err)
		}
	}

	for _, p := range cfg.Proxy {
		rewritesJSON, err := json.Marshal(p.URLRewrites)
		if err != nil {
			return fmt.Errorf("configstore: import: marshalling url_rewrites for %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO proxy_processors (id, proxy_type, upstream_servers, load_balancing_strategy,
			                               timeout_s, health_check_path, url_rewrites)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.ID, string(p.ProxyType), pq.Array(p.UpstreamServers), string(p.LoadBalancingStrategy),
			p.TimeoutS, p.HealthCheckPath, rewritesJSON); err != nil {
			return fmt.Errorf("configstore: import: proxy_processors: %w", err)
		}
	}

	for _, h := range cfg.Handlers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO request_handlers (id, is_enabled, name, priority, processor_type, processor_id, url_patterns)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, h.ID, h.IsEnabled, h.Name, h.Priority, string(h.ProcessorType), h.ProcessorID, pq.Array(h.URLPatterns)); err != nil {
			return fmt.Errorf("configstore: import: request_handlers: %w", err)
		}
	}

	for _, site := range cfg.Sites {
		extraHeadersJSON, err := json.Marshal(site.ExtraHeaders)
		if err != nil {
			return fmt.Errorf("configstore: import: marshalling extra_headers for %s: %w", site.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sites (id, hostnames, is_default, is_enabled, cert_path, key_path, cert_pem, key_pem,
			                    auto_tls, rewrite_functions, extra_headers, access_log_enabled, access_log_path)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, site.ID, pq.Array(site.Hostnames), site.IsDefault, site.IsEnabled,
			nullable(site.CertPath), nullable(site.KeyPath), nullable(site.CertPEM), nullable(site.KeyPEM),
			site.AutoTLS, pq.Array(site.RewriteFunctions), extraHeadersJSON,
			site.AccessLogEnabled, nullable(site.AccessLogPath)); err != nil {
			return fmt.Errorf("configstore: import: sites: %w", err)
		}

		for _, handlerID := range site.RequestHandlerIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO site_request_handlers (site_id, request_handler_id) VALUES ($1, $2)
			`, site.ID, handlerID); err != nil {
				return fmt.Errorf("configstore: import: site_request_handlers: %w", err)
			}
		}
	}

	for _, b := range cfg.Bindings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bindings (id, ip, port, is_admin, is_tls) VALUES ($1, $2, $3, $4, $5)
		`, b.ID, b.IP, b.Port, b.IsAdmin, b.IsTLS); err != nil {
			return fmt.Errorf("configstore: import: bindings: %w", err)
		}
		for _, siteID := range b.SiteIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO binding_sites (binding_id, site_id) VALUES ($1, $2)
			`, b.ID, siteID); err != nil {
				return fmt.Errorf("configstore: import: binding_sites: %w", err)
			}
		}
	}

	for key, value := range flattenCoreSettings(cfg.Core) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO server_settings (setting_key, setting_value) VALUES ($1, $2)
		`, key, value); err != nil {
			return fmt.Errorf("configstore: import: server_settings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("configstore: import: commit: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
