package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"gruxi/internal/trigger"
)

// getConfig implements GET /config: the full persisted configuration
// snapshot, read straight from the store so an operator always sees the
// latest saved state rather than the (possibly stale) cached copy serving
// live traffic.
func (h *Handler) getConfig(c echo.Context) error {
	cfg, err := h.deps.Store.LoadConfiguration(c.Request().Context())
	if err != nil {
		log.Errorf("getConfig: %v", err)
		return jsonError(c, http.StatusInternalServerError, "failed to load configuration")
	}
	return c.JSON(http.StatusOK, cfg)
}

// postConfig implements POST /config. It reads no configuration from the
// request body and writes nothing to the store; the admin API has no
// other route that writes configuration either. It checks that the store
// currently holds a loadable configuration (400 if not), fires
// refresh_cached_configuration and reload_configuration, and answers
// with the loaded schema_version.
func (h *Handler) postConfig(c echo.Context) error {
	ctx := c.Request().Context()
	cfg, err := h.deps.Store.LoadConfiguration(ctx)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"errors":  []string{err.Error()},
		})
	}

	h.deps.Bus.Fire(trigger.RefreshCachedConfiguration)
	h.deps.Bus.Fire(trigger.ReloadConfiguration)

	return c.JSON(http.StatusOK, map[string]any{
		"success":        true,
		"message":        "configuration accepted",
		"schema_version": cfg.SchemaVersion,
	})
}

// reloadConfiguration implements POST /configuration/reload: force a
// cache invalidation and running-state rebuild without waiting for the
// next request to observe a stale cache.
func (h *Handler) reloadConfiguration(c echo.Context) error {
	h.deps.Cache.Invalidate()
	if err := h.deps.RunState.Reload(c.Request().Context()); err != nil {
		log.Errorf("reloadConfiguration: %v", err)
		return jsonError(c, http.StatusInternalServerError, "reload failed")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "configuration reloaded"})
}

// getMonitoring implements GET /monitoring.
func (h *Handler) getMonitoring(c echo.Context) error {
	snap := h.deps.Monitor.Snapshot()

	body := map[string]any{
		"requests_served":      snap.RequestsServed,
		"requests_per_sec":     snap.RequestsPerSec,
		"requests_in_progress": snap.RequestsInProgress,
		"uptime_seconds":       snap.UptimeSeconds,
	}

	if state := h.deps.RunState.Current(); state != nil {
		fc := state.Config.Core.FileCache
		body["file_cache"] = map[string]any{
			"enabled":       fc.IsEnabled,
			"current_items": state.FileCache.Count(),
			"max_items":     fc.MaxItems,
		}
	}

	return c.JSON(http.StatusOK, body)
}
