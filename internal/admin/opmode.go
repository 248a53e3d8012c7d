package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"gruxi/internal/gruxlog"
	"gruxi/internal/opmode"
	"gruxi/internal/trigger"
)

// getOperationMode implements GET /operation-mode.
func (h *Handler) getOperationMode(c echo.Context) error {
	mode, err := h.deps.Store.OperationMode(c.Request().Context())
	if err != nil {
		log.Errorf("getOperationMode: %v", err)
		return jsonError(c, http.StatusInternalServerError, "failed to read operation mode")
	}
	if mode == "" {
		mode = string(opmode.PRODUCTION)
	}
	return c.JSON(http.StatusOK, map[string]string{"mode": mode})
}

type operationModeRequest struct {
	Mode string `json:"mode"`
}

// postOperationMode implements POST /operation-mode: validates the
// requested mode, persists it, and fires operation_mode_changed so every
// logger picks up the new verbosity immediately.
func (h *Handler) postOperationMode(c echo.Context) error {
	var req operationModeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}

	mode, err := opmode.ParseMode(req.Mode)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}

	if err := h.deps.Store.SetOperationMode(c.Request().Context(), string(mode)); err != nil {
		log.Errorf("postOperationMode: %v", err)
		return jsonError(c, http.StatusInternalServerError, "failed to persist operation mode")
	}

	gruxlog.SetMode(mode)
	h.deps.Bus.Fire(trigger.OperationModeChanged)

	return c.JSON(http.StatusOK, map[string]any{"success": true, "mode": string(mode)})
}
