// Package admin implements the admin HTTPS API of spec.md §6: a
// bearer-token-guarded echo router exposing login/logout, configuration
// read and re-validation (POST /config does not accept a new
// configuration), hot-reload, monitoring, health check, log retrieval,
// and operation-mode control.
//
// Grounded on the teacher's echo-based handler package (constructor
// pattern `New<Name>Handler(deps...) *Handler`, `func (h *Handler)
// Route(c echo.Context) error`, `c.JSON(status, map[string]any{...})`
// response shape) and its `AuthMiddleware` bearer-token extraction,
// generalized from the teacher's role/API-token auth model to spec.md's
// simpler single bearer-session admin model.
package admin

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"gruxi/internal/configcache"
	"gruxi/internal/configstore"
	"gruxi/internal/gruxlog"
	"gruxi/internal/monitoring"
	"gruxi/internal/runstate"
	"gruxi/internal/trigger"
)

var log = gruxlog.New("Admin")

// Deps bundles every collaborator the admin routes need.
type Deps struct {
	Store    *configstore.Store
	Cache    *configcache.Cache
	RunState *runstate.Manager
	Bus      *trigger.Bus
	Monitor  *monitoring.Monitor
	LogsDir  string // defaults to "./logs" if empty
}

// Handler owns the admin route set and its collaborators.
type Handler struct {
	deps    Deps
	limiter *loginLimiter
}

// New builds the admin Handler.
func New(deps Deps) *Handler {
	if deps.LogsDir == "" {
		deps.LogsDir = "./logs"
	}
	return &Handler{deps: deps, limiter: newLoginLimiter(rate.Limit(1), 5)}
}

// Router builds an *echo.Echo with every route from spec.md §6
// registered, guarded by bearer-session auth except /healthcheck and
// /login.
func (h *Handler) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.POST("/login", h.login)
	e.GET("/healthcheck", h.healthcheck)

	authed := e.Group("", h.requireSession)
	authed.POST("/logout", h.logout)
	authed.GET("/config", h.getConfig)
	authed.POST("/config", h.postConfig)
	authed.POST("/configuration/reload", h.reloadConfiguration)
	authed.GET("/monitoring", h.getMonitoring)
	authed.GET("/logs", h.listLogs)
	authed.GET("/logs/:filename", h.getLogFile)
	authed.GET("/operation-mode", h.getOperationMode)
	authed.POST("/operation-mode", h.postOperationMode)

	return e
}

func jsonError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

// requireSession is the bearer-token session-lookup middleware,
// generalized from the teacher's AuthMiddleware (internal/middleware/
// auth.go) to spec.md's simpler token-in-sessions-table model.
func (h *Handler) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := extractBearerToken(c.Request())
		if token == "" {
			return jsonError(c, http.StatusUnauthorized, "authentication required")
		}

		sess, err := h.deps.Store.GetSessionByToken(c.Request().Context(), token)
		if err != nil {
			log.Errorf("session lookup: %v", err)
			return jsonError(c, http.StatusUnauthorized, "invalid or expired session")
		}
		if sess == nil || sess.Expired(time.Now()) {
			return jsonError(c, http.StatusUnauthorized, "invalid or expired session")
		}

		c.Set("session", sess)
		return next(c)
	}
}

func extractBearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
