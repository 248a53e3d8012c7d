package admin

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"gruxi/internal/model"
)

// loginLimiter rate-limits POST /login per remote IP, grounded on the
// teacher's `rate_limit` model/repository concern (nginx-level request
// throttling) generalized to the admin API's own login endpoint.
type loginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newLoginLimiter(r rate.Limit, burst int) *loginLimiter {
	return &loginLimiter{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (l *loginLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	SessionToken string    `json:"session_token,omitempty"`
	Username     string    `json:"username,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// login implements POST /login (spec.md §6).
func (h *Handler) login(c echo.Context) error {
	ip := c.RealIP()
	if !h.limiter.allow(ip) {
		return jsonError(c, http.StatusTooManyRequests, "too many login attempts")
	}

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, loginResponse{Success: false, Message: "invalid request body"})
	}

	ctx := c.Request().Context()
	user, err := h.deps.Store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		log.Errorf("login: lookup user: %v", err)
		return c.JSON(http.StatusInternalServerError, loginResponse{Success: false, Message: "internal error"})
	}
	if user == nil || !user.IsActive {
		return c.JSON(http.StatusUnauthorized, loginResponse{Success: false, Message: "invalid username or password"})
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return c.JSON(http.StatusUnauthorized, loginResponse{Success: false, Message: "invalid username or password"})
	}

	token, err := newSessionToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, loginResponse{Success: false, Message: "internal error"})
	}
	expiresAt := time.Now().Add(model.SessionLifetime)
	sess := &model.Session{Token: token, UserID: user.ID, Username: user.Username, ExpiresAt: expiresAt}
	if err := h.deps.Store.CreateSession(ctx, sess); err != nil {
		log.Errorf("login: create session: %v", err)
		return c.JSON(http.StatusInternalServerError, loginResponse{Success: false, Message: "internal error"})
	}
	_ = h.deps.Store.RecordLogin(ctx, user.ID)

	return c.JSON(http.StatusOK, loginResponse{
		Success: true, Message: "login successful",
		SessionToken: token, Username: user.Username, ExpiresAt: expiresAt,
	})
}

// logout implements POST /logout.
func (h *Handler) logout(c echo.Context) error {
	token := extractBearerToken(c.Request())
	if token == "" {
		return jsonError(c, http.StatusBadRequest, "missing token")
	}

	ctx := c.Request().Context()
	sess, err := h.deps.Store.GetSessionByToken(ctx, token)
	if err != nil {
		log.Errorf("logout: lookup session: %v", err)
		return jsonError(c, http.StatusInternalServerError, "internal error")
	}
	if sess == nil {
		return jsonError(c, http.StatusNotFound, "unknown token")
	}
	if err := h.deps.Store.DeleteSession(ctx, token); err != nil {
		log.Errorf("logout: delete session: %v", err)
		return jsonError(c, http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

// healthcheck implements GET /healthcheck — the one route reachable
// without a session.
func (h *Handler) healthcheck(c echo.Context) error {
	return c.String(http.StatusOK, "The server is healthy")
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
