package auth

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/alexjbarnes/txmon-auth/internal/metrics"
)

const (
	rateLimitWindow  = 5 * time.Minute
	rateLimitMaxFail = 10

	// maxSessionBody caps login, refresh and logout bodies.
	maxSessionBody = 8 << 10
)

// remoteIP extracts the IP address from r.RemoteAddr, stripping the
// port. Falls back to the raw value if parsing fails.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// loginRateLimiter tracks failed logins per IP over a sliding window.
// Idle IPs age out of the cache after one window.
type loginRateLimiter struct {
	mu       sync.Mutex
	failures *gocache.Cache
	now      func() time.Time
}

func newLoginRateLimiter() *loginRateLimiter {
	return &loginRateLimiter{
		failures: gocache.New(rateLimitWindow, time.Minute),
		now:      time.Now,
	}
}

// recent returns the failures for ip still inside the window.
func (rl *loginRateLimiter) recent(ip string) []time.Time {
	v, ok := rl.failures.Get(ip)
	if !ok {
		return nil
	}

	cutoff := rl.now().Add(-rateLimitWindow)

	var kept []time.Time

	for _, t := range v.([]time.Time) {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	return kept
}

// check reports whether ip is currently rate limited and, if so, how
// long until its oldest failure leaves the window.
func (rl *loginRateLimiter) check(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.recent(ip)
	if len(recent) < rateLimitMaxFail {
		return false, 0
	}

	return true, recent[0].Add(rateLimitWindow).Sub(rl.now())
}

func (rl *loginRateLimiter) record(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := append(rl.recent(ip), rl.now())
	rl.failures.Set(ip, recent, gocache.DefaultExpiration)
}

func (rl *loginRateLimiter) reset(ip string) {
	rl.failures.Delete(ip)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// SessionHandlers serves the user session endpoints.
type SessionHandlers struct {
	sessions *SessionService
	limiter  *loginRateLimiter
	logger   *slog.Logger
}

// NewSessionHandlers returns handlers backed by sessions.
func NewSessionHandlers(sessions *SessionService, logger *slog.Logger) *SessionHandlers {
	return &SessionHandlers{
		sessions: sessions,
		limiter:  newLoginRateLimiter(),
		logger:   logger,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxSessionBody)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_input", "Invalid input", "request body must be valid JSON")
		return false
	}

	return true
}

// Login handles POST /api/auth/login.
func (h *SessionHandlers) Login(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)

	if limited, retry := h.limiter.check(ip); limited {
		metrics.LoginThrottled.Inc()
		h.logger.Warn("login rate limited", slog.String("ip", ip))

		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
		writeProblem(w, r, http.StatusTooManyRequests, "rate_limited", "Too many requests",
			"too many failed login attempts, try again later")

		return
	}

	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.limiter.record(ip)
		writeError(w, r, h.logger, err)

		return
	}

	h.limiter.reset(ip)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, res)
}

// Refresh handles POST /api/auth/refresh.
func (h *SessionHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, res)
}

// Logout handles POST /api/auth/logout.
func (h *SessionHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	Subject   string    `json:"sub"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Me handles GET /api/auth/me. It must run behind Middleware.
func (h *SessionHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeProblem(w, r, http.StatusUnauthorized, "unauthorized", "Unauthorized", "a bearer token is required")
		return
	}

	resp := meResponse{
		Subject:  claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		Role:     claims.Role,
		ClientID: claims.ClientID,
		Scopes:   claims.Scopes(),
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}

	writeJSON(w, http.StatusOK, resp)
}
