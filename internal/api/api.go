// CLAUDE:SUMMARY Core API struct, route table and shared JSON helpers
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/hazyhaar/linkquest/internal/auth"
	"github.com/hazyhaar/linkquest/internal/db"
	"github.com/hazyhaar/linkquest/internal/llm"
)

// maxBodySize is the maximum HTTP body size for JSON endpoints.
const maxBodySize = 16 * 1024

type API struct {
	db        *db.DB
	auth      *auth.Auth
	evaluator *llm.Evaluator
	logger    *slog.Logger

	evaluateLimiter *RateLimiter
	matchesLimiter  *RateLimiter
	trustedProxies  []netip.Prefix
}

// Options tunes the API. Zero limits disable rate limiting. Rate limits key
// on X-Forwarded-For only for requests arriving from TrustedProxies.
type Options struct {
	EvaluatePerMin int
	MatchesPerMin  int
	TrustedProxies []netip.Prefix
	Logger         *slog.Logger
}

func New(database *db.DB, a *auth.Auth, evaluator *llm.Evaluator, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	api := &API{db: database, auth: a, evaluator: evaluator, logger: logger, trustedProxies: opts.TrustedProxies}
	if opts.EvaluatePerMin > 0 {
		api.evaluateLimiter = NewRateLimiter(opts.EvaluatePerMin, time.Minute)
	}
	if opts.MatchesPerMin > 0 {
		api.matchesLimiter = NewRateLimiter(opts.MatchesPerMin, time.Minute)
	}
	return api
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/healthz", a.handleHealthz)

	// Game
	mux.HandleFunc("POST /api/evaluate", RateLimitMiddleware(a.evaluateLimiter, a.trustedProxies, a.handleEvaluate))
	mux.HandleFunc("POST /api/matches", RateLimitMiddleware(a.matchesLimiter, a.trustedProxies, a.handleMatches))
	mux.HandleFunc("GET /api/matches/{id}", a.handleGetMatch)
	mux.HandleFunc("GET /api/prompts/next", a.handleNextPrompt)
	mux.HandleFunc("GET /api/leaderboard", a.handleLeaderboard)

	// Player
	mux.HandleFunc("GET /api/me/matches", a.handleMyMatches)

	a.RegisterPageRoutes(mux)
}

// CallerID returns the verified user id of the request, or "".
func (a *API) CallerID(r *http.Request) string {
	if c := a.auth.ExtractClaims(r); c != nil {
		return c.UserID()
	}
	return ""
}

// caller returns the session claims and records the user locally so matches
// can reference it. A nil result means an anonymous caller.
func (a *API) caller(r *http.Request) (*auth.Claims, error) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		return nil, nil
	}
	if err := a.db.UpsertUser(claims.UserID(), claims.Username); err != nil {
		return nil, err
	}
	return claims, nil
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := a.db.PingContext(r.Context()); err != nil {
		jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// internalError logs err and answers with an opaque 500.
func (a *API) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.Error(msg, "path", r.URL.Path, "error", err)
	jsonError(w, "internal error", http.StatusInternalServerError)
}
