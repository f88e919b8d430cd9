// Package localapi serves every endpoint over plain HTTP for local
// development. Each route runs the same handler its Lambda runs.
package localapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mindmend/backend/internal/handlers"
	"github.com/mindmend/backend/internal/logging"
)

type Options struct {
	CORSOrigins []string
	RatePerSec  int
	RateBurst   int
}

type route struct {
	method  string
	pattern string
	fn      func(h *handlers.Handler) handlers.Func
}

// routes matches the API Gateway resource table.
var routes = []route{
	{http.MethodPost, "/signup/", func(h *handlers.Handler) handlers.Func { return h.Signup }},
	{http.MethodDelete, "/signup/{id}/", func(h *handlers.Handler) handlers.Func { return h.DeleteUser }},
	{http.MethodPost, "/login/", func(h *handlers.Handler) handlers.Func { return h.Login }},
	{http.MethodPost, "/logout/", func(h *handlers.Handler) handlers.Func { return h.Logout }},
	{http.MethodPost, "/token/refresh/", func(h *handlers.Handler) handlers.Func { return h.RefreshToken }},
	{http.MethodPost, "/google_login/", func(h *handlers.Handler) handlers.Func { return h.GoogleLogin }},
	{http.MethodPost, "/apple_login/", func(h *handlers.Handler) handlers.Func { return h.AppleLogin }},
	{http.MethodPost, "/reset-password/", func(h *handlers.Handler) handlers.Func { return h.PasswordReset }},
	{http.MethodPost, "/reset-password/confirm/", func(h *handlers.Handler) handlers.Func { return h.PasswordResetConfirm }},
	{http.MethodGet, "/reset-password/form/{uid}/", func(h *handlers.Handler) handlers.Func { return h.PasswordResetForm }},
	{http.MethodPut, "/profile/update/", func(h *handlers.Handler) handlers.Func { return h.UpdateProfile }},
	{http.MethodGet, "/users/", func(h *handlers.Handler) handlers.Func { return h.ListUsers }},
	{http.MethodPost, "/user_therapy_info/", func(h *handlers.Handler) handlers.Func { return h.TherapyInfo }},
	{http.MethodGet, "/score-records/", func(h *handlers.Handler) handlers.Func { return h.ScoreRecords }},
	{http.MethodGet, "/emotions/", func(h *handlers.Handler) handlers.Func { return h.ListEmotions }},
	{http.MethodGet, "/subscriptions/", func(h *handlers.Handler) handlers.Func { return h.ListSubscriptions }},
	{http.MethodPost, "/subscriptions/create/", func(h *handlers.Handler) handlers.Func { return h.CreateSubscription }},
	{http.MethodPost, "/contact-us/", func(h *handlers.Handler) handlers.Func { return h.ContactUs }},
	{http.MethodGet, "/contact-us/", func(h *handlers.Handler) handlers.Func { return h.ListContacts }},
}

// NewRouter mounts every route plus /healthz and /metrics.
func NewRouter(h *handlers.Handler, opts Options, log *logging.Logger) http.Handler {
	metrics := NewMetrics()
	limiter := NewRateLimiter(opts.RatePerSec, opts.RateBurst, log)
	limiter.onLimit = metrics.limited.Inc

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		for _, rt := range routes {
			r.Method(rt.method, rt.pattern, adapt(h.Instrument(rt.fn(h))))
		}
	})
	return r
}
