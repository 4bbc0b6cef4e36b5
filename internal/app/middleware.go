package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/hashavatar/hashavatar/internal/observability"
	"github.com/hashavatar/hashavatar/internal/shared"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRateLimit      = 600
	// multipartOverhead is allowed on top of MaxUploadBytes for the form
	// envelope and the other fields.
	multipartOverhead = 1 << 20
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
}

// MiddlewareStack installs the application middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.RequestSize(cfg.maxBody()),
		sessions(cfg),
		middleware.Recoverer,
		middleware.Timeout(cfg.requestTimeout()),
		securityHeaders(cfg),
		middleware.Compress(5),
		httprate.Limit(cfg.rateLimit(), time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		csrfProtect(cfg),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

func (cfg MiddlewareConfig) maxBody() int64 {
	if cfg.Config != nil && cfg.Config.MaxUploadBytes > 0 {
		return cfg.Config.MaxUploadBytes + multipartOverhead
	}
	return 10<<20 + multipartOverhead
}

func (cfg MiddlewareConfig) requestTimeout() time.Duration {
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		return cfg.Config.AppRequestTimeout
	}
	return defaultRequestTimeout
}

func (cfg MiddlewareConfig) rateLimit() int {
	if cfg.Config != nil && cfg.Config.RateLimitPerMinute > 0 {
		return cfg.Config.RateLimitPerMinute
	}
	return defaultRateLimit
}

// sessions loads the cookie session into the request context and commits it
// right before the status line goes out.
func sessions(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := cfg.SessionManager.Load(ctx, r)
			if err != nil {
				cfg.Logger.Error("load session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx = shared.ContextWithSession(ctx, sess)
			r = r.WithContext(ctx)
			next.ServeHTTP(&committingWriter{
				ResponseWriter: w,
				commit: func() {
					if err := cfg.SessionManager.Commit(ctx, w, r, sess); err != nil {
						cfg.Logger.Warn("commit session", slog.Any("error", err))
					}
				},
			}, r)
		})
	}
}

type committingWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *committingWriter) WriteHeader(status int) {
	if !w.committed {
		w.committed = true
		w.commit()
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *committingWriter) Write(data []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

func securityHeaders(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "camera=(), microphone=(), geolocation=()",
		ContentSecurityPolicy: "default-src 'self'; img-src 'self' data: https:; form-action 'self'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.Process(w, r); err != nil {
				cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// csrfProtect rejects unsafe methods without a valid token.
func csrfProtect(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if err := verifyCSRF(r.Context(), cfg.CSRFManager, r); err != nil {
				cfg.Logger.Warn("csrf validation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyCSRF(ctx context.Context, csrf *shared.CSRFManager, r *http.Request) error {
	return csrf.VerifyToken(ctx, shared.SessionFromContext(ctx), shared.TokenFromRequest(r))
}
