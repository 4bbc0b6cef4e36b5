package app

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/hashavatar/hashavatar/internal/account"
	"github.com/hashavatar/hashavatar/internal/auth"
	"github.com/hashavatar/hashavatar/internal/avatars"
	"github.com/hashavatar/hashavatar/internal/dashboard"
	"github.com/hashavatar/hashavatar/internal/observability"
	"github.com/hashavatar/hashavatar/internal/shared"
	"github.com/hashavatar/hashavatar/internal/view"
	"github.com/hashavatar/hashavatar/jobs"
	"github.com/hashavatar/hashavatar/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	Accounts         *account.Manager
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	AvatarsHandler   *avatars.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

type homePageData struct {
	Email      string
	Hash       string
	ImageURL   string
	ProfileURL string
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	validate := validator.New()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		mgr, err := params.Accounts.For(r.Context(), shared.SessionIDOr(r.Context(), account.AnonymousSession))
		if err != nil {
			params.Logger.Error("load account", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		var data *homePageData
		if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
			data = &homePageData{Email: email}
			if validate.Var(email, "email") == nil {
				info := params.AvatarsHandler.Describe(email)
				data.Hash, data.ImageURL, data.ProfileURL = info.Hash, info.ImageURL, info.ProfileURL
			}
		}
		viewData := view.TemplateData{
			Title:       "Home",
			CSRFToken:   csrfToken,
			Flash:       flash,
			CurrentPath: r.URL.Path,
			User:        mgr.Current(),
		}
		if data != nil {
			viewData.Data = data
		}
		if err := params.Templates.Render(w, "pages/home.html", viewData); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	params.AvatarsHandler.MountRoutes(r)
	r.Route("/api/v1", params.AvatarsHandler.MountAPI)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(web.Static())))
	r.Handle("/static/*", staticCacheHandler(fileServer))

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
