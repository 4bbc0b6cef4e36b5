// Package avatars serves the public, unauthenticated views of stored
// identities: the avatar image, the profile page, the directory and their
// JSON counterparts.
package avatars

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hashavatar/hashavatar/internal/account"
	"github.com/hashavatar/hashavatar/internal/identity"
	"github.com/hashavatar/hashavatar/internal/platform/httpx"
	"github.com/hashavatar/hashavatar/internal/profiles"
	"github.com/hashavatar/hashavatar/internal/resolver"
	"github.com/hashavatar/hashavatar/internal/shared"
	"github.com/hashavatar/hashavatar/internal/view"
)

const avatarCacheControl = "public, max-age=300"

// Handler serves public lookups by hash.
type Handler struct {
	logger    *slog.Logger
	resolver  *resolver.Resolver
	accounts  *account.Manager
	templates *view.Engine
	csrf      *shared.CSRFManager
	baseURL   string
	validator *validator.Validate
}

// NewHandler builds Handler instance. baseURL prefixes the public links
// shown for a hash.
func NewHandler(logger *slog.Logger, res *resolver.Resolver, accounts *account.Manager, templates *view.Engine, csrf *shared.CSRFManager, baseURL string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		resolver:  res,
		accounts:  accounts,
		templates: templates,
		csrf:      csrf,
		baseURL:   baseURL,
		validator: validator.New(),
	}
}

// MountRoutes registers the HTML and image routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/avatar/{hash}", h.avatar)
	r.Get("/profile/{hash}", h.profile)
	r.Get("/avatars", h.directory)
}

// MountAPI registers the JSON routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/profiles/{hash}", h.apiProfile)
	r.Get("/avatars", h.apiAvatars)
	r.Get("/hash", h.apiHash)
	r.Get("/me", h.apiMe)
}

// HashInfo describes the public addresses of an email.
type HashInfo struct {
	Email      string `json:"email"`
	Hash       string `json:"hash"`
	ImageURL   string `json:"imageUrl"`
	ProfileURL string `json:"profileUrl"`
}

// Describe returns the public addresses of email.
func (h *Handler) Describe(email string) HashInfo {
	return HashInfo{
		Email:      email,
		Hash:       identity.Hash(email),
		ImageURL:   identity.ProfileImageURL(h.baseURL, email),
		ProfileURL: identity.ProfileURL(h.baseURL, email),
	}
}

// avatar serves a stored data: URL directly and redirects anything else.
// d=404 turns the placeholder into a 404.
func (h *Handler) avatar(w http.ResponseWriter, r *http.Request) {
	hash := hashParam(r)
	url, source, err := h.resolver.ResolveAvatar(r.Context(), hash)
	if err != nil {
		h.logger.Error("resolve avatar", slog.String("hash", hash), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if source == resolver.SourceFallback && wantsNotFound(r) {
		http.NotFound(w, r)
		return
	}

	if IsDataURL(url) {
		mediaType, data, err := DecodeDataURL(url)
		if err == nil && strings.HasPrefix(mediaType, "image/") {
			w.Header().Set("Content-Type", mediaType)
			w.Header().Set("Cache-Control", avatarCacheControl)
			w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
			w.Header().Set("Content-Length", fmt.Sprint(len(data)))
			w.WriteHeader(http.StatusOK)
			if r.Method != http.MethodHead {
				_, _ = w.Write(data)
			}
			return
		}
		h.logger.Warn("stored avatar is not an image data url", slog.String("hash", hash))
		url = h.accounts.Store().DefaultAvatarURL(hash)
	}

	w.Header().Set("Cache-Control", avatarCacheControl)
	http.Redirect(w, r, url, http.StatusFound)
}

type profilePageData struct {
	Profile resolver.DisplayProfile
	Info    HashInfo
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.viewer(w, r)
	if !ok {
		return
	}
	p, err := h.resolver.WithReader(mgr.Store()).ResolveByHash(r.Context(), hashParam(r))
	if err != nil {
		h.logger.Error("resolve profile", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, mgr, "pages/profile.html", p.DisplayName(), profilePageData{Profile: p}, http.StatusOK)
}

type directoryPageData struct {
	Items []resolver.AvatarItem
}

func (h *Handler) directory(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.viewer(w, r)
	if !ok {
		return
	}
	items, err := h.resolver.WithReader(mgr.Store()).Directory(r.Context())
	if err != nil {
		h.logger.Error("list avatars", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, mgr, "pages/avatars.html", "Directory", directoryPageData{Items: items}, http.StatusOK)
}

type apiProfile struct {
	resolver.DisplayProfile
	Found    bool   `json:"found"`
	ImageURL string `json:"imageUrl"`
}

func (h *Handler) apiProfile(w http.ResponseWriter, r *http.Request) {
	mgr, err := h.accounts.For(r.Context(), sessionID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.resolver.WithReader(mgr.Store()).ResolveByHash(r.Context(), hashParam(r))
	if err != nil {
		h.logger.Error("resolve profile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !p.Found() && wantsNotFound(r) {
		httpx.RespondError(w, fmt.Errorf("%w: no profile for %s", httpx.ErrNotFound, p.Hash))
		return
	}
	httpx.JSON(w, http.StatusOK, apiProfile{
		DisplayProfile: p,
		Found:          p.Found(),
		ImageURL:       strings.TrimRight(h.baseURL, "/") + "/avatar/" + p.Hash,
	})
}

func (h *Handler) apiAvatars(w http.ResponseWriter, r *http.Request) {
	mgr, err := h.accounts.For(r.Context(), sessionID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.resolver.WithReader(mgr.Store()).Directory(r.Context())
	if err != nil {
		h.logger.Error("list avatars", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type hashQuery struct {
	Email string `validate:"required,email,max=254"`
}

func (h *Handler) apiHash(w http.ResponseWriter, r *http.Request) {
	q := hashQuery{Email: strings.TrimSpace(r.URL.Query().Get("email"))}
	if err := h.validator.Struct(q); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: email must be a valid address", httpx.ErrValidation))
		return
	}
	httpx.JSON(w, http.StatusOK, h.Describe(q.Email))
}

func (h *Handler) apiMe(w http.ResponseWriter, r *http.Request) {
	mgr, err := h.accounts.For(r.Context(), sessionID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user := mgr.Current()
	if user == nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnauthorized, profiles.ErrNoActiveSession))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user, "links": h.Describe(user.Email)})
}

// viewer loads the account bound to the request's session.
func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) (*account.Manager, bool) {
	mgr, err := h.accounts.For(r.Context(), sessionID(r))
	if err != nil {
		h.logger.Error("load account", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return mgr, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, mgr *account.Manager, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        mgr.Current(),
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

// sessionID falls back to an unused slot so anonymous viewers never see a
// signed-in user.
func sessionID(r *http.Request) string {
	return shared.SessionIDOr(r.Context(), account.AnonymousSession)
}

// hashParam strips an image extension so /avatar/<hash>.png works.
func hashParam(r *http.Request) string {
	hash := chi.URLParam(r, "hash")
	switch strings.ToLower(path.Ext(hash)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg":
		hash = strings.TrimSuffix(hash, path.Ext(hash))
	}
	return hash
}

func wantsNotFound(r *http.Request) bool {
	d := r.URL.Query().Get("d")
	return d == "404"
}
