// Package dashboard is the signed-in user's page for changing their avatar
// and profile.
package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hashavatar/hashavatar/internal/account"
	"github.com/hashavatar/hashavatar/internal/avatars"
	"github.com/hashavatar/hashavatar/internal/identity"
	"github.com/hashavatar/hashavatar/internal/profiles"
	"github.com/hashavatar/hashavatar/internal/shared"
	"github.com/hashavatar/hashavatar/internal/view"
)

// Profile field limits, counted in characters.
const (
	NameMax     = 64
	BioMax      = 280
	LocationMax = 120
	WebsiteMax  = 2048
)

// Upload outcomes reported to the UploadObserver.
const (
	UploadStored  = "stored"
	UploadIgnored = "ignored"
)

// UploadObserver is told the outcome of every avatar upload.
type UploadObserver interface {
	ObserveUpload(outcome string)
}

type contextKey struct{}

// Handler serves /dashboard.
type Handler struct {
	logger         *slog.Logger
	accounts       *account.Manager
	templates      *view.Engine
	csrf           *shared.CSRFManager
	validator      *validator.Validate
	baseURL        string
	maxUploadBytes int64
	uploads        UploadObserver
}

// Config groups Handler dependencies.
type Config struct {
	Logger         *slog.Logger
	Accounts       *account.Manager
	Templates      *view.Engine
	CSRF           *shared.CSRFManager
	BaseURL        string
	MaxUploadBytes int64
	Uploads        UploadObserver
}

// NewHandler builds Handler instance.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{
		logger:         logger,
		accounts:       cfg.Accounts,
		templates:      cfg.Templates,
		csrf:           cfg.CSRF,
		validator:      validator.New(),
		baseURL:        cfg.BaseURL,
		maxUploadBytes: maxUpload,
		uploads:        cfg.Uploads,
	}
}

// MountRoutes registers dashboard routes. Every route needs a signed-in user.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.requireUser)
	r.Get("/", h.show)
	r.Post("/avatar", h.uploadAvatar)
	r.Post("/profile", h.updateProfile)
}

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		mgr, err := h.accounts.For(r.Context(), sess.ID)
		if err != nil {
			h.logger.Error("load account", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if mgr.Current() == nil {
			sess.AddFlash(shared.FlashMessage{Kind: "info", Message: "Sign in to open your dashboard."})
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, mgr)))
	})
}

func managerFrom(ctx context.Context) *account.Manager {
	mgr, _ := ctx.Value(contextKey{}).(*account.Manager)
	return mgr
}

type pageData struct {
	User            profiles.UserRecord
	Hash            string
	ImageURL        string
	ProfileURL      string
	WebsiteProtocol string
	WebsiteHost     string
	NameMax         int
	BioMax          int
	Errors          []string
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	mgr := managerFrom(r.Context())
	h.render(w, r, h.pageData(*mgr.Current(), nil), http.StatusOK)
}

func (h *Handler) pageData(user profiles.UserRecord, errs []string) pageData {
	protocol, host := SplitWebsite(user.Website)
	return pageData{
		User:            user,
		Hash:            identity.Hash(user.Email),
		ImageURL:        identity.ProfileImageURL(h.baseURL, user.Email),
		ProfileURL:      identity.ProfileURL(h.baseURL, user.Email),
		WebsiteProtocol: protocol,
		WebsiteHost:     host,
		NameMax:         NameMax,
		BioMax:          BioMax,
		Errors:          errs,
	}
}

// uploadAvatar stores an uploaded image as a data: URL. Files that are not
// images are ignored without an error, leaving the avatar unchanged.
func (h *Handler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	mgr := managerFrom(r.Context())
	sess := shared.SessionFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.redirectWithFlash(w, r, sess, "error", "That file is too large.")
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			h.logger.Warn("parse upload", slog.Any("error", err))
		}
		h.redirectWithFlash(w, r, sess, "error", "Choose an image to upload.")
		return
	}
	file, _, err := r.FormFile("avatar")
	if err != nil {
		h.redirectWithFlash(w, r, sess, "error", "Choose an image to upload.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Warn("read upload", slog.Any("error", err))
		h.redirectWithFlash(w, r, sess, "error", "The upload could not be read.")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		h.redirectWithFlash(w, r, sess, "error", "That file is too large.")
		return
	}

	mediaType, ok := ImageType(data)
	if !ok {
		h.observeUpload(UploadIgnored)
		h.logger.Info("ignored non-image upload", slog.String("detected", mimetype.Detect(data).String()))
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	if _, err := mgr.UpdateAvatar(r.Context(), avatars.EncodeDataURL(mediaType, data)); err != nil {
		h.logger.Error("update avatar", slog.Any("error", err))
		h.redirectWithFlash(w, r, sess, "error", "Your avatar could not be saved.")
		return
	}
	h.observeUpload(UploadStored)
	h.redirectWithFlash(w, r, sess, "success", "Avatar updated.")
}

// ImageType sniffs data and returns its media type when it is an image that
// can be served back safely. SVG is refused since it can carry script.
func ImageType(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	detected := mimetype.Detect(data)
	mediaType, _, err := mime.ParseMediaType(detected.String())
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(mediaType, "image/") || mediaType == "image/svg+xml" {
		return "", false
	}
	return mediaType, true
}

type profileForm struct {
	Name            string `validate:"max=64"`
	Bio             string `validate:"max=280"`
	Location        string `validate:"max=120"`
	WebsiteProtocol string `validate:"oneof=https:// http://"`
	Website         string `validate:"omitempty,max=2048,url"`
}

var fieldMessages = map[string]string{
	"Name":            "Name must be at most 64 characters.",
	"Bio":             "Bio must be at most 280 characters.",
	"Location":        "Location must be at most 120 characters.",
	"WebsiteProtocol": "Choose http:// or https://.",
	"Website":         "Website must be a valid address.",
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	mgr := managerFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	protocol := r.PostFormValue("website_protocol")
	if protocol == "" {
		protocol = "https://"
	}
	form := profileForm{
		Name:            strings.TrimSpace(r.PostFormValue("name")),
		Bio:             strings.TrimSpace(r.PostFormValue("bio")),
		Location:        strings.TrimSpace(r.PostFormValue("location")),
		WebsiteProtocol: protocol,
		Website:         JoinWebsite(protocol, r.PostFormValue("website")),
	}
	if err := h.validator.Struct(form); err != nil {
		var errs []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs = append(errs, fieldMessages[fieldErr.Field()])
			}
		}
		draft := mgr.Current().Merge(form.fields())
		h.render(w, r, h.pageData(draft, errs), http.StatusBadRequest)
		return
	}

	if _, err := mgr.UpdateProfile(r.Context(), form.fields()); err != nil {
		h.logger.Error("update profile", slog.Any("error", err))
		h.redirectWithFlash(w, r, shared.SessionFromContext(r.Context()), "error", "Your profile could not be saved.")
		return
	}
	h.redirectWithFlash(w, r, shared.SessionFromContext(r.Context()), "success", "Profile saved.")
}

func (f profileForm) fields() profiles.Fields {
	return profiles.Fields{
		Name:     profiles.String(f.Name),
		Bio:      profiles.String(f.Bio),
		Location: profiles.String(f.Location),
		Website:  profiles.String(f.Website),
	}
}

// JoinWebsite prefixes host with protocol unless host already carries a
// scheme. An empty host clears the website.
func JoinWebsite(protocol, host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	lower := strings.ToLower(host)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return host
	}
	return protocol + host
}

// SplitWebsite is the inverse of JoinWebsite for form display.
func SplitWebsite(website string) (protocol, host string) {
	lower := strings.ToLower(website)
	switch {
	case strings.HasPrefix(lower, "http://"):
		return "http://", website[len("http://"):]
	case strings.HasPrefix(lower, "https://"):
		return "https://", website[len("https://"):]
	default:
		return "https://", website
	}
}

func (h *Handler) observeUpload(outcome string) {
	if h.uploads != nil {
		h.uploads.ObserveUpload(outcome)
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data pageData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	user := data.User
	viewData := view.TemplateData{
		Title:       "Dashboard",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: "/dashboard",
		User:        &user,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/dashboard.html", viewData); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, sess *shared.Session, kind, message string) {
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}
