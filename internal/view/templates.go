package view

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/hashavatar/hashavatar/internal/profiles"
	"github.com/hashavatar/hashavatar/internal/shared"
	"github.com/hashavatar/hashavatar/web"
)

// NotSpecified is shown for empty optional profile fields.
const NotSpecified = "Not specified"

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *profiles.UserRecord
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"orNotSpecified": func(v string) string {
			if strings.TrimSpace(v) == "" {
				return NotSpecified
			}
			return v
		},
		"initial": func(v string) string {
			v = strings.TrimSpace(v)
			if v == "" {
				return "?"
			}
			return strings.ToUpper(string([]rune(v)[:1]))
		},
		"avatarSrc": avatarSrc,
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates(), "layouts/*.html", "partials/*.html", "pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// avatarSrc passes image data URLs and http(s) URLs through to src
// attributes. html/template would otherwise rewrite data: URLs to #ZgotmplZ.
func avatarSrc(v string) template.URL {
	lower := strings.ToLower(strings.TrimSpace(v))
	switch {
	case strings.HasPrefix(lower, "data:image/"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "/") && !strings.HasPrefix(lower, "//"):
		return template.URL(v)
	default:
		return template.URL("")
	}
}
