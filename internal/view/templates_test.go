package view

import (
	"html/template"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashavatar/hashavatar/internal/profiles"
	"github.com/hashavatar/hashavatar/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderLoginWithFlash(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.Render(rr, "pages/login.html", TemplateData{
		Title:     "Sign in",
		CSRFToken: "tok",
		Flash:     &shared.FlashMessage{Kind: "success", Message: "Signed out"},
	})
	require.NoError(t, err)
	body := rr.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, body, `name="csrf_token" value="tok"`)
	assert.Contains(t, body, "Signed out")
	assert.Contains(t, body, `href="/auth/login"`)
}

func TestRenderNavForSignedInUser(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.Render(rr, "pages/home.html", TemplateData{User: &profiles.UserRecord{Email: "a@x.com"}})
	require.NoError(t, err)
	assert.Contains(t, rr.Body.String(), `action="/auth/logout"`)
	assert.NotContains(t, rr.Body.String(), `href="/auth/login"`)
}

func TestAvatarSrc(t *testing.T) {
	cases := map[string]template.URL{
		"data:image/png;base64,AAAA": "data:image/png;base64,AAAA",
		"https://img.example/a.png":  "https://img.example/a.png",
		"/avatar/abc":                "/avatar/abc",
		"//evil.example/a.png":       "",
		"javascript:alert(1)":        "",
		"data:text/html,hi":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, avatarSrc(in), in)
	}
}
