package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choraleia/opengpt/pkg/config"
	"github.com/choraleia/opengpt/pkg/models"
)

func newTestServer(t *testing.T, mutate func(*config.AppConfig)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("HOME", t.TempDir())

	cfg := &config.AppConfig{
		Store: config.StoreConfig{Driver: "sqlite", DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared"},
		Auth:  config.AuthConfig{JWTSecret: "router-test"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	services, cleanup, err := buildServices(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	return NewServer(cfg, services)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.Server.AllowedOrigins = []string{"https://chat.example.com/"}
	})

	tests := []struct {
		origin string
		want   int
	}{
		{"http://localhost:5173", http.StatusNoContent},
		{"https://chat.example.com", http.StatusNoContent},
		{"https://evil.example.com", http.StatusForbidden},
		{"http://localhost.evil.com", http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/chat/history", nil)
			req.Header.Set("Origin", tc.origin)
			w := serve(s, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusNoContent {
				assert.Equal(t, tc.origin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestRoutes_SignupLoginAndHistory(t *testing.T) {
	s := newTestServer(t, nil)

	post := func(path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		if cookie != nil {
			req.AddCookie(cookie)
		}
		return serve(s, req)
	}

	w := post("/api/users/signup", models.SignupRequest{Username: "ada", Email: "ada@example.com", Password: "secret1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = post("/api/users/login", models.LoginRequest{Email: "ada@example.com", Password: "secret1"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "token" {
			session = c
		}
	}
	require.NotNil(t, session)

	w = post("/api/chat/history", models.UpsertChatRequest{
		ChatID:   "c1",
		Messages: []models.Message{{ID: "m1", Role: "user", Content: "hello"}},
	}, session)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	req.AddCookie(session)
	w = serve(s, req)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.ChatListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Chats, 1)
	assert.Equal(t, "hello", list.Chats[0].Title)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/events/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatic_SPAFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))

	s := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.Server.StaticDir = dir
	})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>app</html>", w.Body.String())
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/chat/abc", nil)
	req.Header.Set("Accept", "text/html")
	w = serve(s, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>app</html>", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", etag)
	w = serve(s, req)
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/missing.png", nil)
	req.Header.Set("Accept", "image/png")
	w = serve(s, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAcceptHTML(t *testing.T) {
	assert.True(t, acceptHTML(""))
	assert.True(t, acceptHTML("application/json, text/html;q=0.9"))
	assert.False(t, acceptHTML("application/json"))
}
