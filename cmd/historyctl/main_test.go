package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choraleia/opengpt/pkg/auth"
	"github.com/choraleia/opengpt/pkg/db"
	"github.com/choraleia/opengpt/pkg/handler"
	"github.com/choraleia/opengpt/pkg/history"
	"github.com/choraleia/opengpt/pkg/models"
)

func startServer(t *testing.T) options {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb, err := db.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	tokens := auth.NewTokens("secret", time.Hour)
	users := auth.NewService(auth.NewGormUserStore(gdb), tokens)
	repo := history.NewRepository(history.NewGormStore(gdb))

	r := gin.New()
	api := r.Group("/api")
	handler.NewUserHandler(users, "token", false).RegisterRoutes(api)
	handler.NewHistoryHandler(repo).RegisterRoutes(api.Group("", auth.Middleware(tokens, "token")))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	_, err = users.Signup(context.Background(), models.SignupRequest{Username: "ctl", Email: "ctl@example.com", Password: "secret1"})
	require.NoError(t, err)

	return options{server: srv.URL, email: "ctl@example.com", password: "secret1", cookie: "token", policy: "strict"}
}

func runCmd(t *testing.T, opts options, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), opts, args, &out)
	return out.String(), err
}

func TestRun_CreateListShowDelete(t *testing.T) {
	opts := startServer(t)

	out, err := runCmd(t, opts, "list")
	require.NoError(t, err)
	assert.Equal(t, "No chats yet.\n", out)

	out, err = runCmd(t, opts, "create", "What", "is", "Go?")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = runCmd(t, opts, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Today")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "What is Go?")

	out, err = runCmd(t, opts, "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "[user] What is Go?")

	_, err = runCmd(t, opts, "delete", id)
	require.NoError(t, err)

	out, err = runCmd(t, opts, "list")
	require.NoError(t, err)
	assert.Equal(t, "No chats yet.\n", out)
}

func TestRun_Clear(t *testing.T) {
	opts := startServer(t)
	for i := 0; i < 3; i++ {
		_, err := runCmd(t, opts, "create")
		require.NoError(t, err)
	}

	_, err := runCmd(t, opts, "clear")
	require.NoError(t, err)

	out, err := runCmd(t, opts, "list")
	require.NoError(t, err)
	assert.Equal(t, "No chats yet.\n", out)
}

func TestRun_Errors(t *testing.T) {
	opts := startServer(t)

	_, err := runCmd(t, options{server: opts.server, cookie: "token"}, "list")
	assert.ErrorContains(t, err, "-token or -email")

	bad := opts
	bad.password = "wrong-password"
	_, err = runCmd(t, bad, "list")
	assert.ErrorContains(t, err, "login")

	_, err = runCmd(t, opts)
	assert.ErrorIs(t, err, errNoCommand)

	_, err = runCmd(t, opts, "frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	_, err = runCmd(t, opts, "show")
	assert.ErrorContains(t, err, "chat id")

	_, err = runCmd(t, opts, "show", "missing")
	assert.ErrorIs(t, err, history.ErrNotFound)
}
