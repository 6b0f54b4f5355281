package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/choraleia/opengpt/pkg/db"
	"github.com/choraleia/opengpt/pkg/event"
	"github.com/choraleia/opengpt/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = models.User{ID: "u-1", Username: "alice", Email: "alice@example.com"}

func TestTokens_IssueAndVerify(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	signed, err := tokens.Issue(alice)
	require.NoError(t, err)

	claims, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.ID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	signed, err := tokens.Issue(alice)
	require.NoError(t, err)

	expired := NewTokens("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(alice)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	anonymous, err := tokens.Issue(models.User{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		with  *Tokens
	}{
		{"empty", "", tokens},
		{"garbage", "not.a.jwt", tokens},
		{"wrong secret", signed, NewTokens("other", time.Hour)},
		{"expired", old, tokens},
		{"alg none", none, tokens},
		{"no user id", anonymous, tokens},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.with.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}

func newMiddlewareRouter(tokens *Tokens) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(tokens, "token"), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "username": claims.Username})
	})
	return r
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	signed, err := tokens.Issue(alice)
	require.NoError(t, err)
	r := newMiddlewareRouter(tokens)

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "token", Value: signed}) }, http.StatusOK},
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+signed) }, http.StatusOK},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"invalid cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "token", Value: "junk"}) }, http.StatusUnauthorized},
		{"basic auth", func(req *http.Request) { req.SetBasicAuth("alice", "pw") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"id":"u-1","username":"alice"}`, w.Body.String())
			} else {
				assert.JSONEq(t, `{"message":"Unauthorized"}`, w.Body.String())
			}
		})
	}
}

func newService(t *testing.T) *Service {
	t.Helper()
	gdb, err := db.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewService(NewGormUserStore(gdb), NewTokens("secret", time.Hour))
}

func TestService_SignupAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	emitter := event.NewEmitter()
	svc.SetEmitter(emitter)
	var signedUp []string
	emitter.On(event.UserSignedUp, func(ev event.Event) {
		signedUp = append(signedUp, ev.(event.UserSignedUpEvent).UserID)
	})

	u, err := svc.Signup(ctx, models.SignupRequest{Username: " alice ", Email: "Alice@Example.com ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, []string{u.ID}, signedUp)

	_, err = svc.Signup(ctx, models.SignupRequest{Username: "other", Email: "alice@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	got, token, err := svc.Login(ctx, "ALICE@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	claims, err := svc.Tokens().Verify(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.ID)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	byID, err := svc.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	_, err = svc.users.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
