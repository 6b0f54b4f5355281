// Account HTTP handlers
package handler

import (
	"errors"
	"net/http"

	"github.com/choraleia/opengpt/pkg/auth"
	"github.com/choraleia/opengpt/pkg/models"
	"github.com/gin-gonic/gin"
)

// sessionCookieMaxAge is one day, longer than the token itself.
const sessionCookieMaxAge = 60 * 60 * 24

// UserHandler handles signup, login and logout.
type UserHandler struct {
	service      *auth.Service
	cookieName   string
	secureCookie bool
}

func NewUserHandler(service *auth.Service, cookieName string, secureCookie bool) *UserHandler {
	return &UserHandler{
		service:      service,
		cookieName:   cookieName,
		secureCookie: secureCookie,
	}
}

// RegisterRoutes registers account routes
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.POST("/signup", h.Signup)
		users.POST("/login", h.Login)
		users.POST("/logout", h.Logout)
	}
}

// Signup creates an account
// POST /api/users/signup
func (h *UserHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.service.Signup(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Signup failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"success": true,
		"user":    user,
	})
}

// Login verifies credentials and sets the session cookie
// POST /api/users/login
func (h *UserHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
		return
	}

	user, token, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Login failed. Please try again."})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, sessionCookieMaxAge, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, models.LoginResponse{
		Message: "Login successful",
		Success: true,
		User:    *user,
	})
}

// Logout clears the session cookie
// POST /api/users/logout
func (h *UserHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Logged out"})
}
