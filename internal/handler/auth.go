package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ceejayvjose/ict-repair-system/internal/auth"
	"github.com/ceejayvjose/ict-repair-system/internal/verify"
)

const adminEmailKey = "adminEmail"

type AuthHandler struct {
	auth *auth.Service
	gate *verify.Gate
}

func NewAuthHandler(authSvc *auth.Service, gate *verify.Gate) *AuthHandler {
	return &AuthHandler{auth: authSvc, gate: gate}
}

type loginRequest struct {
	Email            string `json:"email" binding:"required"`
	Password         string `json:"password" binding:"required"`
	VerificationID   string `json:"verification_id" binding:"required"`
	VerificationCode string `json:"verification_code"`
}

// Login gates the admin sign-in behind the same 4-digit challenge as
// submissions, then checks credentials and returns a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	if err := h.gate.Check(req.VerificationID, req.VerificationCode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid code. Please enter the correct 4-digit code."})
		return
	}
	token, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Login failed: invalid email or password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Logout is stateless on the server; the client discards its token.
// The endpoint exists so the UI has a definite sign-out call.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}

// Me returns the authenticated admin, mirroring getCurrentUser.
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"email": c.GetString(adminEmailKey)})
}

// RequireAdmin rejects requests without a valid bearer token.
func RequireAdmin(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := bearerEmail(c, authSvc)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(adminEmailKey, email)
		c.Next()
	}
}

// OptionalAdmin records the admin identity when a valid token is present
// but lets anonymous requests through. Chat uses it to pick the sender
// role.
func OptionalAdmin(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if email, ok := bearerEmail(c, authSvc); ok {
			c.Set(adminEmailKey, email)
		}
		c.Next()
	}
}

// IsAdmin reports whether the current request carried a valid admin
// token (set by RequireAdmin or OptionalAdmin).
func IsAdmin(c *gin.Context) bool {
	return c.GetString(adminEmailKey) != ""
}

func bearerEmail(c *gin.Context, authSvc *auth.Service) (string, bool) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	email, err := authSvc.Verify(token)
	if err != nil {
		return "", false
	}
	return email, true
}
