package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/auth"
)

// Login 获取授权地址
// GET /api/auth/login，带 ?redirect=1 时直接跳转
func (h *Handler) Login(c *gin.Context) {
	authURL, err := h.svc.Login(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to start auth flow", zap.Error(err))
		c.JSON(authStatus(err), gin.H{"error": err.Error()})
		return
	}

	if c.Query("redirect") == "1" {
		c.Redirect(http.StatusFound, authURL)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"url": authURL}})
}

// Callback 授权回调
// GET /auth/callback?code=...&state=...
func (h *Handler) Callback(c *gin.Context) {
	if err := h.svc.Callback(c.Request.Context(), c.Request.URL.String()); err != nil {
		h.logger.Warn("Auth callback rejected", zap.Error(err))
		c.String(authStatus(err), "Authentication failed: %s", err.Error())
		return
	}
	c.String(http.StatusOK, "Authentication successful. You can close this window.")
}

// RefreshToken 强制刷新令牌
func (h *Handler) RefreshToken(c *gin.Context) {
	info, err := h.svc.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to refresh token", zap.Error(err))
		c.JSON(authStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

// TokenStatus 令牌状态
func (h *Handler) TokenStatus(c *gin.Context) {
	info, err := h.svc.TokenStatus(c.Request.Context())
	if err != nil {
		c.JSON(authStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

// Logout 清除令牌
func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context()); err != nil {
		h.logger.Error("Failed to logout", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"message": "Logged out"}})
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrMissingClientID),
		errors.Is(err, auth.ErrMissingClientSecret),
		errors.Is(err, auth.ErrMissingCode),
		errors.Is(err, auth.ErrMissingState),
		errors.Is(err, auth.ErrStateMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
