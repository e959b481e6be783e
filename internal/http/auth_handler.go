package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"playground-llm/internal/service"
)

// AuthHandler mantiene dependencias para el canje de codigos y el login de operador.
type AuthHandler struct {
	logger     *zap.Logger
	accessServ *service.AccessService
	jwtServ    *service.JWTService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, accessServ *service.AccessService, jwtServ *service.JWTService) *AuthHandler {
	return &AuthHandler{
		logger:     logger,
		accessServ: accessServ,
		jwtServ:    jwtServ,
	}
}

// RedeemAccessCode maneja POST /auth/access.
func (h *AuthHandler) RedeemAccessCode(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid access request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	code, err := h.accessServ.Redeem(c.Request.Context(), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCodeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "access code not found"})
		case errors.Is(err, service.ErrCodeInactive),
			errors.Is(err, service.ErrCodeExpired),
			errors.Is(err, service.ErrCodeExhausted):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			h.logger.Error("redeem access code failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not redeem code"})
		}
		return
	}

	token, err := h.jwtServ.GenerateVisitorToken(code)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"label":     code.Label,
		"remaining": code.Remaining(),
	})
}

// AdminLogin maneja POST /admin/login.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid admin login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.accessServ.VerifyAdminPassword(req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.jwtServ.GenerateAdminToken()
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
