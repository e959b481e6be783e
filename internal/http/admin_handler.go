package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"playground-llm/internal/repository"
	"playground-llm/internal/service"
)

// AdminHandler mantiene dependencias para el panel del operador.
type AdminHandler struct {
	logger     *zap.Logger
	accessServ *service.AccessService
	usage      repository.UsageRepository
}

// NewAdminHandler crea una instancia de AdminHandler con dependencias necesarias.
func NewAdminHandler(logger *zap.Logger, accessServ *service.AccessService, usage repository.UsageRepository) *AdminHandler {
	return &AdminHandler{
		logger:     logger,
		accessServ: accessServ,
		usage:      usage,
	}
}

// CreateCode maneja POST /admin/codes.
func (h *AdminHandler) CreateCode(c *gin.Context) {
	var req struct {
		Code      string     `json:"code"`
		Label     string     `json:"label"`
		MaxUses   int        `json:"max_uses"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create code request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	code, err := h.accessServ.CreateCode(c.Request.Context(), service.CreateCodeInput{
		Code:      req.Code,
		Label:     req.Label,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, service.ErrCodeDuplicated) {
			c.JSON(http.StatusConflict, gin.H{"error": "code already exists"})
			return
		}
		h.logger.Error("create code failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create code"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"code": code})
}

// ListCodes maneja GET /admin/codes.
func (h *AdminHandler) ListCodes(c *gin.Context) {
	codes, err := h.accessServ.ListCodes(c.Request.Context())
	if err != nil {
		h.logger.Error("list codes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list codes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

// UpdateCode maneja PATCH /admin/codes/:id.
func (h *AdminHandler) UpdateCode(c *gin.Context) {
	var req struct {
		Label     *string    `json:"label"`
		MaxUses   *int       `json:"max_uses"`
		Active    *bool      `json:"active"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update code request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	code, err := h.accessServ.UpdateCode(c.Request.Context(), c.Param("id"), service.UpdateCodeInput{
		Label:     req.Label,
		MaxUses:   req.MaxUses,
		Active:    req.Active,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, service.ErrCodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "code not found"})
			return
		}
		h.logger.Error("update code failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": code})
}

// DeleteCode maneja DELETE /admin/codes/:id.
func (h *AdminHandler) DeleteCode(c *gin.Context) {
	if err := h.accessServ.DeleteCode(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, service.ErrCodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "code not found"})
			return
		}
		h.logger.Error("delete code failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete code"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Usage maneja GET /admin/usage.
func (h *AdminHandler) Usage(c *gin.Context) {
	records, err := h.usage.ListRecent(c.Request.Context(), 100)
	if err != nil {
		h.logger.Error("list usage failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list usage"})
		return
	}
	totals, err := h.usage.TotalsByCode(c.Request.Context())
	if err != nil {
		h.logger.Error("usage totals failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not aggregate usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recent": records, "totals": totals})
}
