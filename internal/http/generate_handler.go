package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"playground-llm/internal/llm"
	"playground-llm/internal/service"
)

// GenerateHandler mantiene dependencias para el endpoint de generacion.
type GenerateHandler struct {
	logger  *zap.Logger
	genServ *service.GenerationService
}

// NewGenerateHandler crea una instancia de GenerateHandler con dependencias necesarias.
func NewGenerateHandler(logger *zap.Logger, genServ *service.GenerationService) *GenerateHandler {
	return &GenerateHandler{
		logger:  logger,
		genServ: genServ,
	}
}

// sseStream empuja los eventos del extractor al navegador por server-sent events.
// Implementa service.CodeStreamSink; wrote distingue errores antes del primer
// byte (respuesta JSON normal) de errores a mitad del stream (evento error).
type sseStream struct {
	w     gin.ResponseWriter
	wrote bool
}

func (s *sseStream) send(event string, data any) error {
	if err := sse.Encode(s.w, sse.Event{Event: event, Data: data}); err != nil {
		return err
	}
	s.wrote = true
	s.w.Flush()
	return nil
}

func (s *sseStream) FieldStarted() error {
	return s.send("start", gin.H{})
}

func (s *sseStream) Content(text string) error {
	return s.send("chunk", text)
}

func (s *sseStream) FieldComplete() error {
	return s.send("complete", gin.H{})
}

// Generate maneja POST /api/generate. La respuesta es un stream SSE: start,
// cero o mas chunk con lineas de codigo decodificadas, complete, y el payload
// terminal result con el objeto validado mas la cuota restante. Ante fallo se
// emite un unico evento error con clase legible por maquina.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid generate request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	claims, ok := GetAuthClaims(c)
	if !ok || claims.CodeID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	stream := &sseStream{w: c.Writer}
	outcome, err := h.genServ.Generate(c.Request.Context(), service.GenerationInput{
		CodeID:    claims.CodeID,
		Prompt:    req.Prompt,
		VisitorIP: c.ClientIP(),
	}, stream)
	if err != nil {
		h.writeGenerationError(c, stream, err)
		return
	}

	if err := stream.send("result", gin.H{
		"message":   outcome.Result.Message,
		"code":      outcome.Result.Code,
		"remaining": outcome.Remaining,
	}); err != nil {
		h.logger.Warn("client disconnected before result", zap.Error(err))
	}
}

// writeGenerationError responde JSON normal si todavia no salio ningun evento,
// o un evento SSE error si el stream ya estaba abierto.
func (h *GenerateHandler) writeGenerationError(c *gin.Context, stream *sseStream, err error) {
	status, class, msg := classifyGenerationError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("generation failed", zap.Error(err), zap.String("class", class))
	} else {
		h.logger.Warn("generation rejected", zap.Error(err), zap.String("class", class))
	}

	if stream.wrote {
		if sendErr := stream.send("error", gin.H{"error": msg, "code": class}); sendErr != nil {
			h.logger.Warn("client disconnected before error event", zap.Error(sendErr))
		}
		return
	}

	c.Writer.Header().Set("Content-Type", "application/json")
	c.JSON(status, gin.H{"error": msg, "code": class})
}

func classifyGenerationError(err error) (status int, class, msg string) {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "too many requests, wait a moment"
	case errors.Is(err, service.ErrCodeNotFound):
		return http.StatusNotFound, "rejected", "access code not found"
	case errors.Is(err, service.ErrCodeInactive),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrCodeExhausted):
		return http.StatusForbidden, "rejected", err.Error()
	case errors.Is(err, llm.ErrMissingCredential):
		return http.StatusServiceUnavailable, "config", "generator not configured"
	case errors.Is(err, llm.ErrUpstreamQuota):
		return http.StatusServiceUnavailable, "rejected", "generator quota exceeded, try later"
	case errors.Is(err, llm.ErrContentRejected):
		return http.StatusUnprocessableEntity, "rejected", "the prompt was rejected by the generator"
	case errors.Is(err, service.ErrMalformedResponse):
		return http.StatusBadGateway, "parse", "the generator returned an unreadable response"
	default:
		return http.StatusBadGateway, "upstream", "generation failed"
	}
}
