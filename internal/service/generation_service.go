package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"playground-llm/internal/domain"
	"playground-llm/internal/llm"
	"playground-llm/internal/repository"
)

// GenerationService orquesta una generacion: descuenta el uso, streamea la
// respuesta del LLM a traves del extractor y persiste el registro de uso.
type GenerationService struct {
	logger    *zap.Logger
	llmClient llm.StreamClient
	access    *AccessService
	usage     repository.UsageRepository
	limiter   VisitorRateLimiter
	model     string
}

func NewGenerationService(
	logger *zap.Logger,
	llmClient llm.StreamClient,
	access *AccessService,
	usage repository.UsageRepository,
	limiter VisitorRateLimiter,
	model string,
) *GenerationService {
	return &GenerationService{
		logger:    logger,
		llmClient: llmClient,
		access:    access,
		usage:     usage,
		limiter:   limiter,
		model:     model,
	}
}

type GenerationInput struct {
	CodeID    string
	Prompt    string
	VisitorIP string
}

// GenerationOutcome es el payload terminal: el objeto validado por el parse
// final mas la cuota restante del codigo.
type GenerationOutcome struct {
	Result    domain.GenerationResult
	Remaining int
}

// Generate corre la generacion completa empujando eventos incrementales al sink.
// Los errores de procesamiento por fragmento se loguean y el stream continua;
// los errores de validacion al final del stream siempre se propagan.
func (s *GenerationService) Generate(ctx context.Context, input GenerationInput, sink CodeStreamSink) (GenerationOutcome, error) {
	if s.limiter != nil && !s.limiter.Allow(input.VisitorIP) {
		return GenerationOutcome{}, ErrRateLimited
	}

	code, err := s.access.Consume(ctx, input.CodeID)
	if err != nil {
		return GenerationOutcome{}, err
	}

	start := time.Now()
	extractor := NewCodeStreamExtractor(sink)

	prompt := buildGenerationPrompt(input.Prompt)
	streamErr := s.llmClient.GenerateStream(ctx, prompt, func(fragment string) error {
		if feedErr := extractor.Feed(fragment); feedErr != nil {
			// Un fallo de entrega no tira el stream: el extractor retiene lo
			// pendiente y lo reintenta en el proximo fragmento.
			s.logger.Warn("fragment processing failed",
				zap.Error(feedErr),
				zap.String("code_id", input.CodeID),
			)
		}
		return nil
	})
	if streamErr != nil {
		s.recordUsage(input, code.ID, statusForStreamError(streamErr), start)
		return GenerationOutcome{}, streamErr
	}

	result, err := extractor.Finish()
	if err != nil {
		s.recordUsage(input, code.ID, domain.UsageStatusParseError, start)
		return GenerationOutcome{}, err
	}

	s.recordUsage(input, code.ID, domain.UsageStatusOK, start)
	return GenerationOutcome{
		Result:    result,
		Remaining: code.Remaining(),
	}, nil
}

// recordUsage persiste el registro; si falla solo lo logueamos, el resultado
// de la generacion ya esta decidido.
func (s *GenerationService) recordUsage(input GenerationInput, codeID, status string, start time.Time) {
	if s.usage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	record := domain.UsageRecord{
		ID:         uuid.NewString(),
		CodeID:     codeID,
		VisitorIP:  input.VisitorIP,
		PromptLen:  len(input.Prompt),
		Model:      s.model,
		Status:     status,
		DurationMs: time.Since(start).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.usage.Create(ctx, record); err != nil {
		s.logger.Warn("usage record failed", zap.Error(err), zap.String("code_id", codeID))
	}
}

func statusForStreamError(err error) string {
	switch {
	case isRejectionError(err):
		return domain.UsageStatusRejected
	default:
		return domain.UsageStatusUpstreamError
	}
}

func isRejectionError(err error) bool {
	return errors.Is(err, llm.ErrContentRejected) || errors.Is(err, llm.ErrUpstreamQuota)
}
