package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"playground-llm/internal/domain"
	"playground-llm/internal/repository"
)

var (
	ErrCodeNotFound    = errors.New("access code not found")
	ErrCodeInactive    = errors.New("access code inactive")
	ErrCodeExhausted   = errors.New("access code exhausted")
	ErrCodeExpired     = errors.New("access code expired")
	ErrCodeDuplicated  = errors.New("access code already exists")
	ErrInvalidAdminKey = errors.New("invalid admin password")
	ErrRateLimited     = errors.New("rate limited")
)

// AccessService coordina reglas de negocio para codigos de acceso del taller.
type AccessService struct {
	logger         *zap.Logger
	codes          repository.AccessCodeRepository
	adminHash      string
	defaultMaxUses int
}

func NewAccessService(logger *zap.Logger, codes repository.AccessCodeRepository, adminHash string, defaultMaxUses int) *AccessService {
	if defaultMaxUses <= 0 {
		defaultMaxUses = 20
	}
	return &AccessService{
		logger:         logger,
		codes:          codes,
		adminHash:      adminHash,
		defaultMaxUses: defaultMaxUses,
	}
}

// Redeem valida un codigo dictado por el visitante y lo devuelve si sirve.
func (s *AccessService) Redeem(ctx context.Context, rawCode string) (domain.AccessCode, error) {
	code := normalizeCode(rawCode)
	if code == "" {
		return domain.AccessCode{}, ErrCodeNotFound
	}

	found, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AccessCode{}, ErrCodeNotFound
		}
		return domain.AccessCode{}, err
	}

	if err := usableNow(found, time.Now().UTC()); err != nil {
		return domain.AccessCode{}, err
	}
	return found, nil
}

// Consume descuenta un uso de forma atomica y devuelve el codigo actualizado.
func (s *AccessService) Consume(ctx context.Context, codeID string) (domain.AccessCode, error) {
	updated, err := s.codes.ConsumeUse(ctx, codeID)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.AccessCode{}, err
	}

	// El UPDATE no matcheo: distinguir entre inexistente, inactivo, vencido o agotado.
	found, getErr := s.codes.GetByID(ctx, codeID)
	if getErr != nil {
		if errors.Is(getErr, pgx.ErrNoRows) {
			return domain.AccessCode{}, ErrCodeNotFound
		}
		return domain.AccessCode{}, getErr
	}
	if stateErr := usableNow(found, time.Now().UTC()); stateErr != nil {
		return domain.AccessCode{}, stateErr
	}
	return domain.AccessCode{}, ErrCodeExhausted
}

// VerifyAdminPassword compara la clave del operador contra el hash bcrypt configurado.
func (s *AccessService) VerifyAdminPassword(password string) error {
	password = strings.TrimSpace(password)
	if s.adminHash == "" || password == "" {
		return ErrInvalidAdminKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminHash), []byte(password)); err != nil {
		return ErrInvalidAdminKey
	}
	return nil
}

type CreateCodeInput struct {
	Code      string
	Label     string
	MaxUses   int
	ExpiresAt *time.Time
}

// CreateCode da de alta un codigo; si no viene uno explicito se genera uno
// corto y legible para dictarlo en el taller.
func (s *AccessService) CreateCode(ctx context.Context, input CreateCodeInput) (domain.AccessCode, error) {
	code := normalizeCode(input.Code)
	if code == "" {
		generated, err := generateAccessCode(8)
		if err != nil {
			return domain.AccessCode{}, fmt.Errorf("generate code: %w", err)
		}
		code = generated
	}

	if _, err := s.codes.GetByCode(ctx, code); err == nil {
		return domain.AccessCode{}, ErrCodeDuplicated
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.AccessCode{}, err
	}

	maxUses := input.MaxUses
	if maxUses <= 0 {
		maxUses = s.defaultMaxUses
	}

	created := domain.AccessCode{
		ID:        uuid.NewString(),
		Code:      code,
		Label:     strings.TrimSpace(input.Label),
		MaxUses:   maxUses,
		Active:    true,
		ExpiresAt: input.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.codes.Create(ctx, created); err != nil {
		return domain.AccessCode{}, err
	}
	return created, nil
}

// ListCodes devuelve todos los codigos para el panel del operador.
func (s *AccessService) ListCodes(ctx context.Context) ([]domain.AccessCode, error) {
	return s.codes.List(ctx)
}

type UpdateCodeInput struct {
	Label     *string
	MaxUses   *int
	Active    *bool
	ExpiresAt *time.Time
}

// UpdateCode ajusta label, limite o estado de un codigo existente.
func (s *AccessService) UpdateCode(ctx context.Context, id string, input UpdateCodeInput) (domain.AccessCode, error) {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AccessCode{}, ErrCodeNotFound
		}
		return domain.AccessCode{}, err
	}

	if input.Label != nil {
		code.Label = strings.TrimSpace(*input.Label)
	}
	if input.MaxUses != nil && *input.MaxUses > 0 {
		code.MaxUses = *input.MaxUses
	}
	if input.Active != nil {
		code.Active = *input.Active
	}
	if input.ExpiresAt != nil {
		code.ExpiresAt = input.ExpiresAt
	}

	if err := s.codes.Update(ctx, code); err != nil {
		return domain.AccessCode{}, err
	}
	return code, nil
}

// DeleteCode elimina un codigo definitivamente.
func (s *AccessService) DeleteCode(ctx context.Context, id string) error {
	if _, err := s.codes.GetByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCodeNotFound
		}
		return err
	}
	return s.codes.Delete(ctx, id)
}

func usableNow(code domain.AccessCode, now time.Time) error {
	if !code.Active {
		return ErrCodeInactive
	}
	if code.Expired(now) {
		return ErrCodeExpired
	}
	if code.Exhausted() {
		return ErrCodeExhausted
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Alfabeto sin caracteres ambiguos (0/O, 1/l) para dictar codigos en voz alta.
const codeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

func generateAccessCode(length int) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
