package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"playground-llm/internal/domain"
)

type mockCodeRepo struct {
	byID   map[string]domain.AccessCode
	byCode map[string]string
}

func newMockCodeRepo() *mockCodeRepo {
	return &mockCodeRepo{
		byID:   make(map[string]domain.AccessCode),
		byCode: make(map[string]string),
	}
}

func (m *mockCodeRepo) Create(_ context.Context, code domain.AccessCode) error {
	m.byID[code.ID] = code
	m.byCode[code.Code] = code.ID
	return nil
}

func (m *mockCodeRepo) GetByID(_ context.Context, id string) (domain.AccessCode, error) {
	code, ok := m.byID[id]
	if !ok {
		return domain.AccessCode{}, pgx.ErrNoRows
	}
	return code, nil
}

func (m *mockCodeRepo) GetByCode(_ context.Context, raw string) (domain.AccessCode, error) {
	id, ok := m.byCode[raw]
	if !ok {
		return domain.AccessCode{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockCodeRepo) List(_ context.Context) ([]domain.AccessCode, error) {
	var codes []domain.AccessCode
	for _, c := range m.byID {
		codes = append(codes, c)
	}
	return codes, nil
}

func (m *mockCodeRepo) Update(_ context.Context, code domain.AccessCode) error {
	if _, ok := m.byID[code.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.byID[code.ID] = code
	return nil
}

func (m *mockCodeRepo) Delete(_ context.Context, id string) error {
	code, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(m.byCode, code.Code)
	delete(m.byID, id)
	return nil
}

func (m *mockCodeRepo) ConsumeUse(_ context.Context, id string) (domain.AccessCode, error) {
	code, ok := m.byID[id]
	if !ok || !code.Active || code.Expired(time.Now().UTC()) || code.Exhausted() {
		return domain.AccessCode{}, pgx.ErrNoRows
	}
	code.UsedCount++
	m.byID[id] = code
	return code, nil
}

func seedCode(repo *mockCodeRepo, code domain.AccessCode) domain.AccessCode {
	if code.ID == "" {
		code.ID = "code-" + code.Code
	}
	code.CreatedAt = time.Now().UTC()
	_ = repo.Create(context.Background(), code)
	return code
}

func TestAccessServiceRedeem(t *testing.T) {
	repo := newMockCodeRepo()
	svc := NewAccessService(zap.NewNop(), repo, "", 20)

	seedCode(repo, domain.AccessCode{Code: "taller1", MaxUses: 5, Active: true})
	expired := time.Now().UTC().Add(-time.Hour)
	seedCode(repo, domain.AccessCode{Code: "viejo", MaxUses: 5, Active: true, ExpiresAt: &expired})
	seedCode(repo, domain.AccessCode{Code: "apagado", MaxUses: 5, Active: false})
	seedCode(repo, domain.AccessCode{Code: "gastado", MaxUses: 2, UsedCount: 2, Active: true})

	t.Run("valid code normalized", func(t *testing.T) {
		code, err := svc.Redeem(context.Background(), "  TALLER1 ")
		if err != nil {
			t.Fatalf("redeem: %v", err)
		}
		if code.Code != "taller1" {
			t.Fatalf("unexpected code: %+v", code)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		if _, err := svc.Redeem(context.Background(), "nope"); !errors.Is(err, ErrCodeNotFound) {
			t.Fatalf("expected ErrCodeNotFound, got %v", err)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		if _, err := svc.Redeem(context.Background(), "viejo"); !errors.Is(err, ErrCodeExpired) {
			t.Fatalf("expected ErrCodeExpired, got %v", err)
		}
	})

	t.Run("inactive code", func(t *testing.T) {
		if _, err := svc.Redeem(context.Background(), "apagado"); !errors.Is(err, ErrCodeInactive) {
			t.Fatalf("expected ErrCodeInactive, got %v", err)
		}
	})

	t.Run("exhausted code", func(t *testing.T) {
		if _, err := svc.Redeem(context.Background(), "gastado"); !errors.Is(err, ErrCodeExhausted) {
			t.Fatalf("expected ErrCodeExhausted, got %v", err)
		}
	})
}

func TestAccessServiceConsume(t *testing.T) {
	repo := newMockCodeRepo()
	svc := NewAccessService(zap.NewNop(), repo, "", 20)
	code := seedCode(repo, domain.AccessCode{Code: "taller1", MaxUses: 2, Active: true})

	first, err := svc.Consume(context.Background(), code.ID)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if first.UsedCount != 1 || first.Remaining() != 1 {
		t.Fatalf("unexpected state after first use: %+v", first)
	}

	second, err := svc.Consume(context.Background(), code.ID)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if second.Remaining() != 0 {
		t.Fatalf("expected zero remaining, got %d", second.Remaining())
	}

	if _, err := svc.Consume(context.Background(), code.ID); !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("expected ErrCodeExhausted, got %v", err)
	}

	if _, err := svc.Consume(context.Background(), "missing"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestAccessServiceCreateCode(t *testing.T) {
	repo := newMockCodeRepo()
	svc := NewAccessService(zap.NewNop(), repo, "", 7)

	t.Run("generates readable code and default max uses", func(t *testing.T) {
		created, err := svc.CreateCode(context.Background(), CreateCodeInput{Label: "mesa 1"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if len(created.Code) != 8 {
			t.Fatalf("expected generated 8-char code, got %q", created.Code)
		}
		if created.MaxUses != 7 {
			t.Fatalf("expected default max uses 7, got %d", created.MaxUses)
		}
		if !created.Active {
			t.Fatalf("expected new code active")
		}
	})

	t.Run("rejects duplicate explicit code", func(t *testing.T) {
		if _, err := svc.CreateCode(context.Background(), CreateCodeInput{Code: "repetido"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := svc.CreateCode(context.Background(), CreateCodeInput{Code: " Repetido "}); !errors.Is(err, ErrCodeDuplicated) {
			t.Fatalf("expected ErrCodeDuplicated, got %v", err)
		}
	})
}

func TestAccessServiceVerifyAdminPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secreta"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	svc := NewAccessService(zap.NewNop(), newMockCodeRepo(), string(hash), 20)

	if err := svc.VerifyAdminPassword("secreta"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
	if err := svc.VerifyAdminPassword("otra"); !errors.Is(err, ErrInvalidAdminKey) {
		t.Fatalf("expected ErrInvalidAdminKey, got %v", err)
	}

	unconfigured := NewAccessService(zap.NewNop(), newMockCodeRepo(), "", 20)
	if err := unconfigured.VerifyAdminPassword("secreta"); !errors.Is(err, ErrInvalidAdminKey) {
		t.Fatalf("expected ErrInvalidAdminKey without hash, got %v", err)
	}
}
