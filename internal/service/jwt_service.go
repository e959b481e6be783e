package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"playground-llm/internal/domain"
)

// JWTService emite y valida tokens de sesion para visitantes y operadores.
type JWTService struct {
	secret    []byte
	accessTTL time.Duration
	issuer    string
}

const (
	TokenTypeVisitor = "visitor"
	TokenTypeAdmin   = "admin"
)

type Claims struct {
	CodeID    string `json:"cid,omitempty"`
	Label     string `json:"label,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type SessionToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

func NewJWTService(secret string, accessTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 3 * time.Hour
	}
	return &JWTService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		issuer:    "playground-llm",
	}
}

// GenerateVisitorToken emite un token atado a un codigo de acceso canjeado.
func (s *JWTService) GenerateVisitorToken(code domain.AccessCode) (SessionToken, error) {
	return s.sign(code.ID, code.ID, code.Label, TokenTypeVisitor)
}

// GenerateAdminToken emite un token de operador.
func (s *JWTService) GenerateAdminToken() (SessionToken, error) {
	return s.sign("admin", "", "", TokenTypeAdmin)
}

// ParseToken valida firma, emisor y vigencia, y devuelve los claims.
func (s *JWTService) ParseToken(tokenString string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}

	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}

	if strings.TrimSpace(claims.Subject) == "" || claims.Issuer != s.issuer {
		return Claims{}, ErrJWTInvalid
	}
	if claims.TokenType != TokenTypeVisitor && claims.TokenType != TokenTypeAdmin {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) sign(subject, codeID, label, tokenType string) (SessionToken, error) {
	if len(s.secret) == 0 {
		return SessionToken{}, ErrJWTInvalid
	}
	now := time.Now().UTC()
	claims := Claims{
		CodeID:    codeID,
		Label:     label,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{
		AccessToken: signed,
		ExpiresIn:   int64(s.accessTTL.Seconds()),
	}, nil
}
