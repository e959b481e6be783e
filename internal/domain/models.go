package domain

import "time"

// AccessCode es la clave de acceso que el operador reparte en el taller.
// Se guarda en claro porque el operador necesita listarla y dictarla en voz alta.
type AccessCode struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Label     string     `json:"label,omitempty"`
	MaxUses   int        `json:"max_uses"`
	UsedCount int        `json:"used_count"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Remaining devuelve los usos que le quedan al codigo (nunca negativo).
func (c AccessCode) Remaining() int {
	left := c.MaxUses - c.UsedCount
	if left < 0 {
		return 0
	}
	return left
}

// Exhausted indica si el codigo ya consumio todos sus usos.
func (c AccessCode) Exhausted() bool {
	return c.MaxUses > 0 && c.UsedCount >= c.MaxUses
}

// Expired indica si el codigo vencio.
func (c AccessCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Estados posibles de un UsageRecord.
const (
	UsageStatusOK            = "ok"
	UsageStatusParseError    = "parse_error"
	UsageStatusUpstreamError = "upstream_error"
	UsageStatusRejected      = "rejected"
)

// UsageRecord registra una generacion individual para el dashboard del operador.
type UsageRecord struct {
	ID         string    `json:"id"`
	CodeID     string    `json:"code_id"`
	VisitorIP  string    `json:"visitor_ip,omitempty"`
	PromptLen  int       `json:"prompt_len"`
	Model      string    `json:"model,omitempty"`
	Status     string    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// CodeUsageTotal agrega usos por codigo para el listado del operador.
type CodeUsageTotal struct {
	CodeID string `json:"code_id"`
	Label  string `json:"label,omitempty"`
	Total  int    `json:"total"`
	Failed int    `json:"failed"`
}

// GenerationResult es la salida estructurada esperada del LLM generador:
// un mensaje para el usuario y el codigo HTML/CSS/JS a renderizar.
type GenerationResult struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
