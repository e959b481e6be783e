package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	LLMAPIKey   string `env:"LLM_API_KEY"`
	LLMBaseURL  string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel    string `env:"LLM_MODEL" envDefault:"gpt-5.1"`

	JWTSecret           string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"180"`

	// AdminPasswordHash es el hash bcrypt de la clave del operador del taller.
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	// DefaultMaxUses aplica cuando el operador crea un codigo sin limite explicito.
	DefaultMaxUses int `env:"DEFAULT_MAX_USES" envDefault:"20"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// VisitorBurstMax limita generaciones por visitante dentro de la ventana.
	VisitorBurstMax           int `env:"VISITOR_BURST_MAX" envDefault:"5"`
	VisitorBurstWindowSeconds int `env:"VISITOR_BURST_WINDOW_SECONDS" envDefault:"60"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
