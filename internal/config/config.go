package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	JWTSecret          string        `env:"JWT_SECRET,required"`
	JWTIssuer          string        `env:"JWT_ISSUER" envDefault:"stepup-auth"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	SessionRememberTTL time.Duration `env:"SESSION_REMEMBER_TTL" envDefault:"720h"`

	OTPTTL             time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPMaxAttempts     int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	OTPMaxResends      int           `env:"OTP_MAX_RESENDS" envDefault:"3"`
	ChallengeStore     string        `env:"CHALLENGE_STORE" envDefault:"memory"`
	ChallengeRetention time.Duration `env:"CHALLENGE_RETENTION" envDefault:"10m"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	PasswordWorkers int           `env:"PASSWORD_WORKERS" envDefault:"4"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"15m"`
	LoginRateMax    int           `env:"LOGIN_RATE_MAX" envDefault:"10"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	SendGridAPIKey  string `env:"SENDGRID_API_KEY"`
	SendGridFrom    string `env:"SENDGRID_FROM"`
	SendGridSandbox bool   `env:"SENDGRID_SANDBOX" envDefault:"false"`

	DeliveryWorkers int           `env:"DELIVERY_WORKERS" envDefault:"2"`
	DeliveryQueue   int           `env:"DELIVERY_QUEUE" envDefault:"256"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"15s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Store backends aceptados en CHALLENGE_STORE.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza limites sin sentido antes de arrancar el servidor.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.OTPTTL <= 0 || c.SessionTTL <= 0 || c.SessionRememberTTL <= 0 {
		return errors.New("ttl values must be positive")
	}
	if c.OTPMaxAttempts <= 0 || c.OTPMaxResends < 0 {
		return errors.New("otp limits must be positive")
	}
	if c.PasswordWorkers <= 0 || c.DeliveryWorkers <= 0 || c.DeliveryQueue <= 0 {
		return errors.New("worker counts must be positive")
	}
	switch c.ChallengeStore {
	case StoreMemory, StorePostgres:
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("CHALLENGE_STORE=redis requires REDIS_ADDR")
		}
	default:
		return errors.New("unknown CHALLENGE_STORE " + c.ChallengeStore)
	}
	return nil
}
