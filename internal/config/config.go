package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Database is the PostgreSQL connection shared by the server and the
// migrator.
type Database struct {
	DBHost     string `env:"DB_HOST"     validate:"required"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBPort     string `env:"DB_PORT"     env-default:"5432"`
}

type Config struct {
	AppEnv      string `env:"APP_ENV"      env-default:"development" validate:"oneof=development test staging production"`
	AppPort     string `env:"APP_PORT"     env-default:"8080"        validate:"required"`
	MetricsPort string `env:"METRICS_PORT" env-default:"9090"        validate:"required"`

	Database

	JWTSecret string `env:"SECRET_KEY" validate:"required"`

	PaymentConfigPath string        `env:"PAYMENT_CONFIG_PATH"  validate:"required"`
	TranslationsPath  string        `env:"TRANSLATIONS_PATH"`
	StatusParam       string        `env:"PAYMENT_STATUS_PARAM" env-default:"finna_payment_id"`
	PublicBaseURL     string        `env:"PUBLIC_BASE_URL"      validate:"required,url"`
	GatewayTimeout    time.Duration `env:"GATEWAY_TIMEOUT"      env-default:"15s"              validate:"gte=1s,lte=2m"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"   env-default:"payment-events"`

	LogFile string `env:"LOG_FILE"`
}

// Load reads .env (when present) and the process environment into Config.
func Load() (*Config, error) {
	const op = "config.Load"

	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: read env: %w", op, err)
	}

	if err := validateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

// LoadDatabase reads only the database settings, for tools that do not run
// the payment service.
func LoadDatabase() (*Database, error) {
	const op = "config.LoadDatabase"

	_ = godotenv.Load()

	var cfg Database
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: read env: %w", op, err)
	}

	if err := validateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Environment variables not loaded properly: %v", err)
	}
	return cfg
}

func validateStruct(v any) error {
	validate := validator.New()

	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("config validation: %w", err)
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, ve := range validationErrs {
		msgs = append(msgs, fmt.Sprintf("%s=%v must satisfy '%s'", ve.Namespace(), ve.Value(), ve.Tag()))
	}
	return fmt.Errorf("config validation: %s", strings.Join(msgs, "; "))
}
