package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// HuggingFace holds the inference endpoint settings. APIKey and ModelID are
// required: the server refuses to start without them.
type HuggingFace struct {
	APIKey            string   `env:"HUGGING_FACE_API_KEY,required,notEmpty"`
	ModelID           string   `env:"HUGGING_FACE_MODEL_ID,required,notEmpty"`
	BaseURL           string   `env:"HUGGING_FACE_BASE_URL" envDefault:"https://api-inference.huggingface.co/v1"`
	MaxNewTokens      int64    `env:"HF_MAX_NEW_TOKENS" envDefault:"1000"`
	Temperature       float64  `env:"HF_TEMPERATURE" envDefault:"0.7"`
	TopP              float64  `env:"HF_TOP_P" envDefault:"0.95"`
	RepetitionPenalty float64  `env:"HF_REPETITION_PENALTY" envDefault:"1.1"`
	Stop              []string `env:"HF_STOP" envSeparator:"|"`
	PromptTokenBudget int      `env:"PROMPT_TOKEN_BUDGET" envDefault:"3500"`
}

type Database struct {
	Driver   string `env:"DB_DRIVER" envDefault:"mysql"`
	DSN      string `env:"DATABASE_DSN"`
	Host     string `env:"SQL_HOST"`
	Port     string `env:"SQL_PORT" envDefault:"3306"`
	User     string `env:"SQL_USER"`
	Password string `env:"SQL_PASSWORD"`
	DBName   string `env:"SQL_DBNAME"`
}

type Storage struct {
	Mode          string `env:"STORAGE_MODE" envDefault:"local"`
	LocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"./data/attachments"`
	Bucket        string `env:"ATTACHMENT_BUCKET" envDefault:"chat-attachments"`
	CDNDomain     string `env:"ATTACHMENT_CDN_DOMAIN"`
	Credentials   string `env:"GCS_CREDENTIALS_FILE"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080/files"`
}

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogDir    string `env:"LOG_DIR" envDefault:"./log"`
	GinMode   string `env:"GIN_MODE" envDefault:"debug"`
	AccessKey string `env:"ACCESS_SECRET,required,notEmpty"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	StreamLeaseTTL time.Duration `env:"STREAM_LEASE_TTL" envDefault:"15m"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
	SweepSpec      string        `env:"SWEEP_SPEC" envDefault:"@every 5m"`

	HuggingFace HuggingFace
	Database    Database
	Storage     Storage
}

var DefaultStop = []string{"User:", "\nUser:", "Assistant:", "\nAssistant:"}

// Load reads .env (if present) and the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		// a missing .env is fine, the environment may already be populated
		fmt.Println("failed to load the env file")
	}
	return Parse()
}

func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.HuggingFace.Stop) == 0 {
		cfg.HuggingFace.Stop = append([]string(nil), DefaultStop...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Storage.Mode {
	case "local", "gcs":
	default:
		return fmt.Errorf("unsupported STORAGE_MODE %q", c.Storage.Mode)
	}
	if c.HuggingFace.MaxNewTokens <= 0 {
		return errors.New("HF_MAX_NEW_TOKENS must be positive")
	}
	return nil
}
