// Package config loads application settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"agenthub/pkg/retry"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr         string        `validate:"required"`
		CookieName   string        `validate:"required"`
		SecureCookie bool
		ReadTimeout  time.Duration `validate:"gt=0"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	// OpenAI backs the financial agent and Telegram voice transcription.
	OpenAI struct {
		APIKey   string
		BaseURL  string `validate:"omitempty,url"`
		Model    string `validate:"required"`
		STTModel string `validate:"required"`
	}
	// Groq backs the PDF assistant through its OpenAI-compatible API.
	Groq struct {
		APIKey  string
		BaseURL string `validate:"required,url"`
		Model   string `validate:"required"`
	}
	// Gemini backs the video analyzer.
	Gemini struct {
		APIKey         string
		BaseURL        string        `validate:"required,url"`
		Model          string        `validate:"required"`
		PollInterval   time.Duration `validate:"gt=0"`
		ProcessTimeout time.Duration `validate:"gt=0"`
	}
	Stock struct {
		BaseURL string `validate:"required,url"`
	}
	Search struct {
		MaxResults int `validate:"min=1,max=50"`
	}
	Storage struct {
		DatabaseURL string
		SQLitePath  string `validate:"required_without=DatabaseURL"`
	}
	Redis struct {
		URL string
		TTL time.Duration `validate:"gt=0"`
	}
	Retry   retry.Policy
	Uploads struct {
		Dir      string        `validate:"required"`
		MaxBytes int64         `validate:"gt=0"`
		TTL      time.Duration `validate:"gt=0"`
	}
	Session struct {
		TTL time.Duration `validate:"gt=0"`
	}
	Telegram struct {
		Token         string
		WebhookURL    string `validate:"omitempty,url"`
		WebhookSecret string
		AllowedIDs    []int64
		Workers       int           `validate:"min=1,max=64"`
		RateLimit     time.Duration `validate:"gte=0"`
		MaxFileBytes  int64         `validate:"gt=0"`
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var (
		c    Config
		errs []error
	)
	c.Env = getenv("ENV", "prod")

	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.HTTP.CookieName = getenv("SESSION_COOKIE", "agenthub_session")
	c.HTTP.SecureCookie = getBool("SESSION_COOKIE_SECURE", c.Env == "prod", &errs)
	c.HTTP.ReadTimeout = getDuration("HTTP_READ_TIMEOUT", 5*time.Minute, &errs)

	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/agenthub.log")

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.BaseURL = os.Getenv("OPENAI_BASE_URL")
	c.OpenAI.Model = getenv("OPENAI_MODEL", "gpt-4o")
	c.OpenAI.STTModel = getenv("OPENAI_STT_MODEL", "whisper-1")

	c.Groq.APIKey = os.Getenv("GROQ_API_KEY")
	c.Groq.BaseURL = getenv("GROQ_BASE_URL", "https://api.groq.com/openai/v1")
	c.Groq.Model = getenv("GROQ_MODEL", "llama-3.3-70b-versatile")

	c.Gemini.APIKey = getenv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY"))
	c.Gemini.BaseURL = getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	c.Gemini.Model = getenv("GEMINI_MODEL", "gemini-2.0-flash-exp")
	c.Gemini.PollInterval = getDuration("GEMINI_POLL_INTERVAL", 2*time.Second, &errs)
	c.Gemini.ProcessTimeout = getDuration("GEMINI_PROCESS_TIMEOUT", 5*time.Minute, &errs)

	c.Stock.BaseURL = getenv("STOCK_API_URL", "https://query1.finance.yahoo.com")
	c.Search.MaxResults = getInt("SEARCH_MAX_RESULTS", 5, &errs)

	c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	c.Storage.SQLitePath = getenv("SQLITE_PATH", "data/agenthub.db")

	c.Redis.URL = os.Getenv("REDIS_URL")
	c.Redis.TTL = getDuration("CACHE_TTL", 15*time.Minute, &errs)

	def := retry.DefaultPolicy()
	c.Retry.MaxRetries = getInt("RETRY_MAX_RETRIES", def.MaxRetries, &errs)
	c.Retry.BaseDelay = getDuration("RETRY_BASE_DELAY", def.BaseDelay, &errs)
	c.Retry.MaxJitter = getDuration("RETRY_MAX_JITTER", def.MaxJitter, &errs)
	c.Retry.Multiplier = getFloat("RETRY_MULTIPLIER", def.Multiplier, &errs)

	c.Uploads.Dir = getenv("UPLOAD_DIR", "data/uploads")
	c.Uploads.MaxBytes = int64(getInt("UPLOAD_MAX_MB", 200, &errs)) << 20
	c.Uploads.TTL = getDuration("UPLOAD_TTL", time.Hour, &errs)
	c.Session.TTL = getDuration("SESSION_TTL", 30*24*time.Hour, &errs)

	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.WebhookURL = os.Getenv("TELEGRAM_WEBHOOK_URL")
	c.Telegram.WebhookSecret = os.Getenv("TELEGRAM_WEBHOOK_SECRET")
	c.Telegram.Workers = getInt("TELEGRAM_WORKERS", 8, &errs)
	c.Telegram.RateLimit = getDuration("TELEGRAM_RATE_LIMIT", time.Second, &errs)
	c.Telegram.MaxFileBytes = int64(getInt("TELEGRAM_MAX_FILE_MB", 20, &errs)) << 20
	ids, err := ParseIDs(os.Getenv("TELEGRAM_ALLOWED_IDS"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TELEGRAM_ALLOWED_IDS: %w", err))
	}
	c.Telegram.AllowedIDs = ids

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if c.Telegram.WebhookURL != "" && c.Telegram.WebhookSecret == "" {
		return errors.New("TELEGRAM_WEBHOOK_SECRET required when TELEGRAM_WEBHOOK_URL is set")
	}
	if c.Telegram.WebhookURL != "" && c.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN required when TELEGRAM_WEBHOOK_URL is set")
	}
	return nil
}

// ParseIDs parses a list of Telegram user IDs separated by commas or whitespace.
func ParseIDs(s string) ([]int64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func getFloat(k string, def float64, errs *[]error) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return f
}

func getBool(k string, def bool, errs *[]error) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return b
}

func getDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}
