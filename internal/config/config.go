// Package config loads billflow settings from viper and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/spf13/viper"
)

// Defaults applied when a key is unset.
const (
	DefaultDatabasePath    = "$HOME/.local/share/billflow/billflow.db"
	DefaultProvider        = "anthropic"
	DefaultTimeout         = 30 * time.Second
	DefaultRateLimit       = 60
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = time.Second
	DefaultConfidenceFloor = 50
	DefaultWorkers         = 4
	DefaultNotifyTimeout   = 5 * time.Second
	DefaultGmailQuery      = "newer_than:7d"
	DefaultGmailMaxResults = 100
)

// Settings is the resolved configuration for a billflow run.
type Settings struct {
	DatabasePath string
	LLM          LLMSettings
	Notify       NotifySettings
	Gmail        GmailSettings
	Workers      int
}

// LLMSettings configures the classifier provider.
type LLMSettings struct {
	Provider        string
	Model           string
	APIKey          string
	Timeout         time.Duration
	RetryDelay      time.Duration
	RateLimit       int
	MaxRetries      int
	ConfidenceFloor int
}

// NotifySettings configures outbound notifications.
type NotifySettings struct {
	WebhookURL string
	Timeout    time.Duration
}

// GmailSettings configures the Gmail message source.
type GmailSettings struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
	User         string
	Query        string
	MaxResults   int64
}

// Load reads settings from viper, falling back to provider environment
// variables for API keys and to defaults for everything else.
func Load() (*Settings, error) {
	s := &Settings{
		DatabasePath: ExpandPath(stringOr("database.path", DefaultDatabasePath)),
		Workers:      intOr("reconcile.workers", DefaultWorkers),
		LLM: LLMSettings{
			Provider:        strings.ToLower(stringOr("llm.provider", DefaultProvider)),
			Model:           viper.GetString("llm.model"),
			Timeout:         durationOr("llm.timeout", DefaultTimeout),
			RateLimit:       intOr("llm.rate_limit", DefaultRateLimit),
			MaxRetries:      intOr("llm.max_retries", DefaultMaxRetries),
			RetryDelay:      durationOr("llm.retry_delay", DefaultRetryDelay),
			ConfidenceFloor: intOr("llm.confidence_floor", DefaultConfidenceFloor),
		},
		Notify: NotifySettings{
			WebhookURL: viper.GetString("notify.webhook_url"),
			Timeout:    durationOr("notify.timeout", DefaultNotifyTimeout),
		},
		Gmail: GmailSettings{
			ClientID:     viper.GetString("gmail.client_id"),
			ClientSecret: viper.GetString("gmail.client_secret"),
			TokenFile:    ExpandPath(stringOr("gmail.token_file", "$HOME/.config/billflow/gmail-token.json")),
			User:         stringOr("gmail.user", "me"),
			Query:        stringOr("gmail.query", DefaultGmailQuery),
			MaxResults:   int64(intOr("gmail.max_results", DefaultGmailMaxResults)),
		},
	}

	switch s.LLM.Provider {
	case "anthropic":
		s.LLM.APIKey = firstNonEmpty(viper.GetString("llm.anthropic_api_key"), os.Getenv("ANTHROPIC_API_KEY"))
	case "openai":
		s.LLM.APIKey = firstNonEmpty(viper.GetString("llm.openai_api_key"), os.Getenv("OPENAI_API_KEY"))
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider %q", common.ErrInvalidConfig, s.LLM.Provider)
	}

	if s.Gmail.ClientID == "" {
		s.Gmail.ClientID = os.Getenv("GMAIL_CLIENT_ID")
	}
	if s.Gmail.ClientSecret == "" {
		s.Gmail.ClientSecret = os.Getenv("GMAIL_CLIENT_SECRET")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks value ranges that viper cannot enforce.
func (s *Settings) Validate() error {
	if s.Workers < 1 {
		return fmt.Errorf("%w: reconcile.workers must be at least 1", common.ErrInvalidConfig)
	}
	if s.LLM.ConfidenceFloor < 0 || s.LLM.ConfidenceFloor > 100 {
		return fmt.Errorf("%w: llm.confidence_floor must be within 0..100", common.ErrInvalidConfig)
	}
	if s.LLM.Timeout <= 0 {
		return fmt.Errorf("%w: llm.timeout must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	return os.ExpandEnv(path)
}

func stringOr(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := viper.GetDuration(key); v > 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
