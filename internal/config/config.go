package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port string `env:"PORT" envDefault:"8081"`

	// Database
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/findash.db"`

	// ECOS
	ECOSBaseURL  string  `env:"ECOS_BASE_URL" envDefault:"https://ecos.bok.or.kr/api"`
	ECOSAPIKey   string  `env:"ECOS_API_KEY"`
	ECOSPageSize int     `env:"ECOS_PAGE_SIZE" envDefault:"1000"`
	ECOSRPS      float64 `env:"ECOS_RPS" envDefault:"1"`

	// KIS
	KISBaseURL   string  `env:"KIS_BASE_URL" envDefault:"https://openapi.koreainvestment.com:9443"`
	KISAppKey    string  `env:"KIS_APP_KEY"`
	KISAppSecret string  `env:"KIS_APP_SECRET"`
	KISRPS       float64 `env:"KIS_RPS" envDefault:"10"`

	// Sync worker
	SyncSchedule string `env:"SYNC_SCHEDULE" envDefault:"0 0 18 * * *"`
	SyncMarket   string `env:"SYNC_MARKET" envDefault:"KSP"`
	HistoryStart string `env:"HISTORY_START" envDefault:"20000101"`

	// Alert worker
	WatchlistPath     string        `env:"WATCHLIST_PATH" envDefault:"./data/watchlist.json"`
	AlertPollInterval time.Duration `env:"ALERT_POLL_INTERVAL" envDefault:"30s"`
	TelegramToken     string        `env:"TELEGRAM_TOKEN"`
	TelegramChatID    string        `env:"TELEGRAM_CHAT_ID"`

	// AMQP
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"findash"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"price_alerts"`

	// Dashboard
	PrinciplesPath string `env:"PRINCIPLES_PATH" envDefault:"./data/documents/Investment Principles.md"`

	// Google Sheets export (optional)
	GoogleSpreadsheetID        string `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleServiceAccountJSON   string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile   string `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleApplicationCredsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate SQLite path
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	for name, raw := range map[string]string{"ECOS": c.ECOSBaseURL, "KIS": c.KISBaseURL} {
		if u, err := url.Parse(raw); err != nil || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid %s base URL '%s'", name, raw))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid %s base URL scheme '%s': must be 'http' or 'https'", name, u.Scheme))
		}
	}

	if c.ECOSPageSize < 1 || c.ECOSPageSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid ECOS page size %d: must be between 1 and 100000", c.ECOSPageSize))
	}
	if c.ECOSRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid ECOS rate %v: must be positive", c.ECOSRPS))
	}
	if c.KISRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid KIS rate %v: must be positive", c.KISRPS))
	}

	// KIS credentials come in pairs
	if (c.KISAppKey == "") != (c.KISAppSecret == "") {
		errors = append(errors, "KIS_APP_KEY and KIS_APP_SECRET must be set together")
	}

	if _, err := cron.NewParser(cronFields).Parse(c.SyncSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid sync schedule '%s': %v", c.SyncSchedule, err))
	}
	if strings.TrimSpace(c.SyncMarket) == "" {
		errors = append(errors, "sync market cannot be empty")
	}
	if _, err := time.Parse("20060102", c.HistoryStart); err != nil {
		errors = append(errors, fmt.Sprintf("invalid history start '%s': must be YYYYMMDD", c.HistoryStart))
	}

	if c.AlertPollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid alert poll interval %v: must be at least 1 second", c.AlertPollInterval))
	} else if c.AlertPollInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid alert poll interval %v: must be at most 1 hour", c.AlertPollInterval))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// cronFields matches the six field schedules the scheduler accepts.
const cronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// HasKIS reports whether KIS credentials are configured.
func (c *Config) HasKIS() bool {
	return c.KISAppKey != "" && c.KISAppSecret != ""
}

// HasTelegram reports whether alerts can be delivered to Telegram.
func (c *Config) HasTelegram() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// HistoryFloor returns HistoryStart as a time, or 2000-01-01 if unparsable.
func (c *Config) HistoryFloor() time.Time {
	t, err := time.Parse("20060102", c.HistoryStart)
	if err != nil {
		return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}
