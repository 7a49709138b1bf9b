package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	// HTTPAddr is the listen address of the API server.
	HTTPAddr string

	// BaseURL is the externally reachable URL of this service, used to build
	// checkout redirect and webhook URLs.
	BaseURL string

	// APIToken is the static bearer secret checked on authenticated routes.
	APIToken string

	Slack  SlackConfig
	Mollie MollieConfig

	// EmployeeDomains is the env fallback for the domain allow list when no
	// domains.yml file is present (comma separated).
	EmployeeDomains []string

	LogLevel string

	RedisAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

type SlackConfig struct {
	BotToken string
	APIBase  string
}

type MollieConfig struct {
	APIKey   string
	APIBase  string
	Currency string
}

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:         getenv("APP_SERVICE", "tapkeeper"),
		AppVersion:      getenv("APP_VERSION", "0.1.0"),
		Environment:     getenv("ENVIRONMENT", "development"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		BaseURL:         strings.TrimRight(strings.TrimSpace(getenv("BASE_URL", "")), "/"),
		APIToken:        strings.TrimSpace(getenv("API_TOKEN", "")),
		EmployeeDomains: splitList(getenv("EMPLOYEE_DOMAINS", "")),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		RedisAddr:       strings.TrimSpace(getenv("REDIS_ADDR", "")),
		Slack: SlackConfig{
			BotToken: strings.TrimSpace(getenv("SLACK_BOT_TOKEN", "")),
			APIBase:  getenv("SLACK_API_BASE", "https://slack.com/api"),
		},
		Mollie: MollieConfig{
			APIKey:   strings.TrimSpace(getenv("MOLLIE_API_KEY", "")),
			APIBase:  getenv("MOLLIE_API_BASE", "https://api.mollie.com"),
			Currency: strings.ToUpper(getenv("CURRENCY", "EUR")),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tapkeeper"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing required fields. The application refuses to start
// on an incomplete configuration instead of failing per request.
func (c Config) Validate() error {
	var missing []string
	if c.APIToken == "" {
		missing = append(missing, "API_TOKEN")
	}
	if c.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if c.Slack.BotToken == "" {
		missing = append(missing, "SLACK_BOT_TOKEN")
	}
	if c.Mollie.APIKey == "" {
		missing = append(missing, "MOLLIE_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	switch c.DBType {
	case "postgres", "mysql", "sqlite":
	default:
		return errors.New("unsupported DATABASE_TYPE " + c.DBType)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
