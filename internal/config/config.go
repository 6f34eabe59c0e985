package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"affsync/internal/auth"
	"affsync/internal/log"
)

// Backends a sync pass can write to.
const (
	BackendSheets = "sheets"
	BackendXLSX   = "xlsx"
	BackendMemory = "memory"
)

// Need names a group of settings a command depends on.
type Need int

const (
	// NeedSources covers the two upstream APIs.
	NeedSources Need = 1 << iota
	// NeedSpreadsheet covers the selected destination backend.
	NeedSpreadsheet
	// NeedOAuth covers the Google client secret, even without a token yet.
	NeedOAuth
	// NeedLedger covers the SQLite run ledger.
	NeedLedger
	// NeedEvents covers the AMQP broker.
	NeedEvents
)

type Config struct {
	// Google Sheets
	SpreadsheetID     string
	ApplicationName   string
	ClientSecretPath  string
	CredentialsPath   string
	OAuthRedirectPort string

	// Commission feed
	AmbassadorUsername string
	AmbassadorKey      string
	AmbassadorBaseURL  string
	CommissionsFrom    string
	CommissionsTo      string

	// Entrant feed
	CMAPIKey     string
	CMListID     string
	CMBaseURL    string
	EntrantsFrom string

	// Destination
	EntrantsTab         string
	CommissionTabLayout string
	DataBackend         string
	XLSXPath            string

	// Ledger
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	HTTPTimeout time.Duration
	LogLevel    string
}

func Load() *Config {
	return &Config{
		SpreadsheetID:     getEnv("SPREADSHEET_ID", ""),
		ApplicationName:   getEnv("APPLICATION_NAME", "affsync"),
		ClientSecretPath:  auth.ExpandHome(getEnv("CLIENT_SECRET_PATH", "client_secret.json")),
		CredentialsPath:   auth.ExpandHome(getEnv("CREDENTIALS_PATH", "~/.credentials/affsync.json")),
		OAuthRedirectPort: getEnv("OAUTH_REDIRECT_PORT", "8085"),

		AmbassadorUsername: getEnv("GET_AMBASSADOR_USERNAME", ""),
		AmbassadorKey:      getEnv("GET_AMBASSADOR_KEY", ""),
		AmbassadorBaseURL:  getEnv("AMBASSADOR_BASE_URL", "https://getambassador.com"),
		CommissionsFrom:    getEnv("COMMISSIONS_FROM", "2017-08-01"),
		CommissionsTo:      getEnv("COMMISSIONS_TO", "2018-01-01"),

		CMAPIKey:     getEnv("CM_API_KEY", ""),
		CMListID:     getEnv("CM_LIST_ID", ""),
		CMBaseURL:    getEnv("CM_BASE_URL", "https://api.createsend.com"),
		EntrantsFrom: getEnv("ENTRANTS_FROM", "2017-08-01 00:00:00"),

		EntrantsTab:         getEnv("ENTRANTS_TAB", "Contestants"),
		CommissionTabLayout: getEnv("COMMISSION_TAB_LAYOUT", "January"),
		DataBackend:         getEnv("DATA_BACKEND", BackendSheets),
		XLSXPath:            getEnv("XLSX_PATH", "./data/affsync.xlsx"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "affsync"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "affsync_runs"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		LogLevel:    getEnv("LOG_LEVEL", "warn"),
	}
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	return c.Require(0)
}

// Require validates the common settings plus every group in needs, and
// reports all problems in one error.
func (c *Config) Require(needs Need) error {
	var errors []string

	validBackends := []string{BackendSheets, BackendXLSX, BackendMemory}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if c.HTTPTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be positive", c.HTTPTimeout))
	}

	if strings.TrimSpace(c.EntrantsTab) == "" {
		errors = append(errors, "ENTRANTS_TAB cannot be empty")
	}

	if !distinguishesMonths(c.CommissionTabLayout) {
		errors = append(errors, fmt.Sprintf("invalid commission tab layout '%s': must include the month", c.CommissionTabLayout))
	}

	if port, err := strconv.Atoi(c.OAuthRedirectPort); err != nil {
		errors = append(errors, fmt.Sprintf("invalid OAuth redirect port '%s': must be a number", c.OAuthRedirectPort))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid OAuth redirect port %d: must be between 1 and 65535", port))
	}

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

	if needs&NeedSources != 0 {
		errors = append(errors, missing(map[string]string{
			"GET_AMBASSADOR_USERNAME": c.AmbassadorUsername,
			"GET_AMBASSADOR_KEY":      c.AmbassadorKey,
			"CM_API_KEY":              c.CMAPIKey,
			"CM_LIST_ID":              c.CMListID,
		})...)
		for _, v := range [][2]string{{"AMBASSADOR_BASE_URL", c.AmbassadorBaseURL}, {"CM_BASE_URL", c.CMBaseURL}} {
			if u, err := url.Parse(v[1]); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, fmt.Sprintf("invalid %s '%s': must be an absolute URL", v[0], v[1]))
			}
		}
	}

	if needs&NeedSpreadsheet != 0 {
		switch c.DataBackend {
		case BackendSheets:
			errors = append(errors, missing(map[string]string{
				"SPREADSHEET_ID":     c.SpreadsheetID,
				"CLIENT_SECRET_PATH": c.ClientSecretPath,
				"CREDENTIALS_PATH":   c.CredentialsPath,
			})...)
			errors = append(errors, c.checkClientSecret()...)
		case BackendXLSX:
			if c.XLSXPath == "" {
				errors = append(errors, "XLSX_PATH is required when using xlsx backend")
			} else {
				errors = append(errors, ensureDir("workbook", c.XLSXPath)...)
			}
		}
	}

	if needs&NeedOAuth != 0 {
		errors = append(errors, missing(map[string]string{
			"CLIENT_SECRET_PATH": c.ClientSecretPath,
			"CREDENTIALS_PATH":   c.CredentialsPath,
		})...)
		errors = append(errors, c.checkClientSecret()...)
	}

	if needs&NeedLedger != 0 {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLITE_DB_PATH is required")
		}
	}
	if c.SQLiteDBPath != "" {
		errors = append(errors, ensureDir("SQLite database", c.SQLiteDBPath)...)
	}

	if needs&NeedEvents != 0 && c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(dedupe(errors), "\n- "))
	}

	return nil
}

// LedgerEnabled reports whether runs are recorded.
func (c *Config) LedgerEnabled() bool { return c.SQLiteDBPath != "" }

// EventsEnabled reports whether run-completed events are published.
func (c *Config) EventsEnabled() bool { return c.AMQPURL != "" }

// distinguishesMonths reports whether layout renders two months differently.
func distinguishesMonths(layout string) bool {
	if strings.TrimSpace(layout) == "" {
		return false
	}
	jan := time.Date(2017, time.January, 15, 0, 0, 0, 0, time.UTC)
	return jan.Format(layout) != jan.AddDate(0, 7, 0).Format(layout)
}

func (c *Config) checkClientSecret() []string {
	if c.ClientSecretPath == "" {
		return nil
	}
	if _, err := os.Stat(c.ClientSecretPath); os.IsNotExist(err) {
		return []string{fmt.Sprintf("Google OAuth client secret file does not exist: %s", c.ClientSecretPath)}
	}
	return nil
}

func ensureDir(what, path string) []string {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return []string{fmt.Sprintf("cannot create %s directory '%s': %v", what, dir, err)}
		}
	}
	return nil
}

// missing lists each empty variable, sorted by name.
func missing(vars map[string]string) []string {
	var out []string
	for name, v := range vars {
		if strings.TrimSpace(v) == "" {
			out = append(out, name+" is required")
		}
	}
	slices.Sort(out)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
