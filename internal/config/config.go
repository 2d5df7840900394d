package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier
	DatabaseSchemePostgres = "postgres"
	// DatabaseSchemeSqlite is the embedded sqlite database scheme identifier
	DatabaseSchemeSqlite = "sqlite"
)

const (
	SeatPolicyStrict  = "strict"
	SeatPolicyLenient = "lenient"
)

const (
	DefaultDocumentMaxBytes = 10 << 20
	DefaultSeatsCacheTTL    = 30 * time.Minute
	DefaultBoardInterval    = 2 * time.Second
)

type Config struct {
	DatabaseURL        string        `yaml:"databaseUrl"        envconfig:"DATABASE_URL"`
	DBDialect          string        `yaml:"-"                  ignored:"true"` // postgres or sqlite
	DBDsn              string        `yaml:"-"                  ignored:"true"` // DSN string passed to GORM driver
	Debug              bool          `yaml:"debug"              envconfig:"DEBUG"`
	SeatPolicy         string        `yaml:"seatPolicy"         envconfig:"SEAT_POLICY"`
	SeatsAPIURL        string        `yaml:"seatsApiUrl"        envconfig:"SEATS_API_URL"` // optional: remote seat allocation service
	SeatsCacheTTL      time.Duration `yaml:"seatsCacheTtl"      envconfig:"SEATS_CACHE_TTL"`
	DocumentDir        string        `yaml:"documentDir"        envconfig:"DOCUMENT_DIR"` // empty keeps documents in memory
	DocumentMaxBytes   int64         `yaml:"documentMaxBytes"   envconfig:"DOCUMENT_MAX_BYTES"`
	DocumentMediaTypes []string      `yaml:"documentMediaTypes" envconfig:"DOCUMENT_MEDIA_TYPES"`
	MetricsAddr        string        `yaml:"metricsAddr"        envconfig:"METRICS_ADDR"`
	BoardInterval      time.Duration `yaml:"boardInterval"      envconfig:"BOARD_INTERVAL"`
}

func defaults() Config {
	return Config{
		SeatPolicy:         SeatPolicyStrict,
		SeatsCacheTTL:      DefaultSeatsCacheTTL,
		DocumentMaxBytes:   DefaultDocumentMaxBytes,
		DocumentMediaTypes: []string{"application/pdf"},
		BoardInterval:      DefaultBoardInterval,
	}
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql, sqlite.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	if strings.HasPrefix(databaseURL, "sqlite::memory:") {
		return DatabaseSchemeSqlite, "file::memory:?cache=shared", nil
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	case DatabaseSchemeSqlite:
		path := u.Host + u.Path
		if path == "" {
			return "", "", errors.New("sqlite DATABASE_URL needs a file path")
		}
		dsn := "file:" + path
		if u.RawQuery != "" {
			dsn += "?" + u.RawQuery
		}
		return DatabaseSchemeSqlite, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

// Load builds the configuration from defaults, then the optional YAML file,
// then the environment.
func Load(configFile string) (Config, error) {
	cfg := defaults()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("read config file: %w", err)
			}
			return cfg, fmt.Errorf("config file %s does not exist", configFile)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}
	if strings.TrimSpace(cfg.SeatPolicy) == "" {
		cfg.SeatPolicy = SeatPolicyStrict
	}

	if dbURL := strings.TrimSpace(cfg.DatabaseURL); dbURL != "" {
		dialect, dsn, err := parseDatabaseURL(dbURL)
		if err != nil {
			return cfg, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		cfg.DBDialect = dialect
		cfg.DBDsn = dsn
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.SeatPolicy {
	case SeatPolicyStrict, SeatPolicyLenient:
	default:
		return fmt.Errorf("invalid SEAT_POLICY %q: want %s or %s", c.SeatPolicy, SeatPolicyStrict, SeatPolicyLenient)
	}
	if c.DocumentMaxBytes <= 0 {
		return fmt.Errorf("invalid DOCUMENT_MAX_BYTES %d", c.DocumentMaxBytes)
	}
	if len(c.DocumentMediaTypes) == 0 {
		return errors.New("DOCUMENT_MEDIA_TYPES must name at least one media type")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("db=%s seat_policy=%s", c.DBDialect, c.SeatPolicy)
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	return fmt.Sprintf(
		"db=%s dsn=%s seat_policy=%s seats_api_url=%s document_dir=%s metrics_addr=%s",
		c.DBDialect,
		maskDSN(c.DBDialect, c.DBDsn),
		c.SeatPolicy,
		c.SeatsAPIURL,
		c.DocumentDir,
		c.MetricsAddr,
	)
}

func maskDSN(dialect, dsn string) string {
	switch strings.ToLower(dialect) {
	case DatabaseSchemePostgres:
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			if u.User != nil {
				username := u.User.Username()
				u.User = url.User(username)
			}
			return u.String()
		}
		// Fallback for DSN as key-value list
		parts := strings.Fields(dsn)
		for i, p := range parts {
			lower := strings.ToLower(p)
			if strings.HasPrefix(lower, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	default:
		return dsn
	}
}
