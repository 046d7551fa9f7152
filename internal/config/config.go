// Package config loads pgquery connection and execution settings from a
// pgquery.yaml file and PGQUERY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/coregx/pgquery/internal/core"
	"github.com/coregx/pgquery/internal/logger"
	"github.com/coregx/pgquery/internal/security"
	"github.com/coregx/pgquery/internal/tracer"
)

const (
	maxWalkDepth = 25
	envPrefix    = "PGQUERY"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the effective pgquery configuration.
type Config struct {
	Driver   string         `mapstructure:"driver" json:"driver"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Pool     PoolConfig     `mapstructure:"pool" json:"pool"`

	StatementTimeout    time.Duration `mapstructure:"statement_timeout" json:"statement_timeout"`
	StmtCacheCapacity   int           `mapstructure:"stmt_cache_capacity" json:"stmt_cache_capacity"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval" json:"health_check_interval"`

	Retry   RetryConfig   `mapstructure:"retry" json:"retry"`
	Log     LogConfig     `mapstructure:"log" json:"log"`
	Audit   AuditConfig   `mapstructure:"audit" json:"audit"`
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`

	// Schemas maps table names to their known columns.
	Schemas map[string][]string `mapstructure:"schemas" json:"schemas,omitempty"`
}

// DatabaseConfig holds connection settings. URL wins over the discrete fields.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" json:"url"`
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	Name     string `mapstructure:"name" json:"name"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
}

// PoolConfig holds database/sql pool settings. Zero keeps the driver default.
type PoolConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// RetryConfig mirrors core.RetryPolicy.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" json:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" json:"max_interval"`
}

// LogConfig selects the statement logger.
type LogConfig struct {
	// Format is one of none, text, json or hclog.
	Format          string   `mapstructure:"format" json:"format"`
	Level           string   `mapstructure:"level" json:"level"`
	SensitiveFields []string `mapstructure:"sensitive_fields" json:"sensitive_fields,omitempty"`
}

// AuditConfig selects which operations are audited.
type AuditConfig struct {
	Level string `mapstructure:"level" json:"level"`
}

// TracingConfig enables spans through the global OpenTelemetry provider.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// Load discovers and loads configuration with the precedence
// env > config file > defaults.
//
// It returns the config, the path of the file used (empty if none) and any
// error encountered.
func Load(explicitPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, "", err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, path, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, path, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, path, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("driver", core.DriverPQ)

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "prefer")

	v.SetDefault("pool.max_open_conns", 0)
	v.SetDefault("pool.max_idle_conns", 0)
	v.SetDefault("pool.conn_max_lifetime", 0)
	v.SetDefault("pool.conn_max_idle_time", 0)

	v.SetDefault("statement_timeout", 0)
	v.SetDefault("stmt_cache_capacity", 1000)
	v.SetDefault("health_check_interval", 0)

	def := core.DefaultRetryPolicy()
	v.SetDefault("retry.max_attempts", def.MaxAttempts)
	v.SetDefault("retry.initial_interval", def.InitialInterval)
	v.SetDefault("retry.max_interval", def.MaxInterval)

	v.SetDefault("log.format", "none")
	v.SetDefault("log.level", "info")

	v.SetDefault("audit.level", "none")
	v.SetDefault("tracing.enabled", false)
}

// findConfigFile returns explicitPath if it exists. Otherwise it walks up
// from the working directory looking for pgquery.yaml or pgquery.yml,
// stopping at a .git entry or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"pgquery.yaml", "pgquery.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// Validate checks the settings that Options and DSN cannot report later.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Driver) {
	case "", "postgres", "postgresql", "pq", "pgx", "pgx/v5":
	default:
		return fmt.Errorf("%w: driver %q is not supported", ErrInvalidConfig, c.Driver)
	}
	if _, err := security.ParseAuditLevel(c.Audit.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "none", "text", "json", "hclog":
	default:
		return fmt.Errorf("%w: log format %q is not one of none, text, json, hclog", ErrInvalidConfig, c.Log.Format)
	}
	if c.StatementTimeout < 0 || c.HealthCheckInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	for table, columns := range c.Schemas {
		if _, err := security.SanitizeName(table); err != nil {
			return fmt.Errorf("%w: schema table: %v", ErrInvalidConfig, err)
		}
		for _, col := range columns {
			if _, err := security.SanitizeName(col); err != nil {
				return fmt.Errorf("%w: schema %s: %v", ErrInvalidConfig, table, err)
			}
		}
	}
	return nil
}

// DSN returns the connection string. database.url is returned as is;
// otherwise a postgres:// URL is built from the discrete fields.
func (c *Config) DSN() (string, error) {
	db := c.Database

	if db.URL != "" {
		return db.URL, nil
	}

	if db.Host == "" {
		return "", fmt.Errorf("database.host is required when database.url is not set")
	}
	if db.Name == "" {
		return "", fmt.Errorf("database.name is required when database.url is not set")
	}
	if db.User == "" {
		return "", fmt.Errorf("database.user is required when database.url is not set")
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	} else {
		u.User = url.User(db.User)
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Redacted returns a copy safe to print: the password and any password in
// database.url are masked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Database.Password != "" {
		out.Database.Password = logger.DefaultMask
	}
	if out.Database.URL != "" {
		if u, err := url.Parse(out.Database.URL); err == nil {
			out.Database.URL = u.Redacted()
		} else {
			out.Database.URL = logger.DefaultMask
		}
	}
	return &out
}

// Logger builds the statement logger selected by log.format, writing to w.
func (c *Config) Logger(w io.Writer) logger.Logger {
	switch strings.ToLower(c.Log.Format) {
	case "text":
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: logger.ParseLevel(c.Log.Level)})
		return logger.NewSlogAdapter(slog.New(h))
	case "json":
		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logger.ParseLevel(c.Log.Level)})
		return logger.NewSlogAdapter(slog.New(h))
	case "hclog":
		return logger.NewHCLogAdapter(hclog.New(&hclog.LoggerOptions{
			Name:   "pgquery",
			Level:  hclog.LevelFromString(c.Log.Level),
			Output: w,
		}))
	}
	return &logger.NoopLogger{}
}

// Options converts the configuration into DB options. Log output goes to w.
func (c *Config) Options(w io.Writer) ([]core.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	log := c.Logger(w)
	opts := []core.Option{
		core.WithLogger(log),
		core.WithRetry(core.RetryPolicy{
			MaxAttempts:     c.Retry.MaxAttempts,
			InitialInterval: c.Retry.InitialInterval,
			MaxInterval:     c.Retry.MaxInterval,
		}),
	}

	if len(c.Log.SensitiveFields) > 0 {
		opts = append(opts, core.WithSensitiveFields(c.Log.SensitiveFields...))
	}
	if c.Pool.MaxOpenConns > 0 {
		opts = append(opts, core.WithMaxOpenConns(c.Pool.MaxOpenConns))
	}
	if c.Pool.MaxIdleConns > 0 {
		opts = append(opts, core.WithMaxIdleConns(c.Pool.MaxIdleConns))
	}
	if c.Pool.ConnMaxLifetime > 0 {
		opts = append(opts, core.WithConnMaxLifetime(c.Pool.ConnMaxLifetime))
	}
	if c.Pool.ConnMaxIdleTime > 0 {
		opts = append(opts, core.WithConnMaxIdleTime(c.Pool.ConnMaxIdleTime))
	}
	if c.StatementTimeout > 0 {
		opts = append(opts, core.WithStatementTimeout(c.StatementTimeout))
	}
	if c.StmtCacheCapacity > 0 {
		opts = append(opts, core.WithStmtCacheCapacity(c.StmtCacheCapacity))
	}
	if c.HealthCheckInterval > 0 {
		opts = append(opts, core.WithHealthCheck(c.HealthCheckInterval))
	}

	level, _ := security.ParseAuditLevel(c.Audit.Level)
	if level != security.AuditNone {
		opts = append(opts, core.WithAuditor(security.NewAuditor(log, level)))
	}
	if c.Tracing.Enabled {
		opts = append(opts, core.WithTracer(tracer.NewProviderTracer(otel.GetTracerProvider())))
	}
	for table, columns := range c.Schemas {
		opts = append(opts, core.WithSchema(table, columns...))
	}

	return opts, nil
}

// Open validates the configuration and opens a DB with it.
func (c *Config) Open(w io.Writer) (*core.DB, error) {
	opts, err := c.Options(w)
	if err != nil {
		return nil, err
	}
	dsn, err := c.DSN()
	if err != nil {
		return nil, err
	}
	return core.Open(c.Driver, dsn, opts...)
}
