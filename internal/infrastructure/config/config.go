package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Lock      LockConfig
	Event     EventConfig
	Ledger    LedgerConfig
	FX        FXConfig
	Accounts  AccountsConfig
	Reconcile ReconcileConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Path            string // sqlite file, ":memory:" for a throwaway database
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	ServiceName       string
	CollectorEndpoint string
	Insecure          bool
	SamplingRatio     float64
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	// Database tracing options
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
}

// LockConfig configures the per-key critical sections
type LockConfig struct {
	Backend       string        // memory, redis
	Timeout       time.Duration // how long an operation waits for its key
	TTL           time.Duration // redis lease; must exceed the longest write transaction
	RetryInterval time.Duration // redis acquisition poll interval
	KeyPrefix     string
}

// EventConfig holds event delivery configuration
type EventConfig struct {
	DedupEnabled   bool
	IdempotencyTTL time.Duration
}

// LedgerConfig holds costing and posting rules
type LedgerConfig struct {
	BaseCurrency        string
	BaseScale           int32
	BalanceEpsilon      string // decimal; empty means one minor unit of BaseScale
	ShortfallCostPolicy string // last_known, zero
}

// Epsilon returns the balance tolerance for postings
func (l LedgerConfig) Epsilon() decimal.Decimal {
	if l.BalanceEpsilon != "" {
		if eps, err := decimal.NewFromString(l.BalanceEpsilon); err == nil {
			return eps
		}
	}
	return decimal.New(1, -l.BaseScale)
}

// FXConfig holds the static rate table and the breaker around rate lookups
type FXConfig struct {
	Rates map[string]string // currency -> rate to base currency

	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold uint32
}

// ReconcileConfig holds the periodic reconciliation sweep settings
type ReconcileConfig struct {
	Interval     time.Duration
	SweepTimeout time.Duration
	Repair       bool
}

// AccountsConfig holds the chart of accounts and the accounts used by business operations
type AccountsConfig struct {
	LegalEntities      []string
	DefaultLegalEntity string
	Chart              []string
	Mapping            AccountMapping
}

// AccountMapping names the ledger accounts booked by each business operation
type AccountMapping struct {
	Inventory       string
	AccountsPayable string
	Receivable      string
	Revenue         string
	COGS            string
	AdjustmentGain  string
	AdjustmentLoss  string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file; an empty path searches the default locations
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			ServiceName:       v.GetString("telemetry.service_name"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			Insecure:          v.GetBool("telemetry.insecure"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Lock: LockConfig{
			Backend:       v.GetString("lock.backend"),
			Timeout:       v.GetDuration("lock.timeout"),
			TTL:           v.GetDuration("lock.ttl"),
			RetryInterval: v.GetDuration("lock.retry_interval"),
			KeyPrefix:     v.GetString("lock.key_prefix"),
		},
		Event: EventConfig{
			DedupEnabled:   v.GetBool("event.dedup_enabled"),
			IdempotencyTTL: v.GetDuration("event.idempotency_ttl"),
		},
		Ledger: LedgerConfig{
			BaseCurrency:        v.GetString("ledger.base_currency"),
			BaseScale:           v.GetInt32("ledger.base_scale"),
			BalanceEpsilon:      v.GetString("ledger.balance_epsilon"),
			ShortfallCostPolicy: v.GetString("ledger.shortfall_cost_policy"),
		},
		FX: FXConfig{
			Rates:                   v.GetStringMapString("fx.rates"),
			BreakerMaxRequests:      v.GetUint32("fx.breaker_max_requests"),
			BreakerInterval:         v.GetDuration("fx.breaker_interval"),
			BreakerTimeout:          v.GetDuration("fx.breaker_timeout"),
			BreakerFailureThreshold: v.GetUint32("fx.breaker_failure_threshold"),
		},
		Accounts: AccountsConfig{
			LegalEntities:      v.GetStringSlice("accounts.legal_entities"),
			DefaultLegalEntity: v.GetString("accounts.default_legal_entity"),
			Chart:              v.GetStringSlice("accounts.chart"),
			Mapping: AccountMapping{
				Inventory:       v.GetString("accounts.mapping.inventory"),
				AccountsPayable: v.GetString("accounts.mapping.accounts_payable"),
				Receivable:      v.GetString("accounts.mapping.receivable"),
				Revenue:         v.GetString("accounts.mapping.revenue"),
				COGS:            v.GetString("accounts.mapping.cogs"),
				AdjustmentGain:  v.GetString("accounts.mapping.adjustment_gain"),
				AdjustmentLoss:  v.GetString("accounts.mapping.adjustment_loss"),
			},
		},
		Reconcile: ReconcileConfig{
			Interval:     v.GetDuration("reconcile.interval"),
			SweepTimeout: v.GetDuration("reconcile.sweep_timeout"),
			Repair:       v.GetBool("reconcile.repair"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns the configuration used when nothing is set, with the
// database switched to sqlite at path
func Defaults(sqlitePath string) *Config {
	cfg := &Config{Database: DatabaseConfig{Driver: "sqlite", Path: sqlitePath}}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "stockledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "stockledger.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "stockledger"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "stockledger"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "memory"
	}
	if cfg.Lock.Timeout == 0 {
		cfg.Lock.Timeout = 5 * time.Second
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 30 * time.Second
	}
	if cfg.Lock.RetryInterval == 0 {
		cfg.Lock.RetryInterval = 25 * time.Millisecond
	}
	if cfg.Lock.KeyPrefix == "" {
		cfg.Lock.KeyPrefix = "stockledger:lock:"
	}
	if cfg.Event.IdempotencyTTL == 0 {
		cfg.Event.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Ledger.BaseCurrency == "" {
		cfg.Ledger.BaseCurrency = "USD"
	}
	if cfg.Ledger.BaseScale == 0 {
		cfg.Ledger.BaseScale = 2
	}
	if cfg.Ledger.ShortfallCostPolicy == "" {
		cfg.Ledger.ShortfallCostPolicy = "last_known"
	}
	if cfg.FX.Rates == nil {
		cfg.FX.Rates = map[string]string{}
	}
	if cfg.FX.BreakerMaxRequests == 0 {
		cfg.FX.BreakerMaxRequests = 1
	}
	if cfg.FX.BreakerInterval == 0 {
		cfg.FX.BreakerInterval = time.Minute
	}
	if cfg.FX.BreakerTimeout == 0 {
		cfg.FX.BreakerTimeout = 30 * time.Second
	}
	if cfg.FX.BreakerFailureThreshold == 0 {
		cfg.FX.BreakerFailureThreshold = 5
	}
	if cfg.Reconcile.Interval == 0 {
		cfg.Reconcile.Interval = 5 * time.Minute
	}
	if cfg.Reconcile.SweepTimeout == 0 {
		cfg.Reconcile.SweepTimeout = 2 * time.Minute
	}
	if len(cfg.Accounts.LegalEntities) == 0 {
		cfg.Accounts.LegalEntities = []string{"LE1"}
	}
	if cfg.Accounts.DefaultLegalEntity == "" {
		cfg.Accounts.DefaultLegalEntity = cfg.Accounts.LegalEntities[0]
	}
	m := &cfg.Accounts.Mapping
	for _, f := range []struct {
		field *string
		def   string
	}{
		{&m.Inventory, "1300"},
		{&m.AccountsPayable, "2100"},
		{&m.Receivable, "1100"},
		{&m.Revenue, "4000"},
		{&m.COGS, "5000"},
		{&m.AdjustmentGain, "4900"},
		{&m.AdjustmentLoss, "5900"},
	} {
		if *f.field == "" {
			*f.field = f.def
		}
	}
	if len(cfg.Accounts.Chart) == 0 {
		cfg.Accounts.Chart = []string{
			m.Receivable, m.Inventory, m.AccountsPayable, m.Revenue,
			m.AdjustmentGain, m.COGS, m.AdjustmentLoss,
		}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0 and 1, got %v", c.Telemetry.SamplingRatio)
	}

	switch c.Lock.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("lock.backend must be memory or redis, got %q", c.Lock.Backend)
	}
	if c.Lock.Backend == "redis" && c.Lock.TTL <= c.Lock.Timeout {
		return fmt.Errorf("lock.ttl (%s) must exceed lock.timeout (%s)", c.Lock.TTL, c.Lock.Timeout)
	}

	if len(c.Ledger.BaseCurrency) != 3 {
		return fmt.Errorf("ledger.base_currency must be a three-letter code, got %q", c.Ledger.BaseCurrency)
	}
	if c.Ledger.BaseScale < 0 || c.Ledger.BaseScale > 4 {
		return fmt.Errorf("ledger.base_scale must be between 0 and 4, got %d", c.Ledger.BaseScale)
	}
	if c.Ledger.BalanceEpsilon != "" {
		eps, err := decimal.NewFromString(c.Ledger.BalanceEpsilon)
		if err != nil || eps.IsNegative() {
			return fmt.Errorf("ledger.balance_epsilon must be a non-negative decimal, got %q", c.Ledger.BalanceEpsilon)
		}
	}
	switch c.Ledger.ShortfallCostPolicy {
	case "last_known", "zero":
	default:
		return fmt.Errorf("ledger.shortfall_cost_policy must be last_known or zero, got %q", c.Ledger.ShortfallCostPolicy)
	}

	for currency, rate := range c.FX.Rates {
		r, err := decimal.NewFromString(rate)
		if err != nil || !r.IsPositive() {
			return fmt.Errorf("fx.rates.%s must be a positive decimal, got %q", currency, rate)
		}
	}

	if c.Reconcile.Interval < 0 || c.Reconcile.SweepTimeout < 0 {
		return fmt.Errorf("reconcile.interval and reconcile.sweep_timeout cannot be negative")
	}

	found := false
	for _, le := range c.Accounts.LegalEntities {
		if le == c.Accounts.DefaultLegalEntity {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("accounts.default_legal_entity %q is not in accounts.legal_entities", c.Accounts.DefaultLegalEntity)
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "sqlite" {
			return fmt.Errorf("database.driver cannot be sqlite in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
