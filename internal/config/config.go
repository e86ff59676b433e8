package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/watercoop/waterbill/internal/types"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Database   DatabaseConfig   `validate:"required"`
	Billing    BillingConfig    `validate:"required"`
	Cache      CacheConfig
	Metrics    MetricsConfig
	Events     EventsConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type DatabaseConfig struct {
	Driver                 types.DatabaseDriver `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	Path                   string               `mapstructure:"path"`
	Host                   string               `mapstructure:"host"`
	Port                   int                  `mapstructure:"port"`
	User                   string               `mapstructure:"user"`
	Password               string               `mapstructure:"password"`
	DBName                 string               `mapstructure:"dbname"`
	SSLMode                string               `mapstructure:"sslmode"`
	MaxOpenConns           int                  `mapstructure:"max_open_conns"`
	MaxIdleConns           int                  `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int                  `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate            bool                 `mapstructure:"auto_migrate"`
}

type BillingConfig struct {
	Currency                string     `mapstructure:"currency" validate:"required"`
	DueDateOffsetDays       int        `mapstructure:"due_date_offset_days" validate:"gte=0"`
	DisconnectionGraceDays  int        `mapstructure:"disconnection_grace_days" validate:"gte=0"`
	AccountNumberMaxRetries int        `mapstructure:"account_number_max_retries" validate:"gte=1"`
	SweepConcurrency        int        `mapstructure:"sweep_concurrency" validate:"gte=0"`
	Rate                    RateConfig `mapstructure:"rate" validate:"required"`
}

// RateConfig describes the tariff. Money values are strings so they parse
// losslessly into decimals.
type RateConfig struct {
	Type          types.RateType   `mapstructure:"type" validate:"required"`
	FlatRate      string           `mapstructure:"flat_rate"`
	MinimumCharge string           `mapstructure:"minimum_charge"`
	Tiers         []RateTierConfig `mapstructure:"tiers" validate:"dive"`
}

type RateTierConfig struct {
	// UpTo is the inclusive upper bound of the tier in cubic meters; empty means unbounded
	UpTo      string `mapstructure:"up_to"`
	UnitPrice string `mapstructure:"unit_price" validate:"required"`
}

type CacheConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	TTLSeconds          int  `mapstructure:"ttl_seconds"`
	CleanupIntervalSecs int  `mapstructure:"cleanup_interval_seconds"`
}

// EventsConfig controls the in-process billing event bus
type EventsConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Topic             string `mapstructure:"topic"`
	MaxRetries        int    `mapstructure:"max_retries"`
	InitialIntervalMs int    `mapstructure:"initial_interval_ms"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func NewConfig() (*Configuration, error) {
	// .env is optional, the environment wins over it
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/waterbill")

	v.SetEnvPrefix("WATERBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("deployment.mode", d.Deployment.Mode)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime_minutes", d.Database.ConnMaxLifetimeMinutes)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)
	v.SetDefault("billing.currency", d.Billing.Currency)
	v.SetDefault("billing.due_date_offset_days", d.Billing.DueDateOffsetDays)
	v.SetDefault("billing.disconnection_grace_days", d.Billing.DisconnectionGraceDays)
	v.SetDefault("billing.account_number_max_retries", d.Billing.AccountNumberMaxRetries)
	v.SetDefault("billing.sweep_concurrency", d.Billing.SweepConcurrency)
	v.SetDefault("billing.rate.type", d.Billing.Rate.Type)
	v.SetDefault("billing.rate.flat_rate", d.Billing.Rate.FlatRate)
	v.SetDefault("billing.rate.minimum_charge", d.Billing.Rate.MinimumCharge)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)
	v.SetDefault("cache.cleanup_interval_seconds", d.Cache.CleanupIntervalSecs)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.topic", d.Events.Topic)
	v.SetDefault("events.max_retries", d.Events.MaxRetries)
	v.SetDefault("events.initial_interval_ms", d.Events.InitialIntervalMs)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.Billing.Rate.Validate()
}

// Validate checks that the rate values parse and fit the chosen rate type
func (r RateConfig) Validate() error {
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if r.MinimumCharge != "" {
		if err := validateAmount("billing.rate.minimum_charge", r.MinimumCharge); err != nil {
			return err
		}
	}
	switch r.Type {
	case types.RateTypeFlat:
		if err := validateAmount("billing.rate.flat_rate", r.FlatRate); err != nil {
			return err
		}
	case types.RateTypeTiered:
		if len(r.Tiers) == 0 {
			return errors.New("billing.rate.tiers must not be empty for a tiered rate")
		}
		for i, t := range r.Tiers {
			if err := validateAmount(fmt.Sprintf("unit_price on tier %d", i), t.UnitPrice); err != nil {
				return err
			}
			if t.UpTo == "" {
				if i != len(r.Tiers)-1 {
					return fmt.Errorf("only the last tier may be unbounded, tier %d has no up_to", i)
				}
				continue
			}
			if i == len(r.Tiers)-1 {
				return fmt.Errorf("the last tier must be unbounded, tier %d has up_to %q", i, t.UpTo)
			}
			if _, err := decimal.NewFromString(t.UpTo); err != nil {
				return fmt.Errorf("invalid up_to on tier %d: %w", i, err)
			}
		}
	}
	return nil
}

func validateAmount(field, raw string) error {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if v.IsNegative() {
		return fmt.Errorf("%s %q must not be negative", field, raw)
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Database: DatabaseConfig{
			Driver:                 types.DatabaseDriverSQLite,
			Path:                   "waterbill.db",
			Host:                   "localhost",
			Port:                   5432,
			SSLMode:                "disable",
			MaxOpenConns:           10,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 30,
			AutoMigrate:            true,
		},
		Billing: BillingConfig{
			Currency:                "PHP",
			DueDateOffsetDays:       15,
			DisconnectionGraceDays:  7,
			AccountNumberMaxRetries: 5,
			SweepConcurrency:        4,
			Rate: RateConfig{
				Type:          types.RateTypeFlat,
				FlatRate:      "10",
				MinimumCharge: "0",
			},
		},
		Cache: CacheConfig{
			Enabled:             true,
			TTLSeconds:          300,
			CleanupIntervalSecs: 600,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Events: EventsConfig{
			Enabled:           true,
			Topic:             "billing_events",
			MaxRetries:        3,
			InitialIntervalMs: 100,
		},
	}
}

func (c DatabaseConfig) GetDSN() string {
	if c.Driver == types.DatabaseDriverSQLite {
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", c.Path)
	}
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

func (c EventsConfig) InitialInterval() time.Duration {
	return time.Duration(c.InitialIntervalMs) * time.Millisecond
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c CacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSecs) * time.Second
}
