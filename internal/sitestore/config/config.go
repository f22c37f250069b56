package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DriverPostgresql = "postgresql"
	DriverMongodb    = "mongodb"
	DriverMemory     = "memory"
)

// EnvConfigFile names the config file when none is passed explicitly.
const EnvConfigFile = "SITESTORE_CONFIG"

type PostgresqlConfig struct {
	Host         string `toml:"host" validate:"required,hostname|ip"`
	Port         int    `toml:"port" validate:"required,min=1,max=65535"`
	User         string `toml:"user" validate:"required"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	AdminDb      string `toml:"admin_db" validate:"required"` // database used to issue CREATE DATABASE
	MaxOpenConns int    `toml:"max_open_conns" validate:"min=0"`
}

// DSN returns a pgx key/value connection string for the named database.
func (p PostgresqlConfig) DSN(dbname string) string {
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, dbname, sslmode)
}

type MongodbConfig struct {
	URI         string `toml:"uri" validate:"required,startswith=mongodb"`
	MaxPoolSize uint64 `toml:"max_pool_size"`
	MinPoolSize uint64 `toml:"min_pool_size" validate:"ltefield=MaxPoolSize"`
	AppName     string `toml:"app_name"`
}

type DatabaseConfig struct {
	Driver           string           `toml:"driver" validate:"required,oneof=postgresql mongodb memory"`
	NamePrefix       string           `toml:"name_prefix" validate:"dbprefix"`
	ConnectTimeout   string           `toml:"connect_timeout" validate:"omitempty,duration"`
	OperationTimeout string           `toml:"operation_timeout" validate:"omitempty,duration"`
	Postgresql       PostgresqlConfig `toml:"postgresql" validate:"-"`
	Mongodb          MongodbConfig    `toml:"mongodb" validate:"-"`
}

// ConnectTimeoutDuration returns the configured connect timeout, or 10s.
func (d DatabaseConfig) ConnectTimeoutDuration() time.Duration {
	return parseDurationOr(d.ConnectTimeout, 10*time.Second)
}

// OperationTimeoutDuration returns the configured per operation timeout, or 5s.
func (d DatabaseConfig) OperationTimeoutDuration() time.Duration {
	return parseDurationOr(d.OperationTimeout, 5*time.Second)
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=json console"`
}

type BootstrapConfig struct {
	DefaultSiteTitle string `toml:"default_site_title" validate:"max=256"`
}

type ConfigParam struct {
	Database  DatabaseConfig  `toml:"database"`
	Log       LogConfig       `toml:"log"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
}

var cfg *ConfigParam

func Config() *ConfigParam {
	return cfg
}

// SetConfig replaces the active configuration. Used by tests and embedding programs.
func SetConfig(c *ConfigParam) {
	cfg = c
}

// DefaultConfig is used when no config file is given. It runs against the in-process store.
func DefaultConfig() *ConfigParam {
	return &ConfigParam{
		Database: DatabaseConfig{
			Driver:           DriverMemory,
			NamePrefix:       "cms_",
			ConnectTimeout:   "10s",
			OperationTimeout: "5s",
			Postgresql: PostgresqlConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "sitestore",
				AdminDb: "postgres",
				SSLMode: "disable",
			},
			Mongodb: MongodbConfig{
				URI:         "mongodb://localhost:27017",
				MaxPoolSize: 100,
				MinPoolSize: 0,
				AppName:     "sitestore",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Bootstrap: BootstrapConfig{
			DefaultSiteTitle: "My Site",
		},
	}
}

func LoadConfig(filename string) error {
	if filename == "" {
		filename = os.Getenv(EnvConfigFile)
	}
	if filename == "" {
		cfg = DefaultConfig()
		return nil
	}
	// Read the config file
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	cp, err := ParseConfig(content)
	if err != nil {
		return err
	}
	cfg = cp
	return nil
}

// ParseConfig decodes TOML over the defaults and validates the result.
func ParseConfig(content []byte) (*ConfigParam, error) {
	cp := DefaultConfig()
	if _, err := toml.Decode(string(content), cp); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return cp, nil
}

var dbPrefixRegex = regexp.MustCompile(`^[a-z0-9_]{0,32}$`)

// dbPrefixValidator accepts prefixes that are valid in both PostgreSQL and MongoDB database names.
func dbPrefixValidator(fl validator.FieldLevel) bool {
	return dbPrefixRegex.MatchString(fl.Field().String())
}

func durationValidator(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("dbprefix", dbPrefixValidator)
	_ = v.RegisterValidation("duration", durationValidator)
	return v
}

// Validate checks the common sections and then the section of the selected driver.
func (c *ConfigParam) Validate() error {
	v := newValidator()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Database.Driver {
	case DriverPostgresql:
		if err := v.Struct(c.Database.Postgresql); err != nil {
			return fmt.Errorf("invalid postgresql config: %w", err)
		}
	case DriverMongodb:
		if err := v.Struct(c.Database.Mongodb); err != nil {
			return fmt.Errorf("invalid mongodb config: %w", err)
		}
	}
	return nil
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func init() {
	cfg = DefaultConfig()
}
