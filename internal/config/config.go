package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres, mysql or mongodb
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
	URI      string `mapstructure:"uri"`  // overrides the generated DSN when set
}

type SchemaConfig struct {
	Path string `mapstructure:"path"`
}

type EngineConfig struct {
	MaxDepth        int `mapstructure:"max_depth"`
	SeedConcurrency int `mapstructure:"seed_concurrency"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.URI != "" {
		return d.URI
	}
	switch d.Driver {
	case "sqlite":
		return filepath.Join(d.Path, d.Name+".db")
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "mongodb":
		return fmt.Sprintf("mongodb://%s:%d", d.Host, d.Port)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// IsDocument reports whether the configured backend is the document store.
func (d DatabaseConfig) IsDocument() bool {
	return d.Driver == "mongodb"
}

func defaultPort(driver string) int {
	switch driver {
	case "mysql":
		return 3306
	case "mongodb":
		return 27017
	}
	return 5432
}

// Load reads configuration from path (or relwrite.yaml in the working
// directory when path is empty), then applies RELWRITE_* environment
// overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relwrite")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.uri", "")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("database.name", "relwrite")
	v.SetDefault("schema.path", "schema.yaml")
	v.SetDefault("engine.max_depth", 32)
	v.SetDefault("engine.seed_concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetEnvPrefix("relwrite")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaultPort(cfg.Database.Driver)
	}
	if cfg.Engine.MaxDepth <= 0 {
		return nil, fmt.Errorf("engine.max_depth must be positive, got %d", cfg.Engine.MaxDepth)
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres", "mysql", "mongodb":
	default:
		return nil, fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}

	return &cfg, nil
}
