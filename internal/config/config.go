package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig   `mapstructure:"server"`
	Database     DatabaseConfig `mapstructure:"database"`
	Cache        CacheConfig    `mapstructure:"cache"`
	Security     SecurityConfig `mapstructure:"security"`
	CDC          CDCConfig      `mapstructure:"cdc"`
	GraphQL      GraphQLConfig  `mapstructure:"graphql"`
	AllowedSchema string        `mapstructure:"allowed_schema"`
	DatabaseType string         `mapstructure:"database_type"`
	Debug        bool           `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheck     time.Duration `mapstructure:"health_check_period"`
}

// CacheConfig contains catalog and privilege cache TTLs
type CacheConfig struct {
	SchemaTTLMinutes         int `mapstructure:"schema_ttl_minutes"`
	RolePrivilegesTTLMinutes int `mapstructure:"role_privileges_ttl_minutes"`
}

// SecurityConfig contains role-based schema filtering settings
type SecurityConfig struct {
	RoleBasedSchema bool `mapstructure:"role_based_schema"`
}

// CDCConfig contains logical replication settings
type CDCConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	SlotName         string `mapstructure:"slot_name"`
	PublicationName  string `mapstructure:"publication_name"`
	HeartbeatSeconds int    `mapstructure:"heartbeat_seconds"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("graphgate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/graphgate")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("GRAPHGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 4*1024*1024)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.database", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.min_connections", 5)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.health_check_period", "1m")

	// Cache defaults
	viper.SetDefault("cache.schema_ttl_minutes", 60)
	viper.SetDefault("cache.role_privileges_ttl_minutes", 15)

	// Security defaults
	viper.SetDefault("security.role_based_schema", false)

	// CDC defaults
	viper.SetDefault("cdc.enabled", false)
	viper.SetDefault("cdc.slot_name", "graphgate_slot")
	viper.SetDefault("cdc.publication_name", "cdc_publication")
	viper.SetDefault("cdc.heartbeat_seconds", 30)

	// GraphQL defaults
	viper.SetDefault("graphql.enabled", true)
	viper.SetDefault("graphql.max_depth", 10)
	viper.SetDefault("graphql.introspection", true)

	// General defaults
	viper.SetDefault("allowed_schema", "public")
	viper.SetDefault("database_type", "postgres")
	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AllowedSchema == "" {
		return fmt.Errorf("allowed_schema must not be empty")
	}

	if c.Database.MaxConnections < c.Database.MinConnections {
		return fmt.Errorf("max_connections must be greater than or equal to min_connections")
	}

	if c.Cache.SchemaTTLMinutes < 1 {
		return fmt.Errorf("cache schema_ttl_minutes must be at least 1, got: %d", c.Cache.SchemaTTLMinutes)
	}

	if c.CDC.Enabled {
		if c.CDC.SlotName == "" {
			return fmt.Errorf("cdc slot_name is required when CDC is enabled")
		}
		if c.CDC.PublicationName == "" {
			return fmt.Errorf("cdc publication_name is required when CDC is enabled")
		}
		if c.CDC.HeartbeatSeconds < 1 {
			return fmt.Errorf("cdc heartbeat_seconds must be at least 1, got: %d", c.CDC.HeartbeatSeconds)
		}
	}

	if err := c.GraphQL.Validate(); err != nil {
		return err
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (dc *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.User, dc.Password, dc.Host, dc.Port, dc.Database, dc.SSLMode)
}

// ReplicationConnectionString returns the connection string for the
// dedicated logical replication connection.
func (dc *DatabaseConfig) ReplicationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&replication=database",
		dc.User, dc.Password, dc.Host, dc.Port, dc.Database, dc.SSLMode)
}

// SchemaTTL returns the catalog cache TTL as a duration
func (cc *CacheConfig) SchemaTTL() time.Duration {
	return time.Duration(cc.SchemaTTLMinutes) * time.Minute
}

// RolePrivilegesTTL returns the per-role privilege cache TTL as a duration
func (cc *CacheConfig) RolePrivilegesTTL() time.Duration {
	return time.Duration(cc.RolePrivilegesTTLMinutes) * time.Minute
}

// Heartbeat returns the subscription heartbeat interval as a duration
func (cd *CDCConfig) Heartbeat() time.Duration {
	return time.Duration(cd.HeartbeatSeconds) * time.Second
}
