// internal/config/config.go
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Focuser   FocuserConfig   `mapstructure:"focuser"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// FocuserConfig represents the focuser connection settings
type FocuserConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	VerifyChecksum bool          `mapstructure:"verify_checksum"`
	AutoConnect    bool          `mapstructure:"auto_connect"`
	DefaultSteps   int           `mapstructure:"default_steps"`
}

// DiscoveryConfig represents port discovery settings
type DiscoveryConfig struct {
	PortPatterns []string      `mapstructure:"port_patterns"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// SimulatorConfig enables in-process simulated focusers
type SimulatorConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Devices  int  `mapstructure:"devices"`
	Position int  `mapstructure:"position"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

var (
	validEnvironments = []string{"development", "staging", "production", "test"}
	validLevels       = []string{"debug", "info", "warn", "error", "fatal"}
)

// Load loads configuration from an optional file and environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from path, or searches the default locations when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/focuser-service")
	}

	// Environment variable support
	v.SetEnvPrefix("FOCUSER_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// The config file is optional; defaults and environment are enough
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Focuser defaults
	v.SetDefault("focuser.port", "")
	v.SetDefault("focuser.read_timeout", "2s")
	v.SetDefault("focuser.verify_checksum", true)
	v.SetDefault("focuser.auto_connect", true)
	v.SetDefault("focuser.default_steps", 50)

	// Discovery defaults
	v.SetDefault("discovery.port_patterns", []string{})
	v.SetDefault("discovery.probe_timeout", "1s")

	// Simulator defaults
	v.SetDefault("simulator.enabled", false)
	v.SetDefault("simulator.devices", 1)
	v.SetDefault("simulator.position", 30000)

	// App defaults
	v.SetDefault("app.name", "focuser-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Focuser.ReadTimeout <= 0 {
		return fmt.Errorf("focuser.read_timeout must be positive")
	}
	if config.Discovery.ProbeTimeout <= 0 {
		return fmt.Errorf("discovery.probe_timeout must be positive")
	}
	if config.Focuser.DefaultSteps <= 0 || config.Focuser.DefaultSteps >= MaxDefaultSteps {
		return fmt.Errorf("focuser.default_steps must be in (0, %d)", MaxDefaultSteps)
	}
	if config.Simulator.Enabled && config.Simulator.Devices < 1 {
		return fmt.Errorf("simulator.devices must be at least 1")
	}

	if !slices.Contains(validEnvironments, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvironments)
	}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// MaxDefaultSteps bounds the step size used when a move gives no explicit count,
// and the step size the shell accepts
const MaxDefaultSteps = 2000

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
