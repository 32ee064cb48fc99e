// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Listener ListenerConfig `mapstructure:"listener"`
	Decoder  DecoderConfig  `mapstructure:"decoder"`
	Printer  PrinterConfig  `mapstructure:"printer"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents database configuration.
// When disabled, captures are kept in memory.
type DatabaseConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	DBName        string        `mapstructure:"dbname"`
	SSLMode       string        `mapstructure:"sslmode"`
	MaxOpenConns  int           `mapstructure:"max_open_conns"`
	MaxIdleConns  int           `mapstructure:"max_idle_conns"`
	MaxLifetime   time.Duration `mapstructure:"max_lifetime"`
	AutoMigrate   bool          `mapstructure:"auto_migrate"`
	MemoryMaxRows int           `mapstructure:"memory_max_rows"`
}

// ListenerConfig represents the raw print port the service taps
type ListenerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadBufferSize int           `mapstructure:"read_buffer_size"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxJobSize     int           `mapstructure:"max_job_size"`
}

// DecoderConfig represents ESC/POS decoding options
type DecoderConfig struct {
	MaxCommandLength int    `mapstructure:"max_command_length"`
	RenderLevel      string `mapstructure:"render_level"`
	LogInstructions  bool   `mapstructure:"log_instructions"`
}

// PrinterConfig represents the downstream printer captured jobs are relayed to
type PrinterConfig struct {
	Enabled        bool             `mapstructure:"enabled"`
	ConnectionType string           `mapstructure:"connection_type"`
	Timeout        time.Duration    `mapstructure:"timeout"`
	TCP            PrinterTCPConfig `mapstructure:"tcp"`
	Serial         SerialPortConfig `mapstructure:"serial"`
	USB            PrinterUSBConfig `mapstructure:"usb"`
}

// PrinterTCPConfig represents a network printer
type PrinterTCPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	KeepAlive bool   `mapstructure:"keep_alive"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	Parity   string `mapstructure:"parity"`
}

// PrinterUSBConfig represents a USB printer
type PrinterUSBConfig struct {
	VendorID         string `mapstructure:"vendor_id"`
	ProductID        string `mapstructure:"product_id"`
	Interface        int    `mapstructure:"interface"`
	Endpoint         int    `mapstructure:"endpoint"`
	BulkTransferSize int    `mapstructure:"bulk_transfer_size"`
}

// CaptureConfig represents capture retention
type CaptureConfig struct {
	StoreRaw        bool          `mapstructure:"store_raw"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
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
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents Prometheus exposition
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables.
// A missing config file is not an error; defaults and environment apply.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file, or searches the
// default locations when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/escpos-service")
	}

	// Environment variable support
	v.SetEnvPrefix("ESCPOS_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "escpos_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.memory_max_rows", 1000)

	// Listener defaults (raw printing port)
	v.SetDefault("listener.host", "0.0.0.0")
	v.SetDefault("listener.port", 9100)
	v.SetDefault("listener.read_buffer_size", 4096)
	v.SetDefault("listener.read_timeout", "30s")
	v.SetDefault("listener.max_connections", 16)
	v.SetDefault("listener.max_job_size", 16*1024*1024)

	// Decoder defaults
	v.SetDefault("decoder.max_command_length", 65536)
	v.SetDefault("decoder.render_level", "info")
	v.SetDefault("decoder.log_instructions", false)

	// Printer defaults
	v.SetDefault("printer.enabled", false)
	v.SetDefault("printer.connection_type", "TCP")
	v.SetDefault("printer.timeout", "3s")
	v.SetDefault("printer.tcp.port", 9100)
	v.SetDefault("printer.tcp.keep_alive", true)
	v.SetDefault("printer.serial.baud_rate", 9600)
	v.SetDefault("printer.serial.data_bits", 8)
	v.SetDefault("printer.serial.stop_bits", 1)
	v.SetDefault("printer.serial.parity", "none")
	v.SetDefault("printer.usb.interface", 0)
	v.SetDefault("printer.usb.endpoint", 1)
	v.SetDefault("printer.usb.bulk_transfer_size", 64)

	// Capture defaults
	v.SetDefault("capture.store_raw", true)
	v.SetDefault("capture.retention", "720h")
	v.SetDefault("capture.cleanup_interval", "1h")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "./logs/escpos-service.log")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// App defaults
	v.SetDefault("app.name", "escpos-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	// Basic validation
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when database is enabled")
	}
	if config.Listener.Port < 1 || config.Listener.Port > 65535 {
		return fmt.Errorf("listener.port must be between 1 and 65535")
	}
	if config.Listener.ReadBufferSize < 1 {
		return fmt.Errorf("listener.read_buffer_size must be positive")
	}
	if config.Listener.MaxConnections < 1 {
		return fmt.Errorf("listener.max_connections must be positive")
	}
	if config.Decoder.MaxCommandLength < 1 {
		return fmt.Errorf("decoder.max_command_length must be positive")
	}

	// Validate printer
	if config.Printer.Enabled {
		validTypes := []string{"TCP", "SERIAL", "USB"}
		if !slices.Contains(validTypes, strings.ToUpper(config.Printer.ConnectionType)) {
			return fmt.Errorf("printer.connection_type must be one of: %v", validTypes)
		}
		switch strings.ToUpper(config.Printer.ConnectionType) {
		case "TCP":
			if config.Printer.TCP.Host == "" {
				return fmt.Errorf("printer.tcp.host is required")
			}
		case "SERIAL":
			if config.Printer.Serial.Port == "" {
				return fmt.Errorf("printer.serial.port is required")
			}
		case "USB":
			if config.Printer.USB.VendorID == "" || config.Printer.USB.ProductID == "" {
				return fmt.Errorf("printer.usb.vendor_id and printer.usb.product_id are required")
			}
		}
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	if !slices.Contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !slices.Contains(validOutputs, config.Logging.Output) {
		return fmt.Errorf("logging.output must be one of: %v", validOutputs)
	}

	validRenderLevels := []string{"quiet", "info", "debug"}
	if !slices.Contains(validRenderLevels, config.Decoder.RenderLevel) {
		return fmt.Errorf("decoder.render_level must be one of: %v", validRenderLevels)
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetListenerAddr returns the raw print port address
func (c *Config) GetListenerAddr() string {
	return fmt.Sprintf("%s:%d", c.Listener.Host, c.Listener.Port)
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
