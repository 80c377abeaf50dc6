package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type SecurityConfig struct {
	AdminPassword     string        `mapstructure:"admin_password"`
	EnableCORS        bool          `mapstructure:"enable_cors"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	BlockDuration     time.Duration `mapstructure:"block_duration"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
}

type MonitorConfig struct {
	// Enabled defaults to true; only an explicit "enabled: false" in the
	// config turns the background monitor off.
	Enabled          *bool         `mapstructure:"enabled"`
	BaseURL          string        `mapstructure:"base_url"`
	Endpoints        []string      `mapstructure:"endpoints"`
	Interval         time.Duration `mapstructure:"interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	Output        string `mapstructure:"output"`
	ConsoleOutput bool   `mapstructure:"console_output"`
	MaxSize       int    `mapstructure:"max_size"`
	MaxBackups    int    `mapstructure:"max_backups"`
	MaxAge        int    `mapstructure:"max_age"`
	Compress      bool   `mapstructure:"compress"`
}

type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	KeysDir    string `mapstructure:"keys_dir"`
	SecretFile string `mapstructure:"secret_file"`
	LogsDir    string `mapstructure:"logs_dir"`
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	var cfg Config

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrCreate loads the configuration, creating a default config file if none exists
func LoadOrCreate() (*Config, error) {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "./config.yaml"
	}

	if _, err := os.Stat(configFile); err == nil {
		cfg, err := Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configFile, err)
		}
		return cfg, nil
	}

	fmt.Println("\n⚠️  Config file not found, creating default config...")

	cfg := &Config{}
	setDefaults(cfg)

	// First run gets a random admin password
	password := generateRandomPassword(16)
	cfg.Security.AdminPassword = password
	fmt.Printf("\n🔑 Generated admin password: %s\n", password)
	fmt.Println("   ⚠️  IMPORTANT: Please save this password!")
	fmt.Println("   It is required for the admin API.")

	if err := SaveConfig(cfg); err != nil {
		fmt.Printf("\n⚠️  Warning: Failed to save config file: %v\n", err)
		fmt.Println("   Continuing with in-memory config...")
	} else {
		fmt.Println("\n✅ Config file created: config.yaml")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(cfg *Config) error {
	viper.Set("server", cfg.Server)
	viper.Set("security", cfg.Security)
	viper.Set("monitor", cfg.Monitor)
	viper.Set("logging", cfg.Logging)
	viper.Set("storage", cfg.Storage)

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		configPath = "./config.yaml"
	}

	return viper.WriteConfigAs(configPath)
}

// generateRandomPassword generates a random password
func generateRandomPassword(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	rand.Read(b)
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8046
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}

	// Security defaults
	if cfg.Security.RequestsPerMinute == 0 {
		cfg.Security.RequestsPerMinute = 60
	}
	if cfg.Security.MaxFailedAttempts == 0 {
		cfg.Security.MaxFailedAttempts = 5
	}
	if cfg.Security.BlockDuration == 0 {
		cfg.Security.BlockDuration = 15 * time.Minute
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = 24 * time.Hour
	}
	if cfg.Security.AllowedOrigins == nil {
		cfg.Security.AllowedOrigins = []string{"*"}
	}

	// Monitor defaults
	if cfg.Monitor.Enabled == nil {
		enabled := true
		cfg.Monitor.Enabled = &enabled
	}
	if cfg.Monitor.BaseURL == "" {
		cfg.Monitor.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Monitor.Endpoints == nil {
		cfg.Monitor.Endpoints = []string{"/health", "/ping"}
	}
	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = 30 * time.Second
	}
	if cfg.Monitor.ProbeTimeout == 0 {
		cfg.Monitor.ProbeTimeout = 10 * time.Second
	}
	if cfg.Monitor.MaxRetries == 0 {
		cfg.Monitor.MaxRetries = 3
	}
	if cfg.Monitor.ReconnectTimeout == 0 {
		cfg.Monitor.ReconnectTimeout = 30 * time.Second
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "logs/apiguard.log"
	}
	cfg.Logging.ConsoleOutput = true
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 10
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}

	// Storage defaults
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Storage.KeysDir == "" {
		cfg.Storage.KeysDir = "./data/keys"
	}
	if cfg.Storage.SecretFile == "" {
		cfg.Storage.SecretFile = "./data/token_secret"
	}
	if cfg.Storage.LogsDir == "" {
		cfg.Storage.LogsDir = "./logs"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	if cfg.Security.RequestsPerMinute < 1 {
		return fmt.Errorf("invalid requests_per_minute: %d", cfg.Security.RequestsPerMinute)
	}
	if cfg.Security.MaxFailedAttempts < 1 {
		return fmt.Errorf("invalid max_failed_attempts: %d", cfg.Security.MaxFailedAttempts)
	}
	if cfg.Monitor.Interval < time.Second {
		return fmt.Errorf("monitor interval too short: %s", cfg.Monitor.Interval)
	}
	return nil
}
