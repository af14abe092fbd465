package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Recorder   RecorderConfig   `mapstructure:"recorder"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Reports    ReportsConfig    `mapstructure:"reports"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// ClassifierConfig holds risk classifier configuration
type ClassifierConfig struct {
	InternalDomains      []string      `mapstructure:"internal_domains"`
	AfterHoursStart      int           `mapstructure:"after_hours_start"`
	AfterHoursEnd        int           `mapstructure:"after_hours_end"`
	LLMBandLow           int           `mapstructure:"llm_band_low"`
	LLMBandHigh          int           `mapstructure:"llm_band_high"`
	LLMTimeout           time.Duration `mapstructure:"llm_timeout"`
	BaselineWindow       time.Duration `mapstructure:"baseline_window"`
	LargeAttachmentBytes int64         `mapstructure:"large_attachment_bytes"`
}

// RecorderConfig holds violation recorder configuration
type RecorderConfig struct {
	Threshold int    `mapstructure:"threshold"`
	Source    string `mapstructure:"source"`
}

// ExecutorConfig holds action executor configuration
type ExecutorConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	Concurrency     int           `mapstructure:"concurrency"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout"`
	StaleClaimAfter time.Duration `mapstructure:"stale_claim_after"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// IdentityConfig holds the external identity system configuration
type IdentityConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AlertsConfig holds alert routing configuration
type AlertsConfig struct {
	DefaultRecipients []string `mapstructure:"default_recipients"`
}

// ReportsConfig holds compliance report configuration
type ReportsConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/commguard.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Classifier defaults
	viper.SetDefault("classifier.after_hours_start", 20)
	viper.SetDefault("classifier.after_hours_end", 7)
	viper.SetDefault("classifier.llm_band_low", 60)
	viper.SetDefault("classifier.llm_band_high", 89)
	viper.SetDefault("classifier.llm_timeout", 30*time.Second)
	viper.SetDefault("classifier.baseline_window", 30*24*time.Hour)
	viper.SetDefault("classifier.large_attachment_bytes", 10*1024*1024)

	// Recorder defaults
	viper.SetDefault("recorder.threshold", 70)
	viper.SetDefault("recorder.source", "risk_classifier")

	// Executor defaults
	viper.SetDefault("executor.poll_interval", 5*time.Second)
	viper.SetDefault("executor.batch_size", 20)
	viper.SetDefault("executor.concurrency", 4)
	viper.SetDefault("executor.action_timeout", 2*time.Minute)
	viper.SetDefault("executor.stale_claim_after", 6*time.Minute)

	// OpenAI defaults
	viper.SetDefault("openai.model", "gpt-4")
	viper.SetDefault("openai.temperature", 0.1)
	viper.SetDefault("openai.max_tokens", 500)

	// Lark defaults
	viper.SetDefault("lark.api_timeout", 30*time.Second)

	// Identity defaults
	viper.SetDefault("identity.timeout", 15*time.Second)

	// Reports defaults
	viper.SetDefault("reports.output_dir", "reports")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("lark.app_id", "LARK_APP_ID")
	viper.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	viper.BindEnv("identity.base_url", "IDENTITY_BASE_URL")
	viper.BindEnv("identity.api_key", "IDENTITY_API_KEY")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Recorder.Threshold < 0 || c.Recorder.Threshold > 100 {
		return fmt.Errorf("recorder.threshold must be within 0..100")
	}

	if c.Classifier.LLMBandLow > c.Classifier.LLMBandHigh {
		return fmt.Errorf("classifier.llm_band_low must not exceed classifier.llm_band_high")
	}

	if len(c.Alerts.DefaultRecipients) == 0 {
		return fmt.Errorf("alerts.default_recipients is required")
	}

	// The LLM escalation and chat alerts are optional, but credentials must
	// come in pairs.
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	return nil
}
