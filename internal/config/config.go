package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"transfer-sniper/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Local    LocalConfig    `mapstructure:"local"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	API      APIConfig      `mapstructure:"api"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN disables the purchase ledger.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LocalConfig locates the sqlite file holding saved filters and settings.
type LocalConfig struct {
	Path        string `mapstructure:"path"`
	FiltersKey  string `mapstructure:"filters_key"`
	SettingsKey string `mapstructure:"settings_key"`
}

// BrowserConfig points at the DevTools endpoint of the browser running the host web app.
type BrowserConfig struct {
	DevToolsURL    string        `mapstructure:"devtools_url"`
	PageURLMatch   string        `mapstructure:"page_url_match"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EngineConfig holds the engine policy constants.
type EngineConfig struct {
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	SafeguardThreshold int           `mapstructure:"safeguard_threshold"`
	MaxBidMin          int           `mapstructure:"max_bid_min"`
	MaxBidMax          int           `mapstructure:"max_bid_max"`
	MaxBidStep         int           `mapstructure:"max_bid_step"`
	RelistDelay        time.Duration `mapstructure:"relist_delay"`
	RelistDuration     time.Duration `mapstructure:"relist_duration"`
	BidLadderStart     int           `mapstructure:"bid_ladder_start"`
	BuyLadderStart     int           `mapstructure:"buy_ladder_start"`
	DefaultLadderCap   int           `mapstructure:"default_ladder_cap"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	AdvisoryLockKey    int64         `mapstructure:"advisory_lock_key"`
	StatusInterval     time.Duration `mapstructure:"status_interval"`
}

// AlertingConfig defines operator notification routing.
type AlertingConfig struct {
	Console  ConsoleConfig  `mapstructure:"console"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// ConsoleConfig controls the terminal sink.
type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Bell    bool `mapstructure:"bell"`
}

// TelegramConfig describes Telegram notification parameters.
type TelegramConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BotToken   string        `mapstructure:"bot_token"`
	ChatID     string        `mapstructure:"chat_id"`
	APIBase    string        `mapstructure:"api_base"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Severities []string      `mapstructure:"severities"`
}

// APIConfig configures the control API. An empty listen address disables it.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sniper")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("local.path", "sniper.db")
	v.SetDefault("local.filters_key", "saved_filters")
	v.SetDefault("local.settings_key", "sniper_settings")

	v.SetDefault("browser.devtools_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.page_url_match", "ultimate-team")
	v.SetDefault("browser.request_timeout", "15s")

	v.SetDefault("engine.failure_threshold", 3)
	v.SetDefault("engine.safeguard_threshold", 5)
	v.SetDefault("engine.max_bid_min", 300000)
	v.SetDefault("engine.max_bid_max", 800000)
	v.SetDefault("engine.max_bid_step", 1000)
	v.SetDefault("engine.relist_delay", "1s")
	v.SetDefault("engine.relist_duration", "1h")
	v.SetDefault("engine.bid_ladder_start", 150)
	v.SetDefault("engine.buy_ladder_start", 200)
	v.SetDefault("engine.default_ladder_cap", 300)
	v.SetDefault("engine.request_timeout", "15s")
	v.SetDefault("engine.advisory_lock_key", int64(0x736e6970))
	v.SetDefault("engine.status_interval", "1m")

	v.SetDefault("alerting.console.enabled", true)
	v.SetDefault("alerting.console.bell", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.telegram.severities", []string{"success", "error"})

	v.SetDefault("api.listen", "")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Local.Path == "" {
		return fmt.Errorf("local.path is required")
	}
	if c.Engine.FailureThreshold <= 0 {
		return fmt.Errorf("engine.failure_threshold must be greater than zero")
	}
	if c.Engine.SafeguardThreshold <= 0 {
		return fmt.Errorf("engine.safeguard_threshold must be greater than zero")
	}
	if c.Engine.MaxBidStep <= 0 {
		return fmt.Errorf("engine.max_bid_step must be greater than zero")
	}
	if c.Engine.MaxBidMin <= 0 || c.Engine.MaxBidMin > c.Engine.MaxBidMax {
		return fmt.Errorf("engine.max_bid_min must be positive and not exceed engine.max_bid_max")
	}
	if c.Engine.StatusInterval <= 0 {
		return fmt.Errorf("engine.status_interval must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
