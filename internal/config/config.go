package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Tricejer41/FirstLight/internal/filter"
	"github.com/Tricejer41/FirstLight/internal/logging"
	"github.com/Tricejer41/FirstLight/internal/tns"
)

// Config materialises application configuration. Loaded once per process
// run; immutable afterwards.
type Config struct {
	App      AppConfig           `mapstructure:"app"`
	Logging  logging.Config      `mapstructure:"logging"`
	Database DatabaseConfig      `mapstructure:"database"`
	Stream   StreamConfig        `mapstructure:"stream"`
	N1       filter.Config       `mapstructure:"n1"`
	TNS      tns.Config          `mapstructure:"tns"`
	Resolver tns.ResolverOptions `mapstructure:"resolver"`
	Export   ExportConfig        `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig locates the SQLite audit log.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StreamConfig governs the alert poll loop.
type StreamConfig struct {
	Topics      []string      `mapstructure:"topics"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FIRSTLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
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

// bindLegacyEnv keeps the bare TNS_* variable names working; registry bots
// are usually provisioned with those.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("tns.bot_id", "FIRSTLIGHT_TNS_BOT_ID", "TNS_BOT_ID")
	_ = v.BindEnv("tns.bot_name", "FIRSTLIGHT_TNS_BOT_NAME", "TNS_BOT_NAME")
	_ = v.BindEnv("tns.api_key", "FIRSTLIGHT_TNS_API_KEY", "TNS_API_KEY")
	_ = v.BindEnv("tns.api_url", "FIRSTLIGHT_TNS_API_URL", "TNS_API_URL")
	_ = v.BindEnv("tns.reporter_name", "FIRSTLIGHT_TNS_REPORTER_NAME", "TNS_REPORTER_NAME")
	_ = v.BindEnv("tns.reporter_email", "FIRSTLIGHT_TNS_REPORTER_EMAIL", "TNS_REPORTER_EMAIL")
	_ = v.BindEnv("tns.reporter_institution", "FIRSTLIGHT_TNS_REPORTER_INSTITUTION", "TNS_REPORTER_INSTITUTION")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "firstlight")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.path", "firstlight.sqlite")

	v.SetDefault("stream.poll_timeout", "5s")

	v.SetDefault("n1.drb_min", 0.9)
	v.SetDefault("n1.rb_fallback_min", 0.8)
	v.SetDefault("n1.require_positive_diff", true)
	v.SetDefault("n1.min_ssdistnr_arcsec", 20.0)
	v.SetDefault("n1.min_distpsnr1_arcsec", 3.0)
	v.SetDefault("n1.min_ps1_mag", 17.0)
	v.SetDefault("n1.max_nmtchps", 5)
	v.SetDefault("n1.max_ndethist", 3)
	v.SetDefault("n1.max_days_since_nondet", 3.0)
	v.SetDefault("n1.min_delta_mag_from_nondet", 1.5)

	v.SetDefault("tns.request_timeout", "30s")

	v.SetDefault("resolver.base_url", tns.DefaultResolverURL)
	v.SetDefault("resolver.timeout", "5s")
	v.SetDefault("resolver.fail_open", true)

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
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Stream.PollTimeout <= 0 {
		return fmt.Errorf("stream.poll_timeout must be greater than zero")
	}
	if c.N1.DRBMin < 0 || c.N1.DRBMin > 1 {
		return fmt.Errorf("n1.drb_min must be within [0, 1]")
	}
	if c.N1.RBFallbackMin < 0 || c.N1.RBFallbackMin > 1 {
		return fmt.Errorf("n1.rb_fallback_min must be within [0, 1]")
	}
	if c.N1.MaxDaysSinceNonDet <= 0 {
		return fmt.Errorf("n1.max_days_since_nondet must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
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
