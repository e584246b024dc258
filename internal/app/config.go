package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the match server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Game     GameConfig     `mapstructure:"game"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// GameConfig tunes gameplay pacing, automated opponents and time control.
type GameConfig struct {
	TurnAllowance time.Duration `mapstructure:"turn_allowance"`
	Reserve       time.Duration `mapstructure:"reserve"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`

	BotThinkingDelay    time.Duration `mapstructure:"bot_thinking_delay"`
	BotShowDiceDelay    time.Duration `mapstructure:"bot_show_dice_delay"`
	BotPerMoveDelay     time.Duration `mapstructure:"bot_per_move_delay"`
	BotResponseDelay    time.Duration `mapstructure:"bot_response_delay"`
	BotAcceptThreshold  int           `mapstructure:"bot_accept_threshold"`
	SnapshotQueueSize   int           `mapstructure:"snapshot_queue_size"`
	SnapshotMaxAttempts int           `mapstructure:"snapshot_max_attempts"`
}

// AnalysisConfig points at the external gnubg evaluation sidecar.
type AnalysisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadConfig initialises application configuration using Viper with sensible
// defaults. YAML file lookup paths first, then DOUBLECUBE_* env overrides.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("DOUBLECUBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/doublecube.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("game.turn_allowance", "45s")
	v.SetDefault("game.reserve", "3m")
	v.SetDefault("game.sweep_schedule", "@every 30s")
	v.SetDefault("game.bot_thinking_delay", "800ms")
	v.SetDefault("game.bot_show_dice_delay", "600ms")
	v.SetDefault("game.bot_per_move_delay", "400ms")
	v.SetDefault("game.bot_response_delay", "1s")
	v.SetDefault("game.bot_accept_threshold", 4)
	v.SetDefault("game.snapshot_queue_size", 256)
	v.SetDefault("game.snapshot_max_attempts", 3)

	v.SetDefault("analysis.enabled", false)
	v.SetDefault("analysis.base_url", "http://127.0.0.1:8001")
	v.SetDefault("analysis.timeout", "30s")
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
