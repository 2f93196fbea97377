package config

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Core       CoreConfig       `mapstructure:"core"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Weather    WeatherConfig    `mapstructure:"weather"`
	Wallpapers WallpapersConfig `mapstructure:"wallpapers"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Database   DatabaseConfig   `mapstructure:"database"`
	API        APIConfig        `mapstructure:"api"`
}

type CoreConfig struct {
	Timezone        string `mapstructure:"timezone"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" validate:"required"`
	Chat     string `mapstructure:"chat" validate:"required"`
}

type WeatherConfig struct {
	Provider  string  `mapstructure:"provider" validate:"oneof=openweather openmeteo"`
	APIKey    string  `mapstructure:"api_key" validate:"required_if=Provider openweather"`
	City      string  `mapstructure:"city" validate:"required"`
	Country   string  `mapstructure:"country"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Units     string  `mapstructure:"units"`
	Lang      string  `mapstructure:"lang"`
}

type WallpapersConfig struct {
	File    string `mapstructure:"file" validate:"required"`
	BaseDir string `mapstructure:"base_dir"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

// CacheFile is where the last-applied state lives, under the wallpaper base
// directory.
func (c *Config) CacheFile() string {
	return filepath.Join(c.Wallpapers.BaseDir, ".cache", "last_state.json")
}

// ResolveStatsFile resolves the stats path from the matrix config against
// the wallpaper base directory.
func (c *Config) ResolveStatsFile(statsFile string) string {
	if filepath.IsAbs(statsFile) {
		return statsFile
	}
	return filepath.Join(c.Wallpapers.BaseDir, statsFile)
}

func (c *Config) FallbackInterval() time.Duration {
	minutes := c.Core.IntervalMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

func Load(configPath string) (*Config, error) {
	// Secrets commonly live in a .env file next to the binary.
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/tgwall")
	}

	// Set defaults
	viper.SetDefault("core.timezone", "UTC")
	viper.SetDefault("core.interval_minutes", 30)
	viper.SetDefault("weather.provider", "openweather")
	viper.SetDefault("weather.city", "")
	viper.SetDefault("weather.country", "")
	viper.SetDefault("weather.latitude", 0)
	viper.SetDefault("weather.longitude", 0)
	viper.SetDefault("weather.units", "metric")
	viper.SetDefault("weather.lang", "en")
	viper.SetDefault("wallpapers.file", "config/wallpapers.json")
	viper.SetDefault("wallpapers.base_dir", ".")
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "tgwall")
	viper.SetDefault("mqtt.client_id", "tgwall")
	viper.SetDefault("database.path", ".cache/history.db")
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.port", 8046)

	// Environment overrides keep the historical variable names.
	viper.MustBindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	viper.MustBindEnv("telegram.chat", "TELEGRAM_CHAT")
	viper.MustBindEnv("weather.api_key", "OPENWEATHER_API_KEY")
	viper.MustBindEnv("weather.city", "CITY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
