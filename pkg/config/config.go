package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Detector DetectorConfig
	Tariff   TariffConfig
	Notifier NotifierConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host           string
	Port           int
	Password       string
	DB             int
	BaselineTTLSec int
}

type DetectorConfig struct {
	MinDataPoints int
}

type TariffConfig struct {
	PeakStartHour int
	PeakEndHour   int
	PeakRate      float64
	OffPeakRate   float64
	FlatRate      float64
}

type NotifierConfig struct {
	Enabled    bool
	WebhookURL string
	TimeoutSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/wattwise")

	viper.SetEnvPrefix("WATTWISE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("sqlite.path", "./data/wattwise.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.baselineTTLSec", 300)

	viper.SetDefault("detector.minDataPoints", 5)

	viper.SetDefault("tariff.peakStartHour", 17)
	viper.SetDefault("tariff.peakEndHour", 21)
	viper.SetDefault("tariff.peakRate", 0.28)
	viper.SetDefault("tariff.offPeakRate", 0.12)
	viper.SetDefault("tariff.flatRate", 0.15)

	viper.SetDefault("notifier.enabled", false)
	viper.SetDefault("notifier.timeoutSec", 5)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
