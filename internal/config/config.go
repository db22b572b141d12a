package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	KafkaBrokers      []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopicEvents  string        `mapstructure:"KAFKA_TOPIC_EVENTS"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	ClockSkewWarn     time.Duration `mapstructure:"CLOCK_SKEW_WARN"`
	WSSendBuffer      int           `mapstructure:"WS_SEND_BUFFER"`
	SimulatorEnabled  bool          `mapstructure:"SIMULATOR_ENABLED"`
	SimulatorInterval time.Duration `mapstructure:"SIMULATOR_INTERVAL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("KAFKA_TOPIC_EVENTS", "vitalwatch.events")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("CLOCK_SKEW_WARN", time.Hour)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("SIMULATOR_ENABLED", false)
	v.SetDefault("SIMULATOR_INTERVAL", 30*time.Second)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("KAFKA_BROKERS")
	v.BindEnv("KAFKA_TOPIC_EVENTS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("CLOCK_SKEW_WARN")
	v.BindEnv("WS_SEND_BUFFER")
	v.BindEnv("SIMULATOR_ENABLED")
	v.BindEnv("SIMULATOR_INTERVAL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.KafkaBrokers == nil {
		if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
			cfg.KafkaBrokers = strings.Split(brokers, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// FirehoseEnabled reports whether the optional Kafka event mirror should run.
func (c *Config) FirehoseEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.ClockSkewWarn <= 0 {
		return fmt.Errorf("CLOCK_SKEW_WARN must be positive, got %s", c.ClockSkewWarn)
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}
	if c.SimulatorEnabled && c.SimulatorInterval <= 0 {
		return fmt.Errorf("SIMULATOR_INTERVAL must be positive when the simulator is enabled, got %s", c.SimulatorInterval)
	}
	if c.FirehoseEnabled() && c.KafkaTopicEvents == "" {
		return fmt.Errorf("KAFKA_TOPIC_EVENTS is required when KAFKA_BROKERS is set")
	}
	return nil
}
