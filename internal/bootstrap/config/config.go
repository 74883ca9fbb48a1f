package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/errs"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Lock         LockConfig         `mapstructure:"lock"`
	Traceability TraceabilityConfig `mapstructure:"traceability"`
	Server       ServerConfig       `mapstructure:"server"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type CacheConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string        `mapstructure:"driver"`
	Size   int           `mapstructure:"size"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type LockConfig struct {
	// Driver is "local" or "redis".
	Driver    string        `mapstructure:"driver"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type TraceabilityConfig struct {
	SensorReadingLimit int           `mapstructure:"sensor_reading_limit"`
	SensorLookback     time.Duration `mapstructure:"sensor_lookback"`
	DefaultMinTemp     float64       `mapstructure:"default_min_temp"`
	DefaultMaxTemp     float64       `mapstructure:"default_max_temp"`
	PolicyFile         string        `mapstructure:"policy_file"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	GatewaySecret string `mapstructure:"gateway_secret"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("cache_driver", cfg.Cache.Driver),
		slog.String("lock_driver", cfg.Lock.Driver),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	switch strings.ToLower(c.Cache.Driver) {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Cache.Driver)
	}
	switch strings.ToLower(c.Lock.Driver) {
	case "local":
	case "redis":
		if strings.TrimSpace(c.Lock.RedisAddr) == "" {
			return errors.New("lock.redis_addr is required for redis lock driver")
		}
	default:
		return fmt.Errorf("unsupported lock driver %q", c.Lock.Driver)
	}
	if c.Traceability.SensorReadingLimit <= 0 {
		return errors.New("traceability.sensor_reading_limit must be positive")
	}
	if c.Traceability.SensorLookback <= 0 {
		return errors.New("traceability.sensor_lookback must be positive")
	}
	if c.Traceability.DefaultMinTemp > c.Traceability.DefaultMaxTemp {
		return errors.New("traceability.default_min_temp must not exceed default_max_temp")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "foodtrace")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".foodtrace/state/ledger.sqlite")
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("traceability.sensor_reading_limit", 10)
	v.SetDefault("traceability.sensor_lookback", 7*24*time.Hour)
	v.SetDefault("traceability.default_min_temp", 0.0)
	v.SetDefault("traceability.default_max_temp", 40.0)
	v.SetDefault("traceability.policy_file", "configs/policies.toml")
	v.SetDefault("server.addr", ":8088")
	v.SetDefault("server.gateway_secret", "")
}
