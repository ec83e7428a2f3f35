package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bassista/labasica/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported local storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Supported cross-process broadcast channels.
const (
	ChannelLocal = "local"
	ChannelKeys  = "keys"
	ChannelRedis = "redis"
)

type Config struct {
	Server ServerConfig
	Data   DataConfig
	Sync   SyncConfig
	Cart   CartConfig
	Misc   MiscConfig
}

type ServerConfig struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutDownTimeout    time.Duration
	RequestTimeout     time.Duration
	CORSAllowedOrigins string
	StaticDataDir      string
}

type DataConfig struct {
	SourceURL     string
	FetchTimeout  time.Duration
	StoreBackend  string
	StorePath     string
	KeyPrefix     string
	MaxValueBytes int
}

type SyncConfig struct {
	Interval      time.Duration
	ProbeInterval time.Duration
	Channel       string
	RedisAddr     string
	Topic         string
	TransientTTL  time.Duration
}

type CartConfig struct {
	SyncInterval          time.Duration
	FreeShippingThreshold float64
	ShippingCost          float64
	PointsRate            float64
}

type MiscConfig struct {
	GinMode           string
	LogLevel          string
	LogFormat         string
	Env               string
	HoneybadgerAPIKey string
}

// LoadConfig reads config.yaml (if any), .env (if any) and LABASICA_* env vars.
// Environment variables like LABASICA_SERVER_PORT override server.port.
func LoadConfig(confPaths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithComponent("config").Warnf("cannot read .env file: %v", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if len(confPaths) == 0 {
		confPaths = []string{"./config", "."}
	}
	for _, p := range confPaths {
		viper.AddConfigPath(p)
	}

	setDefaults()

	viper.SetEnvPrefix("LABASICA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
		logger.WithComponent("config").Info("no config file found, using defaults and env vars")
	}

	port, err := getEnvOrViperPort("PORT", "server.port")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               port,
			ReadTimeout:        viper.GetDuration("server.read_timeout"),
			WriteTimeout:       viper.GetDuration("server.write_timeout"),
			IdleTimeout:        viper.GetDuration("server.idle_timeout"),
			ShutDownTimeout:    viper.GetDuration("server.shutdown_timeout"),
			RequestTimeout:     viper.GetDuration("server.request_timeout"),
			CORSAllowedOrigins: viper.GetString("server.cors_allowed_origins"),
			StaticDataDir:      viper.GetString("server.static_data_dir"),
		},
		Data: DataConfig{
			SourceURL:     viper.GetString("data.source_url"),
			FetchTimeout:  viper.GetDuration("data.fetch_timeout"),
			StoreBackend:  strings.ToLower(viper.GetString("data.store_backend")),
			StorePath:     viper.GetString("data.store_path"),
			KeyPrefix:     viper.GetString("data.key_prefix"),
			MaxValueBytes: viper.GetInt("data.max_value_bytes"),
		},
		Sync: SyncConfig{
			Interval:      viper.GetDuration("sync.interval"),
			ProbeInterval: viper.GetDuration("sync.probe_interval"),
			Channel:       strings.ToLower(viper.GetString("sync.channel")),
			RedisAddr:     getEnvOrDefault("REDIS_ADDR", viper.GetString("sync.redis_addr")),
			Topic:         viper.GetString("sync.topic"),
			TransientTTL:  viper.GetDuration("sync.transient_ttl"),
		},
		Cart: CartConfig{
			SyncInterval:          viper.GetDuration("cart.sync_interval"),
			FreeShippingThreshold: viper.GetFloat64("cart.free_shipping_threshold"),
			ShippingCost:          viper.GetFloat64("cart.shipping_cost"),
			PointsRate:            viper.GetFloat64("cart.points_rate"),
		},
		Misc: MiscConfig{
			GinMode:           viper.GetString("misc.gin_mode"),
			LogLevel:          viper.GetString("misc.log_level"),
			LogFormat:         viper.GetString("misc.log_format"),
			Env:               getEnvOrDefault("GO_ENV", viper.GetString("misc.env")),
			HoneybadgerAPIKey: getEnvOrDefault("HONEYBADGER_API_KEY", viper.GetString("misc.honeybadger_api_key")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 10*time.Second)
	viper.SetDefault("server.idle_timeout", 120*time.Second)
	viper.SetDefault("server.shutdown_timeout", 5*time.Second)
	viper.SetDefault("server.request_timeout", 2*time.Second)
	viper.SetDefault("server.cors_allowed_origins", "*")
	viper.SetDefault("server.static_data_dir", "./data")

	viper.SetDefault("data.source_url", "http://localhost:8080/data/")
	viper.SetDefault("data.fetch_timeout", 5*time.Second)
	viper.SetDefault("data.store_backend", BackendFile)
	viper.SetDefault("data.store_path", "./storage")
	viper.SetDefault("data.key_prefix", "la_basica_")
	viper.SetDefault("data.max_value_bytes", 5*1024*1024)

	viper.SetDefault("sync.interval", 30*time.Second)
	viper.SetDefault("sync.probe_interval", 0)
	viper.SetDefault("sync.channel", ChannelKeys)
	viper.SetDefault("sync.redis_addr", "localhost:6379")
	viper.SetDefault("sync.topic", "la_basica_sync")
	viper.SetDefault("sync.transient_ttl", time.Second)

	viper.SetDefault("cart.sync_interval", time.Second)
	viper.SetDefault("cart.free_shipping_threshold", 2000)
	viper.SetDefault("cart.shipping_cost", 250)
	viper.SetDefault("cart.points_rate", 0.01)

	viper.SetDefault("misc.gin_mode", "release")
	viper.SetDefault("misc.log_level", "info")
	viper.SetDefault("misc.log_format", "text")
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 || c.Server.ShutDownTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server request timeout must be positive")
	}

	if c.Data.SourceURL == "" {
		return errors.New("data source url is required")
	}
	if u, err := url.Parse(c.Data.SourceURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid data source url: %q", c.Data.SourceURL)
	}
	if c.Data.FetchTimeout <= 0 {
		return errors.New("data fetch timeout must be positive")
	}
	switch c.Data.StoreBackend {
	case BackendMemory:
	case BackendFile, BackendBolt, BackendSQLite:
		if c.Data.StorePath == "" {
			return fmt.Errorf("store path is required for backend %s", c.Data.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown store backend: %s (supported: %s, %s, %s, %s)",
			c.Data.StoreBackend, BackendMemory, BackendFile, BackendBolt, BackendSQLite)
	}
	if c.Data.MaxValueBytes <= 0 {
		return errors.New("data max value bytes must be positive")
	}

	if c.Sync.Interval <= 0 {
		return errors.New("sync interval must be positive")
	}
	if c.Sync.ProbeInterval < 0 {
		return errors.New("sync probe interval cannot be negative")
	}
	switch c.Sync.Channel {
	case ChannelLocal, ChannelKeys:
	case ChannelRedis:
		if c.Sync.RedisAddr == "" {
			return errors.New("redis address is required for the redis channel")
		}
	default:
		return fmt.Errorf("unknown sync channel: %s (supported: %s, %s, %s)",
			c.Sync.Channel, ChannelLocal, ChannelKeys, ChannelRedis)
	}
	if c.Sync.Topic == "" {
		return errors.New("sync topic is required")
	}
	if c.Sync.TransientTTL <= 0 {
		return errors.New("sync transient ttl must be positive")
	}

	if c.Cart.SyncInterval <= 0 {
		return errors.New("cart sync interval must be positive")
	}
	if c.Cart.FreeShippingThreshold < 0 || c.Cart.ShippingCost < 0 || c.Cart.PointsRate < 0 {
		return errors.New("cart amounts cannot be negative")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// getEnvOrViperPort lets a bare PORT variable (common on PaaS hosts) win over server.port.
func getEnvOrViperPort(envKey, viperKey string) (int, error) {
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", envKey, v, err)
		}
		return port, nil
	}
	return viper.GetInt(viperKey), nil
}
