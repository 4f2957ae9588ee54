package confs

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"sensor-ingest/entities"
	"sensor-ingest/validation"
)

// MinHistoryCap is the smallest history list length a deployment may use.
const MinHistoryCap = 10000

type Config struct {
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Database   DatabaseConfig   `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Validation ValidationConfig `mapstructure:"validation"`
	Signal     SignalConfig     `mapstructure:"signal"`
	Server     ServerConfig     `mapstructure:"server"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Log        LogConfig        `mapstructure:"log"`
}

type RabbitMQConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	QueueAir        string        `mapstructure:"queue_air"`
	QueueSound      string        `mapstructure:"queue_sound"`
	QueueWater      string        `mapstructure:"queue_water"`
	MessageTTL      time.Duration `mapstructure:"message_ttl"`
	Prefetch        int           `mapstructure:"prefetch"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay"`
	RequeueBackoff  time.Duration `mapstructure:"requeue_backoff"`
}

// AMQPURL returns RABBITMQ_URL or builds one from the discrete settings.
func (c RabbitMQConfig) AMQPURL() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/",
	}
	return u.String()
}

// Queues maps each sensor kind to its queue name.
func (c RabbitMQConfig) Queues() map[entities.SensorKind]string {
	return map[entities.SensorKind]string{
		entities.KindAir:   c.QueueAir,
		entities.KindSound: c.QueueSound,
		entities.KindWater: c.QueueWater,
	}
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay"`
	LogLevel        string        `mapstructure:"log_level"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
}

// DSN returns DB_URL (with sslmode=require appended when absent) or a
// key/value DSN built from the discrete settings. Local hosts skip TLS.
func (c DatabaseConfig) DSN() (string, error) {
	if c.URL != "" {
		dsn := c.URL
		if !strings.Contains(dsn, "sslmode=") {
			if strings.Contains(dsn, "?") {
				dsn += "&sslmode=require"
			} else {
				dsn += "?sslmode=require"
			}
		}
		return dsn, nil
	}
	if c.Host == "" || c.Port == "" || c.User == "" || c.Password == "" || c.Name == "" {
		return "", errors.New("missing required database configuration: DB_URL or (DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME)")
	}
	sslMode := "require"
	if c.Host == "localhost" || c.Host == "127.0.0.1" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port, sslMode), nil
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	HistoryCap  int           `mapstructure:"history_cap"`
	DeviceTTL   time.Duration `mapstructure:"device_ttl"`
	ActiveTTL   time.Duration `mapstructure:"active_ttl"`
	HistoryTTL  time.Duration `mapstructure:"history_ttl"`
	AlertTTL    time.Duration `mapstructure:"alert_ttl"`
	RankingKind string        `mapstructure:"ranking_kind"`
}

type ValidationConfig struct {
	Mode             string  `mapstructure:"mode"`
	MaxBaseNullRatio float64 `mapstructure:"max_base_null_ratio"`
}

type SignalConfig struct {
	RSSIMin float64 `mapstructure:"rssi_min"`
	RSSIMax float64 `mapstructure:"rssi_max"`
	SNRMin  float64 `mapstructure:"snr_min"`
	SNRMax  float64 `mapstructure:"snr_max"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StatsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.queue_air", "sensor.air")
	v.SetDefault("rabbitmq.queue_sound", "sensor.sound")
	v.SetDefault("rabbitmq.queue_water", "sensor.water")
	v.SetDefault("rabbitmq.message_ttl", 24*time.Hour)
	v.SetDefault("rabbitmq.prefetch", 1)
	v.SetDefault("rabbitmq.connect_attempts", 5)
	v.SetDefault("rabbitmq.connect_delay", 5*time.Second)
	v.SetDefault("rabbitmq.requeue_backoff", time.Second)

	v.SetDefault("db.url", "")
	v.SetDefault("db.host", "")
	v.SetDefault("db.port", "")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "")
	v.SetDefault("db.connect_attempts", 5)
	v.SetDefault("db.connect_delay", 5*time.Second)
	v.SetDefault("db.log_level", "warn")
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.max_open_conns", 100)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.timeout", 5*time.Second)

	v.SetDefault("cache.history_cap", MinHistoryCap)
	v.SetDefault("cache.device_ttl", 30*24*time.Hour)
	v.SetDefault("cache.active_ttl", 30*24*time.Hour)
	v.SetDefault("cache.history_ttl", 30*24*time.Hour)
	v.SetDefault("cache.alert_ttl", time.Hour)
	v.SetDefault("cache.ranking_kind", string(entities.KindAir))

	v.SetDefault("validation.mode", string(validation.ModePermissive))
	v.SetDefault("validation.max_base_null_ratio", 0.0)

	v.SetDefault("signal.rssi_min", -130.0)
	v.SetDefault("signal.rssi_max", 0.0)
	v.SetDefault("signal.snr_min", -20.0)
	v.SetDefault("signal.snr_max", 20.0)

	v.SetDefault("server.addr", "0.0.0.0:3536")
	v.SetDefault("stats.interval", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig loads an optional .env file, an optional config.yaml from the
// given search paths, then environment variables (DB_URL, RABBITMQ_PREFETCH,
// ...), in increasing precedence.
func LoadConfig(paths ...string) (*Config, error) {
	// Load .env if it exists; ignore error if file not found
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(paths) > 0 {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Cache.HistoryCap < MinHistoryCap {
		problems = append(problems, fmt.Sprintf("CACHE_HISTORY_CAP must be at least %d", MinHistoryCap))
	}
	if c.Cache.DeviceTTL <= 0 || c.Cache.ActiveTTL <= 0 || c.Cache.HistoryTTL <= 0 || c.Cache.AlertTTL <= 0 {
		problems = append(problems, "cache TTLs must be positive")
	}
	if c.RabbitMQ.ConnectAttempts < 1 {
		problems = append(problems, "RABBITMQ_CONNECT_ATTEMPTS must be positive")
	}
	if c.RabbitMQ.Prefetch < 1 {
		problems = append(problems, "RABBITMQ_PREFETCH must be positive")
	}
	if c.Database.ConnectAttempts < 1 {
		problems = append(problems, "DB_CONNECT_ATTEMPTS must be positive")
	}
	if _, err := validation.ParseMode(c.Validation.Mode); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Validation.MaxBaseNullRatio < 0 || c.Validation.MaxBaseNullRatio > 1 {
		problems = append(problems, "VALIDATION_MAX_BASE_NULL_RATIO must be within [0,1]")
	}
	if _, err := entities.ParseSensorKind(c.Cache.RankingKind); err != nil {
		problems = append(problems, fmt.Sprintf("CACHE_RANKING_KIND: %v", err))
	}
	if c.Signal.RSSIMin > c.Signal.RSSIMax || c.Signal.SNRMin > c.Signal.SNRMax {
		problems = append(problems, "signal bounds are inverted")
	}
	for kind, q := range c.RabbitMQ.Queues() {
		if q == "" {
			problems = append(problems, fmt.Sprintf("queue name for %s is empty", kind))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidationMode returns the parsed validation mode. Call after Validate.
func (c *Config) ValidationMode() validation.Mode {
	m, _ := validation.ParseMode(c.Validation.Mode)
	return m
}

// RankingKind returns the parsed dashboard ranking kind. Call after Validate.
func (c *Config) RankingKind() entities.SensorKind {
	k, _ := entities.ParseSensorKind(c.Cache.RankingKind)
	return k
}
