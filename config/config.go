package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务全量配置（config.yaml + CLIPVOTE_* 环境变量覆盖）
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Cron      CronConfig      `mapstructure:"cron"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Actor     ActorConfig     `mapstructure:"actor"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Swagger   SwaggerConfig   `mapstructure:"swagger"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PipelineConfig 异步写管道开关与参数
type PipelineConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BatchSize  int           `mapstructure:"batch_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

// CronConfig 定时任务触发鉴权（X-Cron-Secret）
type CronConfig struct {
	Secret string `mapstructure:"secret"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// ActorConfig 请求方身份提取：JWT 主题或设备指纹哈希
type ActorConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Pepper    string `mapstructure:"pepper"`
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

type SwaggerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load 读取配置文件并应用环境变量覆盖。
// 配置文件路径取 CONFIG_PATH，默认 ./config.yaml；文件缺失时仅用默认值+环境变量。
func Load() (*Config, error) {
	v := viper.New()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix("CLIPVOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=clipvote port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 32)
	v.SetDefault("database.max_idle_conns", 8)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("pipeline.enabled", true)
	v.SetDefault("pipeline.batch_size", 200)
	v.SetDefault("pipeline.max_retries", 5)
	// 必须大于 drain 最坏耗时，锁靠 TTL 兜底释放
	v.SetDefault("pipeline.lock_ttl", 5*time.Minute)
	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("swagger.enabled", true)
}
