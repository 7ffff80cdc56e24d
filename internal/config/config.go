package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Push     PushConfig     `mapstructure:"push"`
	Mail     MailConfig     `mapstructure:"mail"`
	Report   ReportConfig   `mapstructure:"report"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the postgres connection string for the default database.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type JWTConfig struct {
	Secret            string        `mapstructure:"secret"`
	AccessTokenExpire time.Duration `mapstructure:"access_token_expire"`
	Issuer            string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PushConfig points at the external push notification service.
type PushConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AppID     string        `mapstructure:"app_id"`
	AppSecret string        `mapstructure:"app_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type MailConfig struct {
	Region    string `mapstructure:"region"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

// ReportConfig tunes the outbound calls to applet report servers.
type ReportConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SecretsConfig holds the server-side key sealing workspace credentials.
type SecretsConfig struct {
	Key string `mapstructure:"key"`
}

type JobsConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxBackoffDelay time.Duration `mapstructure:"max_backoff_delay"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

type CacheConfig struct {
	ArbitraryTTL time.Duration `mapstructure:"arbitrary_ttl"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// DATABASE__HOST -> database.host
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "mindlogger_backend")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "mindlogger")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expire", 30*time.Minute)
	v.SetDefault("jwt.issuer", "mindlogger")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("push.base_url", "")
	v.SetDefault("push.app_id", "")
	v.SetDefault("push.app_secret", "")
	v.SetDefault("push.timeout", 10*time.Second)

	v.SetDefault("mail.region", "us-east-1")
	v.SetDefault("mail.from_email", "")
	v.SetDefault("mail.from_name", "MindLogger")

	v.SetDefault("report.timeout", 15*time.Second)

	v.SetDefault("secrets.key", "")

	v.SetDefault("jobs.max_retries", 5)
	v.SetDefault("jobs.base_delay", 2*time.Second)
	v.SetDefault("jobs.max_backoff_delay", 10*time.Minute)
	v.SetDefault("jobs.poll_interval", 2*time.Second)

	v.SetDefault("cache.arbitrary_ttl", 10*time.Minute)
}

func bindEnvVariables(v *viper.Viper) {
	// DATABASE__DB is the documented name for the database name
	v.BindEnv("database.dbname", "DATABASE__DB", "DATABASE__DBNAME")

	v.BindEnv("jwt.secret", "JWT__SECRET", "JWT_SECRET")
	v.BindEnv("secrets.key", "SECRETS__KEY", "SECRET_KEY")
}

// Validate reports configuration the server cannot start without.
func (c *Config) Validate() error {
	if c.Secrets.Key == "" {
		return fmt.Errorf("secrets.key is required to seal workspace credentials")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}

// GetEnvOrDefault returns the environment value or the given default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
