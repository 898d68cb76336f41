package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	OTP       OTPSettings       `mapstructure:"otp"`
	TwoFactor TwoFactorSettings `mapstructure:"two_factor"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	SMS       SMSSettings       `mapstructure:"sms"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name               string   `mapstructure:"name"`
	Env                string   `mapstructure:"env"`
	Host               string   `mapstructure:"host"`
	Port               int      `mapstructure:"port"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the volatile store connection and TLS.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the audit event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// JWTSettings configures token signing. The shared secret drives HS256; the
// claim shapes stay stable if the signer is swapped for an asymmetric one.
type JWTSettings struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	TempTokenTTL    time.Duration `mapstructure:"temp_token_ttl"`
	PendingTokenTTL time.Duration `mapstructure:"pending_token_ttl"`
}

// OTPSettings bounds the one-time code lifecycle.
type OTPSettings struct {
	Length           int           `mapstructure:"length"`
	Expiry           time.Duration `mapstructure:"expiry"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RateLimitPerHour int           `mapstructure:"rate_limit_per_hour"`
}

// TwoFactorSettings configures TOTP provisioning and recovery codes.
type TwoFactorSettings struct {
	Issuer            string `mapstructure:"issuer"`
	RecoveryCodeCount int    `mapstructure:"recovery_code_count"`
}

// LockoutSettings bounds brute-force attempts on the login path.
type LockoutSettings struct {
	Window           time.Duration `mapstructure:"window"`
	MaxEmailFailures int           `mapstructure:"max_email_failures"`
	MaxIPFailures    int           `mapstructure:"max_ip_failures"`
}

// SMSSettings configures delivery retry behaviour.
type SMSSettings struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

// Argon2Settings configures Argon2id secret hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type TelemetrySettings struct {
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IDENTITY")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.secret",
		"jwt.issuer",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.temp_token_ttl",
		"jwt.pending_token_ttl",
		"otp.length",
		"otp.expiry",
		"otp.max_attempts",
		"otp.rate_limit_per_hour",
		"two_factor.issuer",
		"two_factor.recovery_code_count",
		"lockout.window",
		"lockout.max_email_failures",
		"lockout.max_ip_failures",
		"sms.max_retries",
		"sms.base_delay",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"telemetry.metrics_namespace",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "identity")
	v.SetDefault("postgres.password", "identity_password")
	v.SetDefault("postgres.database", "identity")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "identity")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "identity")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.issuer", "zaed.org")
	v.SetDefault("jwt.access_token_ttl", "1h")
	v.SetDefault("jwt.refresh_token_ttl", "168h")
	v.SetDefault("jwt.temp_token_ttl", "15m")
	v.SetDefault("jwt.pending_token_ttl", "5m")

	v.SetDefault("otp.length", 6)
	v.SetDefault("otp.expiry", "5m")
	v.SetDefault("otp.max_attempts", 3)
	v.SetDefault("otp.rate_limit_per_hour", 3)

	v.SetDefault("two_factor.issuer", "Zaed")
	v.SetDefault("two_factor.recovery_code_count", 10)

	v.SetDefault("lockout.window", "15m")
	v.SetDefault("lockout.max_email_failures", 5)
	v.SetDefault("lockout.max_ip_failures", 10)

	v.SetDefault("sms.max_retries", 3)
	v.SetDefault("sms.base_delay", "1s")

	v.SetDefault("argon2.memory", 65536)
	v.SetDefault("argon2.iterations", 1)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("telemetry.metrics_namespace", "identity")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
