package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingSetting indicates a required configuration value is absent or invalid.
var ErrMissingSetting = errors.New("config: missing required setting")

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	Tokens    TokenSettings     `mapstructure:"tokens"`
	Mail      MailSettings      `mapstructure:"mail"`
	Bootstrap BootstrapSettings `mapstructure:"bootstrap"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Password  PasswordSettings  `mapstructure:"password"`
	CORS      CORSSettings      `mapstructure:"cors"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// IsDevelopment reports whether development-only behaviour should be enabled.
func (a AppSettings) IsDevelopment() bool {
	return a.Env == "development"
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection and key namespaces.
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	TokenPrefix     string `mapstructure:"token_prefix"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the domain event producer. An empty broker list selects the log-only publisher.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// JWTSettings mirrors the token signer options. Every field is required.
type JWTSettings struct {
	Issuer                      string `mapstructure:"issuer"`
	Audience                    string `mapstructure:"audience"`
	SecretKey                   string `mapstructure:"secret_key"`
	ExpiryInMinutes             int    `mapstructure:"expiry_in_minutes"`
	RefreshTokenExpiryInMinutes int    `mapstructure:"refresh_token_expiry_in_minutes"`
}

// AccessTokenTTL converts the configured access token lifetime to a duration.
func (j JWTSettings) AccessTokenTTL() time.Duration {
	return time.Duration(j.ExpiryInMinutes) * time.Minute
}

// RefreshTokenTTL converts the configured refresh token lifetime to a duration.
func (j JWTSettings) RefreshTokenTTL() time.Duration {
	return time.Duration(j.RefreshTokenExpiryInMinutes) * time.Minute
}

// LockoutSettings controls progressive account lockout.
type LockoutSettings struct {
	MaxFailedAttempts int `mapstructure:"max_failed_attempts"`
	BaseMinutes       int `mapstructure:"base_minutes"`
}

// TokenSettings controls one-time token lifetimes.
type TokenSettings struct {
	ConfirmationTTL time.Duration `mapstructure:"confirmation_ttl"`
	ResetTTL        time.Duration `mapstructure:"reset_ttl"`
}

// MailSettings configures outbound SMTP delivery. An empty host selects the log-only notifier.
type MailSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	From            string `mapstructure:"from"`
	FromName        string `mapstructure:"from_name"`
	ImplicitTLS     bool   `mapstructure:"implicit_tls"`
	ConfirmationURL string `mapstructure:"confirmation_url"`
}

// BootstrapSettings seeds the initial administrator. Seeding is skipped when either credential is empty.
type BootstrapSettings struct {
	AdminEmail     string `mapstructure:"admin_email"`
	AdminPassword  string `mapstructure:"admin_password"`
	AdminFirstName string `mapstructure:"admin_first_name"`
	AdminLastName  string `mapstructure:"admin_last_name"`
	AdminPhone     string `mapstructure:"admin_phone"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Enabled      bool    `mapstructure:"enabled"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration            time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts          int           `mapstructure:"login_max_attempts"`
	ForgotPasswordMaxAttempts int           `mapstructure:"forgot_password_max_attempts"`
	ForgotPasswordWindow      time.Duration `mapstructure:"forgot_password_window"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// PasswordSettings tunes the password policy. A zero strength score disables the zxcvbn rule.
type PasswordSettings struct {
	MinStrengthScore int `mapstructure:"min_strength_score"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
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
		"redis.token_prefix",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.issuer",
		"jwt.audience",
		"jwt.secret_key",
		"jwt.expiry_in_minutes",
		"jwt.refresh_token_expiry_in_minutes",
		"lockout.max_failed_attempts",
		"lockout.base_minutes",
		"tokens.confirmation_ttl",
		"tokens.reset_ttl",
		"mail.host",
		"mail.port",
		"mail.username",
		"mail.password",
		"mail.from",
		"mail.from_name",
		"mail.implicit_tls",
		"mail.confirmation_url",
		"bootstrap.admin_email",
		"bootstrap.admin_password",
		"bootstrap.admin_first_name",
		"bootstrap.admin_last_name",
		"bootstrap.admin_phone",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"telemetry.enabled",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.forgot_password_max_attempts",
		"rate_limit.forgot_password_window",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"password.min_strength_score",
		"cors.allowed_origins",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *AppConfig) Validate() error {
	required := []struct {
		key string
		ok  bool
	}{
		{"jwt.issuer", strings.TrimSpace(c.JWT.Issuer) != ""},
		{"jwt.audience", strings.TrimSpace(c.JWT.Audience) != ""},
		{"jwt.secret_key", c.JWT.SecretKey != ""},
		{"jwt.expiry_in_minutes", c.JWT.ExpiryInMinutes > 0},
		{"jwt.refresh_token_expiry_in_minutes", c.JWT.RefreshTokenExpiryInMinutes > 0},
	}

	for _, r := range required {
		if !r.ok {
			return fmt.Errorf("%w: %s", ErrMissingSetting, r.key)
		}
	}

	if c.Lockout.MaxFailedAttempts <= 0 {
		return fmt.Errorf("%w: lockout.max_failed_attempts must be positive", ErrMissingSetting)
	}
	if c.Lockout.BaseMinutes <= 0 {
		return fmt.Errorf("%w: lockout.base_minutes must be positive", ErrMissingSetting)
	}

	return nil
}

const envPrefix = "PROMPTINO"

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "promptino-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "promptino")
	v.SetDefault("postgres.password", "promptino_password")
	v.SetDefault("postgres.database", "promptino")
	v.SetDefault("postgres.schema", "promptino")
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
	v.SetDefault("redis.token_prefix", "promptino:token")
	v.SetDefault("redis.rate_limit_prefix", "promptino:rate-limit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "promptino")

	// JWT issuer, audience and secret have no defaults on purpose.
	v.SetDefault("jwt.expiry_in_minutes", 15)
	v.SetDefault("jwt.refresh_token_expiry_in_minutes", 10080)

	v.SetDefault("lockout.max_failed_attempts", 5)
	v.SetDefault("lockout.base_minutes", 5)

	v.SetDefault("tokens.confirmation_ttl", "24h")
	v.SetDefault("tokens.reset_ttl", "1h")

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from_name", "Promptino")
	v.SetDefault("mail.implicit_tls", false)
	v.SetDefault("mail.confirmation_url", "http://localhost:8080/api/v1/auth/confirm-email")

	v.SetDefault("bootstrap.admin_first_name", "Promptino")
	v.SetDefault("bootstrap.admin_last_name", "Admin")

	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "promptino-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.forgot_password_max_attempts", 3)
	v.SetDefault("rate_limit.forgot_password_window", "15m")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password.min_strength_score", 0)

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
