package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Server struct {
		Addr         string        `mapstructure:"addr"`
		BasePath     string        `mapstructure:"base_path"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`
	DB struct {
		Driver   string `mapstructure:"driver"`
		Path     string `mapstructure:"path"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Auth struct {
		OktaDomain      string `mapstructure:"okta_domain"`
		ClientID        string `mapstructure:"client_id"`
		ClientSecret    string `mapstructure:"client_secret"`
		RedirectURL     string `mapstructure:"redirect_url"`
		SwaggerClientID string `mapstructure:"swagger_client_id"`
		TrustHeaders    bool   `mapstructure:"trust_headers"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
	Workflow struct {
		RetryAttempts        int           `mapstructure:"retry_attempts"`
		RetryBackoff         time.Duration `mapstructure:"retry_backoff"`
		IncubationTargetDays int           `mapstructure:"incubation_target_days"`
		DefaultIncubatorID   string        `mapstructure:"default_incubator_id"`
	} `mapstructure:"workflow"`
	Notifications struct {
		Channels   []string      `mapstructure:"channels"`
		WebhookURL string        `mapstructure:"webhook_url"`
		Timeout    time.Duration `mapstructure:"timeout"`
		SMTP       struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			Username string `mapstructure:"username"`
			Password string `mapstructure:"password"`
			From     string `mapstructure:"from"`
		} `mapstructure:"smtp"`
	} `mapstructure:"notifications"`
	Logging struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"logging"`
	Telemetry struct {
		Enabled        bool          `mapstructure:"enabled"`
		Stdout         bool          `mapstructure:"stdout"`
		MetricInterval time.Duration `mapstructure:"metric_interval"`
	} `mapstructure:"telemetry"`
}

// EnvPrefix prefixes every environment override, e.g. IDEAFLOW_DB_DRIVER.
const EnvPrefix = "IDEAFLOW"

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("dev_mode_bypass", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_path", "/api/v1")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "ideaflow.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "ideaflow")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")

	// every key needs a default for AutomaticEnv to reach it during Unmarshal
	for _, key := range []string{
		"auth.okta_domain", "auth.client_id", "auth.client_secret",
		"auth.redirect_url", "auth.swagger_client_id",
		"tls.cert_file", "tls.key_file",
		"workflow.default_incubator_id",
		"notifications.webhook_url",
		"notifications.smtp.host", "notifications.smtp.username",
		"notifications.smtp.password", "notifications.smtp.from",
		"logging.file",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("auth.trust_headers", false)
	v.SetDefault("tls.enable", false)
	v.SetDefault("tls.hostnames", []string{"localhost"})

	v.SetDefault("workflow.retry_attempts", 3)
	v.SetDefault("workflow.retry_backoff", 150*time.Millisecond)
	v.SetDefault("workflow.incubation_target_days", 180)

	v.SetDefault("notifications.channels", []string{"log"})
	v.SetDefault("notifications.timeout", 10*time.Second)
	v.SetDefault("notifications.smtp.port", 25)

	v.SetDefault("logging.level", "info")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", true)
	v.SetDefault("telemetry.metric_interval", 30*time.Second)
}

// LoadConfig loads the configuration from a file and the environment. With
// an empty path it looks for config.yaml in . and ./config and tolerates its
// absence; an explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)
	config.DB.Driver = strings.ToLower(strings.TrimSpace(config.DB.Driver))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return errors.New("db.path is required for the sqlite driver")
		}
	case "postgres":
		if c.DB.Host == "" || c.DB.Name == "" {
			return errors.New("db.host and db.name are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported db.driver %q (want sqlite or postgres)", c.DB.Driver)
	}
	if c.Workflow.RetryAttempts < 1 {
		return fmt.Errorf("workflow.retry_attempts must be positive, got %d", c.Workflow.RetryAttempts)
	}
	if c.Workflow.RetryBackoff < 0 {
		return fmt.Errorf("workflow.retry_backoff must not be negative, got %s", c.Workflow.RetryBackoff)
	}
	if c.Workflow.IncubationTargetDays < 1 {
		return fmt.Errorf("workflow.incubation_target_days must be positive, got %d", c.Workflow.IncubationTargetDays)
	}
	if c.TLS.Enable && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return errors.New("tls.cert_file and tls.key_file are required when tls is enabled")
	}
	return nil
}

// PostgresDSN builds the pgx connection string from the db section.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": {c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// normalizeOktaIssuer ensures the provided Okta issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact.
func normalizeOktaIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
