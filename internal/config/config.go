package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Email  EmailConfig  `mapstructure:"email"`
	Notify NotifyConfig `mapstructure:"notify"`

	v *viper.Viper
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EmailConfig holds email sending configuration
type EmailConfig struct {
	// Provider is the email provider to use: "smtp" (default) or "gmail"
	Provider string     `mapstructure:"provider"`
	SMTP     SMTPConfig `mapstructure:"smtp"`
	// Gmail holds Gmail API configuration, used when provider is "gmail"
	Gmail GmailConfig `mapstructure:"gmail"`
}

// SMTPConfig holds SMTP submission configuration
type SMTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
	// SenderAddress is the "From" email address
	SenderAddress string `mapstructure:"sender_address"`
	// SenderName is the display name for the sender
	SenderName string `mapstructure:"sender_name"`
}

// NotifyConfig holds notification dispatch settings
type NotifyConfig struct {
	// RecipientEmail is the fixed recipient of every notification
	RecipientEmail string `mapstructure:"recipient_email"`
	// AuthSecret is compared against the webhook source header
	AuthSecret string `mapstructure:"auth_secret"`
	// ExposeErrors includes error diagnostics in failure responses
	ExposeErrors bool `mapstructure:"expose_errors"`
}

// Delivery is the per-invocation snapshot of everything the dispatch
// pipeline needs to deliver one notification. Fields may be empty when
// the corresponding configuration value is absent; Report accounts for
// that.
type Delivery struct {
	Host      string
	Port      int
	User      string
	Pass      string
	Recipient string
	// AuthSecret is the expected webhook source marker
	AuthSecret string
}

// Report flags configuration problems for a single invocation.
// Each field is true when the value is missing or the check failed.
type Report struct {
	Host           bool `json:"host"`
	User           bool `json:"user"`
	Pass           bool `json:"pass"`
	Recipient      bool `json:"recipient"`
	Authentication bool `json:"authentication"`
}

// Report evaluates every readiness flag eagerly so a single response
// can name all missing fields at once. authenticated is the outcome of
// the webhook source check, kept as a separate input because it is a
// distinct concern even though the surfaced report merges them.
func (d Delivery) Report(authenticated bool) Report {
	return Report{
		Host:           d.Host == "",
		User:           d.User == "",
		Pass:           d.Pass == "",
		Recipient:      d.Recipient == "",
		Authentication: !authenticated,
	}
}

// Incomplete reports whether any readiness flag is raised.
func (r Report) Incomplete() bool {
	return r.Host || r.User || r.Pass || r.Recipient || r.Authentication
}

// Missing lists the raised flags by name, for logs and CLI output.
func (r Report) Missing() []string {
	var out []string
	if r.Host {
		out = append(out, "host")
	}
	if r.User {
		out = append(out, "user")
	}
	if r.Pass {
		out = append(out, "pass")
	}
	if r.Recipient {
		out = append(out, "recipient")
	}
	if r.Authentication {
		out = append(out, "authentication")
	}
	return out
}

// Delivery builds the delivery snapshot for the current invocation.
// Values are read through viper rather than from the unmarshaled
// struct so that credentials rotated in the environment between
// requests are picked up without a restart.
func (c *Config) Delivery() Delivery {
	return Delivery{
		Host:       c.v.GetString("email.smtp.host"),
		Port:       c.v.GetInt("email.smtp.port"),
		User:       c.v.GetString("email.smtp.user"),
		Pass:       c.v.GetString("email.smtp.pass"),
		Recipient:  c.v.GetString("notify.recipient_email"),
		AuthSecret: c.v.GetString("notify.auth_secret"),
	}
}

// ExposeErrors reports whether failure responses should carry
// diagnostic detail. Read live for the same reason as Delivery.
func (c *Config) ExposeErrors() bool {
	return c.v.GetBool("notify.expose_errors")
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/roomnotify")

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Bind environment variables
	v.SetEnvPrefix("ROOMNOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The upstream trigger deployment configures delivery through these
	// unprefixed names; keep accepting them alongside the prefixed form.
	bindLegacyEnv(v)

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.v = v

	return &cfg, nil
}

func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("email.smtp.host", "ROOMNOTIFY_EMAIL_SMTP_HOST", "EMAIL_HOST")
	v.BindEnv("email.smtp.port", "ROOMNOTIFY_EMAIL_SMTP_PORT", "EMAIL_PORT")
	v.BindEnv("email.smtp.user", "ROOMNOTIFY_EMAIL_SMTP_USER", "EMAIL_USER")
	v.BindEnv("email.smtp.pass", "ROOMNOTIFY_EMAIL_SMTP_PASS", "EMAIL_PASS")
	v.BindEnv("notify.recipient_email", "ROOMNOTIFY_NOTIFY_RECIPIENT_EMAIL", "OFFICE_MANAGER_EMAIL")
	v.BindEnv("notify.auth_secret", "ROOMNOTIFY_NOTIFY_AUTH_SECRET", "TRIGGER_AUTH")
	v.BindEnv("notify.expose_errors", "ROOMNOTIFY_NOTIFY_EXPOSE_ERRORS", "NOTIFY_EXPOSE_ERRORS")
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Email defaults
	v.SetDefault("email.provider", "smtp")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.gmail.sender_name", "Room Booking")

	// Notify defaults
	v.SetDefault("notify.expose_errors", false)
}
