package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/flagx"
	"github.com/dmitrijs2005/taskhub/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration, decoded from JSON
// or YAML. Durations accept "90s"-style strings or integer nanoseconds.
// Keys that are absent leave the current value untouched.
type FileConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	StorageBackend   string `json:"storage_backend" yaml:"storage_backend"`
	DatabaseDSN      string `json:"database_dsn" yaml:"database_dsn"`

	SecretKey     string `json:"secret_key" yaml:"secret_key"`
	TokenIssuer   string `json:"token_issuer" yaml:"token_issuer"`
	TokenAudience string `json:"token_audience" yaml:"token_audience"`

	SessionLifetime      timex.Duration `json:"session_lifetime" yaml:"session_lifetime"`
	SessionMaxAge        timex.Duration `json:"session_max_age" yaml:"session_max_age"`
	ClockSkewTolerance   timex.Duration `json:"clock_skew_tolerance" yaml:"clock_skew_tolerance"`
	EmailVerificationTTL timex.Duration `json:"email_verification_ttl" yaml:"email_verification_ttl"`
	PasswordResetTTL     timex.Duration `json:"password_reset_ttl" yaml:"password_reset_ttl"`
	SSOTokenTTL          timex.Duration `json:"sso_token_ttl" yaml:"sso_token_ttl"`

	RevocationBackend string `json:"revocation_backend" yaml:"revocation_backend"`
	RedisAddr         string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword     string `json:"redis_password" yaml:"redis_password"`

	MailerBackend string `json:"mailer_backend" yaml:"mailer_backend"`
	ResendAPIKey  string `json:"resend_api_key" yaml:"resend_api_key"`
	ResendBaseURL string `json:"resend_base_url" yaml:"resend_base_url"`
	MailFrom      string `json:"mail_from" yaml:"mail_from"`
	AppBaseURL    string `json:"app_base_url" yaml:"app_base_url"`

	ManagerEmails  []string `json:"manager_emails" yaml:"manager_emails"`
	BcryptCost     int      `json:"bcrypt_cost" yaml:"bcrypt_cost"`
	ProductionMode *bool    `json:"production_mode" yaml:"production_mode"`
}

// parseFile loads the file named by -c/-config, if any, and overlays it on
// config. A .yaml or .yml extension selects YAML; anything else is JSON.
// An unreadable or malformed file panics, as a broken config must stop
// startup.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag(os.Args[1:])
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(config)
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.StorageBackend, fc.StorageBackend)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)

	setString(&c.SecretKey, fc.SecretKey)
	setString(&c.TokenIssuer, fc.TokenIssuer)
	setString(&c.TokenAudience, fc.TokenAudience)

	setDuration(&c.SessionLifetime, fc.SessionLifetime)
	setDuration(&c.SessionMaxAge, fc.SessionMaxAge)
	setDuration(&c.ClockSkewTolerance, fc.ClockSkewTolerance)
	setDuration(&c.EmailVerificationTTL, fc.EmailVerificationTTL)
	setDuration(&c.PasswordResetTTL, fc.PasswordResetTTL)
	setDuration(&c.SSOTokenTTL, fc.SSOTokenTTL)

	setString(&c.RevocationBackend, fc.RevocationBackend)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.RedisPassword, fc.RedisPassword)

	setString(&c.MailerBackend, fc.MailerBackend)
	setString(&c.ResendAPIKey, fc.ResendAPIKey)
	setString(&c.ResendBaseURL, fc.ResendBaseURL)
	setString(&c.MailFrom, fc.MailFrom)
	setString(&c.AppBaseURL, fc.AppBaseURL)

	if len(fc.ManagerEmails) > 0 {
		c.ManagerEmails = fc.ManagerEmails
	}
	if fc.BcryptCost != 0 {
		c.BcryptCost = fc.BcryptCost
	}
	if fc.ProductionMode != nil {
		c.ProductionMode = *fc.ProductionMode
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
