package config

import (
	"flag"
	"os"
	"strings"

	"github.com/dmitrijs2005/taskhub/internal/flagx"
)

var serverFlags = []string{
	"-a", "-storage", "-d",
	"-s", "-issuer", "-audience",
	"-session-lifetime", "-session-max-age", "-clock-skew",
	"-verify-ttl", "-reset-ttl", "-sso-ttl",
	"-revocation", "-redis-addr", "-redis-password",
	"-mailer", "-resend-key", "-resend-url", "-mail-from", "-app-url",
	"-managers", "-bcrypt-cost", "-production",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string                 gRPC bind address (e.g., ":50051")
//	-storage string           user store: postgres | memory
//	-d string                 PostgreSQL DSN
//	-s string                 session signing secret
//	-issuer, -audience string session credential iss / aud
//	-session-lifetime dur     session credential lifetime (e.g., 24h)
//	-session-max-age dur      absolute session age ceiling
//	-clock-skew dur           password-change tolerance
//	-verify-ttl, -reset-ttl, -sso-ttl dur
//	                          single-use token windows
//	-revocation string        revocation store: memory | redis
//	-redis-addr, -redis-password string
//	-mailer string            log | resend
//	-resend-key, -resend-url, -mail-from, -app-url string
//	-managers string          comma-separated manager emails
//	-bcrypt-cost int
//	-production               production logging
//
// Notes:
//   - os.Args is first filtered with flagx.FilterArgs so -c/-config and
//     anything meant for another component is ignored here.
//   - Durations use Go syntax ("90s", "2h").
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags, "-production")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.StorageBackend, "storage", config.StorageBackend, "user store backend (postgres|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "session signing secret")
	fs.StringVar(&config.TokenIssuer, "issuer", config.TokenIssuer, "session credential issuer")
	fs.StringVar(&config.TokenAudience, "audience", config.TokenAudience, "session credential audience")

	fs.DurationVar(&config.SessionLifetime, "session-lifetime", config.SessionLifetime, "session credential lifetime")
	fs.DurationVar(&config.SessionMaxAge, "session-max-age", config.SessionMaxAge, "absolute session age ceiling")
	fs.DurationVar(&config.ClockSkewTolerance, "clock-skew", config.ClockSkewTolerance, "password change clock skew tolerance")
	fs.DurationVar(&config.EmailVerificationTTL, "verify-ttl", config.EmailVerificationTTL, "email verification token lifetime")
	fs.DurationVar(&config.PasswordResetTTL, "reset-ttl", config.PasswordResetTTL, "password reset token lifetime")
	fs.DurationVar(&config.SSOTokenTTL, "sso-ttl", config.SSOTokenTTL, "sso handoff token lifetime")

	fs.StringVar(&config.RevocationBackend, "revocation", config.RevocationBackend, "revocation store (memory|redis)")
	fs.StringVar(&config.RedisAddr, "redis-addr", config.RedisAddr, "redis address")
	fs.StringVar(&config.RedisPassword, "redis-password", config.RedisPassword, "redis password")

	fs.StringVar(&config.MailerBackend, "mailer", config.MailerBackend, "mailer backend (log|resend)")
	fs.StringVar(&config.ResendAPIKey, "resend-key", config.ResendAPIKey, "resend api key")
	fs.StringVar(&config.ResendBaseURL, "resend-url", config.ResendBaseURL, "resend api base url")
	fs.StringVar(&config.MailFrom, "mail-from", config.MailFrom, "sender address")
	fs.StringVar(&config.AppBaseURL, "app-url", config.AppBaseURL, "base url for links in emails")

	managers := fs.String("managers", strings.Join(config.ManagerEmails, ","), "comma-separated manager emails")
	fs.IntVar(&config.BcryptCost, "bcrypt-cost", config.BcryptCost, "bcrypt cost")
	fs.BoolVar(&config.ProductionMode, "production", config.ProductionMode, "production mode")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ManagerEmails = splitList(*managers)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
