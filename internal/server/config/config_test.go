package config

import (
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, StoragePostgres, c.StorageBackend)
	assert.Equal(t, 24*time.Hour, c.SessionLifetime)
	assert.Equal(t, 7*24*time.Hour, c.SessionMaxAge)
	assert.Equal(t, 10*time.Second, c.ClockSkewTolerance)
	assert.Equal(t, 24*time.Hour, c.EmailVerificationTTL)
	assert.Equal(t, 2*time.Hour, c.PasswordResetTTL)
	assert.Equal(t, 5*time.Minute, c.SSOTokenTTL)
	assert.Equal(t, RevocationMemory, c.RevocationBackend)
	assert.Equal(t, MailerLog, c.MailerBackend)
	assert.False(t, c.ProductionMode)

	require.NoError(t, c.Validate(), "defaults must be startable")
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"server"}

	c := LoadConfig()
	require.NotNil(t, c)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, want, *c)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		wantMsg string
	}{
		{name: "short secret", mutate: func(c *Config) { c.SecretKey = "short" }, wantErr: common.ErrWeakSecret},
		{name: "31 byte secret", mutate: func(c *Config) { c.SecretKey = "0123456789012345678901234567890" }, wantErr: common.ErrWeakSecret},
		{name: "32 byte secret", mutate: func(c *Config) { c.SecretKey = "01234567890123456789012345678901" }},
		{name: "dev secret in production", mutate: func(c *Config) { c.ProductionMode = true; c.StorageBackend = StorageMemory }, wantErr: common.ErrWeakSecret},
		{name: "own secret in production", mutate: func(c *Config) { c.ProductionMode = true; c.SecretKey = "01234567890123456789012345678901" }},
		{name: "zero session lifetime", mutate: func(c *Config) { c.SessionLifetime = 0 }, wantMsg: "session lifetime must be positive"},
		{name: "negative sso ttl", mutate: func(c *Config) { c.SSOTokenTTL = -time.Second }, wantMsg: "sso token ttl must be positive"},
		{name: "negative skew", mutate: func(c *Config) { c.ClockSkewTolerance = -time.Second }, wantMsg: "clock skew"},
		{name: "max age below lifetime", mutate: func(c *Config) { c.SessionMaxAge = time.Hour }, wantMsg: "session max age"},
		{name: "memory storage needs no dsn", mutate: func(c *Config) { c.StorageBackend = StorageMemory; c.DatabaseDSN = "" }},
		{name: "postgres needs dsn", mutate: func(c *Config) { c.DatabaseDSN = "" }, wantMsg: "database dsn"},
		{name: "unknown storage", mutate: func(c *Config) { c.StorageBackend = "mongo" }, wantMsg: "unknown storage"},
		{name: "redis needs addr", mutate: func(c *Config) { c.RevocationBackend = RevocationRedis; c.RedisAddr = "" }, wantMsg: "redis address"},
		{name: "unknown revocation", mutate: func(c *Config) { c.RevocationBackend = "etcd" }, wantMsg: "unknown revocation"},
		{name: "resend needs key", mutate: func(c *Config) { c.MailerBackend = MailerResend }, wantMsg: "resend api key"},
		{name: "unknown mailer", mutate: func(c *Config) { c.MailerBackend = "smtp" }, wantMsg: "unknown mailer"},
		{name: "bcrypt cost too high", mutate: func(c *Config) { c.BcryptCost = 99 }, wantMsg: "bcrypt cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)

			err := c.Validate()
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantMsg)
			default:
				require.NoError(t, err)
			}
		})
	}
}
