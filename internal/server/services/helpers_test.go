package services

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/logging"
	"github.com/dmitrijs2005/taskhub/internal/server/auth"
	"github.com/dmitrijs2005/taskhub/internal/server/config"
	"github.com/dmitrijs2005/taskhub/internal/server/mailer"
	"github.com/dmitrijs2005/taskhub/internal/server/models"
	"github.com/dmitrijs2005/taskhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskhub/internal/server/revocation"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

// newFakeClock starts at the current wall time so that timestamps the
// memory store takes from time.Now stay consistent with it.
func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type sentMail struct {
	to       string
	template string
	data     map[string]any
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentMail
	failOn map[string]error
}

func (n *fakeNotifier) SendTemplated(_ context.Context, to, template string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failOn[template]; err != nil {
		return err
	}
	n.sent = append(n.sent, sentMail{to: to, template: template, data: data})
	return nil
}

func (n *fakeNotifier) fail(template string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOn == nil {
		n.failOn = map[string]error{}
	}
	n.failOn[template] = err
}

func (n *fakeNotifier) count(template string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.template == template {
			c++
		}
	}
	return c
}

// lastToken extracts the token from the link of the latest mail with the
// given template.
func (n *fakeNotifier) lastToken(t *testing.T, template string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].template != template {
			continue
		}
		link, _ := n.sent[i].data["Link"].(string)
		u, err := url.Parse(link)
		require.NoError(t, err)
		tok := u.Query().Get("token")
		require.NotEmpty(t, tok)
		return tok
	}
	t.Fatalf("no %s mail sent", template)
	return ""
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(_ context.Context, msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(_ context.Context, msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(_ context.Context, msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(_ context.Context, msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) With(...any) logging.Logger {
	return l
}

// value returns the value logged under key by the latest entry with msg.
func (l *recordingLogger) value(msg, key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.msg != msg {
			continue
		}
		for j := 0; j+1 < len(e.args); j += 2 {
			if e.args[j] == key {
				return e.args[j+1], true
			}
		}
		return nil, false
	}
	return nil, false
}

const testSecret = "test-secret-0123456789abcdefghijklmnop"

type harness struct {
	cfg      *config.Config
	clock    *fakeClock
	repos    *repomanager.MemoryRepositoryManager
	revoked  *revocation.MemoryStore
	mail     *fakeNotifier
	log      *recordingLogger
	codec    *auth.Codec
	accounts *AccountService
	sso      *SSOService
	verifier *SessionVerifier
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = testSecret
	cfg.StorageBackend = config.StorageMemory
	cfg.BcryptCost = bcrypt.MinCost
	cfg.AppBaseURL = "https://app.example/"
	for _, m := range mutate {
		m(cfg)
	}

	h := &harness{
		cfg:     cfg,
		clock:   newFakeClock(),
		repos:   repomanager.NewMemoryRepositoryManager(),
		revoked: revocation.NewMemoryStore(),
		mail:    &fakeNotifier{},
		log:     &recordingLogger{},
	}
	t.Cleanup(h.revoked.Close)

	codec, err := auth.NewCodec(cfg.SecretKey, cfg.TokenIssuer, cfg.TokenAudience, cfg.SessionLifetime)
	require.NoError(t, err)
	h.codec = codec.WithClock(h.clock.Now)

	h.accounts, err = NewAccountService(h.repos, h.codec, h.revoked, h.mail, cfg, h.log)
	require.NoError(t, err)
	h.accounts.now = h.clock.Now

	h.sso = NewSSOService(h.accounts, h.repos, cfg, h.log)
	h.sso.now = h.clock.Now

	h.verifier = NewSessionVerifier(h.codec, h.revoked, h.repos, cfg, h.log)
	h.verifier.now = h.clock.Now

	return h
}

// registerVerified registers an account and confirms its email.
func (h *harness) registerVerified(t *testing.T, name, email, password string) *models.User {
	t.Helper()
	ctx := context.Background()

	u, err := h.accounts.Register(ctx, name, email, password)
	require.NoError(t, err)

	_, err = h.accounts.VerifyEmail(ctx, h.mail.lastToken(t, mailer.TemplateVerifyEmail))
	require.NoError(t, err)
	return u
}

func (h *harness) stored(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := h.repos.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}
