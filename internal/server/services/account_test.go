package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/dmitrijs2005/taskhub/internal/server/config"
	"github.com/dmitrijs2005/taskhub/internal/server/mailer"
	"github.com/dmitrijs2005/taskhub/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	u, err := h.accounts.Register(ctx, " Ana ", "Ana@Example.com", "pw-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, models.RoleMember, u.Role)
	assert.False(t, u.EmailVerified)
	assert.Empty(t, u.PasswordHash, "public view carries no hash")
	assert.True(t, u.EmailVerification.IsZero(), "public view carries no token")

	require.Equal(t, 1, h.mail.count(mailer.TemplateVerifyEmail))
	assert.Equal(t, "ana@example.com", h.mail.sent[0].to)
	assert.True(t, strings.HasPrefix(h.mail.sent[0].data["Link"].(string), "https://app.example/verify-email?token="))

	stored := h.stored(t, u.ID)
	assert.Equal(t, h.mail.lastToken(t, mailer.TemplateVerifyEmail), stored.EmailVerification.Value)
	assert.Equal(t, h.clock.Now().Add(24*time.Hour), stored.EmailVerification.ExpiresAt)
	assert.NotEqual(t, "pw-1", stored.PasswordHash)
}

func TestRegister_ManagerEmail(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.ManagerEmails = []string{"Boss@Example.com"} })

	u, err := h.accounts.Register(context.Background(), "Boss", "boss@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, u.Role)
}

func TestRegister_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.accounts.Register(ctx, "", "a@example.com", "pw")
	require.ErrorIs(t, err, common.ErrMissingInput)
	_, err = h.accounts.Register(ctx, "Ana", " ", "pw")
	require.ErrorIs(t, err, common.ErrMissingInput)
	_, err = h.accounts.Register(ctx, "Ana", "a@example.com", "")
	require.ErrorIs(t, err, common.ErrMissingInput)

	_, err = h.accounts.Register(ctx, "Ana", "a@example.com", "pw")
	require.NoError(t, err)
	_, err = h.accounts.Register(ctx, "Other", "A@EXAMPLE.COM", "pw")
	require.ErrorIs(t, err, common.ErrEmailTaken)
}

func TestRegister_RollsBackWhenEmailFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mail.fail(mailer.TemplateVerifyEmail, errors.New("smtp down"))

	_, err := h.accounts.Register(ctx, "Ana", "ana@example.com", "pw-1")
	require.Error(t, err)

	_, err = h.repos.Users().GetByEmail(ctx, "ana@example.com")
	require.ErrorIs(t, err, common.ErrorNotFound, "no unreachable account left behind")

	h.mail.fail(mailer.TemplateVerifyEmail, nil)
	_, err = h.accounts.Register(ctx, "Ana", "ana@example.com", "pw-1")
	require.NoError(t, err, "the address is free again")
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u, err := h.accounts.Register(ctx, "Ana", "ana@example.com", "pw-1")
	require.NoError(t, err)
	token := h.mail.lastToken(t, mailer.TemplateVerifyEmail)

	msg, err := h.accounts.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, MsgEmailVerified, msg)

	stored := h.stored(t, u.ID)
	assert.True(t, stored.EmailVerified)
	assert.True(t, stored.EmailVerification.IsZero())
	assert.Equal(t, 1, h.mail.count(mailer.TemplateWelcome))

	_, err = h.accounts.VerifyEmail(ctx, token)
	require.ErrorIs(t, err, common.ErrInvalidToken, "replay")

	_, err = h.accounts.VerifyEmail(ctx, "")
	require.ErrorIs(t, err, common.ErrMissingInput)
}

func TestVerifyEmail_Expired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u, err := h.accounts.Register(ctx, "Ana", "ana@example.com", "pw-1")
	require.NoError(t, err)
	token := h.mail.lastToken(t, mailer.TemplateVerifyEmail)

	h.clock.Advance(24*time.Hour + time.Second)

	_, err = h.accounts.VerifyEmail(ctx, token)
	require.ErrorIs(t, err, common.ErrTokenExpired)

	stored := h.stored(t, u.ID)
	assert.False(t, stored.EmailVerified)
	assert.Equal(t, token, stored.EmailVerification.Value, "stale tokens are not swept")

	_, err = h.accounts.VerifyEmail(ctx, token)
	require.ErrorIs(t, err, common.ErrTokenExpired, "and keep failing")
}

func TestVerifyEmail_ExactExpiryStillValid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.accounts.Register(ctx, "Ana", "ana@example.com", "pw-1")
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)

	_, err = h.accounts.VerifyEmail(ctx, h.mail.lastToken(t, mailer.TemplateVerifyEmail))
	require.NoError(t, err, "expired means strictly after the timestamp")
}

func TestVerifyEmail_WelcomeFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u, err := h.accounts.Register(ctx, "Ana", "ana@example.com", "pw-1")
	require.NoError(t, err)
	h.mail.fail(mailer.TemplateWelcome, errors.New("smtp down"))

	_, err = h.accounts.VerifyEmail(ctx, h.mail.lastToken(t, mailer.TemplateVerifyEmail))
	require.NoError(t, err)
	assert.True(t, h.stored(t, u.ID).EmailVerified)
}

func TestResendVerification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.accounts.Register(ctx, "Ana", "ana@example.com", "pw-1")
	require.NoError(t, err)
	first := h.mail.lastToken(t, mailer.TemplateVerifyEmail)

	h.clock.Advance(23 * time.Hour)
	msg, err := h.accounts.ResendVerification(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, MsgVerificationSent, msg)
	second := h.mail.lastToken(t, mailer.TemplateVerifyEmail)
	require.NotEqual(t, first, second)

	_, err = h.accounts.VerifyEmail(ctx, first)
	require.ErrorIs(t, err, common.ErrInvalidToken, "overwritten token is dead")

	h.clock.Advance(2 * time.Hour)
	_, err = h.accounts.VerifyEmail(ctx, second)
	require.NoError(t, err, "fresh 24h window")

	_, err = h.accounts.ResendVerification(ctx, "ana@example.com")
	require.ErrorIs(t, err, common.ErrAlreadyVerified)
}

func TestResendVerification_UnknownEmail(t *testing.T) {
	h := newHarness(t)

	msg, err := h.accounts.ResendVerification(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, MsgVerificationSent, msg)
	assert.Equal(t, 0, h.mail.count(mailer.TemplateVerifyEmail))

	_, err = h.accounts.ResendVerification(context.Background(), "")
	require.ErrorIs(t, err, common.ErrMissingInput)
}

func TestResendVerification_SendFailureKeepsPreviousToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.accounts.Register(ctx, "Ana", "ana@example.com", "pw-1")
	require.NoError(t, err)
	first := h.mail.lastToken(t, mailer.TemplateVerifyEmail)

	h.mail.fail(mailer.TemplateVerifyEmail, errors.New("smtp down"))
	_, err = h.accounts.ResendVerification(ctx, "ana@example.com")
	require.Error(t, err)

	_, err = h.accounts.VerifyEmail(ctx, first)
	require.NoError(t, err)
}

func TestRequestPasswordReset_IdenticalReplies(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.registerVerified(t, "Ana", "ana@example.com", "pw-1")

	known, errKnown := h.accounts.RequestPasswordReset(ctx, "ana@example.com")
	unknown, errUnknown := h.accounts.RequestPasswordReset(ctx, "ghost@example.com")

	require.NoError(t, errKnown)
	require.NoError(t, errUnknown)
	assert.Equal(t, []byte(known), []byte(unknown))

	assert.Equal(t, 1, h.mail.count(mailer.TemplateResetPassword), "only the real account gets a token")
	stored := h.stored(t, u.ID)
	assert.Equal(t, h.mail.lastToken(t, mailer.TemplateResetPassword), stored.PasswordReset.Value)
	assert.Equal(t, h.clock.Now().Add(2*time.Hour), stored.PasswordReset.ExpiresAt)
}

func TestRequestPasswordReset_Preconditions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.accounts.Register(ctx, "Ana", "ana@example.com", "pw-1")
	require.NoError(t, err)

	_, err = h.accounts.RequestPasswordReset(ctx, "ana@example.com")
	require.ErrorIs(t, err, common.ErrEmailUnverified)

	_, err = h.accounts.RequestPasswordReset(ctx, "")
	require.ErrorIs(t, err, common.ErrMissingInput)
}

func TestRequestPasswordReset_SendFailureIssuesNoToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.registerVerified(t, "Ana", "ana@example.com", "pw-1")
	h.mail.fail(mailer.TemplateResetPassword, errors.New("smtp down"))

	_, err := h.accounts.RequestPasswordReset(ctx, "ana@example.com")
	require.Error(t, err)
	assert.True(t, h.stored(t, u.ID).PasswordReset.IsZero())
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.registerVerified(t, "Ana", "ana@example.com", "pw-1")

	_, err := h.accounts.RequestPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	token := h.mail.lastToken(t, mailer.TemplateResetPassword)

	msg, err := h.accounts.ResetPassword(ctx, token, "pw-2")
	require.NoError(t, err)
	assert.Equal(t, MsgPasswordReset, msg)
	assert.Equal(t, 1, h.mail.count(mailer.TemplatePasswordChanged))
	assert.True(t, h.stored(t, u.ID).PasswordReset.IsZero())

	_, err = h.accounts.Login(ctx, "ana@example.com", "pw-1")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = h.accounts.Login(ctx, "ana@example.com", "pw-2")
	require.NoError(t, err)

	_, err = h.accounts.ResetPassword(ctx, token, "pw-3")
	require.ErrorIs(t, err, common.ErrInvalidToken, "replay")
}

func TestResetPassword_Guards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerVerified(t, "Ana", "ana@example.com", "pw-1")
	_, err := h.accounts.RequestPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	token := h.mail.lastToken(t, mailer.TemplateResetPassword)

	_, err = h.accounts.ResetPassword(ctx, "", "pw-2")
	require.ErrorIs(t, err, common.ErrMissingInput)
	_, err = h.accounts.ResetPassword(ctx, token, "")
	require.ErrorIs(t, err, common.ErrMissingInput)
	_, err = h.accounts.ResetPassword(ctx, "nope", "pw-2")
	require.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = h.accounts.ResetPassword(ctx, token, "pw-1")
	require.ErrorIs(t, err, common.ErrSamePassword)

	_, err = h.accounts.ResetPassword(ctx, token, "pw-2")
	require.NoError(t, err, "the same-password guard does not burn the token")
}

func TestResetPassword_Expired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.registerVerified(t, "Ana", "ana@example.com", "pw-1")
	_, err := h.accounts.RequestPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	token := h.mail.lastToken(t, mailer.TemplateResetPassword)

	h.clock.Advance(2*time.Hour + time.Second)

	_, err = h.accounts.ResetPassword(ctx, token, "pw-2")
	require.ErrorIs(t, err, common.ErrTokenExpired)

	_, err = h.accounts.Login(ctx, "ana@example.com", "pw-1")
	require.NoError(t, err, "password untouched")
	assert.Equal(t, token, h.stored(t, u.ID).PasswordReset.Value)
}

func TestResetPassword_ConcurrentAtMostOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerVerified(t, "Ana", "ana@example.com", "pw-1")
	_, err := h.accounts.RequestPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	token := h.mail.lastToken(t, mailer.TemplateResetPassword)

	const n = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		other []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.accounts.ResetPassword(ctx, token, "pw-new")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			other = append(other, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range other {
		assert.True(t, errors.Is(err, common.ErrAlreadyConsumed) || errors.Is(err, common.ErrInvalidToken), "got %v", err)
	}
	assert.Equal(t, 1, h.mail.count(mailer.TemplatePasswordChanged))
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.registerVerified(t, "Ana", "ana@example.com", "pw-1")

	g, err := h.accounts.Login(ctx, "ANA@example.com", "pw-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, g.User.ID)
	assert.Empty(t, g.User.PasswordHash)

	s, err := h.codec.ParseSession(g.SessionCredential)
	require.NoError(t, err)
	assert.Equal(t, u.ID, s.SubjectID)

	_, errWrong := h.accounts.Login(ctx, "ana@example.com", "wrong")
	_, errUnknown := h.accounts.Login(ctx, "ghost@example.com", "pw-1")
	require.ErrorIs(t, errWrong, common.ErrInvalidCredentials)
	require.ErrorIs(t, errUnknown, common.ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())

	_, err = h.accounts.Login(ctx, "", "pw-1")
	require.ErrorIs(t, err, common.ErrMissingInput)
}

func TestLogin_Unverified(t *testing.T) {
	h := newHarness(t)
	_, err := h.accounts.Register(context.Background(), "Ana", "ana@example.com", "pw-1")
	require.NoError(t, err)

	_, err = h.accounts.Login(context.Background(), "ana@example.com", "pw-1")
	require.ErrorIs(t, err, common.ErrEmailUnverified)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerVerified(t, "Ana", "ana@example.com", "pw-1")
	cred := login(t, h, "ana@example.com", "pw-1")

	msg, err := h.accounts.Logout(ctx, cred)
	require.NoError(t, err)
	assert.Equal(t, MsgLoggedOut, msg)

	revoked, err := h.revoked.IsRevoked(ctx, cred)
	require.NoError(t, err)
	assert.True(t, revoked)

	other := login(t, h, "ana@example.com", "pw-1")
	_, err = h.verifier.Authenticate(ctx, other)
	require.NoError(t, err, "other sessions are unaffected")

	_, err = h.accounts.Logout(ctx, "")
	require.ErrorIs(t, err, common.ErrMissingInput)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.registerVerified(t, "Ana", "ana@example.com", "pw-1")

	_, err := h.accounts.ChangePassword(ctx, u.ID, "wrong", "pw-2")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = h.accounts.ChangePassword(ctx, u.ID, "pw-1", "pw-1")
	require.ErrorIs(t, err, common.ErrSamePassword)
	_, err = h.accounts.ChangePassword(ctx, u.ID, "pw-1", "")
	require.ErrorIs(t, err, common.ErrMissingInput)
	_, err = h.accounts.ChangePassword(ctx, "ghost", "pw-1", "pw-2")
	require.ErrorIs(t, err, common.ErrorNotFound)

	h.clock.Advance(time.Minute)
	g, err := h.accounts.ChangePassword(ctx, u.ID, "pw-1", "pw-2")
	require.NoError(t, err)
	assert.NotEmpty(t, g.SessionCredential)
	assert.Equal(t, h.clock.Now(), h.stored(t, u.ID).PasswordChangedAt)
	assert.Equal(t, 1, h.mail.count(mailer.TemplatePasswordChanged))
}

func TestWhoamiAndDeleteUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.registerVerified(t, "Ana", "ana@example.com", "pw-1")

	me, err := h.accounts.Whoami(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", me.Name)
	assert.True(t, me.EmailVerified)
	assert.Empty(t, me.PasswordHash)

	msg, err := h.accounts.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, MsgUserDeleted, msg)

	_, err = h.accounts.DeleteUser(ctx, u.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = h.accounts.Whoami(ctx, u.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = h.accounts.DeleteUser(ctx, "")
	require.ErrorIs(t, err, common.ErrMissingInput)
	_, err = h.accounts.DeleteUser(ctx, "not-a-uuid")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

// heldNotifier parks every send until release is closed.
type heldNotifier struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (n *heldNotifier) SendTemplated(context.Context, string, string, map[string]any) error {
	n.once.Do(func() { close(n.entered) })
	<-n.release
	return nil
}

func TestRegister_SlowMailDoesNotStallSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerVerified(t, "Ana", "ana@example.com", "pw-1")
	cred := login(t, h, "ana@example.com", "pw-1")

	slow := &heldNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	accounts, err := NewAccountService(h.repos, h.codec, h.revoked, slow, h.cfg, h.log)
	require.NoError(t, err)

	registered := make(chan error, 1)
	go func() {
		_, err := accounts.Register(ctx, "Bo", "bo@example.com", "pw-1")
		registered <- err
	}()
	<-slow.entered

	authenticated := make(chan error, 1)
	go func() {
		_, err := h.verifier.Authenticate(ctx, cred)
		authenticated <- err
	}()

	select {
	case err := <-authenticated:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Authenticate waited for a registration email")
	}

	close(slow.release)
	require.NoError(t, <-registered)
	_, err = h.repos.Users().GetByEmail(ctx, "bo@example.com")
	require.NoError(t, err)
}
