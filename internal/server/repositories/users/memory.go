package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/dmitrijs2005/taskhub/internal/server/models"
	"github.com/google/uuid"
)

type memoryState struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	emails map[string]string
}

func newMemoryState() *memoryState {
	return &memoryState{
		byID:   make(map[string]*models.User),
		emails: make(map[string]string),
	}
}

// clone copies the maps and every user. The caller holds mu.
func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		byID:   make(map[string]*models.User, len(s.byID)),
		emails: make(map[string]string, len(s.emails)),
	}
	for k, v := range s.byID {
		c.byID[k] = copyUser(v)
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	return c
}

// mutation is one write, replayable against any state.
type mutation func(st *memoryState) error

// MemoryRepository keeps users in process memory. It backs the "memory"
// storage mode and the service tests. Single operations run under one
// mutex, which also makes ConsumeToken a true compare-and-clear.
type MemoryRepository struct {
	st *memoryState
	// journal is set on the view handed to WithTx callbacks. That view
	// works on a private snapshot and records its writes for commit.
	journal *[]mutation
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{st: newMemoryState(), now: time.Now}
}

func (r *MemoryRepository) read(fn func(st *memoryState)) {
	if r.journal == nil {
		r.st.mu.Lock()
		defer r.st.mu.Unlock()
	}
	fn(r.st)
}

func (r *MemoryRepository) write(m mutation) error {
	if r.journal != nil {
		if err := m(r.st); err != nil {
			return err
		}
		*r.journal = append(*r.journal, m)
		return nil
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return m(r.st)
}

// WithTx runs fn against a snapshot of the store without holding the lock,
// so slow work inside fn (sending mail) does not stall other callers. On
// success the recorded writes are replayed under the lock; if any of them
// no longer applies, for example a token consumed in the meantime, none of
// them are kept and its error is returned. If fn fails or panics nothing
// is applied.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if r.journal != nil {
		return fn(ctx, r)
	}

	r.st.mu.Lock()
	snapshot := r.st.clone()
	r.st.mu.Unlock()

	var journal []mutation
	if err := fn(ctx, &MemoryRepository{st: snapshot, journal: &journal, now: r.now}); err != nil {
		return err
	}

	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	before := r.st.clone()
	for _, m := range journal {
		if err := m(r.st); err != nil {
			r.st.byID, r.st.emails = before.byID, before.emails
			return err
		}
	}
	return nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	now := r.now()
	created := copyUser(user)
	created.ID = uuid.NewString()
	created.Email = models.NormalizeEmail(user.Email)
	created.CreatedAt = now
	created.UpdatedAt = now
	// whole seconds, like the iat of the credentials it is compared with
	created.PasswordChangedAt = now.Truncate(time.Second)

	err := r.write(func(st *memoryState) error {
		if _, taken := st.emails[created.Email]; taken {
			return common.ErrEmailTaken
		}
		st.byID[created.ID] = copyUser(created)
		st.emails[created.Email] = created.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	var found *models.User
	r.read(func(st *memoryState) {
		if u, ok := st.byID[id]; ok {
			found = copyUser(u)
		}
	})
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return found, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var found *models.User
	r.read(func(st *memoryState) {
		if id, ok := st.emails[models.NormalizeEmail(email)]; ok {
			found = copyUser(st.byID[id])
		}
	})
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return found, nil
}

func findByToken(st *memoryState, class models.TokenClass, value string) *models.User {
	if value == "" {
		return nil
	}
	for _, u := range st.byID {
		if u.Token(class).Value == value {
			return u
		}
	}
	return nil
}

func (r *MemoryRepository) FindByToken(_ context.Context, class models.TokenClass, value string) (*models.User, error) {
	var found *models.User
	r.read(func(st *memoryState) {
		if u := findByToken(st, class, value); u != nil {
			found = copyUser(u)
		}
	})
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return found, nil
}

func (r *MemoryRepository) SetToken(_ context.Context, userID string, class models.TokenClass, token models.Token) error {
	now := r.now()
	return r.write(func(st *memoryState) error {
		u, ok := st.byID[userID]
		if !ok {
			return common.ErrorNotFound
		}
		u.SetToken(class, token)
		u.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepository) ConsumeToken(_ context.Context, class models.TokenClass, value string, now time.Time) (*models.User, error) {
	stamp := r.now()
	var consumed *models.User
	err := r.write(func(st *memoryState) error {
		u := findByToken(st, class, value)
		if u == nil || u.Token(class).Expired(now) {
			return common.ErrorNotFound
		}
		consumed = copyUser(u)
		u.SetToken(class, models.Token{})
		u.UpdatedAt = stamp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

func (r *MemoryRepository) ClearToken(_ context.Context, class models.TokenClass, value string) error {
	now := r.now()
	return r.write(func(st *memoryState) error {
		if u := findByToken(st, class, value); u != nil {
			u.SetToken(class, models.Token{})
			u.UpdatedAt = now
		}
		return nil
	})
}

func (r *MemoryRepository) MarkEmailVerified(_ context.Context, userID string) error {
	now := r.now()
	return r.write(func(st *memoryState) error {
		u, ok := st.byID[userID]
		if !ok {
			return common.ErrorNotFound
		}
		u.EmailVerified = true
		u.UpdatedAt = now
		return nil
	})
}

// UpdatePassword also drops any pending reset and SSO token; both were
// issued against the old password.
func (r *MemoryRepository) UpdatePassword(_ context.Context, userID, passwordHash string, changedAt time.Time) error {
	return r.write(func(st *memoryState) error {
		u, ok := st.byID[userID]
		if !ok {
			return common.ErrorNotFound
		}
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = changedAt
		u.UpdatedAt = changedAt
		u.PasswordReset = models.Token{}
		u.SSO = models.Token{}
		return nil
	})
}

func (r *MemoryRepository) Delete(_ context.Context, userID string) error {
	return r.write(func(st *memoryState) error {
		u, ok := st.byID[userID]
		if !ok {
			return common.ErrorNotFound
		}
		delete(st.emails, u.Email)
		delete(st.byID, userID)
		return nil
	})
}
