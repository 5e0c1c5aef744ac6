// Package memory implements the store interface entirely in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/akarimov/payguard/internal/models"
	"github.com/akarimov/payguard/pkg/errors"
)

// Store keeps all records in maps. Sessions are keyed by token digest so
// validation is a single map read. Every access to a user's fields happens
// under that user's own mutex, which is the unit of serialization the
// contract asks for; the table mutex only guards map membership and is never
// held across a user transition.
type Store struct {
	mu        sync.RWMutex
	users     map[string]*models.User    // by id
	usernames map[string]string          // username -> id
	sessions  map[string]*models.Session // by token digest
	payments  map[string]*models.Payment // by id

	userMus sync.Map // userID -> *sync.Mutex
}

func New() *Store {
	return &Store{
		users:     make(map[string]*models.User),
		usernames: make(map[string]string),
		sessions:  make(map[string]*models.Session),
		payments:  make(map[string]*models.Payment),
	}
}

func (s *Store) userMu(userID string) *sync.Mutex {
	mu, _ := s.userMus.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) lookup(userID string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	return u, ok
}

// CreateUser inserts a new user, enforcing username uniqueness under the
// table lock so two concurrent registrations cannot both succeed.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usernames[u.Username]; exists {
		return errors.ErrDuplicateUsername
	}

	cp := *u
	s.users[u.ID] = &cp
	s.usernames[u.Username] = u.ID
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	id, ok := s.usernames[username]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := s.lookup(id)
	if !ok {
		return nil, errors.ErrUserNotFound
	}

	mu := s.userMu(id)
	mu.Lock()
	cp := *u
	mu.Unlock()
	return &cp, nil
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	u, ok := s.lookup(userID)
	if !ok {
		return 0, errors.ErrUserNotFound
	}

	mu := s.userMu(userID)
	mu.Lock()
	defer mu.Unlock()

	u.FailedAttempts++
	return u.FailedAttempts, nil
}

func (s *Store) SetLockedUntil(ctx context.Context, userID string, lockedUntil int64) error {
	u, ok := s.lookup(userID)
	if !ok {
		return errors.ErrUserNotFound
	}

	mu := s.userMu(userID)
	mu.Lock()
	defer mu.Unlock()

	u.LockedUntil = lockedUntil
	return nil
}

func (s *Store) ResetLoginState(ctx context.Context, userID string) error {
	u, ok := s.lookup(userID)
	if !ok {
		return errors.ErrUserNotFound
	}

	mu := s.userMu(userID)
	mu.Lock()
	defer mu.Unlock()

	u.FailedAttempts = 0
	u.LockedUntil = 0
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[sess.TokenDigest] = &cp
	return nil
}

func (s *Store) FindLiveSessionByTokenDigest(ctx context.Context, digest string, now int64) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[digest]
	if !ok || !sess.Live(now) {
		return nil, errors.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) DeleteSessionByTokenDigest(ctx context.Context, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, digest)
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for digest, sess := range s.sessions {
		if !sess.Live(now) {
			delete(s.sessions, digest)
			removed++
		}
	}
	return removed, nil
}

// ApplyPayment performs the check-and-debit under the owner's mutex, so two
// racing charges against the same user serialize and the loser observes the
// post-debit balance. The payment record lands before the mutex is released,
// keeping debit and record indivisible.
func (s *Store) ApplyPayment(ctx context.Context, p *models.Payment) error {
	u, ok := s.lookup(p.UserID)
	if !ok {
		return errors.ErrUserNotFound
	}

	mu := s.userMu(p.UserID)
	mu.Lock()
	defer mu.Unlock()

	if u.BalanceCents < p.AmountCents {
		return errors.ErrInsufficientFunds
	}

	p.BalanceBefore = u.BalanceCents
	u.BalanceCents -= p.AmountCents
	p.BalanceAfter = u.BalanceCents

	cp := *p
	s.mu.Lock()
	s.payments[p.ID] = &cp
	s.mu.Unlock()
	return nil
}

// PaymentCount reports the number of persisted payment records.
func (s *Store) PaymentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}

func (s *Store) Close() error {
	return nil
}
