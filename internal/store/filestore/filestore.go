// Package filestore implements the store interface on a single JSON file.
// State is held in memory and every mutation is flushed by writing a temp
// file and renaming it over the old one, so readers of the file never see a
// torn snapshot.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/akarimov/payguard/internal/models"
	"github.com/akarimov/payguard/pkg/errors"
)

// The models hide PasswordHash and lockout fields from JSON on purpose, so
// the file format carries its own record shapes.
type userRecord struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	PasswordHash   string `json:"password_hash"`
	BalanceCents   int64  `json:"balance_cents"`
	FailedAttempts int    `json:"failed_attempts"`
	LockedUntil    int64  `json:"locked_until"`
	CreatedAt      int64  `json:"created_at"`
}

type sessionRecord struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	TokenDigest string `json:"token_digest"`
	ExpiresAt   int64  `json:"expires_at"`
	CreatedAt   int64  `json:"created_at"`
}

type paymentRecord struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	AmountCents   int64  `json:"amount_cents"`
	BalanceBefore int64  `json:"balance_before_cents"`
	BalanceAfter  int64  `json:"balance_after_cents"`
	CreatedAt     int64  `json:"created_at"`
}

type snapshot struct {
	Users    []userRecord    `json:"users"`
	Sessions []sessionRecord `json:"sessions"`
	Payments []paymentRecord `json:"payments"`
}

// Store is the file-backed adapter. User records are stored by value and
// replaced whole under the table lock; the per-user mutex serializes each
// user's read-check-write transitions, and flushMu serializes file writes so
// snapshots reach disk in order.
type Store struct {
	path string

	mu        sync.RWMutex
	users     map[string]userRecord
	usernames map[string]string
	sessions  map[string]sessionRecord // by token digest
	payments  map[string]paymentRecord

	userMus sync.Map // userID -> *sync.Mutex
	flushMu sync.Mutex
}

// Open loads the store file if it exists, creating the directory with
// restrictive permissions otherwise.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		path:      path,
		users:     make(map[string]userRecord),
		usernames: make(map[string]string),
		sessions:  make(map[string]sessionRecord),
		payments:  make(map[string]paymentRecord),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}

	for _, u := range snap.Users {
		s.users[u.ID] = u
		s.usernames[u.Username] = u.ID
	}
	for _, sess := range snap.Sessions {
		s.sessions[sess.TokenDigest] = sess
	}
	for _, p := range snap.Payments {
		s.payments[p.ID] = p
	}
	return s, nil
}

func (s *Store) userMu(userID string) *sync.Mutex {
	mu, _ := s.userMus.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// flush writes the current state to disk atomically.
func (s *Store) flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	snap := snapshot{
		Users:    make([]userRecord, 0, len(s.users)),
		Sessions: make([]sessionRecord, 0, len(s.sessions)),
		Payments: make([]paymentRecord, 0, len(s.payments)),
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, u)
	}
	for _, sess := range s.sessions {
		snap.Sessions = append(snap.Sessions, sess)
	}
	for _, p := range s.payments {
		snap.Payments = append(snap.Payments, p)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func toUserModel(u userRecord) *models.User {
	return &models.User{
		ID:             u.ID,
		Username:       u.Username,
		PasswordHash:   u.PasswordHash,
		BalanceCents:   u.BalanceCents,
		FailedAttempts: u.FailedAttempts,
		LockedUntil:    u.LockedUntil,
		CreatedAt:      u.CreatedAt,
	}
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	if _, exists := s.usernames[u.Username]; exists {
		s.mu.Unlock()
		return errors.ErrDuplicateUsername
	}
	s.users[u.ID] = userRecord{
		ID:             u.ID,
		Username:       u.Username,
		PasswordHash:   u.PasswordHash,
		BalanceCents:   u.BalanceCents,
		FailedAttempts: u.FailedAttempts,
		LockedUntil:    u.LockedUntil,
		CreatedAt:      u.CreatedAt,
	}
	s.usernames[u.Username] = u.ID
	s.mu.Unlock()

	return s.flush()
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	u := s.users[id]
	return toUserModel(u), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	return toUserModel(u), nil
}

// updateUser applies fn to a user's record under that user's mutex and
// flushes the result. fn runs on a copy; the copy replaces the stored record
// before the flush.
func (s *Store) updateUser(userID string, fn func(*userRecord) error) error {
	mu := s.userMu(userID)
	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	u, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return errors.ErrUserNotFound
	}

	if err := fn(&u); err != nil {
		return err
	}

	s.mu.Lock()
	s.users[userID] = u
	s.mu.Unlock()

	return s.flush()
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	var attempts int
	err := s.updateUser(userID, func(u *userRecord) error {
		u.FailedAttempts++
		attempts = u.FailedAttempts
		return nil
	})
	return attempts, err
}

func (s *Store) SetLockedUntil(ctx context.Context, userID string, lockedUntil int64) error {
	return s.updateUser(userID, func(u *userRecord) error {
		u.LockedUntil = lockedUntil
		return nil
	})
}

func (s *Store) ResetLoginState(ctx context.Context, userID string) error {
	return s.updateUser(userID, func(u *userRecord) error {
		u.FailedAttempts = 0
		u.LockedUntil = 0
		return nil
	})
}

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	s.sessions[sess.TokenDigest] = sessionRecord{
		ID:          sess.ID,
		UserID:      sess.UserID,
		TokenDigest: sess.TokenDigest,
		ExpiresAt:   sess.ExpiresAt,
		CreatedAt:   sess.CreatedAt,
	}
	s.mu.Unlock()

	return s.flush()
}

func (s *Store) FindLiveSessionByTokenDigest(ctx context.Context, digest string, now int64) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[digest]
	if !ok || sess.ExpiresAt <= now {
		return nil, errors.ErrSessionNotFound
	}
	return &models.Session{
		ID:          sess.ID,
		UserID:      sess.UserID,
		TokenDigest: sess.TokenDigest,
		ExpiresAt:   sess.ExpiresAt,
		CreatedAt:   sess.CreatedAt,
	}, nil
}

func (s *Store) DeleteSessionByTokenDigest(ctx context.Context, digest string) error {
	s.mu.Lock()
	_, existed := s.sessions[digest]
	delete(s.sessions, digest)
	s.mu.Unlock()

	if !existed {
		return nil
	}
	return s.flush()
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now int64) (int, error) {
	s.mu.Lock()
	removed := 0
	for digest, sess := range s.sessions {
		if sess.ExpiresAt <= now {
			delete(s.sessions, digest)
			removed++
		}
	}
	s.mu.Unlock()

	if removed == 0 {
		return 0, nil
	}
	return removed, s.flush()
}

// ApplyPayment runs the conditional debit under the owner's mutex and
// persists the payment record in the same flush as the new balance, so a
// debit can never reach disk without its ledger entry.
func (s *Store) ApplyPayment(ctx context.Context, p *models.Payment) error {
	mu := s.userMu(p.UserID)
	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	u, ok := s.users[p.UserID]
	s.mu.RUnlock()
	if !ok {
		return errors.ErrUserNotFound
	}

	if u.BalanceCents < p.AmountCents {
		return errors.ErrInsufficientFunds
	}

	p.BalanceBefore = u.BalanceCents
	u.BalanceCents -= p.AmountCents
	p.BalanceAfter = u.BalanceCents

	s.mu.Lock()
	s.users[p.UserID] = u
	s.payments[p.ID] = paymentRecord{
		ID:            p.ID,
		UserID:        p.UserID,
		AmountCents:   p.AmountCents,
		BalanceBefore: p.BalanceBefore,
		BalanceAfter:  p.BalanceAfter,
		CreatedAt:     p.CreatedAt,
	}
	s.mu.Unlock()

	return s.flush()
}

// PaymentCount reports the number of persisted payment records.
func (s *Store) PaymentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}

func (s *Store) Close() error {
	return s.flush()
}
