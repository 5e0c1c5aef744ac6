// Package redisstore implements the store interface on Redis. Records live
// in hashes, username uniqueness rides on SETNX, sessions expire via key TTL
// and the debit is an optimistic WATCH/MULTI transaction on the user key.
package redisstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akarimov/payguard/internal/models"
	"github.com/akarimov/payguard/pkg/errors"
)

// A losing WATCH only means another writer touched the same user; retrying
// immediately is the intended CAS loop.
const maxTxRetries = 100

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Store struct {
	rdb *redis.Client
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

func userKey(id string) string { return "user:" + id }

func usernameKey(name string) string { return "username:" + name }

func sessionKey(digest string) string { return "session:" + digest }

func paymentKey(id string) string { return "payment:" + id }

func userFields(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":              u.ID,
		"username":        u.Username,
		"password_hash":   u.PasswordHash,
		"balance_cents":   u.BalanceCents,
		"failed_attempts": u.FailedAttempts,
		"locked_until":    u.LockedUntil,
		"created_at":      u.CreatedAt,
	}
}

func parseUser(vals map[string]string) (*models.User, error) {
	if len(vals) == 0 {
		return nil, errors.ErrUserNotFound
	}

	balance, err := strconv.ParseInt(vals["balance_cents"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance for user %s: %w", vals["id"], err)
	}
	attempts, err := strconv.Atoi(vals["failed_attempts"])
	if err != nil {
		return nil, fmt.Errorf("corrupt failed_attempts for user %s: %w", vals["id"], err)
	}
	lockedUntil, err := strconv.ParseInt(vals["locked_until"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt locked_until for user %s: %w", vals["id"], err)
	}
	createdAt, err := strconv.ParseInt(vals["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at for user %s: %w", vals["id"], err)
	}

	return &models.User{
		ID:             vals["id"],
		Username:       vals["username"],
		PasswordHash:   vals["password_hash"],
		BalanceCents:   balance,
		FailedAttempts: attempts,
		LockedUntil:    lockedUntil,
		CreatedAt:      createdAt,
	}, nil
}

// CreateUser claims the username index with SETNX first; the claim is the
// race-free uniqueness check. The user hash follows, and the index is
// released again if that write fails.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	ok, err := s.rdb.SetNX(ctx, usernameKey(u.Username), u.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim username: %w", err)
	}
	if !ok {
		return errors.ErrDuplicateUsername
	}

	if err := s.rdb.HSet(ctx, userKey(u.ID), userFields(u)).Err(); err != nil {
		_ = s.rdb.Del(ctx, usernameKey(u.Username)).Err()
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	id, err := s.rdb.Get(ctx, usernameKey(username)).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve username: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	vals, err := s.rdb.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return parseUser(vals)
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	n, err := s.rdb.Exists(ctx, userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return 0, errors.ErrUserNotFound
	}

	attempts, err := s.rdb.HIncrBy(ctx, userKey(userID), "failed_attempts", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment failed attempts: %w", err)
	}
	return int(attempts), nil
}

func (s *Store) SetLockedUntil(ctx context.Context, userID string, lockedUntil int64) error {
	n, err := s.rdb.Exists(ctx, userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return errors.ErrUserNotFound
	}
	if err := s.rdb.HSet(ctx, userKey(userID), "locked_until", lockedUntil).Err(); err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

func (s *Store) ResetLoginState(ctx context.Context, userID string) error {
	n, err := s.rdb.Exists(ctx, userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return errors.ErrUserNotFound
	}
	if err := s.rdb.HSet(ctx, userKey(userID), "failed_attempts", 0, "locked_until", 0).Err(); err != nil {
		return fmt.Errorf("failed to reset login state: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	key := sessionKey(sess.TokenDigest)
	fields := map[string]interface{}{
		"id":         sess.ID,
		"user_id":    sess.UserID,
		"expires_at": sess.ExpiresAt,
		"created_at": sess.CreatedAt,
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.ExpireAt(ctx, key, time.Unix(sess.ExpiresAt, 0))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Store) FindLiveSessionByTokenDigest(ctx context.Context, digest string, now int64) (*models.Session, error) {
	vals, err := s.rdb.HGetAll(ctx, sessionKey(digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if len(vals) == 0 {
		return nil, errors.ErrSessionNotFound
	}

	expiresAt, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", vals["id"], err)
	}
	// The TTL usually beats us to it, but liveness is still decided here.
	if expiresAt <= now {
		return nil, errors.ErrSessionNotFound
	}

	createdAt, err := strconv.ParseInt(vals["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", vals["id"], err)
	}

	return &models.Session{
		ID:          vals["id"],
		UserID:      vals["user_id"],
		TokenDigest: digest,
		ExpiresAt:   expiresAt,
		CreatedAt:   createdAt,
	}, nil
}

func (s *Store) DeleteSessionByTokenDigest(ctx context.Context, digest string) error {
	if err := s.rdb.Del(ctx, sessionKey(digest)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions is a no-op: session keys carry their own TTL.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now int64) (int, error) {
	return 0, nil
}

// ApplyPayment is a compare-and-swap on the user key: WATCH, read the
// balance, then commit debit and payment record in one MULTI. A concurrent
// write to the user aborts the EXEC and the loop re-reads the fresh balance,
// which is how the second of two racing charges comes to see the post-debit
// amount and fail ErrInsufficientFunds.
func (s *Store) ApplyPayment(ctx context.Context, p *models.Payment) error {
	key := userKey(p.UserID)

	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if len(vals) == 0 {
			return errors.ErrUserNotFound
		}

		balance, err := strconv.ParseInt(vals["balance_cents"], 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt balance for user %s: %w", p.UserID, err)
		}
		if balance < p.AmountCents {
			return errors.ErrInsufficientFunds
		}

		p.BalanceBefore = balance
		p.BalanceAfter = balance - p.AmountCents

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "balance_cents", p.BalanceAfter)
			pipe.HSet(ctx, paymentKey(p.ID), map[string]interface{}{
				"id":                   p.ID,
				"user_id":              p.UserID,
				"amount_cents":         p.AmountCents,
				"balance_before_cents": p.BalanceBefore,
				"balance_after_cents":  p.BalanceAfter,
				"created_at":           p.CreatedAt,
			})
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("charge for user %s aborted after %d optimistic retries", p.UserID, maxTxRetries)
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
