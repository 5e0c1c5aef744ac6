// Package sqlite implements the store interface on a SQLCipher-encrypted
// SQLite database. Per-user serialization comes from transactions with
// conditional updates; the balance check and debit are a single UPDATE.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/akarimov/payguard/internal/models"
	"github.com/akarimov/payguard/pkg/errors"
)

type Store struct {
	db *sql.DB
}

// Open connects, applies pragmas and runs migrations.
func Open(cfg Config) (*Store, error) {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 1 * time.Hour
	}
	if cfg.MaxIdleTime == 0 {
		cfg.MaxIdleTime = 10 * time.Minute
	}

	db, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
        INSERT INTO users (id, username, password_hash, balance_cents, failed_attempts, locked_until, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `

	_, err := s.db.ExecContext(ctx, query,
		u.ID,
		u.Username,
		u.PasswordHash,
		u.BalanceCents,
		u.FailedAttempts,
		u.LockedUntil,
		u.CreatedAt,
	)

	if isUniqueViolation(err) {
		return errors.ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.BalanceCents,
		&user.FailedAttempts,
		&user.LockedUntil,
		&user.CreatedAt,
	)

	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
        SELECT id, username, password_hash, balance_cents, failed_attempts, locked_until, created_at
        FROM users
        WHERE username = ?
    `
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `
        SELECT id, username, password_hash, balance_cents, failed_attempts, locked_until, created_at
        FROM users
        WHERE id = ?
    `
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	var attempts int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE users SET failed_attempts = failed_attempts + 1 WHERE id = ?`, userID)
		if err != nil {
			return fmt.Errorf("failed to increment failed attempts: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if n == 0 {
			return errors.ErrUserNotFound
		}

		if err := tx.QueryRow(`SELECT failed_attempts FROM users WHERE id = ?`, userID).Scan(&attempts); err != nil {
			return fmt.Errorf("failed to read failed attempts: %w", err)
		}
		return nil
	})
	return attempts, err
}

func (s *Store) SetLockedUntil(ctx context.Context, userID string, lockedUntil int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET locked_until = ? WHERE id = ?`, lockedUntil, userID)
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

func (s *Store) ResetLoginState(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET failed_attempts = 0, locked_until = 0 WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to reset login state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	query := `
        INSERT INTO sessions (id, user_id, token_digest, expires_at, created_at)
        VALUES (?, ?, ?, ?, ?)
    `

	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		sess.UserID,
		sess.TokenDigest,
		sess.ExpiresAt,
		sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Store) FindLiveSessionByTokenDigest(ctx context.Context, digest string, now int64) (*models.Session, error) {
	query := `
        SELECT id, user_id, token_digest, expires_at, created_at
        FROM sessions
        WHERE token_digest = ? AND expires_at > ?
    `

	sess := &models.Session{}
	err := s.db.QueryRowContext(ctx, query, digest, now).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.TokenDigest,
		&sess.ExpiresAt,
		&sess.CreatedAt,
	)

	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return sess, nil
}

func (s *Store) DeleteSessionByTokenDigest(ctx context.Context, digest string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_digest = ?`, digest); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}

// ApplyPayment debits and records in one transaction. The conditional UPDATE
// is the atomic check-and-debit: it only fires while the balance covers the
// amount, so a racing charge that loses sees zero affected rows.
func (s *Store) ApplyPayment(ctx context.Context, p *models.Payment) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE users SET balance_cents = balance_cents - ? WHERE id = ? AND balance_cents >= ?`,
			p.AmountCents, p.UserID, p.AmountCents,
		)
		if err != nil {
			return fmt.Errorf("failed to debit balance: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if n == 0 {
			var balance int64
			err := tx.QueryRow(`SELECT balance_cents FROM users WHERE id = ?`, p.UserID).Scan(&balance)
			if stderrors.Is(err, sql.ErrNoRows) {
				return errors.ErrUserNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to read balance: %w", err)
			}
			return errors.ErrInsufficientFunds
		}

		var after int64
		if err := tx.QueryRow(`SELECT balance_cents FROM users WHERE id = ?`, p.UserID).Scan(&after); err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		p.BalanceAfter = after
		p.BalanceBefore = after + p.AmountCents

		_, err = tx.Exec(
			`INSERT INTO payments (id, user_id, amount_cents, balance_before_cents, balance_after_cents, created_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.UserID, p.AmountCents, p.BalanceBefore, p.BalanceAfter, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
