package sqlite

import (
	"database/sql"
	"fmt"
)

// migrate creates the schema. Sessions index on token_digest so validation is
// a direct keyed read; payments are append-only.
func migrate(db *sql.DB) error {
	usersSchema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        balance_cents INTEGER NOT NULL CHECK (balance_cents >= 0),
        failed_attempts INTEGER NOT NULL DEFAULT 0,
        locked_until INTEGER NOT NULL DEFAULT 0,
        created_at INTEGER NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
    `

	if _, err := db.Exec(usersSchema); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	sessionsSchema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        token_digest TEXT UNIQUE NOT NULL,
        expires_at INTEGER NOT NULL,
        created_at INTEGER NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_sessions_digest ON sessions(token_digest);
    CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
    `

	if _, err := db.Exec(sessionsSchema); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	paymentsSchema := `
    CREATE TABLE IF NOT EXISTS payments (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        amount_cents INTEGER NOT NULL,
        balance_before_cents INTEGER NOT NULL,
        balance_after_cents INTEGER NOT NULL,
        created_at INTEGER NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users(id)
    );

    CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(user_id);
    `

	if _, err := db.Exec(paymentsSchema); err != nil {
		return fmt.Errorf("failed to create payments table: %w", err)
	}

	return nil
}
