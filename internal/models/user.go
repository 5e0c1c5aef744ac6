package models

// User is an account identity with its credential and spendable balance.
// All money is integer cents; all timestamps are epoch seconds.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Never expose in JSON
	BalanceCents int64  `json:"balance_cents"`
	// FailedAttempts and LockedUntil belong to the lockout state machine and
	// are mutated only by the auth service. LockedUntil == 0 means unlocked.
	FailedAttempts int   `json:"-"`
	LockedUntil    int64 `json:"-"`
	CreatedAt      int64 `json:"created_at"`
}

// Locked reports whether the account is inside its lockout window at now.
func (u *User) Locked(now int64) bool {
	return u.LockedUntil > now
}

// StartingBalanceCents is credited to every freshly registered account.
const StartingBalanceCents int64 = 800
