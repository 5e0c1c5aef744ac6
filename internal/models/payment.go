package models

// Payment is an immutable ledger entry documenting one successful debit.
// BalanceAfter must always equal BalanceBefore - AmountCents, and the record
// is written in the same atomic step as the debit it documents.
type Payment struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	AmountCents   int64  `json:"amount_cents"`
	BalanceBefore int64  `json:"balance_before_cents"`
	BalanceAfter  int64  `json:"balance_after_cents"`
	CreatedAt     int64  `json:"created_at"`
}
