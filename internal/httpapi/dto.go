package httpapi

import "github.com/akarimov/payguard/internal/models"

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse carries an account identity and its balance in decimal
// currency units. Arithmetic never happens on the decimal form.
type UserResponse struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Balance  float64 `json:"balance"`
}

// LoginResponse returns the raw bearer token exactly once.
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// ChargeResponse documents one applied payment.
type ChargeResponse struct {
	PaymentID     string  `json:"payment_id"`
	Amount        float64 `json:"amount"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
	Timestamp     int64   `json:"timestamp"`
}

// decimal converts stored integer cents to wire currency units.
func decimal(cents int64) float64 {
	return float64(cents) / 100
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Balance:  decimal(u.BalanceCents),
	}
}

func toChargeResponse(p *models.Payment) ChargeResponse {
	return ChargeResponse{
		PaymentID:     p.ID,
		Amount:        decimal(p.AmountCents),
		BalanceBefore: decimal(p.BalanceBefore),
		BalanceAfter:  decimal(p.BalanceAfter),
		Timestamp:     p.CreatedAt,
	}
}
