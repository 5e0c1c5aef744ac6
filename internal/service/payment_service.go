package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akarimov/payguard/internal/models"
	"github.com/akarimov/payguard/internal/store"
	"github.com/akarimov/payguard/pkg/errors"
)

// ChargeAmountCents is the single fixed charge this service applies.
const ChargeAmountCents int64 = 110

// PaymentService performs the fixed-amount debit and produces the ledger
// record documenting it.
type PaymentService struct {
	store store.Store
	now   func() time.Time
}

func NewPaymentService(st store.Store) *PaymentService {
	return &PaymentService{
		store: st,
		now:   time.Now,
	}
}

// Charge debits the fixed amount from the user. The store applies the
// balance check, the debit and the payment record as one indivisible unit
// per user, so concurrent charges can never overdraw and a failed charge
// leaves the balance untouched.
func (s *PaymentService) Charge(ctx context.Context, userID string) (*models.Payment, error) {
	payment := &models.Payment{
		ID:          uuid.NewString(),
		UserID:      userID,
		AmountCents: ChargeAmountCents,
		CreatedAt:   s.now().Unix(),
	}

	if err := s.store.ApplyPayment(ctx, payment); err != nil {
		if stderrors.Is(err, errors.ErrInsufficientFunds) {
			return nil, errors.ErrInsufficientFunds
		}
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to apply charge: %w", err)
	}

	return payment, nil
}
