package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the balance holder. Balances carry a fixed 2-decimal scale and
// never go negative. A frozen account rejects every balance-changing
// operation until an admin unfreezes it.
type Account struct {
	ID            string          `json:"id" db:"id"`
	OwnerUserID   string          `json:"owner_user_id" db:"owner_user_id"`
	AccountNumber string          `json:"account_number" db:"account_number"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	Frozen        bool            `json:"frozen" db:"frozen"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

func NewAccount(id, ownerUserID, accountNumber string, now time.Time) *Account {
	return &Account{
		ID:            id,
		OwnerUserID:   ownerUserID,
		AccountNumber: accountNumber,
		Balance:       decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Deposit credits the account. Amounts are normalized to 2 decimal places
// before validation.
func (a *Account) Deposit(amount decimal.Decimal) error {
	amount = amount.Round(2)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if a.Frozen {
		return ErrAccountFrozen
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

// Withdraw debits the account. The balance check happens after the amount
// and frozen checks, so a frozen account reports ErrAccountFrozen even when
// it also lacks funds.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	amount = amount.Round(2)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if a.Frozen {
		return ErrAccountFrozen
	}
	if a.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Freeze and Unfreeze are idempotent.
func (a *Account) Freeze()   { a.Frozen = true }
func (a *Account) Unfreeze() { a.Frozen = false }
