// Package store provides keyed persistence for users, accounts and
// per-account transaction logs behind a single contract with two
// implementations: a volatile in-memory map store and a transactional
// Postgres store. The service layer must not assume which is in use beyond
// the atomicity guarantees documented here.
package store

import (
	"context"

	"github.com/coastledger/backend/internal/models"
)

// ApplyFunc mutates an account while the store holds exclusive ownership of
// it. The returned transactions are appended atomically with the account
// update; returning an error discards every effect.
type ApplyFunc func(a *models.Account) ([]models.Transaction, error)

// ApplyPairFunc is ApplyFunc for the two legs of a transfer. The accounts
// arrive in the order the ids were passed, regardless of internal lock
// ordering.
type ApplyPairFunc func(first, second *models.Account) ([]models.Transaction, error)

type Store interface {
	// CreateUser returns models.ErrDuplicateEmail when the email is taken.
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	AllUsers(ctx context.Context) ([]models.User, error)

	CreateAccount(ctx context.Context, a *models.Account) error
	AccountByID(ctx context.Context, id string) (*models.Account, error)
	AccountsByOwner(ctx context.Context, userID string) ([]models.Account, error)
	AllAccounts(ctx context.Context) ([]models.Account, error)

	// UpdateAccount serializes the check-and-mutate plus transaction append
	// against every other mutation of the same account. Either all effects
	// of fn are observed or none are.
	UpdateAccount(ctx context.Context, id string, fn ApplyFunc) error

	// UpdateAccountPair does the same across two accounts, locking both
	// before mutating either. Locks are always acquired in ascending id
	// order to prevent deadlock between opposing transfers.
	UpdateAccountPair(ctx context.Context, firstID, secondID string, fn ApplyPairFunc) error

	// TransactionsForAccount returns the account's history newest first.
	TransactionsForAccount(ctx context.Context, accountID string) ([]models.Transaction, error)
}
