package services

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coastledger/backend/internal/audit"
	"github.com/coastledger/backend/internal/models"
	"github.com/coastledger/backend/internal/store"
)

// LedgerService orchestrates every multi-entity operation against the store.
// Balance mutations and their transaction records are always observed
// together or not at all; the store contract carries that guarantee.
type LedgerService struct {
	store  store.Store
	hasher PasswordHasher
	audit  *audit.Logger

	// Overridable for tests.
	newID            func() string
	newAccountNumber func() string
	now              func() time.Time
}

func NewLedgerService(st store.Store, hasher PasswordHasher) *LedgerService {
	return &LedgerService{
		store:            st,
		hasher:           hasher,
		audit:            audit.NewLogger(),
		newID:            uuid.NewString,
		newAccountNumber: generateAccountNumber,
		now:              time.Now,
	}
}

func (s *LedgerService) RegisterUser(ctx context.Context, name, email, password string, role models.Role) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	// Check-then-insert; the Postgres backend additionally enforces a
	// unique constraint so a racing insert still surfaces as the domain
	// error.
	if _, err := s.store.UserByEmail(ctx, email); err == nil {
		return "", models.ErrDuplicateEmail
	} else if err != models.ErrUserNotFound {
		return "", err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", err
	}

	user := &models.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return "", err
	}
	log.Printf("[LEDGER] User registered - ID: %s, Email: %s, Role: %s", user.ID, user.Email, user.Role)
	return user.ID, nil
}

func (s *LedgerService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.UserByEmail(ctx, email)
	if err == models.ErrUserNotFound {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Matches(password, user.PasswordHash) {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

func (s *LedgerService) OpenAccount(ctx context.Context, userID string) (string, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return "", err
	}

	acct := models.NewAccount(s.newID(), user.ID, s.newAccountNumber(), s.now().UTC())
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return "", err
	}
	log.Printf("[LEDGER] Account opened - ID: %s, Number: %s, Owner: %s", acct.ID, acct.AccountNumber, user.ID)
	return acct.ID, nil
}

func (s *LedgerService) Account(ctx context.Context, accountID string) (*models.Account, error) {
	return s.store.AccountByID(ctx, accountID)
}

func (s *LedgerService) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

func (s *LedgerService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, note string) (models.Transaction, error) {
	amount = amount.Round(2)

	var entry models.Transaction
	err := s.store.UpdateAccount(ctx, accountID, func(a *models.Account) ([]models.Transaction, error) {
		if err := a.Deposit(amount); err != nil {
			return nil, err
		}
		entry = s.newEntry(accountID, models.TxDeposit, amount, note)
		return []models.Transaction{entry}, nil
	})
	if err != nil {
		s.audit.LogError(accountID, "DEPOSIT", err)
		return models.Transaction{}, err
	}
	s.audit.LogOperation(entry.ID, accountID, "DEPOSIT", amount)
	return entry, nil
}

func (s *LedgerService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, note string) (models.Transaction, error) {
	amount = amount.Round(2)

	var entry models.Transaction
	err := s.store.UpdateAccount(ctx, accountID, func(a *models.Account) ([]models.Transaction, error) {
		if err := a.Withdraw(amount); err != nil {
			return nil, err
		}
		entry = s.newEntry(accountID, models.TxWithdrawal, amount, note)
		return []models.Transaction{entry}, nil
	})
	if err != nil {
		s.audit.LogError(accountID, "WITHDRAWAL", err)
		return models.Transaction{}, err
	}
	s.audit.LogOperation(entry.ID, accountID, "WITHDRAWAL", amount)
	return entry, nil
}

// Transfer moves amount between two accounts. Both balance mutations and
// both ledger records commit together or the whole operation rolls back
// with no partial effect.
func (s *LedgerService) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, note string) error {
	if fromID == toID {
		return models.ErrSameAccount
	}
	amount = amount.Round(2)

	var out models.Transaction
	err := s.store.UpdateAccountPair(ctx, fromID, toID, func(from, to *models.Account) ([]models.Transaction, error) {
		if err := from.Withdraw(amount); err != nil {
			return nil, err
		}
		if err := to.Deposit(amount); err != nil {
			return nil, err
		}
		out = s.newEntry(fromID, models.TxTransferOut, amount, note)
		in := s.newEntry(toID, models.TxTransferIn, amount, note)
		return []models.Transaction{out, in}, nil
	})
	if err != nil {
		s.audit.LogError(fromID, "TRANSFER", err)
		return err
	}
	s.audit.LogTransfer(out.ID, fromID, toID, amount, "SUCCESS")
	return nil
}

func (s *LedgerService) FreezeAccount(ctx context.Context, accountID string) error {
	return s.setFrozen(ctx, accountID, true)
}

func (s *LedgerService) UnfreezeAccount(ctx context.Context, accountID string) error {
	return s.setFrozen(ctx, accountID, false)
}

func (s *LedgerService) setFrozen(ctx context.Context, accountID string, frozen bool) error {
	err := s.store.UpdateAccount(ctx, accountID, func(a *models.Account) ([]models.Transaction, error) {
		if frozen {
			a.Freeze()
		} else {
			a.Unfreeze()
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	log.Printf("[LEDGER] Account %s frozen=%t", accountID, frozen)
	return nil
}

// Transactions returns the account's history, newest first.
func (s *LedgerService) Transactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	if _, err := s.store.AccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.TransactionsForAccount(ctx, accountID)
}

func (s *LedgerService) AccountsForUser(ctx context.Context, userID string) ([]models.Account, error) {
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.AccountsByOwner(ctx, userID)
}

func (s *LedgerService) AllUsers(ctx context.Context) ([]models.User, error) {
	return s.store.AllUsers(ctx)
}

func (s *LedgerService) AllAccounts(ctx context.Context) ([]models.Account, error) {
	return s.store.AllAccounts(ctx)
}

func (s *LedgerService) User(ctx context.Context, userID string) (*models.User, error) {
	return s.store.UserByID(ctx, userID)
}

func (s *LedgerService) newEntry(accountID string, typ models.TransactionType, amount decimal.Decimal, note string) models.Transaction {
	return models.Transaction{
		ID:        s.newID(),
		AccountID: accountID,
		Type:      typ,
		Amount:    amount,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}
}

func generateAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return string(b)
}
