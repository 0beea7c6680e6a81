package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastledger/backend/internal/models"
	"github.com/coastledger/backend/internal/store"
)

// plainHasher keeps service tests independent of argon2 parameters.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }
func (plainHasher) Matches(p, enc string) bool    { return enc == "hashed:"+p }

func newTestService(t *testing.T) *LedgerService {
	t.Helper()
	svc := NewLedgerService(store.NewMemory(), plainHasher{})
	var mu sync.Mutex
	seq := 0
	svc.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}
	return svc
}

func registerAndOpen(t *testing.T, svc *LedgerService, email string) (userID, accountID string) {
	t.Helper()
	ctx := context.Background()
	userID, err := svc.RegisterUser(ctx, "Test User", email, "secret123", models.RoleCustomer)
	require.NoError(t, err)
	accountID, err = svc.OpenAccount(ctx, userID)
	require.NoError(t, err)
	return userID, accountID
}

func TestLedgerService_RegisterAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	userID, err := svc.RegisterUser(ctx, "Alice", "  Alice@Example.COM ", "secret123", models.RoleCustomer)
	require.NoError(t, err)

	t.Run("email is normalized", func(t *testing.T) {
		u, err := svc.User(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", u.Email)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.RegisterUser(ctx, "Other", "alice@example.com", "pw123456", models.RoleCustomer)
		assert.ErrorIs(t, err, models.ErrDuplicateEmail)
	})

	t.Run("valid credentials", func(t *testing.T) {
		u, err := svc.Authenticate(ctx, "alice@example.com", "secret123")
		require.NoError(t, err)
		assert.Equal(t, userID, u.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "alice@example.com", "wrong")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("unknown email reads as invalid credentials", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nobody@example.com", "secret123")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})
}

func TestLedgerService_OpenAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("unknown owner", func(t *testing.T) {
		_, err := svc.OpenAccount(ctx, "nope")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
	})

	t.Run("new account starts empty and active", func(t *testing.T) {
		_, accountID := registerAndOpen(t, svc, "alice@example.com")
		acct, err := svc.Account(ctx, accountID)
		require.NoError(t, err)
		assert.True(t, acct.Balance.IsZero())
		assert.False(t, acct.Frozen)
		assert.Len(t, acct.AccountNumber, 10)
	})
}

// Walks the canonical flow: deposit 250.00, withdraw 25.50, then move
// 100.00 to a second account.
func TestLedgerService_DepositWithdrawTransferFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, source := registerAndOpen(t, svc, "alice@example.com")
	_, dest := registerAndOpen(t, svc, "bob@example.com")

	_, err := svc.Deposit(ctx, source, decimal.RequireFromString("250.00"), "opening deposit")
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, source, decimal.RequireFromString("25.50"), "")
	require.NoError(t, err)
	require.NoError(t, svc.Transfer(ctx, source, dest, decimal.RequireFromString("100.00"), "rent"))

	srcBalance, err := svc.Balance(ctx, source)
	require.NoError(t, err)
	assert.True(t, srcBalance.Equal(decimal.RequireFromString("124.50")), "source balance=%s", srcBalance)

	dstBalance, err := svc.Balance(ctx, dest)
	require.NoError(t, err)
	assert.True(t, dstBalance.Equal(decimal.RequireFromString("100.00")), "dest balance=%s", dstBalance)

	srcTxs, err := svc.Transactions(ctx, source)
	require.NoError(t, err)
	require.Len(t, srcTxs, 3)
	// Newest first.
	assert.Equal(t, models.TxTransferOut, srcTxs[0].Type)
	assert.Equal(t, models.TxWithdrawal, srcTxs[1].Type)
	assert.Equal(t, models.TxDeposit, srcTxs[2].Type)
	assert.Equal(t, "rent", srcTxs[0].Note)

	dstTxs, err := svc.Transactions(ctx, dest)
	require.NoError(t, err)
	require.Len(t, dstTxs, 1)
	assert.Equal(t, models.TxTransferIn, dstTxs[0].Type)
	assert.True(t, dstTxs[0].Amount.Equal(decimal.RequireFromString("100.00")))
}

func TestLedgerService_DepositValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, accountID := registerAndOpen(t, svc, "alice@example.com")

	t.Run("zero amount", func(t *testing.T) {
		_, err := svc.Deposit(ctx, accountID, decimal.Zero, "")
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := svc.Deposit(ctx, accountID, decimal.RequireFromString("-5"), "")
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := svc.Deposit(ctx, "nope", decimal.RequireFromString("1.00"), "")
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})

	t.Run("rejected deposit leaves no record", func(t *testing.T) {
		txs, err := svc.Transactions(ctx, accountID)
		require.NoError(t, err)
		assert.Empty(t, txs)
	})
}

func TestLedgerService_WithdrawOverdraft(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, accountID := registerAndOpen(t, svc, "alice@example.com")
	_, err := svc.Deposit(ctx, accountID, decimal.RequireFromString("50.00"), "")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, accountID, decimal.RequireFromString("50.01"), "")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("50.00")))

	txs, err := svc.Transactions(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "the failed withdrawal must not be recorded")
}

func TestLedgerService_Transfer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, source := registerAndOpen(t, svc, "alice@example.com")
	_, dest := registerAndOpen(t, svc, "bob@example.com")
	_, err := svc.Deposit(ctx, source, decimal.RequireFromString("30.00"), "")
	require.NoError(t, err)

	t.Run("same account", func(t *testing.T) {
		err := svc.Transfer(ctx, source, source, decimal.RequireFromString("10.00"), "")
		assert.ErrorIs(t, err, models.ErrSameAccount)
	})

	t.Run("insufficient funds leaves both sides untouched", func(t *testing.T) {
		err := svc.Transfer(ctx, source, dest, decimal.RequireFromString("100.00"), "")
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)

		srcBalance, _ := svc.Balance(ctx, source)
		dstBalance, _ := svc.Balance(ctx, dest)
		assert.True(t, srcBalance.Equal(decimal.RequireFromString("30.00")))
		assert.True(t, dstBalance.IsZero())

		dstTxs, _ := svc.Transactions(ctx, dest)
		assert.Empty(t, dstTxs)
	})

	t.Run("unknown destination", func(t *testing.T) {
		err := svc.Transfer(ctx, source, "nope", decimal.RequireFromString("10.00"), "")
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})
}

func TestLedgerService_FrozenAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, frozen := registerAndOpen(t, svc, "alice@example.com")
	_, active := registerAndOpen(t, svc, "bob@example.com")

	_, err := svc.Deposit(ctx, frozen, decimal.RequireFromString("100.00"), "")
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, active, decimal.RequireFromString("100.00"), "")
	require.NoError(t, err)
	require.NoError(t, svc.FreezeAccount(ctx, frozen))

	t.Run("deposit blocked", func(t *testing.T) {
		_, err := svc.Deposit(ctx, frozen, decimal.RequireFromString("1.00"), "")
		assert.ErrorIs(t, err, models.ErrAccountFrozen)
	})

	t.Run("withdraw blocked", func(t *testing.T) {
		_, err := svc.Withdraw(ctx, frozen, decimal.RequireFromString("1.00"), "")
		assert.ErrorIs(t, err, models.ErrAccountFrozen)
	})

	t.Run("transfer out blocked", func(t *testing.T) {
		err := svc.Transfer(ctx, frozen, active, decimal.RequireFromString("1.00"), "")
		assert.ErrorIs(t, err, models.ErrAccountFrozen)
	})

	t.Run("transfer into frozen destination is rejected whole", func(t *testing.T) {
		err := svc.Transfer(ctx, active, frozen, decimal.RequireFromString("1.00"), "")
		assert.ErrorIs(t, err, models.ErrAccountFrozen)

		balance, _ := svc.Balance(ctx, active)
		assert.True(t, balance.Equal(decimal.RequireFromString("100.00")), "source must be refunded")
	})

	t.Run("history stays readable", func(t *testing.T) {
		txs, err := svc.Transactions(ctx, frozen)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("unfreeze restores operation", func(t *testing.T) {
		require.NoError(t, svc.UnfreezeAccount(ctx, frozen))
		_, err := svc.Withdraw(ctx, frozen, decimal.RequireFromString("10.00"), "")
		assert.NoError(t, err)
	})
}

// Two transfers running in opposite directions between the same accounts
// must not deadlock, and every cent must be accounted for at the end.
func TestLedgerService_ConcurrentOpposingTransfers(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, a := registerAndOpen(t, svc, "alice@example.com")
	_, b := registerAndOpen(t, svc, "bob@example.com")

	_, err := svc.Deposit(ctx, a, decimal.RequireFromString("100.00"), "")
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, b, decimal.RequireFromString("100.00"), "")
	require.NoError(t, err)

	amount := decimal.RequireFromString("10.00")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Transfer(ctx, a, b, amount, ""))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Transfer(ctx, b, a, amount, ""))
	}()
	wg.Wait()

	balA, err := svc.Balance(ctx, a)
	require.NoError(t, err)
	balB, err := svc.Balance(ctx, b)
	require.NoError(t, err)
	assert.True(t, balA.Equal(decimal.RequireFromString("100.00")), "a=%s", balA)
	assert.True(t, balB.Equal(decimal.RequireFromString("100.00")), "b=%s", balB)

	txsA, err := svc.Transactions(ctx, a)
	require.NoError(t, err)
	txsB, err := svc.Transactions(ctx, b)
	require.NoError(t, err)
	// One deposit plus one leg of each transfer per account.
	assert.Len(t, txsA, 3)
	assert.Len(t, txsB, 3)
}

func TestLedgerService_AccountsForUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID, first := registerAndOpen(t, svc, "alice@example.com")
	second, err := svc.OpenAccount(ctx, userID)
	require.NoError(t, err)

	accts, err := svc.AccountsForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.Equal(t, first, accts[0].ID)
	assert.Equal(t, second, accts[1].ID)

	_, err = svc.AccountsForUser(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}
