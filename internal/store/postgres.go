package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/coastledger/backend/internal/models"
)

// Postgres is the durable backend. Every mutation runs inside a SQL
// transaction; rows are locked with SELECT ... FOR UPDATE, lowest account id
// first, so two-account transfers cannot deadlock each other.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return models.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE id = $1`, id))
}

func (s *Postgres) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE email = $1`, email))
}

func (s *Postgres) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (s *Postgres) AllUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_user_id, account_number, balance, frozen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.OwnerUserID, a.AccountNumber, a.Balance, a.Frozen, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Postgres) AccountByID(ctx context.Context, id string) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, account_number, balance, frozen, created_at, updated_at
		FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.OwnerUserID, &a.AccountNumber, &a.Balance, &a.Frozen, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (s *Postgres) AccountsByOwner(ctx context.Context, userID string) ([]models.Account, error) {
	return s.queryAccounts(ctx, `
		SELECT id, owner_user_id, account_number, balance, frozen, created_at, updated_at
		FROM accounts WHERE owner_user_id = $1 ORDER BY created_at`, userID)
}

func (s *Postgres) AllAccounts(ctx context.Context) ([]models.Account, error) {
	return s.queryAccounts(ctx, `
		SELECT id, owner_user_id, account_number, balance, frozen, created_at, updated_at
		FROM accounts ORDER BY created_at`)
}

func (s *Postgres) queryAccounts(ctx context.Context, query string, args ...any) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.OwnerUserID, &a.AccountNumber, &a.Balance, &a.Frozen, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateAccount(ctx context.Context, id string, fn ApplyFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	acct, err := lockAccount(ctx, tx, id)
	if err != nil {
		return err
	}

	entries, err := fn(acct)
	if err != nil {
		return err
	}

	if err := writeAccount(ctx, tx, acct); err != nil {
		return err
	}
	if err := appendTransactions(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateAccountPair(ctx context.Context, firstID, secondID string, fn ApplyPairFunc) error {
	if firstID == secondID {
		return models.ErrSameAccount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Lock in ascending id order, then hand the accounts back in the
	// caller's order.
	loID, hiID := firstID, secondID
	if firstID > secondID {
		loID, hiID = secondID, firstID
	}
	lo, err := lockAccount(ctx, tx, loID)
	if err != nil {
		return err
	}
	hi, err := lockAccount(ctx, tx, hiID)
	if err != nil {
		return err
	}
	first, second := lo, hi
	if loID != firstID {
		first, second = hi, lo
	}

	entries, err := fn(first, second)
	if err != nil {
		return err
	}

	if err := writeAccount(ctx, tx, first); err != nil {
		return err
	}
	if err := writeAccount(ctx, tx, second); err != nil {
		return err
	}
	if err := appendTransactions(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Postgres) TransactionsForAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount, note, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func lockAccount(ctx context.Context, tx *sql.Tx, id string) (*models.Account, error) {
	var a models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT id, owner_user_id, account_number, balance, frozen, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE`, id).
		Scan(&a.ID, &a.OwnerUserID, &a.AccountNumber, &a.Balance, &a.Frozen, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return &a, nil
}

func writeAccount(ctx context.Context, tx *sql.Tx, a *models.Account) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = $1, frozen = $2, updated_at = NOW() WHERE id = $3`,
		a.Balance, a.Frozen, a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func appendTransactions(ctx context.Context, tx *sql.Tx, entries []models.Transaction) error {
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, account_id, type, amount, note, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.AccountID, e.Type, e.Amount, e.Note, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	return nil
}
