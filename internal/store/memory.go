package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coastledger/backend/internal/models"
)

// Memory is the volatile backend. The outer RWMutex guards map structure;
// each account record carries its own mutex held for the full
// check-and-mutate plus append, which is what serializes concurrent
// deposits, withdrawals and transfers on the same account.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	byEmail  map[string]string
	accounts map[string]*memAccount
}

type memAccount struct {
	mu   sync.Mutex
	acct models.Account
	txs  []models.Transaction
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*models.User),
		byEmail:  make(map[string]string),
		accounts: make(map[string]*memAccount),
	}
}

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, exists := m.byEmail[key]; exists {
		return models.ErrDuplicateEmail
	}
	cp := *u
	m.users[u.ID] = &cp
	m.byEmail[key] = u.ID
	return nil
}

func (m *Memory) UserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) AllUsers(_ context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateAccount(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[a.ID] = &memAccount{acct: *a}
	return nil
}

func (m *Memory) AccountByID(_ context.Context, id string) (*models.Account, error) {
	rec, err := m.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	cp := rec.acct
	return &cp, nil
}

func (m *Memory) AccountsByOwner(_ context.Context, userID string) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Account
	for _, rec := range m.accounts {
		rec.mu.Lock()
		if rec.acct.OwnerUserID == userID {
			out = append(out, rec.acct)
		}
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AllAccounts(_ context.Context) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Account, 0, len(m.accounts))
	for _, rec := range m.accounts {
		rec.mu.Lock()
		out = append(out, rec.acct)
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateAccount(_ context.Context, id string, fn ApplyFunc) error {
	rec, err := m.record(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	work := rec.acct
	entries, err := fn(&work)
	if err != nil {
		return err
	}
	work.UpdatedAt = time.Now()
	rec.acct = work
	rec.txs = append(rec.txs, entries...)
	return nil
}

func (m *Memory) UpdateAccountPair(_ context.Context, firstID, secondID string, fn ApplyPairFunc) error {
	if firstID == secondID {
		return models.ErrSameAccount
	}
	first, err := m.record(firstID)
	if err != nil {
		return err
	}
	second, err := m.record(secondID)
	if err != nil {
		return err
	}

	// Lock in ascending id order so opposing transfers cannot deadlock.
	lo, hi := first, second
	if firstID > secondID {
		lo, hi = second, first
	}
	lo.mu.Lock()
	defer lo.mu.Unlock()
	hi.mu.Lock()
	defer hi.mu.Unlock()

	workFirst, workSecond := first.acct, second.acct
	entries, err := fn(&workFirst, &workSecond)
	if err != nil {
		return err
	}
	now := time.Now()
	workFirst.UpdatedAt = now
	workSecond.UpdatedAt = now
	first.acct = workFirst
	second.acct = workSecond
	for _, e := range entries {
		switch e.AccountID {
		case firstID:
			first.txs = append(first.txs, e)
		case secondID:
			second.txs = append(second.txs, e)
		}
	}
	return nil
}

func (m *Memory) TransactionsForAccount(_ context.Context, accountID string) ([]models.Transaction, error) {
	rec, err := m.record(accountID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Newest first, matching the durable backend.
	out := make([]models.Transaction, len(rec.txs))
	for i, tx := range rec.txs {
		out[len(rec.txs)-1-i] = tx
	}
	return out, nil
}

func (m *Memory) record(id string) (*memAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return rec, nil
}
