package userrepofakes

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-session/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	accounts map[string]*users.Account
	emails   map[string]string // lower-cased email -> user ID
	lock     sync.RWMutex
}

func NewFakeUserRepo() users.Repo {
	return &FakeUserRepo{
		accounts: make(map[string]*users.Account),
		emails:   make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(account *users.Account) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	ur.accounts[account.ID] = account
	ur.emails[strings.ToLower(account.Email)] = account.ID
	return nil
}

func (ur *FakeUserRepo) GetByID(userID string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	account, ok := ur.accounts[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	return account, nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	id, ok := ur.emails[strings.ToLower(email)]
	if !ok {
		return nil, errors.New("not found")
	}
	return ur.accounts[id], nil
}
