package server

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnknownAccount     = errors.New("server: account does not exist")
	ErrInvalidCredentials = errors.New("server: invalid credentials")
)

// Account is what a successful login reveals about a user.
type Account struct {
	UserID    uint32
	Privilege uint8
	Disabled  bool
}

// Authenticator checks login credentials. It returns ErrUnknownAccount or
// ErrInvalidCredentials for rejected logins; any other error is treated as
// a backend failure.
type Authenticator interface {
	Authenticate(username, password string) (*Account, error)
}

type staticAccount struct {
	Account
	hash []byte
}

// StaticAuthenticator holds accounts in memory with bcrypt password hashes.
type StaticAuthenticator struct {
	mu       sync.RWMutex
	accounts map[string]staticAccount
	// dummy is compared against for unknown users so both paths cost a
	// bcrypt evaluation.
	dummy []byte
}

func NewStaticAuthenticator() *StaticAuthenticator {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("unused"), bcrypt.DefaultCost)
	return &StaticAuthenticator{
		accounts: make(map[string]staticAccount),
		dummy:    dummy,
	}
}

// Add registers username with a bcrypt hash as produced by HashPassword.
func (a *StaticAuthenticator) Add(username string, passwordHash []byte, acct Account) error {
	if _, err := bcrypt.Cost(passwordHash); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[username] = staticAccount{Account: acct, hash: append([]byte(nil), passwordHash...)}
	return nil
}

func (a *StaticAuthenticator) Authenticate(username, password string) (*Account, error) {
	a.mu.RLock()
	acct, ok := a.accounts[username]
	a.mu.RUnlock()

	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return nil, ErrUnknownAccount
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	out := acct.Account
	return &out, nil
}

// HashPassword returns a bcrypt hash suitable for StaticAuthenticator.Add.
func HashPassword(password string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(password), cost)
}
