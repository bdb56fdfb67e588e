// Package accountdb is a bbolt backed account store for the login server.
// Records are CBOR encoded and keyed by username.
package accountdb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/iniwex5/shaiya-go/pkg/packet"
	"github.com/iniwex5/shaiya-go/pkg/server"
)

const (
	metadataBucket = "metadata"
	accountsBucket = "accounts"
	versionKey     = "version"
	schemaVersion  = 0
)

var (
	ErrExists   = errors.New("accountdb: account already exists")
	ErrNotFound = errors.New("accountdb: no such account")
	ErrClosed   = errors.New("accountdb: database is closed")
)

type record struct {
	Hash      []byte `cbor:"1,keyasint"`
	UserID    uint32 `cbor:"2,keyasint"`
	Privilege uint8  `cbor:"3,keyasint"`
	Disabled  bool   `cbor:"4,keyasint"`
}

// DB implements server.Authenticator.
type DB struct {
	mu    sync.RWMutex
	db    *bolt.DB
	dummy []byte
}

var _ server.Authenticator = (*DB)(nil)

// Open creates or loads the database at path.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(accountsBucket)); err != nil {
			return err
		}
		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != schemaVersion {
				return fmt.Errorf("accountdb: incompatible version %x", b)
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{schemaVersion})
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("unused"), bcrypt.DefaultCost)
	return &DB{db: bdb, dummy: dummy}, nil
}

func checkUsername(u string) error {
	if u == "" || len(u) > packet.UsernameLen {
		return fmt.Errorf("accountdb: invalid username %q", u)
	}
	return nil
}

func (d *DB) view(fn func(b *bolt.Bucket) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return ErrClosed
	}
	return d.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket([]byte(accountsBucket)))
	})
}

func (d *DB) update(fn func(b *bolt.Bucket) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return ErrClosed
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket([]byte(accountsBucket)))
	})
}

// Put stores an account. An existing account is only replaced when update
// is set, and update requires the account to exist.
func (d *DB) Put(username string, passwordHash []byte, acct server.Account, update bool) error {
	if err := checkUsername(username); err != nil {
		return err
	}
	if _, err := bcrypt.Cost(passwordHash); err != nil {
		return err
	}
	raw, err := cbor.Marshal(record{
		Hash:      passwordHash,
		UserID:    acct.UserID,
		Privilege: acct.Privilege,
		Disabled:  acct.Disabled,
	})
	if err != nil {
		return err
	}
	return d.update(func(b *bolt.Bucket) error {
		exists := b.Get([]byte(username)) != nil
		switch {
		case exists && !update:
			return ErrExists
		case !exists && update:
			return ErrNotFound
		}
		return b.Put([]byte(username), raw)
	})
}

func (d *DB) Remove(username string) error {
	return d.update(func(b *bolt.Bucket) error {
		if b.Get([]byte(username)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(username))
	})
}

func (d *DB) get(username string) (*record, error) {
	var rec *record
	err := d.view(func(b *bolt.Bucket) error {
		raw := b.Get([]byte(username))
		if raw == nil {
			return ErrNotFound
		}
		rec = new(record)
		return cbor.Unmarshal(raw, rec)
	})
	return rec, err
}

func (d *DB) Get(username string) (*server.Account, error) {
	rec, err := d.get(username)
	if err != nil {
		return nil, err
	}
	return &server.Account{UserID: rec.UserID, Privilege: rec.Privilege, Disabled: rec.Disabled}, nil
}

// Usernames lists accounts in key order.
func (d *DB) Usernames() ([]string, error) {
	var out []string
	err := d.view(func(b *bolt.Bucket) error {
		return b.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func (d *DB) Authenticate(username, password string) (*server.Account, error) {
	rec, err := d.get(username)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(d.dummy, []byte(password))
		return nil, server.ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(rec.Hash, []byte(password)); err != nil {
		return nil, server.ErrInvalidCredentials
	}
	return &server.Account{UserID: rec.UserID, Privilege: rec.Privilege, Disabled: rec.Disabled}, nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}
