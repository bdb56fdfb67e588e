package accountdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iniwex5/shaiya-go/pkg/server"
)

func hash(t *testing.T, pw string) []byte {
	h, err := server.HashPassword(pw, bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestAccountDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.db")
	db, err := Open(path)
	require.NoError(t, err)

	acct := server.Account{UserID: 7, Privilege: 2}
	require.NoError(t, db.Put("alice", hash(t, "hunter2"), acct, false))
	require.ErrorIs(t, db.Put("alice", hash(t, "other"), acct, false), ErrExists)
	require.ErrorIs(t, db.Put("bob", hash(t, "pw"), acct, true), ErrNotFound)
	require.Error(t, db.Put("", hash(t, "pw"), acct, false))
	require.Error(t, db.Put("carol", []byte("not a hash"), acct, false))

	got, err := db.Authenticate("alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, &acct, got)

	_, err = db.Authenticate("alice", "wrong")
	require.ErrorIs(t, err, server.ErrInvalidCredentials)
	_, err = db.Authenticate("nobody", "hunter2")
	require.ErrorIs(t, err, server.ErrUnknownAccount)

	disabled := server.Account{UserID: 7, Privilege: 2, Disabled: true}
	require.NoError(t, db.Put("alice", hash(t, "hunter2"), disabled, true))
	require.NoError(t, db.Put("bob", hash(t, "pw"), server.Account{UserID: 8}, false))

	names, err := db.Usernames()
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, names)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	_, err = db.Get("alice")
	require.ErrorIs(t, err, ErrClosed)

	// Reopening keeps every account.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	got, err = db.Get("alice")
	require.NoError(t, err)
	require.True(t, got.Disabled)

	require.NoError(t, db.Remove("bob"))
	require.ErrorIs(t, db.Remove("bob"), ErrNotFound)
	_, err = db.Get("bob")
	require.ErrorIs(t, err, ErrNotFound)
}
