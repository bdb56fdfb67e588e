package config

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/packet"
	"github.com/iniwex5/shaiya-go/pkg/server"
	"github.com/iniwex5/shaiya-go/pkg/wire"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte(""))
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "console", cfg.Logging.Format)
	require.Equal(t, crypto.DefaultSuite(), cfg.CryptoSuite())
	require.Equal(t, defaultAddress, cfg.Server.Address)
	require.Equal(t, defaultAddress, cfg.Client.Address)
	require.Equal(t, uint32(wire.DefaultMaxFrameSize), cfg.Server.MaxFrameSize)
	require.Equal(t, 10*time.Second, cfg.Server.HandshakeTimeout.Duration)
	require.Equal(t, server.DefaultMaxRejects, cfg.Server.MaxRejects)
	require.Empty(t, cfg.ServerList())
}

func TestLoadFull(t *testing.T) {
	hash, err := server.HashPassword("hunter2", bcrypt.MinCost)
	require.NoError(t, err)

	doc := fmt.Sprintf(`
[Logging]
Level = "DEBUG"
Format = "json"

[Suite]
Exchange = "x25519-box"
Cipher = "chacha20"
Counter = 32
Digest = "blake2b-256"

[Server]
Address = "0.0.0.0:30800"
HandshakeTimeout = "3s"
IdleTimeout = "5m"
MaxRejects = 5
MetricsAddress = "127.0.0.1:9100"

[Client]
Address = "login.example:30800"
RequestTimeout = "2s"

[[Accounts]]
Username = "alice"
PasswordHash = %q
UserID = 42
Privilege = 1

[[GameServers]]
ID = 1
Name = "Teos"
Players = 10
Capacity = 500

[[GameServers]]
ID = 2
Name = "Pantanasa"
Status = "locked"
`, hash)

	cfg, err := Load([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)

	s := cfg.CryptoSuite()
	require.Equal(t, crypto.ExchangeX25519Box, s.Exchange)
	require.Equal(t, 0, s.ExchangeBits)
	require.Equal(t, crypto.CipherChaCha20, s.Cipher)
	require.Equal(t, crypto.Counter32, s.Counter)
	require.Equal(t, crypto.DigestBLAKE2b256, s.Digest)

	sc := cfg.ServerConfig()
	require.Equal(t, 3*time.Second, sc.HandshakeTimeout)
	require.Equal(t, 5*time.Minute, sc.IdleTimeout)
	require.Equal(t, 5, sc.MaxRejects)
	require.Equal(t, []packet.ServerEntry{
		{ID: 1, Status: packet.ServerNormal, Players: 10, Capacity: 500, Name: "Teos"},
		{ID: 2, Status: packet.ServerLocked, Name: "Pantanasa"},
	}, sc.Servers)
	require.Equal(t, "login.example:30800", cfg.Client.Address)
	require.Equal(t, 2*time.Second, cfg.Client.RequestTimeout.Duration)

	auth, err := cfg.Authenticator()
	require.NoError(t, err)
	acct, err := auth.Authenticate("alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, uint32(42), acct.UserID)
	_, err = auth.Authenticate("alice", "wrong")
	require.ErrorIs(t, err, server.ErrInvalidCredentials)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"syntax":          `[Server`,
		"unknown key":     "[Server]\nPort = 1\n",
		"log level":       "[Logging]\nLevel = \"loud\"\n",
		"log format":      "[Logging]\nFormat = \"xml\"\n",
		"cipher":          "[Suite]\nCipher = \"des\"\n",
		"counter":         "[Suite]\nCounter = 16\n",
		"rsa bits":        "[Suite]\nExchangeBits = 100\n",
		"duration":        "[Server]\nIdleTimeout = \"soon\"\n",
		"empty username":  "[[Accounts]]\nPasswordHash = \"x\"\n",
		"missing hash":    "[[Accounts]]\nUsername = \"bob\"\n",
		"duplicate user":  "[[Accounts]]\nUsername = \"bob\"\nPasswordHash = \"x\"\n[[Accounts]]\nUsername = \"bob\"\nPasswordHash = \"y\"\n",
		"server status":   "[[GameServers]]\nID = 1\nStatus = \"busy\"\n",
		"both accounts":   "[Server]\nAccountsDB = \"a.db\"\n[[Accounts]]\nUsername = \"bob\"\nPasswordHash = \"x\"\n",
		"duplicate id":    "[[GameServers]]\nID = 1\n[[GameServers]]\nID = 1\n",
		"long name":       "[[GameServers]]\nName = \"" + string(bytes.Repeat([]byte("n"), packet.ServerNameLen+1)) + "\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(doc))
			require.Error(t, err)
		})
	}

	_, err := Load(nil)
	require.Error(t, err)
	_, err = LoadFile("/nonexistent/shaiya.toml")
	require.Error(t, err)
}

func TestAuthenticatorRejectsBadHash(t *testing.T) {
	cfg, err := Load([]byte("[[Accounts]]\nUsername = \"bob\"\nPasswordHash = \"plaintext\"\n"))
	require.NoError(t, err)
	_, err = cfg.Authenticator()
	require.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	cfg, err := Load([]byte("[Server]\nIdleTimeout = \"90s\"\n[[GameServers]]\nID = 7\nName = \"Ruins\"\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Store(cfg, &buf))

	again, err := Load(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}
