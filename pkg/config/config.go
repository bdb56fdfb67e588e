// Package config loads the shaiyactl TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/packet"
	"github.com/iniwex5/shaiya-go/pkg/server"
	"github.com/iniwex5/shaiya-go/pkg/wire"
)

const (
	defaultLogLevel         = "info"
	defaultLogFormat        = "console"
	defaultAddress          = "127.0.0.1:30800"
	defaultHandshakeTimeout = 10 * time.Second
)

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Logging struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "console" or "json".
	Format string
}

func (lCfg *Logging) validate() error {
	switch strings.ToLower(lCfg.Level) {
	case "":
		lCfg.Level = defaultLogLevel
	case "debug", "info", "warn", "warning", "error":
		lCfg.Level = strings.ToLower(lCfg.Level)
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	switch lCfg.Format {
	case "":
		lCfg.Format = defaultLogFormat
	case "console", "json":
	default:
		return fmt.Errorf("config: Logging: Format '%v' is invalid", lCfg.Format)
	}
	return nil
}

// Suite names the algorithms; see crypto.Suite.
type Suite struct {
	Exchange     string
	ExchangeBits int
	Cipher       string
	Counter      int
	Digest       string
}

// Build converts the names into a validated crypto.Suite. Empty fields
// take the default suite's value.
func (sCfg *Suite) Build() (crypto.Suite, error) {
	s := crypto.DefaultSuite()
	var err error
	if sCfg.Exchange != "" {
		if s.Exchange, err = crypto.ParseExchange(sCfg.Exchange); err != nil {
			return crypto.Suite{}, fmt.Errorf("config: Suite: %w", err)
		}
	}
	if sCfg.ExchangeBits != 0 {
		s.ExchangeBits = sCfg.ExchangeBits
	}
	if s.Exchange == crypto.ExchangeX25519Box {
		s.ExchangeBits = 0
	}
	if sCfg.Cipher != "" {
		if s.Cipher, err = crypto.ParseCipher(sCfg.Cipher); err != nil {
			return crypto.Suite{}, fmt.Errorf("config: Suite: %w", err)
		}
	}
	if sCfg.Counter != 0 {
		if s.Counter, err = crypto.ParseCounterWidth(sCfg.Counter); err != nil {
			return crypto.Suite{}, fmt.Errorf("config: Suite: %w", err)
		}
	}
	if sCfg.Digest != "" {
		if s.Digest, err = crypto.ParseDigest(sCfg.Digest); err != nil {
			return crypto.Suite{}, fmt.Errorf("config: Suite: %w", err)
		}
	}
	if err := s.Validate(); err != nil {
		return crypto.Suite{}, fmt.Errorf("config: Suite: %w", err)
	}
	return s, nil
}

type Server struct {
	Address string
	// PrivateKeyFile is a PEM key from `shaiyactl keygen`. When empty a
	// fresh key pair is generated per connection.
	PrivateKeyFile   string
	MaxFrameSize     uint32
	HandshakeTimeout Duration
	IdleTimeout      Duration
	MaxRejects       int
	LockMemory       bool
	// MetricsAddress enables the Prometheus endpoint when set.
	MetricsAddress string
	// AccountsDB is a bbolt account database. When set it replaces the
	// [[Accounts]] table.
	AccountsDB string
}

func (sCfg *Server) applyDefaults() {
	if sCfg.Address == "" {
		sCfg.Address = defaultAddress
	}
	if sCfg.MaxFrameSize == 0 {
		sCfg.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	if sCfg.HandshakeTimeout.Duration <= 0 {
		sCfg.HandshakeTimeout.Duration = defaultHandshakeTimeout
	}
	if sCfg.MaxRejects <= 0 {
		sCfg.MaxRejects = server.DefaultMaxRejects
	}
}

type Client struct {
	Address    string
	LockMemory bool
	// RequestTimeout bounds the wait for each response; zero selects the
	// client default.
	RequestTimeout Duration
}

type Account struct {
	Username string
	// PasswordHash is a bcrypt hash, see `shaiyactl hashpw`.
	PasswordHash string
	UserID       uint32
	Privilege    uint8
	Disabled     bool
}

type GameServer struct {
	ID       uint8
	Name     string
	Status   string
	Players  uint16
	Capacity uint16
}

type Config struct {
	Logging     *Logging
	Suite       *Suite
	Server      *Server
	Client      *Client
	Accounts    []*Account
	GameServers []*GameServer
}

// FixupAndValidate applies defaults and checks every section.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if cfg.Suite == nil {
		cfg.Suite = &Suite{}
	}
	if _, err := cfg.Suite.Build(); err != nil {
		return err
	}
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	cfg.Server.applyDefaults()
	if cfg.Client == nil {
		cfg.Client = &Client{}
	}
	if cfg.Client.Address == "" {
		cfg.Client.Address = cfg.Server.Address
	}

	if cfg.Server.AccountsDB != "" && len(cfg.Accounts) != 0 {
		return errors.New("config: Server.AccountsDB and [[Accounts]] are mutually exclusive")
	}
	seen := make(map[string]bool)
	for i, a := range cfg.Accounts {
		if a.Username == "" || len(a.Username) > packet.UsernameLen {
			return fmt.Errorf("config: Accounts[%d]: Username '%v' is invalid", i, a.Username)
		}
		if seen[a.Username] {
			return fmt.Errorf("config: Accounts[%d]: duplicate Username '%v'", i, a.Username)
		}
		seen[a.Username] = true
		if a.PasswordHash == "" {
			return fmt.Errorf("config: Accounts[%d]: PasswordHash is empty", i)
		}
	}
	ids := make(map[uint8]bool)
	for i, g := range cfg.GameServers {
		if len(g.Name) > packet.ServerNameLen {
			return fmt.Errorf("config: GameServers[%d]: Name '%v' is too long", i, g.Name)
		}
		if ids[g.ID] {
			return fmt.Errorf("config: GameServers[%d]: duplicate ID %d", i, g.ID)
		}
		ids[g.ID] = true
		if g.Status == "" {
			g.Status = packet.ServerNormal.String()
		}
		if _, err := packet.ParseServerStatus(g.Status); err != nil {
			return fmt.Errorf("config: GameServers[%d]: %w", i, err)
		}
	}
	return nil
}

// CryptoSuite returns the validated suite.
func (cfg *Config) CryptoSuite() crypto.Suite {
	s, _ := cfg.Suite.Build()
	return s
}

// ServerList converts GameServers into packet entries.
func (cfg *Config) ServerList() []packet.ServerEntry {
	out := make([]packet.ServerEntry, 0, len(cfg.GameServers))
	for _, g := range cfg.GameServers {
		st, _ := packet.ParseServerStatus(g.Status)
		out = append(out, packet.ServerEntry{
			ID:       g.ID,
			Status:   st,
			Players:  g.Players,
			Capacity: g.Capacity,
			Name:     g.Name,
		})
	}
	return out
}

// Authenticator builds an in-memory authenticator from Accounts.
func (cfg *Config) Authenticator() (*server.StaticAuthenticator, error) {
	auth := server.NewStaticAuthenticator()
	for _, a := range cfg.Accounts {
		err := auth.Add(a.Username, []byte(a.PasswordHash), server.Account{
			UserID:    a.UserID,
			Privilege: a.Privilege,
			Disabled:  a.Disabled,
		})
		if err != nil {
			return nil, fmt.Errorf("config: account %q: %w", a.Username, err)
		}
	}
	return auth, nil
}

// ServerConfig assembles the login server settings.
func (cfg *Config) ServerConfig() server.Config {
	return server.Config{
		Suite:            cfg.CryptoSuite(),
		MaxFrameSize:     cfg.Server.MaxFrameSize,
		HandshakeTimeout: cfg.Server.HandshakeTimeout.Duration,
		IdleTimeout:      cfg.Server.IdleTimeout.Duration,
		MaxRejects:       cfg.Server.MaxRejects,
		LockMemory:       cfg.Server.LockMemory,
		Servers:          cfg.ServerList(),
	}
}

// Load parses and validates a config file body.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: nil buffer")
	}
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// Store writes cfg as TOML.
func Store(cfg *Config, w io.Writer) error {
	return toml.NewEncoder(w).Encode(cfg)
}
