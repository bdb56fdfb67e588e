package server

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"

	"github.com/iniwex5/shaiya-go/pkg/logger"
	"github.com/iniwex5/shaiya-go/pkg/wire"
)

var (
	ErrEmptyID       = errors.New("server: connection id is empty")
	ErrDuplicateID   = errors.New("server: connection id already exists")
	ErrUnknownID     = errors.New("server: connection id does not exist")
	ErrManagerClosed = errors.New("server: session manager is shut down")
)

// SessionManager tracks live connections by id. Whoever removes a
// connection from the manager closes it.
type SessionManager struct {
	mu      sync.Mutex
	conns   map[string]*wire.Conn
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		conns:   make(map[string]*wire.Conn),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start registers c and runs fn on it in a new goroutine. When fn returns
// the connection is removed and closed.
func (m *SessionManager) Start(ctx context.Context, id string, c *wire.Conn, fn func(context.Context, *wire.Conn) error) error {
	if id == "" {
		return ErrEmptyID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if _, ok := m.conns[id]; ok {
		return ErrDuplicateID
	}

	connCtx, cancel := context.WithCancel(ctx)
	m.conns[id] = c
	m.cancels[id] = cancel
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		err := fn(connCtx, c)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("connection ended", logger.String("id", id), logger.Err(err))
		}
		if m.remove(id) {
			if cerr := c.Close(); cerr != nil {
				logger.Debug("close connection", logger.String("id", id), logger.Err(cerr))
			}
		}
	}()
	return nil
}

// remove drops id and reports whether it was still registered.
func (m *SessionManager) remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.cancels[id]
	if !ok {
		return false
	}
	cancel()
	delete(m.cancels, id)
	delete(m.conns, id)
	return true
}

// Stop cancels and closes one connection.
func (m *SessionManager) Stop(id string) error {
	m.mu.Lock()
	c, ok := m.conns[id]
	m.mu.Unlock()
	if !ok || !m.remove(id) {
		return ErrUnknownID
	}
	return c.Close()
}

func (m *SessionManager) Get(id string) (*wire.Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	return c, ok
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Shutdown closes every connection, waits for their goroutines and
// refuses new ones.
func (m *SessionManager) Shutdown() error {
	m.mu.Lock()
	m.closed = true
	conns := m.conns
	cancels := m.cancels
	m.conns = make(map[string]*wire.Conn)
	m.cancels = make(map[string]context.CancelFunc)
	m.mu.Unlock()

	var err error
	for id, c := range conns {
		cancels[id]()
		err = multierr.Append(err, c.Close())
	}
	m.wg.Wait()
	return err
}
