// Package session keeps one cart engine per browser device.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/cartsync"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/domain"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/store"
)

// session is the engine of one device.
type session struct {
	// mu serializes operations on the engine together with the scope they
	// run under.
	mu          sync.Mutex
	engine      *cartsync.Engine
	initialized bool

	// guarded by Manager.mu
	lastSeen time.Time
	inUse    int
}

// Manager owns the device sessions and evicts the ones left idle. Evicted
// sessions lose nothing: their carts live in the KV.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	kv       store.KV
	remote   cartsync.Remote
	events   cartsync.EventPublisher
	logger   *slog.Logger
	idleTTL  time.Duration
	nowFunc  func() time.Time // injectable clock for testing

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a Manager and starts its eviction loop, which runs
// every idleTTL. events may be nil.
func NewManager(kv store.KV, remote cartsync.Remote, events cartsync.EventPublisher, log *slog.Logger, idleTTL time.Duration) *Manager {
	m := &Manager{
		sessions: make(map[string]*session),
		kv:       kv,
		remote:   remote,
		events:   events,
		logger:   log,
		idleTTL:  idleTTL,
		nowFunc:  time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Op is an operation run against a device's engine.
type Op func(engine *cartsync.Engine) (cartsync.State, error)

// Do runs op on the engine of deviceID with scope active. A scope different
// from the engine's current one (a login or a logout) is applied through
// SwitchScope first. The session stays locked until op returns, so a
// concurrent request for another scope on the same device cannot switch the
// engine underneath op.
func (m *Manager) Do(ctx context.Context, deviceID string, scope domain.Scope, op Op) (cartsync.State, error) {
	s := m.acquire(deviceID)
	defer m.release(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized || s.engine.Scope() != scope {
		if s.initialized {
			logger.WithContext(ctx, m.logger).InfoContext(ctx, "device scope changed",
				slog.String("device_id", deviceID),
				slog.String("scope", scope.String()),
			)
		}
		s.engine.SwitchScope(ctx, scope)
		s.initialized = true
	}
	return op(s.engine)
}

// acquire returns the session of deviceID, creating it if needed, and marks
// it in use so cleanup leaves it alone.
func (m *Manager) acquire(deviceID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceID]
	if !ok {
		persistence := store.NewPersistence(store.Prefixed(m.kv, store.DeviceNamespace(deviceID)), m.logger)
		s = &session{engine: cartsync.NewEngine(m.remote, persistence, m.events, m.logger)}
		m.sessions[deviceID] = s
	}
	s.inUse++
	s.lastSeen = m.nowFunc()
	return s
}

func (m *Manager) release(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.inUse--
	s.lastSeen = m.nowFunc()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the eviction loop.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
}

func (m *Manager) cleanupLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

// cleanup evicts all sessions whose lastSeen is older than the idle TTL.
// Sessions with an operation in flight are kept.
func (m *Manager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	evicted := 0
	for id, s := range m.sessions {
		if s.inUse == 0 && now.Sub(s.lastSeen) > m.idleTTL {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Debug("idle cart sessions evicted",
			slog.Int("evicted", evicted),
			slog.Int("remaining", len(m.sessions)),
		)
	}
}
