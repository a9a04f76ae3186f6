package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/ble"
	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// Logger defines the logging interface used by the fleet package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Default discovery timings. The initial scan is longer because every
// configured identity is still unbound at startup; rescans are shorter and
// only target identities that are still missing.
const (
	DefaultInitialScanTimeout = 12 * time.Second
	DefaultRescanInterval     = 30 * time.Second
	DefaultRescanTimeout      = 8 * time.Second
)

// Config carries fleet timing settings. Zero values select the defaults.
type Config struct {
	InitialScanTimeout time.Duration
	RescanInterval     time.Duration
	RescanTimeout      time.Duration
}

// Manager owns the device fleet: the registry of configured identities, the
// shared operation gate, the event broadcaster and the rescan supervisor.
//
// The session map is mutated only during registration (startup) and is
// read-only afterwards, so lookups need no locking discipline beyond the
// registration mutex.
type Manager struct {
	cfg     Config
	scanner ble.Scanner
	gate    *Gate
	events  *Broadcaster
	logger  Logger

	mu      sync.RWMutex
	devices map[string]*snooz.Session
	order   []string

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a Manager using the given scanner for discovery.
func NewManager(cfg Config, scanner ble.Scanner) *Manager {
	if cfg.InitialScanTimeout == 0 {
		cfg.InitialScanTimeout = DefaultInitialScanTimeout
	}
	if cfg.RescanInterval == 0 {
		cfg.RescanInterval = DefaultRescanInterval
	}
	if cfg.RescanTimeout == 0 {
		cfg.RescanTimeout = DefaultRescanTimeout
	}
	return &Manager{
		cfg:     cfg,
		scanner: scanner,
		gate:    NewGate(),
		events:  NewBroadcaster(),
		logger:  noopLogger{},
		devices: make(map[string]*snooz.Session),
	}
}

// SetLogger sets the logger for the manager and its gate and broadcaster.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
	m.gate.SetLogger(logger)
	m.events.SetLogger(logger)
}

// AddDevice registers a session under its configured name and wires its
// state-change notifications into the event broadcaster. Registration is the
// only path by which a session becomes eligible for discovery and rescan.
//
// Returns ErrDuplicateDevice if the name is already registered.
func (m *Manager) AddDevice(session *snooz.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := session.Name()
	if _, exists := m.devices[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, name)
	}
	m.devices[name] = session
	m.order = append(m.order, name)

	session.OnStateChange(func(event snooz.Event) {
		m.events.Publish(context.Background(), event)
	})
	return nil
}

// RegisterListener adds an event listener (e.g. the WebSocket gateway).
func (m *Manager) RegisterListener(listener Listener) {
	m.events.Register(listener)
}

// DeviceNames returns all registered device names in registration order.
func (m *Manager) DeviceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Device retrieves a session by name.
// Returns ErrUnknownDevice if the name is not registered.
func (m *Manager) Device(name string) (*snooz.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return session, nil
}

// Start performs the initial discovery pass and launches the rescan
// supervisor. It is idempotent; a second call is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	m.initialDiscovery(ctx)

	// The rescan loop outlives the startup context; Stop cancels it.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.rescanLoop(loopCtx)
	}()
	return nil
}

// Stop cancels the rescan supervisor and stops every session. In-flight
// commands holding the operation gate are allowed to finish; the rescan
// loop's scan is bounded by its own timeout so it cannot leak indefinitely.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	for _, name := range m.DeviceNames() {
		if session, err := m.Device(name); err == nil {
			session.Stop(ctx)
		}
	}
}
