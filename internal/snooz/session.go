package snooz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/ble"
)

// Logger defines the logging interface used by the Session.
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

// DefaultDebounce is the quiescent period applied to raw state-change
// notifications before a coalesced event is emitted.
const DefaultDebounce = 250 * time.Millisecond

// Binding records the outcome of a successful discovery match: the raw
// advertisement, its classification, and a derived display name.
type Binding struct {
	Advertisement ble.Advertisement
	Info          AdvertisementInfo
	DisplayName   string
}

// SessionConfig carries the configured identity and collaborators for a
// Session.
type SessionConfig struct {
	// DeviceName is the unique identity key used in all protocol messages.
	DeviceName string

	// Address is the optional configured hardware address.
	Address string

	// MatchName is the optional advertised-name matcher.
	MatchName string

	// Password is the normalised pairing secret, opaque to this layer.
	Password string

	Factory    ControllerFactory
	Classifier Classifier

	// Debounce overrides DefaultDebounce when non-zero. Tests shorten it.
	Debounce time.Duration
}

// Session owns one configured device identity: its binding (once discovered),
// the external control session, the cached state snapshot and the
// state-change debouncer.
//
// Lifecycle: Unbound → (Bind) → Bound → (Start) → Connected. A Session binds
// at most once; re-binding after disconnect is the rescan supervisor's
// responsibility and only happens while unbound.
//
// All public methods are safe for concurrent use.
type Session struct {
	deviceName string
	matchName  string
	password   string

	factory    ControllerFactory
	classifier Classifier
	debounce   time.Duration
	logger     Logger

	mu          sync.Mutex
	address     string
	binding     *Binding
	controller  Controller
	unsubscribe func()
	state       State
	callbacks   []func(Event)
	timer       *time.Timer
	stopped     bool
}

// NewSession creates an unbound Session for one configured identity.
func NewSession(cfg SessionConfig) *Session {
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = DefaultClassifier{}
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	return &Session{
		deviceName: cfg.DeviceName,
		matchName:  cfg.MatchName,
		password:   cfg.Password,
		address:    strings.ToUpper(cfg.Address),
		factory:    cfg.Factory,
		classifier: classifier,
		debounce:   debounce,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// Name returns the configured device name.
func (s *Session) Name() string {
	return s.deviceName
}

// Address returns the current hardware address: the configured one while
// unbound, the discovered one once bound.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// MatchName returns the configured advertised-name matcher, if any.
func (s *Session) MatchName() string {
	return s.matchName
}

// OnStateChange registers a callback for debounced state-change events.
// Callbacks are invoked from the debounce timer's goroutine in registration
// order.
func (s *Session) OnStateChange(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Ready reports whether the session is bound to a discovered device.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding != nil && s.controller != nil
}

// Bind associates the session with a discovered advertisement.
//
// It returns false without error when the advertisement cannot be classified
// into a supported model/firmware pair, when the control session cannot be
// created, or when the session is already bound (a concurrent bind race lost).
// On success the discovered hardware address replaces the configured one and
// the session subscribes to the control session's state-change notifications.
func (s *Session) Bind(adv ble.Advertisement) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.binding != nil {
		return false
	}

	name := adv.LocalName
	if name == "" {
		name = "Snooz"
	}

	info := s.classifier.Classify(name, adv, s.password)
	if info == nil {
		s.logger.Debug("advertisement not classified as supported device",
			"device", s.deviceName,
			"address", adv.Address,
		)
		return false
	}

	controller, err := s.factory.NewController(adv, *info)
	if err != nil {
		s.logger.Warn("creating control session failed",
			"device", s.deviceName,
			"address", adv.Address,
			"error", err,
		)
		return false
	}

	displayName := DisplayName(name, adv.Address)
	s.binding = &Binding{
		Advertisement: adv,
		Info:          *info,
		DisplayName:   displayName,
	}
	s.controller = controller
	s.address = strings.ToUpper(adv.Address)
	s.unsubscribe = controller.Subscribe(s.handleNotification)

	s.logger.Info("bound discovery",
		"device", s.deviceName,
		"display_name", displayName,
		"address", adv.Address,
		"model", info.Model,
		"firmware", info.Firmware,
	)
	return true
}

// Start establishes the control session and performs one forced state read
// so a snapshot is available before any command has been issued.
//
// It fails with ErrNotBound before a successful Bind. Connect or read
// failures are returned to the caller; the binding is kept either way.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	controller := s.controller
	s.mu.Unlock()

	if controller == nil {
		return fmt.Errorf("%s: %w", s.deviceName, ErrNotBound)
	}

	if err := controller.Connect(ctx); err != nil {
		return fmt.Errorf("%s: connecting: %w", s.deviceName, err)
	}

	s.logger.Info("connected",
		"device", s.deviceName,
		"status", controller.ConnectionStatus(),
	)

	if err := s.RefreshState(ctx); err != nil {
		return fmt.Errorf("%s: initial state read: %w", s.deviceName, err)
	}
	return nil
}

// RefreshState performs a forced (non-cached) state read. It is a no-op when
// the session is unbound or disconnected. Only a read that differs from the
// cached snapshot triggers the debounced notification path.
func (s *Session) RefreshState(ctx context.Context) error {
	s.mu.Lock()
	controller := s.controller
	s.mu.Unlock()

	if controller == nil || !controller.Connected() {
		return nil
	}

	state, err := controller.ReadState(ctx, false)
	if err != nil {
		return fmt.Errorf("%s: reading state: %w", s.deviceName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Equal(s.state) {
		return nil
	}
	s.state = state
	s.restartDebounceLocked()
	return nil
}

// Execute runs one device command on the control session. Callers are
// expected to hold the fleet-wide operation gate.
func (s *Session) Execute(ctx context.Context, cmd Command) (CommandResult, error) {
	s.mu.Lock()
	controller := s.controller
	s.mu.Unlock()

	if controller == nil {
		return CommandResult{}, fmt.Errorf("%s: %w", s.deviceName, ErrNotBound)
	}
	return controller.Execute(ctx, cmd)
}

// Connected reports whether the control session is currently usable.
func (s *Session) Connected() bool {
	s.mu.Lock()
	controller := s.controller
	s.mu.Unlock()
	return controller != nil && controller.Connected()
}

// Snapshot returns the current cached view of the device. It never blocks on
// the radio; all optional fields are nil until a binding and a first read
// exist.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Stop cancels any pending debounce timer, unsubscribes from notifications
// and requests disconnect. Disconnect failures are logged, not raised.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	controller := s.controller
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if controller != nil {
		if err := controller.Disconnect(ctx); err != nil {
			s.logger.Debug("error during disconnect",
				"device", s.deviceName,
				"error", err,
			)
		}
	}
}

// handleNotification receives raw state-change notifications from the
// control session. Bursts are coalesced: each notification replaces the
// cached state and restarts the debounce timer, so the eventual event
// reflects the latest state.
func (s *Session) handleNotification(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.state = state
	s.restartDebounceLocked()
}

// restartDebounceLocked cancels any pending emission and schedules a new one.
// Callers must hold s.mu.
func (s *Session) restartDebounceLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.emit)
}

// emit delivers one coalesced state-change event to registered callbacks.
func (s *Session) emit() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	event := Event{
		DeviceName: s.deviceName,
		State:      s.snapshotLocked(),
	}
	callbacks := make([]func(Event), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, fn := range callbacks {
		s.safeCallback(fn, event)
	}
}

// safeCallback invokes one callback with panic isolation.
func (s *Session) safeCallback(fn func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state callback panic recovered",
				"device", s.deviceName,
				"panic", r,
			)
		}
	}()
	fn(event)
}

// snapshotLocked builds the snapshot. Callers must hold s.mu.
func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		DeviceName:       s.deviceName,
		Address:          s.address,
		ConnectionStatus: StatusUnknown,
		State:            s.state,
	}
	if s.binding != nil {
		displayName := s.binding.DisplayName
		model := string(s.binding.Info.Model)
		firmware := string(s.binding.Info.Firmware)
		snap.DisplayName = &displayName
		snap.Model = &model
		snap.FirmwareVersion = &firmware
	}
	if s.controller != nil {
		snap.Connected = s.controller.Connected()
		snap.ConnectionStatus = s.controller.ConnectionStatus()
	}
	return snap
}
