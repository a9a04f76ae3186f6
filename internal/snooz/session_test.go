package snooz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/ble"
)

// fakeController is a test implementation of Controller.
type fakeController struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	readState  State
	readErr    error
	forceReads int
	executed   []Command
	result     CommandResult
	execErr    error
	notify     func(State)
}

func (f *fakeController) Connect(_ context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeController) Disconnect(_ context.Context) error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeController) Execute(_ context.Context, cmd Command) (CommandResult, error) {
	f.mu.Lock()
	f.executed = append(f.executed, cmd)
	f.mu.Unlock()
	if f.execErr != nil {
		return CommandResult{}, f.execErr
	}
	return f.result, nil
}

func (f *fakeController) ReadState(_ context.Context, useCached bool) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !useCached {
		f.forceReads++
	}
	if f.readErr != nil {
		return State{}, f.readErr
	}
	return f.readState, nil
}

func (f *fakeController) Subscribe(fn func(State)) func() {
	f.mu.Lock()
	f.notify = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.notify = nil
		f.mu.Unlock()
	}
}

func (f *fakeController) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeController) ConnectionStatus() string {
	if f.Connected() {
		return StatusConnected
	}
	return StatusDisconnected
}

func (f *fakeController) fire(state State) {
	f.mu.Lock()
	fn := f.notify
	f.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// fakeFactory is a test implementation of ControllerFactory.
type fakeFactory struct {
	controller *fakeController
	err        error
}

func (f *fakeFactory) NewController(_ ble.Advertisement, _ AdvertisementInfo) (Controller, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.controller, nil
}

func supportedAdv() ble.Advertisement {
	return advWithPayload("Snooz-1234", payloadWithFlags(0x02))
}

func newTestSession(t *testing.T, ctrl *fakeController) *Session {
	t.Helper()
	return NewSession(SessionConfig{
		DeviceName: "bedroom",
		Address:    "aa:bb:cc:dd:ee:ff",
		Password:   "0123456789abcdef",
		Factory:    &fakeFactory{controller: ctrl},
		Debounce:   20 * time.Millisecond,
	})
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestSession_BindRejectsUnsupported(t *testing.T) {
	sess := newTestSession(t, &fakeController{})

	adv := ble.Advertisement{Address: "AA", LocalName: "Gadget"}
	if sess.Bind(adv) {
		t.Error("Bind() = true for unclassifiable advertisement, want false")
	}
	if sess.Ready() {
		t.Error("Ready() = true after failed bind")
	}
}

func TestSession_BindRecordsDiscovery(t *testing.T) {
	sess := newTestSession(t, &fakeController{})

	if !sess.Bind(supportedAdv()) {
		t.Fatal("Bind() = false for supported advertisement")
	}
	if !sess.Ready() {
		t.Error("Ready() = false after successful bind")
	}
	if sess.Address() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Address() = %q, want discovered upper-cased address", sess.Address())
	}

	// Binding is once-only; a concurrent rescan match must not double-bind.
	if sess.Bind(supportedAdv()) {
		t.Error("second Bind() = true, want false")
	}

	snap := sess.Snapshot()
	if snap.DisplayName == nil || *snap.DisplayName != "Snooz-1234 (AA:BB:CC:DD:EE:FF)" {
		t.Errorf("Snapshot().DisplayName = %v, want derived display name", snap.DisplayName)
	}
	if snap.Model == nil || *snap.Model != string(ModelOriginal) {
		t.Errorf("Snapshot().Model = %v, want %q", snap.Model, ModelOriginal)
	}
}

func TestSession_BindFactoryError(t *testing.T) {
	sess := NewSession(SessionConfig{
		DeviceName: "bedroom",
		Password:   "0123456789abcdef",
		Factory:    &fakeFactory{err: errors.New("boom")},
	})
	if sess.Bind(supportedAdv()) {
		t.Error("Bind() = true when factory fails, want false")
	}
}

func TestSession_StartBeforeBind(t *testing.T) {
	sess := newTestSession(t, &fakeController{})

	err := sess.Start(context.Background())
	if !errors.Is(err, ErrNotBound) {
		t.Errorf("Start() error = %v, want ErrNotBound", err)
	}
}

func TestSession_StartConnectsAndReadsState(t *testing.T) {
	ctrl := &fakeController{
		readState: State{On: boolPtr(true), Volume: intPtr(40)},
	}
	sess := newTestSession(t, ctrl)
	if !sess.Bind(supportedAdv()) {
		t.Fatal("Bind() failed")
	}

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if ctrl.forceReads != 1 {
		t.Errorf("forced reads = %d, want 1 (state warmed at start)", ctrl.forceReads)
	}

	snap := sess.Snapshot()
	if !snap.Connected {
		t.Error("Snapshot().Connected = false after Start()")
	}
	if snap.State.Volume == nil || *snap.State.Volume != 40 {
		t.Errorf("Snapshot().State.Volume = %v, want 40", snap.State.Volume)
	}
}

func TestSession_StartConnectFailureSurfaced(t *testing.T) {
	ctrl := &fakeController{connectErr: errors.New("gatt timeout")}
	sess := newTestSession(t, ctrl)
	if !sess.Bind(supportedAdv()) {
		t.Fatal("Bind() failed")
	}

	if err := sess.Start(context.Background()); err == nil {
		t.Error("Start() error = nil, want connect failure surfaced")
	}
	// The binding survives a failed start; only unbound sessions are rescanned.
	if !sess.Ready() {
		t.Error("Ready() = false after failed Start(), want binding kept")
	}
}

func collectEvents(sess *Session) (<-chan Event, func() int) {
	events := make(chan Event, 16)
	var count int
	var mu sync.Mutex
	sess.OnStateChange(func(evt Event) {
		mu.Lock()
		count++
		mu.Unlock()
		events <- evt
	})
	return events, func() int {
		mu.Lock()
		defer mu.Unlock()
		return count
	}
}

func TestSession_DebounceCoalescesBursts(t *testing.T) {
	ctrl := &fakeController{}
	sess := newTestSession(t, ctrl)
	events, count := collectEvents(sess)
	if !sess.Bind(supportedAdv()) {
		t.Fatal("Bind() failed")
	}

	// A burst of notifications within the debounce window must yield exactly
	// one event reflecting the final state.
	for v := 1; v <= 5; v++ {
		ctrl.fire(State{Volume: intPtr(v * 10)})
	}

	select {
	case evt := <-events:
		if evt.DeviceName != "bedroom" {
			t.Errorf("event device = %q, want bedroom", evt.DeviceName)
		}
		if evt.State.State.Volume == nil || *evt.State.State.Volume != 50 {
			t.Errorf("event volume = %v, want 50 (latest state, not first)", evt.State.State.Volume)
		}
	case <-time.After(time.Second):
		t.Fatal("no event emitted after debounce window")
	}

	// Quiescence: no further events.
	time.Sleep(100 * time.Millisecond)
	if got := count(); got != 1 {
		t.Errorf("events emitted = %d, want exactly 1", got)
	}
}

func TestSession_DebounceEmitsAgainAfterQuiescence(t *testing.T) {
	ctrl := &fakeController{}
	sess := newTestSession(t, ctrl)
	events, _ := collectEvents(sess)
	if !sess.Bind(supportedAdv()) {
		t.Fatal("Bind() failed")
	}

	ctrl.fire(State{Volume: intPtr(10)})
	<-events

	ctrl.fire(State{Volume: intPtr(20)})
	select {
	case evt := <-events:
		if *evt.State.State.Volume != 20 {
			t.Errorf("second event volume = %d, want 20", *evt.State.State.Volume)
		}
	case <-time.After(time.Second):
		t.Fatal("no second event after new quiescent period")
	}
}

func TestSession_RefreshStateTriggersOnChange(t *testing.T) {
	ctrl := &fakeController{readState: State{Volume: intPtr(30)}}
	sess := newTestSession(t, ctrl)
	events, count := collectEvents(sess)
	if !sess.Bind(supportedAdv()) {
		t.Fatal("Bind() failed")
	}
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	<-events // initial read populates state and emits

	// Unchanged read: no event.
	if err := sess.RefreshState(context.Background()); err != nil {
		t.Fatalf("RefreshState() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := count(); got != 1 {
		t.Errorf("events after unchanged refresh = %d, want 1", got)
	}

	// Changed read: one more event.
	ctrl.mu.Lock()
	ctrl.readState = State{Volume: intPtr(60)}
	ctrl.mu.Unlock()
	if err := sess.RefreshState(context.Background()); err != nil {
		t.Fatalf("RefreshState() error = %v", err)
	}
	select {
	case evt := <-events:
		if *evt.State.State.Volume != 60 {
			t.Errorf("refresh event volume = %d, want 60", *evt.State.State.Volume)
		}
	case <-time.After(time.Second):
		t.Fatal("no event after changed refresh")
	}
}

func TestSession_RefreshStateNoopWhenDisconnected(t *testing.T) {
	ctrl := &fakeController{readErr: errors.New("should not be called")}
	sess := newTestSession(t, ctrl)
	if !sess.Bind(supportedAdv()) {
		t.Fatal("Bind() failed")
	}

	// Not connected: refresh must not touch the radio.
	if err := sess.RefreshState(context.Background()); err != nil {
		t.Errorf("RefreshState() error = %v, want nil no-op", err)
	}
	if ctrl.forceReads != 0 {
		t.Errorf("forced reads = %d, want 0", ctrl.forceReads)
	}
}

func TestSession_StopCancelsPendingDebounce(t *testing.T) {
	ctrl := &fakeController{}
	sess := newTestSession(t, ctrl)
	_, count := collectEvents(sess)
	if !sess.Bind(supportedAdv()) {
		t.Fatal("Bind() failed")
	}

	ctrl.fire(State{Volume: intPtr(10)})
	sess.Stop(context.Background())

	// Dropping the unflushed event at shutdown is intentional.
	time.Sleep(100 * time.Millisecond)
	if got := count(); got != 0 {
		t.Errorf("events after Stop() = %d, want 0", got)
	}
	if ctrl.Connected() {
		t.Error("controller still connected after Stop()")
	}
}

func TestSession_SnapshotUnbound(t *testing.T) {
	sess := newTestSession(t, &fakeController{})

	snap := sess.Snapshot()
	if snap.Connected {
		t.Error("unbound Snapshot().Connected = true, want false")
	}
	if snap.ConnectionStatus != StatusUnknown {
		t.Errorf("unbound ConnectionStatus = %q, want %q", snap.ConnectionStatus, StatusUnknown)
	}
	if snap.DisplayName != nil || snap.Model != nil || snap.FirmwareVersion != nil {
		t.Error("unbound snapshot should have nil display_name/model/firmware")
	}
	if snap.State.On != nil || snap.State.Volume != nil || snap.State.LightOn != nil ||
		snap.State.LightBrightness != nil || snap.State.NightModeEnabled != nil {
		t.Error("unbound snapshot should have all state fields nil")
	}
	if snap.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("unbound Address = %q, want configured address", snap.Address)
	}
}
