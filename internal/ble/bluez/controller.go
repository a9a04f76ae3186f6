package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/snooz-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// ErrNotConnected is returned by operations that need an established control
// session.
var ErrNotConnected = errors.New("bluez: device not connected")

// servicesResolvedPoll is the interval at which Connect polls the
// ServicesResolved property after the link comes up.
const servicesResolvedPoll = 100 * time.Millisecond

// controllerSignalBuffer sizes the per-controller D-Bus signal channel.
const controllerSignalBuffer = 64

// fadeSteps is the number of volume steps a timed noise-off transition is
// divided into.
const fadeSteps = 10

// controller is the BlueZ-backed snooz.Controller.
//
// One controller owns one Device1 object: its connection, GATT
// characteristic handles and the notification watcher that feeds state
// changes back to subscribers.
type controller struct {
	conn   *conn
	logger *logging.Logger

	address    string
	devicePath dbus.ObjectPath
	authFrame  []byte

	mu        sync.Mutex
	status    string
	state     snooz.State
	haveState bool
	readChar  dbus.ObjectPath
	writeChar dbus.ObjectPath
	signals   chan *dbus.Signal
	matchOpts []dbus.MatchOption
	done      chan struct{}

	subMu       sync.Mutex
	subscribers map[int]func(snooz.State)
	nextSubID   int
}

// newController validates the pairing secret up front so a malformed
// credential fails at bind time rather than mid-connect.
func newController(c *conn, logger *logging.Logger, address, password string) (*controller, error) {
	authFrame, err := encodePassword(password)
	if err != nil {
		return nil, err
	}
	address = strings.ToUpper(address)
	return &controller{
		conn:        c,
		logger:      logger,
		address:     address,
		devicePath:  deviceObjectPath(c.adapter, address),
		authFrame:   authFrame,
		status:      snooz.StatusDisconnected,
		subscribers: make(map[int]func(snooz.State)),
	}, nil
}

// Connect implements snooz.Controller.
//
// The sequence mirrors the BlueZ connection model: Device1.Connect, wait for
// GATT service resolution, locate the control characteristics, authenticate
// with the pairing secret, then enable state notifications. Any failure
// tears the link back down.
func (c *controller) Connect(ctx context.Context) error {
	c.setStatus(snooz.StatusConnecting)

	device := c.conn.object(c.devicePath)
	if err := device.CallWithContext(ctx, deviceIface+".Connect", 0).Err; err != nil {
		c.setStatus(snooz.StatusDisconnected)
		return fmt.Errorf("connecting to %s: %w", c.address, err)
	}

	if err := c.waitServicesResolved(ctx); err != nil {
		c.teardown(err)
		return err
	}
	if err := c.resolveCharacteristics(); err != nil {
		c.teardown(err)
		return err
	}
	if err := c.writeFrame(ctx, c.authFrame); err != nil {
		err = fmt.Errorf("authenticating with %s: %w", c.address, err)
		c.teardown(err)
		return err
	}
	if err := c.startWatcher(); err != nil {
		c.teardown(err)
		return err
	}

	c.mu.Lock()
	readChar := c.readChar
	c.mu.Unlock()
	if err := c.conn.object(readChar).CallWithContext(ctx, gattCharIface+".StartNotify", 0).Err; err != nil {
		err = fmt.Errorf("enabling state notifications on %s: %w", c.address, err)
		c.teardown(err)
		return err
	}

	c.setStatus(snooz.StatusConnected)
	c.logger.Debug("control session established", "address", c.address)
	return nil
}

// Disconnect implements snooz.Controller. Safe to call when not connected.
func (c *controller) Disconnect(ctx context.Context) error {
	c.stopWatcher()

	c.mu.Lock()
	readChar := c.readChar
	connected := c.status == snooz.StatusConnected
	c.status = snooz.StatusDisconnected
	c.mu.Unlock()

	if !connected {
		return nil
	}

	if readChar != "" {
		//nolint:errcheck // Best-effort; the link is going down anyway
		c.conn.object(readChar).Call(gattCharIface+".StopNotify", 0)
	}
	if err := c.conn.object(c.devicePath).CallWithContext(ctx, deviceIface+".Disconnect", 0).Err; err != nil {
		return fmt.Errorf("disconnecting from %s: %w", c.address, err)
	}
	return nil
}

// Execute implements snooz.Controller.
func (c *controller) Execute(ctx context.Context, cmd snooz.Command) (snooz.CommandResult, error) {
	start := time.Now()

	if !c.Connected() {
		return snooz.CommandResult{
			Status:   snooz.StatusDeviceUnavailable,
			Duration: time.Since(start),
		}, fmt.Errorf("%s: %w", c.address, ErrNotConnected)
	}

	err := c.execute(ctx, cmd)
	result := snooz.CommandResult{
		Status:   snooz.StatusSuccessful,
		Duration: time.Since(start),
	}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result.Status = snooz.StatusCancelled
		return result, err
	case errors.Is(err, ErrNotConnected):
		result.Status = snooz.StatusDeviceUnavailable
		return result, err
	default:
		result.Status = snooz.StatusUnexpectedError
		return result, err
	}
	return result, nil
}

// execute performs the characteristic writes for one command.
func (c *controller) execute(ctx context.Context, cmd snooz.Command) error {
	switch cmd.Op {
	case snooz.OpTurnOn:
		if cmd.Volume != nil {
			if err := c.writeFrame(ctx, encodeMotorSpeed(*cmd.Volume)); err != nil {
				return err
			}
		}
		return c.writeFrame(ctx, encodeMotorEnabled(true))

	case snooz.OpTurnOff:
		if cmd.Duration != nil && *cmd.Duration > 0 {
			return c.fadeOut(ctx, *cmd.Duration)
		}
		return c.writeFrame(ctx, encodeMotorEnabled(false))

	case snooz.OpSetVolume:
		if cmd.Volume == nil {
			return fmt.Errorf("set volume: no volume given")
		}
		return c.writeFrame(ctx, encodeMotorSpeed(*cmd.Volume))

	case snooz.OpTurnLightOn:
		brightness := c.lastLightBrightness()
		return c.writeFrame(ctx, encodeLightBrightness(brightness))

	case snooz.OpTurnLightOff:
		return c.writeFrame(ctx, encodeLightBrightness(0))

	case snooz.OpSetLightBrightness:
		if cmd.Brightness == nil {
			return fmt.Errorf("set light brightness: no brightness given")
		}
		return c.writeFrame(ctx, encodeLightBrightness(*cmd.Brightness))

	default:
		return fmt.Errorf("unsupported operation %q", cmd.Op)
	}
}

// fadeOut steps the volume down over the requested duration before switching
// the motor off, then restores the original volume setting so the next
// noise-on resumes at the previous level.
func (c *controller) fadeOut(ctx context.Context, duration time.Duration) error {
	original := c.lastVolume()

	step := duration / fadeSteps
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for i := fadeSteps - 1; i > 0; i-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		volume := original * i / fadeSteps
		if err := c.writeFrame(ctx, encodeMotorSpeed(volume)); err != nil {
			return err
		}
	}

	if err := c.writeFrame(ctx, encodeMotorEnabled(false)); err != nil {
		return err
	}
	return c.writeFrame(ctx, encodeMotorSpeed(original))
}

// ReadState implements snooz.Controller. With useCached false the read hits
// the device; a changed result is fanned out to subscribers the same way a
// notification would be.
func (c *controller) ReadState(ctx context.Context, useCached bool) (snooz.State, error) {
	c.mu.Lock()
	if useCached && c.haveState {
		state := c.state
		c.mu.Unlock()
		return state, nil
	}
	readChar := c.readChar
	connected := c.status == snooz.StatusConnected
	c.mu.Unlock()

	if !connected || readChar == "" {
		return snooz.State{}, fmt.Errorf("%s: %w", c.address, ErrNotConnected)
	}

	var data []byte
	err := c.conn.object(readChar).
		CallWithContext(ctx, gattCharIface+".ReadValue", 0, map[string]dbus.Variant{}).
		Store(&data)
	if err != nil {
		return snooz.State{}, fmt.Errorf("reading state from %s: %w", c.address, err)
	}

	state, err := decodeState(data)
	if err != nil {
		return snooz.State{}, fmt.Errorf("decoding state from %s: %w", c.address, err)
	}

	c.updateState(state)
	return state, nil
}

// Subscribe implements snooz.Controller.
func (c *controller) Subscribe(fn func(snooz.State)) func() {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	}
}

// Connected implements snooz.Controller.
func (c *controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == snooz.StatusConnected
}

// ConnectionStatus implements snooz.Controller.
func (c *controller) ConnectionStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// waitServicesResolved polls the ServicesResolved property until BlueZ has
// finished GATT discovery or the context expires.
func (c *controller) waitServicesResolved(ctx context.Context) error {
	ticker := time.NewTicker(servicesResolvedPoll)
	defer ticker.Stop()

	for {
		resolved, err := c.conn.getBool(c.devicePath, deviceIface, "ServicesResolved")
		if err == nil && resolved {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for service resolution on %s: %w", c.address, ctx.Err())
		case <-ticker.C:
		}
	}
}

// resolveCharacteristics walks the object tree below the device node and
// records the read-state and control characteristic paths.
func (c *controller) resolveCharacteristics() error {
	objects, err := c.conn.managedObjects()
	if err != nil {
		return err
	}

	prefix := string(c.devicePath) + "/"
	var readChar, writeChar dbus.ObjectPath
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := ifaces[gattCharIface]
		if !ok {
			continue
		}
		switch strings.ToLower(stringProp(props, "UUID")) {
		case readStateCharUUID:
			readChar = path
		case writeCharUUID:
			writeChar = path
		}
	}

	if readChar == "" || writeChar == "" {
		return fmt.Errorf("device %s does not expose the control service", c.address)
	}

	c.mu.Lock()
	c.readChar = readChar
	c.writeChar = writeChar
	c.mu.Unlock()
	return nil
}

// writeFrame writes one protocol frame to the control characteristic.
func (c *controller) writeFrame(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	writeChar := c.writeChar
	c.mu.Unlock()

	if writeChar == "" {
		return fmt.Errorf("%s: %w", c.address, ErrNotConnected)
	}
	err := c.conn.object(writeChar).
		CallWithContext(ctx, gattCharIface+".WriteValue", 0, frame, map[string]dbus.Variant{}).Err
	if err != nil {
		return fmt.Errorf("writing to %s: %w", c.address, err)
	}
	return nil
}

// startWatcher subscribes to PropertiesChanged signals under the device node
// and launches the goroutine that turns them into state callbacks and
// disconnect detection.
func (c *controller) startWatcher() error {
	matchOpts := []dbus.MatchOption{
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchPathNamespace(c.devicePath),
	}
	if err := c.conn.bus.AddMatchSignal(matchOpts...); err != nil {
		return fmt.Errorf("adding signal match for %s: %w", c.address, err)
	}

	signals := make(chan *dbus.Signal, controllerSignalBuffer)
	c.conn.bus.Signal(signals)

	done := make(chan struct{})
	c.mu.Lock()
	c.signals = signals
	c.matchOpts = matchOpts
	c.done = done
	c.mu.Unlock()

	go c.watch(signals, done)
	return nil
}

// stopWatcher tears down the signal subscription. Safe to call repeatedly.
func (c *controller) stopWatcher() {
	c.mu.Lock()
	signals := c.signals
	matchOpts := c.matchOpts
	done := c.done
	c.signals = nil
	c.matchOpts = nil
	c.done = nil
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if signals != nil {
		c.conn.bus.RemoveSignal(signals)
	}
	if matchOpts != nil {
		//nolint:errcheck // Best-effort match cleanup
		c.conn.bus.RemoveMatchSignal(matchOpts...)
	}
}

// watch consumes bus signals for this device: characteristic value changes
// become state callbacks, a dropped Connected property marks the session
// disconnected.
func (c *controller) watch(signals chan *dbus.Signal, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			c.handleSignal(sig)
		}
	}
}

// handleSignal processes one PropertiesChanged signal under the device node.
func (c *controller) handleSignal(sig *dbus.Signal) {
	if sig.Name != propsIface+".PropertiesChanged" || len(sig.Body) < 2 {
		return
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	switch iface {
	case deviceIface:
		if v, ok := changed["Connected"]; ok {
			if connected, ok := v.Value().(bool); ok && !connected {
				c.setStatus(snooz.StatusDisconnected)
				c.logger.Warn("device link lost", "address", c.address)
			}
		}

	case gattCharIface:
		c.mu.Lock()
		isStateChar := sig.Path == c.readChar
		c.mu.Unlock()
		if !isStateChar {
			return
		}
		v, ok := changed["Value"]
		if !ok {
			return
		}
		data, ok := v.Value().([]byte)
		if !ok {
			return
		}
		state, err := decodeState(data)
		if err != nil {
			c.logger.Debug("ignoring malformed state notification",
				"address", c.address,
				"error", err,
			)
			return
		}
		c.updateState(state)
	}
}

// updateState caches a freshly observed state and fans it out to
// subscribers when it differs from the previous one.
func (c *controller) updateState(state snooz.State) {
	c.mu.Lock()
	if c.haveState && state.Equal(c.state) {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.haveState = true
	c.mu.Unlock()

	c.subMu.Lock()
	subscribers := make([]func(snooz.State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subscribers {
		fn(state)
	}
}

// lastVolume returns the last observed volume, defaulting to full volume
// when no state has been read yet.
func (c *controller) lastVolume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveState && c.state.Volume != nil {
		return *c.state.Volume
	}
	return 100
}

// lastLightBrightness returns the brightness a plain light-on should
// restore, defaulting to full brightness.
func (c *controller) lastLightBrightness() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveState && c.state.LightBrightness != nil && *c.state.LightBrightness > 0 {
		return *c.state.LightBrightness
	}
	return 100
}

// setStatus records the connection state.
func (c *controller) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

// teardown reverts a partially established connection.
func (c *controller) teardown(cause error) {
	c.stopWatcher()
	c.setStatus(snooz.StatusDisconnected)
	//nolint:errcheck // Best-effort cleanup of a half-open link
	c.conn.object(c.devicePath).Call(deviceIface+".Disconnect", 0)
	c.logger.Debug("connection attempt failed", "address", c.address, "error", cause)
}
