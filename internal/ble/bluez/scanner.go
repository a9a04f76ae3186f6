package bluez

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/snooz-gateway/internal/ble"
)

// scanSignalBuffer sizes the D-Bus signal channel for a discovery session.
// Advertisement bursts from a busy radio environment must not stall the bus
// reader, so the buffer is generous and the loop drains promptly.
const scanSignalBuffer = 128

// Scan implements ble.Scanner.
//
// It starts LE discovery on the adapter, replays every device BlueZ already
// knows about, then relays InterfacesAdded and PropertiesChanged signals as
// advertisements until ctx is cancelled. Discovery is always stopped on
// return.
func (t *Transport) Scan(ctx context.Context, onAdvertisement func(ble.Advertisement)) error {
	adapter := t.conn.object(t.conn.adapter)

	filter := map[string]dbus.Variant{
		"Transport":     dbus.MakeVariant("le"),
		"DuplicateData": dbus.MakeVariant(true),
	}
	if err := adapter.Call(adapterIface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		return fmt.Errorf("setting discovery filter: %w", err)
	}

	// Subscribe before starting discovery so no advertisement slips between
	// the initial sweep and the signal stream.
	matchOpts := [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface(objectManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchPathNamespace("/org/bluez"),
		},
	}
	for _, opts := range matchOpts {
		if err := t.conn.bus.AddMatchSignal(opts...); err != nil {
			return fmt.Errorf("adding signal match: %w", err)
		}
	}
	signals := make(chan *dbus.Signal, scanSignalBuffer)
	t.conn.bus.Signal(signals)
	defer func() {
		t.conn.bus.RemoveSignal(signals)
		for _, opts := range matchOpts {
			//nolint:errcheck // Best-effort match cleanup
			t.conn.bus.RemoveMatchSignal(opts...)
		}
	}()

	if err := adapter.Call(adapterIface+".StartDiscovery", 0).Err; err != nil {
		return fmt.Errorf("starting discovery: %w", err)
	}
	defer func() {
		//nolint:errcheck // Best-effort stop; the adapter recovers on its own
		adapter.Call(adapterIface+".StopDiscovery", 0)
	}()

	t.sweepKnownDevices(onAdvertisement)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("bus connection lost during scan")
			}
			t.handleScanSignal(sig, onAdvertisement)
		}
	}
}

// sweepKnownDevices replays devices already present in the BlueZ object tree
// so previously seen hardware is matched without waiting for a fresh
// advertisement.
func (t *Transport) sweepKnownDevices(onAdvertisement func(ble.Advertisement)) {
	objects, err := t.conn.managedObjects()
	if err != nil {
		t.logger.Warn("initial device sweep failed", "error", err)
		return
	}
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if adv, ok := t.advertisementFromProps(path, props); ok {
			onAdvertisement(adv)
		}
	}
}

// handleScanSignal relays one bus signal as an advertisement, if it carries
// device information.
func (t *Transport) handleScanSignal(sig *dbus.Signal, onAdvertisement func(ble.Advertisement)) {
	switch sig.Name {
	case objectManagerIface + ".InterfacesAdded":
		if len(sig.Body) < 2 {
			return
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return
		}
		props, ok := ifaces[deviceIface]
		if !ok {
			return
		}
		if adv, ok := t.advertisementFromProps(path, props); ok {
			onAdvertisement(adv)
		}

	case propsIface + ".PropertiesChanged":
		if len(sig.Body) < 2 {
			return
		}
		iface, ok := sig.Body[0].(string)
		if !ok || iface != deviceIface {
			return
		}
		// Changed-property payloads are partial; re-read the full property
		// set so the advertisement always carries name and manufacturer data.
		if adv, ok := t.readDeviceAdvertisement(sig.Path); ok {
			onAdvertisement(adv)
		}
	}
}

// readDeviceAdvertisement fetches the full Device1 property set for a path
// and converts it to an advertisement.
func (t *Transport) readDeviceAdvertisement(path dbus.ObjectPath) (ble.Advertisement, bool) {
	var props map[string]dbus.Variant
	err := t.conn.object(path).Call(propsIface+".GetAll", 0, deviceIface).Store(&props)
	if err != nil {
		t.logger.Debug("reading device properties failed", "path", string(path), "error", err)
		return ble.Advertisement{}, false
	}
	return t.advertisementFromProps(path, props)
}

// advertisementFromProps converts a Device1 property set to an
// advertisement. Devices with no usable address are skipped.
func (t *Transport) advertisementFromProps(path dbus.ObjectPath, props map[string]dbus.Variant) (ble.Advertisement, bool) {
	address := stringProp(props, "Address")
	if address == "" {
		address = addressFromPath(t.conn.adapter, path)
	}
	if address == "" {
		return ble.Advertisement{}, false
	}

	name := stringProp(props, "Name")
	if name == "" {
		name = stringProp(props, "Alias")
	}

	return ble.Advertisement{
		Address:          address,
		LocalName:        name,
		ManufacturerData: manufacturerDataProp(props),
	}, true
}
