package bluez

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// BlueZ bus and interface names.
const (
	busName            = "org.bluez"
	defaultAdapterPath = "/org/bluez/hci0"

	adapterIface       = "org.bluez.Adapter1"
	deviceIface        = "org.bluez.Device1"
	gattCharIface      = "org.bluez.GattCharacteristic1"
	propsIface         = "org.freedesktop.DBus.Properties"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
)

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(address), ":", "_")
	return dbus.ObjectPath(string(adapter) + "/dev_" + escaped)
}

// addressFromPath extracts the MAC address from a BlueZ device object path,
// returning "" when the path is not a device under the adapter.
func addressFromPath(adapter, path dbus.ObjectPath) string {
	s := string(path)
	prefix := string(adapter) + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	addr := s[len(prefix):]
	// Characteristic paths nest below the device node; reject them here.
	if strings.Contains(addr, "/") {
		return ""
	}
	return strings.ReplaceAll(addr, "_", ":")
}

// conn wraps a system D-Bus connection for BlueZ operations.
type conn struct {
	bus     *dbus.Conn
	adapter dbus.ObjectPath
}

// newConn connects to the system bus and verifies BlueZ is present.
func newConn() (*conn, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}

	var names []string
	if err := bus.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		bus.Close()
		return nil, fmt.Errorf("listing bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		bus.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus (is bluetooth.service running?)")
	}

	return &conn{bus: bus, adapter: defaultAdapterPath}, nil
}

func (c *conn) close() error {
	return c.bus.Close()
}

// object returns a proxy for a BlueZ object path.
func (c *conn) object(path dbus.ObjectPath) dbus.BusObject {
	return c.bus.Object(busName, path)
}

// getProp reads one property from a BlueZ object.
func (c *conn) getProp(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := c.object(path).Call(propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

// getBool reads a boolean property, treating a missing or mistyped value as
// an error.
func (c *conn) getBool(path dbus.ObjectPath, iface, prop string) (bool, error) {
	v, err := c.getProp(path, iface, prop)
	if err != nil {
		return false, err
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s.%s is not bool", iface, prop)
	}
	return val, nil
}

// managedObjects fetches the full BlueZ object tree via ObjectManager.
func (c *conn) managedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := c.bus.Object(busName, "/").Call(objectManagerIface+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return nil, fmt.Errorf("getting managed objects: %w", err)
	}
	return objects, nil
}

// stringProp extracts a string property from a decoded property map.
func stringProp(props map[string]dbus.Variant, name string) string {
	v, ok := props[name]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

// manufacturerDataProp decodes the Device1 ManufacturerData property, which
// arrives as a dict of uint16 to variant-wrapped byte arrays.
func manufacturerDataProp(props map[string]dbus.Variant) map[uint16][]byte {
	v, ok := props["ManufacturerData"]
	if !ok {
		return nil
	}
	raw, ok := v.Value().(map[uint16]dbus.Variant)
	if !ok {
		return nil
	}
	out := make(map[uint16][]byte, len(raw))
	for id, payload := range raw {
		if data, ok := payload.Value().([]byte); ok {
			out[id] = data
		}
	}
	return out
}
