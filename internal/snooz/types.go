package snooz

// DeviceModel identifies the hardware family inferred from an advertisement.
type DeviceModel string

// Supported device models.
const (
	ModelOriginal    DeviceModel = "ORIGINAL"
	ModelPro         DeviceModel = "PRO"
	ModelBreez       DeviceModel = "BREEZ"
	ModelUnsupported DeviceModel = "UNSUPPORTED"
)

// FirmwareVersion identifies the firmware generation inferred from the
// advertisement flag byte.
type FirmwareVersion string

// Known firmware generations.
const (
	FirmwareV2 FirmwareVersion = "V2"
	FirmwareV3 FirmwareVersion = "V3"
	FirmwareV4 FirmwareVersion = "V4"
	FirmwareV5 FirmwareVersion = "V5"
	FirmwareV6 FirmwareVersion = "V6"
)

// ConnectionStatus mirrors the external control session's connection state
// machine for reporting in snapshots.
const (
	StatusUnknown      = "UNKNOWN"
	StatusDisconnected = "DISCONNECTED"
	StatusConnecting   = "CONNECTING"
	StatusConnected    = "CONNECTED"
)

// State is the runtime device state. All fields are nil until the first
// successful read so snapshots can distinguish "never read" from zero values.
type State struct {
	On               *bool `json:"on"`
	Volume           *int  `json:"volume"`
	LightOn          *bool `json:"light_on"`
	LightBrightness  *int  `json:"light_brightness"`
	NightModeEnabled *bool `json:"night_mode_enabled"`
}

// Equal reports whether two states carry the same values, treating nil and
// set pointers as distinct.
func (s State) Equal(other State) bool {
	return eqBool(s.On, other.On) &&
		eqInt(s.Volume, other.Volume) &&
		eqBool(s.LightOn, other.LightOn) &&
		eqInt(s.LightBrightness, other.LightBrightness) &&
		eqBool(s.NightModeEnabled, other.NightModeEnabled)
}

func eqBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Snapshot is the externally visible view of one device, as serialised in
// get_state responses and device_state events. All optional fields are null
// until a binding exists and a first read has completed.
type Snapshot struct {
	DeviceName       string  `json:"device_name"`
	Address          string  `json:"address"`
	DisplayName      *string `json:"display_name"`
	Connected        bool    `json:"connected"`
	ConnectionStatus string  `json:"connection_status"`
	Model            *string `json:"model"`
	FirmwareVersion  *string `json:"firmware_version"`
	State            State   `json:"state"`
}

// Event is one debounced state-change notification.
type Event struct {
	DeviceName string   `json:"device_name"`
	State      Snapshot `json:"state"`
}
