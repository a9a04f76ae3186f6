package snooz

import (
	"strings"

	"github.com/nerrad567/snooz-gateway/internal/ble"
)

// AdvertisementInfo is the result of classifying an advertisement into a
// supported model/firmware pair, plus the pairing secret the control session
// will authenticate with.
type AdvertisementInfo struct {
	Model           DeviceModel
	Firmware        FirmwareVersion
	Password        string
	PairingEnabled  bool
	AdvertisedName  string
	HardwareAddress string
}

// Classifier decides whether an observed advertisement belongs to a
// supported device. The matching table (firmware-flag to model heuristics)
// is owned by the device protocol, so the gateway treats classification as a
// pluggable collaborator: a nil result means the device is unsupported and
// binding must fail silently.
type Classifier interface {
	Classify(name string, adv ble.Advertisement, password string) *AdvertisementInfo
}

// advertisementLength is the manufacturer payload length of a supported
// advertisement.
const advertisementLength = 8

// snoozCompanyID is the manufacturer-data key the devices usually advertise
// under. Some firmware revisions use a different key, so classification
// falls back to the first available payload.
const snoozCompanyID = 0xFFFF

// pairingFlags is the bit set in the advertisement flag byte while the
// device is in pairing mode.
const pairingFlags = 0x01

// firmwareByFlags maps the advertisement flag byte (with the pairing bit
// cleared) to a firmware generation.
var firmwareByFlags = map[byte]FirmwareVersion{
	0x02: FirmwareV2,
	0x04: FirmwareV3,
	0x08: FirmwareV4,
	0x10: FirmwareV5,
	0x20: FirmwareV6,
}

// originalFirmware is the set of firmware generations reported by the
// original (non-Pro) hardware.
var originalFirmware = map[FirmwareVersion]bool{
	FirmwareV2: true,
	FirmwareV3: true,
	FirmwareV4: true,
	FirmwareV5: true,
}

// DefaultClassifier implements the stock classification heuristics: payload
// length and firmware flags from the manufacturer data, model from the
// advertised name prefix.
type DefaultClassifier struct{}

// Classify implements Classifier.
func (DefaultClassifier) Classify(name string, adv ble.Advertisement, password string) *AdvertisementInfo {
	payload := manufacturerPayload(adv)
	if len(payload) != advertisementLength {
		return nil
	}

	flags := payload[0]
	pairing := flags&pairingFlags == pairingFlags
	firmware, ok := firmwareByFlags[flags&^byte(pairingFlags)]
	if !ok {
		return nil
	}

	model := inferModel(name, firmware)
	if model == ModelUnsupported {
		return nil
	}

	return &AdvertisementInfo{
		Model:           model,
		Firmware:        firmware,
		Password:        password,
		PairingEnabled:  pairing,
		AdvertisedName:  name,
		HardwareAddress: strings.ToUpper(adv.Address),
	}
}

// manufacturerPayload picks the advertisement payload: the well-known
// company ID when present, otherwise the first entry.
func manufacturerPayload(adv ble.Advertisement) []byte {
	if payload, ok := adv.ManufacturerData[snoozCompanyID]; ok {
		return payload
	}
	for _, payload := range adv.ManufacturerData {
		return payload
	}
	return nil
}

// inferModel derives the hardware family from the advertised name and
// firmware generation. Newer Snooz units report as Pro; unknown names are
// accepted only on the newest firmware.
func inferModel(name string, firmware FirmwareVersion) DeviceModel {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(lower, "breez"):
		return ModelBreez
	case strings.HasPrefix(lower, "snooz"):
		if originalFirmware[firmware] {
			return ModelOriginal
		}
		return ModelPro
	case firmware == FirmwareV6:
		return ModelPro
	default:
		return ModelUnsupported
	}
}

// DisplayName derives a human-readable device label from the advertised name
// and hardware address.
func DisplayName(name, address string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Snooz"
	}
	if address == "" {
		return name
	}
	return name + " (" + strings.ToUpper(address) + ")"
}
