package snooz

import (
	"testing"

	"github.com/nerrad567/snooz-gateway/internal/ble"
)

func advWithPayload(name string, payload []byte) ble.Advertisement {
	return ble.Advertisement{
		Address:          "aa:bb:cc:dd:ee:ff",
		LocalName:        name,
		ManufacturerData: map[uint16][]byte{snoozCompanyID: payload},
	}
}

func payloadWithFlags(flags byte) []byte {
	payload := make([]byte, advertisementLength)
	payload[0] = flags
	return payload
}

func TestDefaultClassifier_Classify(t *testing.T) {
	classifier := DefaultClassifier{}

	tests := []struct {
		name         string
		advName      string
		flags        byte
		wantModel    DeviceModel
		wantFirmware FirmwareVersion
		wantNil      bool
	}{
		{"snooz original firmware", "Snooz-1234", 0x02, ModelOriginal, FirmwareV2, false},
		{"snooz newest firmware is pro", "Snooz-1234", 0x20, ModelPro, FirmwareV6, false},
		{"breez", "Breez-0042", 0x08, ModelBreez, FirmwareV4, false},
		{"unknown name on newest firmware", "Gadget", 0x20, ModelPro, FirmwareV6, false},
		{"unknown name on old firmware", "Gadget", 0x02, "", "", true},
		{"unknown flags", "Snooz-1234", 0x40, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := advWithPayload(tt.advName, payloadWithFlags(tt.flags))
			info := classifier.Classify(tt.advName, adv, "0123456789abcdef")
			if tt.wantNil {
				if info != nil {
					t.Fatalf("Classify() = %+v, want nil", info)
				}
				return
			}
			if info == nil {
				t.Fatal("Classify() = nil, want classification")
			}
			if info.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", info.Model, tt.wantModel)
			}
			if info.Firmware != tt.wantFirmware {
				t.Errorf("Firmware = %q, want %q", info.Firmware, tt.wantFirmware)
			}
			if info.Password != "0123456789abcdef" {
				t.Errorf("Password = %q, want configured secret", info.Password)
			}
			if info.HardwareAddress != "AA:BB:CC:DD:EE:FF" {
				t.Errorf("HardwareAddress = %q, want upper-cased", info.HardwareAddress)
			}
		})
	}
}

func TestDefaultClassifier_PairingFlag(t *testing.T) {
	classifier := DefaultClassifier{}

	adv := advWithPayload("Snooz-1234", payloadWithFlags(0x02|pairingFlags))
	info := classifier.Classify("Snooz-1234", adv, "0123456789abcdef")
	if info == nil {
		t.Fatal("Classify() = nil, want classification with pairing bit stripped")
	}
	if !info.PairingEnabled {
		t.Error("PairingEnabled = false, want true")
	}
	if info.Firmware != FirmwareV2 {
		t.Errorf("Firmware = %q, want %q", info.Firmware, FirmwareV2)
	}
}

func TestDefaultClassifier_PayloadSelection(t *testing.T) {
	classifier := DefaultClassifier{}

	// Wrong payload length is rejected.
	adv := advWithPayload("Snooz-1234", []byte{0x02, 0x00})
	if info := classifier.Classify("Snooz-1234", adv, "x"); info != nil {
		t.Errorf("Classify() with short payload = %+v, want nil", info)
	}

	// No manufacturer data is rejected.
	adv = ble.Advertisement{Address: "AA", LocalName: "Snooz-1234"}
	if info := classifier.Classify("Snooz-1234", adv, "x"); info != nil {
		t.Errorf("Classify() with no payload = %+v, want nil", info)
	}

	// An unknown company ID falls back to the first payload entry.
	adv = ble.Advertisement{
		Address:          "AA:BB:CC:DD:EE:FF",
		LocalName:        "Snooz-1234",
		ManufacturerData: map[uint16][]byte{0x1234: payloadWithFlags(0x02)},
	}
	if info := classifier.Classify("Snooz-1234", adv, "x"); info == nil {
		t.Error("Classify() with fallback payload = nil, want classification")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{"Snooz-1234", "aa:bb:cc:dd:ee:ff", "Snooz-1234 (AA:BB:CC:DD:EE:FF)"},
		{"", "AA:BB:CC:DD:EE:FF", "Snooz (AA:BB:CC:DD:EE:FF)"},
		{"Breez", "", "Breez"},
	}

	for _, tt := range tests {
		if got := DisplayName(tt.name, tt.address); got != tt.want {
			t.Errorf("DisplayName(%q, %q) = %q, want %q", tt.name, tt.address, got, tt.want)
		}
	}
}
