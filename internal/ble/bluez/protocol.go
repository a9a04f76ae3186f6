package bluez

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// GATT characteristic UUIDs of the device control service.
const (
	readStateCharUUID = "80c37f00-cc16-11e4-8830-0800200c9a66"
	writeCharUUID     = "90759319-1668-44da-9ef3-492d593bd1e5"
)

// Command opcodes written to the control characteristic. Each frame is the
// opcode followed by its operand bytes.
const (
	opPassword        byte = 0x00
	opMotorSpeed      byte = 0x01
	opMotorEnabled    byte = 0x02
	opLightBrightness byte = 0x03
)

// passwordByteLength is the decoded length of the 16-hex-char pairing secret.
const passwordByteLength = 8

// encodePassword builds the authentication frame from the normalised
// hex pairing secret.
func encodePassword(password string) ([]byte, error) {
	secret, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(password)))
	if err != nil {
		return nil, fmt.Errorf("decoding pairing secret: %w", err)
	}
	if len(secret) != passwordByteLength {
		return nil, fmt.Errorf("pairing secret must be %d bytes, got %d", passwordByteLength, len(secret))
	}
	return append([]byte{opPassword}, secret...), nil
}

// encodeMotorEnabled builds a noise on/off frame.
func encodeMotorEnabled(on bool) []byte {
	var operand byte
	if on {
		operand = 0x01
	}
	return []byte{opMotorEnabled, operand}
}

// encodeMotorSpeed builds a volume frame. The caller validates the range.
func encodeMotorSpeed(volume int) []byte {
	return []byte{opMotorSpeed, byte(volume)}
}

// encodeLightBrightness builds a night-light brightness frame. Zero turns
// the light off.
func encodeLightBrightness(brightness int) []byte {
	return []byte{opLightBrightness, byte(brightness)}
}

// statePayloadMinLength is the shortest state read the decoder accepts. The
// device pads the characteristic to 20 bytes; only the leading fields carry
// meaning for the models the gateway supports.
const statePayloadMinLength = 4

// decodeState parses a state characteristic payload.
//
// Layout: [0] volume, [1] motor enabled flag, [2] night-light brightness,
// [3] night mode flag. The light is considered on when its brightness is
// non-zero.
func decodeState(data []byte) (snooz.State, error) {
	if len(data) < statePayloadMinLength {
		return snooz.State{}, fmt.Errorf("state payload too short: %d bytes", len(data))
	}

	volume := int(data[0])
	on := data[1] == 0x01
	brightness := int(data[2])
	lightOn := brightness > 0
	nightMode := data[3] == 0x01

	return snooz.State{
		On:               &on,
		Volume:           &volume,
		LightOn:          &lightOn,
		LightBrightness:  &brightness,
		NightModeEnabled: &nightMode,
	}, nil
}
