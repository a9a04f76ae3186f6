package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/fleet"
	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// Protocol message types.
const (
	msgTypeCommand  = "command"
	msgTypeResponse = "response"
	msgTypeEvent    = "event"

	eventDeviceState = "device_state"

	statusOK    = "ok"
	statusError = "error"
)

// Protocol error strings. These are the stable wire texts clients match on.
const (
	errInvalidJSON       = "invalid_json"
	errTypeMustBeCommand = "type_must_be_command"
)

// nullID is the correlation id used when the client supplied none.
var nullID = json.RawMessage("null")

// commandMessage is one inbound client frame. RequestID is kept raw so the
// client's correlation id round-trips unchanged, whatever its JSON type.
type commandMessage struct {
	Type       string          `json:"type"`
	RequestID  json.RawMessage `json:"request_id"`
	Command    string          `json:"command"`
	DeviceName string          `json:"device_name"`
	Volume     *int            `json:"volume"`
	DurationS  *float64        `json:"duration_s"`
	Brightness *int            `json:"brightness"`
}

// responseMessage is the correlated reply to one command.
type responseMessage struct {
	Type      string          `json:"type"`
	RequestID json.RawMessage `json:"request_id"`
	Status    string          `json:"status"`
	Data      any             `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// eventMessage is an unsolicited broadcast frame.
type eventMessage struct {
	Type       string         `json:"type"`
	Event      string         `json:"event"`
	DeviceName string         `json:"device_name"`
	State      snooz.Snapshot `json:"state"`
}

// marshalEvent renders one device_state event frame.
func marshalEvent(evt fleet.Event) ([]byte, error) {
	return json.Marshal(eventMessage{
		Type:       msgTypeEvent,
		Event:      eventDeviceState,
		DeviceName: evt.DeviceName,
		State:      evt.State,
	})
}

// handleMessage parses and dispatches one inbound frame, answering it with
// exactly one correlated response. Protocol failures never tear the
// connection down.
func (c *Client) handleMessage(data []byte) {
	var msg commandMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendErrorResponse(nullID, errInvalidJSON)
		return
	}

	requestID := msg.RequestID
	if len(requestID) == 0 {
		requestID = nullID
	}

	if msg.Type != msgTypeCommand {
		c.sendErrorResponse(requestID, errTypeMustBeCommand)
		return
	}

	payload, err := c.dispatch(msg)
	if err != nil {
		c.sendErrorResponse(requestID, errorText(err))
		return
	}
	c.sendOKResponse(requestID, payload)
}

// dispatch routes one command to its handler and returns the response data.
func (c *Client) dispatch(msg commandMessage) (any, error) {
	devices := c.server.devices

	switch msg.Command {
	case "heartbeat":
		return map[string]any{
			"server_time": float64(time.Now().UnixNano()) / float64(time.Second),
		}, nil

	case "list_devices":
		return map[string]any{"devices": devices.DeviceNames()}, nil

	case "get_state":
		if err := requireDevice(msg); err != nil {
			return nil, err
		}
		snap, err := devices.GetState(msg.DeviceName)
		if err != nil {
			return nil, err
		}
		return snap, nil

	case "noise_on":
		if err := requireDevice(msg); err != nil {
			return nil, err
		}
		result, err := devices.NoiseOn(c.ctx, msg.DeviceName, msg.Volume)
		if err != nil {
			return nil, err
		}
		return result.Payload(), nil

	case "noise_off":
		if err := requireDevice(msg); err != nil {
			return nil, err
		}
		result, err := devices.NoiseOff(c.ctx, msg.DeviceName, msg.DurationS)
		if err != nil {
			return nil, err
		}
		return result.Payload(), nil

	case "set_volume":
		if err := requireDevice(msg); err != nil {
			return nil, err
		}
		if msg.Volume == nil {
			return nil, &fleet.ValidationError{Msg: "volume is required"}
		}
		result, err := devices.SetVolume(c.ctx, msg.DeviceName, *msg.Volume)
		if err != nil {
			return nil, err
		}
		return result.Payload(), nil

	case "light_on":
		if err := requireDevice(msg); err != nil {
			return nil, err
		}
		result, err := devices.LightOn(c.ctx, msg.DeviceName)
		if err != nil {
			return nil, err
		}
		return result.Payload(), nil

	case "light_off":
		if err := requireDevice(msg); err != nil {
			return nil, err
		}
		result, err := devices.LightOff(c.ctx, msg.DeviceName)
		if err != nil {
			return nil, err
		}
		return result.Payload(), nil

	case "set_light_brightness":
		if err := requireDevice(msg); err != nil {
			return nil, err
		}
		if msg.Brightness == nil {
			return nil, &fleet.ValidationError{Msg: "brightness is required"}
		}
		result, err := devices.SetLightBrightness(c.ctx, msg.DeviceName, *msg.Brightness)
		if err != nil {
			return nil, err
		}
		return result.Payload(), nil

	default:
		return nil, fmt.Errorf("unknown_command: %s", msg.Command)
	}
}

// requireDevice checks the device_name argument. Absence is a validation
// error, never a silent default.
func requireDevice(msg commandMessage) error {
	if msg.DeviceName == "" {
		return &fleet.ValidationError{Msg: "device_name is required"}
	}
	return nil
}

// errorText maps a dispatch failure to its wire text. Unready devices get a
// stable condition distinct from device-side command failures.
func errorText(err error) string {
	if errors.Is(err, fleet.ErrDeviceUnavailable) {
		return "device_unavailable"
	}
	var v *fleet.ValidationError
	if errors.As(err, &v) {
		return v.Msg
	}
	return err.Error()
}

// sendOKResponse sends a correlated success response.
func (c *Client) sendOKResponse(requestID json.RawMessage, data any) {
	c.sendResponse(responseMessage{
		Type:      msgTypeResponse,
		RequestID: requestID,
		Status:    statusOK,
		Data:      data,
	})
}

// sendErrorResponse sends a correlated error response.
func (c *Client) sendErrorResponse(requestID json.RawMessage, text string) {
	c.sendResponse(responseMessage{
		Type:      msgTypeResponse,
		RequestID: requestID,
		Status:    statusError,
		Error:     text,
	})
}

// sendResponse marshals and queues one response frame.
// Routes through trySend to safely handle closed channels during shutdown.
func (c *Client) sendResponse(msg responseMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal response", "error", err)
		return
	}
	c.trySend(data)
}
