package snooz

import "time"

// Op enumerates device command operations.
type Op string

// Command operations understood by the control session.
const (
	OpTurnOn             Op = "turn_on"
	OpTurnOff            Op = "turn_off"
	OpSetVolume          Op = "set_volume"
	OpTurnLightOn        Op = "turn_light_on"
	OpTurnLightOff       Op = "turn_light_off"
	OpSetLightBrightness Op = "set_light_brightness"
)

// Command is one device command. Optional parameters are nil when unset.
type Command struct {
	Op         Op
	Volume     *int
	Brightness *int

	// Duration requests a gradual transition (fade) over the given time.
	Duration *time.Duration
}

// TurnOn builds a noise-on command with an optional target volume.
func TurnOn(volume *int) Command {
	return Command{Op: OpTurnOn, Volume: volume}
}

// TurnOff builds a noise-off command with an optional fade-out duration.
func TurnOff(duration *time.Duration) Command {
	return Command{Op: OpTurnOff, Duration: duration}
}

// SetVolume builds a volume command.
func SetVolume(volume int) Command {
	return Command{Op: OpSetVolume, Volume: &volume}
}

// TurnLightOn builds a night-light on command.
func TurnLightOn() Command {
	return Command{Op: OpTurnLightOn}
}

// TurnLightOff builds a night-light off command.
func TurnLightOff() Command {
	return Command{Op: OpTurnLightOff}
}

// SetLightBrightness builds a night-light brightness command.
func SetLightBrightness(brightness int) Command {
	return Command{Op: OpSetLightBrightness, Brightness: &brightness}
}

// CommandStatus reports how a command execution concluded.
type CommandStatus string

// Command result statuses, serialised by name in command result payloads.
const (
	StatusSuccessful        CommandStatus = "SUCCESSFUL"
	StatusCancelled         CommandStatus = "CANCELLED"
	StatusDeviceUnavailable CommandStatus = "DEVICE_UNAVAILABLE"
	StatusUnexpectedError   CommandStatus = "UNEXPECTED_ERROR"
)

// CommandResult is the outcome of one executed command.
type CommandResult struct {
	Status   CommandStatus
	Duration time.Duration
	Response any
}

// ResultPayload is the wire shape of a command result:
// {status, duration_s, response}.
type ResultPayload struct {
	Status    CommandStatus `json:"status"`
	DurationS *float64      `json:"duration_s"`
	Response  any           `json:"response"`
}

// Payload converts a CommandResult to its wire shape, rendering the duration
// in seconds. A result that carries no duration serialises duration_s as
// null rather than 0.
func (r CommandResult) Payload() ResultPayload {
	payload := ResultPayload{
		Status:   r.Status,
		Response: r.Response,
	}
	if r.Duration > 0 {
		seconds := r.Duration.Seconds()
		payload.DurationS = &seconds
	}
	return payload
}
