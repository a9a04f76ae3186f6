package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// GetState returns the cached snapshot for a device. It never touches the
// radio, so an unbound device reports a well-formed but empty snapshot
// rather than an error.
func (m *Manager) GetState(name string) (snooz.Snapshot, error) {
	session, err := m.Device(name)
	if err != nil {
		return snooz.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// NoiseOn turns the noise machine on, optionally at a target volume.
func (m *Manager) NoiseOn(ctx context.Context, name string, volume *int) (snooz.CommandResult, error) {
	if volume != nil {
		if err := validatePercent("volume", *volume); err != nil {
			return snooz.CommandResult{}, err
		}
	}
	return m.execute(ctx, name, "noise_on", snooz.TurnOn(volume))
}

// NoiseOff turns the noise machine off, optionally fading over durationS
// seconds.
func (m *Manager) NoiseOff(ctx context.Context, name string, durationS *float64) (snooz.CommandResult, error) {
	var duration *time.Duration
	if durationS != nil {
		if *durationS < 0 {
			return snooz.CommandResult{}, validationErrorf("duration_s must be >= 0")
		}
		d := time.Duration(*durationS * float64(time.Second))
		duration = &d
	}
	return m.execute(ctx, name, "noise_off", snooz.TurnOff(duration))
}

// SetVolume sets the noise volume.
func (m *Manager) SetVolume(ctx context.Context, name string, volume int) (snooz.CommandResult, error) {
	if err := validatePercent("volume", volume); err != nil {
		return snooz.CommandResult{}, err
	}
	return m.execute(ctx, name, "set_volume", snooz.SetVolume(volume))
}

// LightOn turns the night light on.
func (m *Manager) LightOn(ctx context.Context, name string) (snooz.CommandResult, error) {
	return m.execute(ctx, name, "light_on", snooz.TurnLightOn())
}

// LightOff turns the night light off.
func (m *Manager) LightOff(ctx context.Context, name string) (snooz.CommandResult, error) {
	return m.execute(ctx, name, "light_off", snooz.TurnLightOff())
}

// SetLightBrightness sets the night-light brightness.
func (m *Manager) SetLightBrightness(ctx context.Context, name string, brightness int) (snooz.CommandResult, error) {
	if err := validatePercent("brightness", brightness); err != nil {
		return snooz.CommandResult{}, err
	}
	return m.execute(ctx, name, "set_light_brightness", snooz.SetLightBrightness(brightness))
}

// execute resolves the target session, checks availability, and runs the
// command while holding the fleet-wide operation gate. A completed command
// with a non-success status is reported as ErrCommandFailed alongside the
// result.
//
// Argument validation happens in the exported command methods, before the
// gate is ever acquired, so an invalid command never reaches the radio.
func (m *Manager) execute(ctx context.Context, name string, op string, cmd snooz.Command) (snooz.CommandResult, error) {
	session, err := m.Device(name)
	if err != nil {
		return snooz.CommandResult{}, err
	}
	if !session.Ready() || !session.Connected() {
		return snooz.CommandResult{}, fmt.Errorf("%w: %s", ErrDeviceUnavailable, name)
	}

	result, err := m.gate.Do(ctx, name, op, func(ctx context.Context) (snooz.CommandResult, error) {
		return session.Execute(ctx, cmd)
	})
	if err != nil {
		return result, err
	}
	if result.Status != snooz.StatusSuccessful {
		return result, fmt.Errorf("%w: %s", ErrCommandFailed, result.Status)
	}
	return result, nil
}

// validatePercent checks a 0-100 argument.
func validatePercent(field string, value int) error {
	if value < 0 || value > 100 {
		return validationErrorf("%s must be 0..100", field)
	}
	return nil
}
