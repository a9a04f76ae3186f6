package fleet

import (
	"context"
	"sort"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/ble"
)

// initialDiscovery runs one startup scan for every configured identity and
// binds and starts each match. Identities that do not appear are left for
// the rescan supervisor; start failures leave the binding in place.
func (m *Manager) initialDiscovery(ctx context.Context) {
	targets := m.unboundTargets()
	if len(targets) == 0 {
		return
	}

	found, err := scanForTargets(ctx, m.scanner, targets, m.cfg.InitialScanTimeout)
	if err != nil {
		m.logger.Error("initial discovery scan failed", "error", err)
	}

	m.bindAndStart(ctx, found)

	var missing []string
	for name := range targets {
		if _, ok := found[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		m.logger.Warn("some devices not discovered at startup", "missing", missing)
	}
}

// rescanLoop re-scans for unbound identities on a fixed interval for the
// process lifetime. Each tick skips entirely when every identity is bound.
func (m *Manager) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			targets := m.unboundTargets()
			if len(targets) == 0 {
				continue
			}

			names := make([]string, 0, len(targets))
			for name := range targets {
				names = append(names, name)
			}
			sort.Strings(names)
			m.logger.Info("rescanning for missing devices", "missing", names)

			found, err := scanForTargets(ctx, m.scanner, targets, m.cfg.RescanTimeout)
			if err != nil {
				m.logger.Error("rescan failed", "error", err)
				continue
			}
			m.bindAndStart(ctx, found)
		}
	}
}

// unboundTargets returns the matcher set for every identity that has no
// binding yet. Bound-but-unstarted sessions are intentionally excluded:
// start failures do not remove a binding and are not retried here.
func (m *Manager) unboundTargets() map[string]scanTarget {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targets := make(map[string]scanTarget)
	for name, session := range m.devices {
		if session.Ready() {
			continue
		}
		targets[name] = scanTarget{
			address:   session.Address(),
			matchName: session.MatchName(),
		}
	}
	return targets
}

// bindAndStart binds every scan match into its session and starts it.
// Bind itself refuses a session that became bound concurrently, so a race
// against a concurrent manual bind cannot double-bind.
func (m *Manager) bindAndStart(ctx context.Context, found map[string]ble.Advertisement) {
	for name, adv := range found {
		session, err := m.Device(name)
		if err != nil {
			continue
		}
		if !session.Bind(adv) {
			continue
		}
		if err := session.Start(ctx); err != nil {
			m.logger.Error("start/connect failed", "device", name, "error", err)
		}
	}
}
