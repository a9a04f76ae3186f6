package fleet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/ble"
)

// scanTarget is the matcher set for one identity being scanned for.
type scanTarget struct {
	address   string
	matchName string
}

// scanForTargets performs one bounded scan and returns the advertisement
// matched for every target found before the timeout; unmatched targets are
// simply absent.
//
// Matching per advertisement: an exact (case-normalised) address match takes
// priority; the advertised name is only consulted when no address matched.
// The first match per identity wins: an identity already matched within
// this scan is not re-matched. The scan terminates the instant every target
// has been matched, or at timeout, whichever is first.
func scanForTargets(ctx context.Context, scanner ble.Scanner, targets map[string]scanTarget, timeout time.Duration) (map[string]ble.Advertisement, error) {
	addrToName := make(map[string]string)
	nameToName := make(map[string]string)
	for deviceName, target := range targets {
		if target.address != "" {
			addrToName[strings.ToUpper(target.address)] = deviceName
		}
		if target.matchName != "" {
			nameToName[strings.ToLower(strings.TrimSpace(target.matchName))] = deviceName
		}
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	found := make(map[string]ble.Advertisement)
	allFound := make(chan struct{})
	var once sync.Once

	onAdvertisement := func(adv ble.Advertisement) {
		addr := strings.ToUpper(adv.Address)
		advName := strings.ToLower(strings.TrimSpace(adv.LocalName))

		var matched string
		if addr != "" {
			matched = addrToName[addr]
		}
		if matched == "" && advName != "" {
			matched = nameToName[advName]
		}
		if matched == "" {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if _, already := found[matched]; already {
			return
		}
		found[matched] = adv
		if len(found) == len(targets) {
			once.Do(func() { close(allFound) })
		}
	}

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- scanner.Scan(scanCtx, onAdvertisement)
	}()

	select {
	case <-allFound:
		cancel()
	case <-scanCtx.Done():
	}

	// The scanner has returned; no further callbacks can mutate found.
	err := <-scanErr
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return found, err
	}
	return found, nil
}
