package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/ble"
)

// scriptedScanner is a test Scanner that emits a fixed advertisement
// sequence, then idles until the scan context is cancelled.
type scriptedScanner struct {
	advertisements []ble.Advertisement
	emitDelay      time.Duration
}

func (s *scriptedScanner) Scan(ctx context.Context, onAdvertisement func(ble.Advertisement)) error {
	for _, adv := range s.advertisements {
		if s.emitDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.emitDelay):
			}
		}
		onAdvertisement(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func adv(address, name string) ble.Advertisement {
	return ble.Advertisement{Address: address, LocalName: name}
}

func TestScanForTargets_AddressMatchIsCaseInsensitive(t *testing.T) {
	scanner := &scriptedScanner{advertisements: []ble.Advertisement{
		adv("aa:bb:cc:dd:ee:ff", "SomethingElse"),
	}}
	targets := map[string]scanTarget{
		"bedroom": {address: "AA:BB:CC:DD:EE:FF"},
	}

	found, err := scanForTargets(context.Background(), scanner, targets, time.Second)
	if err != nil {
		t.Fatalf("scanForTargets() error = %v", err)
	}
	if _, ok := found["bedroom"]; !ok {
		t.Error("address match failed for differently-cased advertisement")
	}
}

func TestScanForTargets_AddressTakesPriorityOverName(t *testing.T) {
	// The identity has both matchers configured. An advertisement whose
	// address matches binds by address; its (different) name must not bind
	// some other identity's slot, and a name-only hit for the same identity
	// must not duplicate the match.
	scanner := &scriptedScanner{advertisements: []ble.Advertisement{
		adv("AA:BB:CC:DD:EE:FF", "Snooz-XYZ"),
		adv("11:22:33:44:55:66", "snooz-abc1"),
	}}
	targets := map[string]scanTarget{
		"bedroom": {address: "AA:BB:CC:DD:EE:FF", matchName: "Snooz-ABC1"},
	}

	found, err := scanForTargets(context.Background(), scanner, targets, time.Second)
	if err != nil {
		t.Fatalf("scanForTargets() error = %v", err)
	}
	got, ok := found["bedroom"]
	if !ok {
		t.Fatal("no match for bedroom")
	}
	if got.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("matched address = %q, want the address match, not the later name match", got.Address)
	}
}

func TestScanForTargets_NameMatchTrimsAndLowercases(t *testing.T) {
	scanner := &scriptedScanner{advertisements: []ble.Advertisement{
		adv("11:22:33:44:55:66", "  SNOOZ-abc1  "),
	}}
	targets := map[string]scanTarget{
		"nursery": {matchName: "snooz-ABC1"},
	}

	found, err := scanForTargets(context.Background(), scanner, targets, time.Second)
	if err != nil {
		t.Fatalf("scanForTargets() error = %v", err)
	}
	if _, ok := found["nursery"]; !ok {
		t.Error("case-insensitive trimmed name match failed")
	}
}

func TestScanForTargets_TerminatesEarlyWhenAllMatched(t *testing.T) {
	scanner := &scriptedScanner{advertisements: []ble.Advertisement{
		adv("AA:AA:AA:AA:AA:AA", ""),
		adv("BB:BB:BB:BB:BB:BB", ""),
	}}
	targets := map[string]scanTarget{
		"a": {address: "AA:AA:AA:AA:AA:AA"},
		"b": {address: "BB:BB:BB:BB:BB:BB"},
	}

	start := time.Now()
	found, err := scanForTargets(context.Background(), scanner, targets, 30*time.Second)
	if err != nil {
		t.Fatalf("scanForTargets() error = %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("len(found) = %d, want 2", len(found))
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("scan took %v, want early termination well before the 30s timeout", elapsed)
	}
}

func TestScanForTargets_TimeoutReturnsPartialResults(t *testing.T) {
	scanner := &scriptedScanner{advertisements: []ble.Advertisement{
		adv("AA:AA:AA:AA:AA:AA", ""),
	}}
	targets := map[string]scanTarget{
		"a": {address: "AA:AA:AA:AA:AA:AA"},
		"b": {address: "BB:BB:BB:BB:BB:BB"},
	}

	found, err := scanForTargets(context.Background(), scanner, targets, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("scanForTargets() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("len(found) = %d, want 1 (partial result, no error)", len(found))
	}
	if _, ok := found["a"]; !ok {
		t.Error("matched target missing from partial result")
	}
}

func TestScanForTargets_FirstMatchWins(t *testing.T) {
	first := adv("AA:AA:AA:AA:AA:AA", "first")
	second := adv("AA:AA:AA:AA:AA:AA", "second")
	scanner := &scriptedScanner{advertisements: []ble.Advertisement{first, second}}
	targets := map[string]scanTarget{
		"a": {address: "AA:AA:AA:AA:AA:AA"},
		"b": {address: "BB:BB:BB:BB:BB:BB"},
	}

	found, err := scanForTargets(context.Background(), scanner, targets, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("scanForTargets() error = %v", err)
	}
	if got := found["a"]; got.LocalName != "first" {
		t.Errorf("matched LocalName = %q, want %q (idempotent within one scan)", got.LocalName, "first")
	}
}
