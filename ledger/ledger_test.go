package ledger

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/locproof/model"
)

func microAt(meters float64) int64 {
	// Degrees of latitude per meter on the reference sphere, in
	// micro-degrees.
	return int64(meters / 111195.0 * model.MicroDegreeScale)
}

func testLedger() *Ledger {
	return New(Config{MaxDistanceMeters: 10})
}

func addr(last byte) model.Address {
	return model.Address{0xde, 0xad, 0xbe, 0xef, 0x00, last}
}

func TestRegisterAndGet(t *testing.T) {
	l := testLedger()
	loc := model.NodeLocation{Address: addr(1), LatitudeMicro: 1000, LongitudeMicro: 2000}
	if err := l.Register("alice", loc); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	got, ok := l.Get("alice")
	if !ok || got.Address != addr(1) || got.LatitudeMicro != 1000 {
		t.Fatalf("Get returned %#v, want registered entry", got)
	}
	if account, ok := l.AccountByAddress(addr(1)); !ok || account != "alice" {
		t.Fatalf("AccountByAddress = %q, %v; want alice", account, ok)
	}
}

func TestRegisterUniqueness(t *testing.T) {
	l := testLedger()
	if err := l.Register("alice", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	err := l.Register("bob", model.NodeLocation{Address: addr(1)})
	if !errors.Is(err, ErrAddressTaken) {
		t.Errorf("duplicate address error = %v, want ErrAddressTaken", err)
	}

	err = l.Register("alice", model.NodeLocation{Address: addr(2)})
	if !errors.Is(err, ErrAccountRegistered) {
		t.Errorf("duplicate account error = %v, want ErrAccountRegistered", err)
	}
}

func TestUnregisterReleasesAddress(t *testing.T) {
	l := testLedger()
	if err := l.Register("alice", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := l.Unregister("alice"); err != nil {
		t.Fatalf("Unregister error: %v", err)
	}
	if _, ok := l.Get("alice"); ok {
		t.Errorf("account still present after unregistration")
	}
	// Address is free for someone else now.
	if err := l.Register("bob", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Errorf("re-registering released address: %v", err)
	}

	if err := l.Unregister("carol"); !errors.Is(err, ErrAccountNotRegistered) {
		t.Errorf("unregister unknown account = %v, want ErrAccountNotRegistered", err)
	}
}

func TestUpdateAddressSwap(t *testing.T) {
	l := testLedger()
	if err := l.Register("alice", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := l.Register("bob", model.NodeLocation{Address: addr(2)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	// New address may not collide with bob's.
	err := l.Update("alice", model.NodeLocation{Address: addr(2)})
	if !errors.Is(err, ErrAddressTaken) {
		t.Fatalf("update to taken address = %v, want ErrAddressTaken", err)
	}

	if err := l.Update("alice", model.NodeLocation{Address: addr(3), LatitudeMicro: 7}); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if _, ok := l.AccountByAddress(addr(1)); ok {
		t.Errorf("old address still mapped after update")
	}
	if account, ok := l.AccountByAddress(addr(3)); !ok || account != "alice" {
		t.Errorf("new address maps to %q, %v; want alice", account, ok)
	}
}

func TestUpdateCooldown(t *testing.T) {
	l := New(Config{MaxDistanceMeters: 10, UpdateCooldownEpochs: 2})
	if err := l.Register("alice", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if err := l.Update("alice", model.NodeLocation{Address: addr(1), LatitudeMicro: 5}); !errors.Is(err, ErrUpdateCooldown) {
		t.Errorf("immediate update = %v, want ErrUpdateCooldown", err)
	}

	l.AdvanceEpoch()
	l.AdvanceEpoch()
	if err := l.Update("alice", model.NodeLocation{Address: addr(1), LatitudeMicro: 5}); err != nil {
		t.Errorf("update after cooldown: %v", err)
	}
}

func TestPublishRSSIValidation(t *testing.T) {
	l := testLedger()
	if err := l.Register("alice", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := l.Register("bob", model.NodeLocation{Address: addr(2), LatitudeMicro: microAt(5)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := l.Register("carol", model.NodeLocation{Address: addr(3), LatitudeMicro: microAt(5000)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if err := l.PublishRSSI("alice", "bob", -62); err != nil {
		t.Errorf("publish within range: %v", err)
	}
	if err := l.PublishRSSI("alice", "carol", -70); !errors.Is(err, ErrExceedsMaxDistance) {
		t.Errorf("publish out of range = %v, want ErrExceedsMaxDistance", err)
	}
	if err := l.PublishRSSI("mallory", "bob", -62); !errors.Is(err, ErrAccountNotRegistered) {
		t.Errorf("publish from unknown reporter = %v, want ErrAccountNotRegistered", err)
	}
}

func TestPublishRSSILastWriteWins(t *testing.T) {
	l := testLedger()
	if err := l.Register("alice", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := l.Register("bob", model.NodeLocation{Address: addr(2)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	epoch := l.CurrentEpoch()
	if err := l.PublishRSSI("alice", "bob", -60); err != nil {
		t.Fatalf("PublishRSSI error: %v", err)
	}
	if err := l.PublishRSSI("alice", "bob", -65); err != nil {
		t.Fatalf("PublishRSSI error: %v", err)
	}

	if v, ok := l.GetRSSI(epoch, "bob", "alice"); !ok || v != -65 {
		t.Errorf("GetRSSI = %d, %v; want -65 (overwritten)", v, ok)
	}

	// A new epoch opens a fresh slot.
	l.AdvanceEpoch()
	if err := l.PublishRSSI("alice", "bob", -50); err != nil {
		t.Fatalf("PublishRSSI error: %v", err)
	}
	if v, ok := l.GetRSSI(epoch, "bob", "alice"); !ok || v != -65 {
		t.Errorf("earlier epoch slot changed: %d, %v", v, ok)
	}

	observed := l.RSSIForSubject(epoch+1, "bob")
	if len(observed) != 1 || observed["alice"] != -50 {
		t.Errorf("RSSIForSubject = %v, want alice:-50", observed)
	}
}

func TestUnsubscribeRemovesOnlyItsOwnCallback(t *testing.T) {
	l := testLedger()

	var gotA, gotB, gotC int
	unsubA := l.Subscribe(func(Event) { gotA++ })
	unsubB := l.Subscribe(func(Event) { gotB++ })
	l.Subscribe(func(Event) { gotC++ })

	// Removing earlier subscriptions must not shift which callbacks the
	// remaining unsubscribe functions target.
	unsubA()
	unsubB()

	if err := l.Register("alice", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if gotA != 0 {
		t.Errorf("unsubscribed callback A received %d events, want 0", gotA)
	}
	if gotB != 0 {
		t.Errorf("unsubscribed callback B received %d events, want 0", gotB)
	}
	if gotC != 1 {
		t.Errorf("still-subscribed callback C received %d events, want 1", gotC)
	}

	// Unsubscribing twice is harmless.
	unsubB()
	if err := l.Register("bob", model.NodeLocation{Address: addr(2)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if gotC != 2 {
		t.Errorf("callback C received %d events, want 2", gotC)
	}
}

func TestEndpointLifecycle(t *testing.T) {
	l := testLedger()
	if err := l.Register("alice", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, ok := l.Endpoint("alice"); ok {
		t.Errorf("endpoint present before SetEndpoint")
	}
	l.SetEndpoint("alice", "http://127.0.0.1:7070")
	if ep, ok := l.Endpoint("alice"); !ok || ep != "http://127.0.0.1:7070" {
		t.Errorf("Endpoint = %q, %v; want stored value", ep, ok)
	}

	// Unregistration clears the endpoint too.
	if err := l.Unregister("alice"); err != nil {
		t.Fatalf("Unregister error: %v", err)
	}
	if _, ok := l.Endpoint("alice"); ok {
		t.Errorf("endpoint survived unregistration")
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	l := testLedger()
	var events []Event
	unsubscribe := l.Subscribe(func(ev Event) { events = append(events, ev) })

	if err := l.Register("alice", model.NodeLocation{Address: addr(1)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := l.Update("alice", model.NodeLocation{Address: addr(2)}); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if err := l.Unregister("alice"); err != nil {
		t.Fatalf("Unregister error: %v", err)
	}

	want := []EventType{EventNodeRegistered, EventNodeUpdated, EventNodeUnregistered}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Errorf("event %d type = %v, want %v", i, ev.Type, want[i])
		}
	}
	if events[1].OldLocation.Address != addr(1) || events[1].Location.Address != addr(2) {
		t.Errorf("update event addresses = %v -> %v, want old addr(1) new addr(2)",
			events[1].OldLocation.Address, events[1].Location.Address)
	}

	unsubscribe()
	if err := l.Register("bob", model.NodeLocation{Address: addr(3)}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if len(events) != len(want) {
		t.Errorf("received event after unsubscribe")
	}
}
