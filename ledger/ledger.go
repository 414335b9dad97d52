package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/locproof/core"
	"github.com/signalsfoundry/locproof/model"
)

// Typed rejection reasons for registry mutations. Precondition failures are
// values, not panics: the caller that submitted the mutation decides what to
// do with them.
var (
	ErrAddressTaken         = errors.New("radio address already registered")
	ErrAccountRegistered    = errors.New("account already registered")
	ErrAccountNotRegistered = errors.New("account not registered")
	ErrAddressNotRegistered = errors.New("radio address not registered")
	ErrExceedsMaxDistance   = errors.New("distance between nodes exceeds maximum")
	ErrUpdateCooldown       = errors.New("node update cooldown has not elapsed")
)

// EventType indicates what kind of change happened on the ledger.
type EventType int

const (
	EventNodeRegistered EventType = iota
	EventNodeUnregistered
	EventNodeUpdated
	EventRssiStored
)

// Event is emitted to subscribers on every successful mutation.
type Event struct {
	Type    EventType
	Account model.AccountID

	// Location carries the entry after the mutation (registered/updated);
	// for unregistration it carries the removed entry.
	Location model.NodeLocation

	// OldLocation is populated for EventNodeUpdated only.
	OldLocation model.NodeLocation

	// RSSI observation fields, populated for EventRssiStored only.
	Epoch    uint64
	Reporter model.AccountID
	Rssi     int16
}

// Config sets the ledger's read-only constants.
type Config struct {
	// MaxDistanceMeters is the maximum separation at which two nodes are
	// considered neighbors and at which RSSI reports are accepted.
	MaxDistanceMeters float64

	// UpdateCooldownEpochs is the minimum number of epochs between two
	// updates of the same node's entry. Zero disables the cooldown.
	UpdateCooldownEpochs uint64
}

type rssiKey struct {
	epoch    uint64
	observed model.AccountID
	observer model.AccountID
}

// Ledger is an in-memory, thread-safe node registry with bidirectional
// account/address uniqueness, epoch-keyed RSSI storage, and a change-event
// feed. It stands in for the durable ledger collaborator; consensus and
// finality are outside its remit.
type Ledger struct {
	mu  sync.RWMutex
	cfg Config

	epoch     uint64
	accounts  map[model.AccountID]model.NodeLocation
	addresses map[model.Address]model.AccountID
	rssi      map[rssiKey]int16
	endpoints map[model.AccountID]string

	subs    map[int]func(Event)
	nextSub int
}

// New constructs an empty ledger.
func New(cfg Config) *Ledger {
	return &Ledger{
		cfg:       cfg,
		accounts:  make(map[model.AccountID]model.NodeLocation),
		addresses: make(map[model.Address]model.AccountID),
		rssi:      make(map[rssiKey]int16),
		endpoints: make(map[model.AccountID]string),
		subs:      make(map[int]func(Event)),
	}
}

// MaxDistanceMeters exposes the configured neighbor distance limit.
func (l *Ledger) MaxDistanceMeters() float64 {
	return l.cfg.MaxDistanceMeters
}

// CurrentEpoch returns the ledger's monotonic time counter.
func (l *Ledger) CurrentEpoch() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.epoch
}

// AdvanceEpoch increments the epoch counter and returns the new value.
func (l *Ledger) AdvanceEpoch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch++
	return l.epoch
}

// Register binds an account to a radio address and claimed coordinates.
// Both the account and the address must be unused.
func (l *Ledger) Register(account model.AccountID, loc model.NodeLocation) error {
	l.mu.Lock()

	if _, taken := l.addresses[loc.Address]; taken {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAddressTaken, loc.Address)
	}
	if _, exists := l.accounts[account]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountRegistered, account)
	}

	loc.UpdatedEpoch = l.epoch
	l.accounts[account] = loc
	l.addresses[loc.Address] = account

	event := Event{Type: EventNodeRegistered, Account: account, Location: loc}
	subs := l.snapshotSubs()
	l.mu.Unlock()

	l.notify(subs, event)
	return nil
}

// Unregister removes an account's entry and address mapping along with its
// endpoint configuration.
func (l *Ledger) Unregister(account model.AccountID) error {
	l.mu.Lock()

	loc, exists := l.accounts[account]
	if !exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountNotRegistered, account)
	}

	delete(l.accounts, account)
	delete(l.addresses, loc.Address)
	delete(l.endpoints, account)

	event := Event{Type: EventNodeUnregistered, Account: account, Location: loc}
	subs := l.snapshotSubs()
	l.mu.Unlock()

	l.notify(subs, event)
	return nil
}

// Update replaces a registered account's address and/or coordinates. When
// the address changes, the new address must be unused; the old mapping is
// released. Updates are rejected while the cooldown window since the last
// write has not elapsed.
func (l *Ledger) Update(account model.AccountID, loc model.NodeLocation) error {
	l.mu.Lock()

	old, exists := l.accounts[account]
	if !exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountNotRegistered, account)
	}
	if cd := l.cfg.UpdateCooldownEpochs; cd > 0 && l.epoch-old.UpdatedEpoch < cd {
		l.mu.Unlock()
		return fmt.Errorf("%w: last update at epoch %d", ErrUpdateCooldown, old.UpdatedEpoch)
	}
	if old.Address != loc.Address {
		if _, taken := l.addresses[loc.Address]; taken {
			l.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAddressTaken, loc.Address)
		}
		delete(l.addresses, old.Address)
		l.addresses[loc.Address] = account
	}

	loc.UpdatedEpoch = l.epoch
	l.accounts[account] = loc

	event := Event{Type: EventNodeUpdated, Account: account, Location: loc, OldLocation: old}
	subs := l.snapshotSubs()
	l.mu.Unlock()

	l.notify(subs, event)
	return nil
}

// PublishRSSI stores one signal-strength observation of subject by reporter
// under the current epoch. Both accounts must be registered and their
// claimed locations within MaxDistanceMeters of each other. Re-publishing
// for the same (epoch, subject, reporter) overwrites the earlier value.
func (l *Ledger) PublishRSSI(reporter, subject model.AccountID, rssi int16) error {
	l.mu.Lock()

	reporterLoc, ok := l.accounts[reporter]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: reporter %s", ErrAccountNotRegistered, reporter)
	}
	subjectLoc, ok := l.accounts[subject]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: subject %s", ErrAccountNotRegistered, subject)
	}

	dist := core.DistanceMeters(
		reporterLoc.LatDegrees(), reporterLoc.LonDegrees(),
		subjectLoc.LatDegrees(), subjectLoc.LonDegrees(),
	)
	if dist > l.cfg.MaxDistanceMeters {
		l.mu.Unlock()
		return fmt.Errorf("%w: %.1fm > %.1fm", ErrExceedsMaxDistance, dist, l.cfg.MaxDistanceMeters)
	}

	epoch := l.epoch
	l.rssi[rssiKey{epoch: epoch, observed: subject, observer: reporter}] = rssi

	event := Event{
		Type:     EventRssiStored,
		Account:  subject,
		Epoch:    epoch,
		Reporter: reporter,
		Rssi:     rssi,
	}
	subs := l.snapshotSubs()
	l.mu.Unlock()

	l.notify(subs, event)
	return nil
}

// Get returns the registered entry for an account.
func (l *Ledger) Get(account model.AccountID) (model.NodeLocation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	loc, ok := l.accounts[account]
	return loc, ok
}

// AccountByAddress resolves a radio address to its owning account.
func (l *Ledger) AccountByAddress(addr model.Address) (model.AccountID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	account, ok := l.addresses[addr]
	return account, ok
}

// Locations returns a snapshot copy of all registered entries.
func (l *Ledger) Locations() map[model.AccountID]model.NodeLocation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[model.AccountID]model.NodeLocation, len(l.accounts))
	for account, loc := range l.accounts {
		out[account] = loc
	}
	return out
}

// GetRSSI returns the stored observation of subject by reporter at epoch.
func (l *Ledger) GetRSSI(epoch uint64, subject, reporter model.AccountID) (int16, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.rssi[rssiKey{epoch: epoch, observed: subject, observer: reporter}]
	return v, ok
}

// RSSIForSubject returns all observations of subject at epoch, keyed by
// reporter.
func (l *Ledger) RSSIForSubject(epoch uint64, subject model.AccountID) map[model.AccountID]int16 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[model.AccountID]int16)
	for k, v := range l.rssi {
		if k.epoch == epoch && k.observed == subject {
			out[k.observer] = v
		}
	}
	return out
}

// SetEndpoint stores the exchange server endpoint ("host:port") an
// account's reporting process should fetch from.
func (l *Ledger) SetEndpoint(account model.AccountID, endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endpoints[account] = endpoint
}

// Endpoint returns the configured exchange endpoint for an account.
func (l *Ledger) Endpoint(account model.AccountID) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ep, ok := l.endpoints[account]
	return ep, ok
}

// Subscribe registers a callback for ledger events. It returns an
// unsubscribe function. Callbacks run outside the ledger lock, in mutation
// order per caller. Subscriptions are keyed, so unsubscribing one never
// disturbs the others regardless of registration or removal order.
func (l *Ledger) Subscribe(fn func(Event)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := l.nextSub
	l.nextSub++
	l.subs[key] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, key)
	}
}

// snapshotSubs copies the current callbacks. Caller must hold l.mu.
func (l *Ledger) snapshotSubs() []func(Event) {
	subs := make([]func(Event), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (l *Ledger) notify(subs []func(Event), event Event) {
	for _, sub := range subs {
		sub(event)
	}
}
