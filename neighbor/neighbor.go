// Package neighbor maintains the set of peers whose registered locations
// put them within radio range of the local node. The set is seeded from a
// full ledger snapshot at startup and kept current from the ledger's
// change-event feed; the scanning engine consults it to decide which
// discovered radios are worth tracking.
package neighbor

import (
	"context"
	"sync"

	"github.com/signalsfoundry/locproof/core"
	"github.com/signalsfoundry/locproof/internal/logging"
	"github.com/signalsfoundry/locproof/ledger"
	"github.com/signalsfoundry/locproof/model"
)

// Set tracks in-range peer addresses. A peer is either present (in range)
// or absent (out of range); there is no intermediate state.
type Set struct {
	self   model.AccountID
	lat    float64
	lon    float64
	maxDim float64
	log    logging.Logger

	mu    sync.Mutex
	peers map[model.Address]model.AccountID
}

// NewSet constructs an empty set for the local node at the given claimed
// coordinates (degrees).
func NewSet(self model.AccountID, lat, lon, maxDistanceMeters float64, log logging.Logger) *Set {
	if log == nil {
		log = logging.Noop()
	}
	return &Set{
		self:   self,
		lat:    lat,
		lon:    lon,
		maxDim: maxDistanceMeters,
		log:    log,
		peers:  make(map[model.Address]model.AccountID),
	}
}

// Seed populates the set from a full registry snapshot. Insertion is
// idempotent, so notifications that raced ahead of the snapshot are
// harmless duplicates.
func (s *Set) Seed(l *ledger.Ledger) {
	for account, loc := range l.Locations() {
		if account == s.self {
			continue
		}
		if s.inRange(loc) {
			s.add(loc.Address, account)
		}
	}
}

// Apply folds one ledger change event into the set. Events about the local
// node itself are ignored.
func (s *Set) Apply(ev ledger.Event) {
	if ev.Account == s.self {
		return
	}

	switch ev.Type {
	case ledger.EventNodeRegistered:
		if s.inRange(ev.Location) {
			s.add(ev.Location.Address, ev.Account)
		}

	case ledger.EventNodeUnregistered:
		// A vanished node cannot be in range, whatever distance was
		// last recorded for it.
		s.remove(ev.Location.Address)

	case ledger.EventNodeUpdated:
		if ev.OldLocation.Address != ev.Location.Address {
			s.remove(ev.OldLocation.Address)
		}
		if s.inRange(ev.Location) {
			s.add(ev.Location.Address, ev.Account)
		} else {
			s.remove(ev.Location.Address)
		}
	}
}

// Contains reports whether the address belongs to an in-range peer.
func (s *Set) Contains(addr model.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.peers[addr]
	return ok
}

// Account returns the account owning an in-range address.
func (s *Set) Account(addr model.Address) (model.AccountID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.peers[addr]
	return account, ok
}

// Addresses returns a snapshot of the in-range peer addresses.
func (s *Set) Addresses() []model.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Address, 0, len(s.peers))
	for addr := range s.peers {
		out = append(out, addr)
	}
	return out
}

// Len returns the number of in-range peers.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Set) inRange(loc model.NodeLocation) bool {
	dist := core.DistanceMeters(s.lat, s.lon, loc.LatDegrees(), loc.LonDegrees())
	return dist <= s.maxDim
}

func (s *Set) add(addr model.Address, account model.AccountID) {
	s.mu.Lock()
	_, present := s.peers[addr]
	s.peers[addr] = account
	n := len(s.peers)
	s.mu.Unlock()

	if !present {
		s.log.Info(context.Background(), "neighbor entered range",
			logging.String("address", addr.String()),
			logging.String("account", string(account)),
			logging.Int("neighbors", n),
		)
	}
}

func (s *Set) remove(addr model.Address) {
	s.mu.Lock()
	_, present := s.peers[addr]
	delete(s.peers, addr)
	n := len(s.peers)
	s.mu.Unlock()

	if present {
		s.log.Info(context.Background(), "neighbor left range",
			logging.String("address", addr.String()),
			logging.Int("neighbors", n),
		)
	}
}
