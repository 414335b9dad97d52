package scanner

import (
	"context"

	"github.com/signalsfoundry/locproof/model"
)

// EventKind distinguishes radio discovery events.
type EventKind int

const (
	// DeviceFound is emitted when a peer radio first becomes visible.
	DeviceFound EventKind = iota
	// DeviceLost is emitted when a previously visible radio disappears.
	DeviceLost
)

func (k EventKind) String() string {
	switch k {
	case DeviceFound:
		return "found"
	case DeviceLost:
		return "lost"
	default:
		return "unknown"
	}
}

// DeviceEvent is one discovery-stream entry.
type DeviceEvent struct {
	Kind    EventKind
	Address model.Address
}

// Radio abstracts the local transceiver. The engine drives it; backends
// include the in-process simulated radio and, on real hardware, a Bluetooth
// HCI adapter.
type Radio interface {
	// Address returns the local radio's hardware address.
	Address() model.Address

	// Events returns the discovery stream. The channel is closed when ctx
	// is cancelled or the underlying scan fails.
	Events(ctx context.Context) (<-chan DeviceEvent, error)

	// ReadRSSI performs a single signal-strength read against a visible
	// peer.
	ReadRSSI(ctx context.Context, addr model.Address) (int16, error)

	// SubscribeRSSI returns a stream of signal-strength updates for one
	// peer. The channel is closed when ctx is cancelled or the peer drops
	// off the air.
	SubscribeRSSI(ctx context.Context, addr model.Address) (<-chan int16, error)

	// Advertise makes the local radio discoverable. It blocks until ctx is
	// cancelled.
	Advertise(ctx context.Context) error
}
