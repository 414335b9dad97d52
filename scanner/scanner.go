// Package scanner runs the discovery and measurement loop: it listens to the
// radio's discovery stream, tracks the registered neighbors it can hear, and
// maintains a bounded window of recent RSSI samples per tracked peer.
package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/locproof/core"
	"github.com/signalsfoundry/locproof/internal/logging"
	"github.com/signalsfoundry/locproof/model"
)

// idleTick bounds how long the event loop sleeps when the discovery stream
// is quiet, so cancellation and stream closure are noticed promptly.
const idleTick = 100 * time.Millisecond

// ErrDiscoveryClosed is returned by Run when the radio's discovery stream
// ends while the engine was still supposed to be scanning.
var ErrDiscoveryClosed = errors.New("scanner: discovery stream closed")

// NeighborLookup answers whether a discovered address belongs to a peer
// worth tracking.
type NeighborLookup interface {
	Contains(addr model.Address) bool
}

// Metrics receives engine instrumentation. Implementations must be safe for
// concurrent use.
type Metrics interface {
	SetTrackedPeers(n int)
	AddRSSISample()
}

// Engine drives one radio. Per tracked peer it owns an RSSI window written
// by a dedicated observation goroutine; windows and goroutine handles live
// and die together under one lock, so a lost peer's late samples can never
// recreate its window.
type Engine struct {
	radio     Radio
	neighbors NeighborLookup
	log       logging.Logger
	metrics   Metrics

	mu      sync.Mutex
	windows map[model.Address]*core.RSSIWindow
	cancels map[model.Address]context.CancelFunc
}

// NewEngine constructs an engine over the given radio and neighbor lookup.
// Metrics may be nil.
func NewEngine(radio Radio, neighbors NeighborLookup, log logging.Logger, metrics Metrics) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	return &Engine{
		radio:     radio,
		neighbors: neighbors,
		log:       log,
		metrics:   metrics,
		windows:   make(map[model.Address]*core.RSSIWindow),
		cancels:   make(map[model.Address]context.CancelFunc),
	}
}

// Run executes the scan loop until ctx is cancelled or the discovery stream
// fails. It also keeps the local radio advertising for the duration.
func (e *Engine) Run(ctx context.Context) error {
	go func() {
		if err := e.radio.Advertise(ctx); err != nil && ctx.Err() == nil {
			e.log.Warn(ctx, "advertising stopped", logging.Err(err))
		}
	}()

	events, err := e.radio.Events(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(idleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.stopAll()
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				e.stopAll()
				if err := ctx.Err(); err != nil {
					return err
				}
				return ErrDiscoveryClosed
			}
			switch ev.Kind {
			case DeviceFound:
				e.deviceFound(ctx, ev.Address)
			case DeviceLost:
				e.deviceLost(ctx, ev.Address)
			}

		case <-ticker.C:
			// Idle wakeup only.
		}
	}
}

// Snapshot returns the median RSSI per tracked peer. Peers whose window is
// still empty are omitted.
func (e *Engine) Snapshot() []model.DeviceRSSI {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.DeviceRSSI, 0, len(e.windows))
	for addr, w := range e.windows {
		if median, ok := w.Median(); ok {
			out = append(out, model.DeviceRSSI{Address: addr, Rssi: median})
		}
	}
	return out
}

// Tracked returns the number of peers currently under observation.
func (e *Engine) Tracked() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.windows)
}

func (e *Engine) deviceFound(ctx context.Context, addr model.Address) {
	if !e.neighbors.Contains(addr) {
		e.log.Debug(ctx, "ignoring unregistered device", logging.String("address", addr.String()))
		return
	}

	e.mu.Lock()
	if _, tracked := e.windows[addr]; tracked {
		e.mu.Unlock()
		return
	}
	obsCtx, cancel := context.WithCancel(ctx)
	e.windows[addr] = &core.RSSIWindow{}
	e.cancels[addr] = cancel
	n := len(e.windows)
	e.mu.Unlock()

	e.log.Info(ctx, "tracking peer", logging.String("address", addr.String()), logging.Int("tracked", n))
	if e.metrics != nil {
		e.metrics.SetTrackedPeers(n)
	}

	go e.observe(obsCtx, addr)
}

func (e *Engine) deviceLost(ctx context.Context, addr model.Address) {
	n, tracked := e.drop(addr)
	if !tracked {
		return
	}
	e.log.Info(ctx, "peer lost", logging.String("address", addr.String()), logging.Int("tracked", n))
	if e.metrics != nil {
		e.metrics.SetTrackedPeers(n)
	}
}

// drop cancels a peer's observation task and removes its window under the
// same lock acquisition, so a sample racing in through push finds no window
// to land in.
func (e *Engine) drop(addr model.Address) (remaining int, tracked bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancel, tracked := e.cancels[addr]
	if tracked {
		cancel()
		delete(e.cancels, addr)
		delete(e.windows, addr)
	}
	return len(e.windows), tracked
}

// observe is the single writer for one peer's window. It seeds the window
// with a direct read, then consumes the subscription stream.
func (e *Engine) observe(ctx context.Context, addr model.Address) {
	if rssi, err := e.radio.ReadRSSI(ctx, addr); err != nil {
		e.log.Debug(ctx, "initial rssi read failed",
			logging.String("address", addr.String()), logging.Err(err))
	} else if rssi != 0 {
		// Zero means the controller had no measurement yet; skip it
		// rather than poison the window with a bogus 0 dBm sample.
		e.push(addr, rssi)
	}

	updates, err := e.radio.SubscribeRSSI(ctx, addr)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn(ctx, "rssi subscription failed",
				logging.String("address", addr.String()), logging.Err(err))
			// Release the tracking slot so the next discovery event for
			// this peer can retry.
			if n, tracked := e.drop(addr); tracked && e.metrics != nil {
				e.metrics.SetTrackedPeers(n)
			}
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case rssi, ok := <-updates:
			if !ok {
				return
			}
			e.push(addr, rssi)
		}
	}
}

// push records a sample if the peer is still tracked. Samples for peers
// removed in the meantime are dropped.
func (e *Engine) push(addr model.Address, rssi int16) {
	e.mu.Lock()
	w, tracked := e.windows[addr]
	if tracked {
		w.Push(rssi)
	}
	e.mu.Unlock()

	if tracked && e.metrics != nil {
		e.metrics.AddRSSISample()
	}
}

func (e *Engine) stopAll() {
	e.mu.Lock()
	for addr, cancel := range e.cancels {
		cancel()
		delete(e.cancels, addr)
		delete(e.windows, addr)
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SetTrackedPeers(0)
	}
}
