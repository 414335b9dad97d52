// Package radio provides an in-process simulated transceiver backend for the
// scanning engine. Radios join a shared Environment that knows every radio's
// true position; signal strength between two radios is derived from the true
// geometry through the path-loss model, with Gaussian measurement noise on
// top. A node whose ledger claim disagrees with its true position therefore
// produces RSSI readings that betray the claim.
package radio

import (
	"context"
	"errors"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/signalsfoundry/locproof/core"
	"github.com/signalsfoundry/locproof/model"
	"github.com/signalsfoundry/locproof/scanner"
)

// ErrNotVisible is returned by RSSI operations against a radio that is out
// of range or has left the environment.
var ErrNotVisible = errors.New("radio: peer not visible")

const (
	defaultScanInterval = 200 * time.Millisecond
	defaultMaxRange     = 200.0 // meters
)

type position struct {
	lat float64
	lon float64
}

// EnvironmentConfig tunes the simulated airspace.
type EnvironmentConfig struct {
	// MaxRangeMeters is the distance beyond which radios cannot hear each
	// other at all.
	MaxRangeMeters float64

	// NoiseSigma is the standard deviation, in dBm, of the Gaussian noise
	// added to every RSSI measurement. Zero disables noise.
	NoiseSigma float64

	// PathLoss converts true distance to expected RSSI.
	PathLoss core.PathLossModel

	// ScanInterval is how often each radio re-surveys the airspace for
	// discovery events.
	ScanInterval time.Duration
}

// Environment is the shared airspace all simulated radios exist in.
type Environment struct {
	cfg   EnvironmentConfig
	noise distuv.Normal

	mu        sync.Mutex
	positions map[model.Address]position
}

// NewEnvironment constructs an airspace. Zero config fields get defaults.
func NewEnvironment(cfg EnvironmentConfig) *Environment {
	if cfg.MaxRangeMeters <= 0 {
		cfg.MaxRangeMeters = defaultMaxRange
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	if cfg.PathLoss == (core.PathLossModel{}) {
		cfg.PathLoss = core.DefaultPathLossModel()
	}
	return &Environment{
		cfg:       cfg,
		noise:     distuv.Normal{Mu: 0, Sigma: cfg.NoiseSigma},
		positions: make(map[model.Address]position),
	}
}

// Join adds a radio at its true coordinates and returns its transceiver.
func (e *Environment) Join(addr model.Address, trueLat, trueLon float64) *SimRadio {
	e.mu.Lock()
	e.positions[addr] = position{lat: trueLat, lon: trueLon}
	e.mu.Unlock()
	return &SimRadio{env: e, addr: addr}
}

// Leave removes a radio from the airspace. Its peers will observe a lost
// event on their next scan.
func (e *Environment) Leave(addr model.Address) {
	e.mu.Lock()
	delete(e.positions, addr)
	e.mu.Unlock()
}

// Move relocates a radio's true position.
func (e *Environment) Move(addr model.Address, trueLat, trueLon float64) {
	e.mu.Lock()
	if _, ok := e.positions[addr]; ok {
		e.positions[addr] = position{lat: trueLat, lon: trueLon}
	}
	e.mu.Unlock()
}

// visibleTo returns the addresses within hearing range of from.
func (e *Environment) visibleTo(from model.Address) map[model.Address]bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	self, ok := e.positions[from]
	if !ok {
		return nil
	}
	out := make(map[model.Address]bool)
	for addr, pos := range e.positions {
		if addr == from {
			continue
		}
		if core.DistanceMeters(self.lat, self.lon, pos.lat, pos.lon) <= e.cfg.MaxRangeMeters {
			out[addr] = true
		}
	}
	return out
}

// measure computes the RSSI from observes at observer, with noise applied.
func (e *Environment) measure(observer, observed model.Address) (int16, error) {
	e.mu.Lock()
	a, okA := e.positions[observer]
	b, okB := e.positions[observed]
	e.mu.Unlock()
	if !okA || !okB {
		return 0, ErrNotVisible
	}

	dist := core.DistanceMeters(a.lat, a.lon, b.lat, b.lon)
	if dist > e.cfg.MaxRangeMeters {
		return 0, ErrNotVisible
	}

	rssi := float64(e.cfg.PathLoss.EstimateAtDistance(dist))
	if e.cfg.NoiseSigma > 0 {
		rssi += e.noise.Rand()
	}
	return int16(rssi), nil
}

// SimRadio is one node's transceiver inside an Environment. It implements
// scanner.Radio.
type SimRadio struct {
	env  *Environment
	addr model.Address
}

var _ scanner.Radio = (*SimRadio)(nil)

func (r *SimRadio) Address() model.Address { return r.addr }

// Events polls the airspace and diffs the visible set into found and lost
// events.
func (r *SimRadio) Events(ctx context.Context) (<-chan scanner.DeviceEvent, error) {
	out := make(chan scanner.DeviceEvent, 16)
	go func() {
		defer close(out)

		ticker := time.NewTicker(r.env.cfg.ScanInterval)
		defer ticker.Stop()

		known := make(map[model.Address]bool)
		for {
			visible := r.env.visibleTo(r.addr)
			for addr := range visible {
				if !known[addr] {
					known[addr] = true
					if !send(ctx, out, scanner.DeviceEvent{Kind: scanner.DeviceFound, Address: addr}) {
						return
					}
				}
			}
			for addr := range known {
				if !visible[addr] {
					delete(known, addr)
					if !send(ctx, out, scanner.DeviceEvent{Kind: scanner.DeviceLost, Address: addr}) {
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

func (r *SimRadio) ReadRSSI(ctx context.Context, addr model.Address) (int16, error) {
	return r.env.measure(r.addr, addr)
}

// SubscribeRSSI emits a fresh measurement once per scan interval until the
// peer leaves range.
func (r *SimRadio) SubscribeRSSI(ctx context.Context, addr model.Address) (<-chan int16, error) {
	if _, err := r.env.measure(r.addr, addr); err != nil {
		return nil, err
	}

	out := make(chan int16, 16)
	go func() {
		defer close(out)

		ticker := time.NewTicker(r.env.cfg.ScanInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			rssi, err := r.env.measure(r.addr, addr)
			if err != nil {
				return
			}
			if !send(ctx, out, rssi) {
				return
			}
		}
	}()
	return out, nil
}

// Advertise is a no-op in the simulation; presence in the Environment is
// what makes a radio discoverable. It blocks to match the real backend's
// contract.
func (r *SimRadio) Advertise(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- v:
		return true
	}
}
