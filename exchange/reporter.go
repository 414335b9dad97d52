package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/locproof/internal/logging"
	"github.com/signalsfoundry/locproof/ledger"
	"github.com/signalsfoundry/locproof/model"
)

// ReporterMetrics receives reporting-loop instrumentation. Implementations
// must be safe for concurrent use.
type ReporterMetrics interface {
	AddReportCycle(outcome string)
	AddRSSISubmitted()
}

// Report cycle outcomes.
const (
	CycleOK    = "ok"
	CycleError = "error"
)

// Reporter bridges one node's exchange server to the ledger. It registers
// the node from its announced location, then periodically pulls the node's
// RSSI snapshot and publishes each observation.
type Reporter struct {
	client   *Client
	account  model.AccountID
	led      *ledger.Ledger
	interval time.Duration
	log      logging.Logger
	metrics  ReporterMetrics

	registered bool
}

// NewReporter constructs a reporter for the given account. Metrics may be
// nil.
func NewReporter(client *Client, account model.AccountID, led *ledger.Ledger, interval time.Duration, log logging.Logger, metrics ReporterMetrics) *Reporter {
	if log == nil {
		log = logging.Noop()
	}
	return &Reporter{
		client:   client,
		account:  account,
		led:      led,
		interval: interval,
		log:      log.With(logging.String("account", string(account))),
		metrics:  metrics,
	}
}

// Run executes report cycles until ctx is cancelled. A failed cycle is
// logged and the loop carries on; transient exchange or ledger errors must
// not kill reporting.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Cycle(ctx); err != nil {
			r.log.Warn(ctx, "report cycle failed", logging.Err(err))
			r.addCycle(CycleError)
		} else {
			r.addCycle(CycleOK)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Cycle performs one full report pass: ensure the node is registered, then
// publish its current snapshot.
func (r *Reporter) Cycle(ctx context.Context) error {
	if err := r.ensureRegistered(ctx); err != nil {
		return err
	}

	entries, err := r.client.FetchRSSI(ctx)
	if err != nil {
		return err
	}

	for _, e := range entries {
		observed, ok := r.led.AccountByAddress(e.Address)
		if !ok {
			// The peer may have unregistered between measurement and
			// report; its sample is simply stale.
			r.log.Debug(ctx, "dropping sample for unknown address",
				logging.String("address", e.Address.String()))
			continue
		}

		if err := r.led.PublishRSSI(r.account, observed, e.Rssi); err != nil {
			// Constraint rejections are the ledger doing its job; log
			// and move on to the next sample.
			r.log.Warn(ctx, "rssi rejected",
				logging.String("observed", string(observed)),
				logging.Int16("rssi", e.Rssi),
				logging.Err(err))
			continue
		}
		if r.metrics != nil {
			r.metrics.AddRSSISubmitted()
		}
	}
	return nil
}

func (r *Reporter) ensureRegistered(ctx context.Context) error {
	if r.registered {
		return nil
	}
	if _, ok := r.led.Get(r.account); ok {
		// Restored from a previous run; nothing to do.
		r.registered = true
		return nil
	}

	ann, err := r.client.FetchAnnouncement(ctx)
	if err != nil {
		return err
	}

	loc := model.NodeLocation{
		Address:        ann.Address,
		LatitudeMicro:  model.FixedFromDegrees(ann.Latitude),
		LongitudeMicro: model.FixedFromDegrees(ann.Longitude),
	}
	err = r.led.Register(r.account, loc)
	switch {
	case err == nil:
		r.log.Info(ctx, "node registered",
			logging.String("address", ann.Address.String()),
			logging.Float64("lat", ann.Latitude),
			logging.Float64("lon", ann.Longitude))
	case errors.Is(err, ledger.ErrAccountRegistered):
		// Lost the race with another registration path; fine.
	default:
		return err
	}
	r.registered = true
	return nil
}

func (r *Reporter) addCycle(outcome string) {
	if r.metrics != nil {
		r.metrics.AddReportCycle(outcome)
	}
}
