package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/signalsfoundry/locproof/core"
	"github.com/signalsfoundry/locproof/epoch"
	"github.com/signalsfoundry/locproof/exchange"
	"github.com/signalsfoundry/locproof/internal/logging"
	"github.com/signalsfoundry/locproof/internal/observability"
	"github.com/signalsfoundry/locproof/internal/radio"
	"github.com/signalsfoundry/locproof/internal/store"
	"github.com/signalsfoundry/locproof/ledger"
	"github.com/signalsfoundry/locproof/model"
	"github.com/signalsfoundry/locproof/neighbor"
	"github.com/signalsfoundry/locproof/scanner"
	"github.com/signalsfoundry/locproof/trust"
)

func main() {
	account := flag.String("account", "alice", "Ledger account this node reports as")
	address := flag.String("address", "02:00:00:00:00:01", "Radio hardware address (aa:bb:cc:dd:ee:ff)")
	lat := flag.Float64("lat", 0, "Claimed latitude in degrees")
	lon := flag.Float64("lon", 0, "Claimed longitude in degrees")
	exchangeAddr := flag.String("exchange-addr", ":7070", "HTTP address for the exchange data plane")
	adminAddr := flag.String("admin-addr", ":8080", "HTTP address for the admin API")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	dbPath := flag.String("db", "", "SQLite path for registry persistence (empty disables)")
	epochTick := flag.Duration("epoch-tick", 6*time.Second, "Interval between epochs")
	reportInterval := flag.Duration("report-interval", 2*time.Second, "Interval between report cycles")
	maxDistance := flag.Float64("max-distance", 100, "Neighbor distance limit in meters")
	cooldown := flag.Uint64("update-cooldown", 0, "Epochs a node must wait between location updates")
	referenceRssi := flag.Int("reference-rssi", -60, "Expected RSSI at one meter, in dBm")
	pathLossExp := flag.Uint("path-loss-exp", 30, "Path-loss exponent times ten")
	noiseSigma := flag.Float64("noise-sigma", 2, "Std deviation of simulated RSSI noise in dBm")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	selfAddr, err := model.ParseAddress(*address)
	if err != nil {
		log.Error(ctx, "invalid radio address", logging.Err(err))
		os.Exit(1)
	}
	selfAccount := model.AccountID(*account)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	collector, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	pathLoss := core.PathLossModel{
		ReferenceRssi:   int16(*referenceRssi),
		ExponentTimes10: uint8(*pathLossExp),
	}

	led := ledger.New(ledger.Config{
		MaxDistanceMeters:    *maxDistance,
		UpdateCooldownEpochs: *cooldown,
	})
	led.Subscribe(func(ledger.Event) {
		collector.SetRegisteredNodes(len(led.Locations()))
	})

	if *dbPath != "" {
		db, err := store.Open(*dbPath)
		if err != nil {
			log.Error(ctx, "failed to open registry store", logging.Err(err))
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Restore(ctx, led); err != nil {
			log.Error(ctx, "failed to restore registry", logging.Err(err))
			os.Exit(1)
		}
		led.Subscribe(func(ev ledger.Event) {
			if err := db.Apply(ctx, ev); err != nil {
				log.Warn(ctx, "failed to persist registry change", logging.Err(err))
			}
		})
		log.Info(ctx, "registry restored", logging.String("db", *dbPath),
			logging.Int("nodes", len(led.Locations())))
	}

	neighbors := neighbor.NewSet(selfAccount, *lat, *lon, *maxDistance, log)
	led.Subscribe(neighbors.Apply)
	neighbors.Seed(led)

	env := radio.NewEnvironment(radio.EnvironmentConfig{
		MaxRangeMeters: *maxDistance,
		NoiseSigma:     *noiseSigma,
		PathLoss:       pathLoss,
	})
	engine := scanner.NewEngine(env.Join(selfAddr, *lat, *lon), neighbors, log, collector)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		if err := engine.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Error(ctx, "scanner exited", logging.Err(err))
		}
	}()

	announcement := exchange.Announcement{Address: selfAddr, Latitude: *lat, Longitude: *lon}
	exchangeSrv := &http.Server{
		Addr:    *exchangeAddr,
		Handler: exchange.NewServer(announcement, engine, log).Router(),
	}
	go func() {
		log.Info(ctx, "serving exchange data plane", logging.String("addr", *exchangeAddr))
		if err := exchangeSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "exchange server exited", logging.Err(err))
		}
	}()

	scorer := trust.NewScorer(led, pathLoss, model.DevDisplayNames())
	adminSrv := &http.Server{
		Addr:    *adminAddr,
		Handler: adminRouter(led, scorer, log),
	}
	go func() {
		log.Info(ctx, "serving admin API", logging.String("addr", *adminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "admin server exited", logging.Err(err))
		}
	}()

	clock := epoch.NewClock(*epochTick)
	clock.AddListener(func(e uint64) {
		led.AdvanceEpoch()
		scored := e - 1 // score the epoch that just closed
		for _, sc := range scorer.ScoreAll(scored) {
			if !sc.Defined {
				continue
			}
			collector.ObserveTrustScore(sc.MedianErrorDbm)
			log.Info(ctx, "trust score",
				logging.Uint64("epoch", scored),
				logging.String("node", sc.Name),
				logging.Int16("median_error_dbm", sc.MedianErrorDbm),
				logging.Int("samples", sc.Samples),
			)
		}
	})
	clockDone := clock.Start(runCtx)

	exchangeURL := "http://127.0.0.1" + *exchangeAddr
	led.SetEndpoint(selfAccount, exchangeURL)
	reporter := exchange.NewReporter(
		exchange.NewClient(exchangeURL, *account),
		selfAccount, led, *reportInterval, log, collector,
	)
	go reporter.Run(runCtx)

	log.Info(ctx, "node started",
		logging.String("account", *account),
		logging.String("address", selfAddr.String()),
		logging.Float64("lat", *lat),
		logging.Float64("lon", *lon),
	)

	<-runCtx.Done()
	log.Info(ctx, "shutting down node")
	<-clockDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = exchangeSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

func adminRouter(led *ledger.Ledger, scorer *trust.Scorer, log logging.Logger) chi.Router {
	r := chi.NewRouter()

	r.Get("/nodes", func(w http.ResponseWriter, req *http.Request) {
		type node struct {
			Account model.AccountID `json:"account"`
			Address string          `json:"address"`
			Lat     float64         `json:"lat"`
			Lon     float64         `json:"lon"`
			Updated uint64          `json:"updated_epoch"`
		}
		out := make([]node, 0)
		for account, loc := range led.Locations() {
			out = append(out, node{
				Account: account,
				Address: loc.Address.String(),
				Lat:     loc.LatDegrees(),
				Lon:     loc.LonDegrees(),
				Updated: loc.UpdatedEpoch,
			})
		}
		writeJSON(w, out, log)
	})

	r.Get("/trust-scores", func(w http.ResponseWriter, req *http.Request) {
		epochParam := led.CurrentEpoch()
		if epochParam > 0 {
			epochParam-- // last closed epoch has complete observations
		}
		if raw := req.URL.Query().Get("epoch"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				http.Error(w, "invalid epoch", http.StatusBadRequest)
				return
			}
			epochParam = parsed
		}
		type score struct {
			Account model.AccountID `json:"account"`
			Name    string          `json:"name"`
			Error   *int16          `json:"median_error_dbm,omitempty"`
			Samples int             `json:"samples"`
		}
		out := make([]score, 0)
		for _, sc := range scorer.ScoreAll(epochParam) {
			entry := score{Account: sc.Account, Name: sc.Name, Samples: sc.Samples}
			if sc.Defined {
				v := sc.MedianErrorDbm
				entry.Error = &v
			}
			out = append(out, entry)
		}
		writeJSON(w, out, log)
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any, log logging.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn(context.Background(), "failed to write admin response", logging.Err(err))
	}
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
