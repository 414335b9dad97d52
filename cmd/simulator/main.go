package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/locproof/core"
	"github.com/signalsfoundry/locproof/epoch"
	"github.com/signalsfoundry/locproof/internal/logging"
	"github.com/signalsfoundry/locproof/internal/radio"
	"github.com/signalsfoundry/locproof/ledger"
	"github.com/signalsfoundry/locproof/model"
	"github.com/signalsfoundry/locproof/neighbor"
	"github.com/signalsfoundry/locproof/scanner"
	"github.com/signalsfoundry/locproof/trust"
)

// metersPerDegreeLat on the reference sphere.
const metersPerDegreeLat = 111195.0

type simNode struct {
	account   model.AccountID
	address   model.Address
	claimLat  float64
	trueLat   float64
	engine    *scanner.Engine
	neighbors *neighbor.Set
}

func main() {
	epochs := flag.Int("epochs", 10, "number of epochs to simulate")
	spacing := flag.Float64("spacing", 20, "claimed distance between adjacent nodes in meters")
	maxDistance := flag.Float64("max-distance", 150, "neighbor distance limit in meters")
	noiseSigma := flag.Float64("noise-sigma", 2, "std deviation of RSSI noise in dBm")
	liar := flag.String("liar", "eve", "account whose true position differs from its claim")
	liarOffset := flag.Float64("liar-offset", 60, "how far north of its claim the liar actually sits, in meters")
	settle := flag.Duration("settle", 2*time.Second, "time per epoch for scanners to gather samples")
	flag.Parse()

	log := logging.NewFromEnv()
	pathLoss := core.DefaultPathLossModel()
	names := model.DevDisplayNames()

	led := ledger.New(ledger.Config{MaxDistanceMeters: *maxDistance})
	env := radio.NewEnvironment(radio.EnvironmentConfig{
		MaxRangeMeters: *maxDistance,
		NoiseSigma:     *noiseSigma,
		PathLoss:       pathLoss,
		ScanInterval:   50 * time.Millisecond,
	})

	// Six nodes in a north-south line, one claimed spacing apart. The liar
	// registers the same claim as everyone expects but its radio actually
	// sits liar-offset further north.
	accounts := []model.AccountID{"alice", "bob", "charlie", "dave", "eve", "ferdie"}
	nodes := make([]*simNode, 0, len(accounts))
	for i, account := range accounts {
		claim := float64(i) * *spacing / metersPerDegreeLat
		trueLat := claim
		if string(account) == *liar {
			trueLat += *liarOffset / metersPerDegreeLat
		}
		n := &simNode{
			account:  account,
			address:  model.Address{0x02, 0, 0, 0, 0, byte(i + 1)},
			claimLat: claim,
			trueLat:  trueLat,
		}
		loc := model.NodeLocation{Address: n.address, LatitudeMicro: model.FixedFromDegrees(claim)}
		if err := led.Register(account, loc); err != nil {
			fmt.Fprintf(os.Stderr, "register %s: %v\n", account, err)
			os.Exit(1)
		}
		nodes = append(nodes, n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, n := range nodes {
		n.neighbors = neighbor.NewSet(n.account, n.claimLat, 0, *maxDistance, logging.Noop())
		led.Subscribe(n.neighbors.Apply)
		n.neighbors.Seed(led)

		n.engine = scanner.NewEngine(env.Join(n.address, n.trueLat, 0), n.neighbors, log, nil)
		go n.engine.Run(ctx)
	}

	clock := epoch.NewClock(time.Hour) // stepped manually
	clock.AddListener(func(uint64) { led.AdvanceEpoch() })

	scorer := trust.NewScorer(led, pathLoss, names)
	history := make(map[model.AccountID][]float64)

	fmt.Printf("Simulating %d nodes for %d epochs (liar=%s, offset=%.0fm, noise=%.1fdBm)\n",
		len(nodes), *epochs, *liar, *liarOffset, *noiseSigma)

	for e := 0; e < *epochs; e++ {
		time.Sleep(*settle)

		// Each node reports its current snapshot, as its reporter loop
		// would over the exchange.
		current := led.CurrentEpoch()
		for _, n := range nodes {
			for _, obs := range n.engine.Snapshot() {
				subject, ok := led.AccountByAddress(obs.Address)
				if !ok {
					continue
				}
				if err := led.PublishRSSI(n.account, subject, obs.Rssi); err != nil {
					fmt.Fprintf(os.Stderr, "publish %s -> %s: %v\n", n.account, subject, err)
				}
			}
		}

		fmt.Printf("[epoch %d]\n", current)
		for _, sc := range scorer.ScoreAll(current) {
			if sc.Defined {
				fmt.Printf("  %-8s median error %4d dB (%d samples)\n", sc.Name, sc.MedianErrorDbm, sc.Samples)
				history[sc.Account] = append(history[sc.Account], float64(sc.MedianErrorDbm))
			} else {
				fmt.Printf("  %-8s score undefined (%d samples)\n", sc.Name, sc.Samples)
			}
		}

		clock.Advance()
	}

	fmt.Println("\nSummary over all epochs:")
	for _, n := range nodes {
		scores := history[n.account]
		if len(scores) == 0 {
			fmt.Printf("  %-8s no defined scores\n", names.Name(n.account))
			continue
		}
		fmt.Printf("  %-8s mean %6.1f dB, stddev %5.1f dB over %d epochs\n",
			names.Name(n.account), stat.Mean(scores, nil), stat.StdDev(scores, nil), len(scores))
	}
}
