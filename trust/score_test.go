package trust

import (
	"fmt"
	"testing"

	"github.com/signalsfoundry/locproof/core"
	"github.com/signalsfoundry/locproof/ledger"
	"github.com/signalsfoundry/locproof/model"
)

func addr(last byte) model.Address {
	return model.Address{0x02, 0x00, 0x00, 0x00, 0x00, last}
}

// locNorth places a node the given number of meters north of the origin.
func locNorth(last byte, meters float64) model.NodeLocation {
	return model.NodeLocation{
		Address:       addr(last),
		LatitudeMicro: int64(meters / 111195.0 * model.MicroDegreeScale),
	}
}

func mustRegister(t *testing.T, led *ledger.Ledger, account model.AccountID, loc model.NodeLocation) {
	t.Helper()
	if err := led.Register(account, loc); err != nil {
		t.Fatalf("Register(%s): %v", account, err)
	}
}

func mustPublish(t *testing.T, led *ledger.Ledger, reporter, subject model.AccountID, rssi int16) {
	t.Helper()
	if err := led.PublishRSSI(reporter, subject, rssi); err != nil {
		t.Fatalf("PublishRSSI(%s -> %s): %v", reporter, subject, err)
	}
}

func TestScoreHonestNode(t *testing.T) {
	led := ledger.New(ledger.Config{MaxDistanceMeters: 1000})
	pathLoss := core.DefaultPathLossModel()

	subject := locNorth(0, 0)
	mustRegister(t, led, "subject", subject)

	// Five reporters at distinct distances, each reporting exactly what
	// the model predicts for the true geometry.
	for i, meters := range []float64{10, 20, 40, 80, 160} {
		account := model.AccountID(fmt.Sprintf("reporter-%d", i))
		loc := locNorth(byte(i+1), meters)
		mustRegister(t, led, account, loc)

		predicted := pathLoss.EstimateRSSI(
			loc.LatDegrees(), loc.LonDegrees(),
			subject.LatDegrees(), subject.LonDegrees(),
		)
		mustPublish(t, led, account, "subject", predicted)
	}

	s := NewScorer(led, pathLoss, nil)
	score, ok := s.ScoreAccount(led.CurrentEpoch(), "subject")
	if !ok {
		t.Fatalf("score undefined with 5 observations")
	}
	if score != 0 {
		t.Errorf("honest node score = %d, want 0", score)
	}
}

func TestScoreLyingNode(t *testing.T) {
	led := ledger.New(ledger.Config{MaxDistanceMeters: 10000})
	pathLoss := core.DefaultPathLossModel()

	// The subject claims the origin but actually sits ~1 km north, so each
	// reporter measures the RSSI of the true geometry while the scorer
	// predicts from the claim.
	claimed := locNorth(0, 0)
	trueLoc := locNorth(0, 1000)
	mustRegister(t, led, "subject", claimed)

	for i, meters := range []float64{10, 20, 40, 80, 160} {
		account := model.AccountID(fmt.Sprintf("reporter-%d", i))
		loc := locNorth(byte(i+1), meters)
		mustRegister(t, led, account, loc)

		measured := pathLoss.EstimateRSSI(
			loc.LatDegrees(), loc.LonDegrees(),
			trueLoc.LatDegrees(), trueLoc.LonDegrees(),
		)
		mustPublish(t, led, account, "subject", measured)
	}

	s := NewScorer(led, pathLoss, nil)
	score, ok := s.ScoreAccount(led.CurrentEpoch(), "subject")
	if !ok {
		t.Fatalf("score undefined with 5 observations")
	}
	// Every reporter is 840+ meters further from the subject than the
	// claim implies; the deviation must be well clear of honest noise.
	if score < 10 {
		t.Errorf("lying node score = %d, want a large deviation", score)
	}
}

func TestScoreTrimsOneOutlierReporter(t *testing.T) {
	led := ledger.New(ledger.Config{MaxDistanceMeters: 1000})
	pathLoss := core.DefaultPathLossModel()

	subject := locNorth(0, 0)
	mustRegister(t, led, "subject", subject)

	for i, meters := range []float64{10, 20, 40, 80, 160} {
		account := model.AccountID(fmt.Sprintf("reporter-%d", i))
		loc := locNorth(byte(i+1), meters)
		mustRegister(t, led, account, loc)

		measured := pathLoss.EstimateRSSI(
			loc.LatDegrees(), loc.LonDegrees(),
			subject.LatDegrees(), subject.LonDegrees(),
		)
		if i == 2 {
			// One broken or hostile reporter, 50 dB off.
			measured -= 50
		}
		mustPublish(t, led, account, "subject", measured)
	}

	s := NewScorer(led, pathLoss, nil)
	score, ok := s.ScoreAccount(led.CurrentEpoch(), "subject")
	if !ok {
		t.Fatalf("score undefined with 5 observations")
	}
	if score != 0 {
		t.Errorf("score with one outlier reporter = %d, want 0 (outlier trimmed)", score)
	}
}

func TestScoreUndefinedWithFewSamples(t *testing.T) {
	led := ledger.New(ledger.Config{MaxDistanceMeters: 1000})
	mustRegister(t, led, "subject", locNorth(0, 0))
	mustRegister(t, led, "reporter", locNorth(1, 10))
	mustPublish(t, led, "reporter", "subject", -70)

	s := NewScorer(led, core.DefaultPathLossModel(), nil)
	if _, ok := s.ScoreAccount(led.CurrentEpoch(), "subject"); ok {
		t.Errorf("score defined with 1 observation, want undefined below %d", core.MinTrustSamples)
	}
	if _, ok := s.ScoreAccount(led.CurrentEpoch(), "nobody"); ok {
		t.Errorf("score defined for unregistered account")
	}
}

func TestScoreAllSortsByName(t *testing.T) {
	led := ledger.New(ledger.Config{MaxDistanceMeters: 1000})
	mustRegister(t, led, "bob", locNorth(2, 10))
	mustRegister(t, led, "alice", locNorth(1, 0))
	mustRegister(t, led, "zed", locNorth(3, 20))

	s := NewScorer(led, core.DefaultPathLossModel(), model.DevDisplayNames())
	scores := s.ScoreAll(led.CurrentEpoch())

	if len(scores) != 3 {
		t.Fatalf("ScoreAll returned %d entries, want 3", len(scores))
	}
	// Alice, Bob, then zed's fallback name.
	want := []string{"Alice", "Bob", "Unknown"}
	for i, sc := range scores {
		if sc.Name != want[i] {
			t.Errorf("scores[%d].Name = %q, want %q", i, sc.Name, want[i])
		}
		if sc.Defined {
			t.Errorf("scores[%d] defined with no observations", i)
		}
	}
}
