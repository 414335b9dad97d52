// Package trust turns stored RSSI observations into per-node location trust
// scores. A node's score for an epoch is the trimmed median of the absolute
// differences between what its neighbors measured and what the path-loss
// model predicts from the claimed geometry; small scores mean the claimed
// location is consistent with what the radios heard.
package trust

import (
	"math"
	"sort"

	"github.com/signalsfoundry/locproof/core"
	"github.com/signalsfoundry/locproof/ledger"
	"github.com/signalsfoundry/locproof/model"
)

// Score is one account's trust result for an epoch.
type Score struct {
	Account model.AccountID
	Name    string

	// MedianErrorDbm is the trimmed median deviation between measured and
	// predicted RSSI, in dB. Valid only when Defined is true.
	MedianErrorDbm int16

	// Defined is false when fewer than core.MinTrustSamples usable
	// observations existed for the epoch.
	Defined bool

	// Samples is the number of usable observations that went in.
	Samples int
}

// Scorer computes trust scores from the ledger's stored observations.
type Scorer struct {
	led   *ledger.Ledger
	model core.PathLossModel
	names model.DisplayNames
}

// NewScorer constructs a scorer. names may be nil, in which case accounts
// are labeled Unknown.
func NewScorer(led *ledger.Ledger, pathLoss core.PathLossModel, names model.DisplayNames) *Scorer {
	return &Scorer{led: led, model: pathLoss, names: names}
}

// ScoreAccount computes one account's score for an epoch. The second return
// value is false when the account is unregistered or has too few usable
// observations.
func (s *Scorer) ScoreAccount(epoch uint64, account model.AccountID) (int16, bool) {
	subject, ok := s.led.Get(account)
	if !ok {
		return 0, false
	}

	observations := s.led.RSSIForSubject(epoch, account)
	deviations := make([]int16, 0, len(observations))
	for reporter, measured := range observations {
		if reporter == account {
			continue
		}
		reporterLoc, ok := s.led.Get(reporter)
		if !ok {
			continue
		}

		predicted := s.model.EstimateRSSI(
			reporterLoc.LatDegrees(), reporterLoc.LonDegrees(),
			subject.LatDegrees(), subject.LonDegrees(),
		)
		deviations = append(deviations, clampedDiff(measured, predicted))
	}

	return core.TrimmedMedianError(deviations)
}

// ScoreAll scores every registered account for an epoch, sorted by display
// name for stable output.
func (s *Scorer) ScoreAll(epoch uint64) []Score {
	locations := s.led.Locations()
	out := make([]Score, 0, len(locations))
	for account := range locations {
		sc := Score{
			Account: account,
			Name:    s.names.Name(account),
			Samples: len(s.led.RSSIForSubject(epoch, account)),
		}
		sc.MedianErrorDbm, sc.Defined = s.ScoreAccount(epoch, account)
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Account < out[j].Account
	})
	return out
}

// clampedDiff computes measured-predicted in full integer range and clamps
// the result into int16.
func clampedDiff(measured, predicted int16) int16 {
	d := int(measured) - int(predicted)
	if d > math.MaxInt16 {
		return math.MaxInt16
	}
	if d < math.MinInt16 {
		return math.MinInt16
	}
	return int16(d)
}
