package core

import (
	"math"
	"slices"
)

// MinTrustSamples is the smallest number of error samples from which a
// trust score is defined.
const MinTrustSamples = 4

// TrimmedMedianError collapses per-reporter RSSI error samples
// (measured - estimated) into one robust trust score.
//
// Only the magnitude of disagreement matters, so each sample is taken by
// absolute value. The samples are sorted ascending and the top quartile is
// discarded (floor(n*3/4) kept), dropping the reporters that disagree the
// most. The score is the median of the kept prefix, with the even case
// using the integer mean of the two central elements.
//
// With fewer than MinTrustSamples samples the score is undefined and the
// second return value is false. The input slice is not modified.
func TrimmedMedianError(samples []int16) (int16, bool) {
	if len(samples) < MinTrustSamples {
		return 0, false
	}

	abs := make([]int16, len(samples))
	for i, v := range samples {
		if v < 0 {
			if v == math.MinInt16 {
				// -MinInt16 overflows; clamp.
				v = math.MaxInt16
			} else {
				v = -v
			}
		}
		abs[i] = v
	}
	slices.Sort(abs)

	trimEnd := len(abs) * 3 / 4
	kept := abs[:trimEnd]

	if trimEnd%2 == 1 {
		return kept[trimEnd/2], true
	}
	// Widen before summing; the central pair can sit near MaxInt16.
	return int16((int(kept[trimEnd/2-1]) + int(kept[trimEnd/2])) / 2), true
}
