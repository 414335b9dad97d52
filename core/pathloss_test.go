package core

import "testing"

func TestEstimateAtDistance_ReferenceValues(t *testing.T) {
	m := PathLossModel{ReferenceRssi: -60, ExponentTimes10: 30}

	// At 1 m the estimate equals the reference value.
	if got := m.EstimateAtDistance(1); got != -60 {
		t.Errorf("estimate at 1 m = %d, want -60", got)
	}

	// Each decade of distance costs exponent*10 dB: 10 m -> -90.
	if got := m.EstimateAtDistance(10); got != -90 {
		t.Errorf("estimate at 10 m = %d, want -90", got)
	}
	if got := m.EstimateAtDistance(100); got != -120 {
		t.Errorf("estimate at 100 m = %d, want -120", got)
	}
}

func TestEstimateAtDistance_ZeroDistance(t *testing.T) {
	m := DefaultPathLossModel()
	if got := m.EstimateAtDistance(0); got != 0 {
		t.Errorf("estimate at 0 m = %d, want 0", got)
	}
}

func TestEstimateAtDistance_MonotonicNonIncreasing(t *testing.T) {
	m := DefaultPathLossModel()
	prev := m.EstimateAtDistance(0.5)
	for _, d := range []float64{1, 2, 5, 10, 50, 100, 1000, 10000} {
		got := m.EstimateAtDistance(d)
		if got > prev {
			t.Fatalf("estimate at %v m = %d, greater than %d at shorter distance", d, got, prev)
		}
		prev = got
	}
}

func TestEstimateRSSI_TruncatesTowardZero(t *testing.T) {
	m := PathLossModel{ReferenceRssi: -60, ExponentTimes10: 30}

	// 2 m: -60 - 30*log10(2) = -69.03...; truncation keeps -69.
	if got := m.EstimateAtDistance(2); got != -69 {
		t.Errorf("estimate at 2 m = %d, want -69", got)
	}
}

func TestEstimateRSSI_FromCoordinates(t *testing.T) {
	m := DefaultPathLossModel()

	// ~10 m apart along the equator -> roughly -90 dBm.
	got := m.EstimateRSSI(0, 0, 10.0/111195.0, 0)
	if got < -91 || got > -89 {
		t.Errorf("estimate over ~10 m = %d, want close to -90", got)
	}

	// Same node: degenerate, returns 0.
	if got := m.EstimateRSSI(12.5, 7.25, 12.5, 7.25); got != 0 {
		t.Errorf("estimate for identical coordinates = %d, want 0", got)
	}
}
