package core

import "slices"

// WindowCapacity is the number of recent RSSI samples kept per peer.
const WindowCapacity = 5

// RSSIWindow is a bounded FIFO of the most recent raw RSSI samples for one
// peer. Eviction is strictly by age, never by magnitude: recency matters
// more than extremes. The zero value is ready to use.
//
// RSSIWindow is not safe for concurrent use; the scanning engine guards
// each window with the lock of its peer map.
type RSSIWindow struct {
	samples []int16
}

// Push appends a sample, evicting the oldest one first when the window is
// at capacity.
func (w *RSSIWindow) Push(v int16) {
	if len(w.samples) >= WindowCapacity {
		w.samples = w.samples[1:]
	}
	w.samples = append(w.samples, v)
}

// Len returns the number of samples currently held.
func (w *RSSIWindow) Len() int {
	return len(w.samples)
}

// Median returns the median of the held samples over a sorted copy, using
// the integer mean of the two central elements for even counts. The second
// return value is false when the window is empty.
func (w *RSSIWindow) Median() (int16, bool) {
	n := len(w.samples)
	if n == 0 {
		return 0, false
	}
	sorted := slices.Clone(w.samples)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	// Widen before summing so extreme central pairs cannot overflow.
	return int16((int(sorted[n/2-1]) + int(sorted[n/2])) / 2), true
}
