package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLen is the length of a radio hardware address in bytes.
const AddressLen = 6

// Address is a 6-byte radio hardware address (Bluetooth MAC style).
type Address [AddressLen]byte

// ParseAddress parses "aa:bb:cc:dd:ee:ff" (case-insensitive) into an Address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	parts := strings.Split(s, ":")
	if len(parts) != AddressLen {
		return addr, fmt.Errorf("invalid radio address %q: want 6 colon-separated octets", s)
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return addr, fmt.Errorf("invalid radio address %q: bad octet %q", s, p)
		}
		addr[i] = b[0]
	}
	return addr, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether the address is all zeroes (unset).
func (a Address) IsZero() bool {
	return a == Address{}
}

// AccountID identifies a node's owning account on the ledger.
type AccountID string

// MicroDegreeScale converts between degrees and the fixed-point coordinate
// representation used on the ledger boundary.
const MicroDegreeScale = 1_000_000

// NodeLocation binds an account's radio address to its claimed coordinates.
// Coordinates are stored fixed-point: degrees multiplied by MicroDegreeScale.
type NodeLocation struct {
	Address        Address
	LatitudeMicro  int64
	LongitudeMicro int64

	// UpdatedEpoch records the epoch at which this entry was last written.
	// Maintained by the ledger; used to enforce the update cooldown.
	UpdatedEpoch uint64
}

// LatDegrees returns the latitude in floating-point degrees.
func (l NodeLocation) LatDegrees() float64 {
	return float64(l.LatitudeMicro) / MicroDegreeScale
}

// LonDegrees returns the longitude in floating-point degrees.
func (l NodeLocation) LonDegrees() float64 {
	return float64(l.LongitudeMicro) / MicroDegreeScale
}

// FixedFromDegrees converts floating-point degrees to the fixed-point ledger
// representation. The conversion truncates toward zero.
func FixedFromDegrees(deg float64) int64 {
	return int64(deg * MicroDegreeScale)
}

// RssiObservation is one signal-strength report: what Observer measured from
// Observed during Epoch. One logical slot exists per (Epoch, Observed,
// Observer); a later write overwrites the earlier one.
type RssiObservation struct {
	Epoch    uint64
	Observer AccountID
	Observed AccountID
	Rssi     int16
}

// DeviceRSSI pairs a discovered radio address with a median signal strength.
// It is the unit of the scanning engine's snapshot and of the RSSI wire
// payload.
type DeviceRSSI struct {
	Address Address
	Rssi    int16
}
