// Package exchange implements the node-to-node data plane: a small HTTP
// surface over which each node publishes its claimed location and its
// current RSSI snapshot, plus the client and the reporting loop that feed
// those payloads into the ledger.
//
// Payloads use a fixed little-endian binary layout rather than a
// self-describing format; both ends are versioned together and the messages
// are tiny.
package exchange

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/signalsfoundry/locproof/model"
)

// Announcement is a node's claimed position as sent over the wire.
type Announcement struct {
	Address   model.Address
	Latitude  float64
	Longitude float64
}

const (
	// announcementSize is address + two float64 coordinates.
	announcementSize = model.AddressLen + 8 + 8

	// rssiEntrySize is address + one int16 sample.
	rssiEntrySize = model.AddressLen + 2

	// rssiHeaderSize is the uint32 entry count.
	rssiHeaderSize = 4
)

// EncodeAnnouncement serializes a location announcement.
func EncodeAnnouncement(a Announcement) []byte {
	buf := make([]byte, 0, announcementSize)
	buf = append(buf, a.Address[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(a.Latitude))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(a.Longitude))
	return buf
}

// DecodeAnnouncement parses a location announcement. The payload length must
// match exactly.
func DecodeAnnouncement(data []byte) (Announcement, error) {
	var a Announcement
	if len(data) != announcementSize {
		return a, fmt.Errorf("exchange: announcement is %d bytes, want %d", len(data), announcementSize)
	}
	copy(a.Address[:], data[:model.AddressLen])
	a.Latitude = math.Float64frombits(binary.LittleEndian.Uint64(data[model.AddressLen:]))
	a.Longitude = math.Float64frombits(binary.LittleEndian.Uint64(data[model.AddressLen+8:]))
	return a, nil
}

// EncodeRSSIReport serializes a snapshot of per-peer median RSSI values.
func EncodeRSSIReport(entries []model.DeviceRSSI) []byte {
	buf := make([]byte, 0, rssiHeaderSize+len(entries)*rssiEntrySize)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = append(buf, e.Address[:]...)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(e.Rssi))
	}
	return buf
}

// DecodeRSSIReport parses an RSSI report, validating the declared count
// against the payload length.
func DecodeRSSIReport(data []byte) ([]model.DeviceRSSI, error) {
	if len(data) < rssiHeaderSize {
		return nil, fmt.Errorf("exchange: rssi report is %d bytes, want at least %d", len(data), rssiHeaderSize)
	}
	count := binary.LittleEndian.Uint32(data)
	body := data[rssiHeaderSize:]
	if len(body) != int(count)*rssiEntrySize {
		return nil, fmt.Errorf("exchange: rssi report declares %d entries but carries %d payload bytes", count, len(body))
	}

	entries := make([]model.DeviceRSSI, 0, count)
	for i := 0; i < int(count); i++ {
		off := i * rssiEntrySize
		var e model.DeviceRSSI
		copy(e.Address[:], body[off:off+model.AddressLen])
		e.Rssi = int16(binary.LittleEndian.Uint16(body[off+model.AddressLen:]))
		entries = append(entries, e)
	}
	return entries, nil
}
