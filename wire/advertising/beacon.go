package advertising

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// BaseUUID is the Bluetooth Base UUID (0000xxxx-0000-1000-8000-00805F9B34FB).
var BaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// Short16 reports whether u lies on the Bluetooth base and returns its 16-bit alias.
func Short16(u uuid.UUID) (uint16, bool) {
	if !bytes.Equal(u[4:], BaseUUID[4:]) || u[0] != 0 || u[1] != 0 {
		return 0, false
	}
	return binary.BigEndian.Uint16(u[2:4]), true
}

// FromShort16 expands a 16-bit alias onto the Bluetooth base UUID.
func FromShort16(v uint16) uuid.UUID {
	u := BaseUUID
	binary.BigEndian.PutUint16(u[2:4], v)
	return u
}

// ServiceUUIDsAD returns the AD structures carrying the given service UUIDs,
// 16-bit aliases first, then full 128-bit UUIDs.
func ServiceUUIDsAD(uuids []uuid.UUID) []ADStructure {
	var short []uint16
	var long [][16]byte
	for _, u := range uuids {
		if s, ok := Short16(u); ok {
			short = append(short, s)
			continue
		}
		long = append(long, u)
	}

	var out []ADStructure
	if len(short) > 0 {
		out = append(out, NewComplete16BitServiceUUIDsAD(short))
	}
	if len(long) > 0 {
		out = append(out, NewComplete128BitServiceUUIDsAD(long))
	}
	return out
}

// Beacon is the decoded view of a proximity beacon advertisement as a scanner sees it.
type Beacon struct {
	Flags          byte
	HasFlags       bool
	ManufacturerID uint16
	Manufacturer   []byte
	TxPower        int8
	HasTxPower     bool
	ServiceUUIDs   []uuid.UUID
}

// ErrNotBeacon is returned when advertising data carries no manufacturer section or service UUID.
var ErrNotBeacon = errors.New("advertising data is not a proximity beacon")

// ParseBeacon decodes raw advertising data.
func ParseBeacon(data []byte) (*Beacon, error) {
	structures, err := DecodeADStructures(data)
	if err != nil {
		return nil, err
	}

	b := &Beacon{}
	b.Flags, b.HasFlags = GetFlags(structures)
	b.TxPower, b.HasTxPower = GetTxPowerLevel(structures)

	var found bool
	b.ManufacturerID, b.Manufacturer, found = GetManufacturerData(structures)
	if !found {
		return nil, ErrNotBeacon
	}

	for _, s := range Get16BitServiceUUIDs(structures) {
		b.ServiceUUIDs = append(b.ServiceUUIDs, FromShort16(s))
	}
	for _, l := range Get128BitServiceUUIDs(structures) {
		b.ServiceUUIDs = append(b.ServiceUUIDs, uuid.UUID(l))
	}
	if len(b.ServiceUUIDs) == 0 {
		return nil, ErrNotBeacon
	}
	return b, nil
}
