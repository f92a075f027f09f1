package advertising

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PDU Types for BLE advertising packets (Link Layer)
const (
	PDUTypeAdvInd        = 0x00 // Connectable undirected advertising
	PDUTypeAdvNonconnInd = 0x02 // Non-connectable undirected advertising
	PDUTypeScanRsp       = 0x04 // Scan response
)

// AD Types (Advertising Data Types) - EIR/AD format
const (
	ADTypeFlags                        = 0x01
	ADTypeIncomplete16BitServiceUUIDs  = 0x02
	ADTypeComplete16BitServiceUUIDs    = 0x03
	ADTypeIncomplete128BitServiceUUIDs = 0x06
	ADTypeComplete128BitServiceUUIDs   = 0x07
	ADTypeCompleteLocalName            = 0x09
	ADTypeTxPowerLevel                 = 0x0A
	ADTypeManufacturerSpecificData     = 0xFF
)

// Advertising Flags (used in ADTypeFlags)
const (
	FlagLEGeneralDiscoverableMode = 0x02
	FlagBREDRNotSupported         = 0x04
)

const (
	MaxAdvertisingDataLen = 31 // BLE 4.x legacy advertising data limit
	BLEAddressLen         = 6
)

// ErrDataTooLarge is returned when encoded advertising data exceeds the legacy limit.
var ErrDataTooLarge = errors.New("advertising data too large")

// AdvertisingPDU is a BLE advertising packet at the Link Layer.
// Format: [PDU Type: 1 byte] [Length: 1 byte] [AdvA: 6 bytes] [AdvData: 0-31 bytes]
type AdvertisingPDU struct {
	PDUType byte
	AdvA    [6]byte
	AdvData []byte
}

// ADStructure is a single length-type-value entry in advertising data.
// Length on the wire includes the Type byte but not itself.
type ADStructure struct {
	Type byte
	Data []byte
}

// Encode serializes the advertising PDU to binary format
func (pdu *AdvertisingPDU) Encode() ([]byte, error) {
	if len(pdu.AdvData) > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, len(pdu.AdvData))
	}

	buf := make([]byte, 2+BLEAddressLen+len(pdu.AdvData))
	buf[0] = pdu.PDUType
	buf[1] = byte(BLEAddressLen + len(pdu.AdvData))
	copy(buf[2:8], pdu.AdvA[:])
	copy(buf[8:], pdu.AdvData)
	return buf, nil
}

// DecodeAdvertisingPDU parses a binary advertising PDU
func DecodeAdvertisingPDU(data []byte) (*AdvertisingPDU, error) {
	if len(data) < 2+BLEAddressLen {
		return nil, errors.New("advertising PDU too short (minimum 8 bytes)")
	}

	payloadLen := int(data[1])
	if payloadLen < BLEAddressLen {
		return nil, errors.New("invalid payload length (must be at least 6 for address)")
	}
	if len(data) < 2+payloadLen {
		return nil, fmt.Errorf("advertising PDU truncated: expected %d bytes, got %d", 2+payloadLen, len(data))
	}

	pdu := &AdvertisingPDU{PDUType: data[0]}
	copy(pdu.AdvA[:], data[2:8])
	if advDataLen := payloadLen - BLEAddressLen; advDataLen > 0 {
		if advDataLen > MaxAdvertisingDataLen {
			return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, advDataLen)
		}
		pdu.AdvData = append([]byte(nil), data[8:8+advDataLen]...)
	}
	return pdu, nil
}

// EncodeADStructures encodes AD structures into one advertising data payload
func EncodeADStructures(structures []ADStructure) ([]byte, error) {
	var buf []byte
	for _, s := range structures {
		length := 1 + len(s.Data)
		if length > 255 {
			return nil, fmt.Errorf("AD structure too long: %d bytes (max 255)", length)
		}
		buf = append(buf, byte(length), s.Type)
		buf = append(buf, s.Data...)
	}

	if len(buf) > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrDataTooLarge, len(buf), MaxAdvertisingDataLen)
	}
	return buf, nil
}

// DecodeADStructures parses advertising data into individual AD structures
func DecodeADStructures(data []byte) ([]ADStructure, error) {
	var structures []ADStructure
	offset := 0

	for offset < len(data) {
		length := int(data[offset])
		if length == 0 {
			// Zero padding ends the significant part.
			break
		}
		offset++
		if offset+length > len(data) {
			return nil, fmt.Errorf("AD structure length exceeds data: length=%d, remaining=%d", length, len(data)-offset)
		}

		structures = append(structures, ADStructure{
			Type: data[offset],
			Data: append([]byte(nil), data[offset+1:offset+length]...),
		})
		offset += length
	}

	return structures, nil
}

// NewFlagsAD creates a flags AD structure
func NewFlagsAD(flags byte) ADStructure {
	return ADStructure{Type: ADTypeFlags, Data: []byte{flags}}
}

// NewCompleteLocalNameAD creates a complete local name AD structure
func NewCompleteLocalNameAD(name string) ADStructure {
	return ADStructure{Type: ADTypeCompleteLocalName, Data: []byte(name)}
}

// NewComplete16BitServiceUUIDsAD creates a complete 16-bit service UUIDs AD structure
func NewComplete16BitServiceUUIDsAD(uuids []uint16) ADStructure {
	data := make([]byte, len(uuids)*2)
	for i, u := range uuids {
		binary.LittleEndian.PutUint16(data[i*2:], u)
	}
	return ADStructure{Type: ADTypeComplete16BitServiceUUIDs, Data: data}
}

// NewComplete128BitServiceUUIDsAD creates a complete 128-bit service UUIDs AD structure.
// UUIDs are given in canonical (big-endian) order and written little-endian.
func NewComplete128BitServiceUUIDsAD(uuids [][16]byte) ADStructure {
	data := make([]byte, 0, len(uuids)*16)
	for _, u := range uuids {
		data = append(data, reverse(u[:])...)
	}
	return ADStructure{Type: ADTypeComplete128BitServiceUUIDs, Data: data}
}

// NewTxPowerLevelAD creates a Tx power level AD structure
func NewTxPowerLevelAD(dbm int8) ADStructure {
	return ADStructure{Type: ADTypeTxPowerLevel, Data: []byte{byte(dbm)}}
}

// NewManufacturerSpecificDataAD creates a manufacturer-specific data AD structure
func NewManufacturerSpecificDataAD(companyID uint16, data []byte) ADStructure {
	payload := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], companyID)
	copy(payload[2:], data)
	return ADStructure{Type: ADTypeManufacturerSpecificData, Data: payload}
}

// GetFlags extracts the flags from AD structures
func GetFlags(structures []ADStructure) (byte, bool) {
	for _, s := range structures {
		if s.Type == ADTypeFlags && len(s.Data) > 0 {
			return s.Data[0], true
		}
	}
	return 0, false
}

// GetTxPowerLevel extracts the advertised tx power in dBm
func GetTxPowerLevel(structures []ADStructure) (int8, bool) {
	for _, s := range structures {
		if s.Type == ADTypeTxPowerLevel && len(s.Data) == 1 {
			return int8(s.Data[0]), true
		}
	}
	return 0, false
}

// Get16BitServiceUUIDs extracts all 16-bit service UUIDs from AD structures
func Get16BitServiceUUIDs(structures []ADStructure) []uint16 {
	var uuids []uint16
	for _, s := range structures {
		if (s.Type == ADTypeComplete16BitServiceUUIDs || s.Type == ADTypeIncomplete16BitServiceUUIDs) && len(s.Data)%2 == 0 {
			for i := 0; i < len(s.Data); i += 2 {
				uuids = append(uuids, binary.LittleEndian.Uint16(s.Data[i:i+2]))
			}
		}
	}
	return uuids
}

// Get128BitServiceUUIDs extracts all 128-bit service UUIDs in canonical order
func Get128BitServiceUUIDs(structures []ADStructure) [][16]byte {
	var uuids [][16]byte
	for _, s := range structures {
		if (s.Type == ADTypeComplete128BitServiceUUIDs || s.Type == ADTypeIncomplete128BitServiceUUIDs) && len(s.Data)%16 == 0 {
			for i := 0; i < len(s.Data); i += 16 {
				var u [16]byte
				copy(u[:], reverse(s.Data[i:i+16]))
				uuids = append(uuids, u)
			}
		}
	}
	return uuids
}

// GetManufacturerData extracts manufacturer-specific data from AD structures
func GetManufacturerData(structures []ADStructure) (companyID uint16, data []byte, found bool) {
	for _, s := range structures {
		if s.Type == ADTypeManufacturerSpecificData && len(s.Data) >= 2 {
			return binary.LittleEndian.Uint16(s.Data[0:2]), s.Data[2:], true
		}
	}
	return 0, nil, false
}

// ParseAddress converts "AA:BB:CC:DD:EE:FF" into the over-the-air (little-endian) AdvA field.
func ParseAddress(addr string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(addr, ":")
	if len(parts) != BLEAddressLen {
		return out, fmt.Errorf("invalid bluetooth address %q", addr)
	}
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, fmt.Errorf("invalid bluetooth address %q: %w", addr, err)
		}
		out[BLEAddressLen-1-i] = byte(b)
	}
	return out, nil
}

// PDUTypeName returns a human-readable name for a PDU type
func PDUTypeName(pduType byte) string {
	switch pduType {
	case PDUTypeAdvInd:
		return "ADV_IND"
	case PDUTypeAdvNonconnInd:
		return "ADV_NONCONN_IND"
	case PDUTypeScanRsp:
		return "SCAN_RSP"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", pduType)
	}
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
