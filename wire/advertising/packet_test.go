package advertising

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestAdvertisingPDUEncodeDecode(t *testing.T) {
	original := &AdvertisingPDU{
		PDUType: PDUTypeAdvInd,
		AdvA:    [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		AdvData: []byte{0x02, 0x01, 0x06},
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(encoded) != 2+6+3 {
		t.Errorf("Expected encoded length %d, got %d", 11, len(encoded))
	}

	decoded, err := DecodeAdvertisingPDU(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.PDUType != original.PDUType || decoded.AdvA != original.AdvA {
		t.Errorf("Header mismatch: %+v", decoded)
	}
	if !bytes.Equal(decoded.AdvData, original.AdvData) {
		t.Errorf("AdvData mismatch: expected %v, got %v", original.AdvData, decoded.AdvData)
	}
}

func TestAdvertisingPDUExceedsMaxLength(t *testing.T) {
	pdu := &AdvertisingPDU{PDUType: PDUTypeAdvInd, AdvData: make([]byte, MaxAdvertisingDataLen+1)}
	if _, err := pdu.Encode(); !errors.Is(err, ErrDataTooLarge) {
		t.Fatalf("Expected ErrDataTooLarge, got %v", err)
	}
}

func TestDecodeAdvertisingPDUTruncated(t *testing.T) {
	if _, err := DecodeAdvertisingPDU([]byte{0x00, 0x09, 1, 2, 3, 4, 5, 6}); err == nil {
		t.Fatal("Expected error for truncated PDU")
	}
	if _, err := DecodeAdvertisingPDU([]byte{0x00}); err == nil {
		t.Fatal("Expected error for short PDU")
	}
}

func TestEncodeDecodeADStructures(t *testing.T) {
	structures := []ADStructure{
		NewFlagsAD(FlagLEGeneralDiscoverableMode | FlagBREDRNotSupported),
		NewManufacturerSpecificDataAD(0xFFFF, []byte("SDA")),
		NewTxPowerLevelAD(-7),
	}

	data, err := EncodeADStructures(structures)
	if err != nil {
		t.Fatalf("EncodeADStructures failed: %v", err)
	}

	expected := []byte{
		0x02, 0x01, 0x06,
		0x06, 0xFF, 0xFF, 0xFF, 'S', 'D', 'A',
		0x02, 0x0A, 0xF9,
	}
	if !bytes.Equal(data, expected) {
		t.Fatalf("Encoded bytes mismatch:\n got  % X\n want % X", data, expected)
	}

	decoded, err := DecodeADStructures(data)
	if err != nil {
		t.Fatalf("DecodeADStructures failed: %v", err)
	}
	if len(decoded) != 3 {
		t.Fatalf("Expected 3 structures, got %d", len(decoded))
	}
	if id, payload, ok := GetManufacturerData(decoded); !ok || id != 0xFFFF || string(payload) != "SDA" {
		t.Errorf("Manufacturer data mismatch: id=0x%04X payload=%q ok=%v", id, payload, ok)
	}
	if p, ok := GetTxPowerLevel(decoded); !ok || p != -7 {
		t.Errorf("Tx power mismatch: %d ok=%v", p, ok)
	}
}

func TestDecodeADStructuresStopsAtPadding(t *testing.T) {
	data := []byte{0x02, 0x01, 0x06, 0x00, 0x00, 0x00}
	decoded, err := DecodeADStructures(data)
	if err != nil {
		t.Fatalf("DecodeADStructures failed: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("Expected 1 structure before padding, got %d", len(decoded))
	}
}

func TestDecodeADStructuresOverrun(t *testing.T) {
	if _, err := DecodeADStructures([]byte{0x05, 0xFF, 0x01}); err == nil {
		t.Fatal("Expected error for overrunning AD structure")
	}
}

func TestEncodeADStructuresTooLarge(t *testing.T) {
	structures := []ADStructure{
		NewFlagsAD(0x06),
		NewManufacturerSpecificDataAD(0xFFFF, []byte("much too long for legacy")),
		NewComplete128BitServiceUUIDsAD([][16]byte{uuid.New()}),
	}
	if _, err := EncodeADStructures(structures); !errors.Is(err, ErrDataTooLarge) {
		t.Fatalf("Expected ErrDataTooLarge, got %v", err)
	}
}

func TestServiceUUIDLittleEndianOnAir(t *testing.T) {
	u := uuid.MustParse("E621E1F8-C36C-495A-93FC-0C247A3E6E5F")
	ad := NewComplete128BitServiceUUIDsAD([][16]byte{u})
	if ad.Data[0] != 0x5F || ad.Data[15] != 0xE6 {
		t.Fatalf("UUID not little-endian on air: % X", ad.Data)
	}

	back := Get128BitServiceUUIDs([]ADStructure{ad})
	if len(back) != 1 || uuid.UUID(back[0]) != u {
		t.Fatalf("UUID round trip mismatch: %v", back)
	}
}

func TestShort16(t *testing.T) {
	heartRate := uuid.MustParse("0000180D-0000-1000-8000-00805F9B34FB")
	if v, ok := Short16(heartRate); !ok || v != 0x180D {
		t.Errorf("Expected 0x180D alias, got 0x%04X ok=%v", v, ok)
	}
	if _, ok := Short16(uuid.MustParse("E621E1F8-C36C-495A-93FC-0C247A3E6E5F")); ok {
		t.Error("Random UUID should not have a 16-bit alias")
	}
	if FromShort16(0x180D) != heartRate {
		t.Error("FromShort16 did not expand onto the base UUID")
	}
}

func TestParseBeacon(t *testing.T) {
	service := uuid.MustParse("E621E1F8-C36C-495A-93FC-0C247A3E6E5F")
	structures := append([]ADStructure{
		NewFlagsAD(0x06),
		NewManufacturerSpecificDataAD(0xFFFF, []byte("SDA")),
		NewTxPowerLevelAD(-7),
	}, ServiceUUIDsAD([]uuid.UUID{service})...)

	data, err := EncodeADStructures(structures)
	if err != nil {
		t.Fatalf("EncodeADStructures failed: %v", err)
	}
	if len(data) != MaxAdvertisingDataLen {
		t.Errorf("Expected beacon payload to fill %d bytes, got %d", MaxAdvertisingDataLen, len(data))
	}

	b, err := ParseBeacon(data)
	if err != nil {
		t.Fatalf("ParseBeacon failed: %v", err)
	}
	if !b.HasFlags || b.Flags != 0x06 {
		t.Errorf("Flags mismatch: 0x%02X", b.Flags)
	}
	if b.ManufacturerID != 0xFFFF || string(b.Manufacturer) != "SDA" {
		t.Errorf("Manufacturer mismatch: 0x%04X %q", b.ManufacturerID, b.Manufacturer)
	}
	if len(b.ServiceUUIDs) != 1 || b.ServiceUUIDs[0] != service {
		t.Errorf("Service UUID mismatch: %v", b.ServiceUUIDs)
	}
}

func TestParseBeaconRejectsPlainAdvertisement(t *testing.T) {
	data, _ := EncodeADStructures([]ADStructure{NewFlagsAD(0x06), NewCompleteLocalNameAD("phone")})
	if _, err := ParseBeacon(data); !errors.Is(err, ErrNotBeacon) {
		t.Fatalf("Expected ErrNotBeacon, got %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	got, err := ParseAddress("AA:BB:CC:DD:EE:01")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	want := [6]byte{0x01, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}
	if got != want {
		t.Errorf("Expected % X, got % X", want, got)
	}
	if _, err := ParseAddress("not-an-address"); err == nil {
		t.Error("Expected error for malformed address")
	}
}
