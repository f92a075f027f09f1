package beacon

import (
	"time"

	"github.com/google/uuid"
)

// Beacon GATT table identifiers.
var (
	// DefaultServiceUUID is advertised and registered as the primary service.
	DefaultServiceUUID = uuid.MustParse("E621E1F8-C36C-495A-93FC-0C247A3E6E5F")

	// ConfigCharUUID carries per-peer configuration. Peers negotiate it by writing
	// the characteristic's CCCD.
	ConfigCharUUID = uuid.MustParse("E621E1F8-C36C-495A-93FC-0C247A3E6E5D")
)

const (
	// DefaultManufacturerID is the company id keying the manufacturer-specific data.
	DefaultManufacturerID uint16 = 0xFFFF

	// DefaultManufacturerSubstring is the fixed marker following the manufacturer id.
	DefaultManufacturerSubstring = "SDA"
)

// Wake-up identity: the receiver component plus a fixed request code. The interval
// travels as an extra and is not part of the identity.
const (
	ReceiverComponent = "BeaconScheduler"
	RequestCode       = 10
	IntervalExtra     = "interval"
	WakeLockTag       = "beacon:cycle"
)

const (
	DefaultInterval         = 5 * time.Second
	DefaultStartDelay       = 10 * time.Millisecond
	DefaultAdvertiseTimeout = 180 * time.Second
)

// Telemetry tags.
const (
	tagGateway   = "RadioGateway"
	tagServer    = "ConnectionServer"
	tagScheduler = "BeaconScheduler"
)
