package beacon

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/user/proximity-beacon/kotlin"
	"github.com/user/proximity-beacon/wire/advertising"
)

// ErrInvalidInterval is returned for non-positive cycle intervals.
var ErrInvalidInterval = errors.New("interval must be positive")

// Identity is what every advertise cycle broadcasts. It is immutable: the payload is
// copied in and out.
type Identity struct {
	serviceID      uuid.UUID
	manufacturerID uint16
	payload        []byte
}

// NewIdentity builds an identity from a service id and manufacturer data.
func NewIdentity(serviceID uuid.UUID, manufacturerID uint16, payload []byte) Identity {
	return Identity{
		serviceID:      serviceID,
		manufacturerID: manufacturerID,
		payload:        append([]byte(nil), payload...),
	}
}

// DefaultIdentity advertises DefaultServiceUUID with the default manufacturer marker.
func DefaultIdentity() Identity {
	return NewIdentity(DefaultServiceUUID, DefaultManufacturerID, []byte(DefaultManufacturerSubstring))
}

func (i Identity) ServiceID() uuid.UUID {
	return i.serviceID
}

func (i Identity) ManufacturerID() uint16 {
	return i.manufacturerID
}

func (i Identity) ManufacturerPayload() []byte {
	return append([]byte(nil), i.payload...)
}

// Validate reports whether the identity fits the legacy advertising payload once
// flags and tx power are added. Oversized identities wrap advertising.ErrDataTooLarge.
func (i Identity) Validate() error {
	structures := []advertising.ADStructure{
		advertising.NewFlagsAD(advertising.FlagLEGeneralDiscoverableMode | advertising.FlagBREDRNotSupported),
		advertising.NewManufacturerSpecificDataAD(i.manufacturerID, i.payload),
		advertising.NewTxPowerLevelAD(kotlin.TxPowerLevelToDbm(kotlin.ADVERTISE_TX_POWER_MEDIUM)),
	}
	structures = append(structures, advertising.ServiceUUIDsAD([]uuid.UUID{i.serviceID})...)
	if _, err := advertising.EncodeADStructures(structures); err != nil {
		return fmt.Errorf("identity %s: %w", i, err)
	}
	return nil
}

func (i Identity) String() string {
	return fmt.Sprintf("service=%s mfr=0x%04X payload=%q", i.serviceID, i.manufacturerID, i.payload)
}

// CycleConfig is the interval a cycle runs with. A new cycle always receives the
// interval to use, so the interval can change between cycles.
type CycleConfig struct {
	Interval time.Duration
}

func (c CycleConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, c.Interval)
	}
	return nil
}

// millis is the wire form of the interval carried in the wake intent.
func (c CycleConfig) millis() int {
	return int(c.Interval / time.Millisecond)
}

func cycleConfigFromMillis(ms int) CycleConfig {
	return CycleConfig{Interval: time.Duration(ms) * time.Millisecond}
}
