package kotlin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/proximity-beacon/logger"
	"github.com/user/proximity-beacon/wire/advertising"
)

// AdvertiseCallback matches Android's AdvertiseCallback interface.
// Implementations are used as map keys and must be comparable (pointer receivers).
type AdvertiseCallback interface {
	OnStartSuccess(settingsInEffect *AdvertiseSettings)
	OnStartFailure(errorCode int)
}

// AdvertiseSettings matches Android's AdvertiseSettings class
type AdvertiseSettings struct {
	AdvertiseMode int // ADVERTISE_MODE_LOW_POWER, BALANCED, LOW_LATENCY
	Connectable   bool
	Timeout       int // milliseconds, 0 = no timeout, max 180000
	TxPowerLevel  int // ADVERTISE_TX_POWER_ULTRA_LOW, LOW, MEDIUM, HIGH
}

// AdvertiseSettings modes
const (
	ADVERTISE_MODE_LOW_POWER   = 0 // 1000ms interval
	ADVERTISE_MODE_BALANCED    = 1 // 250ms interval
	ADVERTISE_MODE_LOW_LATENCY = 2 // 100ms interval
)

// AdvertiseSettings TX power levels
const (
	ADVERTISE_TX_POWER_ULTRA_LOW = 0 // -21 dBm
	ADVERTISE_TX_POWER_LOW       = 1 // -15 dBm
	ADVERTISE_TX_POWER_MEDIUM    = 2 // -7 dBm
	ADVERTISE_TX_POWER_HIGH      = 3 // 1 dBm
)

// MaxAdvertiseTimeoutMillis is the largest timeout AdvertiseSettings accepts.
const MaxAdvertiseTimeoutMillis = 180000

// AdvertiseCallback error codes
const (
	ADVERTISE_FAILED_DATA_TOO_LARGE       = 1
	ADVERTISE_FAILED_TOO_MANY_ADVERTISERS = 2
	ADVERTISE_FAILED_ALREADY_STARTED      = 3
	ADVERTISE_FAILED_INTERNAL_ERROR       = 4
	ADVERTISE_FAILED_FEATURE_UNSUPPORTED  = 5
)

// maxAdvertisers is the number of concurrent advertise sets the simulated controller supports.
const maxAdvertisers = 4

// AdvertiseFailureName returns a readable name for an AdvertiseCallback error code.
func AdvertiseFailureName(errorCode int) string {
	switch errorCode {
	case ADVERTISE_FAILED_DATA_TOO_LARGE:
		return "data too large"
	case ADVERTISE_FAILED_TOO_MANY_ADVERTISERS:
		return "too many advertisers"
	case ADVERTISE_FAILED_ALREADY_STARTED:
		return "already started"
	case ADVERTISE_FAILED_INTERNAL_ERROR:
		return "internal error"
	case ADVERTISE_FAILED_FEATURE_UNSUPPORTED:
		return "feature unsupported"
	default:
		return fmt.Sprintf("unknown error %d", errorCode)
	}
}

// AdvertiseData matches Android's AdvertiseData class
type AdvertiseData struct {
	ServiceUUIDs        []uuid.UUID
	ManufacturerData    map[int][]byte // Company ID -> data
	IncludeTxPowerLevel bool
	IncludeDeviceName   bool
}

// ErrInvalidSettings mirrors the IllegalArgumentException thrown for out-of-range settings.
var ErrInvalidSettings = errors.New("invalid advertise settings")

// BluetoothLeAdvertiser matches Android's BluetoothLeAdvertiser class.
// Advertise sets are keyed by the callback that started them.
type BluetoothLeAdvertiser struct {
	adapter  *BluetoothAdapter
	clock    Clock
	mu       sync.Mutex
	sessions map[AdvertiseCallback]*advertiseSession
}

type advertiseSession struct {
	settings  AdvertiseSettings
	pdu       []byte
	startedAt time.Time
	timeout   Timer
}

func newBluetoothLeAdvertiser(adapter *BluetoothAdapter, clock Clock) *BluetoothLeAdvertiser {
	return &BluetoothLeAdvertiser{
		adapter:  adapter,
		clock:    clock,
		sessions: make(map[AdvertiseCallback]*advertiseSession),
	}
}

func (a *BluetoothLeAdvertiser) prefix() string {
	return fmt.Sprintf("%s Radio", shortAddr(a.adapter.address))
}

// StartAdvertising starts an advertise set. Outcome is reported asynchronously on callback.
// Matches: bluetoothLeAdvertiser.startAdvertising(settings, advertiseData, callback)
func (a *BluetoothLeAdvertiser) StartAdvertising(settings *AdvertiseSettings, advertiseData *AdvertiseData, callback AdvertiseCallback) error {
	if callback == nil {
		return errors.New("callback cannot be null")
	}
	if !a.adapter.IsEnabled() {
		return ErrAdapterOff
	}
	if settings == nil {
		settings = &AdvertiseSettings{
			AdvertiseMode: ADVERTISE_MODE_LOW_POWER,
			Connectable:   true,
			TxPowerLevel:  ADVERTISE_TX_POWER_MEDIUM,
		}
	}
	if settings.Timeout < 0 || settings.Timeout > MaxAdvertiseTimeoutMillis {
		return fmt.Errorf("%w: timeout %dms outside [0, %d]", ErrInvalidSettings, settings.Timeout, MaxAdvertiseTimeoutMillis)
	}
	if advertiseData == nil {
		advertiseData = &AdvertiseData{}
	}

	a.mu.Lock()
	if _, exists := a.sessions[callback]; exists {
		a.mu.Unlock()
		go callback.OnStartFailure(ADVERTISE_FAILED_ALREADY_STARTED)
		return nil
	}
	if len(a.sessions) >= maxAdvertisers {
		a.mu.Unlock()
		go callback.OnStartFailure(ADVERTISE_FAILED_TOO_MANY_ADVERTISERS)
		return nil
	}

	pdu, err := a.buildPDU(settings, advertiseData)
	if err != nil {
		a.mu.Unlock()
		logger.Warn(a.prefix(), "advertise data rejected: %v", err)
		if errors.Is(err, advertising.ErrDataTooLarge) {
			go callback.OnStartFailure(ADVERTISE_FAILED_DATA_TOO_LARGE)
		} else {
			go callback.OnStartFailure(ADVERTISE_FAILED_INTERNAL_ERROR)
		}
		return nil
	}

	session := &advertiseSession{
		settings:  *settings,
		pdu:       pdu,
		startedAt: a.clock.Now(),
	}
	if settings.Timeout > 0 {
		session.timeout = a.clock.AfterFunc(time.Duration(settings.Timeout)*time.Millisecond, func() {
			a.expire(callback, session)
		})
	}
	a.sessions[callback] = session
	a.mu.Unlock()

	logger.Trace(a.prefix(), "advertising PDU % X", pdu)
	inEffect := *settings
	go callback.OnStartSuccess(&inEffect)
	return nil
}

// StopAdvertising stops the advertise set started with callback. Unknown callbacks are ignored.
// Matches: bluetoothLeAdvertiser.stopAdvertising(callback)
func (a *BluetoothLeAdvertiser) StopAdvertising(callback AdvertiseCallback) error {
	if callback == nil {
		return errors.New("callback cannot be null")
	}
	if !a.adapter.IsEnabled() {
		return ErrAdapterOff
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	session, ok := a.sessions[callback]
	if !ok {
		return nil
	}
	if session.timeout != nil {
		session.timeout.Stop()
	}
	delete(a.sessions, callback)
	return nil
}

// IsAdvertising reports whether callback owns a running advertise set.
func (a *BluetoothLeAdvertiser) IsAdvertising(callback AdvertiseCallback) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sessions[callback]
	return ok
}

// ActiveSets returns the number of running advertise sets.
func (a *BluetoothLeAdvertiser) ActiveSets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// AdvertisedPDU returns the on-air ADV PDU of callback's advertise set.
func (a *BluetoothLeAdvertiser) AdvertisedPDU(callback AdvertiseCallback) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	session, ok := a.sessions[callback]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), session.pdu...), true
}

func (a *BluetoothLeAdvertiser) expire(callback AdvertiseCallback, session *advertiseSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessions[callback] != session {
		return
	}
	delete(a.sessions, callback)
	logger.Debug(a.prefix(), "advertise set timed out after %dms", session.settings.Timeout)
}

func (a *BluetoothLeAdvertiser) stopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for cb, session := range a.sessions {
		if session.timeout != nil {
			session.timeout.Stop()
		}
		delete(a.sessions, cb)
	}
}

// buildPDU lays out AD structures in the order the Android stack emits them:
// flags, local name, manufacturer data, tx power, service UUIDs.
func (a *BluetoothLeAdvertiser) buildPDU(settings *AdvertiseSettings, data *AdvertiseData) ([]byte, error) {
	var structures []advertising.ADStructure
	if settings.Connectable {
		structures = append(structures, advertising.NewFlagsAD(advertising.FlagLEGeneralDiscoverableMode|advertising.FlagBREDRNotSupported))
	}
	if data.IncludeDeviceName {
		structures = append(structures, advertising.NewCompleteLocalNameAD(a.adapter.address))
	}

	ids := make([]int, 0, len(data.ManufacturerData))
	for id := range data.ManufacturerData {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		structures = append(structures, advertising.NewManufacturerSpecificDataAD(uint16(id), data.ManufacturerData[id]))
	}

	if data.IncludeTxPowerLevel {
		structures = append(structures, advertising.NewTxPowerLevelAD(TxPowerLevelToDbm(settings.TxPowerLevel)))
	}
	structures = append(structures, advertising.ServiceUUIDsAD(data.ServiceUUIDs)...)

	advData, err := advertising.EncodeADStructures(structures)
	if err != nil {
		return nil, err
	}

	pduType := byte(advertising.PDUTypeAdvNonconnInd)
	if settings.Connectable {
		pduType = advertising.PDUTypeAdvInd
	}
	addr, err := advertising.ParseAddress(a.adapter.address)
	if err != nil {
		return nil, err
	}
	pdu := &advertising.AdvertisingPDU{PDUType: pduType, AdvA: addr, AdvData: advData}
	return pdu.Encode()
}

// TxPowerLevelToDbm converts an AdvertiseSettings TX power level to dBm
func TxPowerLevelToDbm(level int) int8 {
	switch level {
	case ADVERTISE_TX_POWER_ULTRA_LOW:
		return -21
	case ADVERTISE_TX_POWER_LOW:
		return -15
	case ADVERTISE_TX_POWER_MEDIUM:
		return -7
	case ADVERTISE_TX_POWER_HIGH:
		return 1
	default:
		return -7
	}
}

func shortAddr(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[len(s)-8:]
}
