package beacon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/user/proximity-beacon/kotlin"
	"github.com/user/proximity-beacon/logger"
	"github.com/user/proximity-beacon/telemetry"
)

// ServerHandle is an open connection server with the beacon service registered.
type ServerHandle struct {
	server    GattServer
	serviceID uuid.UUID
}

func (h *ServerHandle) ServiceID() uuid.UUID {
	return h.serviceID
}

// Gateway is the defensive facade over the host radio. Every operation checks
// readiness first and never lets a radio fault escape: failures come back as
// ErrRadioUnavailable or *FaultError after being logged.
type Gateway struct {
	radio            Radio
	sink             telemetry.Sink
	prefix           string
	advertiseTimeout time.Duration
}

func NewGateway(radio Radio, sink telemetry.Sink) *Gateway {
	if sink == nil {
		sink = telemetry.Nop()
	}
	return &Gateway{
		radio:            radio,
		sink:             sink,
		prefix:           logPrefix(radio.Address()),
		advertiseTimeout: DefaultAdvertiseTimeout,
	}
}

// SetAdvertiseTimeout bounds each advertise session. The stack rejects anything
// longer than three minutes.
func (g *Gateway) SetAdvertiseTimeout(d time.Duration) {
	g.advertiseTimeout = d
}

// IsRadioReady reports whether the adapter exists and is powered on.
func (g *Gateway) IsRadioReady() (ready bool) {
	defer func() {
		if r := recover(); r != nil {
			g.report(panicFault("IsRadioReady", r))
			ready = false
		}
	}()
	return g.radio != nil && g.radio.Ready()
}

// StartAdvertising (re)starts the beacon advertise set owned by callback. Any prior
// session of the same callback is stopped first so overlapping cycles never hit
// ADVERTISE_FAILED_ALREADY_STARTED.
func (g *Gateway) StartAdvertising(identity Identity, callback kotlin.AdvertiseCallback) (err error) {
	if !g.ready("StartAdvertising") {
		return ErrRadioUnavailable
	}
	defer g.recoverFault("StartAdvertising", &err)

	if err := g.radio.StopAdvertising(callback); err != nil {
		return g.fail("StartAdvertising", err)
	}
	if err := g.radio.StartAdvertising(g.advertiseSettings(), advertiseData(identity), callback); err != nil {
		return g.fail("StartAdvertising", err)
	}
	logger.Debug(g.prefix, "📡 advertising requested (%s)", identity)
	return nil
}

// StopAdvertising stops callback's advertise set. Safe when nothing is advertising.
func (g *Gateway) StopAdvertising(callback kotlin.AdvertiseCallback) (err error) {
	if !g.ready("StopAdvertising") {
		return ErrRadioUnavailable
	}
	defer g.recoverFault("StopAdvertising", &err)

	if err := g.radio.StopAdvertising(callback); err != nil {
		return g.fail("StopAdvertising", err)
	}
	logger.Debug(g.prefix, "advertising stopped")
	return nil
}

// OpenConnectionServer opens the GATT server, binds listener to it and registers the
// primary service unless the server already has it.
func (g *Gateway) OpenConnectionServer(serviceID uuid.UUID, listener kotlin.BluetoothGattServerCallback) (handle *ServerHandle, err error) {
	if !g.ready("OpenConnectionServer") {
		return nil, ErrRadioUnavailable
	}
	defer g.recoverFault("OpenConnectionServer", &err)

	server, err := g.radio.OpenGattServer(listener)
	if err != nil {
		return nil, g.fail("OpenConnectionServer", err)
	}
	if server.GetService(serviceID) == nil {
		if !server.AddService(newBeaconService(serviceID)) {
			return nil, g.fail("OpenConnectionServer", fmt.Errorf("service %s registration rejected", serviceID))
		}
		logger.Info(g.prefix, "registered primary service %s", serviceID)
	}
	return &ServerHandle{server: server, serviceID: serviceID}, nil
}

// CloseConnectionServer releases the server behind handle.
func (g *Gateway) CloseConnectionServer(handle *ServerHandle) (err error) {
	if handle == nil {
		return nil
	}
	if !g.ready("CloseConnectionServer") {
		return ErrRadioUnavailable
	}
	defer g.recoverFault("CloseConnectionServer", &err)

	handle.server.Close()
	logger.Debug(g.prefix, "connection server closed")
	return nil
}

// SendResponse answers a pending peer request. With the radio unready the request is
// left unanswered, as a real disconnect would leave it.
func (g *Gateway) SendResponse(handle *ServerHandle, device *kotlin.BluetoothDevice, requestID, status, offset int, payload []byte) (err error) {
	defer g.recoverFault("SendResponse", &err)

	if handle == nil {
		logger.Warn(g.prefix, "response to %s dropped (reqId=%d): %v", device.Address, requestID, ErrNoServer)
		return ErrNoServer
	}
	if !g.IsRadioReady() {
		msg := fmt.Sprintf("BT Adapter is not turned ON, response to %s dropped (reqId=%d)", device.Address, requestID)
		logger.Warn(g.prefix, "%s", msg)
		g.sink.Log(tagGateway, msg)
		return ErrRadioUnavailable
	}
	if !handle.server.SendResponse(device, requestID, status, offset, payload) {
		logger.Warn(g.prefix, "response to %s rejected (reqId=%d): %v", device.Address, requestID, ErrRequestNotPending)
		return ErrRequestNotPending
	}
	logger.Trace(g.prefix, "responded to %s (reqId=%d, status=%d, %d bytes)", device.Address, requestID, status, len(payload))
	return nil
}

func (g *Gateway) ready(op string) bool {
	if g.IsRadioReady() {
		return true
	}
	logger.Warn(g.prefix, "%s skipped: %v", op, ErrRadioUnavailable)
	return false
}

// fail classifies a radio error. An adapter switched off between the readiness check
// and the call is RadioUnavailable; anything else is a fault.
func (g *Gateway) fail(op string, err error) error {
	if errors.Is(err, kotlin.ErrAdapterOff) || errors.Is(err, ErrRadioUnavailable) {
		logger.Warn(g.prefix, "%s skipped: %v", op, err)
		return ErrRadioUnavailable
	}
	return g.report(newFault(op, err))
}

func (g *Gateway) recoverFault(op string, errp *error) {
	if r := recover(); r != nil {
		*errp = g.report(panicFault(op, r))
	}
}

func (g *Gateway) report(fault *FaultError) error {
	logger.Error(g.prefix, "❌ %s failed (%s): %v", fault.Op, fault.Source, fault.Err)
	g.sink.Log(tagGateway, fault.Error())
	return fault
}

func (g *Gateway) advertiseSettings() *kotlin.AdvertiseSettings {
	return &kotlin.AdvertiseSettings{
		AdvertiseMode: kotlin.ADVERTISE_MODE_LOW_LATENCY,
		Connectable:   true,
		Timeout:       int(g.advertiseTimeout / time.Millisecond),
		TxPowerLevel:  kotlin.ADVERTISE_TX_POWER_MEDIUM,
	}
}

func advertiseData(identity Identity) *kotlin.AdvertiseData {
	return &kotlin.AdvertiseData{
		ServiceUUIDs:        []uuid.UUID{identity.ServiceID()},
		ManufacturerData:    map[int][]byte{int(identity.ManufacturerID()): identity.ManufacturerPayload()},
		IncludeTxPowerLevel: true,
		IncludeDeviceName:   false,
	}
}

// newBeaconService builds the primary service: one config characteristic whose CCCD
// peers write to negotiate their configuration.
func newBeaconService(serviceID uuid.UUID) *kotlin.BluetoothGattService {
	service := kotlin.NewBluetoothGattService(serviceID, kotlin.SERVICE_TYPE_PRIMARY)
	config := &kotlin.BluetoothGattCharacteristic{
		UUID:        ConfigCharUUID,
		Properties:  kotlin.PROPERTY_READ | kotlin.PROPERTY_WRITE | kotlin.PROPERTY_NOTIFY,
		Permissions: kotlin.PERMISSION_READ | kotlin.PERMISSION_WRITE,
	}
	config.AddDescriptor(&kotlin.BluetoothGattDescriptor{
		UUID:        kotlin.CCCD_UUID,
		Permissions: kotlin.PERMISSION_READ | kotlin.PERMISSION_WRITE,
	})
	service.AddCharacteristic(config)
	return service
}

func logPrefix(address string) string {
	short := strings.ReplaceAll(address, ":", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s Beacon", short)
}
