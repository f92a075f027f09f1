package beacon

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/user/proximity-beacon/kotlin"
	"github.com/user/proximity-beacon/logger"
	"github.com/user/proximity-beacon/telemetry"
)

// PeerState tracks a central through Unknown -> Connected -> Disconnected.
// Configuration writes do not change it.
type PeerState int

const (
	PeerUnknown PeerState = iota
	PeerConnected
	PeerDisconnected
)

func (s PeerState) String() string {
	switch s {
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionServer owns the server side of peer connections: service registration,
// per-peer configuration and response dispatch. It is both the advertise callback
// and the GATT server callback handed to the gateway.
//
// Radio events arrive on their own path, unsynchronized with cycles, so the peer maps
// carry their own lock. Entries are never removed; a reconnecting peer re-learns them.
type ConnectionServer struct {
	gateway   *Gateway
	sink      telemetry.Sink
	serviceID uuid.UUID

	mu      sync.RWMutex
	handle  *ServerHandle
	states  map[string]PeerState
	configs map[string][]byte
}

func NewConnectionServer(gateway *Gateway, serviceID uuid.UUID, sink telemetry.Sink) *ConnectionServer {
	if sink == nil {
		sink = telemetry.Nop()
	}
	return &ConnectionServer{
		gateway:   gateway,
		sink:      sink,
		serviceID: serviceID,
		states:    make(map[string]PeerState),
		configs:   make(map[string][]byte),
	}
}

// Setup binds the server as the radio's event sink and makes sure the beacon service
// is registered. Callers serialize it with the cycle lock.
func (s *ConnectionServer) Setup() error {
	handle, err := s.gateway.OpenConnectionServer(s.serviceID, s)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
	return nil
}

// Close releases the connection server. Peer history is kept.
func (s *ConnectionServer) Close() error {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()
	return s.gateway.CloseConnectionServer(handle)
}

// PeerConfiguration returns the last configuration bytes written by address.
func (s *ConnectionServer) PeerConfiguration(address string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	config, ok := s.configs[address]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), config...), true
}

func (s *ConnectionServer) PeerState(address string) PeerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[address]
}

// KnownPeers counts every peer ever seen, connected or not.
func (s *ConnectionServer) KnownPeers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

func (s *ConnectionServer) currentHandle() *ServerHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

func (s *ConnectionServer) respond(device *kotlin.BluetoothDevice, requestID, status, offset int, value []byte) {
	// Errors are already logged by the gateway.
	_ = s.gateway.SendResponse(s.currentHandle(), device, requestID, status, offset, value)
}

// guard is deferred by every callback: a fault is logged and reported and the event
// counts as handled.
func (s *ConnectionServer) guard(event string) {
	if r := recover(); r != nil {
		fault := panicFault(event, r)
		logger.Error(s.gateway.prefix, "❌ %s failed (%s): %v", event, fault.Source, fault.Err)
		s.sink.Log(tagServer, fault.Error())
	}
}

// ============================================================================
// AdvertiseCallback
// ============================================================================

func (s *ConnectionServer) OnStartSuccess(settingsInEffect *kotlin.AdvertiseSettings) {
	defer s.guard("OnStartSuccess")
	logger.Info(s.gateway.prefix, "📡 advertising started (timeout=%dms)", settingsInEffect.Timeout)
}

func (s *ConnectionServer) OnStartFailure(errorCode int) {
	defer s.guard("OnStartFailure")
	msg := fmt.Sprintf("advertising failed: %s", kotlin.AdvertiseFailureName(errorCode))
	logger.Error(s.gateway.prefix, "❌ %s", msg)
	s.sink.Log(tagServer, msg)
}

// ============================================================================
// BluetoothGattServerCallback
// ============================================================================

func (s *ConnectionServer) OnConnectionStateChange(device *kotlin.BluetoothDevice, status int, newState int) {
	defer s.guard("OnConnectionStateChange")
	address := device.Address

	switch newState {
	case kotlin.STATE_CONNECTED:
		s.mu.Lock()
		s.states[address] = PeerConnected
		s.mu.Unlock()
		logger.Debug(s.gateway.prefix, "📱 central %s connected", address)

	case kotlin.STATE_DISCONNECTED:
		s.mu.Lock()
		s.states[address] = PeerDisconnected
		s.mu.Unlock()
		logger.Debug(s.gateway.prefix, "📱 central %s disconnected", address)

	default:
		logger.Trace(s.gateway.prefix, "central %s state %s (status=%d)", address, kotlin.StateName(newState), status)
	}
}

// The config characteristic has no value of its own; reads past its end are invalid.
func (s *ConnectionServer) OnCharacteristicReadRequest(device *kotlin.BluetoothDevice, requestId int, offset int, characteristic *kotlin.BluetoothGattCharacteristic) {
	defer s.guard("OnCharacteristicReadRequest")
	logger.Debug(s.gateway.prefix, "📖 read request from %s for %s", device.Address, characteristic.UUID)
	s.respondRead(device, requestId, offset, nil)
}

func (s *ConnectionServer) OnCharacteristicWriteRequest(device *kotlin.BluetoothDevice, requestId int, characteristic *kotlin.BluetoothGattCharacteristic, preparedWrite bool, responseNeeded bool, offset int, value []byte) {
	defer s.guard("OnCharacteristicWriteRequest")
	logger.Debug(s.gateway.prefix, "✍️ write request from %s for %s (%d bytes)", device.Address, characteristic.UUID, len(value))
	if !responseNeeded {
		return
	}
	s.respond(device, requestId, kotlin.GATT_SUCCESS, offset, value)
}

func (s *ConnectionServer) OnDescriptorReadRequest(device *kotlin.BluetoothDevice, requestId int, offset int, descriptor *kotlin.BluetoothGattDescriptor) {
	defer s.guard("OnDescriptorReadRequest")
	if descriptor.UUID != kotlin.CCCD_UUID {
		s.respond(device, requestId, kotlin.GATT_READ_NOT_PERMITTED, offset, nil)
		return
	}
	config, ok := s.PeerConfiguration(device.Address)
	if !ok {
		config = []byte{0x00, 0x00}
	}
	s.respondRead(device, requestId, offset, config)
}

// OnDescriptorWriteRequest handles configuration writes. A CCCD write upserts the
// peer's configuration; the connection state is left alone.
func (s *ConnectionServer) OnDescriptorWriteRequest(device *kotlin.BluetoothDevice, requestId int, descriptor *kotlin.BluetoothGattDescriptor, preparedWrite bool, responseNeeded bool, offset int, value []byte) {
	defer s.guard("OnDescriptorWriteRequest")

	if descriptor.UUID != kotlin.CCCD_UUID {
		logger.Warn(s.gateway.prefix, "write to unknown descriptor %s from %s", descriptor.UUID, device.Address)
		if responseNeeded {
			s.respond(device, requestId, kotlin.GATT_WRITE_NOT_PERMITTED, offset, nil)
		}
		return
	}

	address := device.Address
	s.mu.Lock()
	s.configs[address] = append([]byte(nil), value...)
	s.mu.Unlock()
	logger.Debug(s.gateway.prefix, "🔔 central %s wrote configuration % X", address, value)

	if responseNeeded {
		s.respond(device, requestId, kotlin.GATT_SUCCESS, offset, value)
	}
}

func (s *ConnectionServer) respondRead(device *kotlin.BluetoothDevice, requestID, offset int, value []byte) {
	if offset < 0 || offset > len(value) {
		s.respond(device, requestID, kotlin.GATT_INVALID_OFFSET, offset, nil)
		return
	}
	s.respond(device, requestID, kotlin.GATT_SUCCESS, offset, value[offset:])
}

var (
	_ kotlin.AdvertiseCallback           = (*ConnectionServer)(nil)
	_ kotlin.BluetoothGattServerCallback = (*ConnectionServer)(nil)
)
