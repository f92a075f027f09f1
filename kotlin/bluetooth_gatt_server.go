package kotlin

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/user/proximity-beacon/logger"
)

// BluetoothGattServerCallback matches Android's BluetoothGattServerCallback
type BluetoothGattServerCallback interface {
	OnConnectionStateChange(device *BluetoothDevice, status int, newState int)
	OnCharacteristicReadRequest(device *BluetoothDevice, requestId int, offset int, characteristic *BluetoothGattCharacteristic)
	OnCharacteristicWriteRequest(device *BluetoothDevice, requestId int, characteristic *BluetoothGattCharacteristic, preparedWrite bool, responseNeeded bool, offset int, value []byte)
	OnDescriptorReadRequest(device *BluetoothDevice, requestId int, offset int, descriptor *BluetoothGattDescriptor)
	OnDescriptorWriteRequest(device *BluetoothDevice, requestId int, descriptor *BluetoothGattDescriptor, preparedWrite bool, responseNeeded bool, offset int, value []byte)
}

// Service types
const (
	SERVICE_TYPE_PRIMARY   = 0
	SERVICE_TYPE_SECONDARY = 1
)

// Characteristic properties
const (
	PROPERTY_READ              = 0x02
	PROPERTY_WRITE_NO_RESPONSE = 0x04
	PROPERTY_WRITE             = 0x08
	PROPERTY_NOTIFY            = 0x10
)

// Attribute permissions
const (
	PERMISSION_READ  = 0x01
	PERMISSION_WRITE = 0x10
)

// GATT status codes
const (
	GATT_SUCCESS             = 0
	GATT_READ_NOT_PERMITTED  = 2
	GATT_WRITE_NOT_PERMITTED = 3
	GATT_INVALID_OFFSET      = 7
	GATT_FAILURE             = 257
)

// CCCD_UUID is the Client Characteristic Configuration Descriptor.
var CCCD_UUID = uuid.MustParse("00002902-0000-1000-8000-00805f9b34fb")

// BluetoothGattService matches Android's BluetoothGattService
type BluetoothGattService struct {
	UUID            uuid.UUID
	Type            int
	Characteristics []*BluetoothGattCharacteristic
}

// NewBluetoothGattService creates an empty service.
func NewBluetoothGattService(id uuid.UUID, serviceType int) *BluetoothGattService {
	return &BluetoothGattService{UUID: id, Type: serviceType}
}

// AddCharacteristic appends a characteristic to the service.
func (s *BluetoothGattService) AddCharacteristic(c *BluetoothGattCharacteristic) {
	s.Characteristics = append(s.Characteristics, c)
}

// BluetoothGattCharacteristic matches Android's BluetoothGattCharacteristic
type BluetoothGattCharacteristic struct {
	UUID        uuid.UUID
	Properties  int
	Permissions int
	Value       []byte
	Descriptors []*BluetoothGattDescriptor
}

// AddDescriptor attaches d to the characteristic.
func (c *BluetoothGattCharacteristic) AddDescriptor(d *BluetoothGattDescriptor) {
	d.Characteristic = c
	c.Descriptors = append(c.Descriptors, d)
}

// GetDescriptor finds a descriptor by UUID.
func (c *BluetoothGattCharacteristic) GetDescriptor(id uuid.UUID) *BluetoothGattDescriptor {
	for _, d := range c.Descriptors {
		if d.UUID == id {
			return d
		}
	}
	return nil
}

// BluetoothGattDescriptor matches Android's BluetoothGattDescriptor
type BluetoothGattDescriptor struct {
	UUID           uuid.UUID
	Permissions    int
	Value          []byte
	Characteristic *BluetoothGattCharacteristic
}

// GattResponse is a response the server sent for a peer request.
type GattResponse struct {
	Device    string
	RequestID int
	Status    int
	Offset    int
	Value     []byte
}

type pendingRequest struct {
	device string
}

// BluetoothGattServer matches Android's BluetoothGattServer class.
// Peer-side methods (ConnectDevice, ReadCharacteristic, ...) let a simulated
// central drive the server callback the way the Bluetooth stack would.
type BluetoothGattServer struct {
	address   string
	mu        sync.Mutex
	callback  BluetoothGattServerCallback
	services  []*BluetoothGattService
	connected map[string]*BluetoothDevice
	pending   map[int]pendingRequest
	responses []GattResponse
	nextReqID int
	closed    bool
}

func newBluetoothGattServer(address string) *BluetoothGattServer {
	return &BluetoothGattServer{
		address:   address,
		connected: make(map[string]*BluetoothDevice),
		pending:   make(map[int]pendingRequest),
	}
}

func (s *BluetoothGattServer) prefix() string {
	return fmt.Sprintf("%s Radio", shortAddr(s.address))
}

func (s *BluetoothGattServer) setCallback(cb BluetoothGattServerCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

func (s *BluetoothGattServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// GetService returns the registered service with the given UUID, or nil.
// Matches: gattServer.getService(uuid)
func (s *BluetoothGattServer) GetService(id uuid.UUID) *BluetoothGattService {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.UUID == id {
			return svc
		}
	}
	return nil
}

// GetServices returns all registered services, duplicates included.
func (s *BluetoothGattServer) GetServices() []*BluetoothGattService {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*BluetoothGattService(nil), s.services...)
}

// AddService registers a service. Like the Android stack, it does not reject
// a second service with the same UUID.
// Matches: gattServer.addService(service)
func (s *BluetoothGattServer) AddService(service *BluetoothGattService) bool {
	if service == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.services = append(s.services, service)
	logger.Debug(s.prefix(), "added service %s", service.UUID)
	return true
}

// SendResponse answers a pending read/write request. Unknown or already answered
// request ids are rejected.
// Matches: gattServer.sendResponse(device, requestId, status, offset, value)
func (s *BluetoothGattServer) SendResponse(device *BluetoothDevice, requestId int, status int, offset int, value []byte) bool {
	if device == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	req, ok := s.pending[requestId]
	if !ok || req.device != device.Address {
		return false
	}
	delete(s.pending, requestId)
	s.responses = append(s.responses, GattResponse{
		Device:    device.Address,
		RequestID: requestId,
		Status:    status,
		Offset:    offset,
		Value:     append([]byte(nil), value...),
	})
	logger.Trace(s.prefix(), "response to %s (reqId=%d, status=%d, %d bytes)", device.Address, requestId, status, len(value))
	return true
}

// Responses returns every response sent so far.
func (s *BluetoothGattServer) Responses() []GattResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GattResponse(nil), s.responses...)
}

// PendingRequests returns the number of requests still waiting for a response.
func (s *BluetoothGattServer) PendingRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close tears down the server; connected peers are dropped without callbacks.
// Matches: gattServer.close()
func (s *BluetoothGattServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.services = nil
	s.connected = make(map[string]*BluetoothDevice)
	s.pending = make(map[int]pendingRequest)
}

// ConnectDevice simulates a central connecting to us.
func (s *BluetoothGattServer) ConnectDevice(device *BluetoothDevice) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.connected[device.Address] = device
	cb := s.callback
	s.mu.Unlock()

	if cb != nil {
		cb.OnConnectionStateChange(device, GATT_SUCCESS, STATE_CONNECTED)
	}
}

// DisconnectDevice simulates a central dropping the link.
func (s *BluetoothGattServer) DisconnectDevice(device *BluetoothDevice) {
	s.mu.Lock()
	if _, ok := s.connected[device.Address]; !ok || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.connected, device.Address)
	for id, req := range s.pending {
		if req.device == device.Address {
			delete(s.pending, id)
		}
	}
	cb := s.callback
	s.mu.Unlock()

	if cb != nil {
		cb.OnConnectionStateChange(device, GATT_SUCCESS, STATE_DISCONNECTED)
	}
}

// ReadCharacteristic simulates a central reading charUUID. It returns the request id,
// or -1 when the attribute does not exist.
func (s *BluetoothGattServer) ReadCharacteristic(device *BluetoothDevice, charUUID uuid.UUID, offset int) int {
	char, cb, reqID := s.beginRequest(device, charUUID, true)
	if char == nil {
		return -1
	}
	if cb != nil {
		cb.OnCharacteristicReadRequest(device, reqID, offset, char)
	}
	return reqID
}

// WriteCharacteristic simulates a central writing value to charUUID.
func (s *BluetoothGattServer) WriteCharacteristic(device *BluetoothDevice, charUUID uuid.UUID, value []byte, responseNeeded bool) int {
	char, cb, reqID := s.beginRequest(device, charUUID, responseNeeded)
	if char == nil {
		return -1
	}
	if cb != nil {
		cb.OnCharacteristicWriteRequest(device, reqID, char, false, responseNeeded, 0, value)
	}
	return reqID
}

// ReadDescriptor simulates a central reading a descriptor of charUUID.
func (s *BluetoothGattServer) ReadDescriptor(device *BluetoothDevice, charUUID, descUUID uuid.UUID, offset int) int {
	char, cb, reqID := s.beginRequest(device, charUUID, true)
	if char == nil {
		return -1
	}
	desc := char.GetDescriptor(descUUID)
	if desc == nil {
		s.abandon(reqID)
		return -1
	}
	if cb != nil {
		cb.OnDescriptorReadRequest(device, reqID, offset, desc)
	}
	return reqID
}

// WriteDescriptor simulates a central writing a descriptor of charUUID, e.g. enabling
// notifications through the CCCD.
func (s *BluetoothGattServer) WriteDescriptor(device *BluetoothDevice, charUUID, descUUID uuid.UUID, value []byte, responseNeeded bool) int {
	char, cb, reqID := s.beginRequest(device, charUUID, responseNeeded)
	if char == nil {
		return -1
	}
	desc := char.GetDescriptor(descUUID)
	if desc == nil {
		s.abandon(reqID)
		return -1
	}
	if cb != nil {
		cb.OnDescriptorWriteRequest(device, reqID, desc, false, responseNeeded, 0, value)
	}
	return reqID
}

// beginRequest resolves the characteristic, auto-connects unknown centrals and
// registers a pending request id when a response is expected.
func (s *BluetoothGattServer) beginRequest(device *BluetoothDevice, charUUID uuid.UUID, track bool) (*BluetoothGattCharacteristic, BluetoothGattServerCallback, int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, -1
	}
	var target *BluetoothGattCharacteristic
	for _, svc := range s.services {
		for _, c := range svc.Characteristics {
			if c.UUID == charUUID {
				target = c
				break
			}
		}
		if target != nil {
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		logger.Trace(s.prefix(), "request from %s for unknown characteristic %s", device.Address, charUUID)
		return nil, nil, -1
	}

	_, known := s.connected[device.Address]
	if !known {
		s.connected[device.Address] = device
	}
	s.nextReqID++
	reqID := s.nextReqID
	if track {
		s.pending[reqID] = pendingRequest{device: device.Address}
	}
	cb := s.callback
	s.mu.Unlock()

	if !known && cb != nil {
		cb.OnConnectionStateChange(device, GATT_SUCCESS, STATE_CONNECTED)
	}
	return target, cb, reqID
}

func (s *BluetoothGattServer) abandon(reqID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, reqID)
}
