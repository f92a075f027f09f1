package kotlin

import (
	"testing"

	"github.com/google/uuid"
)

var testConfigCharUUID = uuid.MustParse("E621E1F8-C36C-495A-93FC-0C247A3E6E5D")

func newTestServer(t *testing.T, cb BluetoothGattServerCallback) *BluetoothGattServer {
	t.Helper()
	manager := NewBluetoothManager(testAddress, NewManualClock(testEpoch))
	server, err := manager.OpenGattServer(cb)
	if err != nil {
		t.Fatalf("OpenGattServer failed: %v", err)
	}

	service := NewBluetoothGattService(testServiceUUID, SERVICE_TYPE_PRIMARY)
	char := &BluetoothGattCharacteristic{
		UUID:        testConfigCharUUID,
		Properties:  PROPERTY_READ | PROPERTY_WRITE | PROPERTY_NOTIFY,
		Permissions: PERMISSION_READ | PERMISSION_WRITE,
	}
	char.AddDescriptor(&BluetoothGattDescriptor{UUID: CCCD_UUID, Permissions: PERMISSION_READ | PERMISSION_WRITE})
	service.AddCharacteristic(char)
	if !server.AddService(service) {
		t.Fatal("AddService failed")
	}
	return server
}

func TestBluetoothGattServer_ReadRequestAndResponse(t *testing.T) {
	var server *BluetoothGattServer
	var states []int
	cb := &testGattServerCallback{
		onConnectionStateChange: func(device *BluetoothDevice, status int, newState int) {
			states = append(states, newState)
		},
		onCharacteristicReadRequest: func(device *BluetoothDevice, requestId int, offset int, char *BluetoothGattCharacteristic) {
			if !server.SendResponse(device, requestId, GATT_SUCCESS, offset, []byte("cfg")) {
				t.Error("SendResponse should accept a pending request")
			}
		},
	}
	server = newTestServer(t, cb)

	peer := &BluetoothDevice{Address: "11:22:33:44:55:66"}
	reqID := server.ReadCharacteristic(peer, testConfigCharUUID, 0)
	if reqID < 0 {
		t.Fatal("ReadCharacteristic should resolve the characteristic")
	}

	if len(states) != 1 || states[0] != STATE_CONNECTED {
		t.Errorf("Unknown central should be auto-connected, got states %v", states)
	}

	responses := server.Responses()
	if len(responses) != 1 || responses[0].RequestID != reqID || string(responses[0].Value) != "cfg" {
		t.Fatalf("Unexpected responses: %+v", responses)
	}
	if server.SendResponse(peer, reqID, GATT_SUCCESS, 0, nil) {
		t.Error("Answering the same request twice should be rejected")
	}
	if server.PendingRequests() != 0 {
		t.Errorf("Expected no pending requests, got %d", server.PendingRequests())
	}
}

func TestBluetoothGattServer_UnknownCharacteristic(t *testing.T) {
	called := false
	server := newTestServer(t, &testGattServerCallback{
		onCharacteristicReadRequest: func(*BluetoothDevice, int, int, *BluetoothGattCharacteristic) { called = true },
	})

	if id := server.ReadCharacteristic(&BluetoothDevice{Address: "11:22:33:44:55:66"}, uuid.New(), 0); id != -1 {
		t.Errorf("Expected -1 for unknown characteristic, got %d", id)
	}
	if called {
		t.Error("Callback must not see requests for unknown attributes")
	}
}

func TestBluetoothGattServer_DescriptorWrite(t *testing.T) {
	var gotValue []byte
	var gotDesc *BluetoothGattDescriptor
	server := newTestServer(t, &testGattServerCallback{
		onDescriptorWriteRequest: func(device *BluetoothDevice, requestId int, descriptor *BluetoothGattDescriptor, preparedWrite bool, responseNeeded bool, offset int, value []byte) {
			gotDesc = descriptor
			gotValue = value
		},
	})

	peer := &BluetoothDevice{Address: "11:22:33:44:55:66"}
	server.ConnectDevice(peer)
	id := server.WriteDescriptor(peer, testConfigCharUUID, CCCD_UUID, []byte{0x01, 0x00}, true)
	if id < 0 {
		t.Fatal("WriteDescriptor should resolve the CCCD")
	}
	if gotDesc == nil || gotDesc.UUID != CCCD_UUID || gotDesc.Characteristic.UUID != testConfigCharUUID {
		t.Fatalf("Unexpected descriptor: %+v", gotDesc)
	}
	if len(gotValue) != 2 || gotValue[0] != 0x01 {
		t.Errorf("Unexpected value: % X", gotValue)
	}
	if server.PendingRequests() != 1 {
		t.Errorf("Unanswered write should stay pending, got %d", server.PendingRequests())
	}

	if id := server.WriteDescriptor(peer, testConfigCharUUID, uuid.New(), []byte{0x01}, true); id != -1 {
		t.Error("Unknown descriptor should not be delivered")
	}
}

func TestBluetoothGattServer_DisconnectDropsPending(t *testing.T) {
	var states []int
	server := newTestServer(t, &testGattServerCallback{
		onConnectionStateChange: func(device *BluetoothDevice, status int, newState int) {
			states = append(states, newState)
		},
	})

	peer := &BluetoothDevice{Address: "11:22:33:44:55:66"}
	server.ConnectDevice(peer)
	server.WriteCharacteristic(peer, testConfigCharUUID, []byte("x"), true)
	server.DisconnectDevice(peer)

	if server.PendingRequests() != 0 {
		t.Errorf("Disconnect should drop pending requests, got %d", server.PendingRequests())
	}
	if len(states) != 2 || states[1] != STATE_DISCONNECTED {
		t.Errorf("Expected CONNECTED then DISCONNECTED, got %v", states)
	}

	// A second disconnect for the same peer is not reported.
	server.DisconnectDevice(peer)
	if len(states) != 2 {
		t.Errorf("Duplicate disconnect reported: %v", states)
	}
}

func TestBluetoothGattServer_ClosedRejectsEverything(t *testing.T) {
	server := newTestServer(t, &testGattServerCallback{})
	peer := &BluetoothDevice{Address: "11:22:33:44:55:66"}
	reqID := server.ReadCharacteristic(peer, testConfigCharUUID, 0)

	server.Close()
	if server.SendResponse(peer, reqID, GATT_SUCCESS, 0, nil) {
		t.Error("SendResponse on closed server should fail")
	}
	if server.AddService(NewBluetoothGattService(uuid.New(), SERVICE_TYPE_PRIMARY)) {
		t.Error("AddService on closed server should fail")
	}
}

func TestBluetoothGattServer_DuplicateServicesAllowed(t *testing.T) {
	server := newTestServer(t, &testGattServerCallback{})
	server.AddService(NewBluetoothGattService(testServiceUUID, SERVICE_TYPE_PRIMARY))
	if n := len(server.GetServices()); n != 2 {
		t.Errorf("Stack should accept duplicate registrations, got %d services", n)
	}
}
