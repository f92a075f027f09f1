package kotlin

import (
	"time"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testAddress = "AA:BB:CC:DD:EE:01"

// testAdvertiseCallback is a test implementation of AdvertiseCallback
type testAdvertiseCallback struct {
	started chan *AdvertiseSettings
	failed  chan int
}

func newTestAdvertiseCallback() *testAdvertiseCallback {
	return &testAdvertiseCallback{
		started: make(chan *AdvertiseSettings, 4),
		failed:  make(chan int, 4),
	}
}

func (c *testAdvertiseCallback) OnStartSuccess(settings *AdvertiseSettings) {
	c.started <- settings
}

func (c *testAdvertiseCallback) OnStartFailure(errorCode int) {
	c.failed <- errorCode
}

// testGattServerCallback is a test implementation of BluetoothGattServerCallback
type testGattServerCallback struct {
	onConnectionStateChange      func(device *BluetoothDevice, status int, newState int)
	onCharacteristicReadRequest  func(device *BluetoothDevice, requestId int, offset int, char *BluetoothGattCharacteristic)
	onCharacteristicWriteRequest func(device *BluetoothDevice, requestId int, char *BluetoothGattCharacteristic, preparedWrite bool, responseNeeded bool, offset int, value []byte)
	onDescriptorReadRequest      func(device *BluetoothDevice, requestId int, offset int, descriptor *BluetoothGattDescriptor)
	onDescriptorWriteRequest     func(device *BluetoothDevice, requestId int, descriptor *BluetoothGattDescriptor, preparedWrite bool, responseNeeded bool, offset int, value []byte)
}

func (c *testGattServerCallback) OnConnectionStateChange(device *BluetoothDevice, status int, newState int) {
	if c.onConnectionStateChange != nil {
		c.onConnectionStateChange(device, status, newState)
	}
}

func (c *testGattServerCallback) OnCharacteristicReadRequest(device *BluetoothDevice, requestId int, offset int, char *BluetoothGattCharacteristic) {
	if c.onCharacteristicReadRequest != nil {
		c.onCharacteristicReadRequest(device, requestId, offset, char)
	}
}

func (c *testGattServerCallback) OnCharacteristicWriteRequest(device *BluetoothDevice, requestId int, char *BluetoothGattCharacteristic, preparedWrite bool, responseNeeded bool, offset int, value []byte) {
	if c.onCharacteristicWriteRequest != nil {
		c.onCharacteristicWriteRequest(device, requestId, char, preparedWrite, responseNeeded, offset, value)
	}
}

func (c *testGattServerCallback) OnDescriptorReadRequest(device *BluetoothDevice, requestId int, offset int, descriptor *BluetoothGattDescriptor) {
	if c.onDescriptorReadRequest != nil {
		c.onDescriptorReadRequest(device, requestId, offset, descriptor)
	}
}

func (c *testGattServerCallback) OnDescriptorWriteRequest(device *BluetoothDevice, requestId int, descriptor *BluetoothGattDescriptor, preparedWrite bool, responseNeeded bool, offset int, value []byte) {
	if c.onDescriptorWriteRequest != nil {
		c.onDescriptorWriteRequest(device, requestId, descriptor, preparedWrite, responseNeeded, offset, value)
	}
}

// testReceiver records every intent it receives
type testReceiver struct {
	received []*Intent
}

func (r *testReceiver) OnReceive(intent *Intent) {
	r.received = append(r.received, intent)
}
