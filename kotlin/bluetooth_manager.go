package kotlin

import (
	"errors"
	"sync"
)

// ErrAdapterOff mirrors the IllegalStateException Android throws when LE calls are
// made while the adapter is powered off.
var ErrAdapterOff = errors.New("BT Adapter is not turned ON")

// BluetoothManager matches Android's BluetoothManager service.
// A manager without an adapter models a device with no Bluetooth hardware.
type BluetoothManager struct {
	Adapter *BluetoothAdapter
}

// NewBluetoothManager creates a manager backed by a powered-on adapter with the given address.
func NewBluetoothManager(address string, clock Clock) *BluetoothManager {
	return &BluetoothManager{Adapter: NewBluetoothAdapter(address, clock)}
}

// NewBluetoothManagerWithoutAdapter models hardware without Bluetooth.
func NewBluetoothManagerWithoutAdapter() *BluetoothManager {
	return &BluetoothManager{}
}

// OpenGattServer opens (or returns the already open) GATT server and binds callback to it.
// Matches: bluetoothManager.openGattServer(context, callback)
func (m *BluetoothManager) OpenGattServer(callback BluetoothGattServerCallback) (*BluetoothGattServer, error) {
	if m.Adapter == nil {
		return nil, errors.New("bluetooth not supported on this device")
	}
	return m.Adapter.openGattServer(callback)
}

// BluetoothAdapter matches Android's BluetoothAdapter
type BluetoothAdapter struct {
	address    string
	mu         sync.Mutex
	enabled    bool
	advertiser *BluetoothLeAdvertiser
	gattServer *BluetoothGattServer
}

// NewBluetoothAdapter creates a powered-on adapter.
func NewBluetoothAdapter(address string, clock Clock) *BluetoothAdapter {
	a := &BluetoothAdapter{address: address, enabled: true}
	a.advertiser = newBluetoothLeAdvertiser(a, clock)
	return a
}

// GetAddress returns the adapter's public address.
func (a *BluetoothAdapter) GetAddress() string {
	return a.address
}

// IsEnabled reports whether the adapter is powered on.
func (a *BluetoothAdapter) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Enable powers the adapter on.
func (a *BluetoothAdapter) Enable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
}

// Disable powers the adapter off. Running advertise sets stop and the GATT server
// is torn down, as happens when the user toggles Bluetooth.
func (a *BluetoothAdapter) Disable() {
	a.mu.Lock()
	a.enabled = false
	server := a.gattServer
	a.gattServer = nil
	a.mu.Unlock()

	a.advertiser.stopAll()
	if server != nil {
		server.Close()
	}
}

// GetBluetoothLeAdvertiser returns the LE advertiser, or nil while the adapter is off.
func (a *BluetoothAdapter) GetBluetoothLeAdvertiser() *BluetoothLeAdvertiser {
	if !a.IsEnabled() {
		return nil
	}
	return a.advertiser
}

func (a *BluetoothAdapter) openGattServer(callback BluetoothGattServerCallback) (*BluetoothGattServer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enabled {
		return nil, ErrAdapterOff
	}
	if a.gattServer == nil || a.gattServer.isClosed() {
		a.gattServer = newBluetoothGattServer(a.address)
	}
	a.gattServer.setCallback(callback)
	return a.gattServer, nil
}
