package beacon

import (
	"github.com/google/uuid"
	"github.com/user/proximity-beacon/kotlin"
)

// Radio is the host adapter the gateway drives.
type Radio interface {
	Address() string
	Ready() bool
	StartAdvertising(settings *kotlin.AdvertiseSettings, data *kotlin.AdvertiseData, callback kotlin.AdvertiseCallback) error
	StopAdvertising(callback kotlin.AdvertiseCallback) error
	OpenGattServer(callback kotlin.BluetoothGattServerCallback) (GattServer, error)
}

// GattServer is the subset of the host GATT server the beacon uses.
type GattServer interface {
	GetService(id uuid.UUID) *kotlin.BluetoothGattService
	AddService(service *kotlin.BluetoothGattService) bool
	SendResponse(device *kotlin.BluetoothDevice, requestId int, status int, offset int, value []byte) bool
	Close()
}

// HostRadio binds Radio to the simulated Android Bluetooth stack.
type HostRadio struct {
	manager *kotlin.BluetoothManager
}

func NewHostRadio(manager *kotlin.BluetoothManager) *HostRadio {
	return &HostRadio{manager: manager}
}

func (h *HostRadio) Address() string {
	if h.manager == nil || h.manager.Adapter == nil {
		return "00:00:00:00:00:00"
	}
	return h.manager.Adapter.GetAddress()
}

// Ready reports whether an adapter exists and is powered on.
func (h *HostRadio) Ready() bool {
	return h.manager != nil && h.manager.Adapter != nil && h.manager.Adapter.IsEnabled()
}

func (h *HostRadio) advertiser() (*kotlin.BluetoothLeAdvertiser, error) {
	if h.manager == nil || h.manager.Adapter == nil {
		return nil, ErrRadioUnavailable
	}
	adv := h.manager.Adapter.GetBluetoothLeAdvertiser()
	if adv == nil {
		return nil, kotlin.ErrAdapterOff
	}
	return adv, nil
}

func (h *HostRadio) StartAdvertising(settings *kotlin.AdvertiseSettings, data *kotlin.AdvertiseData, callback kotlin.AdvertiseCallback) error {
	adv, err := h.advertiser()
	if err != nil {
		return err
	}
	return adv.StartAdvertising(settings, data, callback)
}

func (h *HostRadio) StopAdvertising(callback kotlin.AdvertiseCallback) error {
	adv, err := h.advertiser()
	if err != nil {
		return err
	}
	return adv.StopAdvertising(callback)
}

func (h *HostRadio) OpenGattServer(callback kotlin.BluetoothGattServerCallback) (GattServer, error) {
	if h.manager == nil {
		return nil, ErrRadioUnavailable
	}
	server, err := h.manager.OpenGattServer(callback)
	if err != nil {
		return nil, err
	}
	return server, nil
}

var _ Radio = (*HostRadio)(nil)
