package kotlin

// BluetoothDevice matches Android's BluetoothDevice: a remote peer known by address.
type BluetoothDevice struct {
	Name    string
	Address string
}

// Connection states (BluetoothProfile)
const (
	STATE_DISCONNECTED  = 0
	STATE_CONNECTING    = 1
	STATE_CONNECTED     = 2
	STATE_DISCONNECTING = 3
)

// StateName returns the BluetoothProfile name of a connection state.
func StateName(state int) string {
	switch state {
	case STATE_DISCONNECTED:
		return "DISCONNECTED"
	case STATE_CONNECTING:
		return "CONNECTING"
	case STATE_CONNECTED:
		return "CONNECTED"
	case STATE_DISCONNECTING:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}
