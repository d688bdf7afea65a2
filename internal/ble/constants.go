package ble

const (
	// SerialServiceUUID is the Flipper BLE serial (RPC) service.
	SerialServiceUUID = "8fe5b3d5-2e7f-4a98-2a48-7acc60fe0000"

	// RxCharUUID is the characteristic the host writes RPC frames to.
	RxCharUUID = "19ed82ae-ed21-4c9d-4145-228e62fe0000"

	// TxCharUUID is the characteristic the Flipper notifies RPC frames on.
	TxCharUUID = "19ed82ae-ed21-4c9d-4145-228e61fe0000"

	// FlowCharUUID notifies the free space left in the Flipper's serial
	// buffer (32-bit big-endian).
	FlowCharUUID = "19ed82ae-ed21-4c9d-4145-228e63fe0000"
)

const (
	// DefaultMTU is assumed when the stack cannot report the negotiated
	// value.
	DefaultMTU = 185

	// MaxTU caps the per-write payload. Writes up to the full 512-byte
	// ATT maximum overrun the Flipper serial buffer; 350 is the largest
	// size that behaves.
	MaxTU = 350
)
