package ble

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

// defaultFlowDelay is how long an upload backs off when the Flipper
// reports serial buffer pressure. Tuned against real hardware; shorter
// values bring back the firmware's buffer overflow warnings.
const defaultFlowDelay = 800 * time.Millisecond

// Connect scans for a paired Flipper whose advertised name contains
// name ("Uwu2" matches "Flipper Uwu2") and connects to it.
func Connect(name string, log zerolog.Logger) (bluetooth.Device, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return bluetooth.Device{}, fmt.Errorf("failed to enable bluetooth: %w", err)
	}

	log.Info().Str("name", name).Msg("scanning for Flipper")

	var result bluetooth.ScanResult
	found := false
	err := adapter.Scan(func(adapter *bluetooth.Adapter, r bluetooth.ScanResult) {
		local := r.LocalName()
		if local == "" {
			return
		}
		log.Debug().Str("name", local).Msg("scan result")
		if strings.Contains(local, name) {
			result = r
			found = true
			adapter.StopScan()
		}
	})
	if err != nil {
		return bluetooth.Device{}, fmt.Errorf("scan failed: %w", err)
	}
	if !found {
		return bluetooth.Device{}, fmt.Errorf("no device with name %q found", name)
	}

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return bluetooth.Device{}, fmt.Errorf("failed to connect: %w", err)
	}

	log.Info().Str("name", name).Msg("connected to Flipper")
	return device, nil
}

// OpenChannel discovers the serial service on a connected Flipper and
// wires its characteristics into a Channel. The TX characteristic's
// notifications feed the inbound queue; a stack-reported disconnect
// moves the channel to its terminal state.
func OpenChannel(device bluetooth.Device, log zerolog.Logger) (*Channel, error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}

	var serial *bluetooth.DeviceService
	for i := range services {
		if strings.EqualFold(services[i].UUID().String(), SerialServiceUUID) {
			serial = &services[i]
			break
		}
	}
	if serial == nil {
		return nil, errors.New("serial service not found (is the firmware up to date?)")
	}

	chars, err := serial.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics: %w", err)
	}

	var rx, tx, flow *bluetooth.DeviceCharacteristic
	for i := range chars {
		uuid := chars[i].UUID().String()
		log.Debug().Str("uuid", uuid).Msg("found characteristic")
		switch {
		case strings.EqualFold(uuid, RxCharUUID):
			rx = &chars[i]
		case strings.EqualFold(uuid, TxCharUUID):
			tx = &chars[i]
		case strings.EqualFold(uuid, FlowCharUUID):
			flow = &chars[i]
		}
	}
	if rx == nil || tx == nil {
		return nil, errors.New("serial RX/TX characteristics not found")
	}

	// The negotiated ATT MTU includes 3 bytes of write header.
	mtu := DefaultMTU
	if raw, err := rx.GetMTU(); err == nil && int(raw) > 3 {
		mtu = int(raw) - 3
	} else if err != nil {
		log.Debug().Err(err).Int("fallback", DefaultMTU).Msg("MTU not reported")
	}

	ch := NewChannel(rx, ChannelOptions{
		MTU:       mtu,
		FlowDelay: defaultFlowDelay,
		Logger:    log,
	})
	log.Debug().Int("mtu", ch.MTU()).Msg("channel open")

	if err := tx.EnableNotifications(ch.Push); err != nil {
		return nil, fmt.Errorf("failed to enable notifications: %w", err)
	}
	if flow != nil {
		if err := flow.EnableNotifications(ch.PushFlow); err != nil {
			log.Debug().Err(err).Msg("flow control notifications unavailable")
		}
	}

	bluetooth.DefaultAdapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if !connected {
			ch.Fail(errors.New("link lost"))
		}
	})

	// Let the subscription settle before the first command.
	time.Sleep(100 * time.Millisecond)
	return ch, nil
}
