// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"

	"github.com/Thermoquad/batteread/pkg/bms"
)

// BLEConfig selects the GATT characteristics used for the serial link.
// Commands are always sent with write-without-response.
type BLEConfig struct {
	WriteCharacteristic  string
	NotifyCharacteristic string

	// QueueDepth bounds buffered notifications (default DefaultQueueDepth)
	QueueDepth int
}

// DefaultBLEConfig returns the Nordic UART characteristics
func DefaultBLEConfig() BLEConfig {
	return BLEConfig{
		WriteCharacteristic:  bms.NordicUARTWriteCharacterID,
		NotifyCharacteristic: bms.NordicUARTNotifyCharacterID,
		QueueDepth:           DefaultQueueDepth,
	}
}

// BLE talks to the BMS through a serial-over-BLE GATT service
type BLE struct {
	adapter *bluetooth.Adapter
	config  BLEConfig
	log     zerolog.Logger

	enableOnce sync.Once
	enableErr  error

	mu    sync.Mutex
	conns map[string]*bleConn
}

// NewBLE creates a BLE transport on the default adapter
func NewBLE(config BLEConfig, log zerolog.Logger) *BLE {
	if config.WriteCharacteristic == "" {
		config.WriteCharacteristic = bms.NordicUARTWriteCharacterID
	}
	if config.NotifyCharacteristic == "" {
		config.NotifyCharacteristic = bms.NordicUARTNotifyCharacterID
	}
	return &BLE{
		adapter: bluetooth.DefaultAdapter,
		config:  config,
		log:     log.With().Str("component", "ble").Logger(),
		conns:   make(map[string]*bleConn),
	}
}

func (b *BLE) enable() error {
	b.enableOnce.Do(func() {
		b.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			b.connectionChanged(device.Address.String(), connected)
		})
		b.enableErr = b.adapter.Enable()
	})
	if b.enableErr != nil {
		return fmt.Errorf("enable BLE adapter: %w", b.enableErr)
	}
	return nil
}

type bleDevice struct {
	name      string
	address   bluetooth.Address
	serviceID string
}

func (d bleDevice) Name() string    { return d.name }
func (d bleDevice) Address() string { return d.address.String() }

func newBLEDevice(result bluetooth.ScanResult, target bms.Target) bleDevice {
	serviceID := target.ServiceID
	if serviceID == "" {
		serviceID = bms.NordicUARTServiceID
	}
	return bleDevice{name: result.LocalName(), address: result.Address, serviceID: serviceID}
}

// ScanEntry describes one advertising peripheral
type ScanEntry struct {
	Name    string
	Address string
	RSSI    int16
}

// matchesTarget selects a peripheral by address when one is given,
// otherwise by advertised local name.
func matchesTarget(name, address string, target bms.Target) bool {
	if target.Address != "" {
		return strings.EqualFold(address, target.Address)
	}
	return name != "" && name == target.DeviceName
}

// Discover scans until a peripheral matching target advertises or ctx ends
func (b *BLE) Discover(ctx context.Context, target bms.Target) (bms.Device, error) {
	if err := b.enable(); err != nil {
		return nil, err
	}

	found := make(chan bluetooth.ScanResult, 1)
	scanDone := make(chan error, 1)
	go func() {
		scanDone <- b.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			b.log.Debug().Str("name", name).Str("address", result.Address.String()).Int16("rssi", result.RSSI).Msg("advertisement")
			if !matchesTarget(name, result.Address.String(), target) {
				return
			}
			select {
			case found <- result:
			default:
			}
			if err := adapter.StopScan(); err != nil {
				b.log.Debug().Err(err).Msg("stop scan")
			}
		})
	}()

	select {
	case result := <-found:
		<-scanDone
		return newBLEDevice(result, target), nil
	case err := <-scanDone:
		select {
		case result := <-found:
			return newBLEDevice(result, target), nil
		default:
		}
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		return nil, bms.ErrDeviceNotFound
	case <-ctx.Done():
		if err := b.adapter.StopScan(); err != nil {
			b.log.Debug().Err(err).Msg("stop scan")
		}
		<-scanDone
		return nil, fmt.Errorf("%w: %v", bms.ErrDeviceNotFound, ctx.Err())
	}
}

// Scan reports every named peripheral once until ctx ends
func (b *BLE) Scan(ctx context.Context, fn func(ScanEntry)) error {
	if err := b.enable(); err != nil {
		return err
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	scanDone := make(chan error, 1)
	go func() {
		scanDone <- b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			addr := result.Address.String()
			if name == "" {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[addr] {
				return
			}
			seen[addr] = true
			fn(ScanEntry{Name: name, Address: addr, RSSI: result.RSSI})
		})
	}()

	select {
	case err := <-scanDone:
		return err
	case <-ctx.Done():
		if err := b.adapter.StopScan(); err != nil {
			return err
		}
		return <-scanDone
	}
}

// Connect opens the GATT link and subscribes to notifications
func (b *BLE) Connect(ctx context.Context, dev bms.Device) (bms.Conn, error) {
	d, ok := dev.(bleDevice)
	if !ok {
		return nil, fmt.Errorf("device %q was not discovered over BLE", dev.Name())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.enable(); err != nil {
		return nil, err
	}

	serviceID, err := bluetooth.ParseUUID(d.serviceID)
	if err != nil {
		return nil, fmt.Errorf("service UUID: %w", err)
	}
	writeID, err := bluetooth.ParseUUID(b.config.WriteCharacteristic)
	if err != nil {
		return nil, fmt.Errorf("write characteristic UUID: %w", err)
	}
	notifyID, err := bluetooth.ParseUUID(b.config.NotifyCharacteristic)
	if err != nil {
		return nil, fmt.Errorf("notify characteristic UUID: %w", err)
	}

	device, err := b.adapter.Connect(d.address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.address.String(), err)
	}

	conn, err := b.setup(device, serviceID, writeID, notifyID)
	if err != nil {
		if derr := device.Disconnect(); derr != nil {
			b.log.Debug().Err(derr).Msg("disconnect after failed setup")
		}
		return nil, err
	}
	return conn, nil
}

// connectionChanged ends the notification stream of a link the peer dropped
func (b *BLE) connectionChanged(address string, connected bool) {
	if connected {
		return
	}
	b.mu.Lock()
	conn := b.conns[address]
	delete(b.conns, address)
	b.mu.Unlock()

	if conn != nil {
		b.log.Warn().Str("address", address).Msg("device disconnected")
		conn.queue.close()
	}
}

func (b *BLE) register(address string, conn *bleConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[address] = conn
}

func (b *BLE) unregister(address string, conn *bleConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conns[address] == conn {
		delete(b.conns, address)
	}
}

func (b *BLE) setup(device bluetooth.Device, serviceID, writeID, notifyID bluetooth.UUID) (*bleConn, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{serviceID})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %s not found", serviceID.String())
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{writeID, notifyID})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}

	var writeChar, notifyChar bluetooth.DeviceCharacteristic
	var haveWrite, haveNotify bool
	for _, c := range chars {
		switch c.UUID() {
		case writeID:
			writeChar, haveWrite = c, true
		case notifyID:
			notifyChar, haveNotify = c, true
		}
	}
	if !haveWrite || !haveNotify {
		return nil, fmt.Errorf("characteristics missing (write=%v notify=%v)", haveWrite, haveNotify)
	}

	conn := &bleConn{
		owner:   b,
		address: device.Address.String(),
		device:  device,
		write:   writeChar,
		queue:   newChunkQueue(b.config.QueueDepth, b.log),
		log:     b.log,
	}
	if err := notifyChar.EnableNotifications(func(buf []byte) {
		conn.queue.push(buf)
	}); err != nil {
		return nil, fmt.Errorf("enable notifications: %w", err)
	}

	b.register(conn.address, conn)
	b.log.Debug().Str("write", writeID.String()).Str("notify", notifyID.String()).Msg("notifications enabled")
	return conn, nil
}

type bleConn struct {
	owner   *BLE
	address string
	device  bluetooth.Device
	write   bluetooth.DeviceCharacteristic
	queue   *chunkQueue
	log     zerolog.Logger
}

func (c *bleConn) WriteCommand(ctx context.Context, cmd []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := c.write.WriteWithoutResponse(cmd)
	if err != nil {
		return &bms.WriteError{Command: append([]byte(nil), cmd...), Written: n, Err: err}
	}
	if n != len(cmd) {
		return &bms.WriteError{Command: append([]byte(nil), cmd...), Written: n}
	}
	return nil
}

func (c *bleConn) Notifications() <-chan []byte { return c.queue.chunks() }

func (c *bleConn) Close() error {
	c.owner.unregister(c.address, c)
	c.queue.close()
	return c.device.Disconnect()
}
