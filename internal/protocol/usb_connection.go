// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"escpos-service/internal/escpos"
)

// USBConnection implements PrinterConnection for USB printers
type USBConnection struct {
	config   *USBConfig
	ctx      *gousb.Context
	device   *gousb.Device
	cfg      *gousb.Config
	intf     *gousb.Interface
	outEndpt *gousb.OutEndpoint
	logger   *zap.Logger
	mutex    sync.RWMutex
	isOpen   bool
	stats    ProtocolStats
}

// NewUSBConnection creates a new USB connection
func NewUSBConnection(config *USBConfig, logger *zap.Logger) *USBConnection {
	return &USBConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "usb"),
			zap.String("vendor_id", config.VendorID),
			zap.String("product_id", config.ProductID),
		),
	}
}

// Open claims the printer interface and its bulk OUT endpoint
func (uc *USBConnection) Open(ctx context.Context) error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.isOpen {
		return nil
	}

	vendorID, err := ParseUSBID(uc.config.VendorID)
	if err != nil {
		return fmt.Errorf("invalid vendor ID: %w", err)
	}

	productID, err := ParseUSBID(uc.config.ProductID)
	if err != nil {
		return fmt.Errorf("invalid product ID: %w", err)
	}

	uc.logger.Debug("Opening USB connection", zap.Int("interface", uc.config.Interface))

	usbCtx := gousb.NewContext()

	device, err := usbCtx.OpenDeviceWithVIDPID(vendorID, productID)
	if err != nil {
		usbCtx.Close()
		uc.stats.ErrorCount++
		return fmt.Errorf("failed to open USB device: %w", err)
	}
	if device == nil {
		usbCtx.Close()
		uc.stats.ErrorCount++
		return fmt.Errorf("USB device not found (VID: %04X, PID: %04X)", uint16(vendorID), uint16(productID))
	}

	// printers are commonly claimed by usblp
	if err := device.SetAutoDetach(true); err != nil {
		uc.logger.Warn("Failed to enable kernel driver auto-detach", zap.Error(err))
	}

	cfgNum, err := device.ActiveConfigNum()
	if err != nil {
		device.Close()
		usbCtx.Close()
		return fmt.Errorf("failed to read active configuration: %w", err)
	}

	cfg, err := device.Config(cfgNum)
	if err != nil {
		device.Close()
		usbCtx.Close()
		return fmt.Errorf("failed to select configuration: %w", err)
	}

	intf, err := cfg.Interface(uc.config.Interface, 0)
	if err != nil {
		cfg.Close()
		device.Close()
		usbCtx.Close()
		return fmt.Errorf("failed to claim interface: %w", err)
	}

	outEndpt, err := intf.OutEndpoint(uc.config.Endpoint)
	if err != nil {
		intf.Close()
		cfg.Close()
		device.Close()
		usbCtx.Close()
		return fmt.Errorf("failed to get out endpoint: %w", err)
	}

	uc.ctx = usbCtx
	uc.device = device
	uc.cfg = cfg
	uc.intf = intf
	uc.outEndpt = outEndpt
	uc.isOpen = true
	uc.stats.IsConnected = true
	uc.stats.LastActivity = time.Now()

	uc.logger.Debug("USB connection opened")
	return nil
}

// Close releases the interface and the device
func (uc *USBConnection) Close() error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if !uc.isOpen {
		return nil
	}

	if uc.intf != nil {
		uc.intf.Close()
		uc.intf = nil
	}

	var err error
	if uc.cfg != nil {
		err = uc.cfg.Close()
		uc.cfg = nil
	}

	if uc.device != nil {
		if cerr := uc.device.Close(); err == nil {
			err = cerr
		}
		uc.device = nil
	}

	if uc.ctx != nil {
		uc.ctx.Close()
		uc.ctx = nil
	}

	uc.outEndpt = nil
	uc.isOpen = false
	uc.stats.IsConnected = false

	if err != nil {
		return fmt.Errorf("failed to close USB device: %w", err)
	}

	uc.logger.Debug("USB connection closed")
	return nil
}

// IsOpen returns whether the connection is open
func (uc *USBConnection) IsOpen() bool {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.isOpen && uc.device != nil && uc.outEndpt != nil
}

// Write sends data to the bulk OUT endpoint in chunks
func (uc *USBConnection) Write(ctx context.Context, data []byte) error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if !uc.isOpen || uc.outEndpt == nil {
		return fmt.Errorf("USB connection not open")
	}

	chunkSize := uc.config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = len(data)
	}

	startTime := time.Now()
	written := 0
	for written < len(data) {
		end := min(written+chunkSize, len(data))

		n, err := uc.outEndpt.WriteContext(ctx, data[written:end])
		written += n
		if err != nil {
			uc.stats.ErrorCount++
			uc.logger.Error("USB write failed", zap.Error(err), zap.Int("written", written))
			return fmt.Errorf("failed to write to USB device: %w", err)
		}
	}

	uc.stats.record(written, time.Since(startTime))
	uc.logger.Debug("USB write completed", zap.Int("bytes", written))
	return nil
}

// GetConnectionType returns the connection type
func (uc *USBConnection) GetConnectionType() ConnectionType {
	return ConnectionTypeUSB
}

// Stats returns a snapshot of the connection statistics
func (uc *USBConnection) Stats() ProtocolStats {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.stats
}

// Ping sends a realtime status request
func (uc *USBConnection) Ping(ctx context.Context) error {
	if !uc.IsOpen() {
		return fmt.Errorf("USB connection not open")
	}
	return uc.Write(ctx, escpos.StatusRequest)
}

// ParseUSBID parses a hex vendor or product ID (0x04b8 or 04b8)
func ParseUSBID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hexStr)), "0x")

	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}

	return gousb.ID(id), nil
}
