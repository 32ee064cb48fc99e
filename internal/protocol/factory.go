// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"escpos-service/internal/config"
)

var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// CreateConnection creates a printer connection from the printer configuration
func CreateConnection(cfg *config.PrinterConfig, logger *zap.Logger) (PrinterConnection, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	switch ParseConnectionType(cfg.ConnectionType) {
	case ConnectionTypeTCP:
		logger.Info("Creating TCP printer connection",
			zap.String("host", cfg.TCP.Host),
			zap.Int("port", cfg.TCP.Port),
		)
		return NewTCPConnection(&TCPConfig{
			Host:         cfg.TCP.Host,
			Port:         cfg.TCP.Port,
			KeepAlive:    cfg.TCP.KeepAlive,
			Timeout:      timeout,
			WriteTimeout: timeout,
		}, logger), nil

	case ConnectionTypeSerial:
		logger.Info("Creating serial printer connection",
			zap.String("port", cfg.Serial.Port),
			zap.Int("baud_rate", cfg.Serial.BaudRate),
		)
		return NewSerialConnection(&SerialConfig{
			Port:     cfg.Serial.Port,
			BaudRate: cfg.Serial.BaudRate,
			DataBits: cfg.Serial.DataBits,
			StopBits: cfg.Serial.StopBits,
			Parity:   cfg.Serial.Parity,
			Timeout:  timeout,
		}, logger), nil

	case ConnectionTypeUSB:
		logger.Info("Creating USB printer connection",
			zap.String("vendor_id", cfg.USB.VendorID),
			zap.String("product_id", cfg.USB.ProductID),
			zap.Int("interface", cfg.USB.Interface),
		)
		return NewUSBConnection(&USBConfig{
			VendorID:  cfg.USB.VendorID,
			ProductID: cfg.USB.ProductID,
			Interface: cfg.USB.Interface,
			Endpoint:  cfg.USB.Endpoint,
			ChunkSize: cfg.USB.BulkTransferSize,
			Timeout:   timeout,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unsupported connection type: %s", cfg.ConnectionType)
	}
}

// ValidateConfig validates the printer configuration for its connection type
func ValidateConfig(cfg *config.PrinterConfig) error {
	switch ParseConnectionType(cfg.ConnectionType) {
	case ConnectionTypeTCP:
		if cfg.TCP.Host == "" {
			return fmt.Errorf("TCP host is required")
		}
		if cfg.TCP.Port < 1 || cfg.TCP.Port > 65535 {
			return fmt.Errorf("invalid port number: %d", cfg.TCP.Port)
		}

	case ConnectionTypeSerial:
		if cfg.Serial.Port == "" {
			return fmt.Errorf("serial port is required")
		}
		if !slices.Contains(validBaudRates, cfg.Serial.BaudRate) {
			return fmt.Errorf("invalid baud rate: %d", cfg.Serial.BaudRate)
		}

	case ConnectionTypeUSB:
		if _, err := ParseUSBID(cfg.USB.VendorID); err != nil {
			return fmt.Errorf("invalid USB vendor_id %q: %w", cfg.USB.VendorID, err)
		}
		if _, err := ParseUSBID(cfg.USB.ProductID); err != nil {
			return fmt.Errorf("invalid USB product_id %q: %w", cfg.USB.ProductID, err)
		}

	default:
		return fmt.Errorf("unsupported connection type: %s", cfg.ConnectionType)
	}

	return nil
}
