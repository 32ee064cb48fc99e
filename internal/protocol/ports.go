// internal/protocol/ports.go
package protocol

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/gousb"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// usbClassPrinter is the USB interface class for printers
const usbClassPrinter = gousb.ClassPrinter

// knownVendors maps receipt printer vendor IDs to names
var knownVendors = map[gousb.ID]string{
	0x04B8: "Seiko Epson Corporation",
	0x0519: "Star Micronics",
	0x1CBE: "Citizen Systems",
	0x1504: "Bixolon",
	0x0DD4: "Custom Engineering",
	0x0FE6: "Xprinter",
	0x28E9: "GD32 (generic POS)",
}

// VendorName returns the known vendor name for a USB vendor ID
func VendorName(id gousb.ID) (string, bool) {
	name, ok := knownVendors[id]
	return name, ok
}

// SerialPort describes a serial port available to the relay
type SerialPort struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VendorID     string `json:"vendor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
	Vendor       string `json:"vendor,omitempty"`
}

// USBPrinter describes an attached USB device that looks like a printer
type USBPrinter struct {
	VendorID  string `json:"vendor_id"`
	ProductID string `json:"product_id"`
	Bus       int    `json:"bus"`
	Address   int    `json:"address"`
	Vendor    string `json:"vendor,omitempty"`
	Class     string `json:"class"`
}

// ListSerialPorts lists serial ports, with USB details when the platform
// enumerator provides them.
func ListSerialPorts() ([]SerialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]SerialPort, 0, len(details))
		for _, d := range details {
			port := SerialPort{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			}
			if d.IsUSB {
				port.VendorID = strings.ToLower(d.VID)
				port.ProductID = strings.ToLower(d.PID)
				if id, perr := ParseUSBID(d.VID); perr == nil {
					port.Vendor, _ = VendorName(id)
				}
			}
			ports = append(ports, port)
		}
		sortPorts(ports)
		return ports, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	ports := make([]SerialPort, 0, len(names))
	for _, name := range names {
		ports = append(ports, SerialPort{Name: name})
	}
	sortPorts(ports)
	return ports, nil
}

func sortPorts(ports []SerialPort) {
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
}

// ListUSBPrinters enumerates USB devices with a printer interface or a
// known receipt printer vendor. Devices are not opened.
func ListUSBPrinters(logger *zap.Logger) ([]USBPrinter, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var printers []USBPrinter
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		vendor, known := VendorName(desc.Vendor)
		if known || isPrinterClass(desc) {
			printers = append(printers, USBPrinter{
				VendorID:  fmt.Sprintf("0x%04x", uint16(desc.Vendor)),
				ProductID: fmt.Sprintf("0x%04x", uint16(desc.Product)),
				Bus:       desc.Bus,
				Address:   desc.Address,
				Vendor:    vendor,
				Class:     desc.Class.String(),
			})
		}
		return false
	})
	for _, d := range devices {
		d.Close()
	}
	if err != nil {
		// enumeration errors on individual devices still yield partial results
		logger.Warn("USB enumeration reported errors", zap.Error(err))
		if len(printers) == 0 {
			return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
		}
	}

	return printers, nil
}

func isPrinterClass(desc *gousb.DeviceDesc) bool {
	if desc.Class == usbClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == usbClassPrinter {
					return true
				}
			}
		}
	}
	return false
}
