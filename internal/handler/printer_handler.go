// internal/handler/printer_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escpos-service/internal/protocol"
	"escpos-service/internal/utils"
)

// RelayStatus reports the state of the printer relay
type RelayStatus interface {
	Stats() protocol.RelayStats
}

// PrinterHandler handles printer relay and port discovery requests
type PrinterHandler struct {
	relay       RelayStatus
	serialPorts func() ([]protocol.SerialPort, error)
	usbPrinters func(*zap.Logger) ([]protocol.USBPrinter, error)
	logger      *utils.ServiceLogger
}

// NewPrinterHandler creates a new printer handler
func NewPrinterHandler(relay RelayStatus, logger *zap.Logger) *PrinterHandler {
	return &PrinterHandler{
		relay:       relay,
		serialPorts: protocol.ListSerialPorts,
		usbPrinters: protocol.ListUSBPrinters,
		logger:      utils.NewServiceLogger(logger, "printer-handler"),
	}
}

// RegisterRoutes registers printer routes
func (h *PrinterHandler) RegisterRoutes(router *gin.RouterGroup) {
	printer := router.Group("/printer")
	{
		printer.GET("/status", h.GetStatus)
		printer.GET("/ports", h.ListPorts)
	}
}

// GetStatus returns relay statistics
// @Summary Printer relay status
// @Description Get the downstream printer relay configuration and counters
// @Tags Printer
// @Produce json
// @Success 200 {object} utils.APIResponse{data=protocol.RelayStats} "Relay status"
// @Router /printer/status [get]
func (h *PrinterHandler) GetStatus(c *gin.Context) {
	if h.relay == nil {
		utils.SuccessResponse(c, http.StatusOK, "Printer relay disabled", protocol.RelayStats{})
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Printer relay status", h.relay.Stats())
}

// PortList is the port discovery response
type PortList struct {
	SerialPorts []protocol.SerialPort `json:"serial_ports"`
	USBPrinters []protocol.USBPrinter `json:"usb_printers"`
	Errors      map[string]string     `json:"errors,omitempty"`
}

// ListPorts lists serial ports and USB printers the relay could use
// @Summary List printer ports
// @Description List serial ports and attached USB printers for relay configuration
// @Tags Printer
// @Produce json
// @Param type query string false "Port type" Enums(all, serial, usb) default(all)
// @Success 200 {object} utils.APIResponse{data=PortList} "Ports listed"
// @Failure 400 {object} utils.APIResponse "Invalid port type"
// @Failure 500 {object} utils.APIResponse "Port enumeration failed"
// @Router /printer/ports [get]
func (h *PrinterHandler) ListPorts(c *gin.Context) {
	scanType := c.DefaultQuery("type", "all")
	if scanType != "all" && scanType != "serial" && scanType != "usb" {
		utils.ValidationErrorResponse(c, map[string]string{"type": "must be one of all, serial, usb"})
		return
	}

	result := PortList{
		SerialPorts: []protocol.SerialPort{},
		USBPrinters: []protocol.USBPrinter{},
		Errors:      make(map[string]string),
	}

	if scanType != "usb" {
		ports, err := h.serialPorts()
		if err != nil {
			h.logger.Warn("Serial port enumeration failed", zap.Error(err))
			result.Errors["serial"] = err.Error()
		} else if ports != nil {
			result.SerialPorts = ports
		}
	}

	if scanType != "serial" {
		printers, err := h.usbPrinters(h.logger.Logger)
		if err != nil {
			h.logger.Warn("USB enumeration failed", zap.Error(err))
			result.Errors["usb"] = err.Error()
		} else if printers != nil {
			result.USBPrinters = printers
		}
	}

	expected := 2
	if scanType != "all" {
		expected = 1
	}
	if len(result.Errors) == expected {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Port enumeration failed", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Ports listed", result)
}
