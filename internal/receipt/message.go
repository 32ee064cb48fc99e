// internal/receipt/message.go
package receipt

import (
	"github.com/shopspring/decimal"
)

// DecoderStatus summarizes how well a stream was understood
type DecoderStatus string

const (
	DecoderStatusUnknown DecoderStatus = "unknown"
	DecoderStatusSuccess DecoderStatus = "success"
	DecoderStatusWarning DecoderStatus = "warning"
	DecoderStatusError   DecoderStatus = "error"
)

// PrinterStatus reports the outcome of relaying a stream to the printer
type PrinterStatus string

const (
	PrinterStatusUnknown  PrinterStatus = "unknown"
	PrinterStatusSuccess  PrinterStatus = "success"
	PrinterStatusError    PrinterStatus = "error"
	PrinterStatusDisabled PrinterStatus = "disabled"
)

// Message is the JSON document emitted for every captured print job
type Message struct {
	DecoderStatus  DecoderStatus  `json:"decoder_status"`
	PrinterStatus  PrinterStatus  `json:"printer_status"`
	ReceiptContent ReceiptContent `json:"receipt_content"`
}

// ReceiptContent holds the printable part of a message
type ReceiptContent struct {
	Lines []string         `json:"lines"`
	Total *decimal.Decimal `json:"total,omitempty"`
}

// StatusOf derives the decoder status from a receipt and a decoder error
func StatusOf(r *Receipt, decodeErr error) DecoderStatus {
	switch {
	case decodeErr != nil:
		return DecoderStatusError
	case r == nil:
		return DecoderStatusUnknown
	case !r.Clean():
		return DecoderStatusWarning
	default:
		return DecoderStatusSuccess
	}
}

// NewMessage builds the message for a finished job
func NewMessage(r *Receipt, decodeErr error, printer PrinterStatus) Message {
	msg := Message{
		DecoderStatus: StatusOf(r, decodeErr),
		PrinterStatus: printer,
		ReceiptContent: ReceiptContent{
			Lines: []string{},
		},
	}
	if msg.PrinterStatus == "" {
		msg.PrinterStatus = PrinterStatusUnknown
	}
	if r != nil {
		msg.ReceiptContent.Lines = r.Lines
		msg.ReceiptContent.Total = r.Total
	}
	return msg
}
