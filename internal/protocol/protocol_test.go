package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"escpos-service/internal/config"
	"escpos-service/internal/receipt"
)

// printerStub accepts one connection per job and reports what it received
func printerStub(t *testing.T) (*net.TCPAddr, <-chan []byte) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	jobs := make(chan []byte, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			data, _ := io.ReadAll(conn)
			conn.Close()
			jobs <- data
		}
	}()

	return ln.Addr().(*net.TCPAddr), jobs
}

func tcpPrinterConfig(addr *net.TCPAddr) *config.PrinterConfig {
	return &config.PrinterConfig{
		Enabled:        true,
		ConnectionType: "tcp",
		Timeout:        time.Second,
		TCP: config.PrinterTCPConfig{
			Host: addr.IP.String(),
			Port: addr.Port,
		},
	}
}

func TestRelayForwardTCP(t *testing.T) {
	addr, jobs := printerStub(t)

	relay, err := NewRelay(tcpPrinterConfig(addr), zap.NewNop())
	require.NoError(t, err)
	require.True(t, relay.Enabled())

	job := []byte("\x1b@HELLO\n\x1dV\x00")
	status, err := relay.Forward(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, receipt.PrinterStatusSuccess, status)

	select {
	case got := <-jobs:
		assert.Equal(t, job, got)
	case <-time.After(2 * time.Second):
		t.Fatal("printer never received the job")
	}

	stats := relay.Stats()
	assert.Equal(t, int64(1), stats.JobsForwarded)
	assert.Equal(t, int64(len(job)), stats.BytesForwarded)
	assert.Equal(t, ConnectionTypeTCP, stats.ConnectionType)
	assert.NotNil(t, stats.LastForwardAt)
}

func TestRelayForwardUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	relay, err := NewRelay(tcpPrinterConfig(addr), zap.NewNop())
	require.NoError(t, err)

	status, err := relay.Forward(context.Background(), []byte("x"))
	assert.Error(t, err)
	assert.Equal(t, receipt.PrinterStatusError, status)

	stats := relay.Stats()
	assert.Equal(t, int64(1), stats.JobsFailed)
	assert.NotEmpty(t, stats.LastError)
}

func TestRelayDisabled(t *testing.T) {
	relay, err := NewRelay(&config.PrinterConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	status, err := relay.Forward(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, receipt.PrinterStatusDisabled, status)
	assert.False(t, relay.Stats().Enabled)
}

type fakeConnection struct {
	openErr  error
	writeErr error
	written  []byte
	closed   bool
}

func (f *fakeConnection) Open(ctx context.Context) error { return f.openErr }
func (f *fakeConnection) Close() error { f.closed = true; return nil }
func (f *fakeConnection) IsOpen() bool { return !f.closed }
func (f *fakeConnection) Write(ctx context.Context, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, data...)
	return nil
}
func (f *fakeConnection) GetConnectionType() ConnectionType { return ConnectionTypeSerial }
func (f *fakeConnection) Stats() ProtocolStats { return ProtocolStats{} }
func (f *fakeConnection) Ping(ctx context.Context) error { return nil }

func TestRelayClosesAfterWriteFailure(t *testing.T) {
	conn := &fakeConnection{writeErr: errors.New("paper out")}
	relay := NewRelayWithFactory(true, ConnectionTypeSerial, func() (PrinterConnection, error) {
		return conn, nil
	}, 0, zap.NewNop())

	status, err := relay.Forward(context.Background(), []byte("abc"))
	assert.ErrorContains(t, err, "paper out")
	assert.Equal(t, receipt.PrinterStatusError, status)
	assert.True(t, conn.closed)
}

func TestRelayEmptyJobOnlyOpens(t *testing.T) {
	conn := &fakeConnection{}
	relay := NewRelayWithFactory(true, ConnectionTypeSerial, func() (PrinterConnection, error) {
		return conn, nil
	}, 0, zap.NewNop())

	status, err := relay.Forward(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, receipt.PrinterStatusSuccess, status)
	assert.Empty(t, conn.written)
	assert.True(t, conn.closed)
}

func TestTCPConnectionLifecycle(t *testing.T) {
	addr, jobs := printerStub(t)

	conn := NewTCPConnection(&TCPConfig{Host: addr.IP.String(), Port: addr.Port, Timeout: time.Second}, zap.NewNop())
	assert.False(t, conn.IsOpen())
	assert.Error(t, conn.Write(context.Background(), []byte("x")))
	assert.Error(t, conn.Ping(context.Background()))

	require.NoError(t, conn.Open(context.Background()))
	require.NoError(t, conn.Open(context.Background()))
	assert.True(t, conn.IsOpen())
	assert.Equal(t, ConnectionTypeTCP, conn.GetConnectionType())

	require.NoError(t, conn.Ping(context.Background()))
	require.NoError(t, conn.Write(context.Background(), []byte("ok")))

	stats := conn.Stats()
	assert.Equal(t, int64(2), stats.OperationCount)
	assert.Equal(t, int64(5), stats.BytesWritten)
	assert.True(t, stats.IsConnected)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsOpen())

	assert.Equal(t, []byte{0x10, 0x04, 0x01, 'o', 'k'}, <-jobs)
}

func TestCreateConnection(t *testing.T) {
	logger := zap.NewNop()

	conn, err := CreateConnection(&config.PrinterConfig{
		ConnectionType: "TCP",
		TCP:            config.PrinterTCPConfig{Host: "printer.local", Port: 9100},
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, ConnectionTypeTCP, conn.GetConnectionType())

	conn, err = CreateConnection(&config.PrinterConfig{
		ConnectionType: "serial",
		Serial:         config.SerialPortConfig{Port: "/dev/ttyUSB0", BaudRate: 19200, DataBits: 8, StopBits: 1},
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, ConnectionTypeSerial, conn.GetConnectionType())

	conn, err = CreateConnection(&config.PrinterConfig{
		ConnectionType: "USB",
		USB:            config.PrinterUSBConfig{VendorID: "0x04b8", ProductID: "0202", Endpoint: 1},
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, ConnectionTypeUSB, conn.GetConnectionType())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.PrinterConfig
		wantErr string
	}{
		{"missing host", config.PrinterConfig{ConnectionType: "TCP", TCP: config.PrinterTCPConfig{Port: 9100}}, "host is required"},
		{"bad port", config.PrinterConfig{ConnectionType: "TCP", TCP: config.PrinterTCPConfig{Host: "h", Port: 70000}}, "invalid port"},
		{"missing serial port", config.PrinterConfig{ConnectionType: "SERIAL"}, "serial port is required"},
		{"bad baud rate", config.PrinterConfig{ConnectionType: "SERIAL", Serial: config.SerialPortConfig{Port: "COM1", BaudRate: 1234}}, "invalid baud rate"},
		{"bad vendor", config.PrinterConfig{ConnectionType: "USB", USB: config.PrinterUSBConfig{VendorID: "zz", ProductID: "1"}}, "vendor_id"},
		{"bluetooth", config.PrinterConfig{ConnectionType: "BLUETOOTH"}, "unsupported connection type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(&tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseUSBID(t *testing.T) {
	id, err := ParseUSBID("0x04B8")
	require.NoError(t, err)
	assert.Equal(t, gousb.ID(0x04b8), id)

	id, err = ParseUSBID(" 0519 ")
	require.NoError(t, err)
	assert.Equal(t, gousb.ID(0x0519), id)

	_, err = ParseUSBID("0x10000")
	assert.Error(t, err)

	name, ok := VendorName(0x04b8)
	assert.True(t, ok)
	assert.Contains(t, name, "Epson")
}

func TestSerialMode(t *testing.T) {
	mode := serialMode(&SerialConfig{BaudRate: 38400, DataBits: 7, StopBits: 2, Parity: "even"})
	assert.Equal(t, 38400, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)

	mode = serialMode(&SerialConfig{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "bogus"})
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}
