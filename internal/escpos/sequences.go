// internal/escpos/sequences.go
package escpos

// StatusRequest is DLE EOT 1, the real-time printer status query. Printers
// answer it even mid-job, so it doubles as a connection check.
var StatusRequest = []byte{DLE, 0x04, 0x01}
