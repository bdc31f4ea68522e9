// Package serialport binds the XMODEM core's Transport interface
// (internal/xmodem.Transport) to a real OS serial port via
// github.com/tarm/serial.
package serialport

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial down to the read/write/close surface the
// transport needs, so tests can substitute a fake without a real device.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens name at baud with a fixed ReadTimeout. tarm/serial fixes its
// read timeout at open time; Transport reconciles this with XMODEM's
// per-call variable timeout requirement by polling in short quanta (see
// transport.go).
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
