package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// readTimeout bounds each Read; a timeout returns (0, nil) and the reader
// loops, noticing Close.
const readTimeout = 100 * time.Millisecond

// Open opens the named device at baud, 8N1.
func Open(name string, baud int) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return port, nil
}
