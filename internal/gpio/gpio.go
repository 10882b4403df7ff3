// Package gpio provides the button input and relay output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Level is a raw digital line level.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Input reads a digital input line.
type Input interface {
	// Read returns the raw line level. The button is pulled up, so an
	// idle button reads High and a pressed button reads Low.
	Read() (Level, error)

	// Close releases GPIO resources.
	Close() error
}

// Output drives a digital output line.
type Output interface {
	// Set drives the line to the given level.
	Set(level Level) error

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinButton = 17
	DefaultPinRelay  = 27
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"
