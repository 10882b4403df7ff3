//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealInput reads the button from the Linux GPIO character device.
type RealInput struct {
	line *gpiocdev.Line
}

// NewRealInput requests pin on chip as an input with pull-up, so an open
// button reads High and a closed button pulls the line Low.
func NewRealInput(chip string, pin int) (*RealInput, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", pin, err)
	}
	return &RealInput{line: line}, nil
}

// Read returns the raw line level.
func (r *RealInput) Read() (Level, error) {
	v, err := r.line.Value()
	if err != nil {
		return High, fmt.Errorf("read button pin: %w", err)
	}
	return Level(v != 0), nil
}

// Close reconfigures the pin with pull-down (the Pi boot default) and releases it.
func (r *RealInput) Close() error {
	var errs []error
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure button pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close button pin: %w", err))
	}
	return errors.Join(errs...)
}

// RealOutput drives the relay through the Linux GPIO character device.
type RealOutput struct {
	line *gpiocdev.Line
	idle Level
}

// NewRealOutput requests pin on chip as an output starting at idle.
func NewRealOutput(chip string, pin int, idle Level) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(levelValue(idle)))
	if err != nil {
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}
	return &RealOutput{line: line, idle: idle}, nil
}

// Set drives the relay line.
func (r *RealOutput) Set(level Level) error {
	if err := r.line.SetValue(levelValue(level)); err != nil {
		return fmt.Errorf("set relay pin: %w", err)
	}
	return nil
}

// Close drives the relay to its idle level before releasing the line so a
// shutdown mid-pulse never leaves the relay energised.
func (r *RealOutput) Close() error {
	var errs []error
	if err := r.line.SetValue(levelValue(r.idle)); err != nil {
		errs = append(errs, fmt.Errorf("idle relay pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay pin: %w", err))
	}
	return errors.Join(errs...)
}

func levelValue(l Level) int {
	if l {
		return 1
	}
	return 0
}
