// Package hardware abstracts challenge-response devices used as a master
// key component.
//
// Detection is asynchronous: Detect returns immediately and reports on a
// channel, so callers never block an interactive path while a device
// initialises. Detectors are injected into key editing sessions rather than
// looked up through process-wide state.
package hardware

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotDetected = errors.New("no challenge-response device detected")
	ErrInvalidSlot = errors.New("invalid challenge-response slot")
)

// Slot identifies one configured challenge-response slot on a device
type Slot struct {
	Number   int
	Blocking bool // device waits for user interaction before answering
	Name     string
}

// String formats the slot as shown to users
func (s Slot) String() string {
	if s.Blocking {
		return fmt.Sprintf("%s [slot %d, press to confirm]", s.Name, s.Number)
	}
	return fmt.Sprintf("%s [slot %d]", s.Name, s.Number)
}

// DetectResult is delivered once per Detect call
type DetectResult struct {
	Slots []Slot
	Err   error
}

// Detector finds challenge-response capable devices
type Detector interface {
	Detect(ctx context.Context) <-chan DetectResult
}

// Device answers challenges for a configured slot
type Device interface {
	Challenge(ctx context.Context, slot int, challenge []byte) ([]byte, error)
}

// DetectorDevice is both a Detector and a Device
type DetectorDevice interface {
	Detector
	Device
}
