// Package indicator
package indicator

import "errors"

// ErrInsufficientData is returned when a series is too short for the
// requested period. Callers are expected to degrade (hold) rather than crash.
var ErrInsufficientData = errors.New("insufficient data for indicator calculation")
