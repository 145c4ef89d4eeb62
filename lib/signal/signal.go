// Package signal models the behavior telemetry a widget reports alongside
// a solution: pointer trajectory samples plus a handful of interaction
// timings. Two wire shapes exist in the field; both decode into the same
// structured form and everything downstream branches on nothing but the
// struct.
package signal

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownVersion = errors.New("signal: unknown behavior signal version")
	ErrBadLegacyShape = errors.New("signal: legacy array has wrong shape")
)

// Version tags the wire shape a behavior signal arrived in.
const (
	// VersionLegacy is the flat numeric array the first widget generation
	// sent: [clickLatency, hoverDuration, pointerVelocity, scrollVelocity,
	// t0, x0, y0, t1, x1, y1, ...].
	VersionLegacy = 1

	// VersionStructured is the current object shape.
	VersionStructured = 2
)

// Sample is one pointer trajectory observation. T is milliseconds since
// the widget loaded.
type Sample struct {
	T float64 `json:"t"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Behavior is the normalized behavior signal. A nil *Behavior means the
// client sent no telemetry at all, which scorers treat as evidence of
// automation rather than as missing data.
type Behavior struct {
	Version         int      `json:"version"`
	Trajectory      []Sample `json:"trajectory"`
	ClickLatency    float64  `json:"clickLatency"`    // ms from render to first click
	HoverDuration   float64  `json:"hoverDuration"`   // ms spent hovering candidates
	PointerVelocity float64  `json:"pointerVelocity"` // mean px/s
	ScrollVelocity  float64  `json:"scrollVelocity"`  // mean px/s
}

// Parse decodes a raw behavior signal. It accepts the structured object,
// the legacy flat array, JSON null, or nothing; the latter two produce a
// nil Behavior. Anything else is a validation error.
func Parse(raw json.RawMessage) (*Behavior, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	switch raw[0] {
	case 'n': // null
		return nil, nil
	case '[':
		return parseLegacy(raw)
	case '{':
		var result Behavior
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("signal: can't decode structured signal: %w", err)
		}

		if result.Version == 0 {
			result.Version = VersionStructured
		}

		if result.Version != VersionStructured {
			return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, result.Version)
		}

		return &result, nil
	default:
		return nil, fmt.Errorf("%w: leading byte %q", ErrBadLegacyShape, raw[0])
	}
}

func parseLegacy(raw json.RawMessage) (*Behavior, error) {
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("signal: can't decode legacy signal: %w", err)
	}

	if len(values) == 0 {
		return nil, nil
	}

	if len(values) < 4 || (len(values)-4)%3 != 0 {
		return nil, fmt.Errorf("%w: %d values", ErrBadLegacyShape, len(values))
	}

	result := &Behavior{
		Version:         VersionLegacy,
		ClickLatency:    values[0],
		HoverDuration:   values[1],
		PointerVelocity: values[2],
		ScrollVelocity:  values[3],
	}

	for i := 4; i < len(values); i += 3 {
		result.Trajectory = append(result.Trajectory, Sample{
			T: values[i],
			X: values[i+1],
			Y: values[i+2],
		})
	}

	return result, nil
}
