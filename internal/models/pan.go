package models

import "math"

// scalarTolerance is how close to zero a channel scalar must be to count as silent.
const scalarTolerance = 1e-5

// ClampVolume clamps a UI volume to [0, 100].
func ClampVolume(v float64) float64 {
	return clamp(v, MinVolume, MaxVolume)
}

// ClampPan clamps a pan value to [-100, 100].
func ClampPan(p float64) float64 {
	return clamp(p, MinPan, MaxPan)
}

// VolumeToScalar converts a UI volume [0, 100] to an OS scalar [0.0, 1.0].
func VolumeToScalar(v float64) float64 {
	return clamp(v/100.0, 0.0, 1.0)
}

// ScalarToVolume converts an OS scalar [0.0, 1.0] to a rounded UI volume.
func ScalarToVolume(s float64) float64 {
	return ClampVolume(math.Round(s * 100.0))
}

// PanToScalars converts a pan value to left/right channel gain scalars.
// The louder side always stays at 1.0.
func PanToScalars(pan float64) (left, right float64) {
	pan = ClampPan(pan)
	if pan <= 0 {
		return 1.0, (pan + 100.0) / 100.0
	}
	return (100.0 - pan) / 100.0, 1.0
}

// ScalarsToPan converts left/right channel scalars back to a pan value.
func ScalarsToPan(left, right float64) float64 {
	leftZero := math.Abs(left) < scalarTolerance
	rightZero := math.Abs(right) < scalarTolerance
	switch {
	case leftZero && rightZero:
		return 0
	case leftZero:
		return MaxPan
	case rightZero:
		return MinPan
	}

	var pan float64
	if left >= right {
		pan = -100.0 * (1.0 - right/left)
	} else {
		pan = 100.0 * (1.0 - left/right)
	}
	return ClampPan(pan)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
