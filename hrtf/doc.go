// Package hrtf provides immutable head-related impulse response datasets
// indexed by direction.
//
// A Dataset stores one impulse response pair (left/right ear) per point of
// a regular azimuth/elevation grid. Lookups interpolate bilinearly between
// the four surrounding measured directions, wrap azimuth modulo 360 and
// clamp elevation to the grid limits, so a lookup never fails for finite
// input. Datasets are read-only after construction and safe for concurrent
// lookups without locking.
//
// Azimuth is in degrees, increasing clockwise seen from above (+90 is to
// the listener's right). Elevation is in degrees, positive above the
// horizontal plane.
package hrtf
