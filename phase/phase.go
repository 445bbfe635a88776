// RTLAMSYNC - A synchronous AM demodulator for rtl-sdr receivers.
// Copyright (C) 2016 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package phase estimates the angle of a complex sample using only integer
// arithmetic.
//
// Angles are 16-bit turns: a full turn spans [-32768, 32768], so one unit is
// pi/32768 radians.
package phase

import "math"

const (
	// Bits is the word width of a detected angle.
	Bits = 16

	// HalfTurn is pi in detector units.
	HalfTurn = 1 << (Bits - 1)

	// Octant is pi/4 in detector units. The rational detector folds each
	// half plane about Octant and 3*Octant.
	Octant = HalfTurn >> 2

	// Shift scales the rational term so it spans [-Octant, Octant].
	Shift = 13

	// MaxErrorDegrees bounds the rational detector's deviation from the
	// true angle anywhere on the circle except the origin.
	MaxErrorDegrees = 4.1
)

// Detect approximates the four-quadrant angle of (i, q) measured from the
// quadrature axis towards the in-phase axis, so Detect(0, q) is 0 for q > 0
// and Detect(i, 0) is 2*Octant (pi/2) for i > 0. The zero vector is defined to
// have angle zero.
//
// The approximation is exact on the axes and diagonals and is off by at
// most MaxErrorDegrees in between. One integer division, no trigonometry.
func Detect(i, q int32) int32 {
	if i == 0 && q == 0 {
		return 0
	}

	absI := int64(i)
	if absI < 0 {
		absI = -absI
	}
	q64 := int64(q)

	var angle int64
	if q64 >= 0 {
		r := ((q64 - absI) << Shift) / (q64 + absI)
		angle = Octant - r
	} else {
		r := ((q64 + absI) << Shift) / (absI - q64)
		angle = 3*Octant - r
	}

	if i < 0 {
		return int32(-angle)
	}
	return int32(angle)
}

// Radians converts a detector angle to radians.
func Radians(angle int32) float64 {
	return float64(angle) * math.Pi / HalfTurn
}

// FromRadians converts radians in [-pi, pi] to detector units, rounding to
// nearest.
func FromRadians(rad float64) int32 {
	return int32(math.Round(rad * HalfTurn / math.Pi))
}
