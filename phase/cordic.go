package phase

// CORDIC rotation angles atan(2^-k) for k = 0..5 in detector units.
var cordicAtan = [...]int32{8192, 4836, 2555, 1297, 651, 326}

// cordicGain is 2^16 divided by the accumulated CORDIC gain of
// len(cordicAtan) iterations.
const cordicGain = 39803

// Polar converts (i, q) to magnitude and angle with a short CORDIC. Unlike
// Detect, the angle is measured from the in-phase axis, as atan2(q, i).
// The angle is accurate to about two degrees and the magnitude to a
// fraction of a percent for inputs well above the noise floor.
func Polar(i, q int32) (mag uint32, angle int32) {
	if i == 0 && q == 0 {
		return 0, 0
	}

	x, y := int64(i), int64(q)

	// Rotate the left half plane by a quarter turn first, the iterations
	// below only converge for angles within ±99 degrees.
	if x < 0 {
		if y > 0 {
			x, y = y, -x
			angle = 2 * Octant
		} else {
			x, y = -y, x
			angle = -2 * Octant
		}
	}

	for k, step := range cordicAtan {
		tmp := x
		if y > 0 {
			x += y >> uint(k)
			y -= tmp >> uint(k)
			angle += step
		} else {
			x -= y >> uint(k)
			y += tmp >> uint(k)
			angle -= step
		}
	}

	if angle > HalfTurn {
		angle -= 2 * HalfTurn
	} else if angle <= -HalfTurn {
		angle += 2 * HalfTurn
	}

	return uint32((x * cordicGain) >> 16), angle
}
