package pll

import "math"

// Coefficients are the floating point loop parameters derived from a
// Config. Frequencies and bandwidths are normalized to radians per sample.
type Coefficients struct {
	// Omega is the normalized loop bandwidth.
	Omega float64

	// Damping and the damping-normalized bandwidth used by the PI design.
	Damping     float64
	DampedOmega float64
	Alpha, Beta float64
	FreqMin     float64
	FreqMax     float64

	// Third order numerator and double integrator denominator.
	B, A [3]float64
}

// Normalize converts a frequency in Hz to radians per sample.
func Normalize(hz, sampleRate float64) float64 {
	return 2 * math.Pi * hz / sampleRate
}

// NewCoefficients derives both filter designs from cfg.
//
// PI: with w the bandwidth scaled by 1/(z + 1/(4z)) and damping z = 1/sqrt(2),
// alpha = 4zw/(1 + 2zw + w^2) and beta = 4w^2/(1 + 2zw + w^2).
//
// Third order: the prototype F(s) = b*w + c*w^2/s + w^3/s^2 is discretized
// with the bilinear transform 1/s -> (1 + 1/z)/(2(1 - 1/z)), leaving a three
// tap numerator over (1 - 1/z)^2.
func NewCoefficients(cfg Config) (c Coefficients) {
	c.Omega = Normalize(cfg.LoopBandwidth, cfg.SampleRate)
	c.FreqMin = Normalize(cfg.FreqMin, cfg.SampleRate)
	c.FreqMax = Normalize(cfg.FreqMax, cfg.SampleRate)

	c.Damping = math.Sqrt2 / 2
	c.DampedOmega = c.Omega / (c.Damping + 1/(4*c.Damping))

	w := c.DampedOmega
	denom := 1 + 2*c.Damping*w + w*w
	c.Alpha = 4 * c.Damping * w / denom
	c.Beta = 4 * w * w / denom

	b, k := cfg.Shape.B, cfg.Shape.C
	w = c.Omega
	w2, w3 := w*w, w*w*w

	c.B = [3]float64{
		b*w + k*w2/2 + w3/4,
		-2*b*w + w3/2,
		b*w - k*w2/2 + w3/4,
	}
	c.A = [3]float64{1, -2, 1}

	return c
}
