package pll

// State is everything a fixed point loop carries from one sample to the
// next. A State belongs to exactly one loop and must not be shared between
// goroutines.
type State struct {
	// Phase accumulator in (-TwoPi, TwoPi].
	Phase int32

	// Freq is the filter's frequency estimate, always within
	// [FreqMin, FreqMax].
	Freq int32

	// Third order filter delay line and the fraction carried between
	// samples.
	X1, X2  int64
	Y1, Y2  int64
	Residue int64
}

// FloatState is the floating point counterpart of State.
type FloatState struct {
	Phase, Freq float64
	X1, X2      float64
	Y1, Y2      float64
}
