package pll

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRegisterFilterPanics(t *testing.T) {
	design := FilterDesign{
		Fixed: func(c *Constants) LoopFilter { return NewPIFilter(c) },
		Float: func(c *Coefficients) FloatFilter { return NewFloatPIFilter(c) },
	}

	assert.Panics(t, func() { RegisterFilter("pi", design) })
	assert.Panics(t, func() { RegisterFilter("nil-fixed", FilterDesign{Float: design.Float}) })
	assert.Panics(t, func() { RegisterFilter("nil-float", FilterDesign{Fixed: design.Fixed}) })
}

// holdFilter never corrects, so the oscillator stays put.
type holdFilter struct{}

func (holdFilter) Reset(s *State)                    { *s = State{} }
func (holdFilter) Correct(s *State, err int32) int32 { return 0 }

type floatHoldFilter struct{}

func (floatHoldFilter) Reset(s *FloatState)                      { *s = FloatState{} }
func (floatHoldFilter) Correct(s *FloatState, err float64) float64 { return 0 }

func init() {
	RegisterFilter("hold", FilterDesign{
		Fixed: func(*Constants) LoopFilter { return holdFilter{} },
		Float: func(*Coefficients) FloatFilter { return floatHoldFilter{} },
	})
}

func TestRegisterFilter(t *testing.T) {
	assert.Contains(t, Filters(), "hold")

	cfg := DefaultConfig()
	cfg.Filter = "hold"
	l := newLoop(t, cfg)

	// With the oscillator held at zero the error is the input's angle.
	r := l.Step(Sample{I: 0, Q: l.One})
	assert.Equal(t, int32(0), r.Err)
	r = l.Step(Sample{I: l.One, Q: 0})
	assert.InDelta(t, -float64(l.Pi)/2, float64(r.Err), 2)
	assert.Equal(t, int32(0), l.Phase)
}

func TestFiltersSorted(t *testing.T) {
	names := Filters()
	require.NotEmpty(t, names)
	assert.IsIncreasing(t, names)
	assert.Subset(t, names, []string{"pi", "iir3"})
}

func TestPIFilter(t *testing.T) {
	f := PIFilter{Alpha: 433, Beta: 24, FreqMin: -100, FreqMax: 200, FracBits: 12}

	var s State
	f.Reset(&s)
	assert.Equal(t, int32(50), s.Freq)

	// Integrate first, then add the proportional term to the new estimate.
	got := f.Correct(&s, 4096)
	assert.Equal(t, int32(50+24), s.Freq)
	assert.Equal(t, int32(50+24+433), got)

	for idx := 0; idx < 100; idx++ {
		f.Correct(&s, 1<<14)
	}
	assert.Equal(t, f.FreqMax, s.Freq)

	for idx := 0; idx < 100; idx++ {
		f.Correct(&s, -1<<14)
	}
	assert.Equal(t, f.FreqMin, s.Freq)
}

func TestPIFilterNegativeShift(t *testing.T) {
	f := PIFilter{Alpha: 1, Beta: 1, FreqMin: -10, FreqMax: 10, FracBits: 12}

	var s State
	f.Reset(&s)

	// Arithmetic shifts round towards negative infinity.
	assert.Equal(t, int32(-2), f.Correct(&s, -1))
	assert.Equal(t, int32(-1), s.Freq)
}

func TestIIRFilterResidue(t *testing.T) {
	c, err := Derive(filterConfig("iir3"))
	require.NoError(t, err)
	f := NewIIRFilter(c)

	rapid.Check(t, func(t *rapid.T) {
		errs := rapid.SliceOfN(rapid.Int32Range(-int32(c.Pi), int32(c.Pi)), 1, 64).Draw(t, "errs")

		var s State
		f.Reset(&s)
		for _, e := range errs {
			f.Correct(&s, e)
			if s.Residue < 0 || s.Residue >= 1<<f.FracBits {
				t.Fatalf("residue %d outside [0, %d)", s.Residue, 1<<f.FracBits)
			}
		}
	})
}

func TestIIRFilterFirstStep(t *testing.T) {
	c, err := Derive(filterConfig("iir3"))
	require.NoError(t, err)
	f := NewIIRFilter(c)

	var s State
	f.Reset(&s)

	const e = 100
	got := f.Correct(&s, e)
	assert.Equal(t, int32((e*c.B[0])>>c.IIRFracBits), got)
	assert.Equal(t, (e*c.B[0])&(1<<c.IIRFracBits-1), s.Residue)
	assert.Equal(t, int64(e), s.X1)
	assert.Equal(t, int64(got), s.Y1)
}

func TestIIRFilterQuiescent(t *testing.T) {
	c, err := Derive(filterConfig("iir3"))
	require.NoError(t, err)
	f := NewIIRFilter(c)

	var s State
	f.Reset(&s)
	for idx := 0; idx < 100; idx++ {
		require.Equal(t, int32(0), f.Correct(&s, 0))
	}
	assert.Equal(t, State{}, s)
}

func TestMidpoint(t *testing.T) {
	testCases := []struct {
		a, b, want int32
	}{
		{-100, 200, 50},
		{-5146, 5146, 0},
		{0, 171, 86},
		{0, 173, 86},
		{-171, 0, -86},
		{-173, 0, -86},
		{1, 2, 2},
		{2, 3, 2},
		{math.MinInt32, math.MaxInt32, 0},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, Midpoint(tc.a, tc.b), "midpoint(%d, %d)", tc.a, tc.b)
	}
}

func TestPIFilterResetRounds(t *testing.T) {
	f := PIFilter{Alpha: 433, Beta: 24, FreqMin: -343, FreqMax: 518, FracBits: 12}

	// 87.5 rounds to the even 88 where truncation gives 87.
	var s State
	f.Reset(&s)
	assert.Equal(t, int32(88), s.Freq)
}

func TestIIRFilterReset(t *testing.T) {
	c, err := Derive(filterConfig("iir3"))
	require.NoError(t, err)
	f := NewIIRFilter(c)
	f.FreqMin, f.FreqMax = -343, 518

	var s State
	f.Reset(&s)
	assert.Equal(t, State{Freq: 88, Y1: 88, Y2: 88}, s)

	// Without error the estimate holds where it started.
	for idx := 0; idx < 100; idx++ {
		require.Equal(t, int32(88), f.Correct(&s, 0))
	}
	assert.Equal(t, int32(88), s.Freq)
}

func TestIIRFilterHoldsBound(t *testing.T) {
	c, err := Derive(filterConfig("iir3"))
	require.NoError(t, err)
	f := NewIIRFilter(c)

	for _, e := range []int32{3000, -3000} {
		var s State
		f.Reset(&s)

		bound := f.FreqMax
		if e < 0 {
			bound = f.FreqMin
		}

		// A constant error ramps the estimate onto the bound and holds it
		// there, the correction only adding the proportional term.
		var got int32
		for idx := 0; idx < 400; idx++ {
			got = f.Correct(&s, e)
			require.True(t, s.Freq >= f.FreqMin && s.Freq <= f.FreqMax,
				"error %d sample %d: freq %d", e, idx, s.Freq)
		}
		assert.Equal(t, bound, s.Freq)
		assert.Equal(t, bound+int32((int64(e)*f.B[2])>>f.FracBits), got)

		// Restarted from the bound with no rate, the estimate stays put
		// once the error goes away.
		for idx := 0; idx < 2000; idx++ {
			require.Equal(t, bound, f.Correct(&s, 0), "error %d sample %d", e, idx)
		}
		assert.Equal(t, bound, s.Freq)
	}
}

func TestIIRFilterBoundedProperty(t *testing.T) {
	c, err := Derive(filterConfig("iir3"))
	require.NoError(t, err)
	f := NewIIRFilter(c)

	// Arbitrary errors never push the estimate outside the pull-in range
	// or the correction past a full turn.
	rapid.Check(t, func(t *rapid.T) {
		errs := rapid.SliceOfN(rapid.Int32Range(-c.Pi, c.Pi), 1, 4000).Draw(t, "errs")

		var s State
		f.Reset(&s)
		for idx, e := range errs {
			y := f.Correct(&s, e)
			if s.Freq < f.FreqMin || s.Freq > f.FreqMax {
				t.Fatalf("sample %d: freq %d outside [%d, %d]", idx, s.Freq, f.FreqMin, f.FreqMax)
			}
			if y <= -c.TwoPi || y >= c.TwoPi {
				t.Fatalf("sample %d: correction %d not within a turn", idx, y)
			}
			if s.Residue < 0 || s.Residue >= 1<<f.FracBits {
				t.Fatalf("sample %d: residue %d", idx, s.Residue)
			}
		}
	})
}

func TestFloatIIRFilterHoldsBound(t *testing.T) {
	c, err := Derive(filterConfig("iir3"))
	require.NoError(t, err)
	f := NewFloatIIRFilter(&c.Design)

	var s FloatState
	f.Reset(&s)
	assert.Equal(t, FloatState{}, s)

	for idx := 0; idx < 400; idx++ {
		f.Correct(&s, 0.5)
	}
	assert.Equal(t, f.FreqMax, s.Freq)

	for idx := 0; idx < 2000; idx++ {
		require.InDelta(t, f.FreqMax, f.Correct(&s, 0), 1e-6, "sample %d", idx)
	}
}
