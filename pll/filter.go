package pll

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// A LoopFilter turns a phase error into a phase correction. Filters hold
// only read-only coefficients; everything that changes from sample to
// sample lives in the State passed to them, so one filter may drive any
// number of loops.
type LoopFilter interface {
	// Reset puts s into the filter's initial condition.
	Reset(s *State)

	// Correct consumes one phase error and returns the correction to add
	// to the phase accumulator.
	Correct(s *State, err int32) int32
}

// A FloatFilter is the floating point counterpart of LoopFilter.
type FloatFilter interface {
	Reset(s *FloatState)
	Correct(s *FloatState, err float64) float64
}

// FilterDesign builds both realizations of one loop filter.
type FilterDesign struct {
	Fixed func(c *Constants) LoopFilter
	Float func(c *Coefficients) FloatFilter
}

var (
	filterMutex sync.Mutex
	filters     = make(map[string]FilterDesign)
)

// RegisterFilter makes a loop filter design available by name.
func RegisterFilter(name string, design FilterDesign) {
	filterMutex.Lock()
	defer filterMutex.Unlock()

	if design.Fixed == nil || design.Float == nil {
		panic("pll: filter constructor is nil")
	}
	if _, dup := filters[name]; dup {
		panic(fmt.Sprintf("pll: filter already registered (%s)", name))
	}
	filters[name] = design
}

func lookupFilter(name string) (FilterDesign, bool) {
	filterMutex.Lock()
	defer filterMutex.Unlock()

	design, ok := filters[name]
	return design, ok
}

// Filters lists the registered filter names.
func Filters() (names []string) {
	filterMutex.Lock()
	defer filterMutex.Unlock()

	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func init() {
	RegisterFilter("pi", FilterDesign{
		Fixed: func(c *Constants) LoopFilter { return NewPIFilter(c) },
		Float: func(c *Coefficients) FloatFilter { return NewFloatPIFilter(c) },
	})
	RegisterFilter("iir3", FilterDesign{
		Fixed: func(c *Constants) LoopFilter { return NewIIRFilter(c) },
		Float: func(c *Coefficients) FloatFilter { return NewFloatIIRFilter(c) },
	})
}

// PIFilter is a proportional-integral filter giving a second order, type 2
// loop. The integral term is the loop's frequency estimate and is held
// within the pull-in range.
type PIFilter struct {
	Alpha, Beta      int64
	FreqMin, FreqMax int32
	FracBits         uint
}

func NewPIFilter(c *Constants) PIFilter {
	return PIFilter{
		Alpha:    int64(c.Alpha),
		Beta:     int64(c.Beta),
		FreqMin:  c.FreqMin,
		FreqMax:  c.FreqMax,
		FracBits: c.FracBits,
	}
}

// Reset starts the frequency estimate in the middle of the pull-in range.
func (f PIFilter) Reset(s *State) {
	*s = State{Freq: Midpoint(f.FreqMin, f.FreqMax)}
}

func (f PIFilter) Correct(s *State, err int32) int32 {
	s.Freq += int32((f.Beta * int64(err)) >> f.FracBits)

	if s.Freq > f.FreqMax {
		s.Freq = f.FreqMax
	}
	if s.Freq < f.FreqMin {
		s.Freq = f.FreqMin
	}

	return s.Freq + int32((f.Alpha*int64(err))>>f.FracBits)
}

// IIRFilter is a three tap filter over a double integrator, giving a third
// order loop able to follow a frequency ramp. The fraction lost to the
// right shift on each sample is carried into the next rather than dropped.
//
// The output less its proportional part, B[2] times the error, is the
// loop's frequency estimate. Like the PI integrator it is held within the
// pull-in range: when it would leave, the output history is rewritten so
// both integrators restart from the bound with no frequency rate.
type IIRFilter struct {
	B                [3]int64
	A                [3]int64
	FreqMin, FreqMax int32
	FracBits         uint
}

func NewIIRFilter(c *Constants) IIRFilter {
	return IIRFilter{
		B:        c.B,
		A:        c.A,
		FreqMin:  c.FreqMin,
		FreqMax:  c.FreqMax,
		FracBits: c.IIRFracBits,
	}
}

// Reset starts the frequency estimate in the middle of the pull-in range
// with no rate.
func (f IIRFilter) Reset(s *State) {
	mid := Midpoint(f.FreqMin, f.FreqMax)
	*s = State{Freq: mid, Y1: int64(mid), Y2: int64(mid)}
}

func (f IIRFilter) Correct(s *State, err int32) int32 {
	x0 := int64(err)

	y := x0*f.B[0] + s.X1*f.B[1] + s.X2*f.B[2] + s.Residue
	s.Residue = y & (1<<f.FracBits - 1)
	y >>= f.FracBits

	// A[0] is 1 by construction.
	y -= f.A[1]*s.Y1 + f.A[2]*s.Y2

	s.X2, s.X1 = s.X1, x0

	prop := (x0 * f.B[2]) >> f.FracBits
	freq := y - prop

	lo, hi := int64(f.FreqMin), int64(f.FreqMax)
	if freq < lo || freq > hi {
		if freq < lo {
			freq = lo
		} else {
			freq = hi
		}
		y = freq + prop

		// With A = [1, -2, 1], this history and residue make the next
		// step integrate from freq with a rate of zero and no carry.
		n := s.X1*f.B[1] + s.X2*f.B[2]
		s.Residue = -n & (1<<f.FracBits - 1)
		s.Y1 = y
		s.Y2 = 2*y - freq + (n+s.Residue)>>f.FracBits
	} else {
		s.Y2, s.Y1 = s.Y1, y
	}
	s.Freq = int32(freq)

	return int32(y)
}

// FloatPIFilter is the floating point reference of PIFilter.
type FloatPIFilter struct {
	Alpha, Beta      float64
	FreqMin, FreqMax float64
}

func NewFloatPIFilter(c *Coefficients) FloatPIFilter {
	return FloatPIFilter{
		Alpha:   c.Alpha,
		Beta:    c.Beta,
		FreqMin: c.FreqMin,
		FreqMax: c.FreqMax,
	}
}

func (f FloatPIFilter) Reset(s *FloatState) {
	*s = FloatState{Freq: (f.FreqMin + f.FreqMax) / 2}
}

func (f FloatPIFilter) Correct(s *FloatState, err float64) float64 {
	s.Freq += f.Beta * err

	if s.Freq > f.FreqMax {
		s.Freq = f.FreqMax
	}
	if s.Freq < f.FreqMin {
		s.Freq = f.FreqMin
	}

	return s.Freq + f.Alpha*err
}

// FloatIIRFilter is the floating point reference of IIRFilter.
type FloatIIRFilter struct {
	B, A             [3]float64
	FreqMin, FreqMax float64
}

func NewFloatIIRFilter(c *Coefficients) FloatIIRFilter {
	return FloatIIRFilter{B: c.B, A: c.A, FreqMin: c.FreqMin, FreqMax: c.FreqMax}
}

func (f FloatIIRFilter) Reset(s *FloatState) {
	mid := (f.FreqMin + f.FreqMax) / 2
	*s = FloatState{Freq: mid, Y1: mid, Y2: mid}
}

func (f FloatIIRFilter) Correct(s *FloatState, err float64) float64 {
	y := err*f.B[0] + s.X1*f.B[1] + s.X2*f.B[2] - f.A[1]*s.Y1 - f.A[2]*s.Y2

	s.X2, s.X1 = s.X1, err

	prop := err * f.B[2]
	freq := math.Max(f.FreqMin, math.Min(f.FreqMax, y-prop))
	if freq != y-prop {
		y = freq + prop
		s.Y1 = y
		s.Y2 = 2*y - freq + s.X1*f.B[1] + s.X2*f.B[2]
	} else {
		s.Y2, s.Y1 = s.Y1, y
	}
	s.Freq = freq

	return y
}

// Midpoint returns (a+b)/2 rounded to nearest with ties to even.
func Midpoint(a, b int32) int32 {
	sum := int64(a) + int64(b)
	mid := sum >> 1
	if sum&1 != 0 && mid&1 != 0 {
		mid++
	}
	return int32(mid)
}
