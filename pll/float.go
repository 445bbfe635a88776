package pll

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
)

// FloatResult is the output of one FloatLoop step.
type FloatResult struct {
	Carrier  complex128
	Baseband complex128
	Err      float64
}

// FloatLoop is the double precision reference loop. It shares the
// coefficient design with Loop but uses exact trigonometry and atan2.
type FloatLoop struct {
	Coefficients
	FloatState

	filter FloatFilter
}

// NewFloat builds a reference loop for the same design as c.
func NewFloat(c *Constants) (*FloatLoop, error) {
	if c == nil {
		return nil, errors.New("pll: nil constants")
	}

	design, ok := lookupFilter(c.Config.Filter)
	if !ok {
		return nil, errors.Errorf("pll: unknown filter %q", c.Config.Filter)
	}

	l := &FloatLoop{Coefficients: c.Design}
	l.filter = design.Float(&l.Coefficients)
	l.Reset()

	return l, nil
}

func (l *FloatLoop) Reset() {
	l.filter.Reset(&l.FloatState)
}

// Step advances the reference loop by one sample with unit full scale.
func (l *FloatLoop) Step(s complex128) (r FloatResult) {
	r.Carrier = cmplx.Rect(1, l.Phase)
	r.Baseband = s * cmplx.Conj(r.Carrier)
	r.Err = math.Atan2(imag(r.Baseband), real(r.Baseband))

	l.Phase += l.filter.Correct(&l.FloatState, r.Err)
	if l.Phase > 2*math.Pi {
		l.Phase -= 2 * math.Pi
	} else if l.Phase <= -2*math.Pi {
		l.Phase += 2 * math.Pi
	}

	return r
}
