// Package oracle cross-checks the fixed point loop against independent
// implementations of the same arithmetic, sample by sample and bit for bit.
package oracle

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/pll"
)

// Triple is what an oracle reports for one sample: the regenerated carrier
// and the phase error.
type Triple struct {
	I, Q, Err int32
}

func (t Triple) String() string {
	return fmt.Sprintf("(%d, %d, %d)", t.I, t.Q, t.Err)
}

// ErrNoCgo is returned by NewCRef in builds without cgo.
var ErrNoCgo = errors.New("oracle: C reference requires cgo")

// An Oracle is a loop implementation that can be stepped in lock step with
// another one.
type Oracle interface {
	Step(s pll.Sample) Triple
	Reset()
}

// Loop adapts a pll.Loop to an Oracle.
type Loop struct {
	*pll.Loop
}

// NewLoop returns the loop under test as an Oracle.
func NewLoop(c *pll.Constants, tbl *nco.Table) (Loop, error) {
	l, err := pll.New(c, tbl)
	if err != nil {
		return Loop{}, err
	}
	return Loop{l}, nil
}

func (l Loop) Step(s pll.Sample) Triple {
	r := l.Loop.Step(s)
	return Triple{r.I, r.Q, r.Err}
}

// Mismatch is the first sample two oracles disagree on.
type Mismatch struct {
	Index     int
	Sample    pll.Sample
	Got, Want Triple
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("sample %d (%d, %d): got %s, want %s",
		m.Index, m.Sample.I, m.Sample.Q, m.Got, m.Want,
	)
}

// Compare resets both oracles, steps them over in and returns a *Mismatch,
// with a stack attached, at the first sample whose outputs differ.
func Compare(got, want Oracle, in []pll.Sample) error {
	got.Reset()
	want.Reset()

	for idx, s := range in {
		g, w := got.Step(s), want.Step(s)
		if g != w {
			return errors.WithStack(&Mismatch{idx, s, g, w})
		}
	}

	return nil
}
