// Package demod turns complex baseband samples into audio.
package demod

import (
	"math"

	"github.com/pkg/errors"

	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/phase"
	"github.com/bemasher/rtlamsync/pll"
)

// DCShift sets the time constant of the DC blocker to 2^DCShift samples.
const DCShift = 5

// DCBlocker removes the mean of a stream with a first order low-pass
// estimate. The estimate is kept scaled by 2^Shift so no precision is lost
// between samples.
type DCBlocker struct {
	Shift uint
	dc    int32
}

// Block returns s minus the running DC estimate.
func (b *DCBlocker) Block(s int32) int32 {
	b.dc = s + b.dc - b.dc>>b.Shift
	return s - b.dc>>b.Shift
}

func (b *DCBlocker) Reset() {
	b.dc = 0
}

// A Demodulator produces one audio sample per input sample.
type Demodulator interface {
	Demodulate(s pll.Sample) int32
	Reset()
}

// Sync is a synchronous AM demodulator. The loop regenerates the carrier
// and the envelope is read off the quadrature component of the de-rotated
// sample, so neither selective fading nor a quadrature interferer distorts
// the audio the way envelope detection does.
type Sync struct {
	Loop *pll.Loop
	DCBlocker
}

func NewSync(c *pll.Constants, tbl *nco.Table) (*Sync, error) {
	l, err := pll.New(c, tbl)
	if err != nil {
		return nil, errors.Wrap(err, "creating loop")
	}
	return &Sync{Loop: l, DCBlocker: DCBlocker{Shift: DCShift}}, nil
}

func (d *Sync) Demodulate(s pll.Sample) int32 {
	return d.Audio(d.Loop.Step(s))
}

// Audio demodulates a step the caller has already taken.
func (d *Sync) Audio(r pll.StepResult) int32 {
	return d.Block(r.Baseband.Q)
}

func (d *Sync) Reset() {
	d.Loop.Reset()
	d.DCBlocker.Reset()
}

// Envelope is a conventional AM detector: the magnitude of each sample,
// less its DC.
type Envelope struct {
	DCBlocker
}

func NewEnvelope() *Envelope {
	return &Envelope{DCBlocker{Shift: DCShift}}
}

func (d *Envelope) Demodulate(s pll.Sample) int32 {
	mag, _ := phase.Polar(s.I, s.Q)
	return d.Block(int32(mag))
}

// Modes lists the demodulators accepted by New.
func Modes() []string {
	return []string{"am", "sync"}
}

// New returns the demodulator for mode, "sync" or "am".
func New(mode string, c *pll.Constants, tbl *nco.Table) (Demodulator, error) {
	switch mode {
	case "sync":
		d, err := NewSync(c, tbl)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "am":
		return NewEnvelope(), nil
	}
	return nil, errors.Errorf("invalid demodulator: %q not one of %v", mode, Modes())
}

// Run demodulates in into out, saturating to 16 bits, and returns the
// number of samples written.
func Run(d Demodulator, in []pll.Sample, out []int16) int {
	n := len(in)
	if len(out) < n {
		n = len(out)
	}
	for idx := 0; idx < n; idx++ {
		out[idx] = Saturate(d.Demodulate(in[idx]))
	}
	return n
}

// Saturate clamps v to the int16 range.
func Saturate(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
