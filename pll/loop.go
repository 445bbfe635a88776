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

// Package pll implements a Costas style phase locked loop in fixed point
// arithmetic for regenerating the carrier of an AM signal, along with a
// floating point twin used as its reference.
package pll

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/phase"
)

// Sample is one complex input sample scaled so that One is full scale.
type Sample struct {
	I, Q int32
}

// StepResult is the output of a single loop step.
type StepResult struct {
	// Regenerated carrier, in phase with the input once locked.
	I, Q int32

	// Err is the phase error of this step in accumulator units.
	Err int32

	// Baseband is the input rotated onto the oscillator. Once locked the
	// AM envelope lies almost entirely on Baseband.Q.
	Baseband Sample
}

// Record returns the fields of a trace row.
func (r StepResult) Record() []string {
	return []string{
		strconv.FormatInt(int64(r.I), 10),
		strconv.FormatInt(int64(r.Q), 10),
		strconv.FormatInt(int64(r.Err), 10),
		strconv.FormatInt(int64(r.Baseband.I), 10),
		strconv.FormatInt(int64(r.Baseband.Q), 10),
	}
}

// RecordHeader names the fields returned by StepResult.Record.
func RecordHeader() []string {
	return []string{"carrier_i", "carrier_q", "err", "baseband_i", "baseband_q"}
}

// Loop is a fixed point phase locked loop. The Constants and the table
// behind the oscillator are shared read only; State is owned by the Loop.
type Loop struct {
	*Constants
	State

	osc    nco.Oscillator
	filter LoopFilter
}

// New builds a loop from derived constants. The table may be shared
// between any number of loops.
func New(c *Constants, tbl *nco.Table) (*Loop, error) {
	if c == nil {
		return nil, errors.New("pll: nil constants")
	}
	if tbl == nil {
		return nil, errors.New("pll: nil oscillator table")
	}

	design, ok := lookupFilter(c.Config.Filter)
	if !ok {
		return nil, errors.Errorf("pll: unknown filter %q", c.Config.Filter)
	}

	l := &Loop{
		Constants: c,
		osc: nco.Oscillator{
			Table:    tbl,
			PhiScale: c.PhiScale,
			FracBits: c.FracBits,
		},
		filter: design.Fixed(c),
	}
	l.Reset()

	return l, nil
}

// Reset returns the loop to its initial condition.
func (l *Loop) Reset() {
	l.filter.Reset(&l.State)
}

// Step advances the loop by one sample.
//
// Both filters hold their frequency estimate within a pull-in range no wider
// than nyquist (Pi) and add at most the error, itself within Pi, times a
// gain below one. Every correction is then smaller than TwoPi and a single
// wrap keeps the accumulator within (-TwoPi, TwoPi] whatever the input.
func (l *Loop) Step(s Sample) (r StepResult) {
	cos, sin := l.osc.Lookup(l.Phase)

	// Rotate by the conjugate of the oscillator.
	i, q := int64(s.I), int64(s.Q)
	c, n := int64(cos), int64(sin)
	r.Baseband.I = int32((i*c + q*n) >> 15)
	r.Baseband.Q = int32((q*c - i*n) >> 15)

	r.Err = int32((-int64(phase.Detect(r.Baseband.I, r.Baseband.Q)) * l.ErrScale) >> l.FracBits)

	l.Phase += l.filter.Correct(&l.State, r.Err)
	if l.Phase > l.TwoPi {
		l.Phase -= l.TwoPi
	} else if l.Phase <= -l.TwoPi {
		l.Phase += l.TwoPi
	}

	// The detector measures from the quadrature axis so the oscillator
	// settles a quarter turn behind the carrier.
	r.I, r.Q = -sin, cos

	return r
}

// Run steps the loop over in, writing one result per sample to out. It
// returns the number of results written, the shorter of the two.
func (l *Loop) Run(in []Sample, out []StepResult) int {
	n := len(in)
	if len(out) < n {
		n = len(out)
	}
	for idx := 0; idx < n; idx++ {
		out[idx] = l.Step(in[idx])
	}
	return n
}
