// RTLAMSYNC - A synchronous AM demodulator for rtl-sdr receivers.
// Copyright (C) 2015 Douglas Hall
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

package decode

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlamsync/demod"
	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/pll"
)

// Config specifies the receiver front end.
type Config struct {
	CenterFreq uint32

	// SampleRate of the raw IQ stream. The loop runs at
	// SampleRate/Decimation.
	SampleRate int
	Decimation int

	// BlockSize is the number of loop rate samples per block.
	BlockSize int

	// BlockLength is the number of input bytes per block.
	BlockLength int

	// Mode selects the audio demodulator, see demod.Modes.
	Mode string
}

func DefaultConfig() Config {
	return Config{
		CenterFreq: 1000000,
		SampleRate: 240000,
		Decimation: 16,
		BlockSize:  1024,
		Mode:       "sync",
	}
}

func (d Decoder) Log() {
	logrus.WithFields(logrus.Fields{
		"center_freq": d.Cfg.CenterFreq,
		"sample_rate": d.Cfg.SampleRate,
		"decimation":  d.Cfg.Decimation,
		"loop_rate":   d.Cfg.SampleRate / d.Cfg.Decimation,
		"block_size":  d.Cfg.BlockSize,
		"mode":        d.Cfg.Mode,
	}).Info("front end")
	d.Constants.Log()
}

// Decoder contains buffers and the loop driven by them.
type Decoder struct {
	Cfg       Config
	Constants *pll.Constants

	Samples []pll.Sample
	Results []pll.StepResult
	Audio   []int16

	lut   *SampleLUT
	loop  *pll.Loop
	sync  *demod.Sync
	audio demod.Demodulator
}

// NewDecoder creates a decoder for cfg. The loop's sample rate must match
// the decimated front end rate.
func NewDecoder(cfg Config, c *pll.Constants, tbl *nco.Table) (d Decoder, err error) {
	switch {
	case c == nil:
		return d, errors.New("nil loop constants")
	case cfg.SampleRate <= 0:
		return d, errors.Errorf("invalid sample rate: %d", cfg.SampleRate)
	case cfg.Decimation <= 0:
		return d, errors.Errorf("invalid decimation: %d", cfg.Decimation)
	case cfg.BlockSize <= 0:
		return d, errors.Errorf("invalid block size: %d", cfg.BlockSize)
	}

	loopRate := float64(cfg.SampleRate) / float64(cfg.Decimation)
	if math.Abs(loopRate-c.Config.SampleRate) > 1e-6 {
		return d, errors.Errorf("loop sample rate %g does not match front end rate %d/%d = %g",
			c.Config.SampleRate, cfg.SampleRate, cfg.Decimation, loopRate,
		)
	}

	d.Cfg = cfg
	d.Cfg.BlockLength = cfg.BlockSize * cfg.Decimation << 1
	d.Constants = c

	d.sync, err = demod.NewSync(c, tbl)
	if err != nil {
		return d, errors.Wrap(err, "creating demodulator")
	}
	d.loop = d.sync.Loop

	switch cfg.Mode {
	case "sync":
		d.audio = d.sync
	case "am":
		d.audio = demod.NewEnvelope()
	default:
		return d, errors.Errorf("invalid mode: %q not one of %v", cfg.Mode, demod.Modes())
	}

	lut := NewSampleLUT(c.One)
	d.lut = &lut

	// Allocate necessary buffers.
	d.Samples = make([]pll.Sample, cfg.BlockSize)
	d.Results = make([]pll.StepResult, cfg.BlockSize)
	d.Audio = make([]int16, cfg.BlockSize)

	return d, nil
}

// Decode converts a block of interleaved uint8 IQ, runs the loop over it and
// demodulates it. The returned results alias the decoder's buffer and are
// overwritten by the next call. Input beyond BlockLength, or short of a
// whole decimated sample, is ignored.
func (d Decoder) Decode(input []byte) []pll.StepResult {
	n := d.lut.Decimate(input, d.Samples, d.Cfg.Decimation)

	d.loop.Run(d.Samples[:n], d.Results[:n])

	if d.audio == d.sync {
		// The loop has already stepped, only the DC blocker is left.
		for idx, r := range d.Results[:n] {
			d.Audio[idx] = demod.Saturate(d.sync.Audio(r))
		}
	} else {
		demod.Run(d.audio, d.Samples[:n], d.Audio[:n])
	}

	return d.Results[:n]
}

// Reset returns the loop and demodulator to their initial state.
func (d Decoder) Reset() {
	d.sync.Reset()
	d.audio.Reset()
}

// SampleLUT maps an rtl-sdr byte onto a fixed point sample component.
type SampleLUT [0x100]int32

// NewSampleLUT pre-computes the conversion with the usual rtl-sdr DC offset
// of 127.5 removed. Both extremes map to ±one.
func NewSampleLUT(one int32) (lut SampleLUT) {
	for idx := range lut {
		lut[idx] = int32(math.Round((float64(idx) - 127.5) / 127.5 * float64(one)))
	}
	return
}

// Execute converts interleaved IQ bytes to samples without decimation.
func (lut *SampleLUT) Execute(input []byte, output []pll.Sample) {
	i := 0
	for idx := range output {
		output[idx] = pll.Sample{I: lut[input[i]], Q: lut[input[i+1]]}
		i += 2
	}
}

// Decimate integrates factor consecutive samples and dumps their mean into
// each output sample. It returns the number of output samples written.
func (lut *SampleLUT) Decimate(input []byte, output []pll.Sample, factor int) int {
	n := len(input) / (factor << 1)
	if n > len(output) {
		n = len(output)
	}

	if factor == 1 {
		lut.Execute(input[:n<<1], output[:n])
		return n
	}

	div := int64(factor)
	i := 0
	for idx := range output[:n] {
		var sumI, sumQ int64
		for k := 0; k < factor; k++ {
			sumI += int64(lut[input[i]])
			sumQ += int64(lut[input[i+1]])
			i += 2
		}
		output[idx] = pll.Sample{I: int32(sumI / div), Q: int32(sumQ / div)}
	}

	return n
}
