// Package gen synthesizes carriers for exercising the loop: frequency
// offsets and ramps, phase jumps, amplitude modulation and noise.
package gen

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/bemasher/rtlamsync/pll"
)

// Segment is a stretch of carrier. Phase is continuous from one segment
// into the next apart from the segment's own Jump.
type Segment struct {
	Samples int

	// Freq is the offset from the tuned frequency at the start of the
	// segment in Hz, Ramp its rate of change in Hz per second.
	Freq float64
	Ramp float64

	// Jump is added to the carrier phase before the first sample.
	Jump float64

	// Amplitude of the carrier relative to full scale, zero means 0.95.
	Amplitude float64

	// Depth and ModFreq describe a tone amplitude modulated onto the
	// carrier. The envelope peaks at Amplitude.
	Depth   float64
	ModFreq float64
}

// Carrier synthesizes segments at a fixed sample rate.
type Carrier struct {
	SampleRate float64

	// Noise is the peak to peak width of uniform noise added to each
	// component.
	Noise float64
	Seed  int64
}

const defaultAmplitude = 0.95

// Synthesize returns the unit scale samples of every segment in order.
func (c Carrier) Synthesize(segs ...Segment) (signal []complex128, err error) {
	if c.SampleRate <= 0 {
		return nil, errors.Errorf("invalid sample rate: %g", c.SampleRate)
	}

	total := 0
	for idx, seg := range segs {
		if seg.Samples < 0 {
			return nil, errors.Errorf("segment %d: negative length %d", idx, seg.Samples)
		}
		if seg.Depth < 0 || seg.Depth > 1 {
			return nil, errors.Errorf("segment %d: modulation depth %g not in [0, 1]", idx, seg.Depth)
		}
		total += seg.Samples
	}

	rnd := rand.New(rand.NewSource(c.Seed))
	signal = make([]complex128, 0, total)

	var phase float64
	for _, seg := range segs {
		phase += seg.Jump

		amp := seg.Amplitude
		if amp == 0 {
			amp = defaultAmplitude
		}

		for k := 0; k < seg.Samples; k++ {
			t := float64(k) / c.SampleRate

			env := amp
			if seg.Depth != 0 {
				env *= (1 + seg.Depth*math.Cos(2*math.Pi*seg.ModFreq*t)) / (1 + seg.Depth)
			}

			sin, cos := math.Sincos(phase)
			re := env*cos + c.Noise*(rnd.Float64()-0.5)
			im := env*sin + c.Noise*(rnd.Float64()-0.5)
			signal = append(signal, complex(re, im))

			phase += 2 * math.Pi * (seg.Freq + seg.Ramp*t) / c.SampleRate
			phase = math.Remainder(phase, 2*math.Pi)
		}
	}

	return signal, nil
}

// Quantize scales a unit signal to fixed point samples of full scale one,
// saturating anything beyond it.
func Quantize(signal []complex128, one int32) []pll.Sample {
	samples := make([]pll.Sample, len(signal))
	for idx, s := range signal {
		samples[idx] = pll.Sample{
			I: quantize(real(s), one),
			Q: quantize(imag(s), one),
		}
	}
	return samples
}

func quantize(v float64, one int32) int32 {
	q := math.Round(v * float64(one))
	if q > float64(one) {
		return one
	}
	if q < -float64(one) {
		return -one
	}
	return int32(q)
}

// Interleave flattens a signal into alternating in-phase and quadrature
// values, the layout rtl_tcp streams.
func Interleave(signal []complex128) []float64 {
	out := make([]float64, len(signal)<<1)
	for idx, s := range signal {
		out[idx<<1] = real(s)
		out[idx<<1+1] = imag(s)
	}
	return out
}

// CmplxOscillatorF64 returns interleaved samples of a unit carrier.
func CmplxOscillatorF64(samples int, freq float64, samplerate float64) []float64 {
	signal := make([]float64, samples<<1)

	for idx := 0; idx < samples; idx++ {
		signal[idx<<1+1], signal[idx<<1] = math.Sincos(2 * math.Pi * float64(idx) * freq / samplerate)
	}

	return signal
}

// F64toU8 converts interleaved unit samples to rtl-sdr bytes, clipping at
// full scale.
func F64toU8(f64 []float64, u8 []byte) error {
	if len(f64) != len(u8) {
		return errors.Errorf("arrays must have same dimensions: %d != %d", len(f64), len(u8))
	}

	for idx, val := range f64 {
		v := math.Round(val*127.5 + 127.5)
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		u8[idx] = uint8(v)
	}

	return nil
}

// CmplxOscillatorU8 returns a unit carrier as rtl-sdr bytes.
func CmplxOscillatorU8(samples int, freq float64, samplerate float64) []uint8 {
	signal := make([]uint8, samples<<1)
	_ = F64toU8(CmplxOscillatorF64(samples, freq, samplerate), signal)
	return signal
}
