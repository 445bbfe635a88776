package pll

import (
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/phase"
)

// WideLoopRatio is the bandwidth to sample rate ratio above which Derive
// warns that the narrowband approximation is unlikely to hold.
const WideLoopRatio = 1.0 / 20

// Constants are the quantized loop parameters. Real values are stored as
// round(x * One) unless noted. Constants are computed once and are read
// only afterwards; any number of loops may share them.
type Constants struct {
	Config Config
	Design Coefficients

	// FracBits is F, One = 2^F - 1 represents 1.0 and is also the full
	// scale of an input sample.
	FracBits uint
	One      int32

	// Max is the largest fine oscillator index.
	Max int32

	// Pi is pi in phase accumulator units, the accumulator is wrapped to
	// (-TwoPi, TwoPi].
	Pi, TwoPi int32

	// ErrScale converts detector units to accumulator units:
	// err = (angle * ErrScale) >> FracBits.
	ErrScale int64

	// PhiScale converts accumulator units to a fine oscillator index:
	// idx = (phi * PhiScale) >> FracBits.
	PhiScale int64

	Alpha, Beta      int32
	FreqMin, FreqMax int32

	// Third order taps scaled by 2^IIRFracBits - 1. A is not scaled.
	IIRFracBits uint
	B, A        [3]int64
}

// Quantize rounds the floating point design to fixed point.
func Quantize(cfg Config, design Coefficients) *Constants {
	c := &Constants{
		Config:      cfg,
		Design:      design,
		FracBits:    cfg.FracBits,
		IIRFracBits: cfg.IIRFracBits,
	}

	one := float64(int64(1)<<cfg.FracBits - 1)
	c.One = int32(one)
	c.Max = 1<<nco.FineBits - 1

	c.Pi = int32(math.Round(one * math.Pi))
	c.TwoPi = 2 * c.Pi

	// The detector spans 2^(Bits-1) per half turn and the fine index
	// 2^FineBits per turn, both against 2^FracBits of fraction.
	c.ErrScale = int64(math.Round(one * math.Pi / float64(int64(1)<<(phase.Bits-1-cfg.FracBits))))
	c.PhiScale = int64(math.Round(one * float64(int64(1)<<(nco.FineBits-cfg.FracBits)) / (2 * math.Pi)))

	c.Alpha = int32(math.Round(design.Alpha * one))
	c.Beta = int32(math.Round(design.Beta * one))
	c.FreqMin = int32(math.Round(design.FreqMin * one))
	c.FreqMax = int32(math.Round(design.FreqMax * one))

	iirOne := float64(int64(1)<<cfg.IIRFracBits - 1)
	for idx := range c.B {
		c.B[idx] = int64(math.Round(design.B[idx] * iirOne))
		c.A[idx] = int64(math.Round(design.A[idx]))
	}

	return c
}

// Derive validates cfg and computes its constants. It warns, without
// failing, when the loop is wide relative to the sample rate. A third order
// design whose proportional tap reaches one is rejected, as its correction
// could then exceed a full turn.
func Derive(cfg Config) (*Constants, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "deriving loop constants")
	}

	if ratio := cfg.LoopBandwidth / cfg.SampleRate; ratio > WideLoopRatio {
		logrus.WithFields(logrus.Fields{
			"loop_bandwidth": cfg.LoopBandwidth,
			"sample_rate":    cfg.SampleRate,
			"ratio":          ratio,
		}).Warn("loop bandwidth is not small against the sample rate, the loop may not converge")
	}

	design := NewCoefficients(cfg)
	if cfg.Filter == "iir3" && design.B[2] >= 1 {
		return nil, errors.Wrap(
			invalid("loop_bandwidth", "%g gives a proportional gain of %0.3f, must be below 1", cfg.LoopBandwidth, design.B[2]),
			"deriving loop constants",
		)
	}

	return Quantize(cfg, design), nil
}

// Log reports the constants as structured fields.
func (c *Constants) Log() {
	logrus.WithFields(logrus.Fields{
		"filter":         c.Config.Filter,
		"loop_bandwidth": c.Config.LoopBandwidth,
		"sample_rate":    c.Config.SampleRate,
		"alpha":          c.Alpha,
		"beta":           c.Beta,
		"freq_min":       c.FreqMin,
		"freq_max":       c.FreqMax,
		"iir_b":          c.B,
		"one":            c.One,
		"pi":             c.Pi,
		"err_scale":      c.ErrScale,
		"phi_scale":      c.PhiScale,
	}).Info("loop constants")
}

// Define is one named integer of the constant block.
type Define struct {
	Name  string
	Value int64
}

// Defines lists the constant block in the order it is written.
func (c *Constants) Defines() []Define {
	return []Define{
		{"AMSYNC_ALPHA", int64(c.Alpha)},
		{"AMSYNC_BETA", int64(c.Beta)},
		{"AMSYNC_F_MIN", int64(c.FreqMin)},
		{"AMSYNC_F_MAX", int64(c.FreqMax)},
		{"AMSYNC_PI", int64(c.Pi)},
		{"AMSYNC_ONE", int64(c.One)},
		{"AMSYNC_MAX", int64(c.Max)},
		{"AMSYNC_ERR_SCALE", c.ErrScale},
		{"AMSYNC_PHI_SCALE", c.PhiScale},
		{"AMSYNC_FRAC_BITS", int64(c.FracBits)},
		{"AMSYNC_IIR_FRAC_BITS", int64(c.IIRFracBits)},
		{"AMSYNC_IIR_B0", c.B[0]},
		{"AMSYNC_IIR_B1", c.B[1]},
		{"AMSYNC_IIR_B2", c.B[2]},
		{"AMSYNC_IIR_A0", c.A[0]},
		{"AMSYNC_IIR_A1", c.A[1]},
		{"AMSYNC_IIR_A2", c.A[2]},
		{"AMSYNC_TABLE_SIZE", nco.TableSize},
		{"AMSYNC_TABLE_AMPLITUDE", nco.Amplitude},
		{"AMSYNC_DETECTOR_BITS", phase.Bits},
	}
}

// WriteHeader writes the constant block as C preprocessor definitions for
// inclusion in the firmware build. The block must be regenerated whenever
// the Config changes.
func (c *Constants) WriteHeader(w io.Writer) error {
	cfg := c.Config

	_, err := fmt.Fprintf(w, "// Loop constants: %s filter, %g Hz bandwidth at %g Hz, pull-in [%g, %g] Hz.\n",
		cfg.Filter, cfg.LoopBandwidth, cfg.SampleRate, cfg.FreqMin, cfg.FreqMax,
	)
	if err != nil {
		return errors.Wrap(err, "writing header")
	}

	for _, d := range c.Defines() {
		if _, err := fmt.Fprintf(w, "#define %s (%d)\n", d.Name, d.Value); err != nil {
			return errors.Wrapf(err, "writing %s", d.Name)
		}
	}

	return nil
}
