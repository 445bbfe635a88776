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

package pll

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config describes a loop in physical units. It is read once at startup
// and never modified afterwards.
//
// The coefficient formulas assume LoopBandwidth is much smaller than
// SampleRate. Violating that makes the loop oscillate or diverge. It is not
// checked at run time.
type Config struct {
	// LoopBandwidth in Hz.
	LoopBandwidth float64 `yaml:"loop_bandwidth"`

	// SampleRate of the input stream in Hz.
	SampleRate float64 `yaml:"sample_rate"`

	// FreqMin and FreqMax bound the frequency estimate in Hz. A loop that
	// loses its carrier drifts to either bound and must pull in from
	// there, so a range much wider than the loop can acquire delays
	// relock.
	FreqMin float64 `yaml:"freq_min"`
	FreqMax float64 `yaml:"freq_max"`

	// Filter names a registered loop filter, "pi" or "iir3".
	Filter string `yaml:"filter"`

	// FracBits is the fraction width of the PI coefficients, the phase
	// accumulator and the sample full scale.
	FracBits uint `yaml:"frac_bits"`

	// IIRFracBits is the fraction width of the third order filter taps.
	IIRFracBits uint `yaml:"iir_frac_bits"`

	// Shape holds the third order prototype's shaping parameters.
	Shape Shape `yaml:"shape"`
}

// Shape parameters of the third order prototype
// F(s) = B*w + C*w^2/s + w^3/s^2. The closed loop is stable for B*C > 1.
type Shape struct {
	B float64 `yaml:"b"`
	C float64 `yaml:"c"`
}

const (
	// MinFracBits is the narrowest accepted FracBits.
	MinFracBits = 8
	// MaxFracBits is the widest FracBits that keeps a sample times a
	// table entry within 32 bits.
	MaxFracBits = 14
	// MinIIRFracBits is the narrowest accepted IIRFracBits.
	MinIIRFracBits = 12
	// MaxIIRFracBits is the widest accepted IIRFracBits.
	MaxIIRFracBits = 24
)

// DefaultConfig returns the design point of the firmware: a 100Hz loop at
// 15kHz with a ±3kHz pull-in range.
func DefaultConfig() Config {
	return Config{
		LoopBandwidth: 100,
		SampleRate:    15000,
		FreqMin:       -3000,
		FreqMax:       3000,
		Filter:        "pi",
		FracBits:      12,
		IIRFracBits:   20,
		Shape:         Shape{B: 2.4, C: 1.1},
	}
}

// LoadConfig reads a YAML document over the defaults. Unknown keys are
// rejected. An empty document yields the defaults.
func LoadConfig(r io.Reader) (cfg Config, err error) {
	cfg = DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrap(err, "decoding loop configuration")
	}

	if err = cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ConfigError reports a malformed configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return errors.WithStack(&ConfigError{field, fmt.Sprintf(format, args...)})
}

// Validate rejects malformed values. It does not check the narrowband
// assumption, see Config.
func (cfg Config) Validate() error {
	nyquist := cfg.SampleRate / 2

	switch {
	case cfg.SampleRate <= 0:
		return invalid("sample_rate", "%g must be positive", cfg.SampleRate)
	case cfg.LoopBandwidth <= 0:
		return invalid("loop_bandwidth", "%g must be positive", cfg.LoopBandwidth)
	case cfg.LoopBandwidth >= nyquist:
		return invalid("loop_bandwidth", "%g must be below nyquist %g", cfg.LoopBandwidth, nyquist)
	case cfg.FracBits < MinFracBits || cfg.FracBits > MaxFracBits:
		return invalid("frac_bits", "%d not in [%d, %d]", cfg.FracBits, MinFracBits, MaxFracBits)
	case cfg.IIRFracBits < MinIIRFracBits || cfg.IIRFracBits > MaxIIRFracBits:
		return invalid("iir_frac_bits", "%d not in [%d, %d]", cfg.IIRFracBits, MinIIRFracBits, MaxIIRFracBits)
	}

	if _, ok := lookupFilter(cfg.Filter); !ok {
		return invalid("filter", "%q is not one of %v", cfg.Filter, Filters())
	}

	switch {
	case cfg.FreqMin > cfg.FreqMax:
		return invalid("freq_min", "%g above freq_max %g", cfg.FreqMin, cfg.FreqMax)
	case cfg.FreqMin < -nyquist || cfg.FreqMax > nyquist:
		return invalid("freq_max", "pull-in [%g, %g] exceeds nyquist %g", cfg.FreqMin, cfg.FreqMax, nyquist)
	}

	if cfg.Filter == "iir3" {
		if cfg.Shape.B <= 0 || cfg.Shape.C <= 0 || cfg.Shape.B*cfg.Shape.C <= 1 {
			return invalid("shape", "b=%g c=%g must be positive with b*c > 1", cfg.Shape.B, cfg.Shape.C)
		}
	}

	return nil
}
