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

package main

import (
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlamsync/csv"
	"github.com/bemasher/rtlamsync/decode"
	"github.com/bemasher/rtlamsync/pll"
)

var configFilename = flag.String("config", "", "loop configuration file (yaml), flags below override it")

var filter = flag.String("filter", "pi", "loop filter: pi or iir3")
var loopBandwidth = flag.Float64("loopbandwidth", 100, "loop bandwidth in Hz")
var pullIn = flag.Float64("pullin", 3000, "pull-in range in ±Hz")

var sampleFilename = flag.String("samplefile", "", "read uint8 IQ samples from file instead of rtl_tcp")
var audioFilename = flag.String("audiofile", os.DevNull, "write demodulated audio as raw 16-bit little endian samples")
var traceFilename = flag.String("tracefile", "-", "loop trace output file, - for stdout")

var decimation = flag.Int("decimation", 16, "integer decimation factor from the sample rate to the loop rate")
var blockSize = flag.Int("blocksize", 1024, "loop rate samples per block")
var mode = flag.String("mode", "sync", "audio demodulator: sync or am")

var stride = flag.Int("stride", 0, "emit every nth loop step to the trace, 0 to disable")
var format = flag.String("format", "plain", "trace output format: plain, csv, json, or xml")

var timeLimit = flag.Duration("duration", 0, "time to run for, 0 for infinite, ex. 1h5m10s")
var quiet = flag.Bool("quiet", false, "suppress state information printed at startup")
var version = flag.Bool("version", false, "display build date and commit hash")

var encoder Encoder
var traceFile io.WriteCloser
var audioFile *os.File

func RegisterFlags() {
	rtlamsyncFlags := map[string]bool{
		"config":        true,
		"filter":        true,
		"loopbandwidth": true,
		"pullin":        true,
		"samplefile":    true,
		"audiofile":     true,
		"tracefile":     true,
		"decimation":    true,
		"blocksize":     true,
		"mode":          true,
		"stride":        true,
		"format":        true,
		"duration":      true,
		"quiet":         true,
		"version":       true,
	}

	printDefaults := func(validFlags map[string]bool, inclusion bool) {
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			if validFlags[f.Name] != inclusion {
				return
			}

			format := "  -%s=%s: %s\n"
			fmt.Fprintf(os.Stderr, format, f.Name, f.Value, f.Usage)
		})
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		printDefaults(rtlamsyncFlags, true)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "rtltcp specific:")
		printDefaults(rtlamsyncFlags, false)
	}
}

// EnvOverride sets any flag named by an RTLAMSYNC_<FLAG> environment
// variable. Flags given on the command line still take precedence since
// they are parsed afterwards.
func EnvOverride(fs *flag.FlagSet, getenv func(string) string) {
	fs.VisitAll(func(f *flag.Flag) {
		envName := "RTLAMSYNC_" + strings.ToUpper(f.Name)
		flagValue := getenv(envName)
		if flagValue == "" {
			return
		}

		log := logrus.WithFields(logrus.Fields{
			"env":   envName,
			"flag":  f.Name,
			"value": flagValue,
		})
		if err := fs.Set(f.Name, flagValue); err != nil {
			log.WithError(err).Warn("environment variable failed to override flag")
		} else {
			log.Info("environment variable overrides flag")
		}
	})
}

// setFlags returns the names of flags given explicitly, on the command line
// or through the environment.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// LoopConfig reads the loop configuration file, if any, and applies any
// loop flags set explicitly on top of it. The loop rate is always the
// front end sample rate divided by the decimation factor.
func LoopConfig(r io.Reader, set map[string]bool, sampleRate float64) (cfg pll.Config, err error) {
	cfg = pll.DefaultConfig()
	if r != nil {
		if cfg, err = pll.LoadConfig(r); err != nil {
			return cfg, err
		}
	}

	if set["filter"] {
		cfg.Filter = *filter
	}
	if set["loopbandwidth"] {
		cfg.LoopBandwidth = *loopBandwidth
	}
	if set["pullin"] {
		cfg.FreqMin, cfg.FreqMax = -*pullIn, *pullIn
	}
	cfg.SampleRate = sampleRate

	return cfg, cfg.Validate()
}

// FrontEndConfig collects the decoder flags.
func FrontEndConfig(centerFreq uint32, sampleRate int) decode.Config {
	cfg := decode.DefaultConfig()
	cfg.CenterFreq = centerFreq
	cfg.SampleRate = sampleRate
	cfg.Decimation = *decimation
	cfg.BlockSize = *blockSize
	cfg.Mode = strings.ToLower(*mode)
	return cfg
}

func HandleFlags() (err error) {
	if *quiet {
		logrus.SetLevel(logrus.WarnLevel)
	}

	if *stride < 0 {
		return errors.Errorf("invalid stride: %d", *stride)
	}

	if *traceFilename == "-" {
		traceFile = nopCloser{os.Stdout}
	} else if traceFile, err = os.Create(*traceFilename); err != nil {
		return errors.Wrap(err, "creating trace file")
	}

	audioFile, err = os.Create(*audioFilename)
	if err != nil {
		return errors.Wrap(err, "creating audio file")
	}

	encoder, err = NewEncoder(*format, traceFile)
	return err
}

// NewEncoder returns the trace encoder for a format name.
func NewEncoder(name string, w io.Writer) (Encoder, error) {
	switch strings.ToLower(name) {
	case "plain":
		return PlainEncoder{w}, nil
	case "csv":
		return csv.NewHeaderEncoder(w, Trace{}.Header()), nil
	case "json":
		return json.NewEncoder(w), nil
	case "xml":
		return xml.NewEncoder(w), nil
	}
	return nil, errors.Errorf("invalid format: %q", name)
}

// JSON, XML and CSV all implement this interface so we can simplify trace
// output formatting.
type Encoder interface {
	Encode(interface{}) error
}

type PlainEncoder struct {
	w io.Writer
}

func (pe PlainEncoder) Encode(v interface{}) (err error) {
	_, err = fmt.Fprintln(pe.w, v)
	return
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
