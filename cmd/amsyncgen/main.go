// Command amsyncgen derives the fixed point loop constants from a loop
// configuration and writes them as a C header for the firmware build.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bemasher/rtlamsync/pll"
)

func run(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("amsyncgen", pflag.ContinueOnError)

	configFilename := fs.StringP("config", "c", "", "Loop configuration file (yaml).")
	outFilename := fs.StringP("out", "o", "-", "Header output file, - for stdout.")
	dump := fs.BoolP("dump", "d", false, "Write the effective configuration as yaml instead of the header.")
	filter := fs.StringP("filter", "f", "", "Loop filter, overrides the configuration file.")
	loopBandwidth := fs.Float64P("loop-bandwidth", "b", 0, "Loop bandwidth in Hz, overrides the configuration file.")
	sampleRate := fs.Float64P("sample-rate", "r", 0, "Loop sample rate in Hz, overrides the configuration file.")
	fracBits := fs.UintP("frac-bits", "F", 0, "Fixed point fraction bits, overrides the configuration file.")
	verbose := fs.BoolP("verbose", "v", false, "Log the derived constants.")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: amsyncgen [options]\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return errors.Errorf("unexpected arguments: %v", fs.Args())
	}

	if !*verbose {
		logrus.SetLevel(logrus.WarnLevel)
	}

	cfg := pll.DefaultConfig()
	if *configFilename != "" {
		f, err := os.Open(*configFilename)
		if err != nil {
			return errors.Wrap(err, "opening loop config")
		}
		defer f.Close()

		if cfg, err = pll.LoadConfig(f); err != nil {
			return err
		}
	}

	if fs.Changed("filter") {
		cfg.Filter = *filter
	}
	if fs.Changed("loop-bandwidth") {
		cfg.LoopBandwidth = *loopBandwidth
	}
	if fs.Changed("sample-rate") {
		cfg.SampleRate = *sampleRate
	}
	if fs.Changed("frac-bits") {
		cfg.FracBits = *fracBits
	}

	c, err := pll.Derive(cfg)
	if err != nil {
		return err
	}
	c.Log()

	out := stdout
	if *outFilename != "-" {
		f, err := os.Create(*outFilename)
		if err != nil {
			return errors.Wrap(err, "creating output")
		}
		defer f.Close()
		out = f
	}

	if *dump {
		enc := yaml.NewEncoder(out)
		if err := enc.Encode(c.Config); err != nil {
			return errors.Wrap(err, "encoding configuration")
		}
		return enc.Close()
	}

	return c.WriteHeader(out)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Cause(err) == pflag.ErrHelp {
			os.Exit(0)
		}
		logrus.Fatalf("%+v", err)
	}
}
