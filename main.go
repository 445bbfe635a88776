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
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/bemasher/rtltcp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlamsync/decode"
	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/pll"
)

var rcvr Receiver

type Receiver struct {
	rtltcp.SDR
	d decode.Decoder

	// src is the rtl_tcp connection or the sample file.
	src  io.Reader
	file *os.File

	// offset counts loop rate samples since start.
	offset int64

	stop chan struct{}
}

func (rcvr *Receiver) NewReceiver() error {
	rcvr.stop = make(chan struct{}, 1)

	cfg := decode.DefaultConfig()

	gainFlagSet := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "centerfreq":
			cfg.CenterFreq = uint32(rcvr.Flags.CenterFreq)
		case "samplerate":
			cfg.SampleRate = int(rcvr.Flags.SampleRate)
		case "gainbyindex", "tunergainmode", "tunergain", "agcmode":
			gainFlagSet = true
		}
	})
	cfg = FrontEndConfig(cfg.CenterFreq, cfg.SampleRate)

	if cfg.Decimation <= 0 {
		return errors.Errorf("invalid decimation: %d", cfg.Decimation)
	}

	var configFile io.Reader
	if *configFilename != "" {
		f, err := os.Open(*configFilename)
		if err != nil {
			return errors.Wrap(err, "opening loop config")
		}
		defer f.Close()
		configFile = f
	}

	loopCfg, err := LoopConfig(configFile, setFlags(flag.CommandLine),
		float64(cfg.SampleRate)/float64(cfg.Decimation),
	)
	if err != nil {
		return err
	}

	c, err := pll.Derive(loopCfg)
	if err != nil {
		return err
	}

	rcvr.d, err = decode.NewDecoder(cfg, c, nco.NewTable())
	if err != nil {
		return err
	}

	if *sampleFilename != "" {
		rcvr.file, err = os.Open(*sampleFilename)
		if err != nil {
			return errors.Wrap(err, "opening sample file")
		}
		rcvr.src = rcvr.file

		rcvr.d.Log()
		logrus.WithField("samplefile", *sampleFilename).Info("reading samples from file")
		return nil
	}

	if !decode.ValidSampleRate(cfg.SampleRate) {
		logrus.WithFields(logrus.Fields{
			"sample_rate": cfg.SampleRate,
			"valid":       decode.SampleRates(cfg.SampleRate / cfg.Decimation),
		}).Warn("sample rate is outside the rtl-sdr's tunable bands")
	}

	// Connect to rtl_tcp server.
	if err := rcvr.Connect(nil); err != nil {
		return errors.Wrap(err, "connecting to rtl_tcp")
	}
	rcvr.src = rcvr.SDR

	if err := rcvr.SDR.HandleFlags(); err != nil {
		return errors.Wrap(err, "configuring rtl_tcp")
	}

	rcvr.SetCenterFreq(cfg.CenterFreq)
	rcvr.SetSampleRate(uint32(cfg.SampleRate))

	if !gainFlagSet {
		rcvr.SetGainMode(true)
	}

	rcvr.d.Log()

	// Tell the user how many gain settings were reported by rtl_tcp.
	logrus.WithField("gain_count", rcvr.SDR.Info.GainCount).Info("connected to rtl_tcp")

	return nil
}

func (rcvr *Receiver) Close() {
	rcvr.stop <- struct{}{}
	if rcvr.file != nil {
		rcvr.file.Close()
	}
	if rcvr.SDR.TCPConn != nil {
		rcvr.SDR.Close()
	}
}

// Process decodes one block, writes its audio and every stride'th loop step
// to the trace. Offset is the index of the block's first loop step.
func Process(d decode.Decoder, block []byte, offset int64, audio io.Writer, enc Encoder, stride int) (n int, err error) {
	results := d.Decode(block)
	n = len(results)

	if err := binary.Write(audio, binary.LittleEndian, d.Audio[:n]); err != nil {
		return n, errors.Wrap(err, "writing audio")
	}

	if stride <= 0 || enc == nil {
		return n, nil
	}

	now := time.Now()
	for idx, r := range results {
		pos := offset + int64(idx)
		if pos%int64(stride) != 0 {
			continue
		}
		if err := enc.Encode(NewTrace(now, pos, r, d.Constants)); err != nil {
			return n, errors.Wrap(err, "encoding trace")
		}
	}

	return n, nil
}

func (rcvr *Receiver) Run() error {
	// Setup signal channel for interruption.
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Kill, os.Interrupt)

	// Setup time limit channel
	tLimit := make(<-chan time.Time, 1)
	if *timeLimit != 0 {
		tLimit = time.After(*timeLimit)
	}

	start := time.Now()

	// Allocate a channel of blocks.
	blockCh := make(chan []byte)

	// Read and send sample blocks to the decoder.
	go func() {
		// Make two sample blocks, one for reading, and one for the receiver to
		// decode, these are exchanged each time we read a new block.
		blockA := make([]byte, rcvr.d.Cfg.BlockLength)
		blockB := make([]byte, rcvr.d.Cfg.BlockLength)

		// When exiting this goroutine, close the block channel.
		defer close(blockCh)

		for {
			select {
			// Exit if we've been told to stop.
			case <-rcvr.stop:
				return
			default:
				// Read new sample block.
				n, err := io.ReadFull(rcvr.src, blockA)

				// A short final block from a file is still worth decoding.
				if err == io.ErrUnexpectedEOF && n > 0 {
					blockCh <- blockA[:n]
				}

				// If we get an EOF, exit.
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					logrus.WithError(err).Info("encountered eof")
					return
				}

				// If we get a network operation error.
				if opErr, ok := err.(*net.OpError); ok {
					// If temporary, keep reading.
					if opErr.Temporary() {
						logrus.WithError(opErr).Warn("temporary network error")
						continue
					}

					// If it's not temporary, exit.
					logrus.WithError(opErr).Error("network error")
					return
				}

				if err != nil {
					logrus.WithError(err).Error("reading samples")
					return
				}

				// Send the sample block.
				blockCh <- blockA

				// Exchange blocks for next read.
				blockA, blockB = blockB, blockA
			}
		}
	}()

	for {
		// Exit on interrupt or time limit, otherwise receive.
		select {
		case <-sigint:
			return nil
		case <-tLimit:
			logrus.WithField("elapsed", time.Since(start)).Info("time limit reached")
			return nil
		case block, ok := <-blockCh:
			// If blockCh is closed, exit.
			if !ok {
				return nil
			}

			n, err := Process(rcvr.d, block, rcvr.offset, audioFile, encoder, *stride)
			if err != nil {
				return err
			}
			rcvr.offset += int64(n)
		}
	}
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)
}

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

func main() {
	rcvr.RegisterFlags()
	RegisterFlags()
	EnvOverride(flag.CommandLine, os.Getenv)
	flag.Parse()

	if *version {
		fmt.Println("Build Tag: ", buildTag)
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:    ", commitHash)
		os.Exit(0)
	}

	if err := HandleFlags(); err != nil {
		logrus.Fatal(err)
	}
	defer traceFile.Close()
	defer audioFile.Close()

	if err := rcvr.NewReceiver(); err != nil {
		logrus.Fatalf("%+v", err)
	}
	defer rcvr.Close()

	if err := rcvr.Run(); err != nil {
		logrus.Errorf("%+v", err)
	}
}
