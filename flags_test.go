package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/rtlamsync/decode"
	"github.com/bemasher/rtlamsync/gen"
	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/pll"
)

func TestEnvOverride(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	bw := fs.Float64("loopbandwidth", 100, "")
	mode := fs.String("mode", "sync", "")
	stride := fs.Int("stride", 0, "")

	env := map[string]string{
		"RTLAMSYNC_LOOPBANDWIDTH": "250",
		"RTLAMSYNC_STRIDE":        "not a number",
		"LOOPBANDWIDTH":           "1",
	}
	EnvOverride(fs, func(name string) string { return env[name] })

	assert.Equal(t, 250.0, *bw)
	assert.Equal(t, "sync", *mode)
	assert.Equal(t, 0, *stride, "malformed value must leave the default")

	set := setFlags(fs)
	assert.True(t, set["loopbandwidth"])
	assert.False(t, set["mode"])

	// Command line arguments are parsed after the environment.
	require.NoError(t, fs.Parse([]string{"-loopbandwidth=50"}))
	assert.Equal(t, 50.0, *bw)
}

// withFlags sets loop flag values for the duration of a test.
func withFlags(t *testing.T, f string, bw, pull float64) {
	oldFilter, oldBW, oldPull := *filter, *loopBandwidth, *pullIn
	*filter, *loopBandwidth, *pullIn = f, bw, pull
	t.Cleanup(func() {
		*filter, *loopBandwidth, *pullIn = oldFilter, oldBW, oldPull
	})
}

func TestLoopConfig(t *testing.T) {
	withFlags(t, "iir3", 50, 1000)

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := LoopConfig(nil, nil, 15000)
		require.NoError(t, err)
		assert.Equal(t, pll.DefaultConfig(), cfg)
	})

	t.Run("File", func(t *testing.T) {
		doc := "filter: iir3\nloop_bandwidth: 75\n"
		cfg, err := LoopConfig(strings.NewReader(doc), nil, 12000)
		require.NoError(t, err)
		assert.Equal(t, "iir3", cfg.Filter)
		assert.Equal(t, 75.0, cfg.LoopBandwidth)
		assert.Equal(t, 12000.0, cfg.SampleRate)
	})

	t.Run("FlagsOverrideFile", func(t *testing.T) {
		doc := "filter: pi\nloop_bandwidth: 75\n"
		set := map[string]bool{"loopbandwidth": true, "pullin": true}
		cfg, err := LoopConfig(strings.NewReader(doc), set, 15000)
		require.NoError(t, err)
		assert.Equal(t, "pi", cfg.Filter)
		assert.Equal(t, 50.0, cfg.LoopBandwidth)
		assert.Equal(t, -1000.0, cfg.FreqMin)
		assert.Equal(t, 1000.0, cfg.FreqMax)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := LoopConfig(strings.NewReader("bogus: 1\n"), nil, 15000)
		assert.Error(t, err)

		_, err = LoopConfig(nil, map[string]bool{"filter": true}, 0)
		require.Error(t, err)
		_, ok := errors.Cause(err).(*pll.ConfigError)
		assert.True(t, ok, "cause is %T", errors.Cause(err))
	})
}

func TestNewEncoder(t *testing.T) {
	for _, name := range []string{"plain", "CSV", "json", "xml"} {
		enc, err := NewEncoder(name, &bytes.Buffer{})
		assert.NoError(t, err, name)
		assert.NotNil(t, enc, name)
	}

	_, err := NewEncoder("gob", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestTraceRecord(t *testing.T) {
	c, err := pll.Derive(pll.DefaultConfig())
	require.NoError(t, err)

	r := pll.StepResult{I: -1, Q: 32767, Err: c.Pi, Baseband: pll.Sample{I: 3, Q: 4000}}
	tr := NewTrace(time.Unix(0, 0).UTC(), 42, r, c)

	rec := tr.Record()
	require.Len(t, rec, len(tr.Header()))
	assert.Equal(t, []string{"42", "-1", "32767"}, rec[1:4])
	assert.Equal(t, "180.00", rec[7])
	assert.Contains(t, tr.String(), "Err:12865 (+180.00°)")
}

func newTestDecoder(t *testing.T) decode.Decoder {
	c, err := pll.Derive(pll.DefaultConfig())
	require.NoError(t, err)

	d, err := decode.NewDecoder(decode.DefaultConfig(), c, nco.NewTable())
	require.NoError(t, err)
	return d
}

func TestProcess(t *testing.T) {
	d := newTestDecoder(t)

	signal, err := gen.Carrier{SampleRate: float64(d.Cfg.SampleRate), Seed: 1}.Synthesize(
		gen.Segment{Samples: d.Cfg.BlockLength / 2, Freq: 250},
	)
	require.NoError(t, err)

	block := make([]byte, d.Cfg.BlockLength)
	require.NoError(t, gen.F64toU8(gen.Interleave(signal), block))

	var audio, trace bytes.Buffer
	enc := json.NewEncoder(&trace)

	// An offset of 3 with a stride of 100 puts the first traced step at
	// index 97 of the block.
	n, err := Process(d, block, 3, &audio, enc, 100)
	require.NoError(t, err)
	require.Equal(t, d.Cfg.BlockSize, n)

	assert.Equal(t, 2*n, audio.Len())
	samples := make([]int16, n)
	require.NoError(t, binary.Read(&audio, binary.LittleEndian, samples))

	dec := json.NewDecoder(&trace)
	var offsets []int64
	for dec.More() {
		var tr Trace
		require.NoError(t, dec.Decode(&tr))
		offsets = append(offsets, tr.Offset)
	}
	require.NotEmpty(t, offsets)
	assert.Equal(t, int64(100), offsets[0])
	for _, o := range offsets {
		assert.Zero(t, o%100)
	}
	assert.Len(t, offsets, (3+n-1)/100)
}

func TestProcessNoTrace(t *testing.T) {
	d := newTestDecoder(t)

	var audio bytes.Buffer
	n, err := Process(d, make([]byte, d.Cfg.BlockLength), 0, &audio, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 2*n, audio.Len())
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestProcessWriteError(t *testing.T) {
	d := newTestDecoder(t)

	_, err := Process(d, make([]byte, d.Cfg.BlockLength), 0, failWriter{}, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing audio")
}
