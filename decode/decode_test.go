package decode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/rtlamsync/gen"
	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/pll"
)

func newDecoder(t testing.TB, cfg Config) Decoder {
	c, err := pll.Derive(pll.DefaultConfig())
	require.NoError(t, err)

	d, err := NewDecoder(cfg, c, nco.NewTable())
	require.NoError(t, err)
	return d
}

// iq synthesizes segments at the front end rate as rtl-sdr bytes.
func iq(t testing.TB, cfg Config, segs ...gen.Segment) []byte {
	signal, err := gen.Carrier{SampleRate: float64(cfg.SampleRate), Noise: 0.02, Seed: 1}.Synthesize(segs...)
	require.NoError(t, err)

	f64 := gen.Interleave(signal)
	u8 := make([]byte, len(f64))
	require.NoError(t, gen.F64toU8(f64, u8))
	return u8
}

func TestSampleLUT(t *testing.T) {
	lut := NewSampleLUT(4095)

	assert.Equal(t, int32(-4095), lut[0])
	assert.Equal(t, int32(4095), lut[255])

	// Symmetric about the 127.5 offset.
	for idx := 0; idx < 128; idx++ {
		assert.Equal(t, -lut[idx], lut[255-idx])
	}
}

func TestDecimate(t *testing.T) {
	lut := NewSampleLUT(4095)

	input := make([]byte, 2*4*3+5)
	for idx := range input {
		if idx&1 == 0 {
			input[idx] = 255
		}
	}

	out := make([]pll.Sample, 8)
	n := lut.Decimate(input, out, 4)
	require.Equal(t, 3, n)
	for _, s := range out[:n] {
		assert.Equal(t, pll.Sample{I: 4095, Q: -4095}, s)
	}

	// Alternating extremes average to zero.
	for idx := range input {
		input[idx] = byte(255 * ((idx >> 1) & 1))
	}
	n = lut.Decimate(input, out, 2)
	require.Equal(t, 7, n)
	for _, s := range out[:n] {
		assert.Equal(t, pll.Sample{}, s)
	}

	// Output length bounds the count.
	assert.Equal(t, 2, lut.Decimate(input, out[:2], 1))
}

func TestNewDecoderErrors(t *testing.T) {
	c, err := pll.Derive(pll.DefaultConfig())
	require.NoError(t, err)
	tbl := nco.NewTable()

	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"rate mismatch", func(cfg *Config) { cfg.Decimation = 8 }},
		{"zero decimation", func(cfg *Config) { cfg.Decimation = 0 }},
		{"zero rate", func(cfg *Config) { cfg.SampleRate = 0 }},
		{"zero block", func(cfg *Config) { cfg.BlockSize = 0 }},
		{"bad mode", func(cfg *Config) { cfg.Mode = "fm" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			_, err := NewDecoder(cfg, c, tbl)
			assert.Error(t, err)
		})
	}

	_, err = NewDecoder(DefaultConfig(), nil, tbl)
	assert.Error(t, err)
}

func TestDecodeLocks(t *testing.T) {
	for _, mode := range []string{"sync", "am"} {
		t.Run(mode, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Mode = mode
			d := newDecoder(t, cfg)
			require.Equal(t, cfg.BlockSize*cfg.Decimation*2, d.Cfg.BlockLength)

			blocks := 4
			input := iq(t, cfg, gen.Segment{
				Samples: blocks * cfg.BlockSize * cfg.Decimation,
				Freq:    300,
				Depth:   0.5,
				ModFreq: 400,
			})

			limit := float64(d.Constants.Pi / 32)
			settle := int(8 * d.Constants.Config.SampleRate / d.Constants.Config.LoopBandwidth)

			sample := 0
			var peak int16
			for block := 0; block < blocks; block++ {
				results := d.Decode(input[block*d.Cfg.BlockLength : (block+1)*d.Cfg.BlockLength])
				require.Len(t, results, cfg.BlockSize)

				for idx, r := range results {
					if sample >= settle {
						require.Less(t, math.Abs(float64(r.Err)), limit, "sample %d", sample)
						if d.Audio[idx] > peak {
							peak = d.Audio[idx]
						}
					}
					sample++
				}
			}

			// A half depth tone swings the audio by about a third of full
			// scale either way.
			assert.Greater(t, int(peak), int(d.Constants.One)/5)
		})
	}
}

func TestDecodeShortBlock(t *testing.T) {
	d := newDecoder(t, DefaultConfig())

	results := d.Decode(make([]byte, 2*d.Cfg.Decimation*3+1))
	assert.Len(t, results, 3)

	results = d.Decode(make([]byte, 4*d.Cfg.BlockLength))
	assert.Len(t, results, d.Cfg.BlockSize)
}

func TestDecodeReset(t *testing.T) {
	cfg := DefaultConfig()
	d := newDecoder(t, cfg)
	input := iq(t, cfg, gen.Segment{Samples: cfg.BlockSize * cfg.Decimation, Freq: -700})

	first := append([]pll.StepResult(nil), d.Decode(input)...)
	d.Reset()
	assert.Equal(t, first, d.Decode(input))
}

func BenchmarkSampleLUT(b *testing.B) {
	d := newDecoder(b, DefaultConfig())
	input := make([]byte, d.Cfg.BlockLength)

	b.SetBytes(int64(d.Cfg.BlockLength))
	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		d.lut.Decimate(input, d.Samples, d.Cfg.Decimation)
	}
}

func BenchmarkDecode(b *testing.B) {
	cfg := DefaultConfig()
	d := newDecoder(b, cfg)
	block := iq(b, cfg, gen.Segment{Samples: cfg.BlockSize * cfg.Decimation, Freq: 300})

	b.SetBytes(int64(d.Cfg.BlockLength))
	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		_ = d.Decode(block)
	}
}

func TestValidSampleRate(t *testing.T) {
	for rate, valid := range map[int]bool{
		225000:  false,
		240000:  true,
		300000:  true,
		300001:  false,
		2400000: true,
		3200000: true,
		3200001: false,
	} {
		assert.Equal(t, valid, ValidSampleRate(rate), "%d", rate)
	}
}

func TestSampleRates(t *testing.T) {
	rates := SampleRates(15000)
	require.NotEmpty(t, rates)

	assert.Equal(t, Rate{240000, 16}, rates[0])
	for _, r := range rates {
		assert.True(t, ValidSampleRate(r.SampleRate))
		assert.Equal(t, 15000*r.Decimation, r.SampleRate)
	}
	assert.Equal(t, Rate{3195000, 213}, rates[len(rates)-1])

	assert.Empty(t, SampleRates(0))
}
