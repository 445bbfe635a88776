package oracle

import (
	"math"

	"github.com/bemasher/rtlamsync/pll"
)

// Model is a second Go rendition of the fixed point loop written as one
// flat step function over plain integers, the way firmware would carry it.
// It shares nothing with package pll but the derived constants.
type Model struct {
	table [2048]int64

	alpha, beta int64
	fMin, fMax  int32
	twoPi       int32
	errScale    int64
	phiScale    int64
	frac        uint
	max         int64

	iir     bool
	b, a    [3]int64
	iirFrac uint

	// The accumulator and frequency are 32 bits wide in firmware.
	phi, freq      int32
	x1, x2, y1, y2 int64
	residue        int64
}

func NewModel(c *pll.Constants) *Model {
	m := &Model{
		alpha:    int64(c.Alpha),
		beta:     int64(c.Beta),
		fMin:     c.FreqMin,
		fMax:     c.FreqMax,
		twoPi:    c.TwoPi,
		errScale: c.ErrScale,
		phiScale: c.PhiScale,
		frac:     c.FracBits,
		max:      int64(c.Max),
		iir:      c.Config.Filter == "iir3",
		b:        c.B,
		a:        c.A,
		iirFrac:  c.IIRFracBits,
	}
	for k := range m.table {
		m.table[k] = int64(math.Round(math.Sin(2*math.Pi*float64(k)/2048) * 32767))
	}
	m.Reset()
	return m
}

// mid rounds half to even.
func mid(a, b int32) int32 {
	s := int64(a) + int64(b)
	q := s >> 1
	if s&1 == 1 && q&1 == 1 {
		q++
	}
	return int32(q)
}

func (m *Model) Reset() {
	m.phi = 0
	m.freq = mid(m.fMin, m.fMax)
	m.x1, m.x2, m.residue = 0, 0, 0
	m.y1, m.y2 = 0, 0
	if m.iir {
		m.y1, m.y2 = int64(m.freq), int64(m.freq)
	}
}

// rect2phase is the rational four quadrant detector, angle from the Q axis.
func rect2phase(i, q int64) int64 {
	if i == 0 && q == 0 {
		return 0
	}

	absi := i
	if absi < 0 {
		absi = -absi
	}

	var angle int64
	if q >= 0 {
		angle = 8192 - ((q-absi)<<13)/(q+absi)
	} else {
		angle = 24576 - ((q+absi)<<13)/(absi-q)
	}

	if i < 0 {
		return -angle
	}
	return angle
}

func (m *Model) Step(s pll.Sample) Triple {
	i, q := int64(s.I), int64(s.Q)

	idx := (int64(m.phi) * m.phiScale) >> m.frac
	if idx < 0 {
		idx += m.max + 1
	}
	vcoI := m.table[((idx>>4)+512)&0x7ff]
	vcoQ := m.table[(idx>>4)&0x7ff]

	syncedI := (i*vcoI + q*vcoQ) >> 15
	syncedQ := (-i*vcoQ + q*vcoI) >> 15
	err := (-rect2phase(syncedI, syncedQ) * m.errScale) >> m.frac

	if m.iir {
		y := err*m.b[0] + m.x1*m.b[1] + m.x2*m.b[2] + m.residue
		m.residue = y & (1<<m.iirFrac - 1)
		y = y>>m.iirFrac - m.a[1]*m.y1 - m.a[2]*m.y2
		m.x2, m.x1 = m.x1, err

		p := (err * m.b[2]) >> m.iirFrac
		f := y - p
		if f > int64(m.fMax) || f < int64(m.fMin) {
			if f > int64(m.fMax) {
				f = int64(m.fMax)
			} else {
				f = int64(m.fMin)
			}
			y = f + p
			n := m.x1*m.b[1] + m.x2*m.b[2]
			m.residue = -n & (1<<m.iirFrac - 1)
			m.y1 = y
			m.y2 = 2*y - f + (n+m.residue)>>m.iirFrac
		} else {
			m.y2, m.y1 = m.y1, y
		}
		m.freq = int32(f)
		m.phi += int32(y)
	} else {
		m.freq += int32((m.beta * err) >> m.frac)
		if m.freq > m.fMax {
			m.freq = m.fMax
		}
		if m.freq < m.fMin {
			m.freq = m.fMin
		}
		m.phi += m.freq + int32((m.alpha*err)>>m.frac)
	}

	if m.phi > m.twoPi {
		m.phi -= m.twoPi
	} else if m.phi <= -m.twoPi {
		m.phi += m.twoPi
	}

	return Triple{int32(-vcoQ), int32(vcoI), int32(err)}
}
