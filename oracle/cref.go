//go:build cgo

package oracle

/*
#include <stdint.h>
#include <string.h>

typedef struct {
	int32_t alpha, beta, f_min, f_max;
	int32_t two_pi, max;
	int64_t err_scale, phi_scale;
	int frac_bits;

	int iir;
	int64_t b[3], a[3];
	int iir_frac_bits;

	int32_t table[2048];
} amsync_consts;

typedef struct {
	int32_t phi, freq;
	int64_t x1, x2, y1, y2, residue;
} amsync_state;

static int32_t amsync_rect2phase(int32_t i, int32_t q)
{
	int64_t absi, angle;

	if (i == 0 && q == 0)
		return 0;

	absi = i < 0 ? -(int64_t)i : i;
	if (q >= 0)
		angle = 8192 - ((((int64_t)q - absi) * 8192) / ((int64_t)q + absi));
	else
		angle = 24576 - ((((int64_t)q + absi) * 8192) / (absi - (int64_t)q));

	return (int32_t)(i < 0 ? -angle : angle);
}

/* (a + b) / 2 rounded half to even. */
static int32_t amsync_mid(int32_t a, int32_t b)
{
	int64_t s = (int64_t)a + b;
	int64_t q = s >> 1;

	if ((s & 1) && (q & 1))
		q++;
	return (int32_t)q;
}

static void amsync_reset(const amsync_consts *c, amsync_state *s)
{
	memset(s, 0, sizeof(*s));
	s->freq = amsync_mid(c->f_min, c->f_max);
	if (c->iir)
		s->y1 = s->y2 = s->freq;
}

static void amsync_step(const amsync_consts *c, amsync_state *s,
	int32_t i, int32_t q, int32_t *out_i, int32_t *out_q, int32_t *out_err)
{
	int64_t idx = ((int64_t)s->phi * c->phi_scale) >> c->frac_bits;
	int64_t vco_i, vco_q, synced_i, synced_q, err, y, p, f, n;

	if (idx < 0)
		idx += (int64_t)c->max + 1;

	vco_i = c->table[((idx >> 4) + 512) & 0x7ff];
	vco_q = c->table[(idx >> 4) & 0x7ff];

	synced_i = ((int64_t)i * vco_i + (int64_t)q * vco_q) >> 15;
	synced_q = (-(int64_t)i * vco_q + (int64_t)q * vco_i) >> 15;
	err = (-(int64_t)amsync_rect2phase((int32_t)synced_i, (int32_t)synced_q) * c->err_scale) >> c->frac_bits;

	if (c->iir) {
		y = err * c->b[0] + s->x1 * c->b[1] + s->x2 * c->b[2] + s->residue;
		s->residue = y & (((int64_t)1 << c->iir_frac_bits) - 1);
		y = (y >> c->iir_frac_bits) - c->a[1] * s->y1 - c->a[2] * s->y2;
		s->x2 = s->x1;
		s->x1 = err;

		p = (err * c->b[2]) >> c->iir_frac_bits;
		f = y - p;
		if (f > c->f_max || f < c->f_min) {
			f = f > c->f_max ? c->f_max : c->f_min;
			y = f + p;
			n = s->x1 * c->b[1] + s->x2 * c->b[2];
			s->residue = -n & (((int64_t)1 << c->iir_frac_bits) - 1);
			s->y1 = y;
			s->y2 = 2 * y - f + ((n + s->residue) >> c->iir_frac_bits);
		} else {
			s->y2 = s->y1;
			s->y1 = y;
		}
		s->freq = (int32_t)f;
		s->phi += (int32_t)y;
	} else {
		s->freq += (int32_t)((c->beta * err) >> c->frac_bits);
		if (s->freq > c->f_max)
			s->freq = c->f_max;
		if (s->freq < c->f_min)
			s->freq = c->f_min;
		s->phi += s->freq + (int32_t)((c->alpha * err) >> c->frac_bits);
	}

	if (s->phi > c->two_pi)
		s->phi -= c->two_pi;
	else if (s->phi <= -c->two_pi)
		s->phi += c->two_pi;

	*out_i = (int32_t)-vco_q;
	*out_q = (int32_t)vco_i;
	*out_err = (int32_t)err;
}
*/
import "C"

import (
	"github.com/pkg/errors"

	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/pll"
)

// CRef is the loop compiled from C, as the firmware builds it.
type CRef struct {
	consts C.amsync_consts
	state  C.amsync_state
}

// NewCRef loads the constants and oscillator table into a C loop.
func NewCRef(c *pll.Constants, tbl *nco.Table) (*CRef, error) {
	if c == nil || tbl == nil {
		return nil, errors.New("oracle: nil constants or table")
	}

	ref := &CRef{}
	k := &ref.consts

	k.alpha = C.int32_t(c.Alpha)
	k.beta = C.int32_t(c.Beta)
	k.f_min = C.int32_t(c.FreqMin)
	k.f_max = C.int32_t(c.FreqMax)
	k.two_pi = C.int32_t(c.TwoPi)
	k.max = C.int32_t(c.Max)
	k.err_scale = C.int64_t(c.ErrScale)
	k.phi_scale = C.int64_t(c.PhiScale)
	k.frac_bits = C.int(c.FracBits)

	if c.Config.Filter == "iir3" {
		k.iir = 1
	}
	for idx := range c.B {
		k.b[idx] = C.int64_t(c.B[idx])
		k.a[idx] = C.int64_t(c.A[idx])
	}
	k.iir_frac_bits = C.int(c.IIRFracBits)

	for idx, v := range tbl {
		k.table[idx] = C.int32_t(v)
	}

	ref.Reset()
	return ref, nil
}

func (ref *CRef) Reset() {
	C.amsync_reset(&ref.consts, &ref.state)
}

func (ref *CRef) Step(s pll.Sample) Triple {
	var i, q, err C.int32_t
	C.amsync_step(&ref.consts, &ref.state, C.int32_t(s.I), C.int32_t(s.Q), &i, &q, &err)
	return Triple{int32(i), int32(q), int32(err)}
}
