// Package nco implements a table driven numerically controlled oscillator.
package nco

import "math"

const (
	// TableBits is log2 of the number of entries in a Table.
	TableBits = 11

	// TableSize is the number of entries spanning one cycle.
	TableSize = 1 << TableBits

	// QuarterCycle is the index offset from a sine to its cosine.
	QuarterCycle = TableSize >> 2

	// HalfCycle is the index offset from a sample to its negation.
	HalfCycle = TableSize >> 1

	// TableMask wraps any index into the table.
	TableMask = TableSize - 1

	// Amplitude is the peak value of a table entry.
	Amplitude = 1<<15 - 1

	// FineBits is the width of the phase index before it is reduced to
	// TableBits.
	FineBits = 15
)

// Table holds one cycle of a quantized sine. A Table is read only once
// created and may be shared between any number of oscillators.
type Table [TableSize]int32

// NewTable pre-computes one full cycle of sin scaled to Amplitude.
func NewTable() *Table {
	var tbl Table
	for idx := range tbl {
		tbl[idx] = int32(math.Round(math.Sin(2*math.Pi*float64(idx)/TableSize) * Amplitude))
	}
	return &tbl
}

// Sin returns the entry at idx, wrapping any integer idx into the table.
func (tbl *Table) Sin(idx int) int32 {
	return tbl[idx&TableMask]
}

// Cos returns the entry a quarter cycle ahead of idx.
func (tbl *Table) Cos(idx int) int32 {
	return tbl[(idx+QuarterCycle)&TableMask]
}

// Oscillator maps a fixed-point phase accumulator onto a Table.
type Oscillator struct {
	Table *Table

	// PhiScale is the reciprocal scale from accumulator units to the
	// FineBits wide phase index, itself carrying FracBits of fraction.
	PhiScale int64
	FracBits uint
}

// Index scales phi into a table index. Negative phases are folded by one
// full cycle before the fine index is reduced.
func (o Oscillator) Index(phi int32) int {
	idx := (int64(phi) * o.PhiScale) >> o.FracBits
	if idx < 0 {
		idx += 1 << FineBits
	}
	return int(idx >> (FineBits - TableBits))
}

// Lookup returns the quantized cosine and sine at phi.
func (o Oscillator) Lookup(phi int32) (cos, sin int32) {
	idx := o.Index(phi)
	return o.Table.Cos(idx), o.Table.Sin(idx)
}
