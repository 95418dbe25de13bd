// Package plan turns normalized HELR tables and a quantized template into the
// digit lookup tables and output slots evaluated by a homomorphic backend.
//
// A score entry v of table t is split into DigitLength(max_t, b) base-b digits.
// For the template row of t, digit position d yields a lookup table mapping
// each probe bin p to digit d of row[p]. The backend evaluates every lookup
// table on the encrypted probe bin and writes the result in the slot assigned
// by the [SlotMap]; summing the slots block-wise and propagating the carries
// recovers the large-domain score.
package plan

import (
	"encoding/binary"
	"math/bits"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
	"github.com/VReyesUOL/SecBioAuth/decomp"
	"github.com/VReyesUOL/SecBioAuth/table"
)

// LookupTable maps a probe bin to one digit of a score entry.
type LookupTable []uint64

// Base returns the decomposition base for tables with the given number of rows:
// 2^floor(bits/2) where bits = ceil(log2(dimension)). The base is at least 2.
func Base(dimension int) (uint64, error) {
	if dimension < 1 {
		return 0, errors.Wrapf(secbioauth.ErrConfiguration, "invalid table dimension %d", dimension)
	}
	logDim := bits.Len(uint(dimension - 1))
	return max(uint64(1)<<(logDim/2), 2), nil
}

// LookupTables returns, for each table t and digit position d, the lookup
// table of digit d of the row template[t] of table t.
func LookupTables(tables []table.Normalized, template []int, base uint64) (luts [][]LookupTable, err error) {

	if len(template) != len(tables) {
		return nil, errors.Wrapf(secbioauth.ErrConfiguration, "template has %d features for %d tables", len(template), len(tables))
	}

	luts = make([][]LookupTable, len(tables))

	for t := range tables {

		idx := template[t]
		if idx < 0 || idx >= tables[t].Rows() {
			return nil, errors.Wrapf(secbioauth.ErrConfiguration, "table %d: template index %d out of range [0, %d)", t, idx, tables[t].Rows())
		}

		length := decomp.DigitLength(tables[t].Max(), base)
		row := tables[t].Values[idx]

		luts[t] = make([]LookupTable, length)
		for d := range luts[t] {
			luts[t][d] = make(LookupTable, len(row))
		}

		for p, v := range row {
			digits, err := decomp.DecomposeChecked(v, base, length)
			if err != nil {
				return nil, errors.Wrapf(err, "table %d, entry [%d][%d]", t, idx, p)
			}
			for d := range digits {
				luts[t][d][p] = digits[d]
			}
		}
	}

	return
}

// RepeatProbe repeats probe[t] lengths[t] times, once for every lookup table
// of table t that reads it.
func RepeatProbe(probe []int, lengths []int) (repeated []uint64) {
	for t := range probe {
		for i := 0; i < lengths[t]; i++ {
			repeated = append(repeated, uint64(probe[t]))
		}
	}
	return
}

// ExpectedScore returns the sum over tables of tables[t][template[t]][probe[t]].
func ExpectedScore(tables []table.Normalized, template, probe []int) (score uint64, err error) {
	if len(template) != len(tables) || len(probe) != len(tables) {
		return 0, errors.Wrapf(secbioauth.ErrConfiguration, "got %d template and %d probe features for %d tables", len(template), len(probe), len(tables))
	}
	for t := range tables {
		if template[t] < 0 || template[t] >= tables[t].Rows() || probe[t] < 0 || probe[t] >= tables[t].Cols() {
			return 0, errors.Wrapf(secbioauth.ErrConfiguration, "table %d: index (%d, %d) out of range", t, template[t], probe[t])
		}
		score += tables[t].Values[template[t]][probe[t]]
	}
	return
}

// Plan is the evaluation plan of one verification attempt.
type Plan struct {
	// Base is the decomposition base.
	Base uint64
	// Domain is the size of the largest lookup table, i.e. the plaintext
	// domain the backend must support for the encrypted probe.
	Domain int
	// LookupTables[t][d] is the lookup table of digit d of table t.
	LookupTables [][]LookupTable
	// RepeatedProbe holds one probe bin per lookup table, in the order of
	// the flattened lookup tables.
	RepeatedProbe []uint64

	*SlotMap
}

// New builds the evaluation plan of the probe against the template.
func New(tables []table.Normalized, template, probe []int) (p *Plan, err error) {

	if len(tables) == 0 {
		return nil, errors.Wrap(secbioauth.ErrConfiguration, "no tables")
	}

	if len(probe) != len(tables) {
		return nil, errors.Wrapf(secbioauth.ErrConfiguration, "probe has %d features for %d tables", len(probe), len(tables))
	}

	p = new(Plan)

	if p.Base, err = Base(tables[0].Rows()); err != nil {
		return nil, err
	}

	for t := range tables {
		if probe[t] < 0 || probe[t] >= tables[t].Cols() {
			return nil, errors.Wrapf(secbioauth.ErrConfiguration, "table %d: probe index %d out of range [0, %d)", t, probe[t], tables[t].Cols())
		}
		p.Domain = max(p.Domain, tables[t].Cols())
	}

	if p.SlotMap, err = NewSlotMap(tables, p.Base); err != nil {
		return nil, err
	}

	if p.LookupTables, err = LookupTables(tables, template, p.Base); err != nil {
		return nil, err
	}

	p.RepeatedProbe = RepeatProbe(probe, p.DigitLengths)

	return
}

// FlatLookupTables returns the lookup tables in table-major order, aligned
// with RepeatedProbe and Slots.
func (p *Plan) FlatLookupTables() (flat [][]uint64) {
	for t := range p.LookupTables {
		for d := range p.LookupTables[t] {
			flat = append(flat, p.LookupTables[t][d])
		}
	}
	return
}

// Bound returns base^SumDigitLength, an exclusive upper bound on the normalized score.
func (p *Plan) Bound() uint64 {
	return decomp.Pow(p.Base, p.SumDigitLength)
}

// Digest returns a blake3 digest of the template-dependent part of the plan:
// base, digit lengths, slots and lookup tables. The probe is not included.
func (p *Plan) Digest() []byte {
	hasher := blake3.New()

	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = hasher.Write(buf[:])
	}

	write(p.Base)
	write(uint64(p.SumDigitLength))
	for _, l := range p.DigitLengths {
		write(uint64(l))
	}
	for _, s := range p.Slots {
		write(uint64(s))
	}
	for _, lut := range p.FlatLookupTables() {
		write(uint64(len(lut)))
		for _, v := range lut {
			write(v)
		}
	}

	return hasher.Sum(nil)
}
