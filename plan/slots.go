package plan

import (
	"github.com/pkg/errors"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
	"github.com/VReyesUOL/SecBioAuth/decomp"
	"github.com/VReyesUOL/SecBioAuth/table"
)

// SlotMap assigns to each (table, digit) pair a place-value slot of a shared
// output buffer. The buffer is split in one block of SumDigitLength slots per
// table, and digit d of every table lands at offset d of its block, so that
// adding the blocks slot-wise adds digits of equal place value.
type SlotMap struct {
	// DigitLengths[t] is the number of digits of table t.
	DigitLengths []int
	// SumDigitLength is the number of digits of the largest possible score.
	SumDigitLength int
	// Slots lists the slot of every (table, digit) pair in table-major order.
	Slots []int
}

// NewSlotMap computes the digit lengths of the tables and their output slots for the given base.
func NewSlotMap(tables []table.Normalized, base uint64) (*SlotMap, error) {

	if len(tables) == 0 {
		return nil, errors.Wrap(secbioauth.ErrConfiguration, "no tables")
	}

	if base < 2 {
		return nil, errors.Wrapf(secbioauth.ErrConfiguration, "invalid decomposition base %d", base)
	}

	m := &SlotMap{
		DigitLengths: make([]int, len(tables)),
	}

	var total uint64
	for i := range tables {
		if total+tables[i].Max() < total {
			return nil, errors.Wrap(secbioauth.ErrDataIntegrity, "maximum score overflows uint64")
		}
		total += tables[i].Max()
		m.DigitLengths[i] = decomp.DigitLength(tables[i].Max(), base)
	}

	m.SumDigitLength = decomp.DigitLength(total, base)

	for t, length := range m.DigitLengths {
		for d := 0; d < length; d++ {
			m.Slots = append(m.Slots, m.Slot(t, d))
		}
	}

	return m, nil
}

// Slot returns the output slot of digit d of table t.
func (m *SlotMap) Slot(t, d int) int {
	return t*m.SumDigitLength + d
}

// Size returns the size of the output buffer.
func (m *SlotMap) Size() int {
	return len(m.DigitLengths) * m.SumDigitLength
}

// Tables returns the number of tables.
func (m *SlotMap) Tables() int {
	return len(m.DigitLengths)
}
