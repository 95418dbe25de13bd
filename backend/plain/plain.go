// Package plain implements a cleartext [backend.Backend]. It evaluates plans
// exactly as an encrypted backend would, digit by digit, and serves as a
// reference to test the planning.
package plain

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"

	"github.com/VReyesUOL/SecBioAuth/backend"
	"github.com/VReyesUOL/SecBioAuth/decomp"
)

type stage int

const (
	stageInput stage = iota
	stageLookup
	stageSum
	stageCompare
)

func (s stage) String() string {
	return [...]string{"input", "lookup", "sum", "compare"}[s]
}

// Ciphertext is a cleartext handle.
type Ciphertext struct {
	stage  stage
	values []uint64

	// occupied are the slots written by EvaluateLookup.
	occupied *roaring.Bitmap
}

// Len returns the number of values of the handle.
func (ct *Ciphertext) Len() int {
	return len(ct.values)
}

// Backend is a cleartext [backend.Backend].
type Backend struct {
	req backend.Requirements
}

// New creates a new [Backend] for the given requirements.
func New(req backend.Requirements) (*Backend, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &Backend{req: req}, nil
}

// Factory is a [backend.Factory] of cleartext backends.
var Factory = backend.FactoryFunc(func(_ context.Context, req backend.Requirements) (backend.Backend, error) {
	return New(req)
})

// Requirements returns the requirements the backend was created for.
func (b *Backend) Requirements() backend.Requirements {
	return b.req
}

func (b *Backend) handle(ct backend.Ciphertext, want stage) (*Ciphertext, error) {
	c, ok := ct.(*Ciphertext)
	if !ok || c == nil {
		return nil, errors.Wrapf(backend.ErrHandle, "%T is not a cleartext handle", ct)
	}
	if c.stage != want {
		return nil, errors.Wrapf(backend.ErrHandle, "got a %s handle, expected a %s handle", c.stage, want)
	}
	return c, nil
}

// Encrypt wraps a copy of values.
func (b *Backend) Encrypt(ctx context.Context, values []uint64) (backend.Ciphertext, error) {
	if err := b.req.CheckEncrypt(values); err != nil {
		return nil, err
	}
	return &Ciphertext{stage: stageInput, values: append([]uint64(nil), values...)}, nil
}

// EvaluateLookup evaluates the lookup tables on the values of ct.
func (b *Backend) EvaluateLookup(ctx context.Context, ct backend.Ciphertext, luts [][]uint64, slots []int, size int) (backend.Ciphertext, error) {

	in, err := b.handle(ct, stageInput)
	if err != nil {
		return nil, err
	}

	occupied, err := b.req.CheckLookup(in.Len(), luts, slots, size)
	if err != nil {
		return nil, err
	}

	out := &Ciphertext{stage: stageLookup, values: make([]uint64, size), occupied: occupied}
	for i, v := range in.values {
		if v >= uint64(len(luts[i])) {
			return nil, errors.Wrapf(backend.ErrInvalidArgument, "value %d = %d is outside lookup table %d of size %d", i, v, i, len(luts[i]))
		}
		out.values[slots[i]] = luts[i][v]
	}

	return out, nil
}

// Sum adds the blocks of ct digit-wise and propagates the carries.
func (b *Backend) Sum(ctx context.Context, ct backend.Ciphertext, blockLen, tableCount int) (backend.Ciphertext, error) {

	in, err := b.handle(ct, stageLookup)
	if err != nil {
		return nil, err
	}

	if err = b.req.CheckSum(in.Len(), blockLen, tableCount); err != nil {
		return nil, err
	}

	columns := make([]uint64, blockLen)
	for it := in.occupied.Iterator(); it.HasNext(); {
		i := int(it.Next())
		columns[i%blockLen] += in.values[i]
	}

	digits := make([]uint64, blockLen)

	var carry uint64
	for d, column := range columns {
		column += carry
		digits[d] = column % b.req.Base
		carry = column / b.req.Base
	}

	if carry != 0 {
		return nil, errors.Wrapf(backend.ErrInvalidArgument, "sum overflows %d base-%d digits", blockLen, b.req.Base)
	}

	return &Ciphertext{stage: stageSum, values: digits}, nil
}

// Compare compares the total of a Sum result with threshold.
func (b *Backend) Compare(ctx context.Context, ct backend.Ciphertext, threshold int64, kind backend.Comparison) (backend.Ciphertext, error) {

	in, err := b.handle(ct, stageSum)
	if err != nil {
		return nil, err
	}

	if err = kind.Validate(); err != nil {
		return nil, err
	}

	var bit uint64
	if kind.Holds(backend.Order(decomp.Recompose(in.values, b.req.Base), threshold)) {
		bit = 1
	}

	return &Ciphertext{stage: stageCompare, values: []uint64{bit}}, nil
}

// Decrypt returns a copy of the values of ct.
func (b *Backend) Decrypt(ctx context.Context, ct backend.Ciphertext) ([]uint64, error) {
	c, ok := ct.(*Ciphertext)
	if !ok || c == nil {
		return nil, errors.Wrapf(backend.ErrHandle, "%T is not a cleartext handle", ct)
	}
	return append([]uint64(nil), c.values...), nil
}
