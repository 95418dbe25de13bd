// Package backend defines the capabilities a homomorphic evaluation backend
// must offer to evaluate a verification plan: encryption of the probe bins,
// evaluation of single-input lookup tables over a small plaintext domain,
// place-value summation of the output slots, comparison with a threshold and
// decryption.
package backend

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"

	"github.com/VReyesUOL/SecBioAuth/decomp"
)

var (
	// ErrHandle is returned when a ciphertext handle was not produced by the
	// backend, or not by the operation the call expects.
	ErrHandle = errors.New("invalid ciphertext handle")
	// ErrUnsupported is returned when the backend cannot support the requested
	// plaintext domain or score range.
	ErrUnsupported = errors.New("unsupported requirements")
	// ErrInvalidArgument is returned when the arguments of an operation are
	// inconsistent with each other or with the requirements.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Ciphertext is an opaque handle on encrypted values.
type Ciphertext interface {
	// Len returns the number of values carried by the handle.
	Len() int
}

// Backend evaluates a verification plan on encrypted data.
// A Backend is created for one set of [Requirements] by a [Factory].
type Backend interface {
	// Encrypt encrypts values, each in [0, Domain).
	Encrypt(ctx context.Context, values []uint64) (Ciphertext, error)

	// EvaluateLookup evaluates luts[i] on the i-th value of ct and writes the
	// result to slot slots[i] of an output buffer of the given size. Slots not
	// written hold zero. Every lookup table value must be a digit in [0, Base).
	EvaluateLookup(ctx context.Context, ct Ciphertext, luts [][]uint64, slots []int, size int) (Ciphertext, error)

	// Sum adds the tableCount blocks of blockLen slots of ct slot-wise and
	// propagates the carries: the result decrypts to the blockLen base-Base
	// digits, least significant first, of the total.
	Sum(ctx context.Context, ct Ciphertext, blockLen, tableCount int) (Ciphertext, error)

	// Compare compares the total carried by a Sum result with threshold.
	// The result decrypts to a single value, 1 if the comparison holds and 0 otherwise.
	Compare(ctx context.Context, ct Ciphertext, threshold int64, kind Comparison) (Ciphertext, error)

	// Decrypt decrypts ct.
	Decrypt(ctx context.Context, ct Ciphertext) ([]uint64, error)
}

// Requirements are the plan properties a backend is parameterized for.
type Requirements struct {
	// Base is the decomposition base; lookup tables output digits in [0, Base).
	Base uint64
	// Domain is the number of probe bins; encrypted values are in [0, Domain).
	Domain int
	// SumDigitLength is the number of digits of the largest total.
	SumDigitLength int
	// Tables is the number of blocks added by Sum.
	Tables int
}

// Validate checks the requirements.
func (r Requirements) Validate() error {
	switch {
	case r.Base < 2:
		return errors.Wrapf(ErrInvalidArgument, "base %d < 2", r.Base)
	case r.Domain < 1:
		return errors.Wrapf(ErrInvalidArgument, "domain %d < 1", r.Domain)
	case r.SumDigitLength < 1:
		return errors.Wrapf(ErrInvalidArgument, "sum digit length %d < 1", r.SumDigitLength)
	case r.Tables < 1:
		return errors.Wrapf(ErrInvalidArgument, "table count %d < 1", r.Tables)
	}
	return nil
}

// Bound returns Base^SumDigitLength, an exclusive upper bound on any total.
func (r Requirements) Bound() uint64 {
	return decomp.Pow(r.Base, r.SumDigitLength)
}

// Size returns the size of the output buffer of the lookup evaluation.
func (r Requirements) Size() int {
	return r.Tables * r.SumDigitLength
}

func (r Requirements) String() string {
	return fmt.Sprintf("base=%d domain=%d sumDigits=%d tables=%d", r.Base, r.Domain, r.SumDigitLength, r.Tables)
}

// Factory creates backends.
type Factory interface {
	New(ctx context.Context, req Requirements) (Backend, error)
}

// FactoryFunc is a function implementing [Factory].
type FactoryFunc func(ctx context.Context, req Requirements) (Backend, error)

// New calls f(ctx, req).
func (f FactoryFunc) New(ctx context.Context, req Requirements) (Backend, error) {
	return f(ctx, req)
}

// CheckEncrypt checks that every value is in the plaintext domain.
func (r Requirements) CheckEncrypt(values []uint64) error {
	if len(values) == 0 {
		return errors.Wrap(ErrInvalidArgument, "no values to encrypt")
	}
	for i, v := range values {
		if v >= uint64(r.Domain) {
			return errors.Wrapf(ErrInvalidArgument, "value %d = %d is outside the domain [0, %d)", i, v, r.Domain)
		}
	}
	return nil
}

// CheckLookup checks the arguments of [Backend.EvaluateLookup] against n
// encrypted values: one lookup table and one distinct slot per value, slots
// in [0, size), tables no larger than the domain and digits in [0, Base).
// It returns the set of slots written by the lookups; the other slots of the
// output buffer are zeros.
func (r Requirements) CheckLookup(n int, luts [][]uint64, slots []int, size int) (*roaring.Bitmap, error) {

	if len(luts) != n || len(slots) != n {
		return nil, errors.Wrapf(ErrInvalidArgument, "%d values, %d lookup tables, %d slots", n, len(luts), len(slots))
	}

	occupied := roaring.New()
	for i, s := range slots {
		if s < 0 || s >= size {
			return nil, errors.Wrapf(ErrInvalidArgument, "slot %d = %d is outside [0, %d)", i, s, size)
		}
		if !occupied.CheckedAdd(uint32(s)) {
			return nil, errors.Wrapf(ErrInvalidArgument, "lookup %d writes slot %d twice", i, s)
		}
	}

	for i, lut := range luts {
		if len(lut) == 0 || len(lut) > r.Domain {
			return nil, errors.Wrapf(ErrInvalidArgument, "lookup table %d has %d entries for domain %d", i, len(lut), r.Domain)
		}
		for j, v := range lut {
			if v >= r.Base {
				return nil, errors.Wrapf(ErrInvalidArgument, "lookup table %d entry %d = %d is not a base-%d digit", i, j, v, r.Base)
			}
		}
	}

	return occupied, nil
}

// CheckSum checks the block layout of [Backend.Sum] against a buffer of n slots.
func (r Requirements) CheckSum(n, blockLen, tableCount int) error {
	if blockLen < 1 || tableCount < 1 || blockLen*tableCount != n {
		return errors.Wrapf(ErrInvalidArgument, "%d blocks of %d slots do not cover %d slots", tableCount, blockLen, n)
	}
	return nil
}
