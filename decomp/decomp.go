// Package decomp implements the base-b positional decomposition used to split
// large table entries into digits that fit a small plaintext domain.
package decomp

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
)

// Decompose returns the length base-b digits of value, least significant digit first.
// If value >= base^length the high-order digits are dropped.
func Decompose[T constraints.Unsigned](value, base T, length int) (digits []T) {
	digits = make([]T, length)
	for i := range digits {
		digits[i] = value % base
		value /= base
	}
	return
}

// DecomposeChecked is [Decompose] but returns an error wrapping
// [secbioauth.ErrDataIntegrity] if value does not fit in length digits.
func DecomposeChecked[T constraints.Unsigned](value, base T, length int) ([]T, error) {
	if base < 2 {
		return nil, errors.Wrapf(secbioauth.ErrConfiguration, "invalid decomposition base %d", base)
	}
	digits := make([]T, length)
	v := value
	for i := range digits {
		digits[i] = v % base
		v /= base
	}
	if v != 0 {
		return nil, errors.Wrapf(secbioauth.ErrDataIntegrity, "value %d does not fit in %d base-%d digits", value, length, base)
	}
	return digits, nil
}

// Recompose returns sum(digits[i] * base^i).
func Recompose[T constraints.Unsigned](digits []T, base T) (value T) {
	for i := len(digits) - 1; i >= 0; i-- {
		value = value*base + digits[i]
	}
	return
}

// DigitLength returns the minimum number of base-b digits needed to
// represent every integer in [0, max], that is ceil(log_b(max+1)).
// The result is at least 1.
func DigitLength[T constraints.Unsigned](max, base T) (length int) {
	if base < 2 {
		panic("decomp: base must be at least 2")
	}
	length = 1
	for v := max; v >= base; v /= base {
		length++
	}
	return
}

// Pow returns base^exp, saturating at the maximum value of T.
func Pow[T constraints.Unsigned](base T, exp int) (res T) {
	res = 1
	for i := 0; i < exp; i++ {
		next := res * base
		if base != 0 && next/base != res {
			return ^T(0)
		}
		res = next
	}
	return
}
