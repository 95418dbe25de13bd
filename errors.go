package secbioauth

import (
	"errors"
)

var (
	// ErrDataIntegrity is returned when the input data violates a structural
	// invariant: a negative normalized entry, an empty or ragged table, or a
	// value that does not fit its allotted digit length.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrConfiguration is returned when a dataset has no tables or when a
	// quantized index falls outside the domain of its lookup table.
	ErrConfiguration = errors.New("configuration error")

	// ErrBackend wraps any failure reported by the homomorphic evaluation backend.
	ErrBackend = errors.New("backend error")
)
