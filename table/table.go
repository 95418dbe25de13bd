// Package table implements HELR feature tables and their offset normalization.
package table

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
)

// FeatureTable is the score matrix of one biometric feature.
// Rows are indexed by the template bin, columns by the probe bin.
// Entry [0][len-1] is the bias reference of the table.
type FeatureTable [][]int64

// Dimension returns the number of rows of the table.
func (t FeatureTable) Dimension() int {
	return len(t)
}

// Validate checks that the table is non-empty and rectangular.
func (t FeatureTable) Validate() error {
	if len(t) == 0 || len(t[0]) == 0 {
		return errors.Wrap(secbioauth.ErrDataIntegrity, "empty table")
	}
	cols := len(t[0])
	for i, row := range t {
		if len(row) != cols {
			return errors.Wrapf(secbioauth.ErrDataIntegrity, "row %d has %d entries, expected %d", i, len(row), cols)
		}
	}
	return nil
}

// Offset returns the bias reference of the table, the entry at row 0, last column.
func (t FeatureTable) Offset() int64 {
	return t[0][len(t[0])-1]
}

// Normalized is a [FeatureTable] from which its bias reference has been
// subtracted. All entries are non-negative.
type Normalized struct {
	Values [][]uint64
	Offset int64
	max    uint64
}

// Rows returns the number of template bins of the table.
func (n Normalized) Rows() int {
	return len(n.Values)
}

// Cols returns the number of probe bins of the table.
func (n Normalized) Cols() int {
	if len(n.Values) == 0 {
		return 0
	}
	return len(n.Values[0])
}

// Max returns the largest entry of the table.
func (n Normalized) Max() uint64 {
	return n.max
}

// OriginIsMax reports whether the entry at [0][0] is the largest entry of
// the table, which is how the HELR tables are laid out.
func (n Normalized) OriginIsMax() bool {
	return len(n.Values) > 0 && len(n.Values[0]) > 0 && n.Values[0][0] == n.max
}

// Normalize subtracts the bias reference of each table from all its entries.
func Normalize(t FeatureTable) (n Normalized, err error) {

	if err = t.Validate(); err != nil {
		return
	}

	n.Offset = t.Offset()
	n.Values = make([][]uint64, len(t))

	for i, row := range t {
		n.Values[i] = make([]uint64, len(row))
		for j, v := range row {
			if v < n.Offset {
				return Normalized{}, errors.Wrapf(secbioauth.ErrDataIntegrity, "entry [%d][%d]=%d is smaller than the offset %d", i, j, v, n.Offset)
			}
			n.Values[i][j] = uint64(v - n.Offset)
			n.max = max(n.max, n.Values[i][j])
		}
	}

	return
}

// NormalizeAll normalizes every table and returns the sum of the removed
// offsets. Tables are processed concurrently; the offsets are accumulated
// in input order. Every failing table is reported in the returned error.
func NormalizeAll(ctx context.Context, tables []FeatureTable) (normalized []Normalized, globalOffset int64, err error) {

	if len(tables) == 0 {
		return nil, 0, errors.Wrap(secbioauth.ErrConfiguration, "dataset has no tables")
	}

	normalized = make([]Normalized, len(tables))
	errs := make([]error, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	for i := range tables {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if normalized[i], errs[i] = Normalize(tables[i]); errs[i] != nil {
				errs[i] = errors.Wrapf(errs[i], "table %d", i)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, 0, err
	}

	var merr *multierror.Error
	for _, e := range errs {
		if e != nil {
			merr = multierror.Append(merr, e)
		}
	}
	if err = merr.ErrorOrNil(); err != nil {
		return nil, 0, err
	}

	if err = ctx.Err(); err != nil {
		return nil, 0, err
	}

	for i := range normalized {
		globalOffset += normalized[i].Offset
	}

	return
}

// NewNormalized builds a [Normalized] table from already offset values.
func NewNormalized(values [][]uint64, offset int64) (n Normalized, err error) {
	if len(values) == 0 || len(values[0]) == 0 {
		return n, errors.Wrap(secbioauth.ErrDataIntegrity, "empty table")
	}
	for i, row := range values {
		if len(row) != len(values[0]) {
			return n, errors.Wrapf(secbioauth.ErrDataIntegrity, "row %d has %d entries, expected %d", i, len(row), len(values[0]))
		}
		for _, v := range row {
			n.max = max(n.max, v)
		}
	}
	n.Values = values
	n.Offset = offset
	return
}
