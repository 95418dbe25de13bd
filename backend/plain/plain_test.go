package plain

import (
	"context"
	"fmt"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/VReyesUOL/SecBioAuth/backend"
	"github.com/VReyesUOL/SecBioAuth/decomp"
	"github.com/VReyesUOL/SecBioAuth/plan"
	"github.com/VReyesUOL/SecBioAuth/table"
)

var tableA = table.FeatureTable{
	{5, 3, 1, 0},
	{2, 1, 0, 4},
	{6, 2, 3, 1},
	{0, 1, 2, 5},
}

func requirements(p *plan.Plan) backend.Requirements {
	return backend.Requirements{
		Base:           p.Base,
		Domain:         p.Domain,
		SumDigitLength: p.SumDigitLength,
		Tables:         p.Tables(),
	}
}

func TestPlanEvaluation(t *testing.T) {

	ctx := context.Background()

	normalized, _, err := table.NormalizeAll(ctx, []table.FeatureTable{tableA, tableA})
	require.NoError(t, err)

	for template0 := 0; template0 < 4; template0++ {
		for probe0 := 0; probe0 < 4; probe0++ {
			template := []int{template0, 3 - template0}
			probe := []int{probe0, (probe0 + 1) % 4}

			t.Run(fmt.Sprintf("Template=%v/Probe=%v", template, probe), func(t *testing.T) {

				p, err := plan.New(normalized, template, probe)
				require.NoError(t, err)

				expected, err := plan.ExpectedScore(normalized, template, probe)
				require.NoError(t, err)

				b, err := Factory.New(ctx, requirements(p))
				require.NoError(t, err)

				ct, err := b.Encrypt(ctx, p.RepeatedProbe)
				require.NoError(t, err)

				ct, err = b.EvaluateLookup(ctx, ct, p.FlatLookupTables(), p.Slots, p.Size())
				require.NoError(t, err)

				sum, err := b.Sum(ctx, ct, p.SumDigitLength, p.Tables())
				require.NoError(t, err)

				digits, err := b.Decrypt(ctx, sum)
				require.NoError(t, err)
				require.Len(t, digits, p.SumDigitLength)
				require.Equal(t, expected, decomp.Recompose(digits, p.Base))

				for _, tc := range []struct {
					threshold int64
					want      uint64
				}{
					{int64(expected), 1},
					{int64(expected) + 1, 0},
					{-1, 1},
				} {
					cmp, err := b.Compare(ctx, sum, tc.threshold, backend.GE)
					require.NoError(t, err)
					bit, err := b.Decrypt(ctx, cmp)
					require.NoError(t, err)
					require.Equal(t, []uint64{tc.want}, bit)
				}
			})
		}
	}
}

func TestTwoTablesExample(t *testing.T) {

	ctx := context.Background()

	normalized, offset, err := table.NormalizeAll(ctx, []table.FeatureTable{tableA, tableA})
	require.NoError(t, err)
	require.Zero(t, offset)

	p, err := plan.New(normalized, []int{0, 0}, []int{2, 1})
	require.NoError(t, err)

	b, err := New(requirements(p))
	require.NoError(t, err)

	ct, err := b.Encrypt(ctx, p.RepeatedProbe)
	require.NoError(t, err)

	ct, err = b.EvaluateLookup(ctx, ct, p.FlatLookupTables(), p.Slots, p.Size())
	require.NoError(t, err)

	slots, err := b.Decrypt(ctx, ct)
	require.NoError(t, err)
	// Row 0 of A is {5, 3, 1, 0}: probe 2 reads 1 = 1,0,0 and probe 1 reads 3 = 1,1,0.
	require.Equal(t, []uint64{1, 0, 0, 0, 1, 1, 0, 0}, slots)

	sum, err := b.Sum(ctx, ct, p.SumDigitLength, p.Tables())
	require.NoError(t, err)

	digits, err := b.Decrypt(ctx, sum)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 0, 1, 0}, digits)

	for threshold, want := range map[int64]uint64{3: 1, 4: 1, 5: 0} {
		cmp, err := b.Compare(ctx, sum, threshold, backend.GE)
		require.NoError(t, err)
		bit, err := b.Decrypt(ctx, cmp)
		require.NoError(t, err)
		require.Equal(t, []uint64{want}, bit)
	}

	_, err = b.Compare(ctx, sum, 4, backend.Comparison(42))
	require.ErrorIs(t, err, backend.ErrInvalidArgument)
}

func TestCarryPropagation(t *testing.T) {

	ctx := context.Background()

	b, err := New(backend.Requirements{Base: 2, Domain: 2, SumDigitLength: 3, Tables: 2})
	require.NoError(t, err)

	ct, err := b.Encrypt(ctx, []uint64{1, 1, 1, 1})
	require.NoError(t, err)

	lut := []uint64{0, 1}
	ct, err = b.EvaluateLookup(ctx, ct, [][]uint64{lut, lut, lut, lut}, []int{0, 1, 3, 4}, 6)
	require.NoError(t, err)

	sum, err := b.Sum(ctx, ct, 3, 2)
	require.NoError(t, err)

	digits, err := b.Decrypt(ctx, sum)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 1}, digits)

	// 3 + 3 does not fit in two binary digits.
	ct, err = b.Encrypt(ctx, []uint64{1, 1, 1, 1})
	require.NoError(t, err)
	ct, err = b.EvaluateLookup(ctx, ct, [][]uint64{lut, lut, lut, lut}, []int{0, 1, 2, 3}, 4)
	require.NoError(t, err)
	_, err = b.Sum(ctx, ct, 2, 2)
	require.ErrorIs(t, err, backend.ErrInvalidArgument)
}

func TestSumOccupiedSlots(t *testing.T) {

	ctx := context.Background()

	b, err := New(backend.Requirements{Base: 2, Domain: 2, SumDigitLength: 2, Tables: 2})
	require.NoError(t, err)

	// Only slots 0 and 3 were written by lookups; slot 1 is not part of the sum.
	ct := &Ciphertext{stage: stageLookup, values: []uint64{1, 1, 0, 1}, occupied: roaring.BitmapOf(0, 3)}

	sum, err := b.Sum(ctx, ct, 2, 2)
	require.NoError(t, err)

	digits, err := b.Decrypt(ctx, sum)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 1}, digits)
}

func TestHandles(t *testing.T) {

	ctx := context.Background()

	b, err := New(backend.Requirements{Base: 2, Domain: 2, SumDigitLength: 1, Tables: 1})
	require.NoError(t, err)

	ct, err := b.Encrypt(ctx, []uint64{1})
	require.NoError(t, err)

	_, err = b.Sum(ctx, ct, 1, 1)
	require.ErrorIs(t, err, backend.ErrHandle)

	_, err = b.Compare(ctx, ct, 0, backend.GE)
	require.ErrorIs(t, err, backend.ErrHandle)

	_, err = b.EvaluateLookup(ctx, nil, nil, nil, 1)
	require.ErrorIs(t, err, backend.ErrHandle)

	_, err = b.Encrypt(ctx, []uint64{2})
	require.ErrorIs(t, err, backend.ErrInvalidArgument)
}
