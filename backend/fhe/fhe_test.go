package fhe

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VReyesUOL/SecBioAuth/backend"
	"github.com/VReyesUOL/SecBioAuth/plan"
	"github.com/VReyesUOL/SecBioAuth/table"
)

var tableA = table.FeatureTable{
	{5, 3, 1, 0},
	{2, 1, 0, 4},
	{6, 2, 3, 1},
	{0, 1, 2, 5},
}

func TestParameters(t *testing.T) {

	p, err := NewParameters(backend.Requirements{Base: 2, Domain: 4, SumDigitLength: 4, Tables: 2})
	require.NoError(t, err)
	require.Equal(t, 9, p.LWE.LogN())
	require.Equal(t, 9, p.Lookup.LogN())
	require.Equal(t, 12, p.Compare.LogN())
	require.Equal(t, uint64(18), p.Range)
	require.Equal(t, 2, p.Lookup.PCount())
	require.Equal(t, 2, p.Compare.PCount())

	for _, req := range []backend.Requirements{
		{Base: 16, Domain: 256, SumDigitLength: 4, Tables: 49},
		{Base: 2, Domain: 64, SumDigitLength: 4, Tables: 2},
		{Base: 2, Domain: 16, SumDigitLength: 11, Tables: 2},
	} {
		_, err = NewParameters(req)
		require.ErrorIs(t, err, backend.ErrUnsupported, req.String())
	}

	for k := uint64(0); k < 4; k++ {
		require.Equal(t, int(k), binIndex(binPosition(k, 4), 4))
	}

	q := uint64(0x3001)
	for _, x := range []float64{-0.75, -0.25, 0, 0.25, 0.75} {
		require.InDelta(t, x, decode(encode(x, float64(q)/4, q), q, float64(q)/4), 1e-3)
	}
}

func TestBackend(t *testing.T) {

	ctx := context.Background()

	normalized, _, err := table.NormalizeAll(ctx, []table.FeatureTable{tableA, tableA})
	require.NoError(t, err)

	p, err := plan.New(normalized, []int{0, 0}, []int{2, 1})
	require.NoError(t, err)

	b, err := Factory.New(ctx, backend.Requirements{
		Base:           p.Base,
		Domain:         p.Domain,
		SumDigitLength: p.SumDigitLength,
		Tables:         p.Tables(),
	})
	require.NoError(t, err)

	ct, err := b.Encrypt(ctx, p.RepeatedProbe)
	require.NoError(t, err)

	bins, err := b.Decrypt(ctx, ct)
	require.NoError(t, err)
	require.Equal(t, p.RepeatedProbe, bins)

	ct, err = b.EvaluateLookup(ctx, ct, p.FlatLookupTables(), p.Slots, p.Size())
	require.NoError(t, err)

	slots, err := b.Decrypt(ctx, ct)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 0, 0, 0, 1, 1, 0, 0}, slots)

	sum, err := b.Sum(ctx, ct, p.SumDigitLength, p.Tables())
	require.NoError(t, err)

	digits, err := b.Decrypt(ctx, sum)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 0, 1, 0}, digits)

	for _, tc := range []struct {
		threshold int64
		kind      backend.Comparison
		want      uint64
	}{
		{4, backend.GE, 1},
		{5, backend.GE, 0},
		{-3, backend.GE, 1},
		{100, backend.GE, 0},
		{4, backend.EQ, 1},
		{3, backend.LE, 0},
	} {
		t.Run(fmt.Sprintf("%s/%d", tc.kind, tc.threshold), func(t *testing.T) {
			cmp, err := b.Compare(ctx, sum, tc.threshold, tc.kind)
			require.NoError(t, err)
			bit, err := b.Decrypt(ctx, cmp)
			require.NoError(t, err)
			require.Equal(t, []uint64{tc.want}, bit)
		})
	}

	_, err = b.Compare(ctx, sum, 4, backend.Comparison(42))
	require.ErrorIs(t, err, backend.ErrInvalidArgument)

	_, err = b.Sum(ctx, sum, 4, 2)
	require.ErrorIs(t, err, backend.ErrHandle)
}
