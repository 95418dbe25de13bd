package table

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
)

var tableA = FeatureTable{
	{5, 3, 1, 0},
	{2, 1, 0, 4},
	{6, 2, 3, 1},
	{0, 1, 2, 5},
}

var tableB = FeatureTable{
	{9, 4, 2, -3},
	{1, -2, -3, 0},
	{4, 3, 0, -1},
	{-3, 0, 2, 7},
}

func TestNormalize(t *testing.T) {

	n, err := Normalize(tableA)
	require.NoError(t, err)
	require.Equal(t, int64(0), n.Offset)
	require.Equal(t, uint64(6), n.Max())
	require.False(t, n.OriginIsMax())
	require.Equal(t, 4, n.Rows())
	require.Equal(t, 4, n.Cols())

	n, err = Normalize(tableB)
	require.NoError(t, err)
	require.Equal(t, int64(-3), n.Offset)
	require.Equal(t, uint64(12), n.Max())
	require.True(t, n.OriginIsMax())

	want := [][]uint64{
		{12, 7, 5, 0},
		{4, 1, 0, 3},
		{7, 6, 3, 2},
		{0, 3, 5, 10},
	}
	if diff := cmp.Diff(want, n.Values); diff != "" {
		t.Fatalf("unexpected normalized table (-want +got):\n%s", diff)
	}
}

func TestNormalizeErrors(t *testing.T) {

	for name, tab := range map[string]FeatureTable{
		"Empty":    {},
		"EmptyRow": {{}},
		"Ragged":   {{1, 0}, {1}},
		"Negative": {{1, 2}, {1, 1}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(tab)
			require.True(t, errors.Is(err, secbioauth.ErrDataIntegrity), err)
		})
	}
}

func TestNormalizeAll(t *testing.T) {

	ctx := context.Background()

	t.Run("OffsetInvariant", func(t *testing.T) {
		tables := []FeatureTable{tableA, tableB, tableA}
		normalized, offset, err := NormalizeAll(ctx, tables)
		require.NoError(t, err)
		require.Len(t, normalized, len(tables))
		require.Equal(t, int64(-3), offset)

		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				var raw int64
				var sum uint64
				for i := range tables {
					raw += tables[i][r][c]
					sum += normalized[i].Values[r][c]
				}
				require.Equal(t, raw-offset, int64(sum))
			}
		}
	})

	t.Run("NoTables", func(t *testing.T) {
		_, _, err := NormalizeAll(ctx, nil)
		require.True(t, errors.Is(err, secbioauth.ErrConfiguration))
	})

	t.Run("ReportsAllFailures", func(t *testing.T) {
		_, _, err := NormalizeAll(ctx, []FeatureTable{{{1, 2}}, tableA, {}})
		require.True(t, errors.Is(err, secbioauth.ErrDataIntegrity))
		require.Contains(t, err.Error(), "table 0")
		require.Contains(t, err.Error(), "table 2")
	})

	t.Run("Canceled", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := NormalizeAll(canceled, []FeatureTable{tableA, tableB})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewNormalized(t *testing.T) {
	n, err := NewNormalized([][]uint64{{3, 1}, {0, 9}}, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(9), n.Max())
	require.Equal(t, int64(2), n.Offset)

	_, err = NewNormalized(nil, 0)
	require.True(t, errors.Is(err, secbioauth.ErrDataIntegrity))
}
