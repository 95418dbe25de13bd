package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
	"github.com/VReyesUOL/SecBioAuth/blobstore"
	"github.com/VReyesUOL/SecBioAuth/quantize"
	"github.com/VReyesUOL/SecBioAuth/table"
)

var testConfig = Config{Name: "TEST", NumTables: 2, Threshold: 3}

var testDataset = Dataset{
	Tables: []table.FeatureTable{
		{{5, 3, 1, 0}, {2, 1, 0, 4}, {6, 2, 3, 1}, {0, 1, 2, 5}},
		{{9, 4, 2, -3}, {1, -2, -3, 0}, {4, 3, 0, -1}, {-3, 0, 2, 7}},
	},
	Bins:     quantize.Bins{-0.5, 0, 0.5, 1},
	Labels:   []string{"s0", "s1"},
	Features: [][]float64{{0.25, -0.75}, {1.5, 0.125}},
}

func TestLoader(t *testing.T) {
	for _, suffix := range []string{"", SuffixZstd, SuffixGzip, SuffixLZ4} {
		t.Run(fmt.Sprintf("Compression=%q", suffix), func(t *testing.T) {
			ctx := context.Background()
			store := blobstore.NewMemoryStore()
			loader := NewLoader(store, WithRoot("data"), WithConcurrency(1))

			require.NoError(t, loader.Save(ctx, testConfig, testDataset, suffix))

			names, err := store.List(ctx, "data/lookupTables/TEST/HELR")
			require.NoError(t, err)
			require.Equal(t, []string{
				"data/lookupTables/TEST/HELR0.csv" + suffix,
				"data/lookupTables/TEST/HELR1.csv" + suffix,
			}, names)

			tables, err := loader.LoadTables(ctx, testConfig)
			require.NoError(t, err)
			require.Equal(t, testDataset.Tables, tables)

			bins, err := loader.LoadBins(ctx, testConfig)
			require.NoError(t, err)
			require.Equal(t, testDataset.Bins, bins)

			for i := range testDataset.Features {
				features, err := loader.LoadFeatureVector(ctx, testConfig, i)
				require.NoError(t, err)
				require.Equal(t, testDataset.Features[i], features)
			}

			features, err := loader.LoadFeatures(ctx, testConfig)
			require.NoError(t, err)
			require.Equal(t, testDataset.Features, features)

			for _, index := range []int{2, -1} {
				_, err = loader.LoadFeatureVector(ctx, testConfig, index)
				require.True(t, errors.Is(err, secbioauth.ErrConfiguration), "index %d", index)
			}
		})
	}
}

func TestLoaderErrors(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	loader := NewLoader(store)

	t.Run("Missing", func(t *testing.T) {
		_, err := loader.LoadTables(ctx, testConfig)
		require.ErrorIs(t, err, blobstore.ErrNotFound)
		_, err = loader.LoadBins(ctx, testConfig)
		require.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("NoTables", func(t *testing.T) {
		_, err := loader.LoadTables(ctx, Config{Name: "TEST"})
		require.True(t, errors.Is(err, secbioauth.ErrConfiguration))
	})

	t.Run("Malformed", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, loader.TablePath(testConfig, 0), []byte("1,2\n3,x\n")))
		require.NoError(t, store.Put(ctx, loader.TablePath(testConfig, 1), []byte("1,2\n3\n")))
		_, err := loader.LoadTables(ctx, testConfig)
		require.True(t, errors.Is(err, secbioauth.ErrDataIntegrity))
	})

	t.Run("Corrupted", func(t *testing.T) {
		for _, suffix := range []string{SuffixZstd, SuffixGzip} {
			store := blobstore.NewMemoryStore()
			loader := NewLoader(store)
			require.NoError(t, store.Put(ctx, loader.BinsPath(testConfig)+suffix, []byte("not compressed")))
			_, err := loader.LoadBins(ctx, testConfig)
			require.True(t, errors.Is(err, secbioauth.ErrDataIntegrity), suffix)
		}

		_, err := Compress(".bz2", []byte("1,2"))
		require.True(t, errors.Is(err, secbioauth.ErrConfiguration))
	})
}

func TestReadConfigs(t *testing.T) {
	configs, err := ReadConfigs(strings.NewReader(`
datasets:
  - name: PUT
    num_tables: 49
    threshold: -53
  - name: TEST
    num_tables: 2
    threshold: 3
`))
	require.NoError(t, err)
	require.Equal(t, []Config{PUT, testConfig}, configs)

	_, err = ReadConfigs(strings.NewReader("datasets:\n  - name: X\n    num_tables: 0\n"))
	require.True(t, errors.Is(err, secbioauth.ErrConfiguration))

	_, err = ReadConfigs(strings.NewReader("datasets:\n  - name: X\n    tables: 3\n"))
	require.True(t, errors.Is(err, secbioauth.ErrConfiguration))

	require.Equal(t, BMDB, Presets()["BMDB"])
	require.Equal(t, "FRGC(tables=94, threshold=-1)", FRGC.String())
}
