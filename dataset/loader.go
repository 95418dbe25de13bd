package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
	"github.com/VReyesUOL/SecBioAuth/blobstore"
	"github.com/VReyesUOL/SecBioAuth/quantize"
	"github.com/VReyesUOL/SecBioAuth/table"
)

const (
	// TablesFolder is the folder holding one sub-folder of tables per dataset.
	TablesFolder = "lookupTables"
	// TablePrefix is the file name prefix of the HELR tables.
	TablePrefix = "HELR"
	// BinsSuffix is the file name suffix of the quantization bins.
	BinsSuffix = "_qbins"
)

// Loader reads datasets laid out as
//
//	<root>/lookupTables/<name>/HELR<i>.csv
//	<root>/lookupTables/<name>/<name>_qbins.csv
//	<root>/<name>.csv
type Loader struct {
	store       blobstore.BlobStore
	root        string
	concurrency int
}

// Option configures a [Loader].
type Option func(*Loader)

// WithRoot sets the folder of the store holding the datasets.
func WithRoot(root string) Option {
	return func(l *Loader) {
		l.root = root
	}
}

// WithConcurrency bounds the number of tables read concurrently.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		l.concurrency = n
	}
}

// NewLoader creates a new [Loader] reading from store.
func NewLoader(store blobstore.BlobStore, opts ...Option) *Loader {
	l := &Loader{store: store, concurrency: 8}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TablePath returns the blob name of table i of the dataset.
func (l *Loader) TablePath(cfg Config, i int) string {
	return path.Join(l.root, TablesFolder, cfg.Name, fmt.Sprintf("%s%d.csv", TablePrefix, i))
}

// BinsPath returns the blob name of the quantization bins of the dataset.
func (l *Loader) BinsPath(cfg Config) string {
	return path.Join(l.root, TablesFolder, cfg.Name, cfg.Name+BinsSuffix+".csv")
}

// FeaturesPath returns the blob name of the feature vectors of the dataset.
func (l *Loader) FeaturesPath(cfg Config) string {
	return path.Join(l.root, cfg.Name+".csv")
}

// LoadTables reads the cfg.NumTables HELR tables of the dataset.
func (l *Loader) LoadTables(ctx context.Context, cfg Config) ([]table.FeatureTable, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tables := make([]table.FeatureTable, cfg.NumTables)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(l.concurrency, 1))

	for i := range tables {
		g.Go(func() error {
			name := l.TablePath(cfg, i)
			data, err := readBlob(ctx, l.store, name)
			if err != nil {
				return err
			}
			if tables[i], err = parseTable(data); err != nil {
				return errors.Wrapf(err, "%s", name)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return tables, nil
}

// LoadBins reads the quantization bins of the dataset.
func (l *Loader) LoadBins(ctx context.Context, cfg Config) (quantize.Bins, error) {
	name := l.BinsPath(cfg)
	data, err := readBlob(ctx, l.store, name)
	if err != nil {
		return nil, err
	}
	records, err := readRecords(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	var bins quantize.Bins
	for _, rec := range records {
		values, err := parseFloats(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", name)
		}
		bins = append(bins, values...)
	}
	return bins, nil
}

// LoadFeatureVector reads the feature vector on line index of the dataset
// feature file. The first column, the subject label, is dropped.
func (l *Loader) LoadFeatureVector(ctx context.Context, cfg Config, index int) ([]float64, error) {
	name := l.FeaturesPath(cfg)
	if index < 0 {
		return nil, errors.Wrapf(secbioauth.ErrConfiguration, "%s: negative feature vector index %d", name, index)
	}

	data, err := readBlob(ctx, l.store, name)
	if err != nil {
		return nil, err
	}

	r := newCSVReader(data)
	for i := 0; ; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			return nil, errors.Wrapf(secbioauth.ErrConfiguration, "%s: no feature vector at index %d (%d lines)", name, index, i)
		}
		if err != nil {
			return nil, errors.Wrapf(secbioauth.ErrDataIntegrity, "%s: %v", name, err)
		}
		if i < index {
			continue
		}
		if len(rec) < 2 {
			return nil, errors.Wrapf(secbioauth.ErrDataIntegrity, "%s: line %d has no features", name, index)
		}
		values, err := parseFloats(rec[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: line %d", name, index)
		}
		return values, nil
	}
}

// LoadFeatures reads every feature vector of the dataset feature file.
func (l *Loader) LoadFeatures(ctx context.Context, cfg Config) ([][]float64, error) {
	name := l.FeaturesPath(cfg)
	data, err := readBlob(ctx, l.store, name)
	if err != nil {
		return nil, err
	}
	records, err := readRecords(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	features := make([][]float64, len(records))
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, errors.Wrapf(secbioauth.ErrDataIntegrity, "%s: line %d has no features", name, i)
		}
		if features[i], err = parseFloats(rec[1:]); err != nil {
			return nil, errors.Wrapf(err, "%s: line %d", name, i)
		}
	}
	return features, nil
}

func newCSVReader(data []byte) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = false
	return r
}

func readRecords(data []byte) ([][]string, error) {
	records, err := newCSVReader(data).ReadAll()
	if err != nil {
		return nil, errors.Wrap(secbioauth.ErrDataIntegrity, err.Error())
	}
	return records, nil
}

func parseTable(data []byte) (table.FeatureTable, error) {
	records, err := readRecords(data)
	if err != nil {
		return nil, err
	}
	t := make(table.FeatureTable, len(records))
	for i, rec := range records {
		t[i] = make([]int64, len(rec))
		for j, field := range rec {
			if t[i][j], err = strconv.ParseInt(strings.TrimSpace(field), 10, 64); err != nil {
				return nil, errors.Wrapf(secbioauth.ErrDataIntegrity, "entry [%d][%d]: %v", i, j, err)
			}
		}
	}
	return t, t.Validate()
}

func parseFloats(fields []string) (values []float64, err error) {
	values = make([]float64, len(fields))
	for i, field := range fields {
		if values[i], err = strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
			return nil, errors.Wrapf(secbioauth.ErrDataIntegrity, "field %d: %v", i, err)
		}
	}
	return
}
