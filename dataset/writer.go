package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"

	"github.com/VReyesUOL/SecBioAuth/quantize"
	"github.com/VReyesUOL/SecBioAuth/table"
)

// Dataset is the in-memory content of a dataset.
type Dataset struct {
	Tables   []table.FeatureTable
	Bins     quantize.Bins
	Labels   []string
	Features [][]float64
}

// Save writes ds in the layout read by the loader, compressing every blob
// with the given suffix ("" for plain CSV).
func (l *Loader) Save(ctx context.Context, cfg Config, ds Dataset, suffix string) error {

	put := func(name string, records [][]string) error {
		return l.put(ctx, name, records, suffix)
	}

	for i, t := range ds.Tables {
		records := make([][]string, len(t))
		for r, row := range t {
			records[r] = make([]string, len(row))
			for c, v := range row {
				records[r][c] = strconv.FormatInt(v, 10)
			}
		}
		if err := put(l.TablePath(cfg, i), records); err != nil {
			return err
		}
	}

	if err := l.SaveBins(ctx, cfg, ds.Bins, suffix); err != nil {
		return err
	}

	records := make([][]string, len(ds.Features))
	for i, f := range ds.Features {
		label := strconv.Itoa(i)
		if i < len(ds.Labels) {
			label = ds.Labels[i]
		}
		records[i] = append([]string{label}, formatFloats(f)...)
	}

	return put(l.FeaturesPath(cfg), records)
}

// SaveBins writes the quantization bins of the dataset.
func (l *Loader) SaveBins(ctx context.Context, cfg Config, bins quantize.Bins, suffix string) error {
	return l.put(ctx, l.BinsPath(cfg), [][]string{formatFloats(bins)}, suffix)
}

func (l *Loader) put(ctx context.Context, name string, records [][]string, suffix string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return err
	}
	data, err := Compress(suffix, buf.Bytes())
	if err != nil {
		return err
	}
	return l.store.Put(ctx, name+suffix, data)
}

func formatFloats(values []float64) (fields []string) {
	fields = make([]string, len(values))
	for i, v := range values {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return
}
