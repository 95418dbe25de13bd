// Package dataset loads HELR score tables, quantization bins and feature
// vectors of a biometric dataset from a blob store.
package dataset

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
)

// Config describes a dataset.
type Config struct {
	// Name is the dataset name, also used to locate its files.
	Name string `yaml:"name"`
	// NumTables is the number of HELR tables, one per feature.
	NumTables int `yaml:"num_tables"`
	// Threshold is the acceptance threshold on the raw score.
	Threshold int64 `yaml:"threshold"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.Wrap(secbioauth.ErrConfiguration, "dataset name is empty")
	}
	if c.NumTables < 1 {
		return errors.Wrapf(secbioauth.ErrConfiguration, "dataset %s has %d tables", c.Name, c.NumTables)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("%s(tables=%d, threshold=%d)", c.Name, c.NumTables, c.Threshold)
}

var (
	// PUT is the PUT vein dataset.
	PUT = Config{Name: "PUT", NumTables: 49, Threshold: -53}
	// BMDB is the BioSecure multimodal dataset.
	BMDB = Config{Name: "BMDB", NumTables: 36, Threshold: 14}
	// FRGC is the FRGC face dataset.
	FRGC = Config{Name: "FRGC", NumTables: 94, Threshold: -1}
)

// Presets returns the built-in dataset configurations by name.
func Presets() map[string]Config {
	return map[string]Config{
		PUT.Name:  PUT,
		BMDB.Name: BMDB,
		FRGC.Name: FRGC,
	}
}

// File is the YAML layout of a dataset configuration file:
//
//	datasets:
//	  - name: PUT
//	    num_tables: 49
//	    threshold: -53
type File struct {
	Datasets []Config `yaml:"datasets"`
}

// ReadConfigs decodes and validates a dataset configuration file.
func ReadConfigs(r io.Reader) ([]Config, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(secbioauth.ErrConfiguration, err.Error())
	}
	for _, c := range f.Datasets {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Datasets, nil
}
