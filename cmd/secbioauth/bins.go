package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
	"github.com/VReyesUOL/SecBioAuth/dataset"
	"github.com/VReyesUOL/SecBioAuth/quantize"
)

type binsCommand struct {
	Bins     int    `short:"n" long:"bins" default:"16" description:"number of quantization bins"`
	Compress string `long:"compress" default:"none" choice:"none" choice:"zst" choice:"gz" choice:"lz4" description:"compression of the written bins file"`
}

func (c *binsCommand) Execute(_ []string) error {

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger, err := newLogger(globals)
	if err != nil {
		return err
	}

	return c.run(ctx, globals, logger)
}

func (c *binsCommand) suffix() string {
	switch c.Compress {
	case "zst":
		return dataset.SuffixZstd
	case "gz":
		return dataset.SuffixGzip
	case "lz4":
		return dataset.SuffixLZ4
	}
	return ""
}

// run derives equal-frequency bins from all the features of each dataset.
// The boundaries are shared by every feature, as the tables expect.
func (c *binsCommand) run(ctx context.Context, opts GlobalOptions, logger logrus.FieldLogger) error {

	if c.Bins < 1 {
		return errors.Wrapf(secbioauth.ErrConfiguration, "%d bins", c.Bins)
	}

	configs, err := resolveDatasets(opts)
	if err != nil {
		return err
	}

	loader, err := newLoader(ctx, opts)
	if err != nil {
		return err
	}

	for _, cfg := range configs {

		features, err := loader.LoadFeatures(ctx, cfg)
		if err != nil {
			return errors.Wrapf(err, "dataset %s", cfg.Name)
		}

		var samples []float64
		for _, f := range features {
			samples = append(samples, f...)
		}

		bins, err := quantize.BinsFromSamples(samples, c.Bins)
		if err != nil {
			return errors.Wrapf(err, "dataset %s", cfg.Name)
		}

		if err = loader.SaveBins(ctx, cfg, bins, c.suffix()); err != nil {
			return errors.Wrapf(err, "dataset %s", cfg.Name)
		}

		logger.WithFields(logrus.Fields{
			"dataset": cfg.Name,
			"samples": len(samples),
			"bins":    len(bins),
			"path":    loader.BinsPath(cfg) + c.suffix(),
		}).Info("wrote quantization bins")
	}

	return nil
}
