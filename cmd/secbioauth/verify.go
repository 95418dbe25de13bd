package main

import (
	"context"
	"encoding/hex"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tuneinsight/lattigo/v6/utils/sampling"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
	"github.com/VReyesUOL/SecBioAuth/backend"
	"github.com/VReyesUOL/SecBioAuth/backend/fhe"
	"github.com/VReyesUOL/SecBioAuth/backend/plain"
	"github.com/VReyesUOL/SecBioAuth/quantize"
	"github.com/VReyesUOL/SecBioAuth/verify"
)

type verifyCommand struct {
	Index     int     `short:"i" long:"index" default:"0" description:"line of the template in the feature file"`
	Backend   string  `short:"b" long:"backend" default:"plain" choice:"plain" choice:"fhe" description:"evaluation backend"`
	Seed      string  `long:"seed" description:"key of the probe noise PRNG; random if empty"`
	Amplitude float64 `long:"amplitude" default:"0.01" description:"probe noise amplitude"`
	Validate  bool    `long:"validate" description:"decrypt the encrypted score and check it against the expected score"`
	Metrics   string  `long:"metrics" description:"write Prometheus metrics in text format to this file"`
}

func (c *verifyCommand) Execute(_ []string) error {

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger, err := newLogger(globals)
	if err != nil {
		return err
	}

	_, err = c.run(ctx, globals, logger)
	return err
}

func (c *verifyCommand) factory() (backend.Factory, error) {
	switch c.Backend {
	case "plain", "":
		return plain.Factory, nil
	case "fhe":
		return fhe.Factory, nil
	}
	return nil, errors.Wrapf(secbioauth.ErrConfiguration, "unknown backend %q", c.Backend)
}

func (c *verifyCommand) perturber() (*quantize.Perturber, error) {
	if c.Seed != "" {
		return quantize.NewKeyedPerturber([]byte(c.Seed), c.Amplitude)
	}
	prng, err := sampling.NewPRNG()
	if err != nil {
		return nil, err
	}
	return quantize.NewPerturber(prng, c.Amplitude), nil
}

// run verifies the template c.Index of every dataset in sequence and logs a
// report per dataset.
func (c *verifyCommand) run(ctx context.Context, opts GlobalOptions, logger logrus.FieldLogger) (results []*verify.Result, err error) {

	configs, err := resolveDatasets(opts)
	if err != nil {
		return nil, err
	}

	loader, err := newLoader(ctx, opts)
	if err != nil {
		return nil, err
	}

	factory, err := c.factory()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := verify.NewMetrics(reg)

	for _, cfg := range configs {

		// Each dataset gets its own perturber so that a seed reproduces
		// the same probes whatever datasets precede it.
		p, err := c.perturber()
		if err != nil {
			return nil, err
		}

		v, err := verify.New(cfg, loader, factory,
			verify.WithLogger(logger),
			verify.WithMetrics(metrics),
			verify.WithPerturber(p),
			verify.WithValidation(c.Validate))
		if err != nil {
			return nil, err
		}

		res, err := v.Verify(ctx, c.Index)
		if err != nil {
			return nil, errors.Wrapf(err, "dataset %s", cfg.Name)
		}

		report(logger, cfg.String(), res)
		results = append(results, res)
	}

	if c.Metrics != "" {
		if err = prometheus.WriteToTextfile(c.Metrics, reg); err != nil {
			return nil, errors.Wrap(err, "write metrics")
		}
	}

	return results, nil
}

func report(logger logrus.FieldLogger, name string, res *verify.Result) {
	fields := logrus.Fields{
		"dataset":            name,
		"base":               res.Base,
		"lookup_tables":      res.LookupTables,
		"sum_size":           res.SumSize,
		"plan_digest":        hex.EncodeToString(res.PlanDigest),
		"expected_score":     res.ExpectedScore,
		"expected_digits":    res.ExpectedDigits,
		"raw_score":          res.RawScore,
		"threshold":          res.Threshold,
		"adjusted_threshold": res.AdjustedThreshold,
		"elapsed":            res.Elapsed,
		"accepted":           res.Accepted,
	}
	if res.Validated {
		fields["decrypted_score"] = res.DecryptedScore
	}
	entry := logger.WithFields(fields)
	if res.Mismatch() {
		entry.Warn("verification report: decrypted score mismatch")
		return
	}
	entry.Info("verification report")
}
