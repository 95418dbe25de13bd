// Package verify runs biometric verification attempts: it loads and
// normalizes the dataset tables, quantizes the template and the probe,
// plans the evaluation and drives a backend through it.
package verify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tuneinsight/lattigo/v6/utils/sampling"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
	"github.com/VReyesUOL/SecBioAuth/backend"
	"github.com/VReyesUOL/SecBioAuth/dataset"
	"github.com/VReyesUOL/SecBioAuth/decomp"
	"github.com/VReyesUOL/SecBioAuth/plan"
	"github.com/VReyesUOL/SecBioAuth/quantize"
	"github.com/VReyesUOL/SecBioAuth/table"
)

// Source provides the content of a dataset.
type Source interface {
	LoadTables(ctx context.Context, cfg dataset.Config) ([]table.FeatureTable, error)
	LoadBins(ctx context.Context, cfg dataset.Config) (quantize.Bins, error)
	LoadFeatureVector(ctx context.Context, cfg dataset.Config, index int) ([]float64, error)
}

// Verifier verifies probes against the templates of one dataset.
// It is safe for concurrent use.
type Verifier struct {
	cfg     dataset.Config
	source  Source
	factory backend.Factory

	logger   logrus.FieldLogger
	metrics  *Metrics
	validate bool

	perturbMu sync.Mutex
	perturber *quantize.Perturber

	loadMu       sync.Mutex
	loaded       bool
	tables       []table.Normalized
	globalOffset int64
	bins         quantize.Bins
}

// Option configures a [Verifier].
type Option func(*Verifier)

// WithLogger sets the logger of the verifier.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithMetrics sets the metrics the verifier reports to.
func WithMetrics(m *Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithPerturber sets the perturber synthesizing probes from templates.
func WithPerturber(p *quantize.Perturber) Option {
	return func(v *Verifier) {
		v.perturber = p
	}
}

// WithValidation makes the verifier decrypt the encrypted score and check it
// against the expected score. A mismatch is reported but does not change the decision.
func WithValidation(validate bool) Option {
	return func(v *Verifier) {
		v.validate = validate
	}
}

// New creates a new [Verifier] of the dataset cfg.
func New(cfg dataset.Config, source Source, factory backend.Factory, opts ...Option) (*Verifier, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if source == nil || factory == nil {
		return nil, errors.Wrap(secbioauth.ErrConfiguration, "verifier needs a dataset source and a backend factory")
	}

	v := &Verifier{cfg: cfg, source: source, factory: factory}
	for _, opt := range opts {
		opt(v)
	}

	if v.logger == nil {
		v.logger = logrus.StandardLogger()
	}

	if v.perturber == nil {
		prng, err := sampling.NewPRNG()
		if err != nil {
			return nil, errors.Wrap(err, "probe prng")
		}
		v.perturber = quantize.NewPerturber(prng, quantize.DefaultAmplitude)
	}

	v.logger = v.logger.WithField("dataset", cfg.Name)

	return v, nil
}

// Config returns the dataset configuration of the verifier.
func (v *Verifier) Config() dataset.Config {
	return v.cfg
}

// Result is the outcome of a verification attempt.
type Result struct {
	Accepted bool

	Template []int
	Probe    []int

	Base         uint64
	LookupTables int
	SumSize      int
	PlanDigest   []byte

	// ExpectedScore is the normalized score computed in the clear, and
	// ExpectedDigits its decomposition. Both are advisory.
	ExpectedScore  uint64
	ExpectedDigits []uint64
	// RawScore is ExpectedScore plus the global offset.
	RawScore int64

	Threshold         int64
	GlobalOffset      int64
	AdjustedThreshold int64

	// Validated is set if the encrypted score was decrypted, into DecryptedScore.
	Validated      bool
	DecryptedScore uint64

	Elapsed time.Duration
}

// Mismatch reports whether the decrypted score differs from the expected score.
func (r Result) Mismatch() bool {
	return r.Validated && r.DecryptedScore != r.ExpectedScore
}

// Load loads and normalizes the dataset tables and bins. It is called by the
// first attempt; the tables are then shared read-only by all attempts.
func (v *Verifier) Load(ctx context.Context) error {

	v.loadMu.Lock()
	defer v.loadMu.Unlock()

	if v.loaded {
		return nil
	}

	start := time.Now()
	defer v.metrics.stage(v.cfg.Name, "load", start)

	raw, err := v.source.LoadTables(ctx, v.cfg)
	if err != nil {
		return errors.Wrap(err, "load tables")
	}

	if v.tables, v.globalOffset, err = table.NormalizeAll(ctx, raw); err != nil {
		return errors.Wrap(err, "normalize tables")
	}

	if v.bins, err = v.source.LoadBins(ctx, v.cfg); err != nil {
		return errors.Wrap(err, "load bins")
	}

	for i, t := range v.tables {
		if !t.OriginIsMax() {
			v.logger.WithField("table", i).Debug("table maximum is not at [0][0]")
		}
	}

	v.logger.WithFields(logrus.Fields{
		"tables":        len(v.tables),
		"global_offset": v.globalOffset,
		"bins":          len(v.bins),
		"took":          time.Since(start),
	}).Info("loaded dataset")

	v.loaded = true

	return nil
}

// Verify verifies a probe synthesized from the template at line index of the
// dataset feature file against that template.
func (v *Verifier) Verify(ctx context.Context, index int) (*Result, error) {

	if err := v.Load(ctx); err != nil {
		v.metrics.attempt(v.cfg.Name, "error")
		return nil, err
	}

	features, err := v.source.LoadFeatureVector(ctx, v.cfg, index)
	if err != nil {
		v.metrics.attempt(v.cfg.Name, "error")
		return nil, errors.Wrap(err, "load feature vector")
	}

	v.perturbMu.Lock()
	probeFeatures, err := v.perturber.Perturb(features)
	v.perturbMu.Unlock()
	if err != nil {
		v.metrics.attempt(v.cfg.Name, "error")
		return nil, errors.Wrap(err, "synthesize probe")
	}

	template := quantize.Vector(features, v.bins)
	probe := quantize.Vector(probeFeatures, v.bins)

	v.logger.WithField("index", index).Debug("quantized template and probe")

	return v.VerifyQuantized(ctx, template, probe)
}

// VerifyQuantized verifies the quantized probe against the quantized template.
func (v *Verifier) VerifyQuantized(ctx context.Context, template, probe []int) (res *Result, err error) {

	defer func() {
		switch {
		case err != nil:
			v.metrics.attempt(v.cfg.Name, "error")
		case res.Accepted:
			v.metrics.attempt(v.cfg.Name, "accepted")
		default:
			v.metrics.attempt(v.cfg.Name, "rejected")
		}
	}()

	if err = v.Load(ctx); err != nil {
		return nil, err
	}

	start := time.Now()

	p, err := plan.New(v.tables, template, probe)
	if err != nil {
		return nil, errors.Wrap(err, "plan")
	}

	expected, err := plan.ExpectedScore(v.tables, template, probe)
	if err != nil {
		return nil, errors.Wrap(err, "expected score")
	}

	v.metrics.stage(v.cfg.Name, "plan", start)

	res = &Result{
		Template:          template,
		Probe:             probe,
		Base:              p.Base,
		LookupTables:      len(p.RepeatedProbe),
		SumSize:           p.Size(),
		PlanDigest:        p.Digest(),
		ExpectedScore:     expected,
		ExpectedDigits:    decomp.Decompose(expected, p.Base, p.SumDigitLength),
		RawScore:          int64(expected) + v.globalOffset,
		Threshold:         v.cfg.Threshold,
		GlobalOffset:      v.globalOffset,
		AdjustedThreshold: v.cfg.Threshold - v.globalOffset,
	}

	log := v.logger.WithFields(logrus.Fields{
		"base":           res.Base,
		"lookup_tables":  res.LookupTables,
		"sum_size":       res.SumSize,
		"expected_score": res.ExpectedScore,
	})

	start = time.Now()

	accepted, decrypted, err := v.evaluate(ctx, p, res.AdjustedThreshold, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", secbioauth.ErrBackend, err)
	}

	res.Elapsed = time.Since(start)
	res.Accepted = accepted

	if decrypted != nil {
		res.Validated = true
		res.DecryptedScore = *decrypted
		if res.Mismatch() {
			v.metrics.mismatch(v.cfg.Name)
			log.WithField("decrypted_score", res.DecryptedScore).Warn("decrypted score differs from the expected score")
		}
	}

	log.WithFields(logrus.Fields{
		"accepted": res.Accepted,
		"took":     res.Elapsed,
	}).Info("verification attempt")

	return res, nil
}

// evaluate runs the plan on a new backend and returns the decision and, with
// validation, the decrypted score. A score that fails to decrypt is logged
// and left nil; it does not change the decision.
func (v *Verifier) evaluate(ctx context.Context, p *plan.Plan, threshold int64, log logrus.FieldLogger) (accepted bool, score *uint64, err error) {

	stage := func(name string, start time.Time) {
		v.metrics.stage(v.cfg.Name, name, start)
	}

	start := time.Now()
	b, err := v.factory.New(ctx, backend.Requirements{
		Base:           p.Base,
		Domain:         p.Domain,
		SumDigitLength: p.SumDigitLength,
		Tables:         p.Tables(),
	})
	if err != nil {
		return false, nil, errors.Wrap(err, "create backend")
	}
	stage("setup", start)

	start = time.Now()
	ct, err := b.Encrypt(ctx, p.RepeatedProbe)
	if err != nil {
		return false, nil, errors.Wrap(err, "encrypt")
	}
	stage("encrypt", start)

	start = time.Now()
	if ct, err = b.EvaluateLookup(ctx, ct, p.FlatLookupTables(), p.Slots, p.Size()); err != nil {
		return false, nil, errors.Wrap(err, "evaluate lookup tables")
	}
	stage("lookup", start)

	start = time.Now()
	sum, err := b.Sum(ctx, ct, p.SumDigitLength, p.Tables())
	if err != nil {
		return false, nil, errors.Wrap(err, "sum")
	}
	stage("sum", start)

	start = time.Now()
	cmp, err := b.Compare(ctx, sum, threshold, backend.GE)
	if err != nil {
		return false, nil, errors.Wrap(err, "compare")
	}
	stage("compare", start)

	start = time.Now()
	bit, err := b.Decrypt(ctx, cmp)
	if err != nil {
		return false, nil, errors.Wrap(err, "decrypt decision")
	}
	if len(bit) != 1 {
		return false, nil, errors.Errorf("decision decrypts to %d values", len(bit))
	}

	if v.validate {
		if digits, err := b.Decrypt(ctx, sum); err != nil {
			log.WithError(err).Warn("could not decrypt the score for validation")
		} else {
			total := decomp.Recompose(digits, p.Base)
			score = &total
		}
	}
	stage("decrypt", start)

	return bit[0] == 1, score, nil
}
