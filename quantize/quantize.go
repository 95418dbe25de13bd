// Package quantize maps continuous biometric features to small integer bin indices.
package quantize

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/tuneinsight/lattigo/v6/utils/sampling"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
)

// Bins is an ordered sequence of thresholds partitioning a feature axis.
// Bin i holds the values v with bins[i-1] < v <= bins[i].
type Bins []float64

// Quantize returns the smallest index i such that v <= bins[i],
// or len(bins) if v is larger than every threshold.
func Quantize(v float64, bins Bins) int {
	for i, b := range bins {
		if v <= b {
			return i
		}
	}
	return len(bins)
}

// Vector quantizes each value of values independently.
func Vector(values []float64, bins Bins) (idx []int) {
	idx = make([]int, len(values))
	for i, v := range values {
		idx[i] = Quantize(v, bins)
	}
	return
}

// BinsFromSamples returns n equal-frequency thresholds computed from the
// training samples. The last threshold is the largest sample, so no training
// sample falls into the overflow bucket.
func BinsFromSamples(samples []float64, n int) (Bins, error) {
	if n < 1 {
		return nil, errors.Wrapf(secbioauth.ErrConfiguration, "invalid number of bins: %d", n)
	}
	bins := make(Bins, n)
	for i := range bins {
		p, err := stats.Percentile(samples, 100*float64(i+1)/float64(n))
		if err != nil {
			return nil, errors.Wrapf(secbioauth.ErrDataIntegrity, "percentile %d/%d: %v", i+1, n, err)
		}
		bins[i] = p
	}
	if !sort.Float64sAreSorted(bins) {
		return nil, errors.Wrap(secbioauth.ErrDataIntegrity, "percentiles are not monotonic")
	}
	return bins, nil
}

// DefaultAmplitude is the noise amplitude used to synthesize probes.
const DefaultAmplitude = 0.01

// Perturber synthesizes a probe from a template by adding independent
// uniform noise in [-Amplitude, Amplitude] to every feature.
// A Perturber must not be used concurrently: the sequence it produces
// for a keyed PRNG is only deterministic under sequential use.
type Perturber struct {
	prng      sampling.PRNG
	Amplitude float64
	buf       [8]byte
}

// NewPerturber creates a new [Perturber] drawing its randomness from prng.
func NewPerturber(prng sampling.PRNG, amplitude float64) *Perturber {
	return &Perturber{prng: prng, Amplitude: amplitude}
}

// NewKeyedPerturber creates a [Perturber] backed by a keyed PRNG, so that
// two Perturbers created with the same key synthesize the same probes.
func NewKeyedPerturber(key []byte, amplitude float64) (*Perturber, error) {
	prng, err := sampling.NewKeyedPRNG(key)
	if err != nil {
		return nil, err
	}
	return NewPerturber(prng, amplitude), nil
}

// Perturb returns a noisy copy of values. With a zero amplitude the copy is
// exact and no randomness is drawn.
func (p *Perturber) Perturb(values []float64) ([]float64, error) {
	out := make([]float64, len(values))
	if p.Amplitude == 0 {
		copy(out, values)
		return out, nil
	}
	for i, v := range values {
		u, err := p.uniform()
		if err != nil {
			return nil, err
		}
		out[i] = v + p.Amplitude*(2*u-1)
	}
	return out, nil
}

// uniform returns a float in [0, 1) with 53 bits of randomness.
func (p *Perturber) uniform() (float64, error) {
	if _, err := io.ReadFull(p.prng, p.buf[:]); err != nil {
		return 0, errors.Wrap(err, "prng")
	}
	return float64(binary.LittleEndian.Uint64(p.buf[:])>>11) / (1 << 53), nil
}
