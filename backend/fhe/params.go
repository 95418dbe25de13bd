package fhe

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/utils"

	"github.com/VReyesUOL/SecBioAuth/backend"
)

const (
	// MaxLogN is the largest ring degree of the lookup and comparison stages.
	MaxLogN = 12

	// MaxKeyBytes bounds the size of the blind rotation keys of the
	// comparison stage, one RGSW ciphertext of the comparison ring per
	// coefficient of the lookup ring.
	MaxKeyBytes = 1 << 30

	// Minimum number of rotation steps of the blind rotation per input unit:
	// per probe bin for the lookup stage, per score unit for the comparison
	// stage. The modulus switch to 2N perturbs the input by a few tens of steps
	// for a dense secret and by a few steps for a sparse one.
	phasesPerBin   = 128
	phasesPerScore = 128

	lweLogN = 9
	lweQ    = 0x3001

	lookupLogQ  = 50
	compareLogQ = 35
	logP        = 61

	// Hamming weight of the lookup stage secret, which is the input secret of
	// the comparison stage.
	lookupHammingWeight = 64
)

// Parameters are the parameters of the three rings of the backend:
// the probe bins are encrypted under LWE, the lookup tables are evaluated
// by blind rotation into Lookup and the threshold comparison by a second
// blind rotation into Compare.
//
// Lookup and Compare carry two auxiliary moduli P so that the RGSW external
// products and the automorphisms of the blind rotations decompose their
// input in a single RNS digit.
type Parameters struct {
	LWE     rlwe.Parameters
	Lookup  rlwe.Parameters
	Compare rlwe.Parameters

	LookupEvk  rlwe.EvaluationKeyParameters
	CompareEvk rlwe.EvaluationKeyParameters

	// Domain is the number of probe bins.
	Domain int
	// Range is the number of score units encoded on [0, 1) by the lookup
	// stage. Totals are in [0, Range-2).
	Range uint64
}

// NewParameters returns parameters able to evaluate plans with the given requirements.
func NewParameters(req backend.Requirements) (p Parameters, err error) {

	if err = req.Validate(); err != nil {
		return
	}

	bound := req.Bound()
	if bound > 1<<MaxLogN {
		return p, errors.Wrapf(backend.ErrUnsupported, "score bound %d exceeds the comparison ring (LogN <= %d)", bound, MaxLogN)
	}

	p.Domain = req.Domain
	p.Range = bound + 2

	logNLookup := max(lweLogN, ceilLog2(phasesPerBin*uint64(req.Domain)))
	logNCompare := max(logNLookup, ceilLog2(phasesPerScore*p.Range))

	if logNLookup > MaxLogN || logNCompare > MaxLogN {
		return p, errors.Wrapf(backend.ErrUnsupported, "%s needs rings of degree 2^%d and 2^%d", req, logNLookup, logNCompare)
	}

	if size := keyBytes(logNLookup, logNCompare); size > MaxKeyBytes {
		return p, errors.Wrapf(backend.ErrUnsupported, "%s needs %d MiB of comparison keys", req, size>>20)
	}

	if p.LWE, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    lweLogN,
		Q:       []uint64{lweQ},
		NTTFlag: true,
	}); err != nil {
		return p, errors.Wrap(err, "lwe parameters")
	}

	if p.Lookup, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    logNLookup,
		LogQ:    []int{lookupLogQ},
		LogP:    []int{logP, logP},
		Xs:      ring.Ternary{H: lookupHammingWeight},
		NTTFlag: true,
	}); err != nil {
		return p, errors.Wrap(err, "lookup parameters")
	}

	if p.Compare, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    logNCompare,
		LogQ:    []int{compareLogQ},
		LogP:    []int{logP, logP},
		NTTFlag: true,
	}); err != nil {
		return p, errors.Wrap(err, "compare parameters")
	}

	p.LookupEvk = rlwe.EvaluationKeyParameters{
		LevelQ: utils.Pointy(p.Lookup.MaxLevelQ()),
		LevelP: utils.Pointy(p.Lookup.MaxLevelP()),
	}
	p.CompareEvk = rlwe.EvaluationKeyParameters{
		LevelQ: utils.Pointy(p.Compare.MaxLevelQ()),
		LevelP: utils.Pointy(p.Compare.MaxLevelP()),
	}

	return
}

// keyBytes returns the size of the RGSW keys of the comparison stage: for
// each of the 2^logNLookup input coefficients, two gadget rows of two
// polynomials over the three moduli of the comparison ring.
func keyBytes(logNLookup, logNCompare int) uint64 {
	return (uint64(1) << logNLookup) * 2 * 2 * 3 * (uint64(1) << logNCompare) * 8
}

// InputScale is the scale of the probe bin encoding.
func (p Parameters) InputScale() float64 {
	return float64(p.LWE.Q()[0]) / 4
}

// LookupScale is the scale of one score unit after the lookup stage.
func (p Parameters) LookupScale() float64 {
	return float64(p.Lookup.Q()[0]) / (4 * float64(p.Range))
}

// CompareScale is the scale of the comparison bit.
func (p Parameters) CompareScale() float64 {
	return float64(p.Compare.Q()[0]) / 4
}

// binPosition returns the center of the interval of bin k when [-1, 1) is
// split into domain intervals.
func binPosition(k uint64, domain int) float64 {
	return float64(2*k+1)/float64(domain) - 1
}

// binIndex is the inverse of binPosition.
func binIndex(x float64, domain int) int {
	k := int(math.Floor((x + 1) * float64(domain) / 2))
	return min(max(k, 0), domain-1)
}

func ceilLog2(x uint64) int {
	return bits.Len64(x - 1)
}
