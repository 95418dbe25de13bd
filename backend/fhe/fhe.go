// Package fhe implements a [backend.Backend] on RLWE blind rotations.
//
// Probe bins are encoded on [-1, 1) and encrypted as the coefficients of RLWE
// ciphertexts, each coefficient being an LWE sample. Every lookup table is
// evaluated on its coefficient by a blind rotation of a test polynomial,
// which yields an RLWE ciphertext whose constant coefficient encrypts the
// digit, scaled so that a whole score fits in [0, 1). Place-value summation
// is a weighted sum of these ciphertexts, and the threshold comparison a
// second blind rotation of the sum.
//
// The parameters make the evaluation correct, not secure.
package fhe

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"
	"github.com/tuneinsight/lattigo/v6/core/rgsw/blindrot"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"

	"github.com/VReyesUOL/SecBioAuth/backend"
	"github.com/VReyesUOL/SecBioAuth/decomp"
)

// Backend is a [backend.Backend] on blind rotations.
// Its methods are safe for concurrent use; evaluations are serialized.
type Backend struct {
	req    backend.Requirements
	params Parameters

	mu sync.Mutex

	encLWE     *rlwe.Encryptor
	decLWE     *rlwe.Decryptor
	decLookup  *rlwe.Decryptor
	decCompare *rlwe.Decryptor

	evalLookup  *blindrot.Evaluator
	evalCompare *blindrot.Evaluator

	keysLookup  blindrot.BlindRotationEvaluationKeySet
	keysCompare blindrot.BlindRotationEvaluationKeySet

	testPolys    map[string]*ring.Poly
	comparePolys map[backend.Comparison]*ring.Poly
}

// New generates the keys of a new [Backend] for the given requirements.
func New(req backend.Requirements) (b *Backend, err error) {

	b = &Backend{
		req:          req,
		testPolys:    map[string]*ring.Poly{},
		comparePolys: map[backend.Comparison]*ring.Poly{},
	}

	if b.params, err = NewParameters(req); err != nil {
		return nil, err
	}

	p := b.params

	skLWE := rlwe.NewKeyGenerator(p.LWE).GenSecretKeyNew()
	skLookup := rlwe.NewKeyGenerator(p.Lookup).GenSecretKeyNew()
	skCompare := rlwe.NewKeyGenerator(p.Compare).GenSecretKeyNew()

	b.encLWE = rlwe.NewEncryptor(p.LWE, skLWE)
	b.decLWE = rlwe.NewDecryptor(p.LWE, skLWE)
	b.decLookup = rlwe.NewDecryptor(p.Lookup, skLookup)
	b.decCompare = rlwe.NewDecryptor(p.Compare, skCompare)

	b.evalLookup = blindrot.NewEvaluator(p.Lookup, p.LWE)
	b.evalCompare = blindrot.NewEvaluator(p.Compare, p.Lookup)

	b.keysLookup = blindrot.GenEvaluationKeyNew(p.Lookup, skLookup, p.LWE, skLWE, p.LookupEvk)
	b.keysCompare = blindrot.GenEvaluationKeyNew(p.Compare, skCompare, p.Lookup, skLookup, p.CompareEvk)

	return b, nil
}

// Factory is a [backend.Factory] of blind rotation backends.
var Factory = backend.FactoryFunc(func(_ context.Context, req backend.Requirements) (backend.Backend, error) {
	return New(req)
})

// Parameters returns the parameters of the backend.
func (b *Backend) Parameters() Parameters {
	return b.params
}

type inputCiphertext struct {
	cts []*rlwe.Ciphertext
	n   int
}

func (ct *inputCiphertext) Len() int { return ct.n }

// lookupCiphertext holds one ciphertext per occupied output slot, nil for
// zero slots.
type lookupCiphertext struct {
	slots    []*rlwe.Ciphertext
	occupied *roaring.Bitmap
}

func (ct *lookupCiphertext) Len() int { return len(ct.slots) }

type sumCiphertext struct {
	ct     *rlwe.Ciphertext
	digits int
}

func (ct *sumCiphertext) Len() int { return ct.digits }

type compareCiphertext struct {
	ct *rlwe.Ciphertext
}

func (ct *compareCiphertext) Len() int { return 1 }

func handle[T backend.Ciphertext](ct backend.Ciphertext) (h T, err error) {
	h, ok := ct.(T)
	if !ok {
		return h, errors.Wrapf(backend.ErrHandle, "got %T, expected %T", ct, h)
	}
	return h, nil
}

// Encrypt encrypts values, N of them per RLWE ciphertext.
func (b *Backend) Encrypt(ctx context.Context, values []uint64) (backend.Ciphertext, error) {

	if err := b.req.CheckEncrypt(values); err != nil {
		return nil, err
	}

	params := b.params.LWE
	N := params.N()
	Q := params.Q()[0]
	scale := b.params.InputScale()

	b.mu.Lock()
	defer b.mu.Unlock()

	out := &inputCiphertext{n: len(values)}

	for start := 0; start < len(values); start += N {

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pt := rlwe.NewPlaintext(params, params.MaxLevel())
		for j, v := range values[start:min(start+N, len(values))] {
			pt.Value.Coeffs[0][j] = encode(binPosition(v, b.params.Domain), scale, Q)
		}
		params.RingQ().NTT(pt.Value, pt.Value)

		ct := rlwe.NewCiphertext(params, 1, params.MaxLevel())
		if err := b.encLWE.Encrypt(pt, ct); err != nil {
			return nil, errors.Wrap(err, "encrypt")
		}

		out.cts = append(out.cts, ct)
	}

	return out, nil
}

// EvaluateLookup blind-rotates the test polynomial of luts[i] by the i-th
// encrypted value and stores the result in slot slots[i].
func (b *Backend) EvaluateLookup(ctx context.Context, ct backend.Ciphertext, luts [][]uint64, slots []int, size int) (backend.Ciphertext, error) {

	in, err := handle[*inputCiphertext](ct)
	if err != nil {
		return nil, err
	}

	occupied, err := b.req.CheckLookup(in.n, luts, slots, size)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	N := b.params.LWE.N()
	out := &lookupCiphertext{slots: make([]*rlwe.Ciphertext, size), occupied: occupied}

	for c, chunk := range in.cts {

		if err = ctx.Err(); err != nil {
			return nil, err
		}

		polys := make(map[int]*ring.Poly)
		for j := 0; j < N && c*N+j < in.n; j++ {
			polys[j] = b.testPolynomial(luts[c*N+j])
		}

		res, err := b.evalLookup.Evaluate(chunk, polys, b.keysLookup)
		if err != nil {
			return nil, errors.Wrap(err, "blind rotation")
		}

		for j, r := range res {
			out.slots[slots[c*N+j]] = r
		}
	}

	return out, nil
}

// testPolynomial returns the test polynomial of x -> lut[bin(x)], scaled to score units.
func (b *Backend) testPolynomial(lut []uint64) *ring.Poly {

	key := fmt.Sprint(lut)
	if poly, ok := b.testPolys[key]; ok {
		return poly
	}

	g := func(x float64) float64 {
		return float64(lut[min(binIndex(x, b.params.Domain), len(lut)-1)])
	}

	poly := blindrot.InitTestPolynomial(g, rlwe.NewScale(b.params.LookupScale()), b.params.Lookup.RingQ(), -1, 1)
	b.testPolys[key] = &poly

	return &poly
}

// Sum computes the sum over blocks t and digits d of base^d times slot t*blockLen+d.
// The carries are resolved by the place values.
func (b *Backend) Sum(ctx context.Context, ct backend.Ciphertext, blockLen, tableCount int) (backend.Ciphertext, error) {

	in, err := handle[*lookupCiphertext](ct)
	if err != nil {
		return nil, err
	}

	if err = b.req.CheckSum(in.Len(), blockLen, tableCount); err != nil {
		return nil, err
	}

	if decomp.Pow(b.req.Base, blockLen) > b.params.Range-2 {
		return nil, errors.Wrapf(backend.ErrUnsupported, "%d base-%d digits exceed the score range %d", blockLen, b.req.Base, b.params.Range-2)
	}

	params := b.params.Lookup
	ringQ := params.RingQ()

	acc := rlwe.NewCiphertext(params, 1, params.MaxLevel())
	acc.IsNTT = params.NTTFlag()

	for it := in.occupied.Iterator(); it.HasNext(); {
		i := int(it.Next())
		weight := decomp.Pow(b.req.Base, i%blockLen)
		ringQ.MulScalarThenAdd(in.slots[i].Value[0], weight, acc.Value[0])
		ringQ.MulScalarThenAdd(in.slots[i].Value[1], weight, acc.Value[1])
	}

	return &sumCiphertext{ct: acc, digits: blockLen}, nil
}

// Compare subtracts the threshold from the encrypted total and blind-rotates
// the test polynomial of the comparison by the difference.
func (b *Backend) Compare(ctx context.Context, ct backend.Ciphertext, threshold int64, kind backend.Comparison) (backend.Ciphertext, error) {

	in, err := handle[*sumCiphertext](ct)
	if err != nil {
		return nil, err
	}

	if err = kind.Validate(); err != nil {
		return nil, err
	}

	// Totals are in [0, Range-2): any threshold outside [-1, Range-2]
	// compares like the closest bound.
	threshold = min(max(threshold, -1), int64(b.params.Range-2))

	params := b.params.Lookup
	Q := params.Q()[0]
	shift := encode(float64(threshold), b.params.LookupScale(), Q)

	diff := in.ct.CopyNew()
	if diff.IsNTT {
		params.RingQ().SubScalar(diff.Value[0], shift, diff.Value[0])
	} else {
		diff.Value[0].Coeffs[0][0] = (diff.Value[0].Coeffs[0][0] + Q - shift) % Q
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	res, err := b.evalCompare.Evaluate(diff, map[int]*ring.Poly{0: b.comparePolynomial(kind)}, b.keysCompare)
	if err != nil {
		return nil, errors.Wrap(err, "blind rotation")
	}

	return &compareCiphertext{ct: res[0]}, nil
}

// comparePolynomial returns the test polynomial of the indicator of kind on
// the difference total - threshold, encoded on (-1, 1) in score units.
func (b *Backend) comparePolynomial(kind backend.Comparison) *ring.Poly {

	if poly, ok := b.comparePolys[kind]; ok {
		return poly
	}

	units := float64(b.params.Range)
	g := func(x float64) float64 {
		diff := math.Round(x * units)
		order := 0
		switch {
		case diff < 0:
			order = -1
		case diff > 0:
			order = 1
		}
		if kind.Holds(order) {
			return 1
		}
		return 0
	}

	poly := blindrot.InitTestPolynomial(g, rlwe.NewScale(b.params.CompareScale()), b.params.Compare.RingQ(), -1, 1)
	b.comparePolys[kind] = &poly

	return &poly
}

// Decrypt decrypts a handle of any stage: the bins of Encrypt, the slots of
// EvaluateLookup, the digits of Sum or the bit of Compare.
func (b *Backend) Decrypt(ctx context.Context, ct backend.Ciphertext) (values []uint64, err error) {

	b.mu.Lock()
	defer b.mu.Unlock()

	switch ct := ct.(type) {
	case *inputCiphertext:
		N := b.params.LWE.N()
		values = make([]uint64, ct.n)
		for c, chunk := range ct.cts {
			coeffs := decrypt(b.decLWE, b.params.LWE, chunk)
			for j := 0; j < N && c*N+j < ct.n; j++ {
				x := decode(coeffs[j], b.params.LWE.Q()[0], b.params.InputScale())
				values[c*N+j] = uint64(binIndex(x, b.params.Domain))
			}
		}

	case *lookupCiphertext:
		values = make([]uint64, len(ct.slots))
		for i, slot := range ct.slots {
			if slot != nil {
				values[i] = b.lookupValue(slot)
			}
		}

	case *sumCiphertext:
		values = decomp.Decompose(b.lookupValue(ct.ct), b.req.Base, ct.digits)

	case *compareCiphertext:
		coeffs := decrypt(b.decCompare, b.params.Compare, ct.ct)
		bit := math.Round(decode(coeffs[0], b.params.Compare.Q()[0], b.params.CompareScale()))
		values = []uint64{0}
		if bit >= 0.5 {
			values[0] = 1
		}

	default:
		return nil, errors.Wrapf(backend.ErrHandle, "%T is not a blind rotation handle", ct)
	}

	return
}

// lookupValue decrypts the score units carried by the constant coefficient of ct.
func (b *Backend) lookupValue(ct *rlwe.Ciphertext) uint64 {
	coeffs := decrypt(b.decLookup, b.params.Lookup, ct)
	v := math.Round(decode(coeffs[0], b.params.Lookup.Q()[0], b.params.LookupScale()))
	return uint64(max(v, 0))
}

func decrypt(dec *rlwe.Decryptor, params rlwe.Parameters, ct *rlwe.Ciphertext) []uint64 {
	pt := dec.DecryptNew(ct)
	if pt.IsNTT {
		params.RingQ().AtLevel(pt.Level()).INTT(pt.Value, pt.Value)
	}
	return pt.Value.Coeffs[0]
}

// encode returns round(x*scale) mod q.
func encode(x, scale float64, q uint64) uint64 {
	v := math.Round(x * scale)
	r := uint64(math.Abs(v)) % q
	if v < 0 && r != 0 {
		r = q - r
	}
	return r
}

// decode returns the centered value of c mod q divided by scale.
func decode(c, q uint64, scale float64) float64 {
	if c >= q>>1 {
		return -float64(q-c) / scale
	}
	return float64(c) / scale
}
