package softnative

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/sync/errgroup"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
)

// maskBits bounds the additive masks of the MtA step. Products of two
// scalars are below 2^512, so a 768-bit mask keeps every sum below a
// 1024-bit Paillier modulus while hiding the product statistically.
const maskBits = 768

var maskBound = new(big.Int).Lsh(bigOne, maskBits)

// ecdsaKey is one party's additive share of an ECDSA key together with the
// public shares and Paillier keys of every party.
type ecdsaKey struct {
	mp    bool
	curve int32
	self  int32
	n     int32
	x     scalar
	parts []*point
	q     *point
	sk    *paillierPrivate
	pks   []*paillierPublic
}

func (k *ecdsaKey) boundTo(j *job) error {
	if k.mp != j.mp || k.self != j.self || k.n != j.n {
		return fail(backend.StatusParam, "key of party %d/%d used in session of party %d/%d", k.self, k.n, j.self, j.n)
	}
	return nil
}

type dkgReveal struct {
	X     []byte `cbor:"1,keyasint"`
	N     []byte `cbor:"2,keyasint"`
	Nonce []byte `cbor:"3,keyasint"`
}

// dkg samples an additive share, publishes its public point and a Paillier
// key through commit-then-reveal, and sums the points into the joint key.
func (e *Engine) dkg(j *job, curve int32) (*ecdsaKey, error) {
	if curve != CurveSecp256k1 {
		return nil, fail(backend.StatusUnsupported, "curve %d", curve)
	}
	x, err := randScalar()
	if err != nil {
		return nil, err
	}
	sk, err := generatePaillier(e.paillierBits)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	tag := j.sessionTag()
	mine := dkgReveal{X: encodePoint(baseMul(x)), N: sk.bytes(), Nonce: nonce}

	commits, err := e.exchange(j, commit("ecdsa-dkg", tag, j.self, mine.X, mine.N, mine.Nonce))
	if err != nil {
		return nil, err
	}
	reveals, err := exchangeDecoded(e, j, mine)
	if err != nil {
		return nil, err
	}

	key := &ecdsaKey{
		mp:    j.mp,
		curve: curve,
		self:  j.self,
		n:     j.n,
		x:     *x,
		parts: make([]*point, j.n),
		q:     new(point),
		sk:    sk,
		pks:   make([]*paillierPublic, j.n),
	}
	for i, r := range reveals {
		from := int32(i)
		if subtle.ConstantTimeCompare(commit("ecdsa-dkg", tag, from, r.X, r.N, r.Nonce), commits[i]) != 1 {
			return nil, fail(backend.StatusVerify, "party %d opened a different key share", from)
		}
		p, err := decodePoint(from, r.X)
		if err != nil {
			return nil, err
		}
		pk := sk.paillierPublic
		if from != j.self {
			if pk, err = parsePaillierPublic(from, r.N); err != nil {
				return nil, err
			}
		}
		key.parts[i] = p
		key.pks[i] = pk
		key.q = add(key.q, p)
	}
	if isInfinity(key.q) {
		return nil, fail(backend.StatusVerify, "joint public key is the identity")
	}
	return key, nil
}

// refresh re-randomizes the additive shares with pairwise zero-sum deltas.
// The joint public key is unchanged; the old key is left untouched.
func (e *Engine) refresh(j *job, k *ecdsaKey) (*ecdsaKey, error) {
	if err := k.boundTo(j); err != nil {
		return nil, err
	}
	x := k.x
	out := make([][]byte, j.n)
	for _, p := range j.peers() {
		r, err := randScalar()
		if err != nil {
			return nil, err
		}
		out[p] = encodeScalar(r)
		x.Add(r.Negate())
	}
	in, err := e.exchangeEach(j, out)
	if err != nil {
		return nil, err
	}
	for _, p := range j.peers() {
		r, ok := decodeScalar(in[p])
		if !ok {
			return nil, fail(backend.StatusVerify, "bad refresh delta from %d", p)
		}
		x.Add(r)
	}

	raw, err := e.exchange(j, encodePoint(baseMul(&x)))
	if err != nil {
		return nil, err
	}
	parts := make([]*point, j.n)
	sum := new(point)
	for i, b := range raw {
		p, err := decodePoint(int32(i), b)
		if err != nil {
			return nil, err
		}
		parts[i] = p
		sum = add(sum, p)
	}
	if isInfinity(sum) || !bytes.Equal(encodePoint(sum), encodePoint(k.q)) {
		return nil, fail(backend.StatusVerify, "refreshed shares do not match the public key")
	}

	nk := *k
	nk.x = x
	nk.parts = parts
	return &nk, nil
}

type signRound1 struct {
	Gamma   []byte `cbor:"1,keyasint"`
	K       []byte `cbor:"2,keyasint"`
	Context []byte `cbor:"3,keyasint"`
}

type signRound2 struct {
	G []byte `cbor:"1,keyasint"`
	X []byte `cbor:"2,keyasint"`
}

// mta answers a peer's encrypted nonce share: it returns Enc(k*v + mask)
// under the peer's key and keeps -mask as its own additive share.
func mta(pk *paillierPublic, ck []byte, from int32, v *scalar) ([]byte, *scalar, error) {
	c, err := pk.parseCiphertext(from, ck)
	if err != nil {
		return nil, nil, err
	}
	mask, err := rand.Int(rand.Reader, maskBound)
	if err != nil {
		return nil, nil, fail(backend.StatusInvalidState, "entropy: %v", err)
	}
	cm, err := pk.encrypt(mask)
	if err != nil {
		return nil, nil, err
	}
	resp := pk.add(pk.scale(c, scalarToBig(v)), cm)
	return resp.Bytes(), scalarFromBig(mask).Negate(), nil
}

// sign produces an ECDSA signature over digest with every party of j. The
// signature is returned to the parties listed in receivers; other parties
// get nil. context must be identical across parties.
func (e *Engine) sign(j *job, k *ecdsaKey, context, digest []byte, receivers []int32) ([]byte, error) {
	if err := k.boundTo(j); err != nil {
		return nil, err
	}
	kk, err := randScalar()
	if err != nil {
		return nil, err
	}
	gamma, err := randScalar()
	if err != nil {
		return nil, err
	}
	ck, err := k.sk.encrypt(scalarToBig(kk))
	if err != nil {
		return nil, err
	}

	r1, err := exchangeDecoded(e, j, signRound1{
		Gamma:   encodePoint(baseMul(gamma)),
		K:       ck.Bytes(),
		Context: context,
	})
	if err != nil {
		return nil, err
	}
	bigGamma := new(point)
	for i, m := range r1 {
		if !bytes.Equal(m.Context, context) {
			return nil, fail(backend.StatusVerify, "party %d signs a different session or message", i)
		}
		g, err := decodePoint(int32(i), m.Gamma)
		if err != nil {
			return nil, err
		}
		bigGamma = add(bigGamma, g)
	}

	// Pairwise MtA on k_p*gamma_i and k_p*x_i.
	var delta, sigma scalar
	delta.Mul2(kk, gamma)
	sigma.Mul2(kk, &k.x)
	out := make([][]byte, j.n)
	for _, p := range j.peers() {
		cg, bg, err := mta(k.pks[p], r1[p].K, p, gamma)
		if err != nil {
			return nil, err
		}
		cx, bx, err := mta(k.pks[p], r1[p].K, p, &k.x)
		if err != nil {
			return nil, err
		}
		delta.Add(bg)
		sigma.Add(bx)
		out[p] = encode(signRound2{G: cg, X: cx})
	}
	in, err := e.exchangeEach(j, out)
	if err != nil {
		return nil, err
	}
	for _, p := range j.peers() {
		var m signRound2
		if err := decode(p, in[p], &m); err != nil {
			return nil, err
		}
		cg, err := k.sk.parseCiphertext(p, m.G)
		if err != nil {
			return nil, err
		}
		cx, err := k.sk.parseCiphertext(p, m.X)
		if err != nil {
			return nil, err
		}
		delta.Add(scalarFromBig(k.sk.decrypt(cg)))
		sigma.Add(scalarFromBig(k.sk.decrypt(cx)))
	}

	raw, err := e.exchange(j, encodeScalar(&delta))
	if err != nil {
		return nil, err
	}
	var sumDelta scalar
	for i, b := range raw {
		d, ok := decodeScalar(b)
		if !ok {
			return nil, fail(backend.StatusVerify, "bad delta from %d", i)
		}
		sumDelta.Add(d)
	}
	if sumDelta.IsZero() {
		return nil, fail(backend.StatusVerify, "degenerate nonce")
	}
	var inv scalar
	inv.InverseValNonConst(&sumDelta)
	bigR := mul(&inv, bigGamma)
	if isInfinity(bigR) {
		return nil, fail(backend.StatusVerify, "degenerate nonce point")
	}
	bigR.ToAffine()
	var r scalar
	r.SetByteSlice(bigR.X.Bytes()[:])
	if r.IsZero() {
		return nil, fail(backend.StatusVerify, "degenerate r")
	}

	var s, t scalar
	s.Mul2(hashToScalar(digest), kk)
	t.Mul2(&r, &sigma)
	s.Add(&t)

	var g errgroup.Group
	for _, rc := range receivers {
		if rc != j.self {
			g.Go(func() error { return e.send(j, rc, encodeScalar(&s)) })
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !slices.Contains(receivers, j.self) {
		return nil, nil
	}

	shares, err := e.gather(j)
	if err != nil {
		return nil, err
	}
	for _, p := range j.peers() {
		si, ok := decodeScalar(shares[p])
		if !ok {
			return nil, fail(backend.StatusVerify, "bad signature share from %d", p)
		}
		s.Add(si)
	}
	if s.IsZero() {
		return nil, fail(backend.StatusVerify, "degenerate s")
	}
	if s.IsOverHalfOrder() {
		s.Negate()
	}
	sig := ecdsa.NewSignature(&r, &s)
	if !sig.Verify(digest, pubKeyOf(k.q)) {
		return nil, fail(backend.StatusVerify, "signature does not verify")
	}
	return sig.Serialize(), nil
}
