package softnative

import (
	"crypto/rand"
	"math/big"

	"github.com/cronokirby/saferith"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
)

var bigOne = big.NewInt(1)

type paillierPublic struct {
	nBig  *big.Int
	n2Big *big.Int
	nNat  *saferith.Nat
	n     *saferith.Modulus
	n2    *saferith.Modulus
}

type paillierPrivate struct {
	*paillierPublic
	lambda *saferith.Nat
	mu     *big.Int
}

func newPaillierPublic(n *big.Int) *paillierPublic {
	nNat := new(saferith.Nat).SetBig(n, n.BitLen())
	n2Nat := new(saferith.Nat).Mul(nNat, nNat, -1)
	return &paillierPublic{
		nBig:  n,
		n2Big: new(big.Int).Mul(n, n),
		nNat:  nNat,
		n:     saferith.ModulusFromNat(nNat),
		n2:    saferith.ModulusFromNat(n2Nat),
	}
}

func parsePaillierPublic(from int32, b []byte) (*paillierPublic, error) {
	n := new(big.Int).SetBytes(b)
	if n.BitLen() < minPaillierBits || n.Bit(0) == 0 {
		return nil, fail(backend.StatusVerify, "bad paillier modulus from %d", from)
	}
	return newPaillierPublic(n), nil
}

func generatePaillier(bits int) (*paillierPrivate, error) {
	for {
		p, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, fail(backend.StatusInvalidState, "paillier prime: %v", err)
		}
		q, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, fail(backend.StatusInvalidState, "paillier prime: %v", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}
		lambda := new(big.Int).Mul(new(big.Int).Sub(p, bigOne), new(big.Int).Sub(q, bigOne))
		mu := new(big.Int).ModInverse(lambda, n)
		if mu == nil {
			continue
		}
		pub := newPaillierPublic(n)
		return &paillierPrivate{
			paillierPublic: pub,
			lambda:         new(saferith.Nat).SetBig(lambda, lambda.BitLen()),
			mu:             mu,
		}, nil
	}
}

func (pk *paillierPublic) bytes() []byte { return pk.nBig.Bytes() }

func (pk *paillierPublic) randomUnit() (*saferith.Nat, error) {
	for {
		r, err := rand.Int(rand.Reader, pk.nBig)
		if err != nil {
			return nil, fail(backend.StatusInvalidState, "entropy: %v", err)
		}
		if r.Sign() > 0 && new(big.Int).GCD(nil, nil, r, pk.nBig).Cmp(bigOne) == 0 {
			return new(saferith.Nat).SetBig(r, pk.nBig.BitLen()), nil
		}
	}
}

// encrypt computes (1 + m*N) * r^N mod N^2 for 0 <= m < N.
func (pk *paillierPublic) encrypt(m *big.Int) (*saferith.Nat, error) {
	if m.Sign() < 0 || m.Cmp(pk.nBig) >= 0 {
		return nil, fail(backend.StatusParam, "paillier plaintext out of range")
	}
	r, err := pk.randomUnit()
	if err != nil {
		return nil, err
	}
	mNat := new(saferith.Nat).SetBig(m, pk.nBig.BitLen())
	gm := new(saferith.Nat).ModMul(mNat, pk.nNat, pk.n2)
	gm.ModAdd(gm, new(saferith.Nat).SetUint64(1), pk.n2)
	rn := new(saferith.Nat).Exp(r, pk.nNat, pk.n2)
	return new(saferith.Nat).ModMul(gm, rn, pk.n2), nil
}

// add returns a ciphertext of the sum of the plaintexts.
func (pk *paillierPublic) add(a, b *saferith.Nat) *saferith.Nat {
	return new(saferith.Nat).ModMul(a, b, pk.n2)
}

// scale returns a ciphertext of k times the plaintext of c.
func (pk *paillierPublic) scale(c *saferith.Nat, k *big.Int) *saferith.Nat {
	kNat := new(saferith.Nat).SetBig(k, k.BitLen()+1)
	return new(saferith.Nat).Exp(c, kNat, pk.n2)
}

func (pk *paillierPublic) parseCiphertext(from int32, b []byte) (*saferith.Nat, error) {
	c := new(big.Int).SetBytes(b)
	if c.Sign() == 0 || c.Cmp(pk.n2Big) >= 0 {
		return nil, fail(backend.StatusVerify, "bad paillier ciphertext from %d", from)
	}
	return new(saferith.Nat).SetBig(c, pk.n2Big.BitLen()), nil
}

func (sk *paillierPrivate) decrypt(c *saferith.Nat) *big.Int {
	u := new(saferith.Nat).Exp(c, sk.lambda, sk.n2).Big()
	l := new(big.Int).Sub(u, bigOne)
	l.Div(l, sk.nBig)
	l.Mul(l, sk.mu)
	return l.Mod(l, sk.nBig)
}
