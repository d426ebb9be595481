package softnative

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zeebo/blake3"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
)

type (
	scalar = secp256k1.ModNScalar
	point  = secp256k1.JacobianPoint
)

var curveOrder = secp256k1.S256().N

func randScalar() (*scalar, error) {
	var buf [32]byte
	for {
		if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
			return nil, fail(backend.StatusInvalidState, "entropy: %v", err)
		}
		var s scalar
		if overflow := s.SetByteSlice(buf[:]); !overflow && !s.IsZero() {
			return &s, nil
		}
	}
}

func baseMul(k *scalar) *point {
	var p point
	secp256k1.ScalarBaseMultNonConst(k, &p)
	return &p
}

func mul(k *scalar, p *point) *point {
	var r point
	secp256k1.ScalarMultNonConst(k, p, &r)
	return &r
}

func add(a, b *point) *point {
	var r point
	secp256k1.AddNonConst(a, b, &r)
	return &r
}

func isInfinity(p *point) bool {
	a := *p
	a.X.Normalize()
	a.Y.Normalize()
	a.Z.Normalize()
	return (a.X.IsZero() && a.Y.IsZero()) || a.Z.IsZero()
}

func pubKeyOf(p *point) *secp256k1.PublicKey {
	a := *p
	a.ToAffine()
	return secp256k1.NewPublicKey(&a.X, &a.Y)
}

// encodePoint returns the 33-byte compressed form of p.
func encodePoint(p *point) []byte {
	return pubKeyOf(p).SerializeCompressed()
}

func decodePoint(from int32, b []byte) (*point, error) {
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fail(backend.StatusVerify, "bad point from %d: %v", from, err)
	}
	var p point
	pk.AsJacobian(&p)
	return &p, nil
}

func encodeScalar(s *scalar) []byte {
	b := s.Bytes()
	return b[:]
}

func decodeScalar(b []byte) (*scalar, bool) {
	if len(b) != 32 {
		return nil, false
	}
	var s scalar
	if overflow := s.SetByteSlice(b); overflow {
		return nil, false
	}
	return &s, true
}

func scalarToBig(s *scalar) *big.Int {
	b := s.Bytes()
	return new(big.Int).SetBytes(b[:])
}

// scalarFromBig reduces v modulo the group order.
func scalarFromBig(v *big.Int) *scalar {
	r := new(big.Int).Mod(v, curveOrder)
	var buf [32]byte
	r.FillBytes(buf[:])
	var s scalar
	s.SetByteSlice(buf[:])
	return &s
}

// hashToScalar maps a message digest to a scalar the way ECDSA does: the
// leftmost 256 bits, reduced modulo the order.
func hashToScalar(msg []byte) *scalar {
	if len(msg) > 32 {
		msg = msg[:32]
	}
	var s scalar
	s.SetByteSlice(msg)
	return &s
}

// commit binds a party's values to a domain and session. Each part is length
// prefixed.
func commit(domain string, session []byte, party int32, parts ...[]byte) []byte {
	h := blake3.NewDeriveKey("cbmpc-soft " + domain)
	var n [4]byte
	writePart := func(b []byte) {
		binary.BigEndian.PutUint32(n[:], uint32(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	writePart(session)
	binary.BigEndian.PutUint32(n[:], uint32(party))
	h.Write(n[:])
	for _, p := range parts {
		writePart(p)
	}
	return h.Sum(nil)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fail(backend.StatusInvalidState, "entropy: %v", err)
	}
	return b, nil
}
