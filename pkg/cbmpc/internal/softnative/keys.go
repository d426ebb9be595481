package softnative

import (
	"unsafe"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
)

func (e *Engine) key(p unsafe.Pointer, mp bool) (*ecdsaKey, bool) {
	k, ok := lookup[ecdsaKey](e, p)
	if !ok || k.mp != mp {
		return nil, false
	}
	return k, true
}

func (e *Engine) freeKey(p unsafe.Pointer) {
	if p == nil {
		return
	}
	if k, ok := e.untrack(p).(*ecdsaKey); ok {
		k.x.Zero()
	}
}

func (e *Engine) ECDSA2PDKG(p unsafe.Pointer, curve int32, key *unsafe.Pointer) backend.Status {
	if key == nil {
		return backend.StatusParam
	}
	*key = nil
	j, ok := e.job2p(p)
	if !ok {
		return backend.StatusInvalidState
	}
	k, err := e.dkg(j, curve)
	if err != nil {
		return statusOf(err)
	}
	*key = e.track(unsafe.Pointer(k), k)
	return backend.StatusOK
}

func (e *Engine) ECDSA2PRefresh(p, keyRef unsafe.Pointer, newKey *unsafe.Pointer) backend.Status {
	if newKey == nil {
		return backend.StatusParam
	}
	*newKey = nil
	j, ok := e.job2p(p)
	if !ok {
		return backend.StatusInvalidState
	}
	k, ok := e.key(keyRef, false)
	if !ok {
		return backend.StatusParam
	}
	nk, err := e.refresh(j, k)
	if err != nil {
		return statusOf(err)
	}
	*newKey = e.track(unsafe.Pointer(nk), nk)
	return backend.StatusOK
}

// ECDSA2PSign signs every message of msgs in order; both parties receive all
// signatures. sid binds the batch to a session both parties agreed on.
func (e *Engine) ECDSA2PSign(p unsafe.Pointer, sid cmem.Mem, keyRef unsafe.Pointer, msgs cmem.Mems, sigs *cmem.Mems) backend.Status {
	if sigs == nil {
		return backend.StatusParam
	}
	*sigs = cmem.Mems{}
	j, ok := e.job2p(p)
	if !ok {
		return backend.StatusInvalidState
	}
	k, ok := e.key(keyRef, false)
	if !ok {
		return backend.StatusParam
	}
	digests := cmem.CopySet(msgs)
	if len(digests) == 0 {
		return backend.StatusParam
	}
	session := cmem.Copy(sid)
	tag := j.sessionTag()
	out := make([][]byte, len(digests))
	for i, d := range digests {
		if len(d) == 0 {
			return backend.StatusParam
		}
		sig, err := e.sign(j, k, commit("ecdsa-2p-sign", tag, int32(i), session, d), d, []int32{0, 1})
		if err != nil {
			return statusOf(err)
		}
		out[i] = sig
	}
	return e.exportSet(out, sigs)
}

// ECDSA2PPublicKey writes the compressed joint public key.
func (e *Engine) ECDSA2PPublicKey(keyRef unsafe.Pointer, out *cmem.Mem) backend.Status {
	if out == nil {
		return backend.StatusParam
	}
	*out = cmem.Mem{}
	k, ok := e.key(keyRef, false)
	if !ok {
		return backend.StatusParam
	}
	return e.export(encodePoint(k.q), out)
}

func (e *Engine) ECDSA2PKeyFree(keyRef unsafe.Pointer) { e.freeKey(keyRef) }

func (e *Engine) ECDSAMPDKG(p unsafe.Pointer, curve int32, key *unsafe.Pointer) backend.Status {
	if key == nil {
		return backend.StatusParam
	}
	*key = nil
	j, ok := e.jobMP(p)
	if !ok {
		return backend.StatusInvalidState
	}
	k, err := e.dkg(j, curve)
	if err != nil {
		return statusOf(err)
	}
	*key = e.track(unsafe.Pointer(k), k)
	return backend.StatusOK
}

func (e *Engine) ECDSAMPRefresh(p, keyRef unsafe.Pointer, newKey *unsafe.Pointer) backend.Status {
	if newKey == nil {
		return backend.StatusParam
	}
	*newKey = nil
	j, ok := e.jobMP(p)
	if !ok {
		return backend.StatusInvalidState
	}
	k, ok := e.key(keyRef, true)
	if !ok {
		return backend.StatusParam
	}
	nk, err := e.refresh(j, k)
	if err != nil {
		return statusOf(err)
	}
	*newKey = e.track(unsafe.Pointer(nk), nk)
	return backend.StatusOK
}

// ECDSAMPSign signs msg with all parties. Only sigReceiver gets the
// signature; every other party gets the empty buffer.
func (e *Engine) ECDSAMPSign(p, keyRef unsafe.Pointer, msg cmem.Mem, sigReceiver int32, sig *cmem.Mem) backend.Status {
	if sig == nil {
		return backend.StatusParam
	}
	*sig = cmem.Mem{}
	j, ok := e.jobMP(p)
	if !ok {
		return backend.StatusInvalidState
	}
	k, ok := e.key(keyRef, true)
	if !ok || !j.has(sigReceiver) {
		return backend.StatusParam
	}
	digest := cmem.Copy(msg)
	if len(digest) == 0 {
		return backend.StatusParam
	}
	ctx := commit("ecdsa-mp-sign", j.sessionTag(), sigReceiver, digest)
	s, err := e.sign(j, k, ctx, digest, []int32{sigReceiver})
	if err != nil {
		return statusOf(err)
	}
	return e.export(s, sig)
}

// ECDSAMPPublicKey writes the affine coordinates of the joint public key as
// 32-byte big-endian values.
func (e *Engine) ECDSAMPPublicKey(keyRef unsafe.Pointer, x, y *cmem.Mem) backend.Status {
	if x == nil || y == nil {
		return backend.StatusParam
	}
	*x, *y = cmem.Mem{}, cmem.Mem{}
	k, ok := e.key(keyRef, true)
	if !ok {
		return backend.StatusParam
	}
	a := *k.q
	a.ToAffine()
	if st := e.export(a.X.Bytes()[:], x); !st.OK() {
		return st
	}
	if st := e.export(a.Y.Bytes()[:], y); !st.OK() {
		cmem.Release(e.heap, *x)
		*x = cmem.Mem{}
		return st
	}
	return backend.StatusOK
}

// ECDSAMPShareScalars writes the caller's secret share and its public point.
func (e *Engine) ECDSAMPShareScalars(keyRef unsafe.Pointer, x, q *cmem.Mem) backend.Status {
	if x == nil || q == nil {
		return backend.StatusParam
	}
	*x, *q = cmem.Mem{}, cmem.Mem{}
	k, ok := e.key(keyRef, true)
	if !ok {
		return backend.StatusParam
	}
	if st := e.export(encodeScalar(&k.x), x); !st.OK() {
		return st
	}
	if st := e.export(encodePoint(k.parts[k.self]), q); !st.OK() {
		cmem.Release(e.heap, *x)
		*x = cmem.Mem{}
		return st
	}
	return backend.StatusOK
}

func (e *Engine) ECDSAMPKeyFree(keyRef unsafe.Pointer) { e.freeKey(keyRef) }

// NewEncKeyPairs generates secp256k1 encryption key pairs for quorum PVE:
// 32-byte private scalars and 33-byte compressed public keys.
func (e *Engine) NewEncKeyPairs(count int32, priv, pub *cmem.Mems) backend.Status {
	return e.keyPairs(count, priv, pub, func() ([]byte, []byte, error) {
		sk, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, nil, fail(backend.StatusInvalidState, "entropy: %v", err)
		}
		return sk.Serialize(), sk.PubKey().SerializeCompressed(), nil
	})
}

// NewECKeyPairs generates scalars x and their public points x*G, the secret
// and public inputs of quorum PVE.
func (e *Engine) NewECKeyPairs(count int32, priv, pub *cmem.Mems) backend.Status {
	return e.keyPairs(count, priv, pub, func() ([]byte, []byte, error) {
		x, err := randScalar()
		if err != nil {
			return nil, nil, err
		}
		return encodeScalar(x), encodePoint(baseMul(x)), nil
	})
}

func (e *Engine) keyPairs(count int32, priv, pub *cmem.Mems, gen func() ([]byte, []byte, error)) backend.Status {
	if priv == nil || pub == nil || count < 0 {
		return backend.StatusParam
	}
	*priv, *pub = cmem.Mems{}, cmem.Mems{}
	privs := make([][]byte, count)
	pubs := make([][]byte, count)
	for i := range privs {
		var err error
		if privs[i], pubs[i], err = gen(); err != nil {
			return statusOf(err)
		}
	}
	if st := e.exportSet(privs, priv); !st.OK() {
		return st
	}
	if st := e.exportSet(pubs, pub); !st.OK() {
		cmem.ReleaseSet(e.heap, *priv)
		*priv = cmem.Mems{}
		return st
	}
	return backend.StatusOK
}
