package softnative

import (
	"bytes"
	"crypto/sha256"
	"io"
	"unsafe"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
)

const pveVersion = 1

type pveBundle struct {
	Version int       `cbor:"1,keyasint"`
	Label   []byte    `cbor:"2,keyasint"`
	Xs      [][]byte  `cbor:"3,keyasint"`
	Leaves  []pveLeaf `cbor:"4,keyasint"`
}

type pveLeaf struct {
	Name      string `cbor:"1,keyasint"`
	Ephemeral []byte `cbor:"2,keyasint"`
	Sealed    []byte `cbor:"3,keyasint"`
}

// leafKey derives the AEAD key shared between an ephemeral key and a leaf
// key.
func leafKey(shared, ephemeral, recipient []byte, name string) ([]byte, error) {
	salt := append(append([]byte{}, ephemeral...), recipient...)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte("cbmpc-soft pve "+name)), key); err != nil {
		return nil, fail(backend.StatusInvalidState, "kdf: %v", err)
	}
	return key, nil
}

func leafAD(label []byte, name string) []byte {
	return append(append([]byte{}, label...), name...)
}

// seal encrypts plaintext to the compressed public key pub under a fresh
// ephemeral key. Each ephemeral key is used once, so the nonce is fixed.
func seal(pub []byte, name string, label, plaintext []byte) (pveLeaf, error) {
	recipient, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return pveLeaf{}, fail(backend.StatusParam, "public key of %q: %v", name, err)
	}
	eph, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return pveLeaf{}, fail(backend.StatusInvalidState, "entropy: %v", err)
	}
	ephPub := eph.PubKey().SerializeCompressed()
	key, err := leafKey(secp256k1.GenerateSharedSecret(eph, recipient), ephPub, pub, name)
	if err != nil {
		return pveLeaf{}, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return pveLeaf{}, fail(backend.StatusInvalidState, "aead: %v", err)
	}
	nonce := make([]byte, aead.NonceSize())
	return pveLeaf{
		Name:      name,
		Ephemeral: ephPub,
		Sealed:    aead.Seal(nil, nonce, plaintext, leafAD(label, name)),
	}, nil
}

func open(priv *secp256k1.PrivateKey, pub []byte, leaf pveLeaf, label []byte) ([]byte, error) {
	eph, err := secp256k1.ParsePubKey(leaf.Ephemeral)
	if err != nil {
		return nil, fail(backend.StatusVerify, "ephemeral key of %q: %v", leaf.Name, err)
	}
	key, err := leafKey(secp256k1.GenerateSharedSecret(priv, eph), leaf.Ephemeral, pub, leaf.Name)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fail(backend.StatusInvalidState, "aead: %v", err)
	}
	pt, err := aead.Open(nil, make([]byte, aead.NonceSize()), leaf.Sealed, leafAD(label, leaf.Name))
	if err != nil {
		return nil, fail(backend.StatusVerify, "cannot open share of %q", leaf.Name)
	}
	return pt, nil
}

func (e *Engine) rootNode(ref unsafe.Pointer) (*node, []*node, error) {
	root, ok := lookup[node](e, ref)
	if !ok || root.parent != nil {
		return nil, nil, fail(backend.StatusParam, "not a root node")
	}
	leaves, err := root.validate()
	if err != nil {
		return nil, nil, err
	}
	return root, leaves, nil
}

func (e *Engine) quorumEncrypt(ref unsafe.Pointer, pubKeys, xs [][]byte, label []byte) ([]byte, error) {
	root, leaves, err := e.rootNode(ref)
	if err != nil {
		return nil, err
	}
	if len(pubKeys) != len(leaves) {
		return nil, fail(backend.StatusParam, "%d public keys for %d leaves", len(pubKeys), len(leaves))
	}
	if len(xs) == 0 {
		return nil, fail(backend.StatusParam, "no secrets")
	}

	bundle := pveBundle{Version: pveVersion, Label: label, Xs: make([][]byte, len(xs))}
	plain := make(map[*node][]byte, len(leaves))
	for i, b := range xs {
		x, ok := decodeScalar(b)
		if !ok || x.IsZero() {
			return nil, fail(backend.StatusParam, "secret %d is not a valid scalar", i)
		}
		bundle.Xs[i] = encodePoint(baseMul(x))
		shares := make(map[*node]*scalar, len(leaves))
		if err := root.share(x, shares); err != nil {
			return nil, err
		}
		for _, l := range leaves {
			plain[l] = append(plain[l], encodeScalar(shares[l])...)
		}
	}
	for i, l := range leaves {
		leaf, err := seal(pubKeys[i], l.name, label, plain[l])
		if err != nil {
			return nil, err
		}
		bundle.Leaves = append(bundle.Leaves, leaf)
	}
	return encode(bundle), nil
}

func (e *Engine) quorumDecrypt(ref unsafe.Pointer, privKeys, pubKeys [][]byte, raw []byte, pubXs [][]byte, label []byte) ([][]byte, error) {
	root, leaves, err := e.rootNode(ref)
	if err != nil {
		return nil, err
	}
	if len(pubKeys) != len(leaves) || len(privKeys) != len(leaves) {
		return nil, fail(backend.StatusParam, "%d/%d keys for %d leaves", len(privKeys), len(pubKeys), len(leaves))
	}
	var bundle pveBundle
	if err := cbor.Unmarshal(raw, &bundle); err != nil {
		return nil, fail(backend.StatusParam, "malformed bundle: %v", err)
	}
	if bundle.Version != pveVersion || len(bundle.Leaves) != len(leaves) {
		return nil, fail(backend.StatusParam, "bundle does not match the access structure")
	}
	if !bytes.Equal(bundle.Label, label) {
		return nil, fail(backend.StatusVerify, "label mismatch")
	}
	if len(pubXs) != len(bundle.Xs) {
		return nil, fail(backend.StatusParam, "%d public values for %d secrets", len(pubXs), len(bundle.Xs))
	}
	for i := range pubXs {
		if !bytes.Equal(pubXs[i], bundle.Xs[i]) {
			return nil, fail(backend.StatusVerify, "public value %d does not match the bundle", i)
		}
	}

	count := len(bundle.Xs)
	opened := make([]map[*node]*scalar, count)
	for i := range opened {
		opened[i] = map[*node]*scalar{}
	}
	for i, l := range leaves {
		if len(privKeys[i]) == 0 {
			continue
		}
		if bundle.Leaves[i].Name != l.name {
			return nil, fail(backend.StatusParam, "bundle leaf %q where %q expected", bundle.Leaves[i].Name, l.name)
		}
		sk, ok := decodeScalar(privKeys[i])
		if !ok || sk.IsZero() {
			return nil, fail(backend.StatusParam, "private key of %q", l.name)
		}
		priv := secp256k1.NewPrivateKey(sk)
		if !bytes.Equal(priv.PubKey().SerializeCompressed(), pubKeys[i]) {
			return nil, fail(backend.StatusParam, "private key of %q does not match its public key", l.name)
		}
		pt, err := open(priv, pubKeys[i], bundle.Leaves[i], label)
		if err != nil {
			return nil, err
		}
		if len(pt) != 32*count {
			return nil, fail(backend.StatusVerify, "share of %q has %d bytes", l.name, len(pt))
		}
		for k := 0; k < count; k++ {
			s, ok := decodeScalar(pt[32*k : 32*(k+1)])
			if !ok {
				return nil, fail(backend.StatusVerify, "share of %q", l.name)
			}
			opened[k][l] = s
		}
	}

	out := make([][]byte, count)
	for k := range out {
		x, ok := root.reconstruct(opened[k])
		if !ok {
			return nil, fail(backend.StatusInsufficient, "keys do not satisfy the access structure")
		}
		if !bytes.Equal(encodePoint(baseMul(x)), bundle.Xs[k]) {
			return nil, fail(backend.StatusVerify, "recovered secret %d does not match its public value", k)
		}
		out[k] = encodeScalar(x)
	}
	return out, nil
}

func (e *Engine) PVEQuorumEncrypt(root unsafe.Pointer, pubKeys, xs cmem.Mems, label cmem.Mem, out *cmem.Mem) backend.Status {
	if out == nil {
		return backend.StatusParam
	}
	*out = cmem.Mem{}
	bundle, err := e.quorumEncrypt(root, cmem.CopySet(pubKeys), cmem.CopySet(xs), cmem.Copy(label))
	if err != nil {
		return statusOf(err)
	}
	return e.export(bundle, out)
}

func (e *Engine) PVEQuorumDecrypt(root unsafe.Pointer, privKeys, pubKeys cmem.Mems, bundle cmem.Mem, pubXs cmem.Mems, label cmem.Mem, out *cmem.Mems) backend.Status {
	if out == nil {
		return backend.StatusParam
	}
	*out = cmem.Mems{}
	xs, err := e.quorumDecrypt(root, cmem.CopySet(privKeys), cmem.CopySet(pubKeys), cmem.Copy(bundle), cmem.CopySet(pubXs), cmem.Copy(label))
	if err != nil {
		return statusOf(err)
	}
	return e.exportSet(xs, out)
}
