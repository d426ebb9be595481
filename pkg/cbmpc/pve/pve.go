package pve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	ac "github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/accessstructure"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
)

// Bundle is a serialized quorum PVE ciphertext.
type Bundle []byte

// Bytes returns the serialized bundle.
func (b Bundle) Bytes() []byte {
	return []byte(b)
}

// EncryptParams contains parameters for quorum PVE encryption.
type EncryptParams struct {
	// Root is the access structure. It must be a root node.
	Root *ac.Node

	// PublicKeys holds one encryption key per leaf, aligned with Root.Leaves().
	PublicKeys [][]byte

	// Secrets are the scalars to encrypt.
	Secrets [][]byte

	Label []byte
}

// EncryptResult contains the result of quorum PVE encryption.
type EncryptResult struct {
	Bundle Bundle
}

// QuorumEncrypt encrypts Secrets to the quorum described by Root
// (pve_quorum_encrypt).
//
// Context behavior: ctx is currently unused; the call runs locally.
func QuorumEncrypt(_ context.Context, p *EncryptParams) (*EncryptResult, error) {
	if p == nil {
		return nil, errors.New("nil params")
	}
	if p.Root == nil {
		return nil, errors.New("nil access structure")
	}
	if len(p.Secrets) == 0 {
		return nil, errors.New("no secrets to encrypt")
	}
	if err := aligned(p.Root, "public", p.PublicKeys); err != nil {
		return nil, err
	}
	root, err := p.Root.Ptr()
	if err != nil {
		return nil, err
	}

	eng := p.Root.Engine()
	pubs := cmem.ViewSet(p.PublicKeys)
	xs := cmem.ViewSet(p.Secrets)
	var out cmem.Mem
	st := eng.PVEQuorumEncrypt(root, pubs, xs, cmem.View(p.Label), &out)
	runtime.KeepAlive(pubs)
	runtime.KeepAlive(xs)
	runtime.KeepAlive(p.Root)
	if err := cbmpc.StatusError("pve_quorum_encrypt", st); err != nil {
		cmem.Release(eng.Allocator(), out)
		return nil, err
	}
	return &EncryptResult{Bundle: Bundle(cmem.Take(eng.Allocator(), out))}, nil
}

// DecryptParams contains parameters for quorum PVE decryption.
type DecryptParams struct {
	Root *ac.Node

	// PrivateKeys is aligned with Root.Leaves(). A nil or empty entry marks a
	// leaf that does not take part.
	PrivateKeys [][]byte
	PublicKeys  [][]byte

	Bundle Bundle

	// PublicSecrets are the points x*G the recovered secrets must match.
	PublicSecrets [][]byte

	Label []byte
}

// DecryptResult contains the recovered secrets, in encryption order. The
// caller must zeroize them.
type DecryptResult struct {
	Secrets [][]byte
}

// QuorumDecrypt recovers the secrets of Bundle from the private keys of a
// satisfying quorum (pve_quorum_decrypt).
func QuorumDecrypt(_ context.Context, p *DecryptParams) (*DecryptResult, error) {
	if p == nil {
		return nil, errors.New("nil params")
	}
	if p.Root == nil {
		return nil, errors.New("nil access structure")
	}
	if len(p.Bundle) == 0 {
		return nil, errors.New("empty bundle")
	}
	if err := aligned(p.Root, "private", p.PrivateKeys); err != nil {
		return nil, err
	}
	if err := aligned(p.Root, "public", p.PublicKeys); err != nil {
		return nil, err
	}
	root, err := p.Root.Ptr()
	if err != nil {
		return nil, err
	}

	eng := p.Root.Engine()
	privs := cmem.ViewSet(p.PrivateKeys)
	pubs := cmem.ViewSet(p.PublicKeys)
	pubXs := cmem.ViewSet(p.PublicSecrets)
	var out cmem.Mems
	st := eng.PVEQuorumDecrypt(root, privs, pubs, cmem.View(p.Bundle), pubXs, cmem.View(p.Label), &out)
	runtime.KeepAlive(privs)
	runtime.KeepAlive(pubs)
	runtime.KeepAlive(pubXs)
	runtime.KeepAlive(p.Bundle)
	runtime.KeepAlive(p.Root)
	if err := cbmpc.StatusError("pve_quorum_decrypt", st); err != nil {
		cmem.ReleaseSet(eng.Allocator(), out)
		return nil, err
	}
	return &DecryptResult{Secrets: cmem.TakeSet(eng.Allocator(), out)}, nil
}

func aligned(root *ac.Node, what string, keys [][]byte) error {
	if n := len(root.Leaves()); len(keys) != n {
		return fmt.Errorf("%d %s keys for %d leaves", len(keys), what, n)
	}
	return nil
}

// NewEncKeyPairs generates n leaf encryption key pairs.
func NewEncKeyPairs(lib *cbmpc.Library, n int) (priv, pub [][]byte, err error) {
	return keyPairs(lib, n, "pve_new_enc_key_pairs", backend.Engine.NewEncKeyPairs)
}

// NewECKeyPairs generates n secrets x with their public points x*G, the
// inputs of QuorumEncrypt and QuorumDecrypt.
func NewECKeyPairs(lib *cbmpc.Library, n int) (xs, points [][]byte, err error) {
	return keyPairs(lib, n, "pve_new_ec_key_pairs", backend.Engine.NewECKeyPairs)
}

func keyPairs(lib *cbmpc.Library, n int, op string, gen func(backend.Engine, int32, *cmem.Mems, *cmem.Mems) backend.Status) ([][]byte, [][]byte, error) {
	if n < 0 || n > math.MaxInt32 {
		return nil, nil, fmt.Errorf("invalid key pair count %d", n)
	}
	if lib == nil {
		return nil, nil, cbmpc.ErrLibraryClosed
	}
	eng, err := lib.Engine()
	if err != nil {
		return nil, nil, err
	}
	var priv, pub cmem.Mems
	if err := lib.CheckStatus(context.Background(), op, gen(eng, int32(n), &priv, &pub)); err != nil {
		return nil, nil, err
	}
	return cmem.TakeSet(eng.Allocator(), priv), cmem.TakeSet(eng.Allocator(), pub), nil
}
