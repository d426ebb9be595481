package ecdsamp

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
)

var errClosedKey = errors.New("nil or closed key")

// Key is one party's share of an N-party ECDSA key.
//
// Keys must be freed with Close. A finalizer is set as a safety net only.
type Key struct {
	mu    sync.Mutex
	eng   backend.Engine
	ckey  unsafe.Pointer
	curve cbmpc.Curve
}

func newKey(eng backend.Engine, ckey unsafe.Pointer, curve cbmpc.Curve) *Key {
	k := &Key{eng: eng, ckey: ckey, curve: curve}
	runtime.SetFinalizer(k, func(key *Key) {
		_ = key.Close()
	})
	return k
}

// Close frees the native key. It is safe to call more than once.
func (k *Key) Close() error {
	if k == nil {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ckey == nil {
		return nil
	}
	k.eng.ECDSAMPKeyFree(k.ckey)
	k.ckey = nil
	runtime.SetFinalizer(k, nil)
	return nil
}

func (k *Key) ref() (unsafe.Pointer, error) {
	if k == nil {
		return nil, errClosedKey
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ckey == nil {
		return nil, errClosedKey
	}
	return k.ckey, nil
}

// take reads two engine outputs, releasing both when the call failed.
func (k *Key) take(op string, call func(a, b *cmem.Mem) backend.Status) ([]byte, []byte, error) {
	var a, b cmem.Mem
	st := call(&a, &b)
	runtime.KeepAlive(k)
	alloc := k.eng.Allocator()
	if err := cbmpc.StatusError(op, st); err != nil {
		cmem.Release(alloc, a)
		cmem.Release(alloc, b)
		return nil, nil, err
	}
	return cmem.Take(alloc, a), cmem.Take(alloc, b), nil
}

// PublicKey returns the affine coordinates of the joint public key.
func (k *Key) PublicKey() (x, y []byte, err error) {
	ref, err := k.ref()
	if err != nil {
		return nil, nil, err
	}
	return k.take("ecdsa_mpc_public_key_to_string", func(a, b *cmem.Mem) backend.Status {
		return k.eng.ECDSAMPPublicKey(ref, a, b)
	})
}

// ShareScalars returns this party's secret share x_i and its public share
// Q_i = x_i*G, compressed. The caller must zeroize x.
func (k *Key) ShareScalars() (x, q []byte, err error) {
	ref, err := k.ref()
	if err != nil {
		return nil, nil, err
	}
	return k.take("convert_ecdsa_share_to_bn_t_share", func(a, b *cmem.Mem) backend.Status {
		return k.eng.ECDSAMPShareScalars(ref, a, b)
	})
}

// Curve returns the curve the key was generated on.
func (k *Key) Curve() (cbmpc.Curve, error) {
	if _, err := k.ref(); err != nil {
		return cbmpc.Curve{}, err
	}
	return k.curve, nil
}

// DKGParams contains parameters for N-party ECDSA key generation.
type DKGParams struct {
	Curve cbmpc.Curve
}

// DKGResult contains the output of N-party ECDSA key generation.
type DKGResult struct {
	Key *Key
}

// DKG runs N-party ECDSA distributed key generation (mpc_ecdsampc_dkg).
// The returned key must be freed with Close.
//
// Context behavior: ctx only tags log lines; use cbmpc.NewJobMPWithContext to
// control cancellation.
func DKG(ctx context.Context, j *cbmpc.JobMP, params *DKGParams) (*DKGResult, error) {
	if j == nil {
		return nil, errors.New("nil job")
	}
	if params == nil {
		return nil, errors.New("nil params")
	}
	ptr, err := j.Ptr()
	if err != nil {
		return nil, err
	}

	eng := j.Engine()
	var ckey unsafe.Pointer
	st := eng.ECDSAMPDKG(ptr, int32(params.Curve.NID()), &ckey)
	runtime.KeepAlive(j)
	if err := j.CheckStatus(ctx, "mpc_ecdsampc_dkg", st); err != nil {
		return nil, err
	}
	return &DKGResult{Key: newKey(eng, ckey, params.Curve)}, nil
}

// RefreshParams contains parameters for N-party ECDSA key refresh.
type RefreshParams struct {
	Key *Key
}

// RefreshResult contains the output of N-party ECDSA key refresh.
type RefreshResult struct {
	NewKey *Key
}

// Refresh re-randomizes every party's share (mpc_ecdsampc_refresh). The public
// key is unchanged. The input key stays valid and must still be closed.
func Refresh(ctx context.Context, j *cbmpc.JobMP, params *RefreshParams) (*RefreshResult, error) {
	if j == nil {
		return nil, errors.New("nil job")
	}
	if params == nil {
		return nil, errors.New("nil params")
	}
	ref, err := params.Key.ref()
	if err != nil {
		return nil, err
	}
	ptr, err := j.Ptr()
	if err != nil {
		return nil, err
	}

	eng := j.Engine()
	var ckey unsafe.Pointer
	st := eng.ECDSAMPRefresh(ptr, ref, &ckey)
	runtime.KeepAlive(j)
	runtime.KeepAlive(params.Key)
	if err := j.CheckStatus(ctx, "mpc_ecdsampc_refresh", st); err != nil {
		return nil, err
	}
	return &RefreshResult{NewKey: newKey(eng, ckey, params.Key.curve)}, nil
}

// SignParams contains parameters for N-party ECDSA signing.
type SignParams struct {
	Key         *Key
	Message     []byte // digest, at most the curve order size
	SigReceiver cbmpc.RoleID
}

// SignResult carries the DER signature. It is empty on every party except
// the signature receiver.
type SignResult struct {
	Signature []byte
}

// Sign signs Message with all parties (mpc_ecdsampc_sign).
func Sign(ctx context.Context, j *cbmpc.JobMP, params *SignParams) (*SignResult, error) {
	if j == nil {
		return nil, errors.New("nil job")
	}
	if params == nil {
		return nil, errors.New("nil params")
	}
	ref, err := params.Key.ref()
	if err != nil {
		return nil, err
	}
	if len(params.Message) == 0 {
		return nil, errors.New("empty message hash")
	}
	if maxSize := params.Key.curve.MaxHashSize(); maxSize > 0 && len(params.Message) > maxSize {
		return nil, errors.New("message hash exceeds curve order size")
	}
	if int(params.SigReceiver) >= j.PartyCount() {
		return nil, fmt.Errorf("%w: signature receiver %d out of range", cbmpc.ErrBadPeers, params.SigReceiver)
	}
	ptr, err := j.Ptr()
	if err != nil {
		return nil, err
	}

	eng := j.Engine()
	var sig cmem.Mem
	st := eng.ECDSAMPSign(ptr, ref, cmem.View(params.Message), int32(params.SigReceiver), &sig)
	runtime.KeepAlive(j)
	runtime.KeepAlive(params.Key)
	runtime.KeepAlive(params.Message)
	if err := j.CheckStatus(ctx, "mpc_ecdsampc_sign", st); err != nil {
		cmem.Release(eng.Allocator(), sig)
		return nil, err
	}
	return &SignResult{Signature: cmem.Take(eng.Allocator(), sig)}, nil
}
