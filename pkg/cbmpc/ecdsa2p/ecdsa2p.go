package ecdsa2p

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

// Key is one party's share of a two-party ECDSA key.
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
	k.eng.ECDSA2PKeyFree(k.ckey)
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

// PublicKey returns the joint public key Q, compressed.
func (k *Key) PublicKey() ([]byte, error) {
	ref, err := k.ref()
	if err != nil {
		return nil, err
	}
	var out cmem.Mem
	st := k.eng.ECDSA2PPublicKey(ref, &out)
	runtime.KeepAlive(k)
	if err := cbmpc.StatusError("mpc_ecdsa2p_public_key", st); err != nil {
		cmem.Release(k.eng.Allocator(), out)
		return nil, err
	}
	return cmem.Take(k.eng.Allocator(), out), nil
}

// Curve returns the curve the key was generated on.
func (k *Key) Curve() (cbmpc.Curve, error) {
	if _, err := k.ref(); err != nil {
		return cbmpc.Curve{}, err
	}
	return k.curve, nil
}

// DKGParams contains parameters for two-party ECDSA key generation.
type DKGParams struct {
	Curve cbmpc.Curve
}

// DKGResult contains the output of two-party ECDSA key generation.
type DKGResult struct {
	Key *Key
}

// DKG runs two-party ECDSA distributed key generation (mpc_ecdsa2p_dkg).
// The returned key must be freed with Close.
//
// Context behavior: ctx only tags log lines; use cbmpc.NewJob2PWithContext to
// control cancellation.
func DKG(ctx context.Context, j *cbmpc.Job2P, params *DKGParams) (*DKGResult, error) {
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
	st := eng.ECDSA2PDKG(ptr, int32(params.Curve.NID()), &ckey)
	runtime.KeepAlive(j)
	if err := j.CheckStatus(ctx, "mpc_ecdsa2p_dkg", st); err != nil {
		return nil, err
	}
	return &DKGResult{Key: newKey(eng, ckey, params.Curve)}, nil
}

// RefreshParams contains parameters for two-party ECDSA key refresh.
type RefreshParams struct {
	Key *Key
}

// RefreshResult contains the output of two-party ECDSA key refresh.
type RefreshResult struct {
	NewKey *Key
}

// Refresh re-randomizes both shares of a key (mpc_ecdsa2p_refresh). The public
// key is unchanged. The input key stays valid and must still be closed.
func Refresh(ctx context.Context, j *cbmpc.Job2P, params *RefreshParams) (*RefreshResult, error) {
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
	st := eng.ECDSA2PRefresh(ptr, ref, &ckey)
	runtime.KeepAlive(j)
	runtime.KeepAlive(params.Key)
	if err := j.CheckStatus(ctx, "mpc_ecdsa2p_refresh", st); err != nil {
		return nil, err
	}
	return &RefreshResult{NewKey: newKey(eng, ckey, params.Key.curve)}, nil
}

// SignParams contains parameters for two-party ECDSA batch signing.
type SignParams struct {
	SessionID cbmpc.SessionID // agreed by both parties; may be empty
	Key       *Key
	Messages  [][]byte // digests, at most the curve order size each
}

// SignResult contains one DER signature per message, in order.
type SignResult struct {
	Signatures [][]byte
}

// Sign signs every message with the key (mpc_ecdsa2p_sign).
func Sign(ctx context.Context, j *cbmpc.Job2P, params *SignParams) (*SignResult, error) {
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
	if len(params.Messages) == 0 {
		return nil, errors.New("no messages to sign")
	}
	maxSize := params.Key.curve.MaxHashSize()
	for i, m := range params.Messages {
		if len(m) == 0 {
			return nil, fmt.Errorf("message %d: empty message hash", i)
		}
		if maxSize > 0 && len(m) > maxSize {
			return nil, fmt.Errorf("message %d: hash exceeds curve order size", i)
		}
	}
	ptr, err := j.Ptr()
	if err != nil {
		return nil, err
	}

	eng := j.Engine()
	sid := params.SessionID.Clone()
	var sigs cmem.Mems
	st := eng.ECDSA2PSign(ptr, cmem.View(sid), ref, cmem.ViewSet(params.Messages), &sigs)
	runtime.KeepAlive(j)
	runtime.KeepAlive(params.Key)
	runtime.KeepAlive(sid)
	if err := j.CheckStatus(ctx, "mpc_ecdsa2p_sign", st); err != nil {
		cmem.ReleaseSet(eng.Allocator(), sigs)
		return nil, err
	}
	return &SignResult{Signatures: cmem.TakeSet(eng.Allocator(), sigs)}, nil
}
