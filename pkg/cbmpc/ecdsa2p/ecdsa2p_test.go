package ecdsa2p_test

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/ecdsa2p"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/mocknet"
)

func openLib(t *testing.T) *cbmpc.Library {
	t.Helper()
	lib, err := cbmpc.Open(cbmpc.Config{Engine: cbmpc.EngineSoft, PaillierBits: 1024})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

// parties runs fn for both roles over a fresh two-party network.
func parties(t *testing.T, lib *cbmpc.Library, fn func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error) {
	t.Helper()
	err := mocknet.Run2P(context.Background(), func(ctx context.Context, role cbmpc.Role, tr cbmpc.Transport) error {
		job, err := cbmpc.NewJob2PWithContext(ctx, lib, tr, role)
		if err != nil {
			return err
		}
		defer job.Close()
		return fn(ctx, role, job)
	})
	require.NoError(t, err)
}

func verify(t *testing.T, pub []byte, digest, der []byte) {
	t.Helper()
	pk, err := btcec.ParsePubKey(pub)
	require.NoError(t, err)
	sig, err := ecdsa.ParseDERSignature(der)
	require.NoError(t, err)
	require.True(t, sig.Verify(digest, pk))
}

func TestDKGSignRefresh(t *testing.T) {
	lib := openLib(t)
	var mu sync.Mutex
	keys := map[cbmpc.Role]*ecdsa2p.Key{}

	parties(t, lib, func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error {
		res, err := ecdsa2p.DKG(ctx, job, &ecdsa2p.DKGParams{Curve: cbmpc.CurveSecp256k1})
		if err != nil {
			return err
		}
		mu.Lock()
		keys[role] = res.Key
		mu.Unlock()
		return nil
	})
	defer keys[cbmpc.RoleP1].Close()
	defer keys[cbmpc.RoleP2].Close()

	pub1, err := keys[cbmpc.RoleP1].PublicKey()
	require.NoError(t, err)
	pub2, err := keys[cbmpc.RoleP2].PublicKey()
	require.NoError(t, err)
	require.Equal(t, pub1, pub2)
	require.Len(t, pub1, 33)
	curve, err := keys[cbmpc.RoleP1].Curve()
	require.NoError(t, err)
	require.Equal(t, cbmpc.CurveSecp256k1, curve)

	d1 := sha256.Sum256([]byte("first"))
	d2 := sha256.Sum256([]byte("second"))
	sigs := map[cbmpc.Role][][]byte{}
	parties(t, lib, func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error {
		res, err := ecdsa2p.Sign(ctx, job, &ecdsa2p.SignParams{
			SessionID: cbmpc.SessionID("batch-1"),
			Key:       keys[role],
			Messages:  [][]byte{d1[:], d2[:]},
		})
		if err != nil {
			return err
		}
		mu.Lock()
		sigs[role] = res.Signatures
		mu.Unlock()
		return nil
	})
	require.Len(t, sigs[cbmpc.RoleP1], 2)
	require.Equal(t, sigs[cbmpc.RoleP1], sigs[cbmpc.RoleP2])
	verify(t, pub1, d1[:], sigs[cbmpc.RoleP1][0])
	verify(t, pub1, d2[:], sigs[cbmpc.RoleP1][1])

	fresh := map[cbmpc.Role]*ecdsa2p.Key{}
	parties(t, lib, func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error {
		res, err := ecdsa2p.Refresh(ctx, job, &ecdsa2p.RefreshParams{Key: keys[role]})
		if err != nil {
			return err
		}
		mu.Lock()
		fresh[role] = res.NewKey
		mu.Unlock()
		return nil
	})
	defer fresh[cbmpc.RoleP1].Close()
	defer fresh[cbmpc.RoleP2].Close()
	pub, err := fresh[cbmpc.RoleP2].PublicKey()
	require.NoError(t, err)
	require.Equal(t, pub1, pub)

	parties(t, lib, func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error {
		res, err := ecdsa2p.Sign(ctx, job, &ecdsa2p.SignParams{Key: fresh[role], Messages: [][]byte{d1[:]}})
		if err != nil {
			return err
		}
		verify(t, pub1, d1[:], res.Signatures[0])
		return nil
	})
}

func TestSignSessionMismatch(t *testing.T) {
	lib := openLib(t)
	var mu sync.Mutex
	keys := map[cbmpc.Role]*ecdsa2p.Key{}
	parties(t, lib, func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error {
		res, err := ecdsa2p.DKG(ctx, job, &ecdsa2p.DKGParams{Curve: cbmpc.CurveSecp256k1})
		if err != nil {
			return err
		}
		mu.Lock()
		keys[role] = res.Key
		mu.Unlock()
		return nil
	})

	digest := sha256.Sum256([]byte("m"))
	err := mocknet.Run2P(context.Background(), func(ctx context.Context, role cbmpc.Role, tr cbmpc.Transport) error {
		job, err := cbmpc.NewJob2PWithContext(ctx, lib, tr, role)
		if err != nil {
			return err
		}
		defer job.Close()
		_, err = ecdsa2p.Sign(ctx, job, &ecdsa2p.SignParams{
			SessionID: cbmpc.SessionID{byte(role)},
			Key:       keys[role],
			Messages:  [][]byte{digest[:]},
		})
		return err
	})
	require.True(t, cbmpc.HasCode(err, cbmpc.CodeVerify), "got %v", err)

	for _, k := range keys {
		require.NoError(t, k.Close())
		require.NoError(t, k.Close())
		_, err := k.PublicKey()
		require.Error(t, err)
	}
}

func TestInputValidation(t *testing.T) {
	lib := openLib(t)
	job, err := cbmpc.NewJob2P(lib, mocknet.New().Ep2P(0, 1), cbmpc.RoleP1)
	require.NoError(t, err)
	defer job.Close()
	ctx := context.Background()

	_, err = ecdsa2p.DKG(ctx, nil, &ecdsa2p.DKGParams{})
	require.Error(t, err)
	_, err = ecdsa2p.DKG(ctx, job, nil)
	require.Error(t, err)
	_, err = ecdsa2p.Sign(ctx, job, &ecdsa2p.SignParams{Messages: [][]byte{{1}}})
	require.Error(t, err)
	_, err = ecdsa2p.Refresh(ctx, job, &ecdsa2p.RefreshParams{})
	require.Error(t, err)
}

func TestDKGUnsupportedCurve(t *testing.T) {
	lib := openLib(t)
	job, err := cbmpc.NewJob2P(lib, mocknet.New().Ep2P(0, 1), cbmpc.RoleP1)
	require.NoError(t, err)
	defer job.Close()

	_, err = ecdsa2p.DKG(context.Background(), job, &ecdsa2p.DKGParams{Curve: cbmpc.CurveP384})
	require.True(t, cbmpc.HasCode(err, cbmpc.CodeUnsupported), "got %v", err)
}
