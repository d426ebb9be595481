package ecdsamp_test

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/ecdsamp"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/mocknet"
)

const parties = 3

func openLib(t *testing.T) *cbmpc.Library {
	t.Helper()
	lib, err := cbmpc.Open(cbmpc.Config{Engine: cbmpc.EngineSoft, PaillierBits: 1024})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func run(t *testing.T, lib *cbmpc.Library, fn func(ctx context.Context, self cbmpc.RoleID, job *cbmpc.JobMP) error) error {
	t.Helper()
	return mocknet.Run(context.Background(), parties, func(ctx context.Context, self cbmpc.RoleID, tr cbmpc.Transport) error {
		job, err := cbmpc.NewJobMPWithContext(ctx, lib, tr, parties, self)
		if err != nil {
			return err
		}
		defer job.Close()
		return fn(ctx, self, job)
	})
}

func dkg(t *testing.T, lib *cbmpc.Library) []*ecdsamp.Key {
	t.Helper()
	keys := make([]*ecdsamp.Key, parties)
	err := run(t, lib, func(ctx context.Context, self cbmpc.RoleID, job *cbmpc.JobMP) error {
		res, err := ecdsamp.DKG(ctx, job, &ecdsamp.DKGParams{Curve: cbmpc.CurveSecp256k1})
		if err != nil {
			return err
		}
		keys[self] = res.Key
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, k := range keys {
			_ = k.Close()
		}
	})
	return keys
}

func publicKey(t *testing.T, k *ecdsamp.Key) *btcec.PublicKey {
	t.Helper()
	x, y, err := k.PublicKey()
	require.NoError(t, err)
	require.Len(t, x, 32)
	require.Len(t, y, 32)
	raw := append([]byte{0x04}, x...)
	pk, err := btcec.ParsePubKey(append(raw, y...))
	require.NoError(t, err)
	return pk
}

func TestDKGAgreesOnPublicKey(t *testing.T) {
	lib := openLib(t)
	keys := dkg(t, lib)

	want := publicKey(t, keys[0])
	for _, k := range keys[1:] {
		require.True(t, want.IsEqual(publicKey(t, k)))
	}

	for _, k := range keys {
		x, q, err := k.ShareScalars()
		require.NoError(t, err)
		require.Len(t, x, 32)
		priv, _ := btcec.PrivKeyFromBytes(x)
		require.Equal(t, priv.PubKey().SerializeCompressed(), q)
		cbmpc.ZeroizeBytes(x)

		curve, err := k.Curve()
		require.NoError(t, err)
		require.Equal(t, cbmpc.CurveSecp256k1, curve)
	}
}

func TestSignOnlyReceiverGetsSignature(t *testing.T) {
	lib := openLib(t)
	keys := dkg(t, lib)
	digest := sha256.Sum256([]byte("multi-party"))
	const receiver = cbmpc.RoleID(2)

	sigs := make([][]byte, parties)
	err := run(t, lib, func(ctx context.Context, self cbmpc.RoleID, job *cbmpc.JobMP) error {
		res, err := ecdsamp.Sign(ctx, job, &ecdsamp.SignParams{
			Key:         keys[self],
			Message:     digest[:],
			SigReceiver: receiver,
		})
		if err != nil {
			return err
		}
		sigs[self] = res.Signature
		return nil
	})
	require.NoError(t, err)

	require.Empty(t, sigs[0])
	require.Empty(t, sigs[1])
	sig, err := ecdsa.ParseDERSignature(sigs[receiver])
	require.NoError(t, err)
	require.True(t, sig.Verify(digest[:], publicKey(t, keys[0])))
}

func TestRefreshKeepsPublicKey(t *testing.T) {
	lib := openLib(t)
	keys := dkg(t, lib)

	fresh := make([]*ecdsamp.Key, parties)
	err := run(t, lib, func(ctx context.Context, self cbmpc.RoleID, job *cbmpc.JobMP) error {
		res, err := ecdsamp.Refresh(ctx, job, &ecdsamp.RefreshParams{Key: keys[self]})
		if err != nil {
			return err
		}
		fresh[self] = res.NewKey
		return nil
	})
	require.NoError(t, err)
	defer func() {
		for _, k := range fresh {
			_ = k.Close()
		}
	}()

	require.True(t, publicKey(t, keys[0]).IsEqual(publicKey(t, fresh[0])))
	oldX, _, err := keys[0].ShareScalars()
	require.NoError(t, err)
	newX, _, err := fresh[0].ShareScalars()
	require.NoError(t, err)
	require.NotEqual(t, oldX, newX)

	digest := sha256.Sum256([]byte("after refresh"))
	sigs := make([][]byte, parties)
	err = run(t, lib, func(ctx context.Context, self cbmpc.RoleID, job *cbmpc.JobMP) error {
		res, err := ecdsamp.Sign(ctx, job, &ecdsamp.SignParams{Key: fresh[self], Message: digest[:]})
		if err != nil {
			return err
		}
		sigs[self] = res.Signature
		return nil
	})
	require.NoError(t, err)
	sig, err := ecdsa.ParseDERSignature(sigs[0])
	require.NoError(t, err)
	require.True(t, sig.Verify(digest[:], publicKey(t, fresh[0])))
}

func TestSignRejectsBadInput(t *testing.T) {
	lib := openLib(t)
	keys := dkg(t, lib)
	ctx := context.Background()

	job, err := cbmpc.NewJobMP(lib, mocknet.New().EpMP(0, []cbmpc.RoleID{0, 1, 2}), parties, 0)
	require.NoError(t, err)
	defer job.Close()

	_, err = ecdsamp.Sign(ctx, job, &ecdsamp.SignParams{Key: keys[0]})
	require.ErrorContains(t, err, "empty message hash")

	_, err = ecdsamp.Sign(ctx, job, &ecdsamp.SignParams{Key: keys[0], Message: make([]byte, 33)})
	require.ErrorContains(t, err, "exceeds curve order size")

	_, err = ecdsamp.Sign(ctx, job, &ecdsamp.SignParams{Key: keys[0], Message: make([]byte, 32), SigReceiver: parties})
	require.ErrorIs(t, err, cbmpc.ErrBadPeers)

	_, err = ecdsamp.Sign(ctx, job, nil)
	require.Error(t, err)
	_, err = ecdsamp.DKG(ctx, nil, &ecdsamp.DKGParams{})
	require.Error(t, err)

	closed := dkg(t, lib)[0]
	require.NoError(t, closed.Close())
	require.NoError(t, closed.Close())
	_, _, err = closed.PublicKey()
	require.Error(t, err)
	_, err = ecdsamp.Refresh(ctx, job, &ecdsamp.RefreshParams{Key: closed})
	require.Error(t, err)
}

func TestDKGUnsupportedCurve(t *testing.T) {
	lib := openLib(t)
	err := run(t, lib, func(ctx context.Context, _ cbmpc.RoleID, job *cbmpc.JobMP) error {
		_, err := ecdsamp.DKG(ctx, job, &ecdsamp.DKGParams{Curve: cbmpc.CurveP256})
		return err
	})
	require.True(t, cbmpc.HasCode(err, cbmpc.CodeUnsupported))
}
