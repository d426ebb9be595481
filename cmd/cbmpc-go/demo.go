package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	ac "github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/accessstructure"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/agreerandom"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/ecdsa2p"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/ecdsamp"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/logging"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/mocknet"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/pve"
)

func runDemo(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	var c common
	c.register(fs)
	parties := fs.Int("parties", 3, "number of parties in the N-party steps")
	message := fs.String("message", "Hello, MPC World!", "message to sign")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *parties < 2 {
		return fmt.Errorf("need at least two parties, got %d", *parties)
	}

	lib, log, err := c.open()
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	log.Info(ctx, "library opened", "engine", lib.EngineName(), "version", cbmpc.WrapperVersion())
	digest := sha3.Sum256([]byte(*message))

	steps := []struct {
		name string
		run  func() error
	}{
		{"agree random 2p", func() error { return demoAgreeRandom(ctx, lib, log) }},
		{"ecdsa 2p", func() error { return demoECDSA2P(ctx, lib, log, digest[:]) }},
		{"ecdsa mp", func() error { return demoECDSAMP(ctx, lib, log, *parties, digest[:]) }},
		{"quorum pve", func() error { return demoPVE(ctx, lib, log) }},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		log.Info(ctx, "step done", "step", s.name)
	}
	return nil
}

// run2P runs fn for both roles of a fresh two-party job.
func run2P(ctx context.Context, lib *cbmpc.Library, fn func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error) error {
	return mocknet.Run2P(ctx, func(ctx context.Context, role cbmpc.Role, t cbmpc.Transport) error {
		job, err := cbmpc.NewJob2PWithContext(ctx, lib, t, role)
		if err != nil {
			return err
		}
		defer job.Close()
		return fn(ctx, role, job)
	})
}

func runMP(ctx context.Context, lib *cbmpc.Library, n int, fn func(ctx context.Context, self cbmpc.RoleID, job *cbmpc.JobMP) error) error {
	return mocknet.Run(ctx, n, func(ctx context.Context, self cbmpc.RoleID, t cbmpc.Transport) error {
		job, err := cbmpc.NewJobMPWithContext(ctx, lib, t, n, self)
		if err != nil {
			return err
		}
		defer job.Close()
		return fn(ctx, self, job)
	})
}

func demoAgreeRandom(ctx context.Context, lib *cbmpc.Library, log logging.Logger) error {
	var mu sync.Mutex
	out := map[cbmpc.Role][]byte{}
	err := run2P(ctx, lib, func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error {
		r, err := agreerandom.AgreeRandom(ctx, job, 128)
		mu.Lock()
		out[role] = r
		mu.Unlock()
		return err
	})
	if err != nil {
		return err
	}
	if !bytes.Equal(out[cbmpc.RoleP1], out[cbmpc.RoleP2]) {
		return errors.New("parties disagree")
	}
	log.Info(ctx, "agreed on random value", "value", hex.EncodeToString(out[cbmpc.RoleP1]))
	return nil
}

func demoECDSA2P(ctx context.Context, lib *cbmpc.Library, log logging.Logger, digest []byte) error {
	var mu sync.Mutex
	keys := map[cbmpc.Role]*ecdsa2p.Key{}
	defer func() {
		for _, k := range keys {
			_ = k.Close()
		}
	}()
	err := run2P(ctx, lib, func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error {
		res, err := ecdsa2p.DKG(ctx, job, &ecdsa2p.DKGParams{Curve: cbmpc.CurveSecp256k1})
		if err != nil {
			return err
		}
		mu.Lock()
		keys[role] = res.Key
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}
	pub, err := keys[cbmpc.RoleP1].PublicKey()
	if err != nil {
		return err
	}
	log.Info(ctx, "2p key generated", "public_key", hex.EncodeToString(pub))

	sid := cbmpc.SessionID("cbmpc-go demo")
	var sig []byte
	err = run2P(ctx, lib, func(ctx context.Context, role cbmpc.Role, job *cbmpc.Job2P) error {
		res, err := ecdsa2p.Sign(ctx, job, &ecdsa2p.SignParams{
			SessionID: sid,
			Key:       keys[role],
			Messages:  [][]byte{digest},
		})
		if err != nil {
			return err
		}
		if role == cbmpc.RoleP1 {
			sig = res.Signatures[0]
		}
		return nil
	})
	if err != nil {
		return err
	}
	pk, err := btcec.ParsePubKey(pub)
	if err != nil {
		return err
	}
	return verify(ctx, log, pk, digest, sig)
}

func demoECDSAMP(ctx context.Context, lib *cbmpc.Library, log logging.Logger, n int, digest []byte) error {
	keys := make([]*ecdsamp.Key, n)
	defer func() {
		for _, k := range keys {
			_ = k.Close()
		}
	}()
	err := runMP(ctx, lib, n, func(ctx context.Context, self cbmpc.RoleID, job *cbmpc.JobMP) error {
		res, err := ecdsamp.DKG(ctx, job, &ecdsamp.DKGParams{Curve: cbmpc.CurveSecp256k1})
		if err != nil {
			return err
		}
		keys[self] = res.Key
		return nil
	})
	if err != nil {
		return err
	}
	x, y, err := keys[0].PublicKey()
	if err != nil {
		return err
	}
	pk, err := btcec.ParsePubKey(append(append([]byte{0x04}, x...), y...))
	if err != nil {
		return err
	}
	log.Info(ctx, "mp key generated", "parties", n, "public_key", hex.EncodeToString(pk.SerializeCompressed()))

	receiver := cbmpc.RoleID(n - 1)
	var sig []byte
	err = runMP(ctx, lib, n, func(ctx context.Context, self cbmpc.RoleID, job *cbmpc.JobMP) error {
		res, err := ecdsamp.Sign(ctx, job, &ecdsamp.SignParams{Key: keys[self], Message: digest, SigReceiver: receiver})
		if err != nil {
			return err
		}
		if self == receiver {
			sig = res.Signature
		}
		return nil
	})
	if err != nil {
		return err
	}
	return verify(ctx, log, pk, digest, sig)
}

func verify(ctx context.Context, log logging.Logger, pk *btcec.PublicKey, digest, der []byte) error {
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return err
	}
	if !sig.Verify(digest, pk) {
		return errors.New("signature does not verify")
	}
	log.Info(ctx, "signature verified", "signature", hex.EncodeToString(der))
	return nil
}

func demoPVE(ctx context.Context, lib *cbmpc.Library, log logging.Logger) error {
	root, err := ac.Build(lib, ac.Threshold(2, ac.Leaf("alice"), ac.Leaf("bob"), ac.Leaf("charlie")))
	if err != nil {
		return err
	}
	defer root.Close()

	privs, pubs, err := pve.NewEncKeyPairs(lib, len(root.Leaves()))
	if err != nil {
		return err
	}
	defer cbmpc.ZeroizeAll(privs)
	xs, points, err := pve.NewECKeyPairs(lib, 2)
	if err != nil {
		return err
	}
	defer cbmpc.ZeroizeAll(xs)

	label := []byte("cbmpc-go backup")
	enc, err := pve.QuorumEncrypt(ctx, &pve.EncryptParams{Root: root, PublicKeys: pubs, Secrets: xs, Label: label})
	if err != nil {
		return err
	}
	log.Info(ctx, "secrets encrypted", "policy", root.String(), "bundle_bytes", len(enc.Bundle))

	// alice and charlie form a quorum; bob is absent.
	dec, err := pve.QuorumDecrypt(ctx, &pve.DecryptParams{
		Root:          root,
		PrivateKeys:   [][]byte{privs[0], nil, privs[2]},
		PublicKeys:    pubs,
		Bundle:        enc.Bundle,
		PublicSecrets: points,
		Label:         label,
	})
	if err != nil {
		return err
	}
	defer cbmpc.ZeroizeAll(dec.Secrets)
	for i := range xs {
		if !bytes.Equal(dec.Secrets[i], xs[i]) {
			return fmt.Errorf("secret %d not recovered", i)
		}
	}
	log.Info(ctx, "secrets recovered", "quorum", "alice,charlie", logging.Redacted("secrets"))

	_, err = pve.QuorumDecrypt(ctx, &pve.DecryptParams{
		Root:          root,
		PrivateKeys:   [][]byte{nil, privs[1], nil},
		PublicKeys:    pubs,
		Bundle:        enc.Bundle,
		PublicSecrets: points,
		Label:         label,
	})
	if !cbmpc.HasCode(err, cbmpc.CodeInsufficient) {
		return fmt.Errorf("single leaf decrypt: expected insufficient quorum, got %v", err)
	}
	log.Info(ctx, "single leaf rejected", "error", err)
	return nil
}
