package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/agreerandom"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/ecdsamp"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/netconn"
)

// runParty runs one member of an N-party DKG and signing over TCP. Every
// party must be started with the same -addrs list.
func runParty(args []string) error {
	fs := flag.NewFlagSet("party", flag.ContinueOnError)
	var c common
	c.register(fs)
	self := fs.Int("self", -1, "index of this party in -addrs")
	addrList := fs.String("addrs", "", "comma-separated listen addresses of all parties, in index order")
	message := fs.String("message", "Hello, MPC World!", "message to sign")
	receiver := fs.Int("receiver", 0, "index of the party that receives the signature")
	timeout := fs.Duration("timeout", 90*time.Second, "overall protocol timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addrs := strings.Split(*addrList, ",")
	if *addrList == "" || len(addrs) < 2 {
		return errors.New("-addrs needs at least two addresses")
	}
	if *self < 0 || *self >= len(addrs) {
		return fmt.Errorf("-self %d out of range [0,%d)", *self, len(addrs))
	}
	if *receiver < 0 || *receiver >= len(addrs) {
		return fmt.Errorf("-receiver %d out of range [0,%d)", *receiver, len(addrs))
	}

	lib, log, err := c.open()
	if err != nil {
		return err
	}
	defer lib.Close()
	log = log.With("party", *self)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ln, err := net.Listen("tcp", addrs[*self])
	if err != nil {
		return err
	}
	id := cbmpc.RoleID(*self)
	t, err := netconn.Establish(ctx, id, ln, addrs, netconn.OptionsFrom(lib.Config().Transport))
	if err != nil {
		return err
	}
	defer t.Close()
	log.Info(ctx, "transport established", "parties", len(addrs))

	job, err := cbmpc.NewJobMPWithContext(ctx, lib, t, len(addrs), id)
	if err != nil {
		return err
	}
	defer job.Close()

	// A shared random value doubles as a liveness check of the mesh.
	nonce, err := agreerandom.MultiAgreeRandom(ctx, job, 128)
	if err != nil {
		return err
	}
	log.Info(ctx, "agreed on session nonce", "nonce", hex.EncodeToString(nonce))

	dkg, err := ecdsamp.DKG(ctx, job, &ecdsamp.DKGParams{Curve: cbmpc.CurveSecp256k1})
	if err != nil {
		return err
	}
	defer dkg.Key.Close()
	x, y, err := dkg.Key.PublicKey()
	if err != nil {
		return err
	}
	log.Info(ctx, "key generated", "x", hex.EncodeToString(x), "y", hex.EncodeToString(y))

	digest := sha3.Sum256([]byte(*message))
	res, err := ecdsamp.Sign(ctx, job, &ecdsamp.SignParams{
		Key:         dkg.Key,
		Message:     digest[:],
		SigReceiver: cbmpc.RoleID(*receiver),
	})
	if err != nil {
		return err
	}
	if *self == *receiver {
		log.Info(ctx, "signature received", "digest", hex.EncodeToString(digest[:]), "signature", hex.EncodeToString(res.Signature))
	} else {
		log.Info(ctx, "signing done", "receiver", *receiver)
	}
	return nil
}
