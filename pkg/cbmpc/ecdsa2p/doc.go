// Package ecdsa2p provides two-party ECDSA: distributed key generation, key
// refresh and batch signing.
//
//	res, err := ecdsa2p.DKG(ctx, job, &ecdsa2p.DKGParams{Curve: cbmpc.CurveSecp256k1})
//	if err != nil {
//	    return err
//	}
//	defer res.Key.Close()
//
//	sigs, err := ecdsa2p.Sign(ctx, job, &ecdsa2p.SignParams{
//	    SessionID: sid,
//	    Key:       res.Key,
//	    Messages:  [][]byte{digest},
//	})
//
// Both parties must call each operation with matching arguments. Messages are
// digests, at most the curve order size. Signatures are DER encoded and both
// parties receive all of them.
package ecdsa2p
