// Package ecdsamp provides N-party ECDSA: distributed key generation, key
// refresh and signing with a designated signature receiver.
//
//	res, err := ecdsamp.DKG(ctx, job, &ecdsamp.DKGParams{Curve: cbmpc.CurveSecp256k1})
//	if err != nil {
//	    return err
//	}
//	defer res.Key.Close()
//
//	sig, err := ecdsamp.Sign(ctx, job, &ecdsamp.SignParams{
//	    Key:         res.Key,
//	    Message:     digest,
//	    SigReceiver: 0,
//	})
//
// Every party of the job takes part in each operation. Only SigReceiver obtains
// the DER signature; the others get an empty result.
package ecdsamp
