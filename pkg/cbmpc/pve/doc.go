// Package pve provides quorum publicly verifiable encryption (PVE).
//
// QuorumEncrypt shares each secret scalar x down an access-structure tree and
// seals every leaf's shares to that leaf's encryption key. The bundle also
// carries the points x*G, so a decrypting quorum can check the recovered
// values against public data.
//
//	root, _ := ac.Build(lib, ac.Threshold(2, ac.Leaf("a"), ac.Leaf("b"), ac.Leaf("c")))
//	defer root.Close()
//
//	privs, pubs, _ := pve.NewEncKeyPairs(lib, 3)
//	xs, points, _ := pve.NewECKeyPairs(lib, 1)
//
//	enc, _ := pve.QuorumEncrypt(ctx, &pve.EncryptParams{
//	    Root: root, PublicKeys: pubs, Secrets: xs, Label: []byte("backup"),
//	})
//
//	// Parties a and c decrypt; b is absent.
//	dec, _ := pve.QuorumDecrypt(ctx, &pve.DecryptParams{
//	    Root:          root,
//	    PrivateKeys:   [][]byte{privs[0], nil, privs[2]},
//	    PublicKeys:    pubs,
//	    Bundle:        enc.Bundle,
//	    PublicSecrets: points,
//	    Label:         []byte("backup"),
//	})
//
// Keys are aligned with root.Leaves(). An empty private key marks an absent
// leaf. A set of present leaves that does not satisfy the tree fails with
// cbmpc.CodeInsufficient; a wrong label or public secret fails with
// cbmpc.CodeVerify.
package pve
