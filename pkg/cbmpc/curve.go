package cbmpc

// Curve identifies an elliptic curve by its OpenSSL NID, the identifier the
// engine uses.
type Curve struct {
	nid int
}

var (
	CurveP256      = Curve{nid: 415}  // NID_X9_62_prime256v1
	CurveP384      = Curve{nid: 715}  // NID_secp384r1
	CurveP521      = Curve{nid: 716}  // NID_secp521r1
	CurveSecp256k1 = Curve{nid: 714}  // NID_secp256k1
	CurveEd25519   = Curve{nid: 1087} // NID_ED25519
)

// NID returns the OpenSSL NID of the curve.
func (c Curve) NID() int {
	return c.nid
}

// NewCurveFromNID creates a Curve from an OpenSSL NID.
func NewCurveFromNID(nid int) Curve {
	return Curve{nid: nid}
}

func (c Curve) String() string {
	switch c.nid {
	case 415:
		return "P-256"
	case 715:
		return "P-384"
	case 716:
		return "P-521"
	case 714:
		return "secp256k1"
	case 1087:
		return "Ed25519"
	default:
		return "Unknown"
	}
}

// MaxHashSize returns the size in bytes of the curve order, the largest
// digest the curve signs without truncation.
func (c Curve) MaxHashSize() int {
	switch c.nid {
	case 715:
		return 48
	case 716:
		return 66
	case 415, 714, 1087:
		return 32
	default:
		return 0
	}
}
