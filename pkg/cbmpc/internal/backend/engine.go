package backend

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/registry"
)

// ErrNotBuilt reports that the native bindings were not linked into the
// current binary.
var ErrNotBuilt = errors.New("cbmpc/internal/backend: native bindings not built")

// Status is the integer result code shared by engine entry points and
// transport callbacks. Zero is success.
type Status int32

const (
	StatusOK           Status = 0
	StatusNetwork      Status = -1
	StatusParam        Status = -2
	StatusMemory       Status = -3
	StatusInvalidState Status = -4
	StatusVerify       Status = -5
	StatusUnsupported  Status = -6
	StatusInsufficient Status = -7
)

// MaxAgreeBits is the largest agree_random output an engine accepts.
const MaxAgreeBits = 1 << 20

// OK reports whether s is success.
func (s Status) OK() bool { return s == StatusOK }

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNetwork:
		return "network error"
	case StatusParam:
		return "bad parameter"
	case StatusMemory:
		return "out of memory"
	case StatusInvalidState:
		return "invalid state"
	case StatusVerify:
		return "verification failed"
	case StatusUnsupported:
		return "unsupported"
	case StatusInsufficient:
		return "quorum not satisfied"
	default:
		return fmt.Sprintf("status %d", int32(s))
	}
}

// Callbacks is the transport callback table an engine invokes during a
// protocol. Buffers returned through out parameters are allocated with the
// engine's Allocator and owned by the engine once the call succeeds.
type Callbacks struct {
	Send       func(h registry.Handle, receiver int32, msg cmem.Mem) Status
	Receive    func(h registry.Handle, sender int32, out *cmem.Mem) Status
	ReceiveAll func(h registry.Handle, senders []int32, out *cmem.Mems) Status
}

// NodeKind is the type of an access-structure node.
type NodeKind int32

const (
	NodeNone NodeKind = iota
	NodeLeaf
	NodeAnd
	NodeOr
	NodeThreshold
)

func (k NodeKind) String() string {
	switch k {
	case NodeLeaf:
		return "leaf"
	case NodeAnd:
		return "and"
	case NodeOr:
		return "or"
	case NodeThreshold:
		return "threshold"
	default:
		return "none"
	}
}

// Engine is the native surface the session layer drives. Opaque references
// are returned as unsafe.Pointer and stay valid until the matching Free call.
// Output buffers are allocated with Allocator and must be released by the
// caller through the same Allocator.
type Engine interface {
	Name() string
	Version() string
	Allocator() cmem.Allocator
	Registry() *registry.Registry

	NewJob2P(h registry.Handle, role int32) unsafe.Pointer
	FreeJob2P(job unsafe.Pointer)
	IsPeer1(job unsafe.Pointer) bool
	IsPeer2(job unsafe.Pointer) bool
	IsRoleIndex(job unsafe.Pointer, role int32) bool
	RoleIndex(job unsafe.Pointer) int32
	Send2P(job unsafe.Pointer, receiver int32, msg cmem.Mem) Status
	Receive2P(job unsafe.Pointer, sender int32, out *cmem.Mem) Status

	NewJobMP(h registry.Handle, partyCount, partyIndex int32, sessionID uint32) unsafe.Pointer
	FreeJobMP(job unsafe.Pointer)
	IsParty(job unsafe.Pointer, index int32) bool
	PartyIndex(job unsafe.Pointer) int32
	PartyCount(job unsafe.Pointer) int32

	AgreeRandom2P(job unsafe.Pointer, bitLen int32, out *cmem.Mem) Status
	AgreeRandomMP(job unsafe.Pointer, bitLen int32, out *cmem.Mem) Status

	ECDSA2PDKG(job unsafe.Pointer, curve int32, key *unsafe.Pointer) Status
	ECDSA2PRefresh(job, key unsafe.Pointer, newKey *unsafe.Pointer) Status
	ECDSA2PSign(job unsafe.Pointer, sid cmem.Mem, key unsafe.Pointer, msgs cmem.Mems, sigs *cmem.Mems) Status
	ECDSA2PPublicKey(key unsafe.Pointer, out *cmem.Mem) Status
	ECDSA2PKeyFree(key unsafe.Pointer)

	ECDSAMPDKG(job unsafe.Pointer, curve int32, key *unsafe.Pointer) Status
	ECDSAMPRefresh(job, key unsafe.Pointer, newKey *unsafe.Pointer) Status
	ECDSAMPSign(job, key unsafe.Pointer, msg cmem.Mem, sigReceiver int32, sig *cmem.Mem) Status
	ECDSAMPPublicKey(key unsafe.Pointer, x, y *cmem.Mem) Status
	ECDSAMPShareScalars(key unsafe.Pointer, x, q *cmem.Mem) Status
	ECDSAMPKeyFree(key unsafe.Pointer)

	NewNode(kind NodeKind, name cmem.Mem, threshold int32) unsafe.Pointer
	AddChild(parent, child unsafe.Pointer) Status
	FreeNode(node unsafe.Pointer)

	PVEQuorumEncrypt(root unsafe.Pointer, pubKeys, xs cmem.Mems, label cmem.Mem, out *cmem.Mem) Status
	PVEQuorumDecrypt(root unsafe.Pointer, privKeys, pubKeys cmem.Mems, bundle cmem.Mem, pubXs cmem.Mems, label cmem.Mem, out *cmem.Mems) Status

	NewEncKeyPairs(count int32, priv, pub *cmem.Mems) Status
	NewECKeyPairs(count int32, priv, pub *cmem.Mems) Status
}
