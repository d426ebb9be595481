//go:build cgo && cbmpc

package backend

/*
#cgo CFLAGS: -I${SRCDIR} -Wno-deprecated-declarations
#cgo linux,!android CFLAGS: -I/usr/local/include
#cgo darwin CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lcbmpc -lcrypto -lstdc++
#include <stdlib.h>
#include <string.h>
#include "cbmpc_bridge.h"

extern int cbmpc_go_send(void*, int, cmem_t);
extern int cbmpc_go_receive(void*, int, cmem_t*);
extern int cbmpc_go_receive_all(void*, int*, int, cmems_t*);

static data_transport_callbacks_t* cbmpc_go_callbacks(void) {
  data_transport_callbacks_t* cb = (data_transport_callbacks_t*)calloc(1, sizeof(data_transport_callbacks_t));
  if (cb == NULL) return NULL;
  cb->send_fun = cbmpc_go_send;
  cb->receive_fun = cbmpc_go_receive;
  cb->receive_all_fun = cbmpc_go_receive_all;
  return cb;
}
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/registry"
)

// cHeap allocates boundary memory on the C heap so the native library can
// free what it receives from the trampolines.
type cHeap struct{}

func (cHeap) Alloc(n int) unsafe.Pointer {
	if n <= 0 {
		return nil
	}
	return C.malloc(C.size_t(n))
}

func (cHeap) Free(p unsafe.Pointer) { C.free(p) }

// Native is the Engine backed by libcbmpc. There is one per process; its
// callbacks resolve handles in registry.Process.
type Native struct {
	reg *registry.Registry
	cb  *C.data_transport_callbacks_t
}

var (
	nativeOnce   sync.Once
	nativeEngine *Native
	nativeErr    error
	nativeBridge *Bridge
)

// OpenNative returns the process-wide native engine, installing the
// transport trampolines on first use.
func OpenNative() (Engine, error) {
	nativeOnce.Do(func() {
		reg := registry.Process()
		nativeBridge = NewBridge(reg, cHeap{})
		// The callback table is retained by the library, so it lives in C memory.
		cb := C.cbmpc_go_callbacks()
		if cb == nil {
			nativeErr = errors.New("cbmpc/internal/backend: cannot allocate callback table")
			return
		}
		nativeEngine = &Native{reg: reg, cb: cb}
	})
	if nativeErr != nil {
		return nil, nativeErr
	}
	return nativeEngine, nil
}

// NativeVersion returns the version string reported by libcbmpc.
func NativeVersion() string {
	v := C.cbmpc_version()
	if v == nil {
		return ""
	}
	return C.GoString(v)
}

//export cbmpc_go_send
func cbmpc_go_send(ptr unsafe.Pointer, receiver C.int, msg C.cmem_t) C.int {
	return C.int(nativeBridge.Send(handleOf(ptr), int32(receiver), memFromC(msg)))
}

//export cbmpc_go_receive
func cbmpc_go_receive(ptr unsafe.Pointer, sender C.int, out *C.cmem_t) C.int {
	if out == nil {
		return C.int(StatusParam)
	}
	var m cmem.Mem
	st := nativeBridge.Receive(handleOf(ptr), int32(sender), &m)
	*out = memToC(m)
	return C.int(st)
}

//export cbmpc_go_receive_all
func cbmpc_go_receive_all(ptr unsafe.Pointer, senders *C.int, count C.int, outs *C.cmems_t) C.int {
	if outs == nil || count < 0 || (count > 0 && senders == nil) {
		return C.int(StatusParam)
	}
	from := make([]int32, int(count))
	for i, s := range unsafe.Slice(senders, int(count)) {
		from[i] = int32(s)
	}
	var m cmem.Mems
	st := nativeBridge.ReceiveAll(handleOf(ptr), from, &m)
	*outs = memsToC(m)
	return C.int(st)
}

func handleOf(ptr unsafe.Pointer) registry.Handle { return registry.Handle(uintptr(ptr)) }

func memToC(m cmem.Mem) C.cmem_t {
	return C.cmem_t{data: (*C.uint8_t)(m.Data), size: C.int(m.Size)}
}

func memFromC(m C.cmem_t) cmem.Mem {
	return cmem.Mem{Data: unsafe.Pointer(m.data), Size: int32(m.size)}
}

func memsToC(m cmem.Mems) C.cmems_t {
	return C.cmems_t{count: C.int(m.Count), data: (*C.uint8_t)(m.Data), sizes: (*C.int)(m.Sizes)}
}

func memsFromC(m C.cmems_t) cmem.Mems {
	return cmem.Mems{Count: int32(m.count), Data: unsafe.Pointer(m.data), Sizes: unsafe.Pointer(m.sizes)}
}

func status(rc C.int) Status { return Status(rc) }

func (n *Native) Name() string                 { return "native" }
func (n *Native) Version() string              { return NativeVersion() }
func (n *Native) Allocator() cmem.Allocator    { return cHeap{} }
func (n *Native) Registry() *registry.Registry { return n.reg }

func (n *Native) NewJob2P(h registry.Handle, role int32) unsafe.Pointer {
	// The handle travels as void*; it is never dereferenced.
	//nolint:govet // Intentional uintptr to unsafe.Pointer conversion for CGO
	return unsafe.Pointer(C.new_job_session_2p(n.cb, unsafe.Pointer(uintptr(h)), C.int(role)))
}

func (n *Native) FreeJob2P(job unsafe.Pointer) {
	if job != nil {
		C.free_job_session_2p((*C.job_session_2p_ref)(job))
	}
}

func (n *Native) IsPeer1(job unsafe.Pointer) bool {
	return C.is_peer1((*C.job_session_2p_ref)(job)) != 0
}

func (n *Native) IsPeer2(job unsafe.Pointer) bool {
	return C.is_peer2((*C.job_session_2p_ref)(job)) != 0
}

func (n *Native) IsRoleIndex(job unsafe.Pointer, role int32) bool {
	return C.is_role_index((*C.job_session_2p_ref)(job), C.int(role)) != 0
}

func (n *Native) RoleIndex(job unsafe.Pointer) int32 {
	return int32(C.get_role_index((*C.job_session_2p_ref)(job)))
}

func (n *Native) Send2P(job unsafe.Pointer, receiver int32, msg cmem.Mem) Status {
	return status(C.mpc_2p_send((*C.job_session_2p_ref)(job), C.int(receiver), memToC(msg)))
}

func (n *Native) Receive2P(job unsafe.Pointer, sender int32, out *cmem.Mem) Status {
	var cout C.cmem_t
	st := status(C.mpc_2p_receive((*C.job_session_2p_ref)(job), C.int(sender), &cout))
	*out = memFromC(cout)
	return st
}

func (n *Native) NewJobMP(h registry.Handle, partyCount, partyIndex int32, sessionID uint32) unsafe.Pointer {
	//nolint:govet // Intentional uintptr to unsafe.Pointer conversion for CGO
	return unsafe.Pointer(C.new_job_session_mp(n.cb, unsafe.Pointer(uintptr(h)), C.int(partyCount), C.int(partyIndex), C.int(sessionID)))
}

func (n *Native) FreeJobMP(job unsafe.Pointer) {
	if job != nil {
		C.free_job_session_mp((*C.job_session_mp_ref)(job))
	}
}

func (n *Native) IsParty(job unsafe.Pointer, index int32) bool {
	return C.is_party((*C.job_session_mp_ref)(job), C.int(index)) != 0
}

func (n *Native) PartyIndex(job unsafe.Pointer) int32 {
	return int32(C.get_party_idx((*C.job_session_mp_ref)(job)))
}

func (n *Native) PartyCount(job unsafe.Pointer) int32 {
	return int32(C.get_n_parties((*C.job_session_mp_ref)(job)))
}

func (n *Native) AgreeRandom2P(job unsafe.Pointer, bitLen int32, out *cmem.Mem) Status {
	var cout C.cmem_t
	st := status(C.mpc_agree_random((*C.job_session_2p_ref)(job), C.int(bitLen), &cout))
	*out = memFromC(cout)
	return st
}

func (n *Native) AgreeRandomMP(job unsafe.Pointer, bitLen int32, out *cmem.Mem) Status {
	var cout C.cmem_t
	st := status(C.mpc_multi_agree_random((*C.job_session_mp_ref)(job), C.int(bitLen), &cout))
	*out = memFromC(cout)
	return st
}

func (n *Native) ECDSA2PDKG(job unsafe.Pointer, curve int32, key *unsafe.Pointer) Status {
	var k C.mpc_ecdsa2pc_key_ref
	st := status(C.mpc_ecdsa2p_dkg((*C.job_session_2p_ref)(job), C.int(curve), &k))
	*key = k.opaque
	return st
}

func (n *Native) ECDSA2PRefresh(job, key unsafe.Pointer, newKey *unsafe.Pointer) Status {
	k := C.mpc_ecdsa2pc_key_ref{opaque: key}
	var nk C.mpc_ecdsa2pc_key_ref
	st := status(C.mpc_ecdsa2p_refresh((*C.job_session_2p_ref)(job), &k, &nk))
	*newKey = nk.opaque
	return st
}

func (n *Native) ECDSA2PSign(job unsafe.Pointer, sid cmem.Mem, key unsafe.Pointer, msgs cmem.Mems, sigs *cmem.Mems) Status {
	k := C.mpc_ecdsa2pc_key_ref{opaque: key}
	var cout C.cmems_t
	st := status(C.mpc_ecdsa2p_sign((*C.job_session_2p_ref)(job), memToC(sid), &k, memsToC(msgs), &cout))
	*sigs = memsFromC(cout)
	return st
}

func (n *Native) ECDSA2PPublicKey(key unsafe.Pointer, out *cmem.Mem) Status {
	k := C.mpc_ecdsa2pc_key_ref{opaque: key}
	var cout C.cmem_t
	st := status(C.mpc_ecdsa2p_public_key(&k, &cout))
	*out = memFromC(cout)
	return st
}

func (n *Native) ECDSA2PKeyFree(key unsafe.Pointer) {
	if key != nil {
		C.free_mpc_ecdsa2p_key(C.mpc_ecdsa2pc_key_ref{opaque: key})
	}
}

func (n *Native) ECDSAMPDKG(job unsafe.Pointer, curve int32, key *unsafe.Pointer) Status {
	var k C.mpc_eckey_mp_ref
	st := status(C.mpc_ecdsampc_dkg((*C.job_session_mp_ref)(job), C.int(curve), &k))
	*key = k.opaque
	return st
}

func (n *Native) ECDSAMPRefresh(job, key unsafe.Pointer, newKey *unsafe.Pointer) Status {
	k := C.mpc_eckey_mp_ref{opaque: key}
	var nk C.mpc_eckey_mp_ref
	st := status(C.mpc_ecdsampc_refresh((*C.job_session_mp_ref)(job), &k, &nk))
	*newKey = nk.opaque
	return st
}

func (n *Native) ECDSAMPSign(job, key unsafe.Pointer, msg cmem.Mem, sigReceiver int32, sig *cmem.Mem) Status {
	k := C.mpc_eckey_mp_ref{opaque: key}
	var cout C.cmem_t
	st := status(C.mpc_ecdsampc_sign((*C.job_session_mp_ref)(job), &k, memToC(msg), C.int(sigReceiver), &cout))
	*sig = memFromC(cout)
	return st
}

func (n *Native) ECDSAMPPublicKey(key unsafe.Pointer, x, y *cmem.Mem) Status {
	k := C.mpc_eckey_mp_ref{opaque: key}
	var cx, cy C.cmem_t
	st := status(C.ecdsa_mpc_public_key_to_string(&k, &cx, &cy))
	*x, *y = memFromC(cx), memFromC(cy)
	return st
}

func (n *Native) ECDSAMPShareScalars(key unsafe.Pointer, x, q *cmem.Mem) Status {
	k := C.mpc_eckey_mp_ref{opaque: key}
	var cx, cq C.cmem_t
	st := status(C.convert_ecdsa_share_to_bn_t_share(&k, &cx, &cq))
	*x, *q = memFromC(cx), memFromC(cq)
	return st
}

func (n *Native) ECDSAMPKeyFree(key unsafe.Pointer) {
	if key != nil {
		C.free_mpc_eckey_mp(C.mpc_eckey_mp_ref{opaque: key})
	}
}

func (n *Native) NewNode(kind NodeKind, name cmem.Mem, threshold int32) unsafe.Pointer {
	return unsafe.Pointer(C.new_node(C.int(kind), memToC(name), C.int(threshold)))
}

func (n *Native) AddChild(parent, child unsafe.Pointer) Status {
	return status(C.add_child((*C.crypto_ss_node_ref)(parent), (*C.crypto_ss_node_ref)(child)))
}

func (n *Native) FreeNode(node unsafe.Pointer) {
	if node != nil {
		C.free_crypto_ss_node((*C.crypto_ss_node_ref)(node))
	}
}

func (n *Native) PVEQuorumEncrypt(root unsafe.Pointer, pubKeys, xs cmem.Mems, label cmem.Mem, out *cmem.Mem) Status {
	var cout C.cmem_t
	st := status(C.pve_quorum_encrypt((*C.crypto_ss_node_ref)(root), memsToC(pubKeys), memsToC(xs), memToC(label), &cout))
	*out = memFromC(cout)
	return st
}

func (n *Native) PVEQuorumDecrypt(root unsafe.Pointer, privKeys, pubKeys cmem.Mems, bundle cmem.Mem, pubXs cmem.Mems, label cmem.Mem, out *cmem.Mems) Status {
	var cout C.cmems_t
	st := status(C.pve_quorum_decrypt((*C.crypto_ss_node_ref)(root), memsToC(privKeys), memsToC(pubKeys),
		memToC(bundle), memsToC(pubXs), memToC(label), &cout))
	*out = memsFromC(cout)
	return st
}

func (n *Native) NewEncKeyPairs(count int32, priv, pub *cmem.Mems) Status {
	var cpriv, cpub C.cmems_t
	st := status(C.get_n_enc_keypairs(C.int(count), &cpriv, &cpub))
	*priv, *pub = memsFromC(cpriv), memsFromC(cpub)
	return st
}

func (n *Native) NewECKeyPairs(count int32, priv, pub *cmem.Mems) Status {
	var cpriv, cpub C.cmems_t
	st := status(C.get_n_ec_keypairs(C.int(count), &cpriv, &cpub))
	*priv, *pub = memsFromC(cpriv), memsFromC(cpub)
	return st
}

var _ Engine = (*Native)(nil)
