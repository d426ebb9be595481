package softnative

import (
	"unsafe"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/registry"
)

// job is the engine-side session. A 2P job has n == 2 and mp == false.
type job struct {
	h    registry.Handle
	self int32
	n    int32
	sid  uint32
	mp   bool
}

func (j *job) peers() []int32 {
	out := make([]int32, 0, j.n-1)
	for i := int32(0); i < j.n; i++ {
		if i != j.self {
			out = append(out, i)
		}
	}
	return out
}

func (j *job) has(i int32) bool { return i >= 0 && i < j.n }

func (e *Engine) job2p(p unsafe.Pointer) (*job, bool) {
	j, ok := lookup[job](e, p)
	if !ok || j.mp {
		return nil, false
	}
	return j, true
}

func (e *Engine) jobMP(p unsafe.Pointer) (*job, bool) {
	j, ok := lookup[job](e, p)
	if !ok || !j.mp {
		return nil, false
	}
	return j, true
}

// NewJob2P returns nil when role is not 0 or 1.
func (e *Engine) NewJob2P(h registry.Handle, role int32) unsafe.Pointer {
	if role != 0 && role != 1 {
		return nil
	}
	j := &job{h: h, self: role, n: 2}
	return e.track(unsafe.Pointer(j), j)
}

func (e *Engine) FreeJob2P(p unsafe.Pointer) {
	if p != nil {
		e.untrack(p)
	}
}

func (e *Engine) IsPeer1(p unsafe.Pointer) bool {
	j, ok := e.job2p(p)
	return ok && j.self == 0
}

func (e *Engine) IsPeer2(p unsafe.Pointer) bool {
	j, ok := e.job2p(p)
	return ok && j.self == 1
}

func (e *Engine) IsRoleIndex(p unsafe.Pointer, role int32) bool {
	j, ok := e.job2p(p)
	return ok && j.self == role
}

func (e *Engine) RoleIndex(p unsafe.Pointer) int32 {
	j, ok := e.job2p(p)
	if !ok {
		return -1
	}
	return j.self
}

func (e *Engine) Send2P(p unsafe.Pointer, receiver int32, msg cmem.Mem) backend.Status {
	j, ok := e.job2p(p)
	if !ok {
		return backend.StatusInvalidState
	}
	if receiver == j.self || !j.has(receiver) {
		return backend.StatusParam
	}
	return e.cb.Send(j.h, receiver, msg)
}

func (e *Engine) Receive2P(p unsafe.Pointer, sender int32, out *cmem.Mem) backend.Status {
	if out == nil {
		return backend.StatusParam
	}
	*out = cmem.Mem{}
	j, ok := e.job2p(p)
	if !ok {
		return backend.StatusInvalidState
	}
	if sender == j.self || !j.has(sender) {
		return backend.StatusParam
	}
	return e.cb.Receive(j.h, sender, out)
}

// NewJobMP returns nil unless 2 <= partyCount and 0 <= partyIndex < partyCount.
func (e *Engine) NewJobMP(h registry.Handle, partyCount, partyIndex int32, sessionID uint32) unsafe.Pointer {
	if partyCount < 2 || partyIndex < 0 || partyIndex >= partyCount {
		return nil
	}
	j := &job{h: h, self: partyIndex, n: partyCount, sid: sessionID, mp: true}
	return e.track(unsafe.Pointer(j), j)
}

func (e *Engine) FreeJobMP(p unsafe.Pointer) {
	if p != nil {
		e.untrack(p)
	}
}

func (e *Engine) IsParty(p unsafe.Pointer, index int32) bool {
	j, ok := e.jobMP(p)
	return ok && j.self == index
}

func (e *Engine) PartyIndex(p unsafe.Pointer) int32 {
	j, ok := e.jobMP(p)
	if !ok {
		return -1
	}
	return j.self
}

func (e *Engine) PartyCount(p unsafe.Pointer) int32 {
	j, ok := e.jobMP(p)
	if !ok {
		return 0
	}
	return j.n
}
