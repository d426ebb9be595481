package cbmpc

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/google/uuid"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/registry"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/logging"
)

// session is the state shared by Job2P and JobMP: the native session, the
// registered transport handle and the engine both belong to.
type session struct {
	mu   sync.Mutex
	eng  backend.Engine
	cptr unsafe.Pointer
	h    registry.Handle
	log  logging.Logger
	ctx  context.Context
}

// open registers the adapter and builds the native session with construct.
// A nil session from the engine rolls the registration back.
func (s *session) open(t Transport, op string, construct func(registry.Handle) unsafe.Pointer) error {
	reg := s.eng.Registry()
	s.h = reg.Register(&transportAdapter{inner: t, ctx: s.ctx, log: s.log})
	s.cptr = construct(s.h)
	if s.cptr == nil {
		if err := reg.Unregister(s.h); err != nil {
			s.log.Error(s.ctx, "rollback of transport registration failed", "err", err)
		}
		s.h = 0
		return checkStatus(s.ctx, s.log, op, backend.StatusInvalidState)
	}
	s.log.Debug(s.ctx, "job opened", "handle", uint64(s.h))
	return nil
}

// close frees the native session, then releases the transport handle. The
// engine may still call back through the handle until free returns.
func (s *session) close(free func(unsafe.Pointer)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cptr == nil && s.h == 0 {
		return nil
	}
	if s.cptr != nil {
		free(s.cptr)
		s.cptr = nil
	}
	var err error
	if s.h != 0 {
		err = RemapError(s.eng.Registry().Unregister(s.h))
		s.h = 0
	}
	s.log.Debug(s.ctx, "job closed")
	return err
}

func (s *session) ptr() (unsafe.Pointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cptr == nil {
		return nil, ErrJobClosed
	}
	return s.cptr, nil
}

func (s *session) handle() registry.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}

func newSession(ctx context.Context, lib *Library, t Transport, kind string) (*session, error) {
	if lib == nil {
		return nil, ErrLibraryClosed
	}
	if t == nil {
		return nil, ErrNilTransport
	}
	eng, err := lib.Engine()
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &session{
		eng: eng,
		ctx: ctx,
		log: lib.log.With("job", uuid.NewString(), "kind", kind),
	}, nil
}

// Job2P is a two-party session: a native job bound to one registered
// transport and a fixed role.
type Job2P struct {
	s    *session
	role Role
}

// NewJob2P constructs a two-party job for role over t with a background
// context.
func NewJob2P(lib *Library, t Transport, role Role) (*Job2P, error) {
	return NewJob2PWithContext(context.Background(), lib, t, role)
}

// NewJob2PWithContext constructs a two-party job. ctx is handed to every
// transport call the job makes.
func NewJob2PWithContext(ctx context.Context, lib *Library, t Transport, role Role) (*Job2P, error) {
	if !role.valid() {
		return nil, fmt.Errorf("%w: role %d is not valid", ErrBadPeers, role)
	}
	s, err := newSession(ctx, lib, t, "2p")
	if err != nil {
		return nil, err
	}
	s.log = s.log.With("role", role.String())
	if err := s.open(t, "new_job_session_2p", func(h registry.Handle) unsafe.Pointer {
		return s.eng.NewJob2P(h, int32(role.roleID()))
	}); err != nil {
		return nil, err
	}

	j := &Job2P{s: s, role: role}
	runtime.SetFinalizer(j, func(j *Job2P) { _ = j.Close() })
	return j, nil
}

// Close frees the native session and then unregisters the transport. It is
// safe to call more than once.
func (j *Job2P) Close() error {
	if j == nil || j.s == nil {
		return nil
	}
	runtime.SetFinalizer(j, nil)
	return j.s.close(j.s.eng.FreeJob2P)
}

// Message moves one payload between sender and receiver. The sender's side
// sends and returns payload unchanged, the receiver's side returns what it
// received. A job that is neither gets ErrNotParticipant and no I/O happens.
func (j *Job2P) Message(sender, receiver RoleID, payload []byte) ([]byte, error) {
	if j == nil || j.s == nil {
		return nil, ErrJobClosed
	}
	self := j.role.roleID()
	if self != sender && self != receiver {
		return nil, ErrNotParticipant
	}
	p, err := j.s.ptr()
	if err != nil {
		return nil, err
	}
	defer runtime.KeepAlive(j)

	if self == sender {
		st := j.s.eng.Send2P(p, int32(receiver), cmem.View(payload))
		runtime.KeepAlive(payload)
		if err := checkStatus(j.s.ctx, j.s.log, "mpc_2p_send", st); err != nil {
			return nil, err
		}
		return payload, nil
	}
	var out cmem.Mem
	st := j.s.eng.Receive2P(p, int32(sender), &out)
	if err := checkStatus(j.s.ctx, j.s.log, "mpc_2p_receive", st); err != nil {
		cmem.Release(j.s.eng.Allocator(), out)
		return nil, err
	}
	return cmem.Take(j.s.eng.Allocator(), out), nil
}

// IsPeer1 reports whether the job plays RoleP1.
func (j *Job2P) IsPeer1() bool {
	p, err := j.s.ptr()
	if err != nil {
		return j.role == RoleP1
	}
	return j.s.eng.IsPeer1(p)
}

// IsPeer2 reports whether the job plays RoleP2.
func (j *Job2P) IsPeer2() bool {
	p, err := j.s.ptr()
	if err != nil {
		return j.role == RoleP2
	}
	return j.s.eng.IsPeer2(p)
}

// IsRoleIndex reports whether the job's role index is r.
func (j *Job2P) IsRoleIndex(r RoleID) bool {
	p, err := j.s.ptr()
	if err != nil {
		return j.role.roleID() == r
	}
	return j.s.eng.IsRoleIndex(p, int32(r))
}

// RoleIndex returns the job's role index.
func (j *Job2P) RoleIndex() RoleID {
	p, err := j.s.ptr()
	if err != nil {
		return j.role.roleID()
	}
	return RoleID(j.s.eng.RoleIndex(p))
}

// Role returns the role fixed at construction.
func (j *Job2P) Role() Role { return j.role }

// Peer returns the other party's role index.
func (j *Job2P) Peer() RoleID { return j.role.peer() }

// Ptr returns the native job reference.
// This is exported for use by protocol subpackages.
func (j *Job2P) Ptr() (unsafe.Pointer, error) {
	if j == nil || j.s == nil {
		return nil, ErrJobClosed
	}
	return j.s.ptr()
}

// Engine returns the engine the job runs on.
// This is exported for use by protocol subpackages.
func (j *Job2P) Engine() backend.Engine { return j.s.eng }

// Logger returns the job logger, tagged with its trace id and role.
func (j *Job2P) Logger() logging.Logger { return j.s.log }

// CheckStatus converts st into an error, logging failures with the job
// logger. This is exported for use by protocol subpackages.
func (j *Job2P) CheckStatus(ctx context.Context, op string, st backend.Status) error {
	return checkStatus(ctx, j.s.log, op, st)
}

// Handle returns the registered transport handle, zero once closed.
func (j *Job2P) Handle() uintptr { return uintptr(j.s.handle()) }

// JobOption configures NewJobMP.
type JobOption func(*jobOptions)

type jobOptions struct {
	sessionID uint32
}

// WithJobSessionID distinguishes concurrent jobs among the same parties. All
// parties of one job must use the same value.
func WithJobSessionID(id uint32) JobOption {
	return func(o *jobOptions) { o.sessionID = id }
}

// JobMP is an N-party session.
type JobMP struct {
	s         *session
	self      RoleID
	count     int
	sessionID uint32
}

// NewJobMP constructs an N-party job for party self of partyCount with a
// background context.
func NewJobMP(lib *Library, t Transport, partyCount int, self RoleID, opts ...JobOption) (*JobMP, error) {
	return NewJobMPWithContext(context.Background(), lib, t, partyCount, self, opts...)
}

// NewJobMPWithContext constructs an N-party job. ctx is handed to every
// transport call the job makes.
func NewJobMPWithContext(ctx context.Context, lib *Library, t Transport, partyCount int, self RoleID, opts ...JobOption) (*JobMP, error) {
	if partyCount < 2 {
		return nil, fmt.Errorf("%w: need at least 2 parties (got %d)", ErrBadPeers, partyCount)
	}
	if int(self) >= partyCount {
		return nil, fmt.Errorf("%w: self role %d out of range [0,%d)", ErrBadPeers, self, partyCount)
	}
	var o jobOptions
	for _, opt := range opts {
		opt(&o)
	}
	s, err := newSession(ctx, lib, t, "mp")
	if err != nil {
		return nil, err
	}
	s.log = s.log.With("party", uint32(self), "parties", partyCount, "sid", o.sessionID)
	if err := s.open(t, "new_job_session_mp", func(h registry.Handle) unsafe.Pointer {
		return s.eng.NewJobMP(h, int32(partyCount), int32(self), o.sessionID)
	}); err != nil {
		return nil, err
	}

	j := &JobMP{s: s, self: self, count: partyCount, sessionID: o.sessionID}
	runtime.SetFinalizer(j, func(j *JobMP) { _ = j.Close() })
	return j, nil
}

// Close frees the native session and then unregisters the transport. It is
// safe to call more than once.
func (j *JobMP) Close() error {
	if j == nil || j.s == nil {
		return nil
	}
	runtime.SetFinalizer(j, nil)
	return j.s.close(j.s.eng.FreeJobMP)
}

// IsParty reports whether the job's party index is i.
func (j *JobMP) IsParty(i RoleID) bool {
	p, err := j.s.ptr()
	if err != nil {
		return j.self == i
	}
	return j.s.eng.IsParty(p, int32(i))
}

// PartyIndex returns the caller's party index.
func (j *JobMP) PartyIndex() RoleID {
	p, err := j.s.ptr()
	if err != nil {
		return j.self
	}
	return RoleID(j.s.eng.PartyIndex(p))
}

// PartyCount returns the number of parties.
func (j *JobMP) PartyCount() int {
	p, err := j.s.ptr()
	if err != nil {
		return j.count
	}
	return int(j.s.eng.PartyCount(p))
}

// SessionID returns the job session identifier.
func (j *JobMP) SessionID() uint32 { return j.sessionID }

// Ptr returns the native job reference.
// This is exported for use by protocol subpackages.
func (j *JobMP) Ptr() (unsafe.Pointer, error) {
	if j == nil || j.s == nil {
		return nil, ErrJobClosed
	}
	return j.s.ptr()
}

// Engine returns the engine the job runs on.
// This is exported for use by protocol subpackages.
func (j *JobMP) Engine() backend.Engine { return j.s.eng }

// Logger returns the job logger, tagged with its trace id and party.
func (j *JobMP) Logger() logging.Logger { return j.s.log }

// CheckStatus converts st into an error, logging failures with the job
// logger. This is exported for use by protocol subpackages.
func (j *JobMP) CheckStatus(ctx context.Context, op string, st backend.Status) error {
	return checkStatus(ctx, j.s.log, op, st)
}

// Handle returns the registered transport handle, zero once closed.
func (j *JobMP) Handle() uintptr { return uintptr(j.s.handle()) }

// SessionID carries the identifier two-party signing binds a batch to.
type SessionID []byte

// Clone returns a copy of s, or nil when s is empty.
func (s SessionID) Clone() SessionID {
	if len(s) == 0 {
		return nil
	}
	clone := make(SessionID, len(s))
	copy(clone, s)
	return clone
}

// IsEmpty reports whether s is nil or zero-length.
func (s SessionID) IsEmpty() bool {
	return len(s) == 0
}
