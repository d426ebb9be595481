package cbmpc_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/registry"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/softnative"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/mocknet"
)

func openSoft(t *testing.T) (*cbmpc.Library, *softnative.Engine) {
	t.Helper()
	eng := softnative.New(softnative.WithPaillierBits(1024))
	lib := cbmpc.OpenWithEngine(cbmpc.Config{Engine: cbmpc.EngineSoft}, eng)
	t.Cleanup(func() { _ = lib.Close() })
	return lib, eng
}

func pair(t *testing.T, lib *cbmpc.Library) (*cbmpc.Job2P, *cbmpc.Job2P) {
	t.Helper()
	net := mocknet.New()
	j1, err := cbmpc.NewJob2P(lib, net.Ep2P(0, 1), cbmpc.RoleP1)
	require.NoError(t, err)
	j2, err := cbmpc.NewJob2P(lib, net.Ep2P(1, 0), cbmpc.RoleP2)
	require.NoError(t, err)
	return j1, j2
}

func TestTwoPartyMessageEndToEnd(t *testing.T) {
	lib, eng := openSoft(t)
	j1, j2 := pair(t, lib)
	h1, h2 := registry.Handle(j1.Handle()), registry.Handle(j2.Handle())
	require.NotEqual(t, h1, h2)
	require.Equal(t, 2, eng.Registry().Len())

	sent, err := j1.Message(0, 1, []byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, sent)

	got, err := j2.Message(0, 1, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, j1.Close())
	require.NoError(t, j2.Close())

	_, err = eng.Registry().Resolve(h1)
	require.ErrorIs(t, err, registry.ErrUnknownHandle)
	_, err = eng.Registry().Resolve(h2)
	require.ErrorIs(t, err, registry.ErrUnknownHandle)
	require.Zero(t, eng.Registry().Len())
	require.Zero(t, eng.Live())
	require.Zero(t, eng.Heap().Live())
}

func TestMessageEmptyPayload(t *testing.T) {
	lib, _ := openSoft(t)
	j1, j2 := pair(t, lib)
	defer j1.Close()
	defer j2.Close()

	_, err := j2.Message(1, 0, nil)
	require.NoError(t, err)
	got, err := j1.Message(1, 0, []byte("ignored"))
	require.NoError(t, err)
	require.Empty(t, got)
}

// countingTransport counts calls and fails the test on any I/O.
type countingTransport struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTransport) touch() error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return errors.New("unexpected transport call")
}

func (c *countingTransport) Send(context.Context, cbmpc.RoleID, []byte) error { return c.touch() }
func (c *countingTransport) Receive(context.Context, cbmpc.RoleID) ([]byte, error) {
	return nil, c.touch()
}
func (c *countingTransport) ReceiveAll(context.Context, []cbmpc.RoleID) ([][]byte, error) {
	return nil, c.touch()
}

func TestMessageNotParticipantDoesNoIO(t *testing.T) {
	lib, _ := openSoft(t)
	tr := &countingTransport{}
	j, err := cbmpc.NewJob2P(lib, tr, cbmpc.RoleP1)
	require.NoError(t, err)
	defer j.Close()

	_, err = j.Message(1, 2, []byte("x"))
	require.ErrorIs(t, err, cbmpc.ErrNotParticipant)
	_, err = j.Message(5, 1, nil)
	require.ErrorIs(t, err, cbmpc.ErrNotParticipant)
	require.Zero(t, tr.calls)
}

func TestMessageTransportFailure(t *testing.T) {
	lib, _ := openSoft(t)
	tr := &countingTransport{}
	j, err := cbmpc.NewJob2P(lib, tr, cbmpc.RoleP2)
	require.NoError(t, err)
	defer j.Close()

	_, err = j.Message(0, 1, nil)
	require.True(t, cbmpc.HasCode(err, cbmpc.CodeNetwork), "got %v", err)
	_, err = j.Message(1, 0, []byte("x"))
	require.True(t, cbmpc.HasCode(err, cbmpc.CodeNetwork), "got %v", err)
	require.Equal(t, 2, tr.calls)

	var ne *cbmpc.NativeError
	require.ErrorAs(t, err, &ne)
	require.Equal(t, "mpc_2p_send failed with error code -1", ne.Error())
}

func TestJob2PPredicates(t *testing.T) {
	lib, _ := openSoft(t)
	j1, j2 := pair(t, lib)
	defer j2.Close()

	require.True(t, j1.IsPeer1())
	require.False(t, j1.IsPeer2())
	require.True(t, j2.IsPeer2())
	require.True(t, j1.IsRoleIndex(0))
	require.False(t, j1.IsRoleIndex(1))
	require.Equal(t, cbmpc.RoleID(1), j2.RoleIndex())
	require.Equal(t, cbmpc.RoleID(0), j2.Peer())

	require.NoError(t, j1.Close())
	require.True(t, j1.IsPeer1())
	require.Equal(t, cbmpc.RoleID(0), j1.RoleIndex())
	_, err := j1.Ptr()
	require.ErrorIs(t, err, cbmpc.ErrJobClosed)
	_, err = j1.Message(0, 1, []byte("x"))
	require.ErrorIs(t, err, cbmpc.ErrJobClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	lib, eng := openSoft(t)
	j1, j2 := pair(t, lib)
	require.NoError(t, j1.Close())
	require.NoError(t, j1.Close())
	require.NoError(t, j2.Close())
	require.Zero(t, eng.Registry().Len())
}

func TestJobMPQueries(t *testing.T) {
	lib, eng := openSoft(t)
	eps := mocknet.New().Mesh(3)
	jobs := make([]*cbmpc.JobMP, 3)
	for i := range jobs {
		j, err := cbmpc.NewJobMP(lib, eps[i], 3, cbmpc.RoleID(i), cbmpc.WithJobSessionID(42))
		require.NoError(t, err)
		jobs[i] = j
	}
	for i, j := range jobs {
		require.True(t, j.IsParty(cbmpc.RoleID(i)))
		require.False(t, j.IsParty(cbmpc.RoleID((i+1)%3)))
		require.Equal(t, cbmpc.RoleID(i), j.PartyIndex())
		require.Equal(t, 3, j.PartyCount())
		require.Equal(t, uint32(42), j.SessionID())
	}
	require.Equal(t, 3, eng.Registry().Len())
	for _, j := range jobs {
		require.NoError(t, j.Close())
	}
	require.Zero(t, eng.Registry().Len())
	require.Zero(t, eng.Live())
}

func TestJobConstructionErrors(t *testing.T) {
	lib, eng := openSoft(t)
	net := mocknet.New()

	_, err := cbmpc.NewJob2P(lib, nil, cbmpc.RoleP1)
	require.ErrorIs(t, err, cbmpc.ErrNilTransport)
	_, err = cbmpc.NewJob2P(lib, net.Ep2P(0, 1), cbmpc.Role(7))
	require.ErrorIs(t, err, cbmpc.ErrBadPeers)
	_, err = cbmpc.NewJob2P(nil, net.Ep2P(0, 1), cbmpc.RoleP1)
	require.ErrorIs(t, err, cbmpc.ErrLibraryClosed)
	_, err = cbmpc.NewJobMP(lib, net.EpMP(0, []cbmpc.RoleID{1}), 1, 0)
	require.ErrorIs(t, err, cbmpc.ErrBadPeers)
	_, err = cbmpc.NewJobMP(lib, net.EpMP(0, []cbmpc.RoleID{1}), 2, 2)
	require.ErrorIs(t, err, cbmpc.ErrBadPeers)
	require.Zero(t, eng.Registry().Len())
}

// refusingEngine fails every session construction.
type refusingEngine struct {
	*softnative.Engine
}

func (refusingEngine) NewJob2P(registry.Handle, int32) unsafe.Pointer { return nil }
func (refusingEngine) NewJobMP(registry.Handle, int32, int32, uint32) unsafe.Pointer {
	return nil
}

func TestConstructionFailureRollsBackRegistration(t *testing.T) {
	eng := refusingEngine{softnative.New()}
	lib := cbmpc.OpenWithEngine(cbmpc.Config{}, eng)
	net := mocknet.New()

	_, err := cbmpc.NewJob2P(lib, net.Ep2P(0, 1), cbmpc.RoleP1)
	var ne *cbmpc.NativeError
	require.ErrorAs(t, err, &ne)
	require.Equal(t, "new_job_session_2p", ne.Op)

	_, err = cbmpc.NewJobMP(lib, net.EpMP(0, []cbmpc.RoleID{1}), 2, 0)
	require.ErrorAs(t, err, &ne)
	require.Equal(t, "new_job_session_mp", ne.Op)

	require.Zero(t, eng.Registry().Len())
}

func TestRegistriesAreIsolated(t *testing.T) {
	libA, engA := openSoft(t)
	libB, engB := openSoft(t)
	ja, jb := pair(t, libA)
	defer ja.Close()
	defer jb.Close()
	jc, jd := pair(t, libB)
	defer jc.Close()
	defer jd.Close()

	require.Equal(t, 2, engA.Registry().Len())
	require.Equal(t, 2, engB.Registry().Len())
	require.NoError(t, jc.Close())
	require.Equal(t, 2, engA.Registry().Len())
	require.Equal(t, 1, engB.Registry().Len())
}

func TestLibraryClose(t *testing.T) {
	lib, _ := openSoft(t)
	require.NoError(t, lib.Close())
	require.ErrorIs(t, lib.Close(), cbmpc.ErrLibraryClosed)
	_, err := cbmpc.NewJob2P(lib, mocknet.New().Ep2P(0, 1), cbmpc.RoleP1)
	require.ErrorIs(t, err, cbmpc.ErrLibraryClosed)
}

func TestOpenSelectsEngine(t *testing.T) {
	lib, err := cbmpc.Open(cbmpc.Config{Engine: cbmpc.EngineSoft})
	require.NoError(t, err)
	require.Equal(t, "soft", lib.EngineName())
	require.NoError(t, lib.Close())

	lib, err = cbmpc.Open(cbmpc.Config{})
	require.NoError(t, err)
	require.Contains(t, []string{"soft", "native"}, lib.EngineName())
	require.NoError(t, lib.Close())

	_, err = cbmpc.Open(cbmpc.Config{Engine: "quantum"})
	require.Error(t, err)
}

// orderEngine records, at every job free, whether the job's transport handle
// is still registered.
type orderEngine struct {
	*softnative.Engine

	mu      sync.Mutex
	handles map[unsafe.Pointer]registry.Handle
	live    []bool
}

func newOrderEngine() *orderEngine {
	return &orderEngine{
		Engine:  softnative.New(softnative.WithPaillierBits(1024)),
		handles: map[unsafe.Pointer]registry.Handle{},
	}
}

func (e *orderEngine) NewJob2P(h registry.Handle, role int32) unsafe.Pointer {
	p := e.Engine.NewJob2P(h, role)
	e.mu.Lock()
	e.handles[p] = h
	e.mu.Unlock()
	return p
}

func (e *orderEngine) NewJobMP(h registry.Handle, n, self int32, sid uint32) unsafe.Pointer {
	p := e.Engine.NewJobMP(h, n, self, sid)
	e.mu.Lock()
	e.handles[p] = h
	e.mu.Unlock()
	return p
}

func (e *orderEngine) freed(p unsafe.Pointer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.Registry().Resolve(e.handles[p])
	e.live = append(e.live, err == nil)
}

func (e *orderEngine) FreeJob2P(p unsafe.Pointer) {
	e.freed(p)
	e.Engine.FreeJob2P(p)
}

func (e *orderEngine) FreeJobMP(p unsafe.Pointer) {
	e.freed(p)
	e.Engine.FreeJobMP(p)
}

func TestCloseFreesSessionBeforeHandle(t *testing.T) {
	eng := newOrderEngine()
	lib := cbmpc.OpenWithEngine(cbmpc.Config{Engine: cbmpc.EngineSoft}, eng)
	defer lib.Close()
	net := mocknet.New()

	j2, err := cbmpc.NewJob2P(lib, net.Ep2P(0, 1), cbmpc.RoleP1)
	require.NoError(t, err)
	h2 := registry.Handle(j2.Handle())
	require.NoError(t, j2.Close())

	jmp, err := cbmpc.NewJobMP(lib, net.EpMP(0, []cbmpc.RoleID{1, 2}), 3, 0)
	require.NoError(t, err)
	hmp := registry.Handle(jmp.Handle())
	require.NoError(t, jmp.Close())

	require.Equal(t, []bool{true, true}, eng.live, "handle must outlive the native session")
	for _, h := range []registry.Handle{h2, hmp} {
		_, err := eng.Registry().Resolve(h)
		require.ErrorIs(t, err, registry.ErrUnknownHandle)
	}
	require.Zero(t, eng.Registry().Len())
	require.Zero(t, eng.Live())
}
