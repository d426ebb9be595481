package softnative

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
)

// failure carries the status a protocol step ends with.
type failure struct {
	st  backend.Status
	msg string
}

func (f *failure) Error() string { return fmt.Sprintf("softnative: %s: %s", f.msg, f.st) }

func fail(st backend.Status, format string, args ...any) error {
	return &failure{st: st, msg: fmt.Sprintf(format, args...)}
}

func statusOf(err error) backend.Status {
	if err == nil {
		return backend.StatusOK
	}
	var f *failure
	if errors.As(err, &f) {
		return f.st
	}
	return backend.StatusInvalidState
}

func (e *Engine) send(j *job, to int32, msg []byte) error {
	st := e.cb.Send(j.h, to, cmem.View(msg))
	runtime.KeepAlive(msg)
	if !st.OK() {
		return fail(backend.StatusNetwork, "send to %d", to)
	}
	return nil
}

func (e *Engine) receive(j *job, from int32) ([]byte, error) {
	var out cmem.Mem
	if st := e.cb.Receive(j.h, from, &out); !st.OK() {
		cmem.Release(e.heap, out)
		return nil, fail(backend.StatusNetwork, "receive from %d", from)
	}
	return cmem.Take(e.heap, out), nil
}

func (e *Engine) receiveAll(j *job, from []int32) ([][]byte, error) {
	var out cmem.Mems
	if st := e.cb.ReceiveAll(j.h, from, &out); !st.OK() {
		cmem.ReleaseSet(e.heap, out)
		return nil, fail(backend.StatusNetwork, "receive from %v", from)
	}
	msgs := cmem.TakeSet(e.heap, out)
	if len(msgs) != len(from) {
		return nil, fail(backend.StatusNetwork, "received %d of %d messages", len(msgs), len(from))
	}
	return msgs, nil
}

// sendEach sends msgs[p] to every peer p concurrently.
func (e *Engine) sendEach(j *job, msgs [][]byte) error {
	var g errgroup.Group
	for _, p := range j.peers() {
		g.Go(func() error { return e.send(j, p, msgs[p]) })
	}
	return g.Wait()
}

// gather reads one message from every peer. The result is indexed by party;
// the caller's own slot is nil. Two-party sessions use Receive, larger ones
// ReceiveAll.
func (e *Engine) gather(j *job) ([][]byte, error) {
	out := make([][]byte, j.n)
	peers := j.peers()
	if len(peers) == 1 {
		msg, err := e.receive(j, peers[0])
		if err != nil {
			return nil, err
		}
		out[peers[0]] = msg
		return out, nil
	}
	msgs, err := e.receiveAll(j, peers)
	if err != nil {
		return nil, err
	}
	for i, p := range peers {
		out[p] = msgs[i]
	}
	return out, nil
}

// exchange broadcasts msg and collects every peer's message of the same
// round. The caller's own slot holds msg.
func (e *Engine) exchange(j *job, msg []byte) ([][]byte, error) {
	msgs := make([][]byte, j.n)
	for i := range msgs {
		msgs[i] = msg
	}
	return e.exchangeEach(j, msgs)
}

// exchangeEach sends msgs[p] to each peer p and collects one message from
// each. The caller's own slot holds msgs[self].
func (e *Engine) exchangeEach(j *job, msgs [][]byte) ([][]byte, error) {
	if err := e.sendEach(j, msgs); err != nil {
		return nil, err
	}
	in, err := e.gather(j)
	if err != nil {
		return nil, err
	}
	in[j.self] = msgs[j.self]
	return in, nil
}

var encMode, _ = cbor.CoreDetEncOptions().EncMode()

func encode(v any) []byte {
	b, err := encMode.Marshal(v)
	if err != nil {
		// Only fixed message structs are encoded.
		panic(err)
	}
	return b
}

func decode(from int32, b []byte, v any) error {
	if err := cbor.Unmarshal(b, v); err != nil {
		return fail(backend.StatusVerify, "malformed message from %d: %v", from, err)
	}
	return nil
}

// exchangeDecoded is exchange followed by decoding every message into a T.
func exchangeDecoded[T any](e *Engine, j *job, mine T) ([]T, error) {
	raw, err := e.exchange(j, encode(mine))
	if err != nil {
		return nil, err
	}
	out := make([]T, j.n)
	for i, b := range raw {
		if int32(i) == j.self {
			out[i] = mine
			continue
		}
		if err := decode(int32(i), b, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
