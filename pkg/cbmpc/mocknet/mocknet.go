package mocknet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
)

// Net is an in-memory network. Messages are keyed by job session, ordered
// pair of parties and sequence number, so one Net carries any number of
// concurrent jobs.
type Net struct {
	mu sync.Mutex
	q  map[queueKey]chan []byte
}

func New() *Net { return &Net{q: make(map[queueKey]chan []byte)} }

type queueKey struct {
	session uint32
	from    cbmpc.RoleID
	to      cbmpc.RoleID
	seq     uint64
}

// Option configures an endpoint.
type Option func(*endpointCore)

// WithSession scopes an endpoint to a job session. Endpoints only exchange
// messages with endpoints of the same session; the default is session 0.
func WithSession(id uint32) Option {
	return func(c *endpointCore) { c.session = id }
}

type endpointCore struct {
	net     *Net
	self    cbmpc.RoleID
	session uint32

	mu        sync.Mutex
	sendSeq   map[cbmpc.RoleID]uint64
	recvSeq   map[cbmpc.RoleID]uint64
	sendLocks map[cbmpc.RoleID]*sync.Mutex
	recvLocks map[cbmpc.RoleID]*sync.Mutex
}

func newEndpointCore(n *Net, self cbmpc.RoleID, opts []Option) *endpointCore {
	c := &endpointCore{
		net:       n,
		self:      self,
		sendSeq:   make(map[cbmpc.RoleID]uint64),
		recvSeq:   make(map[cbmpc.RoleID]uint64),
		sendLocks: make(map[cbmpc.RoleID]*sync.Mutex),
		recvLocks: make(map[cbmpc.RoleID]*sync.Mutex),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *endpointCore) key(from, to cbmpc.RoleID, seq uint64) queueKey {
	return queueKey{session: c.session, from: from, to: to, seq: seq}
}

func lockFor(mu *sync.Mutex, locks map[cbmpc.RoleID]*sync.Mutex, role cbmpc.RoleID) *sync.Mutex {
	mu.Lock()
	defer mu.Unlock()
	lock := locks[role]
	if lock == nil {
		lock = &sync.Mutex{}
		locks[role] = lock
	}
	return lock
}

func (c *endpointCore) sendLock(role cbmpc.RoleID) *sync.Mutex {
	return lockFor(&c.mu, c.sendLocks, role)
}

func (c *endpointCore) recvLock(role cbmpc.RoleID) *sync.Mutex {
	return lockFor(&c.mu, c.recvLocks, role)
}

func (c *endpointCore) seq(m map[cbmpc.RoleID]uint64, role cbmpc.RoleID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return m[role]
}

func (c *endpointCore) advance(m map[cbmpc.RoleID]uint64, role cbmpc.RoleID) {
	c.mu.Lock()
	m[role]++
	c.mu.Unlock()
}

func (n *Net) slot(key queueKey) chan []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := n.q[key]
	if ch == nil {
		ch = make(chan []byte, 1)
		n.q[key] = ch
	}
	return ch
}

func (n *Net) deliver(ctx context.Context, key queueKey, payload []byte) error {
	ch := n.slot(key)
	msg := append([]byte(nil), payload...)
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Net) await(ctx context.Context, key queueKey) ([]byte, error) {
	ch := n.slot(key)
	select {
	case msg := <-ch:
		n.mu.Lock()
		delete(n.q, key)
		n.mu.Unlock()
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of messages sent but not yet received, across
// all sessions.
func (n *Net) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, ch := range n.q {
		count += len(ch)
	}
	return count
}

type endpoint struct {
	core  *endpointCore
	peers map[cbmpc.RoleID]struct{}
}

func newEndpoint(n *Net, self cbmpc.RoleID, peers []cbmpc.RoleID, opts []Option) *endpoint {
	peerSet := make(map[cbmpc.RoleID]struct{}, len(peers))
	for _, p := range peers {
		if p == self {
			continue
		}
		peerSet[p] = struct{}{}
	}
	return &endpoint{core: newEndpointCore(n, self, opts), peers: peerSet}
}

func (e *endpoint) checkPeer(role cbmpc.RoleID) error {
	if role == e.core.self {
		return errors.New("mocknet: message to or from self")
	}
	if _, ok := e.peers[role]; !ok {
		return fmt.Errorf("mocknet: unknown peer %d", role)
	}
	return nil
}

func (e *endpoint) Send(ctx context.Context, to cbmpc.RoleID, msg []byte) error {
	if err := e.checkPeer(to); err != nil {
		return err
	}
	lock := e.core.sendLock(to)
	lock.Lock()
	defer lock.Unlock()

	seq := e.core.seq(e.core.sendSeq, to)
	if err := e.core.net.deliver(ctx, e.core.key(e.core.self, to, seq), msg); err != nil {
		return err
	}
	e.core.advance(e.core.sendSeq, to)
	return nil
}

func (e *endpoint) Receive(ctx context.Context, from cbmpc.RoleID) ([]byte, error) {
	if err := e.checkPeer(from); err != nil {
		return nil, err
	}
	lock := e.core.recvLock(from)
	lock.Lock()
	defer lock.Unlock()
	return e.next(ctx, from)
}

func (e *endpoint) next(ctx context.Context, from cbmpc.RoleID) ([]byte, error) {
	seq := e.core.seq(e.core.recvSeq, from)
	msg, err := e.core.net.await(ctx, e.core.key(from, e.core.self, seq))
	if err != nil {
		return nil, err
	}
	e.core.advance(e.core.recvSeq, from)
	return msg, nil
}

// ReceiveAll returns one message per sender, in the order of from.
func (e *endpoint) ReceiveAll(ctx context.Context, from []cbmpc.RoleID) ([][]byte, error) {
	seen := make(map[cbmpc.RoleID]struct{}, len(from))
	for _, role := range from {
		if err := e.checkPeer(role); err != nil {
			return nil, err
		}
		if _, dup := seen[role]; dup {
			return nil, fmt.Errorf("mocknet: duplicate sender %d", role)
		}
		seen[role] = struct{}{}
	}

	locks := make([]*sync.Mutex, 0, len(from))
	defer func() {
		for _, lock := range locks {
			lock.Unlock()
		}
	}()
	for _, role := range from {
		lock := e.core.recvLock(role)
		lock.Lock()
		locks = append(locks, lock)
	}

	out := make([][]byte, len(from))
	for i, role := range from {
		msg, err := e.next(ctx, role)
		if err != nil {
			return nil, err
		}
		out[i] = msg
	}
	return out, nil
}

type (
	Endpoint2P struct{ *endpoint }
	EndpointMP struct{ *endpoint }
)

func (n *Net) Ep2P(self, peer cbmpc.RoleID, opts ...Option) *Endpoint2P {
	return &Endpoint2P{endpoint: newEndpoint(n, self, []cbmpc.RoleID{peer}, opts)}
}

func (n *Net) EpMP(self cbmpc.RoleID, peers []cbmpc.RoleID, opts ...Option) *EndpointMP {
	return &EndpointMP{endpoint: newEndpoint(n, self, peers, opts)}
}

// Mesh returns one endpoint per party of an n-party job, each connected to
// all the others.
func (n *Net) Mesh(parties int, opts ...Option) []*EndpointMP {
	all := make([]cbmpc.RoleID, parties)
	for i := range all {
		all[i] = cbmpc.RoleID(i)
	}
	eps := make([]*EndpointMP, parties)
	for i := range eps {
		eps[i] = n.EpMP(cbmpc.RoleID(i), all, opts...)
	}
	return eps
}

var (
	_ cbmpc.Transport = (*Endpoint2P)(nil)
	_ cbmpc.Transport = (*EndpointMP)(nil)
)
