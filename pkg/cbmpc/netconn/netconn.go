package netconn

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
)

// ErrClosed is returned by operations on a closed Transport.
var ErrClosed = errors.New("netconn: transport closed")

// Options bounds receives and frame sizes.
type Options struct {
	ReceiveTimeout time.Duration
	MaxFrameSize   int
}

// OptionsFrom takes the transport section of a library configuration.
func OptionsFrom(cfg cbmpc.TransportConfig) Options {
	return Options{ReceiveTimeout: cfg.ReceiveTimeout, MaxFrameSize: cfg.MaxFrameSize}
}

func (o Options) maxFrame() uint32 {
	if o.MaxFrameSize <= 0 || o.MaxFrameSize > math.MaxUint32 {
		return cbmpc.DefaultMaxFrameSize
	}
	return uint32(o.MaxFrameSize)
}

// Transport implements cbmpc.Transport over one connection per peer.
type Transport struct {
	self cbmpc.RoleID
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	peers map[cbmpc.RoleID]*peerConn

	closeOnce sync.Once
	listener  net.Listener
}

type peerConn struct {
	id    cbmpc.RoleID
	conn  net.Conn
	limit uint32

	sendMu sync.Mutex
	recv   chan []byte

	errOnce sync.Once
	err     error
	done    chan struct{}
}

// New returns a Transport for party self over conns, keyed by peer role.
func New(self cbmpc.RoleID, conns map[cbmpc.RoleID]net.Conn, opts Options) (*Transport, error) {
	if len(conns) == 0 {
		return nil, errors.New("netconn: no peers")
	}
	if _, ok := conns[self]; ok {
		return nil, fmt.Errorf("netconn: connection to self %d", self)
	}
	t := newTransport(self, opts)
	for id, c := range conns {
		if c == nil {
			t.Close()
			return nil, fmt.Errorf("netconn: nil connection for peer %d", id)
		}
		t.peers[id] = newPeerConn(id, c, opts.maxFrame())
	}
	return t, nil
}

func newTransport(self cbmpc.RoleID, opts Options) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		self:   self,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[cbmpc.RoleID]*peerConn),
	}
}

func (t *Transport) Send(ctx context.Context, to cbmpc.RoleID, msg []byte) error {
	if to == t.self {
		return errors.New("netconn: send to self")
	}
	pc, err := t.peer(to)
	if err != nil {
		return err
	}
	if uint64(len(msg)) > uint64(pc.limit) {
		return fmt.Errorf("netconn: message of %d bytes exceeds frame limit %d", len(msg), pc.limit)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return pc.write(msg)
}

func (t *Transport) Receive(ctx context.Context, from cbmpc.RoleID) ([]byte, error) {
	if from == t.self {
		return nil, errors.New("netconn: receive from self")
	}
	pc, err := t.peer(from)
	if err != nil {
		return nil, err
	}
	return t.recvOne(ctx, pc)
}

// ReceiveAll reads one frame from each sender, in the order of from.
func (t *Transport) ReceiveAll(ctx context.Context, from []cbmpc.RoleID) ([][]byte, error) {
	pcs := make([]*peerConn, len(from))
	seen := make(map[cbmpc.RoleID]struct{}, len(from))
	for i, role := range from {
		if role == t.self {
			return nil, errors.New("netconn: receive_all includes self")
		}
		if _, dup := seen[role]; dup {
			return nil, fmt.Errorf("netconn: duplicate sender %d", role)
		}
		seen[role] = struct{}{}
		pc, err := t.peer(role)
		if err != nil {
			return nil, err
		}
		pcs[i] = pc
	}
	out := make([][]byte, len(from))
	for i, pc := range pcs {
		msg, err := t.recvOne(ctx, pc)
		if err != nil {
			return nil, err
		}
		out[i] = msg
	}
	return out, nil
}

// Close shuts every connection down and unblocks pending receives.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		if t.listener != nil {
			_ = t.listener.Close()
		}
		t.mu.Lock()
		for _, pc := range t.peers {
			pc.fail(ErrClosed)
		}
		t.mu.Unlock()
	})
	return nil
}

func (t *Transport) peer(id cbmpc.RoleID) (*peerConn, error) {
	t.mu.RLock()
	pc, ok := t.peers[id]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("netconn: unknown peer %d", id)
	}
	return pc, nil
}

func (t *Transport) recvOne(ctx context.Context, pc *peerConn) ([]byte, error) {
	var timeout <-chan time.Time
	if t.opts.ReceiveTimeout > 0 {
		timer := time.NewTimer(t.opts.ReceiveTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case msg := <-pc.recv:
		return msg, nil
	default:
	}
	select {
	case msg := <-pc.recv:
		return msg, nil
	case <-pc.done:
		return nil, pc.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.ctx.Done():
		return nil, ErrClosed
	case <-timeout:
		return nil, fmt.Errorf("netconn: no message from peer %d within %s", pc.id, t.opts.ReceiveTimeout)
	}
}

func newPeerConn(id cbmpc.RoleID, conn net.Conn, limit uint32) *peerConn {
	pc := &peerConn{
		id:    id,
		conn:  conn,
		limit: limit,
		recv:  make(chan []byte, 16),
		done:  make(chan struct{}),
	}
	go pc.reader()
	return pc
}

func (pc *peerConn) write(msg []byte) error {
	pc.sendMu.Lock()
	defer pc.sendMu.Unlock()
	select {
	case <-pc.done:
		return pc.err
	default:
	}
	if err := writeFrame(pc.conn, msg); err != nil {
		pc.fail(err)
		return err
	}
	return nil
}

func (pc *peerConn) reader() {
	for {
		msg, err := readFrame(pc.conn, pc.limit)
		if err != nil {
			pc.fail(err)
			return
		}
		select {
		case pc.recv <- msg:
		case <-pc.done:
			return
		}
	}
}

// fail records the first error, closes the connection and wakes receivers.
// Frames already queued stay readable.
func (pc *peerConn) fail(err error) {
	pc.errOnce.Do(func() {
		if err == nil {
			err = io.EOF
		}
		pc.err = fmt.Errorf("netconn: peer %d: %w", pc.id, err)
		_ = pc.conn.Close()
		close(pc.done)
	})
}

func writeFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("netconn: frame too large (%d bytes)", len(payload))
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader, limit uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > limit {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit %d", n, limit)
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

var _ cbmpc.Transport = (*Transport)(nil)
