package netconn

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
)

const redialDelay = 100 * time.Millisecond

// Establish connects party self to every other party of addrs over TCP and
// returns the resulting Transport. ln must listen on addrs[self]; it is closed
// with the Transport. Parties dial the higher-indexed parties and accept the
// lower-indexed ones. ctx bounds the whole setup.
func Establish(ctx context.Context, self cbmpc.RoleID, ln net.Listener, addrs []string, opts Options) (*Transport, error) {
	if len(addrs) < 2 {
		return nil, fmt.Errorf("netconn: at least two parties required (got %d)", len(addrs))
	}
	if int(self) >= len(addrs) {
		return nil, fmt.Errorf("netconn: self %d out of range [0,%d)", self, len(addrs))
	}
	if ln == nil {
		return nil, errors.New("netconn: nil listener")
	}

	t := newTransport(self, opts)
	t.listener = ln

	// Dialers stop when ctx ends or t is closed.
	dialCtx, stopDial := context.WithCancel(ctx)
	defer stopDial()
	stopOnClose := context.AfterFunc(t.ctx, stopDial)
	defer stopOnClose()
	var dialers sync.WaitGroup
	fail := func(err error) (*Transport, error) {
		t.Close()
		dialers.Wait()
		return nil, err
	}

	expected := len(addrs) - 1
	ready := make(chan struct{})
	errCh := make(chan error, len(addrs))
	var once sync.Once

	register := func(id cbmpc.RoleID, conn net.Conn) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.ctx.Err() != nil {
			return ErrClosed
		}
		if _, exists := t.peers[id]; exists {
			return fmt.Errorf("netconn: duplicate connection from peer %d", id)
		}
		t.peers[id] = newPeerConn(id, conn, opts.maxFrame())
		if len(t.peers) == expected {
			once.Do(func() { close(ready) })
		}
		return nil
	}

	go func() {
		for accepted := 0; accepted < int(self); accepted++ {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-t.ctx.Done():
				default:
					errCh <- fmt.Errorf("netconn: accept: %w", err)
				}
				return
			}
			peerID, err := readPeerID(conn)
			if err != nil || peerID >= uint32(self) {
				_ = conn.Close()
				errCh <- fmt.Errorf("netconn: bad peer hello (id %d): %v", peerID, err)
				return
			}
			if err := register(cbmpc.RoleID(peerID), conn); err != nil {
				_ = conn.Close()
				errCh <- err
				return
			}
		}
	}()

	for peer := int(self) + 1; peer < len(addrs); peer++ {
		dialers.Add(1)
		go func() {
			defer dialers.Done()
			conn, err := dial(dialCtx, addrs[peer])
			if err != nil {
				errCh <- err
				return
			}
			if err := writePeerID(conn, uint32(self)); err != nil {
				_ = conn.Close()
				errCh <- fmt.Errorf("netconn: hello to peer %d: %w", peer, err)
				return
			}
			if err := register(cbmpc.RoleID(peer), conn); err != nil {
				_ = conn.Close()
				errCh <- err
			}
		}()
	}

	select {
	case <-ready:
		return t, nil
	case err := <-errCh:
		return fail(err)
	case <-ctx.Done():
		return fail(fmt.Errorf("netconn: waiting for peers: %w", ctx.Err()))
	}
}

// dial retries until addr accepts or ctx ends.
func dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("netconn: dial %s: %w", addr, ctx.Err())
		case <-time.After(redialDelay):
		}
	}
}

func writePeerID(w io.Writer, id uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], id)
	_, err := w.Write(buf[:])
	return err
}

func readPeerID(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
