package mocknet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
)

func TestNetEp2PSequenceAndPairing(t *testing.T) {
	net := New()

	p1 := net.Ep2P(cbmpc.RoleID(cbmpc.RoleP1), cbmpc.RoleID(cbmpc.RoleP2))
	p2 := net.Ep2P(cbmpc.RoleID(cbmpc.RoleP2), cbmpc.RoleID(cbmpc.RoleP1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	const rounds = 5
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := p1.Send(ctx, cbmpc.RoleID(cbmpc.RoleP2), []byte{byte(i)}); err != nil {
				t.Errorf("p1 send %d: %v", i, err)
				return
			}
			got, err := p1.Receive(ctx, cbmpc.RoleID(cbmpc.RoleP2))
			if err != nil {
				t.Errorf("p1 receive %d: %v", i, err)
				return
			}
			if len(got) != 1 || got[0] != byte(i+1) {
				t.Errorf("p1 receive %d got %v", i, got)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			got, err := p2.Receive(ctx, cbmpc.RoleID(cbmpc.RoleP1))
			if err != nil {
				t.Errorf("p2 receive %d: %v", i, err)
				return
			}
			if len(got) != 1 || got[0] != byte(i) {
				t.Errorf("p2 receive %d got %v", i, got)
				return
			}
			if err := p2.Send(ctx, cbmpc.RoleID(cbmpc.RoleP1), []byte{byte(i + 1)}); err != nil {
				t.Errorf("p2 send %d: %v", i, err)
				return
			}
		}
	}()

	wg.Wait()
}

func TestFIFOPerDirection(t *testing.T) {
	net := New()
	a := net.Ep2P(0, 1)
	b := net.Ep2P(1, 0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Send(ctx, 1, []byte{byte(i)}))
	}
	require.Equal(t, 10, net.Pending())
	for i := 0; i < 10; i++ {
		got, err := b.Receive(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i)}, got)
	}
	require.Zero(t, net.Pending())
}

func TestSendCopiesPayload(t *testing.T) {
	net := New()
	a := net.Ep2P(0, 1)
	b := net.Ep2P(1, 0)
	ctx := context.Background()

	msg := []byte("abc")
	require.NoError(t, a.Send(ctx, 1, msg))
	msg[0] = 'X'
	got, err := b.Receive(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestReceiveAllAlignedToRequest(t *testing.T) {
	net := New()
	eps := net.Mesh(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 1; i < 4; i++ {
		require.NoError(t, eps[i].Send(ctx, 0, []byte{byte(10 * i)}))
	}
	batch, err := eps[0].ReceiveAll(ctx, []cbmpc.RoleID{3, 1, 2})
	require.NoError(t, err)
	require.Equal(t, [][]byte{{30}, {10}, {20}}, batch)

	batch, err = eps[0].ReceiveAll(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestNetEpMPSynchronisation(t *testing.T) {
	net := New()
	eps := net.Mesh(3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i, ep := range eps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var others []cbmpc.RoleID
			for peer := range eps {
				if peer == i {
					continue
				}
				others = append(others, cbmpc.RoleID(peer))
				if err := ep.Send(ctx, cbmpc.RoleID(peer), []byte{byte(i)}); err != nil {
					t.Errorf("send %d->%d: %v", i, peer, err)
					return
				}
			}
			batch, err := ep.ReceiveAll(ctx, others)
			if err != nil {
				t.Errorf("receiveAll %d: %v", i, err)
				return
			}
			for k, peer := range others {
				if len(batch[k]) != 1 || batch[k][0] != byte(peer) {
					t.Errorf("receiveAll %d got %v from %d", i, batch[k], peer)
				}
			}
		}()
	}
	wg.Wait()
}

func TestSessionsDoNotMix(t *testing.T) {
	net := New()
	a1 := net.Ep2P(0, 1, WithSession(1))
	b1 := net.Ep2P(1, 0, WithSession(1))
	a2 := net.Ep2P(0, 1, WithSession(2))
	b2 := net.Ep2P(1, 0, WithSession(2))
	ctx := context.Background()

	require.NoError(t, a2.Send(ctx, 1, []byte("two")))
	require.NoError(t, a1.Send(ctx, 1, []byte("one")))

	got, err := b1.Receive(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)
	got, err = b2.Receive(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)
}

func TestReceiveHonoursContext(t *testing.T) {
	net := New()
	ep := net.Ep2P(0, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ep.Receive(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReceiveErrors(t *testing.T) {
	net := New()
	ep := net.Ep2P(cbmpc.RoleID(cbmpc.RoleP1), cbmpc.RoleID(cbmpc.RoleP2))
	ctx := context.Background()

	require.Error(t, ep.Send(ctx, cbmpc.RoleID(cbmpc.RoleP1), nil))
	_, err := ep.Receive(ctx, cbmpc.RoleID(cbmpc.RoleP1))
	require.Error(t, err)
	require.Error(t, ep.Send(ctx, 7, nil))

	mp := net.EpMP(0, []cbmpc.RoleID{1, 2})
	_, err = mp.ReceiveAll(ctx, []cbmpc.RoleID{0, 1})
	require.Error(t, err)
	_, err = mp.ReceiveAll(ctx, []cbmpc.RoleID{1, 1})
	require.Error(t, err)
}

func TestRunCancelsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), 3, func(ctx context.Context, self cbmpc.RoleID, tr cbmpc.Transport) error {
		if self == 2 {
			return boom
		}
		_, err := tr.Receive(ctx, 2)
		return err
	})
	require.ErrorIs(t, err, boom)
}

func TestRun2P(t *testing.T) {
	err := Run2P(context.Background(), func(ctx context.Context, role cbmpc.Role, tr cbmpc.Transport) error {
		if role == cbmpc.RoleP1 {
			return tr.Send(ctx, cbmpc.RoleID(cbmpc.RoleP2), []byte("hi"))
		}
		got, err := tr.Receive(ctx, cbmpc.RoleID(cbmpc.RoleP1))
		if err != nil {
			return err
		}
		if string(got) != "hi" {
			return errors.New("unexpected payload")
		}
		return nil
	})
	require.NoError(t, err)
}
