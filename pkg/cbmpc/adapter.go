package cbmpc

import (
	"context"
	"fmt"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/logging"
)

// transportAdapter binds a public Transport to the int32 peer indices used at
// the engine boundary. It is what the registry stores for a job.
type transportAdapter struct {
	inner Transport
	ctx   context.Context
	log   logging.Logger
}

func toRole(i int32) (RoleID, error) {
	if i < 0 {
		return 0, fmt.Errorf("%w: negative peer index %d", ErrBadPeers, i)
	}
	return RoleID(i), nil
}

func (a *transportAdapter) Send(to int32, msg []byte) error {
	r, err := toRole(to)
	if err == nil {
		err = a.inner.Send(a.ctx, r, msg)
	}
	if err != nil {
		a.log.Warn(a.ctx, "transport send failed", "to", to, "size", len(msg), "err", err)
	}
	return err
}

func (a *transportAdapter) Receive(from int32) ([]byte, error) {
	r, err := toRole(from)
	if err != nil {
		a.log.Warn(a.ctx, "transport receive failed", "from", from, "err", err)
		return nil, err
	}
	msg, err := a.inner.Receive(a.ctx, r)
	if err != nil {
		a.log.Warn(a.ctx, "transport receive failed", "from", from, "err", err)
		return nil, err
	}
	return msg, nil
}

func (a *transportAdapter) ReceiveAll(from []int32) ([][]byte, error) {
	roles := make([]RoleID, len(from))
	for i, f := range from {
		r, err := toRole(f)
		if err != nil {
			a.log.Warn(a.ctx, "transport receive_all failed", "from", from, "err", err)
			return nil, err
		}
		roles[i] = r
	}
	msgs, err := a.inner.ReceiveAll(a.ctx, roles)
	if err == nil && len(msgs) != len(roles) {
		err = fmt.Errorf("transport returned %d messages for %d senders", len(msgs), len(roles))
	}
	if err != nil {
		a.log.Warn(a.ctx, "transport receive_all failed", "from", from, "err", err)
		return nil, err
	}
	return msgs, nil
}
