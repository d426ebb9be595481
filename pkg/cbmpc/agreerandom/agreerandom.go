package agreerandom

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
)

// MaxBits is the largest bit length AgreeRandom and MultiAgreeRandom accept.
const MaxBits = backend.MaxAgreeBits

func checkBits(bitLen int) error {
	if bitLen <= 0 || bitLen > MaxBits {
		return fmt.Errorf("%w: %d", cbmpc.ErrInvalidBits, bitLen)
	}
	return nil
}

// AgreeRandom runs two-party random agreement (mpc_agree_random).
//
// Context behavior: ctx only tags log lines; use cbmpc.NewJob2PWithContext to
// control cancellation.
func AgreeRandom(ctx context.Context, j *cbmpc.Job2P, bitLen int) ([]byte, error) {
	if j == nil {
		return nil, errors.New("nil job")
	}
	if err := checkBits(bitLen); err != nil {
		return nil, err
	}
	ptr, err := j.Ptr()
	if err != nil {
		return nil, err
	}

	eng := j.Engine()
	var out cmem.Mem
	st := eng.AgreeRandom2P(ptr, int32(bitLen), &out)
	runtime.KeepAlive(j)
	if err := j.CheckStatus(ctx, "mpc_agree_random", st); err != nil {
		cmem.Release(eng.Allocator(), out)
		return nil, err
	}
	return cmem.Take(eng.Allocator(), out), nil
}

// MultiAgreeRandom runs N-party random agreement (mpc_multi_agree_random).
//
// Context behavior: ctx only tags log lines; use cbmpc.NewJobMPWithContext to
// control cancellation.
func MultiAgreeRandom(ctx context.Context, j *cbmpc.JobMP, bitLen int) ([]byte, error) {
	if j == nil {
		return nil, errors.New("nil job")
	}
	if err := checkBits(bitLen); err != nil {
		return nil, err
	}
	ptr, err := j.Ptr()
	if err != nil {
		return nil, err
	}

	eng := j.Engine()
	var out cmem.Mem
	st := eng.AgreeRandomMP(ptr, int32(bitLen), &out)
	runtime.KeepAlive(j)
	if err := j.CheckStatus(ctx, "mpc_multi_agree_random", st); err != nil {
		cmem.Release(eng.Allocator(), out)
		return nil, err
	}
	return cmem.Take(eng.Allocator(), out), nil
}
