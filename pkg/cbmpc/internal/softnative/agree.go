package softnative

import (
	"crypto/subtle"
	"encoding/binary"
	"unsafe"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
)

type agreeReveal struct {
	Value []byte `cbor:"1,keyasint"`
	Nonce []byte `cbor:"2,keyasint"`
}

func (j *job) sessionTag() []byte {
	var b [9]byte
	binary.BigEndian.PutUint32(b[0:4], j.sid)
	binary.BigEndian.PutUint32(b[4:8], uint32(j.n))
	if j.mp {
		b[8] = 1
	}
	return b[:]
}

// agreeRandom runs commit-then-reveal coin tossing and returns the XOR of
// every party's contribution, truncated to bitLen bits.
func (e *Engine) agreeRandom(j *job, bitLen int32) ([]byte, error) {
	if bitLen <= 0 || bitLen > backend.MaxAgreeBits {
		return nil, fail(backend.StatusParam, "bit length %d", bitLen)
	}
	size := (int(bitLen) + 7) / 8
	value, err := randomBytes(size)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	tag := j.sessionTag()

	commits, err := e.exchange(j, commit("agree-random", tag, j.self, value, nonce))
	if err != nil {
		return nil, err
	}
	reveals, err := exchangeDecoded(e, j, agreeReveal{Value: value, Nonce: nonce})
	if err != nil {
		return nil, err
	}

	out := make([]byte, size)
	for i, r := range reveals {
		if len(r.Value) != size {
			return nil, fail(backend.StatusVerify, "party %d contributed %d bytes", i, len(r.Value))
		}
		if subtle.ConstantTimeCompare(commit("agree-random", tag, int32(i), r.Value, r.Nonce), commits[i]) != 1 {
			return nil, fail(backend.StatusVerify, "party %d opened a different value", i)
		}
		for k := range out {
			out[k] ^= r.Value[k]
		}
	}
	if extra := size*8 - int(bitLen); extra > 0 {
		out[0] &= 0xFF >> extra
	}
	return out, nil
}

func (e *Engine) AgreeRandom2P(p unsafe.Pointer, bitLen int32, out *cmem.Mem) backend.Status {
	if out == nil {
		return backend.StatusParam
	}
	*out = cmem.Mem{}
	j, ok := e.job2p(p)
	if !ok {
		return backend.StatusInvalidState
	}
	r, err := e.agreeRandom(j, bitLen)
	if err != nil {
		return statusOf(err)
	}
	return e.export(r, out)
}

func (e *Engine) AgreeRandomMP(p unsafe.Pointer, bitLen int32, out *cmem.Mem) backend.Status {
	if out == nil {
		return backend.StatusParam
	}
	*out = cmem.Mem{}
	j, ok := e.jobMP(p)
	if !ok {
		return backend.StatusInvalidState
	}
	r, err := e.agreeRandom(j, bitLen)
	if err != nil {
		return statusOf(err)
	}
	return e.export(r, out)
}
