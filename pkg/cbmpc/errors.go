package cbmpc

import (
	"errors"
	"fmt"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/registry"
)

var (
	ErrNilTransport   = errors.New("transport must not be nil")
	ErrBadPeers       = errors.New("invalid peers/self configuration")
	ErrJobClosed      = errors.New("job has been closed")
	ErrNotParticipant = errors.New("caller is neither sender nor receiver")
	ErrLibraryClosed  = errors.New("library has been closed")
	ErrNotBuilt       = errors.New("native cb-mpc bindings are not built into this binary")
	ErrUnknownHandle  = errors.New("transport handle is not registered")
	ErrInvalidBits    = errors.New("bit length out of range")
)

// Status codes carried by NativeError.Code.
const (
	CodeNetwork      int32 = int32(backend.StatusNetwork)
	CodeParam        int32 = int32(backend.StatusParam)
	CodeMemory       int32 = int32(backend.StatusMemory)
	CodeInvalidState int32 = int32(backend.StatusInvalidState)
	CodeVerify       int32 = int32(backend.StatusVerify)
	CodeUnsupported  int32 = int32(backend.StatusUnsupported)
	CodeInsufficient int32 = int32(backend.StatusInsufficient)
)

// NativeError reports a non-zero status returned by the engine.
type NativeError struct {
	Op   string
	Code int32
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s failed with error code %d", e.Op, e.Code)
}

// Reason returns the engine's description of Code.
func (e *NativeError) Reason() string { return backend.Status(e.Code).String() }

// StatusError returns nil when st is success and a *NativeError naming op
// otherwise. It is exported for the protocol subpackages.
func StatusError(op string, st backend.Status) error {
	if st.OK() {
		return nil
	}
	return &NativeError{Op: op, Code: int32(st)}
}

// HasCode reports whether err wraps a NativeError with the given code.
func HasCode(err error, code int32) bool {
	var ne *NativeError
	return errors.As(err, &ne) && ne.Code == code
}

// RemapError converts internal layer errors to public API errors.
// This is exported for use by protocol subpackages.
func RemapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.ErrNotBuilt):
		return ErrNotBuilt
	case errors.Is(err, registry.ErrUnknownHandle):
		return fmt.Errorf("%w: %v", ErrUnknownHandle, err)
	}
	return err
}
