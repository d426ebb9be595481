package cbmpc

import (
	"context"
	"errors"
	"sync"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/softnative"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/logging"
)

// Library is an opened engine. Jobs, keys and access-structure nodes are
// created against a Library and must be closed before it.
type Library struct {
	cfg Config
	eng backend.Engine
	log logging.Logger

	mu     sync.Mutex
	closed bool
}

// Open validates cfg and selects the engine it names.
func Open(cfg Config) (*Library, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	eng, err := openEngine(cfg)
	if err != nil {
		return nil, err
	}
	return openWith(cfg, eng), nil
}

func openEngine(cfg Config) (backend.Engine, error) {
	soft := func() backend.Engine {
		var opts []softnative.Option
		if cfg.PaillierBits > 0 {
			opts = append(opts, softnative.WithPaillierBits(cfg.PaillierBits))
		}
		return softnative.New(opts...)
	}
	switch cfg.Engine {
	case EngineSoft:
		return soft(), nil
	case EngineNative:
		eng, err := backend.OpenNative()
		if err != nil {
			return nil, RemapError(err)
		}
		return eng, nil
	default:
		eng, err := backend.OpenNative()
		if errors.Is(err, backend.ErrNotBuilt) {
			return soft(), nil
		}
		if err != nil {
			return nil, RemapError(err)
		}
		return eng, nil
	}
}

func openWith(cfg Config, eng backend.Engine) *Library {
	l := &Library{cfg: cfg, eng: eng}
	l.log = cfg.logger().With("engine", eng.Name())
	l.log.Debug(context.Background(), "library opened", "version", eng.Version())
	return l
}

// Close marks the library closed. Objects created from it must already be
// closed. Calling Close twice returns ErrLibraryClosed.
func (l *Library) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLibraryClosed
	}
	l.closed = true
	l.log.Debug(context.Background(), "library closed")
	return nil
}

// Config returns the configuration the library was opened with.
func (l *Library) Config() Config { return l.cfg }

// Logger returns the library logger.
func (l *Library) Logger() logging.Logger { return l.log }

// EngineName reports the engine in use: "native" or "soft".
func (l *Library) EngineName() string { return l.eng.Name() }

// Engine returns the engine for use by protocol subpackages.
func (l *Library) Engine() (backend.Engine, error) {
	if l == nil {
		return nil, ErrLibraryClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLibraryClosed
	}
	return l.eng, nil
}

// CheckStatus converts st into an error, logging failures at Warn.
// This is exported for use by protocol subpackages.
func (l *Library) CheckStatus(ctx context.Context, op string, st backend.Status) error {
	return checkStatus(ctx, l.log, op, st)
}

func checkStatus(ctx context.Context, log logging.Logger, op string, st backend.Status) error {
	err := StatusError(op, st)
	if err != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		log.Warn(ctx, "engine call failed", "op", op, "code", int32(st), "reason", st.String())
	}
	return err
}
