package cbmpc

import "github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"

// OpenWithEngine opens a Library over eng.
func OpenWithEngine(cfg Config, eng backend.Engine) *Library { return openWith(cfg, eng) }
