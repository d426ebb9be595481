package cbmpc

import "github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"

var (
	Version     = "v0.0.0-in-progress"
	UpstreamSHA = "unknown"
	UpstreamDir = "cb-mpc"
)

// WrapperVersion returns the semantic version populated at build time via
// ldflags. In development it defaults to v0.0.0-in-progress.
func WrapperVersion() string {
	return Version
}

// UpstreamVersion returns the version reported by the linked libcbmpc, or the
// pinned upstream commit SHA when the native engine is not built in.
func UpstreamVersion() string {
	if v := backend.NativeVersion(); v != "" {
		return v
	}
	return UpstreamSHA
}
