//go:build !cgo || !cbmpc

package backend

// OpenNative reports ErrNotBuilt: this binary was compiled without cgo or
// without the cbmpc build tag.
func OpenNative() (Engine, error) { return nil, ErrNotBuilt }

// NativeVersion returns the empty string when the native bindings are absent.
func NativeVersion() string { return "" }
