// Package cbmpc binds the cb-mpc engine to Go transports.
//
// A Library selects an engine: libcbmpc through cgo when the binary is built
// with the cbmpc tag, or a pure-Go semi-honest engine for development. Jobs
// bind a caller's Transport to a role; the engine exchanges protocol messages
// by calling back into that Transport through a registered handle.
//
//	lib, err := cbmpc.Open(cbmpc.Config{Engine: cbmpc.EngineAuto})
//	if err != nil {
//	    return err
//	}
//	defer lib.Close()
//
//	job, err := cbmpc.NewJob2P(lib, transport, cbmpc.RoleP1)
//	if err != nil {
//	    return err
//	}
//	defer job.Close()
//
// Protocols live in subpackages (agreerandom, ecdsa2p, ecdsamp, pve) and take
// a job as their session. Every object that wraps a native reference has a
// Close method that releases it exactly once; finalizers are only a safety
// net.
//
// Engine failures surface as *NativeError with the engine's status code.
// Transport errors abort the running protocol and are reported the same way,
// with CodeNetwork.
package cbmpc
