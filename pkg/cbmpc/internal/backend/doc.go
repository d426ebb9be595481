// Package backend defines the calling convention between the Go session layer
// and an MPC engine, and the trampolines the engine uses to reach Go
// transports.
//
// An Engine exposes the native library's surface: opaque references for jobs,
// keys and access-structure nodes, integer status codes, and boundary buffers
// from package cmem. Two engines implement it: the cgo binding to libcbmpc,
// compiled only with the cbmpc build tag, and the pure-Go engine in package
// softnative.
//
// Engines never see Go transports directly. They carry a registry.Handle and
// call back through a Callbacks table, normally built by a Bridge.
package backend
