// Package cmem implements the buffer contract used at every crossing of the
// native engine boundary.
//
// A single buffer crosses as a (pointer, length) pair, Mem, mirroring the
// native cmem_t. An ordered set of buffers crosses as one flattened byte
// region plus a parallel array of int32 lengths, Mems, mirroring cmems_t.
// The empty buffer is always (nil, 0).
//
// # Ownership
//
// View and ViewSet lend Go memory to the engine for the duration of a call;
// nothing is allocated on the boundary side and nothing must be freed.
//
// Buffers produced by the engine belong to the caller once the call returns.
// Take and TakeSet copy them into fresh Go slices, wipe the boundary bytes and
// release them through the engine's Allocator. Each produced buffer must be
// taken or released exactly once.
//
// Export and ExportSet go the other way: they allocate boundary memory
// through the Allocator and hand ownership to the engine, which is how
// transport callbacks return received messages.
//
// # Contract violations
//
// A negative count or length, a missing lengths array, or a flattened region
// that is absent while the lengths add up to a non-zero total cannot be
// produced by a correct engine. These are fatal: the package panics with an
// error wrapping ErrContractViolation instead of returning it.
package cmem
