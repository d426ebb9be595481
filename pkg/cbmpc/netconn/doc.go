// Package netconn implements cbmpc.Transport over stream connections, one
// net.Conn per peer. Messages travel as frames: a 4-byte big-endian length
// followed by the payload.
//
// New wraps connections the caller already holds (net.Pipe in tests, or
// connections secured elsewhere). Establish builds a full mesh over TCP: each
// party listens, dials every higher-indexed party, and identifies itself with
// its 4-byte role index.
//
// Every Receive is bounded by Options.ReceiveTimeout, and frames larger than
// Options.MaxFrameSize break the connection.
package netconn
