// Package internalcheck holds source policy tests for the bridge packages.
//
// The tests load every package under pkg/cbmpc with golang.org/x/tools and
// walk their syntax trees. They enforce that:
//   - only internal/backend imports "C";
//   - no format string uses %x, which is how secrets end up in logs;
//   - byte slices and arrays are never compared with == or !=.
//
// The package has no exported API.
package internalcheck
