// Package types defines the public vocabulary of the carving engine: sources,
// scan results, reconstruction outputs, and the option structs that steer a
// scan or rebuild pass.
//
// This package only exposes interfaces and core value types. The engine
// itself lives in pkg/carve; keeping the vocabulary separate lets callers
// exchange results (for example, persisting a fragment pool between passes)
// without importing the machinery.
//
// Design goals:
//   - Results are small value types, safe to copy and to send across channels.
//   - Typed errors with stable categories (source/io/format/volume).
//   - Never panic on malformed input; malformation is data, not failure.
//
// This package has no dependencies beyond the standard library.
package types
