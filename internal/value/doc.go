// Package value provides the self-describing value model exchanged with the
// evaluation engine.
//
// This package imports nothing internal. Every other package that carries
// released or literal data goes through it.
//
// Key design constraints:
//   - Value and Vector are sealed: only the types in this package implement them
//   - Round trip is exact: Decode(Encode(v)) equals v for every valid v
//   - NaN and Inf are not representable on the wire
//   - Conversion from native Go values is explicit (Of), never implicit
package value
