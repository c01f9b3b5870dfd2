// Package privacy holds the privacy vocabulary shared by the graph builder and
// the engine protocol: the privacy definition an analysis is checked against,
// per-release privacy usage, accuracy targets and release filter levels.
//
// Usage values are always carried as lists. A vector-valued release may spend
// a different budget on every element, and Broadcast expands a single
// epsilon/delta pair across a release of any width.
package privacy
