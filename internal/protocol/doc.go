// Package protocol is the wire contract between the graph builder and an
// evaluation engine.
//
// Every exchange is one request frame followed by one response frame. A frame
// is a 4-byte big-endian payload length followed by the payload, a JSON
// envelope:
//
//	request:  {"method":"compute_release","body":{...}}
//	response: {"data":...} | {"error":{"message":"..."}}
//
// The protocol carries the whole graph and the whole known-value set on every
// call; it never sends diffs. It has no cancellation token, so timeouts are
// enforced by the transport (see StreamTransport).
//
// Client drives an engine through any Transport. NewDispatcher and Serve give
// the engine side of the same contract, so an engine written in Go can be
// served in-process (Loopback) or as a subprocess speaking frames on its
// standard streams.
package protocol
