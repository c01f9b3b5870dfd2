// Package testutil provides deterministic engine and id fixtures for tests.
//
// FakeEngine implements protocol.Engine with scripted answers. Serve it
// through NewClient so tests exercise the real wire path: envelopes,
// frames, value encoding and engine error translation.
package testutil
