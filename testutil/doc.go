// Package testutil provides test doubles and fixtures shared by the registry's
// package tests.
//
// RecordingPublisher stands in for a NATS client when a test only needs to see
// what was published. FaultyBackend wraps any storage.Backend and injects
// errors or latency per operation. The Orders* functions return fresh schema
// documents for the orders scenario used throughout the tests.
//
// Prefer a real NATS server (natsclient.NewTestClient) for integration tests;
// these doubles are for unit tests.
package testutil
