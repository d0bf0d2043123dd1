// Package helper provides Given* and Fixture* helpers for tests against the storage engine.
//
// Every engine test runs on its own tenant schema created by GivenEngine, so tests
// can run in parallel against a single database without cleaning up each other's data.
package helper
