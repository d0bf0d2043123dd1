// Package testdoubles provides spies for the observability interfaces and the event plumbing.
//
// All spies are safe for concurrent use, since the engine emits from background goroutines
// when events are published or materialized views are refreshed.
package testdoubles
