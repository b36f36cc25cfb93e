// Package download fills the image cache from catalog records.
//
// The Orchestrator runs up to a configured number of concurrent downloads on
// a worker pool, skipping records the cache already satisfies and coalescing
// records that share an image URL into a single fetch. Individual failures
// never abort a run; they are collected into a bounded Summary so a source
// meltdown cannot exhaust memory.
package download
