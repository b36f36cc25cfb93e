// Package builder runs the embedding pipeline end to end: partition cached
// records, decode and embed them under bounded concurrency, accumulate
// vectors by record position, and assemble the searchable artifact set.
//
// # Phases
//
// A build moves through strict phases with a full barrier between them:
//
//  1. Partition — every record is resolved against the cache and, unless
//     disabled, revalidated; missing and invalid records are counted and
//     excluded up front.
//  2. Schedule — surviving records are decoded in an ants worker pool and
//     embedded in batches by a single dispatcher goroutine (the model is
//     one critical section). Vectors land in the Accumulator by original
//     record position, so completion order never matters.
//  3. Assemble — filled vectors are compacted, norm-checked, indexed, and
//     persisted atomically together with order-aligned metadata and a
//     build manifest.
//
// Failures of individual records are counted and reported, never fatal;
// only empty inputs (no records, no valid images, no vectors) abort a run.
package builder
