// Package index implements a hierarchical navigable small world (HNSW)
// graph over unit vectors, ranked by inner product.
//
// Vectors are inserted one at a time under a caller-chosen int64 ID; the
// build pipeline assigns dense IDs 0..n-1 so each match maps straight to a
// metadata row. The graph serializes to a single gob file written
// atomically, so a crash mid-save never leaves a truncated index behind.
package index
