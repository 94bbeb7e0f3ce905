// Package table implements the elastic hashing container: an open-addressed
// hash table whose address space is split into a sequence of geometrically
// shrinking sub-arrays.
//
// Inserts cascade through the sub-arrays in order, each level granting a probe
// budget derived from its effective fill. Fuller levels get larger but still
// bounded budgets, and later, sparser levels absorb keys that find no free slot
// within an earlier level's budget, which bounds the expected probe
// length at O(log²(1/ε)) for load factor 1−ε without ever relocating an entry
// that has already been placed (Farach-Colton, Krapivin, Kuszmaul 2025).
//
// The table is a single-owner, single-goroutine structure. Callers that share
// a Table across goroutines must serialize access externally.
package table
