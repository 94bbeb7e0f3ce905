// Package hash provides the salted FNV-1a hashing used to derive per-level
// probe sequences.
//
// # Salted FNV-1a (64-bit)
//
// Every probe sequence in elastigo is driven by a pair of 64-bit FNV-1a
// hashes whose offset basis is perturbed by a level-derived salt:
//
//   - Deterministic: the same (key, level) pair always yields the same output.
//   - Level-dependent: two keys that collide at one level need not collide at
//     the next, because each level folds a different salt into the basis.
//   - Cheap: a single multiply/xor per input byte, no allocation.
//
// # Usage
//
// For a double-hashing probe sequence over a sub-array:
//
//	base, stride := hash.Dual(key, level)
//	idx := (base + attempt*stride) % capacity
//
// Dual forces the stride odd so that, over a power-of-two-sized sub-array, the
// sequence (base + a*stride) mod capacity visits every slot before repeating.
// Over other sizes the period is capacity/gcd(stride, capacity).
package hash
