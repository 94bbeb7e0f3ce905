// Package elastigo provides an embedded elastic hash table for Go.
//
// Elastigo is an in-memory associative container built on the elastic hashing
// scheme of Farach-Colton, Krapivin, and Kuszmaul (2025): the address space is
// split into geometrically shrinking sub-arrays and inserts cascade through
// them under per-level probe budgets, giving O(1) expected amortized cost per
// operation and O(log²(1/ε)) probe lengths at load factor 1−ε — without ever
// relocating an entry once placed.
//
// # Quick Start
//
//	ht, _ := elastigo.New(10_000)
//	_ = ht.Insert([]byte("answer"), []byte("42"))
//
//	v, ok := ht.Get([]byte("answer"))
//	fmt.Println(string(v), ok)
//
//	for k, v := range ht.All() {
//	    fmt.Println(string(k), string(v))
//	}
//
// Keys and values are opaque byte strings; the table stores its own copies.
// Slices returned by Get or iteration alias internal storage and stay valid
// only until the next mutation — copy them out to keep them longer.
//
// # Sizing and Rebuilds
//
// The table doubles its capacity when the live load factor reaches the
// configured maximum (default 0.90) and compacts at constant capacity when
// tombstones from deletions reach their trigger ratio (default 0.15).
// Rebuilds move entries by reference; payload bytes are never copied.
//
// # Structure Streams
//
// A table can be written to and restored from a self-describing binary
// stream. Decoding restores the exact slot placement — no rehashing:
//
//	var buf bytes.Buffer
//	_ = ht.Save(&buf)
//	ht2, _ := elastigo.Load(&buf)
//
// # Concurrency
//
// A table is a single-owner, single-goroutine structure with no internal
// locking. Callers that share one across goroutines must serialize access
// externally.
package elastigo
