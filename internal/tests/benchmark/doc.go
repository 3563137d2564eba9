// Package benchmark provides performance benchmarks for the session core.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Compare the memory and Badger backends only:
//
//	go test -bench='Session.*/badger' -benchmem ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
