// Package vm implements the yvm bytecode interpreter core.
//
// This package contains:
//   - the tagged Value representation and frame/call stack
//   - constant-pool reference resolution
//   - the dispatch loop and per-family instruction handlers
//   - static, special, virtual, interface and native invocation
//   - guest exception propagation through exception tables
//
// Class loading and object storage are supplied by the MethodArea and Heap
// collaborators; see packages methodarea and heap.
package vm
