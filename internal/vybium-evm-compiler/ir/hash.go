package ir

import "hash/fnv"

// StructuralHash returns a canonicalized hash of the module's shape, used
// by the optimizer (§9 "Optimizer fixed point") to detect when repeated
// passes have stopped changing the IR. It is built over the same
// deterministic traversal Print uses (sorted block ids, insertion-order
// functions/phi-sources), not over Go's non-deterministic map iteration.
func StructuralHash(m *Module) uint64 {
	h := fnv.New64a()
	h.Write([]byte(Print(m)))
	return h.Sum64()
}
