// shape.go - Batch-Dimension von Formen ersetzen
package transform

import "slices"

// ReplicateShape gibt eine Kopie von shape zurueck, deren Achse 0 gleich n ist
func ReplicateShape(shape []int32, n int32) ([]int32, error) {
	if len(shape) == 0 {
		return nil, structuralf("shape %v has no batch dimension", shape)
	}
	out := slices.Clone(shape)
	out[0] = n
	return out, nil
}

// replicateSignature ersetzt Achse 0 einer shape_signature. Eine dynamische
// Batch-Dimension (-1) bleibt erhalten.
func replicateSignature(sig []int32, n int32) []int32 {
	if len(sig) == 0 || sig[0] == -1 {
		return slices.Clone(sig)
	}
	out := slices.Clone(sig)
	out[0] = n
	return out
}
