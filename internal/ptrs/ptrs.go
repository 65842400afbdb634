// Package ptrs provides the single generic pointer-of constructor the
// rest of the module uses for "merged as one function 'ptr' when go has
// generics" (imagvfx-coco's ptr.go predates generics and hand-rolls one
// ptrT per type; go 1.21 lets this be one function).
package ptrs

// Of returns a pointer to a copy of v, for taking the address of a const,
// literal, or otherwise non-addressable value.
func Of[T any](v T) *T {
	return &v
}
