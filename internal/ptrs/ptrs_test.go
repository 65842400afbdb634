package ptrs

import "testing"

func TestOfReturnsAddressableCopy(t *testing.T) {
	p := Of(42)
	if p == nil || *p != 42 {
		t.Fatalf("expected a pointer to 42, got %v", p)
	}
}
