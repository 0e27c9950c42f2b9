package mcp

import "testing"

func TestClampLimit_UsesDefaultWhenZeroOrNegative(t *testing.T) {
	if got := clampLimit(0, 10, 1, 50); got != 10 {
		t.Fatalf("expected default 10, got %d", got)
	}
	if got := clampLimit(-5, 10, 1, 50); got != 10 {
		t.Fatalf("expected default 10, got %d", got)
	}
}

func TestClampLimit_ClampsToBounds(t *testing.T) {
	if got := clampLimit(1000, 10, 1, 50); got != 50 {
		t.Fatalf("expected clamp to 50, got %d", got)
	}
	if got := clampLimit(5, 10, 1, 50); got != 5 {
		t.Fatalf("expected pass-through 5, got %d", got)
	}
}
