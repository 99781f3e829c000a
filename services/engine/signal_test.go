package engine

import (
	"errors"
	"testing"
)

func TestCombineAnd(t *testing.T) {
	got, err := Combine([][]bool{
		{true, true, false, true},
		{true, false, false, true},
		{true, true, true, false},
	})
	if err != nil {
		t.Fatalf("Combine returned error: %v", err)
	}
	want := []bool{true, false, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestCombineSingleCondition(t *testing.T) {
	got, err := Combine([][]bool{{false, true}})
	if err != nil {
		t.Fatalf("Combine returned error: %v", err)
	}
	if got[0] || !got[1] {
		t.Fatalf("unexpected signal %v", got)
	}
}

func TestCombineRejectsBadInput(t *testing.T) {
	if _, err := Combine(nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for empty list, got %v", err)
	}
	if _, err := Combine([][]bool{{true}, {true, false}}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for length mismatch, got %v", err)
	}
}
