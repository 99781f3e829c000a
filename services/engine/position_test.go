package engine

import (
	"errors"
	"math/rand"
	"testing"
)

func TestStep(t *testing.T) {
	cases := []struct {
		name        string
		state       PositionState
		entry, exit bool
		wantState   PositionState
		wantDelta   int
	}{
		{"flat idle", StateFlat, false, false, StateFlat, 0},
		{"flat both", StateFlat, true, true, StateFlat, 0},
		{"flat entry", StateFlat, true, false, StateOpen, 1},
		{"flat exit", StateFlat, false, true, StateFlat, 0},
		{"open entry", StateOpen, true, false, StateOpen, 0},
		{"open exit", StateOpen, false, true, StateFlat, -1},
		{"open both", StateOpen, true, true, StateOpen, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state, delta := Step(tc.state, tc.entry, tc.exit)
			if state != tc.wantState || delta != tc.wantDelta {
				t.Fatalf("Step = (%v, %d), want (%v, %d)", state, delta, tc.wantState, tc.wantDelta)
			}
		})
	}
}

func TestPlanPositionsIgnoresPyramiding(t *testing.T) {
	entry := []bool{true, true, false, true, false, false}
	exit := []bool{false, false, true, false, true, true}
	var log EventLog
	plan, err := PlanPositions(entry, exit, &log)
	if err != nil {
		t.Fatalf("PlanPositions returned error: %v", err)
	}
	want := []int{1, 0, -1, 1, -1, 0}
	for i := range want {
		if plan.Deltas[i] != want[i] {
			t.Fatalf("delta %d: got %d want %d", i, plan.Deltas[i], want[i])
		}
	}
	if len(plan.Events) != 4 || plan.Events[2] != 3 {
		t.Fatalf("unexpected events %v", plan.Events)
	}
	if log.Count(EventOpen) != 2 || log.Count(EventClose) != 2 {
		t.Fatalf("unexpected event log %+v", log.Events)
	}
}

func TestPlanPositionsSuppressesSimultaneousSignals(t *testing.T) {
	entry := []bool{false, true, true, false}
	exit := []bool{false, false, true, true}
	var log EventLog
	plan, err := PlanPositions(entry, exit, &log)
	if err != nil {
		t.Fatalf("PlanPositions returned error: %v", err)
	}
	if plan.Deltas[2] != 0 {
		t.Fatalf("expected no transition on ambiguous bar, got %d", plan.Deltas[2])
	}
	if plan.Deltas[3] != -1 {
		t.Fatalf("expected close on bar 3, got %d", plan.Deltas[3])
	}
	if log.Count(EventSuppressed) != 1 {
		t.Fatalf("expected one suppressed event, got %d", log.Count(EventSuppressed))
	}
}

func TestBuildPositionsLagAndSizing(t *testing.T) {
	plan := PositionPlan{Deltas: []int{0, 1, 0, -1, 1, 0, -1, 0}, Events: []int{1, 3, 4, 6}}
	sizes := []float64{1000, 1000, 3000, 3000}

	got, err := BuildPositions(plan, Short, sizes, 2, nil)
	if err != nil {
		t.Fatalf("BuildPositions returned error: %v", err)
	}
	want := []float64{0, 0, 0, -1000, -1000, 0, -3000, -3000}
	// last bar is forced flat
	want[7] = 0
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bar %d: got %v want %v (all %v)", i, got[i], want[i], got)
		}
	}
}

func TestBuildPositionsForcedLiquidation(t *testing.T) {
	plan := PositionPlan{Deltas: []int{0, 1, 0, 0}, Events: []int{1}}
	var log EventLog
	got, err := BuildPositions(plan, Long, []float64{1000}, 0, &log)
	if err != nil {
		t.Fatalf("BuildPositions returned error: %v", err)
	}
	if got[2] != 1000 || got[3] != 0 {
		t.Fatalf("unexpected positions %v", got)
	}
	if log.Count(EventForcedLiquidation) != 1 {
		t.Fatalf("expected forced liquidation event")
	}
}

func TestBuildPositionsErrors(t *testing.T) {
	plan := PositionPlan{Deltas: []int{1, -1}, Events: []int{0, 1}}
	if _, err := BuildPositions(plan, Long, []float64{1000}, 0, nil); !errors.Is(err, ErrInsufficientHedgeData) {
		t.Fatalf("expected insufficient hedge data, got %v", err)
	}
	if _, err := BuildPositions(plan, Long, []float64{1000, 1000}, -1, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for negative lag, got %v", err)
	}
}

// Every random signal pair yields at most one open run between flats, a constant sign
// while open, and a flat last bar.
func TestPositionInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 5 + rng.Intn(60)
		entry, exit := make([]bool, n), make([]bool, n)
		for i := 0; i < n; i++ {
			entry[i] = rng.Float64() < 0.3
			exit[i] = rng.Float64() < 0.3
		}
		plan, err := PlanPositions(entry, exit, nil)
		if err != nil {
			t.Fatalf("PlanPositions: %v", err)
		}
		sizes := make([]float64, len(plan.Events))
		for k := range sizes {
			sizes[k] = float64(1000 * (1 + k/2))
		}
		for _, dir := range []Direction{Long, Short} {
			lag := rng.Intn(3)
			pos, err := BuildPositions(plan, dir, sizes, lag, nil)
			if err != nil {
				t.Fatalf("BuildPositions: %v", err)
			}
			if pos[n-1] != 0 {
				t.Fatalf("trial %d: last bar not flat: %v", trial, pos)
			}
			for i := 1; i < n; i++ {
				if pos[i] != 0 && pos[i-1] != 0 && pos[i] != pos[i-1] {
					t.Fatalf("trial %d: position changed while open at %d: %v", trial, i, pos)
				}
				if pos[i]*dir.Sign() < 0 {
					t.Fatalf("trial %d: wrong sign at %d: %v", trial, i, pos)
				}
			}
		}
	}
}
