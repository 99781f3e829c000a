package engine

import "strconv"

// Direction is the side a leg trades: the buy leg goes long, the other leg sells short.
type Direction int

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) Sign() float64 { return float64(d) }

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

type PositionState int

const (
	StateFlat PositionState = iota
	StateOpen
)

// Step advances the position machine by one bar. delta is +1 when a position opens,
// -1 when it closes and 0 otherwise. A bar where entry and exit agree never transitions.
func Step(state PositionState, entry, exit bool) (PositionState, int) {
	if entry == exit {
		return state, 0
	}
	if entry && state == StateFlat {
		return StateOpen, 1
	}
	if exit && state == StateOpen {
		return StateFlat, -1
	}
	return state, 0
}

// PositionPlan is the output of the signal scan, shared by both legs.
type PositionPlan struct {
	Deltas []int // +1 open, -1 close, 0 otherwise, per bar
	Events []int // bar indices with a nonzero delta, in order
}

// PlanPositions runs the machine over the combined entry and exit signals.
func PlanPositions(entry, exit []bool, log *EventLog) (PositionPlan, error) {
	if len(entry) != len(exit) {
		return PositionPlan{}, newError(KindConfiguration, "entry signal has %d bars, exit signal %d", len(entry), len(exit))
	}
	plan := PositionPlan{Deltas: make([]int, len(entry))}
	state := StateFlat
	for i := range entry {
		if entry[i] && exit[i] {
			log.Append(Event{Index: i, Type: EventSuppressed})
		}
		var delta int
		state, delta = Step(state, entry[i], exit[i])
		if delta == 0 {
			continue
		}
		plan.Deltas[i] = delta
		plan.Events = append(plan.Events, i)
		if delta > 0 {
			log.Append(Event{Index: i, Type: EventOpen})
		} else {
			log.Append(Event{Index: i, Type: EventClose})
		}
	}
	return plan, nil
}

// SizesFor picks one leg's share counts out of the resolved multipliers.
func SizesFor(mult []Multiplier, dir Direction) []float64 {
	out := make([]float64, len(mult))
	for k, m := range mult {
		if dir == Short {
			out[k] = m.Short
		} else {
			out[k] = m.Buy
		}
	}
	return out
}

// BuildPositions turns the plan into a signed share position per bar for one leg. The
// k-th event is scaled by sizes[k], the running sum is delayed by lag bars, and whatever
// is still held on the last bar is liquidated there.
func BuildPositions(plan PositionPlan, dir Direction, sizes []float64, lag int, log *EventLog) ([]float64, error) {
	if lag < 0 {
		return nil, newError(KindConfiguration, "execution lag must be >= 0, got %d", lag)
	}
	if len(sizes) < len(plan.Events) {
		return nil, newError(KindInsufficientHedgeData, "%d multipliers for %d signal events", len(sizes), len(plan.Events))
	}
	n := len(plan.Deltas)
	held := make([]float64, n)
	var running float64
	k := 0
	for i, d := range plan.Deltas {
		if d != 0 {
			running += float64(d) * dir.Sign() * sizes[k]
			k++
		}
		held[i] = running
	}

	positions := make([]float64, n)
	for i := lag; i < n; i++ {
		positions[i] = held[i-lag]
	}
	if n > 0 && positions[n-1] != 0 {
		log.Append(Event{
			Index:   n - 1,
			Type:    EventForcedLiquidation,
			Details: map[string]string{"position": strconv.FormatFloat(positions[n-1], 'f', -1, 64), "direction": dir.String()},
		})
		positions[n-1] = 0
	}
	return positions, nil
}
