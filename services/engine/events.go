package engine

type EventType int

const (
	EventOpen EventType = iota
	EventClose
	EventSuppressed
	EventForcedLiquidation
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventSuppressed:
		return "suppressed"
	case EventForcedLiquidation:
		return "forced_liquidation"
	}
	return "unknown"
}

// Event is indexed by bar, before any execution lag is applied, except forced
// liquidation which is recorded at the last bar.
type Event struct {
	Index   int
	Type    EventType
	Symbol  string
	Details map[string]string
}

type EventLog struct {
	Events []Event
}

// Append is a no-op on a nil log so callers can pass nil when they do not need events.
func (l *EventLog) Append(e Event) {
	if l == nil {
		return
	}
	l.Events = append(l.Events, e)
}

func (l *EventLog) Count(t EventType) int {
	if l == nil {
		return 0
	}
	n := 0
	for _, e := range l.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}
