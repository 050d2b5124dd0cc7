package obslog

import "time"

// EventType identifies a tick-runtime lifecycle phase.
type EventType string

const (
	EventTickStart        EventType = "tick_start"
	EventAPIPhase         EventType = "api_phase"
	EventProcedurePhase   EventType = "procedure_phase"
	EventPersistencePhase EventType = "persistence_phase"
	EventTickEnd          EventType = "tick_end"
)

// Event is a single lifecycle notification raised by the runtime.
type Event struct {
	Type      EventType
	Tick      uint64
	Timestamp time.Time
	Data      any
}

// Observer receives runtime lifecycle events. Implementations must not
// block the tick loop; slow observers should buffer internally.
type Observer interface {
	OnEvent(Event)
}

// Multi fans one event out to several observers in registration order.
type Multi []Observer

func (m Multi) OnEvent(e Event) {
	for _, o := range m {
		o.OnEvent(e)
	}
}
