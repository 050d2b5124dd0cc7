package obslog

import (
	"testing"

	"gotest.tools/v3/assert"
)

type recordingObserver struct {
	events []Event
}

func (r *recordingObserver) OnEvent(e Event) { r.events = append(r.events, e) }

func TestMultiFansOutToEveryObserver(t *testing.T) {
	a := &recordingObserver{}
	b := &recordingObserver{}
	m := Multi{a, b}

	m.OnEvent(Event{Type: EventTickStart, Tick: 1})

	assert.Equal(t, len(a.events), 1)
	assert.Equal(t, len(b.events), 1)
	assert.Equal(t, a.events[0].Type, EventTickStart)
}

func TestMultiPreservesRegistrationOrder(t *testing.T) {
	var order []string
	m := Multi{
		recorderFunc(func(e Event) { order = append(order, "first") }),
		recorderFunc(func(e Event) { order = append(order, "second") }),
	}
	m.OnEvent(Event{Type: EventTickEnd})
	assert.DeepEqual(t, order, []string{"first", "second"})
}

type recorderFunc func(Event)

func (f recorderFunc) OnEvent(e Event) { f(e) }
