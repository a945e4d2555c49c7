package reflex

import (
	"github.com/google/uuid"

	"github.com/Thunderblok/thunderline-sub016/internal/bus"
)

// #region dispatch

// eventFrom extracts the reflex event from a bus message and assigns an
// ID when the producer left it empty. Non-event payloads are skipped.
func eventFrom(msg bus.Message) (Event, bool) {
	ev, ok := msg.Payload.(Event)
	if !ok {
		return Event{}, false
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	return ev, true
}

// #endregion dispatch
