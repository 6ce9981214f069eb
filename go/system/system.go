// Package system is the event bus shared by emulators and plugins.
package system

import (
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/models"
)

// System delivers events synchronously to listeners in registration order.
type System struct {
	Log       zerolog.Logger
	listeners []models.EventListener
}

func NewSystem(log zerolog.Logger) *System {
	return &System{Log: log}
}

// RegisterEventListener adds l unless it is already registered.
func (s *System) RegisterEventListener(l models.EventListener) {
	for _, v := range s.listeners {
		if v == l {
			return
		}
	}
	s.listeners = append(s.listeners, l)
}

func (s *System) UnregisterEventListener(l models.EventListener) {
	for i, v := range s.listeners {
		if v == l {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *System) Listeners() int {
	return len(s.listeners)
}

func (s *System) PostEvent(evt *models.Event) {
	if evt.ID == "" {
		evt.ID = xid.New().String()
	}
	s.Log.Debug().Str("id", evt.ID).Str("source", evt.Source).Strs("tags", evt.Tags).Msg("event")
	// listeners may unregister themselves while handling
	for _, l := range append([]models.EventListener(nil), s.listeners...) {
		l.ProcessEvent(evt)
	}
}
