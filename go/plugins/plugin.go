// Package plugins defines the lifecycle shared by analysis plugins.
package plugins

import (
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/models"
)

type Options struct {
	Verbose bool
	Log     zerolog.Logger
}

// A Plugin registers its event listeners on Start and removes them on Stop.
type Plugin interface {
	Init(opts Options) error
	Start() error
	Stop() error
}

// Bus is the part of the system event bus plugins use.
type Bus interface {
	RegisterEventListener(l models.EventListener)
	UnregisterEventListener(l models.EventListener)
}
