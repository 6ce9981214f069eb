// Package target keeps the registry of target backends.
package target

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/models"
)

type Factory func(cfg *models.Config, log zerolog.Logger) (models.Target, error)

var factories = make(map[string]Factory)

// Register is called from backend init functions.
func Register(name string, f Factory) {
	if _, ok := factories[name]; ok {
		panic("target registered twice: " + name)
	}
	factories[name] = f
}

func Names() []string {
	var names []string
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the target named by cfg.Target.
func New(cfg *models.Config, log zerolog.Logger) (models.Target, error) {
	f, ok := factories[cfg.Target]
	if !ok {
		return nil, errors.Errorf("unknown target %q (have %v)", cfg.Target, Names())
	}
	t, err := f(cfg, log)
	return t, errors.Wrapf(err, "%s target", cfg.Target)
}
