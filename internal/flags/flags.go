// Package flags provides feature flag support. Flags are read-only after
// initialization; unknown flags are disabled.
package flags

import (
	"maps"

	"github.com/zjrosen/codexwui/internal/log"
)

const (
	// FlagPersistHistory stores finished assistant turns in SQLite.
	FlagPersistHistory = "persist-history"

	// FlagAuthWatch invalidates cached credentials when ~/.codex/auth.json changes.
	FlagAuthWatch = "auth-watch"

	// FlagLegacyEvents routes the older flat message/agent_message/reasoning events.
	FlagLegacyEvents = "legacy-events"
)

// Defaults returns the value of every known flag when config omits it.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagPersistHistory: true,
		FlagAuthWatch:      true,
		FlagLegacyEvents:   true,
	}
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from the config map layered over Defaults.
func New(configured map[string]bool) *Registry {
	flags := Defaults()
	maps.Copy(flags, configured)
	r := &Registry{flags: flags}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(flags), "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled. Unknown flags and a
// nil registry report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil || r.flags == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name, "result", false)
		return false
	}
	return value
}

// All returns a copy of all flags.
func (r *Registry) All() map[string]bool {
	if r == nil || r.flags == nil {
		return make(map[string]bool)
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}
