package providers

import (
	"log/slog"
	"sync"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry with the built-in providers,
// building it on first use. Only application wiring should call this;
// everything below the wiring layer receives a *Registry explicitly.
func Default(logger *slog.Logger) *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(logger)
		defaultRegistry.Initialize()
	})

	return defaultRegistry
}
