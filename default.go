package framepipe

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/machinefabric/framepipe-go/internal/logging"
	"github.com/machinefabric/framepipe-go/stream"
)

// Process-default registry used by WriteMessage and ReadMessage.
// Initialized lazily on first access and never closed.
var (
	defaultRegistry     *stream.Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-default registry
func Default() *stream.Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = stream.NewRegistry(stream.WithLogger(defaultLogger()))
	})
	return defaultRegistry
}

// ResetDefault closes the default registry's handles and forgets it (for testing only)
func ResetDefault() {
	if defaultRegistry != nil {
		_ = defaultRegistry.Close()
	}
	defaultRegistry = nil
	defaultRegistryOnce = sync.Once{}
}

func defaultLogger() zerolog.Logger {
	return logging.Stderr("framepipe")
}
