package ingestion

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rpattn/carbonsync/internal/domain"
	"github.com/rpattn/carbonsync/internal/httpclient"

	"go.uber.org/zap"
)

// Deps carries the shared collaborators a connector needs.
type Deps struct {
	Client *httpclient.Client
	Logger *zap.Logger
}

// Factory builds a connector for one data source.
type Factory func(source domain.DataSource, deps Deps) (Connector, error)

// Registry maps configured data-source names to connector factories.
// Lookups are exact-match only: data-source names are administrator
// configuration, not user input.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a data-source name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("connector %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Lookup returns the factory for a data-source name. Unknown names fail with
// an error listing everything that is registered.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no connector registered for data source %q (registered: %s)",
			name, strings.Join(r.Names(), ", "))
	}
	return factory, nil
}

// Names returns the registered data-source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with the three production connectors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Register cannot fail on an empty registry with distinct names.
	_ = r.Register(EPASourceName, NewEPAConnector)
	_ = r.Register(DEFRASourceName, NewDEFRAConnector)
	_ = r.Register(EXIOBASESourceName, NewEXIOBASEConnector)
	return r
}
