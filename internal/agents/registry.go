package agents

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/log"
)

// Factory constructs an agent from its config and the shared retrieval
// backend. External plugins must export a symbol named NewAgent with this
// signature.
type Factory func(cfg *configstore.AgentConfig, retrieval Retrieval, logger log.Logger) (Agent, error)

// PluginSymbol is the exported constructor external agent plugins must
// provide.
const PluginSymbol = "NewAgent"

// Registry maps agent class names to constructors and loads external agent
// plugins from shared-object files. Safe for concurrent use.
type Registry struct {
	logger log.Logger

	mu        sync.RWMutex
	factories map[string]Factory
	plugins   map[string]Factory // keyed by module path; loaded at most once
}

// NewRegistry builds a registry with every built-in class pre-registered.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	r := &Registry{
		logger:    logger.With("component", "registry"),
		factories: make(map[string]Factory),
		plugins:   make(map[string]Factory),
	}

	r.Register(ClassGeneric, NewGenericRAGAgent)
	r.Register(ClassPlants, NewPlantsAgent)
	r.Register(ClassPathology, NewPathologyAgent)
	r.Register(ClassEcoAgriculture, NewEcoAgricultureAgent)
	return r
}

// Register maps a class name to a constructor, replacing any previous
// registration.
func (r *Registry) Register(className string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[className] = f
}

// Classes returns the registered class names.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// LoadExternal opens a Go plugin at modulePath and returns its NewAgent
// constructor. Plugins are cached by path: the runtime cannot unload a
// plugin, so a path is opened at most once per process.
func (r *Registry) LoadExternal(modulePath string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.plugins[modulePath]
	r.mu.RUnlock()
	if ok {
		return f, nil
	}

	p, err := plugin.Open(modulePath)
	if err != nil {
		return nil, fmt.Errorf("opening agent plugin %q: %w", modulePath, err)
	}

	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("agent plugin %q: %w", modulePath, err)
	}

	ctor, ok := sym.(func(*configstore.AgentConfig, Retrieval, log.Logger) (Agent, error))
	if !ok {
		return nil, fmt.Errorf("agent plugin %q: symbol %s has wrong type %T", modulePath, PluginSymbol, sym)
	}

	f = Factory(ctor)
	r.mu.Lock()
	r.plugins[modulePath] = f
	r.mu.Unlock()

	r.logger.Info("external agent plugin loaded", "path", modulePath)
	return f, nil
}

// Create instantiates an agent from its config. Resolution order:
//
//  1. module_path set: load the external plugin's constructor
//  2. class registered: use the built-in constructor
//  3. otherwise: fall back to the generic agent with a warning
//
// A failed construction returns an error; callers treat the agent as
// unavailable rather than aborting, so one bad config degrades the system
// instead of crashing it.
func (r *Registry) Create(cfg *configstore.AgentConfig, retrieval Retrieval, logger log.Logger) (agent Agent, err error) {
	// A panicking constructor must not take down the caller.
	defer func() {
		if rec := recover(); rec != nil {
			agent = nil
			err = fmt.Errorf("constructing agent %q: panic: %v", cfg.Name, rec)
		}
	}()

	var factory Factory
	switch {
	case cfg.ModulePath != "":
		factory, err = r.LoadExternal(cfg.ModulePath)
		if err != nil {
			return nil, err
		}
	default:
		r.mu.RLock()
		f, ok := r.factories[cfg.ClassName]
		r.mu.RUnlock()
		if ok {
			factory = f
		} else {
			r.logger.Warn("unknown agent class, using generic agent",
				"agent", cfg.Name, "class", cfg.ClassName)
			factory = NewGenericRAGAgent
		}
	}

	agent, err = factory(cfg, retrieval, logger)
	if err != nil {
		return nil, fmt.Errorf("constructing agent %q: %w", cfg.Name, err)
	}
	return agent, nil
}
