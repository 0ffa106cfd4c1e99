package providers

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"go.uber.org/zap"
)

// Registry resolves provider names to refresh clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	logger  *logging.Service
}

func NewRegistry(logger *logging.Service) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		logger:  logger,
	}
}

// NewRegistryFromConfig registers the builtin providers, overlaid with the
// providers file when one is configured. Providers without a client id are
// left unregistered.
func NewRegistryFromConfig(cfg *config.Config, logger *logging.Service) (*Registry, error) {
	defs := BuiltinDefinitions(cfg.Providers)
	if cfg.Providers.File != "" {
		fileDefs, err := LoadDefinitions(cfg.Providers.File)
		if err != nil {
			return nil, err
		}
		defs = Merge(defs, fileDefs)
	}

	// One client per registry; its timeout bounds every token endpoint call.
	httpClient := &http.Client{Timeout: cfg.Providers.Timeout}

	r := NewRegistry(logger)
	for _, def := range defs {
		if !def.SupportsRefresh {
			r.Register(def.Name, unsupportedClient{name: def.Name})
			continue
		}
		if def.ClientID == "" {
			if logger != nil {
				logger.Debug("provider has no client id, skipping", zap.String("provider", def.Name))
			}
			continue
		}
		pacer := NewPacer(cfg.Providers.RequestsPerSecond, cfg.Providers.Burst,
			WithMaxWait(cfg.Refresh.RetryBudget))
		r.Register(def.Name, NewOAuthClient(def, WithPacer(pacer), WithHTTPClient(httpClient)))
	}

	if logger != nil {
		logger.Info("provider registry initialised", zap.Strings("providers", r.Names()))
	}
	return r, nil
}

func (r *Registry) Register(name string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = c
}

// Client returns the refresh client for name, or a PROVIDER_NOT_CONFIGURED
// error.
func (r *Registry) Client(name string) (Client, error) {
	r.mu.RLock()
	c, ok := r.clients[name]
	r.mu.RUnlock()
	if !ok {
		return nil, storageerrors.New(storageerrors.ProviderNotConfigured, name,
			fmt.Errorf("%w: %s", storageerrors.ErrProviderNotConfigured, name))
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
