package storageerrors

import (
	"sync"

	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/zap"
)

// Registry selects the Handler for a provider. Providers without a
// dedicated handler get a BaseHandler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *logging.Service
}

func NewRegistry(logger *logging.Service) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}

	r.Register(NewGoogleDriveHandler(logger))
	r.Register(NewDropboxHandler(logger))
	r.Register(NewS3Handler(logger))
	r.Register(NewBaseHandler(ProviderOneDrive, logger))
	r.Register(NewBaseHandler(ProviderAzureBlob, logger))

	return r
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Provider()] = h
}

func (r *Registry) For(provider string) Handler {
	r.mu.RLock()
	h, ok := r.handlers[provider]
	r.mu.RUnlock()
	if ok {
		return h
	}

	if r.logger != nil {
		r.logger.Debug("no error handler registered for provider, using defaults",
			zap.String("provider", provider))
	}
	return NewBaseHandler(provider, r.logger)
}

// Classify dispatches to the handler for ctx.Provider.
func (r *Registry) Classify(err error, ctx Context) ErrorType {
	return r.For(ctx.Provider).Classify(err, ctx)
}

func (r *Registry) UserMessage(t ErrorType, ctx Context) string {
	return r.For(ctx.Provider).UserMessage(t, ctx)
}

func (r *Registry) RecommendedActions(t ErrorType, ctx Context) []string {
	return r.For(ctx.Provider).RecommendedActions(t, ctx)
}
