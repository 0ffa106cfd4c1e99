package storageerrors

import (
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/zap"
)

// Handler interprets errors for one provider.
type Handler interface {
	Provider() string
	Classify(err error, ctx Context) ErrorType
	UserMessage(t ErrorType, ctx Context) string
	RecommendedActions(t ErrorType, ctx Context) []string
}

// BaseHandler runs the provider matchers followed by the shared ones and
// falls back to the default messages. Provider handlers hold one and
// override only what they need.
type BaseHandler struct {
	provider string
	matchers []Matcher
	messages map[ErrorType]string
	logger   *logging.Service
}

func NewBaseHandler(provider string, logger *logging.Service, matchers ...Matcher) *BaseHandler {
	chain := make([]Matcher, 0, len(matchers)+5)
	chain = append(chain, MatchClassified)
	chain = append(chain, matchers...)
	chain = append(chain, sharedMatchers()...)

	return &BaseHandler{
		provider: provider,
		matchers: chain,
		messages: make(map[ErrorType]string),
		logger:   logger,
	}
}

// WithMessage overrides the user message for t.
func (h *BaseHandler) WithMessage(t ErrorType, msg string) *BaseHandler {
	h.messages[t] = msg
	return h
}

func (h *BaseHandler) Provider() string {
	return h.provider
}

func (h *BaseHandler) Classify(err error, ctx Context) ErrorType {
	if err == nil {
		return ""
	}

	t := Chain(err, h.matchers...)

	if h.logger != nil {
		h.logger.Debug("classified provider error",
			zap.String("provider", h.provider),
			zap.String("operation", ctx.Operation),
			zap.String("error_type", string(t)),
			zap.Error(err))
	}

	return t
}

func (h *BaseHandler) UserMessage(t ErrorType, ctx Context) string {
	if msg, ok := h.messages[t]; ok {
		return msg
	}
	if ctx.Provider == "" {
		ctx.Provider = h.provider
	}
	return DefaultMessage(t, ctx)
}

func (h *BaseHandler) RecommendedActions(t ErrorType, ctx Context) []string {
	if ctx.Provider == "" {
		ctx.Provider = h.provider
	}
	return DefaultActions(t, ctx)
}
