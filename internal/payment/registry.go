package payment

import (
	"net/http"
	"sort"

	"finna-payment/internal/config"
	"finna-payment/internal/logger"

	"go.uber.org/zap"
)

// Registry maps library sources to their payment handlers.
type Registry struct {
	handlers map[string]*Handler
}

// NewRegistry builds a handler for every configured source. Sources whose
// gateway cannot be constructed are logged and left out; their payments
// answer ErrUnknownSource.
func NewRegistry(sources map[string]config.Gateway, client *http.Client, deps Dependencies) *Registry {
	reg := &Registry{handlers: make(map[string]*Handler, len(sources))}

	for source, cfg := range sources {
		gw, err := NewGateway(source, cfg, client)
		if err != nil {
			logger.L().Error("Online payment disabled for source",
				zap.String("source", source),
				zap.Error(err),
			)
			continue
		}
		reg.handlers[source] = NewHandler(source, cfg, gw, deps)
	}

	return reg
}

func (r *Registry) Handler(source string) (*Handler, error) {
	h, ok := r.handlers[source]
	if !ok {
		return nil, ErrUnknownSource
	}
	return h, nil
}

// Sources lists the sources with online payment enabled, sorted.
func (r *Registry) Sources() []string {
	out := make([]string, 0, len(r.handlers))
	for s := range r.handlers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
