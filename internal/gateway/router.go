package gateway

import (
	"sync"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
)

type Routing map[model.Method]string

// DefaultRouting is used for every method the platform configuration leaves
// out.
var DefaultRouting = Routing{
	model.MethodPix:    "efi",
	model.MethodCard:   "pagarme",
	model.MethodBoleto: "asaas",
}

func (r Routing) ProviderFor(method model.Method) string {
	if id, ok := r[method]; ok && id != "" {
		return id
	}
	return DefaultRouting[method]
}

type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRouter(providers ...Provider) *Router {
	r := &Router{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

func (r *Router) Select(method model.Method, routing Routing) (Adapter, error) {
	id := routing.ProviderFor(method)
	if id == "" {
		return nil, errs.NewConfigurationError("no provider configured for %s", method)
	}

	r.mu.RLock()
	p, ok := r.providers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.NewConfigurationError("provider %q for %s is not registered", id, method)
	}
	if !p.Supports(method) {
		return nil, errs.NewConfigurationError("provider %q does not support %s", id, method)
	}
	return p, nil
}

func (r *Router) Source(provider string) (EventSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[provider]
	if !ok {
		return nil, errs.ErrUnknownProvider
	}
	return p, nil
}

func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}
