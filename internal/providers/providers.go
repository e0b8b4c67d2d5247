// Package providers holds the static registry of supported integrations.
// Each provider contributes an engine capability record (auth scheme,
// timeout, credential-error classifier, optional refresh grant), its OAuth
// scopes and a layer listing used by the link flow.
package providers

import (
	"context"
	"sort"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

// Secrets supplies client credentials resolved at startup.
type Secrets interface {
	Get(name string) string
}

// Provider is one registered integration.
type Provider struct {
	Engine *engine.Provider
	Scopes []string

	// LoadLayers lists the provider's calendar-like containers normalized
	// to model.Layer. Static providers answer without an outbound call.
	LoadLayers func(ctx context.Context, rc *engine.RequestContext, src *model.Source) ([]model.Layer, error)

	// PostLink runs provider-specific work right after a source links.
	// Nil for every provider but google (colors side-load).
	PostLink func(ctx context.Context, rc *engine.RequestContext, src *model.Source) error
}

// Name returns the provider's registry name.
func (p *Provider) Name() string { return p.Engine.Name }

// Registry maps provider names to their records. Built once at startup
// from an explicit list; a missing provider is a startup-time concern, not
// a runtime lookup surprise.
type Registry struct {
	byName map[string]*Provider
}

// NewRegistry builds the registry of all supported providers.
func NewRegistry(secrets Secrets) *Registry {
	r := &Registry{byName: make(map[string]*Provider)}
	for _, p := range []*Provider{
		newGoogle(secrets),
		newFacebook(secrets),
		newOutlook(secrets),
		newTrello(secrets),
		newTodoist(),
		newWunderlist(secrets),
		newMeetup(secrets),
		newEventbrite(),
		newGithub(),
	} {
		r.byName[p.Engine.Name] = p
	}
	return r
}

// Get looks a provider up by name.
func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// ForSource resolves the provider owning a source id.
func (r *Registry) ForSource(sourceID string) (*Provider, error) {
	name, _, ok := model.SplitSourceID(sourceID)
	if !ok {
		return nil, model.NewSourceNotFoundError(sourceID)
	}
	p, found := r.byName[name]
	if !found {
		return nil, model.NewSourceNotFoundError(sourceID)
	}
	return p, nil
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
