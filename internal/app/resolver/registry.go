package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/osa030/rhythmbot/internal/infra/config"
)

// Registry holds the configured resolvers in priority order.
type Registry struct {
	resolvers []Resolver
}

// NewRegistry creates a registry trying resolvers in the given order.
func NewRegistry(resolvers ...Resolver) *Registry {
	return &Registry{resolvers: resolvers}
}

// Build creates the resolvers listed in cfgs, in order.
func Build(cfgs []config.ResolverConfig, deps Deps) (*Registry, error) {
	r := NewRegistry()
	seen := make(map[string]bool, len(cfgs))
	for i, rc := range cfgs {
		factory, ok := registry[rc.Type]
		if !ok {
			return nil, errors.Newf("resolvers[%d]: unknown resolver type %q", i, rc.Type)
		}
		if seen[rc.Type] {
			return nil, errors.Newf("resolvers[%d]: duplicate resolver type %q", i, rc.Type)
		}
		seen[rc.Type] = true

		res := factory(deps)
		if err := res.Configure(rc.Settings); err != nil {
			return nil, errors.Wrapf(err, "resolvers[%d] (%s)", i, rc.Type)
		}
		r.resolvers = append(r.resolvers, res)
		zlog.Info().Msgf("resolver: registered type=%s", rc.Type)
	}
	return r, nil
}

// Match returns the first resolver supporting reference.
func (r *Registry) Match(reference string) (Resolver, bool) {
	for _, res := range r.resolvers {
		if res.Supports(reference) {
			return res, true
		}
	}
	return nil, false
}

// Lookup returns the resolver with the given type name.
func (r *Registry) Lookup(name string) (Resolver, bool) {
	for _, res := range r.resolvers {
		if res.Name() == name {
			return res, true
		}
	}
	return nil, false
}

// Resolve resolves reference with the first supporting resolver.
// Errors that are not already classified, other than cancellation, become
// resolution errors.
func (r *Registry) Resolve(ctx context.Context, reference string, emit EmitFunc) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return media.NewUserInputError("Nothing to play")
	}

	res, ok := r.Match(reference)
	if !ok {
		return media.NewResolutionError(reference, errors.New("no resolver supports this reference"))
	}

	zlog.Debug().Msgf("resolver: resolving reference=%q resolver=%s", reference, res.Name())
	err := res.Resolve(ctx, reference, emit)
	if err == nil || media.Classify(err) != nil || errors.Is(err, context.Canceled) {
		return err
	}
	return media.NewResolutionError(reference, err)
}

// Names returns the configured resolver types in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.resolvers))
	for i, res := range r.resolvers {
		names[i] = res.Name()
	}
	return names
}
