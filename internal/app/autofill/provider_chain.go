package autofill

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// CandidateWithSource represents a candidate with its source provider info.
type CandidateWithSource struct {
	Candidate   Candidate
	DisplayName string
}

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// ProviderChain collects candidates from multiple providers in order.
type ProviderChain struct {
	providers []ProviderWithMetadata
}

// NewProviderChain creates a new provider chain.
func NewProviderChain(providers []ProviderWithMetadata) *ProviderChain {
	return &ProviderChain{
		providers: providers,
	}
}

// GetCandidates retrieves candidates from all providers.
// All providers are tried to maximize the candidate pool for filtering.
func (c *ProviderChain) GetCandidates(ctx context.Context, count int, seeds []Seed, exclude map[string]bool) ([]CandidateWithSource, error) {
	var all []CandidateWithSource
	current := make(map[string]bool, len(exclude))
	for k, v := range exclude {
		current[k] = v
	}

	for i, pm := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		zlog.Debug().Msgf("autofill: trying provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		candidates, err := pm.Provider.GetCandidates(ctx, count, seeds, current)
		if err != nil {
			zlog.Warn().Msgf("autofill: provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}

		added := 0
		for _, cand := range candidates {
			if current[cand.Key()] {
				continue
			}
			all = append(all, CandidateWithSource{
				Candidate:   cand,
				DisplayName: pm.DisplayName,
			})
			// Update exclude set to avoid duplicates from next provider
			current[cand.Key()] = true
			added++
		}

		if added == 0 {
			zlog.Debug().Msgf("autofill: provider returned no candidates: provider=%s", pm.DisplayName)
			continue
		}
		zlog.Info().Msgf("autofill: provider returned candidates: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, added, len(all))
	}

	if len(all) == 0 {
		return nil, errors.New("all providers failed to return candidates")
	}

	return all, nil
}

// Len returns the number of providers.
func (c *ProviderChain) Len() int {
	return len(c.providers)
}
