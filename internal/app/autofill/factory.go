package autofill

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/infra/config"
)

// Deps are the backends providers may use.
type Deps struct {
	Sampler  Sampler // Optional, used for Spotify playlists
	Expander Expander
}

// NewProviderChainFromConfig creates a provider chain from configuration.
func NewProviderChainFromConfig(cfg *config.Config, deps Deps) (*ProviderChain, error) {
	if len(cfg.Autofill.Providers) == 0 {
		return nil, errors.New("no autofill providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Autofill.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("autofill: creating provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "playlist":
			provider, err = NewPlaylistProvider(deps, cfg.Autofill.CandidateCount, pcfg.Settings)

		case "lastfm":
			provider, err = NewLastFmProvider(cfg.Autofill.SeedCount, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("autofill: registered provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewProviderChain(providers), nil
}
