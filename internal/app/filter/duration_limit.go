package filter

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// DurationLimitConfig represents the configuration for DurationLimitFilter.
type DurationLimitConfig struct {
	MinMinutes float64 `yaml:"min_minutes" mapstructure:"min_minutes" validate:"gte=0"`
	MaxMinutes float64 `yaml:"max_minutes" mapstructure:"max_minutes" default:"15" validate:"gte=0"`
}

// DurationLimitFilter checks if entry duration is within allowed limits.
// Entries of unknown length (live streams, sources without metadata) are accepted.
type DurationLimitFilter struct {
	config *DurationLimitConfig
}

// NewDurationLimitFilter creates a new duration limit filter.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit"
}

func (f *DurationLimitFilter) Description() string {
	return "Checks if entry duration is within allowed limits"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{"duration_limit_exceeded"}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}

	// Custom validation: min_minutes cannot be greater than max_minutes
	if config.MaxMinutes > 0 && config.MinMinutes > config.MaxMinutes {
		return errors.New("min_minutes cannot be greater than max_minutes")
	}
	f.config = &config
	zlog.Info().Msgf("duration limit filter config: %+v", config)
	return nil
}

func (f *DurationLimitFilter) AppliesTo(origin Origin) bool {
	// Apply to user requests only
	return origin == OriginUser
}

func (f *DurationLimitFilter) Check(ctx context.Context, req Request) Result {
	// If config is not set, accept all entries
	if f.config == nil || req.Entry == nil || req.Entry.Length <= 0 {
		return Accept()
	}

	durationMinutes := req.Entry.Length.Minutes()

	// Check minimum duration
	if durationMinutes < f.config.MinMinutes {
		return Reject("duration_limit_exceeded",
			fmt.Sprintf("\"%s\" is shorter than %g minutes", req.Entry.DisplayName, f.config.MinMinutes))
	}

	// Check maximum duration
	if f.config.MaxMinutes > 0 && durationMinutes > f.config.MaxMinutes {
		return Reject("duration_limit_exceeded",
			fmt.Sprintf("\"%s\" is longer than %g minutes", req.Entry.DisplayName, f.config.MaxMinutes))
	}

	return Accept()
}

func init() {
	Register("duration_limit", func(QueueReader) Filter {
		return &DurationLimitFilter{}
	})
}
