// Package filter provides the filter chain for request validation.
package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/osa030/rhythmbot/internal/infra/config"
)

// Origin tells who asked for an entry.
type Origin int

const (
	OriginUser     Origin = iota // Requested through a command or reaction
	OriginAutofill               // Picked by an autofill provider
)

// Request represents an entry waiting to be enqueued.
type Request struct {
	Entry     *media.Entry
	Requester media.Requester
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duration_limit_exceeded", "duplicate_entry"
	Reason   string // Shown to the requester
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code and user facing reason.
func Reject(code, reason string) Result {
	return Result{Accepted: false, Code: code, Reason: reason}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to requests of the given origin.
	AppliesTo(origin Origin) bool
	// Check performs the filter check.
	Check(ctx context.Context, req Request) Result
}

// QueueReader gives filters a read-only view of the queue.
type QueueReader interface {
	Entries() []*media.Entry
}

// registry holds registered filter factories.
var registry = make(map[string]func(QueueReader) Filter)

// Register registers a filter factory.
func Register(name string, factory func(QueueReader) Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func(QueueReader) Filter {
	return registry
}

// Build creates a chain of the enabled filters, ordered by name.
func Build(cfgs map[string]config.FilterConfig, q QueueReader) (*Chain, error) {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	chain := NewChain()
	for _, name := range names {
		fc := cfgs[name]
		if !fc.Enabled {
			continue
		}
		factory, ok := registry[name]
		if !ok {
			return nil, errors.Newf("filter %s: unknown filter", name)
		}
		f := factory(q)
		if err := f.ValidateConfig(fc.Settings); err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("filter: enabled name=%s", name)
	}
	return chain, nil
}

// decodeSettings decodes settings into out, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	// Decode map[string]any to struct using mapstructure
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	validate := validator.New()
	if err := validate.Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
