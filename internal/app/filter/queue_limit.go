package filter

import (
	"context"
	"fmt"

	zlog "github.com/rs/zerolog/log"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
type QueueLimitConfig struct {
	MaxLength int `yaml:"max_length" mapstructure:"max_length" default:"100" validate:"gte=1"`
}

// QueueLimitFilter rejects requests while the queue is full.
type QueueLimitFilter struct {
	queue  QueueReader
	config *QueueLimitConfig
}

// NewQueueLimitFilter creates a new queue limit filter.
func NewQueueLimitFilter(queue QueueReader) *QueueLimitFilter {
	return &QueueLimitFilter{queue: queue}
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit"
}

func (f *QueueLimitFilter) Description() string {
	return "Rejects requests once the queue holds max_length entries"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{"queue_full"}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("queue limit filter config: %+v", config)
	return nil
}

func (f *QueueLimitFilter) AppliesTo(origin Origin) bool {
	return origin == OriginUser
}

func (f *QueueLimitFilter) Check(ctx context.Context, req Request) Result {
	if f.config == nil || f.queue == nil {
		return Accept()
	}
	if len(f.queue.Entries()) >= f.config.MaxLength {
		return Reject("queue_full", fmt.Sprintf("The queue is full (%d entries)", f.config.MaxLength))
	}
	return Accept()
}

func init() {
	Register("queue_limit", func(q QueueReader) Filter {
		return NewQueueLimitFilter(q)
	})
}
