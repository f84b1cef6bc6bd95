package notification

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// LogSink writes every notice to the log.
type LogSink struct{}

// Send logs the notice.
func (LogSink) Send(_ context.Context, n Notice) error {
	ev := zlog.Info()
	if n.Kind == KindError {
		ev = zlog.Warn()
	}
	if n.Entry != nil {
		ev.Msgf("notice: kind=%s channel=%s title=%q body=%q entry=%s", n.Kind, n.Channel, n.Title, n.Body, n.Entry.ID)
		return nil
	}
	ev.Msgf("notice: kind=%s channel=%s title=%q body=%q", n.Kind, n.Channel, n.Title, n.Body)
	return nil
}
