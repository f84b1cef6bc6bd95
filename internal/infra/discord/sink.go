package discord

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/app/notification"
	"github.com/osa030/rhythmbot/internal/domain/media"
)

const (
	colorDefault = 0xa600ff
	colorInfo    = 0x0099ff
	colorError   = 0xff3300

	// maxTracked bounds the number of sent messages remembered for reactions.
	maxTracked = 256

	// reactionTimeout bounds attaching all reactions of one message.
	reactionTimeout = 30 * time.Second
)

// Messages is the part of the Discord REST API the sink uses. rest.Rest implements it.
type Messages interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
	AddReaction(channelID snowflake.ID, messageID snowflake.ID, emoji string, opts ...rest.RequestOpt) error
	RemoveUserReaction(channelID snowflake.ID, messageID snowflake.ID, emoji string, userID snowflake.ID, opts ...rest.RequestOpt) error
}

// Sink posts notices as embeds and remembers which message carried which entry.
// It implements notification.Sink.
type Sink struct {
	rest    Messages
	tracker *Tracker
	wg      sync.WaitGroup
}

// NewSink creates a sink posting through b.
func NewSink(b *Bot) *Sink {
	return newSink(b.client.Rest)
}

func newSink(m Messages) *Sink {
	return &Sink{rest: m, tracker: NewTracker(maxTracked)}
}

// Send posts n to its channel. ctx bounds the post only; the reaction
// affordances are attached afterwards on their own goroutine.
func (s *Sink) Send(ctx context.Context, n notification.Notice) error {
	if n.Channel == "" {
		return nil
	}
	channelID, err := ParseID(n.Channel)
	if err != nil {
		return err
	}

	msg, err := s.rest.CreateMessage(channelID, discord.NewMessageCreate().
		WithEmbeds(buildEmbed(n)), rest.WithCtx(ctx))
	if err != nil {
		return errors.Wrapf(err, "failed to send message to channel %s", channelID)
	}
	s.tracker.Track(msg.ID, n.Entry)

	if len(n.Reactions) > 0 {
		s.wg.Add(1)
		go s.react(channelID, msg.ID, n.Reactions)
	}
	return nil
}

// react adds emojis to a message in order.
func (s *Sink) react(channelID, messageID snowflake.ID, emojis []string) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
	defer cancel()

	for _, emoji := range emojis {
		if err := s.rest.AddReaction(channelID, messageID, emoji, rest.WithCtx(ctx)); err != nil {
			zlog.Warn().Msgf("discord: failed to add reaction: message=%s emoji=%s err=%v", messageID, emoji, err)
		}
	}
}

// Wait blocks until pending reactions are attached.
func (s *Sink) Wait() {
	s.wg.Wait()
}

// Lookup returns the entry behind a message sent by this sink. The second
// result is false for messages the sink did not send or has forgotten.
func (s *Sink) Lookup(messageID string) (*media.Entry, bool) {
	id, err := snowflake.Parse(messageID)
	if err != nil {
		return nil, false
	}
	return s.tracker.Lookup(id)
}

// RemoveReaction removes the reaction of userID from a message.
func (s *Sink) RemoveReaction(_ context.Context, channelID, messageID, emoji, userID string) error {
	ch, err := ParseID(channelID)
	if err != nil {
		return err
	}
	msg, err := ParseID(messageID)
	if err != nil {
		return err
	}
	user, err := ParseID(userID)
	if err != nil {
		return err
	}
	if err := s.rest.RemoveUserReaction(ch, msg, emoji, user); err != nil {
		return errors.Wrap(err, "failed to remove reaction")
	}
	return nil
}

// buildEmbed renders a notice.
func buildEmbed(n notification.Notice) discord.Embed {
	eb := discord.NewEmbedBuilder().
		SetTitle(n.Title).
		SetDescription(n.Body)

	switch n.Kind {
	case notification.KindError:
		eb.SetColor(colorError)
	case notification.KindInfo:
		eb.SetColor(colorInfo)
	default:
		eb.SetColor(colorDefault)
	}

	if n.Entry != nil && isWebLink(n.Entry.Reference) {
		eb.SetURL(n.Entry.Reference)
	}
	for _, f := range n.Fields {
		eb.AddField(f.Name, f.Value, f.Inline)
	}
	return eb.Build()
}

func isWebLink(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// Tracker remembers the entries behind recently sent messages. The oldest
// message is forgotten once the capacity is reached.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	order    []snowflake.ID
	entries  map[snowflake.ID]*media.Entry
}

// NewTracker creates a tracker holding up to capacity messages.
func NewTracker(capacity int) *Tracker {
	return &Tracker{
		capacity: capacity,
		entries:  make(map[snowflake.ID]*media.Entry),
	}
}

// Track records a sent message. e may be nil.
func (t *Tracker) Track(id snowflake.ID, e *media.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; !ok {
		t.order = append(t.order, id)
	}
	t.entries[id] = e
	for len(t.order) > t.capacity {
		delete(t.entries, t.order[0])
		t.order = t.order[1:]
	}
}

// Lookup returns the entry of a tracked message.
func (t *Tracker) Lookup(id snowflake.ID) (*media.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e, ok
}
