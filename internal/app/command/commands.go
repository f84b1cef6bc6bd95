package command

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/osa030/rhythmbot/internal/domain/media"
)

var pingPhrases = []string{
	"Can't stop won't stop!",
	":ping_pong: Pong Bitch!",
}

func (r *Router) registerBuiltins() {
	for _, c := range []Command{
		{Name: "play", Aliases: []string{"p"}, Usage: "<query|url>...", Description: "Add songs to the queue and start playing", Handler: r.play},
		{Name: "pause", Description: "Pause the current song", Handler: r.pause},
		{Name: "resume", Description: "Resume the paused song", Handler: r.resume},
		{Name: "skip", Aliases: []string{"next"}, Description: "Skip the current song", Handler: r.skip},
		{Name: "stop", Description: "Stop playing", Handler: r.stop},
		{Name: "remove", Aliases: []string{"rm"}, Usage: "<n>", Description: "Remove the song at position n", Handler: r.remove},
		{Name: "clear", Description: "Remove every song from the queue", Handler: r.clear},
		{Name: "move", Aliases: []string{"mv"}, Usage: "<n> <m|up|down>", Description: "Move the song at position n", Handler: r.move},
		{Name: "shuffle", Description: "Shuffle the queue", Handler: r.shuffle},
		{Name: "volume", Aliases: []string{"vol"}, Usage: "[0-100]", Description: "Show or set the volume", Handler: r.volume},
		{Name: "repeat", Description: "Toggle repeat mode", Handler: r.repeat},
		{Name: "list", Aliases: []string{"queue", "q"}, Description: "Show the queue", Handler: r.list},
		{Name: "np", Description: "Show the elapsed time of the current song", Handler: r.nowPlaying},
		{Name: "leave", Aliases: []string{"disconnect"}, Description: "Leave the voice channel", Handler: r.leave},
		{Name: "help", Description: "Show this help", Handler: r.help},
		{Name: "ping", Description: "Check that the bot is alive", Handler: r.ping},
	} {
		r.Register(c)
	}
}

func (r *Router) play(ctx context.Context, c *Context) error {
	return r.session.Request(ctx, Request{
		GuildID:    c.GuildID,
		ChannelID:  c.ChannelID,
		Requester:  c.Requester(),
		References: references(c.Args),
		Join:       true,
	})
}

// references groups play arguments: every link stands alone and each run of
// other words between links is one search query.
func references(args []string) []string {
	var refs, words []string
	flush := func() {
		if len(words) > 0 {
			refs = append(refs, strings.Join(words, " "))
			words = nil
		}
	}
	for _, arg := range args {
		if !isLink(arg) {
			words = append(words, arg)
			continue
		}
		flush()
		refs = append(refs, arg)
	}
	flush()
	return refs
}

func isLink(arg string) bool {
	if strings.HasPrefix(arg, "spotify:") {
		return true
	}
	u, err := url.Parse(arg)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (r *Router) pause(_ context.Context, _ *Context) error {
	r.player.Pause()
	return nil
}

func (r *Router) resume(_ context.Context, _ *Context) error {
	r.player.Play()
	return nil
}

func (r *Router) skip(_ context.Context, _ *Context) error {
	r.player.Skip(false)
	return nil
}

func (r *Router) stop(_ context.Context, _ *Context) error {
	r.player.Stop()
	return nil
}

func (r *Router) remove(_ context.Context, c *Context) error {
	if len(c.Args) != 1 {
		return usageError(c, "<n>")
	}
	n, err := position(c.Args[0])
	if err != nil {
		return err
	}
	_, err = r.player.Remove(n - 1)
	return err
}

func (r *Router) clear(_ context.Context, _ *Context) error {
	r.player.Clear()
	return nil
}

func (r *Router) shuffle(_ context.Context, _ *Context) error {
	r.player.Shuffle()
	return nil
}

func (r *Router) move(_ context.Context, c *Context) error {
	if len(c.Args) != 2 {
		return usageError(c, "<n> <m|up|down>")
	}
	n, err := position(c.Args[0])
	if err != nil {
		return err
	}
	cur := n - 1

	var target int
	switch strings.ToLower(c.Args[1]) {
	case "up":
		target = cur - 1
	case "down":
		target = cur + 1
	default:
		m, err := position(c.Args[1])
		if err != nil {
			return err
		}
		target = m - 1
	}

	if _, _, ok := r.player.Move(cur, target); !ok {
		return media.NewUserInputError("track %d cannot be moved to %s", n, c.Args[1])
	}
	return nil
}

func (r *Router) volume(ctx context.Context, c *Context) error {
	var v string
	switch len(c.Args) {
	case 0:
		v = r.player.Volume()
	case 1:
		percent, err := strconv.Atoi(strings.TrimSuffix(c.Args[0], "%"))
		if err != nil {
			return media.NewUserInputError("volume must be a number between 0 and 100")
		}
		v = r.player.SetVolume(percent)
	default:
		return usageError(c, "[0-100]")
	}
	r.reply(ctx, c, "Volume", fmt.Sprintf("Volume is at %s", v))
	return nil
}

func (r *Router) repeat(ctx context.Context, c *Context) error {
	mode := "off"
	if r.player.ToggleRepeat() {
		mode = "on"
	}
	r.reply(ctx, c, "Repeat", fmt.Sprintf("Repeat mode is %s", mode))
	return nil
}

func (r *Router) list(ctx context.Context, c *Context) error {
	r.reply(ctx, c, "Current Playing Queue", FormatQueue(r.player.Entries()))
	return nil
}

// FormatQueue renders entries as a numbered list.
func FormatQueue(entries []*media.Entry) string {
	if len(entries) == 0 {
		return "There are no songs in the queue."
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%d. Title: \"%s\"", i+1, e.DisplayName)
	}
	return strings.Join(lines, "\n\n")
}

func (r *Router) nowPlaying(ctx context.Context, c *Context) error {
	if e, elapsed, ok := r.player.NowPlaying(); ok && e != nil {
		r.reply(ctx, c, "Time Elapsed", fmt.Sprintf("%s / %s", media.FormatDuration(elapsed), e.DurationOrUnknown()))
		return nil
	}
	entries := r.player.Entries()
	if len(entries) == 0 {
		r.reply(ctx, c, "Time Elapsed", "There are no songs in the queue.")
		return nil
	}
	r.reply(ctx, c, "Time Elapsed", fmt.Sprintf("%s / %s", media.FormatDuration(0), entries[0].DurationOrUnknown()))
	return nil
}

func (r *Router) leave(ctx context.Context, c *Context) error {
	if !r.session.Leave(ctx) {
		return media.NewUserInputError("I'm not on a voice channel!")
	}
	r.reply(ctx, c, "Leave", "Disconnecting from channel")
	return nil
}

func (r *Router) help(ctx context.Context, c *Context) error {
	r.reply(ctx, c, "Help", r.helpText())
	return nil
}

func (r *Router) helpText() string {
	if r.cfg.Help != "" {
		return r.cfg.Help
	}
	var b strings.Builder
	cmds := r.Commands()
	byName := make(map[string]Command, len(cmds))
	for _, cmd := range cmds {
		byName[cmd.Name] = cmd
	}
	for _, name := range sortedNames(cmds) {
		cmd := byName[name]
		b.WriteString("`" + r.cfg.Prefix + cmd.Name)
		if cmd.Usage != "" {
			b.WriteString(" " + cmd.Usage)
		}
		b.WriteString("` ")
		b.WriteString(cmd.Description)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (r *Router) ping(ctx context.Context, c *Context) error {
	r.reply(ctx, c, "Ping", r.pick(pingPhrases))
	return nil
}

// position parses a 1-based queue position.
func position(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, media.NewUserInputError("%q is not a valid position", arg)
	}
	return n, nil
}

func usageError(c *Context, usage string) error {
	return media.NewUserInputError("usage: %s %s", c.Name, usage)
}
