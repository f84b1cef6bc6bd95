// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/app/autofill"
	"github.com/osa030/rhythmbot/internal/app/command"
	"github.com/osa030/rhythmbot/internal/app/filter"
	"github.com/osa030/rhythmbot/internal/app/notification"
	"github.com/osa030/rhythmbot/internal/app/playback"
	"github.com/osa030/rhythmbot/internal/app/resolver"
	"github.com/osa030/rhythmbot/internal/app/session"
	"github.com/osa030/rhythmbot/internal/app/status"
	"github.com/osa030/rhythmbot/internal/infra/audio"
	"github.com/osa030/rhythmbot/internal/infra/config"
	"github.com/osa030/rhythmbot/internal/infra/discord"
	"github.com/osa030/rhythmbot/internal/infra/logger"
	"github.com/osa030/rhythmbot/internal/infra/spotify"
	"github.com/osa030/rhythmbot/internal/infra/ytdlp"
)

var (
	app        = kingpin.New("rhythmbot", "Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/rhythmbot.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listResolversCmd = app.Command("list-resolvers", "List available resolvers and exit")
	listFiltersCmd   = app.Command("list-filters", "List available filters and exit")
	checkConfigCmd   = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch cmd {
	case listResolversCmd.FullCommand():
		printResolvers()
		return
	case listFiltersCmd.FullCommand():
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cmd == checkConfigCmd.FullCommand() {
		fmt.Printf("%s: OK\n", *configPath)
		return
	}

	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
		loggerConfig.MaxSizeMB = cfg.Log.MaxSizeMB
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Close()
	zlog.Info().Msgf("Loaded config from %s", *configPath)

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		os.Exit(1)
	}
}

// run executes the main bot logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	bitrate, err := cfg.Stream.BitrateKbps()
	if err != nil {
		return err
	}

	videos := &ytdlp.Client{Proxy: cfg.YTDLP.Proxy}
	resolverDeps := resolver.Deps{
		Videos:           videos,
		Finder:           ytdlp.NewFinder(),
		MaxPlaylistItems: cfg.Queue.MaxPlaylistItems,
	}
	autofillDeps := autofill.Deps{}
	if cfg.SpotifyEnabled() {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		resolverDeps.Catalog = spotifyClient
		autofillDeps.Sampler = spotifyClient
	} else {
		zlog.Info().Msg("Spotify credentials not configured, Spotify links are disabled")
	}

	registry, err := resolver.Build(cfg.Resolvers, resolverDeps)
	if err != nil {
		return errors.Wrap(err, "invalid resolver config")
	}
	autofillDeps.Expander = registry

	var candidates session.Candidates
	if cfg.Autofill.Enabled {
		chain, err := autofill.NewProviderChainFromConfig(cfg, autofillDeps)
		if err != nil {
			return errors.Wrap(err, "invalid autofill config")
		}
		candidates = chain
	}

	bot, err := discord.New(discord.Config{
		Token:    cfg.Discord.Token,
		Dave:     cfg.Discord.Dave,
		Activity: status.Project(status.Snapshot{}),
	})
	if err != nil {
		return err
	}

	notifications := notification.NewManager(notification.DefaultTimeout)
	defer notifications.Close()
	sink := discord.NewSink(bot)
	notifications.Subscribe(sink)
	notifications.Subscribe(notification.LogSink{})

	// The session is created after the voice connector; hooks reach it through this variable.
	var sess *session.Manager
	voiceConn := discord.NewVoice(bot, discord.VoiceConfig{
		Deafen:    cfg.Auto.Deafen,
		AutoPause: cfg.Auto.Pause,
		Reconnect: cfg.Auto.Reconnect,
	}, discord.VoiceHooks{
		Alone: func(alone bool) {
			if sess != nil {
				sess.OnAlone(alone)
			}
		},
		Disconnected: func() {
			if sess != nil {
				sess.OnDisconnected()
			}
		},
	})

	transport := audio.NewTransport(audio.Config{
		Bitrate:                bitrate,
		PacketLossPercentage:   cfg.Stream.PacketLossPercentage,
		ForwardErrorCorrection: cfg.Stream.ForwardErrorCorrection,
		Seek:                   time.Duration(cfg.Stream.Seek) * time.Second,
	}, videos, voiceConn)

	player := playback.NewPlayer(playback.Config{
		Repeat:    cfg.Queue.Repeat,
		Volume:    cfg.Stream.Volume,
		Debounce:  time.Duration(cfg.Queue.DebounceMs) * time.Millisecond,
		Reactions: cfg.Emojis.ReactionEmojis(),
		Autofill:  candidates != nil,
	}, nil, transport, notifications, status.NewDedup(discord.NewPresence(bot)))

	filters, err := filter.Build(cfg.Filters, player)
	if err != nil {
		player.Close()
		return errors.Wrap(err, "invalid filter config")
	}

	sess = session.NewManager(session.Config{
		AutoPlay:       cfg.Auto.Play,
		Announce:       cfg.Queue.Announce,
		AddSongEmoji:   cfg.Emojis.AddSong,
		CandidateCount: cfg.Autofill.CandidateCount,
		SeedCount:      cfg.Autofill.SeedCount,
	}, session.Deps{
		Player:   player,
		Resolver: registry,
		Filters:  filters,
		Autofill: candidates,
		Voice:    voiceConn,
		Notifier: notifications,
	})
	defer sess.Close()

	router := command.NewRouter(command.Config{
		Prefix:     cfg.Discord.Prefix,
		Help:       cfg.Messages.Help,
		Emojis:     cfg.Emojis,
		RatePerSec: cfg.Commands.RatePerSec,
		Burst:      cfg.Commands.Burst,
	}, command.Deps{
		Player:   player,
		Session:  sess,
		Notifier: notifications,
		Messages: sink,
	})

	bot.OnMessage(func(m discord.Message) {
		go router.HandleMessage(ctx, command.Message{
			GuildID:    m.GuildID.String(),
			ChannelID:  m.ChannelID.String(),
			AuthorID:   m.AuthorID.String(),
			AuthorName: m.AuthorName,
			Content:    m.Content,
		})
	})
	bot.OnReaction(func(r discord.Reaction) {
		go router.HandleReaction(ctx, command.Reaction{
			GuildID:   r.GuildID.String(),
			ChannelID: r.ChannelID.String(),
			MessageID: r.MessageID.String(),
			UserID:    r.UserID.String(),
			Emoji:     r.Emoji,
		})
	})

	if err := bot.Open(ctx); err != nil {
		return err
	}
	zlog.Info().Msgf("Bot started: prefix=%s resolvers=%s autofill=%t", cfg.Discord.Prefix, strings.Join(registry.Names(), ","), candidates != nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Info().Msg("Received shutdown signal...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess.Leave(shutdownCtx)
	notifications.Close()
	sink.Wait()
	bot.Close(shutdownCtx)
	zlog.Info().Msg("Bot stopped")
	return nil
}

// printResolvers prints available resolvers.
func printResolvers() {
	fmt.Println("Available Resolvers:")
	registered := resolver.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := registered[name](resolver.Deps{})
		fmt.Printf("  %-30s - %s\n", r.Name(), r.Description())
	}
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := registered[name](nil)
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}
