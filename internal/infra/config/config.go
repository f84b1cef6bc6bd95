// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// BitrateAuto selects the bitrate of the voice channel.
const BitrateAuto = "auto"

// Config represents the application configuration.
type Config struct {
	Discord   DiscordConfig           `yaml:"discord"`
	Auto      AutoConfig              `yaml:"auto"`
	Queue     QueueConfig             `yaml:"queue"`
	Stream    StreamConfig            `yaml:"stream"`
	Emojis    EmojisConfig            `yaml:"emojis"`
	Resolvers []ResolverConfig        `yaml:"resolvers" validate:"dive"`
	Autofill  AutofillConfig          `yaml:"autofill"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Commands  CommandsConfig          `yaml:"commands"`
	Messages  MessagesConfig          `yaml:"messages"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
	YTDLP     YTDLPConfig             `yaml:"ytdlp"`
	Log       LogConfig               `yaml:"log"`
}

// DiscordConfig represents chat platform configuration.
type DiscordConfig struct {
	Token  string `yaml:"token" validate:"required"`
	Prefix string `yaml:"prefix" default:"!" validate:"required,max=5"`
	Dave   bool   `yaml:"dave" default:"true"` // End-to-end encrypted voice
}

// AutoConfig represents automatic behaviour toggles.
type AutoConfig struct {
	Deafen    bool `yaml:"deafen"`
	Pause     bool `yaml:"pause"`                    // Pause while the bot is alone in voice
	Play      bool `yaml:"play" default:"true"`      // Start playback after a request when idle
	Reconnect bool `yaml:"reconnect" default:"true"` // Rejoin after an external disconnect
}

// QueueConfig represents queue behaviour.
type QueueConfig struct {
	Repeat           bool `yaml:"repeat"`
	Announce         bool `yaml:"announce" default:"true"`
	DebounceMs       int  `yaml:"debounce_ms" default:"1000" validate:"gt=0,lte=10000"`
	MaxPlaylistItems int  `yaml:"max_playlist_items" default:"100" validate:"gte=1,lte=1000"`
}

// StreamConfig represents audio encoding options.
type StreamConfig struct {
	Volume                 int    `yaml:"volume" default:"50" validate:"gte=0,lte=100"`
	Bitrate                string `yaml:"bitrate" default:"auto"` // "auto" or kbps
	Seek                   int    `yaml:"seek" validate:"gte=0"`  // Seconds skipped at the start of every entry
	PacketLossPercentage   int    `yaml:"packet_loss_percentage" default:"1" validate:"gte=0,lte=100"`
	ForwardErrorCorrection bool   `yaml:"forward_error_correction"`
}

// EmojisConfig represents the reaction affordances.
type EmojisConfig struct {
	AddSong   string `yaml:"add_song" default:"👍" validate:"required"`
	StopSong  string `yaml:"stop_song" default:"⏹️" validate:"required"`
	PlaySong  string `yaml:"play_song" default:"▶️" validate:"required"`
	PauseSong string `yaml:"pause_song" default:"⏸️" validate:"required"`
	SkipSong  string `yaml:"skip_song" default:"⏭️" validate:"required"`
}

// ResolverConfig represents one entry of the resolver list.
type ResolverConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// AutofillConfig represents queue refill configuration.
type AutofillConfig struct {
	Enabled        bool             `yaml:"enabled"`
	CandidateCount int              `yaml:"candidate_count" default:"3" validate:"gte=1,lte=50"`
	SeedCount      int              `yaml:"seed_count" default:"3" validate:"gte=1,lte=20"`
	Providers      []ProviderConfig `yaml:"providers" validate:"required_if=Enabled true,dive"`
}

// ProviderConfig represents a single autofill provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// CommandsConfig represents the per-user command throttle.
type CommandsConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec" default:"2" validate:"gt=0"`
	Burst      int     `yaml:"burst" default:"4" validate:"gte=1"`
}

// MessagesConfig represents user-facing texts.
type MessagesConfig struct {
	Help string `yaml:"help"`
}

// SpotifyConfig represents Spotify API credentials. Spotify links are
// unsupported when the credentials are empty.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2"`
}

// YTDLPConfig represents yt-dlp options.
type YTDLPConfig struct {
	Proxy string `yaml:"proxy"`
}

// LogConfig represents log file options.
type LogConfig struct {
	MaxSizeMB int `yaml:"max_size_mb" default:"10" validate:"gte=0"`
}

// SetDefaults fills the resolver list when none is configured.
func (c *Config) SetDefaults() {
	if len(c.Resolvers) == 0 {
		c.Resolvers = []ResolverConfig{
			{Type: "spotify"},
			{Type: "youtube"},
			{Type: "search"},
		}
	}
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes, completes and validates configuration data.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	// Defaults go first so that explicit false values in the file survive.
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Autofill.Providers {
			if c.Autofill.Providers[i].Type == "lastfm" {
				if c.Autofill.Providers[i].Settings == nil {
					c.Autofill.Providers[i].Settings = make(map[string]any)
				}
				c.Autofill.Providers[i].Settings["api_key"] = v
				break
			}
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if _, err := c.Stream.BitrateKbps(); err != nil {
		return err
	}
	return nil
}

// BitrateKbps returns the configured bitrate, or 0 for "auto".
func (s StreamConfig) BitrateKbps() (int, error) {
	v := strings.TrimSpace(strings.ToLower(s.Bitrate))
	if v == "" || v == BitrateAuto {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Newf("stream.bitrate must be %q or a number of kbps, got %q", BitrateAuto, s.Bitrate)
	}
	if n < 8 || n > 512 {
		return 0, errors.Newf("stream.bitrate must be between 8 and 512 kbps, got %d", n)
	}
	return n, nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// ReactionEmojis returns the now playing affordances in display order.
func (e EmojisConfig) ReactionEmojis() []string {
	return []string{e.StopSong, e.PlaySong, e.PauseSong, e.SkipSong}
}
