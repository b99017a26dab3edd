package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/grrywlsn/plexmatch/matcher"
)

// DefaultFile is read when no config file is given and it exists in the
// working directory.
const DefaultFile = "plexmatch.toml"

// envFile is the dotenv file layered over the OS environment.
var envFile = ".env"

// Config holds all configuration values
type Config struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Plex    PlexConfig    `toml:"plex"`
	Match   MatchConfig   `toml:"match"`
	Log     LogConfig     `toml:"log"`

	// invalid collects keys whose values could not be parsed
	invalid []string
}

// SpotifyConfig holds Spotify API configuration
type SpotifyConfig struct {
	ClientID            string   `toml:"client_id"`
	ClientSecret        string   `toml:"client_secret"`
	Username            string   `toml:"username"`              // Spotify username to get all public playlists
	PlaylistIDs         []string `toml:"playlist_ids"`          // Spotify playlist IDs from comma-separated list
	ExcludedPlaylistIDs []string `toml:"excluded_playlist_ids"` // Playlist IDs to exclude from processing
}

// PlexConfig holds Plex server configuration
type PlexConfig struct {
	URL              string `toml:"url"`
	Token            string `toml:"token"`
	LibrarySectionID int    `toml:"library_section_id"` // 0 means discover the music section
	ServerID         string `toml:"server_id"`
	// PlaylistName names the destination playlist. When empty the source
	// playlist name is used.
	PlaylistName string `toml:"playlist_name"`
}

// MatchConfig tunes the matching cascade and the playlist writes.
type MatchConfig struct {
	Threshold int  `toml:"threshold"`
	DryRun    bool `toml:"dry_run"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadFile loads configuration following the specified order:
// 1. Start with defaults (the match threshold and log level)
// 2. Load the TOML file at path, or plexmatch.toml if it exists
// 3. Load from OS environment variables (only if they exist)
// 4. Load from .env file (only if it exists and values exist)
// 5. Apply CLI flag overrides
//
// An explicit path must exist.
func LoadFile(path string, overrides map[string]string) (*Config, error) {
	config := &Config{}

	// Step 1: Initialize with default values
	config.initializeDefaults()

	// Step 2: Config file
	if err := config.loadFromFile(path); err != nil {
		return nil, err
	}

	// Step 3: Load from OS environment variables (only if they exist)
	config.loadFromOSEnv()

	// Step 4: Load from .env file (only if it exists and values exist)
	config.loadFromEnvFile()

	// Step 5: Apply CLI flag overrides (only if they exist)
	config.applyOverrides(overrides)

	// Validate required configuration after all sources have been loaded
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// initializeDefaults sets up the initial configuration with default values
func (c *Config) initializeDefaults() {
	c.Spotify = SpotifyConfig{}
	c.Plex = PlexConfig{}
	c.Match = MatchConfig{
		Threshold: matcher.DefaultRankThreshold,
	}
	c.Log = LogConfig{
		Level: "info",
	}
}

// loadFromFile decodes a TOML file over the current values. Keys missing
// from the file keep their value.
func (c *Config) loadFromFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	md, err := toml.DecodeFile(path, c)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// loadFromOSEnv loads configuration from OS environment variables (only if they exist)
func (c *Config) loadFromOSEnv() {
	for key := range setters {
		if value := os.Getenv(key); value != "" {
			c.set(key, value)
		}
	}
}

// loadFromEnvFile loads configuration from .env file (only if it exists and values exist)
func (c *Config) loadFromEnvFile() {
	values, err := godotenv.Read(envFile)
	if err != nil {
		// .env file doesn't exist, skip this step
		return
	}

	for key, value := range values {
		if value == "" {
			continue
		}
		if _, known := setters[key]; known {
			c.set(key, value)
		}
	}
}

// applyOverrides applies CLI flag overrides to the configuration (only if they exist)
func (c *Config) applyOverrides(overrides map[string]string) {
	for key, value := range overrides {
		// Only apply if the value is not empty
		if value == "" {
			continue
		}
		c.set(key, value)
	}
}

// setters maps every configuration key to the field it sets.
var setters = map[string]func(c *Config, value string) error{
	"SPOTIFY_CLIENT_ID":     func(c *Config, v string) error { c.Spotify.ClientID = v; return nil },
	"SPOTIFY_CLIENT_SECRET": func(c *Config, v string) error { c.Spotify.ClientSecret = v; return nil },
	"SPOTIFY_USERNAME":      func(c *Config, v string) error { c.Spotify.Username = v; return nil },
	"SPOTIFY_PLAYLIST_ID": func(c *Config, v string) error {
		c.Spotify.PlaylistIDs = parseCommaSeparatedList(v)
		return nil
	},
	"SPOTIFY_PLAYLIST_EXCLUDED_ID": func(c *Config, v string) error {
		c.Spotify.ExcludedPlaylistIDs = parseCommaSeparatedList(v)
		return nil
	},
	"PLEX_URL":   func(c *Config, v string) error { c.Plex.URL = v; return nil },
	"PLEX_TOKEN": func(c *Config, v string) error { c.Plex.Token = v; return nil },
	"PLEX_LIBRARY_SECTION_ID": func(c *Config, v string) error {
		sectionID, err := parseLibrarySectionID(v)
		if err != nil {
			return err
		}
		c.Plex.LibrarySectionID = sectionID
		return nil
	},
	"PLEX_SERVER_ID":     func(c *Config, v string) error { c.Plex.ServerID = v; return nil },
	"PLEX_PLAYLIST_NAME": func(c *Config, v string) error { c.Plex.PlaylistName = v; return nil },
	"PLEXMATCH_THRESHOLD": func(c *Config, v string) error {
		threshold, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || threshold <= 0 {
			return fmt.Errorf("invalid threshold '%s': must be a positive integer", v)
		}
		c.Match.Threshold = threshold
		return nil
	},
	"PLEXMATCH_DRY_RUN": func(c *Config, v string) error {
		dryRun, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid dry run flag '%s': %w", v, err)
		}
		c.Match.DryRun = dryRun
		return nil
	},
	"PLEXMATCH_LOG_LEVEL": func(c *Config, v string) error { c.Log.Level = v; return nil },
}

// Keys returns every configuration key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) set(key, value string) {
	setter, ok := setters[key]
	if !ok {
		return
	}
	if err := setter(c, value); err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("%s: %v", key, err))
	}
}

// parseCommaSeparatedList parses a comma-separated string into a slice of trimmed strings
func parseCommaSeparatedList(input string) []string {
	if input == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(input, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

// parseLibrarySectionID parses the library section ID from string
func parseLibrarySectionID(value string) (int, error) {
	if value == "0" || value == "your_music_library_section_id" {
		return 0, nil
	}

	sectionID, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid section ID '%s': %w", value, err)
	}

	return sectionID, nil
}

// validate checks that all required configuration values are present
func (c *Config) validate() error {
	var missingFields []string

	// Check Spotify configuration
	if c.Spotify.ClientID == "" {
		missingFields = append(missingFields, "SPOTIFY_CLIENT_ID")
	}
	if c.Spotify.ClientSecret == "" {
		missingFields = append(missingFields, "SPOTIFY_CLIENT_SECRET")
	}

	// Check Plex configuration
	if c.Plex.URL == "" {
		missingFields = append(missingFields, "PLEX_URL")
	}
	if c.Plex.Token == "" {
		missingFields = append(missingFields, "PLEX_TOKEN")
	}

	// Check playlist configuration
	if c.Spotify.Username == "" && len(c.Spotify.PlaylistIDs) == 0 {
		missingFields = append(missingFields, "SPOTIFY_USERNAME or SPOTIFY_PLAYLIST_ID")
	}

	invalid := append([]string(nil), c.invalid...)
	if c.Match.Threshold <= 0 {
		invalid = append(invalid, fmt.Sprintf("threshold: must be a positive integer, got %d", c.Match.Threshold))
	}

	var problems []string
	if len(missingFields) > 0 {
		problems = append(problems, fmt.Sprintf("missing required configuration values:\n%s", strings.Join(missingFields, "\n")))
	}
	if len(invalid) > 0 {
		problems = append(problems, fmt.Sprintf("invalid configuration values:\n%s", strings.Join(invalid, "\n")))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s\n\nSet these values via environment variables, .env file, %s, or CLI flags", strings.Join(problems, "\n\n"), DefaultFile)
	}

	return nil
}
