package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/grrywlsn/plexmatch/config"
	"github.com/grrywlsn/plexmatch/logging"
	"github.com/grrywlsn/plexmatch/musicbrainz"
	"github.com/grrywlsn/plexmatch/plex"
	"github.com/grrywlsn/plexmatch/spotify"
)

// Version information - set during build
var version = "dev"

// Exit codes
const (
	exitCodeSuccess     = 0
	exitCodeNoPlaylists = 1
	exitCodeConfigError = 2
	exitCodeClientError = 3
)

// exitError attaches a process exit code to an error
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps an error returned by the command onto a process exit code
func exitCode(err error) int {
	if err == nil {
		return exitCodeSuccess
	}
	if errors.Is(err, ErrNoPlaylists) {
		return exitCodeNoPlaylists
	}
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return exitCodeClientError
}

// flagKeys maps string flags onto the configuration keys they override
var flagKeys = map[string]string{
	"playlists": "SPOTIFY_PLAYLIST_ID",
	"username":  "SPOTIFY_USERNAME",
	"name":      "PLEX_PLAYLIST_NAME",
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "plexmatch",
		Usage:   "Match Spotify playlists against a Plex music library and build Plex playlists",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file (default " + config.DefaultFile + " if present)",
			},
			&cli.StringFlag{
				Name:  "playlists",
				Usage: "Comma-separated list of Spotify playlist IDs (overrides SPOTIFY_PLAYLIST_ID)",
			},
			&cli.StringFlag{
				Name:  "username",
				Usage: "Spotify username to fetch all public playlists (overrides SPOTIFY_USERNAME)",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Name of the Plex playlist to write (defaults to the Spotify playlist name)",
			},
			&cli.IntFlag{
				Name:  "threshold",
				Usage: "Maximum edit distance accepted by the ranking matcher (exclusive)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Match and report without modifying Plex",
			},
			&cli.BoolFlag{
				Name:  "extend",
				Usage: "Append to an existing Plex playlist of the same name, skipping tracks it already holds",
			},
			&cli.BoolFlag{
				Name:  "replace",
				Usage: "Empty an existing Plex playlist of the same name before filling it",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (per-track matching decisions)",
			},
		},
		Action: runSync,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(_ context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "plexmatch version %s\n", version)
					return nil
				},
			},
		},
	}
}

// flagOverrides collects the configuration overrides of every flag set on
// the command line
func flagOverrides(cmd *cli.Command) map[string]string {
	overrides := make(map[string]string)
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}
	if cmd.IsSet("threshold") {
		overrides["PLEXMATCH_THRESHOLD"] = strconv.FormatInt(int64(cmd.Int("threshold")), 10)
	}
	if cmd.IsSet("dry-run") {
		overrides["PLEXMATCH_DRY_RUN"] = strconv.FormatBool(cmd.Bool("dry-run"))
	}
	if cmd.Bool("debug") {
		overrides["PLEXMATCH_LOG_LEVEL"] = "debug"
	}
	return overrides
}

// playlistMode reads the mutually exclusive --extend and --replace flags
func playlistMode(cmd *cli.Command) (Mode, error) {
	extend, replace := cmd.Bool("extend"), cmd.Bool("replace")
	switch {
	case extend && replace:
		return ModeCreate, errors.New("--extend and --replace cannot be used together")
	case extend:
		return ModeExtend, nil
	case replace:
		return ModeReplace, nil
	}
	return ModeCreate, nil
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	mode, err := playlistMode(cmd)
	if err != nil {
		return withExitCode(exitCodeConfigError, err)
	}

	cfg, err := config.LoadFile(cmd.String("config"), flagOverrides(cmd))
	if err != nil {
		return withExitCode(exitCodeConfigError, fmt.Errorf("failed to load config: %w", err))
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level)
	if err != nil {
		return withExitCode(exitCodeConfigError, err)
	}

	spotifyClient, err := spotify.NewClient(ctx, cfg, logger)
	if err != nil {
		return withExitCode(exitCodeClientError, fmt.Errorf("failed to create Spotify client: %w", err))
	}

	app := &Application{
		config: cfg,
		logger: logger,
		out:    cmd.Root().Writer,
		source: spotifyClient,
		target: plex.NewClientWithTLSConfig(cfg, true, logger),
		lookup: musicbrainz.NewClient(logger),
		mode:   mode,
	}
	return app.Run(ctx)
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(exitCode(err))
	}
}
