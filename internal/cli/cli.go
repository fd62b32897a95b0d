package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/config"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/fetch"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/store"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/tracker"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

var (
	flagDataDir string
	flagFormat  string
)

// app bundles the dependencies every subcommand needs. It is built
// lazily so that commands like "njt club create" work before any
// config file exists.
type app struct {
	cfg   *config.Config
	store *store.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	dataDir := cfg.Data.Dir
	if flagDataDir != "" {
		dataDir = flagDataDir
	}
	s, err := store.New(dataDir)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return &app{cfg: cfg, store: s}, nil
}

// identity returns the club binding created by "njt club create".
func (a *app) identity() (*model.ClubIdentity, error) {
	id, err := a.store.LoadIdentity()
	if errors.Is(err, store.ErrNoIdentity) {
		return nil, fmt.Errorf("no club configured, run 'njt club create <name>' first")
	}
	return id, err
}

func (a *app) tracker(slug string) *tracker.Tracker {
	client := fetch.New(a.cfg.Federation.Host, fetch.WithRequestsPerSecond(a.cfg.Federation.RPS))
	return tracker.New(slug, a.store, client)
}

// currentEvent resolves the event an id-less command applies to.
func (a *app) currentEvent(slug string) (*model.Event, error) {
	data, err := a.store.Load(slug)
	if err != nil {
		return nil, err
	}
	if data.CurrentEventID == "" {
		return nil, fmt.Errorf("no current event, run 'njt event add <name>' first")
	}
	evt := data.Event(data.CurrentEventID)
	if evt == nil {
		return nil, fmt.Errorf("current event %s not found", data.CurrentEventID)
	}
	return evt, nil
}

func outputFormat() (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}
	return format, nil
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "njt",
		Short: "Track your club's players across chess tournaments",
		Long: `Track the players of a chess club across federation tournaments.
Scrapes the federation result pages, keeps one local document per club
and synchronizes it across devices through a sync server.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (overrides configuration)")
	cmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "Output format: text or json")

	cmd.AddCommand(
		newClubCmd(),
		newEventCmd(),
		newTournamentCmd(),
		newRefreshCmd(),
		newValidateCmd(),
		newExportCmd(),
		newImportCmd(),
		newShareCmd(),
		newPushCmd(),
		newPullCmd(),
	)
	return cmd
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
