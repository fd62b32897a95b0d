// Package tracker orchestrates the two-phase tournament sync: club
// discovery while an event has no bound club, result fetching once it
// does. It owns the per-tournament loading/error state and is the only
// component allowed to mutate tournament players.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/extract"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/fetch"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/logging"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

// ErrNoClubDetected is the domain error of an empty club discovery:
// the HTTP call worked but the statistics page listed no clubs yet.
var ErrNoClubDetected = errors.New("no club detected: the tournament may not have started")

// ErrNoPendingChange is returned when confirming or cancelling a club
// change that was never requested.
var ErrNoPendingChange = errors.New("no pending club change")

// Fetcher retrieves one federation page.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

// Storage is the slice of the persistent store the tracker needs.
type Storage interface {
	GetEvent(slug, eventID string) (*model.Event, error)
	SaveEvent(slug string, evt *model.Event) error
	ClearValidations(slug, tournamentID string) error
}

// Notifier announces a refreshed tournament. Failures are logged, not
// propagated: announcing is best effort.
type Notifier interface {
	Notify(evt *model.Event, tournament *model.Tournament) error
}

// Tracker drives refreshes for one club namespace.
//
// Multi-tournament operations run strictly sequentially: the shared
// mutable resource is the event document, and each iteration performs
// read latest, compute, write, as one step. Only the two page fetches
// inside a single tournament run in parallel, they are independent
// reads feeding one parse.
type Tracker struct {
	slug     string
	storage  Storage
	fetcher  Fetcher
	notifier Notifier

	mu            sync.Mutex
	loading       map[string]bool
	errors        map[string]string
	pendingChange map[string]bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithNotifier announces successful result refreshes.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// New creates a tracker for one club namespace.
func New(slug string, storage Storage, fetcher Fetcher, opts ...Option) *Tracker {
	t := &Tracker{
		slug:          slug,
		storage:       storage,
		fetcher:       fetcher,
		loading:       make(map[string]bool),
		errors:        make(map[string]string),
		pendingChange: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Loading reports whether a refresh for the tournament is in flight.
func (t *Tracker) Loading(tournamentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading[tournamentID]
}

// Err returns the user-facing message of the tournament's last failed
// attempt, empty when the last attempt succeeded or none ran yet.
func (t *Tracker) Err(tournamentID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errors[tournamentID]
}

// HandleRefresh runs one sync cycle for a tournament. A refresh for a
// tournament that is already loading is a no-op, which keeps rapid
// repeated triggers from duplicating network calls. The error state is
// cleared at the start of every new attempt.
func (t *Tracker) HandleRefresh(ctx context.Context, eventID, tournamentID string) error {
	t.mu.Lock()
	if t.loading[tournamentID] {
		t.mu.Unlock()
		return nil
	}
	t.loading[tournamentID] = true
	delete(t.errors, tournamentID)
	t.mu.Unlock()

	err := t.refresh(ctx, eventID, tournamentID)

	t.mu.Lock()
	delete(t.loading, tournamentID)
	if err != nil {
		t.errors[tournamentID] = userMessage(err)
	}
	t.mu.Unlock()
	return err
}

// HandleClubSelect binds a club to the event and refreshes every
// tournament sequentially. A failing tournament is recorded and does
// not abort the remaining ones.
func (t *Tracker) HandleClubSelect(ctx context.Context, eventID, clubName string) error {
	evt, err := t.storage.GetEvent(t.slug, eventID)
	if err != nil {
		return err
	}
	evt.ClubName = clubName
	if err := t.storage.SaveEvent(t.slug, evt); err != nil {
		return err
	}

	var failures []error
	for i := range evt.Tournaments {
		id := evt.Tournaments[i].ID
		if err := t.HandleRefresh(ctx, eventID, id); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", evt.Tournaments[i].Name, err))
		}
	}
	return errors.Join(failures...)
}

// RequestChangeClub starts unbinding the event's club. With no players
// recorded the change applies immediately and needsConfirm is false;
// otherwise the caller must follow up with ConfirmChangeClub or
// CancelChangeClub, because confirming discards every recorded player
// and their validation flags.
func (t *Tracker) RequestChangeClub(eventID string) (needsConfirm bool, err error) {
	evt, err := t.storage.GetEvent(t.slug, eventID)
	if err != nil {
		return false, err
	}
	if evt.PlayerCount() == 0 {
		return false, t.clearClub(evt)
	}

	t.mu.Lock()
	t.pendingChange[eventID] = true
	t.mu.Unlock()
	return true, nil
}

// ConfirmChangeClub applies a previously requested club change.
func (t *Tracker) ConfirmChangeClub(eventID string) error {
	t.mu.Lock()
	pending := t.pendingChange[eventID]
	delete(t.pendingChange, eventID)
	t.mu.Unlock()
	if !pending {
		return ErrNoPendingChange
	}

	evt, err := t.storage.GetEvent(t.slug, eventID)
	if err != nil {
		return err
	}
	return t.clearClub(evt)
}

// CancelChangeClub abandons a previously requested club change.
func (t *Tracker) CancelChangeClub(eventID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pendingChange[eventID] {
		return ErrNoPendingChange
	}
	delete(t.pendingChange, eventID)
	return nil
}

func (t *Tracker) clearClub(evt *model.Event) error {
	evt.ClubName = ""
	for i := range evt.Tournaments {
		tournament := &evt.Tournaments[i]
		tournament.Players = nil
		tournament.LastUpdate = time.Time{}
		if err := t.storage.ClearValidations(t.slug, tournament.ID); err != nil {
			return err
		}
	}
	return t.storage.SaveEvent(t.slug, evt)
}

func (t *Tracker) refresh(ctx context.Context, eventID, tournamentID string) error {
	evt, err := t.storage.GetEvent(t.slug, eventID)
	if err != nil {
		return err
	}
	tournament := evt.Tournament(tournamentID)
	if tournament == nil {
		return fmt.Errorf("unknown tournament %s", tournamentID)
	}

	if evt.ClubName == "" {
		return t.discoverClubs(ctx, evt, tournament)
	}
	return t.fetchResults(ctx, evt, tournament)
}

// discoverClubs is phase one: it never touches tournament players.
func (t *Tracker) discoverClubs(ctx context.Context, evt *model.Event, tournament *model.Tournament) error {
	statsURL, err := fetch.PageURL(tournament.URL, fetch.ActionStats)
	if err != nil {
		return err
	}
	html, err := t.fetcher.FetchPage(ctx, statsURL)
	if err != nil {
		return err
	}

	clubs, err := extract.ClubRoster(html)
	if err != nil {
		return err
	}
	if len(clubs) == 0 {
		return ErrNoClubDetected
	}

	evt.AvailableClubs = clubs
	return t.storage.SaveEvent(t.slug, evt)
}

// fetchResults is phase two: list and results pages are fetched in
// parallel, parsed, and the tournament's players replaced wholesale.
func (t *Tracker) fetchResults(ctx context.Context, evt *model.Event, tournament *model.Tournament) error {
	listURL, err := fetch.PageURL(tournament.URL, fetch.ActionList)
	if err != nil {
		return err
	}
	resultsURL, err := fetch.PageURL(tournament.URL, fetch.ActionResults)
	if err != nil {
		return err
	}

	listCh := t.fetchAsync(ctx, listURL)
	resultsCh := t.fetchAsync(ctx, resultsURL)
	listPage := <-listCh
	resultsPage := <-resultsCh
	if listPage.err != nil {
		return listPage.err
	}
	if resultsPage.err != nil {
		return resultsPage.err
	}

	players, _, err := extract.ParseBothPages(listPage.html, resultsPage.html, evt.ClubName)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return fmt.Errorf("no players from club %q in this tournament", evt.ClubName)
	}

	tournament.Players = players
	tournament.LastUpdate = time.Now().UTC()
	if err := t.storage.SaveEvent(t.slug, evt); err != nil {
		return err
	}

	if t.notifier != nil {
		if err := t.notifier.Notify(evt, tournament); err != nil {
			logging.Warn().Err(err).Str("tournament", tournament.Name).Msg("notification failed")
		}
	}
	return nil
}

type pageResult struct {
	html string
	err  error
}

// fetchAsync wraps one page fetch in a goroutine. A panicking fetcher
// degrades to a stable error instead of crashing the refresh.
func (t *Tracker) fetchAsync(ctx context.Context, url string) <-chan pageResult {
	ch := make(chan pageResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- pageResult{err: fmt.Errorf("unknown error: %v", r)}
			}
		}()
		html, err := t.fetcher.FetchPage(ctx, url)
		ch <- pageResult{html: html, err: err}
	}()
	return ch
}

// userMessage turns an internal error into the stable string surfaced
// to the operator. It never leaks stack traces or raw non-error
// values.
func userMessage(err error) string {
	var upstream *fetch.UpstreamError
	switch {
	case err == nil:
		return "unknown error"
	case errors.As(err, &upstream):
		if upstream.StatusCode == http.StatusNotFound {
			return "tournament not found on the federation site"
		}
		return "federation site unavailable"
	case errors.Is(err, fetch.ErrShortBody):
		return "federation page looked empty, try again later"
	default:
		return err.Error()
	}
}
