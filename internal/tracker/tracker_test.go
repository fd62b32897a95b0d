package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/fetch"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/store"
)

const slug = "echiquier-du-roy"

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "fixtures", name))
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", name, err)
	}
	return string(data)
}

// fakeFetcher serves fixture pages keyed by the Action query
// parameter, the way the federation site keys its tournament pages.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	failAll error
	calls   int
	block   chan struct{}
}

func (f *fakeFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.failAll != nil {
		return "", f.failAll
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.pages[u.Query().Get("Action")]
	if !ok {
		return "", fmt.Errorf("no fixture for %s", pageURL)
	}
	return page, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu       sync.Mutex
	notified []string
}

func (n *fakeNotifier) Notify(evt *model.Event, tournament *model.Tournament) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, tournament.ID)
	return nil
}

func fixtureFetcher(t *testing.T) *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{
		fetch.ActionList:    loadFixture(t, "players_list.html"),
		fetch.ActionResults: loadFixture(t, "results_grid.html"),
		fetch.ActionStats:   loadFixture(t, "tournament_stats.html"),
	}}
}

func setupEvent(t *testing.T, s *store.Store, clubName string) *model.Event {
	t.Helper()
	evt := model.NewEvent("Open de Printemps")
	evt.ClubName = clubName
	evt.Tournaments = []model.Tournament{
		{ID: "t1", Name: "Open A", URL: "https://echecs.asso.fr/Resultats.aspx?URL=Tournois/Id/1/1&Action=Ga"},
		{ID: "t2", Name: "Open B", URL: "https://echecs.asso.fr/Resultats.aspx?URL=Tournois/Id/2/2&Action=Ga"},
	}
	if err := s.SaveEvent(slug, evt); err != nil {
		t.Fatal(err)
	}
	return evt
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPhaseOneDiscoversClubs(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "")
	tr := New(slug, s, fixtureFetcher(t))

	if err := tr.HandleRefresh(context.Background(), evt.ID, "t1"); err != nil {
		t.Fatalf("HandleRefresh failed: %v", err)
	}

	stored, err := s.GetEvent(slug, evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.AvailableClubs) != 4 {
		t.Fatalf("expected 4 discovered clubs, got %d", len(stored.AvailableClubs))
	}
	if stored.AvailableClubs[0].Name != "Echiquier du Roy" || stored.AvailableClubs[0].PlayerCount != 12 {
		t.Errorf("unexpected first club: %+v", stored.AvailableClubs[0])
	}
	// Discovery never touches players.
	if len(stored.Tournament("t1").Players) != 0 {
		t.Error("phase one must not touch tournament players")
	}
}

func TestPhaseOneEmptyRoster(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "")
	fetcher := fixtureFetcher(t)
	fetcher.pages[fetch.ActionStats] = "<html><body><table><tr><td>vide</td></tr></table></body></html>"
	tr := New(slug, s, fetcher)

	err := tr.HandleRefresh(context.Background(), evt.ID, "t1")
	if !errors.Is(err, ErrNoClubDetected) {
		t.Fatalf("expected ErrNoClubDetected, got %v", err)
	}
	if tr.Err("t1") == "" {
		t.Error("error state not recorded")
	}
}

func TestPhaseTwoReplacesPlayers(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "Echiquier du Roy")
	notifier := &fakeNotifier{}
	tr := New(slug, s, fixtureFetcher(t), WithNotifier(notifier))

	// Seed stale players to prove the replacement is wholesale.
	stored, _ := s.GetEvent(slug, evt.ID)
	stored.Tournament("t1").Players = []model.Player{{Name: "GHOST PLAYER"}}
	if err := s.SaveEvent(slug, stored); err != nil {
		t.Fatal(err)
	}

	if err := tr.HandleRefresh(context.Background(), evt.ID, "t1"); err != nil {
		t.Fatalf("HandleRefresh failed: %v", err)
	}

	stored, _ = s.GetEvent(slug, evt.ID)
	tournament := stored.Tournament("t1")
	if len(tournament.Players) != 3 {
		t.Fatalf("expected 3 players, got %d", len(tournament.Players))
	}
	for _, p := range tournament.Players {
		if p.Name == "GHOST PLAYER" {
			t.Error("stale player survived a wholesale replacement")
		}
	}
	if tournament.LastUpdate.IsZero() {
		t.Error("last update not set")
	}
	if tr.Err("t1") != "" {
		t.Errorf("unexpected error state: %q", tr.Err("t1"))
	}
	if len(notifier.notified) != 1 || notifier.notified[0] != "t1" {
		t.Errorf("expected one notification for t1, got %v", notifier.notified)
	}
}

func TestPhaseTwoNoPlayersForClub(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "Club Inconnu")
	tr := New(slug, s, fixtureFetcher(t))

	err := tr.HandleRefresh(context.Background(), evt.ID, "t1")
	if err == nil || !strings.Contains(err.Error(), "Club Inconnu") {
		t.Fatalf("expected a domain error naming the club, got %v", err)
	}
	if !strings.Contains(tr.Err("t1"), "Club Inconnu") {
		t.Errorf("error state should name the club: %q", tr.Err("t1"))
	}
}

func TestErrorClearedOnNewAttempt(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "Echiquier du Roy")
	fetcher := fixtureFetcher(t)
	fetcher.failAll = errors.New("network down")
	tr := New(slug, s, fetcher)

	if err := tr.HandleRefresh(context.Background(), evt.ID, "t1"); err == nil {
		t.Fatal("expected failure")
	}
	if tr.Err("t1") == "" {
		t.Fatal("error state not recorded")
	}

	fetcher.failAll = nil
	if err := tr.HandleRefresh(context.Background(), evt.ID, "t1"); err != nil {
		t.Fatalf("second attempt failed: %v", err)
	}
	if tr.Err("t1") != "" {
		t.Errorf("error state not cleared on new attempt: %q", tr.Err("t1"))
	}
}

func TestRefreshGuardIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "Echiquier du Roy")
	fetcher := fixtureFetcher(t)
	fetcher.block = make(chan struct{})
	tr := New(slug, s, fetcher)

	done := make(chan error, 1)
	go func() { done <- tr.HandleRefresh(context.Background(), evt.ID, "t1") }()

	// Wait for the first refresh to take the loading slot.
	deadline := time.After(2 * time.Second)
	for !tr.Loading("t1") {
		select {
		case <-deadline:
			t.Fatal("first refresh never started")
		case <-time.After(time.Millisecond):
		}
	}

	before := fetcher.callCount()
	if err := tr.HandleRefresh(context.Background(), evt.ID, "t1"); err != nil {
		t.Fatalf("duplicate refresh must be a no-op, got %v", err)
	}
	if fetcher.callCount() != before {
		t.Error("duplicate refresh issued network calls")
	}

	close(fetcher.block)
	if err := <-done; err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
}

func TestClubSelectRefreshesAllTournaments(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "")
	tr := New(slug, s, fixtureFetcher(t))

	if err := tr.HandleClubSelect(context.Background(), evt.ID, "Echiquier du Roy"); err != nil {
		t.Fatalf("HandleClubSelect failed: %v", err)
	}

	stored, _ := s.GetEvent(slug, evt.ID)
	if stored.ClubName != "Echiquier du Roy" {
		t.Errorf("club not bound: %q", stored.ClubName)
	}
	for _, id := range []string{"t1", "t2"} {
		if len(stored.Tournament(id).Players) == 0 {
			t.Errorf("tournament %s not refreshed", id)
		}
	}
}

func TestClubSelectPartialFailure(t *testing.T) {
	s := newTestStore(t)
	evt := model.NewEvent("Open")
	evt.Tournaments = []model.Tournament{
		{ID: "bad", Name: "Broken", URL: "://not-a-url"},
		{ID: "good", Name: "Working", URL: "https://echecs.asso.fr/Resultats.aspx?URL=Tournois/Id/1/1&Action=Ga"},
	}
	if err := s.SaveEvent(slug, evt); err != nil {
		t.Fatal(err)
	}
	tr := New(slug, s, fixtureFetcher(t))

	err := tr.HandleClubSelect(context.Background(), evt.ID, "Echiquier du Roy")
	if err == nil {
		t.Fatal("expected an aggregate error for the broken tournament")
	}

	// The failing tournament must not abort the remaining ones.
	stored, _ := s.GetEvent(slug, evt.ID)
	if len(stored.Tournament("good").Players) == 0 {
		t.Error("working tournament was aborted by the broken one")
	}
	if tr.Err("bad") == "" {
		t.Error("broken tournament has no error state")
	}
}

func TestChangeClubImmediateWhenNoPlayers(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "Echiquier du Roy")
	tr := New(slug, s, fixtureFetcher(t))

	needsConfirm, err := tr.RequestChangeClub(evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if needsConfirm {
		t.Fatal("no players recorded, change must be immediate")
	}
	stored, _ := s.GetEvent(slug, evt.ID)
	if stored.ClubName != "" {
		t.Errorf("club not cleared: %q", stored.ClubName)
	}
}

func TestChangeClubConfirmFlow(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "Echiquier du Roy")
	tr := New(slug, s, fixtureFetcher(t))

	if err := tr.HandleRefresh(context.Background(), evt.ID, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetValidation(slug, "t1", "DURAND MARIE", 1, true); err != nil {
		t.Fatal(err)
	}

	needsConfirm, err := tr.RequestChangeClub(evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !needsConfirm {
		t.Fatal("recorded players must require confirmation")
	}

	// Nothing changes until confirmed.
	stored, _ := s.GetEvent(slug, evt.ID)
	if stored.ClubName == "" {
		t.Fatal("club cleared before confirmation")
	}

	if err := tr.ConfirmChangeClub(evt.ID); err != nil {
		t.Fatal(err)
	}
	stored, _ = s.GetEvent(slug, evt.ID)
	if stored.ClubName != "" {
		t.Error("club not cleared after confirmation")
	}
	if len(stored.Tournament("t1").Players) != 0 {
		t.Error("players survived a confirmed club change")
	}
	if ok, _ := s.GetValidation(slug, "t1", "DURAND MARIE", 1); ok {
		t.Error("validations survived a confirmed club change")
	}

	if err := tr.ConfirmChangeClub(evt.ID); !errors.Is(err, ErrNoPendingChange) {
		t.Errorf("double confirm must fail, got %v", err)
	}
}

func TestChangeClubCancel(t *testing.T) {
	s := newTestStore(t)
	evt := setupEvent(t, s, "Echiquier du Roy")
	tr := New(slug, s, fixtureFetcher(t))

	if err := tr.HandleRefresh(context.Background(), evt.ID, "t1"); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.RequestChangeClub(evt.ID); err != nil {
		t.Fatal(err)
	}
	if err := tr.CancelChangeClub(evt.ID); err != nil {
		t.Fatal(err)
	}

	stored, _ := s.GetEvent(slug, evt.ID)
	if stored.ClubName != "Echiquier du Roy" {
		t.Error("cancel must leave the binding untouched")
	}
	if err := tr.CancelChangeClub(evt.ID); !errors.Is(err, ErrNoPendingChange) {
		t.Errorf("cancel without request must fail, got %v", err)
	}
}
