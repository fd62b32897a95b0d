// Package model defines the domain types shared by the extraction
// engine, the tournament tracker, the persistent store and the sync
// protocol: events, tournaments, players, round results and the
// validation overlay that survives player re-fetches.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExemptOpponent is the sentinel opponent recorded for bye rounds
// marked "EXE" on the federation results grid.
const ExemptOpponent = "EXEMPT"

// Result is one round of a player's tournament.
type Result struct {
	Round    int     `json:"round"`
	Score    float64 `json:"score"`
	Opponent string  `json:"opponent,omitempty"`
}

// Player is one club member's standing in a tournament. The Name field
// is always normalized (see NormalizeName); it is the join key against
// the club membership map and the validation overlay. Optional
// statistics stay nil when the federation page does not publish them.
type Player struct {
	Name        string   `json:"name"`
	Rating      int      `json:"rating"`
	Club        string   `json:"club"`
	Results     []Result `json:"results"`
	Points      float64  `json:"points"`
	Tiebreak    *float64 `json:"tiebreak,omitempty"`
	Buchholz    *float64 `json:"buchholz,omitempty"`
	Performance *int     `json:"performance,omitempty"`
	Ranking     int      `json:"ranking"`
}

// Tournament is one bracket or group within an event. Players are
// replaced wholesale on every successful fetch, never patched.
type Tournament struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	LastUpdate time.Time `json:"last_update,omitzero"`
	Players    []Player  `json:"players"`
}

// ClubInfo is a (club, player count) pair discovered on a tournament
// statistics page. It lives only inside the owning event's
// AvailableClubs list.
type ClubInfo struct {
	Name        string `json:"name"`
	PlayerCount int    `json:"player_count"`
}

// Event is one tracked competition. ClubName is empty until the
// operator binds a club; AvailableClubs holds the discovery output of
// the tracker's first phase.
type Event struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	ClubName       string       `json:"club_name,omitempty"`
	AvailableClubs []ClubInfo   `json:"available_clubs,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Tournaments    []Tournament `json:"tournaments"`
}

// NewEvent creates an event with a fresh ID and creation timestamp.
func NewEvent(name string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// Tournament returns the tournament with the given id, or nil.
func (e *Event) Tournament(id string) *Tournament {
	for i := range e.Tournaments {
		if e.Tournaments[i].ID == id {
			return &e.Tournaments[i]
		}
	}
	return nil
}

// PlayerCount is the total number of players recorded across all
// tournaments of the event.
func (e *Event) PlayerCount() int {
	n := 0
	for i := range e.Tournaments {
		n += len(e.Tournaments[i].Players)
	}
	return n
}

// ValidationState maps tournament id -> normalized player name ->
// round number -> manually-confirmed flag. It is stored apart from
// Player records so that re-fetches replacing the player arrays do not
// discard the bookkeeper's confirmations.
type ValidationState map[string]map[string]map[int]bool

// Get reports whether the given round has been validated. Missing keys
// read as false.
func (v ValidationState) Get(tournamentID, player string, round int) bool {
	return v[tournamentID][player][round]
}

// Set records a validation flag, creating intermediate maps as needed.
func (v ValidationState) Set(tournamentID, player string, round int, ok bool) {
	byPlayer, exists := v[tournamentID]
	if !exists {
		byPlayer = make(map[string]map[int]bool)
		v[tournamentID] = byPlayer
	}
	byRound, exists := byPlayer[player]
	if !exists {
		byRound = make(map[int]bool)
		byPlayer[player] = byRound
	}
	byRound[round] = ok
}

// ClearTournament drops every validation flag recorded for a tournament.
func (v ValidationState) ClearTournament(tournamentID string) {
	delete(v, tournamentID)
}

// StorageData is the root persisted document for one club namespace.
type StorageData struct {
	CurrentEventID string          `json:"current_event_id,omitempty"`
	Events         []*Event        `json:"events"`
	Validations    ValidationState `json:"validations"`
}

// NewStorageData returns an empty document with initialized containers.
func NewStorageData() *StorageData {
	return &StorageData{
		Events:      make([]*Event, 0),
		Validations: make(ValidationState),
	}
}

// Event returns the event with the given id, or nil.
func (d *StorageData) Event(id string) *Event {
	for _, e := range d.Events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// ClubIdentity is the operator's own club binding, created once during
// onboarding. The slug derives deterministically from the display name
// so that two devices converge on the same storage namespace.
type ClubIdentity struct {
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeName normalizes a player name for use as a join key:
// trimmed, internal whitespace runs collapsed to single spaces,
// upper-cased. The function is deterministic and idempotent.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}
