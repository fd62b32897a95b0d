// Package extract turns raw federation HTML pages into typed records.
//
// The federation publishes tournament state as positionally-indexed
// markup with no machine-readable contract. The cell offsets below were
// established empirically against captured pages (see
// testdata/fixtures) and are the only coupling to the external format;
// if the federation reshuffles its tables, the fixture tests fail
// loudly instead of columns silently mis-mapping.
//
// All transforms are pure and tolerant: a row that does not match the
// expected shape is skipped, never raised, because the markup is not
// schema-stable across tournament types (byes, walkovers, team events).
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

// Cell offsets on the player list page ("Ls"). One row per registered
// player; rows with fewer cells are headers or decoration.
const (
	listMinCells = 7
	listNameCell = 1
	listClubCell = 6
)

// playerBlockSelector marks the nested per-player container on the
// results grid ("Ga"). Everything about one player lives inside it,
// except the performance rating which sits in the outer row.
const playerBlockSelector = "table.papi_small_t"

// Cell offsets inside a player block's header sub-row.
const (
	headerMinCells     = 6
	headerCellRanking  = 0
	headerCellName     = 1
	headerCellRating   = 2
	headerCellPoints   = 3
	headerCellTiebreak = 4
	headerCellBuchholz = 5
)

// Cell offsets of a round sub-row. Bye and forfeit rounds use a compact
// 4-cell format and are skipped.
const (
	roundMinCells     = 5
	roundCellNumber   = 0
	roundCellOpponent = 2
	roundCellScore    = 4
)

// performanceCellOffset counts outer-row cells after the one holding
// the player block; the performance value is the second such cell (the
// first carries its label).
const performanceCellOffset = 2

// exemptToken is the federation's marker for a bye round awarded a
// full point.
const exemptToken = "EXE"

// ClubMembership scans the player list page and maps every normalized
// player name to the club printed next to it. Last write wins: the
// federation does not repeat names on this page in practice.
func ClubMembership(listHTML string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing list page: %w", err)
	}

	membership := make(map[string]string)
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if isHeaderRow(cells) {
			return
		}
		name := model.NormalizeName(cellText(cells.Eq(listNameCell)))
		if name == "" {
			return
		}
		membership[name] = cellText(cells.Eq(listClubCell))
	})
	return membership, nil
}

// Results extracts every player of targetClub from the results grid.
// Players absent from the membership map, or mapped to another club,
// are dropped entirely.
func Results(resultsHTML string, membership map[string]string, targetClub string) ([]model.Player, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resultsHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing results page: %w", err)
	}

	players := make([]model.Player, 0)
	doc.Find(playerBlockSelector).Each(func(_ int, block *goquery.Selection) {
		player, ok := parsePlayerBlock(block, membership, targetClub)
		if ok {
			players = append(players, player)
		}
	})
	return players, nil
}

// ParseBothPages composes ClubMembership and Results, deduplicates
// players by normalized name (first occurrence wins, duplicate
// federation rows must not create duplicate entries) and reports the
// highest round number observed, 0 when no players matched.
func ParseBothPages(listHTML, resultsHTML, targetClub string) ([]model.Player, int, error) {
	membership, err := ClubMembership(listHTML)
	if err != nil {
		return nil, 0, err
	}
	parsed, err := Results(resultsHTML, membership, targetClub)
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[string]bool, len(parsed))
	players := make([]model.Player, 0, len(parsed))
	currentRound := 0
	for _, p := range parsed {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		players = append(players, p)
		for _, r := range p.Results {
			if r.Round > currentRound {
				currentRound = r.Round
			}
		}
	}
	return players, currentRound, nil
}

// ClubRoster scans the tournament statistics page for the club
// breakdown section: it starts after the header row labelled with
// clubs, consumes two-cell (club, player count) rows, and stops at the
// next section header.
func ClubRoster(statsHTML string) ([]model.ClubInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(statsHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing statistics page: %w", err)
	}

	clubs := make([]model.ClubInfo, 0)
	inSection := false
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if isSectionHeader(row) {
			if inSection {
				return false
			}
			label := strings.ToLower(cellText(row.Find("th")))
			inSection = strings.Contains(label, "club")
			return true
		}
		if !inSection {
			return true
		}
		cells := row.Find("td")
		if cells.Length() != 2 {
			return true
		}
		name := cellText(cells.Eq(0))
		count, ok := parseLeadingInt(cellText(cells.Eq(1)))
		if name == "" || !ok {
			return true
		}
		clubs = append(clubs, model.ClubInfo{Name: name, PlayerCount: count})
		return true
	})
	return clubs, nil
}

func parsePlayerBlock(block *goquery.Selection, membership map[string]string, targetClub string) (model.Player, bool) {
	rows := block.Find("tr")
	header := rows.First().Find("td")
	if header.Length() < headerMinCells {
		return model.Player{}, false
	}

	name := model.NormalizeName(cellText(header.Eq(headerCellName)))
	club, member := membership[name]
	if !member || club != targetClub {
		return model.Player{}, false
	}

	player := model.Player{
		Name:    name,
		Club:    club,
		Results: make([]model.Result, 0, rows.Length()-1),
	}
	player.Ranking, _ = parseLeadingInt(cellText(header.Eq(headerCellRanking)))
	player.Rating, _ = parseLeadingInt(cellText(header.Eq(headerCellRating)))
	player.Points, _ = parseHalfFloat(cellText(header.Eq(headerCellPoints)))
	if tb, ok := parseHalfFloat(cellText(header.Eq(headerCellTiebreak))); ok {
		player.Tiebreak = &tb
	}
	if bu, ok := parseHalfFloat(cellText(header.Eq(headerCellBuchholz))); ok {
		player.Buchholz = &bu
	}
	if perf, ok := parsePerformance(block); ok {
		player.Performance = &perf
	}

	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		if result, ok := parseRound(row); ok {
			player.Results = append(player.Results, result)
		}
	})
	return player, true
}

// parsePerformance reads the performance rating from the outer row: it
// lives performanceCellOffset cells after the cell containing the
// player block, outside the nested table.
func parsePerformance(block *goquery.Selection) (int, bool) {
	outer := block.ParentsFiltered("tr").First()
	cells := outer.ChildrenFiltered("td")

	markerIndex := -1
	cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
		if cell.Find(playerBlockSelector).Length() > 0 {
			markerIndex = i
			return false
		}
		return true
	})
	if markerIndex < 0 || markerIndex+performanceCellOffset >= cells.Length() {
		return 0, false
	}
	return parseLeadingInt(cellText(cells.Eq(markerIndex + performanceCellOffset)))
}

func parseRound(row *goquery.Selection) (model.Result, bool) {
	cells := row.Find("td")
	if isByeRow(cells) {
		return model.Result{}, false
	}

	round, ok := parseLeadingInt(cellText(cells.Eq(roundCellNumber)))
	if !ok || round < 1 {
		return model.Result{}, false
	}

	scoreText := cellText(cells.Eq(roundCellScore))
	if strings.EqualFold(scoreText, exemptToken) {
		return model.Result{Round: round, Score: 1, Opponent: model.ExemptOpponent}, true
	}
	return model.Result{
		Round:    round,
		Score:    ParseScore(scoreText),
		Opponent: cellText(cells.Eq(roundCellOpponent)),
	}, true
}

// isHeaderRow reports whether a list-page row is a header or decoration
// row rather than a player entry.
func isHeaderRow(cells *goquery.Selection) bool {
	return cells.Length() < listMinCells
}

// isByeRow reports whether a round sub-row uses the compact bye/forfeit
// format that carries no parseable result.
func isByeRow(cells *goquery.Selection) bool {
	return cells.Length() < roundMinCells
}

// isSectionHeader reports whether a statistics-page row opens a new
// section.
func isSectionHeader(row *goquery.Selection) bool {
	return row.Find("th").Length() > 0
}

func cellText(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}
