package notifier

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

// Notifier posts an announcement after a tournament refresh.
type Notifier interface {
	// Notify announces the tournament's current standings.
	Notify(evt *model.Event, tournament *model.Tournament) error
}

// maxPostLen is the Twitter character budget.
const maxPostLen = 280

// formatUpdate renders a refreshed tournament as a short standings
// post: the club's players ordered by ranking, as many as fit.
func formatUpdate(evt *model.Event, tournament *model.Tournament) string {
	header := fmt.Sprintf("%s - %s\n", evt.Name, tournament.Name)
	if round := lastPlayedRound(tournament); round > 0 {
		header += fmt.Sprintf("Ronde %d\n", round)
	}

	players := make([]model.Player, len(tournament.Players))
	copy(players, tournament.Players)
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Ranking != players[j].Ranking {
			// Unranked players (0) sort last.
			if players[i].Ranking == 0 {
				return false
			}
			if players[j].Ranking == 0 {
				return true
			}
			return players[i].Ranking < players[j].Ranking
		}
		return players[i].Points > players[j].Points
	})

	post := header
	for _, p := range players {
		line := fmt.Sprintf("%d. %s %s pts\n", p.Ranking, p.Name, formatPoints(p.Points))
		if p.Ranking == 0 {
			line = fmt.Sprintf("%s %s pts\n", p.Name, formatPoints(p.Points))
		}
		if len(post)+len(line) > maxPostLen {
			break
		}
		post += line
	}
	return strings.TrimRight(post, "\n")
}

// formatPoints prints chess points the French way, halves included:
// 4.5 renders as "4,5".
func formatPoints(points float64) string {
	s := strconv.FormatFloat(points, 'f', -1, 64)
	return strings.Replace(s, ".", ",", 1)
}

func lastPlayedRound(tournament *model.Tournament) int {
	round := 0
	for _, p := range tournament.Players {
		for _, r := range p.Results {
			if r.Round > round {
				round = r.Round
			}
		}
	}
	return round
}
