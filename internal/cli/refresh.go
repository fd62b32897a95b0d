package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

var flagRefreshTournament string

func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the latest results for the current event",
		Long: `Fetch the latest pages for the current event's tournaments. While
the event has no bound club this discovers the clubs playing in the
tournament; once a club is bound it refreshes the players' results.`,
		Args: cobra.NoArgs,
		RunE: runRefresh,
	}
	cmd.Flags().StringVar(&flagRefreshTournament, "tournament", "", "Refresh a single tournament by id")
	return cmd
}

func runRefresh(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}
	evt, err := a.currentEvent(id.Slug)
	if err != nil {
		return err
	}
	if len(evt.Tournaments) == 0 {
		return fmt.Errorf("event %q has no tournaments, run 'njt tournament add' first", evt.Name)
	}

	tr := a.tracker(id.Slug)
	refreshed := 0
	for i := range evt.Tournaments {
		t := &evt.Tournaments[i]
		if flagRefreshTournament != "" && t.ID != flagRefreshTournament {
			continue
		}
		refreshed++
		if err := tr.HandleRefresh(cmd.Context(), evt.ID, t.ID); err != nil {
			fmt.Printf("%s: %s\n", t.Name, tr.Err(t.ID))
			continue
		}
		reportRefresh(a, id.Slug, evt.ID, t.ID, t.Name)
	}
	if flagRefreshTournament != "" && refreshed == 0 {
		return fmt.Errorf("no tournament with id %s", flagRefreshTournament)
	}
	return nil
}

func reportRefresh(a *app, slug, eventID, tournamentID, name string) {
	evt, err := a.store.GetEvent(slug, eventID)
	if err != nil {
		return
	}
	if evt.ClubName == "" {
		fmt.Printf("%s: discovered %d clubs, bind one with 'njt club select'\n", name, len(evt.AvailableClubs))
		return
	}
	if t := evt.Tournament(tournamentID); t != nil {
		fmt.Printf("%s: %d players updated\n", name, len(t.Players))
	}
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <tournament-id> <player-name> <round>",
		Short: "Mark a player's round result as manually checked",
		Long: `Mark a player's round result as checked by the club's bookkeeper.
The flag survives result refreshes. Use --off to clear it.`,
		Args: cobra.ExactArgs(3),
		RunE: runValidate,
	}
	cmd.Flags().Bool("off", false, "Clear the flag instead of setting it")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}

	round, err := strconv.Atoi(args[2])
	if err != nil || round < 1 {
		return fmt.Errorf("invalid round number %q", args[2])
	}
	off, _ := cmd.Flags().GetBool("off")
	player := model.NormalizeName(args[1])

	if err := a.store.SetValidation(id.Slug, args[0], player, round, !off); err != nil {
		return err
	}
	if off {
		fmt.Printf("Round %d of %s unchecked.\n", round, player)
	} else {
		fmt.Printf("Round %d of %s checked.\n", round, player)
	}
	return nil
}
