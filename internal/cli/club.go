package cli

import (
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/cobra"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/tracker"
)

var (
	flagChangeConfirm bool
	flagChangeCancel  bool
)

func newClubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "club",
		Short: "Manage the club identity and its binding to events",
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create the club identity this device tracks",
		Args:  cobra.ExactArgs(1),
		RunE:  runClubCreate,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the configured club",
		Args:  cobra.NoArgs,
		RunE:  runClubShow,
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove the club identity (local data is kept)",
		Args:  cobra.NoArgs,
		RunE:  runClubClear,
	}

	sel := &cobra.Command{
		Use:   "select <club-name>",
		Short: "Bind a discovered club to the current event and fetch results",
		Long: `Bind one of the clubs discovered on the tournament statistics page
to the current event. The name may be approximate, the closest
discovered club wins. All tournaments of the event are refreshed.`,
		Args: cobra.ExactArgs(1),
		RunE: runClubSelect,
	}

	change := &cobra.Command{
		Use:   "change",
		Short: "Unbind the current event's club",
		Long: `Unbind the current event's club. When results have already been
recorded the change must be confirmed with --confirm, because it
discards every recorded player and validation. A requested change can
be abandoned with --cancel.`,
		Args: cobra.NoArgs,
		RunE: runClubChange,
	}
	change.Flags().BoolVar(&flagChangeConfirm, "confirm", false, "Apply a requested club change")
	change.Flags().BoolVar(&flagChangeCancel, "cancel", false, "Abandon a requested club change")

	cmd.AddCommand(create, show, clear, sel, change)
	return cmd
}

func runClubCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.store.CreateIdentity(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Club %q created (namespace %s)\n", id.Name, id.Slug)
	return nil
}

func runClubShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}
	format, err := outputFormat()
	if err != nil {
		return err
	}
	return WriteIdentity(cmd.OutOrStdout(), id, format)
}

func runClubClear(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.store.ClearIdentity(); err != nil {
		return err
	}
	fmt.Println("Club identity removed.")
	return nil
}

func runClubSelect(cmd *cobra.Command, args []string) error {
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

	clubName, err := matchClub(args[0], evt.AvailableClubs)
	if err != nil {
		return err
	}
	fmt.Printf("Selecting club %q\n", clubName)

	tr := a.tracker(id.Slug)
	if err := tr.HandleClubSelect(cmd.Context(), evt.ID, clubName); err != nil {
		return err
	}

	evt, err = a.store.GetEvent(id.Slug, evt.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Fetched %d players across %d tournaments.\n", evt.PlayerCount(), len(evt.Tournaments))
	return nil
}

func runClubChange(cmd *cobra.Command, args []string) error {
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
	tr := a.tracker(id.Slug)

	if flagChangeCancel {
		fmt.Println("Nothing to cancel in a fresh session.")
		return nil
	}
	msg, err := unbindClub(tr, evt.ID, flagChangeConfirm)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

// unbindClub runs the request/confirm sequence for a club change. With
// no recorded players the request alone unbinds the club, so a confirm
// on a player-less event must not fail on the absent pending change.
func unbindClub(tr *tracker.Tracker, eventID string, confirmed bool) (string, error) {
	needsConfirm, err := tr.RequestChangeClub(eventID)
	if err != nil {
		return "", err
	}
	if !needsConfirm {
		return "Club unbound.", nil
	}
	if !confirmed {
		return "This event has recorded players. Re-run with --confirm to discard them.", nil
	}
	if err := tr.ConfirmChangeClub(eventID); err != nil {
		return "", err
	}
	return "Club unbound, recorded players discarded.", nil
}

// matchClub resolves an approximate club name against the discovered
// list. Exact matches win, otherwise the closest fuzzy match does.
func matchClub(query string, clubs []model.ClubInfo) (string, error) {
	if len(clubs) == 0 {
		return "", fmt.Errorf("no clubs discovered yet, run 'njt refresh' first")
	}

	names := make([]string, len(clubs))
	for i, c := range clubs {
		names[i] = c.Name
	}

	ranks := fuzzy.RankFindNormalizedFold(query, names)
	if len(ranks) == 0 {
		return "", fmt.Errorf("no club matching %q among the %d discovered clubs", query, len(clubs))
	}
	sort.Sort(ranks)
	return ranks[0].Target, nil
}
