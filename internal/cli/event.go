package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/fetch"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/store"
)

func newEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Manage tracked events",
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an event and make it current",
		Args:  cobra.ExactArgs(1),
		RunE:  runEventAdd,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tracked events",
		Args:  cobra.NoArgs,
		RunE:  runEventList,
	}

	rm := &cobra.Command{
		Use:   "rm <event-id>",
		Short: "Delete an event and its validations",
		Args:  cobra.ExactArgs(1),
		RunE:  runEventRemove,
	}

	use := &cobra.Command{
		Use:   "use <event-id>",
		Short: "Make an event current",
		Args:  cobra.ExactArgs(1),
		RunE:  runEventUse,
	}

	cmd.AddCommand(add, list, rm, use)
	return cmd
}

func runEventAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}

	evt := model.NewEvent(args[0])
	if err := a.store.SaveEvent(id.Slug, evt); err != nil {
		return err
	}
	fmt.Printf("Event %q created (%s)\n", evt.Name, evt.ID)
	return nil
}

func runEventList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}
	data, err := a.store.Load(id.Slug)
	if err != nil {
		return err
	}
	format, err := outputFormat()
	if err != nil {
		return err
	}
	return WriteEvents(cmd.OutOrStdout(), data, format)
}

func runEventRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}
	if err := a.store.DeleteEvent(id.Slug, args[0]); err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			return fmt.Errorf("no event with id %s", args[0])
		}
		return err
	}
	fmt.Println("Event deleted.")
	return nil
}

func runEventUse(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}
	data, err := a.store.Load(id.Slug)
	if err != nil {
		return err
	}
	evt := data.Event(args[0])
	if evt == nil {
		return fmt.Errorf("no event with id %s", args[0])
	}
	data.CurrentEventID = evt.ID
	if err := a.store.Save(id.Slug, data); err != nil {
		return err
	}
	fmt.Printf("Current event is now %q\n", evt.Name)
	return nil
}

func newTournamentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tournament",
		Short: "Manage the current event's tournaments",
	}

	add := &cobra.Command{
		Use:   "add <name> <federation-url>",
		Short: "Attach a federation tournament to the current event",
		Args:  cobra.ExactArgs(2),
		RunE:  runTournamentAdd,
	}

	cmd.AddCommand(add)
	return cmd
}

func runTournamentAdd(cmd *cobra.Command, args []string) error {
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

	client := fetch.New(a.cfg.Federation.Host)
	if err := client.ValidateURL(args[1]); err != nil {
		return fmt.Errorf("invalid tournament URL: %w", err)
	}

	evt.Tournaments = append(evt.Tournaments, model.Tournament{
		ID:   store.NewEventID(),
		Name: args[0],
		URL:  args[1],
	})
	if err := a.store.SaveEvent(id.Slug, evt); err != nil {
		return err
	}
	fmt.Printf("Tournament %q attached to %q\n", args[0], evt.Name)
	return nil
}
