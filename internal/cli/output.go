package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// WriteIdentity renders the configured club.
func WriteIdentity(w io.Writer, id *model.ClubIdentity, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, id)
	}
	fmt.Fprintf(w, "Club:      %s\n", id.Name)
	fmt.Fprintf(w, "Namespace: %s\n", id.Slug)
	fmt.Fprintf(w, "Created:   %s\n", id.CreatedAt.Format("2006-01-02"))
	return nil
}

// WriteEvents renders the event list, current event first-class.
func WriteEvents(w io.Writer, data *model.StorageData, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, data.Events)
	}

	if len(data.Events) == 0 {
		fmt.Fprintln(w, "No events tracked.")
		return nil
	}
	for _, evt := range data.Events {
		marker := " "
		if evt.ID == data.CurrentEventID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  %s\n", marker, evt.ID, evt.Name)
		if evt.ClubName != "" {
			fmt.Fprintf(w, "    club: %s\n", evt.ClubName)
		}
		for i := range evt.Tournaments {
			t := &evt.Tournaments[i]
			fmt.Fprintf(w, "    %s  %s (%d players)", t.ID, t.Name, len(t.Players))
			if !t.LastUpdate.IsZero() {
				fmt.Fprintf(w, " updated %s", t.LastUpdate.Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}
