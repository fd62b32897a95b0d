package notifier

import (
	"fmt"
	"io"
	"os"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

// DryRunNotifier prints what would be posted without actually posting.
type DryRunNotifier struct {
	out io.Writer
}

// NewDryRunNotifier creates a dry-run notifier writing to stdout.
func NewDryRunNotifier() *DryRunNotifier {
	return &DryRunNotifier{out: os.Stdout}
}

// Notify prints the post that would be published.
func (n *DryRunNotifier) Notify(evt *model.Event, tournament *model.Tournament) error {
	post := formatUpdate(evt, tournament)
	fmt.Fprintf(n.out, "--- %s ---\n%s\n\n(Length: %d characters)\n", tournament.Name, post, len(post))
	return nil
}
