package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/store"
)

var (
	flagExportOut  string
	flagImportKeep bool
	flagImportCode string
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <event-id>",
		Short: "Export an event to a JSON envelope",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().StringVar(&flagExportOut, "out", "", "Write to a file instead of stdout")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}

	env, err := a.store.ExportEvent(id.Slug, args[0])
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}

	if flagExportOut != "" {
		if err := os.WriteFile(flagExportOut, raw, 0o600); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		fmt.Printf("Event exported to %s\n", flagExportOut)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import an exported event envelope or a share code",
		Long: `Import an event exported on another device, either from a JSON
envelope file or from a share code printed by 'njt share'. A corrupt
file or code is rejected without touching the local data.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runImport,
	}
	cmd.Flags().BoolVar(&flagImportKeep, "keep-both", false, "On id collision keep both copies instead of replacing")
	cmd.Flags().StringVar(&flagImportCode, "code", "", "Import from a share code instead of a file")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	if (flagImportCode == "") == (len(args) == 0) {
		return fmt.Errorf("pass either a file or --code")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}

	policy := store.ReplaceIfExists
	if flagImportKeep {
		policy = store.KeepBoth
	}

	if flagImportCode != "" {
		evt, err := a.store.ImportShare(id.Slug, flagImportCode, policy)
		if err != nil {
			return fmt.Errorf("invalid share code: %w", err)
		}
		fmt.Printf("Event %q imported (%s)\n", evt.Name, evt.ID)
		return nil
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading import file: %w", err)
	}
	var env store.ExportEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("malformed export envelope: %w", err)
	}

	evt, err := a.store.ImportEvent(id.Slug, &env, policy)
	if err != nil {
		return err
	}
	fmt.Printf("Event %q imported (%s)\n", evt.Name, evt.ID)
	return nil
}

func newShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <event-id>",
		Short: "Print a compact share code for an event",
		Long: `Print a compressed, URL-safe code carrying the whole event. The
code excludes validation flags. Events too large for a link-sized code
must be exchanged with export/import instead.`,
		Args: cobra.ExactArgs(1),
		RunE: runShare,
	}
}

func runShare(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}

	evt, err := a.store.GetEvent(id.Slug, args[0])
	if err != nil {
		return err
	}
	code, err := store.EncodeShare(evt)
	if errors.Is(err, store.ErrShareTooLarge) {
		return fmt.Errorf("event too large for a share code, use 'njt export' instead")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), code)
	return nil
}
