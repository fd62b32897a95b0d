package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/remote"
)

var (
	flagSyncServer     string
	flagSyncSecret     string
	flagSyncPassphrase string
	flagSyncRemember   bool
)

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagSyncServer, "server", "", "Sync server base URL (overrides configuration)")
	cmd.Flags().StringVar(&flagSyncSecret, "secret", "", "Sync secret (overrides configuration and stored credentials)")
	cmd.Flags().StringVar(&flagSyncPassphrase, "passphrase", "", "Passphrase unlocking the stored sync secret")
	cmd.Flags().BoolVar(&flagSyncRemember, "remember", false, "Store the secret encrypted under the passphrase for later runs")
}

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload the club's full document to the sync server",
		Args:  cobra.NoArgs,
		RunE:  runPush,
	}
	addSyncFlags(cmd)
	return cmd
}

func newPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the remote document and merge it into the local one",
		Long: `Download the club's remote document and merge it into the local
one. The merge keeps local-only events and lets local validation flags
win over remote ones; it never deletes a local record.`,
		Args: cobra.NoArgs,
		RunE: runPull,
	}
	addSyncFlags(cmd)
	return cmd
}

func (a *app) syncClient() (*remote.Client, string, error) {
	server := flagSyncServer
	if server == "" {
		server = a.cfg.Sync.Server
	}
	if server == "" {
		return nil, "", fmt.Errorf("no sync server configured, set sync.server or pass --server")
	}

	secret, err := a.resolveSecret()
	if err != nil {
		return nil, "", err
	}
	return remote.New(server, secret), server, nil
}

// resolveSecret looks for the sync secret by precedence: the --secret
// flag, the configuration, then the encrypted credentials file.
func (a *app) resolveSecret() (string, error) {
	if flagSyncSecret != "" {
		if flagSyncRemember {
			if flagSyncPassphrase == "" {
				return "", fmt.Errorf("--remember needs --passphrase")
			}
			if err := a.store.SaveSyncSecret(flagSyncSecret, flagSyncPassphrase); err != nil {
				return "", fmt.Errorf("storing sync secret: %w", err)
			}
		}
		return flagSyncSecret, nil
	}
	if a.cfg.Sync.Secret != "" {
		return a.cfg.Sync.Secret, nil
	}
	if flagSyncPassphrase != "" {
		secret, err := a.store.LoadSyncSecret(flagSyncPassphrase)
		if err != nil {
			return "", fmt.Errorf("unlocking stored sync secret: %w", err)
		}
		return secret, nil
	}
	return "", fmt.Errorf("no sync secret available, pass --secret or --passphrase")
}

func runPush(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}
	client, server, err := a.syncClient()
	if err != nil {
		return err
	}

	data, err := a.store.Load(id.Slug)
	if err != nil {
		return err
	}
	synced, err := client.Push(cmd.Context(), id.Slug, data)
	if err != nil {
		return err
	}
	fmt.Printf("Pushed %d events to %s\n", synced, server)
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.identity()
	if err != nil {
		return err
	}
	client, server, err := a.syncClient()
	if err != nil {
		return err
	}

	remoteData, err := client.Pull(cmd.Context(), id.Slug)
	if err != nil {
		return err
	}
	local, err := a.store.Load(id.Slug)
	if err != nil {
		return err
	}

	merged := remote.Merge(local, remoteData)
	if err := a.store.Save(id.Slug, merged); err != nil {
		return err
	}
	fmt.Printf("Pulled from %s, %d events after merge\n", server, len(merged.Events))
	return nil
}
