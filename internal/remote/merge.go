package remote

import (
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

// Merge reconciles a pulled remote document into the local one using a
// union by source precedence:
//
//   - events: remote events first, then every local event whose id the
//     remote set lacks — local-only creations survive a pull;
//   - validations: key union, local flags win where both sides define
//     the same key, remote fills the gaps;
//   - current event id: remote if it defines one, else local.
//
// The merge never deletes a local-only record. There is no timestamp
// comparison: if both sides edited the same record since the last
// push, the precedence rules above decide, which can keep a stale
// local edit over a newer remote one. Multi-device concurrent editing
// of the same record is a known limitation of the protocol.
func Merge(local, remote *model.StorageData) *model.StorageData {
	if local == nil {
		local = model.NewStorageData()
	}
	if remote == nil {
		remote = model.NewStorageData()
	}

	merged := model.NewStorageData()

	remoteIDs := make(map[string]bool, len(remote.Events))
	for _, evt := range remote.Events {
		remoteIDs[evt.ID] = true
		merged.Events = append(merged.Events, evt)
	}
	for _, evt := range local.Events {
		if !remoteIDs[evt.ID] {
			merged.Events = append(merged.Events, evt)
		}
	}

	for tournamentID, byPlayer := range remote.Validations {
		for player, byRound := range byPlayer {
			for round, ok := range byRound {
				merged.Validations.Set(tournamentID, player, round, ok)
			}
		}
	}
	for tournamentID, byPlayer := range local.Validations {
		for player, byRound := range byPlayer {
			for round, ok := range byRound {
				merged.Validations.Set(tournamentID, player, round, ok)
			}
		}
	}

	merged.CurrentEventID = remote.CurrentEventID
	if merged.CurrentEventID == "" {
		merged.CurrentEventID = local.CurrentEventID
	}
	return merged
}
