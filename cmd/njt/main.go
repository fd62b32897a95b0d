// Command njt is the club-side CLI: it manages the club identity,
// tracked events and tournaments, refreshes results from the
// federation site and synchronizes against a sync server.
package main

import (
	"github.com/joho/godotenv"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/cli"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/logging"
)

func main() {
	// A missing .env file is fine, variables may come from the shell.
	_ = godotenv.Load()

	logging.Init(logging.Config{Level: "warn", Format: "console"})
	cli.Execute()
}
