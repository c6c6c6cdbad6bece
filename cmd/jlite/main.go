// Command jlite is a terminal client for the Jira Lite API. Board moves and
// list edits are applied optimistically and rolled back if the server
// refuses them.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"jiralite/api/internal/client"
	"jiralite/api/internal/notify"
)

type globals struct {
	apiURL string
	token  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "jlite",
		Short:        "Work with Jira Lite projects from the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.apiURL, "api", envOr("JIRALITE_API_URL", "http://localhost:8788"), "API base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("JIRALITE_TOKEN"), "access token")

	root.AddCommand(
		newLoginCmd(g),
		newTeamsCmd(g),
		newProjectsCmd(g),
		newBoardCmd(g),
		newMoveCmd(g),
		newCommentCmd(g),
		newSubtaskCmd(g),
		newIssueCmd(g),
		newAICmd(g),
		newSearchCmd(g),
	)
	return root
}

func (g *globals) client() *client.Client {
	return client.New(g.apiURL, g.token)
}

func notifier(cmd *cobra.Command) notify.Notifier {
	return notify.NewWriter(cmd.ErrOrStderr())
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func requireToken(g *globals) error {
	if g.token == "" {
		return fmt.Errorf("no access token: run `jlite login` and export JIRALITE_TOKEN")
	}
	return nil
}
