package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jiralite/api/internal/aicache"
	"jiralite/api/internal/board"
	"jiralite/api/internal/client"
	"jiralite/api/internal/reconcile"
)

func newLoginCmd(g *globals) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := g.client().SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "signed in as %s\n", sess.UserName)
			fmt.Fprintf(out, "export JIRALITE_TOKEN=%s\n", sess.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newTeamsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List your teams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			teams, err := g.client().Teams(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tROLE")
			for _, t := range teams {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Name, t.MyRole)
			}
			return tw.Flush()
		},
	}
}

func newProjectsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "projects <team-id>",
		Short: "List a team's projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			projects, err := g.client().Projects(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFLAGS")
			for _, p := range projects {
				var flags []string
				if p.IsFavorite {
					flags = append(flags, "favorite")
				}
				if p.IsArchived {
					flags = append(flags, "archived")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, strings.Join(flags, ","))
			}
			return tw.Flush()
		},
	}
}

func printBoard(cmd *cobra.Command, b *board.Board) {
	out := cmd.OutOrStdout()
	if b.Archived() {
		fmt.Fprintln(out, "(archived, read-only)")
	}
	for _, col := range b.Columns() {
		header := fmt.Sprintf("%s [%d]", col.Status.Name, len(col.Cards))
		if col.Status.WIPLimit != nil {
			header = fmt.Sprintf("%s [%d/%d]", col.Status.Name, len(col.Cards), *col.Status.WIPLimit)
		}
		if col.OverLimit() {
			header += " over WIP limit"
		}
		fmt.Fprintln(out, header)
		for _, card := range col.Cards {
			fmt.Fprintf(out, "  %d. %s  %s (%s)\n", card.Position, card.ID, card.Title, card.Priority)
		}
	}
}

func newBoardCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "board <project-id>",
		Short: "Show a project's kanban board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			b, err := g.client().OpenBoard(cmd.Context(), args[0], notifier(cmd))
			if err != nil {
				return err
			}
			printBoard(cmd, b)
			return nil
		},
	}
}

func newMoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "move <project-id> <issue-id> <status-id> <index>",
		Short: "Move an issue to a column slot",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			index, err := strconv.Atoi(args[3])
			if err != nil || index < 0 {
				return fmt.Errorf("index must be a non-negative integer")
			}
			b, err := g.client().OpenBoard(cmd.Context(), args[0], notifier(cmd))
			if err != nil {
				return err
			}
			from, ok := locate(b, args[1])
			if !ok {
				return fmt.Errorf("issue %s is not on this board", args[1])
			}
			if b.Archived() {
				return errors.New("project is archived")
			}
			if err := b.Drop(cmd.Context(), args[1], from, &board.Location{StatusID: args[2], Index: index}); err != nil {
				return err
			}
			printBoard(cmd, b)
			return nil
		},
	}
}

func locate(b *board.Board, cardID string) (board.Location, bool) {
	for _, col := range b.Columns() {
		for i, card := range col.Cards {
			if card.ID == cardID {
				return board.Location{StatusID: col.Status.ID, Index: i}, true
			}
		}
	}
	return board.Location{}, false
}

func newCommentCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "comment", Short: "Read and write issue comments"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <issue-id>",
			Short: "List an issue's comments",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireToken(g); err != nil {
					return err
				}
				list := g.client().NewCommentList(args[0], nil, notifier(cmd))
				if err := list.Load(cmd.Context()); err != nil {
					return err
				}
				for _, c := range list.Items() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s: %s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.UserName, c.Content)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <issue-id> <text>...",
			Short: "Comment on an issue",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireToken(g); err != nil {
					return err
				}
				list := g.client().NewCommentList(args[0], nil, notifier(cmd))
				created, err := list.Add(cmd.Context(), client.Comment{Content: strings.Join(args[1:], " ")})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), created.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "edit <issue-id> <comment-id> <text>...",
			Short: "Rewrite one of your comments",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := loadCommentList(cmd, g, args[0], args[1])
				if err != nil {
					return err
				}
				content := strings.Join(args[2:], " ")
				return list.Edit(cmd.Context(), args[1], func(c client.Comment) client.Comment {
					c.Content = content
					return c
				})
			},
		},
		&cobra.Command{
			Use:   "delete <issue-id> <comment-id>",
			Short: "Delete one of your comments",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := loadCommentList(cmd, g, args[0], args[1])
				if err != nil {
					return err
				}
				return list.Delete(cmd.Context(), args[1])
			},
		},
	)
	return cmd
}

// loadCommentList loads the issue's comments and fails unless commentID is
// one of them.
func loadCommentList(cmd *cobra.Command, g *globals, issueID, commentID string) (*reconcile.List[client.Comment], error) {
	if err := requireToken(g); err != nil {
		return nil, err
	}
	list := g.client().NewCommentList(issueID, nil, notifier(cmd))
	if err := list.Load(cmd.Context()); err != nil {
		return nil, err
	}
	if !contains(list.Items(), commentID) {
		return nil, fmt.Errorf("comment %s not found on issue %s", commentID, issueID)
	}
	return list, nil
}

func loadSubtaskList(cmd *cobra.Command, g *globals, issueID, subtaskID string) (*reconcile.List[client.Subtask], error) {
	if err := requireToken(g); err != nil {
		return nil, err
	}
	list := g.client().NewSubtaskList(issueID, notifier(cmd))
	if err := list.Load(cmd.Context()); err != nil {
		return nil, err
	}
	if !contains(list.Items(), subtaskID) {
		return nil, fmt.Errorf("subtask %s not found on issue %s", subtaskID, issueID)
	}
	return list, nil
}

func contains[T interface{ RecordID() string }](items []T, id string) bool {
	for _, it := range items {
		if it.RecordID() == id {
			return true
		}
	}
	return false
}

func printSubtasks(cmd *cobra.Command, items []client.Subtask) {
	for _, st := range items {
		mark := " "
		if st.IsCompleted {
			mark = "x"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s  %s\n", mark, st.ID, st.Title)
	}
}

func newSubtaskCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "subtask", Short: "Manage an issue's checklist"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <issue-id> <title>...",
			Short: "Add a subtask",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireToken(g); err != nil {
					return err
				}
				list := g.client().NewSubtaskList(args[0], notifier(cmd))
				if err := list.Load(cmd.Context()); err != nil {
					return err
				}
				created, err := list.Add(cmd.Context(), client.Subtask{Title: strings.Join(args[1:], " ")})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), created.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "toggle <issue-id> <subtask-id>",
			Short: "Flip a subtask between done and open",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := loadSubtaskList(cmd, g, args[0], args[1])
				if err != nil {
					return err
				}
				if err := list.Toggle(cmd.Context(), args[1]); err != nil {
					return err
				}
				printSubtasks(cmd, list.Items())
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <issue-id> <subtask-id> <title>...",
			Short: "Retitle a subtask",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := loadSubtaskList(cmd, g, args[0], args[1])
				if err != nil {
					return err
				}
				title := strings.Join(args[2:], " ")
				if err := list.Edit(cmd.Context(), args[1], func(st client.Subtask) client.Subtask {
					st.Title = title
					return st
				}); err != nil {
					return err
				}
				printSubtasks(cmd, list.Items())
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <issue-id> <subtask-id>",
			Short: "Remove a subtask",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := loadSubtaskList(cmd, g, args[0], args[1])
				if err != nil {
					return err
				}
				if err := list.Delete(cmd.Context(), args[1]); err != nil {
					return err
				}
				printSubtasks(cmd, list.Items())
				return nil
			},
		},
	)
	return cmd
}

func newIssueCmd(g *globals) *cobra.Command {
	var title, description, priority string
	update := &cobra.Command{
		Use:   "update <issue-id>",
		Short: "Change an issue's title, description or priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			var patch client.IssuePatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if patch == (client.IssuePatch{}) {
				return errors.New("nothing to update: pass --title, --description or --priority")
			}
			c := g.client()
			before, err := c.Issue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			updated, err := c.UpdateIssue(cmd.Context(), before, patch, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s)\n", updated.ID, updated.Title, updated.Priority)
			return nil
		},
	}
	update.Flags().StringVar(&title, "title", "", "new title")
	update.Flags().StringVar(&description, "description", "", "new description")
	update.Flags().StringVar(&priority, "priority", "", "HIGH, MEDIUM or LOW")

	cmd := &cobra.Command{Use: "issue", Short: "Edit issues"}
	cmd.AddCommand(update)
	return cmd
}

func newAICmd(g *globals) *cobra.Command {
	var typ string
	var force bool
	generate := &cobra.Command{
		Use:   "generate <issue-id>",
		Short: "Show or generate an AI artifact for an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			artifactType, err := aicache.ParseType(typ)
			if err != nil {
				return err
			}
			c := g.client()
			issue, err := c.Issue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			comments, err := c.Comments(args[0]).List(cmd.Context())
			if err != nil {
				return err
			}
			ai := c.AI(nil)
			if _, err := ai.Sync(cmd.Context(), issue.ID); err != nil {
				return err
			}
			artifact, err := ai.Artifact(cmd.Context(), issue, len(comments), artifactType, force)
			var rateErr *aicache.RateLimitError
			if errors.As(err, &rateErr) {
				return fmt.Errorf("rate limited, try again in %ds", rateErr.RetryAfterSeconds())
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), artifact.Content)
			return nil
		},
	}
	generate.Flags().StringVar(&typ, "type", string(aicache.Summary), "summary, suggestion or comment_summary")
	generate.Flags().BoolVar(&force, "force", false, "regenerate even when a current artifact exists")

	cmd := &cobra.Command{Use: "ai", Short: "AI summaries and suggestions"}
	cmd.AddCommand(generate)
	return cmd
}

func newSearchCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search issues and projects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			results, err := g.client().Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tID\tTITLE")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Type, r.ID, r.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}
