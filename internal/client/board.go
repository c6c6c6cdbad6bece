package client

import (
	"context"
	"net/http"

	"jiralite/api/internal/board"
	"jiralite/api/internal/notify"
)

// BoardRemote backs a board.Board with a project's board endpoint.
type BoardRemote struct {
	client    *Client
	projectID string
}

func (c *Client) Board(projectID string) *BoardRemote {
	return &BoardRemote{client: c, projectID: projectID}
}

func (r *BoardRemote) MoveIssue(ctx context.Context, issueID, statusID string, position int) error {
	return r.client.do(ctx, http.MethodPost, "/api/issues/"+issueID+"/move", map[string]any{
		"statusId": statusID,
		"position": position,
	}, nil)
}

type boardPayload struct {
	Archived bool `json:"archived"`
	Statuses []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Color    string `json:"color"`
		Position int    `json:"position"`
		WIPLimit *int   `json:"wipLimit"`
	} `json:"statuses"`
	Issues []Issue `json:"issues"`
}

func (r *BoardRemote) LoadBoard(ctx context.Context) (board.Snapshot, error) {
	var payload boardPayload
	if err := r.client.do(ctx, http.MethodGet, "/api/projects/"+r.projectID+"/board", nil, &payload); err != nil {
		return board.Snapshot{}, err
	}
	snap := board.Snapshot{
		Archived: payload.Archived,
		Statuses: make([]board.Status, 0, len(payload.Statuses)),
		Cards:    make([]board.Card, 0, len(payload.Issues)),
	}
	for _, st := range payload.Statuses {
		snap.Statuses = append(snap.Statuses, board.Status{
			ID:       st.ID,
			Name:     st.Name,
			Color:    st.Color,
			Position: st.Position,
			WIPLimit: st.WIPLimit,
		})
	}
	for _, it := range payload.Issues {
		card := board.Card{
			ID:       it.ID,
			Title:    it.Title,
			StatusID: it.StatusID,
			Position: it.Position,
			Priority: it.Priority,
		}
		if it.AssigneeID != nil {
			card.AssigneeID = *it.AssigneeID
		}
		if it.DueDate != nil {
			card.DueDate = *it.DueDate
		}
		snap.Cards = append(snap.Cards, card)
	}
	return snap, nil
}

// OpenBoard loads the project's board. A failed read returns an empty board
// and the error; the board has already signalled it.
func (c *Client) OpenBoard(ctx context.Context, projectID string, notifier notify.Notifier) (*board.Board, error) {
	b := board.New(c.Board(projectID), board.Snapshot{}, notifier)
	if err := b.Load(ctx); err != nil {
		return b, err
	}
	return b, nil
}
