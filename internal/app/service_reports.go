package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"jiralite/api/internal/export"
	"jiralite/api/internal/rbac"
	"jiralite/api/internal/store"
)

const dashboardRecentIssues = 10

// Dashboard loads the project's counters and latest issues concurrently.
func (s *Service) Dashboard(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}

	var (
		stats  store.ProjectStats
		recent []store.Issue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.store.ProjectStats(gctx, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.store.ListRecentIssues(gctx, projectID, dashboardRecentIssues)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byStatus := make([]map[string]any, 0, len(stats.ByStatus))
	for _, sc := range stats.ByStatus {
		byStatus = append(byStatus, map[string]any{
			"statusId": sc.StatusID,
			"name":     sc.Name,
			"color":    sc.Color,
			"count":    sc.Count,
		})
	}
	byPriority := map[string]int{"HIGH": 0, "MEDIUM": 0, "LOW": 0}
	for k, v := range stats.ByPriority {
		byPriority[k] = v
	}
	return map[string]any{
		"project":      projectJSON(project),
		"total":        stats.Total,
		"overdue":      stats.Overdue,
		"byStatus":     byStatus,
		"byPriority":   byPriority,
		"recentIssues": mapList(recent, issueJSON),
	}, nil
}

func (s *Service) ExportProject(ctx context.Context, session Session, projectID string, format export.Format) (*export.Result, error) {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	exporter := export.NewService(reportSource{store: s.store, userID: session.UserID})
	result, err := exporter.Export(ctx, export.Request{ProjectID: projectID, Format: format, Now: s.now()})
	if err != nil {
		s.log.Warn("project export failed", "project_id", projectID, "format", string(format), "error", err)
		return nil, err
	}
	return result, nil
}

// reportSource adapts the store to the export package.
type reportSource struct {
	store  dataStore
	userID string
}

func (r reportSource) ReportProject(ctx context.Context, projectID string) (export.ProjectInfo, error) {
	p, err := r.store.GetProject(ctx, projectID, r.userID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	team, err := r.store.GetTeam(ctx, p.TeamID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	return export.ProjectInfo{ID: p.ID, Name: p.Name, Description: p.Description, TeamName: team.Name}, nil
}

func (r reportSource) ReportStatuses(ctx context.Context, projectID string) ([]export.StatusInfo, error) {
	statuses, err := r.store.ListStatuses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]export.StatusInfo, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, export.StatusInfo{ID: st.ID, Name: st.Name, Color: st.Color})
	}
	return out, nil
}

func (r reportSource) ReportIssues(ctx context.Context, projectID string) ([]export.IssueInfo, error) {
	issues, err := r.store.ListIssues(ctx, projectID, store.IssueFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]export.IssueInfo, 0, len(issues))
	for _, it := range issues {
		out = append(out, export.IssueInfo{
			Title:        it.Title,
			StatusID:     it.StatusID,
			Priority:     it.Priority,
			AssigneeName: it.AssigneeName,
			DueDate:      it.DueDate,
		})
	}
	return out, nil
}
