package export

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// DataStore defines the interface for data access
type DataStore interface {
	ReportProject(ctx context.Context, projectID string) (ProjectInfo, error)
	ReportStatuses(ctx context.Context, projectID string) ([]StatusInfo, error)
	ReportIssues(ctx context.Context, projectID string) ([]IssueInfo, error)
}

// Service provides project report export
type Service struct {
	store     DataStore
	renderPDF func(ctx context.Context, html, title string) (*Result, error)
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store, renderPDF: exportPDF}
}

// Export generates a report in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Format != FormatPDF && req.Format != FormatHTML {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	var (
		project  ProjectInfo
		statuses []StatusInfo
		issues   []IssueInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		project, err = s.store.ReportProject(gctx, req.ProjectID)
		if err != nil {
			return fmt.Errorf("get project: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		statuses, err = s.store.ReportStatuses(gctx, req.ProjectID)
		if err != nil {
			return fmt.Errorf("list statuses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		issues, err = s.store.ReportIssues(gctx, req.ProjectID)
		if err != nil {
			return fmt.Errorf("list issues: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	html, err := RenderReportHTML(buildTemplateData(project, statuses, issues, now))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(project.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	default:
		return s.renderPDF(ctx, html, project.Name)
	}
}

var priorityOrder = []string{"HIGH", "MEDIUM", "LOW"}

func buildTemplateData(project ProjectInfo, statuses []StatusInfo, issues []IssueInfo, now time.Time) TemplateData {
	data := TemplateData{
		Title:       project.Name,
		Description: project.Description,
		TeamName:    project.TeamName,
		GeneratedAt: now,
		Total:       len(issues),
	}

	names := make(map[string]string, len(statuses))
	counts := make(map[string]int, len(statuses))
	for _, st := range statuses {
		names[st.ID] = st.Name
	}
	priorities := map[string]int{}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, it := range issues {
		counts[it.StatusID]++
		priorities[it.Priority]++
		overdue := it.DueDate != nil && it.DueDate.Before(today)
		if overdue {
			data.Overdue++
		}
		data.Issues = append(data.Issues, TemplateIssue{
			Title:    it.Title,
			Status:   names[it.StatusID],
			Priority: it.Priority,
			Assignee: it.AssigneeName,
			DueDate:  it.DueDate,
			Overdue:  overdue,
		})
	}
	for _, st := range statuses {
		data.ByStatus = append(data.ByStatus, TemplateCount{Label: st.Name, Color: st.Color, Count: counts[st.ID]})
	}
	for _, p := range priorityOrder {
		data.ByPriority = append(data.ByPriority, TemplateCount{Label: p, Count: priorities[p]})
	}
	return data
}
