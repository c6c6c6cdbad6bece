package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	project  ProjectInfo
	statuses []StatusInfo
	issues   []IssueInfo
	issuesFn func() ([]IssueInfo, error)
}

func (f fakeStore) ReportProject(context.Context, string) (ProjectInfo, error) {
	return f.project, nil
}

func (f fakeStore) ReportStatuses(context.Context, string) ([]StatusInfo, error) {
	return f.statuses, nil
}

func (f fakeStore) ReportIssues(context.Context, string) ([]IssueInfo, error) {
	if f.issuesFn != nil {
		return f.issuesFn()
	}
	return f.issues, nil
}

func day(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func sampleStore() fakeStore {
	return fakeStore{
		project: ProjectInfo{ID: "p1", Name: "Mobile App", Description: "Q3 launch", TeamName: "Core"},
		statuses: []StatusInfo{
			{ID: "s1", Name: "Backlog", Color: "#6B7280"},
			{ID: "s2", Name: "Done", Color: "#10B981"},
		},
		issues: []IssueInfo{
			{Title: "Login crash", StatusID: "s1", Priority: "HIGH", AssigneeName: "Ada", DueDate: day("2024-06-01")},
			{Title: "Dark mode", StatusID: "s1", Priority: "LOW"},
			{Title: "Onboarding", StatusID: "s2", Priority: "MEDIUM", DueDate: day("2024-07-01")},
		},
	}
}

func TestExportHTMLReport(t *testing.T) {
	svc := NewService(sampleStore())
	result, err := svc.Export(context.Background(), Request{
		ProjectID: "p1",
		Format:    FormatHTML,
		Now:       time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "Mobile-App.html" || !strings.HasPrefix(result.MimeType, "text/html") {
		t.Fatalf("unexpected result metadata %+v", result)
	}
	html := string(result.Data)
	for _, want := range []string{"Mobile App", "Q3 launch", "3 issues", "1 overdue", "Login crash", "2024-06-01"} {
		if !strings.Contains(html, want) {
			t.Errorf("report should contain %q", want)
		}
	}
}

func TestBuildTemplateDataCounts(t *testing.T) {
	s := sampleStore()
	data := buildTemplateData(s.project, s.statuses, s.issues, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))

	if data.Total != 3 || data.Overdue != 1 {
		t.Fatalf("expected 3 total / 1 overdue, got %d / %d", data.Total, data.Overdue)
	}
	if len(data.ByStatus) != 2 || data.ByStatus[0].Count != 2 || data.ByStatus[1].Count != 1 {
		t.Fatalf("unexpected status counts %+v", data.ByStatus)
	}
	if data.ByPriority[0].Label != "HIGH" || data.ByPriority[0].Count != 1 {
		t.Fatalf("unexpected priority counts %+v", data.ByPriority)
	}
	if data.Issues[0].Status != "Backlog" || !data.Issues[0].Overdue {
		t.Fatalf("unexpected first row %+v", data.Issues[0])
	}
}

func TestExportPDFUsesRenderer(t *testing.T) {
	svc := NewService(sampleStore())
	var gotTitle string
	svc.renderPDF = func(_ context.Context, html, title string) (*Result, error) {
		gotTitle = title
		return &Result{Data: []byte("%PDF"), Filename: sanitizeFilename(title) + ".pdf", MimeType: "application/pdf"}, nil
	}
	result, err := svc.Export(context.Background(), Request{ProjectID: "p1", Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if gotTitle != "Mobile App" || result.Filename != "Mobile-App.pdf" {
		t.Fatalf("unexpected pdf result %q %+v", gotTitle, result)
	}
}

func TestExportPropagatesStoreErrors(t *testing.T) {
	s := sampleStore()
	boom := errors.New("boom")
	s.issuesFn = func() ([]IssueInfo, error) { return nil, boom }
	if _, err := NewService(s).Export(context.Background(), Request{ProjectID: "p1", Format: FormatHTML}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	if _, err := NewService(sampleStore()).Export(context.Background(), Request{Format: "docx"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRenderReportEscapesText(t *testing.T) {
	html, err := RenderReportHTML(TemplateData{Title: "<b>x</b>", Issues: []TemplateIssue{{Title: "<script>"}}})
	if err != nil {
		t.Fatalf("RenderReportHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>") || strings.Contains(html, "<b>x</b>") {
		t.Fatal("user text must be escaped")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Sprint v1.2", "Sprint-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "report"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeMultiByte(t *testing.T) {
	if got := percentEncodeForDataURL("é"); got != "%C3%A9" {
		t.Fatalf("expected UTF-8 bytes to be encoded, got %q", got)
	}
}
