package export

import (
	"bytes"
	"html/template"
	"time"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDate": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"percent": func(n, total int) int {
		if total == 0 {
			return 0
		}
		return n * 100 / total
	},
}).Parse(reportHTML))

// TemplateData holds data for report template rendering
type TemplateData struct {
	Title       string
	Description string
	TeamName    string
	GeneratedAt time.Time
	Total       int
	Overdue     int
	ByStatus    []TemplateCount
	ByPriority  []TemplateCount
	Issues      []TemplateIssue
}

type TemplateCount struct {
	Label string
	Color string
	Count int
}

type TemplateIssue struct {
	Title    string
	Status   string
	Priority string
	Assignee string
	DueDate  *time.Time
	Overdue  bool
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #111827; }
    h1 { border-bottom: 2px solid #111827; padding-bottom: 0.5rem; }
    .meta { color: #6B7280; font-size: 0.9em; margin-bottom: 2rem; }
    .bar { height: 10px; background: #E5E7EB; border-radius: 4px; }
    .bar span { display: block; height: 10px; border-radius: 4px; }
    table { width: 100%; border-collapse: collapse; font-size: 0.9em; }
    th, td { text-align: left; padding: 4px 6px; border-bottom: 1px solid #E5E7EB; }
    .overdue { color: #DC2626; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">{{.TeamName}} | {{.GeneratedAt.Format "Jan 2, 2006"}} | {{.Total}} issues | <span class="overdue">{{.Overdue}} overdue</span></div>

  <h2>By status</h2>
  <table>
    {{range .ByStatus}}<tr><td>{{.Label}}</td><td>{{.Count}}</td><td style="width:60%"><div class="bar"><span style="width:{{percent .Count $.Total}}%;background:{{.Color}}"></span></div></td></tr>
    {{end}}
  </table>

  <h2>By priority</h2>
  <table>
    {{range .ByPriority}}<tr><td>{{.Label}}</td><td>{{.Count}}</td></tr>
    {{end}}
  </table>

  {{if .Issues}}
  <h2>Issues</h2>
  <table>
    <tr><th>Title</th><th>Status</th><th>Priority</th><th>Assignee</th><th>Due</th></tr>
    {{range .Issues}}<tr><td>{{.Title}}</td><td>{{.Status}}</td><td>{{.Priority}}</td><td>{{.Assignee}}</td><td{{if .Overdue}} class="overdue"{{end}}>{{formatDate .DueDate}}</td></tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>`
