package worker

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"govjobs/internal/portal"
)

// SummaryView 是申请摘要页的数据模型。
type SummaryView struct {
	ApplicationID  uint
	Status         string
	AppliedAt      time.Time
	GeneratedAt    time.Time
	JobTitle       string
	Department     string
	Location       string
	EmploymentType string
	Deadline       time.Time
	ApplicantName  string
	ApplicantEmail string
	ApplicantPhone string
	CoverLetter    string
	Checklist      []SummaryChecklistRow
	Attachments    []SummaryAttachment
}

// SummaryChecklistRow 对应材料清单中的一个类别。
type SummaryChecklistRow struct {
	Label    string
	Required bool
	Provided bool
}

// SummaryAttachment 是随申请提交的一份材料。
type SummaryAttachment struct {
	Label string
	Name  string
	Size  int64
}

var summaryTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("January 2, 2006")
	},
	"datetime": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04 MST")
	},
	"size": humanSize,
}).Parse(summaryTemplateString))

// RenderSummaryHTML 渲染申请摘要 HTML，所有用户输入都会被转义。
func RenderSummaryHTML(view SummaryView) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("execute summary template: %w", err)
	}
	return buf.String(), nil
}

// BuildChecklist 按材料清单顺序标记每个类别是否已提供。
func BuildChecklist(provided map[portal.DocumentType]uint) []SummaryChecklistRow {
	entries := portal.Catalog()
	rows := make([]SummaryChecklistRow, 0, len(entries))
	for _, e := range entries {
		_, ok := provided[e.Type]
		rows = append(rows, SummaryChecklistRow{Label: e.Label, Required: e.Required, Provided: ok})
	}
	return rows
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.0f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

const summaryTemplateString = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Application #{{.ApplicationID}}</title>
<style>
  @page { size: A4; }
  body { font-family: 'Helvetica Neue', Arial, sans-serif; font-size: 10.5pt; color: #1f2933; margin: 0; }
  h1 { font-size: 16pt; margin: 0 0 4px; }
  h2 { font-size: 12pt; margin: 18px 0 6px; border-bottom: 1px solid #cbd2d9; padding-bottom: 3px; }
  .muted { color: #616e7c; }
  .status { display: inline-block; padding: 2px 8px; border-radius: 10px; background: #e4e7eb; text-transform: capitalize; }
  table { width: 100%; border-collapse: collapse; }
  td, th { text-align: left; padding: 4px 6px; border-bottom: 1px solid #e4e7eb; vertical-align: top; }
  th { width: 32%; font-weight: 600; }
  .ok { color: #127d4c; }
  .missing { color: #b42318; }
  .letter { white-space: pre-wrap; line-height: 1.45; }
</style>
</head>
<body>
  <h1>{{.JobTitle}}</h1>
  <div class="muted">{{.Department}}{{if .Location}} &middot; {{.Location}}{{end}}{{if .EmploymentType}} &middot; {{.EmploymentType}}{{end}}</div>
  <div class="muted">Deadline: {{date .Deadline}}</div>

  <h2>Applicant</h2>
  <table>
    <tr><th>Name</th><td>{{.ApplicantName}}</td></tr>
    <tr><th>Email</th><td>{{.ApplicantEmail}}</td></tr>
    <tr><th>Phone</th><td>{{if .ApplicantPhone}}{{.ApplicantPhone}}{{else}}-{{end}}</td></tr>
    <tr><th>Applied</th><td>{{date .AppliedAt}}</td></tr>
    <tr><th>Status</th><td><span class="status">{{.Status}}</span></td></tr>
  </table>

  <h2>Document checklist</h2>
  <table>
    {{range .Checklist}}
    <tr>
      <th>{{.Label}}{{if .Required}} *{{end}}</th>
      <td>{{if .Provided}}<span class="ok">Provided</span>{{else if .Required}}<span class="missing">Missing</span>{{else}}<span class="muted">Not provided</span>{{end}}</td>
    </tr>
    {{end}}
  </table>

  <h2>Attachments</h2>
  {{if .Attachments}}
  <table>
    {{range .Attachments}}
    <tr><th>{{.Label}}</th><td>{{.Name}} <span class="muted">({{size .Size}})</span></td></tr>
    {{end}}
  </table>
  {{else}}
  <p class="muted">No documents attached.</p>
  {{end}}

  <h2>Cover letter</h2>
  <div class="letter">{{.CoverLetter}}</div>

  <p class="muted">Application #{{.ApplicationID}} &middot; generated {{datetime .GeneratedAt}}</p>
</body>
</html>
`
