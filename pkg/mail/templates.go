package mail

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/Masterminds/sprig/v3"
)

// OrgReport is one row of the run report.
type OrgReport struct {
	Instance   string
	OrgName    string
	Production bool
	Outcome    string
	Reason     string
	Planned    int
	Deleted    int
	Failed     int
	PlanFile   string
}

type RunReportParams struct {
	RunID      string
	Operator   string
	StartedAt  string
	FinishedAt string
	DryRun     bool
	Succeeded  int
	Skipped    int
	Failed     int
	Orgs       []OrgReport
}

var (
	//go:embed templates/run_report.html
	runReportTemplateRaw string

	runReportTemplate = template.Must(template.New("runReport").Funcs(sprig.HtmlFuncMap()).Parse(runReportTemplateRaw))
)

func render(t *template.Template, p any) (string, error) {
	b := bytes.Buffer{}
	err := t.Execute(&b, p)
	return b.String(), err
}

func RenderRunReport(p RunReportParams) (string, error) {
	return render(runReportTemplate, p)
}
