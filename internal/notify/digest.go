package notify

import (
	"html/template"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const digestTemplate = `<h2>Clinical Trials Update</h2>
<p>Run completed {{.RunTime.Format "2006-01-02 15:04 MST"}}.</p>
{{if .NewTrials}}
<h3>New Trials ({{len .NewTrials}})</h3>
<ul>
{{range .NewTrials}}	<li><a href="{{.URL}}">{{.ExternalID}}</a> {{if .Title}}{{.Title}}{{else}}(untitled){{end}} &mdash; {{.Status}}</li>
{{end}}</ul>
{{end}}
{{if .ChangedTrials}}
<h3>Status Changes ({{len .ChangedTrials}})</h3>
<ul>
{{range .ChangedTrials}}	<li><a href="{{.URL}}">{{.ExternalID}}</a> {{if .Title}}{{.Title}}{{else}}(untitled){{end}} &mdash; {{.OldStatus}} &rarr; {{.Status}}</li>
{{end}}</ul>
{{end}}
{{if .Quiet}}
<p>No new or changed trials today.</p>
{{end}}
{{if .RecentActivity}}
<h3>Recently Updated (last 30 days)</h3>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>ID</th><th>Title</th><th>Status</th><th>Last Updated</th></tr>
{{range .RecentActivity}}<tr><td><a href="{{.URL}}">{{.ExternalID}}</a></td><td>{{.Title}}</td><td>{{.Status}}</td><td>{{.LastUpdated}}</td></tr>
{{end}}</table>
{{end}}
`

var digestTmpl = template.Must(template.New("digest").Parse(digestTemplate))

// RenderHTML renders the digest body. Registry text is escaped by the
// template engine, never trusted.
func RenderHTML(d *Digest) (string, error) {
	var sb strings.Builder
	if err := digestTmpl.Execute(&sb, d); err != nil {
		return "", eris.Wrap(err, "notify: render digest")
	}
	return sb.String(), nil
}

// Subject builds the email subject line for a digest.
func Subject(base string, d *Digest) string {
	if base == "" {
		base = "Clinical Trials Update"
	}
	if d.Quiet() {
		return base + ": no changes"
	}
	var parts []string
	if n := len(d.NewTrials); n > 0 {
		parts = append(parts, pluralize(n, "new trial"))
	}
	if n := len(d.ChangedTrials); n > 0 {
		parts = append(parts, pluralize(n, "status change"))
	}
	return base + ": " + strings.Join(parts, ", ")
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
