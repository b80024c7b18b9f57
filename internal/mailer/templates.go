package mailer

import "html/template"

var welcomeTmpl = template.Must(template.New("welcome").Parse(`
<h2>Welcome to Reviwa, {{.Name}}!</h2>
<p>Thanks for joining the community. Report waste sites around you, earn
eco-points, and help keep your neighbourhood clean.</p>
<p>Your first report earns you 10 eco-points.</p>
`))

var statusUpdateTmpl = template.Must(template.New("status").Parse(`
<h2>Hi {{.Name}},</h2>
<p>Your report <strong>{{.Title}}</strong> moved from
<em>{{.OldStatus}}</em> to <strong>{{.NewStatus}}</strong>.</p>
{{if .AdminNotes}}<p>Note from the team: {{.AdminNotes}}</p>{{end}}
<p>Report reference: {{.ReportID}}</p>
`))

var newReportTmpl = template.Must(template.New("newreport").Parse(`
<h2>New report awaiting review</h2>
<p><strong>{{.Title}}</strong> was submitted by {{.Reporter}}.</p>
<ul>
  <li>Waste type: {{.WasteType}}</li>
  <li>Severity: {{.Severity}}</li>
  <li>Location: {{.Location}}</li>
</ul>
<p>Report reference: {{.ReportID}}</p>
`))

var milestoneTmpl = template.Must(template.New("milestone").Parse(`
<h2>Congratulations, {{.Name}}! 🎉</h2>
<p>You just crossed <strong>{{.Milestone}} eco-points</strong> and now have
{{.Points}} in total. Keep going!</p>
`))
