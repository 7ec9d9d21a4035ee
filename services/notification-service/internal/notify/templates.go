package notify

import (
	"strings"
	"text/template"
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(name, subject, body string) messageTemplate {
	return messageTemplate{
		subject: template.Must(template.New(name + ".subject").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Parse(strings.TrimLeft(body, "\n"))),
	}
}

func (t messageTemplate) render(data any) (subject, body string, err error) {
	var sb, bb strings.Builder
	if err := t.subject.Execute(&sb, data); err != nil {
		return "", "", err
	}
	if err := t.body.Execute(&bb, data); err != nil {
		return "", "", err
	}
	return sb.String(), bb.String(), nil
}

// Keyed by event kind. Appointment kinds without an entry (deleted) send nothing.
var templates = map[string]messageTemplate{
	"booked": mustTemplate("booked",
		"Appointment requested for {{.Date}} at {{.Time}}", `
Hello {{.PatientName}},

Your appointment with {{.PhysicianName}} on {{.Date}} at {{.Time}} has been requested.
{{- if .Reason}}
Reason: {{.Reason}}
{{- end}}

You will receive another message once it is confirmed.
`),
	"confirmed": mustTemplate("confirmed",
		"Appointment confirmed: {{.Date}} at {{.Time}}", `
Hello {{.PatientName}},

Your appointment with {{.PhysicianName}} on {{.Date}} at {{.Time}} is confirmed.
Please arrive ten minutes early.
`),
	"cancelled": mustTemplate("cancelled",
		"Appointment cancelled: {{.Date}} at {{.Time}}", `
Hello {{.PatientName}},

Your appointment with {{.PhysicianName}} on {{.Date}} at {{.Time}} has been cancelled.
{{- if .CancelledReason}}
Reason: {{.CancelledReason}}
{{- end}}

You can book a new time from your HealPoint account.
`),
	"completed": mustTemplate("completed",
		"Thank you for your visit", `
Hello {{.PatientName}},

Your appointment with {{.PhysicianName}} on {{.Date}} has been marked as completed.
Your medical history is available in your HealPoint account.
`),
	"updated": mustTemplate("updated",
		"Appointment updated: {{.Date}} at {{.Time}}", `
Hello {{.PatientName}},

Your appointment with {{.PhysicianName}} now takes place on {{.Date}} at {{.Time}}.
`),
	"reminder": mustTemplate("reminder",
		"Reminder: appointment on {{.Date}} at {{.Time}}", `
Hello {{.PatientName}},

This is a reminder of your appointment with {{.PhysicianName}} on {{.Date}} at {{.Time}}.
If you cannot attend, please cancel it from your HealPoint account.
`),
	"registered": mustTemplate("registered",
		"Welcome to HealPoint", `
Hello {{.FirstName}},

Your HealPoint account for {{.Email}} is ready. You can now book appointments online.
`),
}
