package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"softhire-backend/internal/domain"

	"golang.org/x/sync/errgroup"
)

const layoutTemplate = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #1d3557; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background: #f9f9f9; }
        .field { margin-bottom: 12px; }
        .label { font-weight: bold; color: #555; }
        .button { display: inline-block; padding: 10px 18px; background: #1d3557; color: white; text-decoration: none; }
        .footer { text-align: center; padding: 20px; color: #888; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>{{.Title}}</h1></div>
        <div class="content">{{template "body" .}}</div>
        <div class="footer"><p>SoftHire sponsorship licence service</p></div>
    </div>
</body>
</html>{{end}}`

const fieldsTemplate = `{{define "fields"}}
<div class="field"><span class="label">Company:</span> {{.CompanyName}}</div>
<div class="field"><span class="label">Application ID:</span> {{.ApplicationID}}</div>
{{if .RegistrationNumber}}<div class="field"><span class="label">Registration number:</span> {{.RegistrationNumber}}</div>{{end}}
{{if .OfficerName}}<div class="field"><span class="label">Authorising officer:</span> {{.OfficerName}}</div>{{end}}
{{if .ServiceType}}<div class="field"><span class="label">Service:</span> {{.ServiceType}}</div>{{end}}
{{end}}`

var templates = map[string]string{
	"submission_applicant": `{{define "body"}}
<p>Hello {{.Greeting}},</p>
<p>Thank you. Your sponsorship licence application for <strong>{{.CompanyName}}</strong> was submitted on {{.SubmittedAt}}.</p>
<p>The next step is to choose a plan and complete payment.</p>
{{if .DashboardURL}}<p><a class="button" href="{{.DashboardURL}}">Continue to payment</a></p>{{end}}
{{end}}`,
	"submission_admin": `{{define "body"}}
<p>A sponsorship application has been submitted and is awaiting payment.</p>
{{template "fields" .}}
<div class="field"><span class="label">Applicant:</span> {{.AccountName}} ({{.AccountEmail}})</div>
<div class="field"><span class="label">Small sponsor:</span> {{if .SmallSponsor}}Yes{{else}}No{{end}}</div>
<div class="field"><span class="label">Submitted at:</span> {{.SubmittedAt}}</div>
{{end}}`,
	"payment_applicant": `{{define "body"}}
<p>Hello {{.Greeting}},</p>
<p>We have received your payment for the <strong>{{.Plan}}</strong> plan. Our team will now prepare your sponsorship licence application for {{.CompanyName}}.</p>
<div class="field"><span class="label">Valid until:</span> {{.ValidUntil}}</div>
{{if .DashboardURL}}<p><a class="button" href="{{.DashboardURL}}">View your application</a></p>{{end}}
{{end}}`,
	"payment_admin": `{{define "body"}}
<p>Payment confirmed for a sponsorship application.</p>
{{template "fields" .}}
<div class="field"><span class="label">Applicant:</span> {{.AccountName}} ({{.AccountEmail}})</div>
<div class="field"><span class="label">Plan:</span> {{.Plan}}</div>
<div class="field"><span class="label">Paid at:</span> {{.PaidAt}}</div>
<div class="field"><span class="label">Valid until:</span> {{.ValidUntil}}</div>
{{end}}`,
}

var compiled = compileTemplates()

func compileTemplates() map[string]*template.Template {
	out := make(map[string]*template.Template, len(templates))
	for name, body := range templates {
		t := template.Must(template.New(name).Parse(layoutTemplate))
		template.Must(t.Parse(fieldsTemplate))
		template.Must(t.Parse(body))
		out[name] = t
	}
	return out
}

type templateData struct {
	Title              string
	Greeting           string
	CompanyName        string
	ApplicationID      string
	RegistrationNumber string
	OfficerName        string
	ServiceType        string
	AccountName        string
	AccountEmail       string
	SmallSponsor       bool
	SubmittedAt        string
	Plan               string
	PaidAt             string
	ValidUntil         string
	DashboardURL       string
}

const dateLayout = "2 January 2006 15:04 MST"

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// Notifier renders workflow emails from application snapshots and sends
// them to the applicant and the operations inbox.
type Notifier struct {
	sender     Sender
	adminEmail string
	appURL     string
}

func NewNotifier(sender Sender, adminEmail, appURL string) *Notifier {
	return &Notifier{sender: sender, adminEmail: adminEmail, appURL: strings.TrimSuffix(appURL, "/")}
}

var _ domain.Notifier = (*Notifier)(nil)

func (n *Notifier) NotifySubmission(ctx context.Context, snap domain.ApplicationSnapshot) error {
	data := n.data(snap)
	return n.fanOut(ctx, snap,
		Message{Subject: "Your sponsorship application has been submitted"},
		"submission_applicant",
		Message{Subject: fmt.Sprintf("New sponsorship application: %s", data.CompanyName)},
		"submission_admin",
		data)
}

func (n *Notifier) NotifyPayment(ctx context.Context, snap domain.ApplicationSnapshot) error {
	data := n.data(snap)
	return n.fanOut(ctx, snap,
		Message{Subject: "Payment received for your sponsorship application"},
		"payment_applicant",
		Message{Subject: fmt.Sprintf("Payment confirmed: %s", data.CompanyName)},
		"payment_admin",
		data)
}

// fanOut sends the applicant and admin messages concurrently. Either
// recipient may be absent; the first failure is returned.
func (n *Notifier) fanOut(ctx context.Context, snap domain.ApplicationSnapshot, applicant Message, applicantTmpl string, admin Message, adminTmpl string, data templateData) error {
	g, ctx := errgroup.WithContext(ctx)

	if snap.AccountEmail != "" {
		applicant.To = []string{snap.AccountEmail}
		applicant.ReplyTo = n.adminEmail
		g.Go(func() error {
			return n.render(ctx, applicant, applicantTmpl, data)
		})
	}
	if n.adminEmail != "" {
		admin.To = []string{n.adminEmail}
		admin.ReplyTo = snap.AccountEmail
		g.Go(func() error {
			return n.render(ctx, admin, adminTmpl, data)
		})
	}
	return g.Wait()
}

func (n *Notifier) render(ctx context.Context, msg Message, name string, data templateData) error {
	data.Title = msg.Subject
	var body bytes.Buffer
	if err := compiled[name].ExecuteTemplate(&body, "layout", data); err != nil {
		return fmt.Errorf("failed to execute email template %s: %w", name, err)
	}
	msg.HTML = body.String()
	return n.sender.Send(ctx, msg)
}

func (n *Notifier) data(snap domain.ApplicationSnapshot) templateData {
	app := snap.Application
	d := templateData{
		CompanyName:   snap.CompanyName(),
		ApplicationID: app.ID,
		AccountName:   snap.AccountName,
		AccountEmail:  snap.AccountEmail,
		SubmittedAt:   formatTime(app.SubmittedAt),
		Plan:          app.PlanSelected,
		PaidAt:        formatTime(app.PlanPaidAt),
		ValidUntil:    formatTime(app.PlanValidUntil),
	}
	if d.CompanyName == "" {
		d.CompanyName = "your company"
	}
	d.Greeting = snap.AccountName
	if d.Greeting == "" {
		d.Greeting = "there"
	}
	if n.appURL != "" {
		d.DashboardURL = n.appURL + "/sponsorship/" + app.ID
	}

	s := snap.Sections
	if s.AboutYourCompany != nil {
		d.RegistrationNumber = s.AboutYourCompany.RegistrationNumber
	}
	if s.AuthorisingOfficer != nil {
		d.OfficerName = strings.TrimSpace(s.AuthorisingOfficer.FirstName + " " + s.AuthorisingOfficer.LastName)
	}
	if s.Declarations != nil {
		d.ServiceType = s.Declarations.ServiceType
	}
	if s.OrganizationSize != nil {
		d.SmallSponsor = s.OrganizationSize.IsSmallSponsor()
	}
	return d
}
