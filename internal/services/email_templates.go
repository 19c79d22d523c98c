package services

import (
	htmltemplate "html/template"
	"text/template"
)

// TemplateKind names one outbound email.
type TemplateKind string

const (
	TemplateVerifyEmail      TemplateKind = "verify_email"
	TemplateListingSubmitted TemplateKind = "listing_submitted"
	TemplateListingApproved  TemplateKind = "listing_approved"
	TemplateListingRejected  TemplateKind = "listing_rejected"
	TemplateListingClosed    TemplateKind = "listing_closed"
	TemplateListingReopened  TemplateKind = "listing_reopened"
)

type emailTemplate struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

const htmlLayoutStart = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
<div class="container">
`

const htmlLayoutEnd = `
<div class="footer"><p>This is an automated message. Please do not reply to this email.</p></div>
</div>
</body>
</html>
`

var emailTemplateSources = map[TemplateKind]struct{ subject, text, html string }{
	TemplateVerifyEmail: {
		subject: `Verify your email address`,
		text: `Welcome{{if .Name}}, {{.Name}}{{end}}!

Please verify your email address before submitting listings:

{{.Link}}

This link expires at {{.ExpiresAt}}. If you did not create an account, you can ignore this email.
`,
		html: `<h1>Verify your email address</h1>
<p>Welcome{{if .Name}}, {{.Name}}{{end}}! Please verify your email address before submitting listings.</p>
<p><a href="{{.Link}}" class="button">Verify email address</a></p>
<p>This link expires at {{.ExpiresAt}}. If you did not create an account, you can ignore this email.</p>`,
	},
	TemplateListingSubmitted: {
		subject: `Listing awaiting review: {{.Title}}`,
		text: `A listing was submitted for review.

Title: {{.Title}}
Listing: #{{.ListingID}}

Review queue: {{.Link}}
`,
		html: `<h1>Listing awaiting review</h1>
<p><strong>{{.Title}}</strong> (#{{.ListingID}}) was submitted for review.</p>
<p><a href="{{.Link}}" class="button">Open review queue</a></p>`,
	},
	TemplateListingApproved: {
		subject: `Your listing is live: {{.Title}}`,
		text: `Good news! "{{.Title}}" has been approved and is now published.

View it here: {{.Link}}
`,
		html: `<h1>Your listing is live</h1>
<p>Good news! <strong>{{.Title}}</strong> has been approved and is now published.</p>
<p><a href="{{.Link}}" class="button">View listing</a></p>`,
	},
	TemplateListingRejected: {
		subject: `Changes needed: {{.Title}}`,
		text: `"{{.Title}}" was not approved.

Reason: {{.Reason}}

Update the listing and submit it again: {{.Link}}
`,
		html: `<h1>Changes needed</h1>
<p><strong>{{.Title}}</strong> was not approved.</p>
<p><strong>Reason:</strong> {{.Reason}}</p>
<p><a href="{{.Link}}" class="button">Edit listing</a></p>`,
	},
	TemplateListingClosed: {
		subject: `Listing closed: {{.Title}}`,
		text: `"{{.Title}}" has been closed and removed from the market (outcome: {{.Outcome}}).

Listing: {{.Link}}
`,
		html: `<h1>Listing closed</h1>
<p><strong>{{.Title}}</strong> has been closed and removed from the market (outcome: {{.Outcome}}).</p>
<p><a href="{{.Link}}">View listing</a></p>`,
	},
	TemplateListingReopened: {
		subject: `Listing reopened: {{.Title}}`,
		text: `"{{.Title}}" is back on the market.

View it here: {{.Link}}
`,
		html: `<h1>Listing reopened</h1>
<p><strong>{{.Title}}</strong> is back on the market.</p>
<p><a href="{{.Link}}" class="button">View listing</a></p>`,
	},
}

var emailTemplates = func() map[TemplateKind]emailTemplate {
	out := make(map[TemplateKind]emailTemplate, len(emailTemplateSources))
	for kind, src := range emailTemplateSources {
		name := string(kind)
		out[kind] = emailTemplate{
			subject: template.Must(template.New(name + "_subject").Option("missingkey=zero").Parse(src.subject)),
			text:    template.Must(template.New(name + "_text").Option("missingkey=zero").Parse(src.text)),
			html:    htmltemplate.Must(htmltemplate.New(name + "_html").Option("missingkey=zero").Parse(htmlLayoutStart + src.html + htmlLayoutEnd)),
		}
	}
	return out
}()
