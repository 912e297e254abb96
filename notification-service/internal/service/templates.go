package service

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/eaglebank/usersync/shared/events"
)

const (
	defaultCreatedBody = `Hello {{.Name}}!

Your account on {{.WebsiteURL}} has been created successfully.
You can sign in with {{.Email}}.
`
	defaultDeletedBody = `Hello {{.Name}},

Your account on {{.WebsiteURL}} has been deleted.
If you did not request this, please contact support.
`
)

// TemplateData is what a lifecycle email body may refer to.
type TemplateData struct {
	Name       string
	Email      string
	WebsiteURL string
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

// Templates maps each lifecycle event type to its email.
type Templates struct {
	websiteURL string
	byType     map[events.EventType]emailTemplate
}

type TemplateConfig struct {
	WebsiteURL     string
	SubjectCreated string
	SubjectDeleted string
	// Optional body overrides; empty keeps the built-in text.
	BodyCreated string
	BodyDeleted string
}

func NewTemplates(cfg TemplateConfig) (*Templates, error) {
	if cfg.BodyCreated == "" {
		cfg.BodyCreated = defaultCreatedBody
	}
	if cfg.BodyDeleted == "" {
		cfg.BodyDeleted = defaultDeletedBody
	}

	created, err := template.New("created").Option("missingkey=error").Parse(cfg.BodyCreated)
	if err != nil {
		return nil, fmt.Errorf("parse created template: %w", err)
	}
	deleted, err := template.New("deleted").Option("missingkey=error").Parse(cfg.BodyDeleted)
	if err != nil {
		return nil, fmt.Errorf("parse deleted template: %w", err)
	}

	return &Templates{
		websiteURL: cfg.WebsiteURL,
		byType: map[events.EventType]emailTemplate{
			events.UserCreated: {subject: cfg.SubjectCreated, body: created},
			events.UserDeleted: {subject: cfg.SubjectDeleted, body: deleted},
		},
	}, nil
}

// Render returns the subject and body for eventType addressed to name/email.
func (t *Templates) Render(eventType events.EventType, name, email string) (string, string, error) {
	tmpl, ok := t.byType[eventType]
	if !ok {
		return "", "", fmt.Errorf("no template for event type %s", eventType)
	}
	var buf bytes.Buffer
	err := tmpl.body.Execute(&buf, TemplateData{Name: name, Email: email, WebsiteURL: t.websiteURL})
	if err != nil {
		return "", "", fmt.Errorf("render %s template: %w", eventType, err)
	}
	return tmpl.subject, buf.String(), nil
}
