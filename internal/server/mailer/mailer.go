// Package mailer delivers the templated notifications sent by the account
// flows: email verification, welcome, password reset and password change.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

// Template names understood by every Notifier.
const (
	TemplateVerifyEmail     = "verify-email"
	TemplateWelcome         = "welcome"
	TemplateResetPassword   = "reset-password"
	TemplatePasswordChanged = "password-changed"
)

// Notifier sends a templated message to one address. A returned error
// means the message was not accepted for delivery.
type Notifier interface {
	SendTemplated(ctx context.Context, to, template string, data map[string]any) error
}

//go:embed templates/*.html
var templateFS embed.FS

var templateNames = []string{
	TemplateVerifyEmail,
	TemplateWelcome,
	TemplateResetPassword,
	TemplatePasswordChanged,
}

// Renderer turns a template name and data into a subject and HTML body.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the embedded templates. Each one lives in its own set
// because they all define "subject".
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(templateNames))}
	for _, name := range templateNames {
		t, err := template.ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render executes the named template.
func (r *Renderer) Render(name string, data map[string]any) (subject, body string, err error) {
	t, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "subject", data); err != nil {
		return "", "", err
	}
	subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := t.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", "", err
	}
	return subject, strings.TrimSpace(buf.String()), nil
}
