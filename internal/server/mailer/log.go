package mailer

import (
	"context"

	"github.com/dmitrijs2005/taskhub/internal/logging"
)

// LogMailer renders messages and writes them to the log instead of sending
// them. It is the development default; the rendered body is only visible
// at debug level.
type LogMailer struct {
	renderer *Renderer
	log      logging.Logger
}

func NewLogMailer(renderer *Renderer, log logging.Logger) *LogMailer {
	return &LogMailer{renderer: renderer, log: log}
}

func (m *LogMailer) SendTemplated(ctx context.Context, to, template string, data map[string]any) error {
	subject, body, err := m.renderer.Render(template, data)
	if err != nil {
		return err
	}

	m.log.Info(ctx, "mail sent", "to", to, "template", template, "subject", subject)
	m.log.Debug(ctx, "mail body", "to", to, "body", body)
	return nil
}
