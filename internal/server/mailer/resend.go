package mailer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/netx"
)

// DefaultResendBaseURL is the public Resend API.
const DefaultResendBaseURL = "https://api.resend.com"

// ResendMailer sends mail through the Resend HTTP API.
type ResendMailer struct {
	apiKey   string
	from     string
	baseURL  string
	client   *http.Client
	renderer *Renderer
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func NewResendMailer(apiKey, from, baseURL string, renderer *Renderer) (*ResendMailer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is not set")
	}
	if baseURL == "" {
		baseURL = DefaultResendBaseURL
	}

	return &ResendMailer{
		apiKey:  apiKey,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		renderer: renderer,
	}, nil
}

func (m *ResendMailer) SendTemplated(ctx context.Context, to, template string, data map[string]any) error {
	subject, body, err := m.renderer.Render(template, data)
	if err != nil {
		return err
	}

	req := sendRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		HTML:    body,
	}

	headers := map[string]string{"Authorization": "Bearer " + m.apiKey}
	if err := netx.PostJSON(ctx, m.client, m.baseURL+"/emails", headers, req); err != nil {
		return fmt.Errorf("send %s: %w", template, err)
	}
	return nil
}
