package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGrid delivers through the SendGrid v3 mail send API.
type SendGrid struct {
	apiKey  string
	baseURL string
	client  *rest.Client
}

// NewSendGrid creates a SendGrid transport. An empty baseURL uses the public API host.
func NewSendGrid(apiKey, baseURL string, httpClient *http.Client) *SendGrid {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SendGrid{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &rest.Client{HTTPClient: httpClient},
	}
}

func (s *SendGrid) Name() string {
	return "sendgrid"
}

// Deliver issues a single POST without retries.
func (s *SendGrid) Deliver(ctx context.Context, msg Message) (int, error) {
	v3 := mail.NewV3MailInit(
		mail.NewEmail("", msg.From),
		msg.Subject,
		mail.NewEmail("", msg.To),
		mail.NewContent(msg.ContentType, msg.Body),
	)

	req := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.baseURL)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(v3)

	resp, err := s.client.SendWithContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("client.SendWithContext failed: %w", err)
	}

	return resp.StatusCode, nil
}
