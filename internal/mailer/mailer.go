// Package mailer sends the outbound sales email through a transactional mail provider.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hal9000y/sdr/internal/logger"
	"github.com/hal9000y/sdr/internal/metrics"
)

const (
	ContentTypePlain = "text/plain"
	ContentTypeHTML  = "text/html"

	// DefaultSubject is used for plain-text sends without an explicit subject.
	DefaultSubject = "Sales email"

	// StatusSuccess marks an accepted send, in DeliveryResult and in tool responses.
	StatusSuccess = "success"

	testBody    = "This is an important test email"
	testSubject = "Test email"
)

// ErrDelivery matches every *DeliveryError.
var ErrDelivery = errors.New("email delivery failed")

// DeliveryError reports a provider response outside the accepted status codes,
// or a transport failure (StatusCode 0).
type DeliveryError struct {
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to send email, status code: %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to send email, status code: %d", e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDelivery) hold for any DeliveryError.
func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// Message is a single outbound email envelope.
type Message struct {
	From        string
	To          string
	Subject     string
	Body        string
	ContentType string
}

// DeliveryResult is returned for accepted sends.
type DeliveryResult struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
}

// Transport performs exactly one provider call per Deliver. It returns the provider
// status code; err is set when the call failed or the provider returned an error body.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, msg Message) (int, error)
}

// Service builds envelopes from the configured sender and recipient and checks the provider status.
type Service struct {
	from      string
	to        string
	transport Transport
}

// New creates a Service sending from -> to through transport.
func New(from, to string, transport Transport) *Service {
	return &Service{from: from, to: to, transport: transport}
}

// SendPlainText sends body as text/plain. An empty subject becomes DefaultSubject.
func (s *Service) SendPlainText(ctx context.Context, body, subject string) (DeliveryResult, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	return s.send(ctx, Message{
		From:        s.from,
		To:          s.to,
		Subject:     subject,
		Body:        body,
		ContentType: ContentTypePlain,
	})
}

// SendHTML sends htmlBody as text/html.
func (s *Service) SendHTML(ctx context.Context, subject, htmlBody string) (DeliveryResult, error) {
	return s.send(ctx, Message{
		From:        s.from,
		To:          s.to,
		Subject:     subject,
		Body:        htmlBody,
		ContentType: ContentTypeHTML,
	})
}

// SendTest sends a fixed plain-text message to verify the configuration.
func (s *Service) SendTest(ctx context.Context) (DeliveryResult, error) {
	return s.SendPlainText(ctx, testBody, testSubject)
}

func (s *Service) send(ctx context.Context, msg Message) (DeliveryResult, error) {
	log := logger.Get().With("transport", s.transport.Name(), "content_type", msg.ContentType, "to", msg.To)

	code, err := s.transport.Deliver(ctx, msg)
	if err != nil || !accepted(code) {
		metrics.DeliveryFailures.WithLabelValues(s.transport.Name(), strconv.Itoa(code)).Inc()
		log.Warnw("email rejected", "status_code", code, "error", err)
		return DeliveryResult{}, &DeliveryError{StatusCode: code, Err: err}
	}

	metrics.EmailsSent.WithLabelValues(s.transport.Name(), msg.ContentType).Inc()
	log.Infow("email sent", "status_code", code, "subject", msg.Subject)

	return DeliveryResult{Status: StatusSuccess, StatusCode: code}, nil
}

func accepted(code int) bool {
	return code == 200 || code == 202
}
