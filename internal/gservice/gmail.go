// Package gservice wraps the Gmail API calls used for sending.
package gservice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const gmailUserID = "me"

type clientSource interface {
	HTTPClient(ctx context.Context) (*http.Client, error)
}

// NewGmail creates a Gmail sender authenticated through src.
func NewGmail(src clientSource, opts ...option.ClientOption) *GMail {
	return &GMail{src: src, opts: opts}
}

// GMail sends raw RFC 5322 messages as the authorized user.
type GMail struct {
	src  clientSource
	opts []option.ClientOption
}

// SendRaw sends raw and returns the HTTP status reported by the API.
// API errors return their status code together with the error.
func (m *GMail) SendRaw(ctx context.Context, raw []byte) (int, error) {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return 0, fmt.Errorf("newSvc failed: %w", err)
	}

	msg, err := svc.Users.Messages.Send(gmailUserID, &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return gerr.Code, fmt.Errorf("messages.Send failed: %w", err)
		}
		return 0, fmt.Errorf("messages.Send failed: %w", err)
	}

	return msg.HTTPStatusCode, nil
}

func (m *GMail) newSvc(ctx context.Context) (*gmail.Service, error) {
	clt, err := m.src.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("src.HTTPClient failed: %w", err)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(clt)}, m.opts...)

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return svc, nil
}
