package mailer_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/sdr/internal/mailer"
)

type sendGridRequest struct {
	From struct {
		Email string `json:"email"`
	} `json:"from"`
	Subject          string `json:"subject"`
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

type sendGridStub struct {
	srv      *httptest.Server
	calls    atomic.Int32
	lastReq  sendGridRequest
	lastAuth string
}

func newSendGridStub(t *testing.T, status int) *sendGridStub {
	t.Helper()

	stub := &sendGridStub{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		stub.lastAuth = r.Header.Get("Authorization")

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &stub.lastReq))

		w.WriteHeader(status)
	}))
	t.Cleanup(stub.srv.Close)

	return stub
}

func newService(stub *sendGridStub) *mailer.Service {
	transport := mailer.NewSendGrid("SG.test", stub.srv.URL, stub.srv.Client())
	return mailer.New("sales@acme.test", "prospect@corp.test", transport)
}

type transportMock struct {
	DeliverFunc func(ctx context.Context, msg mailer.Message) (int, error)
}

func (m *transportMock) Name() string { return "mock" }

func (m *transportMock) Deliver(ctx context.Context, msg mailer.Message) (int, error) {
	return m.DeliverFunc(ctx, msg)
}

func TestServiceAcceptedStatusCodes(t *testing.T) {
	cases := []struct {
		status    int
		expectErr bool
	}{
		{status: 199, expectErr: true},
		{status: 200},
		{status: 201, expectErr: true},
		{status: 202},
		{status: 203, expectErr: true},
		{status: 204, expectErr: true},
		{status: 299, expectErr: true},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			calls := 0
			svc := mailer.New("a@test", "b@test", &transportMock{DeliverFunc: func(context.Context, mailer.Message) (int, error) {
				calls++
				return tc.status, nil
			}})

			res, err := svc.SendHTML(context.Background(), "s", "<p>x</p>")
			assert.Equal(t, 1, calls, "exactly one outbound call")

			if tc.expectErr {
				require.ErrorIs(t, err, mailer.ErrDelivery)

				var derr *mailer.DeliveryError
				require.True(t, errors.As(err, &derr))
				assert.Equal(t, tc.status, derr.StatusCode)
				assert.NoError(t, derr.Err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, mailer.DeliveryResult{Status: mailer.StatusSuccess, StatusCode: tc.status}, res)
		})
	}
}

func TestSendGridStatusCodes(t *testing.T) {
	cases := []struct {
		status    int
		expectErr bool
	}{
		{status: 200},
		{status: 202},
		{status: 400, expectErr: true},
		{status: 401, expectErr: true},
		{status: 500, expectErr: true},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			stub := newSendGridStub(t, tc.status)

			res, err := newService(stub).SendPlainText(context.Background(), "hello", "")
			assert.EqualValues(t, 1, stub.calls.Load(), "exactly one outbound call")

			if tc.expectErr {
				require.ErrorIs(t, err, mailer.ErrDelivery)

				var derr *mailer.DeliveryError
				require.True(t, errors.As(err, &derr))
				assert.Equal(t, tc.status, derr.StatusCode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, mailer.DeliveryResult{Status: mailer.StatusSuccess, StatusCode: tc.status}, res)
		})
	}
}

func TestSendGridEnvelope(t *testing.T) {
	cases := []struct {
		name            string
		send            func(*mailer.Service) (mailer.DeliveryResult, error)
		expectedType    string
		expectedSubject string
		expectedBody    string
	}{
		{
			name: "plain",
			send: func(s *mailer.Service) (mailer.DeliveryResult, error) {
				return s.SendPlainText(context.Background(), "Hi there", "")
			},
			expectedType:    "text/plain",
			expectedSubject: "Sales email",
			expectedBody:    "Hi there",
		},
		{
			name: "html",
			send: func(s *mailer.Service) (mailer.DeliveryResult, error) {
				return s.SendHTML(context.Background(), "Quick question", "<p>Hi there</p>")
			},
			expectedType:    "text/html",
			expectedSubject: "Quick question",
			expectedBody:    "<p>Hi there</p>",
		},
		{
			name: "test",
			send: func(s *mailer.Service) (mailer.DeliveryResult, error) {
				return s.SendTest(context.Background())
			},
			expectedType:    "text/plain",
			expectedSubject: "Test email",
			expectedBody:    "This is an important test email",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := newSendGridStub(t, http.StatusAccepted)

			_, err := tc.send(newService(stub))
			require.NoError(t, err)

			req := stub.lastReq
			assert.Equal(t, "Bearer SG.test", stub.lastAuth)
			assert.Equal(t, "sales@acme.test", req.From.Email)
			require.Len(t, req.Personalizations, 1)
			require.Len(t, req.Personalizations[0].To, 1)
			assert.Equal(t, "prospect@corp.test", req.Personalizations[0].To[0].Email)
			assert.Equal(t, tc.expectedSubject, req.Subject)
			require.Len(t, req.Content, 1)
			assert.Equal(t, tc.expectedType, req.Content[0].Type)
			assert.Equal(t, tc.expectedBody, req.Content[0].Value)
		})
	}
}

func TestSendGridTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc := mailer.New("a@test", "b@test", mailer.NewSendGrid("SG.test", url, nil))

	_, err := svc.SendPlainText(context.Background(), "body", "subject")
	require.ErrorIs(t, err, mailer.ErrDelivery)

	var derr *mailer.DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, 0, derr.StatusCode)
	assert.Error(t, derr.Err)
}

type rawSenderMock struct {
	SendRawFunc func(ctx context.Context, raw []byte) (int, error)
}

func (m *rawSenderMock) SendRaw(ctx context.Context, raw []byte) (int, error) {
	return m.SendRawFunc(ctx, raw)
}

func TestGmailTransport(t *testing.T) {
	var raw []byte
	svc := mailer.New("sales@acme.test", "prospect@corp.test", mailer.NewGmail(&rawSenderMock{
		SendRawFunc: func(_ context.Context, r []byte) (int, error) {
			raw = r
			return http.StatusOK, nil
		},
	}))

	res, err := svc.SendHTML(context.Background(), "Ünïcode subject", "<p>Hello — world</p>")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, "sales@acme.test", msg.Header.Get("From"))
	assert.Equal(t, "prospect@corp.test", msg.Header.Get("To"))

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Ünïcode subject", subject)
	assert.True(t, strings.HasPrefix(msg.Header.Get("Content-Type"), "text/html"))

	body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello — world</p>", string(body))
}

func TestGmailTransportAPIError(t *testing.T) {
	svc := mailer.New("a@test", "b@test", mailer.NewGmail(&rawSenderMock{
		SendRawFunc: func(context.Context, []byte) (int, error) {
			return http.StatusForbidden, errors.New("insufficient scope")
		},
	}))

	_, err := svc.SendPlainText(context.Background(), "body", "")

	var derr *mailer.DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, http.StatusForbidden, derr.StatusCode)
	assert.Contains(t, err.Error(), "insufficient scope")
}
