package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wa-relay/internal/eventlog"
	observemetrics "github.com/wolfman30/wa-relay/internal/observability/metrics"
	"github.com/wolfman30/wa-relay/internal/session"
	"github.com/wolfman30/wa-relay/pkg/logging"
)

type stubSession struct {
	registered  bool
	checkErr    error
	sendErr     error
	checks      []string
	sentTo      string
	sentBody    string
	sentMedia   session.MediaAttachment
	sentCaption string
	state       session.State
}

func (s *stubSession) IsRegistered(_ context.Context, recipient string) (bool, error) {
	s.checks = append(s.checks, recipient)
	return s.registered, s.checkErr
}

func (s *stubSession) SendText(_ context.Context, recipient, body string) (session.SendResult, error) {
	if s.sendErr != nil {
		return session.SendResult{}, s.sendErr
	}
	s.sentTo, s.sentBody = recipient, body
	return session.SendResult{ID: "3EB0MSG", To: recipient, Timestamp: time.Unix(1700000000, 0).UTC()}, nil
}

func (s *stubSession) SendMedia(_ context.Context, recipient string, media session.MediaAttachment, caption string) (session.SendResult, error) {
	if s.sendErr != nil {
		return session.SendResult{}, s.sendErr
	}
	s.sentTo, s.sentMedia, s.sentCaption = recipient, media, caption
	return session.SendResult{ID: "3EB0MEDIA", To: recipient}, nil
}

func (s *stubSession) State() session.State { return s.state }

type stubFetcher struct {
	att    session.MediaAttachment
	err    error
	called bool
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (session.MediaAttachment, error) {
	f.called = true
	return f.att, f.err
}

type gatewayFixture struct {
	handler *GatewayHandler
	session *stubSession
	fetcher *stubFetcher
	logPath string
}

func newGatewayFixture(t *testing.T, requireRegistered bool) *gatewayFixture {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "app.log")
	sess := &stubSession{registered: true, state: session.StateReady}
	fetcher := &stubFetcher{att: session.MediaAttachment{MimeType: "image/png", Base64Payload: "cG5n", Label: "Media"}}
	h := NewGatewayHandler(GatewayConfig{
		Session:                   sess,
		Media:                     fetcher,
		EventLog:                  eventlog.New(logPath, logging.New("error")),
		Logger:                    logging.New("error"),
		Metrics:                   observemetrics.NewGatewayMetrics(prometheus.NewRegistry()),
		RequireRegisteredForMedia: requireRegistered,
	})
	return &gatewayFixture{handler: h, session: sess, fetcher: fetcher, logPath: logPath}
}

func (f *gatewayFixture) logText(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.logPath)
	require.NoError(t, err)
	return string(data)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestSendMessageSuccess(t *testing.T) {
	f := newGatewayFixture(t, false)

	rec, out := postJSON(t, f.handler.SendMessage, `{"number":"+55 (11) 91234-5678","message":"hello"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["status"])
	resp := out["response"].(map[string]any)
	assert.Equal(t, "3EB0MSG", resp["id"])
	assert.Equal(t, "5511912345678@c.us", f.session.sentTo)
	assert.Equal(t, "hello", f.session.sentBody)
	assert.Equal(t, []string{"5511912345678@c.us"}, f.session.checks)

	logs := f.logText(t)
	assert.Contains(t, logs, `app.INFO: [send-message] Request data receive {"number":"5511912345678@c.us","message":"hello"}`)
	assert.Contains(t, logs, "app.SUCCESS: [send-message] Message sent by whatsapp\n")
}

func TestSendMessageUnregistered(t *testing.T) {
	f := newGatewayFixture(t, false)
	f.session.registered = false

	rec, out := postJSON(t, f.handler.SendMessage, `{"number":"5511000000000","message":"hello"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, false, out["status"])
	assert.Equal(t, "The number is not registered", out["message"])
	assert.Empty(t, f.session.sentTo)
	assert.Contains(t, f.logText(t), `app.ERROR: [send-message] The number is not registered {"number":"5511000000000@c.us"}`)
}

func TestSendMessageFailures(t *testing.T) {
	t.Run("send error", func(t *testing.T) {
		f := newGatewayFixture(t, false)
		f.session.sendErr = errors.New("socket closed")

		rec, out := postJSON(t, f.handler.SendMessage, `{"number":"5511912345678","message":"hello"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, false, out["status"])
		assert.Equal(t, "socket closed", out["response"])
		assert.Contains(t, f.logText(t), `app.ERROR: [send-message] Error when message sent by whatsapp {"err":"socket closed"}`)
	})

	t.Run("registration check error", func(t *testing.T) {
		f := newGatewayFixture(t, false)
		f.session.checkErr = session.ErrNotReady

		rec, _ := postJSON(t, f.handler.SendMessage, `{"number":"5511912345678","message":"hello"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestSendMessageBadRequests(t *testing.T) {
	tests := map[string]string{
		"malformed json":  `{"number":`,
		"missing message": `{"number":"5511912345678"}`,
		"missing number":  `{"message":"hi"}`,
		"no digits":       `{"number":"abc","message":"hi"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f := newGatewayFixture(t, false)
			rec, out := postJSON(t, f.handler.SendMessage, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, out["status"])
			assert.NotEmpty(t, out["message"])
			assert.Empty(t, f.session.checks)
		})
	}
}

func TestSendMessageAcceptsFormBody(t *testing.T) {
	f := newGatewayFixture(t, false)
	form := url.Values{"number": {"5511912345678"}, "message": {"from form"}}
	req := httptest.NewRequest(http.MethodPost, "/send-message", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	f.handler.SendMessage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from form", f.session.sentBody)
}

func TestSendMediaSuccess(t *testing.T) {
	f := newGatewayFixture(t, false)

	rec, out := postJSON(t, f.handler.SendMedia, `{"number":"5511912345678","caption":"logo","file":"https://cdn.example.com/logo.png"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["status"])
	assert.Equal(t, map[string]any{
		"number":   "5511912345678@c.us",
		"caption":  "logo",
		"fileUrl":  "https://cdn.example.com/logo.png",
		"mimetype": "image/png",
	}, out["response"])
	assert.Empty(t, f.session.checks, "media sends skip the registration check by default")
	assert.Equal(t, "logo", f.session.sentCaption)
	assert.Equal(t, "Media", f.session.sentMedia.Label)

	logs := f.logText(t)
	assert.Contains(t, logs, `app.INFO: [send-media] Request data receive {"number":"5511912345678@c.us","caption":"logo","fileUrl":"https://cdn.example.com/logo.png"}`)
	assert.Contains(t, logs, `app.INFO: [send-media] file converted to base64 {"mimetype":"image/png"}`)
	assert.Contains(t, logs, "app.SUCCESS: [send-media] File sent by whatsapp\n")
}

func TestSendMediaFetchFailure(t *testing.T) {
	f := newGatewayFixture(t, false)
	f.fetcher.err = errors.New("media: fetch failed: status 404")

	rec, out := postJSON(t, f.handler.SendMedia, `{"number":"5511912345678","file":"https://cdn.example.com/missing.png"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, out["status"])
	assert.Contains(t, out["response"], "status 404")
	assert.Empty(t, f.session.sentTo)
}

func TestSendMediaSendFailure(t *testing.T) {
	f := newGatewayFixture(t, false)
	f.session.sendErr = errors.New("upload rejected")

	rec, out := postJSON(t, f.handler.SendMedia, `{"number":"5511912345678","file":"https://cdn.example.com/logo.png"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "upload rejected", out["response"])
	assert.Contains(t, f.logText(t), `app.ERROR: [send-media] Error when file sent by whatsapp {"err":"upload rejected"}`)
}

func TestSendMediaRegistrationCheckWhenConfigured(t *testing.T) {
	f := newGatewayFixture(t, true)
	f.session.registered = false

	rec, out := postJSON(t, f.handler.SendMedia, `{"number":"5511912345678","file":"https://cdn.example.com/logo.png"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "The number is not registered", out["message"])
	assert.False(t, f.fetcher.called)
}

func TestSendMediaBadRequest(t *testing.T) {
	f := newGatewayFixture(t, false)

	rec, _ := postJSON(t, f.handler.SendMedia, `{"number":"5511912345678"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, f.fetcher.called)
}

func TestHealthReportsSessionState(t *testing.T) {
	f := newGatewayFixture(t, false)
	f.session.state = session.StateAwaitingScan
	rec := httptest.NewRecorder()

	f.handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","session":"awaiting_scan"}`, rec.Body.String())
}

func TestNewGatewayHandlerRequiresDependencies(t *testing.T) {
	assert.Panics(t, func() { NewGatewayHandler(GatewayConfig{Media: &stubFetcher{}}) })
	assert.Panics(t, func() { NewGatewayHandler(GatewayConfig{Session: &stubSession{}}) })
}
