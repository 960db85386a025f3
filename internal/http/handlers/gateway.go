package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/wa-relay/internal/eventlog"
	"github.com/wolfman30/wa-relay/internal/messaging"
	observemetrics "github.com/wolfman30/wa-relay/internal/observability/metrics"
	"github.com/wolfman30/wa-relay/internal/session"
	"github.com/wolfman30/wa-relay/pkg/logging"
)

var gatewayTracer = otel.Tracer("wa-relay.internal.http.handlers.gateway")

const maxBodyBytes = 1 << 20

const msgNotRegistered = "The number is not registered"

// SessionService is the subset of the session adapter the gateway needs.
type SessionService interface {
	IsRegistered(ctx context.Context, recipient string) (bool, error)
	SendText(ctx context.Context, recipient, body string) (session.SendResult, error)
	SendMedia(ctx context.Context, recipient string, media session.MediaAttachment, caption string) (session.SendResult, error)
	State() session.State
}

// MediaFetcher downloads a remote file into an attachment.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (session.MediaAttachment, error)
}

// SendMessageRequest is the body of POST /send-message.
type SendMessageRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// SendMediaRequest is the body of POST /send-media. File is a URL.
type SendMediaRequest struct {
	Number  string `json:"number"`
	Caption string `json:"caption"`
	File    string `json:"file"`
}

// SendMediaResult echoes the delivered attachment.
type SendMediaResult struct {
	Number   string `json:"number"`
	Caption  string `json:"caption"`
	FileURL  string `json:"fileUrl"`
	MimeType string `json:"mimetype"`
}

// Event log payloads keep the field order of the request.
type messageReceived struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type mediaReceived struct {
	Number  string `json:"number"`
	Caption string `json:"caption"`
	FileURL string `json:"fileUrl"`
}

// envelope is the response shape shared by both send endpoints.
type envelope struct {
	Status   bool   `json:"status"`
	Message  string `json:"message,omitempty"`
	Response any    `json:"response,omitempty"`
}

type GatewayConfig struct {
	Session  SessionService
	Media    MediaFetcher
	EventLog *eventlog.Logger
	Logger   *logging.Logger
	Metrics  *observemetrics.GatewayMetrics
	// RequireRegisteredForMedia applies the registration check to media sends.
	RequireRegisteredForMedia bool
}

// GatewayHandler serves the outbound messaging endpoints.
type GatewayHandler struct {
	session                SessionService
	media                  MediaFetcher
	events                 *eventlog.Logger
	logger                 *logging.Logger
	metrics                *observemetrics.GatewayMetrics
	requireRegisteredMedia bool
}

func NewGatewayHandler(cfg GatewayConfig) *GatewayHandler {
	if cfg.Session == nil {
		panic("handlers: session service cannot be nil")
	}
	if cfg.Media == nil {
		panic("handlers: media fetcher cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &GatewayHandler{
		session:                cfg.Session,
		media:                  cfg.Media,
		events:                 cfg.EventLog,
		logger:                 cfg.Logger,
		metrics:                cfg.Metrics,
		requireRegisteredMedia: cfg.RequireRegisteredForMedia,
	}
}

// SendMessage handles POST /send-message.
func (h *GatewayHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx, span := gatewayTracer.Start(r.Context(), "gateway.send_message")
	defer span.End()

	var req SendMessageRequest
	if err := decodeRequest(r, &req); err != nil {
		h.reject(w, span, err)
		return
	}
	if strings.TrimSpace(req.Number) == "" || req.Message == "" {
		h.reject(w, span, errors.New("number and message are required"))
		return
	}

	number := messaging.NormalizeRecipient(req.Number)
	span.SetAttributes(attribute.String("gateway.recipient", number))
	h.events.Info("[send-message] Request data receive", messageReceived{Number: number, Message: req.Message})

	if !messaging.IsValidRecipient(number) {
		h.reject(w, span, fmt.Errorf("invalid number %q", req.Number))
		return
	}

	registered, err := h.session.IsRegistered(ctx, number)
	if err != nil {
		h.metrics.ObserveRegistrationCheck("error")
		h.fail(w, span, "text", "[send-message] Error when message sent by whatsapp", err)
		return
	}
	if !registered {
		h.metrics.ObserveRegistrationCheck("unregistered")
		h.metrics.ObserveOutbound("text", "rejected")
		h.events.Error("[send-message] The number is not registered", map[string]string{"number": number})
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Status: false, Message: msgNotRegistered})
		return
	}
	h.metrics.ObserveRegistrationCheck("registered")

	res, err := h.session.SendText(ctx, number, req.Message)
	if err != nil {
		h.fail(w, span, "text", "[send-message] Error when message sent by whatsapp", err)
		return
	}

	h.metrics.ObserveOutbound("text", "sent")
	h.events.Success("[send-message] Message sent by whatsapp", nil)
	writeJSON(w, http.StatusOK, envelope{Status: true, Response: res})
}

// SendMedia handles POST /send-media.
func (h *GatewayHandler) SendMedia(w http.ResponseWriter, r *http.Request) {
	ctx, span := gatewayTracer.Start(r.Context(), "gateway.send_media")
	defer span.End()

	var req SendMediaRequest
	if err := decodeRequest(r, &req); err != nil {
		h.reject(w, span, err)
		return
	}
	if strings.TrimSpace(req.Number) == "" || strings.TrimSpace(req.File) == "" {
		h.reject(w, span, errors.New("number and file are required"))
		return
	}

	number := messaging.NormalizeRecipient(req.Number)
	span.SetAttributes(attribute.String("gateway.recipient", number))
	h.events.Info("[send-media] Request data receive", mediaReceived{Number: number, Caption: req.Caption, FileURL: req.File})

	if !messaging.IsValidRecipient(number) {
		h.reject(w, span, fmt.Errorf("invalid number %q", req.Number))
		return
	}

	if h.requireRegisteredMedia {
		registered, err := h.session.IsRegistered(ctx, number)
		if err != nil {
			h.metrics.ObserveRegistrationCheck("error")
			h.fail(w, span, "media", "[send-media] Error when file sent by whatsapp", err)
			return
		}
		if !registered {
			h.metrics.ObserveRegistrationCheck("unregistered")
			h.metrics.ObserveOutbound("media", "rejected")
			h.events.Error("[send-media] The number is not registered", map[string]string{"number": number})
			writeJSON(w, http.StatusUnprocessableEntity, envelope{Status: false, Message: msgNotRegistered})
			return
		}
		h.metrics.ObserveRegistrationCheck("registered")
	}

	attachment, err := h.media.Fetch(ctx, req.File)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "media fetch failed")
		h.metrics.ObserveOutbound("media", "fetch_failed")
		h.events.Error("[send-media] Error when file fetched", map[string]string{"err": err.Error()})
		h.logger.Warn("media fetch failed", "url", req.File, "error", err)
		writeJSON(w, http.StatusBadGateway, envelope{Status: false, Response: err.Error()})
		return
	}
	h.events.Info("[send-media] file converted to base64", map[string]string{"mimetype": attachment.MimeType})

	if _, err := h.session.SendMedia(ctx, number, attachment, req.Caption); err != nil {
		h.fail(w, span, "media", "[send-media] Error when file sent by whatsapp", err)
		return
	}

	h.metrics.ObserveOutbound("media", "sent")
	h.events.Success("[send-media] File sent by whatsapp", nil)
	writeJSON(w, http.StatusOK, envelope{Status: true, Response: SendMediaResult{
		Number:   number,
		Caption:  req.Caption,
		FileURL:  req.File,
		MimeType: attachment.MimeType,
	}})
}

// Health handles GET /health.
func (h *GatewayHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": string(h.session.State()),
	})
}

func (h *GatewayHandler) reject(w http.ResponseWriter, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "bad request")
	writeJSON(w, http.StatusBadRequest, envelope{Status: false, Message: err.Error()})
}

func (h *GatewayHandler) fail(w http.ResponseWriter, span trace.Span, kind, logMessage string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "send failed")
	h.metrics.ObserveOutbound(kind, "failed")
	h.events.Error(logMessage, map[string]string{"err": err.Error()})
	h.logger.Error("outbound send failed", "kind", kind, "error", err)
	writeJSON(w, http.StatusInternalServerError, envelope{Status: false, Response: err.Error()})
}

// decodeRequest accepts JSON and form encoded bodies.
func decodeRequest(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return fmt.Errorf("invalid form body: %w", err)
		}
		switch v := dst.(type) {
		case *SendMessageRequest:
			v.Number = r.PostFormValue("number")
			v.Message = r.PostFormValue("message")
		case *SendMediaRequest:
			v.Number = r.PostFormValue("number")
			v.Caption = r.PostFormValue("caption")
			v.File = r.PostFormValue("file")
		}
		return nil
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
