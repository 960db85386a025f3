package realtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"

	"github.com/wolfman30/wa-relay/internal/session"
	"github.com/wolfman30/wa-relay/pkg/logging"
)

// Push channel event names.
const (
	FrameQR            = "qr"
	FrameReady         = "ready"
	FrameAuthenticated = "authenticated"
	FrameMessage       = "message"
)

// Status lines shown by the browser UI.
const (
	MsgQRReceived    = "QR Code received, scan please!"
	MsgReady         = "Whatsapp is ready!"
	MsgAuthenticated = "Whatsapp is authenticated!"
	MsgAuthFailure   = "Auth failure, restarting..."
	MsgDisconnected  = "Whatsapp is disconnected!"
)

const qrImageSize = 256

// QRDataURL renders a pairing code as a base64 PNG data URL.
func QRDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("realtime: encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Frames converts a session event into the push frames browsers expect.
// Events without a browser representation yield nil.
func Frames(evt session.Event) ([]Frame, error) {
	switch evt.Type {
	case session.EventQR:
		url, err := QRDataURL(evt.QR)
		if err != nil {
			return nil, err
		}
		return []Frame{
			{Event: FrameQR, Data: url},
			{Event: FrameMessage, Data: MsgQRReceived},
		}, nil
	case session.EventReady:
		return []Frame{
			{Event: FrameReady, Data: MsgReady},
			{Event: FrameMessage, Data: MsgReady},
		}, nil
	case session.EventAuthenticated:
		return []Frame{
			{Event: FrameAuthenticated, Data: MsgAuthenticated},
			{Event: FrameMessage, Data: MsgAuthenticated},
		}, nil
	case session.EventAuthFailure:
		return []Frame{{Event: FrameMessage, Data: MsgAuthFailure}}, nil
	case session.EventDisconnected:
		return []Frame{{Event: FrameMessage, Data: MsgDisconnected}}, nil
	}
	return nil, nil
}

// Relay broadcasts session events until ctx is done or events is closed.
func (h *Hub) Relay(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			frames, err := Frames(evt)
			if err != nil {
				h.logger.Error("realtime: build frames", "event", evt.Type, "error", err)
				continue
			}
			for _, f := range frames {
				h.Broadcast(f)
			}
		}
	}
}

// TerminalQR prints every pairing code to w as a half-block QR code until ctx
// is done or events is closed.
func TerminalQR(ctx context.Context, events <-chan session.Event, w io.Writer, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Type != session.EventQR {
				continue
			}
			logger.Info("realtime: printing qr to terminal")
			qrterminal.GenerateHalfBlock(evt.QR, qrterminal.L, w)
		}
	}
}
