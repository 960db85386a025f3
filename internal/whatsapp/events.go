package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/wolfman30/wa-relay/internal/session"
)

// eventMapper turns whatsmeow events into session events for one client.
// A restored session never sees PairSuccess, so the first Connected also
// reports authenticated.
type eventMapper struct {
	authenticated bool
}

func (m *eventMapper) translate(raw any) []session.Event {
	switch evt := raw.(type) {
	case *events.PairSuccess:
		m.authenticated = true
		return []session.Event{{Type: session.EventAuthenticated}}

	case *events.Connected:
		out := make([]session.Event, 0, 2)
		if !m.authenticated {
			m.authenticated = true
			out = append(out, session.Event{Type: session.EventAuthenticated})
		}
		return append(out, session.Event{Type: session.EventReady})

	case *events.Disconnected:
		return []session.Event{{Type: session.EventDisconnected, Reason: "connection lost"}}

	case *events.StreamReplaced:
		return []session.Event{{Type: session.EventDisconnected, Reason: "stream replaced"}}

	case *events.LoggedOut:
		reason := fmt.Sprintf("logged out: %v", evt.Reason)
		if evt.OnConnect {
			return []session.Event{{Type: session.EventAuthFailure, Reason: reason}}
		}
		return []session.Event{{Type: session.EventDisconnected, Reason: reason}}

	case *events.ConnectFailure:
		reason := fmt.Sprintf("connect failure: %v", evt.Reason)
		if evt.Reason.IsLoggedOut() {
			return []session.Event{{Type: session.EventAuthFailure, Reason: reason}}
		}
		return []session.Event{{Type: session.EventDisconnected, Reason: reason}}

	case *events.TemporaryBan:
		return []session.Event{{Type: session.EventAuthFailure, Reason: evt.String()}}

	case *events.ClientOutdated:
		return []session.Event{{Type: session.EventAuthFailure, Reason: "client outdated"}}

	case *events.Message:
		if evt.Info.IsFromMe {
			return nil
		}
		body := messageText(evt.Message)
		if strings.TrimSpace(body) == "" {
			return nil
		}
		return []session.Event{{
			Type: session.EventIncoming,
			Incoming: &session.IncomingMessage{
				ID:   evt.Info.ID,
				From: chatAddress(evt.Info.Chat),
				Body: body,
			},
		}}
	}
	return nil
}

// qrEvent maps one item of the pairing channel. Codes rotate on the channel's
// own schedule; success is reported by PairSuccess instead.
func qrEvent(item whatsmeow.QRChannelItem) (session.Event, bool) {
	switch item.Event {
	case whatsmeow.QRChannelEventCode:
		return session.Event{Type: session.EventQR, QR: item.Code}, true
	case whatsmeow.QRChannelSuccess.Event:
		return session.Event{}, false
	case whatsmeow.QRChannelTimeout.Event:
		return session.Event{Type: session.EventDisconnected, Reason: "qr code timed out"}, true
	case whatsmeow.QRChannelEventError:
		return session.Event{Type: session.EventAuthFailure, Reason: fmt.Sprintf("pairing failed: %v", item.Error)}, true
	}
	return session.Event{Type: session.EventAuthFailure, Reason: "pairing failed: " + item.Event}, true
}
