package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotReady is returned when an operation needs a session that was never started.
	ErrNotReady = errors.New("session: not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("session: already initialized")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")
)

// EventType names a lifecycle or inbound event emitted by a Driver.
type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventAuthFailure   EventType = "auth_failure"
	EventReady         EventType = "ready"
	EventDisconnected  EventType = "disconnected"
	// EventIncoming carries an inbound chat message.
	EventIncoming EventType = "message"
)

// Event is one value on the session event stream.
type Event struct {
	Type     EventType
	QR       string // raw pairing code for EventQR
	Reason   string // EventDisconnected / EventAuthFailure
	Incoming *IncomingMessage
	At       time.Time
}

// IncomingMessage is a text message received by the linked account.
type IncomingMessage struct {
	ID   string
	From string // chat address to reply to
	Body string
}

// State is the adapter's view of the session lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateAwaitingScan  State = "awaiting_scan"
	StateAuthenticated State = "authenticated"
	StateReady         State = "ready"
	StateDisconnected  State = "disconnected"
	StateAuthFailed    State = "auth_failed"
)

// SendResult describes an accepted outbound message.
type SendResult struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// MediaAttachment is a base64 encoded file ready to be sent.
type MediaAttachment struct {
	MimeType      string `json:"mimetype"`
	Base64Payload string `json:"data"`
	Label         string `json:"filename"`
}

// Info describes the linked account.
type Info struct {
	PushName string `json:"pushname"`
	Number   string `json:"number"`
	Platform string `json:"platform"`
}

// Driver is the capability surface of the external chat client. Start begins
// a session and reports lifecycle changes through emit until Stop is called.
type Driver interface {
	Start(ctx context.Context, emit func(Event)) error
	Stop()
	IsRegistered(ctx context.Context, recipient string) (bool, error)
	SendText(ctx context.Context, recipient, body string) (SendResult, error)
	SendMedia(ctx context.Context, recipient string, media MediaAttachment, caption string) (SendResult, error)
	Info() Info
}
