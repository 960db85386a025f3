// Package whatsapp implements session.Driver on top of whatsmeow.
package whatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/wolfman30/wa-relay/internal/messaging"
	"github.com/wolfman30/wa-relay/internal/session"
	"github.com/wolfman30/wa-relay/pkg/logging"

	// Device store drivers.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotConnected     = errors.New("whatsapp: not connected")
	ErrInvalidRecipient = errors.New("whatsapp: invalid recipient")
	ErrInvalidMedia     = errors.New("whatsapp: invalid media payload")
)

// Config selects the device store.
type Config struct {
	// Dialect is "sqlite3" or "postgres".
	Dialect string
	DSN     string
}

// Driver owns one whatsmeow client at a time. The device store container is
// opened on first Start and kept for the life of the Driver.
type Driver struct {
	cfg    Config
	logger *logging.Logger

	mu         sync.Mutex
	container  *sqlstore.Container
	client     *whatsmeow.Client
	generation uint64
}

var _ session.Driver = (*Driver)(nil)

func NewDriver(cfg Config, logger *logging.Logger) *Driver {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Dialect == "" {
		cfg.Dialect = "sqlite3"
	}
	return &Driver{cfg: cfg, logger: logger}
}

// Start opens the device store, creates a fresh client and connects. A device
// without a stored identity emits QR events until it is paired.
func (d *Driver) Start(ctx context.Context, emit func(session.Event)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.openStoreLocked(ctx); err != nil {
		return err
	}

	device, err := d.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: load device: %w", err)
	}

	client := whatsmeow.NewClient(device, newWALogger(d.logger, "client"))
	// Reconnects are owned by the session adapter.
	client.EnableAutoReconnect = false

	// The pairing channel has to exist before Connect.
	var qrItems <-chan whatsmeow.QRChannelItem
	if device.ID == nil {
		qrItems, err = client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp: qr channel: %w", err)
		}
	}

	d.generation++
	gen := d.generation
	mapper := &eventMapper{}
	client.AddEventHandler(func(raw any) {
		if !d.isCurrent(gen) {
			return
		}
		for _, evt := range mapper.translate(raw) {
			emit(evt)
		}
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	d.client = client
	d.logger.Info("whatsapp: client connecting", "paired", device.ID != nil)
	if qrItems != nil {
		go d.pumpQR(gen, qrItems, emit)
	}
	return nil
}

func (d *Driver) pumpQR(gen uint64, items <-chan whatsmeow.QRChannelItem, emit func(session.Event)) {
	for item := range items {
		if !d.isCurrent(gen) {
			return
		}
		if evt, ok := qrEvent(item); ok {
			emit(evt)
		}
	}
}

func (d *Driver) openStoreLocked(ctx context.Context) error {
	if d.container != nil {
		return nil
	}
	if d.cfg.Dialect == "sqlite3" {
		if dir := sqliteDir(d.cfg.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("whatsapp: create store dir: %w", err)
			}
		}
	}
	container, err := sqlstore.New(ctx, d.cfg.Dialect, d.cfg.DSN, newWALogger(d.logger, "store"))
	if err != nil {
		return fmt.Errorf("whatsapp: open device store: %w", err)
	}
	d.container = container
	return nil
}

// Stop disconnects the current client. Events it emits afterwards are ignored.
func (d *Driver) Stop() {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.generation++
	d.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
}

// Close stops the client and releases the device store.
func (d *Driver) Close() error {
	d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.container == nil {
		return nil
	}
	err := d.container.Close()
	d.container = nil
	return err
}

func (d *Driver) isCurrent(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation == gen
}

func (d *Driver) connected() (*whatsmeow.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil || !d.client.IsConnected() {
		return nil, ErrNotConnected
	}
	return d.client, nil
}

// IsRegistered asks the server whether the number behind recipient has an account.
func (d *Driver) IsRegistered(ctx context.Context, recipient string) (bool, error) {
	jid, err := toJID(recipient)
	if err != nil {
		return false, err
	}
	client, err := d.connected()
	if err != nil {
		return false, err
	}
	resp, err := client.IsOnWhatsApp(ctx, []string{"+" + jid.User})
	if err != nil {
		return false, fmt.Errorf("whatsapp: check registration: %w", err)
	}
	if len(resp) == 0 {
		return false, nil
	}
	return resp[0].IsIn, nil
}

func (d *Driver) SendText(ctx context.Context, recipient, body string) (session.SendResult, error) {
	jid, err := toJID(recipient)
	if err != nil {
		return session.SendResult{}, err
	}
	client, err := d.connected()
	if err != nil {
		return session.SendResult{}, err
	}
	resp, err := client.SendMessage(ctx, jid, textMessage(body))
	if err != nil {
		return session.SendResult{}, fmt.Errorf("whatsapp: send text: %w", err)
	}
	return session.SendResult{ID: resp.ID, To: recipient, Timestamp: resp.Timestamp}, nil
}

// SendMedia uploads the decoded payload and sends it as the message kind
// matching its mimetype, falling back to a document.
func (d *Driver) SendMedia(ctx context.Context, recipient string, media session.MediaAttachment, caption string) (session.SendResult, error) {
	jid, err := toJID(recipient)
	if err != nil {
		return session.SendResult{}, err
	}
	data, err := base64.StdEncoding.DecodeString(media.Base64Payload)
	if err != nil {
		return session.SendResult{}, fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}
	if len(data) == 0 {
		return session.SendResult{}, fmt.Errorf("%w: empty payload", ErrInvalidMedia)
	}
	client, err := d.connected()
	if err != nil {
		return session.SendResult{}, err
	}

	uploaded, err := client.Upload(ctx, data, mediaTypeFor(media.MimeType))
	if err != nil {
		return session.SendResult{}, fmt.Errorf("whatsapp: upload media: %w", err)
	}
	msg := mediaMessage(media, caption, uploaded, uint64(len(data)))
	resp, err := client.SendMessage(ctx, jid, msg)
	if err != nil {
		return session.SendResult{}, fmt.Errorf("whatsapp: send media: %w", err)
	}
	return session.SendResult{ID: resp.ID, To: recipient, Timestamp: resp.Timestamp}, nil
}

// Info reports the linked account; fields are empty before pairing.
func (d *Driver) Info() session.Info {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil || client.Store == nil {
		return session.Info{}
	}
	info := session.Info{
		PushName: client.Store.PushName,
		Platform: client.Store.Platform,
	}
	if client.Store.ID != nil {
		info.Number = client.Store.ID.User
	}
	return info
}

// sqliteDir extracts the parent directory of a "file:" DSN.
func sqliteDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// recipientFromPhone is the inverse of toJID for user chats.
func recipientFromPhone(phone string) string {
	return messaging.NormalizeRecipient(phone)
}
