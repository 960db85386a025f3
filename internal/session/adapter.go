package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/wa-relay/pkg/logging"
)

const infoCommand = "!info"

// Observer receives adapter telemetry. GatewayMetrics satisfies it.
type Observer interface {
	ObserveSessionEvent(eventType string)
	ObserveReconnect(outcome string)
}

// Options tune the reconnect policy.
type Options struct {
	// MaxReconnectAttempts bounds Start calls made after disconnections
	// without reaching ready in between.
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	Observer             Observer
}

func (o Options) withDefaults() Options {
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	return o
}

// Adapter owns the lifecycle of a single Driver and republishes its events on a Bus.
type Adapter struct {
	driver Driver
	bus    *Bus
	logger *logging.Logger
	opts   Options

	// sleep waits between reconnect attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	state        State
	ctx          context.Context
	attempts     int
	reconnecting bool
	// redo records a disconnect seen while a reconnect was in flight.
	redo   bool
	closed bool
}

// NewAdapter wraps driver. The adapter does nothing until Initialize.
func NewAdapter(driver Driver, bus *Bus, opts Options, logger *logging.Logger) *Adapter {
	if driver == nil {
		panic("session: driver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if bus == nil {
		bus = NewBus(0, logger)
	}
	return &Adapter{
		driver: driver,
		bus:    bus,
		logger: logger,
		opts:   opts.withDefaults(),
		sleep:  sleepContext,
		state:  StateUninitialized,
	}
}

// Initialize starts the underlying session. Lifecycle events arrive later on
// the bus; ctx bounds the whole session lifetime including reconnects.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.state != StateUninitialized {
		a.mu.Unlock()
		return ErrAlreadyInitialized
	}
	a.state = StateInitializing
	a.ctx = ctx
	a.mu.Unlock()

	a.logger.Info("session: initializing")
	if err := a.driver.Start(ctx, a.handle); err != nil {
		a.setState(StateDisconnected)
		return fmt.Errorf("session: start: %w", err)
	}
	return nil
}

// Subscribe returns a stream of session events published from now on.
func (a *Adapter) Subscribe() (<-chan Event, func()) {
	return a.bus.Subscribe()
}

// State reports the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Info describes the linked account.
func (a *Adapter) Info() Info {
	return a.driver.Info()
}

// IsRegistered reports whether recipient can receive messages.
func (a *Adapter) IsRegistered(ctx context.Context, recipient string) (bool, error) {
	if err := a.checkStarted(); err != nil {
		return false, err
	}
	ok, err := a.driver.IsRegistered(ctx, recipient)
	if err != nil {
		return false, fmt.Errorf("session: check registration: %w", err)
	}
	return ok, nil
}

// SendText sends a plain text message.
func (a *Adapter) SendText(ctx context.Context, recipient, body string) (SendResult, error) {
	if err := a.checkStarted(); err != nil {
		return SendResult{}, err
	}
	res, err := a.driver.SendText(ctx, recipient, body)
	if err != nil {
		return SendResult{}, fmt.Errorf("session: send text: %w", err)
	}
	return res, nil
}

// SendMedia sends an attachment with an optional caption.
func (a *Adapter) SendMedia(ctx context.Context, recipient string, media MediaAttachment, caption string) (SendResult, error) {
	if err := a.checkStarted(); err != nil {
		return SendResult{}, err
	}
	res, err := a.driver.SendMedia(ctx, recipient, media, caption)
	if err != nil {
		return SendResult{}, fmt.Errorf("session: send media: %w", err)
	}
	return res, nil
}

// Close stops the driver and the event stream. Disconnect events emitted
// while stopping no longer trigger a reconnect.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	started := a.state != StateUninitialized
	a.mu.Unlock()

	if started {
		a.driver.Stop()
	}
	a.bus.Close()
}

func (a *Adapter) checkStarted() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.state == StateUninitialized {
		return ErrNotReady
	}
	return nil
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// handle is the emit callback given to the driver.
func (a *Adapter) handle(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	triggerReconnect := false
	switch evt.Type {
	case EventQR:
		a.state = StateAwaitingScan
	case EventAuthenticated:
		a.state = StateAuthenticated
	case EventReady:
		a.state = StateReady
		a.attempts = 0
	case EventAuthFailure:
		a.state = StateAuthFailed
	case EventDisconnected:
		a.state = StateDisconnected
		triggerReconnect = !a.reconnecting
		if a.reconnecting {
			a.redo = true
		}
	}
	a.mu.Unlock()

	if a.opts.Observer != nil {
		a.opts.Observer.ObserveSessionEvent(string(evt.Type))
	}

	switch evt.Type {
	case EventQR:
		a.logger.Info("session: qr received")
	case EventAuthFailure:
		a.logger.Error("session: authentication failed", "reason", evt.Reason)
	case EventDisconnected:
		a.logger.Warn("session: disconnected", "reason", evt.Reason)
	default:
		a.logger.Debug("session: event", "type", evt.Type)
	}

	a.bus.Publish(evt)

	if triggerReconnect {
		go a.reconnect(evt.Reason)
	}
	if evt.Type == EventIncoming && evt.Incoming != nil {
		go a.answerInfo(*evt.Incoming)
	}
}

// reconnect tears the driver down and starts it again, backing off between
// failed attempts. The attempt budget is shared across disconnects until the
// session reaches ready. reconnecting is cleared under the same lock that
// checks redo, so a disconnect seen during a round is never dropped.
func (a *Adapter) reconnect(reason string) {
	a.mu.Lock()
	if a.reconnecting || a.closed {
		a.mu.Unlock()
		return
	}
	a.reconnecting = true
	a.redo = false
	ctx := a.ctx
	a.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	a.logger.Info("session: tearing down after disconnect", "reason", reason)
	a.driver.Stop()

	delay := a.opts.BaseDelay
	for {
		a.mu.Lock()
		if a.closed {
			a.reconnecting = false
			a.mu.Unlock()
			return
		}
		if a.attempts >= a.opts.MaxReconnectAttempts {
			a.state = StateDisconnected
			a.reconnecting = false
			a.mu.Unlock()
			a.giveUp()
			return
		}
		a.attempts++
		attempt := a.attempts
		a.state = StateInitializing
		a.mu.Unlock()

		err := a.driver.Start(ctx, a.handle)
		if err == nil {
			a.observeReconnect("started")
			a.logger.Info("session: re-initialized", "attempt", attempt)
			a.mu.Lock()
			if !a.redo || a.closed {
				a.reconnecting = false
				a.mu.Unlock()
				return
			}
			a.redo = false
			a.mu.Unlock()
			a.logger.Warn("session: disconnected again while re-initializing", "attempt", attempt)
			a.driver.Stop()
			continue
		}
		a.observeReconnect("failed")
		a.logger.Warn("session: re-initialize failed", "attempt", attempt, "error", err)

		if err := a.sleep(ctx, delay); err != nil {
			a.mu.Lock()
			a.state = StateDisconnected
			a.reconnecting = false
			a.mu.Unlock()
			return
		}
		delay *= 2
		if delay > a.opts.MaxDelay {
			delay = a.opts.MaxDelay
		}
	}
}

func (a *Adapter) giveUp() {
	a.observeReconnect("exhausted")
	a.logger.Error("session: reconnect attempts exhausted", "max_attempts", a.opts.MaxReconnectAttempts)
	a.bus.Publish(Event{
		Type:   EventDisconnected,
		Reason: "reconnect attempts exhausted",
		At:     time.Now().UTC(),
	})
}

func (a *Adapter) observeReconnect(outcome string) {
	if a.opts.Observer != nil {
		a.opts.Observer.ObserveReconnect(outcome)
	}
}

// answerInfo replies to "!info" with the linked account details.
func (a *Adapter) answerInfo(msg IncomingMessage) {
	if msg.Body != infoCommand {
		return
	}
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	info := a.driver.Info()
	text := fmt.Sprintf("*Connection info*\nUser name: %s\nMy number: %s\nPlatform: %s", info.PushName, info.Number, info.Platform)
	if _, err := a.driver.SendText(ctx, msg.From, text); err != nil {
		a.logger.Error("session: info reply failed", "to", msg.From, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
