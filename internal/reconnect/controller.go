// Package reconnect keeps a client's live session connection open across
// transient network failures.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/models"
)

type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

const (
	MaxAttempts     = 5
	initialInterval = time.Second
	maxInterval     = 10 * time.Second

	// StableAfter is how long a connection that delivers no frame must stay
	// up before it stops counting as a failed attempt.
	StableAfter = 5 * time.Second
)

var (
	ErrNotConnected       = errors.New("connection is not open")
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")
	ErrUnauthorized       = errors.New("connection rejected: unauthorized")
	ErrClosed             = errors.New("controller closed")
)

// Conn is an open message connection.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	Close() error
}

// Dialer opens a connection authorized by token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// TokenSource yields the credential for the next connection attempt.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

type Controller struct {
	dialer     Dialer
	tokens     TokenSource
	log        *logger.Logger
	newBackOff func() backoff.BackOff
	sleep      func(ctx context.Context, d time.Duration) error
	onMessage  func(models.ServerMessage)
	onState    func(State)
	now        func() time.Time

	mu      sync.Mutex
	writeMu sync.Mutex
	state   State
	conn    Conn
	cancel  context.CancelFunc
	closed  bool
}

type Option func(*Controller)

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = sleep }
}

func WithMessageHandler(fn func(models.ServerMessage)) Option {
	return func(c *Controller) { c.onMessage = fn }
}

func WithStateHandler(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func NewController(dialer Dialer, tokens TokenSource, opts ...Option) *Controller {
	c := &Controller{
		dialer:     dialer,
		tokens:     tokens,
		log:        logger.Nop(),
		newBackOff: NewBackOff,
		sleep:      sleepContext,
		now:        time.Now,
		state:      StateClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewBackOff returns the reconnect schedule: 1s, 2s, 4s, 8s, 10s, then stop.
func NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, MaxAttempts)
}

// Run connects and keeps reconnecting until ctx is done, Close is called,
// or MaxAttempts consecutive attempts fail. An attempt succeeds once the
// connection delivers a frame or stays up for StableAfter; only then does
// the attempt count reset. A policy-violation close ends Run with
// ErrUnauthorized.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cancel = cancel
	c.mu.Unlock()

	b := c.newBackOff()
	c.setState(StateConnecting)

	for {
		conn, err := c.connect(ctx)
		if err == nil {
			opened := c.now()
			c.open(conn)
			var delivered bool
			delivered, err = c.readLoop(ctx, conn)
			c.drop(conn)
			if delivered || c.now().Sub(opened) >= StableAfter {
				b.Reset()
			}
		}
		if ctx.Err() != nil || c.isClosed() {
			c.setState(StateClosed)
			return nil
		}
		if isPolicyViolation(err) {
			c.setState(StateFailed)
			c.log.Error("connection rejected by server", "error", err)
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			c.setState(StateFailed)
			c.log.Error("giving up on reconnect", "attempts", MaxAttempts, "error", err)
			return fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
		}

		c.setState(StateReconnecting)
		c.log.Warn("connection lost, retrying", "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			c.setState(StateClosed)
			return nil
		}
	}
}

// Send writes msg on the open connection. It never queues.
func (c *Controller) Send(msg interface{}) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateOpen || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Close stops Run and closes the current connection.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	conn, cancel := c.conn, c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) connect(ctx context.Context) (Conn, error) {
	token, err := c.tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	conn, err := c.dialer.Dial(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

// readLoop reports whether any frame arrived before the connection ended.
func (c *Controller) readLoop(ctx context.Context, conn Conn) (bool, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	delivered := false
	for {
		var msg models.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return delivered, fmt.Errorf("read: %w", err)
		}
		delivered = true
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func isPolicyViolation(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation
}

func (c *Controller) open(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateOpen)
}

func (c *Controller) drop(conn Conn) {
	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.onState != nil {
		c.onState(s)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
