// ABOUTME: Owns one streaming connection to a backend analysis job
// ABOUTME: Read loop, terminal classification, and reconnect with jittered backoff

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/2389/trace-assist/internal/protocol"
)

// ConnectionState is the stream client's lifecycle state. Exactly one
// state is live per client at any time.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// ErrRetriesExhausted is returned when the retry budget is spent without
// a successful reconnect.
var ErrRetriesExhausted = errors.New("retry budget exhausted")

// Backoff defaults (see Config).
const (
	defaultBaseDelay  = 1000 * time.Millisecond
	defaultMaxDelay   = 30000 * time.Millisecond
	defaultMaxRetries = 5
	defaultJitterFrac = 0.20

	readBufferSize = 4096
)

// Config tunes the reconnect policy. Zero-value fields take defaults.
type Config struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	JitterFrac float64
}

func (c Config) withDefaults() Config {
	if c.BaseDelay == 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.JitterFrac == 0 {
		c.JitterFrac = defaultJitterFrac
	}
	return c
}

// Requester opens a cancellable chunked read against a stream endpoint.
// A non-success status or network error is a transient connect failure.
type Requester interface {
	Open(ctx context.Context, endpoint string) (io.ReadCloser, error)
}

// HTTPRequester implements Requester over net/http.
type HTTPRequester struct {
	Client *http.Client
}

// Open issues the streaming GET and returns the response body for
// incremental reads. The body honors ctx cancellation.
func (r *HTTPRequester) Open(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// StatusFunc receives human-readable connection status notices
// ("reconnecting, attempt 2/5", terminal error text).
type StatusFunc func(msg string)

// Client manages exactly one logical subscription to a backend event
// stream, including reconnection. A Client is single-use per Run; Cancel
// unblocks any in-flight read or backoff wait.
type Client struct {
	requester  Requester
	dispatcher *Dispatcher
	cfg        Config
	status     StatusFunc
	logger     *slog.Logger

	// randFloat is the jitter source, replaceable in tests.
	randFloat func() float64

	mu      sync.Mutex
	state   ConnectionState
	cancel  context.CancelFunc
	retries int
}

// NewClient creates a stream client. Pass nil status or logger for
// no-op/default behavior.
func NewClient(requester Requester, dispatcher *Dispatcher, cfg Config, status StatusFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = func(string) {}
	}
	return &Client{
		requester:  requester,
		dispatcher: dispatcher,
		cfg:        cfg.withDefaults(),
		status:     status,
		logger:     logger.With("component", "stream"),
		randFloat:  rand.Float64,
		state:      StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Retries returns the current retry counter. Exposed for observation;
// resets to zero on every successful connect.
func (c *Client) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// Cancel requests cooperative cancellation. Idempotent. Any in-flight
// read or pending backoff wait unblocks within one loop iteration and no
// further frames are dispatched.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateDisconnected
}

// Run connects to the endpoint and drives the read loop until a terminal
// frame, clean end-of-stream, cancellation, or retry exhaustion. Calling
// Run while the client is already connecting or connected is a no-op.
//
// Returns nil on terminal frame, clean end, or cancellation, and
// ErrRetriesExhausted when the retry budget is spent.
func (c *Client) Run(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.retries = 0
	c.mu.Unlock()
	defer cancel()

	for {
		if runCtx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}

		c.setState(StateConnecting)
		body, err := c.requester.Open(runCtx, endpoint)
		if err != nil {
			if runCtx.Err() != nil {
				c.setState(StateDisconnected)
				return nil
			}
			c.logger.Warn("stream connect failed", "endpoint", endpoint, "error", err)
			if retryErr := c.backoff(runCtx); retryErr != nil {
				return retryErr
			}
			continue
		}

		c.setState(StateConnected)
		c.resetRetries()
		c.logger.Debug("stream connected", "endpoint", endpoint)

		terminal, readErr := c.readLoop(runCtx, body)
		body.Close()

		switch {
		case runCtx.Err() != nil:
			// Cancelled mid-read; return silently with no retry
			c.setState(StateDisconnected)
			return nil

		case terminal:
			// Terminal frame seen: close with no reconnect even if
			// retries remain
			cancel()
			c.setState(StateDisconnected)
			return nil

		case readErr == nil:
			// Server closed the stream cleanly; not a failure
			c.setState(StateDisconnected)
			return nil

		default:
			c.logger.Warn("stream read failed", "error", readErr)
			if retryErr := c.backoff(runCtx); retryErr != nil {
				return retryErr
			}
		}
	}
}

// readLoop reads chunks, feeds the parser, and dispatches each frame in
// arrival order. Returns terminal=true when a terminal frame was
// dispatched, or a nil error on clean end-of-stream.
func (c *Client) readLoop(ctx context.Context, body io.Reader) (terminal bool, err error) {
	parser := protocol.NewParser(c.logger)
	buf := make([]byte, readBufferSize)

	for {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range parser.Feed(string(buf[:n])) {
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				c.dispatcher.Dispatch(frame)
				if protocol.IsTerminal(frame.Type) {
					c.logger.Debug("terminal frame received", "type", frame.Type)
					return true, nil
				}
			}
		}

		if readErr == io.EOF {
			return false, nil
		}
		if readErr != nil {
			return false, readErr
		}
	}
}

// backoff waits out the reconnect delay for the next attempt. Returns
// nil when the caller should reconnect, ErrRetriesExhausted when the
// budget is spent, and a silent nil-state return via ctx when cancelled.
func (c *Client) backoff(ctx context.Context) error {
	if ctx.Err() != nil {
		c.setState(StateDisconnected)
		return nil
	}

	c.mu.Lock()
	if c.retries >= c.cfg.MaxRetries {
		c.mu.Unlock()
		c.setState(StateDisconnected)
		c.status(fmt.Sprintf("connection lost after %d attempts", c.cfg.MaxRetries))
		return ErrRetriesExhausted
	}
	c.retries++
	attempt := c.retries
	c.state = StateReconnecting
	c.mu.Unlock()

	delay := c.delayFor(attempt)
	c.status(fmt.Sprintf("reconnecting, attempt %d/%d", attempt, c.cfg.MaxRetries))
	c.logger.Info("reconnecting",
		"attempt", attempt,
		"max", c.cfg.MaxRetries,
		"delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.setState(StateDisconnected)
		return nil
	case <-timer.C:
		return nil
	}
}

// delayFor computes the backoff delay for a 1-indexed attempt:
// min(base * 2^(attempt-1), max) with uniform ±JitterFrac jitter.
func (c *Client) delayFor(attempt int) time.Duration {
	delay := c.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.cfg.MaxDelay {
			delay = c.cfg.MaxDelay
			break
		}
	}

	jitter := 1 + c.cfg.JitterFrac*(2*c.randFloat()-1)
	return time.Duration(float64(delay) * jitter)
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) resetRetries() {
	c.mu.Lock()
	c.retries = 0
	c.mu.Unlock()
}
