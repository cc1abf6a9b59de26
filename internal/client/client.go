// Package client composes the transport session, protocol codec and
// conversation reconciler into the lifecycle-scoped object the rest of the
// application consumes.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	wcotel "github.com/wirechat/wirechat/internal/adapter/otel"
	"github.com/wirechat/wirechat/internal/config"
	"github.com/wirechat/wirechat/internal/domain"
	"github.com/wirechat/wirechat/internal/domain/chat"
	"github.com/wirechat/wirechat/internal/protocol"
	"github.com/wirechat/wirechat/internal/transport"
)

// heartbeatBody is the payload of every keepalive probe.
const heartbeatBody = "ping"

// Snapshot is the immutable client-observable surface: connection status,
// last error, current conversation, conversation directory and system
// prompt. Nothing else leaks out of the core.
type Snapshot struct {
	Status       transport.Status
	Err          error
	Conversation chat.Conversation
	Directory    []chat.Conversation
	SystemPrompt string
}

// Option configures a Client.
type Option func(*Client)

// WithOnChange registers a callback fired after every applied state change
// with a fresh Snapshot. The callback runs outside the client's lock.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Client) { c.onChange = fn }
}

// Client is the session facade.
type Client struct {
	cfg     config.Client
	log     *slog.Logger
	session *transport.Session
	metrics *wcotel.Metrics

	onChange func(Snapshot)

	mu            sync.Mutex
	rec           *reconciler
	directory     []chat.Conversation
	systemPrompt  string
	pendingLoad   *int64
	everConnected bool

	heartbeatStop chan struct{}
	stopOnce      sync.Once
}

// New creates a Client around one transport session. Call Start to connect.
func New(cfg config.Client, log *slog.Logger, opts ...Option) (*Client, error) {
	metrics, err := wcotel.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	c := &Client{
		cfg:           cfg,
		log:           log,
		metrics:       metrics,
		rec:           newReconciler(log),
		heartbeatStop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.session = transport.New(transport.Config{
		URL:           cfg.URL,
		DialTimeout:   cfg.DialTimeout,
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryInterval,
	}, log)
	c.session.OnFrame(c.handleFrame)
	c.session.OnStatus(c.onStatus)

	return c, nil
}

// onStatus reacts to transport status transitions: count reconnections and
// surface the change to the observer.
func (c *Client) onStatus(st transport.Status) {
	if st == transport.StatusConnected {
		c.mu.Lock()
		if c.everConnected {
			c.metrics.Reconnects.Add(context.Background(), 1)
		}
		c.everConnected = true
		c.mu.Unlock()
	}
	c.notify()
}

// Start connects the session and begins the heartbeat. The connect error is
// recorded on the session either way; reconnect attempts continue within
// the configured budget.
func (c *Client) Start(ctx context.Context) error {
	err := c.session.Connect(ctx)
	go c.heartbeatLoop()
	return err
}

// Close tears down the session, the heartbeat and any scheduled reconnect.
// Deterministic: no timer fires after Close returns.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.heartbeatStop) })
	c.session.Close()
}

// heartbeatLoop sends a keepalive probe at the configured interval
// regardless of connection status; the session drops the frame when not
// connected. Fire-and-forget: absence of a reply is observed only through
// the transport's own closure detection.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.heartbeatStop:
			return
		case <-ticker.C:
			if err := c.send(context.Background(), protocol.PingRequest{Body: heartbeatBody}); err != nil &&
				!errors.Is(err, domain.ErrNotConnected) {
				c.log.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

// send encodes and transmits one request.
func (c *Client) send(ctx context.Context, req protocol.Request) error {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	if err := c.session.Send(ctx, data); err != nil {
		return err
	}
	c.metrics.FramesOut.Add(ctx, 1)
	return nil
}

// NewConversation replaces the current conversation with a fresh empty one.
func (c *Client) NewConversation() {
	c.mu.Lock()
	c.rec.startNew()
	c.pendingLoad = nil
	c.mu.Unlock()
	c.notify()
}

// SubmitTurn applies the optimistic two-message extension for a user turn
// and transmits the Completion request carrying the full updated
// conversation. Empty text is a silent no-op. A turn submitted while the
// previous placeholder is still pending fails with
// domain.ErrCompletionPending to protect the trailing-message invariant.
func (c *Client) SubmitTurn(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	api := chat.API{Provider: c.cfg.Provider, Model: c.cfg.Model}

	c.mu.Lock()
	if !c.rec.submitTurn(text, api, c.systemPrompt) {
		c.mu.Unlock()
		return domain.ErrCompletionPending
	}
	conv := c.rec.snapshot()
	c.mu.Unlock()
	c.notify()

	return c.send(ctx, protocol.CompletionRequest{Conversation: conv})
}

// Fork branches the conversation at the given cut sequence: local optimistic
// truncation plus a regenerate placeholder, then an asynchronous Fork
// request informing the server to branch storage, followed by a Completion
// request so the placeholder regenerates. The UI is not blocked on the
// acknowledgment.
func (c *Client) Fork(ctx context.Context, sequence int) error {
	api := chat.API{Provider: c.cfg.Provider, Model: c.cfg.Model}

	c.mu.Lock()
	if !c.rec.fork(sequence, api, c.systemPrompt) {
		c.mu.Unlock()
		return fmt.Errorf("fork at sequence %d: %w", sequence, domain.ErrNotFound)
	}
	conv := c.rec.snapshot()
	c.mu.Unlock()
	c.notify()

	if conv.ID != nil {
		if err := c.send(ctx, protocol.ForkRequest{ConversationID: *conv.ID, Sequence: sequence}); err != nil {
			return err
		}
	} else {
		// Never persisted server-side; nothing to branch remotely.
		c.log.Debug("fork on unsaved conversation, branching locally", "sequence", sequence)
	}

	// The fork left a pending placeholder that only a completion resolves.
	return c.send(ctx, protocol.CompletionRequest{Conversation: conv})
}

// Load requests a stored conversation. The reply arrives as a
// ConversationList response; the matching conversation then replaces the
// current one wholesale.
func (c *Client) Load(ctx context.Context, id int64) error {
	c.mu.Lock()
	c.pendingLoad = &id
	c.mu.Unlock()
	return c.send(ctx, protocol.LoadRequest{ID: id})
}

// RefreshDirectory requests the conversation directory.
func (c *Client) RefreshDirectory(ctx context.Context) error {
	return c.send(ctx, protocol.ConversationListRequest{})
}

// ReadSystemPrompt asks the server for the current system prompt.
func (c *Client) ReadSystemPrompt(ctx context.Context) error {
	return c.send(ctx, protocol.SystemPromptRequest{Write: false})
}

// WriteSystemPrompt sends new system prompt content for the server to
// persist. No optimistic update: local state changes only on the server
// echo.
func (c *Client) WriteSystemPrompt(ctx context.Context, content string) error {
	return c.send(ctx, protocol.SystemPromptRequest{Content: content, Write: true})
}

// handleFrame is the single inbound path: decode, discriminate, apply.
// Malformed frames are dropped with a diagnostic and never touch state.
func (c *Client) handleFrame(data []byte) {
	ctx := context.Background()
	c.metrics.FramesIn.Add(ctx, 1)

	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		c.metrics.FramesDropped.Add(ctx, 1)
		c.log.Warn("inbound frame dropped", "error", err)
		return
	}

	switch r := resp.(type) {
	case protocol.PingResponse:
		c.session.ConfirmAlive()

	case protocol.CompletionResponse:
		c.metrics.DeltaBytes.Record(ctx, int64(len(r.Delta)))
		c.mu.Lock()
		c.rec.applyDelta(r)
		c.mu.Unlock()
		c.notify()

	case protocol.ConversationListResponse:
		c.mu.Lock()
		c.directory = r.Conversations
		if c.pendingLoad != nil {
			for i := range r.Conversations {
				conv := &r.Conversations[i]
				if conv.ID != nil && *conv.ID == *c.pendingLoad {
					c.rec.applyLoad(*conv)
					c.pendingLoad = nil
					break
				}
			}
		}
		c.mu.Unlock()
		c.notify()

	case protocol.SystemPromptResponse:
		c.mu.Lock()
		c.systemPrompt = r.Content
		c.mu.Unlock()
		c.notify()
	}
}

// Snapshot returns the current observable state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() Snapshot {
	dir := make([]chat.Conversation, len(c.directory))
	for i := range c.directory {
		dir[i] = c.directory[i].Clone()
	}
	return Snapshot{
		Status:       c.session.Status(),
		Err:          c.session.LastErr(),
		Conversation: c.rec.snapshot(),
		Directory:    dir,
		SystemPrompt: c.systemPrompt,
	}
}

// Conversation returns a deep copy of the current conversation.
func (c *Client) Conversation() chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.snapshot()
}

// Status returns the transport connection status.
func (c *Client) Status() transport.Status { return c.session.Status() }

// LastErr returns the most recent connection error, if any.
func (c *Client) LastErr() error { return c.session.LastErr() }

// SystemPrompt returns the last server-echoed system prompt.
func (c *Client) SystemPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.systemPrompt
}

// Directory returns a deep copy of the conversation directory.
func (c *Client) Directory() []chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir := make([]chat.Conversation, len(c.directory))
	for i := range c.directory {
		dir[i] = c.directory[i].Clone()
	}
	return dir
}

// notify fires the OnChange callback with a fresh snapshot, outside the
// client's lock.
func (c *Client) notify() {
	if c.onChange == nil {
		return
	}
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.onChange(snap)
}
