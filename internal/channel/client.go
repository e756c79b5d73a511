package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/types"
	pkgtypes "github.com/DoyleJ11/hacksail-client/pkg/types"
)

var ErrQueueFull = errors.New("channel: outbound queue full")

const (
	defaultQueueSize = 64
	writeTimeout     = 3 * time.Second
)

// DefaultBackoff is exponential from 500ms with 10% jitter, each wait capped
// at 30s, retrying until the context ends.
func DefaultBackoff() retry.Backoff {
	b := retry.NewExponential(500 * time.Millisecond)
	b = retry.WithJitterPercent(10, b)
	return retry.WithCappedDuration(30*time.Second, b)
}

// Client is the app-scoped session channel: one websocket, reconnected
// automatically, with topic handlers kept across reconnects.
type Client struct {
	*Registry

	url       string
	id        string
	log       *zap.Logger
	out       chan types.Envelope
	pending   *types.Envelope // frame whose write failed; only the writer touches it
	queueSize int
	backoff   func() retry.Backoff
	connected atomic.Bool
}

type Option func(*Client)

func WithBackoff(f func() retry.Backoff) Option {
	return func(c *Client) { c.backoff = f }
}

func WithQueueSize(n int) Option {
	return func(c *Client) { c.queueSize = n }
}

func NewClient(rawURL string, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		Registry:  NewRegistry(),
		url:       rawURL,
		id:        uuid.NewString(),
		log:       log.Named("channel"),
		queueSize: defaultQueueSize,
		backoff:   DefaultBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	c.out = make(chan types.Envelope, c.queueSize)
	return c
}

// ID is the instance id sent to the server on every dial.
func (c *Client) ID() string { return c.id }

func (c *Client) Connected() bool { return c.connected.Load() }

// Emit queues a fire-and-forget frame. Frames queued while disconnected are
// sent after the next successful dial.
func (c *Client) Emit(topic string, payload any) error {
	env := types.Envelope{Type: topic}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("channel: encode %s: %w", topic, err)
		}
		env.Data = data
	}
	select {
	case c.out <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run keeps the connection alive until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			return err
		}
		c.connected.Store(true)
		c.log.Info("connected", zap.String("client_id", c.id))
		c.Dispatch(pkgtypes.TopicConnect, nil)

		err = c.serve(ctx, conn)
		c.connected.Store(false)
		if ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			return ctx.Err()
		}
		_ = conn.Close(websocket.StatusGoingAway, "")
		c.log.Warn("disconnected, reconnecting", zap.Error(err))
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("channel: bad url: %w", err)
	}
	q := u.Query()
	q.Set("client", c.id)
	u.RawQuery = q.Encode()

	var conn *websocket.Conn
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		cn, _, err := websocket.Dial(ctx, u.String(), nil)
		if err != nil {
			c.log.Debug("dial failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		conn = cn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// writeLoop sends queued frames through write until ctx ends or a write
// fails. The failed frame is kept and goes out first on the next connection.
func (c *Client) writeLoop(ctx context.Context, write func(context.Context, types.Envelope) error) error {
	for {
		var env types.Envelope
		if c.pending != nil {
			env, c.pending = *c.pending, nil
		} else {
			select {
			case <-ctx.Done():
				return nil
			case env = <-c.out:
			}
		}
		if err := write(ctx, env); err != nil {
			c.pending = &env
			return fmt.Errorf("%s: %w", env.Type, err)
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)

	// Writer goroutine. serve waits for it so the next connection's writer
	// never races it for pending.
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
	}()
	go func() {
		defer close(done)
		err := c.writeLoop(ctx, func(ctx context.Context, env types.Envelope) error {
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			defer wcancel()
			return wsjson.Write(wctx, conn, env)
		})
		if err != nil {
			c.log.Warn("write failed", zap.Error(err))
		}
		cancel()
	}()

	// Reader loop
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.log.Debug("dropping malformed frame", zap.ByteString("frame", data))
			continue
		}
		n := c.Dispatch(env.Type, env.Data)
		c.log.Debug("push", zap.String("topic", env.Type), zap.Int("handlers", n))
	}
}
