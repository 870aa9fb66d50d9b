package merge

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ecdlp.dev/kangaroo/curve"
	"ecdlp.dev/kangaroo/dp"
)

// DefaultFlushPeriod is how often buffered DPs are pushed to the server even
// when the buffers are nowhere near full, bounding result latency.
const DefaultFlushPeriod = 2 * time.Second

// ClientConfig fixes one worker's connection to the merge server.
type ClientConfig struct {
	Addr string
	Name string // display name folded into the session id

	Group  curve.Group
	Target curve.Point
	Mask   dp.Mask

	// Lanes is the number of producing units, one DP buffer each. 0 means 1.
	Lanes int
	// BufferCapacity caps each lane's buffer. 0 means the dp default.
	BufferCapacity int
	// FlushPeriod is the send timer. 0 means DefaultFlushPeriod.
	FlushPeriod time.Duration

	// ReconnectMin/Max bound the exponential backoff after a lost
	// connection. Defaults: 1s and 30s.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// DialOptions are appended to the defaults (insecure transport), e.g. a
	// bufconn dialer in tests.
	DialOptions []grpc.DialOption

	// Logf, when set, receives operational log lines.
	Logf func(format string, args ...any)
}

// Client owns one DP buffer per lane, one long-lived server connection, and
// the downward control channel. Records survive reconnects: a batch drained
// from the lanes is held until a send succeeds, bounded by BufferCapacity
// with the same drop-newest overflow policy the lanes use.
type Client struct {
	cfg     ClientConfig
	buffers []*dp.Buffer

	kick chan struct{}

	mu      sync.Mutex
	scalar  *big.Int
	stopped atomic.Bool

	// pending holds drained-but-unsent records across a reconnect.
	pending []dp.Record
	dropped atomic.Uint64
}

// NewClient validates cfg and builds the lane buffers.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("merge: client needs a server address")
	}
	if cfg.Group == nil || cfg.Target == nil {
		return nil, errors.New("merge: client needs a group and a target point")
	}
	if cfg.Lanes <= 0 {
		cfg.Lanes = 1
	}
	if cfg.FlushPeriod <= 0 {
		cfg.FlushPeriod = DefaultFlushPeriod
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	c := &Client{
		cfg:  cfg,
		kick: make(chan struct{}, 1),
	}
	for i := 0; i < cfg.Lanes; i++ {
		c.buffers = append(c.buffers, dp.NewBuffer(dp.BufferConfig{Capacity: cfg.BufferCapacity}))
	}
	return c, nil
}

// Lane returns the DP buffer for one producing unit. Walk loops push into
// it; the client drains it on the flush timer.
func (c *Client) Lane(i int) *dp.Buffer { return c.buffers[i] }

// Flush requests an early flush, e.g. after a lane reported overflow.
// Never blocks.
func (c *Client) Flush() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Solution returns the broadcast scalar once the search is solved.
func (c *Client) Solution() (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scalar == nil {
		return nil, false
	}
	return new(big.Int).Set(c.scalar), true
}

// Stopped reports whether the stop broadcast has been received. Walk loops
// poll this to terminate.
func (c *Client) Stopped() bool { return c.stopped.Load() }

func (c *Client) logf(format string, args ...any) {
	if c.cfg.Logf != nil {
		c.cfg.Logf(format, args...)
	}
}

// Run connects and exchanges until the search is solved (returns nil), the
// context ends (returns its error), or the server rejects the configuration
// (returns ErrConfigMismatch without retrying — a retry cannot fix a wrong
// curve). Transient connection loss is retried with exponential backoff;
// walks continue to fill the lane buffers meanwhile.
func (c *Client) Run(ctx context.Context) error {
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go c.watchOverflow(watchCtx)

	backoff := c.cfg.ReconnectMin
	for {
		err := c.runOnce(ctx)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, ErrConfigMismatch):
			return err
		}
		c.logf("merge: connection lost (%v), retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

// watchOverflow kicks an early flush when any lane fills, so a hot lane is
// drained before it starts dropping records instead of waiting out the
// flush timer.
func (c *Client) watchOverflow(ctx context.Context) {
	period := c.cfg.FlushPeriod / 4
	if period <= 0 {
		period = time.Millisecond
	}
	if period > time.Second {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, buf := range c.buffers {
				if buf.Full() {
					c.Flush()
					break
				}
			}
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, c.cfg.DialOptions...)
	cc, err := grpc.DialContext(ctx, c.cfg.Addr, dialOpts...)
	if err != nil {
		return err
	}
	defer cc.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := NewMergeClient(cc).Exchange(streamCtx)
	if err != nil {
		return mapRPC(err)
	}

	hello := EncodeHello(Hello{
		Curve:    c.cfg.Group.Name(),
		Order:    c.cfg.Group.Order(),
		Target:   c.cfg.Target.Encode(),
		MaskBits: uint8(c.cfg.Mask.Bits),
		Name:     c.cfg.Name,
	})
	if err := stream.Send(wrapperspb.Bytes(hello)); err != nil {
		return mapRPC(err)
	}
	reply, err := stream.Recv()
	if err != nil {
		return mapRPC(err)
	}
	frame, err := DecodeFrame(reply.GetValue(), 0)
	if err != nil || frame.Tag != tagHelloOK {
		return ErrMalformed
	}
	maxBatch := frame.HelloOK.MaxBatch
	c.logf("merge: connected as %s", frame.HelloOK.Session)

	solvedc := make(chan struct{}, 1)
	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				recvErr <- mapRPC(err)
				return
			}
			f, err := DecodeFrame(msg.GetValue(), 0)
			if err != nil {
				recvErr <- err
				return
			}
			if f.Tag == tagStatus && f.Status.Solved {
				c.mu.Lock()
				c.scalar = f.Status.Scalar
				c.mu.Unlock()
				c.stopped.Store(true)
				solvedc <- struct{}{}
				return
			}
		}
	}()

	ticker := time.NewTicker(c.cfg.FlushPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-streamCtx.Done():
			return streamCtx.Err()
		case <-solvedc:
			return nil
		case err := <-recvErr:
			return err
		case <-c.kick:
			if err := c.flush(stream, maxBatch); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.flush(stream, maxBatch); err != nil {
				return err
			}
		}
	}
}

// flush drains every lane into the pending set and sends it, split by the
// negotiated batch ceiling. An empty flush degrades to a heartbeat so the
// server's idle state machine sees a live session.
func (c *Client) flush(stream Merge_ExchangeClient, maxBatch uint32) error {
	if c.stopped.Load() {
		return nil
	}
	limit := c.cfg.BufferCapacity
	if limit <= 0 {
		limit = dp.DefaultBufferCapacity
	}
	for _, buf := range c.buffers {
		for _, rec := range buf.Drain() {
			if len(c.pending) >= limit {
				c.dropped.Add(1)
				continue
			}
			c.pending = append(c.pending, rec)
		}
	}
	if len(c.pending) == 0 {
		return stream.Send(wrapperspb.Bytes(EncodeHeartbeat()))
	}
	for len(c.pending) > 0 {
		n := len(c.pending)
		if uint32(n) > maxBatch {
			n = int(maxBatch)
		}
		frame := EncodeBatch(Batch{Records: c.pending[:n]})
		if err := stream.Send(wrapperspb.Bytes(frame)); err != nil {
			// Keep the unsent records for the next connection.
			return mapRPC(err)
		}
		c.pending = c.pending[n:]
	}
	c.pending = nil
	return nil
}
