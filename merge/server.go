package merge

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ecdlp.dev/kangaroo/curve"
	"ecdlp.dev/kangaroo/dp"
	"ecdlp.dev/kangaroo/table"
)

// DefaultIdleTimeout matches the original engine: an hour of silence before
// a client connection is reclaimed.
const DefaultIdleTimeout = 3600 * time.Second

// SearchState is the server's global phase.
type SearchState int32

const (
	// Searching: merging batches, looking for the collision.
	Searching SearchState = iota
	// Solved: collision verified; new batches are accepted but not merged.
	Solved
	// Draining: stop broadcast out; in-flight connections may close.
	Draining
)

func (s SearchState) String() string {
	switch s {
	case Searching:
		return "searching"
	case Solved:
		return "solved"
	case Draining:
		return "draining"
	}
	return "unknown"
}

// ServerConfig fixes one search. Group, Target, and Mask must match what
// every client walks with; the handshake enforces it.
type ServerConfig struct {
	Group  curve.Group
	Target curve.Point
	Mask   dp.Mask

	// TameOffset is the tame herds' known starting multiple of G, consumed
	// by the solver. nil means 0.
	TameOffset *big.Int

	// Shards is the collision-table partition count. 0 means the default.
	Shards int
	// MaxBatch is the per-frame record ceiling announced at handshake.
	// 0 means DefaultMaxBatch.
	MaxBatch uint32
	// IdleTimeout reaps silent sessions. 0 means DefaultIdleTimeout.
	IdleTimeout time.Duration
	// ReapInterval is how often idleness is polled. 0 derives it from
	// IdleTimeout.
	ReapInterval time.Duration

	// Logf, when set, receives operational log lines.
	Logf func(format string, args ...any)
}

// Server is the merge authority: it owns the collision table, the client
// sessions, and the solve broadcast.
type Server struct {
	UnimplementedMergeServer

	cfg ServerConfig
	tbl *table.Table

	state atomic.Int32
	seq   atomic.Uint64

	mu       sync.Mutex
	scalar   *big.Int
	sessions map[string]*session

	falsePositives atomic.Uint64

	reapStop chan struct{}
	reapDone chan struct{}
}

// NewServer validates cfg, applies defaults, and starts the idle reaper.
// Callers must Close the server to stop the reaper.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Group == nil || cfg.Target == nil {
		return nil, errors.New("merge: server needs a group and a target point")
	}
	if cfg.MaxBatch == 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = cfg.IdleTimeout / 4
		if cfg.ReapInterval > time.Minute {
			cfg.ReapInterval = time.Minute
		}
	}
	s := &Server{
		cfg:      cfg,
		tbl:      table.New(table.Config{Shards: cfg.Shards}),
		sessions: make(map[string]*session),
		reapStop: make(chan struct{}),
		reapDone: make(chan struct{}),
	}
	go s.reapLoop()
	return s, nil
}

// Close stops the reaper and closes every session.
func (s *Server) Close() {
	select {
	case <-s.reapDone:
		return
	default:
	}
	close(s.reapStop)
	<-s.reapDone
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.Close()
	}
}

// Table exposes the collision table for checkpointing.
func (s *Server) Table() *table.Table { return s.tbl }

// State reports the global search phase.
func (s *Server) State() SearchState { return SearchState(s.state.Load()) }

// Solution returns the recovered scalar once the search is solved.
func (s *Server) Solution() (*big.Int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scalar == nil {
		return nil, false
	}
	return new(big.Int).Set(s.scalar), true
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logf != nil {
		s.cfg.Logf(format, args...)
	}
}

// Exchange implements the long-lived per-client stream.
func (s *Server) Exchange(stream Merge_ExchangeServer) error {
	first, err := stream.Recv()
	if err != nil {
		return mapErr(ErrMalformed)
	}
	frame, err := DecodeFrame(first.GetValue(), s.cfg.MaxBatch)
	if err != nil {
		return mapErr(err)
	}
	if frame.Tag != tagHello {
		return mapErr(fmt.Errorf("%w: first frame must be hello", ErrMalformed))
	}
	if err := s.checkHello(*frame.Hello); err != nil {
		return mapErr(err)
	}

	sess := s.register(frame.Hello.Name)
	defer s.unregister(sess)
	s.logf("merge: session %s connected", sess.id)

	reply := EncodeHelloOK(HelloOK{Session: sess.id, MaxBatch: sess.maxBatch})
	if err := stream.Send(wrapperspb.Bytes(reply)); err != nil {
		return err
	}
	// A client joining an already-solved search hears about it immediately.
	if s.State() != Searching {
		sess.send(s.statusFrame())
	}

	errc := make(chan error, 1)
	go s.recvLoop(stream, sess, errc)

	for {
		select {
		case frame := <-sess.out:
			if err := stream.Send(wrapperspb.Bytes(frame)); err != nil {
				return err
			}
		case <-sess.done:
			s.logf("merge: session %s closed (%s)", sess.id, sess.State())
			return mapErr(ErrIdleTimeout)
		case err := <-errc:
			return err
		}
	}
}

// checkHello enforces that the client is walking the same search.
func (s *Server) checkHello(h Hello) error {
	switch {
	case h.Curve != s.cfg.Group.Name():
		return fmt.Errorf("%w: curve %q, server runs %q", ErrConfigMismatch, h.Curve, s.cfg.Group.Name())
	case h.Order == nil || h.Order.Cmp(s.cfg.Group.Order()) != 0:
		return fmt.Errorf("%w: group order", ErrConfigMismatch)
	case !bytes.Equal(h.Target, s.cfg.Target.Encode()):
		return fmt.Errorf("%w: target point", ErrConfigMismatch)
	case uint(h.MaskBits) != s.cfg.Mask.Bits:
		return fmt.Errorf("%w: dp mask %d, server uses %d", ErrConfigMismatch, h.MaskBits, s.cfg.Mask.Bits)
	}
	return nil
}

func (s *Server) register(name string) *session {
	id := fmt.Sprintf("c%04d", s.seq.Add(1))
	if name != "" {
		id = id + "-" + name
	}
	sess := newSession(id, s.cfg.MaxBatch, time.Now())
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	sess.Close()
}

// recvLoop consumes client frames until the stream ends or misbehaves.
func (s *Server) recvLoop(stream Merge_ExchangeServer, sess *session, errc chan<- error) {
	for {
		msg, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				errc <- nil
			} else {
				errc <- err
			}
			return
		}
		frame, err := DecodeFrame(msg.GetValue(), sess.maxBatch)
		if err != nil {
			errc <- mapErr(err)
			return
		}
		sess.Touch(time.Now())
		switch frame.Tag {
		case tagBatch:
			s.ingest(sess, *frame.Batch)
		case tagHeartbeat:
			sess.send(s.statusFrame())
		default:
			// Clients have no business sending hellos twice or
			// server-only frames.
			errc <- mapErr(fmt.Errorf("%w: unexpected frame %#02x", ErrMalformed, frame.Tag))
			return
		}
	}
}

// ingest merges one batch record-by-record, so cancelling a session mid-
// batch loses only the tail — those DPs are rediscoverable by more walking.
func (s *Server) ingest(sess *session, b Batch) {
	if s.State() != Searching {
		// Accepted but not merged: a collision was already found and
		// shutdown must stay bounded.
		return
	}
	for _, rec := range b.Records {
		rec.Client = sess.id
		col, err := s.tbl.Insert(rec)
		if err != nil {
			if errors.Is(err, table.ErrSolved) {
				return
			}
			continue // invalid record: counted by the table, never fatal
		}
		if col != nil {
			s.trySolve(*col)
			if s.State() != Searching {
				return
			}
		}
	}
}

// trySolve runs the solver on a detected collision. A verification failure
// is a false positive: it is logged and counted, the table latch is
// released, and the search resumes as if nothing happened.
func (s *Server) trySolve(col table.Collision) {
	k, err := table.Solve(s.cfg.Group, s.cfg.Target, s.cfg.TameOffset, col)
	if err != nil {
		s.falsePositives.Add(1)
		s.logf("merge: collision on %x did not verify: %v", col.Incoming.Point, err)
		s.tbl.Reopen()
		return
	}

	s.mu.Lock()
	if s.scalar != nil {
		s.mu.Unlock()
		return
	}
	s.scalar = k
	s.state.Store(int32(Solved))
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	s.logf("merge: solved, k = %s (tame %s, wild %s)",
		k.Text(16), col.Existing.Client, col.Incoming.Client)
	frame := s.statusFrame()
	for _, sess := range targets {
		sess.send(frame)
	}
	s.state.Store(int32(Draining))
}

// statusFrame encodes the current broadcast payload.
func (s *Server) statusFrame() []byte {
	s.mu.Lock()
	scalar := s.scalar
	s.mu.Unlock()
	if scalar == nil {
		return EncodeStatus(Status{})
	}
	return EncodeStatus(Status{Solved: true, Scalar: scalar})
}

// reapLoop polls session idleness and force-closes quiet connections. The
// server never blocks waiting on a client.
func (s *Server) reapLoop() {
	defer close(s.reapDone)
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.reapStop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			candidates := make([]*session, 0, len(s.sessions))
			for _, sess := range s.sessions {
				candidates = append(candidates, sess)
			}
			s.mu.Unlock()
			for _, sess := range candidates {
				if sess.Observe(now, s.cfg.IdleTimeout) == StateIdle {
					s.logf("merge: reaping idle session %s", sess.id)
					sess.Close()
				}
			}
		}
	}
}

// StatsSnapshot is the decoded form of the Stats RPC payload.
type StatsSnapshot struct {
	State          SearchState
	Entries        uint64
	Inserted       uint64
	Duplicate      uint64
	Rejected       uint64
	Sessions       uint64
	FalsePositives uint64
}

// Stats implements the diagnostics RPC.
func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	_ = ctx
	st := s.tbl.Stats()
	s.mu.Lock()
	nsess := uint64(len(s.sessions))
	s.mu.Unlock()
	snap := StatsSnapshot{
		State:          s.State(),
		Entries:        uint64(st.Entries),
		Inserted:       st.Inserted,
		Duplicate:      st.Duplicate,
		Rejected:       st.Rejected,
		Sessions:       nsess,
		FalsePositives: s.falsePositives.Load(),
	}
	return wrapperspb.Bytes(EncodeStats(snap)), nil
}

// EncodeStats serializes a stats snapshot as uvarints.
func EncodeStats(s StatsSnapshot) []byte {
	buf := binary.AppendUvarint(nil, uint64(s.State))
	for _, v := range []uint64{s.Entries, s.Inserted, s.Duplicate, s.Rejected, s.Sessions, s.FalsePositives} {
		buf = binary.AppendUvarint(buf, v)
	}
	return buf
}

// DecodeStats parses a stats snapshot.
func DecodeStats(raw []byte) (StatsSnapshot, error) {
	r := bytes.NewReader(raw)
	fields := make([]uint64, 7)
	for i := range fields {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return StatsSnapshot{}, ErrMalformed
		}
		fields[i] = v
	}
	if r.Len() != 0 {
		return StatsSnapshot{}, ErrMalformed
	}
	return StatsSnapshot{
		State:          SearchState(fields[0]),
		Entries:        fields[1],
		Inserted:       fields[2],
		Duplicate:      fields[3],
		Rejected:       fields[4],
		Sessions:       fields[5],
		FalsePositives: fields[6],
	}, nil
}
