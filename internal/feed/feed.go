// Package feed subscribes to a full node's ZeroMQ notifications.
package feed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/Klingon-tech/slpgraph/internal/log"
)

// Topics published by the node.
const (
	TopicRawTx    = "rawtx"
	TopicRawBlock = "rawblock"
)

// DefaultReconnect is the delay between connection attempts.
const DefaultReconnect = 5 * time.Second

// ErrNoTopics is returned by Run when no handler was registered.
var ErrNoTopics = errors.New("no topics registered")

// Handler processes the body of one notification.
type Handler func(ctx context.Context, body []byte) error

// GapFunc is called when a topic's sequence number skips, meaning
// notifications were lost.
type GapFunc func(topic string, expected, got uint32)

// Subscriber is a ZMQ SUB client that reconnects until its context ends.
type Subscriber struct {
	addr      string
	reconnect time.Duration

	mu       sync.Mutex
	topics   []string
	handlers map[string]Handler
	onGap    GapFunc
	seq      map[string]uint32
	stats    Stats
}

// Stats counts notifications.
type Stats struct {
	Received  uint64 `json:"received"`
	Failed    uint64 `json:"failed"`
	Gaps      uint64 `json:"gaps"`
	Connected bool   `json:"connected"`
}

// New creates a subscriber for the endpoint addr, e.g. tcp://127.0.0.1:28332.
func New(addr string) *Subscriber {
	return &Subscriber{
		addr:      addr,
		reconnect: DefaultReconnect,
		handlers:  make(map[string]Handler),
		seq:       make(map[string]uint32),
	}
}

// SetReconnect changes the reconnect delay.
func (s *Subscriber) SetReconnect(d time.Duration) {
	s.reconnect = d
}

// Handle registers h for topic. Registering a topic twice replaces the handler.
func (s *Subscriber) Handle(topic string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[topic]; !ok {
		s.topics = append(s.topics, topic)
	}
	s.handlers[topic] = h
}

// OnGap registers fn to be called on sequence gaps.
func (s *Subscriber) OnGap(fn GapFunc) {
	s.mu.Lock()
	s.onGap = fn
	s.mu.Unlock()
}

// Stats returns a copy of the counters.
func (s *Subscriber) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run connects and dispatches notifications until ctx is cancelled. Lost
// connections are retried after the reconnect delay.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	topics := append([]string(nil), s.topics...)
	s.mu.Unlock()
	if len(topics) == 0 {
		return ErrNoTopics
	}

	log.Feed.Info().
		Str("addr", s.addr).
		Str("topics", strings.Join(topics, ",")).
		Msg("Starting ZMQ subscriber")

	for {
		err := s.session(ctx, topics)
		s.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		log.Feed.Warn().Err(err).Dur("retry", s.reconnect).Msg("ZMQ connection lost")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnect):
		}
	}
}

// session runs one connection until it fails or ctx ends.
func (s *Subscriber) session(ctx context.Context, topics []string) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sock := zmq4.NewSub(sctx)
	// Recv does not take a context; closing the socket unblocks it. The
	// deferred cancel closes it on every return path.
	go func() {
		<-sctx.Done()
		sock.Close()
	}()

	if err := sock.Dial(s.addr); err != nil {
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}
	for _, topic := range topics {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	s.setConnected(true)
	log.Feed.Info().Str("addr", s.addr).Msg("Connected to ZMQ publisher")

	for {
		msg, err := sock.Recv()
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}
		s.dispatch(ctx, msg.Frames)
	}
}

// dispatch routes one multipart message: topic, body and an optional
// little-endian sequence number.
func (s *Subscriber) dispatch(ctx context.Context, frames [][]byte) {
	if len(frames) < 2 {
		log.Feed.Debug().Int("frames", len(frames)).Msg("Ignoring short ZMQ message")
		return
	}
	topic := string(frames[0])

	s.mu.Lock()
	h, ok := s.handlers[topic]
	var gap GapFunc
	var expected, got uint32
	if ok && len(frames) >= 3 && len(frames[2]) == 4 {
		got = binary.LittleEndian.Uint32(frames[2])
		if prev, seen := s.seq[topic]; seen && got != prev+1 {
			expected = prev + 1
			gap = s.onGap
			s.stats.Gaps++
		}
		s.seq[topic] = got
	}
	if ok {
		s.stats.Received++
	}
	s.mu.Unlock()

	if !ok {
		log.Feed.Debug().Str("topic", topic).Msg("No handler for topic")
		return
	}
	if gap != nil {
		log.Feed.Warn().Str("topic", topic).Uint32("expected", expected).Uint32("got", got).Msg("ZMQ sequence gap")
		gap(topic, expected, got)
	}

	if err := h(ctx, frames[1]); err != nil {
		s.mu.Lock()
		s.stats.Failed++
		s.mu.Unlock()
		log.Feed.Warn().Err(err).Str("topic", topic).Msg("Handler failed")
	}
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.stats.Connected = v
	s.mu.Unlock()
}
