package feed

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, n)
	return b
}

func TestRun_NoTopics(t *testing.T) {
	err := New("tcp://127.0.0.1:1").Run(context.Background())
	assert.ErrorIs(t, err, ErrNoTopics)
}

func TestDispatch(t *testing.T) {
	s := New("tcp://unused")
	var got [][]byte
	s.Handle(TopicRawTx, func(_ context.Context, body []byte) error {
		got = append(got, body)
		return nil
	})
	s.Handle(TopicRawBlock, func(context.Context, []byte) error {
		return errors.New("boom")
	})

	ctx := context.Background()
	s.dispatch(ctx, [][]byte{[]byte(TopicRawTx), []byte("a"), seq(0)})
	s.dispatch(ctx, [][]byte{[]byte(TopicRawTx), []byte("b")})
	s.dispatch(ctx, [][]byte{[]byte("hashtx"), []byte("c")})
	s.dispatch(ctx, [][]byte{[]byte(TopicRawTx)})
	s.dispatch(ctx, [][]byte{[]byte(TopicRawBlock), []byte("d"), seq(0)})

	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, got)
	st := s.Stats()
	assert.Equal(t, uint64(3), st.Received)
	assert.Equal(t, uint64(1), st.Failed)
	assert.Zero(t, st.Gaps)
}

func TestDispatch_SequenceGap(t *testing.T) {
	s := New("tcp://unused")
	s.Handle(TopicRawTx, func(context.Context, []byte) error { return nil })

	type gap struct{ expected, got uint32 }
	var gaps []gap
	s.OnGap(func(topic string, expected, got uint32) {
		assert.Equal(t, TopicRawTx, topic)
		gaps = append(gaps, gap{expected, got})
	})

	ctx := context.Background()
	for _, n := range []uint32{5, 6, 9, 10} {
		s.dispatch(ctx, [][]byte{[]byte(TopicRawTx), []byte("x"), seq(n)})
	}
	assert.Equal(t, []gap{{7, 9}}, gaps)
	assert.Equal(t, uint64(1), s.Stats().Gaps)
}

func TestSubscriber_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := zmq4.NewPub(ctx)
	defer pub.Close()
	require.NoError(t, pub.Listen("tcp://127.0.0.1:0"))
	addr := "tcp://" + pub.Addr().String()

	s := New(addr)
	s.SetReconnect(50 * time.Millisecond)

	var mu sync.Mutex
	var bodies []string
	s.Handle(TopicRawBlock, func(_ context.Context, body []byte) error {
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Subscriptions propagate asynchronously; publish until one arrives.
	require.Eventually(t, func() bool {
		_ = pub.Send(zmq4.NewMsgFrom([]byte(TopicRawBlock), []byte("blk"), seq(0)))
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) > 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "blk", bodies[0])
	mu.Unlock()
	assert.True(t, s.Stats().Connected)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
