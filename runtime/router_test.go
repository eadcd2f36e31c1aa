package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupkit-ai/groupkit/types"
)

func TestRouter_PublishDelivers(t *testing.T) {
	t.Parallel()

	r := NewRouter(0, zap.NewNop())
	defer r.Close()
	ctx := context.Background()

	received := make(chan Envelope, 1)
	require.NoError(t, r.Register(ctx, "sub", func(_ context.Context, env Envelope) {
		received <- env
	}))
	require.NoError(t, r.Subscribe("topic", "sub"))

	msg := types.NewTextMessage("a", "hello")
	require.NoError(t, r.Publish(ctx, Envelope{Topic: "topic", Kind: EnvelopeResponse, Message: msg}))

	select {
	case env := <-received:
		assert.Equal(t, "hello", env.Message.Content)
	case <-time.After(time.Second):
		t.Fatal("envelope was not delivered")
	}
}

func TestRouter_PublishWithoutSubscribersFails(t *testing.T) {
	t.Parallel()

	r := NewRouter(0, zap.NewNop())
	defer r.Close()

	err := r.Publish(context.Background(), Envelope{Topic: "nobody-home"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrDispatch))
}

func TestRouter_DuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	r := NewRouter(0, zap.NewNop())
	defer r.Close()
	ctx := context.Background()

	handler := func(context.Context, Envelope) {}
	require.NoError(t, r.Register(ctx, "sub", handler))
	err := r.Register(ctx, "sub", handler)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrDispatch))
}

func TestRouter_SubscribeUnknownSubscriberFails(t *testing.T) {
	t.Parallel()

	r := NewRouter(0, zap.NewNop())
	defer r.Close()

	err := r.Subscribe("topic", "ghost")
	require.Error(t, err)
}

// N producers publish disjoint tagged sequences concurrently; every
// subscriber must observe each producer's messages in that producer's
// publish order.
func TestRouter_PerProducerOrderPreserved(t *testing.T) {
	t.Parallel()

	r := NewRouter(256, zap.NewNop())
	ctx := context.Background()

	const producers = 8
	const perProducer = 50

	var mu sync.Mutex
	var got []string
	require.NoError(t, r.Register(ctx, "sub", func(_ context.Context, env Envelope) {
		mu.Lock()
		got = append(got, env.Message.Content)
		mu.Unlock()
	}))
	require.NoError(t, r.Subscribe("topic", "sub"))

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				msg := types.NewTextMessage("producer", fmt.Sprintf("%d/%d", p, i))
				require.NoError(t, r.Publish(ctx, Envelope{Topic: "topic", Kind: EnvelopeResponse, Message: msg}))
			}
		}(p)
	}
	wg.Wait()
	r.Close() // drains the mailbox before returning

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, producers*perProducer)

	// Per producer, sequence numbers must appear in increasing order.
	next := make([]int, producers)
	for _, content := range got {
		var p, i int
		_, err := fmt.Sscanf(content, "%d/%d", &p, &i)
		require.NoError(t, err)
		assert.Equal(t, next[p], i, "producer %d out of order", p)
		next[p]++
	}
}

// A subscriber of several topics sees all its traffic in publish order even
// across topics, because every subscription feeds one mailbox.
func TestRouter_CrossTopicOrderPreserved(t *testing.T) {
	t.Parallel()

	r := NewRouter(64, zap.NewNop())
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	require.NoError(t, r.Register(ctx, "sub", func(_ context.Context, env Envelope) {
		mu.Lock()
		got = append(got, env.Topic)
		mu.Unlock()
	}))
	require.NoError(t, r.Subscribe("alpha", "sub"))
	require.NoError(t, r.Subscribe("beta", "sub"))

	topics := []string{"alpha", "beta", "beta", "alpha", "beta", "alpha"}
	for _, topic := range topics {
		require.NoError(t, r.Publish(ctx, Envelope{Topic: topic, Kind: EnvelopeResponse}))
	}
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, topics, got)
}

func TestRouter_PublishAfterCloseFails(t *testing.T) {
	t.Parallel()

	r := NewRouter(0, zap.NewNop())
	r.Close()
	err := r.Publish(context.Background(), Envelope{Topic: "topic"})
	require.Error(t, err)
}
