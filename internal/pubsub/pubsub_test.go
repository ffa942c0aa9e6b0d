package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/types"
)

type fakeSender struct {
	mu  sync.Mutex
	got []types.Tag
	err error
}

func (f *fakeSender) SendTo(ctx context.Context, tag types.Tag, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, tag)
	return nil
}

func encodeString(v string) ([]byte, error) { return []byte(v), nil }
func decodeString(b []byte) (string, error) { return string(b), nil }

func TestUpdateTaggedInstancesNotifiesHandlers(t *testing.T) {
	svc := NewSubscriptionService("svc", RoleSubscriber, types.Tag(1), nil)

	var got map[types.Tag]uint64
	svc.OnUpdate(func(tagged map[types.Tag]uint64) {
		got = tagged
	})

	svc.UpdateTaggedInstances(RoleSubscriber, map[types.Tag]uint64{1: 100, 2: 200})
	require.Len(t, got, 2)
	assert.Equal(t, uint64(100), got[types.Tag(1)])
}

func TestUpdateTaggedInstancesIgnoresWrongRole(t *testing.T) {
	svc := NewSubscriptionService("svc", RoleSubscriber, types.Tag(1), nil)
	called := false
	svc.OnUpdate(func(map[types.Tag]uint64) { called = true })

	svc.UpdateTaggedInstances(RolePublisher, map[types.Tag]uint64{1: 100})
	assert.False(t, called)
	assert.Empty(t, svc.TaggedInstances())
}

func TestDropRunsHandlersOnce(t *testing.T) {
	svc := NewSubscriptionService("svc", RoleSubscriber, types.Tag(1), nil)
	count := 0
	svc.OnDrop(func() { count++ })

	svc.Drop()
	svc.Drop()
	assert.Equal(t, 1, count)
}

func TestPublisherRoundRobinsAcrossTaggedInstances(t *testing.T) {
	sender := &fakeSender{}
	pub := NewPublisher[string]("pub", types.Tag(0), sender, encodeString, nil)
	pub.UpdateTaggedInstances(RoleSubscriber, map[types.Tag]uint64{1: 10, 2: 20, 3: 30})

	for i := 0; i < 6; i++ {
		require.Equal(t, channel.StatusSuccess, pub.AwaitWrite(context.Background(), fmt.Sprintf("v%d", i)))
	}

	counts := map[types.Tag]int{}
	for _, tag := range sender.got {
		counts[tag]++
	}
	assert.Equal(t, 2, counts[types.Tag(1)])
	assert.Equal(t, 2, counts[types.Tag(2)])
	assert.Equal(t, 2, counts[types.Tag(3)])
}

func TestPublisherWithNoSubscribersFails(t *testing.T) {
	pub := NewPublisher[string]("pub", types.Tag(0), &fakeSender{}, encodeString, nil)
	assert.Equal(t, channel.StatusError, pub.AwaitWrite(context.Background(), "x"))
}

func TestPublisherSendFailureIsStatusError(t *testing.T) {
	sender := &fakeSender{err: errors.New("boom")}
	pub := NewPublisher[string]("pub", types.Tag(0), sender, encodeString, nil)
	pub.UpdateTaggedInstances(RoleSubscriber, map[types.Tag]uint64{1: 10})

	assert.Equal(t, channel.StatusError, pub.AwaitWrite(context.Background(), "x"))
}

func TestSubscriberDeliverDecodesAndHandles(t *testing.T) {
	var got string
	sub := NewSubscriber[string]("sub", types.Tag(1), decodeString, func(v string) { got = v }, nil)

	require.NoError(t, sub.Deliver([]byte("hello")))
	assert.Equal(t, "hello", got)
}

func TestSubscriberDeliverPropagatesDecodeError(t *testing.T) {
	sub := NewSubscriber[string]("sub", types.Tag(1), func([]byte) (string, error) {
		return "", errors.New("bad payload")
	}, func(string) {}, nil)

	assert.Error(t, sub.Deliver([]byte("x")))
}
