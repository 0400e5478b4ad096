package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenCmd_ReturnsEventAsMsg(t *testing.T) {
	b := NewBroker[string]()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx)

	b.Publish(NotifyEvent, "delta")

	ev, ok := ListenCmd(ctx, ch)().(Event[string])
	require.True(t, ok)
	require.Equal(t, "delta", ev.Payload)
}

func TestListenCmd_NilOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Nil(t, ListenCmd(ctx, make(chan Event[string]))())
}

func TestListenCmd_NilOnClosedChannel(t *testing.T) {
	ch := make(chan Event[string])
	close(ch)

	require.Nil(t, ListenCmd(context.Background(), ch)())
}

func TestFilteredListener_SkipsOtherPayloads(t *testing.T) {
	b := NewBroker[int]()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewFilteredListener(ctx, b, func(n int) bool { return n%2 == 0 })
	b.Publish(NotifyEvent, 1)
	b.Publish(NotifyEvent, 2)
	b.Publish(NotifyEvent, 4)

	first, ok := l.Listen()().(Event[int])
	require.True(t, ok)
	require.Equal(t, 2, first.Payload)

	second, ok := l.Listen()().(Event[int])
	require.True(t, ok)
	require.Equal(t, 4, second.Payload)
}

func TestReliableListener_DeliversPastBuffer(t *testing.T) {
	b := NewBrokerWithBuffer[int](1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewReliableListener(ctx, b, nil)
	go func() {
		for i := 1; i <= 3; i++ {
			b.Publish(NotifyEvent, i)
		}
	}()

	for want := 1; want <= 3; want++ {
		ev, ok := l.Listen()().(Event[int])
		require.True(t, ok)
		require.Equal(t, want, ev.Payload)
	}
}
