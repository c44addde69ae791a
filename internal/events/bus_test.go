package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(8, nil)
	defer bus.Close()

	saleCh, cancelSale := bus.Subscribe(TopicSaleCreated)
	defer cancelSale()
	allCh, cancelAll := bus.Subscribe()
	defer cancelAll()

	bus.Publish(Event{Topic: TopicSaleCreated, EntityID: "s1"})
	bus.Publish(Event{Topic: TopicInventoryUpdated, EntityID: "i1"})

	evt := <-saleCh
	require.Equal(t, TopicSaleCreated, evt.Topic)
	require.Equal(t, "s1", evt.EntityID)
	require.False(t, evt.At.IsZero())

	require.Equal(t, TopicSaleCreated, (<-allCh).Topic)
	require.Equal(t, TopicInventoryUpdated, (<-allCh).Topic)

	select {
	case extra := <-saleCh:
		t.Fatalf("unexpected event %q", extra.Topic)
	default:
	}
}

func TestPublishNeverBlocksOnFullQueue(t *testing.T) {
	bus := NewBus(1, nil)
	defer bus.Close()

	var dropped []string
	bus.OnDrop = func(topic string) { dropped = append(dropped, topic) }

	ch, cancel := bus.Subscribe(TopicInventoryUpdated)
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Topic: TopicInventoryUpdated, EntityID: "a"})
		bus.Publish(Event{Topic: TopicInventoryUpdated, EntityID: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}

	require.Equal(t, "a", (<-ch).EntityID)
	require.Equal(t, []string{TopicInventoryUpdated}, dropped)
}

func TestOnPublishFiresOncePerEvent(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	var published []string
	bus.OnPublish = func(topic string) { published = append(published, topic) }

	_, cancelA := bus.Subscribe()
	defer cancelA()
	_, cancelB := bus.Subscribe()
	defer cancelB()

	// Two subscribers, one hook invocation per publish. Events with no
	// listeners still count as published.
	bus.Publish(Event{Topic: TopicSaleCreated, EntityID: "s1"})
	cancelA()
	cancelB()
	bus.Publish(Event{Topic: TopicSaleDeleted, EntityID: "s1"})

	require.Equal(t, []string{TopicSaleCreated, TopicSaleDeleted}, published)

	bus.Close()
	bus.Publish(Event{Topic: TopicSaleUpdated, EntityID: "s1"})
	require.Len(t, published, 2)
}

func TestSameEntityEventsArriveInPublishOrder(t *testing.T) {
	bus := NewBus(16, nil)
	defer bus.Close()

	ch, cancel := bus.Subscribe(TopicInventoryUpdated)
	defer cancel()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Topic: TopicInventoryUpdated, EntityID: "item-1", Payload: i})
	}
	for i := 0; i < 5; i++ {
		require.Equal(t, i, (<-ch).Payload)
	}
}

func TestCancelDetachesSubscriber(t *testing.T) {
	bus := NewBus(8, nil)
	defer bus.Close()

	ch, cancel := bus.Subscribe(TopicSaleCreated)
	cancel()
	cancel() // second cancel is a no-op

	_, open := <-ch
	require.False(t, open)
}
