package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattwise/backend/internal/storage/models"
)

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()

	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	event := &models.AnomalyEvent{ID: "e-1", UserID: "user-1"}
	h.Publish(event)

	for _, ch := range []<-chan *models.AnomalyEvent{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "e-1", got.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestHub_CancelStopsDelivery(t *testing.T) {
	h := NewHub()

	ch, cancel := h.Subscribe()
	cancel()

	// closed channel reads return immediately
	_, ok := <-ch
	require.False(t, ok)

	// publishing after cancel must not panic
	h.Publish(&models.AnomalyEvent{ID: "e-2"})
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()

	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*4; i++ {
			h.Publish(&models.AnomalyEvent{ID: "flood"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	h := NewHub()

	_, cancel := h.Subscribe()
	cancel()
	cancel()
}
