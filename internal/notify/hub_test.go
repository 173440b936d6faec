package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(total int) Status {
	return Status{At: time.Now(), Total: total}
}

func TestHub_DeliversToSubscribers(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(snapshot(3))

	select {
	case got := <-ch:
		assert.Equal(t, 3, got.Total)
	default:
		t.Fatal("snapshot not delivered")
	}
}

func TestHub_ReplaysLastSnapshotToNewSubscriber(t *testing.T) {
	h := NewHub()
	h.Publish(snapshot(7))

	ch, cancel := h.Subscribe()
	defer cancel()

	select {
	case got := <-ch:
		assert.Equal(t, 7, got.Total, "late subscriber must see the latest snapshot")
	default:
		t.Fatal("no replay for late subscriber")
	}
}

func TestHub_SlowSubscriberGetsLatestNotOldest(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(snapshot(1))
	h.Publish(snapshot(2))
	h.Publish(snapshot(3))

	got := <-ch
	assert.Equal(t, 3, got.Total, "stale snapshots are dropped, never queued")
}

func TestHub_CancelClosesChannel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	require.Equal(t, 1, h.Subscribers())

	cancel()
	assert.Zero(t, h.Subscribers())

	_, open := <-ch
	assert.False(t, open)

	// Cancelling twice is harmless.
	cancel()

	// Publishing with no subscribers must not panic.
	h.Publish(snapshot(1))
}
