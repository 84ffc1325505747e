package hub

import (
	"context"
	"testing"
	"time"

	"trading-relay/src/models"
	"trading-relay/src/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tickEvent(bid float64) models.MEvent {
	return models.MEvent{Type: models.EventTick, Data: models.NewTick("R_100", bid, bid, int64(bid))}
}

func bids(events []models.MEvent) []float64 {
	out := make([]float64, 0, len(events))
	for _, e := range events {
		out = append(out, e.Data.(models.MTick).Bid)
	}
	return out
}

func receive(t *testing.T, c *ClientHandle) []models.MEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, err := c.Receive(ctx)
	require.NoError(t, err)
	return batch
}

func TestPublishFansOut(t *testing.T) {
	h := NewHub(8, nil, nil)
	a, b := h.Subscribe(), h.Subscribe()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, h.Count())

	h.Publish(tickEvent(1))
	h.Publish(tickEvent(2))

	assert.Equal(t, []float64{1, 2}, bids(receive(t, a)))
	assert.Equal(t, []float64{1, 2}, bids(receive(t, b)))
}

func TestSlowClientDropsOldestWithoutBlockingOthers(t *testing.T) {
	h := NewHub(3, nil, nil)
	slow, fast := h.Subscribe(), h.Subscribe()

	for i := 1; i <= 5; i++ {
		h.Publish(tickEvent(float64(i)))
		assert.Equal(t, []float64{float64(i)}, bids(receive(t, fast)), "fast client keeps up")
	}
	h.Publish(tickEvent(6))

	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Equal(t, []float64{4, 5, 6}, bids(receive(t, slow)), "order preserved beyond the drop")
	assert.Equal(t, []float64{6}, bids(receive(t, fast)))
	assert.Equal(t, uint64(0), fast.Dropped())
}

func TestBootstrapPrecedesLiveEvents(t *testing.T) {
	store := state.NewStateStore(10, 10, nil)
	store.SetAccount(models.MAccount{ID: "CR1", Balance: 10, Currency: "USD"})
	store.UpsertPosition(models.MPosition{ContractID: 5, Symbol: "R_100"})
	store.AppendLog(models.MLogEntry{ID: "l1", Message: "authorized"})
	store.AppendTick(models.NewTick("R_50", 1, 1, 1))
	store.AppendTick(models.NewTick("R_100", 2, 2, 2))

	h := NewHub(2, StoreBootstrap(store, 10, 10), nil)
	c := h.Subscribe()
	h.Publish(tickEvent(99))

	batch := receive(t, c)
	types := make([]string, 0, len(batch))
	for _, e := range batch {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		models.EventAccount, models.EventBalance, models.EventPositions,
		models.EventLog, models.EventTick, models.EventTick, models.EventTick,
	}, types)
	assert.Equal(t, "R_100", batch[4].Data.(models.MTick).Symbol)
	assert.Equal(t, "R_50", batch[5].Data.(models.MTick).Symbol)
	assert.Equal(t, 99.0, batch[6].Data.(models.MTick).Bid)
	assert.Equal(t, models.MBalanceUpdate{AccountID: "CR1", Balance: 10, Currency: "USD"}, batch[1].Data)
}

func TestBootstrapIsNotSubjectToQueueCap(t *testing.T) {
	store := state.NewStateStore(50, 500, nil)
	for i := 0; i < 20; i++ {
		store.AppendTick(models.NewTick("R_100", float64(i), float64(i), int64(i)))
	}
	h := NewHub(1, StoreBootstrap(store, 50, 50), nil)
	c := h.Subscribe()

	batch := receive(t, c)
	assert.Len(t, batch, 21) // positions frame plus 20 ticks
	assert.Equal(t, uint64(0), c.Dropped())
}

func TestSubscribeWaitsForPendingStateWrite(t *testing.T) {
	store := state.NewStateStore(10, 10, nil)
	h := NewHub(4, StoreBootstrap(store, 10, 10), nil)
	entry := models.MLogEntry{ID: "l7", Message: "order placed"}

	entered, proceed := make(chan struct{}), make(chan struct{})
	go h.PublishAfter(func() {
		close(entered)
		<-proceed
		store.AppendLog(entry)
	}, models.MEvent{Type: models.EventLog, Data: entry})
	<-entered

	subscribed := make(chan *ClientHandle, 1)
	go func() { subscribed <- h.Subscribe() }()
	select {
	case <-subscribed:
		t.Fatal("subscribe finished while a state write was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(proceed)

	var c *ClientHandle
	select {
	case c = <-subscribed:
	case <-time.After(time.Second):
		t.Fatal("subscribe never finished")
	}

	seen := 0
	for _, e := range receive(t, c) {
		if l, ok := e.Data.(models.MLogEntry); ok && l.ID == entry.ID {
			seen++
		}
	}
	assert.Equal(t, 1, seen, "entry delivered exactly once")
}

func TestUnsubscribe(t *testing.T) {
	h := NewHub(4, nil, nil)
	c := h.Subscribe()
	h.Unsubscribe(c)
	h.Unsubscribe(c)
	assert.Equal(t, 0, h.Count())

	h.Publish(tickEvent(1))
	_, err := c.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestReceiveWakesOnPublish(t *testing.T) {
	h := NewHub(4, nil, nil)
	c := h.Subscribe()

	got := make(chan []models.MEvent, 1)
	go func() {
		batch, _ := c.Receive(context.Background())
		got <- batch
	}()

	time.Sleep(10 * time.Millisecond)
	h.Publish(tickEvent(7))

	select {
	case batch := <-got:
		assert.Equal(t, []float64{7}, bids(batch))
	case <-time.After(time.Second):
		t.Fatal("receiver not woken")
	}
	assert.Empty(t, c.TryReceive())
}

func TestReceiveContextCancel(t *testing.T) {
	h := NewHub(4, nil, nil)
	c := h.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
