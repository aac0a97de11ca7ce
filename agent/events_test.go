package agent

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/internal/metrics"
	"github.com/truffle-ai/saiki-sub004/testutil"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewEventBus(nil)
	defer bus.Stop()

	var got atomic.Value
	bus.Subscribe(EventResponse, func(ev Event) {
		got.Store(ev.Content)
	})

	bus.Publish(Event{Type: EventResponse, Content: "done"})

	testutil.EventuallyTrue(t, func() bool {
		v, _ := got.Load().(string)
		return v == "done"
	}, time.Second)
}

func TestPublishIgnoresUnsubscribedTypes(t *testing.T) {
	bus := NewEventBus(nil)
	defer bus.Stop()

	var calls int64
	bus.Subscribe(EventToolCall, func(Event) {
		atomic.AddInt64(&calls, 1)
	})

	bus.Publish(Event{Type: EventResponse, Content: "done"})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&calls))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(nil)
	defer bus.Stop()

	var calls int64
	id := bus.Subscribe(EventResponse, func(Event) {
		atomic.AddInt64(&calls, 1)
	})
	bus.Unsubscribe(id)

	bus.Publish(Event{Type: EventResponse})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&calls))
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewEventBus(nil)
	defer bus.Stop()

	// No subscribers drain anything; flooding far past the buffer must not
	// block the publisher.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Type: EventChunk, Content: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked")
	}
}

func TestPanickingHandlerDoesNotKillBus(t *testing.T) {
	bus := NewEventBus(nil)
	defer bus.Stop()

	bus.Subscribe(EventResponse, func(Event) {
		panic("handler bug")
	})

	var delivered atomic.Int64
	bus.Subscribe(EventResponse, func(Event) {
		delivered.Add(1)
	})

	bus.Publish(Event{Type: EventResponse})
	bus.Publish(Event{Type: EventResponse})

	testutil.EventuallyTrue(t, func() bool {
		return delivered.Load() == 2
	}, time.Second)
}

func TestPublishAfterStopIsNoop(t *testing.T) {
	bus := NewEventBus(nil)

	var mu sync.Mutex
	received := 0
	bus.Subscribe(EventResponse, func(Event) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	bus.Stop()
	bus.Publish(Event{Type: EventResponse})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, received)
}

func TestPublishStampsTimestamp(t *testing.T) {
	bus := NewEventBus(nil)
	defer bus.Stop()

	var got atomic.Value
	bus.Subscribe(EventThinking, func(ev Event) {
		got.Store(ev.Timestamp)
	})

	bus.Publish(Event{Type: EventThinking})

	testutil.EventuallyTrue(t, func() bool {
		ts, ok := got.Load().(time.Time)
		return ok && !ts.IsZero()
	}, time.Second)
}

func TestPublishCountsDroppedEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, nil)

	// A bus without a running drain goroutine and no buffer: every publish
	// lands on the drop path.
	bus := &EventBus{
		handlers:  make(map[EventType]map[string]EventHandler),
		events:    make(chan Event),
		done:      make(chan struct{}),
		collector: collector,
		logger:    zap.NewNop(),
	}

	bus.Publish(Event{Type: EventChunk})
	bus.Publish(Event{Type: EventChunk})
	bus.Publish(Event{Type: EventChunk})

	assert.Equal(t, float64(3), gaugeValue(t, reg, "test_events_dropped_total"))
}

// gaugeValue reads a single-sample metric from the registry by name.
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}
