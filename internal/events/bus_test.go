package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	bus.Emit(TypeSearchPerformed, "/search", "", map[string]interface{}{"query": "defi"})
	bus.Emit(TypeFeedbackSubmitted, "/feedback", "8453:1", nil)

	ev := <-ch
	assert.Equal(t, TypeSearchPerformed, ev.Type)
	ev = <-ch
	assert.Equal(t, TypeFeedbackSubmitted, ev.Type)
	assert.Equal(t, "8453:1", ev.Subject)
}

func TestSubscribeFiltersByType(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TypeAgentClassified)

	bus.Emit(TypeSearchPerformed, "/search", "", nil)
	bus.Emit(TypeAgentClassified, "/classify", "1:7", nil)

	ev := <-ch
	assert.Equal(t, TypeAgentClassified, ev.Type)
	assert.Empty(t, ch, "non-matching types never reach the channel")
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	bus.bufferSize = 1
	ch := bus.Subscribe()

	bus.Emit(TypeSearchPerformed, "/search", "", map[string]interface{}{"n": 1})
	bus.Emit(TypeSearchPerformed, "/search", "", map[string]interface{}{"n": 2})

	// Second publish was dropped, not queued.
	ev := <-ch
	assert.Equal(t, 1, ev.Data["n"])
	assert.Empty(t, ch)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TypeTrustGraphRebuilt)
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	bus.Emit(TypeTrustGraphRebuilt, "/trust", "", nil)
}

func TestSubscriberCount(t *testing.T) {
	bus := NewBus()
	assert.Equal(t, 0, bus.SubscriberCount())

	a := bus.Subscribe()
	b := bus.Subscribe(TypeSearchPerformed, TypeAgentClassified)
	assert.Equal(t, 3, bus.SubscriberCount())

	bus.Unsubscribe(a)
	bus.Unsubscribe(b)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestCloudEventEnvelope(t *testing.T) {
	ev := NewCloudEvent(TypeAgentDetailFetched, "/agents", "8453:42", map[string]interface{}{"cached": true})

	assert.Equal(t, "1.0", ev.SpecVersion)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Time.IsZero())

	other := NewCloudEvent(TypeAgentDetailFetched, "/agents", "8453:42", nil)
	assert.NotEqual(t, ev.ID, other.ID)
}

func TestSSEFormat(t *testing.T) {
	ev := NewCloudEvent(TypeSearchPerformed, "/search", "", map[string]interface{}{"query": "defi"})
	frame, err := ev.SSEFormat()
	require.NoError(t, err)

	s := string(frame)
	assert.Contains(t, s, "event: "+TypeSearchPerformed+"\n")
	assert.Contains(t, s, "data: {")
	assert.Contains(t, s, "id: "+ev.ID+"\n")
	assert.Equal(t, "\n\n", s[len(s)-2:])
}
