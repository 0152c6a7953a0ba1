package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sub *Subscriber) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("hub did not close subscriber")
			return out
		}
	}
}

func TestHub_BroadcastAndStop(t *testing.T) {
	m := NewHubManager(10)
	hub := m.Open("Test")

	a := hub.Subscribe()
	b := hub.Subscribe()
	require.NotNil(t, a)
	require.NotNil(t, b)

	hub.Broadcast(Output("line 1"))
	hub.Broadcast(Output("line 2"))
	code := 0
	hub.Broadcast(Exited(&code))
	m.RemoveHub("Test", hub)

	for _, sub := range []*Subscriber{a, b} {
		got := drain(t, sub)
		require.Len(t, got, 3)
		assert.Equal(t, "line 1", got[0].Line)
		assert.Equal(t, "line 2", got[1].Line)
		assert.True(t, got[2].Exit)
	}

	_, ok := m.GetHub("Test")
	assert.False(t, ok)
	assert.Nil(t, hub.Subscribe(), "stopped hub rejects subscribers")
}

func TestHub_HistoryReplayedToLateSubscriber(t *testing.T) {
	hub := NewHub(2)
	go hub.Run()

	hub.Broadcast(Output("a"))
	hub.Broadcast(Output("b"))
	hub.Broadcast(Output("c"))

	require.Eventually(t, func() bool { return len(hub.HistorySnapshot()) == 2 }, time.Second, 10*time.Millisecond)

	late := hub.Subscribe()
	require.NotNil(t, late)
	hub.Stop()

	got := drain(t, late)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Line)
	assert.Equal(t, "c", got[1].Line)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(0)
	go hub.Run()
	defer hub.Stop()

	sub := hub.Subscribe()
	sub.Close()
	assert.Empty(t, drain(t, sub))
}

func TestHub_ReplaysFullHistoryLargerThanLiveBuffer(t *testing.T) {
	const history = subscriberBuffer * 2
	hub := NewHub(history)
	go hub.Run()

	for i := 0; i < history; i++ {
		hub.Broadcast(Output(fmt.Sprintf("line %d", i)))
	}
	require.Eventually(t, func() bool { return len(hub.HistorySnapshot()) == history },
		5*time.Second, 10*time.Millisecond)

	sub := hub.Subscribe()
	require.NotNil(t, sub)
	hub.Broadcast(Output(fmt.Sprintf("line %d", history)))
	hub.Stop()

	got := drain(t, sub)
	require.Len(t, got, history+1)
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("line %d", i), ev.Line)
	}
}

func TestHubManager_OpenReplacesAndRemoveKeepsNewer(t *testing.T) {
	m := NewHubManager(10)
	first := m.Open("Test")
	sub := first.Subscribe()
	require.NotNil(t, sub)

	second := m.Open("Test")
	assert.NotSame(t, first, second)
	assert.Empty(t, drain(t, sub), "replaced hub closes its subscribers")

	m.RemoveHub("Test", first)
	got, ok := m.GetHub("Test")
	require.True(t, ok)
	assert.Same(t, second, got)

	m.RemoveHub("Test", second)
	_, ok = m.GetHub("Test")
	assert.False(t, ok)
}
