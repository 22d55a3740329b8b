package liveserver

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"basket_swap/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.GetSendChan():
		require.True(t, ok, "client channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("client did not receive message")
	}
	return Message{}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := startHub(t)

	client := NewClient("test-1")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Unregister(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, client.Send(Message{Type: TypeSnapshot}))
}

func TestHubBroadcastToMultipleClients(t *testing.T) {
	hub := startHub(t)

	clients := []*Client{NewClient("a"), NewClient("b"), NewClient("c")}
	for _, c := range clients {
		hub.Register(c)
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 5*time.Millisecond)

	msg := NewLegResultMessage("run-1", core.SwapResult{LegIndex: 0, Symbol: "SUI", Status: core.ResultSuccess, Digest: "D1"})
	hub.Broadcast(msg)

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			got := receive(t, c)
			assert.Equal(t, TypeLegResult, got.Type)
			assert.Equal(t, "run-1", got.RunID)
		}(c)
	}
	wg.Wait()
}

func TestHubGreetsNewClients(t *testing.T) {
	hub := startHub(t)
	hub.SetGreeting(func() (Message, bool) {
		return NewSnapshotMessage(core.RunSnapshot{ID: "run-7", Status: core.RunRunning}), true
	})

	client := NewClient("late")
	hub.Register(client)

	got := receive(t, client)
	assert.Equal(t, TypeSnapshot, got.Type)
	assert.Equal(t, "run-7", got.RunID)
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	// no deadlock once the hub is gone
	late := NewClient("late")
	hub.Register(late)
	hub.Unregister(late)
	assert.False(t, late.Send(Message{}))
}

func TestClientSendWhenClosed(t *testing.T) {
	client := NewClient("test")
	assert.True(t, client.Send(Message{Type: TypeRunStarted}))
	assert.Equal(t, TypeRunStarted, (<-client.GetSendChan()).Type)

	client.Close()
	client.Close()
	assert.False(t, client.Send(Message{Type: TypeRunStarted}))
}

func TestSlowClientDropped(t *testing.T) {
	hub := startHub(t)

	client := NewClient("slow-client")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// never read; the 256 buffer fills and the hub drops the client
	for i := 0; i < 600; i++ {
		hub.Broadcast(Message{Type: TypeLegResult, Data: fmt.Sprintf("msg-%d", i)})
		if i%50 == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunBroadcaster(t *testing.T) {
	hub := startHub(t)
	b := NewRunBroadcaster(hub)

	_, ok := b.Latest()
	assert.False(t, ok)

	live := NewClient("live")
	hub.Register(live)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// runs start with no results, as the orchestrator emits them
	snap := core.RunSnapshot{
		ID:     "run-1",
		Status: core.RunRunning,
		Legs:   []core.SwapLeg{{Index: 0}, {Index: 1}, {Index: 2}},
	}
	b.OnRunStarted(snap)
	b.OnLegResult("run-1", core.SwapResult{LegIndex: 0, Symbol: "SUI", Status: core.ResultPending})
	b.OnLegResult("run-1", core.SwapResult{LegIndex: 0, Symbol: "SUI", Status: core.ResultSuccess, Digest: "D1"})
	b.OnLegResult("run-1", core.SwapResult{LegIndex: 1, Symbol: "DEEP", Status: core.ResultError, Kind: core.ErrorKindQuote})
	// results for other runs do not touch the stored run
	b.OnLegResult("run-0", core.SwapResult{LegIndex: 2, Symbol: "NS", Status: core.ResultError})

	assert.Equal(t, TypeRunStarted, receive(t, live).Type)
	assert.Equal(t, TypeLegResult, receive(t, live).Type)

	latest, ok := b.Latest()
	require.True(t, ok)
	require.Len(t, latest.Results, 2)
	assert.Equal(t, "D1", latest.Results[0].Digest)
	assert.Equal(t, core.ResultSuccess, latest.Results[0].Status)
	assert.Equal(t, core.ErrorKindQuote, latest.Results[1].Kind)

	// callers cannot mutate the stored run through a returned copy
	latest.Results[0].Digest = "mutated"
	again, _ := b.Latest()
	assert.Equal(t, "D1", again.Results[0].Digest)

	late := NewClient("late")
	hub.Register(late)
	greeting := receive(t, late)
	assert.Equal(t, TypeSnapshot, greeting.Type)
	assert.Equal(t, "run-1", greeting.RunID)
	greeted, ok := greeting.Data.(core.RunSnapshot)
	require.True(t, ok)
	assert.Len(t, greeted.Results, 2)

	done := snap
	done.Status = core.RunCompleted
	done.AllOK = true
	b.OnRunCompleted(done)
	latest, _ = b.Latest()
	assert.Equal(t, core.RunCompleted, latest.Status)
}

func TestRunBroadcaster_BatchResult(t *testing.T) {
	b := NewRunBroadcaster(startHub(t))
	b.OnRunStarted(core.RunSnapshot{ID: "run-b", Status: core.RunRunning})

	b.OnLegResult("run-b", core.SwapResult{LegIndex: core.BatchLegIndex, Symbol: "batch", Status: core.ResultPending})
	b.OnLegResult("run-b", core.SwapResult{LegIndex: core.BatchLegIndex, Symbol: "batch", Status: core.ResultSuccess, Digest: "B1"})

	latest, ok := b.Latest()
	require.True(t, ok)
	require.Len(t, latest.Results, 1)
	assert.Equal(t, "B1", latest.Results[0].Digest)
}

func TestRunClientSkipsOtherRuns(t *testing.T) {
	client := NewRunClient("c", "run-2")

	assert.True(t, client.Send(Message{Type: TypeLegResult, RunID: "run-1"}))
	assert.True(t, client.Send(Message{Type: TypeLegResult, RunID: "run-2"}))

	require.Len(t, client.GetSendChan(), 1)
	msg := <-client.GetSendChan()
	assert.Equal(t, "run-2", msg.RunID)
}
