package history

import (
	"context"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func texts(messages []model.Message) []string {
	out := make([]string, len(messages))
	for i, msg := range messages {
		out[i] = msg.Text()
	}
	return out
}

func requireInvariants(t *testing.T, h *History) {
	t.Helper()
	all := h.AllMessages()
	streaming := 0
	for i, msg := range all {
		if msg.IsStreaming() {
			streaming++
			require.Equal(t, len(all)-1, i, "streaming message must be last")
		}
	}
	require.LessOrEqual(t, streaming, 1)
	id, active := h.StreamingMessageID()
	if active {
		require.Equal(t, 1, streaming)
		require.Equal(t, id, all[len(all)-1].ID)
	} else {
		require.Zero(t, streaming)
	}
	for _, msg := range h.Messages() {
		require.False(t, msg.IsStreaming())
	}
}

func TestInvariantsHoldForRandomCommands(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	h := New("S")
	for i := 0; i < 2000; i++ {
		switch rnd.Intn(6) {
		case 0:
			h.AddUserMessage("u")
		case 1:
			h.AddAssistantMessage("a")
		case 2:
			h.BeginStreamingResponse()
		case 3:
			h.UpdateStreamingMessage("partial")
		case 4:
			h.CompleteStreamingMessage("final")
		case 5:
			if rnd.Intn(10) == 0 {
				h.ClearHistory(rnd.Intn(2) == 0)
			}
		}
		requireInvariants(t, h)
	}
}

func TestAddDuringStreamKeepsStreamingLast(t *testing.T) {
	h := New("S")
	id := h.BeginStreamingResponse()
	h.AddUserMessage("u")
	requireInvariants(t, h)

	h.AddMessage(model.NewUserImageMessage("https://example.com/a.png"))
	requireInvariants(t, h)

	h.UpdateStreamingMessage("par")
	requireInvariants(t, h)
	h.CompleteStreamingMessage("partial")
	requireInvariants(t, h)

	all := h.AllMessages()
	require.Len(t, all, 4)
	assert.Equal(t, []string{"S", "u", "", "partial"}, texts(all))
	assert.Equal(t, model.ContentTypeImageURL, all[2].Content[0].Type)
	assert.Equal(t, id, all[3].ID)
	assert.Equal(t, model.MessageStateComplete, all[3].State)
	assert.False(t, h.IsStreaming())
}

func TestAddMessageStoresCompleteCopy(t *testing.T) {
	h := New("S")
	msg := model.NewAssistantMessage("x")
	msg.State = model.MessageStateStreaming
	h.AddMessage(msg)

	assert.False(t, h.IsStreaming())
	require.Len(t, h.Messages(), 2)
	assert.Equal(t, model.MessageStateComplete, h.Messages()[1].State)
}

func TestUpdateAndCompleteAreNoOpsWhenIdle(t *testing.T) {
	h := New("S")
	h.AddUserMessage("hi")
	before := h.AllMessages()

	h.UpdateStreamingMessage("late")
	h.CompleteStreamingMessage("late")

	assert.Equal(t, before, h.AllMessages())
	assert.False(t, h.IsStreaming())
}

func TestStreamingRoundTrip(t *testing.T) {
	h := New("S")
	id := h.BeginStreamingResponse()
	assert.True(t, h.IsStreaming())
	h.UpdateStreamingMessage("ab")
	h.UpdateStreamingMessage("abc")
	h.CompleteStreamingMessage("abc")

	messages := h.Messages()
	require.Len(t, messages, 2)
	last := messages[1]
	assert.Equal(t, id, last.ID)
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, "abc", last.Text())
	assert.Equal(t, model.MessageStateComplete, last.State)
	assert.False(t, h.IsStreaming())
}

func TestBasicTurn(t *testing.T) {
	h := New("S")
	h.AddUserMessage("hi")
	h.BeginStreamingResponse()
	h.UpdateStreamingMessage("He")
	h.UpdateStreamingMessage("Hello")

	assert.Equal(t, []string{"S", "hi"}, texts(h.Messages()), "streaming message is not committed")
	assert.Equal(t, []string{"S", "hi", "Hello"}, texts(h.AllMessages()))

	h.CompleteStreamingMessage("Hello")

	messages := h.Messages()
	assert.Equal(t, []string{"S", "hi", "Hello"}, texts(messages))
	assert.Equal(t, []model.Role{model.RoleSystem, model.RoleUser, model.RoleAssistant},
		[]model.Role{messages[0].Role, messages[1].Role, messages[2].Role})
}

func TestCancelledStreamCommitsPartial(t *testing.T) {
	h := New("S")
	h.BeginStreamingResponse()
	h.UpdateStreamingMessage("part")
	h.UpdateStreamingMessage("partial")
	h.CompleteStreamingMessage("partial")

	assert.False(t, h.IsStreaming())
	all := h.AllMessages()
	last := all[len(all)-1]
	assert.Equal(t, "partial", last.Text())
	assert.Equal(t, model.MessageStateComplete, last.State)
}

func TestBeginWhileStreamingKeepsSingleStream(t *testing.T) {
	h := New("S")
	first := h.BeginStreamingResponse()
	second := h.BeginStreamingResponse()
	assert.Equal(t, first, second)
	assert.Len(t, h.AllMessages(), 2)
}

func TestClearHistory(t *testing.T) {
	h := New("system")
	h.AddUserMessage("user")
	h.AddAssistantMessage("assistant")

	h.ClearHistory(true)
	messages := h.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleSystem, messages[0].Role)
	assert.Equal(t, "system", messages[0].Text())

	h.ClearHistory(false)
	assert.Empty(t, h.Messages())

	// nothing left to keep
	h.AddUserMessage("again")
	h.ClearHistory(true)
	assert.Empty(t, h.Messages())
}

func TestClearDuringStreamIgnoresLateChunks(t *testing.T) {
	h := New("S")
	h.BeginStreamingResponse()
	h.UpdateStreamingMessage("par")
	h.ClearHistory(true)
	h.UpdateStreamingMessage("partial")
	h.CompleteStreamingMessage("partial")

	assert.Equal(t, []string{"S"}, texts(h.AllMessages()))
	assert.False(t, h.IsStreaming())
}

func TestSnapshotsAreCopies(t *testing.T) {
	h := New("S")
	h.AddUserMessage("hi")
	messages := h.Messages()
	messages[1].Content[0].Text = "changed"
	assert.Equal(t, "hi", h.Messages()[1].Text())
}

func receive(t *testing.T, ch <-chan []model.Message) []model.Message {
	t.Helper()
	select {
	case snapshot, ok := <-ch:
		require.True(t, ok, "channel closed")
		return snapshot
	case <-time.After(time.Second):
		require.FailNow(t, "no snapshot delivered")
		return nil
	}
}

func TestSubscribeDeliversCurrentSnapshotFirst(t *testing.T) {
	h := New("S")
	h.AddUserMessage("hi")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := h.Subscribe(ctx)
	assert.Equal(t, []string{"S", "hi"}, texts(receive(t, feed)))

	h.BeginStreamingResponse()
	snapshot := receive(t, feed)
	require.Len(t, snapshot, 3)
	assert.True(t, snapshot[2].IsStreaming(), "feed includes the live message")

	h.UpdateStreamingMessage("He")
	assert.Equal(t, "He", receive(t, feed)[2].Text())
}

func TestSubscriberSeesLatestUnderBackpressure(t *testing.T) {
	h := New("S")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := h.Subscribe(ctx)
	receive(t, feed)

	h.BeginStreamingResponse()
	for _, partial := range []string{"a", "ab", "abc", "abcd"} {
		h.UpdateStreamingMessage(partial)
	}

	snapshot := receive(t, feed)
	assert.Equal(t, "abcd", snapshot[len(snapshot)-1].Text())
	select {
	case stale := <-feed:
		t.Fatalf("unexpected queued snapshot: %v", texts(stale))
	default:
	}
}

func TestMultipleSubscribersAreIndependent(t *testing.T) {
	h := New("S")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fast := h.Subscribe(ctx)
	slow := h.Subscribe(ctx)
	receive(t, fast)

	h.AddUserMessage("one")
	assert.Equal(t, []string{"S", "one"}, texts(receive(t, fast)))
	h.AddUserMessage("two")
	assert.Equal(t, []string{"S", "one", "two"}, texts(receive(t, fast)))

	assert.Equal(t, []string{"S", "one", "two"}, texts(receive(t, slow)))
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	h := New("S")
	ctx, cancel := context.WithCancel(context.Background())
	feed := h.Subscribe(ctx)
	receive(t, feed)
	cancel()

	require.Eventually(t, func() bool { return h.broadcast.len() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-feed
	assert.False(t, ok)

	h.AddUserMessage("after")
}

func TestCloseEndsSubscriptions(t *testing.T) {
	h := New("S")
	feed := h.Subscribe(context.Background())
	receive(t, feed)
	h.Close()

	_, ok := <-feed
	assert.False(t, ok)

	late := h.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok)

	h.AddUserMessage("still usable")
	assert.Len(t, h.Messages(), 2)
}

func TestConcurrentCommandsAndObservers(t *testing.T) {
	h := New("S")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var observers sync.WaitGroup
	for i := 0; i < 4; i++ {
		feed := h.Subscribe(ctx)
		observers.Add(1)
		go func() {
			defer observers.Done()
			last := 0
			for snapshot := range feed {
				// snapshots only grow while nothing clears the history
				assert.GreaterOrEqual(t, len(snapshot), last)
				last = len(snapshot)
			}
		}()
	}

	var writers sync.WaitGroup
	for i := 0; i < 8; i++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for j := 0; j < 50; j++ {
				h.AddUserMessage("u")
				h.BeginStreamingResponse()
				h.UpdateStreamingMessage("p")
				h.CompleteStreamingMessage("p")
			}
		}()
	}
	writers.Wait()
	h.Close()
	observers.Wait()

	requireInvariants(t, h)
	assert.False(t, h.IsStreaming())
}
