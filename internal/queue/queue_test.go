package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

func TestInMemoryQueue_PublishWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue()
	assert.Error(t, q.Publish(TopicCampaignEvents, model.CampaignEvent{CampaignID: 1}))
}

func TestInMemoryQueue_RetriesFailedHandler(t *testing.T) {
	q := NewInMemoryQueue()
	q.retryDelay = time.Millisecond

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, q.Subscribe("jobs", func(body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish("jobs", map[string]int{"id": 7}))
	q.Wait()
	assert.Equal(t, 3, attempts)
}

func TestInMemoryQueue_DropsAfterMaxRetries(t *testing.T) {
	q := NewInMemoryQueue()
	q.retryDelay = time.Millisecond

	attempts := 0
	require.NoError(t, q.Subscribe("jobs", func([]byte) error {
		attempts++
		return errors.New("permanent")
	}))

	require.NoError(t, q.Publish("jobs", 1))
	q.Wait()
	assert.Equal(t, q.maxRetries+1, attempts)
}

type recordingHandler struct {
	mu   sync.Mutex
	cmds []model.ControlCommand
}

func (h *recordingHandler) Handle(_ context.Context, cmd model.ControlCommand) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd)
	return nil
}

func TestCommandBus_SkipsOwnCommands(t *testing.T) {
	q := NewInMemoryQueue()
	local, remote := &recordingHandler{}, &recordingHandler{}
	require.NoError(t, StartCommandSubscriber(q, "node-a", local))
	require.NoError(t, StartCommandSubscriber(q, "node-b", remote))

	bus := &CommandBus{Queue: q, Origin: "node-a"}
	require.NoError(t, bus.PublishCommand(context.Background(), model.ControlCommand{CampaignID: 3, Action: model.ActionPause}))
	q.Wait()

	assert.Empty(t, local.cmds)
	require.Len(t, remote.cmds, 1)
	assert.Equal(t, model.ControlCommand{CampaignID: 3, Action: model.ActionPause, Origin: "node-a"}, remote.cmds[0])
}

func TestEventNotifier_PublishesCompletion(t *testing.T) {
	q := NewInMemoryQueue()
	got := make(chan model.CampaignEvent, 1)
	require.NoError(t, q.Subscribe(TopicCampaignEvents, func(body []byte) error {
		var e model.CampaignEvent
		if err := Decode(body, &e); err != nil {
			return err
		}
		got <- e
		return nil
	}))

	n := &EventNotifier{Queue: q}
	require.NoError(t, n.CampaignCompleted(context.Background(), model.CampaignEvent{
		Type:       model.EventCampaignCompleted,
		CampaignID: 9,
		Sent:       4,
		Failed:     1,
		Total:      5,
	}))
	q.Wait()

	e := <-got
	assert.Equal(t, 9, e.CampaignID)
	assert.Equal(t, 4, e.Sent)
	assert.Equal(t, model.EventCampaignCompleted, e.Type)
}

func TestDecode_InvalidBody(t *testing.T) {
	var cmd model.ControlCommand
	assert.Error(t, Decode([]byte("{"), &cmd))
}
